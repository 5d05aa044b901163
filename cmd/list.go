// Copyright 2020 Nokia
// Licensed under the BSD 3-Clause License.
// SPDX-License-Identifier: BSD-3-Clause

package cmd

import (
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/mtls-labs/clusterca/cert"
	"github.com/mtls-labs/clusterca/constants"
	caerrors "github.com/mtls-labs/clusterca/errors"
	"github.com/mtls-labs/clusterca/utils"
)

const (
	statusValid = "valid"

	// serialDigits is the number of hex digits of the serial shown in tables.
	serialDigits = 16
)

// certificateDetails is a row of the list output.
type certificateDetails struct {
	Name        string    `json:"name" yaml:"name"`
	Role        string    `json:"role" yaml:"role"`
	Subject     string    `json:"subject" yaml:"subject"`
	Hosts       []string  `json:"hosts,omitempty" yaml:"hosts,omitempty"`
	Serial      string    `json:"serial" yaml:"serial"`
	NotAfter    time.Time `json:"not_after" yaml:"not_after"`
	Fingerprint string    `json:"sha256_fingerprint" yaml:"sha256_fingerprint"`
	Status      string    `json:"status" yaml:"status"`
}

func listCmd(o *Options) (*cobra.Command, error) {
	c := &cobra.Command{
		Use:     "list",
		Short:   "list the certificates in the authority directory",
		Long:    "list the cluster root and every issued certificate found in the target directory,\nchecking each against the cluster root.",
		Aliases: []string{"ls"},
		Args:    exactArgs(0),
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			return listFn(cobraCmd, o)
		},
	}

	c.Flags().StringVarP(&o.List.Format, "format", "f", o.List.Format,
		"output format. One of [table, json, yaml]")

	return c, nil
}

func listFn(cobraCmd *cobra.Command, o *Options) error {
	switch o.List.Format {
	case constants.FormatTable, constants.FormatJSON, constants.FormatYAML:
	default:
		return fmt.Errorf("%w: unknown output format %q", caerrors.ErrInvalidRequest, o.List.Format)
	}

	store, err := o.Storage()
	if err != nil {
		return err
	}

	aid := store.Naming().AuthorityIdentifier()

	root, err := readCertificate(store.CertAbsFilename(aid))
	if err != nil {
		return err
	}

	ids, err := store.ListIdentities()
	if err != nil {
		return err
	}

	details := []certificateDetails{describe(aid, root, root)}

	for _, id := range ids {
		c, err := readCertificate(store.CertAbsFilename(id))
		if err != nil {
			log.Warnf("Skipping %s: %v", id, err)
			continue
		}

		details = append(details, describe(id, c, root))
	}

	return printDetails(cobraCmd.OutOrStdout(), o.List.Format, details)
}

func readCertificate(path string) (*x509.Certificate, error) {
	b, err := utils.ReadFileContent(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", caerrors.ErrNotFound, path)
		}

		return nil, fmt.Errorf("%w: %v", caerrors.ErrIO, err)
	}

	c := &cert.Certificate{Cert: b}

	return c.X509()
}

func describe(name string, c, root *x509.Certificate) certificateDetails {
	d := certificateDetails{
		Name:        name,
		Role:        constants.NotApplicable,
		Subject:     c.Subject.String(),
		Serial:      c.SerialNumber.Text(16),
		NotAfter:    c.NotAfter.UTC(),
		Fingerprint: cert.Fingerprint(c),
		Status:      statusValid,
	}

	if role, err := cert.RoleOf(c); err == nil {
		d.Role = role.String()
	}

	d.Hosts = append(d.Hosts, c.DNSNames...)
	for _, u := range c.URIs {
		d.Hosts = append(d.Hosts, u.String())
	}

	if err := cert.VerifyCertificate(root, c, cert.VerifyOptions{}); err != nil {
		log.Debugf("%s: %v", name, err)

		d.Status = "untrusted"
		if time.Now().After(c.NotAfter) {
			d.Status = "expired"
		}
	}

	return d
}

func printDetails(w io.Writer, format string, details []certificateDetails) error {
	switch format {
	case constants.FormatJSON:
		b, err := json.MarshalIndent(details, "", "  ")
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(w, string(b))

		return err
	case constants.FormatYAML:
		b, err := yaml.Marshal(details)
		if err != nil {
			return err
		}

		_, err = w.Write(b)

		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Name", "Role", "Hosts", "Serial", "Expires", "Status"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, d := range details {
		table.Append([]string{
			d.Name,
			d.Role,
			strings.Join(d.Hosts, "\n"),
			utils.Shorten(d.Serial, serialDigits),
			fmt.Sprintf("%s (%s)", d.NotAfter.Format("2006-01-02"), humanize.Time(d.NotAfter)),
			d.Status,
		})
	}

	table.Render()

	return nil
}

func humanizeDuration(d time.Duration) string {
	now := time.Now()
	return strings.TrimSpace(humanize.RelTime(now, now.Add(d), "", ""))
}
