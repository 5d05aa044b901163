// Copyright 2020 Nokia
// Licensed under the BSD 3-Clause License.
// SPDX-License-Identifier: BSD-3-Clause

package cmd

import (
	"errors"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mtls-labs/clusterca/cert"
	caerrors "github.com/mtls-labs/clusterca/errors"
	"github.com/mtls-labs/clusterca/utils"
)

func verifyCmd(o *Options) (*cobra.Command, error) {
	c := &cobra.Command{
		Use:   "verify <certificate-file>",
		Short: "check that a certificate was issued by the cluster root",
		Long: "check that the PEM certificate in the given file was signed by the cluster root\n" +
			"and is currently valid. Only the root certificate is needed, not its key.",
		Args: exactArgs(1),
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return verifyFn(cobraCmd, o, args[0])
		},
	}

	c.Flags().StringVarP(&o.Verify.Hostname, "hostname", "", o.Verify.Hostname,
		"DNS name the certificate must be valid for")
	c.Flags().StringVarP(&o.Verify.Role, "role", "", o.Verify.Role,
		"role the certificate must carry; one of [root, control, node]")
	c.Flags().StringVarP(&o.Verify.CACert, "ca-cert", "", o.Verify.CACert,
		"path to the cluster root certificate. Default is cluster.crt in the authority directory")
	_ = c.MarkFlagFilename("ca-cert", "crt", "pem")

	return c, nil
}

func verifyFn(cobraCmd *cobra.Command, o *Options, file string) error {
	opts := cert.VerifyOptions{}

	if o.Verify.Role != "" {
		role, err := cert.ParseRole(o.Verify.Role)
		if err != nil {
			return err
		}
		opts.Role = role
	}

	if o.Verify.Hostname != "" {
		h, err := cert.ValidateHostname(o.Verify.Hostname)
		if err != nil {
			return err
		}
		opts.Hostname = h
	}

	caPath := o.Verify.CACert
	if caPath == "" {
		store, err := o.Storage()
		if err != nil {
			return err
		}
		caPath = store.CertAbsFilename(store.Naming().AuthorityIdentifier())
	}

	caPath, err := utils.ExpandPath(caPath)
	if err != nil {
		return err
	}

	root, err := readCertificate(caPath)
	if err != nil {
		return err
	}

	log.Debugf("Verifying %s against %s (%s)", file, caPath, root.Subject)

	b, err := utils.ReadFileContent(file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", caerrors.ErrNotFound, file)
		}

		return fmt.Errorf("%w: %v", caerrors.ErrIO, err)
	}

	leaf, err := cert.Verify(root, b, opts)
	if err != nil {
		return err
	}

	role := "unknown role"
	if r, err := cert.RoleOf(leaf); err == nil {
		role = r.String()
	}

	fmt.Fprintf(cobraCmd.OutOrStdout(), "%s: OK (%s, %s, issued by %s)\n",
		file, leaf.Subject.CommonName, role, root.Subject.CommonName)

	return nil
}
