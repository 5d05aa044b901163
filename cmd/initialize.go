// Copyright 2020 Nokia
// Licensed under the BSD 3-Clause License.
// SPDX-License-Identifier: BSD-3-Clause

package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mtls-labs/clusterca/cert"
	"github.com/mtls-labs/clusterca/constants"
	caerrors "github.com/mtls-labs/clusterca/errors"
	"github.com/mtls-labs/clusterca/issuer"
)

func initializeCmd(o *Options) (*cobra.Command, error) {
	c := &cobra.Command{
		Use:   "initialize <cluster-name>",
		Short: "create the cluster root certificate and key",
		Long: "create the self-signed root certificate of a cluster and its private key\n" +
			"as cluster.crt and cluster.key in the target directory.\n" +
			"cluster.key signs every other certificate of the cluster and must be kept private.\n" +
			"The command refuses to run if the directory already holds authority material.",
		Args: exactArgs(1),
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return initializeFn(cobraCmd, o, args[0])
		},
	}

	return c, nil
}

func initializeFn(cobraCmd *cobra.Command, o *Options, clusterName string) error {
	store, err := o.Storage()
	if err != nil {
		return err
	}

	log.Debugf("Creating %s-%d root key for cluster %q, valid for %s",
		o.CA.KeyAlgo, o.CA.KeySize, clusterName, humanizeDuration(o.CA.CAExpiry))

	root, err := issuer.Initialize(o.CA.NewCA(), store, &cert.CACSRInput{
		ClusterName: clusterName,
		Key:         o.CA.KeyRequest(),
		Expiry:      o.CA.CAExpiry,
	})
	if err != nil {
		return err
	}

	parsed, err := root.X509()
	if err != nil {
		return err
	}

	aid := store.Naming().AuthorityIdentifier()

	fmt.Fprintf(cobraCmd.OutOrStdout(), "Created %s and %s, valid until %s (%s).\n",
		store.CertAbsFilename(aid), store.KeyAbsFilename(aid),
		parsed.NotAfter.UTC().Format("2006-01-02"), humanize.Time(parsed.NotAfter))
	fmt.Fprintf(cobraCmd.OutOrStdout(), "Keep %s secret, anyone holding it can issue certificates for the cluster.\n",
		aid+constants.KeyFileSuffix)

	return nil
}

// exactArgs is cobra.ExactArgs with the error reported as invalid input.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return fmt.Errorf("%w: %v", caerrors.ErrInvalidRequest, err)
		}

		return nil
	}
}
