// Copyright 2020 Nokia
// Licensed under the BSD 3-Clause License.
// SPDX-License-Identifier: BSD-3-Clause

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mtls-labs/clusterca/cert"
	"github.com/mtls-labs/clusterca/constants"
	"github.com/mtls-labs/clusterca/issuer"
)

func createControlCertificateCmd(o *Options) (*cobra.Command, error) {
	c := &cobra.Command{
		Use:   "create-control-certificate <hostname>",
		Short: "issue the certificate of the control service",
		Long: "issue a certificate and key for the control service reachable at the given DNS name,\n" +
			"signed by the cluster authority found in the target directory.\n" +
			"IP addresses are not accepted as hostname.",
		Aliases: []string{"control"},
		Args:    exactArgs(1),
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return issueFn(cobraCmd, o, func(i *issuer.Issuer) (*issuer.Identity, error) {
				return i.CreateControlIdentity(args[0])
			})
		},
	}

	return c, nil
}

func createNodeCertificateCmd(o *Options) (*cobra.Command, error) {
	c := &cobra.Command{
		Use:   "create-node-certificate",
		Short: "issue a certificate for a new agent node",
		Long: "issue a certificate and key for an agent node, identified by a freshly generated UUID,\n" +
			"signed by the cluster authority found in the target directory.\n" +
			"The UUID is printed on stdout.",
		Aliases: []string{"node"},
		Args:    exactArgs(0),
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			return issueFn(cobraCmd, o, func(i *issuer.Issuer) (*issuer.Identity, error) {
				return i.CreateNodeIdentity()
			})
		},
	}

	return c, nil
}

// issueFn loads the cluster authority, issues an identity with f and stores it
// next to the authority.
func issueFn(cobraCmd *cobra.Command, o *Options, f func(*issuer.Issuer) (*issuer.Identity, error)) error {
	store, err := o.Storage()
	if err != nil {
		return err
	}

	ca := o.CA.NewCA()
	if err := issuer.LoadAuthority(ca, store); err != nil {
		return err
	}

	id, err := f(issuer.New(ca, issuer.WithNaming(store.Naming())))
	if err != nil {
		return err
	}

	if err := issuer.Save(store, id); err != nil {
		return err
	}

	out := cobraCmd.OutOrStdout()

	if id.Role == cert.RoleNode {
		fmt.Fprintln(out, id.NodeID)
	}

	installed, err := cert.InstalledNaming.Identifier(id.Role, "")
	if err != nil {
		return err
	}

	fmt.Fprintf(cobraCmd.ErrOrStderr(),
		"Created %s and %s.\nInstall them as %s and %s together with %s on the %s host.\n",
		store.CertAbsFilename(id.Identifier), store.KeyAbsFilename(id.Identifier),
		installed+constants.CertFileSuffix, installed+constants.KeyFileSuffix,
		cert.InstalledNaming.AuthorityIdentifier()+constants.CertFileSuffix, id.Role)

	return nil
}
