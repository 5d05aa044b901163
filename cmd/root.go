// Copyright 2020 Nokia
// Licensed under the BSD 3-Clause License.
// SPDX-License-Identifier: BSD-3-Clause

package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mtls-labs/clusterca/cert/cfssl"
	"github.com/mtls-labs/clusterca/constants"
)

// Entrypoint returns the root command with all subcommands attached.
func Entrypoint() (*cobra.Command, error) {
	o := GetOptions()

	c := &cobra.Command{
		Use:   constants.ClusterCA,
		Short: "certificate authority for a cluster of control and node services",
		Long: "clusterca creates the root certificate of a cluster and issues the control service\n" +
			"and node certificates signed by it. Certificates and keys are written as PEM files\n" +
			"into the directory given with --dir.",
		PersistentPreRunE: func(cobraCmd *cobra.Command, _ []string) error {
			return preRunFn(cobraCmd, o)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := c.PersistentFlags()
	pf.StringVarP(&o.Global.Dir, "dir", "p", o.Global.Dir,
		"directory holding the cluster authority and issued certificates. Default is current working directory")
	pf.StringVarP(&o.Global.LogLevel, "log-level", "", o.Global.LogLevel,
		"logging level; one of [trace, debug, info, warning, error, fatal]")
	pf.CountVarP(&o.Global.DebugCount, "debug", "d", "enable debug mode")
	pf.StringVarP(&o.Global.ConfigFile, "config", "", o.Global.ConfigFile, "path to a YAML config file")
	_ = c.MarkPersistentFlagFilename("config", "*.yaml", "*.yml")
	pf.StringVarP(&o.Global.EnvFile, "env-file", "", o.Global.EnvFile,
		"path to a file with CLUSTERCA_ environment variables")
	pf.StringVarP(&o.CA.KeyAlgo, "key-algo", "", o.CA.KeyAlgo, "algorithm of generated keys; one of [rsa, ecdsa]")
	pf.IntVarP(&o.CA.KeySize, "key-size", "", o.CA.KeySize,
		"size of generated keys; 2048, 3072, 4096 for rsa and 256, 384, 521 for ecdsa")
	pf.DurationVarP(&o.CA.CAExpiry, "ca-expiry", "", o.CA.CAExpiry, "validity period of the cluster root certificate")
	pf.DurationVarP(&o.CA.CertExpiry, "cert-expiry", "", o.CA.CertExpiry,
		"validity period of control and node certificates")

	subCmdFns := []func(*Options) (*cobra.Command, error){
		initializeCmd,
		createControlCertificateCmd,
		createNodeCertificateCmd,
		listCmd,
		verifyCmd,
		versionCmd,
	}

	for _, f := range subCmdFns {
		subCmd, err := f(o)
		if err != nil {
			return nil, err
		}

		c.AddCommand(subCmd)
	}

	if err := initViper(c); err != nil {
		return nil, err
	}

	return c, nil
}

func preRunFn(cobraCmd *cobra.Command, o *Options) error {
	// setting output to stderr, so that json and yaml outputs can be parsed
	log.SetOutput(os.Stderr)

	// flags given on the command line are already parsed, the env file and
	// the config file may only fill the ones that were not
	if f := cobraCmd.Flag("env-file"); f != nil && !f.Changed && o.Global.EnvFile == "" {
		o.Global.EnvFile = os.Getenv(constants.EnvPrefix + "_ENV_FILE")
	}

	if err := loadEnvFile(o.Global.EnvFile); err != nil {
		return err
	}

	if f := cobraCmd.Flag("config"); f != nil && !f.Changed && o.Global.ConfigFile == "" {
		o.Global.ConfigFile = os.Getenv(constants.EnvPrefix + "_CONFIG")
	}

	if err := readConfigFile(o.Global.ConfigFile); err != nil {
		return err
	}

	updateOptionsFromViper(cobraCmd, o)

	switch {
	case o.Global.DebugCount > 0:
		log.SetLevel(log.DebugLevel)
	default:
		l, err := log.ParseLevel(o.Global.LogLevel)
		if err != nil {
			return err
		}

		log.SetLevel(l)
	}

	cfssl.SetDebug(log.IsLevelEnabled(log.DebugLevel))

	return nil
}
