// Copyright 2020 Nokia
// Licensed under the BSD 3-Clause License.
// SPDX-License-Identifier: BSD-3-Clause

package cmd

import (
	"os"
	"time"

	"github.com/mtls-labs/clusterca/cert"
	"github.com/mtls-labs/clusterca/cert/cfssl"
	"github.com/mtls-labs/clusterca/constants"
	"github.com/mtls-labs/clusterca/utils"
)

var optionsInstance *Options //nolint:gochecknoglobals

// GetOptions returns the global options instance if it exists
// or creates a new one with default values for all options.
func GetOptions() *Options {
	if optionsInstance == nil {
		optionsInstance = &Options{
			Global: &GlobalOptions{
				LogLevel: "info",
			},
			CA: &CAOptions{
				KeyAlgo:    constants.DefaultKeyAlgo,
				KeySize:    constants.DefaultKeySize,
				CAExpiry:   constants.DefaultCAExpiry,
				CertExpiry: constants.DefaultCertExpiry,
			},
			List: &ListOptions{
				Format: constants.FormatTable,
			},
			Verify: &VerifyOptions{},
		}
	}

	return optionsInstance
}

type Options struct {
	Global *GlobalOptions
	CA     *CAOptions
	List   *ListOptions
	Verify *VerifyOptions
}

type GlobalOptions struct {
	Dir        string
	LogLevel   string
	DebugCount int
	ConfigFile string
	EnvFile    string
}

type CAOptions struct {
	KeyAlgo    string
	KeySize    int
	CAExpiry   time.Duration
	CertExpiry time.Duration
}

type ListOptions struct {
	Format string
}

type VerifyOptions struct {
	Hostname string
	Role     string
	CACert   string
}

// Storage returns the certificate store rooted at the configured directory.
func (o *Options) Storage() (*cert.LocalDirCertStorage, error) {
	dir, err := utils.ExpandPath(o.Global.Dir)
	if err != nil {
		return nil, err
	}

	return cert.NewLocalDirCertStorage(dir, cert.DefaultNaming), nil
}

// KeyRequest returns the key parameters for newly generated keys.
func (o *CAOptions) KeyRequest() cert.KeyRequest {
	return cert.KeyRequest{Algo: o.KeyAlgo, Size: o.KeySize}
}

// NewCA builds an unloaded certificate authority from the options.
// The root key password, if any, is taken from the environment.
func (o *CAOptions) NewCA() *cfssl.CA {
	return cfssl.NewCA(
		cfssl.WithKeyRequest(o.KeyRequest()),
		cfssl.WithCertExpiry(o.CertExpiry),
		cfssl.WithKeyPassword(os.Getenv(constants.EnvCAKeyPassword)),
	)
}
