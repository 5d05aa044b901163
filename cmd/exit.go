// Copyright 2020 Nokia
// Licensed under the BSD 3-Clause License.
// SPDX-License-Identifier: BSD-3-Clause

package cmd

import (
	"errors"

	caerrors "github.com/mtls-labs/clusterca/errors"
)

// Process exit codes, one per error kind.
const (
	ExitOK = iota
	ExitError
	ExitInvalidInput
	ExitAlreadyInitialized
	ExitNotFound
	ExitCorruptData
	ExitIO
	ExitSignatureVerification
)

var exitCodes = []struct {
	err  error
	code int
}{
	{caerrors.ErrInvalidHostname, ExitInvalidInput},
	{caerrors.ErrInvalidRequest, ExitInvalidInput},
	{caerrors.ErrAlreadyInitialized, ExitAlreadyInitialized},
	{caerrors.ErrNotFound, ExitNotFound},
	{caerrors.ErrCorruptData, ExitCorruptData},
	{caerrors.ErrSignatureVerification, ExitSignatureVerification},
	{caerrors.ErrIO, ExitIO},
}

// ExitCode maps the error returned by a command to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	for _, e := range exitCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}

	return ExitError
}
