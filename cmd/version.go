// Copyright 2020 Nokia
// Licensed under the BSD 3-Clause License.
// SPDX-License-Identifier: BSD-3-Clause

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version variables set at build time (e.g., with -ldflags).
var (
	Version = "0.0.0"
	commit  = "none"
	date    = "unknown"
)

func versionCmd(_ *Options) (*cobra.Command, error) {
	c := &cobra.Command{
		Use:   "version",
		Short: "show clusterca version",
		Args:  exactArgs(0),
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			out := cobraCmd.OutOrStdout()
			fmt.Fprintf(out, "    version: %s\n", Version)
			fmt.Fprintf(out, "     commit: %s\n", commit)
			fmt.Fprintf(out, "       date: %s\n", date)
			return nil
		},
	}

	return c, nil
}
