// Copyright 2020 Nokia
// Licensed under the BSD 3-Clause License.
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/mtls-labs/clusterca/cmd"
)

func main() {
	c, err := cmd.Entrypoint()
	if err != nil {
		log.Fatal(err)
	}

	if err := c.Execute(); err != nil {
		log.Error(err)
		os.Exit(cmd.ExitCode(err))
	}
}
