// Copyright 2020 Nokia
// Licensed under the BSD 3-Clause License.
// SPDX-License-Identifier: BSD-3-Clause

package cmd

import (
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mtls-labs/clusterca/constants"
	caerrors "github.com/mtls-labs/clusterca/errors"
	"github.com/mtls-labs/clusterca/utils"
)

var v *viper.Viper //nolint:gochecknoglobals

// initViper binds every flag of cmd and its subcommands to viper,
// so that each flag can also be set with a CLUSTERCA_ prefixed environment variable
// or a key in the config file.
func initViper(cmd *cobra.Command) error {
	v = viper.New()

	v.SetEnvPrefix(constants.EnvPrefix)
	// "create-node-certificate.x" is read from CLUSTERCA_CREATE_NODE_CERTIFICATE_X
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	return bindFlagsWithPath(cmd, v, "")
}

// bindFlagsWithPath recursively binds flags with their command path as prefix.
// Root persistent flags are additionally bound without a prefix.
func bindFlagsWithPath(cmd *cobra.Command, v *viper.Viper, cmdPath string) error {
	currentPath := cmdPath
	isRootCmd := isRoot(cmd)

	if !isRootCmd {
		currentPath = joinKey(cmdPath, cmd.Name())
	}

	var err error

	bind := func(key string, flag *pflag.Flag) {
		if bErr := v.BindPFlag(key, flag); bErr != nil && err == nil {
			err = errors.Wrapf(bErr, "failed to bind flag %q", key)
		}
	}

	cmd.PersistentFlags().VisitAll(func(flag *pflag.Flag) {
		if isRootCmd {
			bind(flag.Name, flag)
		}

		if currentPath != "" {
			bind(joinKey(currentPath, flag.Name), flag)
		}
	})

	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		if cmd.PersistentFlags().Lookup(flag.Name) != nil || currentPath == "" {
			return
		}

		bind(joinKey(currentPath, flag.Name), flag)
	})

	if err != nil {
		return err
	}

	for _, subCmd := range cmd.Commands() {
		if err := bindFlagsWithPath(subCmd, v, currentPath); err != nil {
			return err
		}
	}

	return nil
}

// loadEnvFile adds the variables of a dotenv file to the process environment.
// Variables already present in the environment win.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}

	path, err := utils.ExpandPath(path)
	if err != nil {
		return err
	}

	if err := godotenv.Load(path); err != nil {
		return errors.Wrapf(caerrors.ErrIO, "failed to load env file %s: %v", path, err)
	}

	log.Debugf("Loaded environment from %s", path)

	return nil
}

// readConfigFile merges a YAML config file into viper.
// Keys follow the flag names, subcommand flags are nested under the command name.
func readConfigFile(path string) error {
	if path == "" {
		return nil
	}

	path, err := utils.ExpandPath(path)
	if err != nil {
		return err
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(caerrors.ErrInvalidRequest, "failed to read config file %s: %v", path, err)
	}

	log.Debugf("Using config file %s", v.ConfigFileUsed())

	return nil
}

// updateOptionsFromViper sets every flag of cmd that was not given on the command line
// from the value viper holds for it, if any. Flags win over environment variables,
// which win over the config file.
func updateOptionsFromViper(cmd *cobra.Command, _ *Options) {
	cmdPath := getCommandPath(cmd)

	flagMap := make(map[string]*pflag.Flag)

	addFlags := func(fs *pflag.FlagSet) {
		fs.VisitAll(func(f *pflag.Flag) {
			if _, exists := flagMap[f.Name]; !exists {
				flagMap[f.Name] = f
			}
		})
	}

	addFlags(cmd.Flags())
	addFlags(cmd.PersistentFlags())

	for parent := cmd.Parent(); parent != nil; parent = parent.Parent() {
		addFlags(parent.PersistentFlags())
	}

	rootKeys := v.AllKeys()

	for _, f := range flagMap {
		updateFlagFromViper(f, cmdPath, rootKeys)
	}
}

// getCommandPath builds the viper key prefix of a command, e.g. "list".
func getCommandPath(cmd *cobra.Command) string {
	var parts []string

	for current := cmd; current != nil && !isRoot(current); current = current.Parent() {
		parts = append([]string{current.Name()}, parts...)
	}

	return strings.Join(parts, ".")
}

func updateFlagFromViper(f *pflag.Flag, cmdPath string, keys []string) {
	if f.Changed {
		return
	}

	key := joinKey(cmdPath, f.Name)
	hasValue := v.IsSet(key)

	// root persistent flags are bound without the command path
	if !hasValue && cmdPath != "" && slices.Contains(keys, f.Name) {
		key = f.Name
		hasValue = v.IsSet(key)
	}

	if !hasValue {
		return
	}

	var val string

	switch f.Value.Type() {
	case "stringSlice":
		val = strings.Join(v.GetStringSlice(key), ",")
	default:
		// flag.Value.Set handles the conversion from string
		val = v.GetString(key)
	}

	if val == "" {
		return
	}

	if err := f.Value.Set(val); err != nil {
		log.Warnf("Ignoring value %q for flag --%s: %v", val, f.Name, err)
	}
}

func isRoot(cmd *cobra.Command) bool {
	return cmd.Name() == constants.ClusterCA || cmd.Name() == ""
}

func joinKey(prefix, name string) string {
	if prefix == "" {
		return name
	}

	return prefix + "." + name
}
