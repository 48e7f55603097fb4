// Copyright 2024 CacheFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cmd wires cfg.Config, the internal/mount argument resolver, and
// internal/fsfacade into a cobra CLI.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cachefs/cachefs/cfg"
)

var (
	cfgFile     string
	options     []string
	bindErr     error
	mountConfig cfg.Config
)

var rootCmd = &cobra.Command{
	Use:   "cachefs MOUNTPOINT -o target=PATH[,cache=PATH]",
	Short: "Mount a pass-through, range-cached view of a target directory",
	Long: `CacheFS mirrors the contents of a target directory under a mountpoint,
transparently caching the bytes of regular files read or written through
it into a local on-disk cache keyed by target inode.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if err := viper.Unmarshal(&mountConfig); err != nil {
			return fmt.Errorf("unmarshalling config: %w", err)
		}

		mountConfig.Mountpoint = args[0]
		if err := applyOptionFlags(&mountConfig); err != nil {
			return err
		}

		if err := mountConfig.Validate(); err != nil {
			return err
		}

		return runMount(cmd.Context(), &mountConfig)
	},
}

// applyOptionFlags overlays every `-o key=value[,key=value...]` flag
// occurrence onto cfg.
func applyOptionFlags(cfgOut *cfg.Config) error {
	for _, raw := range options {
		if err := parseAndApply(raw, cfgOut); err != nil {
			return err
		}
	}
	return nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringArrayVarP(&options, "option", "o", nil, "Mount option(s) target=PATH[,cache=PATH]")
	bindErr = cfg.BindFlags(rootCmd.Flags())

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to an optional YAML config file")
	cobra.OnInitialize(func() {
		if cfgFile == "" {
			return
		}
		viper.SetConfigFile(cfgFile)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			bindErr = fmt.Errorf("reading config file %q: %w", cfgFile, err)
		}
	})
}
