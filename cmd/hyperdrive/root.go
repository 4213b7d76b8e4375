// Copyright 2025 The Hyperdrive Authors
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

// Command hyperdrive is the drive's command-line front-end (SPEC_FULL.md
// §3.5): create/stat/ls/cat/put/replicate, each opening a drive from a
// local-directory-backed feed store and running one drive operation.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/driveup/hyperdrive/internal/cfg"
	"github.com/driveup/hyperdrive/internal/logger"
)

var (
	cfgFile       string
	bindErr       error
	configFileErr error
	v             = viper.New()
	Config        cfg.Config
)

var rootCmd = &cobra.Command{
	Use:   "hyperdrive",
	Short: "Inspect and populate a peer-to-peer versioned drive",
	Long: `hyperdrive is a command-line front-end over the drive core:
          create a new drive, stat/ls/cat its contents, put local files
          into it, and replicate it to a peer over TCP.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if configFileErr != nil {
			return configFileErr
		}
		return loadConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "path to a YAML config file")
	cfg.BindFlags(rootCmd.PersistentFlags(), v)
	bindErr = v.BindPFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(statCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(catCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(replicateCmd)
}

func loadConfig() error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			configFileErr = fmt.Errorf("reading config file: %w", err)
			return configFileErr
		}
	}
	c, err := cfg.Load(v)
	if err != nil {
		return fmt.Errorf("unmarshalling config: %w", err)
	}
	Config = c

	logger.Init(logger.Config{
		File:     Config.Log.File,
		Format:   Config.Log.Format,
		Severity: logger.ParseSeverity(Config.Log.Severity),
	})
	return nil
}

// Execute runs the root command, matching the teacher's cmd.Execute
// entry point.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}
