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

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/driveup/hyperdrive/internal/drive"
)

var putCmd = &cobra.Command{
	Use:   "put <key> <path> <local-file>",
	Short: "Write a local file's contents into the drive at path",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		pub, err := parseKey(args[0])
		if err != nil {
			return err
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		d, err := openDrive(cmd.Context(), store, pub)
		if err != nil {
			return err
		}
		defer d.Close()
		if !d.Writable() {
			return fmt.Errorf("put: drive is read-only (set --secret-key-path)")
		}

		data, err := os.ReadFile(args[2])
		if err != nil {
			return fmt.Errorf("put: %w", err)
		}

		st, err := d.WriteFile(cmd.Context(), args[1], data, drive.StatOpts{Mode: 0100644})
		if err != nil {
			return fmt.Errorf("put: %w", err)
		}
		printStat(args[1], st)
		return nil
	},
}
