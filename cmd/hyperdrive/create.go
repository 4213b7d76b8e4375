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
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/driveup/hyperdrive/internal/clock"
	"github.com/driveup/hyperdrive/internal/drive"
	"github.com/driveup/hyperdrive/internal/feed"
	"github.com/driveup/hyperdrive/internal/metrics"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a brand-new drive and print its public key",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		// Generate the keypair here, rather than letting Open do it, so
		// the secret key is available to persist below.
		pub, priv, err := feed.GenerateKeyPair(rand.Reader)
		if err != nil {
			return fmt.Errorf("create: %w", err)
		}

		d, err := drive.Open(cmd.Context(), store, pub, drive.Options{
			Secret:  priv,
			Clock:   clock.RealClock{},
			Metrics: metrics.Noop(),
			Rand:    rand.Reader,
		})
		if err != nil {
			return fmt.Errorf("create: %w", err)
		}
		defer d.Close()

		pubHex := hex.EncodeToString(pub)
		keyPath := Config.Drive.SecretKeyPath
		if keyPath == "" {
			keyPath = filepath.Join(storageDir(), pubHex+".key")
		}
		if err := saveSecret(keyPath, priv); err != nil {
			return fmt.Errorf("create: %w", err)
		}

		fmt.Printf("drive key: %s\nsecret key: %s\n", pubHex, keyPath)
		return nil
	},
}
