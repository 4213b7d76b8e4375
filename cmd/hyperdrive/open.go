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
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/driveup/hyperdrive/internal/clock"
	"github.com/driveup/hyperdrive/internal/drive"
	"github.com/driveup/hyperdrive/internal/feed"
	"github.com/driveup/hyperdrive/internal/metrics"
)

const defaultStorageDir = "./hyperdrive-data"

func storageDir() string {
	if Config.Drive.StorageDir != "" {
		return Config.Drive.StorageDir
	}
	return defaultStorageDir
}

func openStore() (feed.Store, error) {
	return feed.NewDirStore(storageDir())
}

// parseKey hex-decodes a public key given on the command line (spec.md
// §6's key is otherwise only ever exchanged out of band).
func parseKey(s string) (ed25519.PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid key %q: %w", s, err)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid key %q: want %d bytes, got %d", s, ed25519.PublicKeySize, len(b))
	}
	return ed25519.PublicKey(b), nil
}

// loadSecret reads a hex-encoded Ed25519 secret key from path, per
// cfg.DriveConfig.SecretKeyPath.
func loadSecret(path string) (ed25519.PrivateKey, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading secret key: %w", err)
	}
	raw, err := hex.DecodeString(string(b))
	if err != nil {
		return nil, fmt.Errorf("decoding secret key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("secret key %s: want %d bytes, got %d", path, ed25519.PrivateKeySize, len(raw))
	}
	return ed25519.PrivateKey(raw), nil
}

// saveSecret writes priv hex-encoded to path, so a later stat/ls/cat/put
// invocation can reopen the same drive writable.
func saveSecret(path string, priv ed25519.PrivateKey) error {
	return os.WriteFile(path, []byte(hex.EncodeToString(priv)), 0o600)
}

// openDrive opens store's drive identified by pub, writable if a secret
// key is configured.
func openDrive(ctx context.Context, store feed.Store, pub ed25519.PublicKey) (*drive.Drive, error) {
	secret, err := loadSecret(Config.Drive.SecretKeyPath)
	if err != nil {
		return nil, err
	}
	return drive.Open(ctx, store, pub, drive.Options{
		Secret:         secret,
		Sparse:         Config.Drive.Sparse,
		SparseMetadata: Config.Drive.SparseMetadata,
		Clock:          clock.RealClock{},
		Metrics:        metrics.Noop(),
	})
}
