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

// Package cfg is the drive's configuration schema, decoded from a YAML
// file and/or flags and bound through viper -- the same shape as the
// teacher's cfg package, scoped to the options spec.md §4.1 names.
package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the top-level configuration for opening a drive.
type Config struct {
	Drive DriveConfig `yaml:"drive"`
	Log   LogConfig   `yaml:"log"`
}

// DriveConfig mirrors the options spec.md §4.1 names for drive
// construction: { sparse, sparseMetadata, secretKey }.
type DriveConfig struct {
	// StorageDir is where the feed store backend persists blocks.
	StorageDir string `yaml:"storage-dir"`
	// Sparse, when true, only fetches content-feed blocks on demand.
	Sparse bool `yaml:"sparse"`
	// SparseMetadata, when true, only fetches metadata-feed blocks on
	// demand (independent of Sparse).
	SparseMetadata bool `yaml:"sparse-metadata"`
	// SecretKeyPath, if set, is a file holding the metadata feed's
	// Ed25519 secret key, making the drive writable.
	SecretKeyPath string `yaml:"secret-key-path"`
	// ReadAheadKB is the streaming-read watermark (spec.md §4.7 default
	// is 64 KiB).
	ReadAheadKB int `yaml:"read-ahead-kb"`
}

// LogConfig mirrors the teacher's LogConfig.
type LogConfig struct {
	File     string `yaml:"file"`
	Format   string `yaml:"format"`
	Severity string `yaml:"severity"`
}

// Defaults returns the zero-value-safe defaults, matching spec.md §4.7's
// 64 KiB read-ahead watermark.
func Defaults() Config {
	return Config{
		Drive: DriveConfig{ReadAheadKB: 64},
		Log:   LogConfig{Format: "text", Severity: "info"},
	}
}

// BindFlags registers the flags cmd/hyperdrive exposes, in the shape of
// the teacher's cmd/flags.go: one pflag per Config field, bound into v so
// that a YAML file, environment variables and flags all resolve through
// the same viper instance.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) {
	fs.String("storage-dir", "", "directory backing the drive's feed store")
	fs.Bool("sparse", false, "fetch content-feed blocks on demand")
	fs.Bool("sparse-metadata", false, "fetch metadata-feed blocks on demand")
	fs.String("secret-key-path", "", "path to the metadata feed's secret key")
	fs.Int("read-ahead-kb", 64, "streaming read watermark in KiB")
	fs.String("log-file", "", "rotated log file path (empty = stderr)")
	fs.String("log-format", "text", "log format: text or json")
	fs.String("log-severity", "info", "minimum log severity")

	_ = v.BindPFlag("drive.storage-dir", fs.Lookup("storage-dir"))
	_ = v.BindPFlag("drive.sparse", fs.Lookup("sparse"))
	_ = v.BindPFlag("drive.sparse-metadata", fs.Lookup("sparse-metadata"))
	_ = v.BindPFlag("drive.secret-key-path", fs.Lookup("secret-key-path"))
	_ = v.BindPFlag("drive.read-ahead-kb", fs.Lookup("read-ahead-kb"))
	_ = v.BindPFlag("log.file", fs.Lookup("log-file"))
	_ = v.BindPFlag("log.format", fs.Lookup("log-format"))
	_ = v.BindPFlag("log.severity", fs.Lookup("log-severity"))
}

// Load decodes v into a Config seeded with Defaults.
func Load(v *viper.Viper) (Config, error) {
	c := Defaults()
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}
