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

// Command hyperdrivefs mounts a drive as a POSIX file system, via
// jacobsa/fuse (SPEC_FULL.md §3.6): the one front-end that actually
// exercises the fuse/fuseutil/fuseops stack sitting in go.mod, the way
// the teacher's own cmd/mount.go mounts its gcsfuse fs.FileSystem.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/driveup/hyperdrive/internal/clock"
	"github.com/driveup/hyperdrive/internal/drive"
	"github.com/driveup/hyperdrive/internal/feed"
	"github.com/driveup/hyperdrive/internal/logger"
	"github.com/driveup/hyperdrive/internal/metrics"
)

var (
	storageDirFlag string
	secretKeyFlag  string
	readOnlyFlag   bool
	metricsAddr    string
)

var rootCmd = &cobra.Command{
	Use:   "hyperdrivefs <key> <mountpoint>",
	Short: "Mount a drive as a local POSIX file system",
	Args:  cobra.ExactArgs(2),
	RunE:  runMount,
}

func init() {
	rootCmd.Flags().StringVar(&storageDirFlag, "storage-dir", "./hyperdrive-data", "directory backing the drive's feed store")
	rootCmd.Flags().StringVar(&secretKeyFlag, "secret-key-path", "", "path to the metadata feed's secret key (omit to mount read-only)")
	rootCmd.Flags().BoolVar(&readOnlyFlag, "read-only", false, "force a read-only mount even if a secret key is configured")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")
}

// setupTelemetry registers hyperdrivefs's own Prometheus registry and
// OpenTelemetry tracer provider -- this process owns its own lifetime
// for the whole mount session, so it is the one entrypoint in the tree
// that actually serves what internal/metrics builds rather than
// constructing a no-op Handle.
func setupTelemetry(ctx context.Context) (metrics.Handle, func(context.Context) error) {
	reg := prometheus.NewRegistry()
	handle := metrics.NewPrometheus(reg)

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server exited", "err", err)
			}
		}()
		logger.Info("serving prometheus metrics", "addr", metricsAddr)
	}

	tp := sdktrace.NewTracerProvider()
	return handle, tp.Shutdown
}

func runMount(cmd *cobra.Command, args []string) (err error) {
	pub, err := parseKey(args[0])
	if err != nil {
		return err
	}
	mountPoint := args[1]

	ctx := context.Background()
	ctx, end := metrics.StartSpan(ctx, "mount", mountPoint)
	defer end(&err)

	handle, shutdownTracing := setupTelemetry(ctx)
	defer shutdownTracing(ctx)

	store, err := feed.NewDirStore(storageDirFlag)
	if err != nil {
		return err
	}
	defer store.Close()

	secret, err := loadSecret(secretKeyFlag)
	if err != nil {
		return err
	}
	if readOnlyFlag {
		secret = nil
	}

	d, err := drive.Open(ctx, store, pub, drive.Options{
		Secret:  secret,
		Clock:   clock.RealClock{},
		Metrics: handle,
	})
	if err != nil {
		return fmt.Errorf("hyperdrivefs: open drive: %w", err)
	}
	defer d.Close()

	fs := newFileSystem(d)
	server := fuseutil.NewFileSystemServer(fs)

	mfs, err := fuse.Mount(mountPoint, server, &fuse.MountConfig{
		FSName:      "hyperdrive",
		ReadOnly:    !d.Writable(),
		ErrorLogger: log.New(os.Stderr, "hyperdrivefs: ", log.LstdFlags),
	})
	if err != nil {
		return fmt.Errorf("hyperdrivefs: mount: %w", err)
	}

	fmt.Printf("hyperdrivefs: %s mounted at %s\n", hex.EncodeToString(pub), mountPoint)
	return mfs.Join(ctx)
}

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

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
