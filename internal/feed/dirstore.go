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

package feed

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// dirStore is a Store backed by a directory on local disk: one
// subdirectory per feed, one file per block. It is the CLI's persistence
// layer (cmd/hyperdrive operates on a drive across process invocations,
// unlike the tests' process-local memStore), grounded on the teacher's
// own pattern of staging object content as discrete files under a local
// directory (gcsproxy's appending_object_creator.go writes a GCS object's
// staged bytes to a local temp file before it ever becomes a Bucket
// call).
type dirStore struct {
	baseDir string

	mu    sync.Mutex
	feeds map[string]*dirFeed
}

// NewDirStore returns a Store that persists every feed it creates or
// opens under baseDir, which is created if missing.
func NewDirStore(baseDir string) (Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("feed: dirstore: %w", err)
	}
	return &dirStore{baseDir: baseDir, feeds: make(map[string]*dirFeed)}, nil
}

func (s *dirStore) feedDir(pub ed25519.PublicKey) string {
	return filepath.Join(s.baseDir, hex.EncodeToString(pub))
}

func (s *dirStore) Create(ctx context.Context, pub ed25519.PublicKey, priv ed25519.PrivateKey) (Feed, error) {
	dir := s.feedDir(pub)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("feed: %x already exists", pub)
	}
	if err := os.MkdirAll(filepath.Join(dir, "blocks"), 0o755); err != nil {
		return nil, fmt.Errorf("feed: dirstore: create: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f := newDirFeed(dir, pub, priv)
	s.feeds[hex.EncodeToString(pub)] = f
	return f, nil
}

func (s *dirStore) Open(ctx context.Context, pub ed25519.PublicKey, priv ed25519.PrivateKey) (Feed, error) {
	dir := s.feedDir(pub)
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("feed: %x not found", pub)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	k := hex.EncodeToString(pub)
	f, ok := s.feeds[k]
	if !ok {
		var err error
		f, err = loadDirFeed(dir, pub)
		if err != nil {
			return nil, err
		}
		s.feeds[k] = f
	}
	if priv != nil {
		return &dirWritableView{dirFeed: f, priv: priv}, nil
	}
	return f, nil
}

// dirWritableView mirrors memStore's writableView: a caller-scoped
// writable handle that doesn't make every other open handle writable.
type dirWritableView struct {
	*dirFeed
	priv ed25519.PrivateKey
}

func (w *dirWritableView) Writable() bool { return w.priv != nil }

func (w *dirWritableView) Append(ctx context.Context, blocks [][]byte) (int, error) {
	if w.priv == nil {
		return 0, fmt.Errorf("feed: append on read-only feed")
	}
	return w.dirFeed.Append(ctx, blocks)
}

// Replicate reuses the same trivial length-prefixed framing memStore
// uses; the wire shape doesn't depend on how blocks are persisted.
func (s *dirStore) Replicate(ctx context.Context, pub ed25519.PublicKey, opts ReplicateOptions) (Session, error) {
	f, err := s.Open(ctx, pub, nil)
	if err != nil {
		return nil, err
	}
	sess := &replicateSession{feed: f, stream: opts.Stream, done: make(chan error, 1)}
	go sess.run(opts.Initiator)
	return sess, nil
}

func (s *dirStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, f := range s.feeds {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
