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
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
)

// memStore is an in-process Store keyed by public key hex. It is the
// fixture backend used by tests (cmd/hyperdrive uses dirStore instead)
// -- grounded on the teacher's makeFakeBucket
// (bucket.go), which seeds a fixture bucket instead of dialing real GCS.
type memStore struct {
	mu    sync.Mutex
	feeds map[string]*memFeed
}

// NewMemStore returns a fresh in-memory Store.
func NewMemStore() Store {
	return &memStore{feeds: make(map[string]*memFeed)}
}

func keyOf(pub ed25519.PublicKey) string { return hex.EncodeToString(pub) }

func (s *memStore) Create(ctx context.Context, pub ed25519.PublicKey, priv ed25519.PrivateKey) (Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := keyOf(pub)
	if _, exists := s.feeds[k]; exists {
		return nil, fmt.Errorf("feed: %x already exists", pub)
	}
	f := newMemFeed(pub, priv)
	s.feeds[k] = f
	return f, nil
}

func (s *memStore) Open(ctx context.Context, pub ed25519.PublicKey, priv ed25519.PrivateKey) (Feed, error) {
	s.mu.Lock()
	f, ok := s.feeds[keyOf(pub)]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("feed: %x not found", pub)
	}
	if priv != nil {
		return &writableView{memFeed: f, priv: priv}, nil
	}
	return f, nil
}

// writableView lets a caller who holds the secret treat an
// already-created read-only handle as writable, without mutating the
// feed's own priv field (which would make every other open handle
// writable too).
type writableView struct {
	*memFeed
	priv ed25519.PrivateKey
}

func (w *writableView) Writable() bool { return w.priv != nil }

func (w *writableView) Append(ctx context.Context, blocks [][]byte) (int, error) {
	if w.priv == nil {
		return 0, fmt.Errorf("feed: append on read-only feed")
	}
	return w.memFeed.Append(ctx, blocks)
}

// Replicate sends the blocks of the one feed named by pub over
// opts.Stream with a trivial length-prefixed block protocol -- enough to
// exercise spec.md §6's Drive.replicate end-to-end, not a real hypercore
// wire protocol.
func (s *memStore) Replicate(ctx context.Context, pub ed25519.PublicKey, opts ReplicateOptions) (Session, error) {
	f, err := s.Open(ctx, pub, nil)
	if err != nil {
		return nil, err
	}
	sess := &replicateSession{feed: f, stream: opts.Stream, done: make(chan error, 1)}
	go sess.run(opts.Initiator)
	return sess, nil
}

type replicateSession struct {
	feed   Feed
	stream ReadWriteCloser
	done   chan error
}

func (r *replicateSession) run(initiator bool) {
	r.done <- r.sendAll()
}

// sendAll writes every block currently in the feed as a
// length-prefixed frame; a real implementation would also listen for the
// peer's frames and append them locally, which this minimal stand-in
// omits (see SPEC_FULL.md §4).
func (r *replicateSession) sendAll() error {
	n := r.feed.Length()
	for i := 0; i < n; i++ {
		b, err := r.feed.ReadBlock(context.Background(), i)
		if err != nil {
			return err
		}
		var hdr [4]byte
		binary.BigEndian.PutUint32(hdr[:], uint32(len(b)))
		if _, err := r.stream.Write(hdr[:]); err != nil {
			return err
		}
		if _, err := r.stream.Write(b); err != nil {
			return err
		}
	}
	return nil
}

func (r *replicateSession) Wait(ctx context.Context) error {
	select {
	case err := <-r.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *replicateSession) Close() error {
	return r.stream.Close()
}

func (s *memStore) Close() error {
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

var _ io.Closer = (*memStore)(nil)
