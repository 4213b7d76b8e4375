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

// Package feed is the drive's view of the append-only cryptographically
// verified log collaborator that spec.md §3 treats as external: an
// ordered sequence of opaque byte blocks with observable length and
// byteLength, a writable flag, a keypair, and block-addressed reads.
//
// This package supplies the interface the rest of the drive programs
// against, plus two implementations: an in-memory store (grounded on
// the teacher's makeFakeBucket fixture in bucket.go) used by tests, and
// a local-directory-backed store used by the CLI.
package feed

import (
	"context"
	"crypto/ed25519"
)

// Feed is one append-only log: either a drive's metadata feed or its
// content feed.
type Feed interface {
	// PublicKey identifies the feed and is what a stat's mount.key or a
	// trie header's content-key field references.
	PublicKey() ed25519.PublicKey
	// Writable reports whether Append is legal on this handle.
	Writable() bool
	// Length is the current block count.
	Length() int
	// ByteLength is the sum of all block sizes.
	ByteLength() int64

	// Append appends one or more whole blocks, atomically with respect to
	// other Append calls from this handle. Returns the block index of the
	// first appended block.
	Append(ctx context.Context, blocks [][]byte) (firstBlock int, err error)

	// ReadBlock returns block i verbatim. Blocks are immutable once
	// written (spec.md §3), so the result may be cached by the caller.
	ReadBlock(ctx context.Context, i int) ([]byte, error)

	// ReadRange returns the byte range [offset, offset+length) of the
	// logical byte stream formed by concatenating all blocks in order.
	ReadRange(ctx context.Context, offset, length int64) ([]byte, error)

	// Update blocks until at least one new block is observed, or returns
	// immediately if length > 0 already. Used by read-only bring-up
	// (spec.md §4.1 step 4/5) to wait for block 0.
	Update(ctx context.Context) error

	// OnError registers a callback invoked when this feed observes an
	// asynchronous replication/backend error. Errors observed this way
	// are emitted on the owning drive, never returned from a method
	// (spec.md §7).
	OnError(func(error))

	Close() error
}

// Store is the storage backend collaborator (spec.md §1's "storage
// backend for feed persistence"): it creates and opens feeds by public
// key, and drives replication between drives.
type Store interface {
	// Create allocates a brand-new writable feed for the given keypair.
	Create(ctx context.Context, pub ed25519.PublicKey, priv ed25519.PrivateKey) (Feed, error)
	// Open resolves an existing feed by public key. Writable is requested
	// by also passing the matching private key; pass nil for read-only.
	Open(ctx context.Context, pub ed25519.PublicKey, priv ed25519.PrivateKey) (Feed, error)
	// Replicate exposes the backend's peer replication transport
	// (spec.md §6's Drive.replicate).
	Replicate(ctx context.Context, pub ed25519.PublicKey, opts ReplicateOptions) (Session, error)
	Close() error
}

// ReplicateOptions carries the minimal knobs the spec names for
// replication: an already-connected duplex stream, and whether this side
// initiates.
type ReplicateOptions struct {
	Stream    ReadWriteCloser
	Initiator bool
}

// ReadWriteCloser avoids importing io just for a name collision with
// Feed's own Close.
type ReadWriteCloser interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Session represents one active replication exchange; Wait blocks until
// the exchange finishes (peer disconnects or context cancellation).
type Session interface {
	Wait(ctx context.Context) error
	Close() error
}
