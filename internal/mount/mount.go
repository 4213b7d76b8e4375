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

// Package mount resolves the two mount variants spec.md §4.12
// describes: a path attached to a foreign trie (composed directly
// through trie.Trie's own Mount/Get), and a path attached to a raw,
// foreign content feed tagged "hypercore" in its stat. The latter has
// no trie-level representation, so this package is what decides, given
// a stat, which feed a read at its path actually streams from --
// generalized from the teacher's setUpBucket (bucket.go), which picks
// and configures the right gcs.Bucket for a name before handing it back
// to the caller.
package mount

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/driveup/hyperdrive/internal/feed"
	"github.com/driveup/hyperdrive/internal/statcodec"
	"github.com/driveup/hyperdrive/internal/trie"
)

// TrieLoader resolves a foreign drive's metadata feed, identified by its
// public key, into a Trie ready to mount. Loading a trie from raw feed
// bytes is itself out of scope (spec.md §1 treats the trie as an
// external collaborator); this is the seam a real peer-replication
// layer would fill in.
type TrieLoader interface {
	LoadTrie(ctx context.Context, key ed25519.PublicKey) (trie.Trie, error)
}

// Options mirrors spec.md §4.12's mount opts: Hypercore selects between
// the two variants.
type Options struct {
	Hypercore bool
}

// Resolver composes mount attachments (spec.md's "Mount resolver,
// 12%"): it owns the storage backend needed to open a foreign content
// feed, and a TrieLoader for foreign trie attachments.
type Resolver struct {
	store  feed.Store
	loader TrieLoader
}

func New(store feed.Store, loader TrieLoader) *Resolver {
	return &Resolver{store: store, loader: loader}
}

// Mount attaches key at path inside t and returns the stat to commit
// there (spec.md §4.12). For a hypercore mount, the foreign content
// feed is opened read-only and its current length/byteLength snapshot
// a file-like stat. For a trie mount, the foreign trie is loaded and
// attached to t, and a directory stat is returned.
func (r *Resolver) Mount(ctx context.Context, t trie.Trie, path string, key ed25519.PublicKey, opts Options, mode, uid, gid uint32, now time.Time) (*statcodec.Stat, error) {
	if opts.Hypercore {
		f, err := r.store.Open(ctx, key, nil)
		if err != nil {
			return nil, fmt.Errorf("mount: open foreign content feed: %w", err)
		}
		st := statcodec.NewFile(mode, uid, gid, uint64(f.ByteLength()), uint64(f.Length()), 0, 0, now, now)
		st.Mount = &statcodec.Mount{Key: append([]byte(nil), key...), Hypercore: true}
		return st, nil
	}

	if r.loader == nil {
		return nil, fmt.Errorf("mount: no trie loader configured for trie mounts")
	}
	foreign, err := r.loader.LoadTrie(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("mount: load foreign trie: %w", err)
	}
	if err := t.Mount(path, foreign); err != nil {
		return nil, fmt.Errorf("mount: attach foreign trie at %q: %w", path, err)
	}
	st := statcodec.NewDirectory(mode, uid, gid, now, now)
	st.Mount = &statcodec.Mount{Key: append([]byte(nil), key...), Hypercore: false}
	return st, nil
}

// ResolveContent returns the feed a read against st should stream from:
// for a hypercore-mounted stat, the foreign content feed; for anything
// else, ok is false and the caller should fall back to the owning
// drive's own ContentState.
func (r *Resolver) ResolveContent(ctx context.Context, st *statcodec.Stat) (f feed.Feed, ok bool, err error) {
	if st.Mount == nil || !st.Mount.Hypercore {
		return nil, false, nil
	}
	f, err = r.store.Open(ctx, ed25519.PublicKey(st.Mount.Key), nil)
	if err != nil {
		return nil, false, fmt.Errorf("mount: resolve hypercore content feed: %w", err)
	}
	return f, true, nil
}
