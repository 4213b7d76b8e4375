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

// Package bootstrap is the drive's two-feed bring-up (spec.md §4.1) and
// lazy content-state acquisition (§4.2): deciding, from the metadata
// feed's writability and length, whether this drive is being
// initialized for the first time, restored from an existing metadata
// feed, or opened read-only with content-feed acquisition deferred
// until something actually needs it.
//
// Readiness is memoized so the first caller triggers bring-up and every
// other caller joins the same completion (spec.md §5) -- the same
// one-flight-per-key shape the teacher's lease package gives revoker
// goroutines, built here on golang.org/x/sync/singleflight instead of a
// hand-rolled done channel, since there is exactly one workload
// (drive bring-up) and no need for per-lease bookkeeping.
package bootstrap

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/driveup/hyperdrive/internal/content"
	"github.com/driveup/hyperdrive/internal/feed"
	"github.com/driveup/hyperdrive/internal/logger"
	"github.com/driveup/hyperdrive/internal/metrics"
	"github.com/driveup/hyperdrive/internal/trie"
)

// Options mirrors the opts spec.md §4.1 says the drive constructor
// accepts.
type Options struct {
	Sparse         bool
	SparseMetadata bool
	// SecretKey is the metadata feed's private key, when this side can
	// write. Nil for a read-only drive.
	SecretKey ed25519.PrivateKey
	Rand      io.Reader // entropy source for a brand-new keypair; defaults to crypto/rand
}

// Result is what Ready installs on the drive: the trie to serve stats
// from, and the ContentState for the root trie, if bring-up could
// determine it eagerly. Content is nil exactly when bring-up deferred
// content-feed acquisition to Acquirer.GetContent (the read-only path,
// spec.md §4.1 step 5).
type Result struct {
	Trie    trie.Trie
	Content *content.State
}

// Bootstrap drives one metadata feed's bring-up to readiness, exactly
// once.
type Bootstrap struct {
	store        feed.Store
	metadataFeed feed.Feed
	t            trie.Trie
	opts         Options
	metrics      metrics.Handle

	group singleflight.Group

	mu   sync.Mutex
	done bool
	res  *Result
	err  error
}

func New(store feed.Store, metadataFeed feed.Feed, t trie.Trie, opts Options, mh metrics.Handle) *Bootstrap {
	if mh == nil {
		mh = metrics.Noop()
	}
	return &Bootstrap{store: store, metadataFeed: metadataFeed, t: t, opts: opts, metrics: mh}
}

// Ready performs spec.md §4.1's bring-up steps 1/3/4/5 (step 2, "caller
// passed a pre-built trie checkout and content state," is
// internal/drive's checkout path: it never calls Ready at all, it
// builds the checked-out Drive directly). Concurrent callers share one
// in-flight bring-up, and later callers receive its cached outcome.
func (b *Bootstrap) Ready(ctx context.Context) (*Result, error) {
	v, err, _ := b.group.Do("ready", func() (interface{}, error) {
		b.mu.Lock()
		if b.done {
			res, err := b.res, b.err
			b.mu.Unlock()
			return res, err
		}
		b.mu.Unlock()
		logger.Debug("bootstrap: bring-up starting")
		start := time.Now()
		res, err := b.bringUp(ctx)
		b.metrics.BringUp(ctx, time.Since(start), err)
		if err != nil {
			logger.Error("bootstrap: bring-up failed", "err", err)
		} else {
			logger.Info("bootstrap: bring-up complete", "elapsed", time.Since(start))
		}
		b.mu.Lock()
		b.done, b.res, b.err = true, res, err
		b.mu.Unlock()
		return res, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func (b *Bootstrap) bringUp(ctx context.Context) (*Result, error) {
	// Step 1: wait for the metadata feed to be addressable. A writable,
	// freshly-created feed (length 0) is addressable immediately; any
	// other case waits for at least block 0.
	if !(b.metadataFeed.Writable() && b.metadataFeed.Length() == 0) {
		if err := b.metadataFeed.Update(ctx); err != nil {
			return nil, fmt.Errorf("bootstrap: wait for metadata feed: %w", err)
		}
	}

	switch {
	case b.metadataFeed.Writable() && b.metadataFeed.Length() == 0:
		return b.initialize(ctx)
	case b.metadataFeed.Writable():
		return b.restoreWritable(ctx)
	default:
		return b.restoreReadOnly(ctx)
	}
}

// initialize implements step 3: derive the content keypair
// deterministically from the metadata secret, publish the content
// public key into the trie header, create the content feed, install
// its ContentState eagerly.
func (b *Bootstrap) initialize(ctx context.Context) (*Result, error) {
	logger.Debug("bootstrap: initializing fresh drive")
	if b.opts.SecretKey == nil {
		return nil, fmt.Errorf("bootstrap: initialize requires a metadata secret key")
	}
	contentPub, contentPriv, err := feed.DeriveContentKeyPair(b.opts.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: derive content keypair: %w", err)
	}
	if err := b.t.SetHeader(trie.Header{ContentPublicKey: contentPub}); err != nil {
		return nil, fmt.Errorf("bootstrap: set trie header: %w", err)
	}
	cf, err := b.store.Create(ctx, contentPub, contentPriv)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: create content feed: %w", err)
	}
	return &Result{Trie: b.t, Content: content.New(cf)}, nil
}

// restoreWritable implements step 4: the trie is already loaded (our
// in-memory trie has no separate load phase); read the content public
// key from its header and open the content feed, writable if we can
// derive its secret from our own.
func (b *Bootstrap) restoreWritable(ctx context.Context) (*Result, error) {
	logger.Debug("bootstrap: restoring writable drive")
	header := b.t.Header()
	if len(header.ContentPublicKey) == 0 {
		return nil, fmt.Errorf("bootstrap: trie header has no content public key")
	}

	var contentPriv ed25519.PrivateKey
	if b.opts.SecretKey != nil {
		_, contentPriv, _ = feed.DeriveContentKeyPair(b.opts.SecretKey)
	}
	cf, err := b.store.Open(ctx, ed25519.PublicKey(header.ContentPublicKey), contentPriv)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open content feed: %w", err)
	}
	return &Result{Trie: b.t, Content: content.New(cf)}, nil
}

// restoreReadOnly implements step 5: the trie is loaded, but content
// feed acquisition is deferred to Acquirer.GetContent, the first time a
// stat actually references it.
func (b *Bootstrap) restoreReadOnly(ctx context.Context) (*Result, error) {
	logger.Debug("bootstrap: restoring read-only drive, content feed acquisition deferred")
	return &Result{Trie: b.t, Content: nil}, nil
}
