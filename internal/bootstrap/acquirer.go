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

package bootstrap

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"
	"time"

	"github.com/driveup/hyperdrive/internal/content"
	"github.com/driveup/hyperdrive/internal/events"
	"github.com/driveup/hyperdrive/internal/feed"
	"github.com/driveup/hyperdrive/internal/metrics"
	"github.com/driveup/hyperdrive/internal/trie"
)

// Acquirer implements spec.md §4.2's `_getContent`: given a trie (the
// drive's root, or a mounted foreign trie reached while resolving a
// path), it returns the associated ContentState, caching one per trie
// so a mount visited repeatedly doesn't reopen its content feed.
type Acquirer struct {
	store   feed.Store
	bus     *events.Bus
	metrics metrics.Handle

	mu    sync.Mutex
	cache map[trie.Trie]*content.State
}

func NewAcquirer(store feed.Store, bus *events.Bus, mh metrics.Handle) *Acquirer {
	if mh == nil {
		mh = metrics.Noop()
	}
	return &Acquirer{store: store, bus: bus, metrics: mh, cache: make(map[trie.Trie]*content.State)}
}

// GetContent resolves t's ContentState, constructing and caching it on
// first use. writable requests a writable handle; it is only honored if
// secret is non-nil (the caller actually holds the content secret).
func (a *Acquirer) GetContent(ctx context.Context, t trie.Trie, writable bool, secret ed25519.PrivateKey) (*content.State, error) {
	a.mu.Lock()
	if cs, ok := a.cache[t]; ok {
		a.mu.Unlock()
		return cs, nil
	}
	a.mu.Unlock()

	start := time.Now()
	header := t.Header()
	if len(header.ContentPublicKey) == 0 {
		return nil, fmt.Errorf("bootstrap: _getContent: trie header has no content public key")
	}

	var priv ed25519.PrivateKey
	if writable && secret != nil {
		priv = secret
	}
	f, err := a.store.Open(ctx, ed25519.PublicKey(header.ContentPublicKey), priv)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: _getContent: open content feed: %w", err)
	}

	if priv == nil {
		// Await block 0 so length/byteLength reflect reality for a
		// read-only handle (spec.md §4.2).
		if err := f.Update(ctx); err != nil {
			return nil, fmt.Errorf("bootstrap: _getContent: await first block: %w", err)
		}
	}

	if a.bus != nil {
		f.OnError(func(err error) {
			a.bus.Emit(events.Event{Kind: events.Error, Err: err})
		})
	}

	cs := content.New(f)
	a.metrics.ContentAcquire(ctx, time.Since(start))

	a.mu.Lock()
	if existing, ok := a.cache[t]; ok {
		a.mu.Unlock()
		return existing, nil
	}
	a.cache[t] = cs
	a.mu.Unlock()
	return cs, nil
}
