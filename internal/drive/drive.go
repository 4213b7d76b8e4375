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

// Package drive is the Hyperdrive object itself (spec.md §4's "Drive
// core, 40%"): two-feed bring-up, path→stat lookup composed across
// mounts, the descriptor table, streaming and whole-file read/write,
// mkdir/unlink/rmdir/truncate/symlink/mount, and checkout. It is the
// thing application code actually holds; everything under
// internal/bootstrap, internal/mount, internal/content and
// internal/descriptor is a collaborator it wires together, the way the
// teacher's fs.FileSystem wires together gcsx.BucketManager,
// lease.FileLeaser and the inode index instead of doing GCS calls
// itself.
package drive

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/driveup/hyperdrive/internal/bootstrap"
	"github.com/driveup/hyperdrive/internal/clock"
	"github.com/driveup/hyperdrive/internal/content"
	"github.com/driveup/hyperdrive/internal/descriptor"
	"github.com/driveup/hyperdrive/internal/driveerr"
	"github.com/driveup/hyperdrive/internal/events"
	"github.com/driveup/hyperdrive/internal/feed"
	"github.com/driveup/hyperdrive/internal/logger"
	"github.com/driveup/hyperdrive/internal/metrics"
	"github.com/driveup/hyperdrive/internal/mount"
	"github.com/driveup/hyperdrive/internal/statcodec"
	"github.com/driveup/hyperdrive/internal/trie"
)

// stdioCap is STDIO_CAP from spec.md §6: descriptor handles start here
// so they never collide with standard streams.
const stdioCap = 20

// Unix mode bits for the stats this package synthesizes itself
// (directories, newly created files, symlinks). Caller-supplied modes
// (mkdir, symlink, write streams) pass their own bits through
// unchanged.
const (
	modeDir     uint32 = 0040755
	modeFile    uint32 = 0100644
	modeSymlink uint32 = 0120777
)

// Options configures Open.
type Options struct {
	// Secret is the metadata feed's private key. Nil means read-only.
	Secret ed25519.PrivateKey
	// Sparse and SparseMetadata mirror spec.md §4.1's drive options.
	Sparse         bool
	SparseMetadata bool

	Clock       clock.Clock
	Metrics     metrics.Handle
	MountLoader mount.TrieLoader
	Rand        io.Reader
}

// Drive is the assembled filesystem: the metadata trie, the root
// content state, and the bookkeeping (descriptor table, event bus,
// mount resolver) spec.md §2-§5 describe.
type Drive struct {
	store  feed.Store
	pub    ed25519.PublicKey
	secret ed25519.PrivateKey

	metadataFeed feed.Feed
	t            trie.Trie

	acquirer *bootstrap.Acquirer
	resolver *mount.Resolver
	bus      *events.Bus
	clock    clock.Clock
	metrics  metrics.Handle

	mu          sync.Mutex
	rootContent *content.State
	descriptors []*descriptor.Descriptor
}

// Open brings up a drive backed by store. If key is nil, a brand-new
// keypair is generated and the drive is writable (spec.md §4.1's
// fresh-initialization path); otherwise key identifies an existing or
// to-be-created metadata feed, writable only if opts.Secret is given.
func Open(ctx context.Context, store feed.Store, key ed25519.PublicKey, opts Options) (d *Drive, err error) {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop()
	}
	if opts.Rand == nil {
		opts.Rand = rand.Reader
	}

	secret := opts.Secret
	if key == nil {
		var priv ed25519.PrivateKey
		key, priv, err = feed.GenerateKeyPair(opts.Rand)
		if err != nil {
			return nil, fmt.Errorf("drive: generate keypair: %w", err)
		}
		secret = priv
	}

	mf, err := store.Open(ctx, key, secret)
	if err != nil {
		mf, err = store.Create(ctx, key, secret)
		if err != nil {
			return nil, fmt.Errorf("drive: open metadata feed: %w", err)
		}
	}

	t := trie.New()
	bus := events.NewBus()

	bs := bootstrap.New(store, mf, t, bootstrap.Options{
		Sparse: opts.Sparse, SparseMetadata: opts.SparseMetadata, SecretKey: secret, Rand: opts.Rand,
	}, opts.Metrics)

	res, err := bs.Ready(ctx)
	if err != nil {
		logger.Error("drive: bring-up failed", "err", err)
		bus.Emit(events.Event{Kind: events.Error, Err: err})
		return nil, fmt.Errorf("drive: bring-up: %w", err)
	}

	d = &Drive{
		store:        store,
		pub:          key,
		secret:       secret,
		metadataFeed: mf,
		t:            res.Trie,
		rootContent:  res.Content,
		acquirer:     bootstrap.NewAcquirer(store, bus, opts.Metrics),
		resolver:     mount.New(store, opts.MountLoader),
		bus:          bus,
		clock:        opts.Clock,
		metrics:      opts.Metrics,
	}

	mf.OnError(func(err error) {
		logger.Error("drive: metadata feed error", "err", err)
		bus.Emit(events.Event{Kind: events.Error, Err: err})
	})
	logger.Info("drive: ready")
	bus.Emit(events.Event{Kind: events.Ready})
	return d, nil
}

// Key returns the metadata feed's public key.
func (d *Drive) Key() ed25519.PublicKey { return d.pub }

// DiscoveryKey returns the non-secret rendezvous identifier derived
// from Key (spec.md §6).
func (d *Drive) DiscoveryKey() ([]byte, error) { return feed.DiscoveryKey(d.pub) }

// Writable reports whether this side holds the metadata secret.
func (d *Drive) Writable() bool { return d.secret != nil }

// On subscribes fn to events of kind k (spec.md §6's ready/error/update/
// appending/append).
func (d *Drive) On(k events.Kind, fn func(events.Event)) (cancel func()) { return d.bus.On(k, fn) }

// Watch delegates to the trie's watch on prefix (spec.md §4.14).
func (d *Drive) Watch(prefix string, onchange func()) (cancel func()) {
	return d.t.Watch(normalizePath(prefix), onchange)
}

// Replicate exposes the storage backend's replication transport
// (spec.md §6) for the metadata feed named by Key; the content feed is
// not replicated by this call.
func (d *Drive) Replicate(ctx context.Context, opts feed.ReplicateOptions) (feed.Session, error) {
	return d.store.Replicate(ctx, d.pub, opts)
}

// Close closes every feed this drive touched, through the backend
// (spec.md §4.5: "Closing the drive with no argument closes all feeds
// through the backend").
func (d *Drive) Close() error {
	return d.store.Close()
}

// contentFor resolves t's ContentState, short-circuiting to the
// already-installed root ContentState when t is the root trie (spec.md
// §4.2's per-trie caching, specialized for the common case).
func (d *Drive) contentFor(ctx context.Context, t trie.Trie) (*content.State, error) {
	if t == d.t {
		d.mu.Lock()
		cs := d.rootContent
		d.mu.Unlock()
		if cs != nil {
			return cs, nil
		}
		cs, err := d.acquirer.GetContent(ctx, t, d.secret != nil, d.secret)
		if err != nil {
			return nil, err
		}
		d.mu.Lock()
		d.rootContent = cs
		d.mu.Unlock()
		return cs, nil
	}
	return d.acquirer.GetContent(ctx, t, false, nil)
}

// putStat encodes st and writes it to t at name (spec.md §4.3's
// `_putStat`).
func (d *Drive) putStat(ctx context.Context, t trie.Trie, name string, st *statcodec.Stat) error {
	return d.putStatCond(ctx, t, name, st, false)
}

// putStatCond is putStat with spec.md §4.3's conditional put: when
// condition is true, it fails PathAlreadyExists instead of overwriting
// an existing entry (mkdir/symlink's uniqueness check).
func (d *Drive) putStatCond(ctx context.Context, t trie.Trie, name string, st *statcodec.Stat, condition bool) error {
	d.metrics.StatPut(ctx, name)
	if err := t.Put(ctx, name, statcodec.Encode(st), condition); err != nil {
		if err == trie.ErrExists {
			return driveerr.PathAlreadyExists("putStat", name)
		}
		return driveerr.Backend("putStat", err)
	}
	d.bus.Emit(events.Event{Kind: events.Update, Name: name})
	return nil
}

// normalizePath applies spec.md §6's path rule: forward slashes,
// leading slash optional at input, normalized internally.
func normalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	if p == "" {
		p = "/"
	}
	return p
}
