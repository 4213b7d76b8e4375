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

package drive

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/driveup/hyperdrive/internal/descriptor"
	"github.com/driveup/hyperdrive/internal/driveerr"
	"github.com/driveup/hyperdrive/internal/events"
	"github.com/driveup/hyperdrive/internal/logger"
	"github.com/driveup/hyperdrive/internal/mount"
	"github.com/driveup/hyperdrive/internal/statcodec"
	"github.com/driveup/hyperdrive/internal/trie"
)

// create implements spec.md §4.9's create: return the existing file
// stat if one is already there, otherwise allocate a fresh empty one.
func (d *Drive) create(ctx context.Context, path string) (*statcodec.Stat, trie.Trie, error) {
	path = normalizePath(path)
	st, owner, err := d.Stat(ctx, path, LstatOptions{WantTrie: true})
	if err != nil {
		return nil, nil, err
	}
	if st != nil {
		return st, owner, nil
	}
	return d.createEmpty(ctx, path)
}

// createEmpty allocates a new, empty file stat referencing the current
// tail of the owning trie's content feed (spec.md §4.9: "offset =
// feed.length, byteOffset = feed.byteLength, size = 0, blocks = 0").
func (d *Drive) createEmpty(ctx context.Context, path string) (*statcodec.Stat, trie.Trie, error) {
	path = normalizePath(path)
	_, owner, err := d.t.Get(ctx, path)
	if err != nil {
		return nil, nil, driveerr.Backend("create", err)
	}
	if owner == nil {
		owner = d.t
	}

	cs, err := d.contentFor(ctx, owner)
	if err != nil {
		return nil, nil, err
	}
	release, err := cs.Acquire(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	now := d.clock.Now()
	st := statcodec.NewFile(modeFile, 0, 0, 0, 0, uint64(cs.Feed.Length()), uint64(cs.Feed.ByteLength()), now, now)
	if err := d.putStat(ctx, owner, path, st); err != nil {
		return nil, nil, err
	}
	return st, owner, nil
}

// Truncate implements spec.md §4.9's truncate.
func (d *Drive) Truncate(ctx context.Context, path string, size uint64) (*statcodec.Stat, error) {
	path = normalizePath(path)
	st, owner, err := d.Stat(ctx, path, LstatOptions{WantTrie: true})
	if err != nil {
		return nil, err
	}
	if st == nil {
		st, owner, err = d.create(ctx, path)
		if err != nil {
			return nil, err
		}
	}

	switch {
	case size == st.Size:
		return st, nil
	case size < st.Size:
		return d.truncateShrink(ctx, path, st, size)
	default:
		return d.truncateGrow(ctx, path, st, owner, size)
	}
}

// truncateShrink rewrites the file as a fresh write stream carrying
// only its first size bytes (spec.md §4.9: "pipe a bounded read stream
// into a fresh write stream").
func (d *Drive) truncateShrink(ctx context.Context, path string, st *statcodec.Stat, size uint64) (*statcodec.Stat, error) {
	length := int64(size)
	rs, err := d.CreateReadStream(ctx, path, ReadOptions{Length: &length})
	if err != nil {
		return nil, err
	}
	ws, err := d.CreateWriteStream(ctx, path, StatOpts{Mode: st.Mode, UID: st.UID, GID: st.GID})
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 64*1024)
	for {
		n, rerr := rs.ReadContext(ctx, buf)
		if n > 0 {
			if _, werr := ws.Write(ctx, buf[:n]); werr != nil {
				ws.Abort()
				return nil, werr
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			ws.Abort()
			return nil, rerr
		}
	}
	return ws.Finish(ctx)
}

// truncateGrow extends the file by size-st.Size zero bytes. This is
// legal only because the caller is extending the file that is already
// the tail of its content feed (spec.md §4.6's "most recent append"
// precondition for writes); growing a file that is not the latest
// append would misattribute the new bytes.
func (d *Drive) truncateGrow(ctx context.Context, path string, st *statcodec.Stat, owner trie.Trie, size uint64) (*statcodec.Stat, error) {
	cs, err := d.contentFor(ctx, owner)
	if err != nil {
		return nil, err
	}
	release, err := cs.Acquire(ctx, path)
	if err != nil {
		return nil, err
	}

	commit := func(ctx context.Context, p string, s *statcodec.Stat) error {
		return d.putStat(ctx, owner, p, s)
	}
	fdObj := descriptor.Open(path, os.O_WRONLY, st.Clone(), cs, release, commit, d.clock)
	if _, err := fdObj.WriteZeros(ctx, int64(size-st.Size)); err != nil {
		fdObj.Close()
		return nil, err
	}
	result := fdObj.Stat()
	if err := fdObj.Close(); err != nil {
		return nil, err
	}
	return result, nil
}

// WriteFile implements spec.md §4.9's writeFile.
func (d *Drive) WriteFile(ctx context.Context, path string, data []byte, opts StatOpts) (*statcodec.Stat, error) {
	ws, err := d.CreateWriteStream(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	if _, err := ws.Write(ctx, data); err != nil {
		ws.Abort()
		return nil, err
	}
	return ws.Finish(ctx)
}

// ReadFile implements spec.md §4.9's readFile, collecting the whole
// stream into memory.
func (d *Drive) ReadFile(ctx context.Context, path string) ([]byte, error) {
	rs, err := d.CreateReadStream(ctx, path, ReadOptions{})
	if err != nil {
		return nil, err
	}
	var out []byte
	buf := make([]byte, 64*1024)
	for {
		n, err := rs.ReadContext(ctx, buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// ReadFileString is readFile's non-binary-encoding path (spec.md §4.9:
// "if an encoding other than binary is requested, decodes the
// concatenated buffer to a text string").
func (d *Drive) ReadFileString(ctx context.Context, path string) (string, error) {
	b, err := d.ReadFile(ctx, path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Unlink implements spec.md §4.9's unlink.
func (d *Drive) Unlink(ctx context.Context, path string) error {
	path = normalizePath(path)
	if err := d.t.Del(ctx, path); err != nil {
		if err == trie.ErrNotFound {
			return driveerr.FileNotFound("unlink", path)
		}
		return driveerr.Backend("unlink", err)
	}
	d.bus.Emit(events.Event{Kind: events.Update, Name: path})
	logger.Debug("drive: unlinked", "path", path)
	return nil
}

// Rmdir implements spec.md §4.9's rmdir.
func (d *Drive) Rmdir(ctx context.Context, path string) error {
	path = normalizePath(path)
	children, err := d.t.List(ctx, path)
	if err != nil {
		return driveerr.Backend("rmdir", err)
	}
	if len(children) > 0 {
		return driveerr.DirectoryNotEmpty("rmdir", path)
	}
	if err := d.t.Del(ctx, path); err != nil {
		if err == trie.ErrNotFound {
			return driveerr.FileNotFound("rmdir", path)
		}
		return driveerr.Backend("rmdir", err)
	}
	d.bus.Emit(events.Event{Kind: events.Update, Name: path})
	logger.Debug("drive: rmdir", "path", path)
	return nil
}

// Mkdir implements spec.md §4.9's mkdir.
func (d *Drive) Mkdir(ctx context.Context, path string, opts StatOpts) (*statcodec.Stat, error) {
	path = normalizePath(path)

	_, owner, err := d.t.Get(ctx, path)
	if err != nil {
		return nil, driveerr.Backend("mkdir", err)
	}
	if owner == nil {
		owner = d.t
	}
	// _createStat touches the owning trie's content feed even for a
	// directory, to make sure bring-up has happened before the
	// conditional put lands.
	if _, err := d.contentFor(ctx, owner); err != nil {
		return nil, err
	}

	now := d.clock.Now()
	mode := opts.Mode
	if mode == 0 {
		mode = modeDir
	}
	st := statcodec.NewDirectory(mode, opts.UID, opts.GID, now, now)
	if err := d.putStatCond(ctx, owner, path, st, true); err != nil {
		return nil, renameOp(err, "mkdir")
	}
	return st, nil
}

// Readdir implements spec.md §4.10: entries are projected to their
// first path segment relative to prefix. Duplicates are not
// deduplicated, matching the spec's "acceptable for the caller to
// deduplicate" allowance.
func (d *Drive) Readdir(ctx context.Context, prefix string, recursive bool) ([]string, error) {
	prefix = normalizePath(prefix)
	nodes, err := d.t.List(ctx, prefix)
	if err != nil {
		return nil, driveerr.Backend("readdir", err)
	}

	base := prefix
	if base != "/" {
		base += "/"
	}

	var out []string
	for _, n := range nodes {
		rel := strings.TrimPrefix(n.Path, base)
		if rel == "" {
			continue
		}
		if !recursive {
			if i := strings.Index(rel, "/"); i >= 0 {
				rel = rel[:i]
			}
		}
		out = append(out, rel)
	}
	return out, nil
}

// Symlink implements spec.md §4.11.
func (d *Drive) Symlink(ctx context.Context, target, linkName string, opts StatOpts) (*statcodec.Stat, error) {
	linkName = normalizePath(linkName)

	existing, owner, err := d.Lstat(ctx, linkName, LstatOptions{WantTrie: true})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, driveerr.PathAlreadyExists("symlink", linkName)
	}
	if owner == nil {
		owner = d.t
	}

	now := d.clock.Now()
	mode := opts.Mode
	if mode == 0 {
		mode = modeSymlink
	}
	st := statcodec.NewSymlink(mode, opts.UID, opts.GID, target, now, now)
	if err := d.putStatCond(ctx, owner, linkName, st, true); err != nil {
		return nil, renameOp(err, "symlink")
	}
	return st, nil
}

// Mount implements spec.md §4.12, delegating composition to
// internal/mount.Resolver.
func (d *Drive) Mount(ctx context.Context, path string, key ed25519.PublicKey, opts mount.Options, statOpts StatOpts) (*statcodec.Stat, error) {
	path = normalizePath(path)
	now := d.clock.Now()
	st, err := d.resolver.Mount(ctx, d.t, path, key, opts, statOpts.Mode, statOpts.UID, statOpts.GID, now)
	if err != nil {
		logger.Error("drive: mount failed", "path", path, "hypercore", opts.Hypercore, "err", err)
		return nil, fmt.Errorf("drive: mount %q: %w", path, err)
	}
	if err := d.putStat(ctx, d.t, path, st); err != nil {
		return nil, err
	}
	logger.Info("drive: mounted", "path", path, "hypercore", opts.Hypercore)
	return st, nil
}

// Checkout implements spec.md §4.13: a new drive instance sharing this
// drive's storage backend and key, with the trie replaced by its
// historical checkout, and the current ContentState reused (content
// feeds are append-only, so historical block ranges remain valid).
func (d *Drive) Checkout(version int64) (*Drive, error) {
	historical, err := d.t.Checkout(version)
	if err != nil {
		logger.Error("drive: checkout failed", "version", version, "err", err)
		return nil, fmt.Errorf("drive: checkout: %w", err)
	}
	logger.Debug("drive: checkout", "version", version)

	d.mu.Lock()
	rootContent := d.rootContent
	d.mu.Unlock()

	return &Drive{
		store:        d.store,
		pub:          d.pub,
		secret:       d.secret,
		metadataFeed: d.metadataFeed,
		t:            historical,
		rootContent:  rootContent,
		acquirer:     d.acquirer,
		resolver:     d.resolver,
		bus:          events.NewBus(),
		clock:        d.clock,
		metrics:      d.metrics,
	}, nil
}

// renameOp retags a *driveerr.Error's Op field (putStatCond reports its
// own name; the public operation name reads better to callers).
func renameOp(err error, op string) error {
	if de, ok := err.(*driveerr.Error); ok {
		de.Op = op
		return de
	}
	return err
}
