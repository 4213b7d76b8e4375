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

// Package descriptor is the per-open-file state spec.md §2/§4.6
// describes: current position, the stat it was opened against, and the
// read/write primitives translating (offset, length) into content-feed
// block reads or appends. Generalized from the read/write pair on the
// teacher's gcsproxy.MutableObject (ReadAt/WriteAt over a local temp
// file) to read/write over a block-addressed content feed.
package descriptor

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/driveup/hyperdrive/internal/clock"
	"github.com/driveup/hyperdrive/internal/content"
	"github.com/driveup/hyperdrive/internal/statcodec"
)

// CommitFunc persists an updated stat to the trie (the drive core's
// _putStat, spec.md §4.3), invoked once per write call that appends
// bytes.
type CommitFunc func(ctx context.Context, path string, stat *statcodec.Stat) error

// Descriptor is one open file's state (spec.md §3's File descriptor).
// Not safe for concurrent read+write from two goroutines against the
// same descriptor; the spec's single-threaded cooperative model (§5)
// assumes one in-flight operation per descriptor at a time.
type Descriptor struct {
	Path  string
	Flags int

	mu       sync.Mutex
	stat     *statcodec.Stat
	position int64

	cs      *content.State
	release content.Release // non-nil iff this descriptor holds the write-session lock
	session content.AppendSession
	commit  CommitFunc
	clock   clock.Clock
}

// Open builds a descriptor over stat. If release is non-nil, the
// descriptor is a writer: it already holds cs's lock for its entire
// lifetime (spec.md §3: "a writing descriptor additionally holds the
// content-feed lock for its lifetime").
func Open(path string, flags int, stat *statcodec.Stat, cs *content.State, release content.Release, commit CommitFunc, clk clock.Clock) *Descriptor {
	d := &Descriptor{
		Path: path, Flags: flags, stat: stat, cs: cs, release: release, commit: commit, clock: clk,
	}
	if release != nil {
		d.session = cs.BeginAppend()
	}
	return d
}

// Stat returns the descriptor's current view of its file's metadata. A
// writing descriptor's size reflects bytes appended so far, even before
// any commit -- this backs spec.md §4.4's "if a descriptor is currently
// writing name, substitute the in-flight size."
func (d *Descriptor) Stat() *statcodec.Stat {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stat.Clone()
}

func (d *Descriptor) IsWriter() bool { return d.release != nil }

// ReadAt reads into buf starting at absolute file offset pos, without
// touching the descriptor's cursor (spec.md §4.6's Read primitive: "a
// null pos means use and advance the descriptor's internal cursor", so
// Read below layers the cursor on top of this).
func (d *Descriptor) ReadAt(ctx context.Context, buf []byte, pos int64) (int, error) {
	d.mu.Lock()
	stat := d.stat
	d.mu.Unlock()

	if stat.Kind != statcodec.KindFile {
		return 0, fmt.Errorf("descriptor: read on non-file %q", d.Path)
	}
	if pos < 0 {
		return 0, fmt.Errorf("descriptor: negative offset %d", pos)
	}
	if pos >= int64(stat.Size) {
		return 0, nil // reads past EOF return 0, per spec.md §4.6
	}

	remaining := int64(stat.Size) - pos
	length := int64(len(buf))
	if length > remaining {
		length = remaining
	}

	absolute := int64(stat.ByteOffset) + pos
	data, err := d.cs.Feed.ReadRange(ctx, absolute, length)
	if err != nil {
		return 0, fmt.Errorf("descriptor: ReadRange: %w", err)
	}
	n := copy(buf, data)
	return n, nil
}

// Read reads from the descriptor's internal cursor and advances it.
func (d *Descriptor) Read(ctx context.Context, buf []byte) (int, error) {
	d.mu.Lock()
	pos := d.position
	d.mu.Unlock()

	n, err := d.ReadAt(ctx, buf, pos)
	if err != nil {
		return n, err
	}

	d.mu.Lock()
	d.position += int64(n)
	d.mu.Unlock()

	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Write appends buf as whole new blocks to the content feed and commits
// an updated stat (spec.md §4.6's append-only write semantics). Legal
// only on a descriptor that holds the content-feed lock for the file
// being written.
func (d *Descriptor) Write(ctx context.Context, buf []byte) (int, error) {
	if !d.IsWriter() {
		return 0, fmt.Errorf("descriptor: write on non-writer descriptor %q", d.Path)
	}
	if len(buf) == 0 {
		return 0, nil
	}

	if _, err := d.cs.Feed.Append(ctx, [][]byte{buf}); err != nil {
		return 0, fmt.Errorf("descriptor: append: %w", err)
	}

	d.mu.Lock()
	now := d.clock.Now()
	if d.stat.Size == 0 {
		// An empty file starts at this session's first appended block; a
		// non-empty one keeps its start and grows in place.
		d.stat.Offset = d.session.Offset
		d.stat.ByteOffset = d.session.ByteOffset
	}
	d.stat.Size += uint64(len(buf))
	d.stat.Blocks++
	d.stat.Mtime = now
	toCommit := d.stat.Clone()
	d.position += int64(len(buf))
	d.mu.Unlock()

	if d.commit != nil {
		if err := d.commit(ctx, d.Path, toCommit); err != nil {
			return len(buf), fmt.Errorf("descriptor: commit: %w", err)
		}
	}

	return len(buf), nil
}

// WriteZeros appends n zero bytes, in blocks of at most 1 MiB each, used by
// truncate's grow path (spec.md §4.9: "if size > st.size, open append
// and write size - st.size zero bytes").
func (d *Descriptor) WriteZeros(ctx context.Context, n int64) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	const chunk = 1 << 20 // 1 MiB, bounds a single zero-fill block
	var written int64
	buf := make([]byte, chunk)
	for written < n {
		sz := n - written
		if sz > chunk {
			sz = chunk
		}
		w, err := d.Write(ctx, buf[:sz])
		written += int64(w)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// Seek repositions the descriptor's cursor, POSIX-lseek style.
func (d *Descriptor) Seek(offset int64, whence int) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = d.position
	case io.SeekEnd:
		base = int64(d.stat.Size)
	default:
		return 0, fmt.Errorf("descriptor: bad whence %d", whence)
	}
	pos := base + offset
	if pos < 0 {
		return 0, fmt.Errorf("descriptor: negative resulting offset")
	}
	d.position = pos
	return pos, nil
}

// Close releases the write-session lock exactly once, if held
// (spec.md §5's cancellation rule: releasing unconditionally,
// regardless of how the session ended).
func (d *Descriptor) Close() error {
	d.mu.Lock()
	release := d.release
	d.release = nil
	d.mu.Unlock()

	if release != nil {
		release()
	}
	return nil
}
