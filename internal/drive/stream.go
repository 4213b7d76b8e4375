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
	"fmt"
	"io"
	"sync"

	"github.com/driveup/hyperdrive/internal/content"
	"github.com/driveup/hyperdrive/internal/driveerr"
	"github.com/driveup/hyperdrive/internal/events"
	"github.com/driveup/hyperdrive/internal/feed"
	"github.com/driveup/hyperdrive/internal/statcodec"
	"github.com/driveup/hyperdrive/internal/trie"
)

// defaultReadAheadBytes is spec.md §4.7's default read-ahead watermark.
const defaultReadAheadBytes = 64 * 1024

// ReadOptions mirrors spec.md §4.7's `opts`: Start/End are an inclusive
// byte range; Length, when set, overrides End (the range still begins
// at Start).
type ReadOptions struct {
	Start  *int64
	End    *int64
	Length *int64
}

// ReadStream streams a byte range out of a content feed, reading at
// most ReadAheadBytes (defaultReadAheadBytes unless changed) per
// underlying ReadRange call. Nothing is buffered ahead of the consumer.
type ReadStream struct {
	f              feed.Feed
	byteOffset     int64
	remaining      int64
	ReadAheadBytes int64
}

// CreateReadStream implements spec.md §4.7: resolve stat and owning
// trie, pick the content feed (the foreign one for a hypercore mount,
// otherwise the owning trie's), and compute the five byte-stream
// parameters.
func (d *Drive) CreateReadStream(ctx context.Context, name string, opts ReadOptions) (*ReadStream, error) {
	name = normalizePath(name)
	st, owner, err := d.Stat(ctx, name, LstatOptions{File: true})
	if err != nil {
		return nil, err
	}

	var f feed.Feed
	var byteOffsetBase uint64
	if st.IsMount() && st.Mount.Hypercore {
		foreignFeed, ok, err := d.resolver.ResolveContent(ctx, st)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("drive: createReadStream: expected hypercore mount content")
		}
		f = foreignFeed
		byteOffsetBase = 0
	} else {
		cs, err := d.contentFor(ctx, owner)
		if err != nil {
			return nil, err
		}
		f = cs.Feed
		byteOffsetBase = st.ByteOffset
	}

	var start int64
	if opts.Start != nil {
		start = *opts.Start
	}

	var length int64
	switch {
	case opts.Length != nil:
		length = *opts.Length
	case opts.End != nil:
		length = *opts.End + 1 - start
	default:
		length = int64(st.Size) - start
	}
	if length < 0 {
		length = 0
	}

	return &ReadStream{
		f:              f,
		byteOffset:     int64(byteOffsetBase) + start,
		remaining:      length,
		ReadAheadBytes: defaultReadAheadBytes,
	}, nil
}

// Read implements io.Reader, pulling up to ReadAheadBytes per
// underlying ReadRange call.
func (rs *ReadStream) Read(p []byte) (int, error) {
	return rs.ReadContext(context.Background(), p)
}

// ReadContext is Read with an explicit context, for callers that have
// one (Read alone satisfies io.Reader for io.Copy/io.ReadAll callers
// that don't).
func (rs *ReadStream) ReadContext(ctx context.Context, p []byte) (int, error) {
	if rs.remaining <= 0 {
		return 0, io.EOF
	}
	want := int64(len(p))
	if want > rs.remaining {
		want = rs.remaining
	}
	if want > rs.ReadAheadBytes {
		want = rs.ReadAheadBytes
	}
	data, err := rs.f.ReadRange(ctx, rs.byteOffset, want)
	if err != nil {
		return 0, fmt.Errorf("drive: read stream: %w", err)
	}
	n := copy(p, data)
	rs.byteOffset += int64(n)
	rs.remaining -= int64(n)
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// WriteStream implements spec.md §4.8's createWriteStream.
type WriteStream struct {
	drive   *Drive
	name    string
	owner   trie.Trie
	cs      *content.State
	release content.Release
	session content.AppendSession
	opts    StatOpts

	mu     sync.Mutex
	closed bool
}

// StatOpts carries the mode/uid/gid a caller supplies for a new file,
// directory, or symlink record.
type StatOpts struct {
	Mode, UID, GID uint32
}

// CreateWriteStream implements spec.md §4.8 steps 1-4: resolve the
// owning trie (ignoring FileNotFound -- a new file has no owner until
// the stat is put), acquire that trie's content-feed lock, snapshot the
// append session, and emit `appending`.
func (d *Drive) CreateWriteStream(ctx context.Context, name string, opts StatOpts) (*WriteStream, error) {
	name = normalizePath(name)

	_, owner, err := d.Stat(ctx, name, LstatOptions{WantTrie: true})
	if err != nil && !driveerr.IsNotExist(err) {
		return nil, err
	}
	if owner == nil {
		owner = d.t
	}

	cs, err := d.contentFor(ctx, owner)
	if err != nil {
		return nil, err
	}

	release, err := cs.Acquire(ctx, name)
	if err != nil {
		return nil, err
	}
	session := cs.BeginAppend()

	d.bus.Emit(events.Event{Kind: events.Appending, Name: name, Opts: opts})

	return &WriteStream{drive: d, name: name, owner: owner, cs: cs, release: release, session: session, opts: opts}, nil
}

// Write appends p to the content feed. It does not commit a stat;
// Finish does that once, on completion (spec.md §4.8 step 6).
func (w *WriteStream) Write(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if _, err := w.cs.Feed.Append(ctx, [][]byte{p}); err != nil {
		return 0, fmt.Errorf("drive: write stream: append: %w", err)
	}
	return len(p), nil
}

// Finish composes the final file stat from the bytes appended this
// session, commits it, emits `append`, and releases the content-feed
// lock exactly once (spec.md §4.8 steps 6-7).
func (w *WriteStream) Finish(ctx context.Context) (*statcodec.Stat, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, fmt.Errorf("drive: write stream: already closed")
	}
	w.closed = true
	w.mu.Unlock()
	defer w.release()

	now := w.drive.clock.Now()
	size := uint64(w.cs.Feed.ByteLength()) - w.session.ByteOffset
	blocks := uint64(w.cs.Feed.Length()) - w.session.Offset
	st := statcodec.NewFile(w.opts.Mode, w.opts.UID, w.opts.GID, size, blocks, w.session.Offset, w.session.ByteOffset, now, now)

	if err := w.drive.putStat(ctx, w.owner, w.name, st); err != nil {
		return nil, err
	}
	w.drive.bus.Emit(events.Event{Kind: events.Append, Name: w.name, Opts: w.opts})
	w.drive.metrics.WriteSession(ctx, int64(size), w.session.Elapsed())
	return st, nil
}

// Abort releases the lock without committing a stat. Bytes already
// appended to the content feed are not rolled back (spec.md §4.8's
// documented limitation, §9).
func (w *WriteStream) Abort() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()
	w.release()
}
