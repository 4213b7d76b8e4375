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

// Package content is the per-trie ContentState handle spec.md §2/§3
// describes: one content feed plus a lock that guarantees at-most-one
// in-flight append session, generalized from the teacher's
// gcsproxy.MutableObject/MutableContent pairing (one GCS object
// generation plus a local overlay the caller serializes around).
package content

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/driveup/hyperdrive/internal/feed"
)

// State bundles a content feed with the FIFO write-session lock spec.md
// §5 requires: "each ContentState owns a FIFO lock; ... no other append
// may interleave." golang.org/x/sync/semaphore's weighted semaphore,
// sized to 1, is the nearest off-the-shelf async-friendly mutex in the
// pack's dependency surface (see DESIGN.md).
type State struct {
	Feed feed.Feed

	sem *semaphore.Weighted

	mu      sync.Mutex
	holder  string // opaque session tag of whoever holds the lock, for diagnostics
	session int64  // monotonically increasing, bumped on every Acquire
}

// New wraps f in a fresh ContentState.
func New(f feed.Feed) *State {
	return &State{Feed: f, sem: semaphore.NewWeighted(1)}
}

// Release is returned by Acquire; it must be called exactly once,
// unconditionally, even when the write session errors or is destroyed
// mid-stream (spec.md §4.8 step 7, §5's cancellation rule).
type Release func()

// Acquire blocks until the content-feed write-session lock is free, then
// returns a Release. Every write stream, writeFile, create (when
// allocating bytes), truncate's growth path, and mkdir/_createStat that
// reads feed length takes this lock for the duration of its append
// session (spec.md §5).
func (s *State) Acquire(ctx context.Context, who string) (Release, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("content: acquire lock for %q: %w", who, err)
	}

	s.mu.Lock()
	s.session++
	s.holder = who
	mySession := s.session
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.session == mySession {
				s.holder = ""
			}
			s.mu.Unlock()
			s.sem.Release(1)
		})
	}, nil
}

// Holder reports who currently holds the write-session lock, or "" if
// free. Diagnostic only.
func (s *State) Holder() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holder
}

// AppendSession captures the feed offsets a write session needs to
// compose a file stat when it commits (spec.md §4.8 steps 3/6): the
// block and byte offsets observed right after acquiring the lock, before
// any bytes from this session have been appended.
type AppendSession struct {
	Offset     uint64
	ByteOffset uint64
	started    time.Time
}

// BeginAppend snapshots the feed's current length/byteLength. Must be
// called only while holding this State's lock.
func (s *State) BeginAppend() AppendSession {
	return AppendSession{
		Offset:     uint64(s.Feed.Length()),
		ByteOffset: uint64(s.Feed.ByteLength()),
		started:    time.Now(),
	}
}

// Elapsed reports how long this session has held the lock so far, for
// metrics.
func (a AppendSession) Elapsed() time.Duration { return time.Since(a.started) }
