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
	"fmt"
	"sync"
)

// memFeed is an in-process Feed: a slice of immutable blocks guarded by a
// mutex, with a condition variable woken on every Append so Update can
// block for "at least one new block" the way a networked feed would
// block waiting on a peer.
type memFeed struct {
	pub      ed25519.PublicKey
	priv     ed25519.PrivateKey // nil when opened read-only
	mu       sync.Mutex
	cond     *sync.Cond
	blocks   [][]byte
	byteLen  int64
	closed   bool
	onErrors []func(error)
}

func newMemFeed(pub ed25519.PublicKey, priv ed25519.PrivateKey) *memFeed {
	f := &memFeed{pub: pub, priv: priv}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *memFeed) PublicKey() ed25519.PublicKey { return f.pub }
func (f *memFeed) Writable() bool               { return f.priv != nil }

func (f *memFeed) Length() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.blocks)
}

func (f *memFeed) ByteLength() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byteLen
}

func (f *memFeed) Append(ctx context.Context, blocks [][]byte) (int, error) {
	if !f.Writable() {
		return 0, fmt.Errorf("feed: append on read-only feed")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	first := len(f.blocks)
	for _, b := range blocks {
		cp := make([]byte, len(b))
		copy(cp, b)
		f.blocks = append(f.blocks, cp)
		f.byteLen += int64(len(cp))
	}
	f.cond.Broadcast()
	return first, nil
}

func (f *memFeed) ReadBlock(ctx context.Context, i int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 || i >= len(f.blocks) {
		return nil, fmt.Errorf("feed: block %d out of range (length %d)", i, len(f.blocks))
	}
	out := make([]byte, len(f.blocks[i]))
	copy(out, f.blocks[i])
	return out, nil
}

// ReadRange walks the block list accumulating byte offsets until it
// covers [offset, offset+length), copying the overlapping slice of each
// block it touches. Grounded on the block-to-byte-range mapping in
// zchee-go-qcow2's block.go (sequential scan, partial first/last block).
func (f *memFeed) ReadRange(ctx context.Context, offset, length int64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if offset < 0 || length < 0 || offset+length > f.byteLen {
		return nil, fmt.Errorf("feed: range [%d,%d) out of bounds (byteLength %d)", offset, offset+length, f.byteLen)
	}

	out := make([]byte, 0, length)
	var pos int64
	for _, b := range f.blocks {
		blockStart, blockEnd := pos, pos+int64(len(b))
		pos = blockEnd
		if blockEnd <= offset {
			continue
		}
		if blockStart >= offset+length {
			break
		}
		from := int64(0)
		if offset > blockStart {
			from = offset - blockStart
		}
		to := int64(len(b))
		if offset+length < blockEnd {
			to = offset + length - blockStart
		}
		out = append(out, b[from:to]...)
	}
	return out, nil
}

func (f *memFeed) Update(ctx context.Context) error {
	f.mu.Lock()
	if len(f.blocks) > 0 {
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			f.mu.Lock()
			f.cond.Broadcast()
			f.mu.Unlock()
		case <-stop:
		}
	}()

	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.blocks) == 0 && ctx.Err() == nil {
		f.cond.Wait()
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

func (f *memFeed) OnError(cb func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onErrors = append(f.onErrors, cb)
}

func (f *memFeed) emitError(err error) {
	f.mu.Lock()
	cbs := append([]func(error){}, f.onErrors...)
	f.mu.Unlock()
	for _, cb := range cbs {
		cb(err)
	}
}

func (f *memFeed) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}
