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
	"os"

	"github.com/driveup/hyperdrive/internal/descriptor"
	"github.com/driveup/hyperdrive/internal/driveerr"
	"github.com/driveup/hyperdrive/internal/statcodec"
	"github.com/driveup/hyperdrive/internal/trie"
)

// Open implements spec.md §4.5's open: it builds a descriptor, pushes
// it into the descriptor vector, and returns index+STDIO_CAP as the
// handle. Flags use the standard os.O_* bits: O_WRONLY/O_RDWR select a
// writing descriptor, which O_TRUNC starts on a fresh empty file;
// without O_TRUNC an existing file is reused and a missing one is
// created, whether or not O_CREATE is set.
func (d *Drive) Open(ctx context.Context, path string, flags int) (fd int, err error) {
	path = normalizePath(path)
	writing := flags&(os.O_WRONLY|os.O_RDWR) != 0

	var st *statcodec.Stat
	var owner trie.Trie
	if writing {
		st, owner, err = d.openForWrite(ctx, path, flags)
	} else {
		st, owner, err = d.Stat(ctx, path, LstatOptions{File: true})
	}
	if err != nil {
		return 0, err
	}

	cs, err := d.contentFor(ctx, owner)
	if err != nil {
		return 0, err
	}

	var release func()
	if writing {
		release, err = cs.Acquire(ctx, path)
		if err != nil {
			return 0, err
		}
	}

	fdObj := descriptor.Open(path, flags, st, cs, release, func(ctx context.Context, p string, s *statcodec.Stat) error {
		return d.putStat(ctx, owner, p, s)
	}, d.clock)

	d.mu.Lock()
	idx := d.allocSlotLocked(fdObj)
	d.mu.Unlock()
	return idx + stdioCap, nil
}

// openForWrite implements create()'s reuse-or-allocate rule (spec.md
// §4.9) for the descriptor-table open path: O_TRUNC always starts a
// fresh empty file; otherwise an existing file is reused.
func (d *Drive) openForWrite(ctx context.Context, path string, flags int) (*statcodec.Stat, trie.Trie, error) {
	if flags&os.O_TRUNC != 0 {
		return d.createEmpty(ctx, path)
	}
	return d.create(ctx, path)
}

// allocSlotLocked installs fdObj in the first free (nil) slot, growing
// the vector if every slot is occupied. Caller holds d.mu.
func (d *Drive) allocSlotLocked(fdObj *descriptor.Descriptor) int {
	for i, slot := range d.descriptors {
		if slot == nil {
			d.descriptors[i] = fdObj
			return i
		}
	}
	d.descriptors = append(d.descriptors, fdObj)
	return len(d.descriptors) - 1
}

// lookup resolves a public handle back to its descriptor, enforcing
// spec.md §4.5's "fail BadFileDescriptor if out of range or freed".
func (d *Drive) lookup(op string, fd int) (*descriptor.Descriptor, error) {
	idx := fd - stdioCap
	d.mu.Lock()
	defer d.mu.Unlock()
	if idx < 0 || idx >= len(d.descriptors) || d.descriptors[idx] == nil {
		return nil, driveerr.BadFileDescriptor(op)
	}
	return d.descriptors[idx], nil
}

// Read implements spec.md §4.5's read: a nil pos uses and advances the
// descriptor's cursor.
func (d *Drive) Read(ctx context.Context, fd int, buf []byte, pos *int64) (int, error) {
	fdObj, err := d.lookup("read", fd)
	if err != nil {
		return 0, err
	}
	if pos != nil {
		return fdObj.ReadAt(ctx, buf, *pos)
	}
	return fdObj.Read(ctx, buf)
}

// Write implements spec.md §4.5's write.
func (d *Drive) Write(ctx context.Context, fd int, buf []byte) (int, error) {
	fdObj, err := d.lookup("write", fd)
	if err != nil {
		return 0, err
	}
	return fdObj.Write(ctx, buf)
}

// Seek repositions fd's internal cursor.
func (d *Drive) Seek(fd int, offset int64, whence int) (int64, error) {
	fdObj, err := d.lookup("seek", fd)
	if err != nil {
		return 0, err
	}
	return fdObj.Seek(offset, whence)
}

// CloseFile implements spec.md §4.5's close(fd): release the
// descriptor and compact trailing freed slots.
func (d *Drive) CloseFile(fd int) error {
	fdObj, err := d.lookup("close", fd)
	if err != nil {
		return err
	}
	if err := fdObj.Close(); err != nil {
		return err
	}

	idx := fd - stdioCap
	d.mu.Lock()
	d.descriptors[idx] = nil
	for len(d.descriptors) > 0 && d.descriptors[len(d.descriptors)-1] == nil {
		d.descriptors = d.descriptors[:len(d.descriptors)-1]
	}
	d.mu.Unlock()
	return nil
}
