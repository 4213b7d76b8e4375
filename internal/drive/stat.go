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

	"github.com/driveup/hyperdrive/internal/driveerr"
	"github.com/driveup/hyperdrive/internal/statcodec"
	"github.com/driveup/hyperdrive/internal/trie"
)

// LstatOptions mirrors spec.md §4.4's `opts`.
type LstatOptions struct {
	// WantTrie asks Lstat to return (nil, owningTrie, nil) instead of
	// failing when name has no node -- callers resolving a trie for a
	// subsequent write use this.
	WantTrie bool
	// File requires a node to exist; a directory probe is not
	// attempted and a missing node fails FileNotFound.
	File bool
}

// Lstat implements spec.md §4.4's lstat: it does not follow a symlink
// result.
func (d *Drive) Lstat(ctx context.Context, name string, opts LstatOptions) (*statcodec.Stat, trie.Trie, error) {
	name = normalizePath(name)

	node, owner, err := d.t.Get(ctx, name)
	if err != nil {
		return nil, nil, driveerr.Backend("lstat", err)
	}

	if node == nil {
		if opts.WantTrie {
			return nil, owner, nil
		}
		if opts.File {
			return nil, nil, driveerr.FileNotFound("lstat", name)
		}
		return d.statDirectory(ctx, owner, name)
	}

	st, err := statcodec.Decode(node.Value)
	if err != nil {
		return nil, nil, driveerr.DecodeError("lstat", name, err)
	}
	if sz, ok := d.inflightSize(name); ok {
		st.Size = sz
	}
	return st, owner, nil
}

// Stat implements spec.md §4.4's stat: lstat, then follow exactly one
// level of symlink.
func (d *Drive) Stat(ctx context.Context, name string, opts LstatOptions) (*statcodec.Stat, trie.Trie, error) {
	st, owner, err := d.Lstat(ctx, name, opts)
	if err != nil {
		return nil, nil, err
	}
	if st == nil || st.Kind != statcodec.KindSymlink {
		return st, owner, nil
	}
	return d.Lstat(ctx, st.LinkName, opts)
}

// statDirectory implements spec.md §4.4 step 4's `_statDirectory`:
// synthesize a directory stat if name has children (or is the root),
// otherwise FileNotFound.
func (d *Drive) statDirectory(ctx context.Context, t trie.Trie, name string) (*statcodec.Stat, trie.Trie, error) {
	nodes, err := t.List(ctx, name)
	if err != nil {
		return nil, nil, driveerr.Backend("lstat", err)
	}
	if len(nodes) == 0 && name != "/" {
		return nil, nil, driveerr.FileNotFound("lstat", name)
	}
	now := d.clock.Now()
	return statcodec.NewDirectory(modeDir, 0, 0, now, now), t, nil
}

// inflightSize returns the size a currently-open writer descriptor for
// name reports, if one exists (spec.md §4.4 step 5: "if a descriptor is
// currently writing name, substitute the in-flight size").
func (d *Drive) inflightSize(name string) (uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, fd := range d.descriptors {
		if fd != nil && fd.IsWriter() && fd.Path == name {
			return fd.Stat().Size, true
		}
	}
	return 0, false
}
