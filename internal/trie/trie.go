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

// Package trie is the drive's view of the prefix-indexed authenticated
// key-value collaborator spec.md §3 treats as external: get/put/del/
// list/iterator/checkout/mount/watch, keyed by path strings with opaque
// value blobs, with a header block (version 1's block 0) carrying
// drive-level metadata.
//
// The in-memory implementation here keeps one map per version,
// built copy-on-write so Checkout(v) is a cheap, immutable view -- the
// authenticated-proof machinery a real hypertrie/hyperbee would add is
// out of scope (spec.md §1 names the prefix trie itself as an external
// collaborator; only the versioning/mount/watch *shape* is ours to keep).
package trie

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Header is block 0 of the metadata feed: the drive-level metadata
// blob, which for this spec is just the content feed's public key
// (spec.md §6).
type Header struct {
	ContentPublicKey []byte
}

// Node is one trie entry: a path and its opaque value blob.
type Node struct {
	Path  string
	Value []byte
}

// Mount attaches a foreign Trie at a path prefix.
type Mount struct {
	Path    string
	Foreign Trie
}

// Trie is the authenticated path->value store the drive core consults
// for stat lookups (spec.md §4.4) and mutates for puts/deletes (§4.3).
type Trie interface {
	// Version is this trie's current version number (starts at 1 per
	// spec.md §4.13/§9; version 0 for an empty drive is not exposed,
	// matching the source's documented-but-unshipped intent).
	Version() int64

	Header() Header
	SetHeader(h Header) error

	// Get resolves name, following any mount attachment whose prefix
	// matches name. It returns the resolving sub-trie alongside the
	// node so mount-aware callers (lstat's opts.trie) can keep operating
	// against the right trie.
	Get(ctx context.Context, name string) (*Node, Trie, error)

	// Put stores value at name. If condition is true, Put fails with
	// ErrExists when name already resolves to a node (the compare-and-
	// swap spec.md §4.3 describes for mkdir/symlink).
	Put(ctx context.Context, name string, value []byte, condition bool) error

	Del(ctx context.Context, name string) error

	// List returns every node strictly under prefix (the node at prefix
	// itself is excluded), sorted by path. A prefix that resolves into a
	// mount is listed from the foreign trie; mounts nested beneath prefix
	// have their entries folded in, reprefixed to the mount path.
	List(ctx context.Context, prefix string) ([]*Node, error)

	// Checkout returns a read-only view of this trie as of version.
	Checkout(version int64) (Trie, error)

	// Mount attaches a foreign trie at path; subsequent Get calls under
	// path resolve into foreign.
	Mount(path string, foreign Trie) error
	Mounts() []Mount

	// Watch delivers onchange whenever a mutation lands under prefix,
	// until the returned cancel func is called.
	Watch(prefix string, onchange func()) (cancel func())

	Close() error
}

type memTrie struct {
	mu       sync.RWMutex
	version  int64
	nodes    map[string][]byte // path -> encoded value, live view only
	header   Header
	mounts   []Mount
	watchers map[string]map[string]func() // prefix -> subscription id -> callback
	history  map[int64]map[string][]byte  // version -> snapshot, for Checkout
}

// New returns an empty trie at version 1 (spec.md §9: "the trie version
// starts at 1").
func New() Trie {
	return &memTrie{
		version:  1,
		nodes:    make(map[string][]byte),
		watchers: make(map[string]map[string]func()),
		history:  make(map[int64]map[string][]byte),
	}
}

func normalize(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}

func (t *memTrie) Version() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

func (t *memTrie) Header() Header {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.header
}

func (t *memTrie) SetHeader(h Header) error {
	t.mu.Lock()
	t.header = h
	t.mu.Unlock()
	return nil
}

// resolveMount returns the most specific mount whose path is a prefix of
// name, if any.
func (t *memTrie) resolveMount(name string) (Mount, bool) {
	var best Mount
	found := false
	for _, m := range t.mounts {
		if name == m.Path || strings.HasPrefix(name, m.Path+"/") {
			if !found || len(m.Path) > len(best.Path) {
				best = m
				found = true
			}
		}
	}
	return best, found
}

func (t *memTrie) Get(ctx context.Context, name string) (*Node, Trie, error) {
	name = normalize(name)

	t.mu.RLock()
	m, ok := t.resolveMount(name)
	t.mu.RUnlock()
	if ok {
		sub := strings.TrimPrefix(name, m.Path)
		if sub == "" {
			sub = "/"
		}
		node, resolver, err := m.Foreign.Get(ctx, sub)
		return node, resolver, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.nodes[name]
	if !ok {
		return nil, t, nil
	}
	return &Node{Path: name, Value: v}, t, nil
}

func (t *memTrie) Put(ctx context.Context, name string, value []byte, condition bool) error {
	name = normalize(name)

	t.mu.Lock()
	defer t.mu.Unlock()

	if m, ok := t.resolveMount(name); ok {
		sub := strings.TrimPrefix(name, m.Path)
		if sub == "" {
			sub = "/"
		}
		return m.Foreign.Put(ctx, sub, value, condition)
	}

	if condition {
		if _, exists := t.nodes[name]; exists {
			return ErrExists
		}
	}

	t.snapshotCurrentLocked()
	t.nodes[name] = value
	t.version++
	t.notifyLocked(name)
	return nil
}

func (t *memTrie) Del(ctx context.Context, name string) error {
	name = normalize(name)

	t.mu.Lock()
	defer t.mu.Unlock()

	if m, ok := t.resolveMount(name); ok {
		sub := strings.TrimPrefix(name, m.Path)
		if sub == "" {
			sub = "/"
		}
		return m.Foreign.Del(ctx, sub)
	}

	if _, exists := t.nodes[name]; !exists {
		return ErrNotFound
	}
	t.snapshotCurrentLocked()
	delete(t.nodes, name)
	t.version++
	t.notifyLocked(name)
	return nil
}

func (t *memTrie) List(ctx context.Context, prefix string) ([]*Node, error) {
	prefix = normalize(prefix)

	t.mu.RLock()
	if m, ok := t.resolveMount(prefix); ok {
		foreign := m.Foreign
		mountPath := m.Path
		t.mu.RUnlock()
		sub := strings.TrimPrefix(prefix, mountPath)
		if sub == "" {
			sub = "/"
		}
		nodes, err := foreign.List(ctx, sub)
		if err != nil {
			return nil, err
		}
		return reprefix(nodes, mountPath), nil
	}

	walkPrefix := prefix
	if walkPrefix != "/" {
		walkPrefix += "/"
	}

	var out []*Node
	for p, v := range t.nodes {
		if p == prefix {
			continue
		}
		if walkPrefix == "/" {
			if strings.HasPrefix(p, "/") {
				out = append(out, &Node{Path: p, Value: v})
			}
			continue
		}
		if strings.HasPrefix(p, walkPrefix) {
			out = append(out, &Node{Path: p, Value: v})
		}
	}

	// Fold in entries from any mount nested under prefix, so a readdir
	// across a mount boundary sees the foreign trie's entries too.
	var nested []Mount
	for _, m := range t.mounts {
		if m.Path != prefix && strings.HasPrefix(m.Path, walkPrefix) {
			nested = append(nested, m)
		}
	}
	t.mu.RUnlock()

	for _, m := range nested {
		nodes, err := m.Foreign.List(ctx, "/")
		if err != nil {
			return nil, err
		}
		out = append(out, reprefix(nodes, m.Path)...)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// reprefix rewrites nodes returned by a foreign trie's List so their
// paths read as if the foreign trie were mounted at mountPath.
func reprefix(nodes []*Node, mountPath string) []*Node {
	out := make([]*Node, len(nodes))
	for i, n := range nodes {
		p := n.Path
		if p == "/" {
			p = mountPath
		} else if mountPath != "/" {
			p = mountPath + p
		}
		out[i] = &Node{Path: p, Value: n.Value}
	}
	return out
}

// snapshotCurrentLocked freezes the node map as it stands under the
// current version number, the instant before a mutation moves the live
// trie on to the next version -- so Checkout(t.version) can later hand
// back exactly what this version looked like, rather than whatever the
// live map has been mutated into since. A no-op if this version was
// already snapshotted (no mutation has happened since the last one).
// Caller must hold t.mu for writing.
func (t *memTrie) snapshotCurrentLocked() {
	if _, ok := t.history[t.version]; ok {
		return
	}
	snap := make(map[string][]byte, len(t.nodes))
	for k, v := range t.nodes {
		snap[k] = v
	}
	t.history[t.version] = snap
}

func (t *memTrie) notifyLocked(name string) {
	for prefix, subs := range t.watchers {
		if prefix == "/" || strings.HasPrefix(name, prefix) {
			for _, cb := range subs {
				cb()
			}
		}
	}
}

func (t *memTrie) Checkout(version int64) (Trie, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var snap map[string][]byte
	if version == t.version {
		// Checking out the live version still needs an isolated copy:
		// handing back t itself would let mutations made after this
		// call bleed into what's supposed to be a frozen view.
		snap = t.nodes
	} else {
		s, ok := t.history[version]
		if !ok {
			return nil, ErrNoSuchVersion
		}
		snap = s
	}
	nodes := make(map[string][]byte, len(snap))
	for k, v := range snap {
		nodes[k] = v
	}
	return &memTrie{
		version:  version,
		nodes:    nodes,
		header:   t.header,
		mounts:   append([]Mount{}, t.mounts...),
		watchers: make(map[string]map[string]func()),
		history:  map[int64]map[string][]byte{version: nodes},
	}, nil
}

func (t *memTrie) Mount(path string, foreign Trie) error {
	path = normalize(path)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snapshotCurrentLocked()
	t.mounts = append(t.mounts, Mount{Path: path, Foreign: foreign})
	t.version++
	t.notifyLocked(path)
	return nil
}

func (t *memTrie) Mounts() []Mount {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Mount{}, t.mounts...)
}

// Watch subscribes onchange to mutations under prefix (spec.md §4.14);
// no deduplication is performed, matching the spec's documented
// behavior. The returned cancel func removes only this subscription.
func (t *memTrie) Watch(prefix string, onchange func()) func() {
	prefix = normalize(prefix)
	id := uuid.NewString()

	t.mu.Lock()
	if t.watchers[prefix] == nil {
		t.watchers[prefix] = make(map[string]func())
	}
	t.watchers[prefix][id] = onchange
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.watchers[prefix], id)
		t.mu.Unlock()
	}
}

func (t *memTrie) Close() error { return nil }
