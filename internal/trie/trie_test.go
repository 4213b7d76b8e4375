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

package trie_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driveup/hyperdrive/internal/trie"
)

func TestPutGetDel(t *testing.T) {
	tr := trie.New()
	ctx := context.Background()

	node, owner, err := tr.Get(ctx, "/a")
	require.NoError(t, err)
	require.Nil(t, node)
	require.Equal(t, tr, owner)

	require.NoError(t, tr.Put(ctx, "/a", []byte("1"), false))
	node, _, err = tr.Get(ctx, "/a")
	require.NoError(t, err)
	require.Equal(t, []byte("1"), node.Value)

	require.NoError(t, tr.Del(ctx, "/a"))
	node, _, err = tr.Get(ctx, "/a")
	require.NoError(t, err)
	require.Nil(t, node)

	require.ErrorIs(t, tr.Del(ctx, "/a"), trie.ErrNotFound)
}

func TestPutConditionalFailsOnExisting(t *testing.T) {
	tr := trie.New()
	ctx := context.Background()

	require.NoError(t, tr.Put(ctx, "/a", []byte("1"), true))
	err := tr.Put(ctx, "/a", []byte("2"), true)
	require.ErrorIs(t, err, trie.ErrExists)

	// Unconditional put still overwrites.
	require.NoError(t, tr.Put(ctx, "/a", []byte("2"), false))
	node, _, err := tr.Get(ctx, "/a")
	require.NoError(t, err)
	require.Equal(t, []byte("2"), node.Value)
}

func TestVersionAdvancesOnMutation(t *testing.T) {
	tr := trie.New()
	ctx := context.Background()

	require.EqualValues(t, 1, tr.Version())
	require.NoError(t, tr.Put(ctx, "/a", []byte("1"), false))
	require.EqualValues(t, 2, tr.Version())
	require.NoError(t, tr.Del(ctx, "/a"))
	require.EqualValues(t, 3, tr.Version())
}

func TestCheckoutIsolatedFromLaterMutation(t *testing.T) {
	tr := trie.New()
	ctx := context.Background()

	require.NoError(t, tr.Put(ctx, "/a", []byte("1"), false))
	v := tr.Version()

	view, err := tr.Checkout(v)
	require.NoError(t, err)

	require.NoError(t, tr.Put(ctx, "/a", []byte("2"), false))

	node, _, err := view.Get(ctx, "/a")
	require.NoError(t, err)
	require.Equal(t, []byte("1"), node.Value)

	node, _, err = tr.Get(ctx, "/a")
	require.NoError(t, err)
	require.Equal(t, []byte("2"), node.Value)
}

func TestCheckoutOfCurrentVersionIsIsolated(t *testing.T) {
	tr := trie.New()
	ctx := context.Background()

	require.NoError(t, tr.Put(ctx, "/a", []byte("1"), false))

	view, err := tr.Checkout(tr.Version())
	require.NoError(t, err)

	require.NoError(t, tr.Put(ctx, "/a", []byte("2"), false))

	node, _, err := view.Get(ctx, "/a")
	require.NoError(t, err)
	require.Equal(t, []byte("1"), node.Value, "checking out the live version must still freeze a copy")
}

func TestCheckoutOfCheckoutStaysIsolated(t *testing.T) {
	tr := trie.New()
	ctx := context.Background()

	require.NoError(t, tr.Put(ctx, "/a", []byte("1"), false))
	v := tr.Version()

	view, err := tr.Checkout(v)
	require.NoError(t, err)

	// Mutate the live trie after taking view, then take a second checkout
	// of the same version from view itself. It must still see what was
	// true when view was taken, not whatever tr.nodes holds now.
	require.NoError(t, tr.Put(ctx, "/a", []byte("2"), false))

	nested, err := view.Checkout(v)
	require.NoError(t, err)

	node, _, err := nested.Get(ctx, "/a")
	require.NoError(t, err)
	require.Equal(t, []byte("1"), node.Value, "checkout of a checkout must not alias the live trie's mutable map")
}

func TestCheckoutUnknownVersion(t *testing.T) {
	tr := trie.New()
	_, err := tr.Checkout(99)
	require.ErrorIs(t, err, trie.ErrNoSuchVersion)
}

func TestCheckoutOfEveryIntermediateVersion(t *testing.T) {
	tr := trie.New()
	ctx := context.Background()

	v1 := tr.Version()
	require.NoError(t, tr.Put(ctx, "/a", []byte("1"), false))
	v2 := tr.Version()
	require.NoError(t, tr.Put(ctx, "/a", []byte("2"), false))
	v3 := tr.Version()

	view1, err := tr.Checkout(v1)
	require.NoError(t, err)
	node, _, err := view1.Get(ctx, "/a")
	require.NoError(t, err)
	require.Nil(t, node)

	view2, err := tr.Checkout(v2)
	require.NoError(t, err)
	node, _, err = view2.Get(ctx, "/a")
	require.NoError(t, err)
	require.Equal(t, []byte("1"), node.Value)

	view3, err := tr.Checkout(v3)
	require.NoError(t, err)
	node, _, err = view3.Get(ctx, "/a")
	require.NoError(t, err)
	require.Equal(t, []byte("2"), node.Value)
}

func TestMountResolvesGetPutDel(t *testing.T) {
	root := trie.New()
	foreign := trie.New()
	ctx := context.Background()

	require.NoError(t, root.Mount("/sub", foreign))

	require.NoError(t, root.Put(ctx, "/sub/a", []byte("1"), false))
	node, _, err := foreign.Get(ctx, "/a")
	require.NoError(t, err)
	require.Equal(t, []byte("1"), node.Value)

	node, _, err = root.Get(ctx, "/sub/a")
	require.NoError(t, err)
	require.Equal(t, []byte("1"), node.Value)

	require.NoError(t, root.Del(ctx, "/sub/a"))
	node, _, err = foreign.Get(ctx, "/a")
	require.NoError(t, err)
	require.Nil(t, node)
}

func TestListFoldsInNestedMounts(t *testing.T) {
	root := trie.New()
	foreign := trie.New()
	ctx := context.Background()

	require.NoError(t, root.Put(ctx, "/dir/top.txt", []byte("x"), false))
	require.NoError(t, foreign.Put(ctx, "/f.txt", []byte("y"), false))
	require.NoError(t, root.Mount("/dir/sub", foreign))

	nodes, err := root.List(ctx, "/dir")
	require.NoError(t, err)

	var paths []string
	for _, n := range nodes {
		paths = append(paths, n.Path)
	}
	require.Contains(t, paths, "/dir/top.txt")
	require.Contains(t, paths, "/dir/sub/f.txt")
}

func TestListUnderMountDelegatesFully(t *testing.T) {
	root := trie.New()
	foreign := trie.New()
	ctx := context.Background()

	require.NoError(t, foreign.Put(ctx, "/f.txt", []byte("y"), false))
	require.NoError(t, root.Mount("/sub", foreign))

	nodes, err := root.List(ctx, "/sub")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Equal(t, "/sub/f.txt", nodes[0].Path)
}

func TestWatchFiresOnMatchingPrefix(t *testing.T) {
	tr := trie.New()
	ctx := context.Background()

	var fired int
	cancel := tr.Watch("/dir", func() { fired++ })
	defer cancel()

	require.NoError(t, tr.Put(ctx, "/dir/a", []byte("1"), false))
	require.Equal(t, 1, fired)

	require.NoError(t, tr.Put(ctx, "/other", []byte("1"), false))
	require.Equal(t, 1, fired, "mutation outside the watched prefix must not fire")

	cancel()
	require.NoError(t, tr.Put(ctx, "/dir/b", []byte("1"), false))
	require.Equal(t, 1, fired, "cancelled watch must not fire")
}

func TestHeaderRoundTrip(t *testing.T) {
	tr := trie.New()
	require.NoError(t, tr.SetHeader(trie.Header{ContentPublicKey: []byte("key")}))
	require.Equal(t, []byte("key"), tr.Header().ContentPublicKey)
}
