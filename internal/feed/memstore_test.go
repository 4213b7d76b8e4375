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

package feed_test

import (
	"context"
	"crypto/rand"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/driveup/hyperdrive/internal/feed"
)

func genKeyPair(t *testing.T) (pub, priv []byte) {
	t.Helper()
	p, s, err := feed.GenerateKeyPair(rand.Reader)
	require.NoError(t, err)
	return p, s
}

func TestMemStoreCreateThenOpen(t *testing.T) {
	store := feed.NewMemStore()
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	pub, priv := genKeyPair(t)
	_, err := store.Create(ctx, pub, priv)
	require.NoError(t, err)

	_, err = store.Create(ctx, pub, priv)
	require.Error(t, err, "creating the same feed twice must fail")

	ro, err := store.Open(ctx, pub, nil)
	require.NoError(t, err)
	require.False(t, ro.Writable())

	rw, err := store.Open(ctx, pub, priv)
	require.NoError(t, err)
	require.True(t, rw.Writable())
}

func TestMemStoreOpenUnknownFeed(t *testing.T) {
	store := feed.NewMemStore()
	t.Cleanup(func() { _ = store.Close() })
	pub, _ := genKeyPair(t)

	_, err := store.Open(context.Background(), pub, nil)
	require.Error(t, err)
}

func TestMemFeedAppendReadBlockReadRange(t *testing.T) {
	store := feed.NewMemStore()
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	pub, priv := genKeyPair(t)
	f, err := store.Create(ctx, pub, priv)
	require.NoError(t, err)

	first, err := f.Append(ctx, [][]byte{[]byte("hello"), []byte("world")})
	require.NoError(t, err)
	require.Equal(t, 0, first)
	require.Equal(t, 2, f.Length())
	require.EqualValues(t, 10, f.ByteLength())

	b, err := f.ReadBlock(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "world", string(b))

	rng, err := f.ReadRange(ctx, 3, 5)
	require.NoError(t, err)
	require.Equal(t, "lowor", string(rng))

	_, err = f.ReadBlock(ctx, 5)
	require.Error(t, err)

	_, err = f.ReadRange(ctx, 0, 100)
	require.Error(t, err)
}

func TestMemFeedAppendRejectedOnReadOnlyHandle(t *testing.T) {
	store := feed.NewMemStore()
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	pub, priv := genKeyPair(t)
	_, err := store.Create(ctx, pub, priv)
	require.NoError(t, err)

	ro, err := store.Open(ctx, pub, nil)
	require.NoError(t, err)

	_, err = ro.Append(ctx, [][]byte{[]byte("x")})
	require.Error(t, err)
}

func TestMemFeedUpdateBlocksUntilAppend(t *testing.T) {
	store := feed.NewMemStore()
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	pub, priv := genKeyPair(t)
	f, err := store.Create(ctx, pub, priv)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- f.Update(context.Background()) }()

	select {
	case <-done:
		t.Fatal("Update returned before any block was appended")
	case <-time.After(50 * time.Millisecond):
	}

	_, err = f.Append(ctx, [][]byte{[]byte("x")})
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Update never woke up after Append")
	}
}

func TestMemFeedUpdateRespectsContextCancellation(t *testing.T) {
	store := feed.NewMemStore()
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	pub, priv := genKeyPair(t)
	f, err := store.Create(ctx, pub, priv)
	require.NoError(t, err)

	cancelCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	err = f.Update(cancelCtx)
	require.Error(t, err)
}

func TestMemStoreReplicateSendsAllBlocks(t *testing.T) {
	store := feed.NewMemStore()
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	pub, priv := genKeyPair(t)
	f, err := store.Create(ctx, pub, priv)
	require.NoError(t, err)
	_, err = f.Append(ctx, [][]byte{[]byte("a"), []byte("bc")})
	require.NoError(t, err)

	a, b := net.Pipe()
	t.Cleanup(func() { _ = b.Close() })
	sess, err := store.Replicate(ctx, pub, feed.ReplicateOptions{Stream: a, Initiator: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })

	buf := make([]byte, 4+1+4+2)
	n, err := io.ReadFull(b, buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)

	require.NoError(t, sess.Wait(ctx))
}
