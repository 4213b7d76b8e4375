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

package descriptor_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driveup/hyperdrive/internal/clock"
	"github.com/driveup/hyperdrive/internal/content"
	"github.com/driveup/hyperdrive/internal/descriptor"
	"github.com/driveup/hyperdrive/internal/feed"
	"github.com/driveup/hyperdrive/internal/statcodec"
)

func newTestContent(t *testing.T) *content.State {
	t.Helper()
	store := feed.NewMemStore()
	t.Cleanup(func() { _ = store.Close() })
	pub, priv, err := feed.GenerateKeyPair(rand.Reader)
	require.NoError(t, err)
	f, err := store.Create(context.Background(), pub, priv)
	require.NoError(t, err)
	return content.New(f)
}

func TestReaderDescriptorReadsWithinAndPastEOF(t *testing.T) {
	cs := newTestContent(t)
	ctx := context.Background()

	_, err := cs.Feed.Append(ctx, [][]byte{[]byte("hello")})
	require.NoError(t, err)

	st := statcodec.NewFile(0o100644, 0, 0, 5, 1, 0, 0, clock.RealClock{}.Now(), clock.RealClock{}.Now())
	d := descriptor.Open("/a.txt", 0, st, cs, nil, nil, clock.RealClock{})

	buf := make([]byte, 10)
	n, err := d.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))

	n, err = d.ReadAt(ctx, buf, 5)
	require.NoError(t, err)
	require.Equal(t, 0, n, "reads starting exactly at EOF return 0, not an error")

	n, err = d.ReadAt(ctx, buf, 2)
	require.NoError(t, err)
	require.Equal(t, "llo", string(buf[:n]))
}

func TestReaderCursorAdvancesAndSignalsEOF(t *testing.T) {
	cs := newTestContent(t)
	ctx := context.Background()
	_, err := cs.Feed.Append(ctx, [][]byte{[]byte("ab")})
	require.NoError(t, err)

	st := statcodec.NewFile(0o100644, 0, 0, 2, 1, 0, 0, clock.RealClock{}.Now(), clock.RealClock{}.Now())
	d := descriptor.Open("/a.txt", 0, st, cs, nil, nil, clock.RealClock{})

	buf := make([]byte, 1)
	n, err := d.Read(ctx, buf)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "a", string(buf[:n]))

	n, err = d.Read(ctx, buf)
	require.NoError(t, err)
	require.Equal(t, "b", string(buf[:n]))

	_, err = d.Read(ctx, buf)
	require.ErrorIs(t, err, io.EOF)
}

func TestWriterAppendsAndCommits(t *testing.T) {
	cs := newTestContent(t)
	ctx := context.Background()

	release, err := cs.Acquire(ctx, "writer")
	require.NoError(t, err)

	var committed *statcodec.Stat
	commit := func(ctx context.Context, path string, s *statcodec.Stat) error {
		committed = s
		return nil
	}

	st := statcodec.NewFile(0o100644, 0, 0, 0, 0, 0, 0, clock.RealClock{}.Now(), clock.RealClock{}.Now())
	d := descriptor.Open("/a.txt", 0, st, cs, release, commit, clock.RealClock{})
	require.True(t, d.IsWriter())

	n, err := d.Write(ctx, []byte("abc"))
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.NotNil(t, committed)
	require.EqualValues(t, 3, committed.Size)
	require.EqualValues(t, 1, committed.Blocks)

	require.NoError(t, d.Close())
}

func TestWriteOnNonWriterFails(t *testing.T) {
	cs := newTestContent(t)
	st := statcodec.NewFile(0o100644, 0, 0, 0, 0, 0, 0, clock.RealClock{}.Now(), clock.RealClock{}.Now())
	d := descriptor.Open("/a.txt", 0, st, cs, nil, nil, clock.RealClock{})

	_, err := d.Write(context.Background(), []byte("x"))
	require.Error(t, err)
}

func TestWriteZerosAppendsExactByteCount(t *testing.T) {
	cs := newTestContent(t)
	ctx := context.Background()
	release, err := cs.Acquire(ctx, "writer")
	require.NoError(t, err)

	st := statcodec.NewFile(0o100644, 0, 0, 0, 0, 0, 0, clock.RealClock{}.Now(), clock.RealClock{}.Now())
	d := descriptor.Open("/a.txt", 0, st, cs, release, nil, clock.RealClock{})

	n, err := d.WriteZeros(ctx, 5)
	require.NoError(t, err)
	require.EqualValues(t, 5, n)

	buf := make([]byte, 5)
	got, err := d.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	require.Equal(t, 5, got)
	require.Equal(t, []byte{0, 0, 0, 0, 0}, buf)

	require.NoError(t, d.Close())
}

func TestSeekWhences(t *testing.T) {
	cs := newTestContent(t)
	st := statcodec.NewFile(0o100644, 0, 0, 10, 1, 0, 0, clock.RealClock{}.Now(), clock.RealClock{}.Now())
	d := descriptor.Open("/a.txt", 0, st, cs, nil, nil, clock.RealClock{})

	pos, err := d.Seek(3, io.SeekStart)
	require.NoError(t, err)
	require.EqualValues(t, 3, pos)

	pos, err = d.Seek(2, io.SeekCurrent)
	require.NoError(t, err)
	require.EqualValues(t, 5, pos)

	pos, err = d.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	require.EqualValues(t, 10, pos)

	_, err = d.Seek(-100, io.SeekStart)
	require.Error(t, err)
}

func TestCloseReleasesLockExactlyOnce(t *testing.T) {
	cs := newTestContent(t)
	ctx := context.Background()
	release, err := cs.Acquire(ctx, "writer")
	require.NoError(t, err)

	st := statcodec.NewFile(0o100644, 0, 0, 0, 0, 0, 0, clock.RealClock{}.Now(), clock.RealClock{}.Now())
	d := descriptor.Open("/a.txt", 0, st, cs, release, nil, clock.RealClock{})

	require.NoError(t, d.Close())
	require.NoError(t, d.Close(), "Close must be idempotent")

	// The lock must actually be free now.
	r2, err := cs.Acquire(ctx, "next")
	require.NoError(t, err)
	r2()
}
