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

package drive_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driveup/hyperdrive/internal/clock"
	"github.com/driveup/hyperdrive/internal/drive"
	"github.com/driveup/hyperdrive/internal/driveerr"
	"github.com/driveup/hyperdrive/internal/events"
	"github.com/driveup/hyperdrive/internal/feed"
	"github.com/driveup/hyperdrive/internal/metrics"
	"github.com/driveup/hyperdrive/internal/statcodec"
)

func openTestDrive(t *testing.T) *drive.Drive {
	t.Helper()
	store := feed.NewMemStore()
	d, err := drive.Open(context.Background(), store, nil, drive.Options{
		Clock:   &clock.FakeClock{},
		Metrics: metrics.Noop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// Scenario 1: an empty drive's root reads back as a directory with no
// entries.
func TestEmptyDriveRoot(t *testing.T) {
	d := openTestDrive(t)
	ctx := context.Background()

	names, err := d.Readdir(ctx, "/", false)
	require.NoError(t, err)
	require.Empty(t, names)

	st, _, err := d.Stat(ctx, "/", drive.LstatOptions{})
	require.NoError(t, err)
	require.Equal(t, statcodec.KindDirectory, st.Kind)
}

// Scenario 2: writeFile/readFile round trip, and size matches.
func TestWriteFileReadFileRoundTrip(t *testing.T) {
	d := openTestDrive(t)
	ctx := context.Background()

	st, err := d.WriteFile(ctx, "/a.txt", []byte("hello"), drive.StatOpts{Mode: 0o100644})
	require.NoError(t, err)
	require.EqualValues(t, 5, st.Size)

	got, err := d.ReadFileString(ctx, "/a.txt")
	require.NoError(t, err)
	require.Equal(t, "hello", got)

	st2, _, err := d.Stat(ctx, "/a.txt", drive.LstatOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 5, st2.Size)
}

// Scenario 3: successive writeFile calls to the same path each commit
// their own stat; the latest write wins on read.
func TestWriteFileOverwrite(t *testing.T) {
	d := openTestDrive(t)
	ctx := context.Background()

	_, err := d.WriteFile(ctx, "/a.txt", []byte("ABCDE"), drive.StatOpts{Mode: 0o100644})
	require.NoError(t, err)
	_, err = d.WriteFile(ctx, "/a.txt", []byte("XY"), drive.StatOpts{Mode: 0o100644})
	require.NoError(t, err)

	got, err := d.ReadFileString(ctx, "/a.txt")
	require.NoError(t, err)
	require.Equal(t, "XY", got)
}

// Scenario 4: mkdir twice on the same path fails PathAlreadyExists the
// second time.
func TestMkdirCollision(t *testing.T) {
	d := openTestDrive(t)
	ctx := context.Background()

	_, err := d.Mkdir(ctx, "/d", drive.StatOpts{Mode: 0o40755})
	require.NoError(t, err)

	_, err = d.Mkdir(ctx, "/d", drive.StatOpts{Mode: 0o40755})
	require.Error(t, err)
	require.True(t, driveerr.Is(err, driveerr.KindPathAlreadyExists))
}

// Scenario 5: rmdir fails DirectoryNotEmpty iff readdir is non-empty.
func TestRmdirRequiresEmpty(t *testing.T) {
	d := openTestDrive(t)
	ctx := context.Background()

	_, err := d.Mkdir(ctx, "/d", drive.StatOpts{Mode: 0o40755})
	require.NoError(t, err)
	_, err = d.WriteFile(ctx, "/d/f", []byte("x"), drive.StatOpts{Mode: 0o100644})
	require.NoError(t, err)

	err = d.Rmdir(ctx, "/d")
	require.Error(t, err)
	require.True(t, driveerr.Is(err, driveerr.KindDirectoryNotEmpty))

	require.NoError(t, d.Unlink(ctx, "/d/f"))
	require.NoError(t, d.Rmdir(ctx, "/d"))
}

// The drive emits an update event on every metadata-feed mutation:
// stat puts (mkdir, writeFile) and deletes (unlink, rmdir) alike.
func TestUpdateEventFiresOnMetadataMutation(t *testing.T) {
	d := openTestDrive(t)
	ctx := context.Background()

	var updates []string
	cancel := d.On(events.Update, func(ev events.Event) { updates = append(updates, ev.Name) })
	defer cancel()

	_, err := d.Mkdir(ctx, "/d", drive.StatOpts{Mode: 0o40755})
	require.NoError(t, err)
	_, err = d.WriteFile(ctx, "/d/f", []byte("x"), drive.StatOpts{Mode: 0o100644})
	require.NoError(t, err)
	require.NoError(t, d.Unlink(ctx, "/d/f"))
	require.NoError(t, d.Rmdir(ctx, "/d"))

	require.Equal(t, []string{"/d", "/d/f", "/d/f", "/d"}, updates)
}

// Scenario 6: truncate shrinks and grows a file's contents.
func TestTruncateShrinkAndGrow(t *testing.T) {
	d := openTestDrive(t)
	ctx := context.Background()

	_, err := d.WriteFile(ctx, "/a", []byte("0123456789"), drive.StatOpts{Mode: 0o100644})
	require.NoError(t, err)

	_, err = d.Truncate(ctx, "/a", 4)
	require.NoError(t, err)
	got, err := d.ReadFileString(ctx, "/a")
	require.NoError(t, err)
	require.Equal(t, "0123", got)

	_, err = d.Truncate(ctx, "/a", 6)
	require.NoError(t, err)
	got, err = d.ReadFileString(ctx, "/a")
	require.NoError(t, err)
	require.Equal(t, "0123\x00\x00", got)
}

// Scenario 7: stat follows exactly one level of symlink; lstat follows
// none.
func TestSymlinkStatVsLstat(t *testing.T) {
	d := openTestDrive(t)
	ctx := context.Background()

	target, err := d.WriteFile(ctx, "/a.txt", []byte("hello"), drive.StatOpts{Mode: 0o100644})
	require.NoError(t, err)

	_, err = d.Symlink(ctx, "/a.txt", "/l", drive.StatOpts{Mode: 0o120777})
	require.NoError(t, err)

	followed, _, err := d.Stat(ctx, "/l", drive.LstatOptions{})
	require.NoError(t, err)
	require.Equal(t, target.Size, followed.Size)

	raw, _, err := d.Lstat(ctx, "/l", drive.LstatOptions{})
	require.NoError(t, err)
	require.Equal(t, "/a.txt", raw.LinkName)
}

// Scenario 8: a checkout taken before a later write keeps resolving the
// prior contents, and does not observe writes made after it was taken.
func TestCheckoutIsolation(t *testing.T) {
	d := openTestDrive(t)
	ctx := context.Background()

	_, err := d.WriteFile(ctx, "/a.txt", []byte("v1"), drive.StatOpts{Mode: 0o100644})
	require.NoError(t, err)

	_, owner, err := d.Stat(ctx, "/a.txt", drive.LstatOptions{WantTrie: true})
	require.NoError(t, err)
	v1Version := owner.Version()

	view, err := d.Checkout(v1Version)
	require.NoError(t, err)
	t.Cleanup(func() { _ = view.Close() })

	got, err := view.ReadFileString(ctx, "/a.txt")
	require.NoError(t, err)
	require.Equal(t, "v1", got)

	_, err = d.WriteFile(ctx, "/a.txt", []byte("v2"), drive.StatOpts{Mode: 0o100644})
	require.NoError(t, err)

	stillOld, err := view.ReadFileString(ctx, "/a.txt")
	require.NoError(t, err)
	require.Equal(t, "v1", stillOld)

	latest, err := d.ReadFileString(ctx, "/a.txt")
	require.NoError(t, err)
	require.Equal(t, "v2", latest)
}

// Quantified invariant: a byte-range read of the content feed at
// [stat.byteOffset, stat.byteOffset+stat.size) returns exactly the
// written bytes, via the streaming read path.
func TestCreateReadStreamMatchesContent(t *testing.T) {
	d := openTestDrive(t)
	ctx := context.Background()

	_, err := d.WriteFile(ctx, "/a.txt", []byte("hello world"), drive.StatOpts{Mode: 0o100644})
	require.NoError(t, err)

	rs, err := d.CreateReadStream(ctx, "/a.txt", drive.ReadOptions{})
	require.NoError(t, err)

	buf := make([]byte, 64)
	n, err := rs.ReadContext(ctx, buf)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(buf[:n]))
}

// Quantified invariant: a write stream's post-commit size matches bytes
// written and the feed-length deltas.
func TestCreateWriteStreamAccounting(t *testing.T) {
	d := openTestDrive(t)
	ctx := context.Background()

	ws, err := d.CreateWriteStream(ctx, "/stream.txt", drive.StatOpts{Mode: 0o100644})
	require.NoError(t, err)

	n, err := ws.Write(ctx, []byte("abc"))
	require.NoError(t, err)
	require.Equal(t, 3, n)
	n, err = ws.Write(ctx, []byte("defg"))
	require.NoError(t, err)
	require.Equal(t, 4, n)

	st, err := ws.Finish(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 7, st.Size)
	require.EqualValues(t, 2, st.Blocks)

	got, err := d.ReadFileString(ctx, "/stream.txt")
	require.NoError(t, err)
	require.Equal(t, "abcdefg", got)
}
