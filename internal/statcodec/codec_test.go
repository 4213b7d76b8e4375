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

package statcodec_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/driveup/hyperdrive/internal/statcodec"
)

func TestEncodeDecodeFile(t *testing.T) {
	now := time.Unix(1700000000, 123456789).UTC()
	s := statcodec.NewFile(0o100644, 1000, 1000, 11, 2, 3, 40, now, now)

	got, err := statcodec.Decode(statcodec.Encode(s))
	require.NoError(t, err)

	require.Equal(t, statcodec.KindFile, got.Kind)
	require.EqualValues(t, 0o100644, got.Mode)
	require.EqualValues(t, 1000, got.UID)
	require.EqualValues(t, 1000, got.GID)
	require.EqualValues(t, 11, got.Size)
	require.EqualValues(t, 2, got.Blocks)
	require.EqualValues(t, 3, got.Offset)
	require.EqualValues(t, 40, got.ByteOffset)
	require.True(t, now.Equal(got.Mtime))
	require.True(t, now.Equal(got.Ctime))
	require.False(t, got.IsMount())
}

func TestEncodeDecodeDirectory(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	s := statcodec.NewDirectory(0o40755, 0, 0, now, now)

	got, err := statcodec.Decode(statcodec.Encode(s))
	require.NoError(t, err)

	require.Equal(t, statcodec.KindDirectory, got.Kind)
	// Directory-only stats never carry file-range fields.
	require.Zero(t, got.Size)
	require.Zero(t, got.Blocks)
}

func TestEncodeDecodeSymlink(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	s := statcodec.NewSymlink(0o120777, 0, 0, "/target.txt", now, now)

	got, err := statcodec.Decode(statcodec.Encode(s))
	require.NoError(t, err)

	require.Equal(t, statcodec.KindSymlink, got.Kind)
	require.Equal(t, "/target.txt", got.LinkName)
}

func TestEncodeDecodeMountAttachment(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	s := statcodec.NewDirectory(0o40755, 0, 0, now, now)
	s.Mount = &statcodec.Mount{
		Key:        []byte{1, 2, 3, 4},
		Version:    7,
		HasVersion: true,
		Hypercore:  true,
	}

	got, err := statcodec.Decode(statcodec.Encode(s))
	require.NoError(t, err)

	require.True(t, got.IsMount())
	require.Equal(t, []byte{1, 2, 3, 4}, got.Mount.Key)
	require.True(t, got.Mount.HasVersion)
	require.EqualValues(t, 7, got.Mount.Version)
	require.False(t, got.Mount.HasHash)
	require.True(t, got.Mount.Hypercore)
}

func TestEncodeDecodeMountWithHashNoVersion(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	s := statcodec.NewDirectory(0o40755, 0, 0, now, now)
	s.Mount = &statcodec.Mount{
		Key:     []byte{9, 9},
		Hash:    []byte{5, 6, 7},
		HasHash: true,
	}

	got, err := statcodec.Decode(statcodec.Encode(s))
	require.NoError(t, err)

	require.False(t, got.Mount.HasVersion)
	require.True(t, got.Mount.HasHash)
	require.Equal(t, []byte{5, 6, 7}, got.Mount.Hash)
	require.False(t, got.Mount.Hypercore)
}

func TestDecodeMalformedBlob(t *testing.T) {
	_, err := statcodec.Decode([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff})
	require.Error(t, err)
}

func TestCloneDoesNotAliasMount(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	s := statcodec.NewDirectory(0o40755, 0, 0, now, now)
	s.Mount = &statcodec.Mount{Key: []byte{1}}

	cp := s.Clone()
	cp.Mount.Key[0] = 2

	require.EqualValues(t, 1, s.Mount.Key[0], "cloning must deep-copy the Mount field")
}
