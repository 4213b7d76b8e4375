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

package statcodec

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers for the top-level Stat message. Kept stable: this is the
// wire-compatibility surface spec.md §6 calls out.
const (
	fieldKind       = 1
	fieldMode       = 2
	fieldUID        = 3
	fieldGID        = 4
	fieldSize       = 5
	fieldBlocks     = 6
	fieldOffset     = 7
	fieldByteOffset = 8
	fieldMtimeNanos = 9
	fieldCtimeNanos = 10
	fieldLinkName   = 11
	fieldMount      = 12
)

// Field numbers for the embedded Mount message.
const (
	mountFieldKey       = 1
	mountFieldVersion   = 2
	mountFieldHash      = 3
	mountFieldHypercore = 4
)

// Encode serializes s as a protobuf-wire-format byte blob suitable for
// storage as a trie value.
func Encode(s *Stat) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.Kind))
	b = protowire.AppendTag(b, fieldMode, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.Mode))
	b = protowire.AppendTag(b, fieldUID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.UID))
	b = protowire.AppendTag(b, fieldGID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.GID))

	if s.Kind == KindFile {
		b = protowire.AppendTag(b, fieldSize, protowire.VarintType)
		b = protowire.AppendVarint(b, s.Size)
		b = protowire.AppendTag(b, fieldBlocks, protowire.VarintType)
		b = protowire.AppendVarint(b, s.Blocks)
		b = protowire.AppendTag(b, fieldOffset, protowire.VarintType)
		b = protowire.AppendVarint(b, s.Offset)
		b = protowire.AppendTag(b, fieldByteOffset, protowire.VarintType)
		b = protowire.AppendVarint(b, s.ByteOffset)
	}

	b = protowire.AppendTag(b, fieldMtimeNanos, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.Mtime.UnixNano()))
	b = protowire.AppendTag(b, fieldCtimeNanos, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.Ctime.UnixNano()))

	if s.Kind == KindSymlink {
		b = protowire.AppendTag(b, fieldLinkName, protowire.BytesType)
		b = protowire.AppendString(b, s.LinkName)
	}

	if s.Mount != nil {
		mb := encodeMount(s.Mount)
		b = protowire.AppendTag(b, fieldMount, protowire.BytesType)
		b = protowire.AppendBytes(b, mb)
	}

	return b
}

func encodeMount(m *Mount) []byte {
	var b []byte
	b = protowire.AppendTag(b, mountFieldKey, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Key)
	if m.HasVersion {
		b = protowire.AppendTag(b, mountFieldVersion, protowire.VarintType)
		b = protowire.AppendVarint(b, m.Version)
	}
	if m.HasHash {
		b = protowire.AppendTag(b, mountFieldHash, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Hash)
	}
	b = protowire.AppendTag(b, mountFieldHypercore, protowire.VarintType)
	b = protowire.AppendVarint(b, boolToVarint(m.Hypercore))
	return b
}

func boolToVarint(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}

// Decode parses a blob produced by Encode. A malformed blob yields an
// error the drive core wraps as driveerr.DecodeError (spec.md §7).
func Decode(blob []byte) (*Stat, error) {
	s := &Stat{}

	b := blob
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("statcodec: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case fieldKind:
			v, n, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			s.Kind = Kind(v)
			b = b[n:]
		case fieldMode:
			v, n, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			s.Mode = uint32(v)
			b = b[n:]
		case fieldUID:
			v, n, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			s.UID = uint32(v)
			b = b[n:]
		case fieldGID:
			v, n, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			s.GID = uint32(v)
			b = b[n:]
		case fieldSize:
			v, n, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			s.Size = v
			b = b[n:]
		case fieldBlocks:
			v, n, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			s.Blocks = v
			b = b[n:]
		case fieldOffset:
			v, n, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			s.Offset = v
			b = b[n:]
		case fieldByteOffset:
			v, n, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			s.ByteOffset = v
			b = b[n:]
		case fieldMtimeNanos:
			v, n, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			s.Mtime = time.Unix(0, int64(v)).UTC()
			b = b[n:]
		case fieldCtimeNanos:
			v, n, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			s.Ctime = time.Unix(0, int64(v)).UTC()
			b = b[n:]
		case fieldLinkName:
			v, n, err := consumeBytes(b)
			if err != nil {
				return nil, err
			}
			s.LinkName = string(v)
			b = b[n:]
		case fieldMount:
			v, n, err := consumeBytes(b)
			if err != nil {
				return nil, err
			}
			m, err := decodeMount(v)
			if err != nil {
				return nil, err
			}
			s.Mount = m
			b = b[n:]
		default:
			n, err := skipField(b, typ)
			if err != nil {
				return nil, err
			}
			b = b[n:]
		}
	}

	return s, nil
}

func decodeMount(blob []byte) (*Mount, error) {
	m := &Mount{}
	b := blob
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("statcodec: bad mount tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case mountFieldKey:
			v, n, err := consumeBytes(b)
			if err != nil {
				return nil, err
			}
			m.Key = append([]byte{}, v...)
			b = b[n:]
		case mountFieldVersion:
			v, n, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			m.Version = v
			m.HasVersion = true
			b = b[n:]
		case mountFieldHash:
			v, n, err := consumeBytes(b)
			if err != nil {
				return nil, err
			}
			m.Hash = append([]byte{}, v...)
			m.HasHash = true
			b = b[n:]
		case mountFieldHypercore:
			v, n, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			m.Hypercore = v != 0
			b = b[n:]
		default:
			n, err := skipField(b, typ)
			if err != nil {
				return nil, err
			}
			b = b[n:]
		}
	}
	return m, nil
}

func consumeVarint(b []byte) (uint64, int, error) {
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, fmt.Errorf("statcodec: bad varint: %w", protowire.ParseError(n))
	}
	return v, n, nil
}

func consumeBytes(b []byte) ([]byte, int, error) {
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, fmt.Errorf("statcodec: bad bytes field: %w", protowire.ParseError(n))
	}
	return v, n, nil
}

func skipField(b []byte, typ protowire.Type) (int, error) {
	n := protowire.ConsumeFieldValue(0, typ, b)
	if n < 0 {
		return 0, fmt.Errorf("statcodec: bad field: %w", protowire.ParseError(n))
	}
	return n, nil
}
