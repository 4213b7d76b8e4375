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

// Package driveerr defines the drive's error kinds and their POSIX-style
// errno mapping, per the propagation policy: operation errors travel
// through the operation's own return value, bring-up errors are both
// returned and emitted on the drive, and asynchronous feed errors are
// emitted only.
package driveerr

import "fmt"

// Kind identifies one of the drive's error categories.
type Kind int

const (
	// KindBackend wraps an error returned by the feed or trie collaborator.
	KindBackend Kind = iota
	KindFileNotFound
	KindPathAlreadyExists
	KindDirectoryNotEmpty
	KindBadFileDescriptor
	KindDecodeError
)

// Error is the concrete error type returned by every drive operation that
// fails for one of the reasons spec.md §7 names.
type Error struct {
	Kind Kind
	Path string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.message())
	}
	return fmt.Sprintf("%s: %s", e.Op, e.message())
}

func (e *Error) message() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Errno returns the POSIX errno this error kind maps to, or 0 if there is
// no sensible mapping (PathAlreadyExists, DirectoryNotEmpty,
// BadFileDescriptor and DecodeError have no single-number mapping spec.md
// calls out; only FileNotFound's errno is load-bearing, since compound
// operations special-case errno 2 as "absent, not a fault").
func (e *Error) Errno() int {
	if e.Kind == KindFileNotFound {
		return 2
	}
	return 0
}

func (k Kind) String() string {
	switch k {
	case KindFileNotFound:
		return "file not found"
	case KindPathAlreadyExists:
		return "path already exists"
	case KindDirectoryNotEmpty:
		return "directory not empty"
	case KindBadFileDescriptor:
		return "bad file descriptor"
	case KindDecodeError:
		return "decode error"
	default:
		return "backend error"
	}
}

func New(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

func FileNotFound(op, path string) *Error {
	return &Error{Kind: KindFileNotFound, Op: op, Path: path}
}

func PathAlreadyExists(op, path string) *Error {
	return &Error{Kind: KindPathAlreadyExists, Op: op, Path: path}
}

func DirectoryNotEmpty(op, path string) *Error {
	return &Error{Kind: KindDirectoryNotEmpty, Op: op, Path: path}
}

func BadFileDescriptor(op string) *Error {
	return &Error{Kind: KindBadFileDescriptor, Op: op}
}

func DecodeError(op, path string, err error) *Error {
	return &Error{Kind: KindDecodeError, Op: op, Path: path, Err: err}
}

func Backend(op string, err error) *Error {
	return &Error{Kind: KindBackend, Op: op, Err: err}
}

// Is reports whether err carries the given Kind, unwrapping through any
// number of wrapping errors.
func Is(err error, kind Kind) bool {
	var de *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			de = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return de != nil && de.Kind == kind
}

// IsNotExist is the errno-2 special case compound operations (truncate,
// create, symlink, createWriteStream) rely on: "absent, not a fault".
func IsNotExist(err error) bool {
	return Is(err, KindFileNotFound)
}
