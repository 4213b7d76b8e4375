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

package trie

import "errors"

var (
	// ErrExists is returned by a conditional Put when name already
	// resolves to a node.
	ErrExists = errors.New("trie: entry already exists")
	// ErrNotFound is returned by Del when name has no entry.
	ErrNotFound = errors.New("trie: entry not found")
	// ErrNoSuchVersion is returned by Checkout for an unknown version.
	ErrNoSuchVersion = errors.New("trie: no such version")
)
