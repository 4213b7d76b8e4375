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

package feed

import (
	"crypto/ed25519"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/hkdf"
)

// hkdfInfo namespaces the content-key derivation so it can never collide
// with some other derived key drawn from the same metadata secret.
const hkdfInfo = "hyperdrive/content-feed-keypair"

// GenerateKeyPair creates a brand-new random Ed25519 keypair for a
// freshly initialized metadata feed.
func GenerateKeyPair(rand io.Reader) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand)
}

// DeriveContentKeyPair deterministically derives the content feed's
// keypair from the metadata feed's secret key (spec.md §4.1 step 3,
// §6's "Content-key derivation"): reopening the same drive from the same
// metadata secret always yields the same content keypair, without
// storing the content secret anywhere.
//
// The derivation is HKDF-BLAKE2b over the metadata secret's seed,
// producing a 32-byte Ed25519 seed for the content key. BLAKE2b is used
// because it is the hash hypercore itself uses; HKDF gives the
// standard domain-separated "derive key B from key A" construction
// rather than hashing the seed directly.
func DeriveContentKeyPair(metadataSecret ed25519.PrivateKey) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	seed := metadataSecret.Seed()

	newBlake2b := func() hash.Hash {
		hh, _ := blake2b.New256(nil)
		return hh
	}
	h := hkdf.New(newBlake2b, seed, nil, []byte(hkdfInfo))

	contentSeed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(h, contentSeed); err != nil {
		return nil, nil, fmt.Errorf("DeriveContentKeyPair: %w", err)
	}

	priv := ed25519.NewKeyFromSeed(contentSeed)
	return priv.Public().(ed25519.PublicKey), priv, nil
}

// DiscoveryKey derives the public, non-secret rendezvous identifier for a
// feed's public key: BLAKE2b-keyed-hash of a fixed namestring, keyed by
// the feed's public key, following hypercore's own discovery-key
// construction so peers can announce/look up a drive without revealing
// which public key they're serving.
func DiscoveryKey(pub ed25519.PublicKey) ([]byte, error) {
	mac, err := blake2b.New256(pub)
	if err != nil {
		return nil, fmt.Errorf("DiscoveryKey: %w", err)
	}
	if _, err := mac.Write([]byte("hyperdrive")); err != nil {
		return nil, fmt.Errorf("DiscoveryKey: %w", err)
	}
	return mac.Sum(nil), nil
}
