// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bloom

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/aead/siphash"
)

// HasherSeedSize is the number of bytes in a NodeHasher seed.
const HasherSeedSize = 32

// NodeHasher derives a family of independent hash functions from a single
// 32-byte seed.  The first half of the seed keys siphash-2-4 and the second
// half is mixed into the message, so filters built by different nodes place
// the same item at unrelated bit positions.
type NodeHasher struct {
	seed [HasherSeedSize]byte
}

// NewNodeHasher returns a hasher for the given seed.
func NewNodeHasher(seed [HasherSeedSize]byte) *NodeHasher {
	return &NodeHasher{seed: seed}
}

// NewRandomNodeHasher returns a hasher seeded from the system's
// cryptographically secure random number generator.
func NewRandomNodeHasher() (*NodeHasher, error) {
	var seed [HasherSeedSize]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, err
	}
	return NewNodeHasher(seed), nil
}

// Seed returns the seed the hasher was built from.
func (h *NodeHasher) Seed() [HasherSeedSize]byte {
	return h.seed
}

// Hash returns the value of independent hash function hashNum over data.
func (h *NodeHasher) Hash(hashNum uint32, data []byte) uint64 {
	var key [siphash.KeySize]byte
	copy(key[:], h.seed[:siphash.KeySize])

	msg := make([]byte, 0, len(data)+HasherSeedSize-siphash.KeySize+4)
	msg = append(msg, data...)
	msg = append(msg, h.seed[siphash.KeySize:]...)
	msg = binary.BigEndian.AppendUint32(msg, hashNum)

	return siphash.Sum64(msg, &key)
}
