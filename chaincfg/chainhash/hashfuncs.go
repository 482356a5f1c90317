// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainhash

import "crypto/sha512"

// HashB calculates sha512/256(b) and returns the resulting bytes.
func HashB(b []byte) []byte {
	hash := sha512.Sum512_256(b)
	return hash[:]
}

// HashH calculates sha512/256(b) and returns the resulting bytes as a Hash.
func HashH(b []byte) Hash {
	return Hash(sha512.Sum512_256(b))
}
