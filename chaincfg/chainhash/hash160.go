// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainhash

import (
	"encoding/hex"
	"fmt"
	"hash"

	"golang.org/x/crypto/ripemd160"
)

// Hash160Size of array used to store 160-bit hashes.  See Hash160.
const Hash160Size = 20

// Hash160 represents the ripemd160(sha512/256(b)) digest of data, used for
// public key hashes and the address portion of principals.
type Hash160 [Hash160Size]byte

// String returns the Hash160 as the hexadecimal string of the hash.
func (hash Hash160) String() string {
	return hex.EncodeToString(hash[:])
}

// SetBytes sets the bytes which represent the hash.  An error is returned if
// the number of bytes passed in is not Hash160Size.
func (hash *Hash160) SetBytes(newHash []byte) error {
	nhlen := len(newHash)
	if nhlen != Hash160Size {
		return fmt.Errorf("invalid hash length of %v, want %v", nhlen,
			Hash160Size)
	}
	copy(hash[:], newHash)

	return nil
}

// IsEqual returns true if target is the same as hash.
func (hash *Hash160) IsEqual(target *Hash160) bool {
	if hash == nil && target == nil {
		return true
	}
	if hash == nil || target == nil {
		return false
	}
	return *hash == *target
}

// Calculate the hash of hasher over buf.
func calcHash(buf []byte, hasher hash.Hash) []byte {
	hasher.Write(buf)
	return hasher.Sum(nil)
}

// Hash160B calculates the hash ripemd160(sha512/256(b)) and returns the
// resulting bytes.
func Hash160B(buf []byte) []byte {
	return calcHash(HashB(buf), ripemd160.New())
}

// Hash160H calculates the hash ripemd160(sha512/256(b)) and returns the
// result as a Hash160.
func Hash160H(buf []byte) Hash160 {
	var h Hash160
	copy(h[:], Hash160B(buf))
	return h
}
