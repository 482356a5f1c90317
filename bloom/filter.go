// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bloom

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

const (
	// BloomCounterDepth is the number of most recent chain heights whose
	// transactions the mempool keeps in its reconciliation filter.
	BloomCounterDepth = 2

	// MaxBloomCounterTxs is the number of transactions the mempool
	// reconciliation filter is sized for.
	MaxBloomCounterTxs = 8192

	// BloomCounterErrorRate is the target false positive rate of the
	// mempool reconciliation filter.
	BloomCounterErrorRate = 0.001

	// MaxFilterSize is the maximum allowed size in bytes of a serialized
	// filter's bit field.
	MaxFilterSize = 65536
)

// ln2Squared is simply the square of the natural log of 2.
const ln2Squared = math.Ln2 * math.Ln2

// optimalParams returns the number of bits and independent hash functions
// for a filter expected to hold maxItems entries at the given false positive
// rate.  False positive rates outside (0, 1) are clamped to sane values.
func optimalParams(maxItems uint32, fpRate float64) (uint32, uint32) {
	if fpRate > 1.0 {
		fpRate = 1.0
	}
	if fpRate < 1e-9 {
		fpRate = 1e-9
	}

	// Equivalent to m = -(n*ln(p) / ln(2)^2), where m is in bits.
	numBits := uint32(-1 * float64(maxItems) * math.Log(fpRate) / ln2Squared)
	if numBits > MaxFilterSize*8 {
		numBits = MaxFilterSize * 8
	}
	if numBits == 0 {
		numBits = 1
	}

	// Equivalent to k = (m/n) * ln(2).
	numHashes := uint32(float64(numBits) / float64(maxItems) * math.Ln2)
	if numHashes == 0 {
		numHashes = 1
	}

	return numBits, numHashes
}

// Filter is an immutable bloom filter bit field together with the hasher
// seed needed to query it.  It is the form that travels on the wire during
// mempool reconciliation.
//
// A Filter is read-only after construction and is therefore safe for
// concurrent access without locking.
type Filter struct {
	hasher    *NodeHasher
	numBits   uint32
	numHashes uint32
	bits      []byte
}

// NumBits returns the number of bit positions in the filter.
func (f *Filter) NumBits() uint32 {
	return f.numBits
}

// NumHashes returns the number of independent hash functions the filter
// applies per item.
func (f *Filter) NumHashes() uint32 {
	return f.numHashes
}

// Contains returns true if the filter might contain the passed raw bytes and
// false if it definitely does not.
func (f *Filter) Contains(data []byte) bool {
	// The filter does not contain the data if any of the bit offsets
	// which result from hashing the data using each independent hash
	// function are not set.  The shifts and masks below are a faster
	// equivalent of:
	//   arrayIndex := idx / 8     (idx >> 3)
	//   bitOffset := idx % 8      (idx & 7)
	for i := uint32(0); i < f.numHashes; i++ {
		idx := f.hasher.Hash(i, data) % uint64(f.numBits)
		if f.bits[idx>>3]&(1<<(idx&7)) == 0 {
			return false
		}
	}
	return true
}

// Serialize writes the filter to w as seed, bit count, hash function count,
// and the length-prefixed bit field.
func (f *Filter) Serialize(w io.Writer) error {
	seed := f.hasher.Seed()
	if _, err := w.Write(seed[:]); err != nil {
		return err
	}

	var buf [12]byte
	binary.BigEndian.PutUint32(buf[0:4], f.numBits)
	binary.BigEndian.PutUint32(buf[4:8], f.numHashes)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(f.bits)))
	if _, err := w.Write(buf[:]); err != nil {
		return err
	}

	_, err := w.Write(f.bits)
	return err
}

// Deserialize reads a filter from r, validating that the bit field length
// agrees with the declared bit count.
func (f *Filter) Deserialize(r io.Reader) error {
	var seed [HasherSeedSize]byte
	if _, err := io.ReadFull(r, seed[:]); err != nil {
		return err
	}

	var buf [12]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	numBits := binary.BigEndian.Uint32(buf[0:4])
	numHashes := binary.BigEndian.Uint32(buf[4:8])
	bitsLen := binary.BigEndian.Uint32(buf[8:12])

	if numBits == 0 || numHashes == 0 {
		return fmt.Errorf("filter declares %d bits and %d hash "+
			"functions", numBits, numHashes)
	}
	if bitsLen > MaxFilterSize {
		return fmt.Errorf("filter bit field of %d bytes exceeds max "+
			"of %d", bitsLen, MaxFilterSize)
	}
	if uint64(bitsLen) != (uint64(numBits)+7)/8 {
		return fmt.Errorf("filter bit field of %d bytes does not "+
			"cover %d bits", bitsLen, numBits)
	}

	bits := make([]byte, bitsLen)
	if _, err := io.ReadFull(r, bits); err != nil {
		return err
	}

	f.hasher = NewNodeHasher(seed)
	f.numBits = numBits
	f.numHashes = numHashes
	f.bits = bits
	return nil
}

// SerializeSize returns the number of bytes it would take to serialize the
// filter.
func (f *Filter) SerializeSize() int {
	return HasherSeedSize + 12 + len(f.bits)
}
