// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bloom

import (
	"sync"
)

// CountingFilter is a bloom filter over a changing set.  Each bit position
// of an equivalent plain filter is backed by a uint32 counter, so items can
// be removed again once they age out of the set being tracked.
type CountingFilter struct {
	mtx       sync.Mutex
	hasher    *NodeHasher
	numBits   uint32
	numHashes uint32
	counts    []uint32
	numItems  uint64
}

// NewCountingFilter returns a counting filter sized for maxItems entries at
// the given false positive rate, hashing items with the passed hasher.
func NewCountingFilter(hasher *NodeHasher, maxItems uint32,
	fpRate float64) *CountingFilter {

	numBits, numHashes := optimalParams(maxItems, fpRate)
	return &CountingFilter{
		hasher:    hasher,
		numBits:   numBits,
		numHashes: numHashes,
		counts:    make([]uint32, numBits),
	}
}

// NewDefaultCountingFilter returns a counting filter with the standard
// mempool reconciliation parameters and a random hasher seed.
func NewDefaultCountingFilter() (*CountingFilter, error) {
	hasher, err := NewRandomNodeHasher()
	if err != nil {
		return nil, err
	}
	return NewCountingFilter(hasher, MaxBloomCounterTxs,
		BloomCounterErrorRate), nil
}

// indexes returns the counter slots the passed data maps to.
//
// This function MUST be called with the filter lock held.
func (cf *CountingFilter) indexes(data []byte) []uint64 {
	idxs := make([]uint64, cf.numHashes)
	for i := uint32(0); i < cf.numHashes; i++ {
		idxs[i] = cf.hasher.Hash(i, data) % uint64(cf.numBits)
	}
	return idxs
}

// contains returns true if every counter slot for data is nonzero.
//
// This function MUST be called with the filter lock held.
func (cf *CountingFilter) contains(data []byte) bool {
	for _, idx := range cf.indexes(data) {
		if cf.counts[idx] == 0 {
			return false
		}
	}
	return true
}

// Contains returns true if the filter might contain the passed data and
// false if it definitely does not.
//
// This function is safe for concurrent access.
func (cf *CountingFilter) Contains(data []byte) bool {
	cf.mtx.Lock()
	present := cf.contains(data)
	cf.mtx.Unlock()
	return present
}

// Insert adds the passed data to the filter, incrementing one counter per
// hash function.  Counters saturate rather than wrap.
//
// This function is safe for concurrent access.
func (cf *CountingFilter) Insert(data []byte) {
	cf.mtx.Lock()
	for _, idx := range cf.indexes(data) {
		if cf.counts[idx] < ^uint32(0) {
			cf.counts[idx]++
		}
	}
	cf.numItems++
	cf.mtx.Unlock()
}

// Remove deletes the passed data from the filter, decrementing the counters
// Insert incremented.  If the filter definitely does not contain the data
// the counters are left untouched and false is returned, so a double remove
// can never underflow slots shared with other items.
//
// This function is safe for concurrent access.
func (cf *CountingFilter) Remove(data []byte) bool {
	cf.mtx.Lock()
	defer cf.mtx.Unlock()

	if !cf.contains(data) {
		return false
	}
	for _, idx := range cf.indexes(data) {
		cf.counts[idx]--
	}
	cf.numItems--
	return true
}

// NumItems returns the number of items inserted and not yet removed.
//
// This function is safe for concurrent access.
func (cf *CountingFilter) NumItems() uint64 {
	cf.mtx.Lock()
	n := cf.numItems
	cf.mtx.Unlock()
	return n
}

// ToFilter snapshots the counting filter down to an immutable bit filter
// suitable for serialization: each bit is set iff its counter is nonzero.
//
// This function is safe for concurrent access.
func (cf *CountingFilter) ToFilter() *Filter {
	cf.mtx.Lock()
	defer cf.mtx.Unlock()

	bits := make([]byte, (cf.numBits+7)/8)
	for i, count := range cf.counts {
		if count > 0 {
			bits[i>>3] |= 1 << (uint(i) & 7)
		}
	}
	return &Filter{
		hasher:    cf.hasher,
		numBits:   cf.numBits,
		numHashes: cf.numHashes,
		bits:      bits,
	}
}
