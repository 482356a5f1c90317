// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainstate

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/embersuite/emberd/chaincfg"
	"github.com/embersuite/emberd/chaincfg/chainhash"
	"github.com/embersuite/emberd/database"
)

var (
	// hdrKeyPrefix is the database key prefix for burn header hashes.  The
	// remainder of the key is the big-endian block height, so iteration
	// order matches height order.
	hdrKeyPrefix = []byte("hdr-")

	// hdrTipKey is the database key holding the highest indexed height.
	hdrTipKey = []byte("hdrtip")
)

// hdrKey returns the database key for the header hash at the given height.
func hdrKey(height uint64) []byte {
	key := make([]byte, len(hdrKeyPrefix)+8)
	copy(key, hdrKeyPrefix)
	binary.BigEndian.PutUint64(key[len(hdrKeyPrefix):], height)
	return key
}

// View is a snapshot of this node's burnchain view.  Conversations stamp it
// into outgoing preambles and validate incoming preambles against it.
type View struct {
	// BurnBlockHeight and BurnBlockHash are the current burnchain tip.
	BurnBlockHeight uint64
	BurnBlockHash   chainhash.Hash

	// StableHeight and StableHash are the deeply-confirmed burnchain
	// block, StableConfirmations blocks below the tip.
	StableHeight uint64
	StableHash   chainhash.Hash

	// LastHashes maps recent burn block heights to their header hashes.
	// It covers the stable confirmation window plus the maximum block
	// delay a neighbor is allowed to lag, so a peer's claimed stable
	// hash can be cross-checked even when that peer is behind.
	LastHashes map[uint64]chainhash.Hash
}

// HashAt returns the burn header hash the view knows for the given height
// and whether the view knows that height at all.
func (v *View) HashAt(height uint64) (*chainhash.Hash, bool) {
	hash, ok := v.LastHashes[height]
	if !ok {
		return nil, false
	}
	return &hash, true
}

// HeaderIndex maps burn block heights to burn header hashes.  The burnchain
// processor appends to it as burn blocks arrive and the p2p layer builds its
// preamble view from it.
type HeaderIndex struct {
	mtx sync.Mutex
	db  database.DB
}

// NewHeaderIndex returns a header index backed by the passed database.
func NewHeaderIndex(db database.DB) *HeaderIndex {
	return &HeaderIndex{db: db}
}

// PutHeader records the burn header hash for the given height and advances
// the tip if the height is beyond it.  Re-recording an existing height
// overwrites its hash, which is how a burnchain reorg is applied.
//
// This function is safe for concurrent access.
func (idx *HeaderIndex) PutHeader(height uint64, hash *chainhash.Hash) error {
	idx.mtx.Lock()
	defer idx.mtx.Unlock()

	if err := idx.db.Put(hdrKey(height), hash[:]); err != nil {
		return err
	}

	tip, ok, err := idx.tip()
	if err != nil {
		return err
	}
	if ok && height <= tip {
		return nil
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], height)
	return idx.db.Put(hdrTipKey, buf[:])
}

// HashAt returns the burn header hash recorded for the given height, or nil
// with no error when the height has not been indexed.
//
// This function is safe for concurrent access.
func (idx *HeaderIndex) HashAt(height uint64) (*chainhash.Hash, error) {
	value, err := idx.db.Get(hdrKey(height))
	if err != nil {
		if dbErr, ok := err.(database.Error); ok &&
			dbErr.ErrorCode == database.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}
	if len(value) != chainhash.HashSize {
		return nil, fmt.Errorf("malformed header entry at height %d: "+
			"%d bytes", height, len(value))
	}

	var hash chainhash.Hash
	copy(hash[:], value)
	return &hash, nil
}

// tip returns the highest indexed height.  The boolean is false when the
// index is empty.  The caller must hold the mutex or otherwise not care
// about racing a concurrent PutHeader.
func (idx *HeaderIndex) tip() (uint64, bool, error) {
	value, err := idx.db.Get(hdrTipKey)
	if err != nil {
		if dbErr, ok := err.(database.Error); ok &&
			dbErr.ErrorCode == database.ErrKeyNotFound {
			return 0, false, nil
		}
		return 0, false, err
	}
	if len(value) != 8 {
		return 0, false, fmt.Errorf("malformed header tip entry: "+
			"%d bytes", len(value))
	}
	return binary.BigEndian.Uint64(value), true, nil
}

// Tip returns the height and hash of the highest indexed burn block.  The
// hash is nil with no error when the index is empty.
//
// This function is safe for concurrent access.
func (idx *HeaderIndex) Tip() (uint64, *chainhash.Hash, error) {
	idx.mtx.Lock()
	defer idx.mtx.Unlock()

	height, ok, err := idx.tip()
	if err != nil || !ok {
		return 0, nil, err
	}

	hash, err := idx.HashAt(height)
	if err != nil {
		return 0, nil, err
	}
	if hash == nil {
		return 0, nil, fmt.Errorf("header tip at height %d has no "+
			"header entry", height)
	}
	return height, hash, nil
}

// BuildView assembles the burnchain View for the current tip under the
// passed network parameters.  An empty index yields a genesis view with no
// known hashes.
//
// This function is safe for concurrent access.
func (idx *HeaderIndex) BuildView(params *chaincfg.Params) (*View, error) {
	tipHeight, tipHash, err := idx.Tip()
	if err != nil {
		return nil, err
	}

	view := &View{LastHashes: make(map[uint64]chainhash.Hash)}
	if tipHash == nil {
		return view, nil
	}
	view.BurnBlockHeight = tipHeight
	view.BurnBlockHash = *tipHash

	stableHeight := uint64(0)
	if tipHeight > params.StableConfirmations {
		stableHeight = tipHeight - params.StableConfirmations
	}
	stableHash, err := idx.HashAt(stableHeight)
	if err != nil {
		return nil, err
	}
	if stableHash != nil {
		view.StableHeight = stableHeight
		view.StableHash = *stableHash
	}

	// Collect the recent hash window.  Peers may report stable tips up to
	// MaxNeighborBlockDelay blocks behind our stable tip and still be
	// cross-checked.
	lowHeight := uint64(0)
	if reach := params.StableConfirmations + params.MaxNeighborBlockDelay; tipHeight > reach {
		lowHeight = tipHeight - reach
	}
	for height := lowHeight; height <= tipHeight; height++ {
		hash, err := idx.HashAt(height)
		if err != nil {
			return nil, err
		}
		if hash != nil {
			view.LastHashes[height] = *hash
		}
	}

	return view, nil
}
