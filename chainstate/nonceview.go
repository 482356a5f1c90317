// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainstate

import (
	"encoding/binary"
	"fmt"

	"github.com/embersuite/emberd/chaincfg/chainhash"
	"github.com/embersuite/emberd/database"
	"github.com/embersuite/emberd/wire"
)

// BlockID identifies a processed block by the consensus hash of the burn
// view it was mined under together with its own header hash.  The pair is
// unique across forks even when two forks share a header hash.
type BlockID struct {
	ConsensusHash chainhash.Hash
	BlockHash     chainhash.Hash
}

// nonceKeyPrefix is the database key prefix for confirmed account nonces.
// The remainder of the key is the serialized account address.
var nonceKeyPrefix = []byte("nonce-")

// nonceKey returns the database key for the given account address.
func nonceKey(addr wire.Address) []byte {
	key := make([]byte, 0, len(nonceKeyPrefix)+wire.AddressSize)
	key = append(key, nonceKeyPrefix...)
	key = append(key, addr.Version)
	key = append(key, addr.Hash[:]...)
	return key
}

// NonceView tracks the next expected nonce for each account on the canonical
// fork.  The block processor writes to it as transactions confirm and the
// mempool reads it when iterating candidate transactions.
type NonceView struct {
	db database.DB
}

// NewNonceView returns a nonce view backed by the passed database.
func NewNonceView(db database.DB) *NonceView {
	return &NonceView{db: db}
}

// GetNonce returns the next expected nonce for the given account as of the
// given chain tip.  Accounts that have never sent a transaction expect nonce
// zero.
//
// The view only tracks the canonical fork, so the tip parameter does not
// alter the result.  It exists so the view can serve as the mempool's chain
// state without an adapter.
//
// This function is safe for concurrent access.
func (v *NonceView) GetNonce(addr wire.Address, tip BlockID) (uint64, error) {
	value, err := v.db.Get(nonceKey(addr))
	if err != nil {
		if dbErr, ok := err.(database.Error); ok &&
			dbErr.ErrorCode == database.ErrKeyNotFound {
			return 0, nil
		}
		return 0, err
	}
	if len(value) != 8 {
		return 0, fmt.Errorf("malformed nonce entry for %s: %d bytes",
			addr, len(value))
	}
	return binary.BigEndian.Uint64(value), nil
}

// SetNonce records the next expected nonce for the given account.
//
// This function is safe for concurrent access.
func (v *NonceView) SetNonce(addr wire.Address, nonce uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	return v.db.Put(nonceKey(addr), buf[:])
}
