// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainstate

import (
	"encoding/binary"
	"fmt"

	"github.com/embersuite/emberd/chaincfg/chainhash"
	"github.com/embersuite/emberd/database"
)

var (
	// stagedBlockPrefix is the database key prefix for staged blocks,
	// keyed by consensus hash.
	stagedBlockPrefix = []byte("stgblk-")

	// stagedMicroblocksPrefix is the database key prefix for staged
	// microblock batches, keyed by the anchor block index hash.
	stagedMicroblocksPrefix = []byte("stgmblk-")
)

func stagedKey(prefix []byte, hash *chainhash.Hash) []byte {
	key := make([]byte, 0, len(prefix)+chainhash.HashSize)
	key = append(key, prefix...)
	key = append(key, hash[:]...)
	return key
}

// StagingStore holds pushed blocks and microblocks that passed p2p
// validation until the block processor consumes them.  Staging the same
// payload twice is a cheap no-op, which is what makes duplicate pushes
// harmless.
type StagingStore struct {
	db database.DB
}

// NewStagingStore returns a staging store backed by the passed database.
func NewStagingStore(db database.DB) *StagingStore {
	return &StagingStore{db: db}
}

// StageBlock stores a pushed block under its consensus hash.
//
// This function is safe for concurrent access.
func (s *StagingStore) StageBlock(consensusHash *chainhash.Hash, block []byte) error {
	return s.db.Put(stagedKey(stagedBlockPrefix, consensusHash), block)
}

// HasStagedBlock returns whether a block is staged for the given consensus
// hash.
//
// This function is safe for concurrent access.
func (s *StagingStore) HasStagedBlock(consensusHash *chainhash.Hash) (bool, error) {
	return s.db.Has(stagedKey(stagedBlockPrefix, consensusHash))
}

// GetStagedBlock returns the staged block for the given consensus hash, or
// nil when nothing is staged.
//
// This function is safe for concurrent access.
func (s *StagingStore) GetStagedBlock(consensusHash *chainhash.Hash) ([]byte, error) {
	value, err := s.db.Get(stagedKey(stagedBlockPrefix, consensusHash))
	if err != nil {
		if dbErr, ok := err.(database.Error); ok &&
			dbErr.ErrorCode == database.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}
	return value, nil
}

// StageMicroblocks stores a pushed microblock batch under the index hash of
// the anchor block it descends from.
//
// This function is safe for concurrent access.
func (s *StagingStore) StageMicroblocks(indexHash *chainhash.Hash, microblocks [][]byte) error {
	size := 4
	for _, mblock := range microblocks {
		size += 4 + len(mblock)
	}
	value := make([]byte, 0, size)

	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(len(microblocks)))
	value = append(value, buf[:]...)
	for _, mblock := range microblocks {
		binary.BigEndian.PutUint32(buf[:], uint32(len(mblock)))
		value = append(value, buf[:]...)
		value = append(value, mblock...)
	}

	return s.db.Put(stagedKey(stagedMicroblocksPrefix, indexHash), value)
}

// HasStagedMicroblocks returns whether a microblock batch is staged for the
// given anchor block index hash.
//
// This function is safe for concurrent access.
func (s *StagingStore) HasStagedMicroblocks(indexHash *chainhash.Hash) (bool, error) {
	return s.db.Has(stagedKey(stagedMicroblocksPrefix, indexHash))
}

// GetStagedMicroblocks returns the staged microblock batch for the given
// anchor block index hash, or nil when nothing is staged.
//
// This function is safe for concurrent access.
func (s *StagingStore) GetStagedMicroblocks(indexHash *chainhash.Hash) ([][]byte, error) {
	value, err := s.db.Get(stagedKey(stagedMicroblocksPrefix, indexHash))
	if err != nil {
		if dbErr, ok := err.(database.Error); ok &&
			dbErr.ErrorCode == database.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	if len(value) < 4 {
		return nil, fmt.Errorf("malformed staged microblocks entry: "+
			"%d bytes", len(value))
	}
	count := binary.BigEndian.Uint32(value[:4])
	value = value[4:]

	microblocks := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(value) < 4 {
			return nil, fmt.Errorf("staged microblocks entry "+
				"truncated at batch item %d", i)
		}
		mblockLen := binary.BigEndian.Uint32(value[:4])
		value = value[4:]
		if uint32(len(value)) < mblockLen {
			return nil, fmt.Errorf("staged microblocks entry "+
				"truncated at batch item %d", i)
		}
		microblocks = append(microblocks, value[:mblockLen:mblockLen])
		value = value[mblockLen:]
	}

	return microblocks, nil
}
