// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"bytes"
	"fmt"

	"github.com/embersuite/emberd/bloom"
	"github.com/embersuite/emberd/chaincfg/chainhash"
	"github.com/embersuite/emberd/wire"
)

// NumRecentTxs returns how many pooled transactions sit inside the recency
// window anchored at the pool's maximum acceptance height.
//
// This function is safe for concurrent access.
func (s *Store) NumRecentTxs() (uint64, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.numRecentTxs()
}

func (s *Store) numRecentTxs() (uint64, error) {
	maxHeight, ok, err := s.maxHeight()
	if err != nil || !ok {
		return 0, err
	}

	var count int64
	err = s.stmts[stmtNumRecentTxs].QueryRow(int64(bloomFloor(maxHeight))).
		Scan(&count)
	if err != nil {
		return 0, err
	}
	return uint64(count), nil
}

// RecentTxIDs returns the ids of pooled transactions inside the recency
// window, capped at MaxBloomCounterTxs.
//
// This function is safe for concurrent access.
func (s *Store) RecentTxIDs() ([]chainhash.Hash, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	maxHeight, ok, err := s.maxHeight()
	if err != nil || !ok {
		return nil, err
	}
	return s.recentTxIDs(maxHeight, bloom.MaxBloomCounterTxs)
}

func (s *Store) recentTxIDs(maxHeight uint64, limit int64) ([]chainhash.Hash, error) {
	return scanTxIDColumn(s.stmts[stmtRecentTxIDs].Query(
		int64(bloomFloor(maxHeight)), limit))
}

// TxIDBloomFilter returns an immutable snapshot of the recency filter.
//
// This function is safe for concurrent access.
func (s *Store) TxIDBloomFilter() *bloom.Filter {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.bloomCounter.ToFilter()
}

// TxTags returns the deduplicated tags of the recent transaction ids under
// the given seed.
//
// This function is safe for concurrent access.
func (s *Store) TxTags(seed [32]byte) ([]wire.TxTag, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.txTags(seed)
}

func (s *Store) txTags(seed [32]byte) ([]wire.TxTag, error) {
	maxHeight, ok, err := s.maxHeight()
	if err != nil || !ok {
		return nil, err
	}
	txids, err := s.recentTxIDs(maxHeight, bloom.MaxBloomCounterTxs)
	if err != nil {
		return nil, err
	}

	tags := make([]wire.TxTag, 0, len(txids))
	seen := make(map[wire.TxTag]struct{}, len(txids))
	for i := range txids {
		tag := wire.TxTagFromSeed(seed, &txids[i])
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags, nil
}

// MakeSyncData summarizes the pool's recent transactions for a sync
// exchange.  Pools with fewer than MaxBloomCounterTxs recent transactions
// are described exactly by seeded tags; beyond that the bloom filter
// snapshot takes over.
//
// This function is safe for concurrent access.
func (s *Store) MakeSyncData() (*wire.MemPoolSyncData, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	numRecent, err := s.numRecentTxs()
	if err != nil {
		return nil, err
	}
	if numRecent < bloom.MaxBloomCounterTxs {
		tags, err := s.txTags(s.bloomSeed)
		if err != nil {
			return nil, err
		}
		return wire.NewTxTagsSyncData(s.bloomSeed, tags), nil
	}
	return wire.NewBloomSyncData(s.bloomCounter.ToFilter()), nil
}

// FindNextMissingTxs returns pooled transactions the querying peer does not
// have according to its sync data, walking the salted id order upward from
// pageStart (exclusive, nil meaning the beginning).  At most budget rows
// are scanned and at most pageSize transactions returned per call.
// Transactions accepted at or below heightFloor less the recency depth are
// skipped by the scan.
//
// nextPage is the ordering key of the last row scanned, or nil when the
// scan ran out of rows; passing it back as pageStart resumes the walk.  The
// number of rows scanned is returned as well, so callers can distinguish an
// exhausted pool from one whose every row the peer already has.
//
// This function is safe for concurrent access.
func (s *Store) FindNextMissingTxs(query *wire.MemPoolSyncData,
	heightFloor uint64, pageStart *chainhash.Hash, budget,
	pageSize uint64) ([]*wire.Transaction, *chainhash.Hash, uint64, error) {

	s.mtx.Lock()
	defer s.mtx.Unlock()

	var start chainhash.Hash
	if pageStart != nil {
		start = *pageStart
	}

	// Tag membership is tested per row, so load the tags into a set
	// rather than scanning the slice the wire type carries each time.
	var tagSet map[wire.TxTag]struct{}
	if query.ID == wire.SyncDataTxTags {
		tagSet = make(map[wire.TxTag]struct{}, len(query.Tags))
		for _, tag := range query.Tags {
			tagSet[tag] = struct{}{}
		}
	}

	rows, err := s.stmts[stmtFindMissing].Query(start.String(),
		int64(bloomFloor(heightFloor)), int64(budget))
	if err != nil {
		return nil, nil, 0, err
	}
	defer rows.Close()

	var (
		txs      []*wire.Transaction
		nextPage *chainhash.Hash
		visited  uint64
	)
	for rows.Next() {
		var txidStr, hashedStr string
		var txBytes []byte
		if err := rows.Scan(&txidStr, &txBytes, &hashedStr); err != nil {
			return nil, nil, 0, err
		}
		visited++

		hashed, err := chainhash.NewHashFromStr(hashedStr)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("malformed ordering "+
				"key %q: %v", hashedStr, err)
		}
		nextPage = hashed

		txid, err := chainhash.NewHashFromStr(txidStr)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("malformed txid %q: %v",
				txidStr, err)
		}

		var peerHasIt bool
		if tagSet != nil {
			_, peerHasIt = tagSet[wire.TxTagFromSeed(query.Seed, txid)]
		} else {
			peerHasIt = query.BloomFilter.Contains(txid[:])
		}
		if peerHasIt {
			continue
		}

		tx := &wire.Transaction{}
		if err := tx.Deserialize(bytes.NewReader(txBytes)); err != nil {
			return nil, nil, 0, fmt.Errorf("undecodable "+
				"transaction %v: %v", txid, err)
		}
		txs = append(txs, tx)
		if uint64(len(txs)) >= pageSize {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, 0, err
	}

	log.Tracef("Scanned %d pooled transactions, %d missing from peer",
		visited, len(txs))
	return txs, nextPage, visited, nil
}
