// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"database/sql"
	"math"
	"time"

	"github.com/embersuite/emberd/chainstate"
	"github.com/embersuite/emberd/wire"
)

// ChainState supplies the confirmed account state that candidate selection
// checks nonces against.  The store never reads chain data itself; the
// caller hands it a view anchored at the tip it is building on.
type ChainState interface {
	// GetNonce returns the next nonce the chain expects from the given
	// account as of the given tip.
	GetNonce(addr wire.Address, tip chainstate.BlockID) (uint64, error)
}

// WalkSettings bounds a candidate walk.
type WalkSettings struct {
	// MinTxFee excludes transactions paying less than this fee from the
	// walk entirely.
	MinTxFee uint64

	// MaxWalkTime stops the walk once this much time has passed.  Zero
	// means no time limit.
	MaxWalkTime time.Duration
}

// IterateCandidates visits pooled transactions in descending fee order,
// restricted to those whose origin and sponsor nonces each match the next
// nonce expected for their account.  Expected nonces come from the walk's
// nonce cache when present and from chain at the given tip otherwise.
// Visiting a transaction consumes its nonces: the cache advances past them,
// so repeating the walk yields nothing new until ResetLastKnownNonces.  The
// visitor returns whether to keep walking.
//
// The walk considers transactions no matter which chain tip they were
// accepted under; tip only anchors the account state nonces are checked
// against.  It returns the number of transactions visited.
//
// This function is safe for concurrent access.
func (s *Store) IterateCandidates(chain ChainState, tip chainstate.BlockID,
	settings WalkSettings, visitor func(*TxInfo) (bool, error)) (uint64, error) {

	var deadline time.Time
	if settings.MaxWalkTime > 0 {
		deadline = time.Now().Add(settings.MaxWalkTime)
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	var (
		visited  uint64
		lastFee  = int64(math.MaxInt64)
		lastTxID = ""
	)
walk:
	for {
		batch, err := s.walkBatch(lastFee, lastTxID, settings.MinTxFee)
		if err != nil {
			return visited, err
		}
		if len(batch) == 0 {
			break
		}
		last := &batch[len(batch)-1].Metadata
		lastFee = int64(last.Fee)
		lastTxID = last.TxID.String()

		for _, info := range batch {
			if !deadline.IsZero() && time.Now().After(deadline) {
				log.Debugf("Candidate walk stopped at its "+
					"deadline after %d visits", visited)
				break walk
			}

			candidate, err := s.isCandidate(chain, tip, &info.Metadata)
			if err != nil {
				return visited, err
			}
			if !candidate {
				continue
			}

			again, err := visitor(info)
			if err != nil {
				return visited, err
			}
			visited++

			// Consume the nonces so the walk moves past this
			// account until the cache is reset.
			meta := &info.Metadata
			err = s.setCachedNonce(meta.OriginAddress, meta.OriginNonce+1)
			if err != nil {
				return visited, err
			}
			err = s.setCachedNonce(meta.SponsorAddress, meta.SponsorNonce+1)
			if err != nil {
				return visited, err
			}

			if !again {
				break walk
			}
		}
	}
	return visited, nil
}

// walkBatch fetches the next batch of rows past the (lastFee, lastTxID)
// cursor in descending fee order.  The rows are materialized before
// returning so the caller is free to write while working through them.
func (s *Store) walkBatch(lastFee int64, lastTxID string, minFee uint64) ([]*TxInfo, error) {
	rows, err := s.stmts[stmtWalkBatch].Query(lastFee, lastFee, lastTxID,
		int64(minFee), walkBatchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batch []*TxInfo
	for rows.Next() {
		info, err := scanTxInfo(rows)
		if err != nil {
			return nil, err
		}
		batch = append(batch, info)
	}
	return batch, rows.Err()
}

// isCandidate reports whether the transaction's origin and sponsor both
// spend the next nonce expected from their account.
func (s *Store) isCandidate(chain ChainState, tip chainstate.BlockID,
	meta *TxMetadata) (bool, error) {

	expected, err := s.expectedNonce(chain, tip, meta.OriginAddress)
	if err != nil {
		return false, err
	}
	if meta.OriginNonce != expected {
		return false, nil
	}
	expected, err = s.expectedNonce(chain, tip, meta.SponsorAddress)
	if err != nil {
		return false, err
	}
	return meta.SponsorNonce == expected, nil
}

// expectedNonce returns the next nonce a walk expects from addr: the cached
// value when one exists and the chain's confirmed view otherwise.  The
// cache is only written when a transaction is visited, so merely asking
// consumes nothing.
func (s *Store) expectedNonce(chain ChainState, tip chainstate.BlockID,
	addr wire.Address) (uint64, error) {

	var nonce int64
	err := s.stmts[stmtGetNonce].QueryRow(addr.String()).Scan(&nonce)
	if err == nil {
		return uint64(nonce), nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}
	return chain.GetNonce(addr, tip)
}

func (s *Store) setCachedNonce(addr wire.Address, nonce uint64) error {
	_, err := s.stmts[stmtSetNonce].Exec(addr.String(), int64(nonce))
	return err
}

// ResetLastKnownNonces clears the walk nonce cache so the next walk starts
// over from the chain's confirmed view.
//
// This function is safe for concurrent access.
func (s *Store) ResetLastKnownNonces() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	_, err := s.stmts[stmtClearNonces].Exec()
	return err
}
