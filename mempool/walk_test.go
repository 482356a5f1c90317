// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"fmt"
	"testing"
	"time"

	"github.com/embersuite/emberd/chaincfg/chainhash"
	"github.com/embersuite/emberd/wire"
)

// collectWalk runs a candidate walk and returns the visited txids in order.
func collectWalk(t *testing.T, store *Store, chain ChainState, tipTag byte,
	settings WalkSettings) []chainhash.Hash {

	t.Helper()

	var visited []chainhash.Hash
	_, err := store.IterateCandidates(chain, testTip(tipTag), settings,
		func(info *TxInfo) (bool, error) {
			visited = append(visited, info.Metadata.TxID)
			return true, nil
		})
	if err != nil {
		t.Fatalf("IterateCandidates: %v", err)
	}
	return visited
}

func TestWalkOverFork(t *testing.T) {
	store := newTestStore(t)

	// Three independent origins, each spending nonce zero, accepted
	// under three different blocks of a forked chain.
	blockTags := []byte{1, 2, 4}
	var txids [3]chainhash.Hash
	for i := uint64(0); i < 3; i++ {
		origin := wire.TxAuth{Address: testAddress(i), Nonce: 0}
		tx := makeTx(origin, 1002-i, fmt.Sprintf("fork payload %d", i))
		addTx(t, store, blockTags[i], i+1, tx, TxAdded)
		txids[i] = tx.TxID()
	}
	chain := &fakeChain{}

	// All three are candidates no matter which tip the walk builds on,
	// and they surface in descending fee order.
	visited := collectWalk(t, store, chain, 2, WalkSettings{})
	if len(visited) != 3 {
		t.Fatalf("walk visited %d txs, want 3", len(visited))
	}
	for i := range visited {
		if !visited[i].IsEqual(&txids[i]) {
			t.Fatalf("walk order at %d: got %v, want %v", i,
				&visited[i], &txids[i])
		}
	}

	// The walk consumed the nonces, so a rerun finds nothing, even when
	// it builds on a different tip.
	if visited := collectWalk(t, store, chain, 5, WalkSettings{}); len(visited) != 0 {
		t.Fatalf("second walk visited %d txs, want 0", len(visited))
	}

	if err := store.ResetLastKnownNonces(); err != nil {
		t.Fatalf("ResetLastKnownNonces: %v", err)
	}
	if visited := collectWalk(t, store, chain, 5, WalkSettings{}); len(visited) != 3 {
		t.Fatalf("walk after reset visited %d txs, want 3", len(visited))
	}

	// Acceptance context is still tracked per block.
	for i, tag := range blockTags {
		consensus, block := testBlock(tag)
		count, err := store.GetNumTxAtBlock(consensus, block)
		if err != nil {
			t.Fatalf("GetNumTxAtBlock: %v", err)
		}
		if count != 1 {
			t.Fatalf("GetNumTxAtBlock for block %d: got %d, want 1",
				i, count)
		}
	}
}

func TestWalkNonceProgression(t *testing.T) {
	store := newTestStore(t)

	accountA := testAddress(1)
	chained0 := makeTx(wire.TxAuth{Address: accountA, Nonce: 0}, 100, "chained 0")
	chained1 := makeTx(wire.TxAuth{Address: accountA, Nonce: 1}, 900, "chained 1")
	other := makeTx(wire.TxAuth{Address: testAddress(2), Nonce: 0}, 500, "other")
	gapped := makeTx(wire.TxAuth{Address: testAddress(3), Nonce: 4}, 800, "gapped")
	for _, tx := range []*wire.Transaction{chained0, chained1, other, gapped} {
		addTx(t, store, 1, 1, tx, TxAdded)
	}
	chain := &fakeChain{}

	// The first walk runs in fee order: the nonce-1 tx sorts ahead of
	// its nonce-0 predecessor and is not ready yet, and the gapped tx
	// never is.
	visited := collectWalk(t, store, chain, 1, WalkSettings{})
	if len(visited) != 2 {
		t.Fatalf("first walk visited %d txs, want 2", len(visited))
	}
	otherID, chained0ID := other.TxID(), chained0.TxID()
	if !visited[0].IsEqual(&otherID) || !visited[1].IsEqual(&chained0ID) {
		t.Fatalf("first walk order: got %v, %v", &visited[0], &visited[1])
	}

	// Visiting the nonce-0 tx advanced the cached nonce, so the next
	// walk surfaces its successor.
	visited = collectWalk(t, store, chain, 1, WalkSettings{})
	chained1ID := chained1.TxID()
	if len(visited) != 1 || !visited[0].IsEqual(&chained1ID) {
		t.Fatalf("second walk: got %v, want [%v]", visited, &chained1ID)
	}
	if visited := collectWalk(t, store, chain, 1, WalkSettings{}); len(visited) != 0 {
		t.Fatalf("third walk visited %d txs, want 0", len(visited))
	}

	// The chain view seeds the cache: an account whose confirmed nonce
	// is already past a pooled tx never surfaces it.
	if err := store.ResetLastKnownNonces(); err != nil {
		t.Fatalf("ResetLastKnownNonces: %v", err)
	}
	chain = &fakeChain{nonces: map[string]uint64{accountA.String(): 2}}
	visited = collectWalk(t, store, chain, 1, WalkSettings{})
	if len(visited) != 1 || !visited[0].IsEqual(&otherID) {
		t.Fatalf("walk with confirmed nonces: got %v, want [%v]",
			visited, &otherID)
	}
}

func TestWalkSponsorGate(t *testing.T) {
	store := newTestStore(t)

	ready := makeTx(wire.TxAuth{Address: testAddress(1), Nonce: 0}, 100, "ready")
	ready.SetSponsor(wire.TxAuth{Address: testAddress(2), Nonce: 0})
	notReady := makeTx(wire.TxAuth{Address: testAddress(3), Nonce: 0}, 700, "not ready")
	notReady.SetSponsor(wire.TxAuth{Address: testAddress(4), Nonce: 2})
	addTx(t, store, 1, 1, ready, TxAdded)
	addTx(t, store, 1, 1, notReady, TxAdded)

	// A transaction is only a candidate when the sponsor nonce is ready
	// too, no matter how well it pays.
	visited := collectWalk(t, store, &fakeChain{}, 1, WalkSettings{})
	readyID := ready.TxID()
	if len(visited) != 1 || !visited[0].IsEqual(&readyID) {
		t.Fatalf("walk: got %v, want [%v]", visited, &readyID)
	}
}

func TestWalkSettings(t *testing.T) {
	store := newTestStore(t)

	for i := uint64(0); i < 4; i++ {
		origin := wire.TxAuth{Address: testAddress(i), Nonce: 0}
		tx := makeTx(origin, 100*(i+1), fmt.Sprintf("settings payload %d", i))
		addTx(t, store, 1, 1, tx, TxAdded)
	}
	chain := &fakeChain{}

	// The fee threshold prunes the cheap tail of the pool.
	visited := collectWalk(t, store, chain, 1, WalkSettings{MinTxFee: 250})
	if len(visited) != 2 {
		t.Fatalf("fee-limited walk visited %d txs, want 2", len(visited))
	}

	// The visitor can stop the walk early.
	if err := store.ResetLastKnownNonces(); err != nil {
		t.Fatalf("ResetLastKnownNonces: %v", err)
	}
	stopped, err := store.IterateCandidates(chain, testTip(1), WalkSettings{},
		func(info *TxInfo) (bool, error) {
			return false, nil
		})
	if err != nil {
		t.Fatalf("IterateCandidates: %v", err)
	}
	if stopped != 1 {
		t.Fatalf("stopped walk visited %d txs, want 1", stopped)
	}

	// An expired deadline stops the walk before it visits anything.
	if err := store.ResetLastKnownNonces(); err != nil {
		t.Fatalf("ResetLastKnownNonces: %v", err)
	}
	timed, err := store.IterateCandidates(chain, testTip(1),
		WalkSettings{MaxWalkTime: time.Nanosecond},
		func(info *TxInfo) (bool, error) {
			return true, nil
		})
	if err != nil {
		t.Fatalf("IterateCandidates: %v", err)
	}
	if timed != 0 {
		t.Fatalf("timed-out walk visited %d txs, want 0", timed)
	}
}
