// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"fmt"
	"sort"
	"testing"

	"github.com/embersuite/emberd/bloom"
	"github.com/embersuite/emberd/chaincfg/chainhash"
	"github.com/embersuite/emberd/wire"
)

// fillHeight admits count fresh transactions at the given height, tagging
// origins so they never collide across calls, and returns their ids.
func fillHeight(t *testing.T, store *Store, height uint64, count int) []chainhash.Hash {
	t.Helper()

	txids := make([]chainhash.Hash, 0, count)
	for i := 0; i < count; i++ {
		origin := wire.TxAuth{
			Address: testAddress(height*1000 + uint64(i)),
			Nonce:   height,
		}
		tx := makeTx(origin, 100+uint64(i),
			fmt.Sprintf("height %d payload %d", height, i))
		addTx(t, store, 1, height, tx, TxAdded)
		txids = append(txids, tx.TxID())
	}
	return txids
}

func TestRecencyWindow(t *testing.T) {
	store := newTestStore(t)

	const perHeight = 4
	byHeight := make(map[uint64][]chainhash.Hash)
	for height := uint64(10); height <= 13; height++ {
		byHeight[height] = fillHeight(t, store, height, perHeight)

		// The window spans BloomCounterDepth heights off the top.
		wantRecent := uint64(perHeight * 2)
		if height == 10 {
			wantRecent = perHeight
		}
		numRecent, err := store.NumRecentTxs()
		if err != nil {
			t.Fatalf("NumRecentTxs: %v", err)
		}
		if numRecent != wantRecent {
			t.Fatalf("NumRecentTxs at height %d: got %d, want %d",
				height, numRecent, wantRecent)
		}

		recent, err := store.RecentTxIDs()
		if err != nil {
			t.Fatalf("RecentTxIDs: %v", err)
		}
		wantIDs := make(map[chainhash.Hash]struct{})
		for _, txid := range byHeight[height] {
			wantIDs[txid] = struct{}{}
		}
		if height > 10 {
			for _, txid := range byHeight[height-1] {
				wantIDs[txid] = struct{}{}
			}
		}
		if len(recent) != len(wantIDs) {
			t.Fatalf("RecentTxIDs at height %d: got %d ids, want %d",
				height, len(recent), len(wantIDs))
		}
		for i := range recent {
			if _, ok := wantIDs[recent[i]]; !ok {
				t.Fatalf("RecentTxIDs at height %d: unexpected "+
					"id %v", height, &recent[i])
			}
		}

		// Every recent id is in the filter.  Expired ids mostly are
		// not; a stray hit is within the filter's false positive
		// budget.
		filter := store.TxIDBloomFilter()
		for txid := range wantIDs {
			if !filter.Contains(txid[:]) {
				t.Fatalf("recency filter missed recent id %v at "+
					"height %d", &txid, height)
			}
		}
		falsePositives := 0
		for expired := uint64(10); expired+bloom.BloomCounterDepth <= height; expired++ {
			for _, txid := range byHeight[expired] {
				if filter.Contains(txid[:]) {
					falsePositives++
				}
			}
		}
		if falsePositives > 1 {
			t.Fatalf("%d expired ids still in the recency filter at "+
				"height %d", falsePositives, height)
		}
	}
}

func TestTxTags(t *testing.T) {
	store := newTestStore(t)
	txids := fillHeight(t, store, 10, 5)

	seed := [32]byte{0: 1, 31: 2}
	tags, err := store.TxTags(seed)
	if err != nil {
		t.Fatalf("TxTags: %v", err)
	}

	want := make(map[wire.TxTag]struct{})
	for i := range txids {
		want[wire.TxTagFromSeed(seed, &txids[i])] = struct{}{}
	}
	if len(tags) != len(want) {
		t.Fatalf("TxTags: got %d tags, want %d", len(tags), len(want))
	}
	seen := make(map[wire.TxTag]struct{})
	for _, tag := range tags {
		if _, ok := want[tag]; !ok {
			t.Fatalf("TxTags: unexpected tag %x", tag)
		}
		if _, ok := seen[tag]; ok {
			t.Fatalf("TxTags: duplicate tag %x", tag)
		}
		seen[tag] = struct{}{}
	}
}

func TestMakeSyncDataTags(t *testing.T) {
	store := newTestStore(t)
	txids := fillHeight(t, store, 10, 6)

	// A small pool is summarized exactly, by tags under the store's own
	// filter seed.
	sd, err := store.MakeSyncData()
	if err != nil {
		t.Fatalf("MakeSyncData: %v", err)
	}
	if sd.ID != wire.SyncDataTxTags {
		t.Fatalf("MakeSyncData: got id %d, want tags", sd.ID)
	}
	if sd.Seed != store.bloomSeed {
		t.Fatal("MakeSyncData: seed does not match the store seed")
	}
	if len(sd.Tags) != len(txids) {
		t.Fatalf("MakeSyncData: got %d tags, want %d", len(sd.Tags),
			len(txids))
	}
	for i := range txids {
		if !sd.Contains(&txids[i]) {
			t.Fatalf("sync data misses pooled tx %v", &txids[i])
		}
	}
}

func TestMakeSyncDataBloomFilter(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping bloom-mode sync data test in short mode")
	}

	store := newTestStore(t)
	txids := fillHeight(t, store, 10, bloom.MaxBloomCounterTxs)

	numRecent, err := store.NumRecentTxs()
	if err != nil {
		t.Fatalf("NumRecentTxs: %v", err)
	}
	if numRecent != bloom.MaxBloomCounterTxs {
		t.Fatalf("NumRecentTxs: got %d, want %d", numRecent,
			bloom.MaxBloomCounterTxs)
	}

	// Past the tag capacity the summary degrades to the bloom filter.
	sd, err := store.MakeSyncData()
	if err != nil {
		t.Fatalf("MakeSyncData: %v", err)
	}
	if sd.ID != wire.SyncDataBloomFilter {
		t.Fatalf("MakeSyncData: got id %d, want bloom filter", sd.ID)
	}
	for i := 0; i < 64; i++ {
		if !sd.Contains(&txids[i]) {
			t.Fatalf("sync data misses pooled tx %v", &txids[i])
		}
	}
}

// saltedOrder returns the pool's txids sorted by their salted ordering key,
// together with the keys themselves.
func saltedOrder(t *testing.T, store *Store, txids []chainhash.Hash) ([]chainhash.Hash, []chainhash.Hash) {
	t.Helper()

	type pair struct{ hashed, txid chainhash.Hash }
	pairs := make([]pair, 0, len(txids))
	for i := range txids {
		hashed, err := store.GetRandomizedTxID(&txids[i])
		if err != nil {
			t.Fatalf("GetRandomizedTxID: %v", err)
		}
		if hashed == nil {
			t.Fatalf("no ordering key for %v", &txids[i])
		}
		pairs = append(pairs, pair{hashed: *hashed, txid: txids[i]})
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].hashed.String() < pairs[j].hashed.String()
	})

	orderedTxids := make([]chainhash.Hash, len(pairs))
	orderedKeys := make([]chainhash.Hash, len(pairs))
	for i, p := range pairs {
		orderedTxids[i] = p.txid
		orderedKeys[i] = p.hashed
	}
	return orderedTxids, orderedKeys
}

func TestFindNextMissingTxs(t *testing.T) {
	store := newTestStore(t)

	const numTxs = 10
	txids := fillHeight(t, store, 10, numTxs)
	orderedTxids, orderedKeys := saltedOrder(t, store, txids)

	// A peer with empty tags is missing everything; one generous call
	// returns the whole pool in salted order.
	empty := wire.NewTxTagsSyncData([32]byte{}, nil)
	txs, next, visited, err := store.FindNextMissingTxs(empty, 10, nil, 100, 100)
	if err != nil {
		t.Fatalf("FindNextMissingTxs: %v", err)
	}
	if len(txs) != numTxs || visited != numTxs {
		t.Fatalf("full scan: got %d txs over %d rows, want %d and %d",
			len(txs), visited, numTxs, numTxs)
	}
	for i := range txs {
		if gotID := txs[i].TxID(); !gotID.IsEqual(&orderedTxids[i]) {
			t.Fatalf("salted order at %d: got %v, want %v", i,
				&gotID, &orderedTxids[i])
		}
	}
	if next == nil || !next.IsEqual(&orderedKeys[numTxs-1]) {
		t.Fatalf("full scan cursor: got %v, want %v", next,
			&orderedKeys[numTxs-1])
	}

	// The row budget caps the scan, and the cursor resumes it.
	txs, next, visited, err = store.FindNextMissingTxs(empty, 10, nil, 3, 100)
	if err != nil {
		t.Fatalf("FindNextMissingTxs: %v", err)
	}
	if len(txs) != 3 || visited != 3 {
		t.Fatalf("budgeted scan: got %d txs over %d rows", len(txs), visited)
	}
	if next == nil || !next.IsEqual(&orderedKeys[2]) {
		t.Fatalf("budgeted scan cursor: got %v, want %v", next,
			&orderedKeys[2])
	}
	txs, _, _, err = store.FindNextMissingTxs(empty, 10, next, 100, 100)
	if err != nil {
		t.Fatalf("FindNextMissingTxs: %v", err)
	}
	if len(txs) != numTxs-3 {
		t.Fatalf("resumed scan: got %d txs, want %d", len(txs), numTxs-3)
	}
	if gotID := txs[0].TxID(); !gotID.IsEqual(&orderedTxids[3]) {
		t.Fatalf("resumed scan start: got %v, want %v", &gotID,
			&orderedTxids[3])
	}

	// The page size stops the scan as soon as the page fills.
	txs, next, visited, err = store.FindNextMissingTxs(empty, 10, nil, 100, 4)
	if err != nil {
		t.Fatalf("FindNextMissingTxs: %v", err)
	}
	if len(txs) != 4 || visited != 4 {
		t.Fatalf("paged scan: got %d txs over %d rows", len(txs), visited)
	}
	if next == nil || !next.IsEqual(&orderedKeys[3]) {
		t.Fatalf("paged scan cursor: got %v, want %v", next, &orderedKeys[3])
	}

	// A height floor above every acceptance height hides the pool.
	txs, next, visited, err = store.FindNextMissingTxs(empty,
		10+bloom.BloomCounterDepth+1, nil, 100, 100)
	if err != nil {
		t.Fatalf("FindNextMissingTxs: %v", err)
	}
	if len(txs) != 0 || next != nil || visited != 0 {
		t.Fatalf("floored scan: got %d txs, cursor %v, %d rows",
			len(txs), next, visited)
	}

	// A peer that has everything is handed pages of nothing, but the
	// cursor still walks to the end and then reports exhaustion.
	var seed [32]byte
	tags := make([]wire.TxTag, 0, numTxs)
	for i := range txids {
		tags = append(tags, wire.TxTagFromSeed(seed, &txids[i]))
	}
	full := wire.NewTxTagsSyncData(seed, tags)
	txs, next, visited, err = store.FindNextMissingTxs(full, 10, nil, 100, 100)
	if err != nil {
		t.Fatalf("FindNextMissingTxs: %v", err)
	}
	if len(txs) != 0 || visited != numTxs {
		t.Fatalf("saturated scan: got %d txs over %d rows", len(txs), visited)
	}
	if next == nil || !next.IsEqual(&orderedKeys[numTxs-1]) {
		t.Fatalf("saturated scan cursor: got %v", next)
	}
	txs, next, visited, err = store.FindNextMissingTxs(full, 10, next, 100, 100)
	if err != nil {
		t.Fatalf("FindNextMissingTxs: %v", err)
	}
	if len(txs) != 0 || next != nil || visited != 0 {
		t.Fatalf("exhausted scan: got %d txs, cursor %v, %d rows",
			len(txs), next, visited)
	}

	// The store's own recency filter knows every pooled tx, so a peer
	// presenting it is missing nothing.
	filterQuery := wire.NewBloomSyncData(store.TxIDBloomFilter())
	txs, _, visited, err = store.FindNextMissingTxs(filterQuery, 10, nil, 100, 100)
	if err != nil {
		t.Fatalf("FindNextMissingTxs: %v", err)
	}
	if len(txs) != 0 || visited != numTxs {
		t.Fatalf("filter scan: got %d txs over %d rows", len(txs), visited)
	}
}
