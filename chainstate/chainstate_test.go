// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainstate

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/embersuite/emberd/chaincfg"
	"github.com/embersuite/emberd/chaincfg/chainhash"
	"github.com/embersuite/emberd/database"
	_ "github.com/embersuite/emberd/database/ldb"
	"github.com/embersuite/emberd/wire"
)

// newTestDB returns an empty ldb-backed database that is torn down with the
// test.
func newTestDB(t *testing.T) database.DB {
	t.Helper()

	db, err := database.Create("ldb", filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// testHash returns a deterministic hash for the given height.
func testHash(height uint64) *chainhash.Hash {
	hash := chainhash.HashH([]byte(fmt.Sprintf("burn header %d", height)))
	return &hash
}

func TestHeaderIndexTip(t *testing.T) {
	idx := NewHeaderIndex(newTestDB(t))

	// An empty index has no tip.
	height, hash, err := idx.Tip()
	if err != nil {
		t.Fatalf("Tip on empty index: %v", err)
	}
	if hash != nil || height != 0 {
		t.Fatalf("Tip on empty index: got (%d, %v)", height, hash)
	}

	for h := uint64(0); h <= 20; h++ {
		if err := idx.PutHeader(h, testHash(h)); err != nil {
			t.Fatalf("PutHeader(%d): %v", h, err)
		}
	}

	height, hash, err = idx.Tip()
	if err != nil {
		t.Fatalf("Tip: %v", err)
	}
	if height != 20 || !hash.IsEqual(testHash(20)) {
		t.Fatalf("Tip: got (%d, %s)", height, hash)
	}

	// Heights round trip and unknown heights read back as nil.
	got, err := idx.HashAt(7)
	if err != nil {
		t.Fatalf("HashAt(7): %v", err)
	}
	if !got.IsEqual(testHash(7)) {
		t.Fatalf("HashAt(7): got %s, want %s", got, testHash(7))
	}
	got, err = idx.HashAt(1000)
	if err != nil {
		t.Fatalf("HashAt(1000): %v", err)
	}
	if got != nil {
		t.Fatalf("HashAt(1000): got %s, want nil", got)
	}

	// Rewriting a height applies a reorg without moving the tip, and a
	// put below the tip leaves the tip alone.
	reorged := chainhash.HashH([]byte("reorged header"))
	if err := idx.PutHeader(15, &reorged); err != nil {
		t.Fatalf("PutHeader(15): %v", err)
	}
	got, err = idx.HashAt(15)
	if err != nil {
		t.Fatalf("HashAt(15): %v", err)
	}
	if !got.IsEqual(&reorged) {
		t.Fatalf("HashAt(15) after rewrite: got %s", got)
	}
	height, _, err = idx.Tip()
	if err != nil {
		t.Fatalf("Tip after rewrite: %v", err)
	}
	if height != 20 {
		t.Fatalf("Tip moved on below-tip put: got %d, want 20", height)
	}
}

func TestBuildView(t *testing.T) {
	idx := NewHeaderIndex(newTestDB(t))

	// An empty index yields a genesis view.
	view, err := idx.BuildView(&chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("BuildView on empty index: %v", err)
	}
	if view.BurnBlockHeight != 0 || len(view.LastHashes) != 0 {
		t.Fatalf("BuildView on empty index: got height %d, %d hashes",
			view.BurnBlockHeight, len(view.LastHashes))
	}

	for h := uint64(0); h <= 20; h++ {
		if err := idx.PutHeader(h, testHash(h)); err != nil {
			t.Fatalf("PutHeader(%d): %v", h, err)
		}
	}

	view, err = idx.BuildView(&chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("BuildView: %v", err)
	}
	if view.BurnBlockHeight != 20 {
		t.Fatalf("view tip height: got %d, want 20",
			view.BurnBlockHeight)
	}
	if !view.BurnBlockHash.IsEqual(testHash(20)) {
		t.Fatalf("view tip hash: got %s", view.BurnBlockHash)
	}
	wantStable := 20 - chaincfg.MainNetParams.StableConfirmations
	if view.StableHeight != wantStable {
		t.Fatalf("view stable height: got %d, want %d",
			view.StableHeight, wantStable)
	}
	if !view.StableHash.IsEqual(testHash(wantStable)) {
		t.Fatalf("view stable hash: got %s", view.StableHash)
	}

	// The recent hash window reaches all the way back to genesis here
	// since the chain is shorter than the window.
	if len(view.LastHashes) != 21 {
		t.Fatalf("view hash window: got %d entries, want 21",
			len(view.LastHashes))
	}
	hash, ok := view.HashAt(3)
	if !ok || !hash.IsEqual(testHash(3)) {
		t.Fatalf("view HashAt(3): got (%v, %v)", hash, ok)
	}
	if _, ok := view.HashAt(21); ok {
		t.Fatal("view HashAt(21) reported a hash beyond the tip")
	}
}

func TestNonceView(t *testing.T) {
	nonces := NewNonceView(newTestDB(t))

	addr := wire.NewAddressPubKey(22, []byte("account key"))
	other := wire.NewAddressPubKey(22, []byte("other key"))
	tip := BlockID{
		ConsensusHash: chainhash.HashH([]byte("tip consensus")),
		BlockHash:     chainhash.HashH([]byte("tip block")),
	}

	// Unknown accounts expect nonce zero.
	nonce, err := nonces.GetNonce(addr, tip)
	if err != nil {
		t.Fatalf("GetNonce: %v", err)
	}
	if nonce != 0 {
		t.Fatalf("GetNonce for unknown account: got %d, want 0", nonce)
	}

	if err := nonces.SetNonce(addr, 5); err != nil {
		t.Fatalf("SetNonce: %v", err)
	}
	if err := nonces.SetNonce(addr, 6); err != nil {
		t.Fatalf("SetNonce: %v", err)
	}

	nonce, err = nonces.GetNonce(addr, tip)
	if err != nil {
		t.Fatalf("GetNonce: %v", err)
	}
	if nonce != 6 {
		t.Fatalf("GetNonce: got %d, want 6", nonce)
	}

	// Distinct accounts do not share nonce state.
	nonce, err = nonces.GetNonce(other, tip)
	if err != nil {
		t.Fatalf("GetNonce: %v", err)
	}
	if nonce != 0 {
		t.Fatalf("GetNonce for other account: got %d, want 0", nonce)
	}
}

func TestStagingStore(t *testing.T) {
	staging := NewStagingStore(newTestDB(t))

	consensusHash := chainhash.HashH([]byte("consensus"))
	block := []byte("serialized block bytes")

	ok, err := staging.HasStagedBlock(&consensusHash)
	if err != nil {
		t.Fatalf("HasStagedBlock: %v", err)
	}
	if ok {
		t.Fatal("HasStagedBlock reported an unstaged block")
	}
	got, err := staging.GetStagedBlock(&consensusHash)
	if err != nil {
		t.Fatalf("GetStagedBlock: %v", err)
	}
	if got != nil {
		t.Fatalf("GetStagedBlock for unstaged block: got %q", got)
	}

	if err := staging.StageBlock(&consensusHash, block); err != nil {
		t.Fatalf("StageBlock: %v", err)
	}
	// Duplicate staging is a no-op.
	if err := staging.StageBlock(&consensusHash, block); err != nil {
		t.Fatalf("StageBlock duplicate: %v", err)
	}

	ok, err = staging.HasStagedBlock(&consensusHash)
	if err != nil {
		t.Fatalf("HasStagedBlock: %v", err)
	}
	if !ok {
		t.Fatal("HasStagedBlock missed a staged block")
	}
	got, err = staging.GetStagedBlock(&consensusHash)
	if err != nil {
		t.Fatalf("GetStagedBlock: %v", err)
	}
	if !bytes.Equal(got, block) {
		t.Fatalf("GetStagedBlock: got %q, want %q", got, block)
	}

	// Microblock batches round trip, including an empty batch.
	indexHash := chainhash.HashH([]byte("anchor index"))
	mblocks := [][]byte{[]byte("mblock a"), []byte("mblock bb"), {}}
	if err := staging.StageMicroblocks(&indexHash, mblocks); err != nil {
		t.Fatalf("StageMicroblocks: %v", err)
	}
	ok, err = staging.HasStagedMicroblocks(&indexHash)
	if err != nil {
		t.Fatalf("HasStagedMicroblocks: %v", err)
	}
	if !ok {
		t.Fatal("HasStagedMicroblocks missed a staged batch")
	}
	gotBatch, err := staging.GetStagedMicroblocks(&indexHash)
	if err != nil {
		t.Fatalf("GetStagedMicroblocks: %v", err)
	}
	if len(gotBatch) != len(mblocks) {
		t.Fatalf("GetStagedMicroblocks: got %d items, want %d",
			len(gotBatch), len(mblocks))
	}
	for i := range mblocks {
		if !bytes.Equal(gotBatch[i], mblocks[i]) {
			t.Fatalf("GetStagedMicroblocks item %d: got %q, "+
				"want %q", i, gotBatch[i], mblocks[i])
		}
	}

	gotBatch, err = staging.GetStagedMicroblocks(&consensusHash)
	if err != nil {
		t.Fatalf("GetStagedMicroblocks: %v", err)
	}
	if gotBatch != nil {
		t.Fatalf("GetStagedMicroblocks for unstaged batch: got %v",
			gotBatch)
	}
}
