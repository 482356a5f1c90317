// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"github.com/embersuite/emberd/bloom"
	"github.com/embersuite/emberd/chaincfg/chainhash"
)

// TestTxTagFromSeed ensures tags are deterministic under a seed and change
// when the seed does.
func TestTxTagFromSeed(t *testing.T) {
	txid := chainhash.HashH([]byte("some tx"))
	otherTxid := chainhash.HashH([]byte("another tx"))

	var seedA, seedB [32]byte
	seedB[0] = 1

	tagA1 := TxTagFromSeed(seedA, &txid)
	tagA2 := TxTagFromSeed(seedA, &txid)
	if tagA1 != tagA2 {
		t.Fatal("tag derivation is not deterministic")
	}
	if tagA1 == TxTagFromSeed(seedB, &txid) {
		t.Error("tag unchanged under a different seed")
	}
	if tagA1 == TxTagFromSeed(seedA, &otherTxid) {
		t.Error("different txids share a tag")
	}
	if len(tagA1.String()) != TxTagSize*2 {
		t.Errorf("tag string length: got %d, want %d",
			len(tagA1.String()), TxTagSize*2)
	}
}

// TestSyncDataTags ensures the tag form of sync data round trips and
// answers membership by tag equality.
func TestSyncDataTags(t *testing.T) {
	var seed [32]byte
	seed[5] = 0x99

	have := chainhash.HashH([]byte("tx we have"))
	missing := chainhash.HashH([]byte("tx we do not"))

	sd := NewTxTagsSyncData(seed, []TxTag{
		TxTagFromSeed(seed, &have),
	})
	if !sd.Contains(&have) {
		t.Error("sync data misses a tagged txid")
	}
	if sd.Contains(&missing) {
		t.Error("sync data claims an untagged txid")
	}

	var buf bytes.Buffer
	if err := writeSyncData(&buf, ProtocolVersion, sd); err != nil {
		t.Fatalf("writeSyncData: %v", err)
	}

	var decoded MemPoolSyncData
	if err := readSyncData(&buf, ProtocolVersion, &decoded); err != nil {
		t.Fatalf("readSyncData: %v", err)
	}
	if !reflect.DeepEqual(&decoded, sd) {
		t.Errorf("round trip mismatch: got %v, want %v",
			spew.Sdump(&decoded), spew.Sdump(sd))
	}
}

// TestSyncDataBloom ensures the bloom form of sync data round trips with
// its membership intact.
func TestSyncDataBloom(t *testing.T) {
	var seed [bloom.HasherSeedSize]byte
	seed[0] = 0x42
	cf := bloom.NewCountingFilter(bloom.NewNodeHasher(seed),
		bloom.MaxBloomCounterTxs, bloom.BloomCounterErrorRate)

	var txids []chainhash.Hash
	for i := 0; i < 64; i++ {
		txid := chainhash.HashH([]byte{byte(i), 0xab})
		txids = append(txids, txid)
		cf.Insert(txid[:])
	}

	sd := NewBloomSyncData(cf.ToFilter())
	for i := range txids {
		if !sd.Contains(&txids[i]) {
			t.Fatalf("sync data misses inserted txid %d", i)
		}
	}

	var buf bytes.Buffer
	if err := writeSyncData(&buf, ProtocolVersion, sd); err != nil {
		t.Fatalf("writeSyncData: %v", err)
	}

	var decoded MemPoolSyncData
	if err := readSyncData(&buf, ProtocolVersion, &decoded); err != nil {
		t.Fatalf("readSyncData: %v", err)
	}
	if decoded.ID != SyncDataBloomFilter || decoded.BloomFilter == nil {
		t.Fatal("decoded sync data is not a bloom filter")
	}
	for i := range txids {
		if !decoded.Contains(&txids[i]) {
			t.Fatalf("decoded sync data misses txid %d", i)
		}
	}
}

// TestSyncDataInvalid ensures unknown discriminants and oversized tag
// vectors are rejected.
func TestSyncDataInvalid(t *testing.T) {
	var decoded MemPoolSyncData
	err := readSyncData(bytes.NewReader([]byte{0x07}), ProtocolVersion,
		&decoded)
	if _, ok := err.(*MessageError); !ok {
		t.Errorf("unknown id: got %T (%v), want *MessageError", err, err)
	}

	// Tag form declaring more tags than allowed.
	var buf bytes.Buffer
	buf.WriteByte(byte(SyncDataTxTags))
	buf.Write(make([]byte, 32))
	if err := writeElement(&buf, uint32(MaxTxTags+1)); err != nil {
		t.Fatalf("writeElement: %v", err)
	}
	err = readSyncData(&buf, ProtocolVersion, &decoded)
	if _, ok := err.(*MessageError); !ok {
		t.Errorf("oversized tags: got %T (%v), want *MessageError",
			err, err)
	}
}
