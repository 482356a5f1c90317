// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/embersuite/emberd/bloom"
	"github.com/embersuite/emberd/chaincfg/chainhash"
)

// TxTagSize is the number of bytes in a transaction tag.
const TxTagSize = 8

// MaxTxTags is the maximum number of tags a sync data may carry.  A mempool
// beyond this size is represented by a bloom filter instead.
const MaxTxTags = 65536

// TxTag is a short, seed-keyed digest of a transaction id.  Nodes with
// small mempools exchange tags instead of full bloom filters.
type TxTag [TxTagSize]byte

// TxTagFromSeed returns the tag for txid under the given seed: the leading
// bytes of sha512/256(seed || txid).
func TxTagFromSeed(seed [32]byte, txid *chainhash.Hash) TxTag {
	data := make([]byte, 0, len(seed)+chainhash.HashSize)
	data = append(data, seed[:]...)
	data = append(data, txid[:]...)

	var tag TxTag
	copy(tag[:], chainhash.HashB(data))
	return tag
}

// String returns the tag as a hexadecimal string.
func (tag TxTag) String() string {
	return hex.EncodeToString(tag[:])
}

// SyncDataID identifies which representation a MemPoolSyncData carries.
type SyncDataID uint8

const (
	// SyncDataBloomFilter indicates the sync data carries a bloom filter
	// over the sender's recent transaction ids.
	SyncDataBloomFilter SyncDataID = 0

	// SyncDataTxTags indicates the sync data carries the sender's recent
	// transaction ids as seeded tags.
	SyncDataTxTags SyncDataID = 1
)

// MemPoolSyncData is a compact representation of the transaction ids a node
// already has, sent with a mempool query so the remote peer can answer with
// only the transactions the querier is missing.
type MemPoolSyncData struct {
	ID SyncDataID

	// BloomFilter is set when ID is SyncDataBloomFilter.
	BloomFilter *bloom.Filter

	// Seed and Tags are set when ID is SyncDataTxTags.
	Seed [32]byte
	Tags []TxTag
}

// NewBloomSyncData returns sync data carrying the passed filter.
func NewBloomSyncData(filter *bloom.Filter) *MemPoolSyncData {
	return &MemPoolSyncData{
		ID:          SyncDataBloomFilter,
		BloomFilter: filter,
	}
}

// NewTxTagsSyncData returns sync data carrying the passed tags.
func NewTxTagsSyncData(seed [32]byte, tags []TxTag) *MemPoolSyncData {
	return &MemPoolSyncData{
		ID:   SyncDataTxTags,
		Seed: seed,
		Tags: tags,
	}
}

// Contains returns whether the sync data claims its sender already has the
// transaction with the given id.  For tag sync data the id is tagged with
// the carried seed before the lookup.
func (sd *MemPoolSyncData) Contains(txid *chainhash.Hash) bool {
	switch sd.ID {
	case SyncDataBloomFilter:
		return sd.BloomFilter.Contains(txid[:])

	case SyncDataTxTags:
		tag := TxTagFromSeed(sd.Seed, txid)
		for _, have := range sd.Tags {
			if have == tag {
				return true
			}
		}
		return false
	}
	return false
}

// readSyncData reads an encoded MemPoolSyncData from r.
func readSyncData(r io.Reader, pver uint32, sd *MemPoolSyncData) error {
	var id uint8
	if err := readElement(r, &id); err != nil {
		return err
	}

	switch SyncDataID(id) {
	case SyncDataBloomFilter:
		sd.ID = SyncDataBloomFilter
		sd.BloomFilter = &bloom.Filter{}
		if err := sd.BloomFilter.Deserialize(r); err != nil {
			if msgErr, ok := err.(*MessageError); ok {
				return msgErr
			}
			return messageError("readSyncData", err.Error())
		}
		sd.Seed = [32]byte{}
		sd.Tags = nil
		return nil

	case SyncDataTxTags:
		sd.ID = SyncDataTxTags
		sd.BloomFilter = nil
		if _, err := io.ReadFull(r, sd.Seed[:]); err != nil {
			return err
		}
		count, err := readVarCount(r, pver, MaxTxTags, "tx tags")
		if err != nil {
			return err
		}
		sd.Tags = make([]TxTag, count)
		for i := uint32(0); i < count; i++ {
			if _, err := io.ReadFull(r, sd.Tags[i][:]); err != nil {
				return err
			}
		}
		return nil
	}

	str := fmt.Sprintf("unknown sync data id %d", id)
	return messageError("readSyncData", str)
}

// writeSyncData writes an encoded MemPoolSyncData to w.
func writeSyncData(w io.Writer, pver uint32, sd *MemPoolSyncData) error {
	if err := writeElement(w, uint8(sd.ID)); err != nil {
		return err
	}

	switch sd.ID {
	case SyncDataBloomFilter:
		return sd.BloomFilter.Serialize(w)

	case SyncDataTxTags:
		if _, err := w.Write(sd.Seed[:]); err != nil {
			return err
		}
		count := len(sd.Tags)
		if count > MaxTxTags {
			str := fmt.Sprintf("too many tx tags [count %v, "+
				"max %v]", count, MaxTxTags)
			return messageError("writeSyncData", str)
		}
		if err := writeElement(w, uint32(count)); err != nil {
			return err
		}
		for i := range sd.Tags {
			if _, err := w.Write(sd.Tags[i][:]); err != nil {
				return err
			}
		}
		return nil
	}

	str := fmt.Sprintf("unknown sync data id %d", sd.ID)
	return messageError("writeSyncData", str)
}

// maxSyncDataSize is the largest encoded MemPoolSyncData: the tag form with
// a full complement of tags.
const maxSyncDataSize = 1 + 32 + 4 + MaxTxTags*TxTagSize
