// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"

	"github.com/embersuite/emberd/chaincfg/chainhash"
)

// MsgGetMempoolTxs implements the Message interface and asks a peer for the
// mempool transactions the sender is missing.  SyncData describes what the
// sender already has, HeightFloor excludes transactions accepted below the
// given chain height, and PageID resumes a paginated scan.  An all-zero
// PageID starts from the beginning.
type MsgGetMempoolTxs struct {
	SyncData    MemPoolSyncData
	HeightFloor uint64
	PageID      chainhash.Hash
}

// EmberDecode decodes r using the Ember protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgGetMempoolTxs) EmberDecode(r io.Reader, pver uint32) error {
	if err := readSyncData(r, pver, &msg.SyncData); err != nil {
		return err
	}
	return readElements(r, &msg.HeightFloor, &msg.PageID)
}

// EmberEncode encodes the receiver to w using the Ember protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgGetMempoolTxs) EmberEncode(w io.Writer, pver uint32) error {
	if err := writeSyncData(w, pver, &msg.SyncData); err != nil {
		return err
	}
	return writeElements(w, msg.HeightFloor, &msg.PageID)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgGetMempoolTxs) Command() string {
	return CmdGetMempoolTxs
}

// Type returns the wire type byte for the message.  This is part of the
// Message interface implementation.
func (msg *MsgGetMempoolTxs) Type() MessageType {
	return TypeGetMempoolTxs
}

// MaxPayloadLength returns the maximum length the payload can be.  This is
// part of the Message interface implementation.
func (msg *MsgGetMempoolTxs) MaxPayloadLength(pver uint32) uint32 {
	return maxSyncDataSize + 8 + chainhash.HashSize
}

// NewMsgGetMempoolTxs returns a new mempool query message.
func NewMsgGetMempoolTxs(syncData *MemPoolSyncData, heightFloor uint64,
	pageID *chainhash.Hash) *MsgGetMempoolTxs {

	msg := &MsgGetMempoolTxs{
		SyncData:    *syncData,
		HeightFloor: heightFloor,
	}
	if pageID != nil {
		msg.PageID = *pageID
	}
	return msg
}
