// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"
)

// MaxBlocksInvPerMsg is the maximum number of block inventory bits a single
// inv request may cover.
const MaxBlocksInvPerMsg = 4096

// MsgGetBlocksInv implements the Message interface and requests a bit vector
// of which blocks (and microblock streams) the receiving peer has available
// in the given height range.
type MsgGetBlocksInv struct {
	// StartHeight is the first chain height covered by the request.
	StartHeight uint64

	// Count is the number of consecutive heights requested.
	Count uint16
}

// EmberDecode decodes r using the Ember protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgGetBlocksInv) EmberDecode(r io.Reader, pver uint32) error {
	if err := readElements(r, &msg.StartHeight, &msg.Count); err != nil {
		return err
	}
	if msg.Count == 0 || msg.Count > MaxBlocksInvPerMsg {
		str := fmt.Sprintf("invalid block inv count %d [max %d]",
			msg.Count, MaxBlocksInvPerMsg)
		return messageError("MsgGetBlocksInv.EmberDecode", str)
	}
	return nil
}

// EmberEncode encodes the receiver to w using the Ember protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgGetBlocksInv) EmberEncode(w io.Writer, pver uint32) error {
	if msg.Count == 0 || msg.Count > MaxBlocksInvPerMsg {
		str := fmt.Sprintf("invalid block inv count %d [max %d]",
			msg.Count, MaxBlocksInvPerMsg)
		return messageError("MsgGetBlocksInv.EmberEncode", str)
	}
	return writeElements(w, msg.StartHeight, msg.Count)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgGetBlocksInv) Command() string {
	return CmdGetBlocksInv
}

// Type returns the message type id for the message.  This is part of the
// Message interface implementation.
func (msg *MsgGetBlocksInv) Type() MessageType {
	return TypeGetBlocksInv
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgGetBlocksInv) MaxPayloadLength(pver uint32) uint32 {
	// Start height 8 bytes + count 2 bytes.
	return 10
}

// NewMsgGetBlocksInv returns a new Ember get-blocks-inv message that
// conforms to the Message interface.
func NewMsgGetBlocksInv(startHeight uint64, count uint16) *MsgGetBlocksInv {
	return &MsgGetBlocksInv{StartHeight: startHeight, Count: count}
}
