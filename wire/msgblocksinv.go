// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"
)

// MsgBlocksInv implements the Message interface and answers a get-blocks-inv
// request with two bit vectors: which blocks the peer has, and which of
// those have complete microblock streams.  Bit i refers to height
// StartHeight+i of the request; both vectors are BitLen bits padded to whole
// bytes.
type MsgBlocksInv struct {
	BitLen         uint16
	BlockBitVec    []byte
	MicroblocksVec []byte
}

// bitVecLen returns the number of bytes needed to hold bits bits.
func bitVecLen(bits uint16) int {
	return (int(bits) + 7) / 8
}

// HasBlock returns whether the inventory marks the block at bit i available.
func (msg *MsgBlocksInv) HasBlock(i uint16) bool {
	if i >= msg.BitLen {
		return false
	}
	return msg.BlockBitVec[i/8]&(1<<(i%8)) != 0
}

// HasMicroblocks returns whether the inventory marks the microblock stream
// at bit i available.
func (msg *MsgBlocksInv) HasMicroblocks(i uint16) bool {
	if i >= msg.BitLen {
		return false
	}
	return msg.MicroblocksVec[i/8]&(1<<(i%8)) != 0
}

// EmberDecode decodes r using the Ember protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgBlocksInv) EmberDecode(r io.Reader, pver uint32) error {
	if err := readElement(r, &msg.BitLen); err != nil {
		return err
	}
	if msg.BitLen > MaxBlocksInvPerMsg {
		str := fmt.Sprintf("block inv is too long [len %d, max %d]",
			msg.BitLen, MaxBlocksInvPerMsg)
		return messageError("MsgBlocksInv.EmberDecode", str)
	}

	vecLen := bitVecLen(msg.BitLen)
	var err error
	msg.BlockBitVec, err = readVarBytes(r, pver, uint32(vecLen),
		"block bit vector")
	if err != nil {
		return err
	}
	msg.MicroblocksVec, err = readVarBytes(r, pver, uint32(vecLen),
		"microblock bit vector")
	if err != nil {
		return err
	}

	if len(msg.BlockBitVec) != vecLen || len(msg.MicroblocksVec) != vecLen {
		str := fmt.Sprintf("bit vector length mismatch [blocks %d, "+
			"microblocks %d, want %d]", len(msg.BlockBitVec),
			len(msg.MicroblocksVec), vecLen)
		return messageError("MsgBlocksInv.EmberDecode", str)
	}
	return nil
}

// EmberEncode encodes the receiver to w using the Ember protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgBlocksInv) EmberEncode(w io.Writer, pver uint32) error {
	vecLen := bitVecLen(msg.BitLen)
	if msg.BitLen > MaxBlocksInvPerMsg || len(msg.BlockBitVec) != vecLen ||
		len(msg.MicroblocksVec) != vecLen {

		return messageError("MsgBlocksInv.EmberEncode",
			"malformed block inventory")
	}

	if err := writeElement(w, msg.BitLen); err != nil {
		return err
	}
	if err := writeVarBytes(w, pver, msg.BlockBitVec); err != nil {
		return err
	}
	return writeVarBytes(w, pver, msg.MicroblocksVec)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgBlocksInv) Command() string {
	return CmdBlocksInv
}

// Type returns the message type id for the message.  This is part of the
// Message interface implementation.
func (msg *MsgBlocksInv) Type() MessageType {
	return TypeBlocksInv
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgBlocksInv) MaxPayloadLength(pver uint32) uint32 {
	// Bit length 2 bytes + two varbyte vectors of at most
	// MaxBlocksInvPerMsg/8 bytes each.
	return 2 + 2*(4+MaxBlocksInvPerMsg/8)
}

// NewMsgBlocksInv returns a new Ember blocks-inv message covering bitLen
// heights with all bits cleared.
func NewMsgBlocksInv(bitLen uint16) *MsgBlocksInv {
	vecLen := bitVecLen(bitLen)
	return &MsgBlocksInv{
		BitLen:         bitLen,
		BlockBitVec:    make([]byte, vecLen),
		MicroblocksVec: make([]byte, vecLen),
	}
}

// SetBlock marks the block at bit i available.
func (msg *MsgBlocksInv) SetBlock(i uint16) {
	if i < msg.BitLen {
		msg.BlockBitVec[i/8] |= 1 << (i % 8)
	}
}

// SetMicroblocks marks the microblock stream at bit i available.
func (msg *MsgBlocksInv) SetMicroblocks(i uint16) {
	if i < msg.BitLen {
		msg.MicroblocksVec[i/8] |= 1 << (i % 8)
	}
}
