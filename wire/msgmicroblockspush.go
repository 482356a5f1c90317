// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"

	"github.com/embersuite/emberd/chaincfg/chainhash"
)

// MaxMicroblocksPushPerMsg is the maximum number of microblocks a single
// push message may carry.
const MaxMicroblocksPushPerMsg = 128

// MaxMicroblockSerializeSize is the largest serialized microblock accepted
// on the wire.
const MaxMicroblockSerializeSize = 64 * 1024

// MsgMicroblocksPush implements the Message interface and carries a run of
// microblocks descending from the anchored block identified by IndexHash.
// Relay accounting charges the sender for the payload minus the type byte
// and the four-byte entry count.
type MsgMicroblocksPush struct {
	IndexHash   chainhash.Hash
	Microblocks [][]byte
}

// AddMicroblock appends a serialized microblock to the message.
func (msg *MsgMicroblocksPush) AddMicroblock(mblock []byte) error {
	if len(msg.Microblocks)+1 > MaxMicroblocksPushPerMsg {
		str := fmt.Sprintf("too many microblocks for message [max %v]",
			MaxMicroblocksPushPerMsg)
		return messageError("MsgMicroblocksPush.AddMicroblock", str)
	}
	msg.Microblocks = append(msg.Microblocks, mblock)
	return nil
}

// EmberDecode decodes r using the Ember protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgMicroblocksPush) EmberDecode(r io.Reader, pver uint32) error {
	err := readElement(r, &msg.IndexHash)
	if err != nil {
		return err
	}

	count, err := readVarCount(r, pver, MaxMicroblocksPushPerMsg,
		"microblocks push")
	if err != nil {
		return err
	}

	msg.Microblocks = make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		mblock, err := readVarBytes(r, pver,
			MaxMicroblockSerializeSize, "microblock")
		if err != nil {
			return err
		}
		msg.Microblocks = append(msg.Microblocks, mblock)
	}
	return nil
}

// EmberEncode encodes the receiver to w using the Ember protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgMicroblocksPush) EmberEncode(w io.Writer, pver uint32) error {
	count := len(msg.Microblocks)
	if count > MaxMicroblocksPushPerMsg {
		str := fmt.Sprintf("too many microblocks for message "+
			"[count %v, max %v]", count, MaxMicroblocksPushPerMsg)
		return messageError("MsgMicroblocksPush.EmberEncode", str)
	}

	err := writeElement(w, &msg.IndexHash)
	if err != nil {
		return err
	}
	if err := writeElement(w, uint32(count)); err != nil {
		return err
	}
	for _, mblock := range msg.Microblocks {
		if err := writeVarBytes(w, pver, mblock); err != nil {
			return err
		}
	}
	return nil
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgMicroblocksPush) Command() string {
	return CmdMicroblocksPush
}

// Type returns the wire type byte for the message.  This is part of the
// Message interface implementation.
func (msg *MsgMicroblocksPush) Type() MessageType {
	return TypeMicroblocksPush
}

// MaxPayloadLength returns the maximum length the payload can be.  This is
// part of the Message interface implementation.
func (msg *MsgMicroblocksPush) MaxPayloadLength(pver uint32) uint32 {
	return chainhash.HashSize + 4 + MaxMicroblocksPushPerMsg*
		(4+MaxMicroblockSerializeSize)
}

// NewMsgMicroblocksPush returns a new microblocks push message for the
// anchored block identified by indexHash.
func NewMsgMicroblocksPush(indexHash *chainhash.Hash) *MsgMicroblocksPush {
	return &MsgMicroblocksPush{
		IndexHash:   *indexHash,
		Microblocks: make([][]byte, 0, 1),
	}
}
