// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"

	"github.com/embersuite/emberd/chaincfg/chainhash"
)

// MaxBlocksPushPerMsg is the maximum number of blocks a single push message
// may carry.
const MaxBlocksPushPerMsg = 32

// MaxBlockSerializeSize is the largest serialized block accepted on the
// wire.
const MaxBlockSerializeSize = 2 * 1024 * 1024

// BlockEntry pairs a serialized block with the consensus hash of the burn
// chain view it was mined under.
type BlockEntry struct {
	ConsensusHash chainhash.Hash
	Block         []byte
}

// MsgBlocksPush implements the Message interface and carries whole blocks
// being relayed to the network.  Relay accounting charges the sender for the
// payload minus the type byte and the four-byte entry count.
type MsgBlocksPush struct {
	Blocks []BlockEntry
}

// AddBlock appends a block entry to the message.
func (msg *MsgBlocksPush) AddBlock(entry BlockEntry) error {
	if len(msg.Blocks)+1 > MaxBlocksPushPerMsg {
		str := fmt.Sprintf("too many blocks for message [max %v]",
			MaxBlocksPushPerMsg)
		return messageError("MsgBlocksPush.AddBlock", str)
	}
	msg.Blocks = append(msg.Blocks, entry)
	return nil
}

// EmberDecode decodes r using the Ember protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgBlocksPush) EmberDecode(r io.Reader, pver uint32) error {
	count, err := readVarCount(r, pver, MaxBlocksPushPerMsg, "blocks push")
	if err != nil {
		return err
	}

	msg.Blocks = make([]BlockEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		var entry BlockEntry
		err := readElement(r, &entry.ConsensusHash)
		if err != nil {
			return err
		}
		entry.Block, err = readVarBytes(r, pver,
			MaxBlockSerializeSize, "block")
		if err != nil {
			return err
		}
		msg.Blocks = append(msg.Blocks, entry)
	}
	return nil
}

// EmberEncode encodes the receiver to w using the Ember protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgBlocksPush) EmberEncode(w io.Writer, pver uint32) error {
	count := len(msg.Blocks)
	if count > MaxBlocksPushPerMsg {
		str := fmt.Sprintf("too many blocks for message "+
			"[count %v, max %v]", count, MaxBlocksPushPerMsg)
		return messageError("MsgBlocksPush.EmberEncode", str)
	}

	if err := writeElement(w, uint32(count)); err != nil {
		return err
	}
	for i := range msg.Blocks {
		err := writeElement(w, &msg.Blocks[i].ConsensusHash)
		if err != nil {
			return err
		}
		err = writeVarBytes(w, pver, msg.Blocks[i].Block)
		if err != nil {
			return err
		}
	}
	return nil
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgBlocksPush) Command() string {
	return CmdBlocksPush
}

// Type returns the wire type byte for the message.  This is part of the
// Message interface implementation.
func (msg *MsgBlocksPush) Type() MessageType {
	return TypeBlocksPush
}

// MaxPayloadLength returns the maximum length the payload can be.  This is
// part of the Message interface implementation.
func (msg *MsgBlocksPush) MaxPayloadLength(pver uint32) uint32 {
	return 4 + MaxBlocksPushPerMsg*
		(chainhash.HashSize+4+MaxBlockSerializeSize)
}

// NewMsgBlocksPush returns a new blocks push message with no entries.
func NewMsgBlocksPush() *MsgBlocksPush {
	return &MsgBlocksPush{
		Blocks: make([]BlockEntry, 0, 1),
	}
}
