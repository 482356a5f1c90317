// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"
)

// MaxNeighborsPerMsg is the maximum number of neighbor addresses a single
// neighbors message may carry.
const MaxNeighborsPerMsg = 128

// MsgNeighbors implements the Message interface and carries the freshest
// known neighbors in reply to a get-neighbors request.
type MsgNeighbors struct {
	Neighbors []NeighborAddress
}

// AddNeighbor adds a known neighbor to the message.
func (msg *MsgNeighbors) AddNeighbor(na NeighborAddress) error {
	if len(msg.Neighbors)+1 > MaxNeighborsPerMsg {
		str := fmt.Sprintf("too many neighbors in message [max %d]",
			MaxNeighborsPerMsg)
		return messageError("MsgNeighbors.AddNeighbor", str)
	}

	msg.Neighbors = append(msg.Neighbors, na)
	return nil
}

// EmberDecode decodes r using the Ember protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgNeighbors) EmberDecode(r io.Reader, pver uint32) error {
	count, err := readVarCount(r, pver, MaxNeighborsPerMsg, "neighbors")
	if err != nil {
		return err
	}

	msg.Neighbors = make([]NeighborAddress, count)
	for i := range msg.Neighbors {
		err := readNeighborAddress(r, pver, &msg.Neighbors[i])
		if err != nil {
			return err
		}
	}
	return nil
}

// EmberEncode encodes the receiver to w using the Ember protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgNeighbors) EmberEncode(w io.Writer, pver uint32) error {
	count := len(msg.Neighbors)
	if count > MaxNeighborsPerMsg {
		str := fmt.Sprintf("too many neighbors in message [count %d, "+
			"max %d]", count, MaxNeighborsPerMsg)
		return messageError("MsgNeighbors.EmberEncode", str)
	}

	if err := writeElement(w, uint32(count)); err != nil {
		return err
	}
	for i := range msg.Neighbors {
		err := writeNeighborAddress(w, pver, &msg.Neighbors[i])
		if err != nil {
			return err
		}
	}
	return nil
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgNeighbors) Command() string {
	return CmdNeighbors
}

// Type returns the message type id for the message.  This is part of the
// Message interface implementation.
func (msg *MsgNeighbors) Type() MessageType {
	return TypeNeighbors
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgNeighbors) MaxPayloadLength(pver uint32) uint32 {
	return 4 + MaxNeighborsPerMsg*NeighborAddressSize
}

// NewMsgNeighbors returns a new Ember neighbors message that conforms to the
// Message interface.  See MsgNeighbors for details.
func NewMsgNeighbors() *MsgNeighbors {
	return &MsgNeighbors{
		Neighbors: make([]NeighborAddress, 0, MaxNeighborsPerMsg),
	}
}
