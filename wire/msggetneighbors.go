// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
)

// MsgGetNeighbors implements the Message interface and requests the
// receiving peer's freshest known neighbors.  It has no payload.
type MsgGetNeighbors struct{}

// EmberDecode decodes r using the Ember protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgGetNeighbors) EmberDecode(r io.Reader, pver uint32) error {
	return nil
}

// EmberEncode encodes the receiver to w using the Ember protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgGetNeighbors) EmberEncode(w io.Writer, pver uint32) error {
	return nil
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgGetNeighbors) Command() string {
	return CmdGetNeighbors
}

// Type returns the message type id for the message.  This is part of the
// Message interface implementation.
func (msg *MsgGetNeighbors) Type() MessageType {
	return TypeGetNeighbors
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgGetNeighbors) MaxPayloadLength(pver uint32) uint32 {
	return 0
}

// NewMsgGetNeighbors returns a new Ember get-neighbors message that conforms
// to the Message interface.
func NewMsgGetNeighbors() *MsgGetNeighbors {
	return &MsgGetNeighbors{}
}
