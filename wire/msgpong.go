// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
)

// MsgPong implements the Message interface and represents an Ember pong
// message which is used primarily to confirm that a connection is still
// valid in response to an Ember ping message (MsgPing).
//
// This message echoes the nonce of the ping it answers.
type MsgPong struct {
	// Unique value associated with message that is used to identify
	// specific ping message.
	Nonce uint32
}

// EmberDecode decodes r using the Ember protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgPong) EmberDecode(r io.Reader, pver uint32) error {
	return readElement(r, &msg.Nonce)
}

// EmberEncode encodes the receiver to w using the Ember protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgPong) EmberEncode(w io.Writer, pver uint32) error {
	return writeElement(w, msg.Nonce)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgPong) Command() string {
	return CmdPong
}

// Type returns the message type id for the message.  This is part of the
// Message interface implementation.
func (msg *MsgPong) Type() MessageType {
	return TypePong
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgPong) MaxPayloadLength(pver uint32) uint32 {
	// Nonce 4 bytes.
	return 4
}

// NewMsgPong returns a new Ember pong message that conforms to the Message
// interface.  See MsgPong for details.
func NewMsgPong(nonce uint32) *MsgPong {
	return &MsgPong{Nonce: nonce}
}
