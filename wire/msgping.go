// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
)

// MsgPing implements the Message interface and represents an Ember ping
// message.  It is used to confirm that a conversation is still live within
// the negotiated heartbeat interval.
//
// The payload consists of a nonce the matching pong must echo.
type MsgPing struct {
	// Unique value associated with message that is used to identify
	// specific ping message.
	Nonce uint32
}

// EmberDecode decodes r using the Ember protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgPing) EmberDecode(r io.Reader, pver uint32) error {
	return readElement(r, &msg.Nonce)
}

// EmberEncode encodes the receiver to w using the Ember protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgPing) EmberEncode(w io.Writer, pver uint32) error {
	return writeElement(w, msg.Nonce)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgPing) Command() string {
	return CmdPing
}

// Type returns the message type id for the message.  This is part of the
// Message interface implementation.
func (msg *MsgPing) Type() MessageType {
	return TypePing
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgPing) MaxPayloadLength(pver uint32) uint32 {
	// Nonce 4 bytes.
	return 4
}

// NewMsgPing returns a new Ember ping message that conforms to the Message
// interface.  See MsgPing for details.
func NewMsgPing(nonce uint32) *MsgPing {
	return &MsgPing{Nonce: nonce}
}
