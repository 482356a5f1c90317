// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
)

// MsgNatPunchRequest implements the Message interface and asks the receiving
// peer to report the address it observes for the sender, so a NATed node can
// learn its public endpoint.
type MsgNatPunchRequest struct {
	// Nonce correlates the reply with this request.
	Nonce uint32
}

// EmberDecode decodes r using the Ember protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgNatPunchRequest) EmberDecode(r io.Reader, pver uint32) error {
	return readElement(r, &msg.Nonce)
}

// EmberEncode encodes the receiver to w using the Ember protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgNatPunchRequest) EmberEncode(w io.Writer, pver uint32) error {
	return writeElement(w, msg.Nonce)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgNatPunchRequest) Command() string {
	return CmdNatPunchRequest
}

// Type returns the message type id for the message.  This is part of the
// Message interface implementation.
func (msg *MsgNatPunchRequest) Type() MessageType {
	return TypeNatPunchRequest
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgNatPunchRequest) MaxPayloadLength(pver uint32) uint32 {
	// Nonce 4 bytes.
	return 4
}

// NewMsgNatPunchRequest returns a new Ember nat-punch request message that
// conforms to the Message interface.
func NewMsgNatPunchRequest(nonce uint32) *MsgNatPunchRequest {
	return &MsgNatPunchRequest{Nonce: nonce}
}
