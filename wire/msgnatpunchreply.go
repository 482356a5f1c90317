// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
)

// MsgNatPunchReply implements the Message interface and reports the socket
// address the replying peer observes for the requester.
type MsgNatPunchReply struct {
	// Addr and Port are the requester's address as seen from here.
	Addr PeerAddress
	Port uint16

	// Nonce echoes the request nonce.
	Nonce uint32
}

// EmberDecode decodes r using the Ember protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgNatPunchReply) EmberDecode(r io.Reader, pver uint32) error {
	return readElements(r, &msg.Addr, &msg.Port, &msg.Nonce)
}

// EmberEncode encodes the receiver to w using the Ember protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgNatPunchReply) EmberEncode(w io.Writer, pver uint32) error {
	return writeElements(w, msg.Addr, msg.Port, msg.Nonce)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgNatPunchReply) Command() string {
	return CmdNatPunchReply
}

// Type returns the message type id for the message.  This is part of the
// Message interface implementation.
func (msg *MsgNatPunchReply) Type() MessageType {
	return TypeNatPunchReply
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgNatPunchReply) MaxPayloadLength(pver uint32) uint32 {
	// Addr 16 bytes + port 2 bytes + nonce 4 bytes.
	return PeerAddressSize + 2 + 4
}

// NewMsgNatPunchReply returns a new Ember nat-punch reply message that
// conforms to the Message interface.
func NewMsgNatPunchReply(addr PeerAddress, port uint16, nonce uint32) *MsgNatPunchReply {
	return &MsgNatPunchReply{Addr: addr, Port: port, Nonce: nonce}
}
