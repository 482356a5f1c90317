// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
)

// MsgHandshakeReject implements the Message interface and represents the
// negative reply to a handshake whose parameters were unacceptable (expired
// key, inconsistent address, self-handshake).  The connection stays open so
// the peer can retry with corrected parameters; protocol-fatal violations
// never produce this message.
type MsgHandshakeReject struct{}

// EmberDecode decodes r using the Ember protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgHandshakeReject) EmberDecode(r io.Reader, pver uint32) error {
	return nil
}

// EmberEncode encodes the receiver to w using the Ember protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgHandshakeReject) EmberEncode(w io.Writer, pver uint32) error {
	return nil
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgHandshakeReject) Command() string {
	return CmdHandshakeReject
}

// Type returns the message type id for the message.  This is part of the
// Message interface implementation.
func (msg *MsgHandshakeReject) Type() MessageType {
	return TypeHandshakeReject
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgHandshakeReject) MaxPayloadLength(pver uint32) uint32 {
	return 0
}

// NewMsgHandshakeReject returns a new Ember handshake-reject message that
// conforms to the Message interface.
func NewMsgHandshakeReject() *MsgHandshakeReject {
	return &MsgHandshakeReject{}
}
