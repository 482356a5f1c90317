// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
)

// MsgHandshakeAccept implements the Message interface and represents the
// affirmative reply to a handshake.  It carries the accepting node's own
// handshake data so both sides finish the exchange mutually authenticated,
// plus the interval at which the accepting node expects to be pinged before
// it considers the conversation idle.
type MsgHandshakeAccept struct {
	HandshakeData

	// HeartbeatIntervalSecs is how often, in seconds, the accepting node
	// wants to hear from the peer.  Receivers clamp this to their own
	// maximum rather than trusting it outright.
	HeartbeatIntervalSecs uint32
}

// EmberDecode decodes r using the Ember protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgHandshakeAccept) EmberDecode(r io.Reader, pver uint32) error {
	if err := readHandshakeData(r, pver, &msg.HandshakeData); err != nil {
		return err
	}
	return readElement(r, &msg.HeartbeatIntervalSecs)
}

// EmberEncode encodes the receiver to w using the Ember protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgHandshakeAccept) EmberEncode(w io.Writer, pver uint32) error {
	if err := writeHandshakeData(w, pver, &msg.HandshakeData); err != nil {
		return err
	}
	return writeElement(w, msg.HeartbeatIntervalSecs)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgHandshakeAccept) Command() string {
	return CmdHandshakeAccept
}

// Type returns the message type id for the message.  This is part of the
// Message interface implementation.
func (msg *MsgHandshakeAccept) Type() MessageType {
	return TypeHandshakeAccept
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgHandshakeAccept) MaxPayloadLength(pver uint32) uint32 {
	return handshakeDataLen + 4
}

// NewMsgHandshakeAccept returns a new Ember handshake-accept message that
// conforms to the Message interface.
func NewMsgHandshakeAccept(hd HandshakeData, heartbeatSecs uint32) *MsgHandshakeAccept {
	return &MsgHandshakeAccept{
		HandshakeData:         hd,
		HeartbeatIntervalSecs: heartbeatSecs,
	}
}
