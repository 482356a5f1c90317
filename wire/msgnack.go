// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"
)

// NackCode identifies why a message was refused.  Nacks are the recoverable
// arm of the protocol's error taxonomy: the conversation stays open.
type NackCode uint32

// Nack codes.  The values are part of the wire protocol and must not be
// renumbered.
const (
	// NackHandshakeRequired is sent in response to any data-bearing
	// message on an unauthenticated conversation.
	NackHandshakeRequired NackCode = 1

	// NackNoSuchBlock means the request named a block the node has no
	// record of.
	NackNoSuchBlock NackCode = 2

	// NackThrottled means the peer exceeded the node's configured
	// bandwidth ceiling for the message class and should back off.
	NackThrottled NackCode = 3

	// NackStaleVersion means the peer's protocol version or epoch is no
	// longer acceptable.
	NackStaleVersion NackCode = 4

	// NackInvalidMessage is a catch-all for requests the node understood
	// but refuses to serve.
	NackInvalidMessage NackCode = 5
)

// String returns the NackCode in human-readable form.
func (c NackCode) String() string {
	switch c {
	case NackHandshakeRequired:
		return "handshake required"
	case NackNoSuchBlock:
		return "no such block"
	case NackThrottled:
		return "throttled"
	case NackStaleVersion:
		return "stale version"
	case NackInvalidMessage:
		return "invalid message"
	}
	return fmt.Sprintf("unknown nack code %d", uint32(c))
}

// MsgNack implements the Message interface and represents an Ember nack: a
// structured refusal carrying an error code, sent where the protocol defines
// a reply rather than silently dropping the offending message.
type MsgNack struct {
	Code NackCode
}

// EmberDecode decodes r using the Ember protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgNack) EmberDecode(r io.Reader, pver uint32) error {
	var code uint32
	if err := readElement(r, &code); err != nil {
		return err
	}
	msg.Code = NackCode(code)
	return nil
}

// EmberEncode encodes the receiver to w using the Ember protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgNack) EmberEncode(w io.Writer, pver uint32) error {
	return writeElement(w, uint32(msg.Code))
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgNack) Command() string {
	return CmdNack
}

// Type returns the message type id for the message.  This is part of the
// Message interface implementation.
func (msg *MsgNack) Type() MessageType {
	return TypeNack
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgNack) MaxPayloadLength(pver uint32) uint32 {
	// Code 4 bytes.
	return 4
}

// NewMsgNack returns a new Ember nack message that conforms to the Message
// interface.
func NewMsgNack(code NackCode) *MsgNack {
	return &MsgNack{Code: code}
}
