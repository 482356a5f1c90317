// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
)

// MsgTxPush implements the Message interface and carries a single
// transaction being relayed to the network.  Relay accounting charges the
// sender for the payload minus the one-byte message type.
type MsgTxPush struct {
	Tx Transaction
}

// EmberDecode decodes r using the Ember protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgTxPush) EmberDecode(r io.Reader, pver uint32) error {
	return msg.Tx.Deserialize(r)
}

// EmberEncode encodes the receiver to w using the Ember protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgTxPush) EmberEncode(w io.Writer, pver uint32) error {
	return msg.Tx.Serialize(w)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgTxPush) Command() string {
	return CmdTxPush
}

// Type returns the wire type byte for the message.  This is part of the
// Message interface implementation.
func (msg *MsgTxPush) Type() MessageType {
	return TypeTxPush
}

// MaxPayloadLength returns the maximum length the payload can be.  This is
// part of the Message interface implementation.
func (msg *MsgTxPush) MaxPayloadLength(pver uint32) uint32 {
	return MaxTxSerializeSize
}

// NewMsgTxPush returns a new tx push message carrying the passed transaction.
func NewMsgTxPush(tx *Transaction) *MsgTxPush {
	return &MsgTxPush{Tx: *tx}
}
