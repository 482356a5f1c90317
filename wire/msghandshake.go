// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
)

// MaxDataURLLen is the maximum number of bytes the advertised data endpoint
// URL may occupy.
const MaxDataURLLen = 1024

// handshakeDataLen is the fixed portion of HandshakeData plus the varstring
// overhead of the data URL.
const handshakeDataLen = PeerAddressSize + 2 + 2 + PubKeySize + 8 + 4 + MaxDataURLLen

// Service flag bits advertised in handshakes.
const (
	// ServiceRelay means the peer relays blocks and transactions.
	ServiceRelay uint16 = 1 << 0

	// ServiceData means the peer serves its data endpoint at DataURL.
	ServiceData uint16 = 1 << 1
)

// HandshakeData is the body shared by handshake and handshake-accept
// messages: who the peer claims to be and how to reach it.
type HandshakeData struct {
	// Addr and Port are the peer's self-reported address, which may
	// legitimately differ from the socket address when the peer is
	// behind a NAT.
	Addr PeerAddress
	Port uint16

	// Services is the bitmask of service flags the peer provides.
	Services uint16

	// NodePublicKey is the compressed secp256k1 key the peer will sign
	// its messages with.
	NodePublicKey [PubKeySize]byte

	// ExpireBlockHeight is the burn height at which the key stops being
	// valid.  Handshakes carrying an already-expired key are rejected.
	ExpireBlockHeight uint64

	// DataURL is where the peer serves its data endpoint, if anywhere.
	DataURL string
}

// readHandshakeData reads an encoded HandshakeData from r.
func readHandshakeData(r io.Reader, pver uint32, hd *HandshakeData) error {
	err := readElements(r, &hd.Addr, &hd.Port, &hd.Services,
		&hd.NodePublicKey, &hd.ExpireBlockHeight)
	if err != nil {
		return err
	}
	hd.DataURL, err = readVarString(r, pver, MaxDataURLLen, "data URL")
	return err
}

// writeHandshakeData serializes a HandshakeData to w.
func writeHandshakeData(w io.Writer, pver uint32, hd *HandshakeData) error {
	err := writeElements(w, hd.Addr, hd.Port, hd.Services,
		hd.NodePublicKey, hd.ExpireBlockHeight)
	if err != nil {
		return err
	}
	return writeVarString(w, pver, hd.DataURL)
}

// MsgHandshake implements the Message interface and represents an Ember
// handshake message.  It is the first message a peer must send on a new
// conversation and the only data-bearing message accepted before
// authentication.  The receiver authenticates the envelope signature against
// the key claimed here.
type MsgHandshake struct {
	HandshakeData
}

// EmberDecode decodes r using the Ember protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgHandshake) EmberDecode(r io.Reader, pver uint32) error {
	return readHandshakeData(r, pver, &msg.HandshakeData)
}

// EmberEncode encodes the receiver to w using the Ember protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgHandshake) EmberEncode(w io.Writer, pver uint32) error {
	return writeHandshakeData(w, pver, &msg.HandshakeData)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgHandshake) Command() string {
	return CmdHandshake
}

// Type returns the message type id for the message.  This is part of the
// Message interface implementation.
func (msg *MsgHandshake) Type() MessageType {
	return TypeHandshake
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgHandshake) MaxPayloadLength(pver uint32) uint32 {
	return handshakeDataLen
}

// NewMsgHandshake returns a new Ember handshake message that conforms to the
// Message interface using the passed handshake data.
func NewMsgHandshake(hd HandshakeData) *MsgHandshake {
	return &MsgHandshake{HandshakeData: hd}
}
