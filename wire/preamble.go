// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"

	"github.com/embersuite/emberd/chaincfg/chainhash"
)

const (
	// ProtocolVersion is the highest peer version this code base speaks.
	// The high 24 bits carry the implementation major version and the low
	// byte carries the current network epoch.
	ProtocolVersion uint32 = 0x18000002

	// SignatureSize is the width of the recoverable secp256k1 compact
	// signature every preamble carries.
	SignatureSize = 65

	// PubKeySize is the width of a compressed secp256k1 public key on the
	// wire.
	PubKeySize = 33

	// PreambleSize is the fixed serialized size of a message preamble:
	// peer version, network id, seq, burn tip height+hash, stable
	// height+hash, additional data, signature, payload length.
	PreambleSize = 4 + 4 + 4 + 8 + chainhash.HashSize + 8 +
		chainhash.HashSize + 4 + SignatureSize + 4
)

// Preamble is the fixed-layout header that precedes every message on the
// wire.  It carries the sender's protocol identity, its claimed view of the
// burnchain, and a recoverable signature over the entire envelope.
type Preamble struct {
	// PeerVersion encodes the implementation major version in the high 24
	// bits and the network epoch the peer follows in the low byte.
	PeerVersion uint32

	// NetworkID is the chain's message magic.  A conversation rejects any
	// preamble whose network id is not an exact match.
	NetworkID uint32

	// Seq is the sender-assigned sequence number, echoed by replies so
	// requests can be correlated.
	Seq uint32

	// BurnBlockHeight and BurnBlockHash are the sender's burnchain tip.
	BurnBlockHeight uint64
	BurnBlockHash   chainhash.Hash

	// BurnStableBlockHeight and BurnStableBlockHash are the sender's
	// deeply-confirmed burnchain block.  The stable height plus the
	// network's stable confirmation depth must equal the tip height.
	BurnStableBlockHeight uint64
	BurnStableBlockHash   chainhash.Hash

	// AdditionalData is reserved for future use and ignored today.
	AdditionalData uint32

	// Signature is the recoverable signature over the serialized envelope
	// with this field zeroed.
	Signature [SignatureSize]byte

	// PayloadLen is the number of bytes that follow the preamble: the
	// relayer vector, the message type byte, and the payload body.
	PayloadLen uint32
}

// readPreamble reads an encoded Preamble from r.
func readPreamble(r io.Reader, pver uint32, p *Preamble) error {
	return readElements(r, &p.PeerVersion, &p.NetworkID, &p.Seq,
		&p.BurnBlockHeight, &p.BurnBlockHash, &p.BurnStableBlockHeight,
		&p.BurnStableBlockHash, &p.AdditionalData, &p.Signature,
		&p.PayloadLen)
}

// writePreamble serializes a Preamble to w.
func writePreamble(w io.Writer, pver uint32, p *Preamble) error {
	return writeElements(w, p.PeerVersion, p.NetworkID, p.Seq,
		p.BurnBlockHeight, p.BurnBlockHash, p.BurnStableBlockHeight,
		p.BurnStableBlockHash, p.AdditionalData, p.Signature,
		p.PayloadLen)
}
