// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/embersuite/emberd/chaincfg/chainhash"
	"github.com/embersuite/emberd/wire"
)

// LocalPeer is the local node's p2p identity: the key it signs envelopes
// with and the contact details it advertises in handshakes.  It is shared
// read-only across every conversation, so none of its fields may be
// mutated once conversations are running.  Key rotation is done by
// building a new LocalPeer and handing it to subsequent calls.
type LocalPeer struct {
	// NetworkID is the network magic stamped on every outbound preamble.
	NetworkID uint32

	// PrivateKey signs every envelope this node originates.
	PrivateKey *btcec.PrivateKey

	// KeyExpireHeight is the burn height advertised as the key's expiry.
	KeyExpireHeight uint64

	// Addr and Port are the publicly routable contact address advertised
	// in handshakes.  Addr may be unspecified when the node is behind a
	// NAT and has not yet discovered its public address.
	Addr wire.PeerAddress
	Port uint16

	// Services is the service bitmask advertised in handshakes.
	Services uint16

	// DataURL is the advertised data endpoint, or empty if none.
	DataURL string
}

// NodePublicKey returns the compressed public key this node advertises.
func (lp *LocalPeer) NodePublicKey() [wire.PubKeySize]byte {
	var pub [wire.PubKeySize]byte
	copy(pub[:], lp.PrivateKey.PubKey().SerializeCompressed())
	return pub
}

// PublicKeyHash returns the hash of the node's compressed public key, as
// carried in relay hints.
func (lp *LocalPeer) PublicKeyHash() chainhash.Hash160 {
	return chainhash.Hash160H(lp.PrivateKey.PubKey().SerializeCompressed())
}

// NeighborAddress returns this node's identity as other peers would record
// it in relay hints and neighbor lists.
func (lp *LocalPeer) NeighborAddress() wire.NeighborAddress {
	return wire.NeighborAddress{
		Addr:          lp.Addr,
		Port:          lp.Port,
		PublicKeyHash: lp.PublicKeyHash(),
	}
}

// HandshakeData returns the handshake body this node sends when
// authenticating to a remote peer.
func (lp *LocalPeer) HandshakeData() wire.HandshakeData {
	return wire.HandshakeData{
		Addr:              lp.Addr,
		Port:              lp.Port,
		Services:          lp.Services,
		NodePublicKey:     lp.NodePublicKey(),
		ExpireBlockHeight: lp.KeyExpireHeight,
		DataURL:           lp.DataURL,
	}
}
