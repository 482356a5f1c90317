// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"
	"net"

	"github.com/embersuite/emberd/chaincfg/chainhash"
)

// PeerAddressSize is the number of bytes a peer address occupies on the wire.
const PeerAddressSize = 16

// NeighborAddressSize is the number of bytes a neighbor address occupies on
// the wire: the peer address, the port, and the public key hash.
const NeighborAddressSize = PeerAddressSize + 2 + chainhash.Hash160Size

// RelayDataSize is the number of bytes a relay hint occupies on the wire.
const RelayDataSize = NeighborAddressSize + 4

// PeerAddress is a fixed-width IPv6-mapped host address.  IPv4 addresses are
// stored in the usual ::ffff:a.b.c.d mapping.
type PeerAddress [PeerAddressSize]byte

// PeerAddressFromIP converts a net.IP into its wire representation.  Nil and
// unrepresentable addresses map to the zero address.
func PeerAddressFromIP(ip net.IP) PeerAddress {
	var addr PeerAddress
	if ip == nil {
		return addr
	}
	if ip16 := ip.To16(); ip16 != nil {
		copy(addr[:], ip16)
	}
	return addr
}

// ToIP returns the address as a net.IP.
func (p PeerAddress) ToIP() net.IP {
	return net.IP(p[:])
}

// IsIPv4 returns whether the address is an IPv6-mapped IPv4 address.
func (p PeerAddress) IsIPv4() bool {
	return p.ToIP().To4() != nil
}

// IsUnspecified returns whether the address is the any-network bind address,
// 0.0.0.0 or ::.  Peers behind a NAT that do not yet know their public
// address advertise it in handshakes.
func (p PeerAddress) IsUnspecified() bool {
	return p.ToIP().IsUnspecified()
}

// String returns the address in its conventional textual form.
func (p PeerAddress) String() string {
	return p.ToIP().String()
}

// NeighborAddress identifies a routable neighbor: where to reach it and which
// public key it is expected to present.  The key hash rather than the full
// key is carried so relay hints stay compact.
type NeighborAddress struct {
	Addr          PeerAddress
	Port          uint16
	PublicKeyHash chainhash.Hash160
}

// String returns the neighbor in host:port@keyhash form for logging.
func (na *NeighborAddress) String() string {
	return fmt.Sprintf("%s@%s", net.JoinHostPort(na.Addr.String(),
		fmt.Sprintf("%d", na.Port)), na.PublicKeyHash)
}

// readNeighborAddress reads an encoded NeighborAddress from r.
func readNeighborAddress(r io.Reader, pver uint32, na *NeighborAddress) error {
	return readElements(r, &na.Addr, &na.Port, &na.PublicKeyHash)
}

// writeNeighborAddress serializes a NeighborAddress to w.
func writeNeighborAddress(w io.Writer, pver uint32, na *NeighborAddress) error {
	return writeElements(w, na.Addr, na.Port, na.PublicKeyHash)
}

// RelayData is a relay hint: a record that the named neighbor forwarded the
// enclosing message, along with the sequence number it used when it did.
// Relay hints are used for loop detection and bandwidth attribution.
type RelayData struct {
	Peer NeighborAddress
	Seq  uint32
}

// readRelayData reads an encoded RelayData from r.
func readRelayData(r io.Reader, pver uint32, rd *RelayData) error {
	if err := readNeighborAddress(r, pver, &rd.Peer); err != nil {
		return err
	}
	return readElement(r, &rd.Seq)
}

// writeRelayData serializes a RelayData to w.
func writeRelayData(w io.Writer, pver uint32, rd *RelayData) error {
	if err := writeNeighborAddress(w, pver, &rd.Peer); err != nil {
		return err
	}
	return writeElement(w, rd.Seq)
}
