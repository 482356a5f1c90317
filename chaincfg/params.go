// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

import (
	"errors"
	"math"

	"github.com/embersuite/emberd/wire"
)

// Network epoch ids.  Epochs gate consensus behavior by burn height; peers
// advertise the epoch they follow in the low byte of their peer version.
const (
	// NetworkEpoch10 is the launch ruleset.
	NetworkEpoch10 uint8 = 0x01

	// NetworkEpoch20 activated sponsored transactions.
	NetworkEpoch20 uint8 = 0x02
)

// NetworkEpoch describes one entry of a network's epoch schedule: the
// ruleset in force for burn heights in [StartHeight, EndHeight).
type NetworkEpoch struct {
	NetworkEpoch uint8
	StartHeight  uint64
	EndHeight    uint64
}

// Params defines an Ember network by its parameters.  These parameters may
// be used by Ember applications to differentiate networks as well as
// addresses and keys for one network from those intended for use on another
// network.
type Params struct {
	// Name defines a human-readable identifier for the network.
	Name string

	// Net defines the magic bytes used to identify the network, carried
	// as the network id of every message preamble.
	Net wire.EmberNet

	// DefaultPort defines the default peer-to-peer port for the network.
	DefaultPort string

	// Seeds defines a list of DNS seeds for the network that are used as
	// one method to discover peers.  Seeded addresses carry no node key;
	// identity is learned from the handshake.
	Seeds []string

	// PeerVersion is the protocol version spoken on this network.  The
	// high 24 bits are the implementation major version; the low byte is
	// the current network epoch.
	PeerVersion uint32

	// StableConfirmations is the number of burnchain confirmations after
	// which a burn block is considered stable.  Every preamble's stable
	// height plus this depth must equal its tip height.
	StableConfirmations uint64

	// Epochs is the network's epoch schedule, ordered by start height and
	// covering all heights with no gaps.
	Epochs []NetworkEpoch

	// MaxNeighborBlockDelay is how many burn blocks behind the local tip
	// a peer's claimed view may lag before the peer is considered stale.
	MaxNeighborBlockDelay uint64

	// MempoolMaxTxAge is the number of burn blocks a mempool transaction
	// may age before garbage collection removes it.
	MempoolMaxTxAge uint64

	// RelayNonStdTxs defines whether to relay transactions with
	// non-standard payloads on this network.
	RelayNonStdTxs bool
}

// CurrentNetworkEpoch returns the epoch schedule entry in force at the
// given burn height, or nil if the schedule does not cover it.
func (p *Params) CurrentNetworkEpoch(burnHeight uint64) *NetworkEpoch {
	for i := range p.Epochs {
		e := &p.Epochs[i]
		if burnHeight >= e.StartHeight && burnHeight < e.EndHeight {
			return e
		}
	}
	return nil
}

// MainNetParams defines the network parameters for the main Ember network.
var MainNetParams = Params{
	Name:        "mainnet",
	Net:         wire.MainNet,
	DefaultPort: "20444",
	Seeds: []string{
		"seed.emberweave.net",
		"seed.embernodes.io",
	},
	PeerVersion: 0x18000002,

	StableConfirmations:   7,
	MaxNeighborBlockDelay: 288,
	MempoolMaxTxAge:       256,
	RelayNonStdTxs:        false,

	Epochs: []NetworkEpoch{
		{NetworkEpoch: NetworkEpoch10, StartHeight: 0, EndHeight: 16000},
		{NetworkEpoch: NetworkEpoch20, StartHeight: 16000,
			EndHeight: math.MaxUint64},
	},
}

// TestNetParams defines the network parameters for the public Ember test
// network.
var TestNetParams = Params{
	Name:        "testnet",
	Net:         wire.TestNet,
	DefaultPort: "30444",
	Seeds: []string{
		"testnet-seed.emberweave.net",
	},
	PeerVersion: 0x18000002,

	StableConfirmations:   7,
	MaxNeighborBlockDelay: 288,
	MempoolMaxTxAge:       256,
	RelayNonStdTxs:        true,

	Epochs: []NetworkEpoch{
		{NetworkEpoch: NetworkEpoch10, StartHeight: 0, EndHeight: 2000},
		{NetworkEpoch: NetworkEpoch20, StartHeight: 2000,
			EndHeight: math.MaxUint64},
	},
}

// SimNetParams defines the network parameters for the simulation test
// network.  It exists for tests and local regression harnesses, so it is
// never seeded and runs entirely in the newest epoch.
var SimNetParams = Params{
	Name:        "simnet",
	Net:         wire.SimNet,
	DefaultPort: "40444",
	PeerVersion: 0x18000002,

	StableConfirmations:   1,
	MaxNeighborBlockDelay: 288,
	MempoolMaxTxAge:       256,
	RelayNonStdTxs:        true,

	Epochs: []NetworkEpoch{
		{NetworkEpoch: NetworkEpoch20, StartHeight: 0,
			EndHeight: math.MaxUint64},
	},
}

// ErrDuplicateNet describes an error where the parameters for an Ember
// network could not be set due to the network already being a standard
// network or previously-registered into this package.
var ErrDuplicateNet = errors.New("duplicate Ember network")

var registeredNets = make(map[wire.EmberNet]struct{})

// Register registers the network parameters for an Ember network.  This may
// error with ErrDuplicateNet if the network is already registered (either
// due to a previous Register call, or the network being one of the default
// networks).
//
// Network parameters should be registered into this package by a main
// package as early as possible.  Then, library packages may lookup networks
// or network parameters based on inputs and work regardless of the network
// being standard or not.
func Register(params *Params) error {
	if _, ok := registeredNets[params.Net]; ok {
		return ErrDuplicateNet
	}
	registeredNets[params.Net] = struct{}{}
	return nil
}

// mustRegister performs the same function as Register except it panics if
// there is an error.  This should only be called from package init
// functions.
func mustRegister(params *Params) {
	if err := Register(params); err != nil {
		panic("failed to register network: " + err.Error())
	}
}

func init() {
	// Register all default networks when the package is initialized.
	mustRegister(&MainNetParams)
	mustRegister(&TestNetParams)
	mustRegister(&SimNetParams)
}
