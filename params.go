// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"github.com/embersuite/emberd/chaincfg"
)

// activeNetParams is a pointer to the parameters specific to the
// currently active ember network.
var activeNetParams = &mainNetParams

// params is used to group parameters for various networks such as the main
// network and test networks.
type params struct {
	*chaincfg.Params

	// wsPort is the default port to serve websocket event subscribers on
	// for the network.
	wsPort string
}

// mainNetParams contains parameters specific to the main network
// (wire.MainNet).
var mainNetParams = params{
	Params: &chaincfg.MainNetParams,
	wsPort: "20443",
}

// testNetParams contains parameters specific to the test network
// (wire.TestNet).
var testNetParams = params{
	Params: &chaincfg.TestNetParams,
	wsPort: "30443",
}

// simNetParams contains parameters specific to the simulation test network
// (wire.SimNet).
var simNetParams = params{
	Params: &chaincfg.SimNetParams,
	wsPort: "40443",
}
