// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chaincfg defines the parameters of the standard Ember networks
// and provides for registering custom ones.
//
// Callers typically hold a *Params for the network they operate on and pass
// it down to the peer, mempool, and chainstate layers, which consult it for
// the network id, the peer protocol version, the stable confirmation depth,
// and the epoch schedule.
package chaincfg
