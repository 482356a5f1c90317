// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
)

// EmberNet represents which Ember network a message belongs to.  The value
// doubles as the preamble's network id, so two networks can never exchange
// valid traffic.
type EmberNet uint32

// Constants used to indicate the Ember network.
const (
	// MainNet represents the main Ember network.
	MainNet EmberNet = 0x456d6201

	// TestNet represents the public Ember test network.
	TestNet EmberNet = 0x456d62f1

	// SimNet represents the simulation test network used by tests and
	// local regression harnesses.
	SimNet EmberNet = 0x456d62a5
)

// enStrings is a map of Ember networks back to their constant names for
// pretty printing.
var enStrings = map[EmberNet]string{
	MainNet: "MainNet",
	TestNet: "TestNet",
	SimNet:  "SimNet",
}

// String returns the EmberNet in human-readable form.
func (n EmberNet) String() string {
	if s, ok := enStrings[n]; ok {
		return s
	}
	return fmt.Sprintf("Unknown EmberNet (%d)", uint32(n))
}
