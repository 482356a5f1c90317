// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

import (
	"testing"

	"github.com/embersuite/emberd/wire"
)

// TestRegister ensures duplicate networks are rejected and new ones are
// accepted exactly once.
func TestRegister(t *testing.T) {
	if err := Register(&MainNetParams); err != ErrDuplicateNet {
		t.Errorf("re-registering mainnet: got %v, want ErrDuplicateNet",
			err)
	}

	custom := Params{
		Name:        "customnet",
		Net:         wire.EmberNet(0x0abbccdd),
		PeerVersion: 0x18000002,
	}
	if err := Register(&custom); err != nil {
		t.Fatalf("registering custom net: %v", err)
	}
	if err := Register(&custom); err != ErrDuplicateNet {
		t.Errorf("re-registering custom net: got %v, want "+
			"ErrDuplicateNet", err)
	}
}

// TestDefaultParams spot-checks the standard network definitions.
func TestDefaultParams(t *testing.T) {
	nets := map[wire.EmberNet]bool{}
	for _, params := range []*Params{&MainNetParams, &TestNetParams,
		&SimNetParams} {

		if nets[params.Net] {
			t.Fatalf("%s shares its net magic with another network",
				params.Name)
		}
		nets[params.Net] = true

		if params.PeerVersion&0xff000000 != 0x18000000 {
			t.Errorf("%s: peer version %08x lacks the 0x18 major "+
				"byte", params.Name, params.PeerVersion)
		}
		if len(params.Epochs) == 0 {
			t.Errorf("%s: no epoch schedule", params.Name)
		}
	}

	if MainNetParams.StableConfirmations != 7 {
		t.Errorf("mainnet stable confirmations: got %d, want 7",
			MainNetParams.StableConfirmations)
	}
	if MainNetParams.MempoolMaxTxAge != 256 {
		t.Errorf("mainnet mempool max tx age: got %d, want 256",
			MainNetParams.MempoolMaxTxAge)
	}
}

// TestCurrentNetworkEpoch ensures epoch lookup respects the half-open
// schedule intervals.
func TestCurrentNetworkEpoch(t *testing.T) {
	tests := []struct {
		height uint64
		want   uint8
	}{
		{0, NetworkEpoch10},
		{15999, NetworkEpoch10},
		{16000, NetworkEpoch20},
		{10_000_000, NetworkEpoch20},
	}
	for _, test := range tests {
		epoch := MainNetParams.CurrentNetworkEpoch(test.height)
		if epoch == nil {
			t.Fatalf("height %d: no epoch", test.height)
		}
		if epoch.NetworkEpoch != test.want {
			t.Errorf("height %d: got epoch %d, want %d", test.height,
				epoch.NetworkEpoch, test.want)
		}
	}

	empty := Params{Name: "nowhere"}
	if epoch := empty.CurrentNetworkEpoch(5); epoch != nil {
		t.Errorf("empty schedule returned epoch %v", epoch)
	}
}
