// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import "testing"

// TestPickNoun ensures the singular form is only used for exactly one.
func TestPickNoun(t *testing.T) {
	tests := []struct {
		n    uint64
		want string
	}{
		{0, "peers"},
		{1, "peer"},
		{2, "peers"},
	}

	for _, test := range tests {
		if got := pickNoun(test.n, "peer", "peers"); got != test.want {
			t.Errorf("pickNoun(%d) = %q, want %q", test.n, got,
				test.want)
		}
	}
}

// TestDirectionString ensures connection directions render as expected.
func TestDirectionString(t *testing.T) {
	if got := directionString(true); got != "inbound" {
		t.Errorf("directionString(true) = %q, want inbound", got)
	}
	if got := directionString(false); got != "outbound" {
		t.Errorf("directionString(false) = %q, want outbound", got)
	}
}
