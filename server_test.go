// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"net"
	"testing"
	"time"

	"github.com/embersuite/emberd/wire"
)

// fakeAddr implements net.Addr with a fixed string form.
type fakeAddr string

func (a fakeAddr) Network() string { return "tcp" }
func (a fakeAddr) String() string  { return string(a) }

// TestAddrToPeerAddress ensures socket addresses convert to the wire form
// address and port, and that unresolvable forms are rejected.
func TestAddrToPeerAddress(t *testing.T) {
	tests := []struct {
		name    string
		addr    net.Addr
		want    wire.PeerAddress
		port    uint16
		wantErr bool
	}{
		{
			name: "ipv4",
			addr: &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 20444},
			want: wire.PeerAddressFromIP(net.ParseIP("10.0.0.1")),
			port: 20444,
		},
		{
			name: "ipv6",
			addr: &net.TCPAddr{IP: net.ParseIP("::1"), Port: 9000},
			want: wire.PeerAddressFromIP(net.ParseIP("::1")),
			port: 9000,
		},
		{
			name:    "hostname",
			addr:    fakeAddr("seed.example.org:20444"),
			wantErr: true,
		},
		{
			name:    "missing port",
			addr:    fakeAddr("10.0.0.1"),
			wantErr: true,
		},
		{
			name:    "port out of range",
			addr:    fakeAddr("10.0.0.1:70000"),
			wantErr: true,
		},
	}

	for _, test := range tests {
		addr, port, err := addrToPeerAddress(test.addr)
		if test.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", test.name)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", test.name, err)
			continue
		}
		if addr != test.want {
			t.Errorf("%s: address mismatch: got %v, want %v",
				test.name, addr, test.want)
		}
		if port != test.port {
			t.Errorf("%s: port mismatch: got %d, want %d", test.name,
				port, test.port)
		}
	}
}

// TestAddrStringToNetAddr ensures literal IP addresses convert without a DNS
// lookup and malformed strings are rejected.
func TestAddrStringToNetAddr(t *testing.T) {
	addr, err := addrStringToNetAddr("127.0.0.1:9000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		t.Fatalf("expected *net.TCPAddr, got %T", addr)
	}
	if !tcpAddr.IP.Equal(net.ParseIP("127.0.0.1")) || tcpAddr.Port != 9000 {
		t.Fatalf("address mismatch: got %v", tcpAddr)
	}

	if _, err := addrStringToNetAddr("127.0.0.1"); err == nil {
		t.Error("expected error for address without port")
	}
	if _, err := addrStringToNetAddr("127.0.0.1:bad"); err == nil {
		t.Error("expected error for non-numeric port")
	}
}

// TestMarkAttempt ensures the new-address rotation holds recently dialed and
// currently connected addresses out of consideration.
func TestMarkAttempt(t *testing.T) {
	s := &server{
		connectedAddrs: make(map[string]struct{}),
		attemptedAddrs: make(map[string]time.Time),
	}

	if !s.markAttempt("10.0.0.1:20444") {
		t.Fatal("first attempt refused")
	}
	if s.markAttempt("10.0.0.1:20444") {
		t.Fatal("attempt allowed within the cooldown")
	}

	// An expired attempt entry frees the address again.
	s.attemptedAddrs["10.0.0.1:20444"] = time.Now().Add(-2 * retryCooldown)
	if !s.markAttempt("10.0.0.1:20444") {
		t.Fatal("attempt refused after the cooldown expired")
	}

	// Connected addresses are never attempted.
	s.addrConnected("10.0.0.2:20444")
	if s.markAttempt("10.0.0.2:20444") {
		t.Fatal("attempt allowed against a connected address")
	}
	s.addrDisconnected("10.0.0.2:20444")
	if !s.markAttempt("10.0.0.2:20444") {
		t.Fatal("attempt refused after disconnect")
	}
}

// TestPeerStateCount ensures peers are counted across all three classes and
// the iteration helpers visit every peer.
func TestPeerStateCount(t *testing.T) {
	state := &peerState{
		inboundPeers:    make(map[*serverPeer]struct{}),
		outboundPeers:   make(map[*serverPeer]struct{}),
		persistentPeers: make(map[*serverPeer]struct{}),
	}

	state.inboundPeers[&serverPeer{}] = struct{}{}
	state.inboundPeers[&serverPeer{}] = struct{}{}
	state.outboundPeers[&serverPeer{}] = struct{}{}
	state.persistentPeers[&serverPeer{}] = struct{}{}

	if got := state.Count(); got != 4 {
		t.Fatalf("Count() = %d, want 4", got)
	}

	visited := 0
	state.forAllPeers(func(sp *serverPeer) {
		visited++
	})
	if visited != 4 {
		t.Fatalf("forAllPeers visited %d peers, want 4", visited)
	}

	outbound := 0
	state.forAllOutboundPeers(func(sp *serverPeer) {
		outbound++
	})
	if outbound != 2 {
		t.Fatalf("forAllOutboundPeers visited %d peers, want 2", outbound)
	}
}
