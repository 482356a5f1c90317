// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"testing"
	"time"

	"github.com/embersuite/emberd/wire"
)

// TestHealthScoreNeutral ensures the score stays at 0.5 until a full ring
// of outcomes has accumulated.
func TestHealthScoreNeutral(t *testing.T) {
	ns := newNeighborStats(false)
	if got := ns.HealthScore(); got != 0.5 {
		t.Fatalf("empty health score: got %v, want 0.5", got)
	}

	for i := 0; i < numHealthPoints-1; i++ {
		ns.addHealthPoint(false)
	}
	if got := ns.HealthScore(); got != 0.5 {
		t.Fatalf("health score below sample floor: got %v, want 0.5", got)
	}

	ns.addHealthPoint(false)
	if got := ns.HealthScore(); got != 0 {
		t.Fatalf("health score with full failing ring: got %v, want 0", got)
	}
}

// TestHealthScoreMixed ensures the score is the fraction of successes in
// the ring.
func TestHealthScoreMixed(t *testing.T) {
	ns := newNeighborStats(false)
	for i := 0; i < numHealthPoints; i++ {
		ns.addHealthPoint(i%4 != 0)
	}
	if got := ns.HealthScore(); got != 0.75 {
		t.Fatalf("mixed health score: got %v, want 0.75", got)
	}
}

// TestHealthScoreEviction ensures old outcomes fall off the ring.
func TestHealthScoreEviction(t *testing.T) {
	ns := newNeighborStats(false)
	for i := 0; i < numHealthPoints; i++ {
		ns.addHealthPoint(false)
	}
	for i := 0; i < numHealthPoints; i++ {
		ns.addHealthPoint(true)
	}
	if len(ns.healthPoints) != numHealthPoints {
		t.Fatalf("ring size: got %d, want %d", len(ns.healthPoints),
			numHealthPoints)
	}
	if got := ns.HealthScore(); got != 1 {
		t.Fatalf("health score after eviction: got %v, want 1", got)
	}
}

// TestHealthScoreStale ensures outcomes older than the lifetime stop
// counting, and an all-stale ring falls back to the neutral score.
func TestHealthScoreStale(t *testing.T) {
	stale := time.Now().Add(-healthPointLifetime - time.Hour)

	ns := newNeighborStats(false)
	for i := 0; i < numHealthPoints; i++ {
		ns.healthPoints = append(ns.healthPoints,
			healthPoint{success: true, time: stale})
	}
	if got := ns.HealthScore(); got != 0.5 {
		t.Fatalf("all-stale health score: got %v, want 0.5", got)
	}

	// Half the ring goes fresh and failing: only that half counts.
	ns = newNeighborStats(false)
	for i := 0; i < numHealthPoints/2; i++ {
		ns.healthPoints = append(ns.healthPoints,
			healthPoint{success: true, time: stale})
	}
	for i := 0; i < numHealthPoints/2; i++ {
		ns.healthPoints = append(ns.healthPoints,
			healthPoint{success: false, time: time.Now()})
	}
	if got := ns.HealthScore(); got != 0 {
		t.Fatalf("fresh-failure health score: got %v, want 0", got)
	}
}

// TestBandwidth exercises the push rate estimator over fabricated sample
// rings.
func TestBandwidth(t *testing.T) {
	now := time.Now().Unix()

	tests := []struct {
		name string
		ring []bandwidthPoint
		want float64
	}{{
		name: "no samples",
		ring: nil,
		want: 0,
	}, {
		name: "single sample",
		ring: []bandwidthPoint{{now, 500}},
		want: 0,
	}, {
		name: "same second burst",
		ring: []bandwidthPoint{{now, 600}, {now, 400}},
		want: 1000,
	}, {
		name: "spread window",
		ring: []bandwidthPoint{{now - 10, 500}, {now, 500}},
		want: 100,
	}, {
		name: "stale samples excluded",
		ring: []bandwidthPoint{
			{now - bandwidthPointLifetime - 100, 1 << 30},
			{now - 5, 300},
			{now - 1, 200},
		},
		want: 125,
	}, {
		name: "one fresh sample",
		ring: []bandwidthPoint{
			{now - bandwidthPointLifetime - 100, 1000},
			{now, 500},
		},
		want: 0,
	}}

	for _, test := range tests {
		if got := bandwidth(test.ring); got != test.want {
			t.Errorf("%s: got %v, want %v", test.name, got, test.want)
		}
	}
}

// TestBandwidthRingEviction ensures sample rings cap at their size and the
// per-class recorders feed the matching estimator.
func TestBandwidthRingEviction(t *testing.T) {
	ns := newNeighborStats(false)
	for i := 0; i < numBandwidthPoints+8; i++ {
		ns.addTxPushSample(100)
	}
	if len(ns.txPushRx) != numBandwidthPoints {
		t.Fatalf("tx ring size: got %d, want %d", len(ns.txPushRx),
			numBandwidthPoints)
	}
	if len(ns.blockPushRx) != 0 || len(ns.microblocksPushRx) != 0 {
		t.Fatal("tx samples leaked into another class ring")
	}

	// All samples land within the test's running time, so the estimate is
	// the burst total or the total over at most a few seconds.
	if got := ns.TxPushBandwidth(); got == 0 {
		t.Error("full tx ring measured zero bandwidth")
	}
	if got := ns.BlockPushBandwidth(); got != 0 {
		t.Errorf("empty block ring measured %v", got)
	}
}

// TestRelayerAccounting ensures relayed traffic is attributed per relayer
// and drained by TakeRelayers.
func TestRelayerAccounting(t *testing.T) {
	ns := newNeighborStats(false)

	first := wire.NeighborAddress{Addr: testPeerAddr(1), Port: 20444}
	first.PublicKeyHash[0] = 1
	second := wire.NeighborAddress{Addr: testPeerAddr(2), Port: 20444}
	second.PublicKeyHash[0] = 2

	ns.addRelayer(first, 100)
	ns.addRelayer(first, 50)
	ns.addRelayer(second, 9)

	taken := ns.TakeRelayers()
	if len(taken) != 2 {
		t.Fatalf("relayer count: got %d, want 2", len(taken))
	}
	if rs := taken[first]; rs.NumMessages != 2 || rs.NumBytes != 150 {
		t.Errorf("first relayer: got %d msgs %d bytes, want 2 msgs 150 "+
			"bytes", rs.NumMessages, rs.NumBytes)
	}
	if rs := taken[second]; rs.NumMessages != 1 || rs.NumBytes != 9 {
		t.Errorf("second relayer: got %d msgs %d bytes, want 1 msg 9 "+
			"bytes", rs.NumMessages, rs.NumBytes)
	}
	if rs := taken[first]; rs.LastSeen.IsZero() {
		t.Error("relayer LastSeen not recorded")
	}

	if again := ns.TakeRelayers(); len(again) != 0 {
		t.Errorf("second drain: got %d relayers, want 0", len(again))
	}
}

// TestMessageCounts ensures per-type receive counters accumulate and the
// accessor hands out a copy.
func TestMessageCounts(t *testing.T) {
	ns := newNeighborStats(false)
	ns.countMessage(wire.TypePing)
	ns.countMessage(wire.TypePing)
	ns.countMessage(wire.TypeTxPush)

	counts := ns.MessageCounts()
	if counts[wire.TypePing] != 2 || counts[wire.TypeTxPush] != 1 {
		t.Fatalf("counts: got %v", counts)
	}

	counts[wire.TypePing] = 99
	if ns.msgRxCounts[wire.TypePing] != 2 {
		t.Error("MessageCounts returned a live reference")
	}
}
