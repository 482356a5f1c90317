// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"time"

	"github.com/embersuite/emberd/wire"
)

const (
	// numHealthPoints is the number of request outcomes remembered per
	// neighbor.  The health score stays at the neutral 0.5 until the
	// ring has filled once.
	numHealthPoints = 32

	// healthPointLifetime is how long a recorded outcome keeps counting
	// toward the health score.
	healthPointLifetime = 12 * time.Hour

	// numBandwidthPoints is the number of push samples remembered per
	// message class.
	numBandwidthPoints = 32

	// bandwidthPointLifetime is how long a push sample keeps counting
	// toward the measured bandwidth, in seconds.
	bandwidthPointLifetime = 600
)

// healthPoint records the outcome of one solicited exchange.
type healthPoint struct {
	success bool
	time    time.Time
}

// bandwidthPoint records the size and arrival second of one pushed payload.
type bandwidthPoint struct {
	unixTime int64
	size     uint64
}

// RelayStats accumulates how much traffic a particular relayer has forwarded
// through this conversation since the stats were last drained.
type RelayStats struct {
	NumMessages uint64
	NumBytes    uint64
	LastSeen    time.Time
}

// NeighborStats tracks the health, traffic, and relay accounting for a
// single conversation.  It is owned by the conversation and shares its
// single-owner discipline, so no locking is performed.
type NeighborStats struct {
	Outbound bool

	FirstContact  time.Time
	LastContact   time.Time
	LastSend      time.Time
	LastRecv      time.Time
	LastHandshake time.Time

	BytesTx     uint64
	BytesRx     uint64
	MsgsTx      uint64
	MsgsRx      uint64
	MsgsErr     uint64
	Unsolicited uint64

	healthPoints      []healthPoint
	msgRxCounts       map[wire.MessageType]uint64
	blockPushRx       []bandwidthPoint
	microblocksPushRx []bandwidthPoint
	txPushRx          []bandwidthPoint
	relayedMessages   map[wire.NeighborAddress]*RelayStats
}

// newNeighborStats returns stats ready for a conversation in the given
// direction.
func newNeighborStats(outbound bool) *NeighborStats {
	return &NeighborStats{
		Outbound:        outbound,
		msgRxCounts:     make(map[wire.MessageType]uint64),
		relayedMessages: make(map[wire.NeighborAddress]*RelayStats),
	}
}

// addHealthPoint records the outcome of a solicited exchange, evicting the
// oldest outcome once the ring is full.
func (ns *NeighborStats) addHealthPoint(success bool) {
	ns.healthPoints = append(ns.healthPoints, healthPoint{
		success: success,
		time:    time.Now(),
	})
	if len(ns.healthPoints) > numHealthPoints {
		ns.healthPoints = ns.healthPoints[len(ns.healthPoints)-numHealthPoints:]
	}
}

// HealthScore returns the fraction of recent solicited exchanges that
// succeeded.  Until enough outcomes have accumulated to be meaningful, or
// when every recorded outcome has aged out, the neutral score 0.5 is
// returned.
func (ns *NeighborStats) HealthScore() float64 {
	if len(ns.healthPoints) < numHealthPoints {
		return 0.5
	}

	now := time.Now()
	var successful, total int
	for _, hp := range ns.healthPoints {
		if now.Sub(hp.time) > healthPointLifetime {
			continue
		}
		if hp.success {
			successful++
		}
		total++
	}
	if total == 0 {
		return 0.5
	}
	return float64(successful) / float64(total)
}

// countMessage bumps the per-type receive counter.
func (ns *NeighborStats) countMessage(mt wire.MessageType) {
	ns.msgRxCounts[mt]++
}

// MessageCounts returns a copy of the per-type receive counters.
func (ns *NeighborStats) MessageCounts() map[wire.MessageType]uint64 {
	counts := make(map[wire.MessageType]uint64, len(ns.msgRxCounts))
	for mt, n := range ns.msgRxCounts {
		counts[mt] = n
	}
	return counts
}

// addSample appends a push sample to the given ring, evicting the oldest
// sample once the ring is full.
func addSample(ring []bandwidthPoint, size uint64) []bandwidthPoint {
	ring = append(ring, bandwidthPoint{
		unixTime: time.Now().Unix(),
		size:     size,
	})
	if len(ring) > numBandwidthPoints {
		ring = ring[len(ring)-numBandwidthPoints:]
	}
	return ring
}

// bandwidth estimates bytes per second over the fresh samples in the ring.
// Fewer than two fresh samples measure nothing and report zero.  When every
// fresh sample landed within the same second, the total is reported as an
// instantaneous burst rate.
func bandwidth(ring []bandwidthPoint) float64 {
	if len(ring) < 2 {
		return 0
	}

	now := time.Now().Unix()
	var totalSize uint64
	var count int
	earliest := int64(1<<63 - 1)
	latest := int64(0)
	for _, bp := range ring {
		if now < bp.unixTime || now-bp.unixTime >= bandwidthPointLifetime {
			continue
		}
		totalSize += bp.size
		count++
		if bp.unixTime < earliest {
			earliest = bp.unixTime
		}
		if bp.unixTime > latest {
			latest = bp.unixTime
		}
	}
	if count < 2 {
		return 0
	}

	if earliest < latest {
		return float64(totalSize) / float64(latest-earliest)
	}
	return float64(totalSize)
}

// addBlockPushSample records the payload size of a pushed block message.
func (ns *NeighborStats) addBlockPushSample(size uint64) {
	ns.blockPushRx = addSample(ns.blockPushRx, size)
}

// addMicroblocksPushSample records the payload size of a pushed microblocks
// message.
func (ns *NeighborStats) addMicroblocksPushSample(size uint64) {
	ns.microblocksPushRx = addSample(ns.microblocksPushRx, size)
}

// addTxPushSample records the payload size of a pushed transaction message.
func (ns *NeighborStats) addTxPushSample(size uint64) {
	ns.txPushRx = addSample(ns.txPushRx, size)
}

// BlockPushBandwidth returns the measured inbound block push rate in bytes
// per second.
func (ns *NeighborStats) BlockPushBandwidth() float64 {
	return bandwidth(ns.blockPushRx)
}

// MicroblocksPushBandwidth returns the measured inbound microblocks push
// rate in bytes per second.
func (ns *NeighborStats) MicroblocksPushBandwidth() float64 {
	return bandwidth(ns.microblocksPushRx)
}

// TxPushBandwidth returns the measured inbound transaction push rate in
// bytes per second.
func (ns *NeighborStats) TxPushBandwidth() float64 {
	return bandwidth(ns.txPushRx)
}

// addRelayer attributes numBytes of relayed traffic to the given neighbor.
func (ns *NeighborStats) addRelayer(addr wire.NeighborAddress, numBytes uint64) {
	rs, ok := ns.relayedMessages[addr]
	if !ok {
		rs = &RelayStats{}
		ns.relayedMessages[addr] = rs
	}
	rs.NumMessages++
	rs.NumBytes += numBytes
	rs.LastSeen = time.Now()
}

// TakeRelayers drains and returns the per-relayer traffic accounting
// accumulated since the last drain.
func (ns *NeighborStats) TakeRelayers() map[wire.NeighborAddress]RelayStats {
	taken := make(map[wire.NeighborAddress]RelayStats, len(ns.relayedMessages))
	for addr, rs := range ns.relayedMessages {
		taken[addr] = *rs
	}
	ns.relayedMessages = make(map[wire.NeighborAddress]*RelayStats)
	return taken
}
