// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package peer provides the per-connection conversation state machine for the
Ember p2p protocol.

# Overview

A Conversation tracks one remote socket from first byte to teardown: it
buffers and frames inbound envelopes, validates every preamble against the
local burnchain view, drives the handshake that authenticates the remote
peer's key, answers the control plane (pings, NAT punches, handshakes), and
meters the data plane (pushed blocks, microblocks, and transactions)
before surfacing it to the caller for routing.

Conversations are single-owner by design.  None of the methods lock; the
caller is expected to drive a given conversation from one goroutine at a
time, typically a per-peer loop that alternates Recv, Chat, and TryFlush.
Shared collaborators such as the neighbor database and the burnchain view
are passed in per call through ChatEnv rather than held, so one
conversation's failure cannot corrupt another's state.

Sending never blocks.  Outbound messages are serialized into a bounded
queue and written incrementally by TryFlush, which tolerates partial writes
and picks up where it left off on the next call.  Requests expecting a
reply are registered by sequence number with a caller-supplied TTL and
fulfilled by matching inbound traffic; ClearTimeouts expires the rest.
*/
package peer
