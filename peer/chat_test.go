// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"errors"
	"testing"

	"github.com/embersuite/emberd/chaincfg"
	"github.com/embersuite/emberd/chaincfg/chainhash"
	"github.com/embersuite/emberd/chainstate"
	"github.com/embersuite/emberd/wire"
)

// relayHint returns a deterministic relay hint keyed off tag.
func relayHint(tag byte) wire.RelayData {
	return wire.RelayData{
		Peer: wire.NeighborAddress{
			Addr:          testPeerAddr(tag),
			Port:          20444,
			PublicKeyHash: chainhash.Hash160{tag},
		},
		Seq: uint32(tag),
	}
}

// testPushTx returns a distinct transaction for push tests, keyed off the
// origin nonce.
func testPushTx(nonce uint64) *wire.Transaction {
	origin := wire.TxAuth{
		Address: wire.NewAddressPubKey(22, []byte("push origin")),
		Nonce:   nonce,
	}
	return wire.NewTransaction(1, 0x80000000, 180+nonce, origin,
		[]byte("push payload"))
}

// TestPreambleValidation exercises the preamble checks every received
// message passes through before it is dispatched.
func TestPreambleValidation(t *testing.T) {
	tests := []struct {
		name    string
		view    *chainstate.View
		mutate  func(*wire.Preamble)
		wantErr bool
	}{{
		name:    "baseline",
		view:    testChainView(20000),
		mutate:  func(p *wire.Preamble) {},
		wantErr: false,
	}, {
		name: "wrong network",
		view: testChainView(20000),
		mutate: func(p *wire.Preamble) {
			p.NetworkID = 0x11111111
		},
		wantErr: true,
	}, {
		name: "major version mismatch",
		view: testChainView(20000),
		mutate: func(p *wire.Preamble) {
			p.PeerVersion = 0x17000002
		},
		wantErr: true,
	}, {
		name: "stale epoch after transition",
		view: testChainView(20000),
		mutate: func(p *wire.Preamble) {
			p.PeerVersion = 0x18000001
		},
		wantErr: true,
	}, {
		name: "old epoch before transition",
		view: testChainView(12000),
		mutate: func(p *wire.Preamble) {
			p.PeerVersion = 0x18000001
		},
		wantErr: false,
	}, {
		name: "stable height inconsistent with tip",
		view: testChainView(20000),
		mutate: func(p *wire.Preamble) {
			p.BurnBlockHeight++
		},
		wantErr: true,
	}, {
		name: "stable hash disagreement",
		view: testChainView(20000),
		mutate: func(p *wire.Preamble) {
			p.BurnStableBlockHash = chainhash.HashH([]byte("a fork"))
		},
		wantErr: true,
	}, {
		name: "peer far ahead",
		view: testChainView(20000),
		mutate: func(p *wire.Preamble) {
			p.BurnBlockHeight = 20500
			p.BurnStableBlockHeight = 20493
		},
		wantErr: false,
	}}

	local := testLocalPeer(1)
	rp := newRemotePeer(2)
	for _, test := range tests {
		c := newTestConversation()
		env := rp.message(t, test.view, 7, wire.NewMsgPing(1))
		test.mutate(&env.Preamble)
		deliver(t, c, env)

		_, err := c.Chat(&ChatEnv{Local: local, View: test.view})
		if test.wantErr {
			if !errors.Is(err, ErrInvalidMessage) {
				t.Errorf("%s: got %v, want ErrInvalidMessage", test.name,
					err)
				continue
			}
			if c.AuthState() != AuthClosed {
				t.Errorf("%s: auth state %v, want %v", test.name,
					c.AuthState(), AuthClosed)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", test.name, err)
		}
	}
}

// TestPingPong ensures pings on an authenticated conversation are answered
// in place with the nonce echoed.
func TestPingPong(t *testing.T) {
	local := testLocalPeer(1)
	rp := newRemotePeer(2)
	view := testChainView(12350)
	chatEnv := &ChatEnv{Local: local, View: view}

	c := newTestConversation()
	authenticate(t, c, chatEnv, rp)

	deliver(t, c, rp.message(t, view, 42, wire.NewMsgPing(7)))
	out, err := c.Chat(chatEnv)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("ping surfaced to the caller: %d envelopes", len(out))
	}

	replies := flushEnvelopes(t, c)
	if len(replies) != 1 {
		t.Fatalf("flushed replies: got %d, want 1", len(replies))
	}
	pong, ok := replies[0].Payload.(*wire.MsgPong)
	if !ok {
		t.Fatalf("reply payload: got %T, want *wire.MsgPong",
			replies[0].Payload)
	}
	if pong.Nonce != 7 {
		t.Errorf("pong nonce: got %d, want 7", pong.Nonce)
	}
	if replies[0].Preamble.Seq != 42 {
		t.Errorf("pong seq: got %d, want 42", replies[0].Preamble.Seq)
	}
	if err := replies[0].Verify(local.PrivateKey.PubKey()); err != nil {
		t.Errorf("pong does not verify under the local key: %v", err)
	}
	if got := c.Stats().MessageCounts()[wire.TypePing]; got != 1 {
		t.Errorf("ping count: got %d, want 1", got)
	}
}

// TestNatPunch ensures a NAT punch request is answered even before a
// handshake, reporting the socket address the request arrived from.
func TestNatPunch(t *testing.T) {
	local := testLocalPeer(1)
	rp := newRemotePeer(2)
	view := testChainView(12350)
	chatEnv := &ChatEnv{Local: local, View: view}

	c := newTestConversation()
	deliver(t, c, rp.message(t, view, 7, wire.NewMsgNatPunchRequest(9)))
	out, err := c.Chat(chatEnv)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("punch request surfaced to the caller: %d envelopes",
			len(out))
	}
	if c.Stats().Unsolicited != 1 {
		t.Errorf("Unsolicited: got %d, want 1", c.Stats().Unsolicited)
	}

	replies := flushEnvelopes(t, c)
	if len(replies) != 1 {
		t.Fatalf("flushed replies: got %d, want 1", len(replies))
	}
	punch, ok := replies[0].Payload.(*wire.MsgNatPunchReply)
	if !ok {
		t.Fatalf("reply payload: got %T, want *wire.MsgNatPunchReply",
			replies[0].Payload)
	}
	if punch.Addr != testPeerAddr(0x99) || punch.Port != 20444 {
		t.Errorf("punch reply address: got %s:%d", punch.Addr, punch.Port)
	}
	if punch.Nonce != 9 {
		t.Errorf("punch reply nonce: got %d, want 9", punch.Nonce)
	}
	if replies[0].Preamble.Seq != 7 {
		t.Errorf("punch reply seq: got %d, want 7", replies[0].Preamble.Seq)
	}
}

// TestUnauthenticatedNack ensures data messages before a handshake are
// nacked instead of served.
func TestUnauthenticatedNack(t *testing.T) {
	local := testLocalPeer(1)
	rp := newRemotePeer(2)
	view := testChainView(12350)
	chatEnv := &ChatEnv{Local: local, View: view}

	c := newTestConversation()
	deliver(t, c, rp.message(t, view, 3, wire.NewMsgPing(1)))
	out, err := c.Chat(chatEnv)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("pre-handshake ping surfaced: %d envelopes", len(out))
	}
	if c.Stats().Unsolicited != 1 {
		t.Errorf("Unsolicited: got %d, want 1", c.Stats().Unsolicited)
	}

	replies := flushEnvelopes(t, c)
	if len(replies) != 1 {
		t.Fatalf("flushed replies: got %d, want 1", len(replies))
	}
	nack, ok := replies[0].Payload.(*wire.MsgNack)
	if !ok {
		t.Fatalf("reply payload: got %T, want *wire.MsgNack",
			replies[0].Payload)
	}
	if nack.Code != wire.NackHandshakeRequired {
		t.Errorf("nack code: got %d, want %d", nack.Code,
			wire.NackHandshakeRequired)
	}
	if replies[0].Preamble.Seq != 3 {
		t.Errorf("nack seq: got %d, want 3", replies[0].Preamble.Seq)
	}
}

// TestTxPushRelay ensures a validly relayed transaction push flows to the
// caller with its relayers credited and its id remembered.
func TestTxPushRelay(t *testing.T) {
	local := testLocalPeer(1)
	rp := newRemotePeer(2)
	view := testChainView(12350)
	chatEnv := &ChatEnv{Local: local, View: view}

	c := newTestConversation()
	authenticate(t, c, chatEnv, rp)

	tx := testPushTx(0)
	relayers := []wire.RelayData{relayHint(1), relayHint(2)}
	env := rp.relayed(t, view, 50, wire.NewMsgTxPush(tx), relayers)
	deliver(t, c, env)

	out, err := c.Chat(chatEnv)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("Chat output: got %d envelopes, want 1", len(out))
	}
	if _, ok := out[0].Payload.(*wire.MsgTxPush); !ok {
		t.Fatalf("Chat output: got %T, want *wire.MsgTxPush",
			out[0].Payload)
	}
	if !c.IsKnownTx(tx.TxID()) {
		t.Error("pushed transaction id not remembered")
	}

	credited := c.Stats().TakeRelayers()
	if len(credited) != 2 {
		t.Fatalf("credited relayers: got %d, want 2", len(credited))
	}
	wantBytes := uint64(env.Preamble.PayloadLen - 1)
	for addr, rs := range credited {
		if rs.NumMessages != 1 {
			t.Errorf("relayer %s: NumMessages %d, want 1", addr,
				rs.NumMessages)
		}
		if rs.NumBytes != wantBytes {
			t.Errorf("relayer %s: NumBytes %d, want %d", addr, rs.NumBytes,
				wantBytes)
		}
		if rs.LastSeen.IsZero() {
			t.Errorf("relayer %s: LastSeen not recorded", addr)
		}
	}
	if again := c.Stats().TakeRelayers(); len(again) != 0 {
		t.Errorf("second drain returned %d relayers", len(again))
	}
}

// TestTxPushCycle ensures a push whose relay hints name the same relayer
// twice is dropped without killing the conversation.
func TestTxPushCycle(t *testing.T) {
	local := testLocalPeer(1)
	rp := newRemotePeer(2)
	view := testChainView(12350)
	chatEnv := &ChatEnv{Local: local, View: view}

	c := newTestConversation()
	authenticate(t, c, chatEnv, rp)

	tx := testPushTx(1)
	relayers := []wire.RelayData{relayHint(1), relayHint(1)}
	deliver(t, c, rp.relayed(t, view, 51, wire.NewMsgTxPush(tx), relayers))

	out, err := c.Chat(chatEnv)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("looped push surfaced: %d envelopes", len(out))
	}
	if c.Stats().MsgsErr != 1 {
		t.Errorf("MsgsErr: got %d, want 1", c.Stats().MsgsErr)
	}
	if c.IsKnownTx(tx.TxID()) {
		t.Error("looped push recorded the transaction id")
	}
	if c.AuthState() != AuthAuthenticated {
		t.Fatalf("auth state: got %v, want %v", c.AuthState(),
			AuthAuthenticated)
	}
	if _, err := c.Chat(chatEnv); err != nil {
		t.Errorf("Chat after dropped push: %v", err)
	}
}

// TestTxPushSelfRelay ensures a push that claims this node already relayed
// it is dropped as a loop.
func TestTxPushSelfRelay(t *testing.T) {
	local := testLocalPeer(1)
	rp := newRemotePeer(2)
	view := testChainView(12350)
	chatEnv := &ChatEnv{Local: local, View: view}

	c := newTestConversation()
	authenticate(t, c, chatEnv, rp)

	relayers := []wire.RelayData{{
		Peer: wire.NeighborAddress{
			Addr:          testPeerAddr(7),
			Port:          20444,
			PublicKeyHash: local.PublicKeyHash(),
		},
		Seq: 1,
	}}
	tx := testPushTx(2)
	deliver(t, c, rp.relayed(t, view, 52, wire.NewMsgTxPush(tx), relayers))

	out, err := c.Chat(chatEnv)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("self-relayed push surfaced: %d envelopes", len(out))
	}
	if c.Stats().MsgsErr != 1 {
		t.Errorf("MsgsErr: got %d, want 1", c.Stats().MsgsErr)
	}
	if credited := c.Stats().TakeRelayers(); len(credited) != 0 {
		t.Errorf("dropped push credited %d relayers", len(credited))
	}
}

// TestTxPushThrottle ensures a peer pushing transactions above the
// configured ceiling is nacked with a throttle notice.
func TestTxPushThrottle(t *testing.T) {
	local := testLocalPeer(1)
	rp := newRemotePeer(2)
	view := testChainView(12350)
	chatEnv := &ChatEnv{Local: local, View: view}

	cfg := &Config{
		ChainParams:        &chaincfg.MainNetParams,
		MaxTxPushBandwidth: 1,
	}
	c := NewConversation(cfg, testPeerAddr(0x99), 20444, false)
	authenticate(t, c, chatEnv, rp)

	// The first push cannot be rated yet and flows through.
	deliver(t, c, rp.message(t, view, 53, wire.NewMsgTxPush(testPushTx(3))))
	out, err := c.Chat(chatEnv)
	if err != nil {
		t.Fatalf("Chat of first push: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("first push: got %d envelopes, want 1", len(out))
	}

	// The second push rates the peer far above one byte per second.
	deliver(t, c, rp.message(t, view, 54, wire.NewMsgTxPush(testPushTx(4))))
	out, err = c.Chat(chatEnv)
	if err != nil {
		t.Fatalf("Chat of second push: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("throttled push surfaced: %d envelopes", len(out))
	}

	replies := flushEnvelopes(t, c)
	if len(replies) != 1 {
		t.Fatalf("flushed replies: got %d, want 1", len(replies))
	}
	nack, ok := replies[0].Payload.(*wire.MsgNack)
	if !ok {
		t.Fatalf("reply payload: got %T, want *wire.MsgNack",
			replies[0].Payload)
	}
	if nack.Code != wire.NackThrottled {
		t.Errorf("nack code: got %d, want %d", nack.Code,
			wire.NackThrottled)
	}
	if replies[0].Preamble.Seq != 54 {
		t.Errorf("nack seq: got %d, want 54", replies[0].Preamble.Seq)
	}
}

// TestQueriesFlowUpstream ensures queries are passed to the caller to
// serve rather than consumed by the conversation.
func TestQueriesFlowUpstream(t *testing.T) {
	local := testLocalPeer(1)
	rp := newRemotePeer(2)
	view := testChainView(12350)
	chatEnv := &ChatEnv{Local: local, View: view}

	c := newTestConversation()
	authenticate(t, c, chatEnv, rp)

	deliver(t, c, rp.message(t, view, 60, wire.NewMsgGetNeighbors()))
	out, err := c.Chat(chatEnv)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("Chat output: got %d envelopes, want 1", len(out))
	}
	if _, ok := out[0].Payload.(*wire.MsgGetNeighbors); !ok {
		t.Fatalf("Chat output: got %T, want *wire.MsgGetNeighbors",
			out[0].Payload)
	}
	if c.PendingSends() != 0 {
		t.Errorf("query queued %d replies", c.PendingSends())
	}
}

// TestBurnViewAdvances ensures the peer's recorded burnchain view only
// moves forward.
func TestBurnViewAdvances(t *testing.T) {
	local := testLocalPeer(1)
	rp := newRemotePeer(2)
	view := testChainView(12350)
	chatEnv := &ChatEnv{Local: local, View: view}

	c := newTestConversation()
	authenticate(t, c, chatEnv, rp)
	if c.BurnBlockHeight() != 12350 {
		t.Fatalf("burn height after handshake: got %d, want 12350",
			c.BurnBlockHeight())
	}

	deliver(t, c, rp.message(t, testChainView(12360), 70,
		wire.NewMsgPing(1)))
	if _, err := c.Chat(chatEnv); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if c.BurnBlockHeight() != 12360 {
		t.Errorf("burn height: got %d, want 12360", c.BurnBlockHeight())
	}
	if c.StableBlockHeight() != 12353 {
		t.Errorf("stable height: got %d, want 12353", c.StableBlockHeight())
	}

	// An older claim does not roll the view back.
	deliver(t, c, rp.message(t, testChainView(12355), 71,
		wire.NewMsgPing(2)))
	if _, err := c.Chat(chatEnv); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if c.BurnBlockHeight() != 12360 {
		t.Errorf("burn height rolled back: got %d, want 12360",
			c.BurnBlockHeight())
	}
	if c.StableBlockHeight() != 12353 {
		t.Errorf("stable height rolled back: got %d, want 12353",
			c.StableBlockHeight())
	}
}
