// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/embersuite/emberd/chaincfg"
	"github.com/embersuite/emberd/peerdb"
	"github.com/embersuite/emberd/wire"
)

// newTestPeerDB returns an open neighbor database in a test directory.
func newTestPeerDB(t *testing.T) *peerdb.DB {
	t.Helper()
	db, err := peerdb.Open(filepath.Join(t.TempDir(), "peers.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return db
}

// TestHandshakeFlow walks an inbound conversation through a first
// handshake and a later key rotation.
func TestHandshakeFlow(t *testing.T) {
	local := testLocalPeer(1)
	rp := newRemotePeer(2)
	view := testChainView(12350)
	db := newTestPeerDB(t)
	chatEnv := &ChatEnv{Local: local, PeerDB: db, View: view}

	cfg := &Config{ChainParams: &chaincfg.MainNetParams}
	c := NewConversation(cfg, rp.hd.Addr, rp.hd.Port, false)

	deliver(t, c, rp.handshake(t, view, 11))
	out, err := c.Chat(chatEnv)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	// The handshake authenticates the conversation and still surfaces to
	// the caller for discovery.
	if len(out) != 1 {
		t.Fatalf("Chat output: got %d envelopes, want 1", len(out))
	}
	if _, ok := out[0].Payload.(*wire.MsgHandshake); !ok {
		t.Fatalf("Chat output: got %T, want *wire.MsgHandshake",
			out[0].Payload)
	}
	if c.AuthState() != AuthAuthenticated {
		t.Fatalf("auth state: got %v, want %v", c.AuthState(),
			AuthAuthenticated)
	}
	if !c.PublicKey().IsEqual(rp.priv.PubKey()) {
		t.Fatal("conversation adopted the wrong public key")
	}
	if c.Services() != rp.hd.Services || c.DataURL() != rp.hd.DataURL {
		t.Errorf("handshake identity: got services %04x url %q",
			c.Services(), c.DataURL())
	}
	if c.ExpireBlockHeight() != rp.hd.ExpireBlockHeight {
		t.Errorf("expire height: got %d, want %d", c.ExpireBlockHeight(),
			rp.hd.ExpireBlockHeight)
	}
	if c.PeerHeartbeatSecs() != c.HeartbeatIntervalSecs() {
		t.Errorf("peer heartbeat after inbound handshake: got %d, want "+
			"our own %d", c.PeerHeartbeatSecs(), c.HeartbeatIntervalSecs())
	}
	if na := c.HandshakeNeighborAddress(); na.PublicKeyHash != rp.publicKeyHash() {
		t.Errorf("neighbor key hash: got %s, want %s", na.PublicKeyHash,
			rp.publicKeyHash())
	}
	if c.stats.LastHandshake.IsZero() {
		t.Error("LastHandshake not recorded")
	}

	// The queued reply is an accept signed by us, echoing the handshake's
	// sequence number and advertising our heartbeat.
	replies := flushEnvelopes(t, c)
	if len(replies) != 1 {
		t.Fatalf("flushed replies: got %d, want 1", len(replies))
	}
	accept, ok := replies[0].Payload.(*wire.MsgHandshakeAccept)
	if !ok {
		t.Fatalf("reply payload: got %T, want *wire.MsgHandshakeAccept",
			replies[0].Payload)
	}
	if replies[0].Preamble.Seq != 11 {
		t.Errorf("reply seq: got %d, want 11", replies[0].Preamble.Seq)
	}
	if accept.NodePublicKey != local.NodePublicKey() {
		t.Error("accept does not carry the local node key")
	}
	if accept.HeartbeatIntervalSecs != c.HeartbeatIntervalSecs() {
		t.Errorf("accept heartbeat: got %d, want %d",
			accept.HeartbeatIntervalSecs, c.HeartbeatIntervalSecs())
	}
	if err := replies[0].Verify(local.PrivateKey.PubKey()); err != nil {
		t.Errorf("accept does not verify under the local key: %v", err)
	}

	// The peer is now on record for discovery.
	row, err := db.GetNeighbor(uint32(chaincfg.MainNetParams.Net),
		rp.hd.Addr, rp.hd.Port)
	if err != nil {
		t.Fatalf("GetNeighbor: %v", err)
	}
	if row == nil {
		t.Fatal("handshake did not store the neighbor")
	}
	if row.PublicKey != rp.hd.NodePublicKey {
		t.Error("stored neighbor carries the wrong key")
	}

	// Key rotation: the same peer re-handshakes under a new key, claiming
	// the same address.
	rp2 := newRemotePeer(3)
	rp2.hd.Addr = rp.hd.Addr
	rp2.hd.Port = rp.hd.Port

	deliver(t, c, rp2.handshake(t, view, 12))
	if _, err := c.Chat(chatEnv); err != nil {
		t.Fatalf("Chat of rotation handshake: %v", err)
	}
	if c.AuthState() != AuthReauthenticated {
		t.Fatalf("auth state after rotation: got %v, want %v",
			c.AuthState(), AuthReauthenticated)
	}
	if !c.PublicKey().IsEqual(rp2.priv.PubKey()) {
		t.Fatal("rotation did not adopt the new key")
	}

	row, err = db.GetNeighbor(uint32(chaincfg.MainNetParams.Net),
		rp.hd.Addr, rp.hd.Port)
	if err != nil {
		t.Fatalf("GetNeighbor after rotation: %v", err)
	}
	if row == nil || row.PublicKey != rp2.hd.NodePublicKey {
		t.Error("rotation did not update the stored neighbor key")
	}
}

// TestHandshakeExpiredKey ensures a handshake with an already-expired key
// is rejected politely: the peer gets a handshake reject and the
// conversation stays open and unauthenticated.
func TestHandshakeExpiredKey(t *testing.T) {
	local := testLocalPeer(1)
	rp := newRemotePeer(2)
	view := testChainView(12350)
	rp.hd.ExpireBlockHeight = view.BurnBlockHeight
	chatEnv := &ChatEnv{Local: local, View: view}

	c := newTestConversation()
	deliver(t, c, rp.handshake(t, view, 4))
	out, err := c.Chat(chatEnv)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("rejected handshake surfaced to the caller: %d "+
			"envelopes", len(out))
	}
	if c.AuthState() != AuthUnauthenticated {
		t.Fatalf("auth state: got %v, want %v", c.AuthState(),
			AuthUnauthenticated)
	}
	if c.stats.Unsolicited != 1 {
		t.Errorf("Unsolicited: got %d, want 1", c.stats.Unsolicited)
	}

	replies := flushEnvelopes(t, c)
	if len(replies) != 1 {
		t.Fatalf("flushed replies: got %d, want 1", len(replies))
	}
	if _, ok := replies[0].Payload.(*wire.MsgHandshakeReject); !ok {
		t.Fatalf("reply payload: got %T, want *wire.MsgHandshakeReject",
			replies[0].Payload)
	}
	if replies[0].Preamble.Seq != 4 {
		t.Errorf("reject seq: got %d, want 4", replies[0].Preamble.Seq)
	}
}

// TestHandshakeSelf ensures a handshake carrying our own node key is
// rejected, since talking to ourselves only wastes sockets.
func TestHandshakeSelf(t *testing.T) {
	local := testLocalPeer(1)
	mirror := newRemotePeer(1)
	view := testChainView(12350)
	chatEnv := &ChatEnv{Local: local, View: view}

	c := newTestConversation()
	deliver(t, c, mirror.handshake(t, view, 2))
	if _, err := c.Chat(chatEnv); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if c.IsAuthenticated() {
		t.Fatal("conversation authenticated our own key")
	}

	replies := flushEnvelopes(t, c)
	if len(replies) != 1 {
		t.Fatalf("flushed replies: got %d, want 1", len(replies))
	}
	if _, ok := replies[0].Payload.(*wire.MsgHandshakeReject); !ok {
		t.Fatalf("reply payload: got %T, want *wire.MsgHandshakeReject",
			replies[0].Payload)
	}
}

// TestHandshakeBadSignature ensures a handshake that does not verify under
// the key it claims is connection-fatal.
func TestHandshakeBadSignature(t *testing.T) {
	local := testLocalPeer(1)
	signer := newRemotePeer(2)
	claimed := newRemotePeer(3)
	view := testChainView(12350)
	chatEnv := &ChatEnv{Local: local, View: view}

	c := newTestConversation()
	deliver(t, c, signer.message(t, view, 5,
		wire.NewMsgHandshake(claimed.hd)))

	_, err := c.Chat(chatEnv)
	if !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("Chat: got %v, want ErrInvalidMessage", err)
	}
	if c.AuthState() != AuthClosed {
		t.Fatalf("auth state: got %v, want %v", c.AuthState(), AuthClosed)
	}
	if _, err := c.Chat(chatEnv); err != ErrConversationClosed {
		t.Errorf("Chat after close: got %v, want %v", err,
			ErrConversationClosed)
	}
}

// TestHandshakeAddrMismatch ensures a re-handshake on an outbound
// conversation must claim the address that was dialed, unless the peer has
// not learned its public address.
func TestHandshakeAddrMismatch(t *testing.T) {
	local := testLocalPeer(1)
	rp := newRemotePeer(2)
	view := testChainView(12350)
	chatEnv := &ChatEnv{Local: local, View: view}

	cfg := &Config{ChainParams: &chaincfg.MainNetParams}
	c := NewConversation(cfg, rp.hd.Addr, rp.hd.Port, true)
	authenticate(t, c, chatEnv, rp)

	// Rotation claiming a different address: rejected, key unchanged.
	rp2 := newRemotePeer(3)
	rp2.hd.Addr = testPeerAddr(0x55)
	deliver(t, c, rp2.handshake(t, view, 7))
	if _, err := c.Chat(chatEnv); err != nil {
		t.Fatalf("Chat of mismatched rotation: %v", err)
	}
	if c.AuthState() != AuthAuthenticated {
		t.Fatalf("auth state: got %v, want %v", c.AuthState(),
			AuthAuthenticated)
	}
	if !c.PublicKey().IsEqual(rp.priv.PubKey()) {
		t.Fatal("mismatched rotation replaced the key")
	}
	replies := flushEnvelopes(t, c)
	if len(replies) != 1 {
		t.Fatalf("flushed replies: got %d, want 1", len(replies))
	}
	if _, ok := replies[0].Payload.(*wire.MsgHandshakeReject); !ok {
		t.Fatalf("reply payload: got %T, want *wire.MsgHandshakeReject",
			replies[0].Payload)
	}

	// Rotation with an unspecified address is allowed: the peer may be
	// behind a NAT and not know where it is reachable.
	rp3 := newRemotePeer(4)
	rp3.hd.Addr = wire.PeerAddress{}
	deliver(t, c, rp3.handshake(t, view, 8))
	if _, err := c.Chat(chatEnv); err != nil {
		t.Fatalf("Chat of anonymous rotation: %v", err)
	}
	if c.AuthState() != AuthReauthenticated {
		t.Fatalf("auth state: got %v, want %v", c.AuthState(),
			AuthReauthenticated)
	}
	if !c.PublicKey().IsEqual(rp3.priv.PubKey()) {
		t.Fatal("anonymous rotation did not adopt the new key")
	}
}

// TestHandshakeAcceptFlow sends a handshake request outbound and feeds back
// the accept, checking correlation, key adoption, and the heartbeat clamp.
func TestHandshakeAcceptFlow(t *testing.T) {
	local := testLocalPeer(1)
	rp := newRemotePeer(2)
	view := testChainView(12350)
	db := newTestPeerDB(t)
	chatEnv := &ChatEnv{Local: local, PeerDB: db, View: view}

	cfg := &Config{ChainParams: &chaincfg.MainNetParams}
	c := NewConversation(cfg, rp.hd.Addr, rp.hd.Port, true)

	rh, err := c.SendRequest(local, view,
		wire.NewMsgHandshake(local.HandshakeData()), time.Minute)
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}

	// The accept advertises an absurd heartbeat, which must be clamped.
	accept := wire.NewMsgHandshakeAccept(rp.hd, 30*60*60)
	deliver(t, c, rp.message(t, view, rh.Seq(), accept))

	out, err := c.Chat(chatEnv)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("solicited accept surfaced as unsolicited: %d envelopes",
			len(out))
	}

	reply, err := rh.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if reply == nil {
		t.Fatal("Poll returned no reply for a fulfilled request")
	}
	if _, ok := reply.Payload.(*wire.MsgHandshakeAccept); !ok {
		t.Fatalf("reply payload: got %T, want *wire.MsgHandshakeAccept",
			reply.Payload)
	}

	if c.AuthState() != AuthAuthenticated {
		t.Fatalf("auth state: got %v, want %v", c.AuthState(),
			AuthAuthenticated)
	}
	if !c.PublicKey().IsEqual(rp.priv.PubKey()) {
		t.Fatal("accept did not adopt the peer key")
	}
	if c.PeerHeartbeatSecs() != maxPeerHeartbeatSecs {
		t.Errorf("peer heartbeat: got %d, want clamped %d",
			c.PeerHeartbeatSecs(), uint32(maxPeerHeartbeatSecs))
	}
	if c.stats.FirstContact.IsZero() {
		t.Error("FirstContact not recorded")
	}
	if len(c.stats.healthPoints) != 1 || !c.stats.healthPoints[0].success {
		t.Errorf("solicited accept did not record a success: %+v",
			c.stats.healthPoints)
	}

	// The accepting peer is on record for discovery.
	row, err := db.GetNeighbor(uint32(chaincfg.MainNetParams.Net),
		rp.hd.Addr, rp.hd.Port)
	if err != nil {
		t.Fatalf("GetNeighbor: %v", err)
	}
	if row == nil || row.PublicKey != rp.hd.NodePublicKey {
		t.Error("accept did not store the neighbor")
	}
}

// TestHandshakeAcceptUnsolicited ensures a stray accept on an
// unauthenticated conversation is dropped without authenticating anything.
func TestHandshakeAcceptUnsolicited(t *testing.T) {
	local := testLocalPeer(1)
	rp := newRemotePeer(2)
	view := testChainView(12350)
	chatEnv := &ChatEnv{Local: local, View: view}

	c := newTestConversation()
	accept := wire.NewMsgHandshakeAccept(rp.hd, DefaultHeartbeatIntervalSecs)
	deliver(t, c, rp.message(t, view, 99, accept))

	out, err := c.Chat(chatEnv)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("unsolicited accept surfaced: %d envelopes", len(out))
	}
	if c.IsAuthenticated() {
		t.Fatal("unsolicited accept authenticated the conversation")
	}
	if c.stats.Unsolicited != 1 {
		t.Errorf("Unsolicited: got %d, want 1", c.stats.Unsolicited)
	}
}
