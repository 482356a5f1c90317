// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/embersuite/emberd/chaincfg/chainhash"
	"github.com/embersuite/emberd/chainstate"
	"github.com/embersuite/emberd/peerdb"
	"github.com/embersuite/emberd/wire"
)

// validateHandshake decides whether a received handshake is acceptable.
// Structural violations return ErrInvalidMessage and are connection-fatal.
// Policy violations return ErrInvalidHandshake, which earns the peer a
// handshake reject but keeps the conversation open.
func (c *Conversation) validateHandshake(local *LocalPeer,
	view *chainstate.View, env *wire.Envelope, hd *wire.HandshakeData) error {

	claimedKey, err := btcec.ParsePubKey(hd.NodePublicKey[:])
	if err != nil {
		return fmt.Errorf("%w: undecodable node public key: %v",
			ErrInvalidMessage, err)
	}

	// A handshake authenticates itself: it must verify under the very key
	// it claims, whether this is the peer's first handshake or a key
	// rotation.
	if err := env.Verify(claimedKey); err != nil {
		return fmt.Errorf("%w: handshake not signed by its claimed key",
			ErrInvalidMessage)
	}

	if c.pubKey != nil && c.outbound {
		// We dialed this peer, so a re-handshake must report the address
		// we dialed unless the peer has not learned its public address.
		if !hd.Addr.IsUnspecified() &&
			(hd.Addr != c.peerAddr || hd.Port != c.peerPort) {

			return fmt.Errorf("%w: self-reported address %s:%d does "+
				"not match socket address %s:%d", ErrInvalidHandshake,
				hd.Addr, hd.Port, c.peerAddr, c.peerPort)
		}
	}

	if hd.ExpireBlockHeight <= view.BurnBlockHeight {
		return fmt.Errorf("%w: node key expired at burn height %d",
			ErrInvalidHandshake, hd.ExpireBlockHeight)
	}

	if claimedKey.IsEqual(local.PrivateKey.PubKey()) {
		return fmt.Errorf("%w: handshake carries our own node key",
			ErrInvalidHandshake)
	}

	return nil
}

// updateFromHandshakeData adopts the identity a validated handshake or
// handshake accept carries.  It returns whether the peer rotated away from
// a previously authenticated key.
func (c *Conversation) updateFromHandshakeData(p *wire.Preamble,
	hd *wire.HandshakeData) (bool, error) {

	pubKey, err := btcec.ParsePubKey(hd.NodePublicKey[:])
	if err != nil {
		return false, fmt.Errorf("%w: undecodable node public key: %v",
			ErrInvalidMessage, err)
	}

	c.peerVersion = p.PeerVersion
	c.services = hd.Services
	c.expireBlockHeight = hd.ExpireBlockHeight
	c.handshakeAddr = hd.Addr
	c.handshakePort = hd.Port
	c.dataURL = hd.DataURL

	rekeyed := c.pubKey != nil && !c.pubKey.IsEqual(pubKey)
	if rekeyed {
		log.Debugf("%v: peer rotated key %s to %s", c, c.pubKeyHash,
			chainhash.Hash160H(pubKey.SerializeCompressed()))
	}
	c.pubKey = pubKey
	c.pubKeyHash = chainhash.Hash160H(pubKey.SerializeCompressed())

	switch {
	case c.authState == AuthUnauthenticated:
		c.authState = AuthAuthenticated
	case rekeyed:
		c.authState = AuthReauthenticated
	}
	return rekeyed, nil
}

// storeNeighbor records the peer's handshake identity in the neighbor
// database.  Storage failures degrade discovery but not the conversation,
// so they are logged rather than returned.
func (c *Conversation) storeNeighbor(env *ChatEnv, p *wire.Preamble,
	hd *wire.HandshakeData) {

	if env.PeerDB == nil {
		return
	}
	err := env.PeerDB.UpdateNeighbor(&peerdb.Neighbor{
		NetworkID:   p.NetworkID,
		Addr:        hd.Addr,
		Port:        hd.Port,
		PublicKey:   hd.NodePublicKey,
		ExpireBlock: hd.ExpireBlockHeight,
		LastContact: time.Now().Unix(),
		DataURL:     hd.DataURL,
	})
	if err != nil {
		log.Warnf("Unable to store neighbor %s:%d: %v", hd.Addr, hd.Port,
			err)
	}
}

// handleHandshake processes a received handshake.  Acceptable handshakes
// authenticate the conversation and earn a handshake accept carrying this
// node's own identity and heartbeat interval.  Handshakes are never
// consumed: even when handled here, the caller still sees them, since
// discovery needs to observe which peers are announcing themselves.
func (c *Conversation) handleHandshake(env *ChatEnv,
	msg *wire.Envelope) (wire.Message, bool, error) {

	hd := &msg.Payload.(*wire.MsgHandshake).HandshakeData

	err := c.validateHandshake(env.Local, env.View, msg, hd)
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidHandshake):
		log.Debugf("%v: rejecting handshake: %v", c, err)
		return wire.NewMsgHandshakeReject(), true, nil
	default:
		return nil, false, err
	}

	firstContact := c.pubKey == nil
	rekeyed, err := c.updateFromHandshakeData(&msg.Preamble, hd)
	if err != nil {
		return nil, false, err
	}
	if firstContact || rekeyed {
		c.storeNeighbor(env, &msg.Preamble, hd)
	}

	now := time.Now()
	c.stats.LastContact = now
	c.stats.LastHandshake = now

	// We told the peer our own heartbeat interval, so that is how often
	// to expect it to contact us.
	c.peerHeartbeatSecs = c.heartbeatSecs

	log.Debugf("%v: peer authenticated as %s (services %04x)", c,
		c.pubKeyHash, c.services)

	accept := wire.NewMsgHandshakeAccept(env.Local.HandshakeData(),
		c.heartbeatSecs)
	return accept, false, nil
}

// handleHandshakeAccept processes the reply to a handshake this node sent,
// adopting the identity it carries and the peer's promised heartbeat
// interval.
func (c *Conversation) handleHandshakeAccept(env *ChatEnv,
	msg *wire.Envelope) error {

	accept := msg.Payload.(*wire.MsgHandshakeAccept)

	firstContact := c.pubKey == nil
	if firstContact {
		// Nothing upstream could verify the envelope yet, so the accept
		// must verify under the key it claims.
		claimedKey, err := btcec.ParsePubKey(accept.NodePublicKey[:])
		if err != nil {
			return fmt.Errorf("%w: undecodable node public key: %v",
				ErrInvalidMessage, err)
		}
		if err := msg.Verify(claimedKey); err != nil {
			return fmt.Errorf("%w: handshake accept not signed by its "+
				"claimed key", ErrInvalidMessage)
		}
	}
	rekeyed, err := c.updateFromHandshakeData(&msg.Preamble,
		&accept.HandshakeData)
	if err != nil {
		return err
	}
	if firstContact || rekeyed {
		c.storeNeighbor(env, &msg.Preamble, &accept.HandshakeData)
	}

	heartbeat := accept.HeartbeatIntervalSecs
	if heartbeat > maxPeerHeartbeatSecs {
		log.Debugf("%v: advertised heartbeat interval %ds is too long, "+
			"clamping to %ds", c, heartbeat, uint32(maxPeerHeartbeatSecs))
		heartbeat = maxPeerHeartbeatSecs
	}
	c.peerHeartbeatSecs = heartbeat
	c.stats.LastHandshake = time.Now()

	log.Debugf("%v: handshake accepted by %s (heartbeat %ds)", c,
		c.pubKeyHash, c.peerHeartbeatSecs)
	return nil
}
