// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"errors"
	"fmt"
	"time"

	"github.com/embersuite/emberd/chaincfg/chainhash"
	"github.com/embersuite/emberd/chainstate"
	"github.com/embersuite/emberd/peerdb"
	"github.com/embersuite/emberd/wire"
)

// ChatEnv is the per-call environment Chat runs in: the local identity
// replies are signed with, the neighbor database authenticated peers are
// recorded in, and the burnchain view preambles are validated against.
type ChatEnv struct {
	Local  *LocalPeer
	PeerDB *peerdb.DB
	View   *chainstate.View
}

// hasAcceptableEpoch returns whether a peer advertising the given protocol
// version follows an epoch this node will talk to.  A peer at least as new
// as this node is always acceptable.  An older peer is acceptable only
// while the burnchain has not yet crossed into an epoch beyond it.
func (c *Conversation) hasAcceptableEpoch(burnHeight uint64,
	peerVersion uint32) bool {

	myEpoch := uint8(c.version & 0x000000ff)
	remoteEpoch := uint8(peerVersion & 0x000000ff)
	if myEpoch <= remoteEpoch {
		return true
	}

	cur := c.cfg.ChainParams.CurrentNetworkEpoch(burnHeight)
	if cur == nil {
		return false
	}
	return cur.NetworkEpoch <= remoteEpoch
}

// isPreambleValid checks a received preamble against the local burnchain
// view.  Violations are connection-fatal.
func (c *Conversation) isPreambleValid(env *wire.Envelope,
	view *chainstate.View) error {

	p := &env.Preamble

	if p.NetworkID != c.networkID {
		return fmt.Errorf("%w: wrong network id 0x%08x", ErrInvalidMessage,
			p.NetworkID)
	}
	if p.PeerVersion&0xff000000 != c.version&0xff000000 {
		return fmt.Errorf("%w: major protocol version mismatch 0x%08x",
			ErrInvalidMessage, p.PeerVersion)
	}
	if !c.hasAcceptableEpoch(view.BurnBlockHeight, p.PeerVersion) {
		return fmt.Errorf("%w: stale network epoch 0x%02x",
			ErrInvalidMessage, uint8(p.PeerVersion&0x000000ff))
	}

	// The claimed stable height plus the confirmation depth must land
	// exactly on the claimed tip.
	stableTip := p.BurnStableBlockHeight +
		c.cfg.ChainParams.StableConfirmations
	if stableTip < p.BurnStableBlockHeight ||
		stableTip != p.BurnBlockHeight {

		return fmt.Errorf("%w: stable height %d inconsistent with tip %d",
			ErrInvalidMessage, p.BurnStableBlockHeight, p.BurnBlockHeight)
	}

	if p.BurnBlockHeight >
		view.BurnBlockHeight+c.cfg.ChainParams.MaxNeighborBlockDelay {

		// The peer sees a longer burnchain than we do.  That is its
		// problem or our lag, not a protocol violation.
		log.Debugf("%v: peer claims burn height %d, far ahead of our %d",
			c, p.BurnBlockHeight, view.BurnBlockHeight)
	}

	if hash, ok := view.HashAt(p.BurnStableBlockHeight); ok {
		if !hash.IsEqual(&p.BurnStableBlockHash) {
			return fmt.Errorf("%w: disagreement on stable burn block %d",
				ErrInvalidMessage, p.BurnStableBlockHeight)
		}
	}

	return nil
}

// noteBurnView advances the recorded peer burnchain view.  Claims are only
// allowed to move it forward, so a peer replaying old preambles cannot make
// itself look further behind than it ever was.
func (c *Conversation) noteBurnView(p *wire.Preamble) {
	if p.BurnBlockHeight > c.burnBlockHeight {
		c.burnBlockHeight = p.BurnBlockHeight
		c.burnBlockHash = p.BurnBlockHash
	}
	if p.BurnStableBlockHeight > c.stableBlockHeight {
		c.stableBlockHeight = p.BurnStableBlockHeight
		c.stableBlockHash = p.BurnStableBlockHash
	}
}

// processRelayers vets the relay hints on a pushed message and attributes
// the payload to each relayer's accounting.  It returns false when the
// hints name any relayer twice or include this node, either of which means
// the message has looped.
func (c *Conversation) processRelayers(local *LocalPeer, p *wire.Preamble,
	relayers []wire.RelayData) bool {

	seen := make(map[chainhash.Hash160]struct{}, len(relayers))
	for i := range relayers {
		hash := relayers[i].Peer.PublicKeyHash
		if _, ok := seen[hash]; ok {
			return false
		}
		seen[hash] = struct{}{}
	}

	localHash := local.PublicKeyHash()
	for i := range relayers {
		if relayers[i].Peer.PublicKeyHash == localHash {
			return false
		}
	}

	for i := range relayers {
		c.stats.addRelayer(relayers[i].Peer, pushSampleSize(p.PayloadLen, 1))
	}
	return true
}

// pushSampleSize is the sampled size of a pushed payload: the preamble's
// payload length less the framing overhead, clamped at zero.
func pushSampleSize(payloadLen, overhead uint32) uint64 {
	if payloadLen < overhead {
		return 0
	}
	return uint64(payloadLen - overhead)
}

// handleBlocksPush meters a pushed blocks message.  Messages with looped
// relay hints are dropped; a peer pushing above the configured ceiling is
// told to back off.
func (c *Conversation) handleBlocksPush(env *ChatEnv,
	msg *wire.Envelope) (wire.Message, bool) {

	if !c.processRelayers(env.Local, &msg.Preamble, msg.Relayers) {
		log.Debugf("%v: looped relay hints on %s message, dropping", c,
			msg.Command())
		c.stats.MsgsErr++
		return nil, true
	}

	c.stats.addBlockPushSample(pushSampleSize(msg.Preamble.PayloadLen, 5))
	ceiling := c.cfg.MaxBlockPushBandwidth
	if ceiling > 0 && c.stats.BlockPushBandwidth() > float64(ceiling) {
		log.Debugf("%v: block push rate above %d bytes/s, throttling", c,
			ceiling)
		return wire.NewMsgNack(wire.NackThrottled), true
	}
	return nil, false
}

// handleMicroblocksPush meters a pushed microblocks message the same way
// handleBlocksPush meters blocks.
func (c *Conversation) handleMicroblocksPush(env *ChatEnv,
	msg *wire.Envelope) (wire.Message, bool) {

	if !c.processRelayers(env.Local, &msg.Preamble, msg.Relayers) {
		log.Debugf("%v: looped relay hints on %s message, dropping", c,
			msg.Command())
		c.stats.MsgsErr++
		return nil, true
	}

	c.stats.addMicroblocksPushSample(pushSampleSize(msg.Preamble.PayloadLen, 5))
	ceiling := c.cfg.MaxMicroblocksPushBandwidth
	if ceiling > 0 && c.stats.MicroblocksPushBandwidth() > float64(ceiling) {
		log.Debugf("%v: microblocks push rate above %d bytes/s, throttling",
			c, ceiling)
		return wire.NewMsgNack(wire.NackThrottled), true
	}
	return nil, false
}

// handleTxPush meters a pushed transaction and remembers its id so the
// same transaction is not relayed straight back to this peer.
func (c *Conversation) handleTxPush(env *ChatEnv,
	msg *wire.Envelope) (wire.Message, bool) {

	if !c.processRelayers(env.Local, &msg.Preamble, msg.Relayers) {
		log.Debugf("%v: looped relay hints on %s message, dropping", c,
			msg.Command())
		c.stats.MsgsErr++
		return nil, true
	}

	c.stats.addTxPushSample(pushSampleSize(msg.Preamble.PayloadLen, 1))
	ceiling := c.cfg.MaxTxPushBandwidth
	if ceiling > 0 && c.stats.TxPushBandwidth() > float64(ceiling) {
		log.Debugf("%v: transaction push rate above %d bytes/s, throttling",
			c, ceiling)
		return wire.NewMsgNack(wire.NackThrottled), true
	}

	push := msg.Payload.(*wire.MsgTxPush)
	c.AddKnownTx(push.Tx.TxID())
	return nil, false
}

// dispatchAuthenticated routes one message on an authenticated
// conversation.  It returns the reply to queue, if any, and whether the
// message was consumed here rather than passed to the caller.
func (c *Conversation) dispatchAuthenticated(env *ChatEnv,
	msg *wire.Envelope) (wire.Message, bool, error) {

	switch m := msg.Payload.(type) {
	case *wire.MsgHandshake:
		return c.handleHandshake(env, msg)

	case *wire.MsgHandshakeAccept:
		return nil, false, c.handleHandshakeAccept(env, msg)

	case *wire.MsgPing:
		return wire.NewMsgPong(m.Nonce), true, nil

	case *wire.MsgNatPunchRequest:
		// Tell the peer what address its traffic arrives from.
		return wire.NewMsgNatPunchReply(c.peerAddr, c.peerPort, m.Nonce),
			true, nil

	case *wire.MsgBlocksPush:
		reply, consumed := c.handleBlocksPush(env, msg)
		return reply, consumed, nil

	case *wire.MsgMicroblocksPush:
		reply, consumed := c.handleMicroblocksPush(env, msg)
		return reply, consumed, nil

	case *wire.MsgTxPush:
		reply, consumed := c.handleTxPush(env, msg)
		return reply, consumed, nil

	default:
		// Queries, data replies, pongs, nacks, and rejects all flow to
		// the caller: solicited ones fulfill their pending requests and
		// the rest are routed by the server.
		return nil, false, nil
	}
}

// dispatchUnauthenticated routes one message on a conversation that has
// not completed a handshake.  Only the handshake itself, NAT punching, and
// failure notifications are entertained; everything else earns a nack
// telling the peer to handshake first.
func (c *Conversation) dispatchUnauthenticated(env *ChatEnv,
	msg *wire.Envelope, solicited bool) (wire.Message, bool, error) {

	switch m := msg.Payload.(type) {
	case *wire.MsgHandshake:
		return c.handleHandshake(env, msg)

	case *wire.MsgHandshakeAccept:
		if !solicited {
			log.Debugf("%v: unsolicited handshake accept, dropping", c)
			return nil, true, nil
		}
		return nil, false, c.handleHandshakeAccept(env, msg)

	case *wire.MsgNatPunchRequest:
		return wire.NewMsgNatPunchReply(c.peerAddr, c.peerPort, m.Nonce),
			true, nil

	case *wire.MsgHandshakeReject, *wire.MsgNack, *wire.MsgNatPunchReply:
		return nil, false, nil

	default:
		log.Debugf("%v: %s message before handshake, nacking", c,
			msg.Command())
		return wire.NewMsgNack(wire.NackHandshakeRequired), true, nil
	}
}

// updateStats records a message that was either solicited or arrived on an
// authenticated conversation.
func (c *Conversation) updateStats(env *wire.Envelope) {
	now := time.Now()
	if c.stats.FirstContact.IsZero() {
		c.stats.FirstContact = now
	}
	c.stats.countMessage(env.Payload.Type())
	c.stats.MsgsRx++
	c.stats.LastRecv = now
	c.stats.LastContact = now
	c.stats.addHealthPoint(true)
	c.noteBurnView(&env.Preamble)
}

// fatal closes the conversation after a protocol violation.
func (c *Conversation) fatal(err error) error {
	c.stats.MsgsErr++
	c.stats.addHealthPoint(false)
	c.closed = true
	log.Debugf("%v: closing: %v", c, err)
	return err
}

// Chat drains the inbox, validating, authenticating, and answering each
// message in arrival order, and returns the envelopes the caller must
// route: validated pushes, queries to serve, and anything else the
// conversation does not consume itself.  Replies generated here are queued
// for the next TryFlush under the sequence numbers of the requests they
// answer.
//
// A protocol violation closes the conversation, drops the rest of the
// inbox, and is returned alongside the envelopes processed before it.
func (c *Conversation) Chat(env *ChatEnv) ([]*wire.Envelope, error) {
	if c.closed {
		return nil, ErrConversationClosed
	}

	msgs := c.inbox
	c.inbox = nil

	var unsolicited []*wire.Envelope
	for _, msg := range msgs {
		if err := c.isPreambleValid(msg, env.View); err != nil {
			return unsolicited, c.fatal(err)
		}

		// Handshakes authenticate themselves against the key they
		// claim; everything else must verify under the key the peer
		// last handshook with.
		if msg.Payload.Type() != wire.TypeHandshake && c.pubKey != nil {
			if err := msg.Verify(c.pubKey); err != nil {
				return unsolicited, c.fatal(fmt.Errorf("%w: %v",
					ErrInvalidMessage, err))
			}
		}

		rh, solicited := c.pending[msg.Preamble.Seq]

		reply, consumed, err := c.dispatch(env, msg, solicited)
		if err != nil {
			if errors.Is(err, ErrInvalidMessage) {
				return unsolicited, c.fatal(err)
			}
			return unsolicited, err
		}

		if c.pubKey != nil || solicited {
			c.updateStats(msg)
		} else {
			c.stats.Unsolicited++
		}

		if reply != nil {
			err := c.SendReply(env.Local, env.View, msg.Preamble.Seq,
				reply)
			if err != nil {
				log.Debugf("%v: unable to queue %s reply: %v", c,
					reply.Command(), err)
			}
		}

		if consumed {
			continue
		}
		if solicited {
			rh.fulfill(msg)
			delete(c.pending, msg.Preamble.Seq)
			continue
		}
		unsolicited = append(unsolicited, msg)
	}

	return unsolicited, nil
}

// dispatch routes one validated message through the control and data
// planes.
func (c *Conversation) dispatch(env *ChatEnv, msg *wire.Envelope,
	solicited bool) (wire.Message, bool, error) {

	if c.pubKey != nil {
		return c.dispatchAuthenticated(env, msg)
	}
	return c.dispatchUnauthenticated(env, msg, solicited)
}
