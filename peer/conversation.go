// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/decred/dcrd/lru"

	"github.com/embersuite/emberd/chaincfg"
	"github.com/embersuite/emberd/chaincfg/chainhash"
	"github.com/embersuite/emberd/chainstate"
	"github.com/embersuite/emberd/wire"
)

const (
	// DefaultHeartbeatIntervalSecs is the heartbeat interval advertised in
	// handshake accepts when the configuration does not override it.
	DefaultHeartbeatIntervalSecs = 3600

	// maxPeerHeartbeatSecs caps the heartbeat interval a peer may
	// advertise.  Anything longer is clamped so a silent peer cannot
	// claim to be healthy for days.
	maxPeerHeartbeatSecs = 6 * 60 * 60

	// maxInboxMessages bounds how many parsed envelopes may sit in the
	// inbox before Recv stops reading from the socket.
	maxInboxMessages = 128

	// maxSendQueue bounds how many serialized envelopes may wait for
	// TryFlush before sends start failing with ErrOutboxFull.
	maxSendQueue = 64

	// maxKnownTxs is the number of recently seen transaction ids
	// remembered per conversation for relay de-duplication.
	maxKnownTxs = 1000

	// recvChunkSize is the read granularity of Recv.
	recvChunkSize = 4096
)

var (
	// ErrInvalidMessage is returned when a peer violates the protocol in
	// a way that cannot be recovered from.  The conversation is closed.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrInvalidHandshake is returned when a handshake is well-formed but
	// unacceptable, such as carrying an expired key.  The conversation
	// stays open and the peer is sent a handshake reject.
	ErrInvalidHandshake = errors.New("invalid handshake")

	// ErrConversationClosed is returned by operations on a conversation
	// that has been closed after a protocol violation.
	ErrConversationClosed = errors.New("conversation closed")

	// ErrRequestTimeout is returned by ReplyHandle.Poll when the request
	// deadline passed without a matching reply.
	ErrRequestTimeout = errors.New("request timed out")

	// ErrOutboxFull is returned when the outbound queue is at capacity.
	ErrOutboxFull = errors.New("outbox full")
)

// AuthState describes how far a conversation has come in authenticating the
// remote peer.
type AuthState uint8

const (
	// AuthUnauthenticated means no acceptable handshake has been seen and
	// the remote key is unknown.
	AuthUnauthenticated AuthState = iota

	// AuthAuthenticated means the remote peer proved ownership of its
	// advertised key through a handshake.
	AuthAuthenticated

	// AuthReauthenticated means the remote peer has re-handshaken with a
	// different key than it first authenticated with.
	AuthReauthenticated

	// AuthClosed means the conversation was torn down after a protocol
	// violation and accepts no further traffic.
	AuthClosed
)

// String returns the AuthState in human-readable form.
func (s AuthState) String() string {
	switch s {
	case AuthUnauthenticated:
		return "unauthenticated"
	case AuthAuthenticated:
		return "authenticated"
	case AuthReauthenticated:
		return "reauthenticated"
	case AuthClosed:
		return "closed"
	}
	return fmt.Sprintf("unknown auth state %d", uint8(s))
}

// Config is the set of knobs shared by every conversation a node runs.
type Config struct {
	// ChainParams identifies the network the conversation speaks: its
	// message magic, protocol version, and burnchain constants.
	ChainParams *chaincfg.Params

	// HeartbeatIntervalSecs is the heartbeat interval advertised to
	// peers.  Zero selects DefaultHeartbeatIntervalSecs.
	HeartbeatIntervalSecs uint32

	// MaxBlockPushBandwidth, MaxMicroblocksPushBandwidth, and
	// MaxTxPushBandwidth are per-class inbound push ceilings in bytes
	// per second.  A peer measured above a ceiling is sent a throttle
	// nack and its pushes are dropped until it backs off.  Zero
	// disables the ceiling.
	MaxBlockPushBandwidth       uint64
	MaxMicroblocksPushBandwidth uint64
	MaxTxPushBandwidth          uint64
}

// Conversation is the state of one p2p session with a remote peer, from the
// first byte off the socket to teardown.  It frames inbound envelopes,
// authenticates the peer, answers the control plane, meters the data plane,
// and queues outbound traffic for incremental flushing.
//
// A conversation is single-owner: exactly one goroutine may drive it at a
// time, and none of its methods lock.
type Conversation struct {
	cfg       Config
	networkID uint32
	version   uint32
	outbound  bool

	// peerAddr and peerPort are the socket endpoint as dialed or
	// accepted, as opposed to the address the peer reports about itself
	// during its handshake.
	peerAddr wire.PeerAddress
	peerPort uint16

	// Identity learned from the most recent acceptable handshake.
	handshakeAddr     wire.PeerAddress
	handshakePort     uint16
	services          uint16
	dataURL           string
	expireBlockHeight uint64
	peerVersion       uint32

	pubKey     *btcec.PublicKey
	pubKeyHash chainhash.Hash160
	authState  AuthState
	closed     bool

	heartbeatSecs     uint32
	peerHeartbeatSecs uint32

	// The peer's burnchain view, advanced monotonically from its
	// preambles.
	burnBlockHeight   uint64
	burnBlockHash     chainhash.Hash
	stableBlockHeight uint64
	stableBlockHash   chainhash.Hash

	stats *NeighborStats

	recvBuf []byte
	inbox   []*wire.Envelope

	sendQueue  [][]byte
	sendOffset int

	pending map[uint32]*ReplyHandle

	knownTxs lru.Cache
}

// NewConversation returns a conversation for the given socket endpoint.
// The outbound flag records which side dialed; outbound conversations hold
// the peer's handshake to the address that was dialed.
func NewConversation(cfg *Config, peerAddr wire.PeerAddress, peerPort uint16,
	outbound bool) *Conversation {

	c := &Conversation{
		cfg:           *cfg,
		networkID:     uint32(cfg.ChainParams.Net),
		version:       cfg.ChainParams.PeerVersion,
		outbound:      outbound,
		peerAddr:      peerAddr,
		peerPort:      peerPort,
		heartbeatSecs: cfg.HeartbeatIntervalSecs,
		stats:         newNeighborStats(outbound),
		pending:       make(map[uint32]*ReplyHandle),
		knownTxs:      lru.NewCache(maxKnownTxs),
	}
	if c.heartbeatSecs == 0 {
		c.heartbeatSecs = DefaultHeartbeatIntervalSecs
	}
	return c
}

// String returns the conversation's endpoint and direction for logging.
func (c *Conversation) String() string {
	direction := "inbound"
	if c.outbound {
		direction = "outbound"
	}
	return fmt.Sprintf("%s:%d (%s)", c.peerAddr, c.peerPort, direction)
}

// IsOutbound returns whether the local node dialed this conversation.
func (c *Conversation) IsOutbound() bool {
	return c.outbound
}

// IsAuthenticated returns whether the remote peer has proven ownership of
// its advertised key.
func (c *Conversation) IsAuthenticated() bool {
	return c.pubKey != nil
}

// AuthState returns the conversation's authentication state.
func (c *Conversation) AuthState() AuthState {
	if c.closed {
		return AuthClosed
	}
	return c.authState
}

// PublicKey returns the remote peer's authenticated public key, or nil
// before any acceptable handshake.
func (c *Conversation) PublicKey() *btcec.PublicKey {
	return c.pubKey
}

// Stats returns the conversation's traffic and health accounting.  The
// returned stats share the conversation's single-owner discipline.
func (c *Conversation) Stats() *NeighborStats {
	return c.stats
}

// PeerAddr returns the socket address of the remote peer.
func (c *Conversation) PeerAddr() wire.PeerAddress {
	return c.peerAddr
}

// PeerPort returns the socket port of the remote peer.
func (c *Conversation) PeerPort() uint16 {
	return c.peerPort
}

// Services returns the service bitmask the peer advertised in its
// handshake, or zero before authentication.
func (c *Conversation) Services() uint16 {
	return c.services
}

// DataURL returns the data endpoint the peer advertised in its handshake.
func (c *Conversation) DataURL() string {
	return c.dataURL
}

// ExpireBlockHeight returns the burn height the peer's key expires at.
func (c *Conversation) ExpireBlockHeight() uint64 {
	return c.expireBlockHeight
}

// PeerVersion returns the protocol version the peer reported during its
// handshake, or zero before authentication.
func (c *Conversation) PeerVersion() uint32 {
	return c.peerVersion
}

// HeartbeatIntervalSecs returns the heartbeat interval this node advertises
// on the conversation.
func (c *Conversation) HeartbeatIntervalSecs() uint32 {
	return c.heartbeatSecs
}

// PeerHeartbeatSecs returns how often the remote peer has promised to
// contact us, or zero before the interval is known.
func (c *Conversation) PeerHeartbeatSecs() uint32 {
	return c.peerHeartbeatSecs
}

// BurnBlockHeight returns the peer's claimed burnchain tip height.
func (c *Conversation) BurnBlockHeight() uint64 {
	return c.burnBlockHeight
}

// StableBlockHeight returns the peer's claimed stable burnchain height.
func (c *Conversation) StableBlockHeight() uint64 {
	return c.stableBlockHeight
}

// NeighborAddress returns the peer's identity keyed by its socket address.
// The key hash is zero before authentication.
func (c *Conversation) NeighborAddress() wire.NeighborAddress {
	return wire.NeighborAddress{
		Addr:          c.peerAddr,
		Port:          c.peerPort,
		PublicKeyHash: c.pubKeyHash,
	}
}

// HandshakeNeighborAddress returns the peer's identity keyed by the address
// it reported about itself during its handshake.  This is the address other
// nodes should dial to reach it, which differs from the socket address for
// inbound peers behind a NAT.
func (c *Conversation) HandshakeNeighborAddress() wire.NeighborAddress {
	return wire.NeighborAddress{
		Addr:          c.handshakeAddr,
		Port:          c.handshakePort,
		PublicKeyHash: c.pubKeyHash,
	}
}

// AddKnownTx records that the peer is known to have the given transaction,
// either because it sent it to us or because we relayed it there.
//
// This function is safe for concurrent access.
func (c *Conversation) AddKnownTx(txid chainhash.Hash) {
	c.knownTxs.Add(txid)
}

// IsKnownTx returns whether the peer is already known to have the given
// transaction.
//
// This function is safe for concurrent access.
func (c *Conversation) IsKnownTx(txid chainhash.Hash) bool {
	return c.knownTxs.Contains(txid)
}

// SupportsMempoolQuery returns whether a peer advertising the given service
// bits can answer mempool synchronization queries.
func SupportsMempoolQuery(services uint16) bool {
	const want = wire.ServiceRelay | wire.ServiceData
	return services&want == want
}

// Recv reads whatever the socket has to offer, appending to the receive
// buffer and parsing out as many complete envelopes as the inbox has room
// for.  It returns the number of bytes read.
//
// Reading stops at the inbox cap, leaving backpressure on the socket.  A
// clean remote close surfaces as io.EOF only when nothing was read; other
// read errors, including deadline timeouts, are returned alongside the
// bytes read before them.  A parse failure closes the conversation.
func (c *Conversation) Recv(r io.Reader) (int, error) {
	if c.closed {
		return 0, ErrConversationClosed
	}

	var total int
	buf := make([]byte, recvChunkSize)
	for len(c.inbox) < maxInboxMessages {
		n, err := r.Read(buf)
		if n > 0 {
			total += n
			c.recvBuf = append(c.recvBuf, buf[:n]...)
			c.stats.BytesRx += uint64(n)
			c.stats.LastRecv = time.Now()
			if perr := c.parseEnvelopes(); perr != nil {
				return total, perr
			}
		}
		if err != nil {
			if err == io.EOF && total > 0 {
				return total, nil
			}
			return total, err
		}
	}
	return total, nil
}

// parseEnvelopes drains complete envelopes from the receive buffer into the
// inbox.  Bytes of a trailing incomplete envelope stay buffered for the
// next read.  Undecodable bytes are unrecoverable because framing is lost,
// so they close the conversation.
func (c *Conversation) parseEnvelopes() error {
	offset := 0
	for offset < len(c.recvBuf) && len(c.inbox) < maxInboxMessages {
		br := bytes.NewReader(c.recvBuf[offset:])
		_, env, err := wire.ReadEnvelopeN(br, c.version)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			c.recvBuf = nil
			c.stats.MsgsErr++
			c.closed = true
			return fmt.Errorf("%w: undecodable envelope: %v",
				ErrInvalidMessage, err)
		}
		offset += len(c.recvBuf[offset:]) - br.Len()
		c.inbox = append(c.inbox, env)
	}
	if offset > 0 {
		c.recvBuf = append(c.recvBuf[:0], c.recvBuf[offset:]...)
	}
	return nil
}

// TryFlush writes as much queued outbound traffic as the socket will take,
// returning the number of bytes written.  Partial writes are fine; the next
// call resumes mid-envelope.
func (c *Conversation) TryFlush(w io.Writer) (int, error) {
	var total int
	for len(c.sendQueue) > 0 {
		buf := c.sendQueue[0]
		n, err := w.Write(buf[c.sendOffset:])
		if n > 0 {
			total += n
			c.sendOffset += n
			c.stats.BytesTx += uint64(n)
			c.stats.LastSend = time.Now()
		}
		if c.sendOffset >= len(buf) {
			c.sendQueue = c.sendQueue[1:]
			c.sendOffset = 0
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// PendingSends returns the number of envelopes waiting to be flushed.
func (c *Conversation) PendingSends() int {
	return len(c.sendQueue)
}

// PendingRequests returns the number of requests still waiting for replies.
func (c *Conversation) PendingRequests() int {
	return len(c.pending)
}

// newEnvelope wraps the payload in an envelope stamped with this node's
// protocol identity and burnchain view.  The caller signs it.
func (c *Conversation) newEnvelope(view *chainstate.View,
	payload wire.Message) *wire.Envelope {

	env := wire.NewEnvelope(payload)
	env.Preamble.PeerVersion = c.version
	env.Preamble.NetworkID = c.networkID
	env.Preamble.BurnBlockHeight = view.BurnBlockHeight
	env.Preamble.BurnBlockHash = view.BurnBlockHash
	env.Preamble.BurnStableBlockHeight = view.StableHeight
	env.Preamble.BurnStableBlockHash = view.StableHash
	return env
}

// enqueueEnvelope serializes a signed envelope onto the send queue.
func (c *Conversation) enqueueEnvelope(env *wire.Envelope) error {
	if c.closed {
		return ErrConversationClosed
	}
	if len(c.sendQueue) >= maxSendQueue {
		return ErrOutboxFull
	}

	var buf bytes.Buffer
	if _, err := wire.WriteEnvelopeN(&buf, env, c.version); err != nil {
		return err
	}
	c.sendQueue = append(c.sendQueue, buf.Bytes())
	c.stats.MsgsTx++
	return nil
}

// randomSeq returns a random sequence number not already claimed by a
// pending request.
func (c *Conversation) randomSeq() (uint32, error) {
	for {
		var b [4]byte
		if _, err := rand.Read(b[:]); err != nil {
			return 0, err
		}
		seq := binary.BigEndian.Uint32(b[:])
		if _, ok := c.pending[seq]; !ok {
			return seq, nil
		}
	}
}

// SendMessage queues a one-way message for the peer.  No reply is expected
// or correlated.
func (c *Conversation) SendMessage(local *LocalPeer, view *chainstate.View,
	payload wire.Message) error {

	seq, err := c.randomSeq()
	if err != nil {
		return err
	}
	env := c.newEnvelope(view, payload)
	if err := env.Sign(seq, local.PrivateKey); err != nil {
		return err
	}
	return c.enqueueEnvelope(env)
}

// SendReply queues a reply to a received request, echoing the request's
// sequence number so the peer can correlate it.
func (c *Conversation) SendReply(local *LocalPeer, view *chainstate.View,
	seq uint32, payload wire.Message) error {

	env := c.newEnvelope(view, payload)
	if err := env.Sign(seq, local.PrivateKey); err != nil {
		return err
	}
	return c.enqueueEnvelope(env)
}

// SendRelayed forwards a received envelope to this peer, restamping the
// preamble with the local view and appending the local node to the relay
// hints.  Forwarding fails when the envelope has already visited the
// maximum number of relayers.
func (c *Conversation) SendRelayed(local *LocalPeer, view *chainstate.View,
	orig *wire.Envelope) error {

	seq, err := c.randomSeq()
	if err != nil {
		return err
	}

	env := c.newEnvelope(view, orig.Payload)
	env.Relayers = append([]wire.RelayData(nil), orig.Relayers...)
	hint := wire.RelayData{Peer: local.NeighborAddress(), Seq: seq}
	if err := env.SignRelayed(seq, local.PrivateKey, hint); err != nil {
		return err
	}
	return c.enqueueEnvelope(env)
}

// SendRequest queues a request and registers it for reply correlation.
// The returned handle reports the reply, or ErrRequestTimeout once ttl
// passes without one.
func (c *Conversation) SendRequest(local *LocalPeer, view *chainstate.View,
	payload wire.Message, ttl time.Duration) (*ReplyHandle, error) {

	seq, err := c.randomSeq()
	if err != nil {
		return nil, err
	}
	env := c.newEnvelope(view, payload)
	if err := env.Sign(seq, local.PrivateKey); err != nil {
		return nil, err
	}
	if err := c.enqueueEnvelope(env); err != nil {
		return nil, err
	}

	rh := &ReplyHandle{seq: seq, deadline: time.Now().Add(ttl)}
	c.pending[seq] = rh
	return rh, nil
}

// ClearTimeouts expires every pending request whose deadline has passed,
// recording a failed health point for each.  It returns the number of
// requests expired.
func (c *Conversation) ClearTimeouts() int {
	now := time.Now()
	var expired int
	for seq, rh := range c.pending {
		if !rh.done && !now.After(rh.deadline) {
			continue
		}
		rh.expire()
		delete(c.pending, seq)
		c.stats.addHealthPoint(false)
		expired++
	}
	if expired > 0 {
		log.Debugf("%v: expired %d pending requests", c, expired)
	}
	return expired
}

// ReplyHandle tracks one in-flight request.  It shares the conversation's
// single-owner discipline.
type ReplyHandle struct {
	seq      uint32
	deadline time.Time
	env      *wire.Envelope
	err      error
	done     bool
}

// Seq returns the sequence number the request was sent with.
func (rh *ReplyHandle) Seq() uint32 {
	return rh.seq
}

// Deadline returns when the request expires.
func (rh *ReplyHandle) Deadline() time.Time {
	return rh.deadline
}

// Poll returns the reply if one has arrived, ErrRequestTimeout if the
// deadline passed first, and (nil, nil) while the request is still in
// flight.
func (rh *ReplyHandle) Poll() (*wire.Envelope, error) {
	if !rh.done && time.Now().After(rh.deadline) {
		rh.done = true
		rh.err = ErrRequestTimeout
	}
	if !rh.done {
		return nil, nil
	}
	return rh.env, rh.err
}

// fulfill records the reply for the caller to poll.
func (rh *ReplyHandle) fulfill(env *wire.Envelope) {
	if rh.done {
		return
	}
	rh.env = env
	rh.done = true
}

// expire marks the request timed out unless it already completed.
func (rh *ReplyHandle) expire() {
	if rh.done {
		return
	}
	rh.err = ErrRequestTimeout
	rh.done = true
}
