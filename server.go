// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/embersuite/emberd/chaincfg"
	"github.com/embersuite/emberd/chaincfg/chainhash"
	"github.com/embersuite/emberd/chainstate"
	"github.com/embersuite/emberd/connmgr"
	"github.com/embersuite/emberd/database"
	"github.com/embersuite/emberd/mempool"
	"github.com/embersuite/emberd/peer"
	"github.com/embersuite/emberd/peerdb"
	"github.com/embersuite/emberd/wire"

	"github.com/btcsuite/btcd/btcec/v2"
)

const (
	// defaultServices describes the default services that are supported by
	// the node.
	defaultServices = wire.ServiceRelay | wire.ServiceData

	// defaultConnectTimeout is the amount of time allowed for an outbound
	// dial before it is abandoned.
	defaultConnectTimeout = time.Second * 30

	// connectionRetryInterval is the base amount of time to wait in between
	// retries when connecting to persistent peers.  It is adjusted by the
	// number of retries such that there is a retry backoff.
	connectionRetryInterval = time.Second * 5

	// peerReadInterval is the longest a conversation blocks in a socket
	// read before its loop runs the periodic work again.
	peerReadInterval = time.Millisecond * 250

	// peerWriteTimeout is the deadline applied to socket writes when
	// flushing a conversation's outbox.  Partial writes resume on the next
	// pass.
	peerWriteTimeout = time.Second * 5

	// authTimeout is how long a connection may remain unauthenticated
	// before it is dropped.
	authTimeout = time.Minute * 2

	// handshakeTimeout bounds the handshake request sent on outbound
	// connections.
	handshakeTimeout = time.Second * 30

	// pingTimeout bounds heartbeat ping requests.
	pingTimeout = time.Minute

	// minHealthScore is the health score below which a peer with a full
	// sample ring is disconnected.
	minHealthScore = 0.25

	// viewRefreshInterval is how often the cached burnchain view is
	// rebuilt from the header index.
	viewRefreshInterval = time.Second * 5

	// mempoolSyncInterval is how often a mempool sync round is attempted
	// against a mempool-capable peer.
	mempoolSyncInterval = time.Second * 30

	// mempoolSyncTimeout bounds each mempool query in a sync round.
	mempoolSyncTimeout = time.Minute

	// maxMempoolSyncPages caps the pages fetched in one sync round.
	maxMempoolSyncPages = 16

	// mempoolQueryMaxTxs is the largest number of transactions returned
	// for a single mempool query.
	mempoolQueryMaxTxs = 256

	// mempoolQueryChunkTxs is the number of transactions streamed per pass
	// while building a mempool query reply.
	mempoolQueryChunkTxs = 32

	// mempoolGCInterval is how often transactions beyond the age limit
	// are purged from the pool.
	mempoolGCInterval = time.Minute * 5

	// relayDrainInterval is how often per-conversation relayer statistics
	// are drained.
	relayDrainInterval = time.Minute

	// retryCooldown is how long a dialed address is held out of the
	// new-address rotation after an attempt.
	retryCooldown = time.Minute * 10

	// maxAttemptedAddrs bounds the recently-attempted address set.
	maxAttemptedAddrs = 1024

	// freshNeighborLimit is how many fresh neighbors are considered per
	// new-address request.
	freshNeighborLimit = 32

	// defaultKeyLifetime is the number of burnchain blocks a freshly
	// minted node key remains valid for.
	defaultKeyLifetime = 4096

	// banPointsProtocol is the ban score assessed for a fatal protocol
	// violation.
	banPointsProtocol = 100

	// banPointsMalformed is the transient ban score assessed per
	// recoverable message failure.
	banPointsMalformed = 10

	// peerCommandQueueLen is the depth of each peer's command queue.
	peerCommandQueueLen = 32

	// Store names under the per-network data directory.
	peerDbName    = "peers.sqlite"
	mempoolDbName = "mempool.sqlite"
	chainDbName   = "chainstate"

	// nodeKeyName is the file the node signing key is persisted in.
	nodeKeyName = "node.key"
)

// zeroHash is the zero value hash (all zeros).
var zeroHash chainhash.Hash

// peerCommand is a closure the peer handler or another peer's goroutine
// queues to run on a conversation's owning goroutine.  Conversations are
// single-owner, so all cross-goroutine access flows through these.
type peerCommand func(sp *serverPeer, env *peer.ChatEnv)

// broadcastMsg provides the ability to house a command to be run on every
// connected peer except the excluded one.
type broadcastMsg struct {
	command peerCommand
	exclude *serverPeer
}

// mempoolSyncState tracks the progress of one mempool sync round against a
// single peer.
type mempoolSyncState struct {
	syncData    *wire.MemPoolSyncData
	heightFloor uint64
	pagesLeft   int
	added       uint64
	handle      *peer.ReplyHandle
}

// serverPeer extends a conversation with the state the server needs to drive
// it.  The conversation and the fields between banScore and cmds are owned
// by the peer's run goroutine.
type serverPeer struct {
	server *server

	conv       *peer.Conversation
	conn       net.Conn
	connReq    *connmgr.ConnReq
	persistent bool
	connTime   time.Time
	banScore   connmgr.DynamicBanScore

	lastMsgsErr    uint64
	authenticated  bool
	handshake      *peer.ReplyHandle
	ping           *peer.ReplyHandle
	mempoolSync    *mempoolSyncState
	lastRelayDrain time.Time

	cmds     chan peerCommand
	quit     chan struct{}
	quitOnce sync.Once
}

// newServerPeer returns a new serverPeer instance.
func newServerPeer(s *server, conv *peer.Conversation, conn net.Conn,
	connReq *connmgr.ConnReq, persistent bool) *serverPeer {

	return &serverPeer{
		server:     s,
		conv:       conv,
		conn:       conn,
		connReq:    connReq,
		persistent: persistent,
		connTime:   time.Now(),
		cmds:       make(chan peerCommand, peerCommandQueueLen),
		quit:       make(chan struct{}),
	}
}

// String returns the conversation's address and direction.
func (sp *serverPeer) String() string {
	return sp.conv.String()
}

// addrString returns the remote socket address the peer is connected on.
func (sp *serverPeer) addrString() string {
	return sp.conn.RemoteAddr().String()
}

// Disconnect closes the peer's connection and signals its goroutine to exit.
// It is idempotent and safe to call from any goroutine.
func (sp *serverPeer) Disconnect() {
	sp.quitOnce.Do(func() {
		close(sp.quit)
		sp.conn.Close()
	})
}

// addBanScore increases the persistent and decaying ban score fields by the
// values passed as parameters.  If the resulting score exceeds half of the
// ban threshold, a warning is logged including the reason provided.  Further,
// if the score is above the ban threshold, the peer will be banned and
// disconnected.
func (sp *serverPeer) addBanScore(persistent, transient uint32, reason string) bool {
	// No warning is logged and no score is calculated if banning is
	// disabled.
	if cfg.DisableBanning {
		return false
	}

	warnThreshold := cfg.BanThreshold >> 1
	if transient == 0 && persistent == 0 {
		// The score is not being increased, but a warning message is
		// still logged if the score is above the warn threshold.
		score := sp.banScore.Int()
		if score > warnThreshold {
			srvrLog.Warnf("Misbehaving peer %s: %s -- ban score is "+
				"%d, it was not increased this time", sp, reason,
				score)
		}
		return false
	}
	score := sp.banScore.Increase(persistent, transient)
	if score > warnThreshold {
		srvrLog.Warnf("Misbehaving peer %s: %s -- ban score increased "+
			"to %d", sp, reason, score)
		if score > cfg.BanThreshold {
			srvrLog.Warnf("Misbehaving peer %s -- banning and "+
				"disconnecting", sp)
			sp.server.BanPeer(sp)
			sp.Disconnect()
			return true
		}
	}
	return false
}

// noteAuthenticated surfaces the first successful handshake on the
// conversation.  Rekeying handshakes arrive on already-noted peers and are
// ignored here.
func (sp *serverPeer) noteAuthenticated() {
	if sp.authenticated || !sp.conv.IsAuthenticated() {
		return
	}
	sp.authenticated = true
	srvrLog.Infof("New peer %s", sp)
	if sp.server.wsNotifier != nil {
		sp.server.wsNotifier.NotifyPeerConnected(sp)
	}
}

// pollHandshake checks on the handshake request an outbound peer opens with.
// It returns false when the handshake failed and the connection should be
// torn down.
func (sp *serverPeer) pollHandshake() bool {
	if sp.handshake == nil {
		return true
	}
	reply, err := sp.handshake.Poll()
	if err != nil {
		srvrLog.Debugf("Handshake with %s failed: %v", sp, err)
		return false
	}
	if reply == nil {
		return true
	}

	sp.handshake = nil
	switch reply.Payload.(type) {
	case *wire.MsgHandshakeAccept:
		sp.noteAuthenticated()
		return true
	case *wire.MsgHandshakeReject:
		srvrLog.Debugf("Peer %s rejected our handshake", sp)
	case *wire.MsgNack:
		srvrLog.Debugf("Peer %s nacked our handshake", sp)
	default:
		srvrLog.Debugf("Peer %s answered our handshake with %s", sp,
			reply.Payload.Command())
	}
	return false
}

// maybePing keeps the conversation warm by sending a heartbeat ping whenever
// nothing has been sent for the advertised heartbeat interval.
func (sp *serverPeer) maybePing(env *peer.ChatEnv) {
	if sp.ping != nil {
		reply, err := sp.ping.Poll()
		if err != nil {
			srvrLog.Debugf("Ping to %s timed out", sp)
			sp.ping = nil
		} else if reply != nil {
			sp.ping = nil
		}
		if sp.ping != nil {
			return
		}
	}
	if !sp.authenticated {
		return
	}

	interval := time.Duration(sp.conv.HeartbeatIntervalSecs()) * time.Second
	if interval <= 0 || time.Since(sp.conv.Stats().LastSend) < interval {
		return
	}

	rh, err := sp.conv.SendRequest(env.Local, env.View,
		wire.NewMsgPing(rand.Uint32()), pingTimeout)
	if err != nil {
		srvrLog.Debugf("Unable to queue ping to %s: %v", sp, err)
		return
	}
	sp.ping = rh
}

// drainRelayers periodically drains the conversation's relayer statistics so
// the underlying map stays bounded.
func (sp *serverPeer) drainRelayers() {
	if time.Since(sp.lastRelayDrain) < relayDrainInterval {
		return
	}
	sp.lastRelayDrain = time.Now()
	for addr, rs := range sp.conv.Stats().TakeRelayers() {
		a := addr
		srvrLog.Debugf("Peer %s relayed %d %s (%d bytes) for %s", sp,
			rs.NumMessages,
			pickNoun(rs.NumMessages, "message", "messages"),
			rs.NumBytes, a.String())
	}
}

// shouldDisconnect applies the server's liveness policy to the peer.
func (sp *serverPeer) shouldDisconnect() bool {
	// Unauthenticated connections get a short window to handshake.
	if !sp.authenticated {
		if time.Since(sp.connTime) > authTimeout {
			srvrLog.Debugf("Peer %s has not authenticated, "+
				"disconnecting", sp)
			return true
		}
		return false
	}

	stats := sp.conv.Stats()

	// A peer that has gone quiet for twice its promised heartbeat
	// interval is presumed dead.
	heartbeat := time.Duration(sp.conv.PeerHeartbeatSecs()) * time.Second
	if heartbeat > 0 && !stats.LastRecv.IsZero() &&
		time.Since(stats.LastRecv) > 2*heartbeat {

		srvrLog.Debugf("Peer %s idle beyond its heartbeat window, "+
			"disconnecting", sp)
		return true
	}

	// Consistently failing requests mark the peer unhealthy.
	if score := stats.HealthScore(); score < minHealthScore {
		srvrLog.Debugf("Peer %s health %.2f below %.2f, disconnecting",
			sp, score, minHealthScore)
		return true
	}

	return false
}

// run drives the conversation until the peer disconnects or the server shuts
// it down.  Socket reads with a short deadline double as the loop's pacing:
// each pass pumps received bytes into the conversation, chats, routes what
// surfaced, runs the periodic work, and flushes the outbox.
func (sp *serverPeer) run() {
	s := sp.server
	defer func() {
		sp.conn.Close()
		select {
		case s.donePeers <- sp:
		case <-s.quit:
		}
		s.wg.Done()
	}()

	// Outbound conversations open by introducing themselves.
	if sp.conv.IsOutbound() {
		env := s.chatEnv()
		rh, err := sp.conv.SendRequest(env.Local, env.View,
			wire.NewMsgHandshake(env.Local.HandshakeData()),
			handshakeTimeout)
		if err != nil {
			srvrLog.Debugf("Unable to queue handshake to %s: %v", sp,
				err)
			return
		}
		sp.handshake = rh
	}

	for {
		select {
		case <-sp.quit:
			return
		default:
		}

		sp.conn.SetReadDeadline(time.Now().Add(peerReadInterval))
		n, err := sp.conv.Recv(sp.conn)
		if n > 0 {
			s.AddBytesReceived(uint64(n))
		}
		if err != nil {
			var nerr net.Error
			switch {
			case errors.As(err, &nerr) && nerr.Timeout():
				// Nothing arrived this pass.
			case errors.Is(err, io.EOF):
				srvrLog.Debugf("Peer %s disconnected", sp)
				return
			default:
				// Unframeable bytes are a protocol violation;
				// plain socket failures are not.
				var merr *wire.MessageError
				if errors.As(err, &merr) {
					sp.addBanScore(banPointsProtocol, 0,
						merr.Description)
				} else {
					srvrLog.Debugf("Read error from %s: %v",
						sp, err)
				}
				return
			}
		}

		env := s.chatEnv()
		out, cerr := sp.conv.Chat(env)
		s.routeMessages(sp, env, out)
		if cerr != nil {
			if errors.Is(cerr, peer.ErrInvalidMessage) {
				sp.addBanScore(banPointsProtocol, 0, cerr.Error())
			} else if !errors.Is(cerr, peer.ErrConversationClosed) {
				srvrLog.Debugf("Conversation error with %s: %v",
					sp, cerr)
			}
			return
		}

		// Recoverable per-message failures feed the decaying ban
		// score.
		if errs := sp.conv.Stats().MsgsErr; errs > sp.lastMsgsErr {
			delta := uint32(errs - sp.lastMsgsErr)
			sp.lastMsgsErr = errs
			banned := sp.addBanScore(0, delta*banPointsMalformed,
				"recoverable message failures")
			if banned {
				return
			}
		}

		// Run commands other goroutines queued for this conversation.
	drain:
		for {
			select {
			case cmd := <-sp.cmds:
				cmd(sp, env)
			default:
				break drain
			}
		}

		if !sp.pollHandshake() {
			return
		}
		sp.noteAuthenticated()
		sp.maybePing(env)
		sp.advanceMempoolSync(env)
		if expired := sp.conv.ClearTimeouts(); expired > 0 {
			srvrLog.Debugf("%d %s to %s expired", expired,
				pickNoun(uint64(expired), "request", "requests"),
				sp)
		}
		sp.drainRelayers()

		if sp.shouldDisconnect() {
			return
		}

		sp.conn.SetWriteDeadline(time.Now().Add(peerWriteTimeout))
		sent, err := sp.conv.TryFlush(sp.conn)
		if sent > 0 {
			s.AddBytesSent(uint64(sent))
		}
		if err != nil {
			var nerr net.Error
			if !(errors.As(err, &nerr) && nerr.Timeout()) {
				srvrLog.Debugf("Write error to %s: %v", sp, err)
				return
			}
		}
	}
}

// beginMempoolSync is the broadcast command that starts a mempool sync round
// on the first authenticated mempool-capable peer to claim the server's sync
// token.
func beginMempoolSync(sp *serverPeer, env *peer.ChatEnv) {
	s := sp.server
	if sp.mempoolSync != nil || !sp.authenticated {
		return
	}
	if !peer.SupportsMempoolQuery(sp.conv.Services()) {
		return
	}
	if !atomic.CompareAndSwapInt32(&s.mempoolSyncing, 0, 1) {
		return
	}

	syncData, err := s.mempool.MakeSyncData()
	if err != nil {
		txmpLog.Errorf("Unable to build mempool sync data: %v", err)
		atomic.StoreInt32(&s.mempoolSyncing, 0)
		return
	}

	sp.mempoolSync = &mempoolSyncState{
		syncData:    syncData,
		heightFloor: env.View.BurnBlockHeight,
		pagesLeft:   maxMempoolSyncPages,
	}
	if !sp.sendMempoolQuery(env, nil) {
		sp.finishMempoolSync()
	}
}

// sendMempoolQuery queues the next page request of the active sync round.
func (sp *serverPeer) sendMempoolQuery(env *peer.ChatEnv,
	pageID *chainhash.Hash) bool {

	ms := sp.mempoolSync
	msg := wire.NewMsgGetMempoolTxs(ms.syncData, ms.heightFloor, pageID)
	rh, err := sp.conv.SendRequest(env.Local, env.View, msg,
		mempoolSyncTimeout)
	if err != nil {
		srvrLog.Debugf("Unable to queue mempool query to %s: %v", sp,
			err)
		return false
	}
	ms.handle = rh
	ms.pagesLeft--
	return true
}

// finishMempoolSync ends the active sync round and releases the server's
// sync token.
func (sp *serverPeer) finishMempoolSync() {
	if ms := sp.mempoolSync; ms != nil && ms.added > 0 {
		txmpLog.Debugf("Mempool sync with %s added %d %s", sp, ms.added,
			pickNoun(ms.added, "transaction", "transactions"))
	}
	sp.mempoolSync = nil
	atomic.StoreInt32(&sp.server.mempoolSyncing, 0)
}

// advanceMempoolSync polls the active sync round's outstanding query,
// admitting returned transactions and chasing the next page cursor.
func (sp *serverPeer) advanceMempoolSync(env *peer.ChatEnv) {
	ms := sp.mempoolSync
	if ms == nil {
		return
	}

	reply, err := ms.handle.Poll()
	if err != nil {
		srvrLog.Debugf("Mempool query to %s failed: %v", sp, err)
		sp.finishMempoolSync()
		return
	}
	if reply == nil {
		return
	}

	msg, ok := reply.Payload.(*wire.MsgMempoolTxs)
	if !ok {
		srvrLog.Debugf("Peer %s answered a mempool query with %s", sp,
			reply.Payload.Command())
		sp.finishMempoolSync()
		return
	}

	consensusHash, blockHash, height := admissionPoint(env.View)
	for _, tx := range msg.Txs {
		txid := tx.TxID()
		sp.conv.AddKnownTx(txid)
		outcome, err := sp.server.mempool.TryAdd(consensusHash,
			blockHash, height, tx)
		if err != nil {
			var rerr mempool.RuleError
			if errors.As(err, &rerr) {
				txmpLog.Debugf("Rejected synced transaction "+
					"%v from %s: %v", txid, sp, err)
				continue
			}
			txmpLog.Errorf("Failed to store synced transaction "+
				"%v: %v", txid, err)
			sp.finishMempoolSync()
			return
		}
		if outcome != mempool.TxAlreadyExists {
			ms.added++
		}
	}

	if msg.NextPage == nil || ms.pagesLeft <= 0 || len(msg.Txs) == 0 {
		sp.finishMempoolSync()
		return
	}
	if !sp.sendMempoolQuery(env, msg.NextPage) {
		sp.finishMempoolSync()
	}
}

// peerState maintains state of inbound, persistent, and outbound peers.
type peerState struct {
	inboundPeers    map[*serverPeer]struct{}
	outboundPeers   map[*serverPeer]struct{}
	persistentPeers map[*serverPeer]struct{}
}

// Count returns the count of all known peers.
func (ps *peerState) Count() int {
	return len(ps.inboundPeers) + len(ps.outboundPeers) +
		len(ps.persistentPeers)
}

// forAllOutboundPeers is a helper function that runs closure on all outbound
// peers known to peerState.
func (ps *peerState) forAllOutboundPeers(closure func(sp *serverPeer)) {
	for e := range ps.outboundPeers {
		closure(e)
	}
	for e := range ps.persistentPeers {
		closure(e)
	}
}

// forAllPeers is a helper function that runs closure on all peers known to
// peerState.
func (ps *peerState) forAllPeers(closure func(sp *serverPeer)) {
	for e := range ps.inboundPeers {
		closure(e)
	}
	ps.forAllOutboundPeers(closure)
}

// server provides an ember p2p server for handling communications to and
// from ember peers.
type server struct {
	// The following variables must only be used atomically.
	bytesReceived  uint64
	bytesSent      uint64
	mempoolSyncing int32
	started        int32
	shutdown       int32

	chainParams *chaincfg.Params
	localPeer   *peer.LocalPeer

	db          database.DB
	headerIndex *chainstate.HeaderIndex
	staging     *chainstate.StagingStore
	peerDB      *peerdb.DB
	mempool     *mempool.Store

	connManager *connmgr.ConnManager
	wsNotifier  *wsNotificationManager

	newPeers  chan *serverPeer
	donePeers chan *serverPeer
	banPeers  chan *serverPeer
	broadcast chan broadcastMsg
	wg        sync.WaitGroup
	quit      chan struct{}

	// viewMtx guards the cached burnchain view, rebuilt from the header
	// index by the peer handler.
	viewMtx sync.RWMutex
	view    *chainstate.View

	// connMtx guards the connected and recently-attempted address sets
	// consulted when picking new outbound targets.
	connMtx        sync.Mutex
	connectedAddrs map[string]struct{}
	attemptedAddrs map[string]time.Time

	// seedMtx guards the DNS-discovered address pool.
	seedMtx   sync.Mutex
	seedAddrs []net.Addr
}

// networkID returns the message magic of the network the server speaks.
func (s *server) networkID() uint32 {
	return uint32(s.chainParams.Net)
}

// chainView returns the current cached burnchain view.
func (s *server) chainView() *chainstate.View {
	s.viewMtx.RLock()
	view := s.view
	s.viewMtx.RUnlock()
	return view
}

// refreshView rebuilds the cached burnchain view from the header index.  A
// tip change invalidates the mempool's walk nonce cache.
func (s *server) refreshView() {
	view, err := s.headerIndex.BuildView(s.chainParams)
	if err != nil {
		srvrLog.Errorf("Unable to rebuild burnchain view: %v", err)
		return
	}

	s.viewMtx.Lock()
	old := s.view
	s.view = view
	s.viewMtx.Unlock()

	if old.BurnBlockHash != view.BurnBlockHash {
		srvrLog.Infof("Burnchain view now %v (height %d)",
			view.BurnBlockHash, view.BurnBlockHeight)
		if err := s.mempool.ResetLastKnownNonces(); err != nil {
			txmpLog.Warnf("Unable to reset mempool nonce cache: %v",
				err)
		}
	}
}

// chatEnv assembles the environment a conversation chats under.
func (s *server) chatEnv() *peer.ChatEnv {
	return &peer.ChatEnv{
		Local:  s.localPeer,
		PeerDB: s.peerDB,
		View:   s.chainView(),
	}
}

// admissionPoint returns the chain position transactions arriving over the
// network are admitted at, keyed by the node's burnchain view.
func admissionPoint(view *chainstate.View) (*chainhash.Hash, *chainhash.Hash, uint64) {
	return &view.StableHash, &view.BurnBlockHash, view.BurnBlockHeight
}

// routeMessages dispatches the unsolicited messages a chat surfaced to their
// handlers.
func (s *server) routeMessages(sp *serverPeer, env *peer.ChatEnv,
	msgs []*wire.Envelope) {

	for _, m := range msgs {
		switch msg := m.Payload.(type) {
		case *wire.MsgHandshake:
			// The conversation already authenticated the peer and
			// queued the accept.
			sp.noteAuthenticated()

		case *wire.MsgTxPush:
			s.handleTxPush(sp, env, m, msg)

		case *wire.MsgBlocksPush:
			s.handleBlocksPush(sp, msg)

		case *wire.MsgMicroblocksPush:
			s.handleMicroblocksPush(sp, msg)

		case *wire.MsgGetNeighbors:
			s.handleGetNeighbors(sp, env, m)

		case *wire.MsgGetBlocksInv:
			s.handleGetBlocksInv(sp, env, m, msg)

		case *wire.MsgGetMempoolTxs:
			s.handleGetMempoolTxs(sp, env, m, msg)

		case *wire.MsgNack:
			srvrLog.Debugf("Peer %s sent an unsolicited nack "+
				"(code %d)", sp, msg.Code)

		default:
			srvrLog.Tracef("Ignoring %s from %s", msg.Command(), sp)
		}
	}
}

// handleTxPush admits a pushed transaction to the mempool and forwards it to
// peers that have not seen it yet.
func (s *server) handleTxPush(sp *serverPeer, env *peer.ChatEnv,
	pushEnv *wire.Envelope, msg *wire.MsgTxPush) {

	tx := &msg.Tx
	txid := tx.TxID()

	consensusHash, blockHash, height := admissionPoint(env.View)
	outcome, err := s.mempool.TryAdd(consensusHash, blockHash, height, tx)
	if err != nil {
		var rerr mempool.RuleError
		if errors.As(err, &rerr) {
			txmpLog.Debugf("Rejected transaction %v from %s: %v",
				txid, sp, err)
			return
		}
		txmpLog.Errorf("Failed to process transaction %v: %v", txid, err)
		return
	}
	if outcome == mempool.TxAlreadyExists {
		return
	}

	txmpLog.Debugf("Accepted transaction %v from %s (%v)", txid, sp,
		outcome)
	if s.wsNotifier != nil {
		s.wsNotifier.NotifyTxAccepted(tx, outcome)
	}
	s.relayTransaction(pushEnv, txid, sp)
}

// relayTransaction forwards the accepted push to every other authenticated
// peer that has not already seen the transaction.  The forwarded envelope
// carries the original relayer list extended with this node, so downstream
// peers can reject loops.
func (s *server) relayTransaction(orig *wire.Envelope, txid chainhash.Hash,
	from *serverPeer) {

	s.BroadcastCommand(func(sp *serverPeer, env *peer.ChatEnv) {
		if !sp.conv.IsAuthenticated() || sp.conv.IsKnownTx(txid) {
			return
		}
		err := sp.conv.SendRelayed(env.Local, env.View, orig)
		if err != nil {
			srvrLog.Debugf("Unable to relay transaction %v to %s: "+
				"%v", txid, sp, err)
			return
		}
		sp.conv.AddKnownTx(txid)
	}, from)
}

// handleBlocksPush stages pushed blocks for the block processor.
func (s *server) handleBlocksPush(sp *serverPeer, msg *wire.MsgBlocksPush) {
	for i := range msg.Blocks {
		entry := &msg.Blocks[i]
		have, err := s.staging.HasStagedBlock(&entry.ConsensusHash)
		if err != nil {
			srvrLog.Errorf("Unable to check staged block %v: %v",
				entry.ConsensusHash, err)
			return
		}
		if have {
			continue
		}
		err = s.staging.StageBlock(&entry.ConsensusHash, entry.Block)
		if err != nil {
			srvrLog.Errorf("Unable to stage block %v: %v",
				entry.ConsensusHash, err)
			return
		}
		srvrLog.Debugf("Staged pushed block %v from %s",
			entry.ConsensusHash, sp)
	}
}

// handleMicroblocksPush stages a pushed microblock stream for the block
// processor.
func (s *server) handleMicroblocksPush(sp *serverPeer,
	msg *wire.MsgMicroblocksPush) {

	have, err := s.staging.HasStagedMicroblocks(&msg.IndexHash)
	if err != nil {
		srvrLog.Errorf("Unable to check staged microblocks %v: %v",
			msg.IndexHash, err)
		return
	}
	if have {
		return
	}
	err = s.staging.StageMicroblocks(&msg.IndexHash, msg.Microblocks)
	if err != nil {
		srvrLog.Errorf("Unable to stage microblocks %v: %v",
			msg.IndexHash, err)
		return
	}
	srvrLog.Debugf("Staged %d pushed %s for %v from %s",
		len(msg.Microblocks),
		pickNoun(uint64(len(msg.Microblocks)), "microblock",
			"microblocks"),
		msg.IndexHash, sp)
}

// handleGetNeighbors answers a neighbor query with the freshest neighbors
// known to the peer database.
func (s *server) handleGetNeighbors(sp *serverPeer, env *peer.ChatEnv,
	request *wire.Envelope) {

	neighbors, err := s.peerDB.FreshestNeighbors(s.networkID(),
		wire.MaxNeighborsPerMsg, env.View.BurnBlockHeight)
	if err != nil {
		srvrLog.Errorf("Unable to query neighbors: %v", err)
		return
	}

	reply := wire.NewMsgNeighbors()
	for _, n := range neighbors {
		na := wire.NeighborAddress{
			Addr:          n.Addr,
			Port:          n.Port,
			PublicKeyHash: chainhash.Hash160H(n.PublicKey[:]),
		}
		if err := reply.AddNeighbor(na); err != nil {
			break
		}
	}

	err = sp.conv.SendReply(env.Local, env.View, request.Preamble.Seq,
		reply)
	if err != nil {
		srvrLog.Debugf("Unable to queue neighbors reply to %s: %v", sp,
			err)
	}
}

// handleGetBlocksInv answers a block inventory query from the header index.
// A bit is set for each height in the requested range the node has processed
// a burnchain header for.
func (s *server) handleGetBlocksInv(sp *serverPeer, env *peer.ChatEnv,
	request *wire.Envelope, msg *wire.MsgGetBlocksInv) {

	count := msg.Count
	if count > wire.MaxBlocksInvPerMsg {
		count = wire.MaxBlocksInvPerMsg
	}

	tipHeight, _, err := s.headerIndex.Tip()
	if err != nil {
		srvrLog.Errorf("Unable to read header index tip: %v", err)
		return
	}
	switch {
	case msg.StartHeight > tipHeight:
		count = 0
	case msg.StartHeight+uint64(count) > tipHeight+1:
		count = uint16(tipHeight + 1 - msg.StartHeight)
	}

	reply := wire.NewMsgBlocksInv(count)
	for i := uint16(0); i < count; i++ {
		hash, err := s.headerIndex.HashAt(msg.StartHeight + uint64(i))
		if err != nil {
			srvrLog.Errorf("Unable to read header at height %d: %v",
				msg.StartHeight+uint64(i), err)
			return
		}
		if hash != nil {
			reply.SetBlock(i)
		}
	}

	err = sp.conv.SendReply(env.Local, env.View, request.Preamble.Seq,
		reply)
	if err != nil {
		srvrLog.Debugf("Unable to queue inventory reply to %s: %v", sp,
			err)
	}
}

// handleGetMempoolTxs answers a mempool query by streaming the transactions
// the querier's sync data does not account for, corking with a page cursor
// when the query budget runs out before the scan does.
func (s *server) handleGetMempoolTxs(sp *serverPeer, env *peer.ChatEnv,
	request *wire.Envelope, msg *wire.MsgGetMempoolTxs) {

	var pageID *chainhash.Hash
	if msg.PageID != zeroHash {
		pageID = &msg.PageID
	}
	stream := mempool.NewTxStream(&msg.SyncData, mempoolQueryMaxTxs,
		msg.HeightFloor, pageID)

	var buf bytes.Buffer
	for {
		n, err := s.mempool.StreamTxs(&buf, stream, mempoolQueryChunkTxs)
		if err != nil {
			srvrLog.Errorf("Unable to stream mempool transactions "+
				"to %s: %v", sp, err)
			return
		}
		if n == 0 {
			break
		}
	}

	txs, nextPage, err := mempool.DecodeTxStream(buf.Bytes())
	if err != nil {
		srvrLog.Errorf("Unable to decode streamed mempool "+
			"transactions: %v", err)
		return
	}

	reply := wire.NewMsgMempoolTxs(txs, nextPage)
	err = sp.conv.SendReply(env.Local, env.View, request.Preamble.Seq,
		reply)
	if err != nil {
		srvrLog.Debugf("Unable to queue mempool reply to %s: %v", sp,
			err)
	}
}

// mempoolGC evicts transactions that have been pooled for longer than the
// network's age limit.
func (s *server) mempoolGC() {
	view := s.chainView()
	maxAge := s.chainParams.MempoolMaxTxAge
	if view.BurnBlockHeight <= maxAge {
		return
	}
	minHeight := view.BurnBlockHeight - maxAge

	removed, err := s.mempool.GarbageCollect(minHeight, nil)
	if err != nil {
		txmpLog.Errorf("Mempool garbage collection failed: %v", err)
		return
	}
	if removed > 0 {
		txmpLog.Debugf("Evicted %d %s accepted before height %d",
			removed, pickNoun(removed, "transaction", "transactions"),
			minHeight)
	}
}

// handleAddPeerMsg deals with adding new peers.  It is invoked from the
// peerHandler goroutine.
func (s *server) handleAddPeerMsg(state *peerState, sp *serverPeer) bool {
	if sp == nil {
		return false
	}

	// Ignore new peers if we're shutting down.
	if atomic.LoadInt32(&s.shutdown) != 0 {
		srvrLog.Infof("New peer %s ignored - server is shutting down",
			sp)
		sp.Disconnect()
		return false
	}

	// Limit max number of total peers.
	if state.Count() >= cfg.MaxPeers {
		srvrLog.Infof("Max peers reached [%d] - disconnecting peer %s",
			cfg.MaxPeers, sp)
		if sp.connReq != nil {
			s.connManager.Remove(sp.connReq.ID())
		}
		sp.Disconnect()
		return false
	}

	// Add the new peer and start it.
	srvrLog.Debugf("New peer %s", sp)
	switch {
	case sp.persistent:
		state.persistentPeers[sp] = struct{}{}
	case sp.conv.IsOutbound():
		state.outboundPeers[sp] = struct{}{}
	default:
		state.inboundPeers[sp] = struct{}{}
	}
	s.addrConnected(sp.addrString())
	s.wg.Add(1)
	go sp.run()
	return true
}

// handleDonePeerMsg deals with peers that have signalled they are done.  It
// is invoked from the peerHandler goroutine.
func (s *server) handleDonePeerMsg(state *peerState, sp *serverPeer) {
	var list map[*serverPeer]struct{}
	switch {
	case sp.persistent:
		list = state.persistentPeers
	case sp.conv.IsOutbound():
		list = state.outboundPeers
	default:
		list = state.inboundPeers
	}
	if _, ok := list[sp]; ok {
		delete(list, sp)
		s.addrDisconnected(sp.addrString())
		srvrLog.Debugf("Removed peer %s", sp)
	}

	if sp.connReq != nil {
		// Outbound slots are refilled by the connection manager:
		// persistent peers retry their own address with backoff, the
		// rest are replaced with a fresh address.
		if atomic.LoadInt32(&s.shutdown) == 0 {
			s.connManager.Disconnect(sp.connReq.ID())
		} else {
			s.connManager.Remove(sp.connReq.ID())
		}
	}
}

// handleBanPeerMsg deals with banning peers.  It is invoked from the
// peerHandler goroutine.
func (s *server) handleBanPeerMsg(state *peerState, sp *serverPeer) {
	if cfg.DisableBanning {
		return
	}

	until := time.Now().Add(cfg.BanDuration)
	err := s.peerDB.Ban(s.networkID(), sp.conv.PeerAddr(),
		sp.conv.PeerPort(), until.Unix())
	if err != nil {
		srvrLog.Errorf("Unable to ban peer %s: %v", sp, err)
		return
	}
	srvrLog.Infof("Banned peer %s until %v", sp, until)
	if s.wsNotifier != nil {
		s.wsNotifier.NotifyPeerBanned(sp, until)
	}
}

// handleBroadcastMsg queues the broadcast command on every connected peer
// except the excluded one.  Peers whose command queue is full miss the
// command.
func (s *server) handleBroadcastMsg(state *peerState, bmsg *broadcastMsg) {
	state.forAllPeers(func(sp *serverPeer) {
		if sp == bmsg.exclude {
			return
		}
		select {
		case sp.cmds <- bmsg.command:
		default:
			srvrLog.Tracef("Peer %s command queue full", sp)
		}
	})
}

// BroadcastCommand queues the passed command to run on the owning goroutine
// of every connected peer except the excluded one.  It is safe for
// concurrent access.
func (s *server) BroadcastCommand(command peerCommand, exclude *serverPeer) {
	bmsg := broadcastMsg{command: command, exclude: exclude}
	select {
	case s.broadcast <- bmsg:
	case <-s.quit:
	}
}

// AddPeer queues the peer for the peer handler to track and start.
func (s *server) AddPeer(sp *serverPeer) {
	select {
	case s.newPeers <- sp:
	case <-s.quit:
		sp.conn.Close()
	}
}

// BanPeer schedules the peer's address to be banned.
func (s *server) BanPeer(sp *serverPeer) {
	select {
	case s.banPeers <- sp:
	case <-s.quit:
	}
}

// AddBytesSent adds the passed number of bytes to the total bytes sent
// counter for the server.  It is safe for concurrent access.
func (s *server) AddBytesSent(bytesSent uint64) {
	atomic.AddUint64(&s.bytesSent, bytesSent)
}

// AddBytesReceived adds the passed number of bytes to the total bytes
// received counter for the server.  It is safe for concurrent access.
func (s *server) AddBytesReceived(bytesReceived uint64) {
	atomic.AddUint64(&s.bytesReceived, bytesReceived)
}

// NetTotals returns the sum of all bytes received and sent across the
// network for all peers.  It is safe for concurrent access.
func (s *server) NetTotals() (uint64, uint64) {
	return atomic.LoadUint64(&s.bytesReceived),
		atomic.LoadUint64(&s.bytesSent)
}

// addrConnected records addrStr as connected so the new-address rotation
// skips it.
func (s *server) addrConnected(addrStr string) {
	s.connMtx.Lock()
	s.connectedAddrs[addrStr] = struct{}{}
	delete(s.attemptedAddrs, addrStr)
	s.connMtx.Unlock()
}

// addrDisconnected removes addrStr from the connected set.
func (s *server) addrDisconnected(addrStr string) {
	s.connMtx.Lock()
	delete(s.connectedAddrs, addrStr)
	s.connMtx.Unlock()
}

// markAttempt records a dial attempt against addrStr.  It returns false when
// the address is already connected or was attempted too recently.
func (s *server) markAttempt(addrStr string) bool {
	s.connMtx.Lock()
	defer s.connMtx.Unlock()

	if _, ok := s.connectedAddrs[addrStr]; ok {
		return false
	}
	if t, ok := s.attemptedAddrs[addrStr]; ok &&
		time.Since(t) < retryCooldown {
		return false
	}
	s.attemptedAddrs[addrStr] = time.Now()

	// Keep the attempt set from growing without bound.
	if len(s.attemptedAddrs) > maxAttemptedAddrs {
		for a, t := range s.attemptedAddrs {
			if time.Since(t) >= retryCooldown {
				delete(s.attemptedAddrs, a)
			}
		}
	}
	return true
}

// newAddressFunc returns an address for the connection manager to open a new
// outbound connection to, preferring fresh neighbors from the peer database
// and falling back to addresses gathered from DNS seeds.
func (s *server) newAddressFunc() (net.Addr, error) {
	view := s.chainView()
	neighbors, err := s.peerDB.FreshestNeighbors(s.networkID(),
		freshNeighborLimit, view.BurnBlockHeight)
	if err != nil {
		return nil, err
	}

	rand.Shuffle(len(neighbors), func(i, j int) {
		neighbors[i], neighbors[j] = neighbors[j], neighbors[i]
	})
	for _, n := range neighbors {
		if n.Addr.IsUnspecified() {
			continue
		}
		addr := &net.TCPAddr{IP: n.Addr.ToIP(), Port: int(n.Port)}
		if !s.markAttempt(addr.String()) {
			continue
		}
		return addr, nil
	}

	for {
		s.seedMtx.Lock()
		if len(s.seedAddrs) == 0 {
			s.seedMtx.Unlock()
			break
		}
		addr := s.seedAddrs[0]
		s.seedAddrs = s.seedAddrs[1:]
		s.seedMtx.Unlock()

		peerAddr, port, err := addrToPeerAddress(addr)
		if err != nil {
			continue
		}
		banned, err := s.peerDB.IsBanned(s.networkID(), peerAddr, port)
		if err == nil && banned {
			continue
		}
		if !s.markAttempt(addr.String()) {
			continue
		}
		return addr, nil
	}

	return nil, errors.New("no valid connect address")
}

// inboundPeerConnected is invoked by the connection manager when a new
// inbound connection is established.  It configures a conversation around
// the connection and registers it with the server.
func (s *server) inboundPeerConnected(conn net.Conn) {
	addr, port, err := addrToPeerAddress(conn.RemoteAddr())
	if err != nil {
		srvrLog.Debugf("Cannot parse remote address %v: %v",
			conn.RemoteAddr(), err)
		conn.Close()
		return
	}

	// Refuse connections from banned peers before spending any further
	// resources on them.
	if !cfg.DisableBanning {
		banned, err := s.peerDB.IsBanned(s.networkID(), addr, port)
		if err == nil && banned {
			srvrLog.Debugf("Peer %s is banned, disconnecting",
				conn.RemoteAddr())
			conn.Close()
			return
		}
	}

	conv := peer.NewConversation(s.peerConfig(), addr, port, false)
	s.AddPeer(newServerPeer(s, conv, conn, nil, false))
}

// outboundPeerConnected is invoked by the connection manager when a new
// outbound connection is established.  It configures a conversation around
// the connection and registers it with the server.
func (s *server) outboundPeerConnected(c *connmgr.ConnReq, conn net.Conn) {
	addr, port, err := addrToPeerAddress(c.Addr)
	if err != nil {
		srvrLog.Debugf("Cannot parse outbound address %v: %v", c.Addr,
			err)
		s.connManager.Remove(c.ID())
		conn.Close()
		return
	}

	conv := peer.NewConversation(s.peerConfig(), addr, port, true)
	s.AddPeer(newServerPeer(s, conv, conn, c, c.Permanent))
}

// peerConfig returns the configuration shared by every conversation the
// server opens.
func (s *server) peerConfig() *peer.Config {
	return &peer.Config{
		ChainParams: s.chainParams,
	}
}

// peerHandler is used to handle peer operations such as adding and removing
// peers to and from the server, banning peers, and broadcasting messages to
// peers.  It must be run in a goroutine.
func (s *server) peerHandler() {
	state := &peerState{
		inboundPeers:    make(map[*serverPeer]struct{}),
		outboundPeers:   make(map[*serverPeer]struct{}),
		persistentPeers: make(map[*serverPeer]struct{}),
	}

	if !cfg.DisableDNSSeed {
		// Add peers discovered through DNS to the address pool.
		connmgr.SeedFromDNS(s.chainParams, emberdLookup,
			func(addrs []net.Addr) {
				s.seedMtx.Lock()
				s.seedAddrs = append(s.seedAddrs, addrs...)
				s.seedMtx.Unlock()
			})
	}
	go s.connManager.Start()

	viewTicker := time.NewTicker(viewRefreshInterval)
	defer viewTicker.Stop()
	gcTicker := time.NewTicker(mempoolGCInterval)
	defer gcTicker.Stop()
	syncTicker := time.NewTicker(mempoolSyncInterval)
	defer syncTicker.Stop()

out:
	for {
		select {
		// New peers connected to the server.
		case p := <-s.newPeers:
			s.handleAddPeerMsg(state, p)

		// Disconnected peers.
		case p := <-s.donePeers:
			s.handleDonePeerMsg(state, p)

		// Peer to ban.
		case p := <-s.banPeers:
			s.handleBanPeerMsg(state, p)

		// Command to run on all or a subset of connected peers.
		case bmsg := <-s.broadcast:
			s.handleBroadcastMsg(state, &bmsg)

		case <-viewTicker.C:
			s.refreshView()

		case <-gcTicker.C:
			s.mempoolGC()

		case <-syncTicker.C:
			// Nudge every peer.  The first capable one claims the
			// sync token and runs the round.
			s.handleBroadcastMsg(state,
				&broadcastMsg{command: beginMempoolSync})

		case <-s.quit:
			// Disconnect all peers on server shutdown.
			state.forAllPeers(func(sp *serverPeer) {
				srvrLog.Tracef("Shutdown peer %s", sp)
				sp.Disconnect()
			})
			break out
		}
	}

	s.connManager.Stop()

	// Drain channels before exiting so nothing is left waiting around to
	// send.
cleanup:
	for {
		select {
		case p := <-s.newPeers:
			p.Disconnect()
		case <-s.donePeers:
		case <-s.banPeers:
		case <-s.broadcast:
		default:
			break cleanup
		}
	}
	s.wg.Done()
	srvrLog.Tracef("Peer handler done")
}

// Start begins accepting connections from peers.
func (s *server) Start() {
	// Already started?
	if atomic.AddInt32(&s.started, 1) != 1 {
		return
	}

	srvrLog.Trace("Starting server")

	s.wg.Add(1)
	go s.peerHandler()

	if s.wsNotifier != nil {
		s.wsNotifier.Start()
	}
}

// Stop gracefully shuts down the server by stopping and disconnecting all
// peers and the main listener.
func (s *server) Stop() error {
	// Make sure this only happens once.
	if atomic.AddInt32(&s.shutdown, 1) != 1 {
		srvrLog.Infof("Server is already in the process of shutting down")
		return nil
	}

	srvrLog.Warnf("Server shutting down")

	if s.wsNotifier != nil {
		s.wsNotifier.Stop()
	}

	// Signal the remaining goroutines to quit.
	close(s.quit)
	return nil
}

// WaitForShutdown blocks until the main listener and peer handlers are
// stopped.
func (s *server) WaitForShutdown() {
	s.wg.Wait()
	recv, sent := s.NetTotals()
	srvrLog.Infof("Server stopped (%d bytes received, %d bytes sent)",
		recv, sent)
}

// addrStringToNetAddr takes an address in the form of 'host:port' and
// returns a net.Addr which maps to the original address with any host names
// resolved to IP addresses.
func addrStringToNetAddr(addr string) (net.Addr, error) {
	host, strPort, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	port, err := strconv.Atoi(strPort)
	if err != nil {
		return nil, err
	}

	// Skip if host is already an IP address.
	if ip := net.ParseIP(host); ip != nil {
		return &net.TCPAddr{IP: ip, Port: port}, nil
	}

	// Attempt to look up an IP address associated with the parsed host.
	ips, err := emberdLookup(host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no addresses found for %s", host)
	}

	return &net.TCPAddr{IP: ips[0], Port: port}, nil
}

// addrToPeerAddress splits a socket address into the wire form peer address
// and port.
func addrToPeerAddress(addr net.Addr) (wire.PeerAddress, uint16, error) {
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return wire.PeerAddress{}, 0, err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return wire.PeerAddress{}, 0,
			fmt.Errorf("cannot parse IP %q", host)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return wire.PeerAddress{}, 0, err
	}
	return wire.PeerAddressFromIP(ip), uint16(port), nil
}

// setupListeners returns the listeners for the configured listen addresses.
func setupListeners(listenAddrs []string) ([]net.Listener, error) {
	listeners := make([]net.Listener, 0, len(listenAddrs))
	for _, addr := range listenAddrs {
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			srvrLog.Warnf("Can't listen on %s: %v", addr, err)
			continue
		}
		listeners = append(listeners, listener)
	}
	if len(listeners) == 0 {
		return nil, errors.New("no valid listen address")
	}

	return listeners, nil
}

// loadNodeKey returns the node's signing key, minting and persisting a fresh
// one on first run.  The key file holds the private key hex encoded.
func loadNodeKey(path string) (*btcec.PrivateKey, error) {
	b, err := os.ReadFile(path)
	if err == nil {
		raw, derr := hex.DecodeString(strings.TrimSpace(string(b)))
		if derr != nil || len(raw) != btcec.PrivKeyBytesLen {
			return nil, fmt.Errorf("malformed node key file %s", path)
		}
		priv, _ := btcec.PrivKeyFromBytes(raw)
		return priv, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	enc := hex.EncodeToString(priv.Serialize()) + "\n"
	if err := os.WriteFile(path, []byte(enc), 0600); err != nil {
		return nil, err
	}
	return priv, nil
}

// newServer returns a new emberd server configured to listen on addr for the
// ember network type specified by chainParams.  Use start to begin accepting
// connections from peers.
func newServer(listenAddrs []string, db database.DB, peerDB *peerdb.DB,
	txPool *mempool.Store, chainParams *chaincfg.Params,
	dataDir string) (*server, error) {

	s := server{
		chainParams:    chainParams,
		db:             db,
		headerIndex:    chainstate.NewHeaderIndex(db),
		staging:        chainstate.NewStagingStore(db),
		peerDB:         peerDB,
		mempool:        txPool,
		newPeers:       make(chan *serverPeer, cfg.MaxPeers),
		donePeers:      make(chan *serverPeer, cfg.MaxPeers),
		banPeers:       make(chan *serverPeer, cfg.MaxPeers),
		broadcast:      make(chan broadcastMsg, cfg.MaxPeers),
		quit:           make(chan struct{}),
		connectedAddrs: make(map[string]struct{}),
		attemptedAddrs: make(map[string]time.Time),
	}

	// Seed the burnchain view before anything consults it.
	view, err := s.headerIndex.BuildView(chainParams)
	if err != nil {
		return nil, err
	}
	s.view = view

	// Load or mint the node's signing key and derive the identity
	// advertised in handshakes.
	nodeKey, err := loadNodeKey(filepath.Join(dataDir, nodeKeyName))
	if err != nil {
		return nil, err
	}

	var externalAddr wire.PeerAddress
	if cfg.ExternalIP != "" {
		externalAddr = wire.PeerAddressFromIP(net.ParseIP(cfg.ExternalIP))
	}
	var listenPort uint16
	if p, err := strconv.ParseUint(chainParams.DefaultPort, 10, 16); err == nil {
		listenPort = uint16(p)
	}
	if len(listenAddrs) > 0 {
		if _, portStr, err := net.SplitHostPort(listenAddrs[0]); err == nil {
			if p, err := strconv.ParseUint(portStr, 10, 16); err == nil {
				listenPort = uint16(p)
			}
		}
	}

	s.localPeer = &peer.LocalPeer{
		NetworkID:       uint32(chainParams.Net),
		PrivateKey:      nodeKey,
		KeyExpireHeight: view.BurnBlockHeight + defaultKeyLifetime,
		Addr:            externalAddr,
		Port:            listenPort,
		Services:        defaultServices,
		DataURL:         cfg.DataURL,
	}

	var listeners []net.Listener
	if !cfg.DisableListen {
		listeners, err = setupListeners(listenAddrs)
		if err != nil {
			return nil, err
		}
	}

	// Only setup a function to return new addresses to connect to when
	// not running in connect-only mode.  The simulation network is always
	// in connect-only mode since it is only intended to connect to
	// specified peers.
	var newAddressFunc func() (net.Addr, error)
	if !cfg.SimNet && len(cfg.ConnectPeers) == 0 {
		newAddressFunc = s.newAddressFunc
	}

	// Create a connection manager.
	targetOutbound := defaultTargetOutbound
	if cfg.MaxPeers < targetOutbound {
		targetOutbound = cfg.MaxPeers
	}
	cmgr, err := connmgr.New(&connmgr.Config{
		Listeners:      listeners,
		OnAccept:       s.inboundPeerConnected,
		RetryDuration:  connectionRetryInterval,
		TargetOutbound: uint32(targetOutbound),
		Dial:           emberdDial,
		OnConnection:   s.outboundPeerConnected,
		GetNewAddress:  newAddressFunc,
	})
	if err != nil {
		return nil, err
	}
	s.connManager = cmgr

	// Start up persistent peers.
	permanentPeers := cfg.ConnectPeers
	if len(permanentPeers) == 0 {
		permanentPeers = cfg.AddPeers
	}
	for _, addr := range permanentPeers {
		netAddr, err := addrStringToNetAddr(addr)
		if err != nil {
			return nil, err
		}

		go s.connManager.Connect(&connmgr.ConnReq{
			Addr:      netAddr,
			Permanent: true,
		})
	}

	if cfg.WSListen != "" {
		s.wsNotifier = newWsNotificationManager(&s, cfg.WSListen)
	}

	return &s, nil
}
