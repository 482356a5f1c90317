// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/embersuite/emberd/mempool"
	"github.com/embersuite/emberd/wire"

	"github.com/gorilla/websocket"
)

const (
	// wsSendBufferSize is the number of notifications a client's send
	// channel can queue before the client is considered stalled and
	// disconnected.
	wsSendBufferSize = 64

	// wsWriteTimeout is the deadline applied to each websocket write.
	wsWriteTimeout = time.Second * 10
)

// wsUpgrader upgrades notification requests to websocket connections.  The
// endpoint carries outbound events only, so any origin is accepted.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsTxAcceptedNtfn is the notification delivered when a transaction enters
// the mempool.
type wsTxAcceptedNtfn struct {
	Type     string `json:"type"`
	TxID     string `json:"txid"`
	Fee      uint64 `json:"fee"`
	Replaced bool   `json:"replaced,omitempty"`
}

// wsPeerConnectedNtfn is the notification delivered when a peer completes
// its handshake.
type wsPeerConnectedNtfn struct {
	Type      string `json:"type"`
	Addr      string `json:"addr"`
	Direction string `json:"direction"`
}

// wsPeerBannedNtfn is the notification delivered when a peer is banned.
type wsPeerBannedNtfn struct {
	Type  string `json:"type"`
	Addr  string `json:"addr"`
	Until int64  `json:"until"`
}

// wsClient provides an abstraction for handling a websocket client.  Queued
// notifications are written by the client's output handler while the input
// handler only watches for the connection closing.
type wsClient struct {
	conn     *websocket.Conn
	send     chan []byte
	quit     chan struct{}
	quitOnce sync.Once
}

// disconnect closes the client connection and signals its handlers to exit.
// It is idempotent and safe to call from any goroutine.
func (c *wsClient) disconnect() {
	c.quitOnce.Do(func() {
		close(c.quit)
		c.conn.Close()
	})
}

// wsNotificationManager is a connection and notification manager used for
// websockets.  When an event happens elsewhere in the code such as
// transactions being added to the memory pool or peers connecting, the
// notification manager is provided with the relevant details and delivers
// them to all connected websocket clients.  It is also used to keep track of
// all connected websocket clients.
type wsNotificationManager struct {
	started  int32
	shutdown int32

	server     *server
	httpServer *http.Server

	// mtx guards the client map.  The quit channel doubles as each
	// client's unique id since it is quite a bit cheaper to hash than the
	// entire struct.
	mtx     sync.Mutex
	clients map[chan struct{}]*wsClient

	wg   sync.WaitGroup
	quit chan struct{}
}

// newWsNotificationManager returns a notification manager serving the
// websocket endpoint on listenAddr.
func newWsNotificationManager(s *server, listenAddr string) *wsNotificationManager {
	m := &wsNotificationManager{
		server:  s,
		clients: make(map[chan struct{}]*wsClient),
		quit:    make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", m.wsHandler)
	m.httpServer = &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: time.Second * 5,
	}
	return m
}

// Start begins serving the websocket endpoint.
func (m *wsNotificationManager) Start() {
	// Already started?
	if atomic.AddInt32(&m.started, 1) != 1 {
		return
	}

	wsntLog.Infof("Websocket notification server listening on %s",
		m.httpServer.Addr)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		err := m.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			wsntLog.Errorf("Websocket server error: %v", err)
		}
	}()
}

// Stop shuts down the endpoint and disconnects all clients.  It blocks until
// every client handler has exited.
func (m *wsNotificationManager) Stop() {
	// Make sure this only happens once.
	if atomic.AddInt32(&m.shutdown, 1) != 1 {
		return
	}

	wsntLog.Infof("Websocket notification server shutting down")
	close(m.quit)
	m.httpServer.Close()

	m.mtx.Lock()
	for _, c := range m.clients {
		c.disconnect()
	}
	m.mtx.Unlock()

	m.wg.Wait()
}

// wsHandler upgrades an incoming request and starts the client's handlers.
func (m *wsNotificationManager) wsHandler(w http.ResponseWriter, r *http.Request) {
	if atomic.LoadInt32(&m.shutdown) != 0 {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		wsntLog.Debugf("Unable to upgrade websocket request from %s: %v",
			r.RemoteAddr, err)
		return
	}

	c := &wsClient{
		conn: conn,
		send: make(chan []byte, wsSendBufferSize),
		quit: make(chan struct{}),
	}
	m.addClient(c)
	wsntLog.Infof("New websocket client %s", conn.RemoteAddr())

	m.wg.Add(2)
	go m.inHandler(c)
	go m.outHandler(c)
}

// inHandler discards everything the client sends and tears the client down
// when the connection drops.
func (m *wsNotificationManager) inHandler(c *wsClient) {
	defer func() {
		c.disconnect()
		m.removeClient(c)
		m.wg.Done()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
	wsntLog.Debugf("Websocket client %s disconnected", c.conn.RemoteAddr())
}

// outHandler writes queued notifications to the client.
func (m *wsNotificationManager) outHandler(c *wsClient) {
	defer func() {
		c.disconnect()
		m.wg.Done()
	}()

	for {
		select {
		case b := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			err := c.conn.WriteMessage(websocket.TextMessage, b)
			if err != nil {
				return
			}

		case <-c.quit:
			return

		case <-m.quit:
			return
		}
	}
}

// addClient registers the client with the manager.
func (m *wsNotificationManager) addClient(c *wsClient) {
	m.mtx.Lock()
	m.clients[c.quit] = c
	m.mtx.Unlock()
}

// removeClient unregisters the client from the manager.
func (m *wsNotificationManager) removeClient(c *wsClient) {
	m.mtx.Lock()
	delete(m.clients, c.quit)
	m.mtx.Unlock()
}

// notify marshals the notification and queues it to every connected client.
// Clients whose queue is full are disconnected rather than allowed to stall
// delivery for everyone else.
func (m *wsNotificationManager) notify(ntfn interface{}) {
	b, err := json.Marshal(ntfn)
	if err != nil {
		wsntLog.Errorf("Unable to marshal notification: %v", err)
		return
	}

	m.mtx.Lock()
	for _, c := range m.clients {
		select {
		case c.send <- b:
		default:
			wsntLog.Debugf("Websocket client %s is stalled, "+
				"disconnecting", c.conn.RemoteAddr())
			c.disconnect()
		}
	}
	m.mtx.Unlock()
}

// NotifyTxAccepted delivers a mempool acceptance event to all clients.  It
// is safe for concurrent access.
func (m *wsNotificationManager) NotifyTxAccepted(tx *wire.Transaction,
	outcome mempool.AddOutcome) {

	txid := tx.TxID()
	m.notify(&wsTxAcceptedNtfn{
		Type:     "tx-accepted",
		TxID:     txid.String(),
		Fee:      tx.Fee,
		Replaced: outcome == mempool.TxReplaced,
	})
}

// NotifyPeerConnected delivers a peer handshake event to all clients.  It is
// safe for concurrent access.
func (m *wsNotificationManager) NotifyPeerConnected(sp *serverPeer) {
	m.notify(&wsPeerConnectedNtfn{
		Type:      "peer-connected",
		Addr:      sp.addrString(),
		Direction: directionString(!sp.conv.IsOutbound()),
	})
}

// NotifyPeerBanned delivers a peer ban event to all clients.  It is safe for
// concurrent access.
func (m *wsNotificationManager) NotifyPeerBanned(sp *serverPeer, until time.Time) {
	m.notify(&wsPeerBannedNtfn{
		Type:  "peer-banned",
		Addr:  sp.addrString(),
		Until: until.Unix(),
	})
}
