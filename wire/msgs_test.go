// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"github.com/embersuite/emberd/chaincfg/chainhash"
)

// TestMessageRoundTrip exercises every message type through its encoder,
// the type-id factory, and its decoder.
func TestMessageRoundTrip(t *testing.T) {
	handshake := &MsgHandshake{HandshakeData: HandshakeData{
		Addr:              testRelayer(1).Peer.Addr,
		Port:              20444,
		Services:          ServiceRelay | ServiceData,
		ExpireBlockHeight: 99999,
		DataURL:           "http://node.example.com:20443",
	}}
	handshake.NodePublicKey[0] = 0x02
	handshake.NodePublicKey[32] = 0x77

	accept := &MsgHandshakeAccept{
		HandshakeData:         handshake.HandshakeData,
		HeartbeatIntervalSecs: 3600,
	}

	neighbors := NewMsgNeighbors()
	if err := neighbors.AddNeighbor(testRelayer(3).Peer); err != nil {
		t.Fatalf("AddNeighbor: %v", err)
	}
	if err := neighbors.AddNeighbor(testRelayer(4).Peer); err != nil {
		t.Fatalf("AddNeighbor: %v", err)
	}

	blocksInv := NewMsgBlocksInv(12)
	blocksInv.SetBlock(0)
	blocksInv.SetBlock(11)
	blocksInv.SetMicroblocks(3)

	blocksPush := NewMsgBlocksPush()
	err := blocksPush.AddBlock(BlockEntry{
		ConsensusHash: chainhash.HashH([]byte("consensus")),
		Block:         []byte{0xde, 0xad, 0xbe, 0xef},
	})
	if err != nil {
		t.Fatalf("AddBlock: %v", err)
	}

	indexHash := chainhash.HashH([]byte("anchor block"))
	mblocksPush := NewMsgMicroblocksPush(&indexHash)
	if err := mblocksPush.AddMicroblock([]byte{0x01, 0x02}); err != nil {
		t.Fatalf("AddMicroblock: %v", err)
	}
	if err := mblocksPush.AddMicroblock([]byte{0x03}); err != nil {
		t.Fatalf("AddMicroblock: %v", err)
	}

	pageID := chainhash.HashH([]byte("page"))
	var tagSeed [32]byte
	tagSeed[1] = 0x10
	txid := chainhash.HashH([]byte("known tx"))
	getMempool := NewMsgGetMempoolTxs(NewTxTagsSyncData(tagSeed,
		[]TxTag{TxTagFromSeed(tagSeed, &txid)}), 1200, &pageID)

	tests := []Message{
		handshake,
		accept,
		&MsgHandshakeReject{},
		&MsgGetNeighbors{},
		neighbors,
		NewMsgGetBlocksInv(5000, 128),
		blocksInv,
		blocksPush,
		mblocksPush,
		NewMsgTxPush(newTestTx(1000, 4)),
		NewMsgNack(NackThrottled),
		NewMsgPing(0x11223344),
		NewMsgPong(0x11223344),
		NewMsgNatPunchRequest(77),
		&MsgNatPunchReply{
			Addr:  testRelayer(9).Peer.Addr,
			Port:  20444,
			Nonce: 77,
		},
		getMempool,
	}

	for _, msg := range tests {
		cmd := msg.Command()

		var buf bytes.Buffer
		if err := msg.EmberEncode(&buf, ProtocolVersion); err != nil {
			t.Errorf("%s: EmberEncode: %v", cmd, err)
			continue
		}
		if uint32(buf.Len()) > msg.MaxPayloadLength(ProtocolVersion) {
			t.Errorf("%s: encoded %d bytes exceeds own max payload %d",
				cmd, buf.Len(), msg.MaxPayloadLength(ProtocolVersion))
		}

		decoded, err := makeEmptyMessage(msg.Type())
		if err != nil {
			t.Errorf("%s: makeEmptyMessage: %v", cmd, err)
			continue
		}
		if decoded.Command() != cmd {
			t.Errorf("type %d: factory command %q, message command %q",
				msg.Type(), decoded.Command(), cmd)
		}
		if err := decoded.EmberDecode(&buf, ProtocolVersion); err != nil {
			t.Errorf("%s: EmberDecode: %v", cmd, err)
			continue
		}
		if buf.Len() != 0 {
			t.Errorf("%s: decode left %d bytes unconsumed", cmd,
				buf.Len())
		}
		if !reflect.DeepEqual(decoded, msg) {
			t.Errorf("%s: round trip mismatch: got %v, want %v", cmd,
				spew.Sdump(decoded), spew.Sdump(msg))
		}
	}
}

// TestMessageCaps ensures the count-bounded messages reject oversized
// vectors symmetrically on encode and decode.
func TestMessageCaps(t *testing.T) {
	// Too many neighbors to encode.
	neighbors := NewMsgNeighbors()
	neighbors.Neighbors = make([]NeighborAddress, MaxNeighborsPerMsg+1)
	var buf bytes.Buffer
	if err := neighbors.EmberEncode(&buf, ProtocolVersion); err == nil {
		t.Error("neighbors encode accepted an oversized vector")
	}
	if err := neighbors.AddNeighbor(NeighborAddress{}); err == nil {
		t.Error("AddNeighbor accepted a neighbor past the cap")
	}

	// A block inventory wider than the cap.
	buf.Reset()
	if err := writeElement(&buf, uint16(MaxBlocksInvPerMsg+1)); err != nil {
		t.Fatalf("writeElement: %v", err)
	}
	var inv MsgBlocksInv
	if err := inv.EmberDecode(&buf, ProtocolVersion); err == nil {
		t.Error("blocks inv decode accepted an oversized bit length")
	}

	// A get-blocks-inv asking for too many blocks.
	getInv := NewMsgGetBlocksInv(0, MaxBlocksInvPerMsg+1)
	buf.Reset()
	if err := getInv.EmberEncode(&buf, ProtocolVersion); err == nil {
		t.Error("get blocks inv encode accepted an oversized count")
	}
}
