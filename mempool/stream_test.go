// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"bytes"
	"testing"

	"github.com/embersuite/emberd/bloom"
	"github.com/embersuite/emberd/chaincfg/chainhash"
	"github.com/embersuite/emberd/wire"
)

// drainStream pulls the whole stream through StreamTxs in fixed-size chunks
// and returns the raw bytes.
func drainStream(t *testing.T, store *Store, stream *TxStream, chunk uint64) []byte {
	t.Helper()

	var out bytes.Buffer
	for {
		n, err := store.StreamTxs(&out, stream, chunk)
		if err != nil {
			t.Fatalf("StreamTxs: %v", err)
		}
		if n == 0 {
			return out.Bytes()
		}
	}
}

// txidSet decodes a stream and collects the txids it carries.
func txidSet(t *testing.T, raw []byte) (map[chainhash.Hash]struct{}, *chainhash.Hash) {
	t.Helper()

	txs, cursor, err := DecodeTxStream(raw)
	if err != nil {
		t.Fatalf("DecodeTxStream: %v", err)
	}
	got := make(map[chainhash.Hash]struct{}, len(txs))
	for _, tx := range txs {
		got[tx.TxID()] = struct{}{}
	}
	return got, cursor
}

func TestStreamTxsAll(t *testing.T) {
	store := newTestStore(t)

	const numTxs = 10
	txids := fillHeight(t, store, 10, numTxs)
	_, orderedKeys := saltedOrder(t, store, txids)

	empty := wire.NewTxTagsSyncData([32]byte{}, nil)
	stream := NewTxStream(empty, bloom.MaxBloomCounterTxs, 10, nil)
	raw := drainStream(t, store, stream, 4096)

	got, cursor := txidSet(t, raw)
	if len(got) != numTxs {
		t.Fatalf("stream carried %d txs, want %d", len(got), numTxs)
	}
	for i := range txids {
		if _, ok := got[txids[i]]; !ok {
			t.Fatalf("stream missed tx %v", &txids[i])
		}
	}

	// The stream corks with the cursor of the last row it scanned.
	if cursor == nil || !cursor.IsEqual(&orderedKeys[numTxs-1]) {
		t.Fatalf("stream cursor: got %v, want %v", cursor,
			&orderedKeys[numTxs-1])
	}
	if lastPage := stream.LastPage(); !lastPage.IsEqual(cursor) {
		t.Fatalf("LastPage: got %v, want %v", &lastPage, cursor)
	}

	// Tiny write chunks produce the identical stream.
	trickle := NewTxStream(empty, bloom.MaxBloomCounterTxs, 10, nil)
	if trickled := drainStream(t, store, trickle, 7); !bytes.Equal(trickled, raw) {
		t.Fatal("trickled stream differs from the chunked stream")
	}
}

func TestStreamTxsPaginated(t *testing.T) {
	store := newTestStore(t)

	const numTxs = 10
	txids := fillHeight(t, store, 10, numTxs)

	// Poll one transaction per session, resuming each session from the
	// cursor the previous one corked with.
	empty := wire.NewTxTagsSyncData([32]byte{}, nil)
	got := make(map[chainhash.Hash]struct{})
	var page *chainhash.Hash
	for sessions := 0; ; sessions++ {
		if sessions > numTxs {
			t.Fatal("pagination failed to terminate")
		}
		stream := NewTxStream(empty, 1, 10, page)
		raw := drainStream(t, store, stream, 4096)
		ids, cursor := txidSet(t, raw)
		if len(ids) == 0 && cursor == nil {
			break
		}
		if len(ids) != 1 {
			t.Fatalf("session %d carried %d txs, want 1", sessions,
				len(ids))
		}
		for txid := range ids {
			if _, ok := got[txid]; ok {
				t.Fatalf("session %d repeated tx %v", sessions, &txid)
			}
			got[txid] = struct{}{}
		}
		if cursor == nil {
			t.Fatalf("session %d corked without a cursor", sessions)
		}
		page = cursor
	}
	if len(got) != numTxs {
		t.Fatalf("pagination yielded %d txs, want %d", len(got), numTxs)
	}
	for i := range txids {
		if _, ok := got[txids[i]]; !ok {
			t.Fatalf("pagination missed tx %v", &txids[i])
		}
	}
}

func TestStreamTxsPeerHasAll(t *testing.T) {
	store := newTestStore(t)

	const numTxs = 10
	txids := fillHeight(t, store, 10, numTxs)
	_, orderedKeys := saltedOrder(t, store, txids)

	var seed [32]byte
	tags := make([]wire.TxTag, 0, numTxs)
	for i := range txids {
		tags = append(tags, wire.TxTagFromSeed(seed, &txids[i]))
	}
	full := wire.NewTxTagsSyncData(seed, tags)

	// The peer already has everything: the first session carries only
	// the end-of-scan cursor.
	stream := NewTxStream(full, bloom.MaxBloomCounterTxs, 10, nil)
	raw := drainStream(t, store, stream, 4096)
	ids, cursor := txidSet(t, raw)
	if len(ids) != 0 {
		t.Fatalf("saturated stream carried %d txs, want 0", len(ids))
	}
	if cursor == nil || !cursor.IsEqual(&orderedKeys[numTxs-1]) {
		t.Fatalf("saturated stream cursor: got %v, want %v", cursor,
			&orderedKeys[numTxs-1])
	}

	// Resuming past the last row ends the exchange with an empty stream.
	next := NewTxStream(full, bloom.MaxBloomCounterTxs, 10, cursor)
	if raw := drainStream(t, store, next, 4096); len(raw) != 0 {
		t.Fatalf("exhausted stream carried %d bytes, want 0", len(raw))
	}
}

func TestDecodeTxStream(t *testing.T) {
	tx1 := makeTx(wire.TxAuth{Address: testAddress(1), Nonce: 0}, 100, "first")
	tx2 := makeTx(wire.TxAuth{Address: testAddress(2), Nonce: 0}, 200, "second")
	tx1Bytes, err := tx1.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	tx2Bytes, err := tx2.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	both := append(append([]byte(nil), tx1Bytes...), tx2Bytes...)
	cursor := chainhash.HashH([]byte("resume here"))

	tests := []struct {
		name       string
		in         []byte
		wantTxs    int
		wantCursor *chainhash.Hash
		wantErr    error
	}{
		{name: "empty", in: nil, wantTxs: 0},
		{name: "txs only", in: both, wantTxs: 2},
		{
			name:       "txs and cursor",
			in:         append(append([]byte(nil), both...), cursor[:]...),
			wantTxs:    2,
			wantCursor: &cursor,
		},
		{name: "bare cursor", in: cursor[:], wantTxs: 0, wantCursor: &cursor},
		{
			name:    "short trailing fragment",
			in:      append(append([]byte(nil), tx1Bytes...), tx2Bytes[:10]...),
			wantTxs: 1,
		},
		{
			name:    "long trailing fragment",
			in:      append(append([]byte(nil), tx1Bytes...), tx2Bytes[:40]...),
			wantErr: ErrExpectedEndOfStream,
		},
		{
			name:    "garbage too long for a cursor",
			in:      bytes.Repeat([]byte{0x5a}, 40),
			wantErr: ErrExpectedEndOfStream,
		},
	}
	for _, test := range tests {
		txs, gotCursor, err := DecodeTxStream(test.in)
		if err != test.wantErr {
			t.Errorf("%s: got error %v, want %v", test.name, err,
				test.wantErr)
			continue
		}
		if test.wantErr != nil {
			continue
		}
		if len(txs) != test.wantTxs {
			t.Errorf("%s: got %d txs, want %d", test.name, len(txs),
				test.wantTxs)
		}
		switch {
		case test.wantCursor == nil && gotCursor != nil:
			t.Errorf("%s: got cursor %v, want none", test.name, gotCursor)
		case test.wantCursor != nil && (gotCursor == nil ||
			!gotCursor.IsEqual(test.wantCursor)):
			t.Errorf("%s: got cursor %v, want %v", test.name,
				gotCursor, test.wantCursor)
		}
	}

	// The tricky case: the stream ends with 32 bytes that are the prefix
	// of a real transaction.  They are indistinguishable from a cursor
	// and must decode as one.
	evil := append(append([]byte(nil), tx1Bytes...), tx2Bytes[:chainhash.HashSize]...)
	txs, gotCursor, err := DecodeTxStream(evil)
	if err != nil {
		t.Fatalf("DecodeTxStream with evil trailer: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("evil trailer: got %d txs, want 1", len(txs))
	}
	if gotID, wantID := txs[0].TxID(), tx1.TxID(); !gotID.IsEqual(&wantID) {
		t.Fatalf("evil trailer: decoded tx %v, want %v", &gotID, &wantID)
	}
	if gotCursor == nil || !bytes.Equal(gotCursor[:], tx2Bytes[:chainhash.HashSize]) {
		t.Fatalf("evil trailer: got cursor %v, want the tx prefix", gotCursor)
	}
}
