// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"bytes"
	"errors"
	"io"

	"github.com/embersuite/emberd/chaincfg/chainhash"
	"github.com/embersuite/emberd/wire"
)

// ErrExpectedEndOfStream is returned by DecodeTxStream when bytes remain
// after the decoded transactions that are neither a page cursor nor a
// whole transaction.
var ErrExpectedEndOfStream = errors.New("expected end of transaction stream")

// TxStream pages the pooled transactions missing from a peer's sync data
// out as a byte stream, a caller-sized chunk at a time.  The stream is
// whole transactions serialized back to back; when it ends with pool rows
// still unscanned, the 32-byte ordering key to resume from is appended as
// a trailing cursor.
type TxStream struct {
	query  *wire.MemPoolSyncData
	height uint64

	maxTxs uint64
	numTxs uint64

	// lastPage is the ordering key of the last pool row scanned so far.
	lastPage       chainhash.Hash
	numRowsVisited uint64

	buf    []byte
	bufPos int
	corked bool
}

// NewTxStream prepares a stream of the pooled transactions a peer is
// missing given its sync data.  The stream yields at most maxTxs
// transactions, skips those accepted at or below height less the recency
// depth, and resumes from pageID when it is non-nil.
func NewTxStream(query *wire.MemPoolSyncData, maxTxs, height uint64,
	pageID *chainhash.Hash) *TxStream {

	stream := &TxStream{
		query:  query,
		height: height,
		maxTxs: maxTxs,
	}
	if pageID != nil {
		stream.lastPage = *pageID
	}
	return stream
}

// LastPage returns the ordering key of the last pool row the stream has
// scanned.
func (ts *TxStream) LastPage() chainhash.Hash {
	return ts.lastPage
}

// StreamTxs writes up to count bytes of the stream into w and returns how
// many bytes were written.  A return of zero with no error means the
// stream is finished.  Transactions admitted to the pool between calls may
// or may not be included.
//
// This function is safe for concurrent access.
func (s *Store) StreamTxs(w io.Writer, stream *TxStream, count uint64) (uint64, error) {
	var numWritten uint64
	for numWritten < count {
		// Drain buffered bytes before fetching anything further.
		if stream.bufPos < len(stream.buf) {
			end := stream.bufPos + int(count-numWritten)
			if end > len(stream.buf) {
				end = len(stream.buf)
			}
			n, err := w.Write(stream.buf[stream.bufPos:end])
			stream.bufPos += n
			numWritten += uint64(n)
			if err != nil {
				return numWritten, err
			}
			continue
		}

		if stream.corked {
			break
		}

		// Refill with the next missing transaction.  The row scan
		// budget is the stream's remaining transaction budget, so a
		// spent stream fetches nothing and corks below.
		var remaining uint64
		if stream.maxTxs > stream.numTxs {
			remaining = stream.maxTxs - stream.numTxs
		}
		txs, nextPage, visited, err := s.FindNextMissingTxs(
			stream.query, stream.height, &stream.lastPage,
			remaining, 1)
		if err != nil {
			return numWritten, err
		}
		stream.numRowsVisited += visited

		switch {
		case len(txs) > 0:
			txBytes, err := txs[0].Bytes()
			if err != nil {
				return numWritten, err
			}
			stream.buf = txBytes
			stream.bufPos = 0
			stream.numTxs++
			if nextPage != nil {
				stream.lastPage = *nextPage
			}

		case nextPage != nil:
			// Rows were scanned but the peer has them all; keep
			// scanning from the last one.
			stream.lastPage = *nextPage

		case stream.numRowsVisited > 0:
			// Out of rows after scanning some.  Cork the stream
			// with the cursor so the peer can page onward.
			stream.buf = append([]byte(nil), stream.lastPage[:]...)
			stream.bufPos = 0
			stream.corked = true

		default:
			// Nothing was ever scanned; the stream is empty.
			stream.corked = true
		}
	}
	return numWritten, nil
}

// DecodeTxStream parses a transaction stream produced by StreamTxs back
// into transactions and the optional trailing page cursor.  A trailing
// fragment shorter than a cursor is discarded the way a truncated network
// read would be; trailing bytes that are too long to be a cursor yet do
// not decode as a transaction fail with ErrExpectedEndOfStream.
func DecodeTxStream(b []byte) ([]*wire.Transaction, *chainhash.Hash, error) {
	var txs []*wire.Transaction
	offset := 0
	for offset < len(b) {
		tx := &wire.Transaction{}
		r := bytes.NewReader(b[offset:])
		if err := tx.Deserialize(r); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, nil, err
		}
		offset = len(b) - r.Len()
		txs = append(txs, tx)
	}

	switch leftover := len(b) - offset; {
	case leftover == 0:
		return txs, nil, nil

	case leftover == chainhash.HashSize:
		var cursor chainhash.Hash
		copy(cursor[:], b[offset:])
		return txs, &cursor, nil

	case leftover < chainhash.HashSize:
		return txs, nil, nil

	default:
		return nil, nil, ErrExpectedEndOfStream
	}
}
