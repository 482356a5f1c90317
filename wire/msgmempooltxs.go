// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"errors"
	"io"

	"github.com/embersuite/emberd/chaincfg/chainhash"
)

// ErrExpectedEndOfStream describes a transaction stream with trailing bytes
// that are neither a whole transaction nor a lone page cursor.
var ErrExpectedEndOfStream = errors.New("expected end of transaction stream")

// DecodeTxStream decodes a mempool transaction stream: back-to-back whole
// transactions, optionally terminated by a 32-byte page cursor.
//
// Only the final 32 bytes, after every whole transaction has been consumed,
// are treated as a cursor.  This is unambiguous because a serialized
// transaction is always longer than 32 bytes, so a 32-byte remainder cannot
// be the start of another transaction.  A remainder shorter than 32 bytes
// is tolerated as stream truncation and dropped.  Any longer remainder that
// does not parse as a transaction, including a would-be cursor wedged
// between transactions, fails with ErrExpectedEndOfStream.
func DecodeTxStream(r io.Reader) ([]*Transaction, *chainhash.Hash, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}

	var txs []*Transaction
	var nextPage *chainhash.Hash

	ptr := bytes.NewReader(buf)
	for {
		remaining := ptr.Len()
		if remaining == 0 {
			break
		}
		if remaining == chainhash.HashSize {
			var cursor chainhash.Hash
			if _, err := io.ReadFull(ptr, cursor[:]); err != nil {
				return nil, nil, err
			}
			nextPage = &cursor
			break
		}
		if remaining < chainhash.HashSize {
			break
		}

		tx := &Transaction{}
		if err := tx.Deserialize(ptr); err != nil {
			return nil, nil, ErrExpectedEndOfStream
		}
		txs = append(txs, tx)
	}

	return txs, nextPage, nil
}

// MsgMempoolTxs implements the Message interface and answers a mempool
// query with the transactions the querier was missing.  NextPage, when not
// nil, is the cursor the querier should present to resume the scan.
type MsgMempoolTxs struct {
	Txs      []*Transaction
	NextPage *chainhash.Hash
}

// EmberDecode decodes r using the Ember protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgMempoolTxs) EmberDecode(r io.Reader, pver uint32) error {
	txs, nextPage, err := DecodeTxStream(r)
	if err != nil {
		if errors.Is(err, ErrExpectedEndOfStream) {
			return messageError("MsgMempoolTxs.EmberDecode",
				err.Error())
		}
		return err
	}
	msg.Txs = txs
	msg.NextPage = nextPage
	return nil
}

// EmberEncode encodes the receiver to w using the Ember protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgMempoolTxs) EmberEncode(w io.Writer, pver uint32) error {
	for _, tx := range msg.Txs {
		if err := tx.Serialize(w); err != nil {
			return err
		}
	}
	if msg.NextPage != nil {
		if _, err := w.Write(msg.NextPage[:]); err != nil {
			return err
		}
	}
	return nil
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgMempoolTxs) Command() string {
	return CmdMempoolTxs
}

// Type returns the wire type byte for the message.  This is part of the
// Message interface implementation.
func (msg *MsgMempoolTxs) Type() MessageType {
	return TypeMempoolTxs
}

// MaxPayloadLength returns the maximum length the payload can be.  This is
// part of the Message interface implementation.
func (msg *MsgMempoolTxs) MaxPayloadLength(pver uint32) uint32 {
	return MaxMessagePayload
}

// NewMsgMempoolTxs returns a new mempool reply message.
func NewMsgMempoolTxs(txs []*Transaction,
	nextPage *chainhash.Hash) *MsgMempoolTxs {

	return &MsgMempoolTxs{
		Txs:      txs,
		NextPage: nextPage,
	}
}
