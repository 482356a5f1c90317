// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"io"

	"github.com/embersuite/emberd/chaincfg/chainhash"
)

// MaxTxPayloadBytes is the maximum size of a transaction's inner payload.
const MaxTxPayloadBytes = 1024 * 1024

// MaxTxSerializeSize is the maximum number of bytes a serialized transaction
// can occupy: the payload cap plus every fixed field.
const MaxTxSerializeSize = MaxTxPayloadBytes + minTxSerializeSize

// minTxSerializeSize is the serialized size of a transaction with an empty
// payload and no sponsor.  It is strictly greater than the 32-byte stream
// page cursor, which is what lets a decoder tell a trailing cursor from a
// whole transaction by length alone.
const minTxSerializeSize = 1 + 4 + 8 + AddressSize + 8 + 1 + 4 + SignatureSize

// TxAuth names an account that authorizes a transaction: the principal and
// the nonce it is spending.
type TxAuth struct {
	Address Address
	Nonce   uint64
}

// Transaction is a chain transaction as it travels on the wire and rests in
// the mempool.  The inner payload is opaque at this layer; admission keys
// off the fee, the origin, and the optional sponsor.
type Transaction struct {
	Version uint8
	ChainID uint32

	// Fee is the absolute fee the transaction pays, in the chain's base
	// unit.  Replace-by-fee compares this value directly, never a
	// size-normalized rate.
	Fee uint64

	// Origin is the account the transaction acts for.  Sponsor, when
	// present, is the distinct account paying the fee.
	Origin     TxAuth
	hasSponsor bool
	Sponsor    TxAuth

	Payload   []byte
	Signature [SignatureSize]byte
}

// NewTransaction returns a transaction for the given origin with no sponsor.
func NewTransaction(version uint8, chainID uint32, fee uint64, origin TxAuth,
	payload []byte) *Transaction {

	return &Transaction{
		Version: version,
		ChainID: chainID,
		Fee:     fee,
		Origin:  origin,
		Payload: payload,
	}
}

// HasSponsor returns whether a distinct sponsor account pays the fee.
func (tx *Transaction) HasSponsor() bool {
	return tx.hasSponsor
}

// SetSponsor installs a sponsoring account.
func (tx *Transaction) SetSponsor(sponsor TxAuth) {
	tx.hasSponsor = true
	tx.Sponsor = sponsor
}

// Sponsored returns the effective sponsor auth: the sponsor when present,
// otherwise the origin.  Mempool nonce accounting always tracks both.
func (tx *Transaction) Sponsored() TxAuth {
	if tx.hasSponsor {
		return tx.Sponsor
	}
	return tx.Origin
}

// Deserialize decodes a transaction from r.
func (tx *Transaction) Deserialize(r io.Reader) error {
	err := readElements(r, &tx.Version, &tx.ChainID, &tx.Fee)
	if err != nil {
		return err
	}
	if err := readAddress(r, 0, &tx.Origin.Address); err != nil {
		return err
	}
	if err := readElement(r, &tx.Origin.Nonce); err != nil {
		return err
	}

	var sponsorPresent uint8
	if err := readElement(r, &sponsorPresent); err != nil {
		return err
	}
	switch sponsorPresent {
	case 0:
		tx.hasSponsor = false
		tx.Sponsor = TxAuth{}

	case 1:
		tx.hasSponsor = true
		if err := readAddress(r, 0, &tx.Sponsor.Address); err != nil {
			return err
		}
		if err := readElement(r, &tx.Sponsor.Nonce); err != nil {
			return err
		}

	default:
		return messageError("Transaction.Deserialize",
			"invalid sponsor presence byte")
	}

	tx.Payload, err = readVarBytes(r, 0, MaxTxPayloadBytes, "tx payload")
	if err != nil {
		return err
	}
	return readElement(r, &tx.Signature)
}

// Serialize encodes the transaction to w.
func (tx *Transaction) Serialize(w io.Writer) error {
	err := writeElements(w, tx.Version, tx.ChainID, tx.Fee)
	if err != nil {
		return err
	}
	if err := writeAddress(w, 0, &tx.Origin.Address); err != nil {
		return err
	}
	if err := writeElement(w, tx.Origin.Nonce); err != nil {
		return err
	}

	if tx.hasSponsor {
		if err := writeElement(w, uint8(1)); err != nil {
			return err
		}
		if err := writeAddress(w, 0, &tx.Sponsor.Address); err != nil {
			return err
		}
		if err := writeElement(w, tx.Sponsor.Nonce); err != nil {
			return err
		}
	} else {
		if err := writeElement(w, uint8(0)); err != nil {
			return err
		}
	}

	if err := writeVarBytes(w, 0, tx.Payload); err != nil {
		return err
	}
	return writeElement(w, tx.Signature)
}

// SerializeSize returns the number of bytes it would take to serialize the
// transaction.
func (tx *Transaction) SerializeSize() int {
	n := minTxSerializeSize + len(tx.Payload)
	if tx.hasSponsor {
		n += AddressSize + 8
	}
	return n
}

// Bytes returns the serialized transaction.
func (tx *Transaction) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(tx.SerializeSize())
	if err := tx.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// TxID returns the content-derived identifier of the transaction: the
// sha512/256 of its serialization.
func (tx *Transaction) TxID() chainhash.Hash {
	b, err := tx.Bytes()
	if err != nil {
		// Serializing to a buffer cannot fail for a well-formed
		// transaction; a failure here means the payload exceeds its
		// cap, in which case the id of the truncated form is useless
		// anyway.
		return chainhash.Hash{}
	}
	return chainhash.HashH(b)
}
