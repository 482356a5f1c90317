// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"

	"github.com/btcsuite/btcd/btcutil/base58"

	"github.com/embersuite/emberd/chaincfg/chainhash"
)

// AddressSize is the number of bytes an account address occupies on the
// wire: a version byte followed by the hash160 of the account public key.
const AddressSize = 1 + chainhash.Hash160Size

// Address identifies a principal that can originate or sponsor transactions.
type Address struct {
	Version byte
	Hash    chainhash.Hash160
}

// NewAddressPubKey derives the address for serializedPubKey under the given
// address version byte.
func NewAddressPubKey(version byte, serializedPubKey []byte) Address {
	return Address{
		Version: version,
		Hash:    chainhash.Hash160H(serializedPubKey),
	}
}

// String returns the base58check form of the address.
func (a Address) String() string {
	return base58.CheckEncode(a.Hash[:], a.Version)
}

// DecodeAddress parses the base58check form of an address.
func DecodeAddress(encoded string) (Address, error) {
	decoded, version, err := base58.CheckDecode(encoded)
	if err != nil {
		return Address{}, messageError("DecodeAddress", err.Error())
	}
	if len(decoded) != chainhash.Hash160Size {
		return Address{}, messageError("DecodeAddress",
			"decoded address is not a hash160")
	}

	addr := Address{Version: version}
	copy(addr.Hash[:], decoded)
	return addr, nil
}

// readAddress reads an encoded Address from r.
func readAddress(r io.Reader, pver uint32, a *Address) error {
	return readElements(r, &a.Version, &a.Hash)
}

// writeAddress serializes an Address to w.
func writeAddress(w io.Writer, pver uint32, a *Address) error {
	return writeElements(w, a.Version, a.Hash)
}
