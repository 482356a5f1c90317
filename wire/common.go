// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/embersuite/emberd/chaincfg/chainhash"
)

// Ember's codec is big-endian throughout, unlike the bitcoin-derived wire
// formats.  The helpers below mirror the element reader/writer split the
// rest of the package is built on.

// readElement reads the next sequence of bytes from r using big endian
// depending on the concrete type of element pointed to.
func readElement(r io.Reader, element interface{}) error {
	// Attempt to read the element based on the concrete type via fast
	// type assertions first.
	switch e := element.(type) {
	case *uint8:
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = b[0]
		return nil

	case *uint16:
		var b [2]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = binary.BigEndian.Uint16(b[:])
		return nil

	case *uint32:
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = binary.BigEndian.Uint32(b[:])
		return nil

	case *uint64:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = binary.BigEndian.Uint64(b[:])
		return nil

	case *chainhash.Hash:
		if _, err := io.ReadFull(r, e[:]); err != nil {
			return err
		}
		return nil

	case *chainhash.Hash160:
		if _, err := io.ReadFull(r, e[:]); err != nil {
			return err
		}
		return nil

	case *PeerAddress:
		if _, err := io.ReadFull(r, e[:]); err != nil {
			return err
		}
		return nil

	case *[SignatureSize]byte:
		if _, err := io.ReadFull(r, e[:]); err != nil {
			return err
		}
		return nil

	case *[PubKeySize]byte:
		if _, err := io.ReadFull(r, e[:]); err != nil {
			return err
		}
		return nil
	}

	// Fall back to the slower binary.Read if a fast path was not available
	// above.
	return binary.Read(r, binary.BigEndian, element)
}

// readElements reads multiple items from r.  It is equivalent to multiple
// calls to readElement.
func readElements(r io.Reader, elements ...interface{}) error {
	for _, element := range elements {
		err := readElement(r, element)
		if err != nil {
			return err
		}
	}
	return nil
}

// writeElement writes the big endian representation of element to w.
func writeElement(w io.Writer, element interface{}) error {
	switch e := element.(type) {
	case uint8:
		_, err := w.Write([]byte{e})
		return err

	case uint16:
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], e)
		_, err := w.Write(b[:])
		return err

	case uint32:
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], e)
		_, err := w.Write(b[:])
		return err

	case uint64:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], e)
		_, err := w.Write(b[:])
		return err

	case *chainhash.Hash:
		_, err := w.Write(e[:])
		return err

	case chainhash.Hash:
		_, err := w.Write(e[:])
		return err

	case *chainhash.Hash160:
		_, err := w.Write(e[:])
		return err

	case chainhash.Hash160:
		_, err := w.Write(e[:])
		return err

	case PeerAddress:
		_, err := w.Write(e[:])
		return err

	case [SignatureSize]byte:
		_, err := w.Write(e[:])
		return err

	case [PubKeySize]byte:
		_, err := w.Write(e[:])
		return err
	}

	return binary.Write(w, binary.BigEndian, element)
}

// writeElements writes multiple items to w.  It is equivalent to multiple
// calls to writeElement.
func writeElements(w io.Writer, elements ...interface{}) error {
	for _, element := range elements {
		err := writeElement(w, element)
		if err != nil {
			return err
		}
	}
	return nil
}

// readVarBytes reads a variable length byte array.  A byte array is encoded
// as a big endian uint32 containing its length followed by the bytes
// themselves.  An error is returned if the length is greater than the passed
// maxAllowed parameter which helps protect against memory exhaustion attacks
// and forced panics through malformed messages.  The fieldName parameter is
// only used for the error message so it provides more context in the error.
func readVarBytes(r io.Reader, pver uint32, maxAllowed uint32,
	fieldName string) ([]byte, error) {

	var count uint32
	if err := readElement(r, &count); err != nil {
		return nil, err
	}

	// Prevent byte array larger than the max message size.  It would
	// be possible to cause memory exhaustion and panics without a sane
	// upper bound on this count.
	if count > maxAllowed {
		str := fmt.Sprintf("%s is larger than the max allowed size "+
			"[count %d, max %d]", fieldName, count, maxAllowed)
		return nil, messageError("readVarBytes", str)
	}

	b := make([]byte, count)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// writeVarBytes serializes a variable length byte array to w as a big endian
// uint32 length followed by the bytes themselves.
func writeVarBytes(w io.Writer, pver uint32, bytes []byte) error {
	if err := writeElement(w, uint32(len(bytes))); err != nil {
		return err
	}
	_, err := w.Write(bytes)
	return err
}

// readVarString reads a variable length string from r and returns it as a Go
// string.  Strings share the varbytes encoding.
func readVarString(r io.Reader, pver uint32, maxAllowed uint32,
	fieldName string) (string, error) {

	b, err := readVarBytes(r, pver, maxAllowed, fieldName)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// writeVarString serializes str to w using the varbytes encoding.
func writeVarString(w io.Writer, pver uint32, str string) error {
	return writeVarBytes(w, pver, []byte(str))
}

// readVarCount reads the uint32 element count that prefixes every variable
// length vector on the wire and validates it against maxAllowed.
func readVarCount(r io.Reader, pver uint32, maxAllowed uint32,
	fieldName string) (uint32, error) {

	var count uint32
	if err := readElement(r, &count); err != nil {
		return 0, err
	}
	if count > maxAllowed {
		str := fmt.Sprintf("%s count is too large [count %d, max %d]",
			fieldName, count, maxAllowed)
		return 0, messageError("readVarCount", str)
	}
	return count, nil
}
