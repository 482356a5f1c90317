// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pdb

import (
	"github.com/cockroachdb/pebble"
	"github.com/embersuite/emberd/database"
)

// iterator adapts a pebble iterator to the database.Iterator contract.
// Pebble iterators start unpositioned, so the first call to Next moves to
// the first entry.
type iterator struct {
	iter     *pebble.Iterator
	started  bool
	released bool
	err      error
}

func newIterator(iter *pebble.Iterator) database.Iterator {
	return &iterator{iter: iter}
}

// Next moves the iterator to the next key/value pair.  It returns false once
// the iterator is exhausted.
func (it *iterator) Next() bool {
	if it.released {
		return false
	}
	if !it.started {
		it.started = true
		return it.iter.First()
	}
	return it.iter.Next()
}

// Key returns the key of the current key/value pair, or nil if the iterator
// is exhausted.
func (it *iterator) Key() []byte {
	if it.released || !it.iter.Valid() {
		return nil
	}
	return it.iter.Key()
}

// Value returns the value of the current key/value pair, or nil if the
// iterator is exhausted.
func (it *iterator) Value() []byte {
	if it.released || !it.iter.Valid() {
		return nil
	}
	return it.iter.Value()
}

// Error returns any accumulated error.
func (it *iterator) Error() error {
	if it.released {
		return it.err
	}
	return it.iter.Error()
}

// Release releases the iterator.  Any error the iterator accumulated is
// still available from Error afterwards.
func (it *iterator) Release() {
	if it.released {
		return
	}
	it.released = true
	it.err = it.iter.Error()
	if cerr := it.iter.Close(); it.err == nil {
		it.err = cerr
	}
}

// errIterator is an exhausted iterator that only reports the error it was
// created with.  It is returned when an iterator is requested from a closed
// database.
type errIterator struct {
	err error
}

func (it *errIterator) Next() bool    { return false }
func (it *errIterator) Key() []byte   { return nil }
func (it *errIterator) Value() []byte { return nil }
func (it *errIterator) Error() error  { return it.err }
func (it *errIterator) Release()      {}
