// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package database

// Iterator iterates over a range of key/value pairs in ascending key order.
//
// The returned key and value slices are only valid until the next call to
// Next or Release, so they must be copied if they are to be retained.
type Iterator interface {
	// Next moves the iterator to the next key/value pair.  It returns
	// false once the iterator is exhausted.  The iterator is positioned
	// before the first pair initially, so Next must be called to access
	// the first entry.
	Next() bool

	// Key returns the key of the current key/value pair, or nil if the
	// iterator is exhausted.
	Key() []byte

	// Value returns the value of the current key/value pair, or nil if
	// the iterator is exhausted.
	Value() []byte

	// Error returns any accumulated error.  Exhausting all of the
	// key/value pairs is not considered an error.
	Error() error

	// Release releases the iterator along with any resources associated
	// with it.  The iterator must not be used after this is called.
	Release()
}

// DB provides a generic interface for storing and retrieving arbitrary
// key/value pairs.  This interface is intended to be agnostic to the actual
// mechanism used for backend storage.  The RegisterDriver function can be
// used to add a new backend.
//
// All implementations must be safe for concurrent access.
type DB interface {
	// Type returns the database driver type the current database
	// instance was created with.
	Type() string

	// Get returns the value for the given key.  It returns an Error with
	// a code of ErrKeyNotFound if the key does not exist.
	Get(key []byte) ([]byte, error)

	// Put sets the value for the given key.  It overwrites any previous
	// value for that key.
	Put(key, value []byte) error

	// Delete removes the given key.  Deleting a key that does not exist
	// does not return an error.
	Delete(key []byte) error

	// Has returns whether or not the given key exists.
	Has(key []byte) (bool, error)

	// NewIterator returns an iterator over all keys that start with the
	// given prefix, in ascending key order.  A nil or empty prefix
	// iterates the entire database.
	NewIterator(prefix []byte) Iterator

	// Close cleanly shuts down the database and syncs all data.  All
	// operations on the database after it has been closed return an
	// Error with a code of ErrDbNotOpen.
	Close() error
}
