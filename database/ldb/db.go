// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ldb

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/embersuite/emberd/database"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// makeDbErr creates a database.Error given a set of arguments.
func makeDbErr(c database.ErrorCode, desc string, err error) database.Error {
	return database.Error{ErrorCode: c, Description: desc, Err: err}
}

// convertErr converts the passed leveldb error into a database error with an
// equivalent error code.
func convertErr(desc string, ldbErr error) database.Error {
	// Use the driver-specific error code by default.  The code below will
	// update this with the converted error if it's recognized.
	var code = database.ErrDriverSpecific

	switch ldbErr {
	case leveldb.ErrNotFound:
		code = database.ErrKeyNotFound
	case leveldb.ErrClosed:
		code = database.ErrDbNotOpen
	}

	return database.Error{ErrorCode: code, Description: desc, Err: ldbErr}
}

// db wraps a goleveldb instance and implements the database.DB interface.
// All database access is performed through it.
type db struct {
	ldb    *leveldb.DB
	closed atomic.Bool
}

// Enforce db implements the database.DB interface.
var _ database.DB = (*db)(nil)

// Type returns the database driver type the current database instance was
// created with.
//
// This function is part of the database.DB interface implementation.
func (db *db) Type() string {
	return dbType
}

// checkClosed returns an appropriate error when the database has already
// been closed.
func (db *db) checkClosed() error {
	if db.closed.Load() {
		return makeDbErr(database.ErrDbNotOpen, "database is not open",
			nil)
	}
	return nil
}

// Get returns the value for the given key.  It returns ErrKeyNotFound if the
// key does not exist.
//
// This function is part of the database.DB interface implementation.
func (db *db) Get(key []byte) ([]byte, error) {
	if err := db.checkClosed(); err != nil {
		return nil, err
	}

	value, err := db.ldb.Get(key, nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			str := fmt.Sprintf("key %q does not exist", key)
			return nil, makeDbErr(database.ErrKeyNotFound, str,
				nil)
		}
		return nil, convertErr("failed to get key", err)
	}

	return value, nil
}

// Put sets the value for the given key, overwriting any previous value.
//
// This function is part of the database.DB interface implementation.
func (db *db) Put(key, value []byte) error {
	if err := db.checkClosed(); err != nil {
		return err
	}

	if err := db.ldb.Put(key, value, nil); err != nil {
		return convertErr("failed to put key", err)
	}
	return nil
}

// Delete removes the given key.  Deleting a key that does not exist does not
// return an error.
//
// This function is part of the database.DB interface implementation.
func (db *db) Delete(key []byte) error {
	if err := db.checkClosed(); err != nil {
		return err
	}

	if err := db.ldb.Delete(key, nil); err != nil {
		return convertErr("failed to delete key", err)
	}
	return nil
}

// Has returns whether or not the given key exists.
//
// This function is part of the database.DB interface implementation.
func (db *db) Has(key []byte) (bool, error) {
	if err := db.checkClosed(); err != nil {
		return false, err
	}

	exists, err := db.ldb.Has(key, nil)
	if err != nil {
		return false, convertErr("failed to check key", err)
	}
	return exists, nil
}

// NewIterator returns an iterator over all keys that start with the given
// prefix, in ascending key order.  The goleveldb iterator already satisfies
// the database.Iterator contract.
//
// This function is part of the database.DB interface implementation.
func (db *db) NewIterator(prefix []byte) database.Iterator {
	if err := db.checkClosed(); err != nil {
		return iterator.NewEmptyIterator(err)
	}

	return db.ldb.NewIterator(util.BytesPrefix(prefix), nil)
}

// Close cleanly shuts down the database and syncs all data.
//
// This function is part of the database.DB interface implementation.
func (db *db) Close() error {
	if db.closed.Swap(true) {
		return makeDbErr(database.ErrDbNotOpen, "database is not open",
			nil)
	}

	if err := db.ldb.Close(); err != nil {
		return convertErr("failed to close database", err)
	}
	return nil
}

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// openDB opens the database at the provided path.  database.ErrDbNotFound
// is returned if the database doesn't exist and the create flag is not set.
func openDB(dbPath string, create bool) (database.DB, error) {
	// Error if the database doesn't exist and the create flag is not set.
	dbExists := fileExists(filepath.Join(dbPath, "CURRENT"))
	if !create && !dbExists {
		str := fmt.Sprintf("database %q does not exist", dbPath)
		return nil, makeDbErr(database.ErrDbNotFound, str, nil)
	}
	if create && dbExists {
		str := fmt.Sprintf("database %q already exists", dbPath)
		return nil, makeDbErr(database.ErrDbExists, str, nil)
	}

	// Ensure the full path to the database exists.  The error can be
	// ignored here since the call to leveldb.OpenFile will fail if the
	// directory couldn't be created.
	if !dbExists {
		_ = os.MkdirAll(dbPath, 0700)
	}

	opts := opt.Options{
		ErrorIfExist: create,
		Strict:       opt.DefaultStrict,
		Compression:  opt.NoCompression,
		Filter:       filter.NewBloomFilter(10),
	}
	ldb, err := leveldb.OpenFile(dbPath, &opts)
	if err != nil {
		return nil, convertErr("failed to open database", err)
	}

	log.Tracef("Opened database at %s", dbPath)
	return &db{ldb: ldb}, nil
}
