// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pdb

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
	"github.com/embersuite/emberd/database"
)

const (
	// defaultCacheSize is the size of the pebble block cache in MiB.
	defaultCacheSize = 64

	// defaultMaxOpenFiles is the limit on the number of open table files.
	defaultMaxOpenFiles = 16
)

// makeDbErr creates a database.Error given a set of arguments.
func makeDbErr(c database.ErrorCode, desc string, err error) database.Error {
	return database.Error{ErrorCode: c, Description: desc, Err: err}
}

// convertErr converts the passed pebble error into a database error with an
// equivalent error code.
func convertErr(desc string, pdbErr error) database.Error {
	// Use the driver-specific error code by default.  The code below will
	// update this with the converted error if it's recognized.
	var code = database.ErrDriverSpecific

	switch pdbErr {
	case pebble.ErrNotFound:
		code = database.ErrKeyNotFound
	case pebble.ErrClosed:
		code = database.ErrDbNotOpen
	}

	return database.Error{ErrorCode: code, Description: desc, Err: pdbErr}
}

// db wraps a pebble instance and implements the database.DB interface.  All
// database access is performed through it.
type db struct {
	pdb    *pebble.DB
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

	value, closer, err := db.pdb.Get(key)
	if err != nil {
		if err == pebble.ErrNotFound {
			str := fmt.Sprintf("key %q does not exist", key)
			return nil, makeDbErr(database.ErrKeyNotFound, str,
				nil)
		}
		return nil, convertErr("failed to get key", err)
	}
	defer closer.Close()

	// The value is only valid until the closer is closed, so return a
	// copy the caller is free to retain.
	ret := make([]byte, len(value))
	copy(ret, value)
	return ret, nil
}

// Put sets the value for the given key, overwriting any previous value.
//
// This function is part of the database.DB interface implementation.
func (db *db) Put(key, value []byte) error {
	if err := db.checkClosed(); err != nil {
		return err
	}

	if err := db.pdb.Set(key, value, pebble.Sync); err != nil {
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

	if err := db.pdb.Delete(key, pebble.Sync); err != nil {
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

	_, closer, err := db.pdb.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	} else if err != nil {
		return false, convertErr("failed to check key", err)
	}
	closer.Close()
	return true, nil
}

// keyUpperBound returns the smallest key that is larger than all keys with
// the given prefix, or nil if there is no upper bound.
func keyUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// NewIterator returns an iterator over all keys that start with the given
// prefix, in ascending key order.
//
// This function is part of the database.DB interface implementation.
func (db *db) NewIterator(prefix []byte) database.Iterator {
	if err := db.checkClosed(); err != nil {
		return &errIterator{err: err}
	}

	iter, err := db.pdb.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return &errIterator{err: convertErr("failed to create "+
			"iterator", err)}
	}
	return newIterator(iter)
}

// Close cleanly shuts down the database and syncs all data.
//
// This function is part of the database.DB interface implementation.
func (db *db) Close() error {
	if db.closed.Swap(true) {
		return makeDbErr(database.ErrDbNotOpen, "database is not open",
			nil)
	}

	if err := db.pdb.Close(); err != nil {
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
	// ignored here since the call to pebble.Open will fail if the
	// directory couldn't be created.
	if !dbExists {
		_ = os.MkdirAll(dbPath, 0700)
	}

	opts := &pebble.Options{
		Cache:                    pebble.NewCache(defaultCacheSize * 1024 * 1024),
		ErrorIfExists:            create,
		MaxOpenFiles:             defaultMaxOpenFiles,
		MaxConcurrentCompactions: runtime.NumCPU,
		Levels: []pebble.LevelOptions{
			{TargetFileSize: 2 * 1024 * 1024, FilterPolicy: bloom.FilterPolicy(10)},
			{TargetFileSize: 4 * 1024 * 1024, FilterPolicy: bloom.FilterPolicy(10)},
			{TargetFileSize: 8 * 1024 * 1024, FilterPolicy: bloom.FilterPolicy(10)},
			{TargetFileSize: 16 * 1024 * 1024, FilterPolicy: bloom.FilterPolicy(10)},
			{TargetFileSize: 32 * 1024 * 1024, FilterPolicy: bloom.FilterPolicy(10)},
			{TargetFileSize: 64 * 1024 * 1024, FilterPolicy: bloom.FilterPolicy(10)},
			{TargetFileSize: 128 * 1024 * 1024, FilterPolicy: bloom.FilterPolicy(10)},
		},
	}
	opts.Experimental.ReadSamplingMultiplier = -1
	pdb, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, convertErr("failed to open database", err)
	}

	log.Tracef("Opened database at %s", dbPath)
	return &db{pdb: pdb}, nil
}
