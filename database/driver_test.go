// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package database_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/embersuite/emberd/database"
	_ "github.com/embersuite/emberd/database/ldb"
	_ "github.com/embersuite/emberd/database/pdb"
)

// ignoreDbTypes are types which should be ignored when running tests that
// iterate all supported DB types.  This allows some tests to add bogus
// drivers for testing purposes while still allowing other tests to easily
// iterate all supported drivers.
var ignoreDbTypes = map[string]bool{"createopenfail": true}

// checkDbError ensures the passed error is a database.Error with an error
// code that matches the passed error code.
func checkDbError(t *testing.T, testName string, gotErr error, wantErrCode database.ErrorCode) bool {
	t.Helper()

	dbErr, ok := gotErr.(database.Error)
	if !ok {
		t.Errorf("%s: unexpected error type - got %T, want %T",
			testName, gotErr, database.Error{})
		return false
	}
	if dbErr.ErrorCode != wantErrCode {
		t.Errorf("%s: unexpected error code - got %s (%s), want %s",
			testName, dbErr.ErrorCode, dbErr.Description,
			wantErrCode)
		return false
	}

	return true
}

// TestAddDuplicateDriver ensures that adding a duplicate driver does not
// overwrite an existing one.
func TestAddDuplicateDriver(t *testing.T) {
	var dbType string
	for _, drv := range database.SupportedDrivers() {
		if !ignoreDbTypes[drv] {
			dbType = drv
			break
		}
	}
	if dbType == "" {
		t.Errorf("no backends to test")
		return
	}

	// bogusCreateDB is a function which acts as a bogus create and open
	// driver function and intentionally returns a failure that can be
	// detected if the interface allows a duplicate driver to overwrite an
	// existing one.
	bogusCreateDB := func(args ...interface{}) (database.DB, error) {
		return nil, fmt.Errorf("duplicate driver allowed for database "+
			"type [%v]", dbType)
	}

	// Create a driver that tries to replace an existing one.  Set its
	// create and open functions to a function that causes a test failure
	// if they are invoked.
	driver := database.Driver{
		DbType: dbType,
		Create: bogusCreateDB,
		Open:   bogusCreateDB,
	}
	testName := "duplicate driver registration"
	err := database.RegisterDriver(driver)
	if !checkDbError(t, testName, err, database.ErrDbTypeRegistered) {
		return
	}

	// Ensure creating a database of the type we tried to replace doesn't
	// fail (if it did it would mean the driver was erroneously replaced).
	dbPath := filepath.Join(t.TempDir(), "dupdrivertest")
	db, err := database.Create(dbType, dbPath)
	if err != nil {
		t.Errorf("failed to create database: %v", err)
		return
	}
	db.Close()
}

// TestCreateOpenFail ensures that errors which occur while opening or closing
// a database are handled properly.
func TestCreateOpenFail(t *testing.T) {
	// bogusCreateDB is a function which acts as a bogus create and open
	// driver function that intentionally returns a failure which can be
	// detected.
	dbType := "createopenfail"
	openError := fmt.Errorf("failed to create or open database for "+
		"database type [%v]", dbType)
	bogusCreateDB := func(args ...interface{}) (database.DB, error) {
		return nil, openError
	}

	// Create and add driver that intentionally fails when created or
	// opened to ensure errors on database open and create are handled
	// properly.
	driver := database.Driver{
		DbType: dbType,
		Create: bogusCreateDB,
		Open:   bogusCreateDB,
	}
	database.RegisterDriver(driver)

	// Ensure creating a database with the new type fails with the expected
	// error.
	_, err := database.Create(dbType, "noop")
	if err != openError {
		t.Errorf("expected error not received - got: %v, want %v", err,
			openError)
		return
	}

	// Ensure opening a database with the new type fails with the expected
	// error.
	_, err = database.Open(dbType, "noop")
	if err != openError {
		t.Errorf("expected error not received - got: %v, want %v", err,
			openError)
		return
	}
}

// TestCreateOpenUnsupported ensures that attempting to create or open an
// unsupported database type is handled properly.
func TestCreateOpenUnsupported(t *testing.T) {
	// Ensure creating a database with an unsupported type fails with the
	// expected error.
	testName := "create with unsupported database type"
	dbType := "unsupported"
	_, err := database.Create(dbType, "noop")
	if !checkDbError(t, testName, err, database.ErrUnknownDriver) {
		return
	}

	// Ensure opening a database with the an unsupported type fails with
	// the expected error.
	testName = "open with unsupported database type"
	_, err = database.Open(dbType, "noop")
	if !checkDbError(t, testName, err, database.ErrUnknownDriver) {
		return
	}
}
