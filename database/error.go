// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package database

import "fmt"

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific database Error.
const (
	// ErrDbTypeRegistered indicates two different database drivers
	// attempt to register with the name database type.
	ErrDbTypeRegistered ErrorCode = iota

	// ErrUnknownDriver indicates there is no driver registered for
	// the specified database type.
	ErrUnknownDriver

	// ErrDbNotFound indicates a database does not exist for the
	// specified database path.
	ErrDbNotFound

	// ErrDbExists indicates the specified database already exists.
	ErrDbExists

	// ErrDbNotOpen indicates a database instance is accessed before
	// it is opened or after it is closed.
	ErrDbNotOpen

	// ErrKeyNotFound indicates the requested key does not exist in
	// the database.
	ErrKeyNotFound

	// ErrDriverSpecific indicates the Err field is a driver-specific
	// error.  This provides a mechanism for drivers to plug-in their
	// own custom errors for any situations which aren't already
	// covered by the error codes provided by this package.
	ErrDriverSpecific

	// numErrorCodes is the maximum error code number used in tests.
	numErrorCodes
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrDbTypeRegistered: "ErrDbTypeRegistered",
	ErrUnknownDriver:    "ErrUnknownDriver",
	ErrDbNotFound:       "ErrDbNotFound",
	ErrDbExists:         "ErrDbExists",
	ErrDbNotOpen:        "ErrDbNotOpen",
	ErrKeyNotFound:      "ErrKeyNotFound",
	ErrDriverSpecific:   "ErrDriverSpecific",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error provides a single type for errors that can happen during database
// operation.  It is used to indicate several types of failures including
// errors with caller requests such as opening a database which does not
// exist and driver failures such as a corrupted backing store.
//
// The caller can use type assertions to determine if an error is an Error
// and access the ErrorCode field to ascertain the specific reason for the
// failure.
//
// The ErrDriverSpecific error code will also have the Err field set with
// the underlying error.
type Error struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
	Err         error     // Underlying error
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	if e.Err != nil {
		return e.Description + ": " + e.Err.Error()
	}
	return e.Description
}

// makeError creates an Error given a set of arguments.  The error code must
// be one of the error codes provided by this package, otherwise it will be
// replaced with ErrDriverSpecific.
func makeError(c ErrorCode, desc string, err error) Error {
	if _, ok := errorCodeStrings[c]; !ok {
		c = ErrDriverSpecific
	}
	return Error{ErrorCode: c, Description: desc, Err: err}
}
