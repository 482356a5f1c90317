// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package database provides a driver-based key/value database for storing
node state outside of the mempool.

The header index, nonce view, and staged block store all sit on top of
this interface, so the backing engine can be swapped without touching
any of that code.  Backends register themselves as drivers via the
RegisterDriver function, typically from an init function, and callers
select one by name through Create and Open.

Two drivers ship with emberd: ldb, backed by goleveldb, which is the
default, and pdb, backed by pebble.

Errors returned by the database carry an ErrorCode so callers can
programmatically detect conditions such as opening a database that does
not exist versus an underlying driver failure.
*/
package database
