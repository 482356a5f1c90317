// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package connmgr implements a generic Ember network connection manager.

Connection Manager Overview

Connection Manager handles all the general connection concerns such as
maintaining a fixed number of outbound connections, sourcing peers from DNS
seeds and the neighbor database, scoring misbehaving connections, limiting
max connections based on configuration, routing connections via a proxy etc.
*/
package connmgr
