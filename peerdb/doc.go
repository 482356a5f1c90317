// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package peerdb provides the durable neighbor database.

Every peer that completes a handshake is recorded with the public key it
presented, the burn height that key expires at, and when it was first and
last heard from.  The records outlive restarts so a node can resume crawling
the peer graph from its freshest known neighbors instead of its seeds, and
so address bans keep holding across a restart.
*/
package peerdb
