// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package mempool provides the durable store of unconfirmed transactions.

Unlike a purely in-memory pool, the store survives restarts: transactions
rest in a sqlite database alongside the acceptance context they arrived
with (the consensus hash and header hash of the chain tip the node held at
admission time, and that tip's height).  Admission is account based.  Each
transaction spends one origin nonce and one sponsor nonce, and at most one
transaction per (address, nonce) pair is retained; a newcomer displaces the
incumbent only by paying a strictly higher absolute fee.

The store also maintains the derived state the network sync machinery
needs: a counting bloom filter over recently accepted transaction ids, a
salted secondary ordering of transaction ids used as a pagination axis that
remote peers cannot predict, and a resumable byte stream encoder that pages
transactions to a peer a few bytes at a time.

Candidate selection for block assembly walks the pool in fee order and
consults a chain-provided account view for expected nonces, caching what it
learns so repeated walks make forward progress.
*/
package mempool
