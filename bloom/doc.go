// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package bloom provides the bloom filters used for mempool reconciliation.

A CountingFilter tracks a changing set, typically the most recently accepted
mempool transaction ids.  Items can be inserted and later removed, at the
cost of a uint32 counter per bit position.  At any point the counting filter
can be snapshotted down to an immutable Filter, a plain bit field that
serializes compactly enough to ship to a remote peer inside a mempool query.

Both forms hash items with a NodeHasher, a seeded siphash-2-4 construction.
Because each node derives its hash functions from its own random seed, a
transaction id that collides on one node's filter will not generally collide
on another's, so an adversary cannot craft transactions that are invisible
to the whole network at once.  The seed travels with the serialized filter
so the receiving peer can test candidate ids against it.
*/
package bloom
