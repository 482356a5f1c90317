// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package chainstate tracks the thin slice of chain state the p2p layer needs.

It deliberately performs no consensus work.  The burnchain processor feeds
it header hashes and account nonces, and the p2p and mempool layers read
them back out:

  - HeaderIndex maps burn block heights to burn header hashes and builds the
    View a conversation stamps into and validates against message preambles.
  - NonceView tracks the next expected nonce per account on the canonical
    fork, which mempool candidate iteration consults.
  - StagingStore holds validated pushed blocks and microblocks until the
    (out of process) block processor picks them up.

All three sit on a database.DB, so they share whichever backend the node was
started with.
*/
package chainstate
