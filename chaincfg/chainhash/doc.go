// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chainhash provides abstracted hash functionality.
//
// This package provides a generic hash type and associated functions that
// allows the specific hash algorithm used by the Ember chain to be abstracted.
// All content identifiers on the chain (transaction ids, burn header hashes,
// consensus hashes) are 32-byte SHA-512/256 digests.
package chainhash
