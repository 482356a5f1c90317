// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package wire implements the Ember p2p wire protocol.

# Ember Messages

Every message on the wire travels inside an envelope consisting of a fixed
165-byte preamble, a list of relay hints, a one-byte message type, and the
typed payload.  The preamble carries the sender's protocol version, network
id, sequence number, its view of the burnchain (tip height/hash plus the
stable height/hash), the payload length, and a recoverable secp256k1
signature over the whole envelope.

Use ReadEnvelope and WriteEnvelope to handle the wire format.  Individual
payload types implement the Message interface, so the envelope can hold any
protocol message while the codec remains exhaustive over the known type ids.

# Protocol Versions

The protocol version is negotiated during the handshake.  The high 24 bits
identify the implementation major version and the low byte names the network
epoch the peer is following; both are validated against the receiving node's
own view before a message is dispatched.

# Errors

Errors returned by this package are either the raw underlying io errors or of
type MessageError, which describes a malformed or policy-violating message.
*/
package wire
