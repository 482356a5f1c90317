// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/embersuite/emberd/chaincfg/chainhash"
)

// MaxMessagePayload is the maximum bytes a message envelope body can be
// regardless of the message type.  The body is the relayer vector, the type
// byte, and the typed payload.
const MaxMessagePayload = 1024 * 1024 * 2

// MaxRelayers is the maximum number of relay hints a single message may
// carry.  Anything longer is assumed to be either an amplification attempt
// or a routing loop no hint list that long could have avoided.
const MaxRelayers = 16

// MessageType is the one-byte discriminant that identifies the payload kind
// inside an envelope.
type MessageType uint8

// Message type ids.  The values are part of the wire protocol and must not
// be renumbered.
const (
	TypeHandshake       MessageType = 0
	TypeHandshakeAccept MessageType = 1
	TypeHandshakeReject MessageType = 2
	TypeGetNeighbors    MessageType = 3
	TypeNeighbors       MessageType = 4
	TypeGetBlocksInv    MessageType = 5
	TypeBlocksInv       MessageType = 6
	TypeBlocksPush      MessageType = 7
	TypeMicroblocksPush MessageType = 8
	TypeTxPush          MessageType = 9
	TypeNack            MessageType = 10
	TypePing            MessageType = 11
	TypePong            MessageType = 12
	TypeNatPunchRequest MessageType = 13
	TypeNatPunchReply   MessageType = 14
	TypeGetMempoolTxs   MessageType = 15
	TypeMempoolTxs      MessageType = 16
)

// Commands used in message headers which describe the message type.
const (
	CmdHandshake       = "handshake"
	CmdHandshakeAccept = "handshakeaccept"
	CmdHandshakeReject = "handshakereject"
	CmdGetNeighbors    = "getneighbors"
	CmdNeighbors       = "neighbors"
	CmdGetBlocksInv    = "getblocksinv"
	CmdBlocksInv       = "blocksinv"
	CmdBlocksPush      = "blockspush"
	CmdMicroblocksPush = "microblockspush"
	CmdTxPush          = "txpush"
	CmdNack            = "nack"
	CmdPing            = "ping"
	CmdPong            = "pong"
	CmdNatPunchRequest = "natpunchreq"
	CmdNatPunchReply   = "natpunchreply"
	CmdGetMempoolTxs   = "getmempooltxs"
	CmdMempoolTxs      = "mempooltxs"
)

// String returns the command name of the message type.
func (mt MessageType) String() string {
	if msg, err := makeEmptyMessage(mt); err == nil {
		return msg.Command()
	}
	return fmt.Sprintf("unknown(%d)", uint8(mt))
}

// Message is an interface that describes an Ember message.  A type that
// implements Message has complete control over the representation of its
// payload and may therefore contain additional or fewer fields than those
// which are serialized on the wire.
type Message interface {
	EmberDecode(r io.Reader, pver uint32) error
	EmberEncode(w io.Writer, pver uint32) error
	Command() string
	Type() MessageType
	MaxPayloadLength(pver uint32) uint32
}

// makeEmptyMessage creates a message of the appropriate concrete type based
// on the message type id.
func makeEmptyMessage(mt MessageType) (Message, error) {
	var msg Message
	switch mt {
	case TypeHandshake:
		msg = &MsgHandshake{}

	case TypeHandshakeAccept:
		msg = &MsgHandshakeAccept{}

	case TypeHandshakeReject:
		msg = &MsgHandshakeReject{}

	case TypeGetNeighbors:
		msg = &MsgGetNeighbors{}

	case TypeNeighbors:
		msg = &MsgNeighbors{}

	case TypeGetBlocksInv:
		msg = &MsgGetBlocksInv{}

	case TypeBlocksInv:
		msg = &MsgBlocksInv{}

	case TypeBlocksPush:
		msg = &MsgBlocksPush{}

	case TypeMicroblocksPush:
		msg = &MsgMicroblocksPush{}

	case TypeTxPush:
		msg = &MsgTxPush{}

	case TypeNack:
		msg = &MsgNack{}

	case TypePing:
		msg = &MsgPing{}

	case TypePong:
		msg = &MsgPong{}

	case TypeNatPunchRequest:
		msg = &MsgNatPunchRequest{}

	case TypeNatPunchReply:
		msg = &MsgNatPunchReply{}

	case TypeGetMempoolTxs:
		msg = &MsgGetMempoolTxs{}

	case TypeMempoolTxs:
		msg = &MsgMempoolTxs{}

	default:
		return nil, messageError("makeEmptyMessage",
			fmt.Sprintf("unhandled message type %d", uint8(mt)))
	}
	return msg, nil
}

// Envelope bundles a preamble, the relay hints, and a typed payload: one
// complete message as it exists on the wire.
type Envelope struct {
	Preamble Preamble
	Relayers []RelayData
	Payload  Message
}

// NewEnvelope returns an envelope around the passed payload with an empty
// preamble.  The caller stamps the preamble view fields and signs before
// transmission.
func NewEnvelope(payload Message) *Envelope {
	return &Envelope{Payload: payload}
}

// Command returns the command name of the payload, or a placeholder when the
// envelope has none yet.
func (env *Envelope) Command() string {
	if env.Payload == nil {
		return "empty"
	}
	return env.Payload.Command()
}

// bodyBytes serializes the envelope body: the relayer vector, the payload
// type byte, and the payload itself.  The preamble's PayloadLen covers
// exactly these bytes.
func (env *Envelope) bodyBytes(pver uint32) ([]byte, error) {
	if env.Payload == nil {
		return nil, messageError("Envelope.bodyBytes", "nil payload")
	}
	if len(env.Relayers) > MaxRelayers {
		str := fmt.Sprintf("too many relayers [count %d, max %d]",
			len(env.Relayers), MaxRelayers)
		return nil, messageError("Envelope.bodyBytes", str)
	}

	var buf bytes.Buffer
	if err := writeElement(&buf, uint32(len(env.Relayers))); err != nil {
		return nil, err
	}
	for i := range env.Relayers {
		if err := writeRelayData(&buf, pver, &env.Relayers[i]); err != nil {
			return nil, err
		}
	}
	if err := writeElement(&buf, uint8(env.Payload.Type())); err != nil {
		return nil, err
	}
	if err := env.Payload.EmberEncode(&buf, pver); err != nil {
		return nil, err
	}

	body := buf.Bytes()
	if len(body) > MaxMessagePayload {
		str := fmt.Sprintf("message payload is too large - encoded "+
			"%d bytes, but maximum message payload is %d bytes",
			len(body), MaxMessagePayload)
		return nil, messageError("Envelope.bodyBytes", str)
	}
	return body, nil
}

// sigHash computes the digest the preamble signature commits to: the
// serialized envelope with the signature field zeroed.
func (env *Envelope) sigHash(pver uint32, body []byte) (chainhash.Hash, error) {
	unsigned := env.Preamble
	unsigned.Signature = [SignatureSize]byte{}
	unsigned.PayloadLen = uint32(len(body))

	var buf bytes.Buffer
	if err := writePreamble(&buf, pver, &unsigned); err != nil {
		return chainhash.Hash{}, err
	}
	buf.Write(body)
	return chainhash.HashH(buf.Bytes()), nil
}

// Sign stamps the sequence number and payload length into the preamble and
// installs a recoverable signature by the passed private key.  It must be
// called after the payload and relayers are final.
func (env *Envelope) Sign(seq uint32, privKey *btcec.PrivateKey) error {
	env.Preamble.Seq = seq

	body, err := env.bodyBytes(env.Preamble.PeerVersion)
	if err != nil {
		return err
	}
	env.Preamble.PayloadLen = uint32(len(body))

	digest, err := env.sigHash(env.Preamble.PeerVersion, body)
	if err != nil {
		return err
	}

	sig := ecdsa.SignCompact(privKey, digest[:], true)
	if len(sig) != SignatureSize {
		return messageError("Envelope.Sign", "unexpected signature length")
	}
	copy(env.Preamble.Signature[:], sig)
	return nil
}

// SignRelayed appends a relay hint naming the local node and re-signs the
// envelope under the local key with a fresh sequence number.  This is how a
// message is forwarded without erasing where it has been.
func (env *Envelope) SignRelayed(seq uint32, privKey *btcec.PrivateKey,
	local RelayData) error {

	if len(env.Relayers) >= MaxRelayers {
		return messageError("Envelope.SignRelayed", "too many relayers")
	}
	env.Relayers = append(env.Relayers, local)
	return env.Sign(seq, privKey)
}

// RecoverPubKey returns the public key that produced the preamble signature.
func (env *Envelope) RecoverPubKey() (*btcec.PublicKey, error) {
	body, err := env.bodyBytes(env.Preamble.PeerVersion)
	if err != nil {
		return nil, err
	}
	digest, err := env.sigHash(env.Preamble.PeerVersion, body)
	if err != nil {
		return nil, err
	}

	pubKey, _, err := ecdsa.RecoverCompact(env.Preamble.Signature[:],
		digest[:])
	if err != nil {
		return nil, messageError("Envelope.RecoverPubKey", err.Error())
	}
	return pubKey, nil
}

// Verify checks the preamble signature against the expected public key.
func (env *Envelope) Verify(pubKey *btcec.PublicKey) error {
	recovered, err := env.RecoverPubKey()
	if err != nil {
		return err
	}
	if !recovered.IsEqual(pubKey) {
		return messageError("Envelope.Verify",
			"signature does not match expected public key")
	}
	return nil
}

// WriteEnvelopeN writes an Envelope to w and returns the number of bytes
// written.  The envelope must already be signed; this function does not
// mutate it.
func WriteEnvelopeN(w io.Writer, env *Envelope, pver uint32) (int, error) {
	body, err := env.bodyBytes(pver)
	if err != nil {
		return 0, err
	}
	if env.Preamble.PayloadLen != uint32(len(body)) {
		str := fmt.Sprintf("preamble payload length %d does not match "+
			"body length %d - envelope not signed?",
			env.Preamble.PayloadLen, len(body))
		return 0, messageError("WriteEnvelope", str)
	}

	var buf bytes.Buffer
	if err := writePreamble(&buf, pver, &env.Preamble); err != nil {
		return 0, err
	}
	buf.Write(body)

	n, err := w.Write(buf.Bytes())
	return n, err
}

// WriteEnvelope writes an Envelope to w.
func WriteEnvelope(w io.Writer, env *Envelope, pver uint32) error {
	_, err := WriteEnvelopeN(w, env, pver)
	return err
}

// ReadEnvelopeN reads, validates, and parses the next Envelope from r and
// returns the number of bytes consumed.  Validation here is purely
// structural: size caps, known message type, and full payload consumption.
// Semantic checks such as the network id and signature belong to the
// conversation layer, which needs to observe the violation rather than have
// the codec swallow it.
func ReadEnvelopeN(r io.Reader, pver uint32) (int, *Envelope, error) {
	env := &Envelope{}
	if err := readPreamble(r, pver, &env.Preamble); err != nil {
		return 0, nil, err
	}
	totalBytes := PreambleSize

	if env.Preamble.PayloadLen > MaxMessagePayload {
		str := fmt.Sprintf("message payload is too large - header "+
			"indicates %d bytes, but max message payload is %d bytes",
			env.Preamble.PayloadLen, MaxMessagePayload)
		return totalBytes, nil, messageError("ReadEnvelope", str)
	}

	body := make([]byte, env.Preamble.PayloadLen)
	n, err := io.ReadFull(r, body)
	totalBytes += n
	if err != nil {
		return totalBytes, nil, err
	}

	br := bytes.NewBuffer(body)
	count, err := readVarCount(br, pver, MaxRelayers, "relayers")
	if err != nil {
		return totalBytes, nil, err
	}
	relayers := make([]RelayData, count)
	for i := range relayers {
		if err := readRelayData(br, pver, &relayers[i]); err != nil {
			return totalBytes, nil, err
		}
	}
	env.Relayers = relayers

	var typeID uint8
	if err := readElement(br, &typeID); err != nil {
		return totalBytes, nil, err
	}
	msg, err := makeEmptyMessage(MessageType(typeID))
	if err != nil {
		return totalBytes, nil, err
	}

	// Check for maximum length based on the message type as a malicious
	// client could otherwise create a well-formed header and set the
	// length to max numbers in order to exhaust the machine's memory.
	if uint32(br.Len()) > msg.MaxPayloadLength(pver) {
		str := fmt.Sprintf("payload exceeds max length - payload %d "+
			"bytes, but max payload size for messages of type [%v] "+
			"is %d", br.Len(), msg.Command(), msg.MaxPayloadLength(pver))
		return totalBytes, nil, messageError("ReadEnvelope", str)
	}

	if err := msg.EmberDecode(br, pver); err != nil {
		return totalBytes, nil, err
	}
	if br.Len() != 0 {
		str := fmt.Sprintf("payload for message of type [%v] has %d "+
			"trailing bytes", msg.Command(), br.Len())
		return totalBytes, nil, messageError("ReadEnvelope", str)
	}

	env.Payload = msg
	return totalBytes, env, nil
}

// ReadEnvelope reads, validates, and parses the next Envelope from r.
func ReadEnvelope(r io.Reader, pver uint32) (*Envelope, error) {
	_, env, err := ReadEnvelopeN(r, pver)
	return env, err
}
