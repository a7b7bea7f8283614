package messagestore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
)

// EncodedMessage is the wire form of a message: canonical envelope bytes, the
// content id derived from them, and the payload split off for separate
// placement.
type EncodedMessage struct {
	ContentID string
	Bytes     []byte // canonical envelope, payload excluded
	Data      []byte // extracted payload, nil when the message had none
	DataID    string // content id of Data, empty when Data is nil
}

// EncodeMessage canonicalizes the envelope (RFC 8785) and derives the content
// id from the canonical bytes. The payload never participates in the content
// id, so messages that differ only in Data encode to the same ContentID.
func EncodeMessage(msg Message) (*EncodedMessage, error) {
	if len(msg.Envelope) == 0 {
		return nil, fmt.Errorf("encode message: empty envelope")
	}
	canonical, err := jsoncanonicalizer.Transform(msg.Envelope)
	if err != nil {
		return nil, fmt.Errorf("encode message: canonicalize envelope: %w", err)
	}
	enc := &EncodedMessage{
		ContentID: contentHash(canonical),
		Bytes:     canonical,
	}
	if len(msg.Data) > 0 {
		enc.Data = msg.Data
		enc.DataID = ComputeDataID(msg.Data)
	}
	return enc, nil
}

// DecodeMessage rebuilds a message from stored envelope bytes and an optional
// inline payload. Stored envelopes are already canonical, so the returned
// Envelope is the canonical form.
func DecodeMessage(envelope, data []byte) (Message, error) {
	if !json.Valid(envelope) {
		return Message{}, fmt.Errorf("envelope is not valid JSON")
	}
	msg := Message{Envelope: json.RawMessage(envelope)}
	if len(data) > 0 {
		msg.Data = data
	}
	return msg, nil
}

// ComputeDataID derives the content id of a payload.
func ComputeDataID(data []byte) string {
	return contentHash(data)
}

func contentHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
