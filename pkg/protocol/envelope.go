// Package protocol defines the wire model of the
// line-oriented JSON message protocol: envelopes,
// bodies with a flattened open payload, and the
// fixed error taxonomy shared with the harness.
package protocol

import (
	"encoding/json"
	"fmt"
)

// NodeID identifies a node or client. It is opaque and
// assigned by the harness. The empty NodeID means the
// address is absent.
type NodeID string // A

// MessageID is a per-sender message identifier.
type MessageID uint64 // A

// Reserved body fields. Payload keys must never use
// these names because payload and body metadata share
// one flattened JSON object on the wire.
const (
	FieldMsgID     = "msg_id"
	FieldInReplyTo = "in_reply_to"
	FieldType      = "type"
)

// Well-known system message kinds.
const (
	KindInit   = "init"
	KindInitOK = "init_ok"
	KindError  = "error"
)

// Payload is the open part of a message body. Values are
// kept as raw JSON so that a payload survives decode and
// re-encode without loss until a handler asks for a typed
// projection.
type Payload map[string]json.RawMessage // A

// Clone returns a copy of the payload. The raw values are
// copied as well, so the clone shares no memory with p.
func (p Payload) Clone() Payload { // A
	if p == nil {
		return Payload{}
	}
	out := make(Payload, len(p))
	for k, v := range p {
		cp := make(json.RawMessage, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

// Envelope is one transmitted unit.
type Envelope struct { // A
	Src  NodeID `json:"src,omitempty"`
	Dest NodeID `json:"dest,omitempty"`
	Body Body   `json:"body"`
}

// Kind returns the body discriminator.
func (e Envelope) Kind() string { // A
	return e.Body.Kind
}

// Body carries correlation metadata, the discriminator
// and the open payload.
type Body struct { // A
	MsgID     *MessageID
	InReplyTo *MessageID
	Kind      string
	Payload   Payload
}

// ID returns a pointer to id, for filling optional
// MessageID fields.
func ID(id MessageID) *MessageID { // H
	return &id
}

// MarshalJSON flattens the payload next to the reserved
// body fields.
func (b Body) MarshalJSON() ([]byte, error) { // A
	flat := make(map[string]json.RawMessage, len(b.Payload)+3)
	for k, v := range b.Payload {
		if isReserved(k) {
			return nil, fmt.Errorf(
				"payload field %q is reserved",
				k,
			)
		}
		flat[k] = v
	}

	kind, err := json.Marshal(b.Kind)
	if err != nil {
		return nil, fmt.Errorf("marshal type: %w", err)
	}
	flat[FieldType] = kind

	if b.MsgID != nil {
		flat[FieldMsgID] = json.RawMessage(
			fmt.Sprintf("%d", *b.MsgID),
		)
	}
	if b.InReplyTo != nil {
		flat[FieldInReplyTo] = json.RawMessage(
			fmt.Sprintf("%d", *b.InReplyTo),
		)
	}
	return json.Marshal(flat)
}

// UnmarshalJSON lifts the reserved fields out of the flat
// body object and keeps everything else as payload.
func (b *Body) UnmarshalJSON(data []byte) error { // A
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return fmt.Errorf("body: %w", err)
	}
	if flat == nil {
		return fmt.Errorf("body: must be an object")
	}

	rawKind, ok := flat[FieldType]
	if !ok || isNull(rawKind) {
		return fmt.Errorf("body: missing %q", FieldType)
	}
	var kind string
	if err := json.Unmarshal(rawKind, &kind); err != nil {
		return fmt.Errorf(
			"body: %q must be a string: %w",
			FieldType,
			err,
		)
	}

	msgID, err := optionalID(flat, FieldMsgID)
	if err != nil {
		return err
	}
	inReplyTo, err := optionalID(flat, FieldInReplyTo)
	if err != nil {
		return err
	}

	delete(flat, FieldType)
	delete(flat, FieldMsgID)
	delete(flat, FieldInReplyTo)

	*b = Body{
		MsgID:     msgID,
		InReplyTo: inReplyTo,
		Kind:      kind,
		Payload:   Payload(flat),
	}
	return nil
}

func optionalID( // A
	flat map[string]json.RawMessage,
	field string,
) (*MessageID, error) {
	raw, ok := flat[field]
	if !ok || isNull(raw) {
		return nil, nil
	}
	var id MessageID
	if err := json.Unmarshal(raw, &id); err != nil {
		return nil, fmt.Errorf(
			"body: %q must be a non-negative integer: %w",
			field,
			err,
		)
	}
	return &id, nil
}

func isReserved(key string) bool { // A
	switch key {
	case FieldMsgID, FieldInReplyTo, FieldType:
		return true
	default:
		return false
	}
}

func isNull(raw json.RawMessage) bool { // A
	return string(raw) == "null"
}
