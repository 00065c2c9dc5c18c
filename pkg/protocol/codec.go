package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeEnvelope parses one wire line into an Envelope.
// Surrounding whitespace (including the line terminator)
// is ignored.
func DecodeEnvelope(line []byte) (Envelope, error) { // A
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Envelope{}, fmt.Errorf("empty line")
	}

	var raw struct {
		Src  *NodeID         `json:"src"`
		Dest *NodeID         `json:"dest"`
		Body json.RawMessage `json:"body"`
	}
	if err := json.Unmarshal(line, &raw); err != nil {
		return Envelope{}, fmt.Errorf("envelope: %w", err)
	}
	if len(raw.Body) == 0 || isNull(raw.Body) {
		return Envelope{}, fmt.Errorf("envelope: missing body")
	}

	var env Envelope
	if err := json.Unmarshal(raw.Body, &env.Body); err != nil {
		return Envelope{}, err
	}
	if raw.Src != nil {
		env.Src = *raw.Src
	}
	if raw.Dest != nil {
		env.Dest = *raw.Dest
	}
	return env, nil
}

// EncodeEnvelope renders env as a single JSON line
// without the trailing newline.
func EncodeEnvelope(env Envelope) ([]byte, error) { // A
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// EncodePayload converts v into a Payload. A nil value or
// a value that encodes to JSON null yields an empty
// payload. Values that do not encode to a JSON object, or
// that use a reserved field name, fail with Crash.
func EncodePayload(v any) (Payload, error) { // A
	if v == nil {
		return Payload{}, nil
	}
	if p, ok := v.(Payload); ok {
		if err := checkReserved(p); err != nil {
			return nil, err
		}
		return p.Clone(), nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, NewError(
			ErrCrash,
			"message content must serialize to an object",
		).WithCause(err)
	}
	data = bytes.TrimSpace(data)
	if isNull(data) {
		return Payload{}, nil
	}
	if len(data) == 0 || data[0] != '{' {
		return nil, NewError(
			ErrCrash,
			"message content must serialize to an object",
		)
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, NewError(
			ErrCrash,
			"message content must serialize to an object",
		).WithCause(err)
	}
	if p == nil {
		p = Payload{}
	}
	if err := checkReserved(p); err != nil {
		return nil, err
	}
	return p, nil
}

// DecodePayload projects p onto T. kind names the message
// in the error text. A mismatch fails with
// MalformedRequest carrying the decode error as cause.
func DecodePayload[T any](kind string, p Payload) (T, error) { // A
	var out T
	if p == nil {
		p = Payload{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return out, NewError(
			ErrMalformedRequest,
			"failed to deserialize message `%s`",
			kind,
		).WithCause(err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, NewError(
			ErrMalformedRequest,
			"failed to deserialize message `%s`",
			kind,
		).WithCause(err)
	}
	return out, nil
}

func checkReserved(p Payload) error { // A
	for k := range p {
		if isReserved(k) {
			return NewError(
				ErrCrash,
				"payload field %q is reserved",
				k,
			)
		}
	}
	return nil
}
