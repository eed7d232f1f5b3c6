package queue

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PayloadVersion is the schema version written by NewPayload.
const PayloadVersion = 1

// Payload is the schema-versioned envelope carrying operation data.
// The engine stores and forwards it untouched; only the handler for the
// operation's type decodes Data.
type Payload struct {
	Version int             `json:"v"`
	Data    json.RawMessage `json:"data"`
}

// NewPayload encodes v as the payload of the current schema version
func NewPayload(v any) (Payload, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return Payload{Version: PayloadVersion, Data: data}, nil
}

// MustPayload is like NewPayload but panics on error. Intended for tests and literals.
func MustPayload(v any) Payload {
	p, err := NewPayload(v)
	if err != nil {
		panic(err)
	}
	return p
}

// Decode strictly decodes the payload into dst.
//
// Unknown fields, trailing data and version mismatches are reported as
// ErrInvalidPayload rather than silently ignored, so a malformed operation
// fails terminally instead of being executed with partial data.
func (p Payload) Decode(dst any) error {
	if p.Version != PayloadVersion {
		return fmt.Errorf("%w: unsupported payload version %d", ErrInvalidPayload, p.Version)
	}
	if len(p.Data) == 0 {
		return fmt.Errorf("%w: empty payload", ErrInvalidPayload)
	}
	dec := json.NewDecoder(bytes.NewReader(p.Data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data", ErrInvalidPayload)
	}
	return nil
}

// Size is the byte-size estimate used for queue accounting.
func (p Payload) Size() int64 {
	return int64(len(p.Data))
}

func (p Payload) clone() Payload {
	if p.Data == nil {
		return p
	}
	return Payload{Version: p.Version, Data: append(json.RawMessage(nil), p.Data...)}
}
