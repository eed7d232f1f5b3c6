package queue

import (
	"encoding/json"
	"fmt"
)

// Marshal encodes an operation as the JSON record used by key-value and file stores
func Marshal(op *Operation) ([]byte, error) {
	data, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("%w: encode operation %s: %v", ErrPersistence, op.ID, err)
	}
	return data, nil
}

// Unmarshal decodes a record written by Marshal.
// Records without an ID or with an unknown type are rejected.
func Unmarshal(data []byte) (*Operation, error) {
	var op Operation
	if err := json.Unmarshal(data, &op); err != nil {
		return nil, fmt.Errorf("%w: decode operation: %v", ErrPersistence, err)
	}
	if op.ID == "" {
		return nil, fmt.Errorf("%w: operation record without id", ErrPersistence)
	}
	if !op.Type.Valid() {
		return nil, fmt.Errorf("%w: operation %s has unknown type %q", ErrPersistence, op.ID, op.Type)
	}
	return &op, nil
}
