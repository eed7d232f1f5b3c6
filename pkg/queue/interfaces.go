package queue

import (
	"context"
)

// Handler performs one operation type against the backend.
// A nil error means the remote call succeeded.
type Handler interface {
	Process(ctx context.Context, op *Operation) error
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx context.Context, op *Operation) error

// Process calls f(ctx, op)
func (f HandlerFunc) Process(ctx context.Context, op *Operation) error {
	return f(ctx, op)
}

// Store is the durable record of queued operations.
//
// LoadAll returns every stored operation sorted by priority (highest first)
// then timestamp. Completed operations are never stored.
type Store interface {
	// Persist records a new operation
	Persist(ctx context.Context, op *Operation) error
	// Update overwrites the stored state of an existing operation
	Update(ctx context.Context, op *Operation) error
	// Remove deletes an operation; removing an unknown ID is not an error
	Remove(ctx context.Context, id string) error
	LoadAll(ctx context.Context) ([]*Operation, error)
	Clear(ctx context.Context) error
	Close() error
}
