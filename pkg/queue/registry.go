package queue

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Registry maps operation types to the handlers that execute them
type Registry struct {
	mu       sync.RWMutex
	handlers map[Type]Handler
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Type]Handler)}
}

// Register adds or replaces the handler for an operation type
func (r *Registry) Register(t Type, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = handler
}

// RegisterFunc registers a plain function as the handler for t
func (r *Registry) RegisterFunc(t Type, fn func(ctx context.Context, op *Operation) error) {
	r.Register(t, HandlerFunc(fn))
}

// Handler retrieves the handler for an operation type
func (r *Registry) Handler(t Type) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if handler, ok := r.handlers[t]; ok {
		return handler, nil
	}
	return nil, fmt.Errorf("%w: no handler for %s", ErrUnsupportedOperation, t)
}

// Types returns the registered operation types in sorted order
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]Type, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}
