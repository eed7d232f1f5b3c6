package queue

import (
	"context"
	"fmt"
)

// Enqueuer accepts new operations. worker.Processor implements it.
type Enqueuer interface {
	Enqueue(ctx context.Context, op *Operation) error
	EnqueueBatch(ctx context.Context, ops []*Operation) error
}

// Publisher builds operations from typed values and hands them to an Enqueuer
type Publisher struct {
	target Enqueuer
}

// NewPublisher creates a new Publisher instance
func NewPublisher(target Enqueuer) *Publisher {
	return &Publisher{target: target}
}

// Dispatch encodes v as the payload of a new operation of type typ and enqueues it.
// It returns the created operation so callers can track or cancel it.
func (p *Publisher) Dispatch(ctx context.Context, typ Type, v any, priority Priority) (*Operation, error) {
	op, err := p.build(typ, v, priority)
	if err != nil {
		return nil, err
	}
	if err := p.target.Enqueue(ctx, op); err != nil {
		return nil, err
	}
	return op, nil
}

// DispatchBatch enqueues one operation per value, all with the same type and priority
func (p *Publisher) DispatchBatch(ctx context.Context, typ Type, values []any, priority Priority) ([]*Operation, error) {
	ops := make([]*Operation, 0, len(values))
	for _, v := range values {
		op, err := p.build(typ, v, priority)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	if err := p.target.EnqueueBatch(ctx, ops); err != nil {
		return nil, err
	}
	return ops, nil
}

func (p *Publisher) build(typ Type, v any, priority Priority) (*Operation, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedOperation, typ)
	}
	payload, err := NewPayload(v)
	if err != nil {
		return nil, err
	}
	return NewOperation(typ, payload, priority), nil
}
