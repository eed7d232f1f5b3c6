package queue

import (
	"fmt"
	"time"
)

// Queue holds the pending and failed operation collections.
//
// Queue is not safe for concurrent use. The processor owns it and mutates
// it from a single goroutine.
type Queue struct {
	pending []*Operation
	failed  []*Operation
	index   map[string]*Operation
}

// NewQueue creates an empty queue
func NewQueue() *Queue {
	return &Queue{index: make(map[string]*Operation)}
}

// Restore builds a queue from stored operations. Operations that were
// processing when the store was last written are returned to pending.
func Restore(ops []*Operation) *Queue {
	q := NewQueue()
	for _, op := range ops {
		if _, ok := q.index[op.ID]; ok {
			continue
		}
		switch op.Status {
		case StatusFailed:
			q.failed = append(q.failed, op)
		case StatusCompleted:
			continue
		default:
			op.Status = StatusPending
			q.pending = append(q.pending, op)
		}
		q.index[op.ID] = op
	}
	SortOperations(q.pending)
	return q
}

// Add appends a pending operation, keeping the pending list in priority order.
func (q *Queue) Add(op *Operation) error {
	if _, ok := q.index[op.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateOperation, op.ID)
	}
	q.index[op.ID] = op
	q.pending = append(q.pending, op)
	SortByPriority(q.pending)
	return nil
}

// AddBatch adds ops after a stable priority sort. Insertion order is kept
// within a priority band. Either all ops are added or none.
func (q *Queue) AddBatch(ops []*Operation) error {
	seen := make(map[string]struct{}, len(ops))
	for _, op := range ops {
		if _, ok := q.index[op.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateOperation, op.ID)
		}
		if _, ok := seen[op.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateOperation, op.ID)
		}
		seen[op.ID] = struct{}{}
	}
	sorted := append([]*Operation(nil), ops...)
	SortByPriority(sorted)
	for _, op := range sorted {
		q.index[op.ID] = op
	}
	q.pending = append(q.pending, sorted...)
	SortByPriority(q.pending)
	return nil
}

// Get returns the queued operation with the given ID
func (q *Queue) Get(id string) (*Operation, bool) {
	op, ok := q.index[id]
	return op, ok
}

// Remove drops an operation from whichever collection holds it
func (q *Queue) Remove(id string) (*Operation, bool) {
	op, ok := q.index[id]
	if !ok {
		return nil, false
	}
	delete(q.index, id)
	q.pending = without(q.pending, id)
	q.failed = without(q.failed, id)
	return op, true
}

// MarkFailed moves a failed operation from pending to the failed collection.
func (q *Queue) MarkFailed(id string) error {
	op, ok := q.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if op.Status != StatusFailed {
		return fmt.Errorf("%w: operation %s is %s", ErrInvalidTransition, id, op.Status)
	}
	q.pending = without(q.pending, id)
	if !contains(q.failed, id) {
		q.failed = append(q.failed, op)
	}
	return nil
}

// Reset moves a failed operation back to pending with its attempts cleared.
func (q *Queue) Reset(id string) (*Operation, error) {
	op, ok := q.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := op.Reset(); err != nil {
		return nil, err
	}
	q.failed = without(q.failed, id)
	q.pending = append(q.pending, op)
	SortByPriority(q.pending)
	return op, nil
}

// Pending returns the pending collection in dispatch order.
// The slice is a copy; the operations are shared.
func (q *Queue) Pending() []*Operation {
	return append([]*Operation(nil), q.pending...)
}

// Failed returns the failed collection in the order operations failed
func (q *Queue) Failed() []*Operation {
	return append([]*Operation(nil), q.failed...)
}

// Ready returns pending operations that may be dispatched at now, highest priority first.
func (q *Queue) Ready(now time.Time) []*Operation {
	var ready []*Operation
	for _, op := range q.pending {
		if op.Ready(now) {
			ready = append(ready, op)
		}
	}
	return ready
}

// NextRetry returns the earliest scheduled retry among pending operations
func (q *Queue) NextRetry() (time.Time, bool) {
	var next time.Time
	found := false
	for _, op := range q.pending {
		if op.Status != StatusPending || op.NextRetryAt == nil {
			continue
		}
		if !found || op.NextRetryAt.Before(next) {
			next = *op.NextRetryAt
			found = true
		}
	}
	return next, found
}

// PruneFailed drops failed operations created before cutoff and returns them
func (q *Queue) PruneFailed(cutoff time.Time) []*Operation {
	var pruned []*Operation
	kept := q.failed[:0]
	for _, op := range q.failed {
		if op.Timestamp.Before(cutoff) {
			pruned = append(pruned, op)
			delete(q.index, op.ID)
			continue
		}
		kept = append(kept, op)
	}
	q.failed = kept
	return pruned
}

// Clear empties both collections and returns what was removed
func (q *Queue) Clear() []*Operation {
	all := make([]*Operation, 0, len(q.index))
	all = append(all, q.pending...)
	all = append(all, q.failed...)
	q.pending = nil
	q.failed = nil
	q.index = make(map[string]*Operation)
	return all
}

// Len returns the number of pending operations
func (q *Queue) Len() int {
	return len(q.pending)
}

// Stats summarises the queue.
func (q *Queue) Stats() Statistics {
	stats := Statistics{
		Pending: len(q.pending),
		Failed:  len(q.failed),
		ByType:  make(map[Type]int),
	}
	for _, op := range q.pending {
		stats.ByType[op.Type]++
		stats.EstimatedSize += op.EstimatedSize
		if stats.OldestPending == nil || op.Timestamp.Before(*stats.OldestPending) {
			ts := op.Timestamp
			stats.OldestPending = &ts
		}
	}
	for _, op := range q.failed {
		stats.ByType[op.Type]++
		stats.EstimatedSize += op.EstimatedSize
		if stats.OldestFailed == nil || op.Timestamp.Before(stats.OldestFailed.Timestamp) {
			stats.OldestFailed = op.Clone()
		}
	}
	return stats
}

func without(ops []*Operation, id string) []*Operation {
	for i, op := range ops {
		if op.ID == id {
			return append(ops[:i:i], ops[i+1:]...)
		}
	}
	return ops
}

func contains(ops []*Operation, id string) bool {
	for _, op := range ops {
		if op.ID == id {
			return true
		}
	}
	return false
}
