package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/pixelvide/syncqueue/pkg/queue"
)

// Store keeps operations in process memory. Contents are lost on exit;
// it backs tests and the queue:enqueue dry run.
type Store struct {
	mu  sync.Mutex
	ops map[string]*queue.Operation
	// order records first-persist order so equal keys load deterministically
	order []string
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{ops: make(map[string]*queue.Operation)}
}

func (s *Store) Persist(_ context.Context, op *queue.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ops[op.ID]; ok {
		return fmt.Errorf("%w: persist %s: %v", queue.ErrPersistence, op.ID, queue.ErrDuplicateOperation)
	}
	s.ops[op.ID] = op.Clone()
	s.order = append(s.order, op.ID)
	return nil
}

func (s *Store) Update(_ context.Context, op *queue.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ops[op.ID]; !ok {
		s.order = append(s.order, op.ID)
	}
	s.ops[op.ID] = op.Clone()
	return nil
}

func (s *Store) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ops[id]; !ok {
		return nil
	}
	delete(s.ops, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) LoadAll(_ context.Context) ([]*queue.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops := make([]*queue.Operation, 0, len(s.order))
	for _, id := range s.order {
		ops = append(ops, s.ops[id].Clone())
	}
	queue.SortOperations(ops)
	return ops, nil
}

func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = make(map[string]*queue.Operation)
	s.order = nil
	return nil
}

// Len returns the number of stored operations
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ops)
}

func (s *Store) Close() error {
	return nil
}

var _ queue.Store = (*Store)(nil)
