package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pixelvide/syncqueue/pkg/queue"
)

const snapshotVersion = 1

// Store keeps every operation in one JSON snapshot file. Each mutation
// rewrites the snapshot through a temporary file and a rename, so a crash
// leaves either the previous or the new snapshot on disk.
type Store struct {
	path string
	mu   sync.Mutex
	ops  []*queue.Operation
}

type snapshot struct {
	Version    int               `json:"version"`
	Operations []json.RawMessage `json:"operations"`
}

// NewStore opens the snapshot at path, creating an empty store if it does not exist
func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: empty snapshot path", queue.ErrPersistence)
	}
	s := &Store{path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Persist(_ context.Context, op *queue.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(op.ID) >= 0 {
		return fmt.Errorf("%w: persist %s: %v", queue.ErrPersistence, op.ID, queue.ErrDuplicateOperation)
	}
	s.ops = append(s.ops, op.Clone())
	if err := s.saveLocked(); err != nil {
		s.ops = s.ops[:len(s.ops)-1]
		return err
	}
	return nil
}

func (s *Store) Update(_ context.Context, op *queue.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(op.ID)
	if i < 0 {
		s.ops = append(s.ops, op.Clone())
		if err := s.saveLocked(); err != nil {
			s.ops = s.ops[:len(s.ops)-1]
			return err
		}
		return nil
	}
	prev := s.ops[i]
	s.ops[i] = op.Clone()
	if err := s.saveLocked(); err != nil {
		s.ops[i] = prev
		return err
	}
	return nil
}

func (s *Store) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return nil
	}
	prev := append([]*queue.Operation(nil), s.ops...)
	s.ops = append(s.ops[:i], s.ops[i+1:]...)
	if err := s.saveLocked(); err != nil {
		s.ops = prev
		return err
	}
	return nil
}

func (s *Store) LoadAll(_ context.Context) ([]*queue.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops := make([]*queue.Operation, 0, len(s.ops))
	for _, op := range s.ops {
		ops = append(ops, op.Clone())
	}
	queue.SortOperations(ops)
	return ops, nil
}

func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.ops
	s.ops = nil
	if err := s.saveLocked(); err != nil {
		s.ops = prev
		return err
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) indexLocked(id string) int {
	for i, op := range s.ops {
		if op.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: read snapshot: %v", queue.ErrPersistence, err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("%w: decode snapshot: %v", queue.ErrPersistence, err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("%w: unsupported snapshot version %d", queue.ErrPersistence, snap.Version)
	}
	s.ops = make([]*queue.Operation, 0, len(snap.Operations))
	for _, raw := range snap.Operations {
		op, err := queue.Unmarshal(raw)
		if err != nil {
			return err
		}
		s.ops = append(s.ops, op)
	}
	return nil
}

func (s *Store) saveLocked() error {
	snap := snapshot{Version: snapshotVersion, Operations: make([]json.RawMessage, 0, len(s.ops))}
	for _, op := range s.ops {
		data, err := queue.Marshal(op)
		if err != nil {
			return err
		}
		snap.Operations = append(snap.Operations, data)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("%w: encode snapshot: %v", queue.ErrPersistence, err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("%w: %v", queue.ErrPersistence, err)
	}
	if err := writeFileSync(s.path, data); err != nil {
		return fmt.Errorf("%w: %v", queue.ErrPersistence, err)
	}
	return nil
}

// writeFileSync replaces path with data. The temporary file is synced before
// the rename and the directory after it, so a power loss leaves either the
// old or the new content.
func writeFileSync(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}

	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open snapshot dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync snapshot dir: %w", err)
	}
	return nil
}

var _ queue.Store = (*Store)(nil)
