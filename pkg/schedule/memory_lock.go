package schedule

import (
	"context"
	"sync"
	"time"
)

// MemoryLockProvider implements LockProvider within a single process
type MemoryLockProvider struct {
	mu    sync.Mutex
	locks map[string]time.Time
	now   func() time.Time
}

func NewMemoryLockProvider() *MemoryLockProvider {
	return &MemoryLockProvider{
		locks: make(map[string]time.Time),
		now:   time.Now,
	}
}

func (m *MemoryLockProvider) GetLock(ctx context.Context, name string, duration time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if expires, held := m.locks[name]; held && now.Before(expires) {
		return false, nil
	}
	m.locks[name] = now.Add(duration)
	return true, nil
}

func (m *MemoryLockProvider) ReleaseLock(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, name)
	return nil
}
