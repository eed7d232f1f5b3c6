// Package connectivity tracks whether the backend is reachable and
// notifies subscribers on transitions.
package connectivity

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Monitor holds the current reachability state.
type Monitor struct {
	mu          sync.Mutex
	reachable   bool
	subscribers map[int]func(reachable bool)
	nextID      int
	logger      zerolog.Logger
}

// NewMonitor creates a monitor starting in the given state
func NewMonitor(reachable bool) *Monitor {
	return &Monitor{
		reachable:   reachable,
		subscribers: make(map[int]func(bool)),
		logger:      log.Logger.With().Str("component", "connectivity").Logger(),
	}
}

// SetLogger replaces the monitor's logger
func (m *Monitor) SetLogger(logger zerolog.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = logger
}

// Reachable reports the last observed state
func (m *Monitor) Reachable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reachable
}

// Set records the observed state. Subscribers are called only when the
// state changes, in registration order, outside the monitor's lock.
func (m *Monitor) Set(reachable bool) {
	m.mu.Lock()
	if m.reachable == reachable {
		m.mu.Unlock()
		return
	}
	m.reachable = reachable
	subs := m.snapshotLocked()
	logger := m.logger
	m.mu.Unlock()

	logger.Info().Bool("reachable", reachable).Msg("Connectivity changed")
	for _, fn := range subs {
		fn(reachable)
	}
}

// Subscribe registers fn for state transitions and returns a function that removes it.
func (m *Monitor) Subscribe(fn func(reachable bool)) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscribeLocked(fn)
}

// Watch registers fn like Subscribe and returns the state at registration.
// Both happen under the monitor's lock, so every transition after the
// returned state reaches fn.
func (m *Monitor) Watch(fn func(reachable bool)) (reachable bool, cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reachable, m.subscribeLocked(fn)
}

func (m *Monitor) subscribeLocked(fn func(reachable bool)) (cancel func()) {
	id := m.nextID
	m.nextID++
	m.subscribers[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers, id)
	}
}

// Run polls prober every interval until ctx is done, feeding results into Set.
func (m *Monitor) Run(ctx context.Context, prober Prober, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	m.Set(prober.Check(ctx))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Set(prober.Check(ctx))
		}
	}
}

func (m *Monitor) snapshotLocked() []func(bool) {
	ids := make([]int, 0, len(m.subscribers))
	for id := range m.subscribers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	subs := make([]func(bool), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, m.subscribers[id])
	}
	return subs
}
