// Package limiter bounds how many operation handlers run at once.
package limiter

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultLimit is the number of permits used when none is configured.
const DefaultLimit = 5

// Limiter is a counting semaphore. Waiters are released in FIFO order.
type Limiter struct {
	sem      *semaphore.Weighted
	limit    int
	inFlight atomic.Int64
}

// New creates a limiter with n permits; n <= 0 selects DefaultLimit
func New(n int) *Limiter {
	if n <= 0 {
		n = DefaultLimit
	}
	return &Limiter{
		sem:   semaphore.NewWeighted(int64(n)),
		limit: n,
	}
}

// Wait blocks until a permit is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	l.inFlight.Add(1)
	return nil
}

// TryWait takes a permit only if one is free right now
func (l *Limiter) TryWait() bool {
	if !l.sem.TryAcquire(1) {
		return false
	}
	l.inFlight.Add(1)
	return true
}

// Signal returns a permit taken by Wait or TryWait.
func (l *Limiter) Signal() {
	l.inFlight.Add(-1)
	l.sem.Release(1)
}

// InFlight is the number of permits currently held
func (l *Limiter) InFlight() int {
	return int(l.inFlight.Load())
}

// Limit is the total number of permits
func (l *Limiter) Limit() int {
	return l.limit
}
