package worker

import (
	"time"

	"github.com/pixelvide/syncqueue/pkg/connectivity"
	"github.com/pixelvide/syncqueue/pkg/limiter"
	"github.com/pixelvide/syncqueue/pkg/queue"
	"github.com/pixelvide/syncqueue/pkg/schedule"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultBatchSize     = 20
	DefaultDrainInterval = 5 * time.Minute
	DefaultRetention     = 7 * 24 * time.Hour

	cycleLockName = "syncqueue:cycle"
	cycleLockTTL  = 10 * time.Minute
)

// Option configures a Processor
type Option func(*options)

type options struct {
	monitor       *connectivity.Monitor
	policy        queue.RetryPolicy
	concurrency   int
	batchSize     int
	drainInterval time.Duration
	retention     time.Duration
	logger        zerolog.Logger
	tracer        trace.Tracer
	failedLogger  queue.FailedOperationLogger
	cycleLock     schedule.LockProvider
	now           func() time.Time
}

func defaultOptions() options {
	return options{
		policy:        queue.DefaultRetryPolicy(),
		concurrency:   limiter.DefaultLimit,
		batchSize:     DefaultBatchSize,
		drainInterval: DefaultDrainInterval,
		retention:     DefaultRetention,
		logger:        log.Logger.With().Str("component", "syncqueue").Logger(),
		tracer:        otel.Tracer("github.com/pixelvide/syncqueue/pkg/worker"),
		now:           time.Now,
	}
}

// WithMonitor makes dispatch follow the monitor's reachability. Without a
// monitor the backend is assumed reachable.
func WithMonitor(m *connectivity.Monitor) Option {
	return func(o *options) { o.monitor = m }
}

func WithRetryPolicy(p queue.RetryPolicy) Option {
	return func(o *options) {
		if p != nil {
			o.policy = p
		}
	}
}

// WithConcurrency bounds the number of handler calls in flight
func WithConcurrency(n int) Option {
	return func(o *options) { o.concurrency = n }
}

func WithBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithDrainInterval sets the periodic drain schedule; zero disables it
func WithDrainInterval(d time.Duration) Option {
	return func(o *options) { o.drainInterval = d }
}

// WithRetention sets how long failed operations are kept
func WithRetention(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retention = d
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithFailedLogger records every operation that reaches the failed state
func WithFailedLogger(l queue.FailedOperationLogger) Option {
	return func(o *options) { o.failedLogger = l }
}

// WithCycleLock skips a cycle while another process holds the shared cycle lock
func WithCycleLock(l schedule.LockProvider) Option {
	return func(o *options) { o.cycleLock = l }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
