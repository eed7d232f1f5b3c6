package schedule

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Kernel manages scheduled tasks
type Kernel struct {
	cron         *cron.Cron
	lockProvider LockProvider
	logger       zerolog.Logger
}

// JobOption configures a scheduled job
type JobOption func(*jobConfig)

type jobConfig struct {
	withoutOverlapping bool
	onOneProcess       bool
	name               string
	lockTTL            time.Duration
}

// NewKernel creates a new scheduler kernel
func NewKernel(lockProvider LockProvider) *Kernel {
	// Initialize Cron with second-level precision
	c := cron.New(cron.WithSeconds())
	return &Kernel{
		cron:         c,
		lockProvider: lockProvider,
		logger:       log.Logger.With().Str("component", "schedule").Logger(),
	}
}

// SetLockProvider sets the lock provider used by OnOneProcess jobs
func (k *Kernel) SetLockProvider(provider LockProvider) {
	k.lockProvider = provider
}

// SetLogger replaces the kernel's logger
func (k *Kernel) SetLogger(logger zerolog.Logger) {
	k.logger = logger
}

// WithoutOverlapping prevents the job from running if the previous instance is still running (local only)
func WithoutOverlapping() JobOption {
	return func(c *jobConfig) {
		c.withoutOverlapping = true
	}
}

// OnOneProcess runs the job only while holding the named lock, so several
// processes sharing one store do not run it at the same time.
func OnOneProcess(name string, ttl time.Duration) JobOption {
	return func(c *jobConfig) {
		c.onOneProcess = true
		c.name = name
		c.lockTTL = ttl
	}
}

// Register adds a function to be run on a given schedule.
// Schedule format: "s m h d m w" (Seconds Minutes Hours Day Month Week) or a
// descriptor such as "@every 5m".
func (k *Kernel) Register(schedule string, cmd func(), opts ...JobOption) error {
	cfg := &jobConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	var job cron.Job = cron.FuncJob(cmd)

	if cfg.withoutOverlapping {
		job = cron.SkipIfStillRunning(cron.DiscardLogger)(job)
	}

	if cfg.onOneProcess {
		if k.lockProvider == nil {
			k.logger.Warn().Str("job", cfg.name).Msg("Ignoring OnOneProcess: lock provider not configured")
		} else {
			job = k.withLock(cfg, job)
		}
	}

	if _, err := k.cron.AddJob(schedule, job); err != nil {
		return err
	}
	k.logger.Debug().Str("job", cfg.name).Str("schedule", schedule).Msg("Registered scheduled job")
	return nil
}

// Every registers cmd to run at a fixed interval
func (k *Kernel) Every(interval time.Duration, cmd func(), opts ...JobOption) error {
	return k.Register("@every "+interval.String(), cmd, opts...)
}

func (k *Kernel) withLock(cfg *jobConfig, job cron.Job) cron.Job {
	ttl := cfg.lockTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		acquired, err := k.lockProvider.GetLock(ctx, cfg.name, ttl)
		if err != nil {
			k.logger.Error().Err(err).Str("job", cfg.name).Msg("Error checking lock")
			return
		}
		if !acquired {
			return
		}
		defer func() {
			_ = k.lockProvider.ReleaseLock(context.Background(), cfg.name)
		}()
		job.Run()
	})
}

// Start runs the scheduler in the background
func (k *Kernel) Start() {
	k.cron.Start()
}

// Stop stops the scheduler and waits for running jobs until ctx is done.
func (k *Kernel) Stop(ctx context.Context) {
	done := k.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
