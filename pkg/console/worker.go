package console

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pixelvide/syncqueue/pkg/config"
	"github.com/pixelvide/syncqueue/pkg/connectivity"
	"github.com/pixelvide/syncqueue/pkg/driver"
	"github.com/pixelvide/syncqueue/pkg/driver/sqs"
	"github.com/pixelvide/syncqueue/pkg/queue"
	"github.com/pixelvide/syncqueue/pkg/root"
	"github.com/pixelvide/syncqueue/pkg/telemetry"
	"github.com/pixelvide/syncqueue/pkg/worker"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	concurrency int
	trace       bool
)

var workerCmd = &cobra.Command{
	Use:     "queue:work",
	Aliases: []string{"worker"},
	Short:   "Start draining the operation queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		cfg, store, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		opts := []worker.Option{
			worker.WithRetryPolicy(&queue.BackoffPolicy{
				MaxAttempts: cfg.Queue.MaxAttempts,
				BaseDelay:   cfg.Queue.BaseDelay,
				MaxDelay:    cfg.Queue.MaxDelay,
			}),
			worker.WithConcurrency(cfg.Queue.Concurrency),
			worker.WithBatchSize(cfg.Queue.BatchSize),
			worker.WithDrainInterval(cfg.Queue.DrainInterval),
			worker.WithRetention(cfg.Queue.Retention),
		}
		if cmd.Flags().Changed("workers") {
			opts = append(opts, worker.WithConcurrency(concurrency))
		}

		if trace {
			tp, err := telemetry.InitTracer("syncqueue", os.Stderr)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to initialize tracer")
			}
			defer func() {
				if err := tp.Shutdown(context.Background()); err != nil {
					log.Error().Err(err).Msg("Error shutting down tracer")
				}
			}()
			opts = append(opts, worker.WithTracer(tp.Tracer("worker")))
		}

		failedLogger, err := driver.FailedLogger(ctx, store, *cfg)
		if err != nil {
			log.Warn().Err(err).Msg("Failed operation log unavailable")
		} else if failedLogger != nil {
			opts = append(opts, worker.WithFailedLogger(failedLogger))
		}
		if cfg.Queue.SharedLock {
			opts = append(opts, worker.WithCycleLock(driver.LockProvider(store)))
		}

		if cfg.Connectivity.ProbeAddress != "" {
			monitor := connectivity.NewMonitor(false)
			monitor.SetLogger(log.Logger)
			prober := connectivity.DialProber{Address: cfg.Connectivity.ProbeAddress, Timeout: cfg.Connectivity.ProbeTimeout}
			// first probe before Start so restored operations wait for the link
			monitor.Set(prober.Check(ctx))
			go monitor.Run(ctx, prober, cfg.Connectivity.ProbeInterval)
			opts = append(opts, worker.WithMonitor(monitor))
		}

		if cfg.SQS.Enabled() {
			if err := registerForwarder(ctx, cfg.SQS); err != nil {
				return err
			}
		}

		p := worker.New(store, globalRegistry, opts...)
		if err := p.Start(ctx); err != nil {
			return err
		}

		// Handle SIGINT/SIGTERM
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(c)

		log.Info().
			Str("store", cfg.Store.Driver).
			Strs("handlers", typeNames(globalRegistry.Types())).
			Msg("Processing operation queue...")

		select {
		case <-c:
			log.Info().Msg("Shutting down processor...")
		case <-ctx.Done():
		}
		p.Stop()
		return nil
	},
}

// registerForwarder sends batch submissions to SQS unless the application
// registered its own handler.
func registerForwarder(ctx context.Context, cfg config.SQSConfig) error {
	if _, err := globalRegistry.Handler(queue.TypeBatchSubmission); err == nil {
		return nil
	}
	client, err := config.LoadSQSClient(ctx, cfg)
	if err != nil {
		return err
	}
	globalRegistry.Register(queue.TypeBatchSubmission, sqs.NewForwarder(client, cfg.QueueUrl))
	log.Info().Str("queue_url", cfg.QueueUrl).Msg("Forwarding batch submissions to SQS")
	return nil
}

func typeNames(types []queue.Type) []string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return names
}

func init() {
	workerCmd.Flags().IntVar(&concurrency, "workers", 5, "Number of concurrent handler calls (overrides QUEUE_CONCURRENCY)")
	workerCmd.Flags().BoolVar(&trace, "trace", false, "Print handler spans to stderr")

	root.GetRoot().AddCommand(workerCmd)
}
