// Package syncqueue provides a durable offline operation queue for a mobile health client.
//
// Operations (uploads, profile updates, deletions...) are persisted as soon as they are
// enqueued and drained in priority order whenever the network is reachable. Failed
// calls are retried with exponential backoff and jitter; terminal failures are kept
// until they are retried or pruned.
//
// Key subpackages:
//
//	github.com/pixelvide/syncqueue/pkg/queue         - Operation model, in-memory queue, retry policy and handler registry
//	github.com/pixelvide/syncqueue/pkg/worker        - Processor: sync cycles, batching, events and progress
//	github.com/pixelvide/syncqueue/pkg/driver        - Stores (memory, file, sqlite/mysql/postgres, redis) and the SQS forwarder
//	github.com/pixelvide/syncqueue/pkg/connectivity  - Reachability monitor
//	github.com/pixelvide/syncqueue/pkg/schedule      - Periodic drain kernel and cycle locks
//	github.com/pixelvide/syncqueue/pkg/config        - Configuration structs
//
// Example Usage:
//
//	package main
//
//	import (
//		"context"
//		"github.com/pixelvide/syncqueue/pkg/config"
//		"github.com/pixelvide/syncqueue/pkg/connectivity"
//		"github.com/pixelvide/syncqueue/pkg/driver"
//		"github.com/pixelvide/syncqueue/pkg/queue"
//		"github.com/pixelvide/syncqueue/pkg/worker"
//	)
//
//	func Upload(ctx context.Context, op *queue.Operation) error {
//		// Call the backend...
//		return nil
//	}
//
//	func main() {
//		ctx := context.Background()
//		cfg, _ := config.Load()
//		store, _ := driver.Open(ctx, *cfg)
//		defer store.Close()
//
//		registry := queue.NewRegistry()
//		registry.RegisterFunc(queue.TypeDataUpload, Upload)
//
//		p := worker.New(store, registry, worker.WithMonitor(connectivity.NewMonitor(true)))
//		_ = p.Start(ctx)
//		defer p.Stop()
//
//		_ = p.Enqueue(ctx, queue.NewOperation(queue.TypeDataUpload, queue.MustPayload(map[string]int{"steps": 4200}), queue.PriorityHigh))
//	}
package syncqueue
