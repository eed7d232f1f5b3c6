package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pixelvide/syncqueue/pkg/limiter"
	"github.com/pixelvide/syncqueue/pkg/queue"
	"github.com/pixelvide/syncqueue/pkg/schedule"
)

// ErrNotRunning is returned when the processor is used before Start or after Stop
var ErrNotRunning = errors.New("processor is not running")

const (
	lifecycleNew int32 = iota
	lifecycleRunning
	lifecycleStopped
)

// Processor drains the operation queue against the registered handlers.
//
// All queue state is owned by a single goroutine that runs closures received
// on cmds. Handler calls run on separate goroutines bounded by the limiter
// and report their results back through the same channel.
type Processor struct {
	store    queue.Store
	registry *queue.Registry
	opts     options
	limiter  *limiter.Limiter

	lifecycle atomic.Int32
	cmds      chan func()
	done      chan struct{}
	cancel    context.CancelFunc
	cycles    sync.WaitGroup
	kernel    *schedule.Kernel
	unwatch   func()

	// owner goroutine state
	q           *queue.Queue
	online      bool
	state       State
	progress    Progress
	cycleActive bool
	rerun       bool
	generation  uint64
	cycleCancel context.CancelFunc
	wake        *time.Timer
	baseCtx     context.Context

	// observable snapshot and subscribers
	mu           sync.RWMutex
	stateView    State
	progressView Progress
	subs         map[int]chan Event
	nextSub      int
	subsClosed   bool
}

// New creates a processor. It does nothing until Start.
func New(store queue.Store, registry *queue.Registry, opts ...Option) *Processor {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if registry == nil {
		registry = queue.NewRegistry()
	}
	return &Processor{
		store:     store,
		registry:  registry,
		opts:      o,
		limiter:   limiter.New(o.concurrency),
		cmds:      make(chan func()),
		done:      make(chan struct{}),
		q:         queue.NewQueue(),
		online:    true,
		state:     StateIdle,
		stateView: StateIdle,
		subs:      make(map[int]chan Event),
	}
}

// Start loads the stored operations and begins processing. ctx bounds the
// lifetime of the processor. A store that cannot be read is fatal.
func (p *Processor) Start(ctx context.Context) error {
	if !p.lifecycle.CompareAndSwap(lifecycleNew, lifecycleRunning) {
		return errors.New("processor already started")
	}

	ops, err := p.store.LoadAll(ctx)
	if err != nil {
		p.lifecycle.Store(lifecycleStopped)
		close(p.done)
		if !errors.Is(err, queue.ErrPersistence) {
			err = fmt.Errorf("%w: %v", queue.ErrPersistence, err)
		}
		return fmt.Errorf("start processor: %w", err)
	}
	p.q = queue.Restore(ops)
	stats := p.q.Stats()
	p.opts.logger.Info().
		Int("pending", stats.Pending).
		Int("failed", stats.Failed).
		Msg("Restored operation queue")

	runCtx, cancel := context.WithCancel(ctx)
	p.baseCtx = runCtx
	p.cancel = cancel

	if m := p.opts.monitor; m != nil {
		p.online, p.unwatch = m.Watch(func(reachable bool) {
			p.submit(func() { p.connectivityChanged(reachable) })
		})
	}
	if !p.online {
		p.setState(StateWaitingForNetwork)
	} else if stats.Pending > 0 {
		p.setState(StatePartial)
	}

	go p.loop(runCtx)

	if p.opts.drainInterval > 0 {
		p.kernel = schedule.NewKernel(nil)
		p.kernel.SetLogger(p.opts.logger)
		if err := p.kernel.Every(p.opts.drainInterval, p.ProcessQueue, schedule.WithoutOverlapping()); err != nil {
			p.Stop()
			return fmt.Errorf("schedule drain: %w", err)
		}
		p.kernel.Start()
	}

	if stats.Pending > 0 {
		p.ProcessQueue()
	}
	return nil
}

// Stop ends processing. Handlers in flight are cancelled; their operations
// stay in the store as processing and are retried after the next Start.
func (p *Processor) Stop() {
	if !p.lifecycle.CompareAndSwap(lifecycleRunning, lifecycleStopped) {
		return
	}
	if p.kernel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		p.kernel.Stop(ctx)
		cancel()
	}
	if p.unwatch != nil {
		p.unwatch()
	}
	p.cancel()
	<-p.done
	p.cycles.Wait()
	if p.wake != nil {
		p.wake.Stop()
	}
	p.closeSubscribers()
	p.opts.logger.Info().Msg("Processor stopped")
}

func (p *Processor) loop(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-p.cmds:
			fn()
		}
	}
}

// do runs fn on the owner goroutine and waits for it
func (p *Processor) do(ctx context.Context, fn func()) error {
	if p.lifecycle.Load() != lifecycleRunning {
		return ErrNotRunning
	}
	finished := make(chan struct{})
	select {
	case p.cmds <- func() { defer close(finished); fn() }:
	case <-p.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// submit hands fn to the owner goroutine without waiting for it to run
func (p *Processor) submit(fn func()) bool {
	if p.lifecycle.Load() != lifecycleRunning {
		return false
	}
	select {
	case p.cmds <- fn:
		return true
	case <-p.done:
		return false
	}
}

// Enqueue adds an operation and persists it. A store failure is logged and
// the operation is still processed from memory.
func (p *Processor) Enqueue(ctx context.Context, op *queue.Operation) error {
	return p.EnqueueBatch(ctx, []*queue.Operation{op})
}

// EnqueueBatch adds ops atomically; within a priority band they keep the
// order given.
func (p *Processor) EnqueueBatch(ctx context.Context, ops []*queue.Operation) error {
	owned := make([]*queue.Operation, 0, len(ops))
	for _, op := range ops {
		if err := validate(op); err != nil {
			return err
		}
		c := op.Clone()
		c.Status = queue.StatusPending
		if c.Timestamp.IsZero() {
			c.Timestamp = p.opts.now().UTC()
		}
		owned = append(owned, c)
	}
	if len(owned) == 0 {
		return nil
	}

	var addErr error
	err := p.do(ctx, func() {
		if addErr = p.q.AddBatch(owned); addErr != nil {
			return
		}
		for _, op := range owned {
			p.persist(ctx, op)
			p.emitOp(EventEnqueued, op, nil)
		}
		if p.online {
			p.startCycle()
		}
	})
	if err != nil {
		return err
	}
	return addErr
}

func validate(op *queue.Operation) error {
	if op == nil || op.ID == "" {
		return fmt.Errorf("%w: operation without id", queue.ErrInvalidPayload)
	}
	if !op.Type.Valid() {
		return fmt.Errorf("%w: %q", queue.ErrUnsupportedOperation, op.Type)
	}
	if op.Status != "" && op.Status != queue.StatusPending {
		return fmt.Errorf("%w: enqueue operation %s in status %s", queue.ErrInvalidTransition, op.ID, op.Status)
	}
	return nil
}

// Cancel removes a pending or failed operation. Unknown and already
// completed IDs are ignored. Dispatched operations run to completion and
// cannot be cancelled.
func (p *Processor) Cancel(ctx context.Context, id string) error {
	var result error
	err := p.do(ctx, func() {
		op, ok := p.q.Get(id)
		if !ok {
			return
		}
		if op.Status == queue.StatusProcessing {
			result = fmt.Errorf("%w: operation %s is in flight", queue.ErrInvalidTransition, id)
			return
		}
		p.q.Remove(id)
		p.remove(ctx, id)
		p.emitOp(EventCancelled, op, nil)
	})
	if err != nil {
		return err
	}
	return result
}

// ClearAll cancels the running cycle and discards every operation, in
// memory and in the store. Results of cancelled handlers are ignored.
func (p *Processor) ClearAll(ctx context.Context) error {
	var result error
	err := p.do(ctx, func() {
		if p.cycleCancel != nil {
			p.cycleCancel()
		}
		p.generation++
		p.stopWake()
		removed := p.q.Clear()
		if err := p.store.Clear(ctx); err != nil {
			p.storeFailed(err, nil)
			result = err
		}
		p.progress = Progress{}
		p.publishProgress()
		if p.online {
			p.setState(StateIdle)
		}
		p.emit(Event{Kind: EventCleared, State: p.state})
		p.opts.logger.Info().Int("removed", len(removed)).Msg("Cleared operation queue")
	})
	if err != nil {
		return err
	}
	return result
}

// RetryFailed returns every failed operation to pending with its attempts
// reset and starts a cycle. It reports how many were requeued.
func (p *Processor) RetryFailed(ctx context.Context) (int, error) {
	n := 0
	err := p.do(ctx, func() {
		for _, op := range p.q.Failed() {
			if _, err := p.q.Reset(op.ID); err != nil {
				p.opts.logger.Error().Err(err).Str("operation_id", op.ID).Msg("Could not requeue failed operation")
				continue
			}
			p.update(ctx, op)
			p.emitOp(EventRequeued, op, nil)
			n++
		}
		if n > 0 {
			p.startCycle()
		}
	})
	return n, err
}

// Retry returns one failed operation to pending and starts a cycle
func (p *Processor) Retry(ctx context.Context, id string) error {
	var result error
	err := p.do(ctx, func() {
		op, err := p.q.Reset(id)
		if err != nil {
			result = err
			return
		}
		p.update(ctx, op)
		p.emitOp(EventRequeued, op, nil)
		p.startCycle()
	})
	if err != nil {
		return err
	}
	return result
}

// ProcessQueue requests a drain cycle. It returns immediately; a request
// made while a cycle runs is honoured when that cycle ends.
func (p *Processor) ProcessQueue() {
	if !p.submit(p.startCycle) {
		p.opts.logger.Debug().Msg("ProcessQueue ignored, processor not running")
	}
}

// Stats summarises the queue
func (p *Processor) Stats(ctx context.Context) (queue.Statistics, error) {
	var stats queue.Statistics
	err := p.do(ctx, func() { stats = p.q.Stats() })
	return stats, err
}

// Pending returns copies of the pending operations in dispatch order
func (p *Processor) Pending(ctx context.Context) ([]*queue.Operation, error) {
	var ops []*queue.Operation
	err := p.do(ctx, func() { ops = cloneAll(p.q.Pending()) })
	return ops, err
}

// FailedOperations returns copies of the failed operations
func (p *Processor) FailedOperations(ctx context.Context) ([]*queue.Operation, error) {
	var ops []*queue.Operation
	err := p.do(ctx, func() { ops = cloneAll(p.q.Failed()) })
	return ops, err
}

// Status returns the current drain state
func (p *Processor) Status() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stateView
}

// Progress returns the progress of the current or last cycle
func (p *Processor) Progress() Progress {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.progressView
}

func cloneAll(ops []*queue.Operation) []*queue.Operation {
	out := make([]*queue.Operation, 0, len(ops))
	for _, op := range ops {
		out = append(out, op.Clone())
	}
	return out
}

func (p *Processor) setState(s State) {
	if p.state == s {
		return
	}
	prev := p.state
	p.state = s
	p.mu.Lock()
	p.stateView = s
	p.mu.Unlock()
	p.opts.logger.Debug().Str("from", string(prev)).Str("to", string(s)).Msg("Processor state changed")
	p.emit(Event{Kind: EventStateChanged, State: s, Progress: p.progress})
}

func (p *Processor) publishProgress() {
	p.mu.Lock()
	p.progressView = p.progress
	p.mu.Unlock()
}

func (p *Processor) connectivityChanged(reachable bool) {
	if p.online == reachable {
		return
	}
	p.online = reachable
	if !reachable {
		p.opts.logger.Info().Msg("Backend unreachable, suspending dispatch")
		p.stopWake()
		p.setState(StateWaitingForNetwork)
		return
	}
	p.opts.logger.Info().Msg("Backend reachable, draining queue")
	if !p.cycleActive {
		p.setState(p.restingState())
	}
	p.startCycle()
}

// restingState is the state of an online processor with no cycle running
func (p *Processor) restingState() State {
	if p.q.Len() == 0 {
		return StateIdle
	}
	return StatePartial
}

func (p *Processor) persist(ctx context.Context, op *queue.Operation) {
	if err := p.store.Persist(ctx, op); err != nil {
		p.storeFailed(err, op)
	}
}

func (p *Processor) update(ctx context.Context, op *queue.Operation) {
	if err := p.store.Update(ctx, op); err != nil {
		p.storeFailed(err, op)
	}
}

func (p *Processor) remove(ctx context.Context, id string) {
	if err := p.store.Remove(ctx, id); err != nil {
		p.storeFailed(err, nil)
	}
}

func (p *Processor) storeFailed(err error, op *queue.Operation) {
	ev := p.opts.logger.Error().Err(err)
	if op != nil {
		ev = ev.Str("operation_id", op.ID)
	}
	ev.Msg("Store write failed")
	p.emit(Event{Kind: EventStoreError, Operation: op.Clone(), Err: err, State: p.state})
}
