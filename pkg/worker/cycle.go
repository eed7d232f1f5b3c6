package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/pixelvide/syncqueue/pkg/queue"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// startCycle begins a drain cycle unless one is running, in which case the
// request is remembered and served when it ends. Owner goroutine only.
func (p *Processor) startCycle() {
	if !p.online {
		p.setState(StateWaitingForNetwork)
		return
	}
	if p.cycleActive {
		p.rerun = true
		return
	}
	p.stopWake()
	p.cycleActive = true
	p.rerun = false

	ctx, cancel := context.WithCancel(p.baseCtx)
	p.cycleCancel = cancel
	p.setState(StateProcessing)

	gen := p.generation
	p.cycles.Add(1)
	go func() {
		defer p.cycles.Done()
		defer cancel()
		p.runCycle(ctx, gen)
	}()
}

// runCycle dispatches the ready operations batch by batch. It runs on its
// own goroutine and touches queue state only through p.do.
func (p *Processor) runCycle(ctx context.Context, gen uint64) {
	finish := func() { p.submit(p.finishCycle) }

	if lock := p.opts.cycleLock; lock != nil {
		acquired, err := lock.GetLock(ctx, cycleLockName, cycleLockTTL)
		if err != nil {
			p.opts.logger.Error().Err(err).Msg("Error acquiring cycle lock")
			finish()
			return
		}
		if !acquired {
			p.opts.logger.Debug().Msg("Cycle lock held elsewhere, skipping cycle")
			finish()
			return
		}
		defer func() {
			_ = lock.ReleaseLock(context.Background(), cycleLockName)
		}()
	}

	var batches [][]string
	if err := p.do(context.Background(), func() { batches = p.planCycle() }); err != nil {
		return
	}

	for _, ids := range batches {
		if !p.runBatch(ctx, gen, ids) {
			break
		}
	}
	finish()
}

// runBatch dispatches ids under the limiter and waits for their handlers.
// Each operation is claimed only once a permit is held, so until then it
// stays pending and can still be cancelled. It reports whether the cycle
// may go on with the next batch.
func (p *Processor) runBatch(ctx context.Context, gen uint64, ids []string) bool {
	var g errgroup.Group
	defer func() { _ = g.Wait() }()

	for _, id := range ids {
		if err := p.limiter.Wait(ctx); err != nil {
			return false
		}
		var (
			op   *queue.Operation
			halt bool
		)
		if err := p.do(context.Background(), func() { op, halt = p.beginDispatch(gen, id) }); err != nil || halt {
			p.limiter.Signal()
			return false
		}
		if op == nil {
			p.limiter.Signal()
			continue
		}
		g.Go(func() error {
			defer p.limiter.Signal()
			err := p.invoke(ctx, op)
			p.submit(func() { p.applyResult(gen, op.ID, err) })
			return nil
		})
	}
	return true
}

// planCycle snapshots the ready operations into batches of IDs
func (p *Processor) planCycle() [][]string {
	ready := p.q.Ready(p.opts.now())
	p.progress = Progress{Total: len(ready)}
	p.publishProgress()
	return planBatches(ready, p.opts.batchSize)
}

// planBatches groups ready operations by type and splits each group into
// batches of at most size. ready must be in dispatch order; groups are
// ordered by their first, highest-priority member.
func planBatches(ready []*queue.Operation, size int) [][]string {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var order []queue.Type
	groups := make(map[queue.Type][]string)
	for _, op := range ready {
		if _, ok := groups[op.Type]; !ok {
			order = append(order, op.Type)
		}
		groups[op.Type] = append(groups[op.Type], op.ID)
	}

	var batches [][]string
	for _, t := range order {
		ids := groups[t]
		for len(ids) > 0 {
			n := min(size, len(ids))
			batches = append(batches, ids[:n:n])
			ids = ids[n:]
		}
	}
	return batches
}

// beginDispatch marks one operation as processing and returns a copy for
// its handler. A nil operation means it was cancelled or rescheduled since
// the cycle was planned; halt means the link dropped or the queue was
// cleared, and nothing more may be dispatched.
func (p *Processor) beginDispatch(gen uint64, id string) (dispatch *queue.Operation, halt bool) {
	if gen != p.generation || !p.online {
		return nil, true
	}
	defer p.publishProgress()

	now := p.opts.now()
	op, ok := p.q.Get(id)
	if !ok || !op.Ready(now) {
		p.progress.Total--
		return nil, false
	}
	if err := op.Begin(now); err != nil {
		p.opts.logger.Error().Err(err).Str("operation_id", id).Msg("Could not dispatch operation")
		p.progress.Total--
		return nil, false
	}
	p.update(p.baseCtx, op)
	p.emitOp(EventDispatched, op, nil)
	return op.Clone(), false
}

// invoke runs the registered handler for op inside a span, with a logger
// carrying the operation's fields in ctx.
func (p *Processor) invoke(ctx context.Context, op *queue.Operation) (err error) {
	handler, err := p.registry.Handler(op.Type)
	if err != nil {
		return err
	}

	ctx, span := p.opts.tracer.Start(ctx, "syncqueue.process", trace.WithAttributes(
		attribute.String("operation.id", op.ID),
		attribute.String("operation.type", string(op.Type)),
		attribute.Int("operation.attempt", op.Attempts),
	))
	defer span.End()

	logger := p.opts.logger.With().
		Str("operation_id", op.ID).
		Str("operation_type", string(op.Type)).
		Int("attempt", op.Attempts).
		Logger()
	ctx = logger.WithContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}()
	return handler.Process(ctx, op)
}

// applyResult reconciles a handler outcome with the queue and the store
func (p *Processor) applyResult(gen uint64, id string, err error) {
	if gen != p.generation {
		p.opts.logger.Debug().Str("operation_id", id).Msg("Discarding result for cleared operation")
		return
	}
	op, ok := p.q.Get(id)
	if !ok || op.Status != queue.StatusProcessing {
		return
	}
	p.progress.Completed++
	p.publishProgress()

	logger := p.opts.logger.With().
		Str("operation_id", op.ID).
		Str("operation_type", string(op.Type)).
		Int("attempt", op.Attempts).
		Logger()

	if err == nil {
		_ = op.Complete()
		p.q.Remove(op.ID)
		p.remove(p.baseCtx, op.ID)
		logger.Debug().Msg("Operation completed")
		p.emitOp(EventCompleted, op, nil)
		return
	}

	if p.opts.policy.ShouldRetry(op, err) {
		delay := p.opts.policy.NextDelay(op)
		_ = op.Reschedule(err, p.opts.now().Add(delay))
		p.update(p.baseCtx, op)
		logger.Warn().Err(err).Dur("delay", delay).Msg("Operation failed, retry scheduled")
		p.emitOp(EventRetrying, op, err)
		return
	}

	_ = op.Fail(err)
	if mErr := p.q.MarkFailed(op.ID); mErr != nil {
		logger.Error().Err(mErr).Msg("Could not move operation to failed")
	}
	p.update(p.baseCtx, op)
	logger.Error().Err(err).Str("class", queue.Classify(err).String()).Msg("Operation failed permanently")
	if fl := p.opts.failedLogger; fl != nil {
		if lErr := fl.Log(p.baseCtx, op, err.Error()); lErr != nil {
			logger.Error().Err(lErr).Msg("Error logging failed operation")
		}
	}
	p.emitOp(EventFailed, op, err)
}

// finishCycle prunes expired failures, settles the state and arms the
// retry wake-up or a requested re-run.
func (p *Processor) finishCycle() {
	p.cycleActive = false
	p.cycleCancel = nil

	cutoff := p.opts.now().Add(-p.opts.retention)
	for _, op := range p.q.PruneFailed(cutoff) {
		p.remove(p.baseCtx, op.ID)
		p.emitOp(EventPruned, op, nil)
	}

	if !p.online {
		p.setState(StateWaitingForNetwork)
	} else {
		p.setState(p.restingState())
	}
	p.emit(Event{Kind: EventCycleFinished, State: p.state, Progress: p.progress})
	p.opts.logger.Debug().
		Int("completed", p.progress.Completed).
		Int("total", p.progress.Total).
		Int("pending", p.q.Len()).
		Msg("Cycle finished")

	if p.rerun && p.online {
		p.startCycle()
		return
	}
	p.rerun = false
	if p.online {
		p.scheduleWake()
	}
}

// scheduleWake arms a one-shot drain at the earliest scheduled retry
func (p *Processor) scheduleWake() {
	p.stopWake()
	next, ok := p.q.NextRetry()
	if !ok {
		return
	}
	delay := max(next.Sub(p.opts.now()), 0)
	p.wake = time.AfterFunc(delay, p.ProcessQueue)
}

func (p *Processor) stopWake() {
	if p.wake != nil {
		p.wake.Stop()
		p.wake = nil
	}
}
