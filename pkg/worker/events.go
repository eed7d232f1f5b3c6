package worker

import (
	"time"

	"github.com/pixelvide/syncqueue/pkg/queue"
)

// State is the processor's drain state
type State string

const (
	StateIdle              State = "idle"
	StateProcessing        State = "processing"
	StateWaitingForNetwork State = "waitingForNetwork"
	StatePartial           State = "partial"
)

// Progress reports the current cycle. Completed counts dispatched
// operations whose outcome is known, whatever it was.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Fraction returns Completed/Total, or 1 when the cycle has nothing to do
func (p Progress) Fraction() float64 {
	if p.Total == 0 {
		return 1
	}
	return float64(p.Completed) / float64(p.Total)
}

// EventKind identifies an Event
type EventKind string

const (
	EventEnqueued      EventKind = "enqueued"
	EventCancelled     EventKind = "cancelled"
	EventCleared       EventKind = "cleared"
	EventRequeued      EventKind = "requeued"
	EventDispatched    EventKind = "dispatched"
	EventCompleted     EventKind = "completed"
	EventRetrying      EventKind = "retrying"
	EventFailed        EventKind = "failed"
	EventPruned        EventKind = "pruned"
	EventStateChanged  EventKind = "state_changed"
	EventCycleFinished EventKind = "cycle_finished"
	EventStoreError    EventKind = "store_error"
)

// Event describes a change observed by subscribers.
// Operation is a copy and may be nil.
type Event struct {
	Kind      EventKind
	Time      time.Time
	Operation *queue.Operation
	State     State
	Progress  Progress
	Err       error
}

const subscriberBuffer = 128

// Subscribe returns a channel of events and a function that ends the
// subscription. Events are dropped for subscribers that fall behind.
func (p *Processor) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	if p.subsClosed {
		close(ch)
		p.mu.Unlock()
		return ch, func() {}
	}
	p.subs[id] = ch
	p.mu.Unlock()

	return ch, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if c, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(c)
		}
	}
}

func (p *Processor) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = p.opts.now()
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, ch := range p.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (p *Processor) emitOp(kind EventKind, op *queue.Operation, err error) {
	p.emit(Event{Kind: kind, Operation: op.Clone(), Err: err, State: p.state, Progress: p.progress})
}

func (p *Processor) closeSubscribers() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.subs {
		delete(p.subs, id)
		close(ch)
	}
	p.subsClosed = true
}
