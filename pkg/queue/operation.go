package queue

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of deferred work and selects its handler
type Type string

const (
	TypeDataUpload      Type = "data_upload"
	TypeRemoteRequest   Type = "remote_request"
	TypeProfileUpdate   Type = "profile_update"
	TypeBatchSubmission Type = "batch_submission"
	TypeGenericSync     Type = "generic_sync"
	TypeDelete          Type = "delete"
)

// Types lists every operation kind the engine accepts.
var Types = []Type{
	TypeDataUpload,
	TypeRemoteRequest,
	TypeProfileUpdate,
	TypeBatchSubmission,
	TypeGenericSync,
	TypeDelete,
}

// Valid reports whether t is one of the known operation kinds
func (t Type) Valid() bool {
	return slices.Contains(Types, t)
}

// ParseType converts a string (as used in config and CLI flags) to a Type
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedOperation, s)
	}
	return t, nil
}

// Priority orders operations; higher values run first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority converts a priority name to a Priority
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow, nil
	case "", "normal":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	}
	return PriorityNormal, fmt.Errorf("unknown priority %q", s)
}

// Status is the lifecycle state of an operation
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no automatic transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Operation is a unit of deferred work.
//
// Operations are created with NewOperation and mutated only by the processor
// that owns them. Payload contents are never interpreted by the engine.
type Operation struct {
	ID            string     `json:"id"`
	Type          Type       `json:"type"`
	Payload       Payload    `json:"payload"`
	Priority      Priority   `json:"priority"`
	Timestamp     time.Time  `json:"timestamp"`
	Status        Status     `json:"status"`
	Attempts      int        `json:"attempts"`
	LastError     string     `json:"last_error,omitempty"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`
	EstimatedSize int64      `json:"estimated_size"`
}

// NewOperation creates a pending operation with a fresh ID
func NewOperation(typ Type, payload Payload, priority Priority) *Operation {
	return &Operation{
		ID:            uuid.New().String(),
		Type:          typ,
		Payload:       payload,
		Priority:      priority,
		Timestamp:     time.Now().UTC(),
		Status:        StatusPending,
		EstimatedSize: payload.Size(),
	}
}

// Clone returns a deep copy of the operation.
func (o *Operation) Clone() *Operation {
	if o == nil {
		return nil
	}
	c := *o
	c.Payload = o.Payload.clone()
	if o.LastAttemptAt != nil {
		t := *o.LastAttemptAt
		c.LastAttemptAt = &t
	}
	if o.NextRetryAt != nil {
		t := *o.NextRetryAt
		c.NextRetryAt = &t
	}
	return &c
}

// Ready reports whether a pending operation may be dispatched at now
func (o *Operation) Ready(now time.Time) bool {
	if o.Status != StatusPending {
		return false
	}
	return o.NextRetryAt == nil || !o.NextRetryAt.After(now)
}

// Begin moves a pending operation to processing and counts the attempt.
func (o *Operation) Begin(now time.Time) error {
	if o.Status != StatusPending {
		return o.transitionError(StatusProcessing)
	}
	o.Status = StatusProcessing
	o.Attempts++
	o.LastAttemptAt = &now
	o.NextRetryAt = nil
	return nil
}

// Complete marks a processing operation as completed
func (o *Operation) Complete() error {
	if o.Status != StatusProcessing {
		return o.transitionError(StatusCompleted)
	}
	o.Status = StatusCompleted
	o.LastError = ""
	return nil
}

// Reschedule returns a processing operation to pending until next.
func (o *Operation) Reschedule(cause error, next time.Time) error {
	if o.Status != StatusProcessing {
		return o.transitionError(StatusPending)
	}
	o.Status = StatusPending
	o.LastError = errorText(cause)
	o.NextRetryAt = &next
	return nil
}

// Fail marks a processing operation as failed
func (o *Operation) Fail(cause error) error {
	if o.Status != StatusProcessing {
		return o.transitionError(StatusFailed)
	}
	o.Status = StatusFailed
	o.LastError = errorText(cause)
	o.NextRetryAt = nil
	return nil
}

// Reset puts a failed operation back to pending with a zero attempt count.
// It is the only transition that lowers Attempts.
func (o *Operation) Reset() error {
	if o.Status != StatusFailed {
		return o.transitionError(StatusPending)
	}
	o.Status = StatusPending
	o.Attempts = 0
	o.LastError = ""
	o.NextRetryAt = nil
	return nil
}

func (o *Operation) transitionError(to Status) error {
	return fmt.Errorf("%w: operation %s %s -> %s", ErrInvalidTransition, o.ID, o.Status, to)
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// SortOperations orders ops by priority (highest first), then by timestamp.
// The sort is stable, so equal keys keep their insertion order.
func SortOperations(ops []*Operation) {
	slices.SortStableFunc(ops, func(a, b *Operation) int {
		if a.Priority != b.Priority {
			return int(b.Priority) - int(a.Priority)
		}
		return a.Timestamp.Compare(b.Timestamp)
	})
}

// SortByPriority orders ops by priority only, keeping insertion order within a band.
func SortByPriority(ops []*Operation) {
	slices.SortStableFunc(ops, func(a, b *Operation) int {
		return int(b.Priority) - int(a.Priority)
	})
}
