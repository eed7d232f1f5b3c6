package queue

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 2 * time.Second
	DefaultMaxDelay    = 300 * time.Second
)

// Class buckets a failure for retry decisions.
type Class int

const (
	// ClassUnclassified errors are retried up to the attempt ceiling
	ClassUnclassified Class = iota
	// ClassRetryable covers rate limiting, server errors and transport failures
	ClassRetryable
	// ClassTerminal errors are never retried
	ClassTerminal
)

func (c Class) String() string {
	switch c {
	case ClassRetryable:
		return "retryable"
	case ClassTerminal:
		return "terminal"
	default:
		return "unclassified"
	}
}

type statusCoder interface {
	HTTPStatusCode() int
}

// Classify maps an error returned by a handler to a retry class.
func Classify(err error) Class {
	if err == nil {
		return ClassUnclassified
	}
	if errors.Is(err, ErrInvalidPayload) || errors.Is(err, ErrUnsupportedOperation) {
		return ClassTerminal
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		code := sc.HTTPStatusCode()
		switch {
		case code == http.StatusTooManyRequests:
			return ClassRetryable
		case code >= 400 && code < 500:
			return ClassTerminal
		case code >= 500:
			return ClassRetryable
		}
	}

	var te *TransportError
	if errors.As(err, &te) || errors.Is(err, ErrNetworkUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return ClassRetryable
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ClassRetryable
	}
	return ClassUnclassified
}

// RetryPolicy decides whether and when a failed operation runs again.
type RetryPolicy interface {
	// ShouldRetry is called after op.Attempts has been incremented for the failed attempt
	ShouldRetry(op *Operation, err error) bool
	// NextDelay is the wait before the next attempt of op
	NextDelay(op *Operation) time.Duration
}

// BackoffPolicy retries non-terminal failures with capped exponential backoff.
type BackoffPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured
func DefaultRetryPolicy() *BackoffPolicy {
	return &BackoffPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

func (p *BackoffPolicy) ShouldRetry(op *Operation, err error) bool {
	if op.Attempts >= p.maxAttempts() {
		return false
	}
	return Classify(err) != ClassTerminal
}

// NextDelay returns min(base * 2^(attempts-1), max).
func (p *BackoffPolicy) NextDelay(op *Operation) time.Duration {
	base, limit := p.BaseDelay, p.MaxDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if limit <= 0 {
		limit = DefaultMaxDelay
	}
	if base >= limit {
		return limit
	}
	delay := base
	for i := 1; i < op.Attempts; i++ {
		delay *= 2
		if delay >= limit {
			return limit
		}
	}
	return delay
}

func (p *BackoffPolicy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}
