// Package retry implements the bounded exponential backoff discipline shared
// by the upstream price fetch and the Kafka connect paths.
package retry

import (
	"context"
	"fmt"
	"time"
)

type Action int

const (
	Stop  Action = iota // permanent error, abort immediately
	Retry               // transient error, use normal backoff
	After               // rate-limited, upstream dictated the delay
)

type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration // cap for the doubling schedule
	OnRetry      func(attempt int, err error, delay time.Duration)
}

// Classify inspects an error and decides how to proceed. For After, the
// returned duration replaces the computed backoff for that attempt only.
type Classify func(err error) (Action, time.Duration)

type Operation[T any] func() (T, error)
type VoidOperation func() error

// Do runs op up to p.MaxAttempts times. The delay between attempts starts at
// p.InitialDelay and doubles, capped at p.MaxDelay. Once started, the budget
// runs to completion or success; only ctx cancellation interrupts a wait.
func Do[T any](ctx context.Context, p Policy, classify Classify, op Operation[T]) (T, error) {
	delay := p.InitialDelay

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		val, err := op()
		if err == nil {
			return val, nil
		}

		action, retryAfter := classify(err)
		if action == Stop {
			var zero T
			return zero, &PermanentError{Err: err}
		}

		if attempt == p.MaxAttempts {
			var zero T
			return zero, fmt.Errorf("failed after %d attempts: %w", p.MaxAttempts, err)
		}

		wait := delay
		if action == After && retryAfter > 0 {
			wait = retryAfter
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}

		select {
		case <-time.After(wait):
			delay *= 2
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		case <-ctx.Done():
			var zero T
			return zero, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}

	panic("unreachable: MaxAttempts must be >= 1")
}

func DoVoid(ctx context.Context, p Policy, classify Classify, op VoidOperation) error {
	_, err := Do(ctx, p, classify, func() (struct{}, error) { return struct{}{}, op() })
	return err
}

// Transient classifies every error as retryable with the computed backoff.
func Transient(error) (Action, time.Duration) { return Retry, 0 }

type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }
