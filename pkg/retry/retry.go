package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"conductor/pkg/errors"
)

// Classifier decides whether a failed attempt is worth repeating.
// Returning false makes the error final: it propagates immediately with no
// further attempts and no backoff sleep.
type Classifier func(error) bool

// Policy executes fallible operations against remote dependencies with
// bounded exponential backoff.
//
// MaxAttempts counts TOTAL invocations: MaxAttempts=3 means one initial try
// plus at most two retries. This convention is held across the codebase and
// its tests.
type Policy struct {
	MaxAttempts int           // total invocations, default 3
	BaseDelay   time.Duration // first backoff, default 200ms
	MaxDelay    time.Duration // backoff cap, default 30s
	Multiplier  float64       // backoff growth factor, default 2.0
	Jitter      float64       // 0..1, fraction of the delay added as random jitter
	Classify    Classifier    // nil means errors.IsRetryable
}

// ExhaustedError is the terminal wrapper returned once the retry budget is
// spent. It carries the attempt count and the last underlying error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

// Error implements the error interface
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap returns the last underlying error
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// DefaultPolicy returns a policy with the standard remote-call settings.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 200 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Multiplier <= 1 {
		p.Multiplier = 2.0
	}
	if p.Classify == nil {
		p.Classify = errors.IsRetryable
	}
	return p
}

// Execute invokes op until it succeeds, fails with a non-retryable error,
// or the attempt budget is exhausted. The backoff sleep selects on
// ctx.Done, so a long retry loop can be aborted without waiting out the
// current delay.
func (p Policy) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	p = p.withDefaults()

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if !p.Classify(lastErr) {
			return lastErr
		}

		// Last attempt: no point sleeping before giving up
		if attempt == p.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.backoff(attempt)):
		}
	}

	return &ExhaustedError{Attempts: p.MaxAttempts, Err: lastErr}
}

// backoff returns the delay before the retry following the given
// zero-based attempt: BaseDelay * Multiplier^attempt, capped at MaxDelay.
func (p Policy) backoff(attempt int) time.Duration {
	delay := float64(p.BaseDelay)
	for i := 0; i < attempt; i++ {
		delay *= p.Multiplier
		if delay >= float64(p.MaxDelay) {
			delay = float64(p.MaxDelay)
			break
		}
	}

	if p.Jitter > 0 && p.Jitter <= 1 {
		delay += rand.Float64() * p.Jitter * delay
		if delay > float64(p.MaxDelay) {
			delay = float64(p.MaxDelay)
		}
	}

	return time.Duration(delay)
}
