package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrRetriesExhausted is returned once every attempt has failed.
var ErrRetriesExhausted = errors.New("embedding retries exhausted")

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 2 * time.Second
	defaultMaxBackoff     = 30 * time.Second
)

// RetryState is a state of the retry machine.
type RetryState int

const (
	StateAttempt RetryState = iota
	StateWait
	StateRetry
	StateExhausted
)

func (s RetryState) String() string {
	switch s {
	case StateAttempt:
		return "attempt"
	case StateWait:
		return "wait"
	case StateRetry:
		return "retry"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// RetryPolicy holds retry configuration.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy returns three attempts with a 2s doubling backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    defaultMaxAttempts,
		InitialBackoff: defaultInitialBackoff,
		MaxBackoff:     defaultMaxBackoff,
	}
}

// Backoff returns the wait after the given failed attempt (0-based):
// InitialBackoff * 2^attempt, capped at MaxBackoff.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	backoff := float64(p.InitialBackoff) * math.Pow(2, float64(attempt))
	if p.MaxBackoff > 0 && backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}
	return time.Duration(backoff)
}

// retryable reports whether err should be attempted again.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return true
}

// Retrier runs an operation through the attempt/wait/retry/exhausted machine.
type Retrier struct {
	policy RetryPolicy

	// Sleep waits for d or until ctx is done. Replaced in tests.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called before each wait.
	OnRetry func(attempt int, wait time.Duration, err error)
	// OnTransition observes every state change.
	OnTransition func(from, to RetryState)
}

// NewRetrier creates a retrier. Zero policy fields take the defaults.
func NewRetrier(policy RetryPolicy) *Retrier {
	def := DefaultRetryPolicy()
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = def.InitialBackoff
	}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = def.MaxBackoff
	}
	return &Retrier{policy: policy, Sleep: sleepContext}
}

// Policy returns the effective policy.
func (r *Retrier) Policy() RetryPolicy {
	return r.policy
}

// Do calls op until it succeeds, fails with a non-retryable error, the context
// ends, or attempts run out. Exhaustion wraps both ErrRetriesExhausted and the
// last error.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	state := StateAttempt
	attempt := 0
	var lastErr error

	move := func(to RetryState) {
		if r.OnTransition != nil {
			r.OnTransition(state, to)
		}
		state = to
	}

	for {
		switch state {
		case StateAttempt:
			if err := ctx.Err(); err != nil {
				return err
			}
			attempt++
			lastErr = op(ctx)
			if lastErr == nil {
				return nil
			}
			if !retryable(lastErr) {
				return lastErr
			}
			if attempt >= r.policy.MaxAttempts {
				move(StateExhausted)
			} else {
				move(StateWait)
			}

		case StateWait:
			wait := r.policy.Backoff(attempt - 1)
			if r.OnRetry != nil {
				r.OnRetry(attempt, wait, lastErr)
			}
			if err := r.Sleep(ctx, wait); err != nil {
				return err
			}
			move(StateRetry)

		case StateRetry:
			move(StateAttempt)

		case StateExhausted:
			return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, lastErr)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
