package embedding

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	waits       []time.Duration
	transitions []string
}

func newTestRetrier(rec *recorder) *Retrier {
	r := NewRetrier(RetryPolicy{})
	r.Sleep = func(ctx context.Context, d time.Duration) error {
		rec.waits = append(rec.waits, d)
		return ctx.Err()
	}
	r.OnTransition = func(from, to RetryState) {
		rec.transitions = append(rec.transitions, from.String()+"->"+to.String())
	}
	return r
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 2*time.Second, p.Backoff(0))
	assert.Equal(t, 4*time.Second, p.Backoff(1))
	assert.Equal(t, 8*time.Second, p.Backoff(2))
	assert.Equal(t, 30*time.Second, p.Backoff(10))
}

func TestRetrier_SucceedsAfterFailures(t *testing.T) {
	rec := &recorder{}
	r := newTestRetrier(rec)

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, rec.waits)
	assert.Equal(t, []string{
		"attempt->wait", "wait->retry", "retry->attempt",
		"attempt->wait", "wait->retry", "retry->attempt",
	}, rec.transitions)
}

func TestRetrier_Exhausted(t *testing.T) {
	rec := &recorder{}
	r := newTestRetrier(rec)
	cause := &APIError{StatusCode: http.StatusServiceUnavailable, Message: "down"}

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return cause
	})
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	var apiErr *APIError
	assert.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 3, calls)
	assert.Len(t, rec.waits, 2, "no wait after the last attempt")
	assert.Equal(t, "attempt->exhausted", rec.transitions[len(rec.transitions)-1])
}

func TestRetrier_NonRetryableStopsImmediately(t *testing.T) {
	rec := &recorder{}
	r := newTestRetrier(rec)

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &APIError{StatusCode: http.StatusUnauthorized, Message: "bad key"}
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.waits)
}

func TestRetrier_CancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRetrier(RetryPolicy{})
	r.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	calls := 0
	err := r.Do(ctx, func(ctx context.Context) error {
		calls++
		return errors.New("timeout")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetrier_RealSleepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := sleepContext(ctx, time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}
