package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/example/puma/internal/errs"
)

// ErrRetryExhausted is wrapped into the fatal error returned once every
// attempt failed with a transient error.
var ErrRetryExhausted = errors.New("database is locked (retry exhausted)")

// RetryPolicy is a bounded exponential backoff.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// OnRetry is called before sleeping after a transient failure.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultRetryPolicy returns 30 attempts starting at 25ms, capped at 1s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  30,
		BaseDelay: 25 * time.Millisecond,
		MaxDelay:  time.Second,
	}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 25 * time.Millisecond
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = time.Second
	}
	if attempt > 16 {
		return maxDelay
	}
	d := base << uint(attempt)
	if d <= 0 || d > maxDelay {
		return maxDelay
	}
	return d
}

// Retry runs fn until it succeeds, fails with an error transient does not
// recognise, or the policy runs out of attempts. Non-transient errors are
// returned unchanged; exhaustion and cancellation are fatal storage errors.
func Retry(ctx context.Context, p RetryPolicy, transient func(error) bool, fn func(context.Context) error) error {
	_, err := RetryValue(ctx, p, transient, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryValue is Retry for functions that produce a value.
func RetryValue[T any](ctx context.Context, p RetryPolicy, transient func(error) bool, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for i := 0; i < attempts; i++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if !transient(err) {
			return zero, err
		}
		last = err
		if i == attempts-1 {
			break
		}

		d := p.delay(i)
		if p.OnRetry != nil {
			p.OnRetry(i+1, d, err)
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, errs.Fatal("retry", ctx.Err())
		case <-timer.C:
		}
	}

	return zero, errs.Fatal("retry", fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, attempts, last))
}

// IsLocked reports whether err is SQLite lock contention.
func IsLocked(err error) bool {
	if err == nil {
		return false
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "database is busy")
}
