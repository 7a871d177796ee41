package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/puma/internal/errs"
)

var errTransient = errors.New("database is locked")

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{Attempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	var retried []int
	p := fastPolicy(5)
	p.OnRetry = func(attempt int, _ time.Duration, _ error) { retried = append(retried, attempt) }

	err := Retry(context.Background(), p, IsLocked, func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetry_NonTransientReturnedUnchanged(t *testing.T) {
	boom := errors.New("syntax error")
	calls := 0

	err := Retry(context.Background(), fastPolicy(5), IsLocked, func(context.Context) error {
		calls++
		return boom
	})

	assert.Same(t, boom, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_ExhaustionIsFatal(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(4), IsLocked, func(context.Context) error {
		calls++
		return errTransient
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.ErrorIs(t, err, ErrRetryExhausted)
	assert.ErrorIs(t, err, errs.ErrStorage)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{Attempts: 10, BaseDelay: time.Hour, MaxDelay: time.Hour}
	p.OnRetry = func(int, time.Duration, error) { cancel() }

	err := Retry(ctx, p, IsLocked, func(context.Context) error { return errTransient })

	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, errs.ErrStorage)
}

func TestRetryValue_ReturnsValue(t *testing.T) {
	calls := 0
	v, err := RetryValue(context.Background(), fastPolicy(3), IsLocked, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errTransient
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestRetryPolicy_DelayIsCapped(t *testing.T) {
	p := RetryPolicy{BaseDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond}

	assert.Equal(t, 10*time.Millisecond, p.delay(0))
	assert.Equal(t, 20*time.Millisecond, p.delay(1))
	assert.Equal(t, 40*time.Millisecond, p.delay(2))
	assert.Equal(t, 50*time.Millisecond, p.delay(3))
	assert.Equal(t, 50*time.Millisecond, p.delay(40))
}

func TestIsLocked(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"busy code", sqlite3.Error{Code: sqlite3.ErrBusy}, true},
		{"locked code", sqlite3.Error{Code: sqlite3.ErrLocked}, true},
		{"constraint code", sqlite3.Error{Code: sqlite3.ErrConstraint}, false},
		{"locked message", errors.New("database is locked"), true},
		{"table locked message", errors.New("database table is locked: shifts"), true},
		{"other", errors.New("no such table: shifts"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsLocked(tt.err))
		})
	}
}
