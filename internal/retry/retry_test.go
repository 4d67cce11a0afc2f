// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retry

import (
	"context"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/indexer/internal/errors"
)

// fast keeps backoff sleeps short.
var fast = Policy{Timeout: time.Second, MaxRetries: 3, BaseDelay: time.Millisecond}

func TestDo_ImmediateSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast, "lookup", func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransient(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast, "insert", func(context.Context) error {
		calls++
		if calls < 3 {
			return sqlite3.Error{Code: sqlite3.ErrBusy}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast, "insert", func(context.Context) error {
		calls++
		return errors.New("database is locked")
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls, "first attempt plus three retries")
}

func TestDo_NeverRetriesValidation(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast, "insert", func(context.Context) error {
		calls++
		return errors.Mark(errors.New("literal subject"), errors.ErrValidation)
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
	assert.Equal(t, 1, calls)
}

func TestDo_AttemptTimeoutIsRetried(t *testing.T) {
	p := Policy{Timeout: 5 * time.Millisecond, MaxRetries: 1, BaseDelay: time.Millisecond}
	calls := 0
	err := Do(context.Background(), p, "lookup", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, fast, "lookup", func(context.Context) error {
		calls++
		cancel()
		return sqlite3.Error{Code: sqlite3.ErrBusy}
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestValue(t *testing.T) {
	got, err := Value(context.Background(), fast, "lookup", func(context.Context) (string, error) {
		return "http://ex.org/proxy/P1", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "http://ex.org/proxy/P1", got)
}
