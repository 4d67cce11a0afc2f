// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package retry bounds store calls with a per-attempt timeout and retries
// transient failures with exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/pdiddy/indexer/internal/errors"
	"github.com/pdiddy/indexer/pkg/types"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultBaseDelay = 200 * time.Millisecond
	maxDelay         = 30 * time.Second
)

// Policy controls Do. MaxRetries counts retries after the first attempt.
type Policy struct {
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration

	// Log receives one line per retried attempt; nil is silent.
	Log *zap.SugaredLogger
}

// FromConfig builds the policy for store calls.
func FromConfig(cfg types.StoreConfig, log *zap.SugaredLogger) Policy {
	return Policy{Timeout: cfg.Timeout, MaxRetries: cfg.MaxRetries, BaseDelay: cfg.RetryBaseDelay, Log: log}
}

// Do runs op until it succeeds, fails with a non-transient error, the
// retries are exhausted or ctx is done. Each attempt gets its own
// deadline. The delay starts at BaseDelay and doubles every attempt.
func Do(ctx context.Context, p Policy, what string, op func(ctx context.Context) error) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	base := p.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = base
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxInterval = maxDelay
	eb.MaxElapsedTime = 0
	var b backoff.BackOff = eb
	if p.MaxRetries >= 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxRetries))
	}
	b = backoff.WithContext(b, ctx)

	attempt := 0
	operation := func() error {
		attempt++
		actx, cancel := context.WithTimeout(ctx, timeout)
		err := op(actx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(errors.Wrap(ctx.Err(), what))
		}
		if !errors.Transient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, d time.Duration) {
		if p.Log != nil {
			p.Log.Warnw("transient store failure, retrying",
				"op", what, "attempt", attempt, "delay", d.String(), "error", err)
		}
	}
	return backoff.RetryNotify(operation, b, notify)
}

// Value is Do for operations that return a result.
func Value[T any](ctx context.Context, p Policy, what string, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, what, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
