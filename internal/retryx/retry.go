// Package retryx implements the exponential-backoff retry engine (spec §4.2):
// a thunk is retried up to maxRetries times, only for typed-RETRYABLE errors
// or a small allowlist of transport signals, with jittered backoff between
// attempts. Grounded on the teacher's backoffDelay/randomizedDelay pair in
// engine/internal/pipeline/pipeline.go, generalized from a fire-and-forget
// goroutine-rescheduler into a blocking call the executor can compose.
package retryx

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/nexusmedia/contentops/internal/clockx"
	"github.com/nexusmedia/contentops/internal/nexuserr"
)

// Options configures a single retry call. Zero BaseDelay, MaxDelay and Clock
// fall back to the spec's defaults (baseDelay=1s, maxDelay=30s, real clock).
// MaxRetries counts retries after the first attempt: 0 runs fn exactly once,
// and a negative value selects the default of 3.
type Options struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Clock      clockx.Clock
	// IsRetryableTransport classifies errors that aren't a *nexuserr.Error
	// but still signal a retryable transport condition (timeout, 5xx,
	// rate-limit). Optional; nil means only typed RETRYABLE errors retry.
	IsRetryableTransport func(error) bool
	// Rand, if set, is used instead of the package-level source (for
	// deterministic jitter in tests).
	Rand *rand.Rand
}

func (o Options) withDefaults() Options {
	if o.MaxRetries < 0 {
		o.MaxRetries = 3
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = time.Second
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.Clock == nil {
		o.Clock = clockx.Real
	}
	return o
}

// Result is what Do returns on success: the thunk's value plus how many
// attempts it took.
type Result[T any] struct {
	Value    T
	Attempts int
}

// Do executes fn, retrying on typed-RETRYABLE failures (or a transport
// allowlist) up to opts.MaxRetries times. A non-retryable error is returned
// as-is on any attempt. When the last attempt also fails retryably it returns
// NEXUS_RETRY_EXHAUSTED with severity RETRYABLE and the last error as Cause,
// so callers may cascade into the fallback engine.
func Do[T any](ctx context.Context, opts Options, fn func(ctx context.Context, attempt int) (T, error)) (Result[T], error) {
	opts = opts.withDefaults()

	var zero T
	var lastErr error
	maxAttempts := opts.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result[T]{}, err
		}

		value, err := fn(ctx, attempt)
		if err == nil {
			return Result[T]{Value: value, Attempts: attempt}, nil
		}
		lastErr = err

		if !shouldRetry(err, opts.IsRetryableTransport) {
			return Result[T]{}, err
		}
		if attempt == maxAttempts {
			break
		}

		delay := backoffDelay(opts.BaseDelay, opts.MaxDelay, attempt, opts.Rand)
		select {
		case <-ctx.Done():
			return Result[T]{}, ctx.Err()
		case <-opts.Clock.After(delay):
		}
	}

	exhausted := nexuserr.New("NEXUS_RETRY_EXHAUSTED", nexuserr.SeverityRetryable,
		"retry attempts exhausted").WithContext("attempts", maxAttempts)
	exhausted.Cause = lastErr
	return Result[T]{Value: zero}, exhausted
}

func shouldRetry(err error, isTransport func(error) bool) bool {
	var typed *nexuserr.Error
	if errors.As(err, &typed) {
		return typed.Retryable()
	}
	if isTransport != nil {
		return isTransport(err)
	}
	return false
}

// backoffDelay computes min(maxDelay, baseDelay*2^(attempt-1)) with ±20%
// jitter, matching the teacher's backoffDelay/randomizedDelay pair.
func backoffDelay(base, max time.Duration, attempt int, r *rand.Rand) time.Duration {
	delay := base * time.Duration(1<<uint(attempt-1))
	if delay > max || delay <= 0 {
		delay = max
	}
	return jitter(delay, r)
}

// jitter applies ±20% randomization around d.
func jitter(d time.Duration, r *rand.Rand) time.Duration {
	if d <= 0 {
		return 0
	}
	var f float64
	if r != nil {
		f = r.Float64()
	} else {
		f = rand.Float64()
	}
	// f in [0,1) maps to a multiplier in [0.8, 1.2).
	multiplier := 0.8 + f*0.4
	return time.Duration(float64(d) * multiplier)
}
