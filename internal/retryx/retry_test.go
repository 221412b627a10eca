package retryx

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusmedia/contentops/internal/clockx"
	"github.com/nexusmedia/contentops/internal/nexuserr"
)

func TestDoSucceedsWithoutRetry(t *testing.T) {
	calls := 0
	res, err := Do(context.Background(), Options{}, func(ctx context.Context, attempt int) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Value)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, calls)
}

func TestMaxRetriesZeroExecutesOnceAndDoesNotSleep(t *testing.T) {
	fake := clockx.NewFake(time.Unix(0, 0))
	calls := 0
	_, err := Do(context.Background(), Options{MaxRetries: 0, Clock: fake}, func(ctx context.Context, attempt int) (string, error) {
		calls++
		return "", nexuserr.New("NEXUS_TTS_TIMEOUT", nexuserr.SeverityRetryable, "slow")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, fake.SleptDurations())
}

func TestDoRetriesRetryableErrors(t *testing.T) {
	fake := clockx.NewFake(time.Unix(0, 0))
	calls := 0
	res, err := Do(context.Background(), Options{MaxRetries: 3, BaseDelay: time.Millisecond, Clock: fake, Rand: rand.New(rand.NewSource(1))},
		func(ctx context.Context, attempt int) (string, error) {
			calls++
			if attempt < 3 {
				return "", nexuserr.New("NEXUS_TTS_TIMEOUT", nexuserr.SeverityRetryable, "slow")
			}
			return "ok", nil
		})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, calls)
	assert.Len(t, fake.SleptDurations(), 2)
}

func TestDoDoesNotRetryNonRetryableTypedErrors(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Options{MaxRetries: 3}, func(ctx context.Context, attempt int) (string, error) {
		calls++
		return "", nexuserr.New("NEXUS_RENDER_CRASH", nexuserr.SeverityCritical, "boom")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	var typed *nexuserr.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, "NEXUS_RENDER_CRASH", typed.Code)
}

func TestDoRetriesTransportAllowlist(t *testing.T) {
	fake := clockx.NewFake(time.Unix(0, 0))
	plain := errors.New("HTTP 503")
	calls := 0
	opts := Options{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		Clock:      fake,
		IsRetryableTransport: func(err error) bool {
			return err.Error() == "HTTP 503"
		},
	}
	res, err := Do(context.Background(), opts, func(ctx context.Context, attempt int) (string, error) {
		calls++
		if attempt < 2 {
			return "", plain
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
}

func TestDoExhaustionRaisesRetryExhausted(t *testing.T) {
	fake := clockx.NewFake(time.Unix(0, 0))
	_, err := Do(context.Background(), Options{MaxRetries: 2, BaseDelay: time.Millisecond, Clock: fake},
		func(ctx context.Context, attempt int) (string, error) {
			return "", nexuserr.New("NEXUS_TTS_TIMEOUT", nexuserr.SeverityRetryable, "slow")
		})
	require.Error(t, err)
	var typed *nexuserr.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, "NEXUS_RETRY_EXHAUSTED", typed.Code)
	assert.Equal(t, nexuserr.SeverityRetryable, typed.Severity)
}

func TestBackoffDelayBoundedBySum(t *testing.T) {
	base := 10 * time.Millisecond
	max := 50 * time.Millisecond
	r := rand.New(rand.NewSource(1))
	var sum time.Duration
	for attempt := 1; attempt <= 4; attempt++ {
		sum += backoffDelay(base, max, attempt, r)
	}
	// Property from spec §8.7: retry latency sum bounded by Σ min(maxDelay, baseDelay·2^i);
	// with at most +20% jitter per delay the four delays stay within 4·maxDelay.
	assert.LessOrEqual(t, sum, 4*max)
}

func TestContextCancellationStopsRetryLoop(t *testing.T) {
	fake := clockx.NewFake(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Do(ctx, Options{MaxRetries: 3, Clock: fake}, func(ctx context.Context, attempt int) (string, error) {
		return "", nexuserr.New("NEXUS_TTS_TIMEOUT", nexuserr.SeverityRetryable, "slow")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
