// Package fallbackx implements the ordered-provider fallback cascade
// (spec §4.3): given a thunk and an ordered provider list, try each in turn,
// stopping early on a CRITICAL or RECOVERABLE error since those are not
// provider-specific. Grounded on the teacher's per-domain circuit-breaker
// state in engine/internal/ratelimit/limiter.go, repurposed from
// allow/deny-per-domain bookkeeping into an ordered-cascade iterator: both
// treat a provider/domain as exhausted and move to the next candidate rather
// than failing the whole operation outright.
package fallbackx

import (
	"context"
	"errors"

	"github.com/nexusmedia/contentops/internal/nexuserr"
	"github.com/nexusmedia/contentops/pkg/nexusmodel"
)

// Result is what Do returns on success.
type Result[T any] struct {
	Value    T
	Provider string
	Tier     nexusmodel.ProviderTier
}

// Do tries providers in order, invoking fn(ctx, provider) for each. A
// provider is exhausted when fn returns a FALLBACK-severity error, or a
// RETRYABLE error that the caller has already exhausted retries for (i.e.
// NEXUS_RETRY_EXHAUSTED). CRITICAL and RECOVERABLE errors short-circuit the
// cascade and propagate immediately without trying later providers.
func Do[T any](ctx context.Context, providers []string, fn func(ctx context.Context, provider string) (T, error)) (Result[T], error) {
	var zero T
	if len(providers) == 0 {
		return Result[T]{}, nexuserr.New("NEXUS_FALLBACK_EXHAUSTED", nexuserr.SeverityCritical, "no providers configured")
	}

	var lastErr error
	for i, provider := range providers {
		if err := ctx.Err(); err != nil {
			return Result[T]{}, err
		}

		value, err := fn(ctx, provider)
		if err == nil {
			tier := nexusmodel.ProviderTierPrimary
			if i > 0 {
				tier = nexusmodel.ProviderTierFallback
			}
			return Result[T]{Value: value, Provider: provider, Tier: tier}, nil
		}
		lastErr = err

		if !isExhausted(err) {
			return Result[T]{}, err
		}
	}

	exhausted := nexuserr.New("NEXUS_FALLBACK_EXHAUSTED", nexuserr.SeverityCritical, "all providers exhausted")
	exhausted.Cause = lastErr
	return Result[T]{Value: zero}, exhausted
}

func isExhausted(err error) bool {
	var typed *nexuserr.Error
	if !errors.As(err, &typed) {
		return false
	}
	if typed.Code == "NEXUS_RETRY_EXHAUSTED" {
		return true
	}
	return typed.Severity == nexuserr.SeverityFallback
}
