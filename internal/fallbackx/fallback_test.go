package fallbackx

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusmedia/contentops/internal/nexuserr"
	"github.com/nexusmedia/contentops/pkg/nexusmodel"
)

func TestDoSucceedsOnPrimary(t *testing.T) {
	res, err := Do(context.Background(), []string{"chirp3-standard", "chirp3-hd"}, func(ctx context.Context, provider string) (string, error) {
		return "audio.wav", nil
	})
	require.NoError(t, err)
	assert.Equal(t, nexusmodel.ProviderTierPrimary, res.Tier)
	assert.Equal(t, "chirp3-standard", res.Provider)
}

func TestDoFallsBackOnFallbackSeverity(t *testing.T) {
	calls := []string{}
	res, err := Do(context.Background(), []string{"chirp3-standard", "chirp3-hd"}, func(ctx context.Context, provider string) (string, error) {
		calls = append(calls, provider)
		if provider == "chirp3-standard" {
			return "", nexuserr.New("NEXUS_TTS_PROVIDER_DOWN", nexuserr.SeverityFallback, "503")
		}
		return "audio.wav", nil
	})
	require.NoError(t, err)
	assert.Equal(t, nexusmodel.ProviderTierFallback, res.Tier)
	assert.Equal(t, "chirp3-hd", res.Provider)
	assert.Equal(t, []string{"chirp3-standard", "chirp3-hd"}, calls)
}

func TestDoShortCircuitsOnCritical(t *testing.T) {
	calls := []string{}
	_, err := Do(context.Background(), []string{"primary", "secondary"}, func(ctx context.Context, provider string) (string, error) {
		calls = append(calls, provider)
		return "", nexuserr.New("NEXUS_TTS_CONFIG_ERROR", nexuserr.SeverityCritical, "bad config")
	})
	require.Error(t, err)
	assert.Equal(t, []string{"primary"}, calls)
	var typed *nexuserr.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, "NEXUS_TTS_CONFIG_ERROR", typed.Code)
}

func TestDoShortCircuitsOnRecoverable(t *testing.T) {
	calls := []string{}
	_, err := Do(context.Background(), []string{"primary", "secondary"}, func(ctx context.Context, provider string) (string, error) {
		calls = append(calls, provider)
		return "", nexuserr.New("NEXUS_TTS_STAGE_FAILED", nexuserr.SeverityRecoverable, "gave up")
	})
	require.Error(t, err)
	assert.Equal(t, []string{"primary"}, calls)
}

func TestDoExhaustsAllProviders(t *testing.T) {
	_, err := Do(context.Background(), []string{"a", "b"}, func(ctx context.Context, provider string) (string, error) {
		return "", nexuserr.New("NEXUS_TTS_PROVIDER_DOWN", nexuserr.SeverityFallback, "down")
	})
	require.Error(t, err)
	var typed *nexuserr.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, "NEXUS_FALLBACK_EXHAUSTED", typed.Code)
	assert.Equal(t, nexuserr.SeverityCritical, typed.Severity)
}

func TestDoWithNoProvidersIsExhausted(t *testing.T) {
	_, err := Do(context.Background(), nil, func(ctx context.Context, provider string) (string, error) {
		return "", nil
	})
	require.Error(t, err)
}

func TestDoTreatsRetryExhaustedAsCascadeTrigger(t *testing.T) {
	res, err := Do(context.Background(), []string{"a", "b"}, func(ctx context.Context, provider string) (string, error) {
		if provider == "a" {
			return "", nexuserr.New("NEXUS_RETRY_EXHAUSTED", nexuserr.SeverityRetryable, "exhausted")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "b", res.Provider)
}
