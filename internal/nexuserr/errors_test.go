package nexuserr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesCodeFormat(t *testing.T) {
	assert.Panics(t, func() { New("bad-code", SeverityRetryable, "boom") })
	assert.NotPanics(t, func() { New("NEXUS_TTS_TIMEOUT", SeverityRetryable, "boom") })
}

func TestRetryableIsDerivedFromSeverity(t *testing.T) {
	retryable := New("NEXUS_TTS_TIMEOUT", SeverityRetryable, "slow provider")
	assert.True(t, retryable.Retryable())

	critical := New("NEXUS_RENDER_CRASH", SeverityCritical, "renderer died")
	assert.False(t, critical.Retryable())
}

func TestWrapPreservesTypedErrors(t *testing.T) {
	original := New("NEXUS_TTS_TIMEOUT", SeverityRetryable, "slow provider")
	wrapped := Wrap(original, "tts")
	require.Equal(t, original.Code, wrapped.Code)
	require.Equal(t, "tts", wrapped.Stage)

	// Stage is filled in only when missing, never overwritten.
	alreadyStaged := New("NEXUS_TTS_TIMEOUT", SeverityRetryable, "slow provider").WithStage("tts")
	rewrapped := Wrap(alreadyStaged, "render")
	assert.Equal(t, "tts", rewrapped.Stage)
}

func TestWrapClassifiesUnknownErrorsAsCritical(t *testing.T) {
	plain := errors.New("disk full")
	wrapped := Wrap(plain, "render")
	require.Equal(t, CodeUnknown, wrapped.Code)
	assert.Equal(t, SeverityCritical, wrapped.Severity)
	assert.Equal(t, "disk full", wrapped.Message)
	assert.Same(t, plain, wrapped.Cause)
}

func TestAsFollowsUnwrapChain(t *testing.T) {
	inner := New("NEXUS_TTS_TIMEOUT", SeverityRetryable, "slow provider")
	outer := fmt.Errorf("stage wrapper: %w", inner)
	found, ok := As(outer)
	require.True(t, ok)
	assert.Equal(t, inner.Code, found.Code)
}

func TestWithContextAccumulates(t *testing.T) {
	err := New("NEXUS_TTS_TIMEOUT", SeverityRetryable, "slow provider")
	err.WithContext("attempt", 1).WithContext("provider", "chirp3")
	assert.Equal(t, 1, err.Context["attempt"])
	assert.Equal(t, "chirp3", err.Context["provider"])
}
