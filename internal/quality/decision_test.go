package quality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nexusmedia/contentops/internal/clockx"
	"github.com/nexusmedia/contentops/pkg/nexusmodel"
)

func newCtxWith(degraded, fallbacks, flags []string) nexusmodel.QualityContext {
	ctx := nexusmodel.NewQualityContext()
	for _, s := range degraded {
		ctx.DegradedStages[s] = struct{}{}
	}
	for _, s := range fallbacks {
		ctx.FallbacksUsed[s] = struct{}{}
	}
	for _, s := range flags {
		ctx.Flags[s] = struct{}{}
	}
	return ctx
}

func TestDecideEmptyContextAutoPublishes(t *testing.T) {
	clock := clockx.NewFake(time.Unix(0, 0))
	d := Decide(clock, nexusmodel.NewQualityContext())
	assert.Equal(t, nexusmodel.DecisionAutoPublish, d.Decision)
}

func TestDecideSingleDegradedStageWarns(t *testing.T) {
	clock := clockx.NewFake(time.Unix(0, 0))
	ctx := newCtxWith([]string{"tts"}, nil, nil)
	d := Decide(clock, ctx)
	assert.Equal(t, nexusmodel.DecisionAutoPublishWarning, d.Decision)
}

func TestDecideTTSFallbackForcesReview(t *testing.T) {
	clock := clockx.NewFake(time.Unix(0, 0))
	ctx := newCtxWith(nil, []string{"tts:chirp3-hd"}, nil)
	d := Decide(clock, ctx)
	assert.Equal(t, nexusmodel.DecisionHumanReview, d.Decision)
	assert.Equal(t, "TTS fallback used", d.Reason)
}

func TestDecideWordCountFlagForcesReview(t *testing.T) {
	clock := clockx.NewFake(time.Unix(0, 0))
	ctx := newCtxWith(nil, nil, []string{"word-count-low"})
	d := Decide(clock, ctx)
	assert.Equal(t, nexusmodel.DecisionHumanReview, d.Decision)
}

func TestDecideThumbnailAndVisualFallbackForcesReview(t *testing.T) {
	clock := clockx.NewFake(time.Unix(0, 0))
	ctx := newCtxWith(nil, []string{"thumbnail:fallback-a", "visual-gen:fallback-b"}, nil)
	d := Decide(clock, ctx)
	assert.Equal(t, nexusmodel.DecisionHumanReview, d.Decision)
	assert.Equal(t, "Both thumbnail and visual fallbacks used", d.Reason)
}

func TestDecideThreeDegradedStagesForcesReview(t *testing.T) {
	clock := clockx.NewFake(time.Unix(0, 0))
	ctx := newCtxWith([]string{"tts", "render", "thumbnails"}, nil, nil)
	d := Decide(clock, ctx)
	assert.Equal(t, nexusmodel.DecisionHumanReview, d.Decision)
	assert.Equal(t, "Multiple quality concerns", d.Reason)
}

func TestDecideOneDegradedPlusTwoFallbacksForcesReview(t *testing.T) {
	clock := clockx.NewFake(time.Unix(0, 0))
	ctx := newCtxWith([]string{"render"}, []string{"visual-gen:b", "thumbnail:c"}, nil)
	d := Decide(clock, ctx)
	assert.Equal(t, nexusmodel.DecisionHumanReview, d.Decision)
}
