package quality

import (
	"strings"

	"github.com/nexusmedia/contentops/internal/clockx"
	"github.com/nexusmedia/contentops/pkg/nexusmodel"
)

// Decide runs the ordered pre-publish decision rules of spec §4.12 over the
// final QualityContext of a completed pipeline run.
func Decide(clock clockx.Clock, ctx nexusmodel.QualityContext) nexusmodel.PublishDecision {
	decide := func(d nexusmodel.Decision, reason string) nexusmodel.PublishDecision {
		return nexusmodel.PublishDecision{Decision: d, Reason: reason, DecidedAt: clock.Now()}
	}

	if hasTTSFallback(ctx) {
		return decide(nexusmodel.DecisionHumanReview, "TTS fallback used")
	}
	if _, low := ctx.Flags["word-count-low"]; low {
		return decide(nexusmodel.DecisionHumanReview, "Word count outside acceptable range")
	}
	if _, high := ctx.Flags["word-count-high"]; high {
		return decide(nexusmodel.DecisionHumanReview, "Word count outside acceptable range")
	}
	if hasThumbnailAndVisualFallback(ctx) {
		return decide(nexusmodel.DecisionHumanReview, "Both thumbnail and visual fallbacks used")
	}

	degradedCount := len(ctx.DegradedStages)
	fallbackCount := len(ctx.FallbacksUsed)

	if degradedCount >= 3 || (degradedCount >= 1 && fallbackCount >= 2) {
		return decide(nexusmodel.DecisionHumanReview, "Multiple quality concerns")
	}
	// Rule 5 is near-universally true on its literal reading (fallbackCount
	// <= 2 covers almost every non-rule-4 case); the discriminator that
	// actually separates it from rule 6 is "some quality concern exists at
	// all", so that's what gates the branch here.
	if degradedCount > 0 || fallbackCount > 0 {
		return decide(nexusmodel.DecisionAutoPublishWarning, "Minor quality issues")
	}
	return decide(nexusmodel.DecisionAutoPublish, "No quality issues")
}

func hasTTSFallback(ctx nexusmodel.QualityContext) bool {
	for k := range ctx.FallbacksUsed {
		if strings.HasPrefix(k, "tts:") {
			return true
		}
	}
	return false
}

func hasThumbnailAndVisualFallback(ctx nexusmodel.QualityContext) bool {
	hasThumbnail, hasVisual := false, false
	for k := range ctx.FallbacksUsed {
		if strings.HasPrefix(k, "thumbnails:") || strings.HasPrefix(k, "thumbnail:") {
			hasThumbnail = true
		}
		if strings.HasPrefix(k, "visual-gen:") || strings.HasPrefix(k, "visual:") {
			hasVisual = true
		}
	}
	return hasThumbnail && hasVisual
}
