// Package quality implements the per-stage quality gates and the pre-publish
// decision engine (spec §4.5, §4.12). Each gate is a pure function over a
// stage's metrics plus the inbound QualityContext; grounded on the teacher's
// preference for small pure evaluator functions (engine/telemetry/health/health.go
// Evaluator.Evaluate) over a class hierarchy of checkers.
package quality

import (
	"fmt"

	"github.com/nexusmedia/contentops/internal/nexuserr"
	"github.com/nexusmedia/contentops/pkg/nexusmodel"
)

// Gate checks one stage's output and returns PASS/DEGRADED/FAIL plus
// warnings and, on FAIL, a severity for the raised error.
type Gate func(stageName string, metrics nexusmodel.QualityMetrics, ctx nexusmodel.QualityContext) nexusmodel.GateResult

// Registry maps stage name to its gate. Stages with no registered gate are
// not checked (the executor treats that as an automatic PASS).
type Registry map[string]Gate

// DefaultRegistry returns the gates named in spec §4.5, keyed by the
// conventional stage names used throughout the pipeline.
func DefaultRegistry() Registry {
	return Registry{
		"script-gen":    ScriptGenGate,
		"tts":           TTSGate,
		"render":        RenderGate,
		"thumbnails":    ThumbnailGate,
		"pronunciation": PronunciationGate,
		"audio-mix":     AudioMixGate,
		"timestamps":    TimestampGate,
	}
}

func pass(stage string, m nexusmodel.QualityMetrics) nexusmodel.GateResult {
	return nexusmodel.GateResult{Status: nexusmodel.GatePass, Metrics: m, Stage: stage}
}

func degraded(stage, reason string, m nexusmodel.QualityMetrics, warnings ...string) nexusmodel.GateResult {
	return nexusmodel.GateResult{
		Status:   nexusmodel.GateDegraded,
		Metrics:  m,
		Reason:   reason,
		Warnings: warnings,
		Stage:    stage,
	}
}

func fail(stage, reason, severity string, m nexusmodel.QualityMetrics) nexusmodel.GateResult {
	return nexusmodel.GateResult{
		Status:       nexusmodel.GateFail,
		Metrics:      m,
		Reason:       reason,
		Stage:        stage,
		FailSeverity: severity,
	}
}

// ScriptGenGate enforces word count in [1200, 1800] (spec §4.5).
func ScriptGenGate(stageName string, m nexusmodel.QualityMetrics, ctx nexusmodel.QualityContext) nexusmodel.GateResult {
	if m.ScriptGen == nil {
		return fail(stageName, "missing script-gen metrics", string(nexuserr.SeverityCritical), m)
	}
	wc := m.ScriptGen.WordCount
	if wc < 1200 {
		return fail(stageName, fmt.Sprintf("word count %d below minimum 1200", wc), string(nexuserr.SeverityRecoverable), m)
	}
	if wc > 1800 {
		return fail(stageName, fmt.Sprintf("word count %d above maximum 1800", wc), string(nexuserr.SeverityRecoverable), m)
	}
	return pass(stageName, m)
}

// TTSGate enforces silence < 5% and no clipping (spec §4.5).
func TTSGate(stageName string, m nexusmodel.QualityMetrics, ctx nexusmodel.QualityContext) nexusmodel.GateResult {
	if m.TTS == nil {
		return fail(stageName, "missing tts metrics", string(nexuserr.SeverityCritical), m)
	}
	if m.TTS.ClippingDetected {
		return fail(stageName, "clipping detected", string(nexuserr.SeverityRecoverable), m)
	}
	if m.TTS.SilencePct >= 5 {
		return degraded(stageName, fmt.Sprintf("silence %.1f%% at or above 5%%", m.TTS.SilencePct), m,
			"tts silence above threshold")
	}
	return pass(stageName, m)
}

// RenderGate enforces zero frame drops and audio sync under 100ms (spec §4.5).
func RenderGate(stageName string, m nexusmodel.QualityMetrics, ctx nexusmodel.QualityContext) nexusmodel.GateResult {
	if m.Render == nil {
		return fail(stageName, "missing render metrics", string(nexuserr.SeverityCritical), m)
	}
	if m.Render.FrameDrops > 0 {
		return fail(stageName, fmt.Sprintf("%d frame drops", m.Render.FrameDrops), string(nexuserr.SeverityRecoverable), m)
	}
	if m.Render.AudioSyncMs >= 100 {
		return fail(stageName, fmt.Sprintf("audio sync drift %.1fms at or above 100ms", m.Render.AudioSyncMs), string(nexuserr.SeverityRecoverable), m)
	}
	return pass(stageName, m)
}

// ThumbnailGate requires exactly 3 variants (spec §4.5).
func ThumbnailGate(stageName string, m nexusmodel.QualityMetrics, ctx nexusmodel.QualityContext) nexusmodel.GateResult {
	if m.Thumbnail == nil {
		return fail(stageName, "missing thumbnail metrics", string(nexuserr.SeverityCritical), m)
	}
	if m.Thumbnail.VariantsGenerated != 3 {
		return fail(stageName, fmt.Sprintf("expected 3 thumbnail variants, got %d", m.Thumbnail.VariantsGenerated), string(nexuserr.SeverityRecoverable), m)
	}
	return pass(stageName, m)
}

// pronunciationUnknownTermsThreshold is the canonical constant: more than 3
// unknown terms degrades. A discrepancy exists elsewhere where ">= 3" is used;
// this gate follows the canonical "> 3" per the documented open-question
// decision in DESIGN.md.
const pronunciationUnknownTermsThreshold = 3

// PronunciationGate: unknownTerms > 3 degrades; accuracy must exceed 98%
// (spec §4.5, §9 open question). The gate is a pure check and writes no
// review-queue item.
func PronunciationGate(stageName string, m nexusmodel.QualityMetrics, ctx nexusmodel.QualityContext) nexusmodel.GateResult {
	if m.Pronunciation == nil {
		return fail(stageName, "missing pronunciation metrics", string(nexuserr.SeverityCritical), m)
	}
	if m.Pronunciation.AccuracyPct <= 98 {
		return fail(stageName, fmt.Sprintf("accuracy %.1f%% at or below 98%%", m.Pronunciation.AccuracyPct), string(nexuserr.SeverityRecoverable), m)
	}
	if m.Pronunciation.UnknownTerms > pronunciationUnknownTermsThreshold {
		return degraded(stageName, fmt.Sprintf("%d unknown terms above threshold %d", m.Pronunciation.UnknownTerms, pronunciationUnknownTermsThreshold), m,
			"pronunciation unknown terms above threshold")
	}
	return pass(stageName, m)
}

// AudioMixGate: duration within 1% of target is CRITICAL on violation; peak
// and ducking bounds are RECOVERABLE FAILs (spec §4.5).
func AudioMixGate(stageName string, m nexusmodel.QualityMetrics, ctx nexusmodel.QualityContext) nexusmodel.GateResult {
	if m.AudioMix == nil {
		return fail(stageName, "missing audio-mix metrics", string(nexuserr.SeverityCritical), m)
	}
	mix := m.AudioMix
	if mix.TargetDurationSec > 0 {
		drift := (mix.DurationSec - mix.TargetDurationSec) / mix.TargetDurationSec
		if drift < 0 {
			drift = -drift
		}
		if drift > 0.01 {
			return fail(stageName, fmt.Sprintf("duration drift %.2f%% exceeds 1%%", drift*100), string(nexuserr.SeverityCritical), m)
		}
	}
	if mix.PeakDb >= -0.5 {
		return fail(stageName, fmt.Sprintf("peak %.1fdB at or above -0.5dB", mix.PeakDb), string(nexuserr.SeverityRecoverable), m)
	}
	if mix.VoicePeakDb < -9 || mix.VoicePeakDb > -3 {
		return fail(stageName, fmt.Sprintf("voice peak %.1fdB outside [-9,-3]", mix.VoicePeakDb), string(nexuserr.SeverityRecoverable), m)
	}
	if mix.DuckingApplied && mix.MusicPeakDb >= -18 {
		return fail(stageName, fmt.Sprintf("music peak %.1fdB at or above -18dB with ducking applied", mix.MusicPeakDb), string(nexuserr.SeverityRecoverable), m)
	}
	return pass(stageName, m)
}

// TimestampGate enforces match ratio, inter-word gap, and monotonicity
// (spec §4.5, §8 invariant 6).
func TimestampGate(stageName string, m nexusmodel.QualityMetrics, ctx nexusmodel.QualityContext) nexusmodel.GateResult {
	if m.Timestamp == nil {
		return fail(stageName, "missing timestamp metrics", string(nexuserr.SeverityCritical), m)
	}
	ts := m.Timestamp
	if ts.ProcessingTime.Seconds() >= 60 {
		return fail(stageName, "processing time at or above 60s", string(nexuserr.SeverityRecoverable), m)
	}
	if ts.ExpectedWordCount > 0 {
		ratio := float64(len(ts.Words)) / float64(ts.ExpectedWordCount)
		if ratio < 0.9 {
			return fail(stageName, fmt.Sprintf("word match ratio %.2f below 0.9", ratio), string(nexuserr.SeverityRecoverable), m)
		}
	}

	var warnings []string
	bySegment := make(map[int][]nexusmodel.Word)
	for _, w := range ts.Words {
		bySegment[w.Segment] = append(bySegment[w.Segment], w)
	}
	for _, words := range bySegment {
		for i := 1; i < len(words); i++ {
			prev, cur := words[i-1], words[i]
			if cur.StartTime < prev.EndTime {
				return fail(stageName, "overlapping word timings detected", string(nexuserr.SeverityCritical), m)
			}
			if cur.StartTime-prev.EndTime > 0.5 {
				warnings = append(warnings, "gap exceeding 500ms between consecutive words")
			}
		}
	}
	if len(warnings) > 0 {
		return degraded(stageName, "inter-word gaps exceed 500ms", m, warnings...)
	}
	return pass(stageName, m)
}
