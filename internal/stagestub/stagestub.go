// Package stagestub provides minimal stand-in implementations of the
// content-producing stages (spec §1 "each stage is a black box with an
// Execute(input) -> output contract; the core does not know what they
// compute"). Real stage bodies (script generation, TTS, rendering, ...) are
// explicitly out of core scope; these stand-ins let cmd/nexusd boot and
// drive a complete pipeline run without a live provider fleet behind it.
// Grounded on the teacher's strategy-registry pattern in
// engine/strategies/strategies.go, where each named strategy is a small
// struct implementing a single-method interface and nothing more.
package stagestub

import (
	"context"
	"fmt"
	"time"

	"github.com/nexusmedia/contentops/internal/collaborators"
	"github.com/nexusmedia/contentops/pkg/nexusmodel"
)

// Passthrough is a stage that always succeeds, producing just enough of the
// quality metrics its gate (if any) requires to pass. It uploads a tiny
// placeholder artifact through objects so the pipeline exercises the
// ObjectStore collaborator end to end.
type Passthrough struct {
	StageName string
	objects   collaborators.ObjectStore
	metrics   func() nexusmodel.QualityMetrics
}

// New returns a Passthrough stage named name. metrics may be nil for stages
// with no registered quality gate (e.g. research, upload).
func New(name string, objects collaborators.ObjectStore, metrics func() nexusmodel.QualityMetrics) Passthrough {
	return Passthrough{StageName: name, objects: objects, metrics: metrics}
}

func (p Passthrough) Name() string { return p.StageName }

// Execute uploads a placeholder artifact under the stage's collection path
// and returns a successful output carrying whatever metrics this stage's
// gate needs.
func (p Passthrough) Execute(ctx context.Context, input nexusmodel.StageInput) (nexusmodel.StageBodyOutput, error) {
	path := fmt.Sprintf("%s/%s/placeholder.bin", input.PipelineID, p.StageName)
	url, err := p.objects.Upload(ctx, path, []byte("stand-in artifact"), "application/octet-stream")
	if err != nil {
		return nexusmodel.StageBodyOutput{}, fmt.Errorf("stagestub: upload %s: %w", p.StageName, err)
	}

	out := nexusmodel.StageBodyOutput{
		Success:  true,
		Data:     input.Data,
		Provider: nexusmodel.ProviderInfo{Name: "stand-in", Tier: nexusmodel.ProviderTierPrimary, Attempts: 1},
		Artifacts: []nexusmodel.ArtifactRef{{
			Type:        nexusmodel.ArtifactVideo,
			URL:         url,
			ContentType: "application/octet-stream",
			Stage:       p.StageName,
		}},
	}
	if p.metrics != nil {
		out.Metrics = p.metrics()
	}
	return out, nil
}

// DefaultMetrics returns, per gated stage name, a metrics closure tuned to
// clear the gate in internal/quality with headroom. Stages with no entry
// here (research, script-drafts, audio-segments, visual-gen, upload) run
// ungated.
func DefaultMetrics() map[string]func() nexusmodel.QualityMetrics {
	return map[string]func() nexusmodel.QualityMetrics{
		"script-gen": func() nexusmodel.QualityMetrics {
			return nexusmodel.QualityMetrics{ScriptGen: &nexusmodel.ScriptGenMetrics{WordCount: 1500}}
		},
		"tts": func() nexusmodel.QualityMetrics {
			return nexusmodel.QualityMetrics{TTS: &nexusmodel.TTSMetrics{SilencePct: 1.5, Duration: 9 * time.Minute}}
		},
		"render": func() nexusmodel.QualityMetrics {
			return nexusmodel.QualityMetrics{Render: &nexusmodel.RenderMetrics{FrameDrops: 0, AudioSyncMs: 10}}
		},
		"thumbnails": func() nexusmodel.QualityMetrics {
			return nexusmodel.QualityMetrics{Thumbnail: &nexusmodel.ThumbnailMetrics{VariantsGenerated: 3}}
		},
		"pronunciation": func() nexusmodel.QualityMetrics {
			return nexusmodel.QualityMetrics{Pronunciation: &nexusmodel.PronunciationMetrics{AccuracyPct: 99.5, UnknownTerms: 0}}
		},
		"audio-mix": func() nexusmodel.QualityMetrics {
			return nexusmodel.QualityMetrics{AudioMix: &nexusmodel.AudioMixMetrics{
				DurationSec: 540, TargetDurationSec: 540, PeakDb: -1.5, VoicePeakDb: -6, MusicPeakDb: -20, DuckingApplied: true,
			}}
		},
		"timestamps": func() nexusmodel.QualityMetrics {
			return nexusmodel.QualityMetrics{Timestamp: &nexusmodel.TimestampMetrics{
				Words:             []nexusmodel.Word{{Text: "hello", StartTime: 0, EndTime: 0.3, Segment: 0}},
				ExpectedWordCount: 1,
				ProcessingTime:    2 * time.Second,
			}}
		},
	}
}

// StageOrder is the fixed pipeline sequence (spec §1, §4.6) that cmd/nexusd
// registers stand-ins for.
var StageOrder = []string{
	"research", "script-drafts", "script-gen", "pronunciation", "tts",
	"audio-segments", "audio-mix", "timestamps", "visual-gen", "render",
	"thumbnails", "upload",
}
