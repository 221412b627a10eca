package nexusmodel

import "time"

// GateStatus is the three-valued outcome of a quality gate (spec §4.4, §4.5).
type GateStatus string

const (
	GatePass     GateStatus = "PASS"
	GateDegraded GateStatus = "DEGRADED"
	GateFail     GateStatus = "FAIL"
)

// QualityMetrics is a sum type over the per-stage metric shapes named in
// spec §4.5. Exactly one field is populated, matching whichever stage
// produced the output; implementers check which field is non-nil rather
// than relying on a discriminator string, mirroring the teacher's habit of
// using typed optional fields over `interface{}` payloads
// (engine/models.go RateLimitConfig-style plain structs).
type QualityMetrics struct {
	ScriptGen     *ScriptGenMetrics     `json:"scriptGen,omitempty"`
	TTS           *TTSMetrics           `json:"tts,omitempty"`
	Render        *RenderMetrics        `json:"render,omitempty"`
	Thumbnail     *ThumbnailMetrics     `json:"thumbnail,omitempty"`
	Pronunciation *PronunciationMetrics `json:"pronunciation,omitempty"`
	AudioMix      *AudioMixMetrics      `json:"audioMix,omitempty"`
	Timestamp     *TimestampMetrics     `json:"timestamp,omitempty"`
}

// ScriptGenMetrics backs the script-gen quality gate (spec §4.5).
type ScriptGenMetrics struct {
	WordCount    int    `json:"wordCount"`
	ScriptExcerpt string `json:"scriptExcerpt,omitempty"`
}

// TTSMetrics backs the TTS quality gate.
type TTSMetrics struct {
	SilencePct       float64       `json:"silencePct"`
	ClippingDetected bool          `json:"clippingDetected"`
	Duration         time.Duration `json:"duration"`
}

// RenderMetrics backs the render quality gate.
type RenderMetrics struct {
	FrameDrops  int     `json:"frameDrops"`
	AudioSyncMs float64 `json:"audioSyncMs"`
}

// ThumbnailMetrics backs the thumbnail quality gate.
type ThumbnailMetrics struct {
	VariantsGenerated int `json:"variantsGenerated"`
}

// PronunciationMetrics backs the pronunciation quality gate.
type PronunciationMetrics struct {
	UnknownTerms int     `json:"unknownTerms"`
	AccuracyPct  float64 `json:"accuracyPct"`
}

// AudioMixMetrics backs the audio-mix quality gate.
type AudioMixMetrics struct {
	DurationSec       float64 `json:"durationSec"`
	TargetDurationSec float64 `json:"targetDurationSec"`
	PeakDb            float64 `json:"peakDb"`
	VoicePeakDb       float64 `json:"voicePeakDb"`
	MusicPeakDb       float64 `json:"musicPeakDb"`
	DuckingApplied    bool    `json:"duckingApplied"`
}

// Word is one entry in a timestamp-extraction segment.
type Word struct {
	Text      string  `json:"text"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	Segment   int     `json:"segment"`
}

// TimestampMetrics backs the timestamp-extraction quality gate.
type TimestampMetrics struct {
	Words              []Word        `json:"words"`
	ExpectedWordCount  int           `json:"expectedWordCount"`
	ProcessingTime     time.Duration `json:"processingTime"`
}

// GateResult is what a quality gate's check function returns (spec §4.5).
type GateResult struct {
	Status   GateStatus `json:"status"`
	Metrics  QualityMetrics `json:"metrics"`
	Warnings []string   `json:"warnings,omitempty"`
	Reason   string     `json:"reason,omitempty"`
	Stage    string     `json:"stage"`
	// FailSeverity is set by the gate itself when Status==FAIL, choosing
	// between RECOVERABLE and CRITICAL per spec §4.5 ("raise RECOVERABLE or
	// CRITICAL per gate's own policy"). Empty unless Status==FAIL.
	FailSeverity string `json:"failSeverity,omitempty"`
}

// Decision is the three-valued pre-publish routing verdict (spec §4.12).
type Decision string

const (
	DecisionAutoPublish        Decision = "AUTO_PUBLISH"
	DecisionAutoPublishWarning Decision = "AUTO_PUBLISH_WITH_WARNING"
	DecisionHumanReview        Decision = "HUMAN_REVIEW"
)

// PublishDecision is the persisted/emitted outcome of the pre-publish
// decision engine.
type PublishDecision struct {
	Decision Decision  `json:"decision"`
	Reason   string    `json:"reason"`
	DecidedAt time.Time `json:"decidedAt"`
}
