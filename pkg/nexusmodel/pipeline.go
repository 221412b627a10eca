// Package nexusmodel defines the persisted and in-flight data shapes shared
// across the orchestrator: pipeline state, artifacts, stage I/O, quality
// context, cost records, buffer videos, and incidents (spec §3).
package nexusmodel

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/nexusmedia/contentops/internal/nexuserr"
)

// Status is the lifecycle state of a PipelineState (spec §4.6 state machine).
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// StageStatus is the lifecycle state of one stage slot within a pipeline.
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusSuccess   StageStatus = "success"
	StageStatusFailed    StageStatus = "failed"
	StageStatusSkipped   StageStatus = "skipped"
	StageStatusCancelled StageStatus = "cancelled"
)

// StageSlot is the persisted record of one stage's execution within a
// pipeline run.
type StageSlot struct {
	Status      StageStatus `json:"status"`
	StartTime   time.Time   `json:"startTime"`
	EndTime     *time.Time  `json:"endTime,omitempty"`
	Provider    string      `json:"provider,omitempty"`
	Attempts    int         `json:"attempts"`
	DurationMs  int64       `json:"durationMs"`
	Cost        float64     `json:"cost"`
	Warnings    []string    `json:"warnings,omitempty"`
}

// QualityContext is the accumulating bag of degradation markers that flows
// stage-to-stage. Its merge semantics are monotonic union (spec §3, §4.4).
type QualityContext struct {
	DegradedStages map[string]struct{} `json:"-"`
	FallbacksUsed  map[string]struct{} `json:"-"`
	Flags          map[string]struct{} `json:"-"`
}

// NewQualityContext returns an empty, ready-to-use context.
func NewQualityContext() QualityContext {
	return QualityContext{
		DegradedStages: make(map[string]struct{}),
		FallbacksUsed:  make(map[string]struct{}),
		Flags:          make(map[string]struct{}),
	}
}

// Clone returns a deep copy so a caller may mutate without affecting the
// original (used by the executor when merging a stage's local gate result
// into the pipeline-wide context).
func (q QualityContext) Clone() QualityContext {
	cp := NewQualityContext()
	for k := range q.DegradedStages {
		cp.DegradedStages[k] = struct{}{}
	}
	for k := range q.FallbacksUsed {
		cp.FallbacksUsed[k] = struct{}{}
	}
	for k := range q.Flags {
		cp.Flags[k] = struct{}{}
	}
	return cp
}

// Merge unions other into q in place. Quality context never shrinks.
func (q *QualityContext) Merge(other QualityContext) {
	for k := range other.DegradedStages {
		q.DegradedStages[k] = struct{}{}
	}
	for k := range other.FallbacksUsed {
		q.FallbacksUsed[k] = struct{}{}
	}
	for k := range other.Flags {
		q.Flags[k] = struct{}{}
	}
}

func setKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DegradedStagesList returns the degraded stage names for JSON rendering.
func (q QualityContext) DegradedStagesList() []string { return setKeys(q.DegradedStages) }

// FallbacksUsedList returns the "stage:provider" fallback keys for JSON rendering.
func (q QualityContext) FallbacksUsedList() []string { return setKeys(q.FallbacksUsed) }

// FlagsList returns the flag names for JSON rendering.
func (q QualityContext) FlagsList() []string { return setKeys(q.Flags) }

// qualityContextWire is the JSON-on-the-wire shape (sets rendered as sorted
// slices); DocumentStore implementations marshal through this.
type qualityContextWire struct {
	DegradedStages []string `json:"degradedStages"`
	FallbacksUsed  []string `json:"fallbacksUsed"`
	Flags          []string `json:"flags"`
}

// MarshalJSON renders the set fields as slices.
func (q QualityContext) MarshalJSON() ([]byte, error) {
	return json.Marshal(qualityContextWire{
		DegradedStages: setKeys(q.DegradedStages),
		FallbacksUsed:  setKeys(q.FallbacksUsed),
		Flags:          setKeys(q.Flags),
	})
}

// UnmarshalJSON restores the set fields from slices.
func (q *QualityContext) UnmarshalJSON(data []byte) error {
	var wire qualityContextWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*q = NewQualityContext()
	for _, s := range wire.DegradedStages {
		q.DegradedStages[s] = struct{}{}
	}
	for _, s := range wire.FallbacksUsed {
		q.FallbacksUsed[s] = struct{}{}
	}
	for _, s := range wire.Flags {
		q.Flags[s] = struct{}{}
	}
	return nil
}

// ErrorRecord is the persisted shape of one pipeline error (spec §3 Error,
// embedded append-only in PipelineState.Errors).
type ErrorRecord struct {
	Code      string             `json:"code"`
	Message   string             `json:"message"`
	Stage     string             `json:"stage,omitempty"`
	Severity  nexuserr.Severity  `json:"severity"`
	Timestamp time.Time          `json:"timestamp"`
}

// ErrorRecordFrom converts a typed error into its persisted record shape.
func ErrorRecordFrom(err *nexuserr.Error) ErrorRecord {
	return ErrorRecord{
		Code:      err.Code,
		Message:   err.Message,
		Stage:     err.Stage,
		Severity:  err.Severity,
		Timestamp: err.Timestamp,
	}
}

// PipelineState is the persisted record of one pipeline run, keyed by
// PipelineID (spec §3).
type PipelineState struct {
	PipelineID    string                    `json:"pipelineId"`
	Status        Status                    `json:"status"`
	CurrentStage  string                    `json:"currentStage"`
	StartTime     time.Time                 `json:"startTime"`
	EndTime       *time.Time                `json:"endTime,omitempty"`
	Stages        map[string]StageSlot      `json:"stages"`
	Artifacts     map[string][]ArtifactRef  `json:"artifacts"`
	QualityContext QualityContext           `json:"qualityContext"`
	Errors        []ErrorRecord             `json:"errors"`
	Topic         string                    `json:"topic,omitempty"`
}

// NewPipelineState creates a fresh, pending state for a given id.
func NewPipelineState(pipelineID string, now time.Time) *PipelineState {
	return &PipelineState{
		PipelineID:     pipelineID,
		Status:         StatusPending,
		StartTime:      now,
		Stages:         make(map[string]StageSlot),
		Artifacts:      make(map[string][]ArtifactRef),
		QualityContext: NewQualityContext(),
		Errors:         []ErrorRecord{},
	}
}

// Clone returns a deep copy of the state, used so callers can mutate a
// working copy before persisting (never mutate a stored reference in place).
func (p *PipelineState) Clone() *PipelineState {
	cp := *p
	cp.Stages = make(map[string]StageSlot, len(p.Stages))
	for k, v := range p.Stages {
		vv := v
		if v.EndTime != nil {
			t := *v.EndTime
			vv.EndTime = &t
		}
		vv.Warnings = append([]string(nil), v.Warnings...)
		cp.Stages[k] = vv
	}
	cp.Artifacts = make(map[string][]ArtifactRef, len(p.Artifacts))
	for k, v := range p.Artifacts {
		cp.Artifacts[k] = append([]ArtifactRef(nil), v...)
	}
	cp.QualityContext = p.QualityContext.Clone()
	cp.Errors = append([]ErrorRecord(nil), p.Errors...)
	if p.EndTime != nil {
		t := *p.EndTime
		cp.EndTime = &t
	}
	return &cp
}

// ArtifactType enumerates the kinds of content artifact a stage may produce.
type ArtifactType string

const (
	ArtifactAudio ArtifactType = "audio"
	ArtifactVideo ArtifactType = "video"
	ArtifactImage ArtifactType = "image"
	ArtifactJSON  ArtifactType = "json"
	ArtifactText  ArtifactType = "text"
)

// ArtifactRef points at content in the content-addressed object store.
// Owned by the producing stage; never mutated after write (spec §3).
type ArtifactRef struct {
	Type        ArtifactType `json:"type"`
	URL         string       `json:"url"`
	SizeBytes   int64        `json:"sizeBytes"`
	ContentType string       `json:"contentType"`
	GeneratedAt time.Time    `json:"generatedAt"`
	Stage       string       `json:"stage"`
}
