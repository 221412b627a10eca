package nexusmodel

import (
	"time"
)

// IncidentSeverity is the three-valued severity an incident is logged at
// (spec §3 Incident), distinct from nexuserr.Severity which drives in-flight
// recovery policy rather than incident record classification.
type IncidentSeverity string

const (
	IncidentCritical   IncidentSeverity = "CRITICAL"
	IncidentWarning    IncidentSeverity = "WARNING"
	IncidentRecoverable IncidentSeverity = "RECOVERABLE"
)

// ResolvedBy distinguishes an incident closed by automated recovery from one
// closed by a human operator (spec §3, §4.9).
type ResolvedBy string

const (
	ResolvedByAuto ResolvedBy = "auto"
	ResolvedByHuman ResolvedBy = "human"
)

// Resolution is how an incident was closed.
type Resolution struct {
	Type        string     `json:"type"` // e.g. "fallback_provider", "buffer_video", "manual_fix"
	ResolvedBy  ResolvedBy `json:"resolvedBy"`
	ResolvedAt  time.Time  `json:"resolvedAt"`
	Notes       string     `json:"notes,omitempty"`
}

// PostMortem is the templated write-up generated for CRITICAL incidents
// (spec §4.9 "post-mortem template").
type PostMortem struct {
	Summary        string   `json:"summary"`
	Timeline       []string `json:"timeline"`
	RootCause      string   `json:"rootCause"`
	Impact         string   `json:"impact"`
	ActionItems    []string `json:"actionItems"`
	GeneratedAt    time.Time `json:"generatedAt"`
}

// IncidentError is the embedded error detail carried on an incident record,
// distinct from ErrorRecord in that it retains an optional stack trace.
type IncidentError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// IncidentRecord is the persisted record of one operational incident
// (spec §3 Incident, §4.9).
type IncidentRecord struct {
	ID         string            `json:"id"`
	Date       time.Time         `json:"date"`
	PipelineID string            `json:"pipelineId"`
	Stage      string            `json:"stage"`
	Error      IncidentError     `json:"error"`
	Severity   IncidentSeverity  `json:"severity"`
	RootCause  string            `json:"rootCause,omitempty"`
	Context    map[string]any    `json:"context,omitempty"`
	StartTime  time.Time         `json:"startTime"`
	EndTime    *time.Time        `json:"endTime,omitempty"`
	DurationMs int64             `json:"durationMs,omitempty"`
	Resolution *Resolution       `json:"resolution,omitempty"`
	PostMortem *PostMortem       `json:"postMortem,omitempty"`
	IsOpen     bool              `json:"isOpen"`
}
