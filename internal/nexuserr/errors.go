// Package nexuserr implements the severity-tagged error model that drives
// recovery policy throughout the orchestrator (retry, fallback, degrade,
// skip, abort). Severity is the single field the stage executor and
// pipeline runner read to decide what happens next.
package nexuserr

import (
	"fmt"
	"regexp"
	"time"
)

// Severity dictates recovery policy. See spec §4.1.
type Severity string

const (
	SeverityRetryable   Severity = "RETRYABLE"
	SeverityFallback    Severity = "FALLBACK"
	SeverityDegraded    Severity = "DEGRADED"
	SeverityRecoverable Severity = "RECOVERABLE"
	SeverityCritical    Severity = "CRITICAL"
)

var codePattern = regexp.MustCompile(`^NEXUS_[A-Z]+_[A-Z_]+$`)

// Error is the tagged error variant used everywhere in the core. It is never
// constructed directly outside this package; use New or Wrap.
type Error struct {
	Code      string
	Message   string
	Severity  Severity
	Stage     string
	Context   map[string]any
	Cause     error
	Timestamp time.Time
}

func (e *Error) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s[%s]: %s", e.Code, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable is derived, never stored independently: severity is the single
// source of truth.
func (e *Error) Retryable() bool { return e.Severity == SeverityRetryable }

// New constructs a typed error. Panics if code does not match the
// NEXUS_<DOMAIN>_<TYPE> convention — this is a programmer error, not a
// runtime condition.
func New(code string, severity Severity, message string) *Error {
	if !codePattern.MatchString(code) {
		panic("nexuserr: invalid error code " + code)
	}
	return &Error{Code: code, Severity: severity, Message: message, Timestamp: time.Now().UTC()}
}

// WithStage returns a copy of e with Stage set, if not already set.
func (e *Error) WithStage(stage string) *Error {
	if e.Stage != "" {
		return e
	}
	cp := *e
	cp.Stage = stage
	return &cp
}

// WithContext attaches a key/value to the error's context map, returning e.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// CodeUnknown is used by Wrap for errors with no typed classification.
const CodeUnknown = "NEXUS_UNKNOWN_ERROR"

// Wrap classifies an arbitrary error for use inside the core. Already-typed
// errors propagate unchanged except that a missing Stage is filled in; any
// other error is wrapped as CRITICAL, preserving the original message as
// Cause per spec §4.1 wrapping policy.
func Wrap(err error, stage string) *Error {
	if err == nil {
		return nil
	}
	if typed, ok := err.(*Error); ok {
		return typed.WithStage(stage)
	}
	return &Error{
		Code:      CodeUnknown,
		Severity:  SeverityCritical,
		Message:   err.Error(),
		Stage:     stage,
		Cause:     err,
		Timestamp: time.Now().UTC(),
	}
}

// As extracts a *Error from err, following Unwrap chains.
func As(err error) (*Error, bool) {
	for err != nil {
		if typed, ok := err.(*Error); ok {
			return typed, true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = unwrapper.Unwrap()
	}
	return nil, false
}
