// Package incident implements the structured incident logger (spec §4.9):
// monotonic per-date id allocation under optimistic concurrency, severity
// mapping, root-cause inference, and post-mortem generation for CRITICAL
// incidents. Grounded on the teacher's probe-and-retry allocation style in
// engine/internal/ratelimit/limiter.go's circuit-breaker state transitions
// (read current, decide, write, retry on conflict) applied here to id
// suffix allocation instead of breaker state.
package incident

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/nexusmedia/contentops/internal/clockx"
	"github.com/nexusmedia/contentops/internal/nexuserr"
	"github.com/nexusmedia/contentops/internal/store"
	"github.com/nexusmedia/contentops/pkg/nexusmodel"
)

// Logger records, resolves, and queries incidents.
type Logger struct {
	store store.DocumentStore
	clock clockx.Clock
}

// NewLogger returns an incident logger backed by s.
func NewLogger(s store.DocumentStore, clock clockx.Clock) *Logger {
	return &Logger{store: s, clock: clock}
}

// SeverityFor maps an error severity to an incident severity (spec §4.9):
// CRITICAL/exhausted-FALLBACK -> CRITICAL, DEGRADED/RECOVERABLE -> WARNING,
// exhausted-RETRYABLE -> RECOVERABLE.
func SeverityFor(errSeverity nexuserr.Severity, exhausted bool) nexusmodel.IncidentSeverity {
	switch errSeverity {
	case nexuserr.SeverityCritical:
		return nexusmodel.IncidentCritical
	case nexuserr.SeverityFallback:
		if exhausted {
			return nexusmodel.IncidentCritical
		}
		return nexusmodel.IncidentWarning
	case nexuserr.SeverityDegraded, nexuserr.SeverityRecoverable:
		return nexusmodel.IncidentWarning
	case nexuserr.SeverityRetryable:
		if exhausted {
			return nexusmodel.IncidentRecoverable
		}
	}
	return nexusmodel.IncidentRecoverable
}

type rootCauseRule struct {
	cause   string
	pattern *regexp.Regexp
}

var rootCauseRules = []rootCauseRule{
	{"timeout", regexp.MustCompile(`(?i)timeout|timed out|deadline exceeded`)},
	{"rate_limit", regexp.MustCompile(`(?i)rate.?limit|429`)},
	{"quota_exceeded", regexp.MustCompile(`(?i)quota`)},
	{"auth_failure", regexp.MustCompile(`(?i)auth|unauthorized|401|403`)},
	{"network_error", regexp.MustCompile(`(?i)connection reset|dns|network|dial tcp`)},
	{"config_error", regexp.MustCompile(`(?i)config`)},
	{"data_error", regexp.MustCompile(`(?i)invalid (data|format|payload)|malformed`)},
	{"resource_exhausted", regexp.MustCompile(`(?i)out of memory|disk full|resource exhausted`)},
	{"dependency_failure", regexp.MustCompile(`(?i)5\d\d|unavailable|unhealthy|dependency`)},
	{"api_outage", regexp.MustCompile(`(?i)outage|down for maintenance`)},
}

// InferRootCause applies the fixed rule table of spec §4.9 keyed on error
// code and message. Unmatched falls back to "unknown".
func InferRootCause(code, message string) string {
	haystack := strings.ToLower(code + " " + message)
	for _, rule := range rootCauseRules {
		if rule.pattern.MatchString(haystack) {
			return rule.cause
		}
	}
	return "unknown"
}

// LogIncident allocates a monotonic per-date id and persists the incident,
// probing for the first free suffix on collision (spec §4.9, §5, §8.3).
func (l *Logger) LogIncident(ctx context.Context, rec nexusmodel.IncidentRecord) (nexusmodel.IncidentRecord, error) {
	if rec.Date.IsZero() {
		rec.Date = l.clock.Now()
	}
	if rec.RootCause == "" {
		rec.RootCause = InferRootCause(rec.Error.Code, rec.Error.Message)
	}
	rec.IsOpen = rec.EndTime == nil

	datePrefix := rec.Date.Format("2006-01-02")
	coll, _ := store.IncidentID("")

	const maxProbe = 1000
	for suffix := 1; suffix <= maxProbe; suffix++ {
		id := fmt.Sprintf("%s-%03d", datePrefix, suffix)
		rec.ID = id
		taken := false
		err := l.store.Update(ctx, coll, id, func(current store.Document) (any, error) {
			if len(current) > 0 {
				taken = true
				return nil, nexuserr.New("NEXUS_INCIDENT_ID_TAKEN", nexuserr.SeverityRecoverable, "incident id "+id+" already allocated")
			}
			return rec, nil
		})
		if taken {
			// Lost the race to a concurrent allocator; probe the next suffix.
			continue
		}
		if err != nil {
			return nexusmodel.IncidentRecord{}, err
		}
		return rec, nil
	}
	return nexusmodel.IncidentRecord{}, nexuserr.New("NEXUS_INCIDENT_ID_EXHAUSTED", nexuserr.SeverityRecoverable, "exhausted incident id suffixes for "+datePrefix)
}

// ResolveIncident sets endTime/duration/resolution. Calling it twice on an
// already-closed incident is a no-op (spec §8 idempotence law).
func (l *Logger) ResolveIncident(ctx context.Context, id string, resolution nexusmodel.Resolution) (nexusmodel.IncidentRecord, error) {
	coll, _ := store.IncidentID(id)
	var result nexusmodel.IncidentRecord
	err := l.store.Update(ctx, coll, id, func(current store.Document) (any, error) {
		var rec nexusmodel.IncidentRecord
		if len(current) == 0 {
			return nil, nexuserr.New("NEXUS_INCIDENT_NOT_FOUND", nexuserr.SeverityRecoverable, "incident "+id+" not found")
		}
		if err := json.Unmarshal(current, &rec); err != nil {
			return nil, err
		}
		if !rec.IsOpen {
			result = rec
			return rec, nil
		}
		now := l.clock.Now()
		rec.EndTime = &now
		rec.DurationMs = now.Sub(rec.StartTime).Milliseconds()
		res := resolution
		res.ResolvedAt = now
		rec.Resolution = &res
		rec.IsOpen = false
		if rec.Severity == nexusmodel.IncidentCritical {
			rec.PostMortem = buildPostMortem(rec, now)
		}
		result = rec
		return rec, nil
	})
	if err != nil {
		return nexusmodel.IncidentRecord{}, err
	}
	return result, nil
}

func buildPostMortem(rec nexusmodel.IncidentRecord, now time.Time) *nexusmodel.PostMortem {
	return &nexusmodel.PostMortem{
		Summary: fmt.Sprintf("CRITICAL incident %s in stage %q of pipeline %s", rec.ID, rec.Stage, rec.PipelineID),
		Timeline: []string{
			fmt.Sprintf("%s: incident opened (%s)", rec.StartTime.Format("15:04:05"), rec.Error.Code),
			fmt.Sprintf("%s: incident resolved", now.Format("15:04:05")),
		},
		RootCause:   rec.RootCause,
		Impact:      fmt.Sprintf("pipeline=%s stage=%s potential video impact: publish delayed or buffer-deployed", rec.PipelineID, rec.Stage),
		ActionItems: nil,
		GeneratedAt: now,
	}
}

// Get returns an incident by id.
func (l *Logger) Get(ctx context.Context, id string) (nexusmodel.IncidentRecord, bool, error) {
	coll, _ := store.IncidentID(id)
	doc, ok, err := l.store.Get(ctx, coll, id)
	if err != nil || !ok {
		return nexusmodel.IncidentRecord{}, ok, err
	}
	var rec nexusmodel.IncidentRecord
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nexusmodel.IncidentRecord{}, false, err
	}
	return rec, true, nil
}

// Query filters incidents by date, stage, and/or open status.
func (l *Logger) Query(ctx context.Context, datePrefix, stageName string, openOnly bool) ([]nexusmodel.IncidentRecord, error) {
	coll, _ := store.IncidentID("")
	docs, err := l.store.Query(ctx, coll, nil)
	if err != nil {
		return nil, err
	}
	out := make([]nexusmodel.IncidentRecord, 0, len(docs))
	for _, d := range docs {
		var rec nexusmodel.IncidentRecord
		if err := json.Unmarshal(d, &rec); err != nil {
			return nil, err
		}
		if datePrefix != "" && !strings.HasPrefix(rec.ID, datePrefix) {
			continue
		}
		if stageName != "" && rec.Stage != stageName {
			continue
		}
		if openOnly && !rec.IsOpen {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
