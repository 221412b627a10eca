// Package health implements the parallel health preflight (spec §4.7): a set
// of registered probes, each tagged CRITICAL or DEGRADED, run concurrently
// with independent timeouts, joined into one aggregated result that gates
// pipeline start. Grounded on the teacher's engine/telemetry/health/health.go
// Evaluator, generalized from the teacher's sequential, TTL-cached
// probe-iteration loop into genuinely concurrent probes (spec §5 "N probes
// run as parallel tasks, each with its own timeout; join on all, aggregate"),
// since the teacher evaluates probes one at a time under a single lock.
package health

import (
	"context"
	"sync"
	"time"
)

// Status is one probe's (or the aggregate's) health state.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Criticality tags whether a failing probe aborts the preflight or merely
// warns (spec §4.7).
type Criticality string

const (
	Critical Criticality = "CRITICAL"
	Degraded Criticality = "DEGRADED"
)

// ProbeResult is what a single probe returns.
type ProbeResult struct {
	Service   string         `json:"service"`
	Status    Status         `json:"status"`
	LatencyMs int64          `json:"latencyMs"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Probe checks one external dependency (spec §6 HealthProbe).
type Probe interface {
	Name() string
	Criticality() Criticality
	Check(ctx context.Context) ProbeResult
}

// ProbeFunc adapts a plain function to Probe.
type ProbeFunc struct {
	ProbeName  string
	Crit       Criticality
	CheckFunc  func(ctx context.Context) ProbeResult
}

func (p ProbeFunc) Name() string              { return p.ProbeName }
func (p ProbeFunc) Criticality() Criticality  { return p.Crit }
func (p ProbeFunc) Check(ctx context.Context) ProbeResult { return p.CheckFunc(ctx) }

// Result is the aggregated preflight outcome (spec §4.7).
type Result struct {
	AllPassed        bool          `json:"allPassed"`
	CriticalFailures []ProbeResult `json:"criticalFailures,omitempty"`
	Warnings         []ProbeResult `json:"warnings,omitempty"`
	Probes           []ProbeResult `json:"probes"`
	TotalDurationMs  int64         `json:"totalDurationMs"`
}

// Preflight runs a fixed set of registered probes.
type Preflight struct {
	probes         []Probe
	defaultTimeout time.Duration
}

// NewPreflight returns a preflight over probes, each given defaultTimeout
// (default 5s per spec §4.7) unless the probe enforces its own via ctx.
func NewPreflight(defaultTimeout time.Duration, probes ...Probe) *Preflight {
	if defaultTimeout <= 0 {
		defaultTimeout = 5 * time.Second
	}
	return &Preflight{probes: probes, defaultTimeout: defaultTimeout}
}

// Run executes every probe concurrently, each with its own timeout derived
// from defaultTimeout, and aggregates the results.
func (p *Preflight) Run(ctx context.Context) Result {
	start := time.Now()
	results := make([]ProbeResult, len(p.probes))

	var wg sync.WaitGroup
	for i, probe := range p.probes {
		wg.Add(1)
		go func(i int, probe Probe) {
			defer wg.Done()
			probeCtx, cancel := context.WithTimeout(ctx, p.defaultTimeout)
			defer cancel()

			probeStart := time.Now()
			res := probe.Check(probeCtx)
			if res.Service == "" {
				res.Service = probe.Name()
			}
			if res.LatencyMs == 0 {
				res.LatencyMs = time.Since(probeStart).Milliseconds()
			}
			if probeCtx.Err() != nil && res.Status == "" {
				res.Status = StatusUnhealthy
				res.Error = probeCtx.Err().Error()
			}
			results[i] = res
		}(i, probe)
	}
	wg.Wait()

	agg := Result{AllPassed: true, Probes: results}
	for i, res := range results {
		probe := p.probes[i]
		if res.Status == StatusUnhealthy {
			if probe.Criticality() == Critical {
				agg.AllPassed = false
				agg.CriticalFailures = append(agg.CriticalFailures, res)
			} else {
				agg.Warnings = append(agg.Warnings, res)
			}
		} else if res.Status == StatusDegraded {
			agg.Warnings = append(agg.Warnings, res)
		}
	}
	agg.TotalDurationMs = time.Since(start).Milliseconds()
	return agg
}
