// Package executor implements the stage executor (spec §4.4): the single
// seam every stage is invoked through, wrapping a stage body with timing,
// cost tracking, quality gating, state persistence, incident logging, and
// structured logging. Grounded on the teacher's engine/internal/pipeline
// worker loop's start/work/persist/log discipline, adapted from a
// channel-fed background worker into a synchronous call a pipeline runner
// invokes once per stage.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/nexusmedia/contentops/internal/clockx"
	"github.com/nexusmedia/contentops/internal/cost"
	"github.com/nexusmedia/contentops/internal/incident"
	"github.com/nexusmedia/contentops/internal/nexuserr"
	"github.com/nexusmedia/contentops/internal/quality"
	"github.com/nexusmedia/contentops/internal/store"
	"github.com/nexusmedia/contentops/internal/telemetry/logging"
	"github.com/nexusmedia/contentops/internal/telemetry/metrics"
	"github.com/nexusmedia/contentops/pkg/nexusmodel"
)

// Body is a stage's implementation. It is expected to internally compose
// retryx.Do and fallbackx.Do (spec §4.4 step 3): the executor itself never
// retries or falls back, it only wraps one already-resolved attempt. Body
// returns the stage's output excluding durationMs/cost (which the executor
// fills in); the Provider field is set by the body itself, having already
// composed fallbackx.Do internally.
type Body func(ctx context.Context, input nexusmodel.StageInput) (nexusmodel.StageBodyOutput, error)

// FromStage adapts a registered stage.Stage into a Body, so the pipeline
// runner can execute registry entries directly through Executor.Execute.
func FromStage(s interface {
	Execute(ctx context.Context, input nexusmodel.StageInput) (nexusmodel.StageBodyOutput, error)
}) Body {
	return s.Execute
}

// Options configures one Execute call.
type Options struct {
	// QualityGate is run against the body's output, if set. A nil gate is an
	// automatic PASS (spec §4.4 step 4).
	QualityGate quality.Gate
	// CostEntry, if non-nil, is recorded against the pipeline's cost
	// breakdown once the stage succeeds.
	CostEntry *nexusmodel.CostEntry
}

// Executor is the seam every stage invocation passes through.
type Executor struct {
	store     store.DocumentStore
	clock     clockx.Clock
	logger    logging.Logger
	incidents *incident.Logger
	costs     *cost.Tracker
	metrics   *metrics.Exporter
}

// New constructs an Executor. metricsExporter may be nil, in which case
// stage/gate counters are simply not recorded.
func New(s store.DocumentStore, clock clockx.Clock, logger logging.Logger, incidents *incident.Logger, costs *cost.Tracker, metricsExporter *metrics.Exporter) *Executor {
	return &Executor{store: s, clock: clock, logger: logger, incidents: incidents, costs: costs, metrics: metricsExporter}
}

// Execute runs stageName's body under the contract in spec §4.4 and returns
// the fully-populated StageOutput plus the pipeline-wide QualityContext
// merged with whatever this stage's gate contributed.
func (e *Executor) Execute(ctx context.Context, input nexusmodel.StageInput, stageName string, body Body, opts Options) (nexusmodel.StageOutput, nexusmodel.QualityContext, error) {
	e.logger.InfoCtx(ctx, "stage_start",
		"stage", stageName,
		"previousStage", input.PreviousStage,
		"degradedStages", input.QualityContext.DegradedStagesList(),
	)

	start := e.clock.Now()
	bodyOut, err := body(ctx, input)
	provider := bodyOut.Provider
	durationMs := e.clock.Now().Sub(start).Milliseconds()

	if err != nil {
		typed := nexuserr.Wrap(err, stageName)
		e.onFailure(ctx, input, stageName, typed, start)
		if e.metrics != nil {
			e.metrics.RecordStageAttempt(stageName, "failure", float64(durationMs))
		}
		return nexusmodel.StageOutput{}, input.QualityContext, typed
	}

	nextCtx := input.QualityContext.Clone()
	gateOutcome := "pass"
	if opts.QualityGate != nil {
		result := opts.QualityGate(stageName, bodyOut.Metrics, nextCtx)
		switch result.Status {
		case nexusmodel.GatePass:
			// no change
		case nexusmodel.GateDegraded:
			gateOutcome = "degraded"
			nextCtx.DegradedStages[stageName] = struct{}{}
			bodyOut.Warnings = append(bodyOut.Warnings, result.Warnings...)
		case nexusmodel.GateFail:
			gateOutcome = "fail"
			severity := nexuserr.SeverityRecoverable
			if result.FailSeverity == string(nexuserr.SeverityCritical) {
				severity = nexuserr.SeverityCritical
			}
			typed := nexuserr.New(fmt.Sprintf("NEXUS_%s_GATE_FAILED", toUpperSnake(stageName)), severity, result.Reason).WithStage(stageName)
			e.onFailure(ctx, input, stageName, typed, start)
			if e.metrics != nil {
				e.metrics.RecordStageAttempt(stageName, "failure", float64(durationMs))
				e.metrics.RecordGateOutcome(stageName, gateOutcome)
			}
			return nexusmodel.StageOutput{}, input.QualityContext, typed
		}
	}

	if provider.Tier == nexusmodel.ProviderTierFallback {
		nextCtx.FallbacksUsed[stageName+":"+provider.Name] = struct{}{}
	}

	var recordedCost float64
	if opts.CostEntry != nil {
		if err := e.costs.RecordAPICall(ctx, stageName, *opts.CostEntry); err != nil {
			return nexusmodel.StageOutput{}, input.QualityContext, nexuserr.Wrap(err, stageName)
		}
		recordedCost = opts.CostEntry.Cost
	}

	output := nexusmodel.StageOutput{
		Success:    bodyOut.Success,
		Data:       bodyOut.Data,
		Artifacts:  bodyOut.Artifacts,
		Metrics:    bodyOut.Metrics,
		DurationMs: durationMs,
		Provider:   provider,
		Cost:       recordedCost,
		Warnings:   bodyOut.Warnings,
	}

	if err := e.persistStageSlot(ctx, input.PipelineID, stageName, output, start); err != nil {
		return nexusmodel.StageOutput{}, input.QualityContext, nexuserr.Wrap(err, stageName)
	}

	e.logger.InfoCtx(ctx, "stage_complete",
		"stage", stageName,
		"provider", provider.Name,
		"tier", string(provider.Tier),
		"attempts", provider.Attempts,
		"cost", recordedCost,
		"warnings", output.Warnings,
	)

	if e.metrics != nil {
		e.metrics.RecordStageAttempt(stageName, "success", float64(durationMs))
		e.metrics.RecordGateOutcome(stageName, gateOutcome)
	}

	return output, nextCtx, nil
}

// onFailure persists the error onto the pipeline's error log, opens an
// incident, and logs stage_error (spec §4.4 step 7).
func (e *Executor) onFailure(ctx context.Context, input nexusmodel.StageInput, stageName string, typed *nexuserr.Error, start time.Time) {
	e.logger.ErrorCtx(ctx, "stage_error", "stage", stageName, "code", typed.Code, "severity", string(typed.Severity))

	collection, id := store.PipelineStateID(input.PipelineID)
	_ = e.store.Update(ctx, collection, id, func(current store.Document) (any, error) {
		state := loadOrNewState(current, input.PipelineID, e.clock.Now())
		state.Errors = append(state.Errors, nexusmodel.ErrorRecordFrom(typed))
		state.Stages[stageName] = nexusmodel.StageSlot{
			Status:    nexusmodel.StageStatusFailed,
			StartTime: start,
		}
		return state, nil
	})

	if e.incidents == nil {
		return
	}
	exhausted := typed.Code == "NEXUS_RETRY_EXHAUSTED" || typed.Code == "NEXUS_FALLBACK_EXHAUSTED"
	severity := incident.SeverityFor(typed.Severity, exhausted)
	_, _ = e.incidents.LogIncident(ctx, nexusmodel.IncidentRecord{
		PipelineID: input.PipelineID,
		Stage:      stageName,
		Error:      nexusmodel.IncidentError{Code: typed.Code, Message: typed.Message},
		Severity:   severity,
		StartTime:  start,
	})
}

func (e *Executor) persistStageSlot(ctx context.Context, pipelineID, stageName string, output nexusmodel.StageOutput, start time.Time) error {
	collection, id := store.PipelineStateID(pipelineID)
	return e.store.Update(ctx, collection, id, func(current store.Document) (any, error) {
		state := loadOrNewState(current, pipelineID, e.clock.Now())
		endTime := e.clock.Now()
		state.Stages[stageName] = nexusmodel.StageSlot{
			Status:     nexusmodel.StageStatusSuccess,
			StartTime:  start,
			EndTime:    &endTime,
			Provider:   output.Provider.Name,
			Attempts:   output.Provider.Attempts,
			DurationMs: output.DurationMs,
			Cost:       output.Cost,
			Warnings:   output.Warnings,
		}
		state.CurrentStage = stageName
		return state, nil
	})
}

func toUpperSnake(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '-' || c == ' ' {
			out = append(out, '_')
			continue
		}
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}
