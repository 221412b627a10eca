// Package pipelinerun implements the pipeline runner and state machine
// (spec §4.6): health preflight gating, sequential stage execution through
// the stage executor, failure routing (CRITICAL aborts and triggers the
// buffer subsystem, RECOVERABLE skips to the next stage), from-stage resume,
// and the final pre-publish decision. Grounded on the teacher's
// engine/internal/pipeline Pipeline type's top-level orchestration shape
// (NewPipeline/startStages/Stop lifecycle), adapted from a long-lived
// channel-driven worker pool into a single sequential run-to-completion call
// per day's pipelineId, since a pipeline run here is not concurrent fan-out
// over many URLs but one strictly ordered sequence of stages.
package pipelinerun

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nexusmedia/contentops/internal/buffer"
	"github.com/nexusmedia/contentops/internal/clockx"
	"github.com/nexusmedia/contentops/internal/executor"
	"github.com/nexusmedia/contentops/internal/health"
	"github.com/nexusmedia/contentops/internal/nexuserr"
	"github.com/nexusmedia/contentops/internal/quality"
	"github.com/nexusmedia/contentops/internal/stage"
	"github.com/nexusmedia/contentops/internal/store"
	"github.com/nexusmedia/contentops/internal/telemetry/logging"
	"github.com/nexusmedia/contentops/pkg/nexusmodel"
)

// Runner sequences a fixed stage registry for one pipelineId, routing
// failures and triggering the buffer subsystem when the live pipeline
// cannot ship.
type Runner struct {
	store     store.DocumentStore
	clock     clockx.Clock
	logger    logging.Logger
	registry  *stage.Registry
	executor  *executor.Executor
	preflight *health.Preflight
	inventory *buffer.Inventory
	publisher buffer.Publisher
	gates     quality.Registry
}

// New constructs a Runner. publisher is the collaborator that actually
// publishes a buffer video under a target date (spec §6, out of core
// scope); gates may be nil to run every stage ungated.
func New(s store.DocumentStore, clock clockx.Clock, logger logging.Logger, registry *stage.Registry, exec *executor.Executor, preflight *health.Preflight, inventory *buffer.Inventory, publisher buffer.Publisher, gates quality.Registry) *Runner {
	if gates == nil {
		gates = quality.Registry{}
	}
	return &Runner{store: s, clock: clock, logger: logger, registry: registry, executor: exec, preflight: preflight, inventory: inventory, publisher: publisher, gates: gates}
}

// Factory builds a Runner scoped to one pipelineId. Cost accounting
// (internal/cost.Tracker) is bound to a single pipeline run at construction,
// so a long-lived server spanning many days' pipelineIds builds a fresh
// Runner per trigger rather than reusing one across days.
type Factory func(pipelineID string) *Runner

// Result is the structured outcome of one Run call (spec §4.7 "returns a
// structured skipped-pipeline response").
type Result struct {
	State          *nexusmodel.PipelineState
	Skipped        bool
	BufferDeployed bool
	BufferError    error
	Preflight      *health.Result
	Decision       *nexusmodel.PublishDecision
}

// Run drives pipelineId from pending through completion: health preflight,
// then every registered stage in order, then the pre-publish decision.
func (r *Runner) Run(ctx context.Context, pipelineID, topic string) (Result, error) {
	preflightResult := r.preflight.Run(ctx)
	if !preflightResult.AllPassed {
		r.logger.ErrorCtx(ctx, "preflight_failed", "pipelineId", pipelineID, "criticalFailures", len(preflightResult.CriticalFailures))
		state, err := r.loadOrCreate(ctx, pipelineID, topic)
		if err != nil {
			return Result{}, err
		}
		state.Status = nexusmodel.StatusSkipped
		end := r.clock.Now()
		state.EndTime = &end
		if err := r.save(ctx, state); err != nil {
			return Result{}, err
		}
		deployed, bufErr := r.triggerBuffer(ctx, pipelineID)
		return Result{State: state, Skipped: true, BufferDeployed: deployed, BufferError: bufErr, Preflight: &preflightResult}, nil
	}

	state, err := r.loadOrCreate(ctx, pipelineID, topic)
	if err != nil {
		return Result{}, err
	}
	if state.Status == nexusmodel.StatusPending {
		state.Status = nexusmodel.StatusRunning
		if err := r.save(ctx, state); err != nil {
			return Result{}, err
		}
	}

	result, err := r.runFrom(ctx, state, r.registry.Names())
	result.Preflight = &preflightResult
	return result, err
}

// Resume re-enters a failed pipeline at fromStage (spec §4.6 resume rule):
// allowed only when status == failed, stages >= fromStage are reset to
// pending with their slots cleared, the error log is preserved, and
// execution proceeds from fromStage.
func (r *Runner) Resume(ctx context.Context, pipelineID, fromStage string) (Result, error) {
	if _, ok := r.registry.Get(fromStage); !ok {
		return Result{}, nexuserr.New("NEXUS_RUNNER_UNKNOWN_STAGE", nexuserr.SeverityRecoverable, fmt.Sprintf("stage %q is not registered", fromStage))
	}

	state, err := r.load(ctx, pipelineID)
	if err != nil {
		return Result{}, err
	}
	if state == nil {
		return Result{}, nexuserr.New("NEXUS_RUNNER_NOT_FOUND", nexuserr.SeverityRecoverable, fmt.Sprintf("pipeline %q has no state", pipelineID))
	}
	if state.Status != nexusmodel.StatusFailed {
		return Result{}, nexuserr.New("NEXUS_RUNNER_RESUME_INVALID", nexuserr.SeverityRecoverable, fmt.Sprintf("pipeline %q is %q, not failed", pipelineID, state.Status))
	}

	for _, name := range r.registry.From(fromStage) {
		delete(state.Stages, name)
	}
	state.Status = nexusmodel.StatusRunning
	state.EndTime = nil
	if err := r.save(ctx, state); err != nil {
		return Result{}, err
	}

	result, err := r.runFrom(ctx, state, r.registry.From(fromStage))
	return result, err
}

// runFrom executes stageNames in order against state, routing CRITICAL
// failures to an abort+buffer-deploy and RECOVERABLE failures to a
// skip-and-continue, per the state machine in spec §4.6.
func (r *Runner) runFrom(ctx context.Context, state *nexusmodel.PipelineState, stageNames []string) (Result, error) {
	var lastData any
	previousStage := state.CurrentStage
	if len(stageNames) > 0 && previousStage == stageNames[0] {
		previousStage = ""
	}

	for _, name := range stageNames {
		st, ok := r.registry.Get(name)
		if !ok {
			continue
		}

		input := nexusmodel.StageInput{
			PipelineID:     state.PipelineID,
			PreviousStage:  previousStage,
			Data:           lastData,
			QualityContext: state.QualityContext,
		}

		output, nextCtx, err := r.executor.Execute(ctx, input, name, executor.FromStage(st), executor.Options{QualityGate: r.gates[name]})

		// The executor persists the stage slot (and, on failure, the error
		// log) through its own store.Update call, independent of this
		// in-memory state snapshot. Reload so the runner's copy reflects
		// that write before layering the runner-owned fields (quality
		// context, artifacts, status) on top of it.
		if reloaded, loadErr := r.load(ctx, state.PipelineID); loadErr == nil && reloaded != nil {
			reloaded.Topic = state.Topic
			state = reloaded
		}
		state.QualityContext = nextCtx

		if err != nil {
			typed := nexuserr.Wrap(err, name)
			switch typed.Severity {
			case nexuserr.SeverityRecoverable:
				previousStage = name
				continue
			default:
				state.Status = nexusmodel.StatusFailed
				end := r.clock.Now()
				state.EndTime = &end
				if saveErr := r.save(ctx, state); saveErr != nil {
					return Result{}, saveErr
				}
				deployed, bufErr := r.triggerBuffer(ctx, state.PipelineID)
				return Result{State: state, BufferDeployed: deployed, BufferError: bufErr}, typed
			}
		}

		lastData = output.Data
		if len(output.Artifacts) > 0 {
			state.Artifacts[name] = append(state.Artifacts[name], output.Artifacts...)
		}
		previousStage = name
	}

	state.Status = nexusmodel.StatusSuccess
	end := r.clock.Now()
	state.EndTime = &end
	if err := r.save(ctx, state); err != nil {
		return Result{}, err
	}

	decision := quality.Decide(r.clock, state.QualityContext)
	return Result{State: state, Decision: &decision}, nil
}

// triggerBuffer selects and deploys a buffer video under pipelineId when the
// live pipeline cannot ship (spec §4.7, §4.8).
func (r *Runner) triggerBuffer(ctx context.Context, pipelineID string) (bool, error) {
	video, err := r.inventory.SelectForDeployment(ctx)
	if err != nil {
		r.logger.ErrorCtx(ctx, "buffer_selection_failed", "pipelineId", pipelineID, "error", err.Error())
		return false, err
	}
	if _, err := r.inventory.Deploy(ctx, video, pipelineID, r.publisher); err != nil {
		r.logger.ErrorCtx(ctx, "buffer_deploy_failed", "pipelineId", pipelineID, "bufferId", video.ID, "error", err.Error())
		return false, err
	}
	r.logger.InfoCtx(ctx, "buffer_deployed", "pipelineId", pipelineID, "bufferId", video.ID)
	return true, nil
}

func (r *Runner) load(ctx context.Context, pipelineID string) (*nexusmodel.PipelineState, error) {
	collection, id := store.PipelineStateID(pipelineID)
	doc, ok, err := r.store.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	state := &nexusmodel.PipelineState{}
	if err := json.Unmarshal(doc, state); err != nil {
		return nil, err
	}
	if state.Stages == nil {
		state.Stages = make(map[string]nexusmodel.StageSlot)
	}
	if state.Artifacts == nil {
		state.Artifacts = make(map[string][]nexusmodel.ArtifactRef)
	}
	return state, nil
}

func (r *Runner) loadOrCreate(ctx context.Context, pipelineID, topic string) (*nexusmodel.PipelineState, error) {
	state, err := r.load(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	if state != nil {
		return state, nil
	}
	state = nexusmodel.NewPipelineState(pipelineID, r.clock.Now())
	state.Topic = topic
	return state, nil
}

func (r *Runner) save(ctx context.Context, state *nexusmodel.PipelineState) error {
	collection, id := store.PipelineStateID(state.PipelineID)
	return r.store.Set(ctx, collection, id, state)
}
