package executor

import (
	"encoding/json"
	"time"

	"github.com/nexusmedia/contentops/internal/store"
	"github.com/nexusmedia/contentops/pkg/nexusmodel"
)

// loadOrNewState decodes current into a PipelineState, or returns a fresh
// pending one if current is empty (the pipeline runner is expected to have
// already written the initial state, but stage bodies run standalone in
// tests without that step).
func loadOrNewState(current store.Document, pipelineID string, now time.Time) *nexusmodel.PipelineState {
	if len(current) == 0 {
		return nexusmodel.NewPipelineState(pipelineID, now)
	}
	state := &nexusmodel.PipelineState{}
	if err := json.Unmarshal(current, state); err != nil {
		return nexusmodel.NewPipelineState(pipelineID, now)
	}
	if state.Stages == nil {
		state.Stages = make(map[string]nexusmodel.StageSlot)
	}
	return state
}
