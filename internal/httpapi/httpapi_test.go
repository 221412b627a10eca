package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusmedia/contentops/internal/buffer"
	"github.com/nexusmedia/contentops/internal/clockx"
	"github.com/nexusmedia/contentops/internal/cost"
	execpkg "github.com/nexusmedia/contentops/internal/executor"
	"github.com/nexusmedia/contentops/internal/health"
	"github.com/nexusmedia/contentops/internal/incident"
	"github.com/nexusmedia/contentops/internal/nexuserr"
	"github.com/nexusmedia/contentops/internal/pipelinerun"
	"github.com/nexusmedia/contentops/internal/stage"
	"github.com/nexusmedia/contentops/internal/store"
	"github.com/nexusmedia/contentops/internal/telemetry/logging"
	"github.com/nexusmedia/contentops/pkg/nexusmodel"
)

type stubStage struct {
	name string
	exec func(ctx context.Context, input nexusmodel.StageInput) (nexusmodel.StageBodyOutput, error)
}

func (s stubStage) Name() string { return s.name }
func (s stubStage) Execute(ctx context.Context, input nexusmodel.StageInput) (nexusmodel.StageBodyOutput, error) {
	return s.exec(ctx, input)
}

func okStage(name string) stubStage {
	return stubStage{name: name, exec: func(ctx context.Context, input nexusmodel.StageInput) (nexusmodel.StageBodyOutput, error) {
		return nexusmodel.StageBodyOutput{Success: true, Provider: nexusmodel.ProviderInfo{Name: "primary", Tier: nexusmodel.ProviderTierPrimary, Attempts: 1}}, nil
	}}
}

func healthyPreflight() *health.Preflight {
	return health.NewPreflight(time.Second, health.ProbeFunc{ProbeName: "youtube", Crit: health.Critical, CheckFunc: func(ctx context.Context) health.ProbeResult {
		return health.ProbeResult{Status: health.StatusHealthy}
	}})
}

func criticalFailingPreflight() *health.Preflight {
	return health.NewPreflight(time.Second, health.ProbeFunc{ProbeName: "youtube", Crit: health.Critical, CheckFunc: func(ctx context.Context) health.ProbeResult {
		return health.ProbeResult{Status: health.StatusUnhealthy, Error: "connection refused"}
	}})
}

// factoryOver builds a pipelinerun.Factory that always serves stages over
// the same shared store/clock, constructing a fresh cost tracker (scoped to
// the requested pipelineId), executor, and runner per call, as cmd/nexusd
// does in production; unlike cmd/nexusd it passes no quality gates.
func factoryOver(s store.DocumentStore, clock clockx.Clock, registry *stage.Registry, preflight *health.Preflight, inventory *buffer.Inventory, publisher buffer.Publisher) pipelinerun.Factory {
	return func(pipelineID string) *pipelinerun.Runner {
		incidents := incident.NewLogger(s, clock)
		costs := cost.NewTracker(s, clock, pipelineID)
		exec := execpkg.New(s, clock, logging.New(nil), incidents, costs, nil)
		return pipelinerun.New(s, clock, logging.New(nil), registry, exec, preflight, inventory, publisher, nil)
	}
}

func newHandlers(t *testing.T, preflight *health.Preflight, stages []stage.Stage) (*Handlers, store.DocumentStore, *clockx.Fake) {
	t.Helper()
	s := store.NewMemory()
	clock := clockx.NewFake(time.Date(2026, 1, 22, 9, 0, 0, 0, time.UTC))
	registry, err := stage.NewRegistry(stages...)
	require.NoError(t, err)
	inventory := buffer.NewInventory(s, clock)
	publisher := buffer.Publisher(func(ctx context.Context, date string, video nexusmodel.BufferVideo) error { return nil })
	return New(factoryOver(s, clock, registry, preflight, inventory, publisher), clock, logging.New(nil), 0), s, clock
}

func seedBuffer(t *testing.T, s store.DocumentStore, clock clockx.Clock, id string) {
	t.Helper()
	collection, docID := store.BufferVideoID(id)
	require.NoError(t, s.Set(context.Background(), collection, docID, nexusmodel.BufferVideo{
		ID: id, Topic: "evergreen", CreatedDate: clock.Now(), Status: nexusmodel.BufferActive, Used: false,
	}))
}

func TestTriggerScheduledSucceedsWhenHealthy(t *testing.T) {
	h, _, _ := newHandlers(t, healthyPreflight(), []stage.Stage{okStage("script-gen")})

	body, _ := json.Marshal(scheduledTriggerRequest{Source: "cron", JobName: "daily"})
	req := httptest.NewRequest(http.MethodPost, "/trigger/scheduled", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.TriggerScheduled(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var resp scheduledTriggerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2026-01-22", resp.PipelineID)
	assert.Equal(t, string(nexusmodel.StatusSuccess), resp.Status)
}

func TestTriggerScheduledReturns503OnCriticalHealthFailure(t *testing.T) {
	h, s, clock := newHandlers(t, criticalFailingPreflight(), []stage.Stage{okStage("script-gen")})
	seedBuffer(t, s, clock, "buf-1")

	req := httptest.NewRequest(http.MethodPost, "/trigger/scheduled", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()

	h.TriggerScheduled(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp healthFailureResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.BufferDeploymentTriggered)
	require.NotNil(t, resp.HealthResult)
	assert.False(t, resp.HealthResult.AllPassed)
}

func TestTriggerManualWaitReturnsFullSummary(t *testing.T) {
	h, _, _ := newHandlers(t, healthyPreflight(), []stage.Stage{okStage("script-gen")})

	body, _ := json.Marshal(manualTriggerRequest{Date: "2026-01-22", Wait: true})
	req := httptest.NewRequest(http.MethodPost, "/trigger/manual", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.TriggerManual(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp manualTriggerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(nexusmodel.StatusSuccess), resp.Status)
	require.NotNil(t, resp.Decision)
}

func TestTriggerManualWithoutDateReturns400(t *testing.T) {
	h, _, _ := newHandlers(t, healthyPreflight(), []stage.Stage{okStage("script-gen")})

	req := httptest.NewRequest(http.MethodPost, "/trigger/manual", bytes.NewReader([]byte(`{"wait":true}`)))
	rec := httptest.NewRecorder()

	h.TriggerManual(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerManualAsyncReturns202Immediately(t *testing.T) {
	h, _, _ := newHandlers(t, healthyPreflight(), []stage.Stage{okStage("script-gen")})

	body, _ := json.Marshal(manualTriggerRequest{Date: "2026-01-22", Wait: false})
	req := httptest.NewRequest(http.MethodPost, "/trigger/manual", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.TriggerManual(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var resp manualTriggerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.IdempotencyToken)
}

func TestRetryReturns409WhenPipelineNotFailed(t *testing.T) {
	h, _, _ := newHandlers(t, healthyPreflight(), []stage.Stage{okStage("script-gen")})

	body, _ := json.Marshal(manualTriggerRequest{Date: "2026-01-22", Wait: true})
	req := httptest.NewRequest(http.MethodPost, "/trigger/manual", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.TriggerManual(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	retryBody, _ := json.Marshal(retryRequest{PipelineID: "2026-01-22", FromStage: "script-gen"})
	retryReq := httptest.NewRequest(http.MethodPost, "/retry", bytes.NewReader(retryBody))
	retryRec := httptest.NewRecorder()
	h.Retry(retryRec, retryReq)

	assert.Equal(t, http.StatusConflict, retryRec.Code)
}

func TestRetrySucceedsAfterFailure(t *testing.T) {
	s := store.NewMemory()
	clock := clockx.NewFake(time.Date(2026, 1, 22, 9, 0, 0, 0, time.UTC))
	seedBuffer(t, s, clock, "buf-1")
	inventory := buffer.NewInventory(s, clock)
	publisher := buffer.Publisher(func(ctx context.Context, date string, video nexusmodel.BufferVideo) error { return nil })

	failing := stubStage{name: "render", exec: func(ctx context.Context, input nexusmodel.StageInput) (nexusmodel.StageBodyOutput, error) {
		return nexusmodel.StageBodyOutput{}, nexuserr.New("NEXUS_RENDER_CRASH", nexuserr.SeverityCritical, "renderer died")
	}}
	registry, err := stage.NewRegistry(okStage("script-gen"), failing)
	require.NoError(t, err)
	h := New(factoryOver(s, clock, registry, healthyPreflight(), inventory, publisher), clock, logging.New(nil), 0)

	body, _ := json.Marshal(manualTriggerRequest{Date: "2026-01-22", Wait: true})
	req := httptest.NewRequest(http.MethodPost, "/trigger/manual", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.TriggerManual(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var failedResp manualTriggerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &failedResp))
	require.Equal(t, string(nexusmodel.StatusFailed), failedResp.Status)

	fixedRegistry, err := stage.NewRegistry(okStage("script-gen"), okStage("render"))
	require.NoError(t, err)
	hFixed := New(factoryOver(s, clock, fixedRegistry, healthyPreflight(), inventory, publisher), clock, logging.New(nil), 0)

	retryBody, _ := json.Marshal(retryRequest{PipelineID: "2026-01-22", FromStage: "render"})
	retryReq := httptest.NewRequest(http.MethodPost, "/retry", bytes.NewReader(retryBody))
	retryRec := httptest.NewRecorder()
	hFixed.Retry(retryRec, retryReq)

	assert.Equal(t, http.StatusOK, retryRec.Code)
	var retryResp retryResponse
	require.NoError(t, json.Unmarshal(retryRec.Body.Bytes(), &retryResp))
	assert.Equal(t, string(nexusmodel.StatusSuccess), retryResp.Status)
}

func TestAuthorizedRejectsShortOrMissingToken(t *testing.T) {
	h, _, _ := newHandlers(t, healthyPreflight(), []stage.Stage{okStage("script-gen")})
	h.minTokenLen = 10

	req := httptest.NewRequest(http.MethodPost, "/trigger/scheduled", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	h.TriggerScheduled(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/trigger/scheduled", bytes.NewReader([]byte(`{}`)))
	req2.Header.Set("Authorization", "Bearer a-long-enough-token")
	rec2 := httptest.NewRecorder()
	h.TriggerScheduled(rec2, req2)
	assert.Equal(t, http.StatusAccepted, rec2.Code)
}
