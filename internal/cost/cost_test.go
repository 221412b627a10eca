package cost

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusmedia/contentops/internal/clockx"
	"github.com/nexusmedia/contentops/internal/store"
	"github.com/nexusmedia/contentops/pkg/nexusmodel"
)

func TestRecordAPICallAccumulatesBreakdown(t *testing.T) {
	s := store.NewMemory()
	clock := clockx.NewFake(time.Unix(0, 0))
	tr := NewTracker(s, clock, "2026-01-22")
	ctx := context.Background()

	require.NoError(t, tr.RecordAPICall(ctx, "script-gen", nexusmodel.CostEntry{Service: "gemini", Cost: 0.12345}))
	require.NoError(t, tr.RecordAPICall(ctx, "tts", nexusmodel.CostEntry{Service: "chirp3-hd", Cost: 0.2}))

	bd, err := tr.Breakdown(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.3235, bd.Total, 1e-6) // invariant spec §8.1: sum(stage.cost) == total
	assert.InDelta(t, 0.1235, bd.ByCategory["llm"], 1e-6)
	assert.InDelta(t, 0.2, bd.ByCategory["tts"], 1e-6)
	assert.Contains(t, bd.Services, "gemini")
	assert.Contains(t, bd.Services, "chirp3-hd")
}

func TestCheckAlertThresholds(t *testing.T) {
	assert.Equal(t, AlertNone, CheckAlert(0.50))
	assert.Equal(t, AlertWarning, CheckAlert(0.75))
	assert.Equal(t, AlertCritical, CheckAlert(1.00))
}

func TestApplySpendUpdatesBudgetDocument(t *testing.T) {
	s := store.NewMemory()
	clock := clockx.NewFake(time.Unix(0, 0))
	bt := NewBudgetTracker(s, clock)
	ctx := context.Background()

	coll, id := store.BudgetCurrentID()
	initial := nexusmodel.BudgetDocument{InitialCredit: 100, Remaining: 100, IsWithinBudget: true}
	require.NoError(t, s.Set(ctx, coll, id, initial))

	doc, err := bt.ApplySpend(ctx, 10, "2026-01", AlertNone)
	require.NoError(t, err)
	assert.InDelta(t, 10, doc.TotalSpent, 1e-6)
	assert.InDelta(t, 90, doc.Remaining, 1e-6)
	assert.True(t, doc.IsWithinBudget)
}

func TestApplySpendTracksDedupedAlertCounts(t *testing.T) {
	s := store.NewMemory()
	clock := clockx.NewFake(time.Unix(0, 0))
	bt := NewBudgetTracker(s, clock)
	ctx := context.Background()

	coll, id := store.BudgetCurrentID()
	require.NoError(t, s.Set(ctx, coll, id, nexusmodel.BudgetDocument{InitialCredit: 100}))

	_, err := bt.ApplySpend(ctx, 1, "2026-01", AlertCritical)
	require.NoError(t, err)
	doc, err := bt.ApplySpend(ctx, 1, "2026-01", AlertCritical)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.AlertCounts["CRITICAL-2026-01"])
}

func TestApplySpendCanPushRemainingNegative(t *testing.T) {
	s := store.NewMemory()
	clock := clockx.NewFake(time.Unix(0, 0))
	bt := NewBudgetTracker(s, clock)
	ctx := context.Background()

	coll, id := store.BudgetCurrentID()
	require.NoError(t, s.Set(ctx, coll, id, nexusmodel.BudgetDocument{InitialCredit: 5}))

	doc, err := bt.ApplySpend(ctx, 10, "2026-01", AlertNone)
	require.NoError(t, err)
	assert.False(t, doc.IsWithinBudget)
	assert.Less(t, doc.Remaining, 0.0)
}
