// Package cost implements the per-call cost accounting and daily budget
// tracker (spec §4.10). Grounded on the teacher's Prometheus CounterVec
// accumulation pattern in engine/monitoring/monitoring.go, adapted from
// metric counters to money: a per-pipeline in-memory roll-up plus a single
// shared budget document guarded by optimistic concurrency.
package cost

import (
	"context"
	"fmt"
	"math"

	"github.com/nexusmedia/contentops/internal/clockx"
	"github.com/nexusmedia/contentops/internal/nexuserr"
	"github.com/nexusmedia/contentops/internal/store"
	"github.com/nexusmedia/contentops/pkg/nexusmodel"
)

// WarningThresholdUSD and CriticalThresholdUSD are the per-video cost alert
// thresholds (spec §4.10).
const (
	WarningThresholdUSD  = 0.75
	CriticalThresholdUSD = 1.00
)

// serviceCategory maps a service name to the byCategory bucket spec §4.10
// groups costs into (llm, tts, render, ...). Unrecognized services fall into
// "other".
func serviceCategory(service string) string {
	switch service {
	case "gemini", "gpt-4", "claude", "llm":
		return "llm"
	case "chirp3-standard", "chirp3-hd", "elevenlabs", "tts":
		return "tts"
	case "render", "ffmpeg":
		return "render"
	case "imagen", "dalle", "visual-gen":
		return "visual"
	default:
		return "other"
	}
}

// round4 rounds (half away from zero) to 4-decimal USD precision per spec §3
// CostRecord.
func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// Tracker accumulates cost entries for a single pipeline run and persists
// the rollup to the document store under pipelines/{id}/costs.
type Tracker struct {
	store      store.DocumentStore
	clock      clockx.Clock
	pipelineID string
}

// NewTracker returns a cost tracker scoped to one pipeline run.
func NewTracker(s store.DocumentStore, clock clockx.Clock, pipelineID string) *Tracker {
	return &Tracker{store: s, clock: clock, pipelineID: pipelineID}
}

// RecordAPICall appends one cost entry under stageName and persists the
// updated breakdown (spec §4.10 recordApiCall).
func (t *Tracker) RecordAPICall(ctx context.Context, stageName string, entry nexusmodel.CostEntry) error {
	entry.Cost = round4(entry.Cost)
	if entry.Timestamp.IsZero() {
		entry.Timestamp = t.clock.Now()
	}

	coll, id := store.PipelineCostsID(t.pipelineID)
	return t.store.Update(ctx, coll, id, func(current store.Document) (any, error) {
		var bd nexusmodel.CostBreakdown
		if len(current) > 0 {
			if err := unmarshalInto(current, &bd); err != nil {
				return nil, err
			}
		} else {
			bd = *nexusmodel.NewCostBreakdown(t.pipelineID)
		}

		bd.Entries[stageName] = append(bd.Entries[stageName], entry)
		bd.Total = round4(bd.Total + entry.Cost)
		cat := serviceCategory(entry.Service)
		bd.ByCategory[cat] = round4(bd.ByCategory[cat] + entry.Cost)
		bd.ByStage[stageName] = round4(bd.ByStage[stageName] + entry.Cost)
		if !containsString(bd.Services, entry.Service) {
			bd.Services = append(bd.Services, entry.Service)
		}
		return bd, nil
	})
}

// Breakdown loads the persisted cost rollup for the tracker's pipeline.
func (t *Tracker) Breakdown(ctx context.Context) (*nexusmodel.CostBreakdown, error) {
	coll, id := store.PipelineCostsID(t.pipelineID)
	doc, ok, err := t.store.Get(ctx, coll, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nexusmodel.NewCostBreakdown(t.pipelineID), nil
	}
	var bd nexusmodel.CostBreakdown
	if err := unmarshalInto(doc, &bd); err != nil {
		return nil, err
	}
	return &bd, nil
}

// AlertLevel reports whether a video's accumulated cost crosses a threshold.
type AlertLevel string

const (
	AlertNone     AlertLevel = ""
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// CheckAlert returns the alert level implied by a video's total cost.
func CheckAlert(total float64) AlertLevel {
	if total >= CriticalThresholdUSD {
		return AlertCritical
	}
	if total >= WarningThresholdUSD {
		return AlertWarning
	}
	return AlertNone
}

// BudgetTracker maintains the single shared budget document with
// optimistic-concurrency read-modify-write (spec §4.10, §5).
type BudgetTracker struct {
	store store.DocumentStore
	clock clockx.Clock
}

// NewBudgetTracker returns a tracker over the shared budget/current document.
func NewBudgetTracker(s store.DocumentStore, clock clockx.Clock) *BudgetTracker {
	return &BudgetTracker{store: s, clock: clock}
}

// ApplySpend adds amount to totalSpent and recomputes derived fields,
// retrying on CAS conflict (spec §5: "clients use optimistic concurrency
// with a version token" — lastUpdated is that token here).
func (b *BudgetTracker) ApplySpend(ctx context.Context, amount float64, monthKey string, level AlertLevel) (nexusmodel.BudgetDocument, error) {
	coll, id := store.BudgetCurrentID()
	const maxAttempts = 5

	for attempt := 0; attempt < maxAttempts; attempt++ {
		doc, ok, err := b.store.Get(ctx, coll, id)
		if err != nil {
			return nexusmodel.BudgetDocument{}, err
		}
		var current nexusmodel.BudgetDocument
		if ok {
			if err := unmarshalInto(doc, &current); err != nil {
				return nexusmodel.BudgetDocument{}, err
			}
		}
		if current.AlertCounts == nil {
			current.AlertCounts = make(map[string]int)
		}

		next := current
		next.TotalSpent = round4(current.TotalSpent + amount)
		next.Remaining = round4(current.InitialCredit - next.TotalSpent)
		next.IsWithinBudget = next.Remaining >= 0
		next.LastUpdated = b.clock.Now()
		if level != AlertNone {
			key := fmt.Sprintf("%s-%s", level, monthKey)
			next.AlertCounts = copyAlertCounts(current.AlertCounts)
			next.AlertCounts[key]++
		}

		ok2, err := b.store.CompareAndSet(ctx, coll, id, current, next)
		if err != nil {
			return nexusmodel.BudgetDocument{}, err
		}
		if ok2 {
			return next, nil
		}
	}
	return nexusmodel.BudgetDocument{}, nexuserr.New("NEXUS_BUDGET_CONTENTION", nexuserr.SeverityRecoverable, "budget document update lost the race too many times")
}

func copyAlertCounts(m map[string]int) map[string]int {
	cp := make(map[string]int, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
