package nexusmodel

import "time"

// TokenUsage captures optional input/output token counts for an LLM-style call.
type TokenUsage struct {
	Input  *int `json:"input,omitempty"`
	Output *int `json:"output,omitempty"`
}

// CostEntry is one recorded API call (spec §3 CostRecord, §4.10).
type CostEntry struct {
	Service   string     `json:"service"`
	Tokens    TokenUsage `json:"tokens,omitempty"`
	Cost      float64    `json:"cost"`
	Model     string     `json:"model,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// CostBreakdown is the per-pipeline rollup of cost entries (spec §4.10).
type CostBreakdown struct {
	PipelineID string                 `json:"pipelineId"`
	Total      float64                `json:"total"`
	ByCategory map[string]float64     `json:"byCategory"`
	ByStage    map[string]float64     `json:"byStage"`
	Services   []string               `json:"services"`
	Entries    map[string][]CostEntry `json:"entries"` // keyed by stage
}

// NewCostBreakdown returns an empty breakdown for a pipeline.
func NewCostBreakdown(pipelineID string) *CostBreakdown {
	return &CostBreakdown{
		PipelineID: pipelineID,
		ByCategory: make(map[string]float64),
		ByStage:    make(map[string]float64),
		Entries:    make(map[string][]CostEntry),
	}
}

// BudgetDocument is the single mutable daily-budget document (spec §4.10,
// §5 "Shared resource policy"). LastUpdated doubles as the optimistic
// concurrency version token: callers must read-check-write against it.
type BudgetDocument struct {
	InitialCredit     float64   `json:"initialCredit"`
	TotalSpent        float64   `json:"totalSpent"`
	Remaining         float64   `json:"remaining"`
	DaysOfRunway      float64   `json:"daysOfRunway"`
	ProjectedMonthly  float64   `json:"projectedMonthly"`
	CreditExpiration  time.Time `json:"creditExpiration"`
	IsWithinBudget    bool      `json:"isWithinBudget"`
	LastUpdated       time.Time `json:"lastUpdated"`
	AlertCounts       map[string]int `json:"alertCounts"` // "WARNING-2026-07" -> count
}
