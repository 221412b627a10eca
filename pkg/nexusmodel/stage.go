package nexusmodel

// ProviderTier distinguishes the primary provider in a fallback cascade from
// any provider reached only after exhausting earlier ones (spec §4.3).
type ProviderTier string

const (
	ProviderTierPrimary  ProviderTier = "primary"
	ProviderTierFallback ProviderTier = "fallback"
)

// ProviderInfo describes which provider ultimately produced a stage's
// output, and how many attempts it took.
type ProviderInfo struct {
	Name     string       `json:"name"`
	Tier     ProviderTier `json:"tier"`
	Attempts int          `json:"attempts"`
}

// StageConfig carries per-invocation tunables that flow from the pipeline
// runner into a stage body (spec §3 StageInput).
type StageConfig struct {
	TimeoutMs      int64          `json:"timeoutMs"`
	Retries        int            `json:"retries"`
	MaxConcurrency int            `json:"maxConcurrency,omitempty"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// StageInput is the generic envelope passed into every stage (spec §3).
type StageInput struct {
	PipelineID      string          `json:"pipelineId"`
	PreviousStage   string          `json:"previousStage"`
	Data            any             `json:"data"`
	Config          StageConfig     `json:"config"`
	QualityContext  QualityContext  `json:"qualityContext"`
}

// StageOutput is the generic envelope every stage body returns (spec §3).
// DurationMs, Provider, and Cost are filled in by the stage executor, not
// by the stage body itself (spec §4.4 step 3).
type StageOutput struct {
	Success     bool           `json:"success"`
	Data        any            `json:"data"`
	Artifacts   []ArtifactRef  `json:"artifacts,omitempty"`
	Metrics     QualityMetrics `json:"metrics"`
	DurationMs  int64          `json:"durationMs"`
	Provider    ProviderInfo   `json:"provider"`
	Cost        float64        `json:"cost"`
	Warnings    []string       `json:"warnings,omitempty"`
}

// StageBodyOutput is what a Stage.Execute implementation actually returns;
// the executor fills in DurationMs/Provider/Cost around it (spec §4.4 step 3:
// "The body returns stage output excluding durationMs, provider ... cost,
// quality").
type StageBodyOutput struct {
	Success   bool           `json:"success"`
	Data      any            `json:"data"`
	Artifacts []ArtifactRef  `json:"artifacts,omitempty"`
	Metrics   QualityMetrics `json:"metrics"`
	Warnings  []string       `json:"warnings,omitempty"`
	// Provider is set by the stage body itself, having already composed
	// fallbackx.Do internally (spec §4.4 step 3: "provider ... supplied by
	// fallback engine").
	Provider ProviderInfo `json:"provider"`
}
