package nexusmodel

import "time"

// BufferStatus is the lifecycle state of a buffer video (spec §4.8).
type BufferStatus string

const (
	BufferActive   BufferStatus = "active"
	BufferDeployed BufferStatus = "deployed"
	BufferArchived BufferStatus = "archived"
)

// BufferVideo is a pre-rendered fallback video held in reserve for days the
// pipeline cannot produce fresh content (spec §3, §4.8).
type BufferVideo struct {
	ID              string         `json:"id"`
	Topic           string         `json:"topic"`
	CreatedDate     time.Time      `json:"createdDate"`
	Status          BufferStatus   `json:"status"`
	Used            bool           `json:"used"`
	UsedDate        *time.Time     `json:"usedDate,omitempty"`
	DeploymentCount int            `json:"deploymentCount"`
	VideoURL        string         `json:"videoUrl"`
	ThumbnailURL    string         `json:"thumbnailUrl"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}
