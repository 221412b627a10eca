// Package buffer implements the buffer-video fallback subsystem (spec §4.8):
// a FIFO-with-reuse-bias inventory of pre-rendered emergency videos, deployed
// atomically via compare-and-set when the live pipeline cannot ship.
// Grounded on the teacher's LRU+checkpoint resource manager in
// engine/internal/resources/manager.go, repurposed from an eviction cache
// into a selection-and-CAS-deployment inventory: the operative idea kept is
// "one mutex-guarded map, atomic transition on the hot field", not LRU order.
package buffer

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/nexusmedia/contentops/internal/clockx"
	"github.com/nexusmedia/contentops/internal/nexuserr"
	"github.com/nexusmedia/contentops/internal/store"
	"github.com/nexusmedia/contentops/pkg/nexusmodel"
)

// MinimumAvailable and WarningAvailable are the buffer-inventory thresholds
// from spec §3/§4.8.
const (
	MinimumAvailable = 1
	WarningAvailable = 2
)

// Inventory manages buffer-video selection, deployment, and health reporting
// over the shared document store.
type Inventory struct {
	store store.DocumentStore
	clock clockx.Clock
}

// NewInventory returns an inventory backed by s.
func NewInventory(s store.DocumentStore, clock clockx.Clock) *Inventory {
	return &Inventory{store: s, clock: clock}
}

func (inv *Inventory) loadAll(ctx context.Context) ([]nexusmodel.BufferVideo, error) {
	coll, _ := store.BufferVideoID("")
	docs, err := inv.store.Query(ctx, coll, nil)
	if err != nil {
		return nil, err
	}
	out := make([]nexusmodel.BufferVideo, 0, len(docs))
	for _, d := range docs {
		var v nexusmodel.BufferVideo
		if err := json.Unmarshal(d, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// SelectForDeployment picks among active, unused buffers, preferring the
// lowest deploymentCount, ties broken by oldest createdDate (spec §4.8,
// §8 invariant 4). Raises NEXUS_BUFFER_EXHAUSTED (CRITICAL) if none qualify.
func (inv *Inventory) SelectForDeployment(ctx context.Context) (nexusmodel.BufferVideo, error) {
	all, err := inv.loadAll(ctx)
	if err != nil {
		return nexusmodel.BufferVideo{}, err
	}

	var candidates []nexusmodel.BufferVideo
	for _, v := range all {
		if v.Status == nexusmodel.BufferActive && !v.Used {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) == 0 {
		return nexusmodel.BufferVideo{}, nexuserr.New("NEXUS_BUFFER_EXHAUSTED", nexuserr.SeverityCritical, "no active, unused buffer videos available")
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].DeploymentCount != candidates[j].DeploymentCount {
			return candidates[i].DeploymentCount < candidates[j].DeploymentCount
		}
		return candidates[i].CreatedDate.Before(candidates[j].CreatedDate)
	})
	return candidates[0], nil
}

// Publisher stands in for the "publish under the target date" step (b) of
// spec §4.8's deployment sequence; production wiring replaces this with a
// real ObjectStore/Notifier call. It is passed to Deploy as a parameter so
// callers (and tests) can substitute success/failure behavior.
type Publisher func(ctx context.Context, date string, video nexusmodel.BufferVideo) error

// Deploy performs the two-step CAS deployment in spec §4.8: (a) atomically
// transitions the chosen buffer used=false->true, status=active->deployed;
// (b) calls publish. If (b) fails after (a) succeeded, status is rolled back
// to active while used stays true, and the caller is expected to log an
// incident; re-deployment of the same slot is then allowed on operator
// request (used is reset separately, out of band, by that request).
func (inv *Inventory) Deploy(ctx context.Context, video nexusmodel.BufferVideo, date string, publish Publisher) (nexusmodel.BufferVideo, error) {
	if video.Used {
		return nexusmodel.BufferVideo{}, nexuserr.New("NEXUS_BUFFER_ALREADY_USED", nexuserr.SeverityRecoverable, "buffer video already used")
	}

	coll, id := store.BufferVideoID(video.ID)
	now := inv.clock.Now()

	deployed := video
	deployed.Used = true
	deployed.Status = nexusmodel.BufferDeployed
	deployed.UsedDate = &now
	deployed.DeploymentCount++

	ok, err := inv.store.CompareAndSet(ctx, coll, id, video, deployed)
	if err != nil {
		return nexusmodel.BufferVideo{}, err
	}
	if !ok {
		return nexusmodel.BufferVideo{}, nexuserr.New("NEXUS_BUFFER_ALREADY_USED", nexuserr.SeverityRecoverable, "buffer video was deployed concurrently")
	}

	if publish == nil {
		return deployed, nil
	}
	if err := publish(ctx, date, deployed); err != nil {
		rolledBack := deployed
		rolledBack.Status = nexusmodel.BufferActive
		// used stays true: a publish failure after the CAS still consumed
		// this slot's "never deployed" status; re-deployment is an explicit
		// operator action, not automatic retry.
		if _, casErr := inv.store.CompareAndSet(ctx, coll, id, deployed, rolledBack); casErr != nil {
			return nexusmodel.BufferVideo{}, casErr
		}
		return nexusmodel.BufferVideo{}, nexuserr.New("NEXUS_BUFFER_PUBLISH_FAILED", nexuserr.SeverityCritical, "publish failed after buffer CAS succeeded").WithContext("bufferId", video.ID)
	}
	return deployed, nil
}

// HealthStatus is the aggregated inventory health (spec §4.8 monitoring).
type HealthStatus struct {
	AvailableCount int    `json:"availableCount"`
	DeployedCount  int    `json:"deployedCount"`
	ArchivedCount  int    `json:"archivedCount"`
	Status         string `json:"status"` // healthy | warning | critical
}

// Health computes inventory counts and status. Per the documented open
// question (spec §9), "available == MINIMUM" maps to critical, not warning:
// the branch order below is intentional and mirrors that quirk verbatim.
func (inv *Inventory) Health(ctx context.Context) (HealthStatus, error) {
	all, err := inv.loadAll(ctx)
	if err != nil {
		return HealthStatus{}, err
	}

	var hs HealthStatus
	for _, v := range all {
		switch {
		case v.Status == nexusmodel.BufferActive && !v.Used:
			hs.AvailableCount++
		case v.Status == nexusmodel.BufferDeployed:
			hs.DeployedCount++
		case v.Status == nexusmodel.BufferArchived:
			hs.ArchivedCount++
		}
	}

	switch {
	case hs.AvailableCount < MinimumAvailable:
		hs.Status = "critical"
	case hs.AvailableCount <= MinimumAvailable:
		hs.Status = "critical"
	case hs.AvailableCount < WarningAvailable:
		hs.Status = "warning"
	default:
		hs.Status = "healthy"
	}
	return hs, nil
}
