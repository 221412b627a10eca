package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func healthyProbe(name string, crit Criticality) Probe {
	return ProbeFunc{ProbeName: name, Crit: crit, CheckFunc: func(ctx context.Context) ProbeResult {
		return ProbeResult{Status: StatusHealthy}
	}}
}

func unhealthyProbe(name string, crit Criticality) Probe {
	return ProbeFunc{ProbeName: name, Crit: crit, CheckFunc: func(ctx context.Context) ProbeResult {
		return ProbeResult{Status: StatusUnhealthy, Error: "connection refused"}
	}}
}

func TestRunAllHealthyPasses(t *testing.T) {
	pf := NewPreflight(time.Second, healthyProbe("youtube", Critical), healthyProbe("analytics", Degraded))
	result := pf.Run(context.Background())
	assert.True(t, result.AllPassed)
	assert.Empty(t, result.CriticalFailures)
	assert.Empty(t, result.Warnings)
}

func TestRunCriticalFailureFailsPreflight(t *testing.T) {
	pf := NewPreflight(time.Second, unhealthyProbe("youtube", Critical), healthyProbe("analytics", Degraded))
	result := pf.Run(context.Background())
	assert.False(t, result.AllPassed)
	assert.Len(t, result.CriticalFailures, 1)
	assert.Equal(t, "youtube", result.CriticalFailures[0].Service)
}

func TestRunDegradedFailureOnlyWarns(t *testing.T) {
	pf := NewPreflight(time.Second, healthyProbe("youtube", Critical), unhealthyProbe("analytics", Degraded))
	result := pf.Run(context.Background())
	assert.True(t, result.AllPassed)
	assert.Len(t, result.Warnings, 1)
	assert.Equal(t, "analytics", result.Warnings[0].Service)
}

func TestRunProbesExecuteConcurrently(t *testing.T) {
	slow := ProbeFunc{ProbeName: "slow-a", Crit: Degraded, CheckFunc: func(ctx context.Context) ProbeResult {
		time.Sleep(30 * time.Millisecond)
		return ProbeResult{Status: StatusHealthy}
	}}
	slow2 := ProbeFunc{ProbeName: "slow-b", Crit: Degraded, CheckFunc: func(ctx context.Context) ProbeResult {
		time.Sleep(30 * time.Millisecond)
		return ProbeResult{Status: StatusHealthy}
	}}
	pf := NewPreflight(time.Second, slow, slow2)
	start := time.Now()
	pf.Run(context.Background())
	elapsed := time.Since(start)
	assert.Less(t, elapsed, 55*time.Millisecond)
}

func TestRunRespectsPerProbeTimeout(t *testing.T) {
	hang := ProbeFunc{ProbeName: "hung", Crit: Critical, CheckFunc: func(ctx context.Context) ProbeResult {
		<-ctx.Done()
		return ProbeResult{}
	}}
	pf := NewPreflight(10*time.Millisecond, hang)
	result := pf.Run(context.Background())
	assert.False(t, result.AllPassed)
	assert.Equal(t, StatusUnhealthy, result.CriticalFailures[0].Status)
}
