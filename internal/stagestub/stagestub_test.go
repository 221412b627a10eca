package stagestub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusmedia/contentops/internal/collaborators"
	"github.com/nexusmedia/contentops/pkg/nexusmodel"
)

func TestPassthroughUploadsArtifactAndSucceeds(t *testing.T) {
	objects := collaborators.NewMemoryObjectStore("https://cdn.example.test")
	metrics := DefaultMetrics()
	stage := New("script-gen", objects, metrics["script-gen"])

	out, err := stage.Execute(context.Background(), nexusmodel.StageInput{PipelineID: "2026-01-22"})
	require.NoError(t, err)
	assert.True(t, out.Success)
	require.Len(t, out.Artifacts, 1)
	assert.Equal(t, "script-gen", out.Artifacts[0].Stage)
	require.NotNil(t, out.Metrics.ScriptGen)
	assert.Equal(t, 1500, out.Metrics.ScriptGen.WordCount)

	exists, err := objects.Exists(context.Background(), "2026-01-22/script-gen/placeholder.bin")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestPassthroughRunsUngatedWithoutMetrics(t *testing.T) {
	objects := collaborators.NewMemoryObjectStore("https://cdn.example.test")
	stage := New("research", objects, nil)

	out, err := stage.Execute(context.Background(), nexusmodel.StageInput{PipelineID: "2026-01-22"})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, nexusmodel.QualityMetrics{}, out.Metrics)
}

func TestDefaultMetricsCoversEveryGatedStage(t *testing.T) {
	metrics := DefaultMetrics()
	for _, name := range []string{"script-gen", "tts", "render", "thumbnails", "pronunciation", "audio-mix", "timestamps"} {
		_, ok := metrics[name]
		assert.True(t, ok, "missing default metrics for %s", name)
	}
}
