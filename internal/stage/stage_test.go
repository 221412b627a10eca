package stage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusmedia/contentops/pkg/nexusmodel"
)

type stubStage struct{ name string }

func (s stubStage) Name() string { return s.name }
func (s stubStage) Execute(ctx context.Context, input nexusmodel.StageInput) (nexusmodel.StageBodyOutput, error) {
	return nexusmodel.StageBodyOutput{Success: true}, nil
}

func TestRegistryPreservesOrder(t *testing.T) {
	r, err := NewRegistry(stubStage{"research"}, stubStage{"script-gen"}, stubStage{"tts"})
	require.NoError(t, err)
	assert.Equal(t, []string{"research", "script-gen", "tts"}, r.Names())
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	_, err := NewRegistry(stubStage{"tts"}, stubStage{"tts"})
	assert.Error(t, err)
}

func TestRegistryRejectsEmptyName(t *testing.T) {
	_, err := NewRegistry(stubStage{""})
	assert.Error(t, err)
}

func TestFromReturnsTailIncludingGivenStage(t *testing.T) {
	r, err := NewRegistry(stubStage{"research"}, stubStage{"script-gen"}, stubStage{"tts"}, stubStage{"render"})
	require.NoError(t, err)
	assert.Equal(t, []string{"tts", "render"}, r.From("tts"))
	assert.Nil(t, r.From("missing"))
}

func TestIndexOfUnknownStageIsNegative(t *testing.T) {
	r, err := NewRegistry(stubStage{"research"})
	require.NoError(t, err)
	assert.Equal(t, -1, r.IndexOf("nope"))
	assert.Equal(t, 0, r.IndexOf("research"))
}
