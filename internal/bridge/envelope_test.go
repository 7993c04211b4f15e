package bridge_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fensak-dev/approval-engine/internal/bridge"
)

func validEnvelope() map[string]any {
	return map[string]any{
		"patches": []any{
			map[string]any{
				"path":      "config.json",
				"op":        float64(2),
				"additions": float64(1),
				"deletions": float64(1),
				"diff":      []any{},
			},
		},
		"metadata": map[string]any{
			"sourceBranch": "feature",
			"targetBranch": "main",
			"linkedPRs":    []any{},
		},
	}
}

func TestValidateEnvelope_Valid(t *testing.T) {
	require.NoError(t, bridge.ValidateEnvelope(validEnvelope()))
}

func TestValidateEnvelope_MissingMetadata(t *testing.T) {
	env := validEnvelope()
	delete(env, "metadata")
	err := bridge.ValidateEnvelope(env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EngineInternalError")
}

func TestValidateEnvelope_MissingPatchField(t *testing.T) {
	env := validEnvelope()
	patches := env["patches"].([]any)
	p := patches[0].(map[string]any)
	delete(p, "diff")
	err := bridge.ValidateEnvelope(env)
	require.Error(t, err)
}
