package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fensak-dev/approval-engine/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Sandbox.MaxRuntimeMS)
	assert.Equal(t, 100, cfg.Sandbox.StepBatchSize)
	assert.Equal(t, 100, cfg.Sandbox.SleepMS)
	assert.Equal(t, "drop", cfg.Sandbox.LogMode)
}

func TestValidate_RejectsUnknownLogMode(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	cfg.Sandbox.LogMode = "verbose"
	assert.Error(t, config.Validate(&cfg))
}

func TestValidate_RejectsNonPositiveRuntime(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	cfg.Sandbox.MaxRuntimeMS = 0
	assert.Error(t, config.Validate(&cfg))
}

func TestValidate_AcceptsDefaults(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	assert.NoError(t, config.Validate(&cfg))
}
