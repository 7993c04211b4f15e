// Package config loads EngineConfig the way the teacher codebase loads
// its own configuration: koanf layering defaults under an optional TOML
// file under environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// SandboxConfig bounds the interpreter's cooperative step loop (§4.F).
type SandboxConfig struct {
	MaxRuntimeMS   int    `koanf:"max_runtime_ms"`
	StepBatchSize  int    `koanf:"step_batch_size"`
	SleepMS        int    `koanf:"sleep_ms"`
	LogMode        string `koanf:"log_mode"`
}

// ForgeConfig holds the credentials one source adapter needs to talk to
// its forge. The engine never persists these beyond process memory.
type ForgeConfig struct {
	URL   string `koanf:"url"`
	Token string `koanf:"token"`
}

// EngineConfig is the process-level configuration for the engine binary
// and CLI (component I of the expanded specification).
type EngineConfig struct {
	Sandbox SandboxConfig          `koanf:"sandbox"`
	Forges  map[string]ForgeConfig `koanf:"forges"`
}

// DefaultEngineConfig mirrors the nominal values fixed by §4.F.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Sandbox: SandboxConfig{
			MaxRuntimeMS:  5000,
			StepBatchSize: 100,
			SleepMS:       100,
			LogMode:       "drop",
		},
		Forges: map[string]ForgeConfig{},
	}
}

// Load loads EngineConfig from the nominal defaults, an optional TOML
// file, and environment variables prefixed ENGINE_, in that order of
// increasing precedence.
func Load(configPath string) (*EngineConfig, error) {
	k := koanf.New(".")

	defaults := DefaultEngineConfig()
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"sandbox.max_runtime_ms":  defaults.Sandbox.MaxRuntimeMS,
		"sandbox.step_batch_size": defaults.Sandbox.StepBatchSize,
		"sandbox.sleep_ms":        defaults.Sandbox.SleepMS,
		"sandbox.log_mode":        defaults.Sandbox.LogMode,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("loading default config: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", configPath, err)
		}
	} else {
		for _, candidate := range []string{"./engine.toml", "$HOME/.engine.toml"} {
			candidate = os.ExpandEnv(candidate)
			if _, err := os.Stat(candidate); err == nil {
				if err := k.Load(file.Provider(candidate), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	if err := k.Load(env.Provider("ENGINE_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(s), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	var cfg EngineConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if cfg.Forges == nil {
		cfg.Forges = map[string]ForgeConfig{}
	}

	return &cfg, nil
}

// Validate checks the loaded configuration is internally consistent.
func Validate(cfg *EngineConfig) error {
	if cfg.Sandbox.MaxRuntimeMS <= 0 {
		return fmt.Errorf("sandbox.max_runtime_ms must be positive")
	}
	if cfg.Sandbox.StepBatchSize <= 0 {
		return fmt.Errorf("sandbox.step_batch_size must be positive")
	}
	switch cfg.Sandbox.LogMode {
	case "drop", "console", "capture":
	default:
		return fmt.Errorf("sandbox.log_mode must be one of drop, console, capture; got %q", cfg.Sandbox.LogMode)
	}
	return nil
}
