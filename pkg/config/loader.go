package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Initialize loads, merges, defaults, and validates engine.yaml, returning
// a ready-to-use Config. This is the primary entry point for configuration
// loading, mirroring the teacher's multi-step Initialize pipeline:
//  1. Load engine.yaml from configDir
//  2. Expand environment variables
//  3. Parse YAML into EngineYAMLConfig
//  4. Merge built-in defaults underneath user overrides
//  5. Apply remaining zero-value defaults
//  6. Validate
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing engine configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	applyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	log.Info("engine configuration loaded",
		"skill_sources", len(cfg.System.SkillSources),
		"llm_providers", len(cfg.LLMProvider),
		"pubsub_backend", cfg.System.PubSub.Backend,
	)

	return &Config{configDir: configDir, raw: cfg}, nil
}

// load reads engine.yaml from configDir, expands environment variables, and
// parses it into an EngineYAMLConfig.
func load(configDir string) (*EngineYAMLConfig, error) {
	path := filepath.Join(configDir, "engine.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewLoadError(path, ErrConfigNotFound)
		}
		return nil, NewLoadError(path, err)
	}

	expanded := ExpandEnv(data)

	var cfg EngineYAMLConfig
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	builtins := builtinDefaults()
	if err := mergo.Merge(&cfg, builtins); err != nil {
		return nil, fmt.Errorf("failed to merge built-in defaults: %w", err)
	}

	return &cfg, nil
}

// builtinDefaults returns the engine's built-in configuration, used as the
// merge base underneath anything the user's engine.yaml specifies.
func builtinDefaults() EngineYAMLConfig {
	return EngineYAMLConfig{
		Queue: DefaultQueueConfig(),
		System: &SystemYAMLConfig{
			PubSub:           &PubSubYAMLConfig{Backend: PubSubPostgres},
			CheckpointBuffer: DefaultBufferConfig(),
		},
	}
}
