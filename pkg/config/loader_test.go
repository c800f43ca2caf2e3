package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestEngineYAML(t *testing.T, dir string, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "engine.yaml"), []byte(contents), 0o644))
}

func validEngineYAML() string {
	return `
system:
  skill_sources:
    - path: ./skills
      is_public: true
  credential_vault:
    base_url: http://vault.internal:8200
llm_providers:
  default:
    backend: anthropic
    model: claude-opus
    api_key_env: ANTHROPIC_API_KEY
defaults:
  llm_provider: default
`
}

func TestInitialize(t *testing.T) {
	dir := t.TempDir()
	writeTestEngineYAML(t, dir, validEngineYAML())

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, dir, cfg.ConfigDir())
	assert.Len(t, cfg.SkillSources(), 1)
	assert.Equal(t, "http://vault.internal:8200", cfg.Vault().BaseURL)
	assert.Equal(t, PubSubPostgres, cfg.PubSub().Backend)
	assert.Equal(t, "default", cfg.DefaultLLMProvider())

	provider, err := cfg.LLMProvider("default")
	require.NoError(t, err)
	assert.Equal(t, LLMBackendAnthropic, provider.Backend)

	stats := cfg.Stats()
	assert.Equal(t, 1, stats.SkillSources)
	assert.Equal(t, 1, stats.LLMProviders)
}

func TestInitialize_ConfigNotFound(t *testing.T) {
	_, err := Initialize(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestInitialize_MissingSkillSources(t *testing.T) {
	dir := t.TempDir()
	writeTestEngineYAML(t, dir, `
system:
  credential_vault:
    base_url: http://vault.internal:8200
`)
	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestInitialize_UnknownDefaultProvider(t *testing.T) {
	dir := t.TempDir()
	writeTestEngineYAML(t, dir, `
system:
  skill_sources:
    - path: ./skills
  credential_vault:
    base_url: http://vault.internal:8200
defaults:
  llm_provider: does-not-exist
`)
	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestInitialize_RedisBackendRequiresURL(t *testing.T) {
	dir := t.TempDir()
	writeTestEngineYAML(t, dir, `
system:
  skill_sources:
    - path: ./skills
  credential_vault:
    base_url: http://vault.internal:8200
  pubsub:
    backend: redis
`)
	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
}
