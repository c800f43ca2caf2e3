package config

// Config is the umbrella configuration object returned by Initialize and
// threaded through the engine's components.
type Config struct {
	configDir string
	raw       *EngineYAMLConfig
}

// ConfigDir returns the directory engine.yaml was loaded from.
func (c *Config) ConfigDir() string { return c.configDir }

// SkillSources returns the filesystem roots the Skill Registry scans.
func (c *Config) SkillSources() []SkillSourceConfig { return c.raw.System.SkillSources }

// Vault returns the credential vault client configuration.
func (c *Config) Vault() *VaultYAMLConfig { return c.raw.System.CredentialVault }

// PubSub returns the selected pub/sub backend configuration.
func (c *Config) PubSub() *PubSubYAMLConfig { return c.raw.System.PubSub }

// CheckpointBuffer returns the Checkpointer's write-buffer tuning.
func (c *Config) CheckpointBuffer() *BufferYAMLConfig { return c.raw.System.CheckpointBuffer }

// Queue returns the orchestrator worker pool configuration.
func (c *Config) Queue() *QueueConfig { return c.raw.Queue }

// LLMProvider retrieves a named LLM provider configuration.
func (c *Config) LLMProvider(name string) (LLMProviderConfig, error) {
	p, ok := c.raw.LLMProvider[name]
	if !ok {
		return LLMProviderConfig{}, ErrLLMProviderNotFound
	}
	return p, nil
}

// DefaultLLMProvider returns the process-wide default LLM provider name.
func (c *Config) DefaultLLMProvider() string { return c.raw.Defaults.LLMProvider }

// LLMProviders returns every configured LLM provider, keyed by name, for
// building a pkg/llm.ClientSet at startup.
func (c *Config) LLMProviders() map[string]LLMProviderConfig { return c.raw.LLMProvider }

// Defaults returns the process-wide fallback selections.
func (c *Config) Defaults() Defaults {
	if c.raw.Defaults == nil {
		return Defaults{}
	}
	return *c.raw.Defaults
}

// Stats summarizes the loaded configuration, e.g. for a health endpoint.
type Stats struct {
	SkillSources int
	LLMProviders int
}

// Stats returns configuration statistics for logging/monitoring.
func (c *Config) Stats() Stats {
	return Stats{
		SkillSources: len(c.raw.System.SkillSources),
		LLMProviders: len(c.raw.LLMProvider),
	}
}
