// Package config loads and validates the engine's configuration: queue
// sizing, LLM providers, pub/sub backend selection, credential vault
// endpoint, and the filesystem root(s) the skill registry scans.
package config

import "time"

// ExecutorKind enumerates a skill's top-level execution strategy.
type ExecutorKind string

const (
	ExecutorLLM    ExecutorKind = "llm"
	ExecutorREST   ExecutorKind = "rest"
	ExecutorAction ExecutorKind = "action"
)

// ActionKind enumerates action_config.type sub-handlers.
type ActionKind string

const (
	ActionPythonFunction ActionKind = "python_function"
	ActionDataQuery      ActionKind = "data_query"
	ActionDataPipeline   ActionKind = "data_pipeline"
	ActionHTTPCall       ActionKind = "http_call"
	ActionScript         ActionKind = "script"
)

// DataSource enumerates data_query backends.
type DataSource string

const (
	SourcePostgres DataSource = "postgres"
	SourceMySQL    DataSource = "mysql"
	SourceSQLite   DataSource = "sqlite"
	SourceMongoDB  DataSource = "mongodb"
)

// PubSubBackend enumerates pkg/pubsub implementations.
type PubSubBackend string

const (
	PubSubPostgres PubSubBackend = "postgres"
	PubSubRedis    PubSubBackend = "redis"
)

// LLMBackend enumerates pkg/llm vendor bindings.
type LLMBackend string

const (
	LLMBackendAnthropic LLMBackend = "anthropic"
	LLMBackendOpenAI    LLMBackend = "openai"
)

// EngineYAMLConfig is the top-level shape of engine.yaml.
type EngineYAMLConfig struct {
	System      *SystemYAMLConfig            `yaml:"system"`
	LLMProvider map[string]LLMProviderConfig `yaml:"llm_providers"`
	Queue       *QueueConfig                 `yaml:"queue"`
	Defaults    *Defaults                    `yaml:"defaults"`
}

// SystemYAMLConfig groups system-wide infrastructure settings.
type SystemYAMLConfig struct {
	SkillSources     []SkillSourceConfig `yaml:"skill_sources"`
	CredentialVault  *VaultYAMLConfig    `yaml:"credential_vault"`
	PubSub           *PubSubYAMLConfig   `yaml:"pubsub"`
	CheckpointBuffer *BufferYAMLConfig   `yaml:"checkpoint_buffer"`
}

// SkillSourceConfig is one filesystem root the Skill Registry scans.
// Every directory directly under Path containing a skill.yaml is loaded
// as one skill.
type SkillSourceConfig struct {
	Path     string `yaml:"path" validate:"required"`
	IsPublic bool   `yaml:"is_public"`
}

// VaultYAMLConfig configures the credential vault client (§4.3 / C3).
type VaultYAMLConfig struct {
	BaseURL  string `yaml:"base_url" validate:"required"`
	TokenEnv string `yaml:"token_env,omitempty"`
}

// PubSubYAMLConfig selects and configures the pub/sub backend (C12).
type PubSubYAMLConfig struct {
	Backend  PubSubBackend `yaml:"backend" validate:"required"`
	RedisURL string        `yaml:"redis_url,omitempty"`
}

// BufferYAMLConfig tunes the Checkpointer's write buffer (§4.10).
type BufferYAMLConfig struct {
	Size          int           `yaml:"size,omitempty"`
	FlushInterval time.Duration `yaml:"flush_interval,omitempty"`
}

// LLMProviderConfig describes one named LLM vendor binding.
type LLMProviderConfig struct {
	Backend  LLMBackend `yaml:"backend" validate:"required"`
	Model    string     `yaml:"model" validate:"required"`
	APIKeyEnv string    `yaml:"api_key_env,omitempty"`
	BaseURL  string     `yaml:"base_url,omitempty"`
	TimeoutMS int       `yaml:"timeout_ms,omitempty"`
}

// Defaults holds process-wide fallbacks applied when a skill or run does not
// override them.
type Defaults struct {
	LLMProvider     string `yaml:"llm_provider,omitempty"`
	PlannerProvider string `yaml:"planner_provider,omitempty"`
}
