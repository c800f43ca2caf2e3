package config

import "fmt"

// Validate checks cross-field and required-value invariants that struct
// tags alone cannot express. Returns the first *ValidationError found;
// callers that want every error should be extended to a collecting variant
// as the config surface grows (the teacher's validator.go follows the same
// fail-on-first-error shape for engine-level config).
func Validate(cfg *EngineYAMLConfig) error {
	if cfg.System == nil || len(cfg.System.SkillSources) == 0 {
		return NewValidationError("system", "skill_sources", "", fmt.Errorf("%w: at least one skill source is required", ErrMissingRequiredField))
	}
	for i, src := range cfg.System.SkillSources {
		if src.Path == "" {
			return NewValidationError("skill_source", fmt.Sprintf("[%d]", i), "path", ErrMissingRequiredField)
		}
	}
	if cfg.System.CredentialVault == nil || cfg.System.CredentialVault.BaseURL == "" {
		return NewValidationError("system", "credential_vault", "base_url", ErrMissingRequiredField)
	}
	if cfg.System.PubSub != nil {
		switch cfg.System.PubSub.Backend {
		case PubSubPostgres, PubSubRedis:
		default:
			return NewValidationError("system", "pubsub", "backend", fmt.Errorf("%w: %q", ErrInvalidValue, cfg.System.PubSub.Backend))
		}
		if cfg.System.PubSub.Backend == PubSubRedis && cfg.System.PubSub.RedisURL == "" {
			return NewValidationError("system", "pubsub", "redis_url", ErrMissingRequiredField)
		}
	}
	for name, p := range cfg.LLMProvider {
		switch p.Backend {
		case LLMBackendAnthropic, LLMBackendOpenAI:
		default:
			return NewValidationError("llm_provider", name, "backend", fmt.Errorf("%w: %q", ErrInvalidValue, p.Backend))
		}
		if p.Model == "" {
			return NewValidationError("llm_provider", name, "model", ErrMissingRequiredField)
		}
	}
	if cfg.Defaults != nil && cfg.Defaults.LLMProvider != "" {
		if _, ok := cfg.LLMProvider[cfg.Defaults.LLMProvider]; !ok {
			return NewValidationError("defaults", "llm_provider", "", fmt.Errorf("%w: %q", ErrLLMProviderNotFound, cfg.Defaults.LLMProvider))
		}
	}
	return nil
}
