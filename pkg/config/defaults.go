package config

// applyDefaults fills in zero-valued optional fields with built-in defaults
// after the user YAML has been merged in. Mirrors the teacher's pattern of
// a dedicated post-merge defaulting pass rather than scattering `if x == 0`
// checks through consumers.
func applyDefaults(cfg *EngineYAMLConfig) {
	if cfg.Queue == nil {
		cfg.Queue = DefaultQueueConfig()
	}
	if cfg.System == nil {
		cfg.System = &SystemYAMLConfig{}
	}
	if cfg.System.PubSub == nil {
		cfg.System.PubSub = &PubSubYAMLConfig{Backend: PubSubPostgres}
	}
	if cfg.System.CheckpointBuffer == nil {
		cfg.System.CheckpointBuffer = DefaultBufferConfig()
	}
	if cfg.Defaults == nil {
		cfg.Defaults = &Defaults{}
	}
}
