package llm

import (
	"fmt"
	"os"

	"github.com/skillforge/engine/pkg/config"
)

// ClientSet resolves a named provider (engine.yaml's llm_providers keys) to
// its Client, and tracks the process-wide default used when a run/skill
// does not override it (spec §4.4: "ctx.llm_model_override ... takes
// precedence over a process-wide default").
type ClientSet struct {
	clients     map[string]Client
	defaultName string
	plannerName string
}

// NewClientSet builds one vendor Client per configured provider.
func NewClientSet(providers map[string]config.LLMProviderConfig, defaults config.Defaults) (*ClientSet, error) {
	clients := make(map[string]Client, len(providers))
	for name, p := range providers {
		apiKey := ""
		if p.APIKeyEnv != "" {
			apiKey = os.Getenv(p.APIKeyEnv)
		}
		var (
			c   Client
			err error
		)
		switch p.Backend {
		case config.LLMBackendAnthropic:
			c, err = NewAnthropicClient(apiKey, p.Model)
		case config.LLMBackendOpenAI:
			c, err = NewOpenAIClient(apiKey, p.Model)
		default:
			return nil, fmt.Errorf("llm: unknown provider backend %q for provider %q", p.Backend, name)
		}
		if err != nil {
			return nil, fmt.Errorf("llm: build provider %q: %w", name, err)
		}
		clients[name] = c
	}
	return &ClientSet{
		clients:     clients,
		defaultName: defaults.LLMProvider,
		plannerName: defaults.PlannerProvider,
	}, nil
}

// NewClientSetFromMap builds a ClientSet directly from already-constructed
// clients, bypassing vendor-key resolution. Used by tests and by any
// caller wiring in a non-config-driven Client (e.g. a fake).
func NewClientSetFromMap(clients map[string]Client, defaultName, plannerName string) *ClientSet {
	return &ClientSet{clients: clients, defaultName: defaultName, plannerName: plannerName}
}

// For resolves the provider to use for a skill execution: override, if
// non-empty and known, else the process-wide default.
func (s *ClientSet) For(override string) (Client, error) {
	name := s.defaultName
	if _, known := s.clients[override]; override != "" && known {
		name = override
	}
	c, ok := s.clients[name]
	if !ok {
		return nil, fmt.Errorf("llm: unknown provider %q", name)
	}
	return c, nil
}

// Planner resolves the provider dedicated to the Planner (C9), which may
// run a cheaper/faster model than skill execution.
func (s *ClientSet) Planner() (Client, error) {
	name := s.plannerName
	if name == "" {
		name = s.defaultName
	}
	c, ok := s.clients[name]
	if !ok {
		return nil, fmt.Errorf("llm: unknown planner provider %q", name)
	}
	return c, nil
}
