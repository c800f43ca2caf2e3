package skill

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_RejectsRequiresProducesOverlap(t *testing.T) {
	s := &Skill{
		Name:     "A",
		Executor: ExecutorAction,
		Requires: []string{"x"},
		Produces: []string{"x"},
		ActionConfig: &ActionConfig{
			Type:         ActionPythonFunction,
			FunctionName: "do_thing",
		},
	}
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both requires and produces")
}

func TestValidate_RESTRequiresConfig(t *testing.T) {
	s := &Skill{Name: "A", Executor: ExecutorREST}
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires rest_config")
}

func TestValidate_MutuallyExclusiveConfigs(t *testing.T) {
	s := &Skill{
		Name:         "A",
		Executor:     ExecutorREST,
		RESTConfig:   &RESTConfig{URLTemplate: "http://x", Method: "POST"},
		ActionConfig: &ActionConfig{Type: ActionHTTPCall, URLTemplate: "http://x"},
	}
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestValidate_ProducesRejectsIntegerToken(t *testing.T) {
	s := &Skill{
		Name:     "A",
		Executor: ExecutorLLM,
		Produces: []string{"a.0"},
	}
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "integer tokens are only allowed")
}

func TestValidate_RequiresAllowsIntegerToken(t *testing.T) {
	s := &Skill{
		Name:     "A",
		Executor: ExecutorLLM,
		Requires: []string{"a.0.b"},
		Produces: []string{"out"},
	}
	require.NoError(t, s.Validate())
}

func TestValidate_DataPipelineNeedsSteps(t *testing.T) {
	s := &Skill{
		Name:         "A",
		Executor:     ExecutorAction,
		ActionConfig: &ActionConfig{Type: ActionDataPipeline},
	}
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one step")
}

func TestValidate_DataPipelineRejectsUnknownStepType(t *testing.T) {
	s := &Skill{
		Name:     "A",
		Executor: ExecutorAction,
		ActionConfig: &ActionConfig{
			Type:  ActionDataPipeline,
			Steps: []PipelineStepConfig{{Type: "qeury"}},
		},
	}
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")
}

func TestValidate_DataPipelineRejectsUnknownStepTypeInNestedBranch(t *testing.T) {
	s := &Skill{
		Name:     "A",
		Executor: ExecutorAction,
		ActionConfig: &ActionConfig{
			Type: ActionDataPipeline,
			Steps: []PipelineStepConfig{
				{
					Type: "conditional",
					Then: []PipelineStepConfig{{Type: "bogus"}},
				},
			},
		},
	}
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")
}

func TestValidate_DataPipelineAcceptsAllKnownStepTypes(t *testing.T) {
	s := &Skill{
		Name:     "A",
		Executor: ExecutorAction,
		ActionConfig: &ActionConfig{
			Type: ActionDataPipeline,
			Steps: []PipelineStepConfig{
				{Type: "query"},
				{Type: "transform"},
				{Type: "skill"},
				{Type: "merge"},
				{Type: "parallel", Steps: []PipelineStepConfig{{Type: "query"}}},
				{Type: "conditional", Then: []PipelineStepConfig{{Type: "transform"}}, Else: []PipelineStepConfig{{Type: "merge"}}},
				{Type: "pipeline"},
			},
		},
	}
	require.NoError(t, s.Validate())
}

func TestValidate_OK(t *testing.T) {
	s := &Skill{
		Name:     "FetchWeather",
		Executor: ExecutorAction,
		Requires: []string{"city"},
		Produces: []string{"forecast"},
		ActionConfig: &ActionConfig{
			Type:        ActionHTTPCall,
			URLTemplate: "https://weather.example/{city}",
		},
	}
	require.NoError(t, s.Validate())
}
