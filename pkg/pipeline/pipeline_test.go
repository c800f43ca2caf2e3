package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/engine/pkg/actionfn"
	"github.com/skillforge/engine/pkg/credentials"
	"github.com/skillforge/engine/pkg/datasource"
	"github.com/skillforge/engine/pkg/executor"
	"github.com/skillforge/engine/pkg/skill"
)

type fakeResolver struct {
	result *datasource.Result
}

func (f *fakeResolver) ResolveAndQuery(_ context.Context, _ credentials.Client, _, _, _, _ string, _ map[string]any) (*datasource.Result, error) {
	return f.result, nil
}

func TestRun_TransformWritesOutputFromSelectedInputs(t *testing.T) {
	funcs := actionfn.NewTable()
	funcs.Register("double", func(_ context.Context, inputs map[string]any) (any, error) {
		return inputs["n"].(int) * 2, nil
	})
	e := New(funcs, nil)
	steps := []skill.PipelineStepConfig{
		{Type: "transform", Function: "double", Inputs: []string{"n"}, Output: "doubled"},
	}
	final, err := e.Run(context.Background(), steps, map[string]any{"n": 21}, &executor.Context{})
	require.NoError(t, err)
	assert.Equal(t, 42, final["doubled"])
}

func TestRun_Query_PlacesResultUnderOutputKey(t *testing.T) {
	ds := &fakeResolver{result: &datasource.Result{Rows: []map[string]any{{"id": 1}}, RowCount: 1}}
	e := New(nil, ds)
	steps := []skill.PipelineStepConfig{
		{Type: "query", Source: "postgres", CredentialRef: "ref", Query: "select 1", Output: "users"},
	}
	final, err := e.Run(context.Background(), steps, map[string]any{}, &executor.Context{})
	require.NoError(t, err)
	users := final["users"].(map[string]any)
	assert.EqualValues(t, 1, users["row_count"])
}

func TestRun_Skill_MergesInvokedOutputsAtTopLevel(t *testing.T) {
	e := New(nil, nil)
	ec := &executor.Context{
		InvokeSkill: func(_ context.Context, name string, inputs map[string]any) (map[string]any, error) {
			assert.Equal(t, "fetch_weather", name)
			return map[string]any{"forecast": "sunny"}, nil
		},
	}
	steps := []skill.PipelineStepConfig{
		{Type: "skill", SkillRef: "fetch_weather", Inputs: []string{"city"}},
	}
	final, err := e.Run(context.Background(), steps, map[string]any{"city": "nyc"}, ec)
	require.NoError(t, err)
	assert.Equal(t, "sunny", final["forecast"])
}

func TestRun_Merge_NestsEachInputUnderItsOwnName(t *testing.T) {
	e := New(nil, nil)
	steps := []skill.PipelineStepConfig{
		{Type: "merge", MergeInputs: []string{"a", "b"}, Output: "combined"},
	}
	final, err := e.Run(context.Background(), steps, map[string]any{"a": 1, "b": 2}, &executor.Context{})
	require.NoError(t, err)
	combined := final["combined"].(map[string]any)
	assert.Equal(t, 1, combined["a"])
	assert.Equal(t, 2, combined["b"])
}

func TestRun_Conditional_RunsThenBranchWhenTrue(t *testing.T) {
	e := New(nil, nil)
	steps := []skill.PipelineStepConfig{
		{
			Type: "conditional",
			If:   &skill.Condition{Field: "ready", Operator: "equals", Value: true},
			Then: []skill.PipelineStepConfig{{Type: "merge", MergeInputs: []string{"ready"}, Output: "then_ran"}},
			Else: []skill.PipelineStepConfig{{Type: "merge", MergeInputs: []string{"ready"}, Output: "else_ran"}},
		},
	}
	final, err := e.Run(context.Background(), steps, map[string]any{"ready": true}, &executor.Context{})
	require.NoError(t, err)
	assert.Contains(t, final, "then_ran")
	assert.NotContains(t, final, "else_ran")
}

func TestRun_RunIfFalseSkipsStep(t *testing.T) {
	e := New(nil, nil)
	steps := []skill.PipelineStepConfig{
		{
			Type:        "merge",
			RunIf:       &skill.Condition{Field: "go", Operator: "equals", Value: true},
			MergeInputs: []string{"go"},
			Output:      "ran",
		},
	}
	final, err := e.Run(context.Background(), steps, map[string]any{"go": false}, &executor.Context{})
	require.NoError(t, err)
	assert.NotContains(t, final, "ran")
}

func TestRun_Parallel_MergesAllSubStepOutputs(t *testing.T) {
	e := New(nil, nil)
	steps := []skill.PipelineStepConfig{
		{
			Type: "parallel",
			Steps: []skill.PipelineStepConfig{
				{Type: "merge", MergeInputs: []string{"a"}, Output: "out_a"},
				{Type: "merge", MergeInputs: []string{"b"}, Output: "out_b"},
			},
		},
	}
	final, err := e.Run(context.Background(), steps, map[string]any{"a": 1, "b": 2}, &executor.Context{})
	require.NoError(t, err)
	assert.Contains(t, final, "out_a")
	assert.Contains(t, final, "out_b")
}

func TestRun_NestedPipeline_SeedsFromSelectedKeysAndMerges(t *testing.T) {
	e := New(nil, nil)
	steps := []skill.PipelineStepConfig{
		{
			Type:        "pipeline",
			ContextKeys: []string{"x"},
			Steps: []skill.PipelineStepConfig{
				{Type: "merge", MergeInputs: []string{"x"}, Output: "nested_out"},
			},
		},
	}
	final, err := e.Run(context.Background(), steps, map[string]any{"x": 9}, &executor.Context{})
	require.NoError(t, err)
	nested := final["nested_out"].(map[string]any)
	assert.Equal(t, 9, nested["x"])
}

func TestRun_UnknownStepTypeErrors(t *testing.T) {
	e := New(nil, nil)
	_, err := e.Run(context.Background(), []skill.PipelineStepConfig{{Type: "bogus"}}, map[string]any{}, &executor.Context{})
	require.Error(t, err)
}
