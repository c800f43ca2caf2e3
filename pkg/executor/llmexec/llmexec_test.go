package llmexec

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/engine/pkg/executor"
	"github.com/skillforge/engine/pkg/llm"
	"github.com/skillforge/engine/pkg/skill"
)

type fakeClient struct {
	resp *llm.Response
	err  error
	req  llm.Request
}

func (f *fakeClient) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.req = req
	return f.resp, f.err
}

func singleProviderClientSet(c llm.Client) *llm.ClientSet {
	return llm.NewClientSetFromMap(map[string]llm.Client{"default": c}, "default", "default")
}

func TestExecutor_Execute_HappyPath(t *testing.T) {
	sk := &skill.Skill{
		Name:     "Summarize",
		Executor: skill.ExecutorLLM,
		Requires: []string{"text"},
		Produces: []string{"summary"},
		Prompt:   "Summarize: {text}",
	}
	fake := &fakeClient{resp: &llm.Response{Raw: json.RawMessage(`{"summary":"short"}`)}}

	e := &Executor{clients: singleProviderClientSet(fake)}
	result, err := e.Execute(context.Background(), sk, map[string]any{"text": "a long document"}, &executor.Context{})
	require.NoError(t, err)
	require.Nil(t, result.Error)
	assert.Equal(t, "short", result.Outputs["summary"])
	assert.Contains(t, fake.req.Messages[0].Content, "a long document")
}

func TestExecutor_Execute_SchemaViolationIsNonFatalResultError(t *testing.T) {
	sk := &skill.Skill{
		Name:     "Summarize",
		Executor: skill.ExecutorLLM,
		Produces: []string{"summary"},
		Prompt:   "go",
	}
	fake := &fakeClient{resp: &llm.Response{Raw: json.RawMessage(`{"wrong_key":"short"}`)}}

	e := &Executor{clients: singleProviderClientSet(fake)}
	result, err := e.Execute(context.Background(), sk, map[string]any{}, &executor.Context{})
	require.NoError(t, err)
	require.NotNil(t, result.Error)
	assert.Equal(t, executor.ErrorKindLLMOutputInvalid, result.Error.Kind)
}

func TestExecutor_Execute_RejectsNonLLMSkill(t *testing.T) {
	sk := &skill.Skill{Name: "X", Executor: skill.ExecutorREST}
	e := &Executor{clients: singleProviderClientSet(&fakeClient{})}
	_, err := e.Execute(context.Background(), sk, nil, &executor.Context{})
	require.Error(t, err)
}
