// Package llmexec implements the LLM Executor (C5, spec §4.4): render
// prompt/system_prompt against the resolved inputs, invoke the model with a
// schema derived from produces ∪ optional_produces, and decode the
// structured result.
package llmexec

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/skillforge/engine/pkg/executor"
	"github.com/skillforge/engine/pkg/llm"
	"github.com/skillforge/engine/pkg/skill"
	"github.com/skillforge/engine/pkg/template"
)

// Executor implements executor.Executor for ExecutorLLM skills.
type Executor struct {
	clients *llm.ClientSet
}

// New builds an LLM Executor bound to the engine's configured providers.
func New(clients *llm.ClientSet) *Executor {
	return &Executor{clients: clients}
}

func (e *Executor) Execute(ctx context.Context, sk *skill.Skill, resolvedInputs map[string]any, ec *executor.Context) (*executor.Result, error) {
	if sk.Executor != skill.ExecutorLLM {
		return nil, fmt.Errorf("llmexec: skill %q is not an llm skill", sk.Name)
	}

	prompt, err := template.Render(sk.Prompt, resolvedInputs)
	if err != nil {
		return &executor.Result{Error: &executor.ExecError{Kind: executor.ErrorKindValidation, Message: err.Error()}}, nil
	}
	systemPrompt, err := template.Render(sk.SystemPrompt, resolvedInputs)
	if err != nil {
		return &executor.Result{Error: &executor.ExecError{Kind: executor.ErrorKindValidation, Message: err.Error()}}, nil
	}

	schema, err := llm.BuildOutputSchema(sk.Produces, sk.OptionalProduces)
	if err != nil {
		return &executor.Result{Error: &executor.ExecError{Kind: executor.ErrorKindValidation, Message: err.Error()}}, nil
	}

	client, err := e.clients.For(ec.LLMModelOverride)
	if err != nil {
		return nil, fmt.Errorf("llmexec: resolve provider: %w", err)
	}

	var messages []llm.Message
	if systemPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})

	resp, err := client.Complete(ctx, llm.Request{
		Model:      ec.LLMModelOverride,
		Messages:   messages,
		Schema:     schema,
		SchemaName: sk.Name,
	})
	if err != nil {
		return &executor.Result{Error: &executor.ExecError{Kind: executor.ErrorKindActionError, Message: err.Error()}}, nil
	}

	if err := llm.ValidateOutput(schema, resp.Raw); err != nil {
		return &executor.Result{Error: &executor.ExecError{Kind: executor.ErrorKindLLMOutputInvalid, Message: err.Error()}}, nil
	}

	var outputs map[string]any
	if err := json.Unmarshal(resp.Raw, &outputs); err != nil {
		return &executor.Result{Error: &executor.ExecError{Kind: executor.ErrorKindLLMOutputInvalid, Message: fmt.Sprintf("llmexec: decode structured output: %v", err)}}, nil
	}

	return &executor.Result{Outputs: outputs}, nil
}
