package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicMessages captures the subset of the Anthropic SDK used by the
// adapter, grounded on goa-ai's anthropic.MessagesClient — satisfied by
// *sdk.MessageService so tests can substitute a fake.
type anthropicMessages interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// anthropicClient implements Client on top of Claude Messages. Anthropic
// has no dedicated JSON-mode response format, so structured output is
// obtained by forcing a single synthetic tool call whose input schema is
// the request's output schema (spec §4.4's "construct an output schema
// from P ∪ O" realized as a forced tool use rather than free text).
type anthropicClient struct {
	msg          anthropicMessages
	defaultModel string
}

// NewAnthropicClient builds a Client from an Anthropic API key.
func NewAnthropicClient(apiKey, defaultModel string) (Client, error) {
	if apiKey == "" {
		return nil, errors.New("llm: anthropic api key is required")
	}
	if defaultModel == "" {
		return nil, errors.New("llm: anthropic default model is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return &anthropicClient{msg: &ac.Messages, defaultModel: defaultModel}, nil
}

const emitResultToolName = "emit_result"

func (c *anthropicClient) Complete(ctx context.Context, req Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("llm: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	conversation, system, err := encodeAnthropicMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	params := sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Model:     sdk.Model(modelID),
		Messages:  conversation,
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}

	if len(req.Schema) > 0 {
		schemaParam, err := anthropicToolSchema(req.Schema)
		if err != nil {
			return nil, err
		}
		name := req.SchemaName
		if name == "" {
			name = emitResultToolName
		}
		tool := sdk.ToolUnionParamOfTool(schemaParam, name)
		if tool.OfTool != nil {
			tool.OfTool.Description = sdk.String("Emit the final structured result for this step.")
		}
		params.Tools = []sdk.ToolUnionParam{tool}
		params.ToolChoice = sdk.ToolChoiceParamOfTool(name)
	}

	msg, err := c.msg.New(ctx, params)
	if err != nil {
		if isAnthropicRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
		return nil, fmt.Errorf("anthropic messages.new: %w", err)
	}

	return translateAnthropicResponse(msg, len(req.Schema) > 0)
}

func encodeAnthropicMessages(msgs []Message) ([]sdk.MessageParam, []sdk.TextBlockParam, error) {
	conversation := make([]sdk.MessageParam, 0, len(msgs))
	var system []sdk.TextBlockParam

	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case RoleSystem:
			system = append(system, sdk.TextBlockParam{Text: m.Content})
		case RoleUser:
			conversation = append(conversation, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case RoleAssistant:
			conversation = append(conversation, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			return nil, nil, fmt.Errorf("anthropic: unsupported message role %q", m.Role)
		}
	}
	if len(conversation) == 0 {
		return nil, nil, errors.New("anthropic: at least one user/assistant message is required")
	}
	return conversation, system, nil
}

func anthropicToolSchema(schema json.RawMessage) (sdk.ToolInputSchemaParam, error) {
	var m map[string]any
	if err := json.Unmarshal(schema, &m); err != nil {
		return sdk.ToolInputSchemaParam{}, fmt.Errorf("anthropic: decode output schema: %w", err)
	}
	return sdk.ToolInputSchemaParam{ExtraFields: m}, nil
}

func translateAnthropicResponse(msg *sdk.Message, expectToolUse bool) (*Response, error) {
	resp := &Response{
		Usage: TokenUsage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}

	if !expectToolUse {
		var text string
		for _, block := range msg.Content {
			if block.Type == "text" {
				text += block.Text
			}
		}
		raw, err := json.Marshal(text)
		if err != nil {
			return nil, err
		}
		resp.Raw = raw
		return resp, nil
	}

	for _, block := range msg.Content {
		if block.Type != "tool_use" {
			continue
		}
		raw, err := json.Marshal(block.Input)
		if err != nil {
			return nil, fmt.Errorf("anthropic: re-encode tool input: %w", err)
		}
		resp.Raw = raw
		return resp, nil
	}
	return nil, errors.New("anthropic: model did not emit the requested structured tool call")
}

func isAnthropicRateLimited(err error) bool {
	var apiErr *sdk.Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == 429
}
