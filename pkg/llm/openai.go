package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// openaiChat captures the subset of the OpenAI SDK the adapter uses,
// satisfied by the real client's Chat.Completions service or a fake in
// tests — the same "capture a narrow interface over the vendor client"
// shape as the Anthropic adapter.
type openaiChat interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// openaiClient implements Client via the Chat Completions API's
// structured-output mode (response_format: json_schema, strict).
type openaiClient struct {
	chat         openaiChat
	defaultModel string
}

// NewOpenAIClient builds a Client from an OpenAI API key.
func NewOpenAIClient(apiKey, defaultModel string) (Client, error) {
	if apiKey == "" {
		return nil, errors.New("llm: openai api key is required")
	}
	if defaultModel == "" {
		return nil, errors.New("llm: openai default model is required")
	}
	oc := openai.NewClient(option.WithAPIKey(apiKey))
	return &openaiClient{chat: &oc.Chat.Completions, defaultModel: defaultModel}, nil
}

func (c *openaiClient) Complete(ctx context.Context, req Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("llm: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case RoleUser:
			messages = append(messages, openai.UserMessage(m.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			return nil, fmt.Errorf("openai: unsupported message role %q", m.Role)
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(modelID),
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if len(req.Schema) > 0 {
		var schemaMap map[string]any
		if err := json.Unmarshal(req.Schema, &schemaMap); err != nil {
			return nil, fmt.Errorf("openai: decode output schema: %w", err)
		}
		name := req.SchemaName
		if name == "" {
			name = "skill_output"
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   name,
					Schema: schemaMap,
					Strict: openai.Bool(true),
				},
			},
		}
	}

	resp, err := c.chat.New(ctx, params)
	if err != nil {
		if isOpenAIRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	return translateOpenAIResponse(resp)
}

func translateOpenAIResponse(resp *openai.ChatCompletion) (*Response, error) {
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: no choices in response")
	}
	content := resp.Choices[0].Message.Content
	raw, err := contentToRaw(content)
	if err != nil {
		return nil, err
	}
	return &Response{
		Raw: raw,
		Usage: TokenUsage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
	}, nil
}

// contentToRaw treats the assistant message content as the JSON document
// requested via response_format; free-text (non-schema) completions are
// JSON-string-wrapped so callers always receive valid json.RawMessage.
func contentToRaw(content string) (json.RawMessage, error) {
	trimmed := []byte(content)
	var probe any
	if json.Unmarshal(trimmed, &probe) == nil {
		return json.RawMessage(trimmed), nil
	}
	return json.Marshal(content)
}

func isOpenAIRateLimited(err error) bool {
	var apiErr *openai.Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == 429
}
