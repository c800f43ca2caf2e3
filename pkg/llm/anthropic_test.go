package llm

import (
	"context"
	"encoding/json"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAnthropicMessages struct {
	lastParams sdk.MessageNewParams
	resp       *sdk.Message
	err        error
}

func (s *stubAnthropicMessages) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.lastParams = body
	return s.resp, s.err
}

func TestAnthropicClient_Complete_ForcesToolUseWhenSchemaSet(t *testing.T) {
	stub := &stubAnthropicMessages{
		resp: &sdk.Message{
			Content: []sdk.ContentBlockUnion{
				{Type: "tool_use", Input: json.RawMessage(`{"forecast":"sunny"}`)},
			},
			Usage: sdk.Usage{InputTokens: 10, OutputTokens: 5},
		},
	}
	c := &anthropicClient{msg: stub, defaultModel: "claude-sonnet-4-5"}

	resp, err := c.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "what's the weather"}},
		Schema:   json.RawMessage(`{"type":"object","properties":{"forecast":{}}}`),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"forecast":"sunny"}`, string(resp.Raw))
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	require.NotNil(t, stub.lastParams.ToolChoice.OfTool)
}

func TestAnthropicClient_Complete_RequiresAtLeastOneMessage(t *testing.T) {
	c := &anthropicClient{msg: &stubAnthropicMessages{}, defaultModel: "claude-sonnet-4-5"}
	_, err := c.Complete(context.Background(), Request{})
	require.Error(t, err)
}
