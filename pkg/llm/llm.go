// Package llm provides the vendor-agnostic LLM client used by the LLM
// Executor (C5) and the Planner (C9): render a prompt, invoke a model with a
// JSON-schema-constrained output contract, and hand back the decoded
// structured result.
package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// Role is a conversation message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the rendered conversation sent to the model.
type Message struct {
	Role    Role
	Content string
}

// Request is a single structured-output completion request.
type Request struct {
	Model       string
	Messages    []Message
	Schema      json.RawMessage // JSON Schema the response must satisfy
	SchemaName  string          // vendor-facing name for the schema/tool
	MaxTokens   int
	Temperature float64
}

// Response is the decoded result of a Request.
type Response struct {
	// Raw is the model's structured output as the vendor returned it. The
	// clients do not validate it against Request.Schema; callers do that
	// with ValidateOutput.
	Raw   json.RawMessage
	Usage TokenUsage
}

// TokenUsage reports token consumption for one completion.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// ErrRateLimited signals a vendor rate-limit response; callers may retry
// with backoff.
var ErrRateLimited = errors.New("llm: rate limited")

// ErrSchemaViolation signals the model's output did not satisfy Request.Schema.
var ErrSchemaViolation = errors.New("llm: response violates output schema")

// Client is the vendor-agnostic interface the LLM Executor and Planner
// depend on.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}
