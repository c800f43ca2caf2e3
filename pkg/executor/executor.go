// Package executor defines the Executor Interface (C4) shared by the LLM,
// REST, and Action executors, plus the output-mapping contract the
// Orchestrator applies to every raw executor result (spec §4.3).
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skillforge/engine/pkg/credentials"
	"github.com/skillforge/engine/pkg/skill"
)

// Context carries everything an executor needs beyond the skill definition
// and its resolved inputs (spec §4.3: "ctx carries {thread_id, owner_id,
// workspace_id, llm_model_override?, credential_client}").
type Context struct {
	ThreadID         string
	OwnerID          string
	WorkspaceID      string
	LLMModelOverride string
	Credentials      credentials.Client

	// InvokeSkill recursively invokes another skill through the full
	// executor path (output mapping included); only the `skill` pipeline
	// step kind and ACTION sub-dispatch use it. nil for the top-level
	// invocation, set by the Orchestrator/pipeline engine.
	InvokeSkill func(ctx context.Context, name string, resolvedInputs map[string]any) (map[string]any, error)
}

// SideEffects signals that the run must suspend rather than proceed
// immediately to output mapping (spec §4.5's REST pause, and HITL pauses
// applied by the Orchestrator after a normal Result).
type SideEffects struct {
	Pause            bool
	CallbackToken    string
	CallbackDeadline time.Time
}

// ErrorKind is one of the taxonomy constants persisted in `_error.kind`
// (spec §7).
type ErrorKind string

const (
	ErrorKindActionError        ErrorKind = "action_error"
	ErrorKindRESTTimeout        ErrorKind = "rest_timeout"
	ErrorKindMissingRequiredOut ErrorKind = "missing_required_output"
	ErrorKindValidation         ErrorKind = "validation_error"
	ErrorKindLLMOutputInvalid   ErrorKind = "llm_output_invalid"
)

// ExecError is the structured error shape every executor reports on
// failure (spec §4.3: "error?: {kind, message, stack?}").
type ExecError struct {
	Kind    ErrorKind
	Message string
	Stack   string
}

func (e *ExecError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Result is the raw (pre-output-mapping) value every executor returns.
type Result struct {
	Outputs     map[string]any
	SideEffects SideEffects
	Error       *ExecError
}

// Executor is implemented by the LLM, REST, and Action executors.
type Executor interface {
	Execute(ctx context.Context, sk *skill.Skill, resolvedInputs map[string]any, ec *Context) (*Result, error)
}

// ErrOutputsNotMap is returned by MapOutputs when an executor's raw
// outputs value is not a map (spec §4.3 output-mapping rule 4).
var ErrOutputsNotMap = errors.New("executor: outputs is not a map")

// ErrMissingRequiredOutput is returned by MapOutputs when a key-extract
// pass can't find a required produces key (spec §4.3 rule 2 / §7
// "missing_required_output").
var ErrMissingRequiredOutput = errors.New("executor: missing required output")

// MapOutputs implements the output-mapping contract common to every
// executor (spec §4.3): wrap vs. key-extract depending on executor kind
// and |produces|, plus best-effort optional_produces copying. It is the
// Orchestrator's responsibility to call this after every Execute — no
// executor performs its own mapping.
func MapOutputs(sk *skill.Skill, raw map[string]any) (map[string]any, error) {
	if raw == nil {
		return nil, ErrOutputsNotMap
	}

	mapped := make(map[string]any, len(sk.Produces)+len(sk.OptionalProduces))

	wrap := sk.Executor == skill.ExecutorAction &&
		sk.ActionConfig != nil &&
		sk.ActionConfig.Type != skill.ActionDataPipeline &&
		len(sk.Produces) == 1

	switch {
	case wrap:
		mapped[sk.Produces[0]] = raw
	case len(sk.Produces) == 0:
		for k, v := range raw {
			mapped[k] = v
		}
	default:
		for _, k := range sk.Produces {
			v, ok := raw[k]
			if !ok {
				return nil, fmt.Errorf("%w: skill %q produces key %q", ErrMissingRequiredOutput, sk.Name, k)
			}
			mapped[k] = v
		}
	}

	for _, k := range sk.OptionalProduces {
		if _, isProduces := mapped[k]; isProduces {
			continue
		}
		if v, ok := raw[k]; ok && v != nil {
			mapped[k] = v
		}
	}

	return mapped, nil
}
