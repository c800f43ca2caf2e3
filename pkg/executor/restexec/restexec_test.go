package restexec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/engine/pkg/executor"
	"github.com/skillforge/engine/pkg/skill"
)

func TestExecutor_Execute_RejectsNonRESTSkill(t *testing.T) {
	e := &Executor{}
	sk := &skill.Skill{Name: "X", Executor: skill.ExecutorLLM}
	_, err := e.Execute(context.Background(), sk, nil, &executor.Context{})
	require.Error(t, err)
}

func TestExecutor_Execute_BadURLTemplateFailsBeforeAnyDatabaseWrite(t *testing.T) {
	// db is intentionally nil: a malformed template must be rejected before
	// restexec ever reaches the CallbackRecord.Create call, or this test
	// would panic on a nil client instead of returning a validation error.
	e := &Executor{db: nil}
	sk := &skill.Skill{
		Name:       "Dispatch",
		Executor:   skill.ExecutorREST,
		RESTConfig: &skill.RESTConfig{URLTemplate: "https://x/{unterminated"},
	}
	result, err := e.Execute(context.Background(), sk, map[string]any{}, &executor.Context{ThreadID: "t1"})
	require.NoError(t, err)
	require.NotNil(t, result.Error)
	assert.Equal(t, executor.ErrorKindValidation, result.Error.Kind)
}
