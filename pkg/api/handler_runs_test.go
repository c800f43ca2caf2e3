package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/skillforge/engine/ent"
	"github.com/skillforge/engine/pkg/checkpoint"
)

func TestRunResponseFromState_MapsOptionalFieldsWhenSet(t *testing.T) {
	runName := "nightly-audit"
	parent := "thread-parent"
	modelOverride := "gpt-4o"
	now := time.Now()

	thread := &ent.Thread{
		ID:               "thread-1",
		OwnerID:          "owner-1",
		WorkspaceID:      "ws-1",
		RunName:          &runName,
		ParentThreadID:   &parent,
		LlmModelOverride: &modelOverride,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	state := checkpoint.State{
		Status:      "running",
		DataStore:   map[string]any{"a": 1},
		History:     []string{"skill_a produced [a]"},
		ActiveSkill: "skill_a",
		Error:       &checkpoint.StateError{Kind: "validation_error", Message: "boom"},
	}

	resp := runResponseFromState(thread, state)

	assert.Equal(t, "thread-1", resp.ThreadID)
	assert.Equal(t, "nightly-audit", resp.RunName)
	assert.Equal(t, "thread-parent", resp.ParentThreadID)
	assert.Equal(t, "gpt-4o", resp.LLMModelOverride)
	assert.Equal(t, "running", resp.Status)
	assert.NotNil(t, resp.Error)
	assert.Equal(t, "validation_error", resp.Error.Kind)
}

func TestRunResponseFromState_OmitsOptionalFieldsWhenNil(t *testing.T) {
	thread := &ent.Thread{ID: "thread-2", OwnerID: "owner-2", WorkspaceID: "ws-2"}
	state := checkpoint.State{Status: "pending"}

	resp := runResponseFromState(thread, state)

	assert.Empty(t, resp.RunName)
	assert.Empty(t, resp.ParentThreadID)
	assert.Empty(t, resp.LLMModelOverride)
	assert.Nil(t, resp.Error)
}

func TestRunSummaryFromThread_MapsRunNameWhenSet(t *testing.T) {
	runName := "weekly-report"
	thread := &ent.Thread{ID: "thread-3", OwnerID: "o", WorkspaceID: "w", RunName: &runName, Status: "completed"}

	summary := runSummaryFromThread(thread)

	assert.Equal(t, "thread-3", summary.ThreadID)
	assert.Equal(t, "weekly-report", summary.RunName)
	assert.Equal(t, "completed", summary.Status)
}
