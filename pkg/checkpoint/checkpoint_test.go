package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/engine/ent"
	entcheckpoint "github.com/skillforge/engine/ent/checkpoint"
	"github.com/skillforge/engine/pkg/config"
)

func TestNew_AppliesBufferDefaultsWhenConfigNil(t *testing.T) {
	c := New(&ent.Client{}, nil, nil)
	assert.Equal(t, config.DefaultBufferConfig().Size, c.size)
	assert.Equal(t, config.DefaultBufferConfig().FlushInterval, c.flushInterval)
	assert.NotNil(t, c.parent)
}

func TestChannelValues_RoundTripsThroughRow(t *testing.T) {
	state := State{
		ThreadID:    "thread-1",
		DataStore:   map[string]any{"user_id": "u-42"},
		History:     []string{"fetch_user", "send_email"},
		Attempts: []SkillAttempt{
			{SkillName: "fetch_user", Succeeded: true, InputsHash: "abc123"},
			{SkillName: "send_email", Succeeded: false, InputsHash: "def456"},
		},
		ActiveSkill: "send_email",
		Status:      "running",
		FailedSkill: "fetch_user",
		Error:       &StateError{Kind: "executor_error", Message: "boom"},
		RunName:     "nightly-job",
		SOPPreview:  "Resolve the customer's billing question.",
	}

	cv := channelValues(state)

	row := &ent.Checkpoint{
		ThreadID:      state.ThreadID,
		ChannelValues: cv,
		Status:        entcheckpoint.Status(state.Status),
	}
	row.ActiveSkill = &state.ActiveSkill
	row.RunName = &state.RunName
	row.SopPreview = &state.SOPPreview

	got := rowToState(row)

	assert.Equal(t, state.ThreadID, got.ThreadID)
	assert.Equal(t, state.DataStore, got.DataStore)
	assert.Equal(t, state.History, got.History)
	assert.Equal(t, state.Attempts, got.Attempts)
	assert.Equal(t, state.ActiveSkill, got.ActiveSkill)
	assert.Equal(t, state.Status, got.Status)
	assert.Equal(t, state.FailedSkill, got.FailedSkill)
	require.NotNil(t, got.Error)
	assert.Equal(t, state.Error.Kind, got.Error.Kind)
	assert.Equal(t, state.Error.Message, got.Error.Message)
	assert.Equal(t, state.RunName, got.RunName)
	assert.Equal(t, state.SOPPreview, got.SOPPreview)
}

func TestChannelValues_OmitsFailedSkillAndErrorWhenUnset(t *testing.T) {
	cv := channelValues(State{ThreadID: "t", DataStore: map[string]any{}, History: nil})
	_, hasFailed := cv["failed_skill"]
	_, hasError := cv["error"]
	assert.False(t, hasFailed)
	assert.False(t, hasError)
}

func TestRowToState_DefaultsDataStoreWhenMissing(t *testing.T) {
	row := &ent.Checkpoint{ThreadID: "t", ChannelValues: map[string]any{}, Status: entcheckpoint.StatusPending}
	got := rowToState(row)
	assert.NotNil(t, got.DataStore)
	assert.Empty(t, got.DataStore)
}

func TestSave_ReturnsContextErrorWhenNoBatchLoopIsRunning(t *testing.T) {
	c := New(&ent.Client{}, nil, &config.BufferYAMLConfig{Size: 1, FlushInterval: time.Hour})
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := c.Save(ctx, State{ThreadID: "t"})
	require.Error(t, err)
}
