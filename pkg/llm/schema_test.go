package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildOutputSchema_RequiredAndNullable(t *testing.T) {
	schema, err := BuildOutputSchema([]string{"forecast"}, []string{"alerts"})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(schema, &decoded))
	assert.Equal(t, "object", decoded["type"])
	props := decoded["properties"].(map[string]any)
	assert.Contains(t, props, "forecast")
	assert.Contains(t, props, "alerts")
	assert.ElementsMatch(t, []any{"forecast"}, decoded["required"])
}

func TestBuildOutputSchema_DottedPathUsesTopSegment(t *testing.T) {
	schema, err := BuildOutputSchema([]string{"weather.forecast"}, nil)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(schema, &decoded))
	props := decoded["properties"].(map[string]any)
	assert.Contains(t, props, "weather")
}

func TestValidateOutput_PassesWellFormedPayload(t *testing.T) {
	schema, err := BuildOutputSchema([]string{"forecast"}, nil)
	require.NoError(t, err)

	err = ValidateOutput(schema, json.RawMessage(`{"forecast":"sunny"}`))
	assert.NoError(t, err)
}

func TestValidateOutput_RejectsMissingRequiredKey(t *testing.T) {
	schema, err := BuildOutputSchema([]string{"forecast"}, nil)
	require.NoError(t, err)

	err = ValidateOutput(schema, json.RawMessage(`{"other":"value"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaViolation)
}

func TestValidateOutput_EmptySchemaAlwaysPasses(t *testing.T) {
	assert.NoError(t, ValidateOutput(nil, json.RawMessage(`{"anything":true}`)))
}
