package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/engine/pkg/skill"
)

func TestEvaluate_Equals_StrictTypeSensitive(t *testing.T) {
	ctx := map[string]any{"status": "open"}
	ok, err := evaluate(&skill.Condition{Field: "status", Operator: "equals", Value: "open"}, ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = evaluate(&skill.Condition{Field: "status", Operator: "equals", Value: "closed"}, ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluate_Contains_CaseInsensitiveAnyMatch(t *testing.T) {
	ctx := map[string]any{"title": "Urgent Incident"}
	ok, err := evaluate(&skill.Condition{Field: "title", Operator: "contains", Value: []any{"urgent", "info"}}, ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_Contains_ListValue(t *testing.T) {
	ctx := map[string]any{"tags": []any{"prod", "db"}}
	ok, err := evaluate(&skill.Condition{Field: "tags", Operator: "contains", Value: "DB"}, ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_In_CaseSensitiveMembership(t *testing.T) {
	ctx := map[string]any{"env": "prod"}
	ok, err := evaluate(&skill.Condition{Field: "env", Operator: "in", Value: []any{"prod", "staging"}}, ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = evaluate(&skill.Condition{Field: "env", Operator: "in", Value: []any{"PROD"}}, ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluate_NumericComparison_CoercesStrings(t *testing.T) {
	ctx := map[string]any{"count": "5"}
	ok, err := evaluate(&skill.Condition{Field: "count", Operator: "gt", Value: 3}, ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_NumericComparison_NonNumericIsFalseNotError(t *testing.T) {
	ctx := map[string]any{"count": "not-a-number"}
	ok, err := evaluate(&skill.Condition{Field: "count", Operator: "gt", Value: 3}, ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluate_IsEmpty(t *testing.T) {
	cases := []struct {
		name string
		v    any
	}{
		{"nil", nil},
		{"empty string", ""},
		{"empty list", []any{}},
		{"empty map", map[string]any{}},
		{"zero", 0},
		{"false", false},
	}
	for _, tc := range cases {
		ctx := map[string]any{"v": tc.v}
		ok, err := evaluate(&skill.Condition{Field: "v", Operator: "is_empty"}, ctx)
		require.NoError(t, err)
		assert.True(t, ok, tc.name)
	}
}

func TestEvaluate_MissingFieldTreatedAsNil(t *testing.T) {
	ok, err := evaluate(&skill.Condition{Field: "absent", Operator: "is_empty"}, map[string]any{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_UnknownOperatorErrors(t *testing.T) {
	_, err := evaluate(&skill.Condition{Field: "x", Operator: "bogus"}, map[string]any{})
	assert.Error(t, err)
}

func TestEvaluate_NilConditionAlwaysTrue(t *testing.T) {
	ok, err := evaluate(nil, map[string]any{})
	require.NoError(t, err)
	assert.True(t, ok)
}
