package pathresolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_NestedPaths(t *testing.T) {
	root := map[string]any{
		"a": map[string]any{
			"b": []any{
				map[string]any{"c": 42},
			},
		},
	}

	assert.Equal(t, 42, Get(root, "a.b.0.c"))
	assert.Equal(t, Missing, Get(root, "a.b.1.c"))
	assert.Equal(t, Missing, Get(root, "a.x.c"))
	assert.Equal(t, Missing, Get(root, "a.b.0.c.d"))
}

func TestGet_EmptyPath(t *testing.T) {
	root := map[string]any{"a": 1}
	assert.Equal(t, root, Get(root, ""))
}

func TestHas(t *testing.T) {
	root := map[string]any{"x": map[string]any{"y": 1}}
	assert.True(t, Has(root, "x.y"))
	assert.False(t, Has(root, "x.z"))
	assert.False(t, Has(root, "q.y"))
}

func TestSet_CreatesIntermediateMaps(t *testing.T) {
	root := map[string]any{}
	require.NoError(t, Set(root, "a.b.c", "hello"))
	assert.Equal(t, "hello", Get(root, "a.b.c"))
}

func TestSet_OverwritesExistingScalar(t *testing.T) {
	root := map[string]any{"a": 1}
	require.NoError(t, Set(root, "a", 2))
	assert.Equal(t, 2, Get(root, "a"))
}

func TestSet_AppendsToList(t *testing.T) {
	root := map[string]any{"items": []any{"x"}}
	require.NoError(t, Set(root, "items.1", "y"))
	assert.Equal(t, []any{"x", "y"}, root["items"])
}

func TestSet_CreatesListViaAppend(t *testing.T) {
	root := map[string]any{}
	require.NoError(t, Set(root, "items.0", "first"))
	assert.Equal(t, []any{"first"}, root["items"])
	require.NoError(t, Set(root, "items.1", "second"))
	assert.Equal(t, []any{"first", "second"}, root["items"])
}

func TestSet_RefusesSparseList(t *testing.T) {
	root := map[string]any{"items": []any{"x"}}
	err := Set(root, "items.5", "y")
	require.ErrorIs(t, err, ErrSparseList)
}

func TestSet_NestedWithinListElement(t *testing.T) {
	root := map[string]any{"rows": []any{map[string]any{"k": 1}}}
	require.NoError(t, Set(root, "rows.0.k", 2))
	require.NoError(t, Set(root, "rows.0.new", "added"))
	assert.Equal(t, 2, Get(root, "rows.0.k"))
	assert.Equal(t, "added", Get(root, "rows.0.new"))
}

func TestSet_EmptyPathErrors(t *testing.T) {
	err := Set(map[string]any{}, "", "x")
	require.ErrorIs(t, err, ErrEmptyPath)
}

func TestSet_NotIndexableWhenParentIsMapButTokenIsInteger(t *testing.T) {
	root := map[string]any{"a": map[string]any{}}
	err := Set(root, "a.0", "x")
	require.ErrorIs(t, err, ErrNotIndexable)
}
