package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_SimpleSubstitution(t *testing.T) {
	out, err := Render("hello {name}", map[string]any{"name": "world"})
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestRender_NestedPath(t *testing.T) {
	out, err := Render("city={city.name}", map[string]any{"city": map[string]any{"name": "Paris"}})
	require.NoError(t, err)
	assert.Equal(t, "city=Paris", out)
}

func TestRender_ComplexValueIsJSONStringified(t *testing.T) {
	out, err := Render("{items}", map[string]any{"items": []any{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, `["a","b"]`, out)
}

func TestRender_MissingPathRendersEmpty(t *testing.T) {
	out, err := Render("x={missing.path}", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "x=", out)
}

func TestRender_MultiplePlaceholders(t *testing.T) {
	out, err := Render("{a}-{b}", map[string]any{"a": "1", "b": "2"})
	require.NoError(t, err)
	assert.Equal(t, "1-2", out)
}

func TestRender_UnterminatedPlaceholderErrors(t *testing.T) {
	_, err := Render("{a", map[string]any{"a": "1"})
	require.Error(t, err)
}

func TestRenderHeaders(t *testing.T) {
	out, err := RenderHeaders(map[string]string{"X-City": "{city}"}, map[string]any{"city": "NYC"})
	require.NoError(t, err)
	assert.Equal(t, "NYC", out["X-City"])
}
