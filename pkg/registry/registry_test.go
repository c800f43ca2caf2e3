package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/engine/pkg/config"
)

func writeSkillDir(t *testing.T, root, name, yaml string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skill.yaml"), []byte(yaml), 0o644))
}

const fetchWeatherYAML = `
name: FetchWeather
description: Looks up a forecast.
produces: [forecast]
executor: action
action_config:
  type: http_call
  url_template: "https://weather.example/{city}"
`

const sendEmailYAML = `
name: SendEmail
produces: [sent]
requires: [to, subject]
executor: action
action_config:
  type: python_function
  function_name: send_email
`

func TestRegistry_ReloadAndGet(t *testing.T) {
	root := t.TempDir()
	writeSkillDir(t, root, "fetch_weather", fetchWeatherYAML)
	writeSkillDir(t, root, "send_email", sendEmailYAML)

	r := New([]config.SkillSourceConfig{{Path: root, IsPublic: true}}, nil)
	diags, err := r.Reload(context.Background())
	require.NoError(t, err)
	assert.Empty(t, diags)

	s, ok := r.Get("any-workspace", "FetchWeather")
	require.True(t, ok)
	assert.Equal(t, "forecast", s.Produces[0])

	_, ok = r.Get("any-workspace", "DoesNotExist")
	assert.False(t, ok)
}

func TestRegistry_List_IncludesPublicSkillsInAnyWorkspace(t *testing.T) {
	root := t.TempDir()
	writeSkillDir(t, root, "fetch_weather", fetchWeatherYAML)

	r := New([]config.SkillSourceConfig{{Path: root, IsPublic: true}}, nil)
	_, err := r.Reload(context.Background())
	require.NoError(t, err)

	list := r.List("ws-1")
	require.Len(t, list, 1)
	assert.Equal(t, "FetchWeather", list[0].Name)
}

func TestRegistry_Reload_OneBadSkillDoesNotAbortScan(t *testing.T) {
	root := t.TempDir()
	writeSkillDir(t, root, "fetch_weather", fetchWeatherYAML)
	writeSkillDir(t, root, "broken", "name: Broken\nexecutor: rest\n") // missing rest_config

	r := New([]config.SkillSourceConfig{{Path: root, IsPublic: true}}, nil)
	diags, err := r.Reload(context.Background())
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, "broken", diags[0].Name)

	_, ok := r.Get("ws-1", "FetchWeather")
	assert.True(t, ok)
}

func TestRegistry_Get_UnknownWorkspaceFallsBackToPublic(t *testing.T) {
	root := t.TempDir()
	writeSkillDir(t, root, "fetch_weather", fetchWeatherYAML)

	r := New([]config.SkillSourceConfig{{Path: root, IsPublic: true}}, nil)
	_, err := r.Reload(context.Background())
	require.NoError(t, err)

	s, ok := r.Get("never-seen-before", "FetchWeather")
	require.True(t, ok)
	assert.Equal(t, "FetchWeather", s.Name)
}
