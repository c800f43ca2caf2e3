package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/engine/pkg/config"
)

func TestNew_UnknownBackendErrors(t *testing.T) {
	_, err := New(t.Context(), &config.PubSubYAMLConfig{Backend: "carrier-pigeon"}, "", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend")
}

func TestNew_RedisBackendDoesNotRequireLiveServer(t *testing.T) {
	bus, err := New(t.Context(), &config.PubSubYAMLConfig{Backend: config.PubSubRedis, RedisURL: "redis://localhost:6379/0"}, "", nil, nil)
	require.NoError(t, err)
	require.NotNil(t, bus)
	_ = bus.Close()
}
