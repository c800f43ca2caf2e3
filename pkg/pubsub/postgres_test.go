package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/engine/ent"
)

func TestNewPostgres_InitializesEmptySubscriptionState(t *testing.T) {
	p := NewPostgres("host=localhost dbname=test", &ent.Client{}, nil)
	assert.NotNil(t, p.subs)
	assert.Empty(t, p.subs)
	assert.False(t, p.isAlive())
}

func TestPostgres_SubscribeWithoutStartReturnsError(t *testing.T) {
	p := NewPostgres("host=localhost dbname=test", &ent.Client{}, nil)
	err := p.Subscribe(t.Context(), "run_events", func([]byte) {}, make(chan struct{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not established")
}

func TestPostgres_RemoveSubDropsEmptyChannelBucket(t *testing.T) {
	p := NewPostgres("host=localhost dbname=test", &ent.Client{}, nil)
	sub := &pgSubscription{channel: "run_events"}
	p.subs["run_events"] = []*pgSubscription{sub}

	p.removeSub("run_events", sub)
	assert.NotContains(t, p.subs, "run_events")
}
