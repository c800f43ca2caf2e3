package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skillforge/engine/ent"
	"github.com/skillforge/engine/pkg/config"
)

func TestOrphanState_StartsZeroValued(t *testing.T) {
	p := NewPool("pod-1", &ent.Client{}, &Orchestrator{}, &config.QueueConfig{WorkerCount: 3})
	h := p.Health(t.Context())
	assert.True(t, h.LastOrphanScan.IsZero())
	assert.Equal(t, 0, h.OrphansRecovered)
}

// detectAndRecoverOrphans, recoverOrphan, CleanupStartupOrphans, and
// sweepOverdueCallbacks all require a live *ent.Client (thread/checkpoint
// rows, a real RESTCallbacks implementation), so they are not covered by
// this file; the module has no integration suite for them.
