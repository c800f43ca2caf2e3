package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skillforge/engine/ent"
	entthread "github.com/skillforge/engine/ent/thread"
	"github.com/skillforge/engine/pkg/executor"
)

// orphanState tracks orphan/REST-deadline sweep metrics (thread-safe),
// surfaced through Pool.Health.
type orphanState struct {
	mu        sync.Mutex
	lastScan  time.Time
	recovered int
}

// runOrphanDetection periodically scans for stuck runs and overdue REST
// callbacks. All pods run this independently; both sweeps are idempotent
// (a second pod racing to fail an already-failed thread is a no-op once
// the first pod's checkpoint save lands, since Tick already refuses to
// advance past a terminal/paused state).
func (p *Pool) runOrphanDetection(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.OrphanDetectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.detectAndRecoverOrphans(ctx); err != nil {
				slog.Error("orchestrator: orphan detection failed", "error", err)
			}
			if p.orch.rest != nil {
				if err := p.sweepOverdueCallbacks(ctx); err != nil {
					slog.Error("orchestrator: rest callback sweep failed", "error", err)
				}
			}
		}
	}
}

// detectAndRecoverOrphans finds running threads whose owning pod stopped
// heartbeating and fails them, freeing pod_id so a future rerun can start
// fresh (spec §5 "a dead pod's in-flight threads must eventually be
// recoverable"). There is no generic automatic retry (spec §4.9 "Failure
// semantics: ...no built-in retry"): an orphaned thread lands in error,
// exactly like any other fatal tick failure, and must be rerun explicitly.
func (p *Pool) detectAndRecoverOrphans(ctx context.Context) error {
	threshold := time.Now().Add(-p.cfg.OrphanThreshold)

	orphans, err := p.db.Thread.Query().
		Where(
			entthread.StatusEQ(entthread.StatusRunning),
			entthread.PodIDNotNil(),
			entthread.LastHeartbeatAtNotNil(),
			entthread.LastHeartbeatAtLT(threshold),
		).
		All(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: query orphaned threads: %w", err)
	}

	if len(orphans) == 0 {
		p.orphans.mu.Lock()
		p.orphans.lastScan = time.Now()
		p.orphans.mu.Unlock()
		return nil
	}

	slog.Warn("orchestrator: detected orphaned runs", "count", len(orphans))

	recovered := 0
	for _, th := range orphans {
		if err := p.recoverOrphan(ctx, th); err != nil {
			slog.Error("orchestrator: failed to recover orphaned run", "thread_id", th.ID, "error", err)
			continue
		}
		recovered++
	}

	p.orphans.mu.Lock()
	p.orphans.lastScan = time.Now()
	p.orphans.recovered += recovered
	p.orphans.mu.Unlock()
	return nil
}

func (p *Pool) recoverOrphan(ctx context.Context, th *ent.Thread) error {
	lastHeartbeat := "unknown"
	if th.LastHeartbeatAt != nil {
		lastHeartbeat = th.LastHeartbeatAt.Format(time.RFC3339)
	}
	oldPod := "unknown"
	if th.PodID != nil {
		oldPod = *th.PodID
	}

	state, err := p.orch.checkpoints.Latest(ctx, th.ID)
	if err != nil {
		return fmt.Errorf("load latest checkpoint: %w", err)
	}

	// No generic "orphaned" member exists in the error taxonomy; a dead
	// pod's in-flight run is, from the run's perspective, indistinguishable
	// from a cancelled one — nothing will ever resume it without a rerun.
	_, ferr := p.orch.fail(ctx, th, state, state.ActiveSkill, ErrorKindCancelled,
		fmt.Errorf("orphaned: no heartbeat from pod %s since %s", oldPod, lastHeartbeat))
	return ferr
}

// CleanupStartupOrphans marks as orphaned any thread left running under
// this pod's identity from before a restart. Call once at process
// startup, before Pool.Start.
func CleanupStartupOrphans(ctx context.Context, db *ent.Client, orch *Orchestrator, podID string) error {
	orphans, err := db.Thread.Query().
		Where(entthread.StatusEQ(entthread.StatusRunning), entthread.PodIDEQ(podID)).
		All(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: query startup orphans: %w", err)
	}
	if len(orphans) == 0 {
		return nil
	}

	slog.Warn("orchestrator: found startup orphans from previous run", "pod_id", podID, "count", len(orphans))
	for _, th := range orphans {
		state, err := orch.checkpoints.Latest(ctx, th.ID)
		if err != nil {
			slog.Error("orchestrator: load checkpoint for startup orphan failed", "thread_id", th.ID, "error", err)
			continue
		}
		if _, err := orch.fail(ctx, th, state, state.ActiveSkill, ErrorKindCancelled,
			fmt.Errorf("orphaned: pod %s restarted while run was in progress", podID)); err != nil {
			slog.Error("orchestrator: failed to mark startup orphan", "thread_id", th.ID, "error", err)
		}
	}
	return nil
}

// sweepOverdueCallbacks fails any paused thread whose REST callback
// deadline has passed without a response (spec §4.5/§7 "rest_timeout").
func (p *Pool) sweepOverdueCallbacks(ctx context.Context) error {
	overdue, err := p.orch.rest.SweepOverdue(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: sweep overdue callbacks: %w", err)
	}

	for _, rec := range overdue {
		if err := p.failOverdueCallback(ctx, rec); err != nil {
			slog.Error("orchestrator: failed to fail overdue callback", "thread_id", rec.ThreadID, "error", err)
			continue
		}
		if err := p.orch.rest.MarkSweptTimedOut(ctx, rec.ID); err != nil {
			slog.Error("orchestrator: failed to mark callback swept", "correlation_token", rec.ID, "error", err)
		}
	}
	return nil
}

func (p *Pool) failOverdueCallback(ctx context.Context, rec *ent.CallbackRecord) error {
	th, err := p.db.Thread.Get(ctx, rec.ThreadID)
	if err != nil {
		return fmt.Errorf("load thread %s: %w", rec.ThreadID, err)
	}
	state, err := p.orch.checkpoints.Latest(ctx, rec.ThreadID)
	if err != nil {
		return fmt.Errorf("load latest checkpoint for %s: %w", rec.ThreadID, err)
	}
	if state.Status != string(entthread.StatusPaused) {
		return nil // already resolved by a late-but-valid callback
	}

	_, ferr := p.orch.fail(ctx, th, state, rec.SkillName, executor.ErrorKindRESTTimeout,
		fmt.Errorf("no callback received by deadline %s", rec.DeadlineTs.Format(time.RFC3339)))
	return ferr
}
