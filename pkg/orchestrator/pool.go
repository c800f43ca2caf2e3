package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"entgo.io/ent/dialect/sql"

	"github.com/skillforge/engine/ent"
	entthread "github.com/skillforge/engine/ent/thread"
	"github.com/skillforge/engine/pkg/config"
)

// ErrNoRunsAvailable is returned by claimNext when no claimable thread
// exists; the caller should back off and retry rather than treat it as an
// infrastructure failure.
var ErrNoRunsAvailable = errors.New("orchestrator: no runs available")

// ErrAtCapacity is returned when the global concurrent-run limit (spec §5
// "parallel-across-runs... bounded by worker pool size N") is reached.
var ErrAtCapacity = errors.New("orchestrator: at capacity")

// Pool runs a fixed number of worker goroutines that repeatedly claim a
// pending/resumable thread and drive it with Orchestrator.Run until it
// pauses or terminates, grounded on the teacher's WorkerPool/Worker pair
// but generalized for threads that cycle through running→paused→running
// many times over their lifetime rather than running exactly once.
type Pool struct {
	podID string
	db    *ent.Client
	orch  *Orchestrator
	cfg   *config.QueueConfig

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool

	mu      sync.RWMutex
	cancels map[string]context.CancelFunc

	orphans orphanState
}

// NewPool builds a Pool. cfg defaults to config.DefaultQueueConfig() when
// nil.
func NewPool(podID string, db *ent.Client, orch *Orchestrator, cfg *config.QueueConfig) *Pool {
	if cfg == nil {
		cfg = config.DefaultQueueConfig()
	}
	return &Pool{
		podID:   podID,
		db:      db,
		orch:    orch,
		cfg:     cfg,
		stopCh:  make(chan struct{}),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Start spawns WorkerCount polling goroutines plus the orphan-detection
// loop. Safe to call only once; subsequent calls are no-ops.
func (p *Pool) Start(ctx context.Context) {
	if p.started {
		slog.Warn("orchestrator: pool already started, ignoring duplicate Start", "pod_id", p.podID)
		return
	}
	p.started = true

	slog.Info("orchestrator: starting pool", "pod_id", p.podID, "worker_count", p.cfg.WorkerCount)
	for i := 0; i < p.cfg.WorkerCount; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, fmt.Sprintf("%s-worker-%d", p.podID, i))
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runOrphanDetection(ctx)
	}()
}

// Stop signals every worker and the orphan loop to finish their current
// unit of work and return, then blocks until they do (spec §5 "graceful
// shutdown... waits up to GracefulShutdownTimeout").
func (p *Pool) Stop() {
	slog.Info("orchestrator: stopping pool", "pod_id", p.podID)
	p.stopOnce.Do(func() { close(p.stopCh) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("orchestrator: pool stopped gracefully", "pod_id", p.podID)
	case <-time.After(p.cfg.GracefulShutdownTimeout):
		slog.Warn("orchestrator: pool stop timed out waiting for workers", "pod_id", p.podID)
	}
}

// CancelRun cancels a run's in-flight tick if this pod currently owns it.
// Returns true if found and cancelled here.
func (p *Pool) CancelRun(threadID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if cancel, ok := p.cancels[threadID]; ok {
		cancel()
		return true
	}
	return false
}

func (p *Pool) registerRun(threadID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancels[threadID] = cancel
}

func (p *Pool) unregisterRun(threadID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cancels, threadID)
}

func (p *Pool) activeRunIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.cancels))
	for id := range p.cancels {
		ids = append(ids, id)
	}
	return ids
}

func (p *Pool) runWorker(ctx context.Context, workerID string) {
	defer p.wg.Done()
	log := slog.With("worker_id", workerID, "pod_id", p.podID)
	log.Info("orchestrator: worker started")

	for {
		select {
		case <-p.stopCh:
			log.Info("orchestrator: worker shutting down")
			return
		case <-ctx.Done():
			log.Info("orchestrator: worker shutting down on context cancellation")
			return
		default:
			if err := p.pollAndProcess(ctx, workerID); err != nil {
				if errors.Is(err, ErrNoRunsAvailable) || errors.Is(err, ErrAtCapacity) {
					p.sleep(p.pollInterval())
					continue
				}
				log.Error("orchestrator: error processing run", "error", err)
				p.sleep(time.Second)
			}
		}
	}
}

func (p *Pool) sleep(d time.Duration) {
	select {
	case <-p.stopCh:
	case <-time.After(d):
	}
}

func (p *Pool) pollInterval() time.Duration {
	base, jitter := p.cfg.PollInterval, p.cfg.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

// pollAndProcess claims one claimable thread and drives it for exactly one
// Run() call (which itself loops Tick() until pause/terminal), then
// releases ownership.
func (p *Pool) pollAndProcess(ctx context.Context, workerID string) error {
	active, err := p.db.Thread.Query().
		Where(entthread.StatusIn(entthread.StatusPending, entthread.StatusRunning), entthread.PodIDNotNil()).
		Count(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: count active runs: %w", err)
	}
	if active >= p.cfg.MaxConcurrentRuns {
		return ErrAtCapacity
	}

	threadID, err := p.claimNext(ctx)
	if err != nil {
		return err
	}
	log := slog.With("thread_id", threadID, "worker_id", workerID)
	log.Info("orchestrator: run claimed")

	runCtx, cancel := context.WithTimeout(ctx, p.cfg.TickTimeout)
	defer cancel()

	p.registerRun(threadID, cancel)
	defer p.unregisterRun(threadID)

	heartbeatCtx, cancelHeartbeat := context.WithCancel(runCtx)
	go p.runHeartbeat(heartbeatCtx, threadID)

	runErr := p.orch.Run(runCtx, threadID)
	cancelHeartbeat()

	p.release(context.Background(), threadID)

	if runErr != nil {
		return fmt.Errorf("orchestrator: run %s: %w", threadID, runErr)
	}
	log.Info("orchestrator: run yielded control (paused or terminal)")
	return nil
}

// claimNext atomically claims the oldest claimable thread: pending (never
// started) or running-with-no-owner (resumed after a pause or a REST
// callback). Threads recovered by orphan detection are in error status
// and are not claimed. Unlike
// the teacher's single-claim-to-terminal-state model, release sets pod_id
// back to NULL rather than leaving it set, since a thread may be claimed,
// released, and re-claimed many times across pause/resume cycles.
func (p *Pool) claimNext(ctx context.Context) (string, error) {
	tx, err := p.db.Tx(ctx)
	if err != nil {
		return "", fmt.Errorf("orchestrator: begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	th, err := tx.Thread.Query().
		Where(entthread.StatusIn(entthread.StatusPending, entthread.StatusRunning), entthread.PodIDIsNil()).
		Order(ent.Asc(entthread.FieldCreatedAt)).
		Limit(1).
		ForUpdate(sql.WithLockAction(sql.SkipLocked)).
		First(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return "", ErrNoRunsAvailable
		}
		return "", fmt.Errorf("orchestrator: query claimable thread: %w", err)
	}

	now := time.Now()
	_, err = th.Update().
		SetStatus(entthread.StatusRunning).
		SetPodID(p.podID).
		SetLastHeartbeatAt(now).
		Save(ctx)
	if err != nil {
		return "", fmt.Errorf("orchestrator: claim thread %s: %w", th.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("orchestrator: commit claim for %s: %w", th.ID, err)
	}
	return th.ID, nil
}

// release clears pod_id so the thread becomes claimable again once it is
// next moved back to pending/running (by a resume, a callback, or a
// rerun). Orchestrator.Tick/fail already set the terminal/paused status
// and clear pod_id themselves on the happy path; release is the backstop
// for the case where Run returned an infrastructure error without having
// reached one of those paths.
func (p *Pool) release(ctx context.Context, threadID string) {
	err := p.db.Thread.UpdateOneID(threadID).ClearPodID().Exec(ctx)
	if err != nil && !ent.IsNotFound(err) {
		slog.Warn("orchestrator: release thread failed", "thread_id", threadID, "error", err)
	}
}

func (p *Pool) runHeartbeat(ctx context.Context, threadID string) {
	const heartbeatInterval = 30 * time.Second
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := p.db.Thread.UpdateOneID(threadID).SetLastHeartbeatAt(time.Now()).Exec(ctx)
			if err != nil {
				slog.Warn("orchestrator: heartbeat update failed", "thread_id", threadID, "error", err)
			}
		}
	}
}

// Health summarizes the pool's current state for a liveness/readiness
// endpoint.
type Health struct {
	PodID            string
	ActiveRuns       int
	TotalWorkers     int
	LastOrphanScan   time.Time
	OrphansRecovered int
}

func (p *Pool) Health(ctx context.Context) *Health {
	p.orphans.mu.Lock()
	lastScan, recovered := p.orphans.lastScan, p.orphans.recovered
	p.orphans.mu.Unlock()

	return &Health{
		PodID:            p.podID,
		ActiveRuns:       len(p.activeRunIDs()),
		TotalWorkers:     p.cfg.WorkerCount,
		LastOrphanScan:   lastScan,
		OrphansRecovered: recovered,
	}
}
