// Package checkpoint implements the Checkpointer (C11, spec §4.10): the
// durable, append-only row store behind every thread's state, with a
// bounded in-memory write buffer and backoff-retried flushes, and the
// publish step that notifies the Pub/Sub Bus after a successful save.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/skillforge/engine/ent"
	entcheckpoint "github.com/skillforge/engine/ent/checkpoint"
	"github.com/skillforge/engine/pkg/config"
	"github.com/skillforge/engine/pkg/pubsub"
)

// StateError is the structured error recorded against a failed thread
// (spec §7 taxonomy).
type StateError struct {
	Kind    string
	Message string
}

// SkillAttempt is one past skill execution recorded against a thread, used
// by pkg/planner's cycle-prevention rules (CandidateSkills/InputsHash).
// Kept here rather than as a planner.HistoryEntry alias so this package
// never has to import pkg/planner — the Orchestrator translates between
// the two.
type SkillAttempt struct {
	SkillName  string
	Succeeded  bool
	InputsHash string
}

// State is the Orchestrator's authoritative per-thread state — the decoded
// contents of one checkpoint row's channel_values plus its denormalized UI
// projection (spec §4.10 "Storage contract", §6 "Persisted state layout").
type State struct {
	ThreadID    string
	DataStore   map[string]any
	History     []string
	Attempts    []SkillAttempt
	ActiveSkill string // "" before the first tick; "END" once the planner is done
	Status      string
	FailedSkill string
	Error       *StateError
	RunName     string
	SOPPreview  string
}

// ErrNoCheckpoint is returned by Latest when thread_id has no checkpoint
// rows yet.
var ErrNoCheckpoint = fmt.Errorf("checkpoint: no checkpoint for thread")

// ErrFlushFailed is wrapped into the error Save returns once the bounded
// retry budget is exhausted (spec §7: "marks the run error with
// checkpoint_flush_error").
var ErrFlushFailed = fmt.Errorf("checkpoint: flush failed")

type writeRequest struct {
	state State
	done  chan writeResult
}

type writeResult struct {
	checkpointID string
	err          error
}

// Checkpointer batches Save calls into a bounded in-memory buffer, flushed
// by size or by timer (spec §4.10 "Buffering"), and durably commits each
// batch before acknowledging its callers — the buffering improves flush
// throughput without ever letting the Orchestrator advance past an
// unsaved checkpoint, since Save blocks until its own row is committed.
type Checkpointer struct {
	db  *ent.Client
	bus pubsub.Bus

	size          int
	flushInterval time.Duration

	queue chan writeRequest
	done  chan struct{}
	wg    sync.WaitGroup

	parentMu sync.Mutex
	parent   map[string]string // thread_id -> most recently committed checkpoint_id
}

// New builds a Checkpointer. bus may be nil, in which case publish is a
// no-op (used in tests that don't exercise pub/sub).
func New(db *ent.Client, bus pubsub.Bus, cfg *config.BufferYAMLConfig) *Checkpointer {
	if cfg == nil {
		cfg = config.DefaultBufferConfig()
	}
	return &Checkpointer{
		db:            db,
		bus:           bus,
		size:          cfg.Size,
		flushInterval: cfg.FlushInterval,
		queue:         make(chan writeRequest, cfg.Size*4),
		parent:        make(map[string]string),
	}
}

// Start begins the background batching loop.
func (c *Checkpointer) Start(ctx context.Context) {
	c.done = make(chan struct{})
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.batchLoop(ctx)
	}()
}

// Stop drains and flushes any buffered writes, then stops the batch loop.
func (c *Checkpointer) Stop() {
	if c.done != nil {
		close(c.done)
	}
	c.wg.Wait()
}

// Save durably persists state as a new checkpoint row chained off the
// thread's previous checkpoint, and blocks until that row is committed
// (or the bounded retry budget is exhausted). It is the Orchestrator's
// synchronization point: "MUST NOT advance past an unsaved checkpoint"
// (spec §4.10) is enforced simply by Save not returning until durable.
func (c *Checkpointer) Save(ctx context.Context, state State) (string, error) {
	req := writeRequest{state: state, done: make(chan writeResult, 1)}
	select {
	case c.queue <- req:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case res := <-req.done:
		if res.err != nil {
			return "", fmt.Errorf("%w: %v", ErrFlushFailed, res.err)
		}
		c.publish(state.ThreadID, res.checkpointID, state)
		return res.checkpointID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Latest returns the highest-ts checkpoint for threadID.
func (c *Checkpointer) Latest(ctx context.Context, threadID string) (State, error) {
	row, err := c.db.Checkpoint.Query().
		Where(entcheckpoint.ThreadIDEQ(threadID)).
		Order(ent.Desc(entcheckpoint.FieldTs)).
		First(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return State{}, ErrNoCheckpoint
		}
		return State{}, fmt.Errorf("checkpoint: query latest for %s: %w", threadID, err)
	}
	return rowToState(row), nil
}

// batchLoop accumulates Save requests up to size or flushInterval,
// whichever comes first, then flushes them as one durable batch.
func (c *Checkpointer) batchLoop(ctx context.Context) {
	var batch []writeRequest
	timer := time.NewTimer(c.flushInterval)
	defer timer.Stop()

	flushAndReset := func() {
		if len(batch) > 0 {
			c.flush(ctx, batch)
			batch = nil
		}
		timer.Reset(c.flushInterval)
	}

	for {
		select {
		case <-c.done:
			for drained := false; !drained; {
				select {
				case req := <-c.queue:
					batch = append(batch, req)
				default:
					drained = true
				}
			}
			flushAndReset()
			return
		case <-ctx.Done():
			flushAndReset()
			return
		case req := <-c.queue:
			batch = append(batch, req)
			if len(batch) >= c.size {
				flushAndReset()
			}
		case <-timer.C:
			flushAndReset()
		}
	}
}

// flush commits batch as one transaction, retried with bounded exponential
// backoff. If the whole-batch attempt is still failing once the retry
// budget is exhausted, it degrades to committing each request
// individually so one bad row does not sink requests that would have
// succeeded on their own (spec §7: "flushes what it can").
func (c *Checkpointer) flush(ctx context.Context, batch []writeRequest) {
	results := make([]writeResult, len(batch))

	op := func() error {
		tx, err := c.db.Tx(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		for i, req := range batch {
			id, err := c.writeOne(ctx, tx.Client(), req.state)
			if err != nil {
				_ = tx.Rollback()
				return err
			}
			results[i] = writeResult{checkpointID: id}
		}
		return tx.Commit()
	}

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
	if err := backoff.Retry(op, b); err != nil {
		slog.Error("checkpoint: batch flush failed after retries, falling back to per-row commits",
			"batch_size", len(batch), "error", err)
		c.flushIndividually(ctx, batch)
		return
	}

	for i, req := range batch {
		req.done <- results[i]
	}
}

func (c *Checkpointer) flushIndividually(ctx context.Context, batch []writeRequest) {
	for _, req := range batch {
		var id string
		op := func() error {
			var err error
			id, err = c.writeOne(ctx, c.db, req.state)
			return err
		}
		b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2)
		if err := backoff.Retry(op, b); err != nil {
			slog.Error("checkpoint: row unrecoverable, history diff not durably saved",
				"thread_id", req.state.ThreadID, "history", req.state.History, "error", err)
			req.done <- writeResult{err: err}
			continue
		}
		req.done <- writeResult{checkpointID: id}
	}
}

func (c *Checkpointer) writeOne(ctx context.Context, db *ent.Client, state State) (string, error) {
	id := uuid.NewString()

	c.parentMu.Lock()
	parent := c.parent[state.ThreadID]
	c.parentMu.Unlock()

	create := db.Checkpoint.Create().
		SetID(id).
		SetThreadID(state.ThreadID).
		SetCheckpointNs("").
		SetChannelValues(channelValues(state)).
		SetStatus(entcheckpoint.Status(state.Status))

	if parent != "" {
		create = create.SetParentCheckpointID(parent)
	}
	if state.ActiveSkill != "" {
		create = create.SetActiveSkill(state.ActiveSkill)
	}
	if state.RunName != "" {
		create = create.SetRunName(state.RunName)
	}
	if state.SOPPreview != "" {
		create = create.SetSopPreview(state.SOPPreview)
	}

	if _, err := create.Save(ctx); err != nil {
		return "", fmt.Errorf("create checkpoint row: %w", err)
	}

	c.parentMu.Lock()
	c.parent[state.ThreadID] = id
	c.parentMu.Unlock()

	return id, nil
}

// publish persists the run_events row the Postgres pub/sub backend's
// polling fallback depends on, then notifies the bus (spec §4.10:
// "after successful save, emit an event ... to the Pub/Sub Bus").
// Best-effort: a publish failure is logged, not propagated — losing a UI
// nudge must never fail the workflow tick that already committed.
func (c *Checkpointer) publish(threadID, checkpointID string, state State) {
	if c.bus == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	metadata := map[string]any{"active_skill": state.ActiveSkill, "status": state.Status}

	if _, err := c.db.RunEvent.Create().
		SetThreadID(threadID).
		SetCheckpointID(checkpointID).
		SetChannel(pubsub.RunEventsChannel).
		SetMetadata(metadata).
		Save(ctx); err != nil {
		slog.Warn("checkpoint: persist run_event failed", "thread_id", threadID, "error", err)
	}

	env := pubsub.Envelope{
		ThreadID:     threadID,
		CheckpointID: checkpointID,
		Ts:           time.Now().Format(time.RFC3339Nano),
		Metadata:     metadata,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		slog.Warn("checkpoint: marshal run_event envelope failed", "thread_id", threadID, "error", err)
		return
	}
	if err := c.bus.Publish(ctx, pubsub.RunEventsChannel, payload); err != nil {
		slog.Warn("checkpoint: publish run_event failed", "thread_id", threadID, "error", err)
	}
}

func channelValues(state State) map[string]any {
	history := make([]any, len(state.History))
	for i, h := range state.History {
		history[i] = h
	}
	attempts := make([]any, len(state.Attempts))
	for i, a := range state.Attempts {
		attempts[i] = map[string]any{
			"skill_name":  a.SkillName,
			"succeeded":   a.Succeeded,
			"inputs_hash": a.InputsHash,
		}
	}

	cv := map[string]any{
		"data_store": state.DataStore,
		"history":    history,
		"attempts":   attempts,
	}
	if state.FailedSkill != "" {
		cv["failed_skill"] = state.FailedSkill
	}
	if state.Error != nil {
		cv["error"] = map[string]any{"kind": state.Error.Kind, "message": state.Error.Message}
	}
	return cv
}

func rowToState(row *ent.Checkpoint) State {
	s := State{
		ThreadID: row.ThreadID,
		Status:   string(row.Status),
	}
	if row.ActiveSkill != nil {
		s.ActiveSkill = *row.ActiveSkill
	}
	if row.RunName != nil {
		s.RunName = *row.RunName
	}
	if row.SopPreview != nil {
		s.SOPPreview = *row.SopPreview
	}

	if ds, ok := row.ChannelValues["data_store"].(map[string]any); ok {
		s.DataStore = ds
	} else {
		s.DataStore = map[string]any{}
	}
	if hist, ok := row.ChannelValues["history"].([]any); ok {
		for _, h := range hist {
			if str, ok := h.(string); ok {
				s.History = append(s.History, str)
			}
		}
	}
	if attempts, ok := row.ChannelValues["attempts"].([]any); ok {
		for _, raw := range attempts {
			m, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			a := SkillAttempt{}
			if v, ok := m["skill_name"].(string); ok {
				a.SkillName = v
			}
			if v, ok := m["succeeded"].(bool); ok {
				a.Succeeded = v
			}
			if v, ok := m["inputs_hash"].(string); ok {
				a.InputsHash = v
			}
			s.Attempts = append(s.Attempts, a)
		}
	}
	if fs, ok := row.ChannelValues["failed_skill"].(string); ok {
		s.FailedSkill = fs
	}
	if errRaw, ok := row.ChannelValues["error"].(map[string]any); ok {
		se := &StateError{}
		if k, ok := errRaw["kind"].(string); ok {
			se.Kind = k
		}
		if m, ok := errRaw["message"].(string); ok {
			se.Message = m
		}
		s.Error = se
	}
	return s
}
