// Package orchestrator implements the Orchestrator State Machine (C10,
// spec §4.9): the per-thread driver that alternates Planner decisions with
// Executor dispatch, applies output mapping, and checkpoints every
// transition before advancing.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/skillforge/engine/ent"
	entthread "github.com/skillforge/engine/ent/thread"
	"github.com/skillforge/engine/pkg/checkpoint"
	"github.com/skillforge/engine/pkg/credentials"
	"github.com/skillforge/engine/pkg/executor"
	"github.com/skillforge/engine/pkg/llm"
	"github.com/skillforge/engine/pkg/pathresolver"
	"github.com/skillforge/engine/pkg/planner"
	"github.com/skillforge/engine/pkg/registry"
	"github.com/skillforge/engine/pkg/skill"
)

// Error kinds the Orchestrator itself detects and records, completing the
// taxonomy begun in pkg/executor (spec §7). Declared here, not in
// pkg/executor, since these failures are only ever raised by the
// Orchestrator's own tick logic, never by an individual executor.
// llm_output_invalid is the one exception: it's also raised directly by
// pkg/executor/llmexec for a skill's own parse/validation failure, so it
// lives in executor.ErrorKind alongside the other shared taxonomy
// constants (see executor.ErrorKindLLMOutputInvalid).
const (
	ErrorKindMissingRequiredInput executor.ErrorKind = "missing_required_input"
	ErrorKindNonDictResult        executor.ErrorKind = "non_dict_result"
	ErrorKindPlannerNoChoice      executor.ErrorKind = "planner_no_choice"
	ErrorKindCancelled            executor.ErrorKind = "cancelled"
	ErrorKindCheckpointFlush      executor.ErrorKind = "checkpoint_flush_error"
)

// RESTCallbacks is the subset of pkg/executor/restexec.Executor the
// Orchestrator depends on, kept as an interface so this package never
// imports a concrete executor package directly (mirrors
// pkg/executor/actionexec.PipelineRunner's decoupling of pipeline from
// action).
type RESTCallbacks interface {
	ConsumeCallback(ctx context.Context, correlationToken string, payload map[string]any) (threadID, skillName string, outputs map[string]any, err error)
	SweepOverdue(ctx context.Context) ([]*ent.CallbackRecord, error)
	MarkSweptTimedOut(ctx context.Context, correlationToken string) error
}

// Orchestrator drives one thread at a time through PLANNING → ACTING →
// CHECKPOINTING (spec §4.9). A single instance is safely shared across
// goroutines/threads; per-thread state lives entirely in the database.
type Orchestrator struct {
	db          *ent.Client
	registry    *registry.Registry
	checkpoints *checkpoint.Checkpointer
	llmClients  *llm.ClientSet
	executors   map[skill.Executor]executor.Executor
	rest        RESTCallbacks
	credentials credentials.Client
}

// New builds an Orchestrator. executors must have an entry for every
// skill.Executor kind the registry can produce (llm, rest, action).
func New(
	db *ent.Client,
	reg *registry.Registry,
	checkpoints *checkpoint.Checkpointer,
	llmClients *llm.ClientSet,
	executors map[skill.Executor]executor.Executor,
	rest RESTCallbacks,
	credClient credentials.Client,
) *Orchestrator {
	return &Orchestrator{
		db:          db,
		registry:    reg,
		checkpoints: checkpoints,
		llmClients:  llmClients,
		executors:   executors,
		rest:        rest,
		credentials: credClient,
	}
}

// StartRunRequest is the "start a run" external interface's input (spec
// §6).
type StartRunRequest struct {
	ThreadID         string // generated if empty
	SOP              string
	InitialData      map[string]any
	RunName          string
	LLMModelOverride string
	OwnerID          string
	WorkspaceID      string
}

// StartRun creates the thread row and its initial (pending) checkpoint.
// The planner begins asynchronously: the caller is expected to hand
// threadID to a Pool (or call Run directly) to actually drive it.
func (o *Orchestrator) StartRun(ctx context.Context, req StartRunRequest) (string, error) {
	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}
	initialData := req.InitialData
	if initialData == nil {
		initialData = map[string]any{}
	}

	create := o.db.Thread.Create().
		SetID(threadID).
		SetSop(req.SOP).
		SetInitialData(initialData).
		SetOwnerID(req.OwnerID).
		SetWorkspaceID(req.WorkspaceID).
		SetStatus(entthread.StatusPending)
	if req.RunName != "" {
		create = create.SetRunName(req.RunName)
	}
	if req.LLMModelOverride != "" {
		create = create.SetLlmModelOverride(req.LLMModelOverride)
	}
	if _, err := create.Save(ctx); err != nil {
		return "", fmt.Errorf("orchestrator: create thread %s: %w", threadID, err)
	}

	initial := checkpoint.State{
		ThreadID:   threadID,
		DataStore:  cloneMap(initialData),
		Status:     string(entthread.StatusPending),
		RunName:    req.RunName,
		SOPPreview: preview(req.SOP),
	}
	if _, err := o.checkpoints.Save(ctx, initial); err != nil {
		return "", fmt.Errorf("orchestrator: save initial checkpoint for %s: %w", threadID, err)
	}
	return threadID, nil
}

// ResumeRequest is the "resume a HITL pause" external interface's input.
type ResumeRequest struct {
	ThreadID        string
	ApprovalPayload map[string]any
}

// ResumeHITL transitions a paused thread back to running, merging any
// approval payload directly into the data store (same shallow-merge
// semantics as initial_data seeding), so a human decision becomes visible
// to whatever skill the Planner selects next. It does not itself drive
// the next tick — the caller re-enqueues threadID with a Pool (or calls
// Run) to continue.
func (o *Orchestrator) ResumeHITL(ctx context.Context, req ResumeRequest) error {
	state, err := o.checkpoints.Latest(ctx, req.ThreadID)
	if err != nil {
		return fmt.Errorf("orchestrator: resume %s: load latest checkpoint: %w", req.ThreadID, err)
	}
	if state.Status != string(entthread.StatusPaused) {
		return fmt.Errorf("orchestrator: resume %s: thread is not paused (status=%s)", req.ThreadID, state.Status)
	}

	for k, v := range req.ApprovalPayload {
		if err := pathresolver.Set(state.DataStore, k, v); err != nil {
			return fmt.Errorf("orchestrator: resume %s: merge approval payload key %q: %w", req.ThreadID, k, err)
		}
	}
	state.Status = string(entthread.StatusRunning)

	if _, err := o.checkpoints.Save(ctx, state); err != nil {
		return fmt.Errorf("orchestrator: resume %s: save resumed checkpoint: %w", req.ThreadID, err)
	}
	o.setThreadStatus(ctx, req.ThreadID, entthread.StatusRunning, false)
	return nil
}

// HandleRESTCallback resolves an inbound REST callback (spec §4.5/§6):
// consumes the correlation token exactly once, synthesizes outputs from
// the callback payload exactly like any executor's raw Outputs, and
// proceeds through the same output-mapping path the main tick loop uses.
// The thread is left running (not re-ticked here); the caller re-enqueues
// it with a Pool (or calls Run) to continue past the resumed skill.
func (o *Orchestrator) HandleRESTCallback(ctx context.Context, correlationToken string, payload map[string]any) error {
	threadID, skillName, outputs, err := o.rest.ConsumeCallback(ctx, correlationToken, payload)
	if err != nil {
		return err
	}

	thread, err := o.db.Thread.Get(ctx, threadID)
	if err != nil {
		return fmt.Errorf("orchestrator: callback: load thread %s: %w", threadID, err)
	}
	state, err := o.checkpoints.Latest(ctx, threadID)
	if err != nil {
		return fmt.Errorf("orchestrator: callback: load latest checkpoint: %w", err)
	}

	sk, ok := o.registry.Get(thread.WorkspaceID, skillName)
	if !ok {
		_, ferr := o.fail(ctx, thread, state, skillName, ErrorKindPlannerNoChoice,
			fmt.Errorf("callback for unknown skill %q", skillName))
		return ferr
	}

	mapped, err := executor.MapOutputs(sk, outputs)
	if err != nil {
		kind := ErrorKindNonDictResult
		if errors.Is(err, executor.ErrMissingRequiredOutput) {
			kind = executor.ErrorKindMissingRequiredOut
		}
		_, ferr := o.fail(ctx, thread, state, sk.Name, kind, err)
		return ferr
	}

	for k, v := range mapped {
		if err := pathresolver.Set(state.DataStore, k, v); err != nil {
			_, ferr := o.fail(ctx, thread, state, sk.Name, executor.ErrorKindValidation, err)
			return ferr
		}
	}
	state.Attempts = append(state.Attempts, checkpoint.SkillAttempt{
		SkillName: sk.Name, Succeeded: true, InputsHash: planner.InputsHash(sk, state.DataStore),
	})
	state.History = append(state.History, fmt.Sprintf("%s produced %s (rest callback)", sk.Name, sortedKeys(mapped)))
	state.Status = string(entthread.StatusRunning)
	state.ActiveSkill = sk.Name

	if _, err := o.checkpoints.Save(ctx, state); err != nil {
		return fmt.Errorf("orchestrator: callback: save resumed checkpoint: %w", err)
	}
	o.setThreadStatus(ctx, threadID, entthread.StatusRunning, false)
	return nil
}

// RerunRequest is the "rerun / edit-rerun" external interface's input.
type RerunRequest struct {
	SourceThreadID      string
	NewSOP              string
	NewInitialData      map[string]any
	NewLLMModelOverride string
}

// Rerun creates a fresh thread chained to source via parent_thread_id,
// carrying over sop/initial_data/llm_model unless an edit-rerun override
// is supplied (spec §4.9 "Rerun").
func (o *Orchestrator) Rerun(ctx context.Context, req RerunRequest) (string, error) {
	src, err := o.db.Thread.Get(ctx, req.SourceThreadID)
	if err != nil {
		return "", fmt.Errorf("orchestrator: rerun: load source thread %s: %w", req.SourceThreadID, err)
	}

	sop := src.Sop
	if req.NewSOP != "" {
		sop = req.NewSOP
	}
	initialData := src.InitialData
	if req.NewInitialData != nil {
		initialData = req.NewInitialData
	}
	modelOverride := ""
	if src.LlmModelOverride != nil {
		modelOverride = *src.LlmModelOverride
	}
	if req.NewLLMModelOverride != "" {
		modelOverride = req.NewLLMModelOverride
	}
	runName := ""
	if src.RunName != nil {
		runName = *src.RunName
	}

	newThreadID := uuid.NewString()
	create := o.db.Thread.Create().
		SetID(newThreadID).
		SetSop(sop).
		SetInitialData(initialData).
		SetOwnerID(src.OwnerID).
		SetWorkspaceID(src.WorkspaceID).
		SetParentThreadID(req.SourceThreadID).
		SetStatus(entthread.StatusPending)
	if runName != "" {
		create = create.SetRunName(runName)
	}
	if modelOverride != "" {
		create = create.SetLlmModelOverride(modelOverride)
	}
	if _, err := create.Save(ctx); err != nil {
		return "", fmt.Errorf("orchestrator: rerun: create thread: %w", err)
	}

	initial := checkpoint.State{
		ThreadID:   newThreadID,
		DataStore:  cloneMap(initialData),
		Status:     string(entthread.StatusPending),
		RunName:    runName,
		SOPPreview: preview(sop),
	}
	if _, err := o.checkpoints.Save(ctx, initial); err != nil {
		return "", fmt.Errorf("orchestrator: rerun: save initial checkpoint: %w", err)
	}
	return newThreadID, nil
}

// Run drives threadID's state machine tick by tick until it pauses,
// completes, or fails. Exactly one Run per thread_id may be in flight at
// a time (spec §5: "checkpoint writes per thread_id are serialized") —
// enforcing that is the caller's (Pool's) job via its claim/pod_id
// discipline, not this method's.
func (o *Orchestrator) Run(ctx context.Context, threadID string) error {
	for {
		done, err := o.Tick(ctx, threadID)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// Tick runs exactly one PLANNING→ACTING→CHECKPOINTING step (spec §4.9's
// pseudocode). done is true when the thread has reached a terminal or
// paused state and no further tick should be attempted without an
// external event. A non-nil error means an infrastructure failure (DB,
// checkpoint durability) occurred, not a skill failure — skill failures
// are recorded in the checkpoint's state.Error and reported via done=true,
// err=nil.
func (o *Orchestrator) Tick(ctx context.Context, threadID string) (bool, error) {
	thread, err := o.db.Thread.Get(ctx, threadID)
	if err != nil {
		return true, fmt.Errorf("orchestrator: load thread %s: %w", threadID, err)
	}

	state, err := o.checkpoints.Latest(ctx, threadID)
	if err != nil {
		return true, fmt.Errorf("orchestrator: load latest checkpoint for %s: %w", threadID, err)
	}

	if state.ActiveSkill == planner.End ||
		state.Status == string(entthread.StatusCompleted) ||
		state.Status == string(entthread.StatusError) ||
		state.Status == string(entthread.StatusPaused) {
		return true, nil
	}

	attempts := toHistoryEntries(state.Attempts)
	historyLines := state.History

	all := o.registry.List(thread.WorkspaceID)
	candidates := planner.CandidateSkills(all, state.DataStore, attempts, nil)

	choice, err := planner.Decide(ctx, o.llmClients, thread.Sop, state.DataStore, historyLines, candidates)
	if err != nil {
		return o.fail(ctx, thread, state, "", executor.ErrorKindLLMOutputInvalid, err)
	}

	if choice == planner.End {
		state.ActiveSkill = planner.End
		state.Status = string(entthread.StatusCompleted)
		state.History = append(state.History, "Planner chose END")
		if _, err := o.checkpoints.Save(ctx, state); err != nil {
			return true, fmt.Errorf("orchestrator: save completed checkpoint for %s: %w", threadID, err)
		}
		o.setThreadStatus(ctx, threadID, entthread.StatusCompleted, true)
		return true, nil
	}

	sk, ok := o.registry.Get(thread.WorkspaceID, choice)
	if !ok {
		return o.fail(ctx, thread, state, choice, ErrorKindPlannerNoChoice,
			fmt.Errorf("planner chose unregistered skill %q", choice))
	}

	state.History = append(state.History, fmt.Sprintf("Planner chose %s", choice))

	resolved := make(map[string]any, len(sk.Requires))
	var missing []string
	for _, r := range sk.Requires {
		if !pathresolver.Has(state.DataStore, r) {
			missing = append(missing, r)
			continue
		}
		resolved[r] = pathresolver.Get(state.DataStore, r)
	}
	if len(missing) > 0 {
		return o.fail(ctx, thread, state, sk.Name, ErrorKindMissingRequiredInput,
			fmt.Errorf("missing required input(s): %v", missing))
	}

	exec, ok := o.executors[sk.Executor]
	if !ok {
		return o.fail(ctx, thread, state, sk.Name, executor.ErrorKindActionError,
			fmt.Errorf("no executor registered for kind %q", sk.Executor))
	}

	ec := &executor.Context{
		ThreadID:         threadID,
		OwnerID:          thread.OwnerID,
		WorkspaceID:      thread.WorkspaceID,
		LLMModelOverride: llmModelOverride(thread),
		Credentials:      o.credentials,
	}
	ec.InvokeSkill = o.invokeSkill(thread.WorkspaceID, thread.OwnerID, threadID)

	raw, err := exec.Execute(ctx, sk, resolved, ec)
	if ctx.Err() != nil {
		// Cancel-run: in-flight executor output, if any, is discarded
		// (spec §5 "Cancellation & timeouts").
		return o.fail(ctx, thread, state, sk.Name, ErrorKindCancelled, ctx.Err())
	}
	if err != nil {
		return o.fail(ctx, thread, state, sk.Name, executor.ErrorKindActionError, err)
	}
	if raw.Error != nil {
		return o.fail(ctx, thread, state, sk.Name, raw.Error.Kind, raw.Error)
	}

	if raw.SideEffects.Pause {
		state.ActiveSkill = sk.Name
		state.Status = string(entthread.StatusPaused)
		if _, err := o.checkpoints.Save(ctx, state); err != nil {
			return true, fmt.Errorf("orchestrator: save rest-paused checkpoint for %s: %w", threadID, err)
		}
		o.setThreadStatus(ctx, threadID, entthread.StatusPaused, true)
		return true, nil
	}

	mapped, err := executor.MapOutputs(sk, raw.Outputs)
	if err != nil {
		kind := ErrorKindNonDictResult
		if errors.Is(err, executor.ErrMissingRequiredOutput) {
			kind = executor.ErrorKindMissingRequiredOut
		}
		return o.fail(ctx, thread, state, sk.Name, kind, err)
	}

	for k, v := range mapped {
		if err := pathresolver.Set(state.DataStore, k, v); err != nil {
			return o.fail(ctx, thread, state, sk.Name, executor.ErrorKindValidation, err)
		}
	}

	state.Attempts = append(state.Attempts, checkpoint.SkillAttempt{
		SkillName: sk.Name, Succeeded: true, InputsHash: planner.InputsHash(sk, state.DataStore),
	})
	state.History = append(state.History, fmt.Sprintf("%s produced %s", sk.Name, sortedKeys(mapped)))
	state.ActiveSkill = sk.Name
	state.Status = string(entthread.StatusRunning)

	if sk.HITLEnabled {
		state.Status = string(entthread.StatusPaused)
		if _, err := o.checkpoints.Save(ctx, state); err != nil {
			return true, fmt.Errorf("orchestrator: save hitl-paused checkpoint for %s: %w", threadID, err)
		}
		o.setThreadStatus(ctx, threadID, entthread.StatusPaused, true)
		return true, nil
	}

	if _, err := o.checkpoints.Save(ctx, state); err != nil {
		return true, fmt.Errorf("orchestrator: save checkpoint for %s: %w", threadID, err)
	}
	return false, nil
}

// fail records a fatal skill/planner failure (spec §4.9 "Failure
// semantics", §7 taxonomy): no retry policy is built in, the run
// transitions to error, and a terminal history line is appended.
func (o *Orchestrator) fail(ctx context.Context, thread *ent.Thread, state checkpoint.State, skillName string, kind executor.ErrorKind, cause error) (bool, error) {
	if skillName != "" {
		if sk, ok := o.registry.Get(thread.WorkspaceID, skillName); ok {
			state.Attempts = append(state.Attempts, checkpoint.SkillAttempt{
				SkillName: skillName, Succeeded: false, InputsHash: planner.InputsHash(sk, state.DataStore),
			})
		}
	}
	state.Status = string(entthread.StatusError)
	state.FailedSkill = skillName
	state.Error = &checkpoint.StateError{Kind: string(kind), Message: cause.Error()}
	state.History = append(state.History, fmt.Sprintf("Workflow failed in %s: %s: %s", skillName, kind, cause.Error()))

	if _, err := o.checkpoints.Save(ctx, state); err != nil {
		return true, fmt.Errorf("orchestrator: save failed checkpoint for %s: %w", thread.ID, err)
	}
	o.setThreadStatus(ctx, thread.ID, entthread.StatusError, true)
	return true, nil
}

// invokeSkill builds the executor.Context.InvokeSkill closure used by the
// `skill` pipeline step kind and nested ACTION dispatch (spec §4.3): a
// full executor round trip (resolve is the caller's job; dispatch +
// output-mapping is this closure's) without touching thread-level
// history or checkpoints — it is a sub-invocation inside another skill's
// own execution, not a top-level tick.
func (o *Orchestrator) invokeSkill(workspaceID, ownerID, threadID string) func(ctx context.Context, name string, resolvedInputs map[string]any) (map[string]any, error) {
	return func(ctx context.Context, name string, resolvedInputs map[string]any) (map[string]any, error) {
		sk, ok := o.registry.Get(workspaceID, name)
		if !ok {
			return nil, fmt.Errorf("orchestrator: invoke_skill: unknown skill %q", name)
		}
		exec, ok := o.executors[sk.Executor]
		if !ok {
			return nil, fmt.Errorf("orchestrator: invoke_skill: no executor for kind %q", sk.Executor)
		}
		ec := &executor.Context{ThreadID: threadID, OwnerID: ownerID, WorkspaceID: workspaceID, Credentials: o.credentials}
		ec.InvokeSkill = o.invokeSkill(workspaceID, ownerID, threadID)

		raw, err := exec.Execute(ctx, sk, resolvedInputs, ec)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: invoke_skill %q: %w", name, err)
		}
		if raw.Error != nil {
			return nil, raw.Error
		}
		if raw.SideEffects.Pause {
			return nil, fmt.Errorf("orchestrator: invoke_skill %q: cannot pause mid-pipeline", name)
		}
		return executor.MapOutputs(sk, raw.Outputs)
	}
}

// setThreadStatus mirrors the checkpoint's status onto the Thread row's
// own denormalized status field, optionally clearing pod_id so the thread
// becomes claimable again by a Pool (used whenever a tick loop is about
// to return control — paused, completed, or error).
func (o *Orchestrator) setThreadStatus(ctx context.Context, threadID string, status entthread.Status, release bool) {
	update := o.db.Thread.UpdateOneID(threadID).SetStatus(status)
	if release {
		update = update.ClearPodID()
	}
	if err := update.Exec(ctx); err != nil {
		slog.Warn("orchestrator: update thread status failed", "thread_id", threadID, "status", status, "error", err)
	}
}

// Thread loads a thread's row, for the API layer's status/list endpoints.
func (o *Orchestrator) Thread(ctx context.Context, threadID string) (*ent.Thread, error) {
	return o.db.Thread.Get(ctx, threadID)
}

// Threads lists threads in a workspace for the API layer's list-runs
// endpoint, most recently created first, optionally filtered by status.
func (o *Orchestrator) Threads(ctx context.Context, workspaceID string, status *entthread.Status, offset, limit int) ([]*ent.Thread, int, error) {
	q := o.db.Thread.Query().Where(entthread.WorkspaceID(workspaceID))
	if status != nil {
		q = q.Where(entthread.StatusEQ(*status))
	}
	total, err := q.Clone().Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("orchestrator: count threads: %w", err)
	}
	rows, err := q.Order(ent.Desc(entthread.FieldCreatedAt)).Offset(offset).Limit(limit).All(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("orchestrator: list threads: %w", err)
	}
	return rows, total, nil
}

// State loads a thread's latest checkpoint, for the API layer's status
// endpoint.
func (o *Orchestrator) State(ctx context.Context, threadID string) (checkpoint.State, error) {
	return o.checkpoints.Latest(ctx, threadID)
}

func llmModelOverride(thread *ent.Thread) string {
	if thread.LlmModelOverride != nil {
		return *thread.LlmModelOverride
	}
	return ""
}

func toHistoryEntries(attempts []checkpoint.SkillAttempt) []planner.HistoryEntry {
	out := make([]planner.HistoryEntry, len(attempts))
	for i, a := range attempts {
		out[i] = planner.HistoryEntry{SkillName: a.SkillName, Succeeded: a.Succeeded, InputsHash: a.InputsHash}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cloneMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func preview(sop string) string {
	const maxLen = 200
	if len(sop) <= maxLen {
		return sop
	}
	return sop[:maxLen] + "…"
}
