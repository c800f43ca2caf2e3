// Package restexec implements the REST Executor (C6, spec §4.5): a
// fire-and-forget dispatch that suspends the run until an external
// callback arrives bearing the correlation token, or the deadline passes.
package restexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skillforge/engine/ent"
	"github.com/skillforge/engine/ent/callbackrecord"
	"github.com/skillforge/engine/pkg/executor"
	"github.com/skillforge/engine/pkg/skill"
	"github.com/skillforge/engine/pkg/template"
)

// ErrAlreadyConsumed is returned by ConsumeCallback when correlationToken
// has already been resolved (spec §4.5: "duplicate callbacks are
// rejected").
var ErrAlreadyConsumed = errors.New("restexec: callback token already consumed")

// ErrUnknownToken is returned by ConsumeCallback when correlationToken
// does not correspond to any outstanding dispatch.
var ErrUnknownToken = errors.New("restexec: unknown correlation token")

// DefaultTimeout is used when a skill's rest_config.timeout_ms is zero.
const DefaultTimeout = 30 * time.Second

// Executor implements executor.Executor for ExecutorREST skills.
type Executor struct {
	db         *ent.Client
	httpClient *http.Client
}

// New builds a REST Executor.
func New(db *ent.Client) *Executor {
	return &Executor{db: db, httpClient: &http.Client{}}
}

func (e *Executor) Execute(ctx context.Context, sk *skill.Skill, resolvedInputs map[string]any, ec *executor.Context) (*executor.Result, error) {
	if sk.Executor != skill.ExecutorREST || sk.RESTConfig == nil {
		return nil, fmt.Errorf("restexec: skill %q is not a rest skill", sk.Name)
	}
	rc := sk.RESTConfig

	url, err := template.Render(rc.URLTemplate, resolvedInputs)
	if err != nil {
		return &executor.Result{Error: &executor.ExecError{Kind: executor.ErrorKindValidation, Message: err.Error()}}, nil
	}
	headers, err := template.RenderHeaders(rc.Headers, resolvedInputs)
	if err != nil {
		return &executor.Result{Error: &executor.ExecError{Kind: executor.ErrorKindValidation, Message: err.Error()}}, nil
	}

	timeout := DefaultTimeout
	if rc.TimeoutMS > 0 {
		timeout = time.Duration(rc.TimeoutMS) * time.Millisecond
	}

	token := uuid.NewString()
	deadline := time.Now().Add(timeout)

	if err := e.db.CallbackRecord.Create().
		SetID(token).
		SetThreadID(ec.ThreadID).
		SetSkillName(sk.Name).
		SetDeadlineTs(deadline).
		Save(ctx); err != nil {
		return nil, fmt.Errorf("restexec: record callback: %w", err)
	}

	method := rc.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, url, strings.NewReader(""))
	if err != nil {
		return &executor.Result{Error: &executor.ExecError{Kind: executor.ErrorKindActionError, Message: err.Error()}}, nil
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("X-Correlation-Token", token)

	resp, dispatchErr := e.httpClient.Do(req)
	dispatchOutcome := map[string]any{"correlation_token": token}
	if dispatchErr != nil {
		dispatchOutcome["dispatch_error"] = dispatchErr.Error()
	} else {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		dispatchOutcome["dispatch_status_code"] = resp.StatusCode
		dispatchOutcome["dispatch_body"] = string(body)
	}

	return &executor.Result{
		Outputs: dispatchOutcome,
		SideEffects: executor.SideEffects{
			Pause:            true,
			CallbackToken:    token,
			CallbackDeadline: deadline,
		},
	}, nil
}

// ConsumeCallback resolves an inbound callback exactly once (spec §4.5):
// the first caller to reach the row with consumed=false wins; every
// subsequent call for the same token returns ErrAlreadyConsumed. Returns
// the thread/skill the dispatch belongs to plus the raw outputs for the
// Orchestrator to output-map and resume with.
func (e *Executor) ConsumeCallback(ctx context.Context, correlationToken string, payload map[string]any) (threadID, skillName string, outputs map[string]any, err error) {
	row, err := e.db.CallbackRecord.Get(ctx, correlationToken)
	if err != nil {
		if ent.IsNotFound(err) {
			return "", "", nil, fmt.Errorf("%w: %s", ErrUnknownToken, correlationToken)
		}
		return "", "", nil, fmt.Errorf("restexec: load callback record: %w", err)
	}
	if row.Consumed {
		return "", "", nil, fmt.Errorf("%w: %s", ErrAlreadyConsumed, correlationToken)
	}

	n, err := e.db.CallbackRecord.Update().
		Where(callbackrecord.IDEQ(correlationToken), callbackrecord.ConsumedEQ(false)).
		SetConsumed(true).
		SetConsumedAt(time.Now()).
		Save(ctx)
	if err != nil {
		return "", "", nil, fmt.Errorf("restexec: consume callback record: %w", err)
	}
	if n == 0 {
		return "", "", nil, fmt.Errorf("%w: %s", ErrAlreadyConsumed, correlationToken)
	}

	return row.ThreadID, row.SkillName, payload, nil
}

// SweepOverdue returns every unconsumed callback whose deadline has
// passed, for the Orchestrator's deadline sweep to raise a rest_timeout
// error against (spec §4.5/§7).
func (e *Executor) SweepOverdue(ctx context.Context) ([]*ent.CallbackRecord, error) {
	now := time.Now()
	rows, err := e.db.CallbackRecord.Query().
		Where(
			callbackrecord.ConsumedEQ(false),
			callbackrecord.DeadlineTsLT(now),
		).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("restexec: sweep overdue callbacks: %w", err)
	}
	return rows, nil
}

// MarkSweptTimedOut consumes an overdue callback row so the sweep does not
// re-report it on the next pass, without delivering a payload.
func (e *Executor) MarkSweptTimedOut(ctx context.Context, correlationToken string) error {
	n, err := e.db.CallbackRecord.Update().
		Where(callbackrecord.IDEQ(correlationToken), callbackrecord.ConsumedEQ(false)).
		SetConsumed(true).
		SetConsumedAt(time.Now()).
		Save(ctx)
	if err != nil {
		return fmt.Errorf("restexec: mark swept callback %s: %w", correlationToken, err)
	}
	if n == 0 {
		return nil // already consumed by a racing real callback; not an error
	}
	return nil
}
