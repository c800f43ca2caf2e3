// Package actionexec implements the Action Executor (C7, spec §4.6): a
// single Executor that dispatches to one of five synchronous sub-handlers
// by action_config.type. Every sub-handler runs to completion within the
// workflow's tick — none of them pause the run the way the REST Executor
// does.
package actionexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/skillforge/engine/pkg/actionfn"
	"github.com/skillforge/engine/pkg/datasource"
	"github.com/skillforge/engine/pkg/executor"
	"github.com/skillforge/engine/pkg/skill"
	"github.com/skillforge/engine/pkg/template"
)

// DefaultTimeout is used when a skill's action_config.timeout_ms is zero.
const DefaultTimeout = 30 * time.Second

// PipelineRunner dispatches a data_pipeline action's steps and returns the
// pipeline's final local context. It is injected rather than imported
// directly: pkg/pipeline needs the same data-source/function-table
// dependencies actionexec does, and its `skill` step kind re-enters the
// executor path only through executor.Context.InvokeSkill, so neither
// package imports the other.
type PipelineRunner func(ctx context.Context, steps []skill.PipelineStepConfig, seed map[string]any, ec *executor.Context) (map[string]any, error)

// Executor implements executor.Executor for ExecutorAction skills.
type Executor struct {
	Functions  *actionfn.Table
	DataSource datasource.Resolver
	HTTPClient *http.Client
	Pipeline   PipelineRunner
}

// New builds an Action Executor.
func New(functions *actionfn.Table, ds datasource.Resolver, pipeline PipelineRunner) *Executor {
	return &Executor{
		Functions:  functions,
		DataSource: ds,
		HTTPClient: &http.Client{},
		Pipeline:   pipeline,
	}
}

func (e *Executor) Execute(ctx context.Context, sk *skill.Skill, resolvedInputs map[string]any, ec *executor.Context) (*executor.Result, error) {
	if sk.Executor != skill.ExecutorAction || sk.ActionConfig == nil {
		return nil, fmt.Errorf("actionexec: skill %q is not an action skill", sk.Name)
	}
	ac := sk.ActionConfig

	timeout := DefaultTimeout
	if ac.TimeoutMS > 0 {
		timeout = time.Duration(ac.TimeoutMS) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		outputs map[string]any
		err     error
	)
	switch ac.Type {
	case skill.ActionPythonFunction:
		outputs, err = e.runPythonFunction(ctx, sk, ac, resolvedInputs)
	case skill.ActionDataQuery:
		outputs, err = e.runDataQuery(ctx, ac, resolvedInputs, ec)
	case skill.ActionHTTPCall:
		outputs, err = e.runHTTPCall(ctx, ac, resolvedInputs)
	case skill.ActionScript:
		outputs, err = e.runScript(ctx, sk, ac, resolvedInputs)
	case skill.ActionDataPipeline:
		outputs, err = e.runDataPipeline(ctx, ac, resolvedInputs, ec)
	default:
		return nil, fmt.Errorf("actionexec: skill %q: unknown action type %q", sk.Name, ac.Type)
	}
	if err != nil {
		return &executor.Result{Error: &executor.ExecError{Kind: executor.ErrorKindActionError, Message: err.Error()}}, nil
	}
	return &executor.Result{Outputs: outputs}, nil
}

func (e *Executor) runPythonFunction(ctx context.Context, sk *skill.Skill, ac *skill.ActionConfig, resolvedInputs map[string]any) (map[string]any, error) {
	name := ac.FunctionName
	if ac.Module != "" {
		name = ac.Module + "." + ac.FunctionName
	}
	if !e.Functions.Has(name) && ac.Module == "" {
		// auto-discover: a skill-local function registers itself under
		// "<skill folder base>.<function_name>" when it has no explicit module.
		name = filepath.Base(sk.FolderPath) + "." + ac.FunctionName
	}
	v, err := e.Functions.Call(ctx, name, resolvedInputs)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("actionexec: python_function %q did not return a map", name)
	}
	return m, nil
}

func (e *Executor) runDataQuery(ctx context.Context, ac *skill.ActionConfig, resolvedInputs map[string]any, ec *executor.Context) (map[string]any, error) {
	result, err := e.DataSource.ResolveAndQuery(ctx, ec.Credentials, ec.OwnerID, ac.Source, ac.CredentialRef, ac.Query, resolvedInputs)
	if err != nil {
		return nil, err
	}
	return map[string]any{"query_result": result.Rows, "row_count": result.RowCount}, nil
}

func (e *Executor) runHTTPCall(ctx context.Context, ac *skill.ActionConfig, resolvedInputs map[string]any) (map[string]any, error) {
	url, err := template.Render(ac.URLTemplate, resolvedInputs)
	if err != nil {
		return nil, fmt.Errorf("render url_template: %w", err)
	}
	headers, err := template.RenderHeaders(ac.Headers, resolvedInputs)
	if err != nil {
		return nil, fmt.Errorf("render headers: %w", err)
	}
	body, err := template.Render(ac.Body, resolvedInputs)
	if err != nil {
		return nil, fmt.Errorf("render body: %w", err)
	}

	method := ac.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader([]byte(body)))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http_call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return map[string]any{"response": string(respBody), "status_code": resp.StatusCode}, nil
}

func (e *Executor) runScript(ctx context.Context, sk *skill.Skill, ac *skill.ActionConfig, resolvedInputs map[string]any) (map[string]any, error) {
	scriptPath := ac.ScriptPath
	if !filepath.IsAbs(scriptPath) && sk.FolderPath != "" {
		scriptPath = filepath.Join(sk.FolderPath, scriptPath)
	}
	interpreter := ac.Interpreter
	if interpreter == "" {
		interpreter = "python3"
	}

	stdin, err := json.Marshal(resolvedInputs)
	if err != nil {
		return nil, fmt.Errorf("encode stdin: %w", err)
	}

	cmd := exec.CommandContext(ctx, interpreter, scriptPath)
	cmd.Stdin = bytes.NewReader(stdin)
	if sk.FolderPath != "" {
		cmd.Dir = sk.FolderPath
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("script %s exited: %w: %s", scriptPath, err, stderr.String())
	}

	var out map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("script %s: stdout is not a JSON object: %w", scriptPath, err)
	}
	return out, nil
}

func (e *Executor) runDataPipeline(ctx context.Context, ac *skill.ActionConfig, resolvedInputs map[string]any, ec *executor.Context) (map[string]any, error) {
	if e.Pipeline == nil {
		return nil, fmt.Errorf("actionexec: no pipeline runner configured")
	}
	return e.Pipeline(ctx, ac.Steps, resolvedInputs, ec)
}
