// Command skillenginectl is a thin HTTP client for the skillengine API
// (spec §6 "CLI surface (optional admin tool)"): skills reload, runs list,
// and runs rerun, with exit codes 0 success / 1 usage / 2 runtime / 3 not
// found / 4 unauthorized.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kong"
)

// CLI is the complete skillenginectl command set.
type CLI struct {
	ServerURL string `name:"server" help:"skillengine API base URL" env:"SKILLENGINE_SERVER" default:"http://localhost:8080"`

	Skills SkillsCmd `cmd:"" help:"Skill registry operations"`
	Runs   RunsCmd   `cmd:"" help:"Run operations"`
}

// SkillsCmd groups skill registry subcommands.
type SkillsCmd struct {
	Reload ReloadCmd `cmd:"" help:"Force a skill registry reload"`
}

// ReloadCmd forces a skill registry reload.
type ReloadCmd struct{}

// RunsCmd groups run subcommands.
type RunsCmd struct {
	List  ListRunsCmd `cmd:"" help:"List runs, optionally filtered by status"`
	Rerun RerunCmd    `cmd:"" help:"Rerun a thread with no changes"`
}

// ListRunsCmd lists runs.
type ListRunsCmd struct {
	WorkspaceID string `required:"" name:"workspace-id" help:"Workspace to list runs for"`
	Status      string `help:"Filter by status (pending, running, paused, completed, error)"`
	Page        int    `default:"1" help:"Page number"`
	PageSize    int    `name:"page-size" default:"20" help:"Page size"`
}

// RerunCmd reruns a thread with no changes, a shortcut for edit-rerun.
type RerunCmd struct {
	ThreadID string `arg:"" name:"thread-id" help:"Source thread to rerun"`
}

// exitCode maps an httpClient error to spec §6's CLI exit codes.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.status {
		case http.StatusNotFound:
			return 3
		case http.StatusUnauthorized, http.StatusForbidden:
			return 4
		default:
			return 2
		}
	}
	return 2
}

type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("server responded %d: %s", e.status, e.body)
}

type client struct {
	baseURL string
	http    *http.Client
}

func (c *client) do(method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, &httpStatusError{status: resp.StatusCode, body: string(respBody)}
	}
	return respBody, nil
}

// Run executes a registry reload via POST /api/v1/skills/reload.
func (c *ReloadCmd) Run(cli *CLI) error {
	cl := &client{baseURL: cli.ServerURL, http: &http.Client{Timeout: 30 * time.Second}}
	respBody, err := cl.do(http.MethodPost, "/api/v1/skills/reload", nil)
	if err != nil {
		return err
	}
	fmt.Println(string(respBody))
	return nil
}

// Run lists runs via GET /api/v1/runs.
func (c *ListRunsCmd) Run(cli *CLI) error {
	cl := &client{baseURL: cli.ServerURL, http: &http.Client{Timeout: 30 * time.Second}}
	path := fmt.Sprintf("/api/v1/runs?workspace_id=%s&page=%d&page_size=%d", c.WorkspaceID, c.Page, c.PageSize)
	if c.Status != "" {
		path += "&status=" + c.Status
	}
	respBody, err := cl.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	fmt.Println(string(respBody))
	return nil
}

// Run shortcuts an edit-rerun with no changes via POST
// /api/v1/runs/:thread_id/rerun.
func (c *RerunCmd) Run(cli *CLI) error {
	cl := &client{baseURL: cli.ServerURL, http: &http.Client{Timeout: 30 * time.Second}}
	respBody, err := cl.do(http.MethodPost, "/api/v1/runs/"+c.ThreadID+"/rerun", map[string]any{})
	if err != nil {
		return err
	}
	fmt.Println(string(respBody))
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("skillenginectl"),
		kong.Description("Admin CLI for the skillengine orchestrator"),
		kong.UsageOnError(),
	)

	err := ctx.Run(&cli)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}
