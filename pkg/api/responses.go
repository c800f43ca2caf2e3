package api

import "time"

// RunResponse is returned by start-run, get-run-status, and rerun: the full
// externally-visible snapshot of a thread (spec §6 "Run" DTO).
type RunResponse struct {
	ThreadID         string         `json:"thread_id"`
	RunName          string         `json:"run_name,omitempty"`
	Status           string         `json:"status"`
	OwnerID          string         `json:"owner_id"`
	WorkspaceID      string         `json:"workspace_id"`
	ParentThreadID   string         `json:"parent_thread_id,omitempty"`
	LLMModelOverride string         `json:"llm_model_override,omitempty"`
	DataStore        map[string]any `json:"data_store,omitempty"`
	History          []string       `json:"history,omitempty"`
	ActiveSkill      string         `json:"active_skill,omitempty"`
	FailedSkill      string         `json:"failed_skill,omitempty"`
	Error            *StateErrorDTO `json:"error,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// StateErrorDTO mirrors checkpoint.StateError for the wire.
type StateErrorDTO struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// RunSummary is one row of a list-runs response: everything except the
// potentially large data_store/history, matching the teacher's
// list-vs-detail convention in handler_session.go.
type RunSummary struct {
	ThreadID    string    `json:"thread_id"`
	RunName     string    `json:"run_name,omitempty"`
	Status      string    `json:"status"`
	OwnerID     string    `json:"owner_id"`
	WorkspaceID string    `json:"workspace_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ListRunsResponse is the paginated list-runs response.
type ListRunsResponse struct {
	Runs       []RunSummary `json:"runs"`
	Total      int          `json:"total"`
	Page       int          `json:"page"`
	PageSize   int          `json:"page_size"`
	TotalPages int          `json:"total_pages"`
}

// SkillSummary describes one loaded skill for GET /api/v1/skills.
type SkillSummary struct {
	Name             string   `json:"name"`
	Description      string   `json:"description,omitempty"`
	Requires         []string `json:"requires,omitempty"`
	Produces         []string `json:"produces,omitempty"`
	OptionalProduces []string `json:"optional_produces,omitempty"`
	Executor         string   `json:"executor"`
	HITLEnabled      bool     `json:"hitl_enabled"`
	SourceKind       string   `json:"source_kind"`
	IsPublic         bool     `json:"is_public"`
	WorkspaceID      string   `json:"workspace_id,omitempty"`
}

// ReloadSkillsResponse reports the outcome of a POST /api/v1/skills/reload.
type ReloadSkillsResponse struct {
	LoadedCount int      `json:"loaded_count"`
	Diagnostics []string `json:"diagnostics,omitempty"`
}
