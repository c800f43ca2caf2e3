package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/skillforge/engine/ent"
	entthread "github.com/skillforge/engine/ent/thread"
	"github.com/skillforge/engine/pkg/checkpoint"
	"github.com/skillforge/engine/pkg/orchestrator"
)

// startRunHandler handles POST /api/v1/runs (spec §6 "Start a run").
func (s *Server) startRunHandler(c *gin.Context) {
	var req StartRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	threadID, err := s.orchestrator.StartRun(c.Request.Context(), orchestrator.StartRunRequest{
		ThreadID:         req.ThreadID,
		SOP:              req.SOP,
		InitialData:      req.InitialData,
		RunName:          req.RunName,
		LLMModelOverride: req.LLMModelOverride,
		OwnerID:          req.OwnerID,
		WorkspaceID:      req.WorkspaceID,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	resp, err := s.buildRunResponse(c, threadID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// getRunStatusHandler handles GET /api/v1/runs/:thread_id (spec §6 "Query
// status").
func (s *Server) getRunStatusHandler(c *gin.Context) {
	resp, err := s.buildRunResponse(c, c.Param("thread_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// listRunsHandler handles GET /api/v1/runs (spec §6 "List runs"), paginated
// and optionally filtered by status, scoped to a workspace.
func (s *Server) listRunsHandler(c *gin.Context) {
	workspaceID := c.Query("workspace_id")
	if workspaceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "workspace_id is required"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}

	var statusFilter *entthread.Status
	if raw := c.Query("status"); raw != "" {
		st := entthread.Status(raw)
		statusFilter = &st
	}

	rows, total, err := s.orchestrator.Threads(c.Request.Context(), workspaceID, statusFilter, (page-1)*pageSize, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}

	summaries := make([]RunSummary, len(rows))
	for i, th := range rows {
		summaries[i] = runSummaryFromThread(th)
	}

	totalPages := total / pageSize
	if total%pageSize != 0 {
		totalPages++
	}
	c.JSON(http.StatusOK, ListRunsResponse{
		Runs:       summaries,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	})
}

// rerunHandler handles POST /api/v1/runs/:thread_id/rerun (spec §6 "Rerun /
// edit-rerun").
func (s *Server) rerunHandler(c *gin.Context) {
	var req RerunRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sourceThreadID := c.Param("thread_id")
	slog.Info("rerun requested", "source_thread_id", sourceThreadID, "actor", extractActor(c))

	newThreadID, err := s.orchestrator.Rerun(c.Request.Context(), orchestrator.RerunRequest{
		SourceThreadID:      sourceThreadID,
		NewSOP:              req.NewSOP,
		NewInitialData:      req.NewInitialData,
		NewLLMModelOverride: req.NewLLMModelOverride,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	resp, err := s.buildRunResponse(c, newThreadID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// cancelRunHandler handles POST /api/v1/runs/:thread_id/cancel. Cancellation
// only takes effect if the run is actively claimed by this process's pool;
// a run claimed elsewhere is left for that pod's own orphan/cancel path.
func (s *Server) cancelRunHandler(c *gin.Context) {
	threadID := c.Param("thread_id")
	slog.Info("cancel requested", "thread_id", threadID, "actor", extractActor(c))
	if s.pool == nil || !s.pool.CancelRun(threadID) {
		c.JSON(http.StatusAccepted, gin.H{
			"thread_id": threadID,
			"cancelled": false,
			"note":      "run is not actively claimed by this process",
		})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"thread_id": threadID, "cancelled": true})
}

func (s *Server) buildRunResponse(c *gin.Context, threadID string) (RunResponse, error) {
	ctx := c.Request.Context()
	thread, err := s.orchestrator.Thread(ctx, threadID)
	if err != nil {
		return RunResponse{}, err
	}
	state, err := s.orchestrator.State(ctx, threadID)
	if err != nil {
		return RunResponse{}, err
	}
	return runResponseFromState(thread, state), nil
}

func runResponseFromState(thread *ent.Thread, state checkpoint.State) RunResponse {
	resp := RunResponse{
		ThreadID:    thread.ID,
		Status:      state.Status,
		OwnerID:     thread.OwnerID,
		WorkspaceID: thread.WorkspaceID,
		DataStore:   state.DataStore,
		History:     state.History,
		ActiveSkill: state.ActiveSkill,
		FailedSkill: state.FailedSkill,
		CreatedAt:   thread.CreatedAt,
		UpdatedAt:   thread.UpdatedAt,
	}
	if thread.RunName != nil {
		resp.RunName = *thread.RunName
	}
	if thread.ParentThreadID != nil {
		resp.ParentThreadID = *thread.ParentThreadID
	}
	if thread.LlmModelOverride != nil {
		resp.LLMModelOverride = *thread.LlmModelOverride
	}
	if state.Error != nil {
		resp.Error = &StateErrorDTO{Kind: state.Error.Kind, Message: state.Error.Message}
	}
	return resp
}

func runSummaryFromThread(th *ent.Thread) RunSummary {
	s := RunSummary{
		ThreadID:    th.ID,
		Status:      string(th.Status),
		OwnerID:     th.OwnerID,
		WorkspaceID: th.WorkspaceID,
		CreatedAt:   th.CreatedAt,
		UpdatedAt:   th.UpdatedAt,
	}
	if th.RunName != nil {
		s.RunName = *th.RunName
	}
	return s
}
