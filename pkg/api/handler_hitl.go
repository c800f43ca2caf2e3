package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skillforge/engine/pkg/orchestrator"
)

// resumeHITLHandler handles POST /api/v1/runs/:thread_id/resume (spec §6
// "Resume a HITL pause"). The actual re-tick is driven by the Pool picking
// the thread back up once its status flips to running; this handler only
// performs the merge-and-unpause transition.
func (s *Server) resumeHITLHandler(c *gin.Context) {
	var req ResumeHITLRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	threadID := c.Param("thread_id")
	if err := s.orchestrator.ResumeHITL(c.Request.Context(), orchestrator.ResumeRequest{
		ThreadID:        threadID,
		ApprovalPayload: req.ApprovalPayload,
	}); err != nil {
		writeError(c, err)
		return
	}

	resp, err := s.buildRunResponse(c, threadID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
