package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// restCallbackHandler handles POST /api/v1/callbacks/:correlation_token
// (spec §6 "REST callback"). The full JSON body is passed through as the
// skill's raw outputs dict — the REST Executor and Orchestrator apply
// produces/optional_produces mapping on the far side, same as an inline
// REST skill's response.
func (s *Server) restCallbackHandler(c *gin.Context) {
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if payload == nil {
		payload = map[string]any{}
	}

	token := c.Param("correlation_token")
	if err := s.orchestrator.HandleRESTCallback(c.Request.Context(), token, payload); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"correlation_token": token, "status": "accepted"})
}
