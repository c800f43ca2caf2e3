package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skillforge/engine/ent"
	"github.com/skillforge/engine/pkg/checkpoint"
	"github.com/skillforge/engine/pkg/credentials"
	"github.com/skillforge/engine/pkg/executor/restexec"
)

// writeError maps an engine-layer error to an HTTP error response and
// writes it, mirroring the teacher's mapServiceError: known sentinel/typed
// errors get a precise status, everything else is logged and reported as
// a 500 without leaking internals.
func writeError(c *gin.Context, err error) {
	switch {
	case ent.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})
	case errors.Is(err, checkpoint.ErrNoCheckpoint):
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
	case errors.Is(err, credentials.ErrNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": "credential not found"})
	case errors.Is(err, restexec.ErrUnknownToken):
		c.JSON(http.StatusConflict, gin.H{"error": "unknown correlation token"})
	case errors.Is(err, restexec.ErrAlreadyConsumed):
		c.JSON(http.StatusConflict, gin.H{"error": "callback already consumed"})
	default:
		slog.Error("api: unexpected engine error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
