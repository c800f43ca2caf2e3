// Package api provides the HTTP surface over the Orchestrator's external
// interfaces (spec §6): starting a run, resuming a HITL pause, accepting
// REST callbacks, querying status, listing runs, and rerunning.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/skillforge/engine/pkg/database"
	"github.com/skillforge/engine/pkg/orchestrator"
	"github.com/skillforge/engine/pkg/registry"
)

// Server is the HTTP API server over the orchestrator engine. REST
// callbacks are routed through orchestrator.Orchestrator.HandleRESTCallback,
// which owns its own restexec.Executor reference — the API layer never
// touches restexec directly.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server

	db           *database.Client
	registry     *registry.Registry
	orchestrator *orchestrator.Orchestrator
	pool         *orchestrator.Pool
}

// NewServer builds a Server and registers every route. pool may be nil in
// processes that only serve the API (no local worker pool); health
// reporting simply omits pool stats in that case.
func NewServer(
	db *database.Client,
	reg *registry.Registry,
	orch *orchestrator.Orchestrator,
	pool *orchestrator.Pool,
) *Server {
	e := gin.New()
	e.Use(gin.Recovery(), securityHeaders())

	s := &Server{
		engine:       e,
		db:           db,
		registry:     reg,
		orchestrator: orch,
		pool:         pool,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.healthHandler)

	v1 := s.engine.Group("/api/v1")

	v1.POST("/runs", s.startRunHandler)
	v1.GET("/runs", s.listRunsHandler)
	v1.GET("/runs/:thread_id", s.getRunStatusHandler)
	v1.POST("/runs/:thread_id/resume", s.resumeHITLHandler)
	v1.POST("/runs/:thread_id/rerun", s.rerunHandler)
	v1.POST("/runs/:thread_id/cancel", s.cancelRunHandler)

	v1.POST("/callbacks/:correlation_token", s.restCallbackHandler)

	v1.POST("/skills/reload", s.reloadSkillsHandler)
	v1.GET("/skills", s.listSkillsHandler)
	v1.GET("/schema", s.schemaHandler)
}

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.engine}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(reqCtx, s.db.DB())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": dbHealth,
			"error":    err.Error(),
		})
		return
	}

	resp := gin.H{
		"status":   "healthy",
		"database": dbHealth,
	}
	if diags := s.registry.Diagnostics(); len(diags) > 0 {
		strs := make([]string, len(diags))
		for i, d := range diags {
			strs[i] = d.String()
		}
		resp["skill_load_diagnostics"] = strs
	}
	if s.pool != nil {
		poolHealth := s.pool.Health(reqCtx)
		resp["pool"] = gin.H{
			"pod_id":             poolHealth.PodID,
			"active_runs":        poolHealth.ActiveRuns,
			"total_workers":      poolHealth.TotalWorkers,
			"last_orphan_scan":   poolHealth.LastOrphanScan,
			"orphans_recovered":  poolHealth.OrphansRecovered,
		}
	}

	c.JSON(http.StatusOK, resp)
}
