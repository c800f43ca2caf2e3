package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/invopop/jsonschema"
)

// reloadSkillsHandler handles POST /api/v1/skills/reload, re-scanning the
// filesystem skill directories and the database-backed skill table (spec
// §4.1 "Load / Reload").
func (s *Server) reloadSkillsHandler(c *gin.Context) {
	diags, err := s.registry.Reload(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	strs := make([]string, len(diags))
	for i, d := range diags {
		strs[i] = d.String()
	}
	c.JSON(http.StatusOK, ReloadSkillsResponse{
		LoadedCount: len(s.registry.List(c.Query("workspace_id"))),
		Diagnostics: strs,
	})
}

// listSkillsHandler handles GET /api/v1/skills, listing skills visible to a
// workspace (its private skills plus every public skill).
func (s *Server) listSkillsHandler(c *gin.Context) {
	skills := s.registry.List(c.Query("workspace_id"))
	out := make([]SkillSummary, len(skills))
	for i, sk := range skills {
		out[i] = SkillSummary{
			Name:             sk.Name,
			Description:      sk.Description,
			Requires:         sk.Requires,
			Produces:         sk.Produces,
			OptionalProduces: sk.OptionalProduces,
			Executor:         string(sk.Executor),
			HITLEnabled:      sk.HITLEnabled,
			SourceKind:       string(sk.SourceKind),
			IsPublic:         sk.IsPublic,
			WorkspaceID:      sk.WorkspaceID,
		}
	}
	c.JSON(http.StatusOK, gin.H{"skills": out})
}

// schemaHandler handles GET /api/v1/schema, serving the JSON Schema for the
// engine's request/response DTOs so a UI or SDK can generate forms/clients
// without hand-maintaining a duplicate description of the wire contract.
func (s *Server) schemaHandler(c *gin.Context) {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	schema := reflector.Reflect(&StartRunRequest{})
	schema.ID = "https://skillforge.dev/schemas/start-run-request.json"
	schema.Title = "Start Run Request"
	schema.Description = "Request body for POST /api/v1/runs"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	c.JSON(http.StatusOK, schema)
}
