package api

import "github.com/gin-gonic/gin"

// extractActor extracts the acting user from oauth2-proxy headers, for
// audit trails (e.g. who triggered a rerun) where the request body itself
// doesn't carry an owner_id override.
// Priority: X-Forwarded-User > X-Forwarded-Email > "api-client".
func extractActor(c *gin.Context) string {
	if user := c.GetHeader("X-Forwarded-User"); user != "" {
		return user
	}
	if email := c.GetHeader("X-Forwarded-Email"); email != "" {
		return email
	}
	return "api-client"
}
