package middleware

import (
	"context"

	"github.com/erp/stockflow/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
)

// Profiling tags the CPU samples taken while a request runs with its route
// and tenant, so profiles can be filtered per endpoint. Register it after
// Authenticate.
func Profiling(enabled bool) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			c.Next()
			return
		}
		tenant := ""
		if actor, ok := ActorFrom(c); ok {
			tenant = actor.TenantID.String()
		}
		telemetry.WithProfilingLabels(c.Request.Context(), c.Request.Method+" "+route, tenant, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}
