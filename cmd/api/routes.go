package main

import (
	"database/sql"
	"time"

	"signaling-platform/internal/auth"
	"signaling-platform/internal/httpapi"
	"signaling-platform/internal/rbac"
	"signaling-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc, db *sql.DB, rdb *redis.Client) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(503, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(503, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})

	// AUTH routes (token issuance).
	// NOTE: This is a placeholder login route; real credential validation is not implemented.
	r.POST("/v1/auth/login", h.Login)
	r.POST("/v1/auth/refresh", h.Refresh)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(200, gin.H{"user_id": uid, "display_name": auth.DisplayName(c.Request.Context()), "role": role})
		})

		// CALL routes
		calls := v1.Group("/calls")
		calls.Use(httpapi.RequireUserAndAnyRole(rbac.RoleUser, rbac.RoleSupport)...)
		{
			calls.POST("", h.StartCall)
			calls.GET("/current", h.CallState)
			calls.GET("/events", h.CallEvents)
			calls.POST("/end", h.EndCall)
			calls.POST("/:session_id/accept", h.AcceptCall)
			calls.POST("/:session_id/decline", h.DeclineCall)
		}

		// SESSION reads (participants only; enforced in the handler)
		v1.GET("/sessions/:session_id", rbac.RequireUser(), h.GetSession)

		// ADMIN routes (support may read history; admin bypasses all checks)
		admin := v1.Group("/admin")
		admin.Use(rbac.RequireUser())
		{
			admin.GET("/ping", rbac.RequireAnyRole(rbac.RoleAdmin), func(c *gin.Context) {
				c.JSON(200, gin.H{"status": "ok"})
			})
			admin.GET("/history", rbac.RequireAnyRole(rbac.RoleSupport), h.RecentHistory)
			admin.GET("/history/summary", rbac.RequireAnyRole(rbac.RoleSupport), h.HistorySummary)
		}
	}
}
