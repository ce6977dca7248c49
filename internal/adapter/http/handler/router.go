package handler

import (
	"payment-reconciliation/internal/adapter/http/middleware"
	redisStore "payment-reconciliation/internal/adapter/storage/redis"
	"payment-reconciliation/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	ReconciliationSvc ports.ReconciliationService
	TokenSvc          ports.TokenService
	Precision         int32                      // settlement minor units
	RateLimitStore    *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers    []ports.HealthChecker
	AuditSvc          ports.AuditService // nil = audit logging disabled
	Logger            zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	rules := middleware.DefaultRateLimitRules()
	rl := func(group string) gin.HandlerFunc {
		rule, ok := rules[group]
		if deps.RateLimitStore == nil || !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// Everything under /api/v1 needs an operator token. Audit runs inside the
	// group so it sees the operator set by JWTAuth.
	v1 := r.Group("/api/v1", middleware.JWTAuth(deps.TokenSvc, deps.Logger))
	if deps.AuditSvc != nil {
		v1.Use(middleware.AuditLog(deps.AuditSvc))
	}

	h := NewReconciliationHandler(deps.ReconciliationSvc, deps.Precision)

	sessions := v1.Group("/reconciliations")
	{
		sessions.POST("", rl("sessions"), h.OpenSession)
		sessions.GET("/:id", rl("read"), h.GetSession)
		sessions.DELETE("/:id", rl("sessions"), h.Abandon)
		sessions.POST("/:id/entries", rl("entries"), h.AddEntry)
		sessions.DELETE("/:id/entries/:entryId", rl("entries"), h.RemoveEntry)
		sessions.POST("/:id/commit", rl("commit"), h.Commit)
	}

	v1.POST("/conversions", rl("convert"), h.Convert)
	v1.GET("/invoices/:invoiceId/batches", rl("read"), h.ListBatches)

	return r
}
