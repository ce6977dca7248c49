package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"payment-reconciliation/internal/core/domain"
	"payment-reconciliation/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CtxResourceID lets a handler name the resource it created, for routes
// whose path carries no id.
const CtxResourceID = "audit_resource_id"

type auditRoute struct {
	action       domain.AuditAction
	resourceType string
}

// auditedRoutes maps "METHOD route-pattern" to the audited action.
var auditedRoutes = map[string]auditRoute{
	"POST /api/v1/reconciliations":                        {domain.AuditActionOpenSession, "session"},
	"POST /api/v1/reconciliations/:id/entries":            {domain.AuditActionAddEntry, "session"},
	"DELETE /api/v1/reconciliations/:id/entries/:entryId": {domain.AuditActionRemoveEntry, "session"},
	"POST /api/v1/reconciliations/:id/commit":             {domain.AuditActionCommit, "session"},
	"DELETE /api/v1/reconciliations/:id":                  {domain.AuditActionAbandon, "session"},
}

// AuditLog records every successful mutation of a reconciliation session.
// A 202 advisory changes nothing and is not recorded.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < 200 || status >= 300 || status == http.StatusAccepted {
			return
		}

		route, ok := lookupAuditRoute(c.Request.Method, c.FullPath())
		if !ok {
			return
		}

		resourceID := c.Param("id")
		if resourceID == "" {
			resourceID = c.GetString(CtxResourceID)
		}

		detail := map[string]any{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": status,
		}
		if entryID := c.Param("entryId"); entryID != "" {
			detail["entry_id"] = entryID
		}
		details, _ := json.Marshal(detail)

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			Operator:     Operator(c),
			Action:       route.action,
			ResourceType: route.resourceType,
			ResourceID:   resourceID,
			Details:      string(details),
			IPAddress:    c.ClientIP(),
			CreatedAt:    time.Now().UTC(),
		})
	}
}

func lookupAuditRoute(method, fullPath string) (auditRoute, bool) {
	if fullPath == "" {
		return auditRoute{}, false
	}
	route, ok := auditedRoutes[method+" "+fullPath]
	return route, ok
}
