package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionOpenSession AuditAction = "OPEN_SESSION"
	AuditActionAddEntry    AuditAction = "ADD_ENTRY"
	AuditActionRemoveEntry AuditAction = "REMOVE_ENTRY"
	AuditActionCommit      AuditAction = "COMMIT"
	AuditActionAbandon     AuditAction = "ABANDON"
)

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	Operator     string      `json:"operator,omitempty"` // token subject
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
