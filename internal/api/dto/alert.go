package dto

import (
	"github.com/flexprice/ebilling/internal/domain/alert"
	"github.com/flexprice/ebilling/internal/domain/audit"
	"github.com/flexprice/ebilling/internal/types"
)

// RaiseAlertRequest is used internally by the usage ledger and the
// integration checks
type RaiseAlertRequest struct {
	TenantID string
	Type     types.AlertType
	Message  string
	Metadata map[string]any
}

type ListAlertsResponse = types.ListResponse[*alert.Alert]

// AuditEntry describes one mutation to record
type AuditEntry struct {
	TenantID   string
	Actor      string
	Action     types.AuditAction
	EntityType types.AuditEntity
	EntityID   string
	Metadata   map[string]any
}

type ListAuditLogsResponse = types.ListResponse[*audit.Log]
