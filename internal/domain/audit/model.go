package audit

import (
	"time"

	"github.com/flexprice/ebilling/internal/types"
)

// Log is an append-only record of an operator or system mutation
type Log struct {
	ID         string            `db:"id" json:"id"`
	TenantID   string            `db:"tenant_id" json:"tenant_id"`
	Actor      string            `db:"actor" json:"actor"`
	Action     types.AuditAction `db:"action" json:"action"`
	EntityType types.AuditEntity `db:"entity_type" json:"entity_type"`
	EntityID   string            `db:"entity_id" json:"entity_id"`
	Metadata   types.JSONMap     `db:"metadata" json:"metadata"`
	CreatedAt  time.Time         `db:"created_at" json:"created_at"`
}
