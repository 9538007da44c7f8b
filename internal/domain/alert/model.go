package alert

import (
	"time"

	"github.com/flexprice/ebilling/internal/types"
)

// Alert is an operator notification about a tenant's quota or provider access
type Alert struct {
	ID             string          `db:"id" json:"id"`
	TenantID       string          `db:"tenant_id" json:"tenant_id"`
	Type           types.AlertType `db:"type" json:"type"`
	Message        string          `db:"message" json:"message"`
	Metadata       types.JSONMap   `db:"metadata" json:"metadata"`
	AcknowledgedAt *time.Time      `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	AcknowledgedBy string          `db:"acknowledged_by" json:"acknowledged_by,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

func (a *Alert) IsAcknowledged() bool {
	return a.AcknowledgedAt != nil
}
