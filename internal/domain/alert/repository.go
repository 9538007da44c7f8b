package alert

import (
	"context"

	"github.com/flexprice/ebilling/internal/types"
)

type Repository interface {
	// Create inserts the alert unless an unacknowledged alert of the same
	// tenant and type exists. created is false when it was deduplicated.
	Create(ctx context.Context, a *Alert) (created bool, err error)
	Get(ctx context.Context, id string) (*Alert, error)
	List(ctx context.Context, filter *types.AlertFilter) ([]*Alert, int, error)
	CountOpen(ctx context.Context, tenantID string) (int, error)
	// Acknowledge marks an open alert acknowledged. An already acknowledged
	// alert yields ErrInvalidOperation.
	Acknowledge(ctx context.Context, id, actor string) (*Alert, error)
}
