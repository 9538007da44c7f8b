package subscription

import (
	"context"
	"time"
)

type Repository interface {
	// Get returns the tenant's subscription or an error marked ErrNotFound
	Get(ctx context.Context, tenantID string) (*Subscription, error)
	// GetForUpdate is Get holding the row lock until the surrounding
	// transaction ends
	GetForUpdate(ctx context.Context, tenantID string) (*Subscription, error)
	// Upsert stores the subscription for its tenant. An existing row keeps its
	// id; created reports whether the tenant had no subscription before.
	Upsert(ctx context.Context, s *Subscription) (created bool, err error)
	UpdateCycle(ctx context.Context, id string, start, end time.Time) error
}
