package usage

import (
	"context"
	"time"

	"github.com/flexprice/ebilling/internal/types"
)

type Repository interface {
	// GetActivePeriod returns the open period containing at, or ErrNotFound
	GetActivePeriod(ctx context.Context, tenantID string, at time.Time) (*Period, error)
	// CreatePeriod inserts the period; an existing period with the same
	// subscription and start is returned instead
	CreatePeriod(ctx context.Context, p *Period) (*Period, error)
	// ClosePeriods ends every open period of the tenant that started before at
	ClosePeriods(ctx context.Context, tenantID string, at time.Time) (int64, error)
	// Increment counts one document against the active period in a single
	// statement. remaining_total never drops below zero; a count made when
	// nothing remained is recorded as overage.
	Increment(ctx context.Context, tenantID string, bucket types.UsageBucket, at time.Time) (*Period, error)
	// Reserve takes one document from remaining_total of an open period.
	// ErrNotFound means nothing was left to take.
	Reserve(ctx context.Context, periodID string) (*Period, error)
	// Count records one submitted document against the period whose quota
	// was settled by Reserve, or as overage when nothing was reserved
	Count(ctx context.Context, periodID string, bucket types.UsageBucket, overage bool) (*Period, error)
	// AdjustRemaining adds delta to remaining_total, flooring at zero
	AdjustRemaining(ctx context.Context, periodID string, delta int) (*Period, error)
}

// CreditRepository is append-only: credits are never updated or deleted
type CreditRepository interface {
	Create(ctx context.Context, c *Credit) error
	List(ctx context.Context, filter *types.CreditFilter) ([]*Credit, int, error)
}
