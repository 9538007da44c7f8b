package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/flexprice/ebilling/internal/domain/usage"
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/types"
	"github.com/samber/lo"
)

// InMemoryUsageStore implements usage.Repository. A single mutex stands in
// for the row lock taken by the SQL increment.
type InMemoryUsageStore struct {
	mu      sync.Mutex
	periods map[string]*usage.Period
}

func NewInMemoryUsageStore() *InMemoryUsageStore {
	return &InMemoryUsageStore{periods: make(map[string]*usage.Period)}
}

func copyPeriod(p *usage.Period) *usage.Period {
	cp := *p
	if p.ClosedAt != nil {
		cp.ClosedAt = lo.ToPtr(*p.ClosedAt)
	}
	return &cp
}

// active must be called with mu held
func (s *InMemoryUsageStore) active(tenantID string, at time.Time) *usage.Period {
	var found *usage.Period
	for _, p := range s.periods {
		if p.TenantID != tenantID || p.ClosedAt != nil {
			continue
		}
		if p.PeriodStart.After(at) || !p.PeriodEnd.After(at) {
			continue
		}
		if found == nil || p.PeriodStart.After(found.PeriodStart) {
			found = p
		}
	}
	return found
}

func periodNotFound(tenantID string) error {
	return ierr.NewErrorf("no active usage period for tenant %s", tenantID).
		WithHint("Usage period not found").
		Mark(ierr.ErrNotFound)
}

func (s *InMemoryUsageStore) GetActivePeriod(_ context.Context, tenantID string, at time.Time) (*usage.Period, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.active(tenantID, at); p != nil {
		return copyPeriod(p), nil
	}
	return nil, periodNotFound(tenantID)
}

func (s *InMemoryUsageStore) CreatePeriod(_ context.Context, p *usage.Period) (*usage.Period, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.periods {
		if existing.SubscriptionID == p.SubscriptionID && existing.PeriodStart.Equal(p.PeriodStart) {
			return copyPeriod(existing), nil
		}
	}
	s.periods[p.ID] = copyPeriod(p)
	return copyPeriod(p), nil
}

func (s *InMemoryUsageStore) ClosePeriods(_ context.Context, tenantID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var closed int64
	for _, p := range s.periods {
		if p.TenantID != tenantID || p.ClosedAt != nil || !p.PeriodStart.Before(at) {
			continue
		}
		p.ClosedAt = lo.ToPtr(at)
		if p.PeriodEnd.After(at) {
			p.PeriodEnd = at
		}
		p.UpdatedAt = at
		closed++
	}
	return closed, nil
}

func (s *InMemoryUsageStore) Increment(_ context.Context, tenantID string, bucket types.UsageBucket, at time.Time) (*usage.Period, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.active(tenantID, at)
	if p == nil {
		return nil, periodNotFound(tenantID)
	}
	if err := countBucket(p, bucket); err != nil {
		return nil, err
	}
	if p.RemainingTotal == 0 {
		p.OverageDocuments++
	} else {
		p.RemainingTotal--
	}
	p.UpdatedAt = time.Now().UTC()
	return copyPeriod(p), nil
}

func countBucket(p *usage.Period, bucket types.UsageBucket) error {
	switch bucket {
	case types.UsageBucketPOS:
		p.UsedPOS++
	case types.UsageBucketInvoice:
		p.UsedInvoice++
	case types.UsageBucketNotes:
		p.UsedNotes++
	case types.UsageBucketSupport:
		p.UsedSupport++
	default:
		return ierr.NewErrorf("unknown usage bucket %q", bucket).Mark(ierr.ErrValidation)
	}
	p.UsedTotal++
	return nil
}

func (s *InMemoryUsageStore) Reserve(_ context.Context, periodID string) (*usage.Period, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.periods[periodID]
	if !ok || p.ClosedAt != nil || p.RemainingTotal <= 0 {
		return nil, ierr.NewError("no remaining document quota").Mark(ierr.ErrNotFound)
	}
	p.RemainingTotal--
	p.UpdatedAt = time.Now().UTC()
	return copyPeriod(p), nil
}

func (s *InMemoryUsageStore) Count(_ context.Context, periodID string, bucket types.UsageBucket, overage bool) (*usage.Period, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.periods[periodID]
	if !ok {
		return nil, ierr.NewError("usage period not found").Mark(ierr.ErrNotFound)
	}
	if err := countBucket(p, bucket); err != nil {
		return nil, err
	}
	if overage {
		p.OverageDocuments++
	}
	p.UpdatedAt = time.Now().UTC()
	return copyPeriod(p), nil
}

func (s *InMemoryUsageStore) AdjustRemaining(_ context.Context, periodID string, delta int) (*usage.Period, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.periods[periodID]
	if !ok {
		return nil, ierr.NewError("usage period not found").Mark(ierr.ErrNotFound)
	}
	p.RemainingTotal = max(p.RemainingTotal+delta, 0)
	p.UpdatedAt = time.Now().UTC()
	return copyPeriod(p), nil
}

// Periods returns every period of a tenant, for assertions
func (s *InMemoryUsageStore) Periods(tenantID string) []*usage.Period {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*usage.Period
	for _, p := range s.periods {
		if p.TenantID == tenantID {
			out = append(out, copyPeriod(p))
		}
	}
	return out
}

func (s *InMemoryUsageStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.periods = make(map[string]*usage.Period)
}

// InMemoryCreditStore implements usage.CreditRepository
type InMemoryCreditStore struct {
	*InMemoryStore[*usage.Credit]
}

func NewInMemoryCreditStore() *InMemoryCreditStore {
	return &InMemoryCreditStore{InMemoryStore: NewInMemoryStore[*usage.Credit]()}
}

func (s *InMemoryCreditStore) Create(ctx context.Context, c *usage.Credit) error {
	cp := *c
	return s.InMemoryStore.Create(ctx, c.ID, &cp)
}

func creditFilterFn(_ context.Context, c *usage.Credit, filter interface{}) bool {
	f, ok := filter.(*types.CreditFilter)
	return !ok || f == nil || f.TenantID == "" || c.TenantID == f.TenantID
}

func (s *InMemoryCreditStore) List(ctx context.Context, filter *types.CreditFilter) ([]*usage.Credit, int, error) {
	items, err := s.InMemoryStore.List(ctx, filter, creditFilterFn, func(i, j *usage.Credit) bool {
		return i.CreatedAt.After(j.CreatedAt)
	})
	if err != nil {
		return nil, 0, err
	}
	total, err := s.InMemoryStore.Count(ctx, filter, creditFilterFn)
	return items, total, err
}
