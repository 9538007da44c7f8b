package testutil

import (
	"context"
	"time"

	"github.com/flexprice/ebilling/internal/domain/ebillingpackage"
	"github.com/flexprice/ebilling/internal/domain/subscription"
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/types"
)

// InMemorySubscriptionStore implements subscription.Repository keyed by tenant
type InMemorySubscriptionStore struct {
	*InMemoryStore[*subscription.Subscription]
}

func NewInMemorySubscriptionStore() *InMemorySubscriptionStore {
	return &InMemorySubscriptionStore{
		InMemoryStore: NewInMemoryStore[*subscription.Subscription](),
	}
}

func (s *InMemorySubscriptionStore) Get(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	sub, err := s.InMemoryStore.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	cp := *sub
	return &cp, nil
}

// GetForUpdate is Get; callers are serialized by the test itself
func (s *InMemorySubscriptionStore) GetForUpdate(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	return s.Get(ctx, tenantID)
}

func (s *InMemorySubscriptionStore) Upsert(ctx context.Context, sub *subscription.Subscription) (bool, error) {
	existing, err := s.InMemoryStore.Get(ctx, sub.TenantID)
	if err != nil {
		cp := *sub
		return true, s.InMemoryStore.Create(ctx, sub.TenantID, &cp)
	}
	sub.ID = existing.ID
	sub.CreatedAt = existing.CreatedAt
	sub.CreatedBy = existing.CreatedBy
	cp := *sub
	return false, s.InMemoryStore.Update(ctx, sub.TenantID, &cp)
}

func (s *InMemorySubscriptionStore) UpdateCycle(ctx context.Context, id string, start, end time.Time) error {
	sub, ok := s.Find(func(sub *subscription.Subscription) bool { return sub.ID == id })
	if !ok {
		return ierr.NewError("subscription not found").Mark(ierr.ErrNotFound)
	}
	_, err := s.Mutate(sub.TenantID, func(sub *subscription.Subscription) error {
		sub.CycleStart = start
		sub.CycleEnd = end
		sub.UpdatedAt = time.Now().UTC()
		return nil
	})
	return err
}

// InMemoryPackageStore implements ebillingpackage.Repository
type InMemoryPackageStore struct {
	*InMemoryStore[*ebillingpackage.Package]
}

func NewInMemoryPackageStore() *InMemoryPackageStore {
	return &InMemoryPackageStore{InMemoryStore: NewInMemoryStore[*ebillingpackage.Package]()}
}

func (s *InMemoryPackageStore) Create(ctx context.Context, p *ebillingpackage.Package) error {
	cp := *p
	return s.InMemoryStore.Create(ctx, p.ID, &cp)
}

func (s *InMemoryPackageStore) Get(ctx context.Context, id string) (*ebillingpackage.Package, error) {
	p, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	cp := *p
	return &cp, nil
}

func (s *InMemoryPackageStore) List(ctx context.Context, filter *types.PackageFilter) ([]*ebillingpackage.Package, int, error) {
	items, err := s.InMemoryStore.List(ctx, filter, nil, func(i, j *ebillingpackage.Package) bool {
		return i.CreatedAt.After(j.CreatedAt)
	})
	if err != nil {
		return nil, 0, err
	}
	total, err := s.InMemoryStore.Count(ctx, filter, nil)
	return items, total, err
}
