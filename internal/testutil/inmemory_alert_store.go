package testutil

import (
	"context"
	"time"

	"github.com/flexprice/ebilling/internal/domain/alert"
	"github.com/flexprice/ebilling/internal/domain/audit"
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/types"
	"github.com/samber/lo"
)

// InMemoryAlertStore implements alert.Repository, including the one open
// alert per tenant and type rule of the partial unique index
type InMemoryAlertStore struct {
	*InMemoryStore[*alert.Alert]
}

func NewInMemoryAlertStore() *InMemoryAlertStore {
	return &InMemoryAlertStore{InMemoryStore: NewInMemoryStore[*alert.Alert]()}
}

func (s *InMemoryAlertStore) Create(ctx context.Context, a *alert.Alert) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.items {
		if existing.TenantID == a.TenantID && existing.Type == a.Type && !existing.IsAcknowledged() {
			return false, nil
		}
	}
	cp := *a
	s.items[a.ID] = &cp
	return true, nil
}

func (s *InMemoryAlertStore) Get(ctx context.Context, id string) (*alert.Alert, error) {
	a, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	cp := *a
	return &cp, nil
}

func alertFilterFn(_ context.Context, a *alert.Alert, filter interface{}) bool {
	f, ok := filter.(*types.AlertFilter)
	if !ok || f == nil {
		return true
	}
	if f.TenantID != "" && a.TenantID != f.TenantID {
		return false
	}
	if len(f.Types) > 0 && !lo.Contains(f.Types, a.Type) {
		return false
	}
	if f.Acknowledged != nil && a.IsAcknowledged() != *f.Acknowledged {
		return false
	}
	return true
}

func (s *InMemoryAlertStore) List(ctx context.Context, filter *types.AlertFilter) ([]*alert.Alert, int, error) {
	items, err := s.InMemoryStore.List(ctx, filter, alertFilterFn, func(i, j *alert.Alert) bool {
		return i.CreatedAt.After(j.CreatedAt)
	})
	if err != nil {
		return nil, 0, err
	}
	total, err := s.InMemoryStore.Count(ctx, filter, alertFilterFn)
	return items, total, err
}

func (s *InMemoryAlertStore) CountOpen(ctx context.Context, tenantID string) (int, error) {
	return s.InMemoryStore.Count(ctx, &types.AlertFilter{TenantID: tenantID, Acknowledged: lo.ToPtr(false)}, alertFilterFn)
}

func (s *InMemoryAlertStore) Acknowledge(ctx context.Context, id, actor string) (*alert.Alert, error) {
	a, err := s.Mutate(id, func(a *alert.Alert) error {
		if a.IsAcknowledged() {
			return ierr.NewError("alert already acknowledged").
				WithHint("Alert was already acknowledged").
				Mark(ierr.ErrInvalidOperation)
		}
		a.AcknowledgedAt = lo.ToPtr(time.Now().UTC())
		a.AcknowledgedBy = actor
		return nil
	})
	if err != nil {
		return nil, err
	}
	cp := *a
	return &cp, nil
}

// OfType returns the stored alerts of a tenant and type
func (s *InMemoryAlertStore) OfType(tenantID string, t types.AlertType) []*alert.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Filter(lo.Values(s.items), func(a *alert.Alert, _ int) bool {
		return a.TenantID == tenantID && a.Type == t
	})
}

// InMemoryAuditStore implements audit.Repository
type InMemoryAuditStore struct {
	*InMemoryStore[*audit.Log]
}

func NewInMemoryAuditStore() *InMemoryAuditStore {
	return &InMemoryAuditStore{InMemoryStore: NewInMemoryStore[*audit.Log]()}
}

func (s *InMemoryAuditStore) Create(ctx context.Context, l *audit.Log) error {
	cp := *l
	return s.InMemoryStore.Create(ctx, l.ID, &cp)
}

func auditFilterFn(_ context.Context, l *audit.Log, filter interface{}) bool {
	f, ok := filter.(*types.AuditLogFilter)
	if !ok || f == nil {
		return true
	}
	return (f.TenantID == "" || l.TenantID == f.TenantID) &&
		(f.Actor == "" || l.Actor == f.Actor) &&
		(f.Action == "" || l.Action == f.Action) &&
		(f.EntityType == "" || l.EntityType == f.EntityType) &&
		(f.EntityID == "" || l.EntityID == f.EntityID)
}

func (s *InMemoryAuditStore) List(ctx context.Context, filter *types.AuditLogFilter) ([]*audit.Log, int, error) {
	items, err := s.InMemoryStore.List(ctx, filter, auditFilterFn, func(i, j *audit.Log) bool {
		return i.CreatedAt.After(j.CreatedAt)
	})
	if err != nil {
		return nil, 0, err
	}
	total, err := s.InMemoryStore.Count(ctx, filter, auditFilterFn)
	return items, total, err
}

// Actions returns the recorded actions of a tenant in no particular order
func (s *InMemoryAuditStore) Actions(tenantID string) []types.AuditAction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.AuditAction
	for _, l := range s.items {
		if l.TenantID == tenantID {
			out = append(out, l.Action)
		}
	}
	return out
}
