package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/flexprice/ebilling/internal/domain/document"
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/types"
	"github.com/samber/lo"
)

// InMemoryDocumentStore implements document.Repository with the same
// status guards as the SQL repository
type InMemoryDocumentStore struct {
	*InMemoryStore[*document.Document]
}

func NewInMemoryDocumentStore() *InMemoryDocumentStore {
	return &InMemoryDocumentStore{
		InMemoryStore: NewInMemoryStore[*document.Document](),
	}
}

func copyDocument(d *document.Document) *document.Document {
	cp := *d
	cp.Payload = lo.Assign(map[string]any{}, d.Payload)
	return &cp
}

func documentFilterFn(ctx context.Context, d *document.Document, filter interface{}) bool {
	f, ok := filter.(*types.DocumentFilter)
	if !ok || f == nil {
		return true
	}
	if f.TenantID != "" && d.TenantID != f.TenantID {
		return false
	}
	if len(f.Kinds) > 0 && !lo.Contains(f.Kinds, d.Kind) {
		return false
	}
	if len(f.Statuses) > 0 && !lo.Contains(f.Statuses, d.DocumentStatus) {
		return false
	}
	if f.TimeRangeFilter != nil {
		if f.StartTime != nil && d.CreatedAt.Before(*f.StartTime) {
			return false
		}
		if f.EndTime != nil && !d.CreatedAt.Before(*f.EndTime) {
			return false
		}
	}
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(d.TrackID), q) &&
			!strings.Contains(strings.ToLower(d.OrderNumber), q) &&
			!strings.Contains(strings.ToLower(d.DocumentNumber), q) {
			return false
		}
	}
	if f.OnlyWithTrackID && d.TrackID == "" {
		return false
	}
	return true
}

func documentSortFn(i, j *document.Document) bool {
	if i.CreatedAt.Equal(j.CreatedAt) {
		return i.ID > j.ID
	}
	return i.CreatedAt.After(j.CreatedAt)
}

func (s *InMemoryDocumentStore) Create(ctx context.Context, d *document.Document) error {
	return s.InMemoryStore.Create(ctx, d.ID, copyDocument(d))
}

func (s *InMemoryDocumentStore) Get(ctx context.Context, id string) (*document.Document, error) {
	d, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return copyDocument(d), nil
}

func (s *InMemoryDocumentStore) List(ctx context.Context, filter *types.DocumentFilter) ([]*document.Document, int, error) {
	docs, err := s.InMemoryStore.List(ctx, filter, documentFilterFn, documentSortFn)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.InMemoryStore.Count(ctx, filter, documentFilterFn)
	if err != nil {
		return nil, 0, err
	}
	return lo.Map(docs, func(d *document.Document, _ int) *document.Document { return copyDocument(d) }), total, nil
}

func (s *InMemoryDocumentStore) CountByStatus(ctx context.Context, tenantID string) (map[types.DocumentStatus]int, error) {
	filter := types.NewNoLimitDocumentFilter()
	filter.TenantID = tenantID
	docs, err := s.InMemoryStore.List(ctx, filter, documentFilterFn, nil)
	if err != nil {
		return nil, err
	}
	counts := make(map[types.DocumentStatus]int)
	for _, d := range docs {
		counts[d.DocumentStatus]++
	}
	return counts, nil
}

func isClaimed(d *document.Document) bool {
	return d.DocumentStatus == types.DocumentStatusSubmitting
}

func (s *InMemoryDocumentStore) Claim(ctx context.Context, id string) (*document.Document, error) {
	return s.transition(id, func(d *document.Document) bool { return d.DocumentStatus.IsSubmittable() }, func(d *document.Document) {
		d.DocumentStatus = types.DocumentStatusSubmitting
	})
}

func (s *InMemoryDocumentStore) Release(ctx context.Context, id string, status types.DocumentStatus) (*document.Document, error) {
	if !status.IsSubmittable() {
		return nil, ierr.NewError("released document must return to PENDING or RETRY").
			Mark(ierr.ErrValidation)
	}
	return s.transition(id, isClaimed, func(d *document.Document) {
		d.DocumentStatus = status
	})
}

func (s *InMemoryDocumentStore) MarkSent(ctx context.Context, id string, result document.SentResult) (*document.Document, error) {
	return s.transition(id, isClaimed, func(d *document.Document) {
		d.DocumentStatus = types.DocumentStatusSent
		d.TrackID = result.TrackID
		d.DocumentNumber = result.DocumentNumber
		d.Prefix = result.Prefix
		d.Overage = result.Overage
		d.SubmittedAt = lo.ToPtr(result.SubmittedAt)
		d.ErrorMessage = ""
	})
}

func (s *InMemoryDocumentStore) MarkFailed(ctx context.Context, id, message string) (*document.Document, error) {
	return s.transition(id, isClaimed, func(d *document.Document) {
		d.DocumentStatus = types.DocumentStatusFailed
		d.ErrorMessage = message
	})
}

func (s *InMemoryDocumentStore) MarkRetry(ctx context.Context, id string, claimedBefore time.Time) (*document.Document, error) {
	return s.transition(id, func(d *document.Document) bool { return !isClaimed(d) || d.UpdatedAt.Before(claimedBefore) }, func(d *document.Document) {
		d.DocumentStatus = types.DocumentStatusRetry
		d.RetryCount++
	})
}

func (s *InMemoryDocumentStore) SetProviderStatus(ctx context.Context, id string, status types.DocumentStatus, message string) (*document.Document, error) {
	if status != types.DocumentStatusAccepted && status != types.DocumentStatusRejected {
		return nil, ierr.NewError("provider status must be ACCEPTED or REJECTED").
			Mark(ierr.ErrValidation)
	}
	return s.transition(id, func(d *document.Document) bool { return d.DocumentStatus == types.DocumentStatusSent }, func(d *document.Document) {
		d.DocumentStatus = status
		d.ErrorMessage = message
	})
}

func (s *InMemoryDocumentStore) transition(id string, guard func(*document.Document) bool, apply func(*document.Document)) (*document.Document, error) {
	d, err := s.Mutate(id, func(d *document.Document) error {
		if d.DocumentStatus.IsTerminal() || (guard != nil && !guard(d)) {
			return ierr.NewErrorf("document %s cannot change status from %s", id, d.DocumentStatus).
				WithHintf("Document in status %s cannot be updated", d.DocumentStatus).
				Mark(ierr.ErrInvalidOperation)
		}
		apply(d)
		d.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return copyDocument(d), nil
}

// SetStatus forces a status, for arranging test fixtures
func (s *InMemoryDocumentStore) SetStatus(id string, status types.DocumentStatus) {
	_, _ = s.Mutate(id, func(d *document.Document) error {
		d.DocumentStatus = status
		return nil
	})
}

// Backdate moves the last update of a document, for aging claims in tests
func (s *InMemoryDocumentStore) Backdate(id string, updatedAt time.Time) {
	_, _ = s.Mutate(id, func(d *document.Document) error {
		d.UpdatedAt = updatedAt
		return nil
	})
}

// InMemoryDocumentFileStore implements document.FileRepository
type InMemoryDocumentFileStore struct {
	mu    sync.RWMutex
	files map[string]*document.File
}

func NewInMemoryDocumentFileStore() *InMemoryDocumentFileStore {
	return &InMemoryDocumentFileStore{files: make(map[string]*document.File)}
}

func fileKey(documentID string, kind types.DocumentFileKind) string {
	return documentID + "/" + string(kind)
}

func (s *InMemoryDocumentFileStore) Get(_ context.Context, documentID string, kind types.DocumentFileKind) (*document.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[fileKey(documentID, kind)]
	if !ok {
		return nil, ierr.NewError("document file not found").
			Mark(ierr.ErrNotFound)
	}
	cp := *f
	return &cp, nil
}

func (s *InMemoryDocumentFileStore) Create(_ context.Context, f *document.File) (*document.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fileKey(f.DocumentID, f.Kind)
	if existing, ok := s.files[key]; ok {
		cp := *existing
		return &cp, nil
	}
	cp := *f
	s.files[key] = &cp
	return f, nil
}

// Len returns the number of cached files
func (s *InMemoryDocumentFileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

func (s *InMemoryDocumentFileStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = make(map[string]*document.File)
}
