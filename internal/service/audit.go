package service

import (
	"context"
	"time"

	"github.com/flexprice/ebilling/internal/api/dto"
	"github.com/flexprice/ebilling/internal/domain/audit"
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/postgres"
	"github.com/flexprice/ebilling/internal/types"
)

// AuditService records operator and system mutations
type AuditService interface {
	// Log persists the entry, then publishes it. A publish failure is logged
	// and does not fail the call.
	Log(ctx context.Context, entry dto.AuditEntry) (*audit.Log, error)
	List(ctx context.Context, filter *types.AuditLogFilter) (*dto.ListAuditLogsResponse, error)
}

type auditService struct {
	ServiceParams
}

func NewAuditService(params ServiceParams) AuditService {
	return &auditService{
		ServiceParams: params,
	}
}

func (s *auditService) Log(ctx context.Context, entry dto.AuditEntry) (*audit.Log, error) {
	if entry.TenantID == "" || entry.Action == "" {
		return nil, ierr.NewError("tenant_id and action are required").
			WithHint("Audit entries need a tenant and an action").
			Mark(ierr.ErrValidation)
	}
	if entry.Actor == "" {
		entry.Actor = types.GetActor(ctx)
	}

	l := &audit.Log{
		ID:         types.GenerateUUIDWithPrefix(types.UUID_PREFIX_AUDIT_LOG),
		TenantID:   entry.TenantID,
		Actor:      entry.Actor,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Metadata:   types.JSONMap(entry.Metadata),
		CreatedAt:  time.Now().UTC(),
	}
	if l.Metadata == nil {
		l.Metadata = types.JSONMap{}
	}

	if err := s.AuditRepo.Create(ctx, l); err != nil {
		return nil, err
	}

	s.publish(ctx, types.NewEvent(types.EventAuditLogged, l.TenantID, map[string]any{
		"audit_log_id": l.ID,
		"actor":        l.Actor,
		"action":       l.Action,
		"entity_type":  l.EntityType,
		"entity_id":    l.EntityID,
	}))
	return l, nil
}

func (s *auditService) List(ctx context.Context, filter *types.AuditLogFilter) (*dto.ListAuditLogsResponse, error) {
	if filter == nil {
		filter = types.NewAuditLogFilter()
	}
	if filter.QueryFilter == nil {
		filter.QueryFilter = types.NewDefaultQueryFilter()
	}
	if err := filter.QueryFilter.Validate(); err != nil {
		return nil, err
	}

	logs, total, err := s.AuditRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	resp := types.NewListResponse(logs, total, filter.GetLimit(), filter.GetOffset())
	return &resp, nil
}

func (s *auditService) publish(ctx context.Context, event *types.Event) {
	publishEvent(ctx, s.ServiceParams, event)
}

// publishEvent sends a domain event once the surrounding transaction, if
// any, commits. Publishing is best effort.
func publishEvent(ctx context.Context, params ServiceParams, event *types.Event) {
	if params.EventPublisher == nil {
		return
	}
	postgres.AfterCommit(ctx, func() {
		if err := params.EventPublisher.Publish(ctx, event); err != nil {
			params.Logger.Warnw("failed to publish event",
				"event_name", event.EventName,
				"tenant_id", event.TenantID,
				"error", err,
			)
		}
	})
}
