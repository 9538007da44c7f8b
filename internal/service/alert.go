package service

import (
	"context"
	"time"

	"github.com/flexprice/ebilling/internal/api/dto"
	"github.com/flexprice/ebilling/internal/domain/alert"
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/types"
)

// AlertService manages quota and provider-access alerts
type AlertService interface {
	// Raise creates the alert unless an unacknowledged one of the same tenant
	// and type is open. raised is false when it was deduplicated.
	Raise(ctx context.Context, req dto.RaiseAlertRequest) (a *alert.Alert, raised bool, err error)
	List(ctx context.Context, filter *types.AlertFilter) (*dto.ListAlertsResponse, error)
	// Acknowledge closes an open alert exactly once
	Acknowledge(ctx context.Context, id string) (*alert.Alert, error)
}

type alertService struct {
	ServiceParams
}

func NewAlertService(params ServiceParams) AlertService {
	return &alertService{
		ServiceParams: params,
	}
}

func (s *alertService) Raise(ctx context.Context, req dto.RaiseAlertRequest) (*alert.Alert, bool, error) {
	if req.TenantID == "" {
		return nil, false, ierr.NewError("tenant_id is required").
			WithHint("Alerts need a tenant").
			Mark(ierr.ErrValidation)
	}
	if err := req.Type.Validate(); err != nil {
		return nil, false, err
	}

	a := &alert.Alert{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ALERT),
		TenantID:  req.TenantID,
		Type:      req.Type,
		Message:   req.Message,
		Metadata:  types.JSONMap(req.Metadata),
		CreatedAt: time.Now().UTC(),
	}
	if a.Metadata == nil {
		a.Metadata = types.JSONMap{}
	}

	created, err := s.AlertRepo.Create(ctx, a)
	if err != nil {
		return nil, false, err
	}
	if !created {
		s.Logger.Debugw("alert already open, skipping",
			"tenant_id", req.TenantID,
			"type", req.Type,
		)
		return nil, false, nil
	}

	s.Logger.Infow("alert raised",
		"alert_id", a.ID,
		"tenant_id", a.TenantID,
		"type", a.Type,
	)
	s.Metrics.ObserveAlert(string(a.Type))
	publishEvent(ctx, s.ServiceParams, types.NewEvent(types.EventAlertRaised, a.TenantID, map[string]any{
		"alert_id": a.ID,
		"type":     a.Type,
		"message":  a.Message,
		"metadata": a.Metadata,
	}))
	return a, true, nil
}

func (s *alertService) List(ctx context.Context, filter *types.AlertFilter) (*dto.ListAlertsResponse, error) {
	if filter == nil {
		filter = types.NewAlertFilter()
	}
	if filter.QueryFilter == nil {
		filter.QueryFilter = types.NewDefaultQueryFilter()
	}
	if err := filter.QueryFilter.Validate(); err != nil {
		return nil, err
	}
	for _, t := range filter.Types {
		if err := t.Validate(); err != nil {
			return nil, err
		}
	}

	alerts, total, err := s.AlertRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	resp := types.NewListResponse(alerts, total, filter.GetLimit(), filter.GetOffset())
	return &resp, nil
}

func (s *alertService) Acknowledge(ctx context.Context, id string) (*alert.Alert, error) {
	if id == "" {
		return nil, ierr.NewError("alert id is required").
			WithHint("Alert ID is required").
			Mark(ierr.ErrValidation)
	}

	actor := types.GetActor(ctx)
	a, err := s.AlertRepo.Acknowledge(ctx, id, actor)
	if err != nil {
		return nil, err
	}

	if _, err := NewAuditService(s.ServiceParams).Log(ctx, dto.AuditEntry{
		TenantID:   a.TenantID,
		Actor:      actor,
		Action:     types.AuditActionAlertAcknowledge,
		EntityType: types.AuditEntityAlert,
		EntityID:   a.ID,
		Metadata:   map[string]any{"type": a.Type},
	}); err != nil {
		return nil, err
	}
	return a, nil
}
