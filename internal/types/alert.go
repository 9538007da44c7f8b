package types

import (
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/samber/lo"
)

// AlertType is the condition an e-billing alert reports
type AlertType string

const (
	AlertTypeThreshold70  AlertType = "THRESHOLD_70"
	AlertTypeThreshold90  AlertType = "THRESHOLD_90"
	AlertTypeLimitReached AlertType = "LIMIT_REACHED"
	AlertTypeAuthFailed   AlertType = "AUTH_FAILED"
)

func (t AlertType) Validate() error {
	allowed := []AlertType{AlertTypeThreshold70, AlertTypeThreshold90, AlertTypeLimitReached, AlertTypeAuthFailed}
	if !lo.Contains(allowed, t) {
		return ierr.NewError("invalid alert type").
			WithHintf("Alert type must be one of %v", allowed).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// AlertFilter filters alerts
type AlertFilter struct {
	*QueryFilter
	TenantID     string      `json:"tenant_id,omitempty" form:"tenant_id"`
	Types        []AlertType `json:"types,omitempty" form:"type"`
	Acknowledged *bool       `json:"acknowledged,omitempty" form:"acknowledged"`
}

func NewAlertFilter() *AlertFilter {
	return &AlertFilter{QueryFilter: NewDefaultQueryFilter()}
}
