package dto

import (
	"context"
	"strings"
	"time"

	"github.com/flexprice/ebilling/internal/domain/ebillingpackage"
	"github.com/flexprice/ebilling/internal/domain/subscription"
	"github.com/flexprice/ebilling/internal/domain/usage"
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/types"
	"github.com/flexprice/ebilling/internal/validator"
	"github.com/shopspring/decimal"
)

type CreatePackageRequest struct {
	Name              string              `json:"name" validate:"required,max=255"`
	Description       string              `json:"description,omitempty"`
	IncludedDocuments int                 `json:"included_documents" validate:"min=0"`
	BillingCycle      types.BillingCycle  `json:"billing_cycle" validate:"required"`
	OveragePolicy     types.OveragePolicy `json:"overage_policy" validate:"required"`
	OveragePrice      decimal.Decimal     `json:"overage_price"`
	Currency          string              `json:"currency" validate:"required,len=3"`
}

func (r *CreatePackageRequest) Validate() error {
	return validator.ValidateRequest(r)
}

func (r *CreatePackageRequest) ToPackage(ctx context.Context) *ebillingpackage.Package {
	return &ebillingpackage.Package{
		ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PACKAGE),
		Name:              strings.TrimSpace(r.Name),
		Description:       r.Description,
		IncludedDocuments: r.IncludedDocuments,
		BillingCycle:      r.BillingCycle,
		OveragePolicy:     r.OveragePolicy,
		OveragePrice:      r.OveragePrice,
		Currency:          strings.ToUpper(r.Currency),
		BaseModel:         types.GetDefaultBaseModel(ctx),
	}
}

type PackageResponse struct {
	*ebillingpackage.Package
}

type ListPackagesResponse = types.ListResponse[*PackageResponse]

// AssignPackageRequest starts a new cycle for the tenant on the package.
// StartDate defaults to now.
type AssignPackageRequest struct {
	PackageID string     `json:"package_id" validate:"required"`
	StartDate *time.Time `json:"start_date,omitempty"`
}

func (r *AssignPackageRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type SubscriptionResponse struct {
	Subscription *subscription.Subscription `json:"subscription"`
	Period       *usage.Period              `json:"period,omitempty"`
	// Replaced is true when the tenant already had a subscription
	Replaced bool `json:"replaced"`
}

// ApplyCreditRequest adds (or removes, when negative) documents from the
// tenant's current period
type ApplyCreditRequest struct {
	DeltaDocuments int    `json:"delta_documents"`
	Reason         string `json:"reason"`
}

func (r *ApplyCreditRequest) Validate() error {
	if r.DeltaDocuments == 0 {
		return ierr.NewError("delta_documents must not be zero").
			WithHint("Credit must add or remove at least one document").
			Mark(ierr.ErrValidation)
	}
	r.Reason = strings.TrimSpace(r.Reason)
	if r.Reason == "" {
		return ierr.NewError("reason is required").
			WithHint("A reason is required for every credit").
			Mark(ierr.ErrValidation)
	}
	return nil
}

type CreditResponse struct {
	Credit *usage.Credit `json:"credit"`
	Period *usage.Period `json:"period"`
}

type ListCreditsResponse = types.ListResponse[*usage.Credit]

// UsageSummaryResponse is the tenant's consumption in the current cycle
type UsageSummaryResponse struct {
	TenantID      string                     `json:"tenant_id"`
	Metered       bool                       `json:"metered"`
	Subscription  *subscription.Subscription `json:"subscription,omitempty"`
	Period        *usage.Period              `json:"period,omitempty"`
	PercentUsed   decimal.Decimal            `json:"percent_used"`
	OverageCharge decimal.Decimal            `json:"overage_charge"`
	Currency      string                     `json:"currency,omitempty"`
}

// QuotaDecision is the outcome of a quota check before a submission
type QuotaDecision struct {
	// Metered is false for tenants without an active period
	Metered   bool                `json:"metered"`
	Allowed   bool                `json:"allowed"`
	Overage   bool                `json:"overage"`
	Remaining int                 `json:"remaining"`
	Policy    types.OveragePolicy `json:"policy,omitempty"`

	// PeriodID is the period a reservation was taken from, or the period an
	// overage submission will be counted against
	PeriodID string `json:"usage_period_id,omitempty"`
	// Reserved is set when one included document is held for the submission
	Reserved bool `json:"reserved"`
}
