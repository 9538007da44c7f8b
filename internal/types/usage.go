package types

import (
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/samber/lo"
)

// UsageBucket is the per-kind counter on a usage period
type UsageBucket string

const (
	UsageBucketPOS     UsageBucket = "pos"
	UsageBucketInvoice UsageBucket = "invoice"
	UsageBucketNotes   UsageBucket = "notes"
	UsageBucketSupport UsageBucket = "support"
)

// BillingCycle is the length of a package's usage period
type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleAnnual  BillingCycle = "annual"
)

func (c BillingCycle) Validate() error {
	allowed := []BillingCycle{BillingCycleMonthly, BillingCycleAnnual}
	if !lo.Contains(allowed, c) {
		return ierr.NewError("invalid billing cycle").
			WithHintf("Billing cycle must be one of %v", allowed).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// OveragePolicy decides what happens once the included quota is exhausted
type OveragePolicy string

const (
	OveragePolicyBlock          OveragePolicy = "block"
	OveragePolicyAllowAndCharge OveragePolicy = "allow_and_charge"
	OveragePolicyAllowAndMark   OveragePolicy = "allow_and_mark"
)

func (p OveragePolicy) Validate() error {
	allowed := []OveragePolicy{OveragePolicyBlock, OveragePolicyAllowAndCharge, OveragePolicyAllowAndMark}
	if !lo.Contains(allowed, p) {
		return ierr.NewError("invalid overage policy").
			WithHintf("Overage policy must be one of %v", allowed).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// CreditFilter filters credit ledger entries
type CreditFilter struct {
	*QueryFilter
	TenantID string `json:"tenant_id,omitempty" form:"tenant_id"`
}

func NewCreditFilter() *CreditFilter {
	return &CreditFilter{QueryFilter: NewDefaultQueryFilter()}
}

// PackageFilter filters document packages
type PackageFilter struct {
	*QueryFilter
}

func NewPackageFilter() *PackageFilter {
	return &PackageFilter{QueryFilter: NewDefaultQueryFilter()}
}
