package subscription

import (
	"time"

	"github.com/flexprice/ebilling/internal/domain/ebillingpackage"
	"github.com/flexprice/ebilling/internal/types"
	"github.com/shopspring/decimal"
)

// Subscription binds a tenant to a package. The package terms are
// snapshotted so later package edits do not change a running cycle.
type Subscription struct {
	ID                string              `db:"id" json:"id"`
	PackageID         string              `db:"package_id" json:"package_id"`
	IncludedDocuments int                 `db:"included_documents" json:"included_documents"`
	BillingCycle      types.BillingCycle  `db:"billing_cycle" json:"billing_cycle"`
	OveragePolicy     types.OveragePolicy `db:"overage_policy" json:"overage_policy"`
	OveragePrice      decimal.Decimal     `db:"overage_price" json:"overage_price"`
	Currency          string              `db:"currency" json:"currency"`
	CycleStart        time.Time           `db:"cycle_start" json:"cycle_start"`
	CycleEnd          time.Time           `db:"cycle_end" json:"cycle_end"`
	types.BaseModel
}

// CycleEnd returns the end of a cycle of the given length starting at start.
// Month arithmetic follows time.AddDate, so Jan 31 + 1 month is Mar 2 (or 3).
func CycleEnd(start time.Time, cycle types.BillingCycle) time.Time {
	if cycle == types.BillingCycleAnnual {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}

// FromPackage builds a subscription snapshot of pkg starting at start
func FromPackage(tenantID string, pkg *ebillingpackage.Package, start time.Time) *Subscription {
	start = start.UTC()
	return &Subscription{
		ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		PackageID:         pkg.ID,
		IncludedDocuments: pkg.IncludedDocuments,
		BillingCycle:      pkg.BillingCycle,
		OveragePolicy:     pkg.OveragePolicy,
		OveragePrice:      pkg.OveragePrice,
		Currency:          pkg.Currency,
		CycleStart:        start,
		CycleEnd:          CycleEnd(start, pkg.BillingCycle),
		BaseModel: types.BaseModel{
			TenantID:  tenantID,
			Status:    types.StatusPublished,
			CreatedAt: start,
			UpdatedAt: start,
		},
	}
}

// Advance moves the cycle forward until it contains at
func (s *Subscription) Advance(at time.Time) {
	for !s.CycleEnd.After(at) {
		s.CycleStart = s.CycleEnd
		s.CycleEnd = CycleEnd(s.CycleStart, s.BillingCycle)
	}
}
