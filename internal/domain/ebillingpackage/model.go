package ebillingpackage

import (
	"strings"

	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/types"
	"github.com/shopspring/decimal"
)

// Package is a sellable bundle of fiscal documents per billing cycle
type Package struct {
	ID                string              `db:"id" json:"id"`
	Name              string              `db:"name" json:"name"`
	Description       string              `db:"description" json:"description"`
	IncludedDocuments int                 `db:"included_documents" json:"included_documents"`
	BillingCycle      types.BillingCycle  `db:"billing_cycle" json:"billing_cycle"`
	OveragePolicy     types.OveragePolicy `db:"overage_policy" json:"overage_policy"`
	OveragePrice      decimal.Decimal     `db:"overage_price" json:"overage_price"`
	Currency          string              `db:"currency" json:"currency"`
	types.BaseModel
}

func (p *Package) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ierr.NewError("name is required").
			WithHint("Package name is required").
			Mark(ierr.ErrValidation)
	}
	if p.IncludedDocuments < 0 {
		return ierr.NewError("included_documents must be non-negative").
			WithHint("Included documents cannot be negative").
			WithReportableDetails(map[string]any{
				"included_documents": p.IncludedDocuments,
			}).
			Mark(ierr.ErrValidation)
	}
	if err := p.BillingCycle.Validate(); err != nil {
		return err
	}
	if err := p.OveragePolicy.Validate(); err != nil {
		return err
	}
	if p.OveragePrice.IsNegative() {
		return ierr.NewError("overage_price must be non-negative").
			WithHint("Overage price cannot be negative").
			Mark(ierr.ErrValidation)
	}
	return nil
}
