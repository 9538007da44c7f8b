package usage

import (
	"time"

	"github.com/flexprice/ebilling/internal/types"
	"github.com/shopspring/decimal"
)

// Period is a tenant's document counter for one billing cycle
type Period struct {
	ID                string     `db:"id" json:"id"`
	TenantID          string     `db:"tenant_id" json:"tenant_id"`
	SubscriptionID    string     `db:"subscription_id" json:"subscription_id"`
	PeriodStart       time.Time  `db:"period_start" json:"period_start"`
	PeriodEnd         time.Time  `db:"period_end" json:"period_end"`
	IncludedDocuments int        `db:"included_documents" json:"included_documents"`
	UsedPOS           int        `db:"used_pos" json:"used_pos"`
	UsedInvoice       int        `db:"used_invoice" json:"used_invoice"`
	UsedNotes         int        `db:"used_notes" json:"used_notes"`
	UsedSupport       int        `db:"used_support" json:"used_support"`
	UsedTotal         int        `db:"used_total" json:"used_total"`
	RemainingTotal    int        `db:"remaining_total" json:"remaining_total"`
	OverageDocuments  int        `db:"overage_documents" json:"overage_documents"`
	ClosedAt          *time.Time `db:"closed_at" json:"closed_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// NewPeriod opens a period seeded with the full included amount
func NewPeriod(tenantID, subscriptionID string, start, end time.Time, included int) *Period {
	now := time.Now().UTC()
	return &Period{
		ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_USAGE_PERIOD),
		TenantID:          tenantID,
		SubscriptionID:    subscriptionID,
		PeriodStart:       start.UTC(),
		PeriodEnd:         end.UTC(),
		IncludedDocuments: included,
		RemainingTotal:    included,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// PercentUsed returns used/included as a percentage. A period with nothing
// included is fully used as soon as one document is counted.
func (p *Period) PercentUsed() decimal.Decimal {
	if p.IncludedDocuments <= 0 {
		if p.UsedTotal > 0 {
			return decimal.NewFromInt(100)
		}
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(p.UsedTotal)).
		Div(decimal.NewFromInt(int64(p.IncludedDocuments))).
		Mul(decimal.NewFromInt(100))
}

// Bucket returns the counter for a usage bucket
func (p *Period) Bucket(b types.UsageBucket) int {
	switch b {
	case types.UsageBucketPOS:
		return p.UsedPOS
	case types.UsageBucketInvoice:
		return p.UsedInvoice
	case types.UsageBucketNotes:
		return p.UsedNotes
	default:
		return p.UsedSupport
	}
}

// Credit is an immutable manual adjustment of a period's remaining documents
type Credit struct {
	ID             string    `db:"id" json:"id"`
	TenantID       string    `db:"tenant_id" json:"tenant_id"`
	UsagePeriodID  string    `db:"usage_period_id" json:"usage_period_id"`
	DeltaDocuments int       `db:"delta_documents" json:"delta_documents"`
	Reason         string    `db:"reason" json:"reason"`
	IssuedBy       string    `db:"issued_by" json:"issued_by"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
