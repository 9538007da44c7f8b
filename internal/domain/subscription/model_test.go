package subscription

import (
	"testing"
	"time"

	"github.com/flexprice/ebilling/internal/domain/ebillingpackage"
	"github.com/flexprice/ebilling/internal/types"
	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCycleEnd(t *testing.T) {
	tests := []struct {
		name  string
		start time.Time
		cycle types.BillingCycle
		want  time.Time
	}{
		{"monthly", date(2024, 1, 15), types.BillingCycleMonthly, date(2024, 2, 15)},
		{"annual", date(2024, 1, 15), types.BillingCycleAnnual, date(2025, 1, 15)},
		{"monthly from month end normalizes", date(2024, 1, 31), types.BillingCycleMonthly, date(2024, 3, 2)},
		{"annual from leap day normalizes", date(2024, 2, 29), types.BillingCycleAnnual, date(2025, 3, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(CycleEnd(tt.start, tt.cycle)), "got %s", CycleEnd(tt.start, tt.cycle))
		})
	}
}

func TestFromPackageSnapshotsTerms(t *testing.T) {
	pkg := &ebillingpackage.Package{
		ID:                "epkg_1",
		IncludedDocuments: 100,
		BillingCycle:      types.BillingCycleMonthly,
		OveragePolicy:     types.OveragePolicyBlock,
		Currency:          "COP",
	}

	sub := FromPackage("tenant_1", pkg, date(2024, 1, 15))

	assert.Equal(t, "tenant_1", sub.TenantID)
	assert.Equal(t, 100, sub.IncludedDocuments)
	assert.Equal(t, types.OveragePolicyBlock, sub.OveragePolicy)
	assert.True(t, date(2024, 2, 15).Equal(sub.CycleEnd))

	pkg.IncludedDocuments = 5
	assert.Equal(t, 100, sub.IncludedDocuments)
}

func TestAdvance(t *testing.T) {
	sub := &Subscription{
		BillingCycle: types.BillingCycleMonthly,
		CycleStart:   date(2024, 1, 15),
		CycleEnd:     date(2024, 2, 15),
	}

	sub.Advance(date(2024, 4, 20))

	assert.True(t, date(2024, 4, 15).Equal(sub.CycleStart))
	assert.True(t, date(2024, 5, 15).Equal(sub.CycleEnd))
}
