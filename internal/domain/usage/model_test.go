package usage

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNewPeriodSeedsRemaining(t *testing.T) {
	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	p := NewPeriod("tenant_1", "esub_1", start, start.AddDate(0, 1, 0), 100)

	assert.Equal(t, 100, p.RemainingTotal)
	assert.Equal(t, 0, p.UsedTotal)
	assert.NotEmpty(t, p.ID)
}

func TestPercentUsed(t *testing.T) {
	tests := []struct {
		name     string
		included int
		used     int
		want     decimal.Decimal
	}{
		{"empty", 100, 0, decimal.Zero},
		{"seventy", 100, 70, decimal.NewFromInt(70)},
		{"fraction", 3, 1, decimal.NewFromInt(1).Div(decimal.NewFromInt(3)).Mul(decimal.NewFromInt(100))},
		{"over", 10, 12, decimal.NewFromInt(120)},
		{"nothing included unused", 0, 0, decimal.Zero},
		{"nothing included used", 0, 1, decimal.NewFromInt(100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Period{IncludedDocuments: tt.included, UsedTotal: tt.used}
			assert.True(t, tt.want.Equal(p.PercentUsed()), "got %s", p.PercentUsed())
		})
	}
}
