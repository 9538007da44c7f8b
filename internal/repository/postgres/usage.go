package postgres

import (
	"context"
	"time"

	"github.com/flexprice/ebilling/internal/domain/usage"
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/logger"
	"github.com/flexprice/ebilling/internal/postgres"
	"github.com/flexprice/ebilling/internal/types"
)

// activePeriodID selects the open period of a tenant containing a point in time
const activePeriodID = `
	SELECT id FROM ebilling_usage_periods
	WHERE tenant_id = ? AND closed_at IS NULL AND period_start <= ? AND period_end > ?
	ORDER BY period_start DESC
	LIMIT 1`

// bucketColumns maps usage buckets to their counter column
var bucketColumns = map[types.UsageBucket]string{
	types.UsageBucketPOS:     "used_pos",
	types.UsageBucketInvoice: "used_invoice",
	types.UsageBucketNotes:   "used_notes",
	types.UsageBucketSupport: "used_support",
}

type usageRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewUsageRepository(db *postgres.DB, logger *logger.Logger) usage.Repository {
	return &usageRepository{db: db, logger: logger}
}

func (r *usageRepository) GetActivePeriod(ctx context.Context, tenantID string, at time.Time) (p *usage.Period, err error) {
	span := StartRepositorySpan(ctx, "usage", "get_active_period", map[string]interface{}{"tenant_id": tenantID})
	defer func() { FinishSpan(span, err) }()

	var period usage.Period
	err = r.db.GetQuerier(ctx).GetContext(ctx, &period,
		rebind(`SELECT * FROM ebilling_usage_periods WHERE id = (`+activePeriodID+`)`),
		tenantID, at, at)
	if err != nil {
		return nil, wrapQueryErr(err, "Usage period", map[string]any{"tenant_id": tenantID})
	}
	return &period, nil
}

func (r *usageRepository) CreatePeriod(ctx context.Context, p *usage.Period) (stored *usage.Period, err error) {
	span := StartRepositorySpan(ctx, "usage", "create_period", map[string]interface{}{"tenant_id": p.TenantID})
	defer func() { FinishSpan(span, err) }()

	r.logger.Debugw("opening usage period",
		"tenant_id", p.TenantID,
		"period_start", p.PeriodStart,
		"period_end", p.PeriodEnd,
		"included_documents", p.IncludedDocuments,
	)

	q := r.db.GetQuerier(ctx)
	res, err := q.NamedExecContext(ctx, `
		INSERT INTO ebilling_usage_periods (
			id, tenant_id, subscription_id, period_start, period_end, included_documents,
			used_pos, used_invoice, used_notes, used_support, used_total, remaining_total,
			overage_documents, closed_at, created_at, updated_at
		) VALUES (
			:id, :tenant_id, :subscription_id, :period_start, :period_end, :included_documents,
			:used_pos, :used_invoice, :used_notes, :used_support, :used_total, :remaining_total,
			:overage_documents, :closed_at, :created_at, :updated_at
		)
		ON CONFLICT (subscription_id, period_start) DO NOTHING`, p)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to open usage period").
			Mark(ierr.ErrDatabase)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return p, nil
	}

	var existing usage.Period
	err = q.GetContext(ctx, &existing,
		`SELECT * FROM ebilling_usage_periods WHERE subscription_id = $1 AND period_start = $2`,
		p.SubscriptionID, p.PeriodStart)
	if err != nil {
		return nil, wrapQueryErr(err, "Usage period", map[string]any{"subscription_id": p.SubscriptionID})
	}
	return &existing, nil
}

func (r *usageRepository) ClosePeriods(ctx context.Context, tenantID string, at time.Time) (closed int64, err error) {
	span := StartRepositorySpan(ctx, "usage", "close_periods", map[string]interface{}{"tenant_id": tenantID})
	defer func() { FinishSpan(span, err) }()

	res, err := r.db.GetQuerier(ctx).ExecContext(ctx, `
		UPDATE ebilling_usage_periods
		SET closed_at = $1, period_end = LEAST(period_end, $1), updated_at = $1
		WHERE tenant_id = $2 AND closed_at IS NULL AND period_start < $1`, at, tenantID)
	if err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to close usage periods").
			Mark(ierr.ErrDatabase)
	}
	return res.RowsAffected()
}

func (r *usageRepository) Increment(ctx context.Context, tenantID string, bucket types.UsageBucket, at time.Time) (p *usage.Period, err error) {
	span := StartRepositorySpan(ctx, "usage", "increment", map[string]interface{}{"tenant_id": tenantID, "bucket": bucket})
	defer func() { FinishSpan(span, err) }()

	column, ok := bucketColumns[bucket]
	if !ok {
		return nil, ierr.NewErrorf("unknown usage bucket %q", bucket).
			WithHint("Invalid usage bucket").
			Mark(ierr.ErrValidation)
	}

	// SET expressions read the pre-update row, so the CASE sees the old remaining_total
	query := `
		UPDATE ebilling_usage_periods SET
			` + column + ` = ` + column + ` + 1,
			used_total = used_total + 1,
			overage_documents = overage_documents + CASE WHEN remaining_total = 0 THEN 1 ELSE 0 END,
			remaining_total = GREATEST(remaining_total - 1, 0),
			updated_at = ?
		WHERE id = (` + activePeriodID + `)
		RETURNING *`

	var period usage.Period
	err = r.db.GetQuerier(ctx).GetContext(ctx, &period, rebind(query), time.Now().UTC(), tenantID, at, at)
	if err != nil {
		return nil, wrapQueryErr(err, "Usage period", map[string]any{"tenant_id": tenantID})
	}
	return &period, nil
}

func (r *usageRepository) Reserve(ctx context.Context, periodID string) (p *usage.Period, err error) {
	span := StartRepositorySpan(ctx, "usage", "reserve", map[string]interface{}{"usage_period_id": periodID})
	defer func() { FinishSpan(span, err) }()

	var period usage.Period
	err = r.db.GetQuerier(ctx).GetContext(ctx, &period, `
		UPDATE ebilling_usage_periods
		SET remaining_total = remaining_total - 1, updated_at = $1
		WHERE id = $2 AND closed_at IS NULL AND remaining_total > 0
		RETURNING *`, time.Now().UTC(), periodID)
	if err != nil {
		return nil, wrapQueryErr(err, "Remaining document quota", map[string]any{"usage_period_id": periodID})
	}
	return &period, nil
}

func (r *usageRepository) Count(ctx context.Context, periodID string, bucket types.UsageBucket, overage bool) (p *usage.Period, err error) {
	span := StartRepositorySpan(ctx, "usage", "count", map[string]interface{}{"usage_period_id": periodID, "bucket": bucket})
	defer func() { FinishSpan(span, err) }()

	column, ok := bucketColumns[bucket]
	if !ok {
		return nil, ierr.NewErrorf("unknown usage bucket %q", bucket).
			WithHint("Invalid usage bucket").
			Mark(ierr.ErrValidation)
	}

	query := `
		UPDATE ebilling_usage_periods SET
			` + column + ` = ` + column + ` + 1,
			used_total = used_total + 1,
			overage_documents = overage_documents + CASE WHEN ? THEN 1 ELSE 0 END,
			updated_at = ?
		WHERE id = ?
		RETURNING *`

	var period usage.Period
	err = r.db.GetQuerier(ctx).GetContext(ctx, &period, rebind(query), overage, time.Now().UTC(), periodID)
	if err != nil {
		return nil, wrapQueryErr(err, "Usage period", map[string]any{"usage_period_id": periodID})
	}
	return &period, nil
}

func (r *usageRepository) AdjustRemaining(ctx context.Context, periodID string, delta int) (p *usage.Period, err error) {
	span := StartRepositorySpan(ctx, "usage", "adjust_remaining", map[string]interface{}{"usage_period_id": periodID, "delta": delta})
	defer func() { FinishSpan(span, err) }()

	var period usage.Period
	err = r.db.GetQuerier(ctx).GetContext(ctx, &period, `
		UPDATE ebilling_usage_periods
		SET remaining_total = GREATEST(remaining_total + $1, 0), updated_at = $2
		WHERE id = $3
		RETURNING *`, delta, time.Now().UTC(), periodID)
	if err != nil {
		return nil, wrapQueryErr(err, "Usage period", map[string]any{"usage_period_id": periodID})
	}
	return &period, nil
}

type creditRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewCreditRepository(db *postgres.DB, logger *logger.Logger) usage.CreditRepository {
	return &creditRepository{db: db, logger: logger}
}

func (r *creditRepository) Create(ctx context.Context, c *usage.Credit) (err error) {
	span := StartRepositorySpan(ctx, "credit", "create", map[string]interface{}{"tenant_id": c.TenantID})
	defer func() { FinishSpan(span, err) }()

	_, err = r.db.GetQuerier(ctx).NamedExecContext(ctx, `
		INSERT INTO ebilling_credits (
			id, tenant_id, usage_period_id, delta_documents, reason, issued_by, created_at
		) VALUES (
			:id, :tenant_id, :usage_period_id, :delta_documents, :reason, :issued_by, :created_at
		)`, c)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to record credit").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *creditRepository) List(ctx context.Context, filter *types.CreditFilter) (credits []*usage.Credit, total int, err error) {
	span := StartRepositorySpan(ctx, "credit", "list", map[string]interface{}{"tenant_id": filter.TenantID})
	defer func() { FinishSpan(span, err) }()

	filter.QueryFilter = withDefaults(filter.QueryFilter)

	c := &conditions{}
	if filter.TenantID != "" {
		c.add("tenant_id = ?", filter.TenantID)
	}

	q := r.db.GetQuerier(ctx)
	if total, err = countRows(ctx, q, "ebilling_credits", c); err != nil {
		return nil, 0, err
	}

	query := `SELECT * FROM ebilling_credits` + c.where() +
		orderBy(filter.GetSort(), filter.GetOrder(), "created_at", "delta_documents") +
		paginate(filter, c)

	credits = []*usage.Credit{}
	if err = q.SelectContext(ctx, &credits, rebind(query), c.args...); err != nil {
		return nil, 0, wrapQueryErr(err, "Credits", nil)
	}
	return credits, total, nil
}
