package postgres

import (
	"context"
	"time"

	"github.com/flexprice/ebilling/internal/domain/subscription"
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/logger"
	"github.com/flexprice/ebilling/internal/postgres"
)

type subscriptionRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewSubscriptionRepository(db *postgres.DB, logger *logger.Logger) subscription.Repository {
	return &subscriptionRepository{db: db, logger: logger}
}

func (r *subscriptionRepository) Get(ctx context.Context, tenantID string) (s *subscription.Subscription, err error) {
	span := StartRepositorySpan(ctx, "subscription", "get", map[string]interface{}{"tenant_id": tenantID})
	defer func() { FinishSpan(span, err) }()

	var sub subscription.Subscription
	err = r.db.GetQuerier(ctx).GetContext(ctx, &sub,
		`SELECT * FROM ebilling_subscriptions WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, wrapQueryErr(err, "Subscription", map[string]any{"tenant_id": tenantID})
	}
	return &sub, nil
}

func (r *subscriptionRepository) GetForUpdate(ctx context.Context, tenantID string) (s *subscription.Subscription, err error) {
	span := StartRepositorySpan(ctx, "subscription", "get_for_update", map[string]interface{}{"tenant_id": tenantID})
	defer func() { FinishSpan(span, err) }()

	var sub subscription.Subscription
	err = r.db.GetQuerier(ctx).GetContext(ctx, &sub,
		`SELECT * FROM ebilling_subscriptions WHERE tenant_id = $1 FOR UPDATE`, tenantID)
	if err != nil {
		return nil, wrapQueryErr(err, "Subscription", map[string]any{"tenant_id": tenantID})
	}
	return &sub, nil
}

func (r *subscriptionRepository) Upsert(ctx context.Context, s *subscription.Subscription) (created bool, err error) {
	span := StartRepositorySpan(ctx, "subscription", "upsert", map[string]interface{}{"tenant_id": s.TenantID, "package_id": s.PackageID})
	defer func() { FinishSpan(span, err) }()

	query, args, err := r.db.BindNamed(`
		INSERT INTO ebilling_subscriptions (
			id, tenant_id, package_id, included_documents, billing_cycle, overage_policy,
			overage_price, currency, cycle_start, cycle_end, status,
			created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :tenant_id, :package_id, :included_documents, :billing_cycle, :overage_policy,
			:overage_price, :currency, :cycle_start, :cycle_end, :status,
			:created_at, :updated_at, :created_by, :updated_by
		)
		ON CONFLICT (tenant_id) DO UPDATE SET
			package_id = EXCLUDED.package_id,
			included_documents = EXCLUDED.included_documents,
			billing_cycle = EXCLUDED.billing_cycle,
			overage_policy = EXCLUDED.overage_policy,
			overage_price = EXCLUDED.overage_price,
			currency = EXCLUDED.currency,
			cycle_start = EXCLUDED.cycle_start,
			cycle_end = EXCLUDED.cycle_end,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at,
			updated_by = EXCLUDED.updated_by
		RETURNING id, created_at, created_by, (xmax = 0) AS inserted`, s)
	if err != nil {
		return false, ierr.WithError(err).
			WithHint("Failed to build subscription upsert").
			Mark(ierr.ErrSystem)
	}

	var row struct {
		ID        string    `db:"id"`
		CreatedAt time.Time `db:"created_at"`
		CreatedBy string    `db:"created_by"`
		Inserted  bool      `db:"inserted"`
	}
	if err = r.db.GetQuerier(ctx).GetContext(ctx, &row, query, args...); err != nil {
		return false, ierr.WithError(err).
			WithHint("Failed to store subscription").
			Mark(ierr.ErrDatabase)
	}

	s.ID = row.ID
	s.CreatedAt = row.CreatedAt
	s.CreatedBy = row.CreatedBy
	return row.Inserted, nil
}

func (r *subscriptionRepository) UpdateCycle(ctx context.Context, id string, start, end time.Time) (err error) {
	span := StartRepositorySpan(ctx, "subscription", "update_cycle", map[string]interface{}{"subscription_id": id})
	defer func() { FinishSpan(span, err) }()

	res, err := r.db.GetQuerier(ctx).ExecContext(ctx, `
		UPDATE ebilling_subscriptions SET cycle_start = $1, cycle_end = $2, updated_at = $3
		WHERE id = $4`, start, end, time.Now().UTC(), id)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to advance subscription cycle").
			Mark(ierr.ErrDatabase)
	}
	return requireAffected(res, "Subscription", map[string]any{"subscription_id": id})
}
