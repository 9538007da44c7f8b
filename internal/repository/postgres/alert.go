package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/flexprice/ebilling/internal/domain/alert"
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/logger"
	"github.com/flexprice/ebilling/internal/postgres"
	"github.com/flexprice/ebilling/internal/types"
)

type alertRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewAlertRepository(db *postgres.DB, logger *logger.Logger) alert.Repository {
	return &alertRepository{db: db, logger: logger}
}

func (r *alertRepository) Create(ctx context.Context, a *alert.Alert) (created bool, err error) {
	span := StartRepositorySpan(ctx, "alert", "create", map[string]interface{}{"tenant_id": a.TenantID, "type": a.Type})
	defer func() { FinishSpan(span, err) }()

	res, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, `
		INSERT INTO ebilling_alerts (
			id, tenant_id, type, message, metadata, acknowledged_at, acknowledged_by, created_at
		) VALUES (
			:id, :tenant_id, :type, :message, :metadata, :acknowledged_at, :acknowledged_by, :created_at
		)
		ON CONFLICT (tenant_id, type) WHERE acknowledged_at IS NULL DO NOTHING`, a)
	if err != nil {
		return false, ierr.WithError(err).
			WithHint("Failed to raise alert").
			Mark(ierr.ErrDatabase)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	return n == 1, nil
}

func (r *alertRepository) Get(ctx context.Context, id string) (a *alert.Alert, err error) {
	span := StartRepositorySpan(ctx, "alert", "get", map[string]interface{}{"alert_id": id})
	defer func() { FinishSpan(span, err) }()

	var al alert.Alert
	if err = r.db.GetQuerier(ctx).GetContext(ctx, &al, `SELECT * FROM ebilling_alerts WHERE id = $1`, id); err != nil {
		return nil, wrapQueryErr(err, "Alert", map[string]any{"alert_id": id})
	}
	return &al, nil
}

func (r *alertRepository) List(ctx context.Context, filter *types.AlertFilter) (alerts []*alert.Alert, total int, err error) {
	span := StartRepositorySpan(ctx, "alert", "list", map[string]interface{}{"tenant_id": filter.TenantID})
	defer func() { FinishSpan(span, err) }()

	filter.QueryFilter = withDefaults(filter.QueryFilter)

	c := &conditions{}
	if filter.TenantID != "" {
		c.add("tenant_id = ?", filter.TenantID)
	}
	if err = addIn(c, "type", filter.Types); err != nil {
		return nil, 0, err
	}
	if filter.Acknowledged != nil {
		if *filter.Acknowledged {
			c.add("acknowledged_at IS NOT NULL")
		} else {
			c.add("acknowledged_at IS NULL")
		}
	}

	q := r.db.GetQuerier(ctx)
	if total, err = countRows(ctx, q, "ebilling_alerts", c); err != nil {
		return nil, 0, err
	}

	query := `SELECT * FROM ebilling_alerts` + c.where() +
		orderBy(filter.GetSort(), filter.GetOrder(), "created_at", "acknowledged_at") +
		paginate(filter, c)

	alerts = []*alert.Alert{}
	if err = q.SelectContext(ctx, &alerts, rebind(query), c.args...); err != nil {
		return nil, 0, wrapQueryErr(err, "Alerts", nil)
	}
	return alerts, total, nil
}

func (r *alertRepository) CountOpen(ctx context.Context, tenantID string) (int, error) {
	c := &conditions{}
	c.add("tenant_id = ?", tenantID)
	c.add("acknowledged_at IS NULL")
	return countRows(ctx, r.db.GetQuerier(ctx), "ebilling_alerts", c)
}

func (r *alertRepository) Acknowledge(ctx context.Context, id, actor string) (a *alert.Alert, err error) {
	span := StartRepositorySpan(ctx, "alert", "acknowledge", map[string]interface{}{"alert_id": id})
	defer func() { FinishSpan(span, err) }()

	var al alert.Alert
	err = r.db.GetQuerier(ctx).GetContext(ctx, &al, `
		UPDATE ebilling_alerts SET acknowledged_at = $1, acknowledged_by = $2
		WHERE id = $3 AND acknowledged_at IS NULL
		RETURNING *`, time.Now().UTC(), actor, id)
	if err == nil {
		return &al, nil
	}
	if !ierr.Is(err, sql.ErrNoRows) {
		return nil, wrapQueryErr(err, "Alert", map[string]any{"alert_id": id})
	}

	if _, err = r.Get(ctx, id); err != nil {
		return nil, err
	}
	return nil, ierr.NewErrorf("alert %s already acknowledged", id).
		WithHint("Alert has already been acknowledged").
		WithReportableDetails(map[string]any{"alert_id": id}).
		Mark(ierr.ErrInvalidOperation)
}
