package postgres

import (
	"context"

	"github.com/flexprice/ebilling/internal/domain/audit"
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/logger"
	"github.com/flexprice/ebilling/internal/postgres"
	"github.com/flexprice/ebilling/internal/types"
)

type auditRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewAuditRepository(db *postgres.DB, logger *logger.Logger) audit.Repository {
	return &auditRepository{db: db, logger: logger}
}

func (r *auditRepository) Create(ctx context.Context, l *audit.Log) (err error) {
	span := StartRepositorySpan(ctx, "audit", "create", map[string]interface{}{"tenant_id": l.TenantID, "action": l.Action})
	defer func() { FinishSpan(span, err) }()

	_, err = r.db.GetQuerier(ctx).NamedExecContext(ctx, `
		INSERT INTO ebilling_audit_logs (
			id, tenant_id, actor, action, entity_type, entity_id, metadata, created_at
		) VALUES (
			:id, :tenant_id, :actor, :action, :entity_type, :entity_id, :metadata, :created_at
		)`, l)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to write audit log").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *auditRepository) List(ctx context.Context, filter *types.AuditLogFilter) (logs []*audit.Log, total int, err error) {
	span := StartRepositorySpan(ctx, "audit", "list", map[string]interface{}{"tenant_id": filter.TenantID})
	defer func() { FinishSpan(span, err) }()

	filter.QueryFilter = withDefaults(filter.QueryFilter)

	c := &conditions{}
	if filter.TenantID != "" {
		c.add("tenant_id = ?", filter.TenantID)
	}
	if filter.Actor != "" {
		c.add("actor = ?", filter.Actor)
	}
	if filter.Action != "" {
		c.add("action = ?", filter.Action)
	}
	if filter.EntityType != "" {
		c.add("entity_type = ?", filter.EntityType)
	}
	if filter.EntityID != "" {
		c.add("entity_id = ?", filter.EntityID)
	}

	q := r.db.GetQuerier(ctx)
	if total, err = countRows(ctx, q, "ebilling_audit_logs", c); err != nil {
		return nil, 0, err
	}

	query := `SELECT * FROM ebilling_audit_logs` + c.where() +
		orderBy(filter.GetSort(), filter.GetOrder(), "created_at") +
		paginate(filter, c)

	logs = []*audit.Log{}
	if err = q.SelectContext(ctx, &logs, rebind(query), c.args...); err != nil {
		return nil, 0, wrapQueryErr(err, "Audit logs", nil)
	}
	return logs, total, nil
}
