package postgres

import (
	"context"

	"github.com/flexprice/ebilling/internal/domain/ebillingpackage"
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/logger"
	"github.com/flexprice/ebilling/internal/postgres"
	"github.com/flexprice/ebilling/internal/types"
)

type packageRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewPackageRepository(db *postgres.DB, logger *logger.Logger) ebillingpackage.Repository {
	return &packageRepository{db: db, logger: logger}
}

func (r *packageRepository) Create(ctx context.Context, p *ebillingpackage.Package) (err error) {
	span := StartRepositorySpan(ctx, "package", "create", map[string]interface{}{"name": p.Name})
	defer func() { FinishSpan(span, err) }()

	if err = p.Validate(); err != nil {
		return err
	}

	_, err = r.db.GetQuerier(ctx).NamedExecContext(ctx, `
		INSERT INTO ebilling_packages (
			id, tenant_id, name, description, included_documents, billing_cycle, overage_policy,
			overage_price, currency, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :tenant_id, :name, :description, :included_documents, :billing_cycle, :overage_policy,
			:overage_price, :currency, :status, :created_at, :updated_at, :created_by, :updated_by
		)`, p)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create package").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *packageRepository) Get(ctx context.Context, id string) (p *ebillingpackage.Package, err error) {
	span := StartRepositorySpan(ctx, "package", "get", map[string]interface{}{"package_id": id})
	defer func() { FinishSpan(span, err) }()

	var pkg ebillingpackage.Package
	err = r.db.GetQuerier(ctx).GetContext(ctx, &pkg,
		`SELECT * FROM ebilling_packages WHERE id = $1 AND status = $2`, id, types.StatusPublished)
	if err != nil {
		return nil, wrapQueryErr(err, "Package", map[string]any{"package_id": id})
	}
	return &pkg, nil
}

func (r *packageRepository) List(ctx context.Context, filter *types.PackageFilter) (pkgs []*ebillingpackage.Package, total int, err error) {
	span := StartRepositorySpan(ctx, "package", "list", nil)
	defer func() { FinishSpan(span, err) }()

	filter.QueryFilter = withDefaults(filter.QueryFilter)

	c := &conditions{}
	c.add("status = ?", types.StatusPublished)

	q := r.db.GetQuerier(ctx)
	if total, err = countRows(ctx, q, "ebilling_packages", c); err != nil {
		return nil, 0, err
	}

	query := `SELECT * FROM ebilling_packages` + c.where() +
		orderBy(filter.GetSort(), filter.GetOrder(), "created_at", "name", "included_documents") +
		paginate(filter, c)

	pkgs = []*ebillingpackage.Package{}
	if err = q.SelectContext(ctx, &pkgs, rebind(query), c.args...); err != nil {
		return nil, 0, wrapQueryErr(err, "Packages", nil)
	}
	return pkgs, total, nil
}
