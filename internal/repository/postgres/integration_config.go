package postgres

import (
	"context"
	"time"

	"github.com/flexprice/ebilling/internal/domain/integrationconfig"
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/logger"
	"github.com/flexprice/ebilling/internal/postgres"
)

type integrationConfigRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewIntegrationConfigRepository(db *postgres.DB, logger *logger.Logger) integrationconfig.Repository {
	return &integrationConfigRepository{db: db, logger: logger}
}

func (r *integrationConfigRepository) Get(ctx context.Context, tenantID string) (cfg *integrationconfig.Config, err error) {
	span := StartRepositorySpan(ctx, "integration_config", "get", map[string]interface{}{"tenant_id": tenantID})
	defer func() { FinishSpan(span, err) }()

	var c integrationconfig.Config
	err = r.db.GetQuerier(ctx).GetContext(ctx, &c,
		`SELECT * FROM ebilling_integration_configs WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, wrapQueryErr(err, "Integration config", map[string]any{"tenant_id": tenantID})
	}
	return &c, nil
}

func (r *integrationConfigRepository) Create(ctx context.Context, c *integrationconfig.Config) (err error) {
	span := StartRepositorySpan(ctx, "integration_config", "create", map[string]interface{}{"tenant_id": c.TenantID})
	defer func() { FinishSpan(span, err) }()

	if err = c.Validate(); err != nil {
		return err
	}

	r.logger.Debugw("creating integration config", "tenant_id", c.TenantID, "config_id", c.ID)

	_, err = r.db.GetQuerier(ctx).NamedExecContext(ctx, `
		INSERT INTO ebilling_integration_configs (
			id, tenant_id, base_url, email, encrypted_password, encrypted_token, token_expires_at,
			invoice_prefix, invoice_resolution, credit_note_prefix, credit_note_resolution,
			enabled, auto_submit, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :tenant_id, :base_url, :email, :encrypted_password, :encrypted_token, :token_expires_at,
			:invoice_prefix, :invoice_resolution, :credit_note_prefix, :credit_note_resolution,
			:enabled, :auto_submit, :status, :created_at, :updated_at, :created_by, :updated_by
		)`, c)
	if err != nil {
		if isUniqueViolation(err) {
			return ierr.WithError(err).
				WithHint("The tenant already has an integration config").
				WithReportableDetails(map[string]any{"tenant_id": c.TenantID}).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create integration config").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *integrationConfigRepository) Update(ctx context.Context, c *integrationconfig.Config) (err error) {
	span := StartRepositorySpan(ctx, "integration_config", "update", map[string]interface{}{"tenant_id": c.TenantID})
	defer func() { FinishSpan(span, err) }()

	if err = c.Validate(); err != nil {
		return err
	}

	r.logger.Debugw("updating integration config", "tenant_id", c.TenantID, "config_id", c.ID)

	res, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, `
		UPDATE ebilling_integration_configs SET
			base_url = :base_url,
			email = :email,
			encrypted_password = :encrypted_password,
			encrypted_token = :encrypted_token,
			token_expires_at = :token_expires_at,
			invoice_prefix = :invoice_prefix,
			invoice_resolution = :invoice_resolution,
			credit_note_prefix = :credit_note_prefix,
			credit_note_resolution = :credit_note_resolution,
			enabled = :enabled,
			auto_submit = :auto_submit,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE tenant_id = :tenant_id`, c)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update integration config").
			Mark(ierr.ErrDatabase)
	}
	return requireAffected(res, "Integration config", map[string]any{"tenant_id": c.TenantID})
}

func (r *integrationConfigRepository) UpdateToken(ctx context.Context, tenantID, encryptedToken string, expiresAt *time.Time) (err error) {
	span := StartRepositorySpan(ctx, "integration_config", "update_token", map[string]interface{}{"tenant_id": tenantID})
	defer func() { FinishSpan(span, err) }()

	res, err := r.db.GetQuerier(ctx).ExecContext(ctx, `
		UPDATE ebilling_integration_configs
		SET encrypted_token = $1, token_expires_at = $2, updated_at = $3
		WHERE tenant_id = $4`,
		encryptedToken, expiresAt, time.Now().UTC(), tenantID)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to store provider token").
			Mark(ierr.ErrDatabase)
	}
	return requireAffected(res, "Integration config", map[string]any{"tenant_id": tenantID})
}
