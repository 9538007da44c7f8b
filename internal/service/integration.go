package service

import (
	"context"
	"time"

	"github.com/flexprice/ebilling/internal/api/dto"
	"github.com/flexprice/ebilling/internal/domain/integrationconfig"
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/types"
	"github.com/samber/lo"
)

const defaultTestTimeout = 15 * time.Second

// IntegrationService administers tenant connections to the e-billing provider
type IntegrationService interface {
	GetConfig(ctx context.Context, tenantID string) (*dto.IntegrationConfigResponse, error)
	// SaveConfig creates or updates the tenant config. Changing the provider
	// URL, email or password drops the cached token.
	SaveConfig(ctx context.Context, req *dto.SaveIntegrationConfigRequest) (*dto.IntegrationConfigResponse, error)
	GetIntegrationStatus(ctx context.Context, tenantID string) (*dto.IntegrationStatusResponse, error)
	// TestConnection performs a real login with the tenant credentials
	TestConnection(ctx context.Context, req *dto.TestConnectionRequest) (*dto.TestConnectionResponse, error)
	// TestPlatformConnection logs in with the platform-wide account
	TestPlatformConnection(ctx context.Context) (*dto.TestConnectionResponse, error)
	GetLastDocumentNumber(ctx context.Context, req *dto.LastDocumentRequest) (*dto.LastDocumentResponse, error)
}

type integrationService struct {
	ServiceParams
}

func NewIntegrationService(params ServiceParams) IntegrationService {
	return &integrationService{
		ServiceParams: params,
	}
}

func (s *integrationService) GetConfig(ctx context.Context, tenantID string) (*dto.IntegrationConfigResponse, error) {
	if tenantID == "" {
		return nil, ierr.NewError("tenant_id is required").
			WithHint("Tenant ID is required").
			Mark(ierr.ErrValidation)
	}

	cfg, err := s.IntegrationConfigRepo.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return dto.ToIntegrationConfigResponse(cfg), nil
}

func (s *integrationService) SaveConfig(ctx context.Context, req *dto.SaveIntegrationConfigRequest) (*dto.IntegrationConfigResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	cfg, err := s.IntegrationConfigRepo.Get(ctx, req.TenantID)
	if err != nil && !ierr.IsNotFound(err) {
		return nil, err
	}
	isNew := cfg == nil

	if isNew {
		if req.Password == "" {
			return nil, ierr.NewError("password is required").
				WithHint("A password is required when configuring the integration").
				Mark(ierr.ErrValidation)
		}
		cfg = &integrationconfig.Config{
			ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INTEGRATION_CONFIG),
			BaseURL:   s.Config.Matias.BaseURL,
			Enabled:   true,
			BaseModel: types.GetDefaultBaseModel(ctx),
		}
		cfg.TenantID = req.TenantID
	}

	credentialsChanged := isNew || req.Email != cfg.Email
	cfg.Email = req.Email
	if req.BaseURL != "" && req.BaseURL != cfg.BaseURL {
		cfg.BaseURL = req.BaseURL
		credentialsChanged = true
	}
	if req.Password != "" && !s.samePassword(cfg, req.Password) {
		encrypted, err := s.Vault.Encrypt(req.Password)
		if err != nil {
			return nil, err
		}
		cfg.EncryptedPassword = encrypted
		credentialsChanged = true
	}

	cfg.InvoicePrefix = lo.Ternary(req.InvoicePrefix != "", req.InvoicePrefix, cfg.InvoicePrefix)
	cfg.InvoiceResolution = lo.Ternary(req.InvoiceResolution != "", req.InvoiceResolution, cfg.InvoiceResolution)
	cfg.CreditNotePrefix = lo.Ternary(req.CreditNotePrefix != "", req.CreditNotePrefix, cfg.CreditNotePrefix)
	cfg.CreditNoteResolution = lo.Ternary(req.CreditNoteResolution != "", req.CreditNoteResolution, cfg.CreditNoteResolution)
	if req.Enabled != nil {
		cfg.Enabled = *req.Enabled
	}
	if req.AutoSubmit != nil {
		cfg.AutoSubmit = *req.AutoSubmit
	}

	if credentialsChanged {
		cfg.ClearToken()
	}
	cfg.UpdatedAt = time.Now().UTC()
	cfg.UpdatedBy = types.GetUserID(ctx)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	action := types.AuditActionConfigUpdate
	if isNew {
		action = types.AuditActionConfigCreate
		err = s.IntegrationConfigRepo.Create(ctx, cfg)
	} else {
		err = s.IntegrationConfigRepo.Update(ctx, cfg)
	}
	if err != nil {
		return nil, err
	}

	s.Matias.Invalidate(ctx, cfg.TenantID)

	s.Logger.Infow("integration config saved",
		"tenant_id", cfg.TenantID,
		"created", isNew,
		"credentials_changed", credentialsChanged,
		"enabled", cfg.Enabled,
	)

	if _, err := NewAuditService(s.ServiceParams).Log(ctx, dto.AuditEntry{
		TenantID:   cfg.TenantID,
		Action:     action,
		EntityType: types.AuditEntityIntegrationConfig,
		EntityID:   cfg.ID,
		Metadata: map[string]any{
			"credentials_changed": credentialsChanged,
			"enabled":             cfg.Enabled,
			"auto_submit":         cfg.AutoSubmit,
		},
	}); err != nil {
		return nil, err
	}

	return dto.ToIntegrationConfigResponse(cfg), nil
}

func (s *integrationService) samePassword(cfg *integrationconfig.Config, password string) bool {
	if cfg.EncryptedPassword == "" {
		return false
	}
	current, err := s.Vault.Decrypt(cfg.EncryptedPassword)
	return err == nil && current == password
}

func (s *integrationService) GetIntegrationStatus(ctx context.Context, tenantID string) (*dto.IntegrationStatusResponse, error) {
	if tenantID == "" {
		return nil, ierr.NewError("tenant_id is required").
			WithHint("Tenant ID is required").
			Mark(ierr.ErrValidation)
	}

	resp := &dto.IntegrationStatusResponse{TenantID: tenantID}

	cfg, err := s.IntegrationConfigRepo.Get(ctx, tenantID)
	switch {
	case err == nil:
		resp.Configured = cfg.HasCredentials()
		resp.Enabled = cfg.Enabled
		resp.AutoSubmit = cfg.AutoSubmit
		resp.TokenValid = cfg.HasValidToken(time.Now())
		resp.TokenExpiresAt = cfg.TokenExpiresAt
	case !ierr.IsNotFound(err):
		return nil, err
	}

	counts, err := s.DocumentRepo.CountByStatus(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	resp.DocumentCounts = counts

	filter := types.NewAlertFilter()
	filter.Limit = lo.ToPtr(1)
	filter.TenantID = tenantID
	filter.Acknowledged = lo.ToPtr(false)
	_, open, err := s.AlertRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	resp.OpenAlerts = open

	return resp, nil
}

func (s *integrationService) TestConnection(ctx context.Context, req *dto.TestConnectionRequest) (*dto.TestConnectionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	cfg, err := s.IntegrationConfigRepo.Get(ctx, req.TenantID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return &dto.TestConnectionResponse{Success: false, Message: "not configured"}, nil
		}
		return nil, err
	}
	if !cfg.Enabled {
		return &dto.TestConnectionResponse{Success: false, Message: "integration disabled"}, nil
	}

	client := s.Matias.ForTenant(ctx, req.TenantID)
	resp := s.authenticate(ctx, func(ctx context.Context) error {
		return client.Authenticate(ctx)
	})
	if resp.Success {
		resp.TokenExpiresAt = lo.ToPtr(client.TokenExpiresAt())
	} else {
		raiseAuthFailed(ctx, s.ServiceParams, req.TenantID, resp.Message)
	}

	s.Logger.Infow("connection test finished",
		"tenant_id", req.TenantID,
		"success", resp.Success,
	)

	if _, err := NewAuditService(s.ServiceParams).Log(ctx, dto.AuditEntry{
		TenantID:   req.TenantID,
		Action:     types.AuditActionTestConnection,
		EntityType: types.AuditEntityIntegrationConfig,
		EntityID:   cfg.ID,
		Metadata: map[string]any{
			"success": resp.Success,
			"message": resp.Message,
		},
	}); err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *integrationService) TestPlatformConnection(ctx context.Context) (*dto.TestConnectionResponse, error) {
	client := s.Matias.Platform()
	resp := s.authenticate(ctx, client.Authenticate)
	if resp.Success {
		resp.TokenExpiresAt = lo.ToPtr(client.TokenExpiresAt())
	}
	s.Logger.Infow("platform connection test finished", "success", resp.Success)
	return resp, nil
}

// authenticate runs a login bounded by the test timeout
func (s *integrationService) authenticate(ctx context.Context, login func(context.Context) error) *dto.TestConnectionResponse {
	timeout := lo.Ternary(s.Config.Matias.TestTimeout > 0, s.Config.Matias.TestTimeout, defaultTestTimeout)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := login(ctx); err != nil {
		message := err.Error()
		if hints := ierr.GetHints(err); len(hints) > 0 {
			message = hints[0]
		}
		return &dto.TestConnectionResponse{Success: false, Message: message}
	}
	return &dto.TestConnectionResponse{Success: true, Message: "connection successful"}
}

func (s *integrationService) GetLastDocumentNumber(ctx context.Context, req *dto.LastDocumentRequest) (*dto.LastDocumentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	resolution, prefix := req.Resolution, req.Prefix
	if resolution == "" || prefix == "" {
		if cfg, err := s.IntegrationConfigRepo.Get(ctx, req.TenantID); err == nil {
			resolution = lo.Ternary(resolution != "", resolution, cfg.InvoiceResolution)
			prefix = lo.Ternary(prefix != "", prefix, cfg.InvoicePrefix)
		}
	}

	last, err := s.Matias.ForTenant(ctx, req.TenantID).GetLastDocument(ctx, resolution, prefix)
	if err != nil {
		return nil, err
	}
	return &dto.LastDocumentResponse{
		Number:     last.Number,
		Prefix:     last.Prefix,
		Resolution: last.Resolution,
	}, nil
}
