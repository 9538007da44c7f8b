package dto

import (
	"strings"
	"time"

	"github.com/flexprice/ebilling/internal/domain/integrationconfig"
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/types"
	"github.com/flexprice/ebilling/internal/validator"
)

// SaveIntegrationConfigRequest creates or updates a tenant's provider
// connection. An empty password keeps the stored one.
type SaveIntegrationConfigRequest struct {
	TenantID             string `json:"tenant_id" validate:"required"`
	BaseURL              string `json:"base_url,omitempty" validate:"omitempty,url"`
	Email                string `json:"email" validate:"required,email"`
	Password             string `json:"password,omitempty"`
	InvoicePrefix        string `json:"invoice_prefix,omitempty" validate:"omitempty,max=10"`
	InvoiceResolution    string `json:"invoice_resolution,omitempty" validate:"omitempty,max=50"`
	CreditNotePrefix     string `json:"credit_note_prefix,omitempty" validate:"omitempty,max=10"`
	CreditNoteResolution string `json:"credit_note_resolution,omitempty" validate:"omitempty,max=50"`
	Enabled              *bool  `json:"enabled,omitempty"`
	AutoSubmit           *bool  `json:"auto_submit,omitempty"`
}

func (r *SaveIntegrationConfigRequest) Validate() error {
	r.TenantID = strings.TrimSpace(r.TenantID)
	r.Email = strings.TrimSpace(r.Email)
	r.BaseURL = strings.TrimRight(strings.TrimSpace(r.BaseURL), "/")
	return validator.ValidateRequest(r)
}

// IntegrationConfigResponse never carries the password or the token
type IntegrationConfigResponse struct {
	ID                   string       `json:"id"`
	TenantID             string       `json:"tenant_id"`
	BaseURL              string       `json:"base_url"`
	Email                string       `json:"email"`
	HasPassword          bool         `json:"has_password"`
	HasToken             bool         `json:"has_token"`
	TokenExpiresAt       *time.Time   `json:"token_expires_at,omitempty"`
	InvoicePrefix        string       `json:"invoice_prefix"`
	InvoiceResolution    string       `json:"invoice_resolution"`
	CreditNotePrefix     string       `json:"credit_note_prefix"`
	CreditNoteResolution string       `json:"credit_note_resolution"`
	Enabled              bool         `json:"enabled"`
	AutoSubmit           bool         `json:"auto_submit"`
	Status               types.Status `json:"status"`
	CreatedAt            time.Time    `json:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at"`
}

func ToIntegrationConfigResponse(c *integrationconfig.Config) *IntegrationConfigResponse {
	if c == nil {
		return nil
	}
	return &IntegrationConfigResponse{
		ID:                   c.ID,
		TenantID:             c.TenantID,
		BaseURL:              c.BaseURL,
		Email:                c.Email,
		HasPassword:          c.EncryptedPassword != "",
		HasToken:             c.EncryptedToken != "",
		TokenExpiresAt:       c.TokenExpiresAt,
		InvoicePrefix:        c.InvoicePrefix,
		InvoiceResolution:    c.InvoiceResolution,
		CreditNotePrefix:     c.CreditNotePrefix,
		CreditNoteResolution: c.CreditNoteResolution,
		Enabled:              c.Enabled,
		AutoSubmit:           c.AutoSubmit,
		Status:               c.Status,
		CreatedAt:            c.CreatedAt,
		UpdatedAt:            c.UpdatedAt,
	}
}

type TestConnectionRequest struct {
	TenantID string `json:"tenant_id" validate:"required"`
}

func (r *TestConnectionRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type TestConnectionResponse struct {
	Success        bool       `json:"success"`
	Message        string     `json:"message"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
}

// IntegrationStatusResponse summarizes a tenant's integration health
type IntegrationStatusResponse struct {
	TenantID       string                       `json:"tenant_id"`
	Configured     bool                         `json:"configured"`
	Enabled        bool                         `json:"enabled"`
	AutoSubmit     bool                         `json:"auto_submit"`
	TokenValid     bool                         `json:"token_valid"`
	TokenExpiresAt *time.Time                   `json:"token_expires_at,omitempty"`
	DocumentCounts map[types.DocumentStatus]int `json:"document_counts"`
	OpenAlerts     int                          `json:"open_alerts"`
}

type LastDocumentRequest struct {
	TenantID   string `form:"tenant_id" validate:"required"`
	Resolution string `form:"resolution"`
	Prefix     string `form:"prefix"`
}

func (r *LastDocumentRequest) Validate() error {
	if strings.TrimSpace(r.TenantID) == "" {
		return ierr.NewError("tenant_id is required").
			WithHint("Tenant ID is required").
			Mark(ierr.ErrValidation)
	}
	return nil
}

type LastDocumentResponse struct {
	Number     string `json:"number"`
	Prefix     string `json:"prefix"`
	Resolution string `json:"resolution"`
}
