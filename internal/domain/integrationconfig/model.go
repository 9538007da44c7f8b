package integrationconfig

import (
	"strings"
	"time"

	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/types"
)

// Config is a tenant's connection to the e-billing provider. Secrets are
// stored encrypted by the credential vault and never leave the service layer.
type Config struct {
	ID                   string     `db:"id" json:"id"`
	BaseURL              string     `db:"base_url" json:"base_url"`
	Email                string     `db:"email" json:"email"`
	EncryptedPassword    string     `db:"encrypted_password" json:"-"`
	EncryptedToken       string     `db:"encrypted_token" json:"-"`
	TokenExpiresAt       *time.Time `db:"token_expires_at" json:"token_expires_at,omitempty"`
	InvoicePrefix        string     `db:"invoice_prefix" json:"invoice_prefix"`
	InvoiceResolution    string     `db:"invoice_resolution" json:"invoice_resolution"`
	CreditNotePrefix     string     `db:"credit_note_prefix" json:"credit_note_prefix"`
	CreditNoteResolution string     `db:"credit_note_resolution" json:"credit_note_resolution"`
	Enabled              bool       `db:"enabled" json:"enabled"`
	AutoSubmit           bool       `db:"auto_submit" json:"auto_submit"`
	types.BaseModel
}

// HasCredentials reports whether the config can be used to log in
func (c *Config) HasCredentials() bool {
	return c != nil && strings.TrimSpace(c.Email) != "" && c.EncryptedPassword != ""
}

// HasValidToken reports whether a stored token exists and has not expired at now
func (c *Config) HasValidToken(now time.Time) bool {
	return c != nil &&
		c.EncryptedToken != "" &&
		c.TokenExpiresAt != nil &&
		c.TokenExpiresAt.After(now)
}

// ClearToken drops the cached token, forcing the next call to log in again
func (c *Config) ClearToken() {
	c.EncryptedToken = ""
	c.TokenExpiresAt = nil
}

func (c *Config) Validate() error {
	if c.TenantID == "" {
		return ierr.NewError("tenant_id is required").
			WithHint("Tenant ID is required").
			Mark(ierr.ErrValidation)
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		return ierr.NewError("base_url is required").
			WithHint("Provider base URL is required").
			Mark(ierr.ErrValidation)
	}
	return nil
}
