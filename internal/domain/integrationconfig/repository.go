package integrationconfig

import (
	"context"
	"time"
)

// Repository persists tenant integration configs. Configs are disabled, never deleted.
type Repository interface {
	// Get returns the tenant's config or an error marked ErrNotFound
	Get(ctx context.Context, tenantID string) (*Config, error)
	Create(ctx context.Context, c *Config) error
	Update(ctx context.Context, c *Config) error
	// UpdateToken stores a freshly issued (encrypted) token and its expiry
	UpdateToken(ctx context.Context, tenantID, encryptedToken string, expiresAt *time.Time) error
}
