package testutil

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/flexprice/ebilling/internal/domain/integrationconfig"
	ierr "github.com/flexprice/ebilling/internal/errors"
)

// InMemoryIntegrationConfigStore implements integrationconfig.Repository keyed by tenant
type InMemoryIntegrationConfigStore struct {
	*InMemoryStore[*integrationconfig.Config]
	tokenUpdates atomic.Int32
}

func NewInMemoryIntegrationConfigStore() *InMemoryIntegrationConfigStore {
	return &InMemoryIntegrationConfigStore{
		InMemoryStore: NewInMemoryStore[*integrationconfig.Config](),
	}
}

func copyConfig(c *integrationconfig.Config) *integrationconfig.Config {
	cp := *c
	if c.TokenExpiresAt != nil {
		t := *c.TokenExpiresAt
		cp.TokenExpiresAt = &t
	}
	return &cp
}

func (s *InMemoryIntegrationConfigStore) Get(ctx context.Context, tenantID string) (*integrationconfig.Config, error) {
	c, err := s.InMemoryStore.Get(ctx, tenantID)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Integration config not found").
			Mark(ierr.ErrNotFound)
	}
	return copyConfig(c), nil
}

func (s *InMemoryIntegrationConfigStore) Create(ctx context.Context, c *integrationconfig.Config) error {
	return s.InMemoryStore.Create(ctx, c.TenantID, copyConfig(c))
}

func (s *InMemoryIntegrationConfigStore) Update(ctx context.Context, c *integrationconfig.Config) error {
	return s.InMemoryStore.Update(ctx, c.TenantID, copyConfig(c))
}

func (s *InMemoryIntegrationConfigStore) UpdateToken(ctx context.Context, tenantID, encryptedToken string, expiresAt *time.Time) error {
	_, err := s.Mutate(tenantID, func(c *integrationconfig.Config) error {
		c.EncryptedToken = encryptedToken
		c.TokenExpiresAt = expiresAt
		c.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err == nil {
		s.tokenUpdates.Add(1)
	}
	return err
}

// TokenUpdates counts persisted logins
func (s *InMemoryIntegrationConfigStore) TokenUpdates() int {
	return int(s.tokenUpdates.Load())
}
