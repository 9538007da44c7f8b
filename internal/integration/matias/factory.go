package matias

import (
	"context"
	"sync"
	"time"

	"github.com/flexprice/ebilling/internal/cache"
	"github.com/flexprice/ebilling/internal/config"
	"github.com/flexprice/ebilling/internal/domain/integrationconfig"
	"github.com/flexprice/ebilling/internal/httpclient"
	"github.com/flexprice/ebilling/internal/logger"
	"github.com/flexprice/ebilling/internal/metrics"
	"github.com/flexprice/ebilling/internal/security"
	"github.com/flexprice/ebilling/internal/sentry"
	"github.com/flexprice/ebilling/internal/types"
	"golang.org/x/sync/singleflight"
)

// Factory hands out per-tenant provider clients. Clients keep their token in
// memory so they are memoized in the cache until the tenant config changes.
type Factory struct {
	config     *config.Configuration
	logger     *logger.Logger
	repo       integrationconfig.Repository
	vault      security.EncryptionService
	cache      cache.Cache
	httpClient httpclient.Client
	metrics    *metrics.Metrics
	sentry     *sentry.Service

	// one login in flight per tenant, shared by every client instance
	logins singleflight.Group

	platformOnce   sync.Once
	platformClient Client
}

// NewFactory creates a new provider client factory
func NewFactory(
	cfg *config.Configuration,
	logger *logger.Logger,
	repo integrationconfig.Repository,
	vault security.EncryptionService,
	cache cache.Cache,
	metrics *metrics.Metrics,
	sentry *sentry.Service,
) *Factory {
	transport := httpclient.NewDefaultClient(httpclient.ClientConfig{
		Timeout:      cfg.Matias.RequestTimeout,
		RetryMax:     cfg.Matias.RetryMax,
		RetryWaitMin: cfg.Matias.RetryWaitMin,
		RetryWaitMax: cfg.Matias.RetryWaitMax,
	}, logger)

	return &Factory{
		config: cfg,
		logger: logger,
		repo:   repo,
		vault:  vault,
		cache:  cache,
		httpClient: httpclient.NewBreakerClient(transport, httpclient.BreakerConfig{
			ConsecutiveFailures: cfg.Matias.BreakerFailures,
			OpenTimeout:         cfg.Matias.BreakerTimeout,
		}, logger),
		metrics: metrics,
		sentry:  sentry,
	}
}

// ForTenant returns the memoized client of a tenant
func (f *Factory) ForTenant(ctx context.Context, tenantID string) Client {
	key := cache.GenerateKey(cache.PrefixMatiasClient, tenantID)
	if cached, ok := f.cache.Get(ctx, key); ok {
		if c, ok := cached.(Client); ok {
			return c
		}
	}

	c := f.newClient(&tenantStore{tenantID: tenantID, repo: f.repo})
	f.cache.Set(ctx, key, c, f.config.Matias.ClientCacheTTL)
	return c
}

// Invalidate drops the memoized client so the next call reloads the config
func (f *Factory) Invalidate(ctx context.Context, tenantID string) {
	f.cache.Delete(ctx, cache.GenerateKey(cache.PrefixMatiasClient, tenantID))
}

// Platform returns the client logging in with the platform-wide account, used
// for connectivity smoke tests. Its token lives in memory only.
func (f *Factory) Platform() Client {
	f.platformOnce.Do(func() {
		f.platformClient = f.newClient(&platformStore{cfg: f.config.Matias})
	})
	return f.platformClient
}

func (f *Factory) newClient(store credentialStore) *client {
	timeout := f.config.Matias.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ttl := f.config.Matias.DefaultTokenTTL
	if ttl <= 0 {
		ttl = 365 * 24 * time.Hour
	}
	return &client{
		store:      store,
		vault:      f.vault,
		httpClient: f.httpClient,
		logins:     &f.logins,
		metrics:    f.metrics,
		sentry:     f.sentry,
		logger:     f.logger,
		timeout:    timeout,
		defaultTTL: ttl,
	}
}

// tenantStore reads the tenant's integration config and persists issued tokens on it
type tenantStore struct {
	tenantID string
	repo     integrationconfig.Repository
}

func (s *tenantStore) key() string {
	return s.tenantID
}

func (s *tenantStore) load(ctx context.Context) (*integrationconfig.Config, error) {
	return s.repo.Get(ctx, s.tenantID)
}

func (s *tenantStore) saveToken(ctx context.Context, encryptedToken string, expiresAt time.Time) error {
	return s.repo.UpdateToken(ctx, s.tenantID, encryptedToken, &expiresAt)
}

// platformStore serves the platform account from configuration
type platformStore struct {
	cfg config.MatiasConfig
}

func (s *platformStore) key() string {
	return "platform"
}

func (s *platformStore) load(_ context.Context) (*integrationconfig.Config, error) {
	return &integrationconfig.Config{
		BaseURL:           s.cfg.BaseURL,
		Email:             s.cfg.PlatformEmail,
		EncryptedPassword: s.cfg.PlatformPassword,
		Enabled:           true,
		BaseModel:         types.BaseModel{Status: types.StatusPublished},
	}, nil
}

func (s *platformStore) saveToken(context.Context, string, time.Time) error {
	return nil
}
