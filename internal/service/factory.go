package service

import (
	"github.com/flexprice/ebilling/internal/cache"
	"github.com/flexprice/ebilling/internal/config"
	"github.com/flexprice/ebilling/internal/domain/alert"
	"github.com/flexprice/ebilling/internal/domain/audit"
	"github.com/flexprice/ebilling/internal/domain/document"
	"github.com/flexprice/ebilling/internal/domain/ebillingpackage"
	"github.com/flexprice/ebilling/internal/domain/integrationconfig"
	"github.com/flexprice/ebilling/internal/domain/subscription"
	"github.com/flexprice/ebilling/internal/domain/usage"
	"github.com/flexprice/ebilling/internal/integration/matias"
	"github.com/flexprice/ebilling/internal/logger"
	"github.com/flexprice/ebilling/internal/metrics"
	"github.com/flexprice/ebilling/internal/postgres"
	"github.com/flexprice/ebilling/internal/publisher"
	"github.com/flexprice/ebilling/internal/s3"
	"github.com/flexprice/ebilling/internal/security"
	"github.com/flexprice/ebilling/internal/sentry"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger  *logger.Logger
	Config  *config.Configuration
	DB      postgres.IClient
	Vault   security.EncryptionService
	Cache   cache.Cache
	S3      s3.Service
	Metrics *metrics.Metrics
	Sentry  *sentry.Service

	// Repositories
	IntegrationConfigRepo integrationconfig.Repository
	DocumentRepo          document.Repository
	DocumentFileRepo      document.FileRepository
	PackageRepo           ebillingpackage.Repository
	SubscriptionRepo      subscription.Repository
	UsageRepo             usage.Repository
	CreditRepo            usage.CreditRepository
	AlertRepo             alert.Repository
	AuditRepo             audit.Repository

	// Publishers
	EventPublisher publisher.EventPublisher

	// Provider clients
	Matias *matias.Factory
}

// Common service params
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	db postgres.IClient,
	vault security.EncryptionService,
	cache cache.Cache,
	s3Service s3.Service,
	metrics *metrics.Metrics,
	sentry *sentry.Service,
	integrationConfigRepo integrationconfig.Repository,
	documentRepo document.Repository,
	documentFileRepo document.FileRepository,
	packageRepo ebillingpackage.Repository,
	subscriptionRepo subscription.Repository,
	usageRepo usage.Repository,
	creditRepo usage.CreditRepository,
	alertRepo alert.Repository,
	auditRepo audit.Repository,
	eventPublisher publisher.EventPublisher,
	matiasFactory *matias.Factory,
) ServiceParams {
	return ServiceParams{
		Logger:                logger,
		Config:                config,
		DB:                    db,
		Vault:                 vault,
		Cache:                 cache,
		S3:                    s3Service,
		Metrics:               metrics,
		Sentry:                sentry,
		IntegrationConfigRepo: integrationConfigRepo,
		DocumentRepo:          documentRepo,
		DocumentFileRepo:      documentFileRepo,
		PackageRepo:           packageRepo,
		SubscriptionRepo:      subscriptionRepo,
		UsageRepo:             usageRepo,
		CreditRepo:            creditRepo,
		AlertRepo:             alertRepo,
		AuditRepo:             auditRepo,
		EventPublisher:        eventPublisher,
		Matias:                matiasFactory,
	}
}
