package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/flexprice/ebilling/internal/cache"
	"github.com/flexprice/ebilling/internal/config"
	"github.com/flexprice/ebilling/internal/integration/matias"
	"github.com/flexprice/ebilling/internal/logger"
	"github.com/flexprice/ebilling/internal/metrics"
	"github.com/flexprice/ebilling/internal/postgres"
	"github.com/flexprice/ebilling/internal/publisher"
	"github.com/flexprice/ebilling/internal/pubsub/memory"
	"github.com/flexprice/ebilling/internal/security"
	"github.com/flexprice/ebilling/internal/types"
	"github.com/flexprice/ebilling/internal/validator"
	"github.com/stretchr/testify/suite"
)

const (
	TestProviderEmail    = "ops@tenant.test"
	TestProviderPassword = "s3cret"
)

// Stores holds all the repositories for testing
type Stores struct {
	IntegrationConfigRepo *InMemoryIntegrationConfigStore
	DocumentRepo          *InMemoryDocumentStore
	DocumentFileRepo      *InMemoryDocumentFileStore
	PackageRepo           *InMemoryPackageStore
	SubscriptionRepo      *InMemorySubscriptionStore
	UsageRepo             *InMemoryUsageStore
	CreditRepo            *InMemoryCreditStore
	AlertRepo             *InMemoryAlertStore
	AuditRepo             *InMemoryAuditStore
}

// RecordingPublisher publishes through the in-memory pubsub and keeps every event
type RecordingPublisher struct {
	publisher.EventPublisher

	mu     sync.Mutex
	events []*types.Event
}

func (p *RecordingPublisher) Publish(ctx context.Context, event *types.Event) error {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	return p.EventPublisher.Publish(ctx, event)
}

// Events returns the published events with the given name
func (p *RecordingPublisher) Events(name types.EventName) []*types.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []*types.Event
	for _, e := range p.events {
		if e.EventName == name {
			out = append(out, e)
		}
	}
	return out
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx       context.Context
	stores    Stores
	publisher *RecordingPublisher
	db        postgres.IClient
	logger    *logger.Logger
	config    *config.Configuration
	vault     security.EncryptionService
	cache     cache.Cache
	metrics   *metrics.Metrics
	provider  *FakeMatias
	matias    *matias.Factory
	now       time.Time
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	validator.NewValidator()

	s.config = NewTestConfig()
	var err error
	s.logger, err = logger.NewLogger(s.config)
	if err != nil {
		s.T().Fatalf("failed to create logger: %v", err)
	}
	s.vault, err = security.NewEncryptionService(s.config, s.logger)
	if err != nil {
		s.T().Fatalf("failed to create vault: %v", err)
	}
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.ctx = SetupContext()
	s.now = time.Now().UTC()
	s.setupStores()

	s.provider = NewFakeMatias(TestProviderEmail, TestProviderPassword)
	s.config.Matias.BaseURL = s.provider.URL()

	s.db = NewMockPostgresClient(s.logger)
	s.cache = cache.NewInMemoryCache(s.config)
	s.metrics = metrics.New()
	s.publisher = &RecordingPublisher{
		EventPublisher: publisher.NewEventPublisher(memory.NewPubSub(s.logger), s.config, s.logger),
	}
	s.matias = matias.NewFactory(s.config, s.logger, s.stores.IntegrationConfigRepo, s.vault, s.cache, s.metrics, nil)
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	if s.provider != nil {
		s.provider.Close()
	}
}

func (s *BaseServiceTestSuite) setupStores() {
	s.stores = Stores{
		IntegrationConfigRepo: NewInMemoryIntegrationConfigStore(),
		DocumentRepo:          NewInMemoryDocumentStore(),
		DocumentFileRepo:      NewInMemoryDocumentFileStore(),
		PackageRepo:           NewInMemoryPackageStore(),
		SubscriptionRepo:      NewInMemorySubscriptionStore(),
		UsageRepo:             NewInMemoryUsageStore(),
		CreditRepo:            NewInMemoryCreditStore(),
		AlertRepo:             NewInMemoryAlertStore(),
		AuditRepo:             NewInMemoryAuditStore(),
	}
}

// GetContext returns the test context
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// GetConfig returns the test configuration
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetStores returns all test repositories
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

func (s *BaseServiceTestSuite) GetPublisher() *RecordingPublisher {
	return s.publisher
}

func (s *BaseServiceTestSuite) GetDB() postgres.IClient {
	return s.db
}

func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

func (s *BaseServiceTestSuite) GetVault() security.EncryptionService {
	return s.vault
}

func (s *BaseServiceTestSuite) GetCache() cache.Cache {
	return s.cache
}

func (s *BaseServiceTestSuite) GetMetrics() *metrics.Metrics {
	return s.metrics
}

// GetProvider returns the fake provider of the current test
func (s *BaseServiceTestSuite) GetProvider() *FakeMatias {
	return s.provider
}

func (s *BaseServiceTestSuite) GetMatias() *matias.Factory {
	return s.matias
}

// GetNow returns the current test time
func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now.UTC()
}

// GetUUID returns a new UUID string
func (s *BaseServiceTestSuite) GetUUID() string {
	return types.GenerateUUID()
}

// Encrypt seals a secret with the suite vault
func (s *BaseServiceTestSuite) Encrypt(plaintext string) string {
	out, err := s.vault.Encrypt(plaintext)
	s.Require().NoError(err)
	return out
}
