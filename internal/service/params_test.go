package service

import (
	"time"

	"github.com/flexprice/ebilling/internal/api/dto"
	"github.com/flexprice/ebilling/internal/domain/integrationconfig"
	"github.com/flexprice/ebilling/internal/testutil"
	"github.com/flexprice/ebilling/internal/types"
	"github.com/shopspring/decimal"
)

const testTenant = "tenant_ebilling"

// newTestServiceParams wires the suite's in-memory dependencies
func newTestServiceParams(s *testutil.BaseServiceTestSuite) ServiceParams {
	stores := s.GetStores()
	return NewServiceParams(
		s.GetLogger(),
		s.GetConfig(),
		s.GetDB(),
		s.GetVault(),
		s.GetCache(),
		nil,
		s.GetMetrics(),
		nil,
		stores.IntegrationConfigRepo,
		stores.DocumentRepo,
		stores.DocumentFileRepo,
		stores.PackageRepo,
		stores.SubscriptionRepo,
		stores.UsageRepo,
		stores.CreditRepo,
		stores.AlertRepo,
		stores.AuditRepo,
		s.GetPublisher(),
		s.GetMatias(),
	)
}

// configureTenant stores an enabled provider config for tenantID
func configureTenant(s *testutil.BaseServiceTestSuite, tenantID string, mutate ...func(*integrationconfig.Config)) *integrationconfig.Config {
	cfg := &integrationconfig.Config{
		ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INTEGRATION_CONFIG),
		BaseURL:           s.GetProvider().URL(),
		Email:             testutil.TestProviderEmail,
		EncryptedPassword: s.Encrypt(testutil.TestProviderPassword),
		Enabled:           true,
		BaseModel:         types.GetDefaultBaseModel(s.GetContext()),
	}
	cfg.TenantID = tenantID
	for _, m := range mutate {
		m(cfg)
	}
	s.Require().NoError(s.GetStores().IntegrationConfigRepo.Create(s.GetContext(), cfg))
	return cfg
}

// subscribeTenant creates a package and assigns it to tenantID from start
func subscribeTenant(s *testutil.BaseServiceTestSuite, svc UsageService, tenantID string, included int, policy types.OveragePolicy, start *time.Time) *dto.SubscriptionResponse {
	pkg, err := svc.CreatePackage(s.GetContext(), &dto.CreatePackageRequest{
		Name:              "Plan " + string(policy),
		IncludedDocuments: included,
		BillingCycle:      types.BillingCycleMonthly,
		OveragePolicy:     policy,
		OveragePrice:      decimal.NewFromFloat(150.5),
		Currency:          "cop",
	})
	s.Require().NoError(err)

	resp, err := svc.AssignPackageToTenant(s.GetContext(), tenantID, &dto.AssignPackageRequest{
		PackageID: pkg.ID,
		StartDate: start,
	})
	s.Require().NoError(err)
	return resp
}
