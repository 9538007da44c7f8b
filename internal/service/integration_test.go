package service

import (
	"net/http"
	"testing"
	"time"

	"github.com/flexprice/ebilling/internal/api/dto"
	"github.com/flexprice/ebilling/internal/domain/integrationconfig"
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/testutil"
	"github.com/flexprice/ebilling/internal/types"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
)

type IntegrationServiceSuite struct {
	testutil.BaseServiceTestSuite
	service IntegrationService
}

func TestIntegrationService(t *testing.T) {
	suite.Run(t, new(IntegrationServiceSuite))
}

func (s *IntegrationServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewIntegrationService(newTestServiceParams(&s.BaseServiceTestSuite))
}

func (s *IntegrationServiceSuite) saveRequest() *dto.SaveIntegrationConfigRequest {
	return &dto.SaveIntegrationConfigRequest{
		TenantID:      testTenant,
		BaseURL:       s.GetProvider().URL() + "/",
		Email:         " " + testutil.TestProviderEmail + " ",
		Password:      testutil.TestProviderPassword,
		InvoicePrefix: "SETP",
	}
}

func (s *IntegrationServiceSuite) stored() *integrationconfig.Config {
	cfg, err := s.GetStores().IntegrationConfigRepo.Get(s.GetContext(), testTenant)
	s.Require().NoError(err)
	return cfg
}

func (s *IntegrationServiceSuite) TestSaveConfigCreates() {
	resp, err := s.service.SaveConfig(s.GetContext(), s.saveRequest())
	s.Require().NoError(err)

	s.Equal(testTenant, resp.TenantID)
	s.Equal(s.GetProvider().URL(), resp.BaseURL)
	s.Equal(testutil.TestProviderEmail, resp.Email)
	s.True(resp.HasPassword)
	s.False(resp.HasToken)
	s.True(resp.Enabled)
	s.False(resp.AutoSubmit)

	cfg := s.stored()
	s.NotEqual(testutil.TestProviderPassword, cfg.EncryptedPassword)
	plain, err := s.GetVault().Decrypt(cfg.EncryptedPassword)
	s.Require().NoError(err)
	s.Equal(testutil.TestProviderPassword, plain)
	s.Equal([]types.AuditAction{types.AuditActionConfigCreate}, s.GetStores().AuditRepo.Actions(testTenant))
}

func (s *IntegrationServiceSuite) TestSaveConfigRequiresPasswordOnCreate() {
	req := s.saveRequest()
	req.Password = ""

	_, err := s.service.SaveConfig(s.GetContext(), req)
	s.Require().Error(err)
	s.True(ierr.IsValidation(err))

	req = s.saveRequest()
	req.Email = "not-an-email"
	_, err = s.service.SaveConfig(s.GetContext(), req)
	s.Require().Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *IntegrationServiceSuite) TestCredentialChangeClearsToken() {
	_, err := s.service.SaveConfig(s.GetContext(), s.saveRequest())
	s.Require().NoError(err)

	test, err := s.service.TestConnection(s.GetContext(), &dto.TestConnectionRequest{TenantID: testTenant})
	s.Require().NoError(err)
	s.Require().True(test.Success)
	s.NotEmpty(s.stored().EncryptedToken)

	// a settings-only change keeps the session
	req := s.saveRequest()
	req.Password = ""
	req.AutoSubmit = lo.ToPtr(true)
	resp, err := s.service.SaveConfig(s.GetContext(), req)
	s.Require().NoError(err)
	s.True(resp.HasToken)
	s.True(resp.AutoSubmit)

	// resending the same password is not a change either
	resp, err = s.service.SaveConfig(s.GetContext(), s.saveRequest())
	s.Require().NoError(err)
	s.True(resp.HasToken)

	req = s.saveRequest()
	req.Password = "rotated"
	resp, err = s.service.SaveConfig(s.GetContext(), req)
	s.Require().NoError(err)
	s.False(resp.HasToken)
	s.Nil(s.stored().TokenExpiresAt)
	s.Contains(s.GetStores().AuditRepo.Actions(testTenant), types.AuditActionConfigUpdate)
}

func (s *IntegrationServiceSuite) TestSaveConfigInvalidatesClient() {
	_, err := s.service.SaveConfig(s.GetContext(), s.saveRequest())
	s.Require().NoError(err)
	before := s.GetMatias().ForTenant(s.GetContext(), testTenant)

	_, err = s.service.SaveConfig(s.GetContext(), s.saveRequest())
	s.Require().NoError(err)
	s.NotSame(before, s.GetMatias().ForTenant(s.GetContext(), testTenant))
}

func (s *IntegrationServiceSuite) TestGetConfigHidesSecrets() {
	_, err := s.service.GetConfig(s.GetContext(), testTenant)
	s.True(ierr.IsNotFound(err))

	_, err = s.service.SaveConfig(s.GetContext(), s.saveRequest())
	s.Require().NoError(err)

	resp, err := s.service.GetConfig(s.GetContext(), testTenant)
	s.Require().NoError(err)
	s.True(resp.HasPassword)
	s.Equal("SETP", resp.InvoicePrefix)
}

func (s *IntegrationServiceSuite) TestTestConnectionNotConfigured() {
	resp, err := s.service.TestConnection(s.GetContext(), &dto.TestConnectionRequest{TenantID: testTenant})
	s.Require().NoError(err)
	s.False(resp.Success)
	s.Equal("not configured", resp.Message)
	s.Zero(s.GetProvider().TotalCalls())
}

func (s *IntegrationServiceSuite) TestTestConnectionSuccess() {
	configureTenant(&s.BaseServiceTestSuite, testTenant)

	resp, err := s.service.TestConnection(s.GetContext(), &dto.TestConnectionRequest{TenantID: testTenant})
	s.Require().NoError(err)
	s.True(resp.Success)
	s.Require().NotNil(resp.TokenExpiresAt)
	s.WithinDuration(time.Now().Add(time.Hour), *resp.TokenExpiresAt, time.Minute)
	s.Equal(1, s.GetProvider().Logins())
	s.Contains(s.GetStores().AuditRepo.Actions(testTenant), types.AuditActionTestConnection)
	s.Empty(s.GetStores().AlertRepo.OfType(testTenant, types.AlertTypeAuthFailed))
}

func (s *IntegrationServiceSuite) TestTestConnectionBadCredentials() {
	configureTenant(&s.BaseServiceTestSuite, testTenant, func(c *integrationconfig.Config) {
		c.EncryptedPassword = s.Encrypt("wrong")
	})

	resp, err := s.service.TestConnection(s.GetContext(), &dto.TestConnectionRequest{TenantID: testTenant})
	s.Require().NoError(err)
	s.False(resp.Success)
	s.NotEmpty(resp.Message)
	s.Len(s.GetStores().AlertRepo.OfType(testTenant, types.AlertTypeAuthFailed), 1)
	s.Contains(s.GetStores().AuditRepo.Actions(testTenant), types.AuditActionTestConnection)
}

func (s *IntegrationServiceSuite) TestTestConnectionTimesOut() {
	s.GetConfig().Matias.TestTimeout = 50 * time.Millisecond
	defer func() { s.GetConfig().Matias.TestTimeout = 5 * time.Second }()
	s.GetProvider().LoginDelay = 500 * time.Millisecond
	configureTenant(&s.BaseServiceTestSuite, testTenant)

	resp, err := s.service.TestConnection(s.GetContext(), &dto.TestConnectionRequest{TenantID: testTenant})
	s.Require().NoError(err)
	s.False(resp.Success)
}

func (s *IntegrationServiceSuite) TestTestConnectionDisabled() {
	configureTenant(&s.BaseServiceTestSuite, testTenant, func(c *integrationconfig.Config) { c.Enabled = false })

	resp, err := s.service.TestConnection(s.GetContext(), &dto.TestConnectionRequest{TenantID: testTenant})
	s.Require().NoError(err)
	s.False(resp.Success)
	s.Zero(s.GetProvider().TotalCalls())
}

func (s *IntegrationServiceSuite) TestPlatformConnection() {
	s.GetConfig().Matias.PlatformEmail = testutil.TestProviderEmail
	s.GetConfig().Matias.PlatformPassword = s.Encrypt(testutil.TestProviderPassword)
	defer func() {
		s.GetConfig().Matias.PlatformEmail = ""
		s.GetConfig().Matias.PlatformPassword = ""
	}()

	resp, err := s.service.TestPlatformConnection(s.GetContext())
	s.Require().NoError(err)
	s.True(resp.Success)
	s.Zero(s.GetStores().IntegrationConfigRepo.TokenUpdates())
}

func (s *IntegrationServiceSuite) TestIntegrationStatus() {
	empty, err := s.service.GetIntegrationStatus(s.GetContext(), testTenant)
	s.Require().NoError(err)
	s.False(empty.Configured)
	s.Zero(empty.OpenAlerts)

	configureTenant(&s.BaseServiceTestSuite, testTenant, func(c *integrationconfig.Config) { c.AutoSubmit = true })
	_, err = s.service.TestConnection(s.GetContext(), &dto.TestConnectionRequest{TenantID: testTenant})
	s.Require().NoError(err)

	docs := NewDocumentService(newTestServiceParams(&s.BaseServiceTestSuite))
	for range 2 {
		_, err := docs.CreateDocument(s.GetContext(), &dto.CreateDocumentRequest{
			TenantID: testTenant,
			Kind:     types.DocumentKindPOS,
			Payload:  map[string]any{"total": 1000},
		})
		s.Require().NoError(err)
	}

	alerts := NewAlertService(newTestServiceParams(&s.BaseServiceTestSuite))
	_, _, err = alerts.Raise(s.GetContext(), dto.RaiseAlertRequest{TenantID: testTenant, Type: types.AlertTypeThreshold70})
	s.Require().NoError(err)

	status, err := s.service.GetIntegrationStatus(s.GetContext(), testTenant)
	s.Require().NoError(err)
	s.True(status.Configured)
	s.True(status.Enabled)
	s.True(status.AutoSubmit)
	s.True(status.TokenValid)
	s.NotNil(status.TokenExpiresAt)
	s.Equal(2, status.DocumentCounts[types.DocumentStatusSent])
	s.Equal(1, status.OpenAlerts)
}

func (s *IntegrationServiceSuite) TestLastDocumentNumberUsesConfiguredSeries() {
	configureTenant(&s.BaseServiceTestSuite, testTenant, func(c *integrationconfig.Config) {
		c.InvoicePrefix = "SETP"
		c.InvoiceResolution = "18760000001"
	})

	resp, err := s.service.GetLastDocumentNumber(s.GetContext(), &dto.LastDocumentRequest{TenantID: testTenant})
	s.Require().NoError(err)
	s.Equal("990000123", resp.Number)
	s.Equal("SETP", resp.Prefix)
	s.Equal("18760000001", resp.Resolution)

	s.GetProvider().Handle("/documents/last", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err = s.service.GetLastDocumentNumber(s.GetContext(), &dto.LastDocumentRequest{TenantID: testTenant, Prefix: "FE"})
	s.Require().Error(err)
}
