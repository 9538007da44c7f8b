package matias_test

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flexprice/ebilling/internal/cache"
	"github.com/flexprice/ebilling/internal/config"
	"github.com/flexprice/ebilling/internal/domain/integrationconfig"
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/integration/matias"
	"github.com/flexprice/ebilling/internal/logger"
	"github.com/flexprice/ebilling/internal/metrics"
	"github.com/flexprice/ebilling/internal/security"
	"github.com/flexprice/ebilling/internal/testutil"
	"github.com/flexprice/ebilling/internal/types"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
)

const (
	tenantID = "tenant_matias"
	email    = "facturacion@restaurante.co"
	password = "s3cret"
)

type ClientSuite struct {
	suite.Suite
	ctx      context.Context
	cfg      *config.Configuration
	logger   *logger.Logger
	vault    security.EncryptionService
	configs  *testutil.InMemoryIntegrationConfigStore
	provider *testutil.FakeMatias
	factory  *matias.Factory
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.ctx = testutil.SetupContext()
	s.cfg = testutil.NewTestConfig()

	var err error
	s.logger, err = logger.NewLogger(s.cfg)
	s.Require().NoError(err)
	s.vault, err = security.NewEncryptionService(s.cfg, s.logger)
	s.Require().NoError(err)

	s.provider = testutil.NewFakeMatias(email, password)
	s.cfg.Matias.BaseURL = s.provider.URL()
	s.configs = testutil.NewInMemoryIntegrationConfigStore()
	s.factory = s.newFactory()
}

func (s *ClientSuite) TearDownTest() {
	s.provider.Close()
}

func (s *ClientSuite) newFactory() *matias.Factory {
	return matias.NewFactory(s.cfg, s.logger, s.configs, s.vault, cache.NewInMemoryCache(s.cfg), metrics.New(), nil)
}

func (s *ClientSuite) saveConfig(mutate ...func(*integrationconfig.Config)) {
	encrypted, err := s.vault.Encrypt(password)
	s.Require().NoError(err)
	c := &integrationconfig.Config{
		ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INTEGRATION_CONFIG),
		BaseURL:           s.provider.URL(),
		Email:             email,
		EncryptedPassword: encrypted,
		Enabled:           true,
		BaseModel:         types.BaseModel{TenantID: tenantID, Status: types.StatusPublished},
	}
	for _, fn := range mutate {
		fn(c)
	}
	s.Require().NoError(s.configs.Create(s.ctx, c))
}

func (s *ClientSuite) TestInitializeReusesCachedToken() {
	s.saveConfig()
	client := s.factory.ForTenant(s.ctx, tenantID)

	s.Require().NoError(client.Initialize(s.ctx))
	s.Require().NoError(client.Initialize(s.ctx))
	s.Equal(1, s.provider.Logins())

	// a fresh process picks the persisted token up without logging in
	fresh := s.newFactory().ForTenant(s.ctx, tenantID)
	s.Require().NoError(fresh.Initialize(s.ctx))
	s.Equal(1, s.provider.Logins())

	res := fresh.SubmitInvoice(s.ctx, map[string]any{"number": 1})
	s.True(res.Success, res.Message)
}

func (s *ClientSuite) TestInitializeWithExpiredStoredTokenLogsIn() {
	token, err := s.vault.Encrypt("stale")
	s.Require().NoError(err)
	s.saveConfig(func(c *integrationconfig.Config) {
		c.EncryptedToken = token
		c.TokenExpiresAt = lo.ToPtr(time.Now().Add(-time.Minute))
	})

	s.Require().NoError(s.factory.ForTenant(s.ctx, tenantID).Initialize(s.ctx))
	s.Equal(1, s.provider.Logins())
}

func (s *ClientSuite) TestAuthenticateExpiresIn() {
	s.saveConfig()
	client := s.factory.ForTenant(s.ctx, tenantID)

	before := time.Now()
	s.Require().NoError(client.Authenticate(s.ctx))

	s.WithinDuration(before.Add(3600*time.Second), client.TokenExpiresAt(), 5*time.Second)

	stored, err := s.configs.Get(s.ctx, tenantID)
	s.Require().NoError(err)
	s.Require().NotNil(stored.TokenExpiresAt)
	s.WithinDuration(before.Add(3600*time.Second), *stored.TokenExpiresAt, 5*time.Second)
	s.NotEqual("token-1", stored.EncryptedToken, "token must be stored encrypted")

	plain, err := s.vault.Decrypt(stored.EncryptedToken)
	s.Require().NoError(err)
	s.Equal("token-1", plain)
}

func (s *ClientSuite) TestAuthenticateExpiryFormats() {
	at := time.Date(2031, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		body   map[string]any
		expect func(before time.Time) time.Time
	}{
		{
			name:   "rfc3339 expires_at",
			body:   map[string]any{"expires_at": at.Format(time.RFC3339)},
			expect: func(time.Time) time.Time { return at },
		},
		{
			name:   "unix expires_at",
			body:   map[string]any{"expires_at": at.Unix()},
			expect: func(time.Time) time.Time { return at },
		},
		{
			name:   "no expiry falls back to a year",
			body:   map[string]any{"token_type": "Bearer"},
			expect: func(before time.Time) time.Time { return before.Add(365 * 24 * time.Hour) },
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.configs.Clear()
			s.saveConfig()
			s.provider.LoginResponse = tt.body
			client := s.newFactory().ForTenant(s.ctx, tenantID)

			before := time.Now()
			s.Require().NoError(client.Authenticate(s.ctx))
			s.WithinDuration(tt.expect(before), client.TokenExpiresAt(), 5*time.Second)
		})
	}
}

func (s *ClientSuite) TestInitializeNotConfigured() {
	err := s.factory.ForTenant(s.ctx, tenantID).Initialize(s.ctx)
	s.Require().Error(err)
	s.True(ierr.IsNotConfigured(err))
	s.Zero(s.provider.TotalCalls())
}

func (s *ClientSuite) TestInitializeDisabled() {
	s.saveConfig(func(c *integrationconfig.Config) { c.Enabled = false })

	err := s.factory.ForTenant(s.ctx, tenantID).Initialize(s.ctx)
	s.True(ierr.IsNotConfigured(err))
	s.Zero(s.provider.TotalCalls())
}

func (s *ClientSuite) TestAuthenticateBadCredentials() {
	s.saveConfig(func(c *integrationconfig.Config) {
		c.EncryptedPassword = lo.Must(s.vault.Encrypt("wrong"))
	})

	err := s.factory.ForTenant(s.ctx, tenantID).Authenticate(s.ctx)
	s.Require().Error(err)
	s.True(ierr.IsProviderAuth(err))
	s.Zero(s.provider.Logins())
}

func (s *ClientSuite) TestRequestReauthenticatesOnceOn401() {
	s.saveConfig()
	client := s.factory.ForTenant(s.ctx, tenantID)
	s.Require().NoError(client.Initialize(s.ctx))

	s.provider.RevokeTokens()
	res := client.SubmitCreditNote(s.ctx, map[string]any{"reference": "FE-1"})

	s.True(res.Success, res.Message)
	s.NotEmpty(res.TrackID)
	s.Equal(2, s.provider.Logins())
	s.Equal(2, s.provider.Calls("/notes/credit"))
}

func (s *ClientSuite) TestSecond401IsTerminal() {
	s.saveConfig()
	s.provider.Handle("/invoice", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Unauthenticated."}`))
	})
	client := s.factory.ForTenant(s.ctx, tenantID)

	res := client.SubmitInvoice(s.ctx, map[string]any{"number": 1})

	s.False(res.Success)
	s.True(ierr.IsProviderAuth(res.Err))
	s.Equal(2, s.provider.Calls("/invoice"))
	s.Equal(2, s.provider.Logins())
}

func (s *ClientSuite) TestHTMLErrorPages() {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
	}{
		{"bad gateway page", http.StatusBadGateway, "text/html; charset=utf-8", "<html><body>502 Bad Gateway</body></html>"},
		{"200 with doctype and json content type", http.StatusOK, "application/json", "<!DOCTYPE html><html></html>"},
		{"large page after blank lines", http.StatusServiceUnavailable, "application/json", "\r\n\n  <HTML><body>" + strings.Repeat("maintenance ", 100000) + "</body></HTML>"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.configs.Clear()
			s.saveConfig()
			s.provider.Handle("/ds/document", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			res := s.newFactory().ForTenant(s.ctx, tenantID).SubmitSupportDocument(s.ctx, map[string]any{"x": 1})
			s.False(res.Success)
			s.True(ierr.IsUnexpectedResponse(res.Err))
		})
	}
}

func (s *ClientSuite) TestMalformedJSON() {
	s.saveConfig()
	s.provider.Handle("/notes/debit", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": tru`))
	})

	res := s.factory.ForTenant(s.ctx, tenantID).SubmitDebitNote(s.ctx, map[string]any{"x": 1})
	s.False(res.Success)
	s.True(ierr.IsUnexpectedResponse(res.Err))
}

func (s *ClientSuite) TestProviderErrorKeepsPayload() {
	s.saveConfig()
	s.provider.Handle("/ds/adjustment-note", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"El campo resolution es obligatorio"}`))
	})

	res := s.factory.ForTenant(s.ctx, tenantID).SubmitSupportAdjustmentNote(s.ctx, map[string]any{"x": 1})
	s.False(res.Success)
	s.True(ierr.IsHTTPClient(res.Err))
	s.Equal("El campo resolution es obligatorio", res.Message)
}

func (s *ClientSuite) TestSubmitRoutesByKind() {
	s.saveConfig()
	client := s.factory.ForTenant(s.ctx, tenantID)

	paths := map[types.DocumentKind]string{
		types.DocumentKindPOS:                   "/invoice",
		types.DocumentKindCreditNote:            "/notes/credit",
		types.DocumentKindDebitNote:             "/notes/debit",
		types.DocumentKindSupportDocument:       "/ds/document",
		types.DocumentKindSupportAdjustmentNote: "/ds/adjustment-note",
	}
	for kind, path := range paths {
		before := s.provider.Calls(path)
		res := client.Submit(s.ctx, kind, map[string]any{"kind": string(kind)})
		s.True(res.Success, kind)
		s.Equal(before+1, s.provider.Calls(path), kind)
	}

	res := client.Submit(s.ctx, types.DocumentKind("RECEIPT"), map[string]any{})
	s.False(res.Success)
	s.True(ierr.IsValidation(res.Err))
}

func (s *ClientSuite) TestStatusByTrackID() {
	s.saveConfig()
	s.provider.Statuses["track-ok"] = map[string]any{"success": true, "is_valid": true, "status": "ACCEPTED"}
	s.provider.Statuses["track-bad"] = map[string]any{"success": true, "data": map[string]any{"status": "RECHAZADO", "message": "Regla FAD06"}}
	client := s.factory.ForTenant(s.ctx, tenantID)

	status, ok := client.GetStatusByTrackID(s.ctx, "track-ok").DocumentStatus()
	s.True(ok)
	s.Equal(types.DocumentStatusAccepted, status)

	bad := client.GetStatusByTrackID(s.ctx, "track-bad")
	status, ok = bad.DocumentStatus()
	s.True(ok)
	s.Equal(types.DocumentStatusRejected, status)
	s.Equal("Regla FAD06", bad.Message)

	_, ok = client.GetStatusByTrackID(s.ctx, "track-pending").DocumentStatus()
	s.False(ok)
}

func (s *ClientSuite) TestDownloads() {
	s.saveConfig()
	client := s.factory.ForTenant(s.ctx, tenantID)

	pdf := client.DownloadPDF(s.ctx, "track-1", false)
	s.Require().NotNil(pdf)
	s.Equal(s.provider.PDF, pdf.Data)

	zip := client.DownloadAttached(s.ctx, "track-1", true)
	s.Require().NotNil(zip)
	s.Equal(s.provider.Attached, zip.Data)

	s.provider.Handle("/documents/pdf/track-gone", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	s.Nil(client.DownloadPDF(s.ctx, "track-gone", false))
	s.Nil(client.DownloadPDF(s.ctx, "", false))
}

func (s *ClientSuite) TestDownloadBase64Envelope() {
	s.saveConfig()
	s.provider.Handle("/documents/pdf/track-b64", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"pdf":"JVBERi0xLjQK"}}`))
	})

	pdf := s.factory.ForTenant(s.ctx, tenantID).DownloadPDF(s.ctx, "track-b64", false)
	s.Require().NotNil(pdf)
	s.Equal([]byte("%PDF-1.4\n"), pdf.Data)
}

func (s *ClientSuite) TestGetLastDocument() {
	s.saveConfig()

	last, err := s.factory.ForTenant(s.ctx, tenantID).GetLastDocument(s.ctx, "18760000001", "SETP")
	s.Require().NoError(err)
	s.Equal("990000123", last.Number)
	s.Equal("SETP", last.Prefix)
	s.Equal("18760000001", last.Resolution)
}

func (s *ClientSuite) TestConcurrentAuthenticateSharesOneLogin() {
	s.saveConfig()
	s.provider.LoginDelay = 200 * time.Millisecond
	client := s.factory.ForTenant(s.ctx, tenantID)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = client.Authenticate(s.ctx)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		s.NoError(err)
	}
	s.Equal(1, s.provider.Logins())
}

func (s *ClientSuite) TestCancelledCallerDoesNotFailJoinedLogin() {
	s.saveConfig()
	s.provider.LoginDelay = 200 * time.Millisecond
	client := s.factory.ForTenant(s.ctx, tenantID)

	firstCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	var wg sync.WaitGroup
	var firstErr, joinedErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		firstErr = client.Authenticate(firstCtx)
	}()
	time.Sleep(20 * time.Millisecond)
	go func() {
		defer wg.Done()
		joinedErr = client.Authenticate(s.ctx)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	wg.Wait()

	s.Require().Error(firstErr)
	s.True(ierr.IsHTTPClient(firstErr))
	s.NoError(joinedErr)
	s.Equal(1, s.provider.Logins())

	_, err := client.GetLastDocument(s.ctx, "18760000001", "SETP")
	s.Require().NoError(err)
	s.Equal(1, s.provider.Logins(), "the detached login stored its token")
}

func (s *ClientSuite) TestInvalidateDropsMemoizedClient() {
	s.saveConfig()
	first := s.factory.ForTenant(s.ctx, tenantID)
	s.Same(first, s.factory.ForTenant(s.ctx, tenantID))

	s.factory.Invalidate(s.ctx, tenantID)
	s.NotSame(first, s.factory.ForTenant(s.ctx, tenantID))
}

func (s *ClientSuite) TestPlatformClient() {
	s.cfg.Matias.PlatformEmail = email
	s.cfg.Matias.PlatformPassword = lo.Must(s.vault.Encrypt(password))
	factory := s.newFactory()

	s.Require().NoError(factory.Platform().Authenticate(s.ctx))
	s.Equal(1, s.provider.Logins())
	s.Zero(s.configs.TokenUpdates())
}
