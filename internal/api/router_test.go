package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/flexprice/ebilling/internal/api/cron"
	"github.com/flexprice/ebilling/internal/api/dto"
	v1 "github.com/flexprice/ebilling/internal/api/v1"
	"github.com/flexprice/ebilling/internal/auth"
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/rbac"
	"github.com/flexprice/ebilling/internal/service"
	"github.com/flexprice/ebilling/internal/testutil"
	"github.com/flexprice/ebilling/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
)

const routerTenant = "tenant_router"

type stubPinger struct{ err error }

func (p stubPinger) PingContext(context.Context) error { return p.err }

type RouterSuite struct {
	testutil.BaseServiceTestSuite
	router *gin.Engine
	pinger *stubPinger
	params service.ServiceParams
}

func TestRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()

	stores := s.GetStores()
	s.params = service.NewServiceParams(
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

	cfg := s.GetConfig()
	cfg.RBAC.RolesConfigPath = "../../config/rbac/roles.json"
	rbacService, err := rbac.NewRBACService(cfg)
	s.Require().NoError(err)

	s.pinger = &stubPinger{}
	log := s.GetLogger()
	documents := service.NewDocumentService(s.params)
	s.router = NewRouter(Handlers{
		Health:       v1.NewHealthHandler(s.pinger, log),
		Integration:  v1.NewIntegrationHandler(service.NewIntegrationService(s.params), log),
		Document:     v1.NewDocumentHandler(documents, log),
		Usage:        v1.NewUsageHandler(service.NewUsageService(s.params), log),
		Alert:        v1.NewAlertHandler(service.NewAlertService(s.params), log),
		Audit:        v1.NewAuditHandler(service.NewAuditService(s.params), log),
		CronDocument: cron.NewDocumentHandler(documents, log),
	}, cfg, log, rbacService, nil, s.GetMetrics())
}

func (s *RouterSuite) token(role types.Role) string {
	token, err := auth.NewProvider(s.GetConfig()).GenerateToken("operator_"+string(role), role, time.Hour)
	s.Require().NoError(err)
	return token
}

func (s *RouterSuite) do(method, path string, role types.Role, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set(types.HeaderAuthorization, "Bearer "+s.token(role))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *RouterSuite) decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (s *RouterSuite) errorBody(w *httptest.ResponseRecorder) map[string]any {
	body := s.decode(w)
	s.Equal(false, body["success"])
	errBody, ok := body["error"].(map[string]any)
	s.Require().True(ok, w.Body.String())
	return errBody
}

func (s *RouterSuite) errorMessage(w *httptest.ResponseRecorder) string {
	msg, _ := s.errorBody(w)["message"].(string)
	return msg
}

func (s *RouterSuite) saveConfig(extra map[string]any) {
	body := map[string]any{
		"tenant_id": routerTenant,
		"base_url":  s.GetProvider().URL(),
		"email":     testutil.TestProviderEmail,
		"password":  testutil.TestProviderPassword,
	}
	for k, v := range extra {
		body[k] = v
	}
	w := s.do(http.MethodPost, "/v1/matias/config", types.RoleSuperAdmin, body)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
}

func (s *RouterSuite) TestHealthAndMetrics() {
	w := s.do(http.MethodGet, "/health", "", nil)
	s.Equal(http.StatusOK, w.Code)
	s.NotEmpty(w.Header().Get(types.HeaderRequestID))

	s.pinger.err = errors.New("connection refused")
	w = s.do(http.MethodGet, "/health", "", nil)
	s.Equal(http.StatusServiceUnavailable, w.Code)

	w = s.do(http.MethodGet, "/metrics", "", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "/health")
}

func (s *RouterSuite) TestRequiresOperatorToken() {
	w := s.do(http.MethodGet, "/v1/ebilling/documents", "", nil)
	s.Equal(http.StatusUnauthorized, w.Code)
	s.Equal("Unauthorized", s.errorMessage(w))

	req := httptest.NewRequest(http.MethodGet, "/v1/ebilling/documents", nil)
	req.Header.Set(types.HeaderAuthorization, "Token abc")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Equal(http.StatusUnauthorized, w.Code)

	// a role outside the operator set never reaches the handler
	w = s.do(http.MethodGet, "/v1/ebilling/documents", types.Role("owner"), nil)
	s.Equal(http.StatusForbidden, w.Code)
}

func (s *RouterSuite) TestPermissionsFollowRoles() {
	tests := []struct {
		name   string
		method string
		path   string
		role   types.Role
		body   any
		want   int
	}{
		{"support cannot write config", http.MethodPost, "/v1/matias/config", types.RoleSupportAgent, map[string]any{}, http.StatusForbidden},
		{"billing cannot test connection", http.MethodPost, "/v1/matias/test-connection", types.RoleBillingOps, map[string]any{"tenant_id": routerTenant}, http.StatusForbidden},
		{"support tests connection", http.MethodPost, "/v1/matias/test-connection", types.RoleSupportAgent, map[string]any{"tenant_id": routerTenant}, http.StatusOK},
		{"support cannot read audit", http.MethodGet, "/v1/ebilling/audit-logs", types.RoleSupportAgent, nil, http.StatusForbidden},
		{"superadmin reads audit", http.MethodGet, "/v1/ebilling/audit-logs", types.RoleSuperAdmin, nil, http.StatusOK},
		{"billing lists packages", http.MethodGet, "/v1/ebilling/packages", types.RoleBillingOps, nil, http.StatusOK},
		{"support cannot create packages", http.MethodPost, "/v1/ebilling/packages", types.RoleSupportAgent, map[string]any{}, http.StatusForbidden},
		{"billing cannot submit documents", http.MethodPost, "/v1/ebilling/documents/edoc_1/submit", types.RoleBillingOps, nil, http.StatusForbidden},
		{"support cannot apply credits", http.MethodPost, "/v1/tenants/" + routerTenant + "/ebilling/credits", types.RoleSupportAgent, map[string]any{}, http.StatusForbidden},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			w := s.do(tt.method, tt.path, tt.role, tt.body)
			s.Equal(tt.want, w.Code, w.Body.String())
		})
	}
}

func (s *RouterSuite) TestConfigLifecycle() {
	w := s.do(http.MethodGet, "/v1/matias/config?tenant_id="+routerTenant, types.RoleSupportAgent, nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal(ierr.ErrCodeNotFound, s.errorBody(w)["code"])

	w = s.do(http.MethodGet, "/v1/matias/config", types.RoleSupportAgent, nil)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("Tenant ID is required", s.errorMessage(w))

	s.saveConfig(nil)

	w = s.do(http.MethodGet, "/v1/matias/config?tenant_id="+routerTenant, types.RoleSupportAgent, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	body := s.decode(w)
	s.Equal(true, body["has_password"])
	s.NotContains(w.Body.String(), testutil.TestProviderPassword)

	w = s.do(http.MethodPost, "/v1/matias/test-connection", types.RoleSupportAgent, map[string]any{"tenant_id": routerTenant})
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(true, s.decode(w)["success"])

	w = s.do(http.MethodGet, "/v1/matias/status?tenant_id="+routerTenant, types.RoleBillingOps, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(true, s.decode(w)["token_valid"])

	w = s.do(http.MethodGet, "/v1/matias/documents/last?tenant_id="+routerTenant+"&prefix=SETP", types.RoleSupportAgent, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal("990000123", s.decode(w)["number"])

	logs := s.do(http.MethodGet, "/v1/ebilling/audit-logs?tenant_id="+routerTenant+"&action="+string(types.AuditActionTestConnection), types.RoleSuperAdmin, nil)
	s.Require().Equal(http.StatusOK, logs.Code)
	items, _ := s.decode(logs)["items"].([]any)
	s.Len(items, 1)
}

func (s *RouterSuite) TestDocumentFlow() {
	s.saveConfig(nil)

	w := s.do(http.MethodPost, "/v1/ebilling/documents", types.RoleSupportAgent, map[string]any{
		"tenant_id": routerTenant,
		"kind":      types.DocumentKindPOS,
		"payload":   map[string]any{"total": 1000},
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	created := s.decode(w)
	id, _ := created["id"].(string)
	s.Require().NotEmpty(id)
	s.Equal(string(types.DocumentStatusPending), created["document_status"])

	w = s.do(http.MethodPost, "/v1/ebilling/documents/"+id+"/submit", types.RoleSupportAgent, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal(string(types.DocumentStatusSent), s.decode(w)["document_status"])

	w = s.do(http.MethodGet, "/v1/ebilling/documents?status=SENT", types.RoleBillingOps, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	items, _ := s.decode(w)["items"].([]any)
	s.Len(items, 1)

	w = s.do(http.MethodGet, "/v1/ebilling/documents/"+id+"/pdf", types.RoleBillingOps, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal("application/pdf", w.Header().Get("Content-Type"))
	s.Contains(w.Header().Get("Content-Disposition"), ".pdf")

	w = s.do(http.MethodPost, "/v1/ebilling/documents/edoc_missing/retry", types.RoleSupportAgent, nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *RouterSuite) TestCreateDocumentValidation() {
	w := s.do(http.MethodPost, "/v1/ebilling/documents", types.RoleSuperAdmin, map[string]any{
		"tenant_id": routerTenant,
		"kind":      "RECEIPT",
		"payload":   map[string]any{"total": 1},
	})
	s.Equal(http.StatusBadRequest, w.Code)
	s.NotEmpty(s.errorMessage(w))

	req := httptest.NewRequest(http.MethodPost, "/v1/ebilling/documents", bytes.NewBufferString("{"))
	req.Header.Set(types.HeaderAuthorization, "Bearer "+s.token(types.RoleSuperAdmin))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("Invalid request format", s.errorMessage(rec))
}

func (s *RouterSuite) TestPackagesAndUsage() {
	w := s.do(http.MethodPost, "/v1/ebilling/packages", types.RoleBillingOps, map[string]any{
		"name":               "Starter",
		"included_documents": 100,
		"billing_cycle":      types.BillingCycleMonthly,
		"overage_policy":     types.OveragePolicyBlock,
		"overage_price":      "0",
		"currency":           "COP",
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	pkgID, _ := s.decode(w)["id"].(string)
	s.Require().NotEmpty(pkgID)

	w = s.do(http.MethodGet, "/v1/ebilling/packages/"+pkgID, types.RoleSupportAgent, nil)
	s.Equal(http.StatusOK, w.Code)

	base := "/v1/tenants/" + routerTenant + "/ebilling"
	w = s.do(http.MethodPost, base+"/subscription/assign", types.RoleBillingOps, map[string]any{"package_id": pkgID})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, base+"/credits", types.RoleBillingOps, map[string]any{"delta_documents": 5, "reason": "goodwill"})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodGet, base+"/credits", types.RoleSupportAgent, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	items, _ := s.decode(w)["items"].([]any)
	s.Len(items, 1)

	w = s.do(http.MethodGet, base+"/usage", types.RoleSupportAgent, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(true, s.decode(w)["metered"])
}

func (s *RouterSuite) TestAcknowledgeAlertTwice() {
	a, _, err := service.NewAlertService(s.params).Raise(s.GetContext(), dto.RaiseAlertRequest{
		TenantID: routerTenant,
		Type:     types.AlertTypeLimitReached,
		Message:  "quota exhausted",
	})
	s.Require().NoError(err)

	w := s.do(http.MethodPost, "/v1/ebilling/alerts/"+a.ID+"/acknowledge", types.RoleSupportAgent, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal("operator_supportagent", s.decode(w)["acknowledged_by"])

	w = s.do(http.MethodPost, "/v1/ebilling/alerts/"+a.ID+"/acknowledge", types.RoleSupportAgent, nil)
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/v1/ebilling/alerts?acknowledged=false", types.RoleSupportAgent, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	items, _ := s.decode(w)["items"].([]any)
	s.Empty(items)
}

func (s *RouterSuite) TestCronRequiresKey() {
	w := s.do(http.MethodPost, "/v1/cron/ebilling/documents/reconcile", types.RoleSuperAdmin, nil)
	s.Equal(http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/cron/ebilling/documents/reconcile", nil)
	req.Header.Set(s.GetConfig().Cron.Header, testutil.TestCronKey)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal(float64(0), s.decode(rec)["checked"])

	req = httptest.NewRequest(http.MethodPost, "/v1/cron/ebilling/documents/resubmit", bytes.NewBufferString(`{"limit":10}`))
	req.Header.Set(s.GetConfig().Cron.Header, testutil.TestCronKey)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal(float64(0), s.decode(rec)["attempted"])
}
