package matias

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/flexprice/ebilling/internal/domain/integrationconfig"
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/httpclient"
	"github.com/flexprice/ebilling/internal/logger"
	"github.com/flexprice/ebilling/internal/metrics"
	"github.com/flexprice/ebilling/internal/security"
	"github.com/flexprice/ebilling/internal/sentry"
	"github.com/flexprice/ebilling/internal/types"
	"golang.org/x/sync/singleflight"
)

// Client is an authenticated session against the MATIAS e-billing API for one tenant
type Client interface {
	// Initialize makes the client ready to call the provider, logging in only when
	// no usable token is cached. Fails with ErrNotConfigured for missing or disabled configs.
	Initialize(ctx context.Context) error
	// Authenticate always performs a login round-trip and stores the new token
	Authenticate(ctx context.Context) error
	// Request is a bearer call that re-authenticates once on 401
	Request(ctx context.Context, method, path string, query url.Values, body any) (*httpclient.Response, error)

	Submit(ctx context.Context, kind types.DocumentKind, payload map[string]any) *DocumentResult
	SubmitInvoice(ctx context.Context, payload map[string]any) *DocumentResult
	SubmitPos(ctx context.Context, payload map[string]any) *DocumentResult
	SubmitCreditNote(ctx context.Context, payload map[string]any) *DocumentResult
	SubmitDebitNote(ctx context.Context, payload map[string]any) *DocumentResult
	SubmitSupportDocument(ctx context.Context, payload map[string]any) *DocumentResult
	SubmitSupportAdjustmentNote(ctx context.Context, payload map[string]any) *DocumentResult

	GetStatus(ctx context.Context, query url.Values) *StatusResult
	GetStatusByTrackID(ctx context.Context, trackID string) *StatusResult

	// DownloadPDF and DownloadAttached return nil on any failure
	DownloadPDF(ctx context.Context, trackID string, regenerate bool) *Download
	DownloadAttached(ctx context.Context, trackID string, regenerate bool) *Download

	SearchDocuments(ctx context.Context, query url.Values) (map[string]any, error)
	GetLastDocument(ctx context.Context, resolution, prefix string) (*LastDocument, error)

	// TokenExpiresAt is the expiry of the token held in memory, zero when none
	TokenExpiresAt() time.Time
}

// credentialStore loads login material and keeps issued tokens
type credentialStore interface {
	key() string
	load(ctx context.Context) (*integrationconfig.Config, error)
	saveToken(ctx context.Context, encryptedToken string, expiresAt time.Time) error
}

type client struct {
	store      credentialStore
	vault      security.EncryptionService
	httpClient httpclient.Client
	logins     *singleflight.Group
	metrics    *metrics.Metrics
	sentry     *sentry.Service
	logger     *logger.Logger

	timeout    time.Duration
	defaultTTL time.Duration

	mu        sync.RWMutex
	baseURL   string
	token     string
	expiresAt time.Time
}

var _ Client = (*client)(nil)

func (c *client) TokenExpiresAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.expiresAt
}

func (c *client) session() (baseURL, token string, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL, c.token, c.token != "" && c.expiresAt.After(time.Now())
}

func (c *client) setSession(baseURL, token string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = strings.TrimRight(baseURL, "/")
	c.token = token
	c.expiresAt = expiresAt
}

func (c *client) dropToken(stale string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// a concurrent caller may already hold a fresher token
	if c.token == stale {
		c.token = ""
		c.expiresAt = time.Time{}
	}
}

func (c *client) loadConfig(ctx context.Context) (*integrationconfig.Config, error) {
	conf, err := c.store.load(ctx)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, ierr.NewError("e-billing integration not configured").
				WithHint("Save the MATIAS configuration for this tenant first").
				Mark(ierr.ErrNotConfigured)
		}
		return nil, err
	}
	if !conf.Enabled {
		return nil, ierr.NewError("e-billing integration disabled").
			WithHint("The MATIAS integration is disabled for this tenant").
			Mark(ierr.ErrNotConfigured)
	}
	if !conf.HasCredentials() || strings.TrimSpace(conf.BaseURL) == "" {
		return nil, ierr.NewError("e-billing integration is missing credentials").
			WithHint("Provide the provider URL, email and password").
			Mark(ierr.ErrNotConfigured)
	}
	return conf, nil
}

func (c *client) Initialize(ctx context.Context) error {
	if _, _, ok := c.session(); ok {
		return nil
	}

	conf, err := c.loadConfig(ctx)
	if err != nil {
		return err
	}

	if conf.HasValidToken(time.Now()) {
		token, err := c.vault.Decrypt(conf.EncryptedToken)
		if err == nil && token != "" {
			c.setSession(conf.BaseURL, token, *conf.TokenExpiresAt)
			return nil
		}
		c.logger.Warnw("stored provider token could not be decrypted, logging in again",
			"store", c.store.key(),
			"error", err)
	}

	return c.Authenticate(ctx)
}

// Authenticate logs in once per store however many callers overlap. The
// shared login runs detached from any single caller's cancellation.
func (c *client) Authenticate(ctx context.Context) error {
	done := c.logins.DoChan(c.store.key(), func() (interface{}, error) {
		loginCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return nil, c.login(loginCtx)
	})

	select {
	case res := <-done:
		if res.Shared {
			c.logger.Debugw("joined in-flight provider login", "store", c.store.key())
		}
		return res.Err
	case <-ctx.Done():
		return ierr.WithError(ctx.Err()).
			WithHint("Provider login was cancelled").
			Mark(ierr.ErrHTTPClient)
	}
}

func (c *client) login(ctx context.Context) error {
	conf, err := c.loadConfig(ctx)
	if err != nil {
		return err
	}

	password, err := c.vault.Decrypt(conf.EncryptedPassword)
	if err != nil {
		c.metrics.ObserveLogin(metrics.OutcomeFailure)
		return ierr.WithError(err).
			WithHint("Stored provider password could not be decrypted, save the credentials again").
			Mark(ierr.ErrNotConfigured)
	}

	body, err := json.Marshal(LoginRequest{
		Email:      conf.Email,
		Password:   password,
		RememberMe: true,
	})
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to encode login request").
			Mark(ierr.ErrSystem)
	}

	baseURL := strings.TrimRight(conf.BaseURL, "/")
	resp, status, err := c.do(ctx, "login", &httpclient.Request{
		Method:  http.MethodPost,
		URL:     baseURL + pathLogin,
		Headers: map[string]string{"Accept": "application/json"},
		Body:    body,
	})
	if err != nil {
		if status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusUnprocessableEntity {
			c.metrics.ObserveLogin(metrics.OutcomeAuth)
			return ierr.WithError(err).
				WithHint("The provider rejected the configured email or password").
				WithReportableDetails(map[string]any{
					"status_code": status,
				}).
				Mark(ierr.ErrProviderAuth)
		}
		c.metrics.ObserveLogin(metrics.OutcomeFailure)
		return err
	}

	var out loginResponse
	if err := decodeJSON(resp, &out); err != nil {
		c.metrics.ObserveLogin(metrics.OutcomeFailure)
		return err
	}
	token := out.token()
	if token == "" {
		c.metrics.ObserveLogin(metrics.OutcomeFailure)
		return ierr.NewError("login response carried no access token").
			WithHint("The provider answered the login without a token").
			Mark(ierr.ErrUnexpectedResponse)
	}

	now := time.Now().UTC()
	expiresAt := tokenExpiry(&out, now, c.defaultTTL)

	encrypted, err := c.vault.Encrypt(token)
	if err != nil {
		c.metrics.ObserveLogin(metrics.OutcomeFailure)
		return ierr.WithError(err).
			WithHint("Failed to encrypt provider token").
			Mark(ierr.ErrSystem)
	}
	if err := c.store.saveToken(ctx, encrypted, expiresAt); err != nil {
		// the token still works for this process
		c.logger.Errorw("failed to persist provider token",
			"store", c.store.key(),
			"error", err)
	}

	c.setSession(baseURL, token, expiresAt)
	c.metrics.ObserveLogin(metrics.OutcomeSuccess)
	c.logger.Infow("authenticated with e-billing provider",
		"store", c.store.key(),
		"token_expires_at", expiresAt)
	return nil
}

// tokenExpiry reads expires_at (RFC3339, "2006-01-02 15:04:05" or unix seconds/millis)
// or expires_in seconds, falling back to now+fallback
func tokenExpiry(r *loginResponse, now time.Time, fallback time.Duration) time.Time {
	expiresAt, expiresIn := r.expiry()

	if expiresAt != "" {
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, expiresAt); err == nil {
				return t.UTC()
			}
		}
		if n, err := strconv.ParseInt(expiresAt, 10, 64); err == nil && n > 0 {
			if n > 1e12 {
				return time.UnixMilli(n).UTC()
			}
			return time.Unix(n, 0).UTC()
		}
	}

	if expiresIn != "" {
		if secs, err := strconv.ParseFloat(expiresIn, 64); err == nil && secs > 0 {
			return now.Add(time.Duration(secs * float64(time.Second)))
		}
	}

	return now.Add(fallback)
}

func (c *client) Request(ctx context.Context, method, path string, query url.Values, body any) (*httpclient.Response, error) {
	return c.call(ctx, "request", method, path, query, body)
}

// call runs an authenticated request under the given metric operation
func (c *client) call(ctx context.Context, op, method, path string, query url.Values, body any) (*httpclient.Response, error) {
	if err := c.Initialize(ctx); err != nil {
		return nil, err
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Invalid request data").
				Mark(ierr.ErrValidation)
		}
	}

	baseURL, token, _ := c.session()
	resp, status, err := c.do(ctx, op, c.bearerRequest(method, baseURL, path, query, token, payload))
	if status != http.StatusUnauthorized {
		return resp, err
	}

	c.logger.Infow("provider token rejected, re-authenticating",
		"store", c.store.key(),
		"operation", op)
	c.sentry.AddBreadcrumb("matias", "token rejected, re-authenticating", map[string]interface{}{
		"operation": op,
	})
	c.dropToken(token)
	if err := c.Authenticate(ctx); err != nil {
		return nil, err
	}

	baseURL, token, _ = c.session()
	resp, status, err = c.do(ctx, op, c.bearerRequest(method, baseURL, path, query, token, payload))
	if status == http.StatusUnauthorized {
		c.dropToken(token)
		return nil, ierr.WithError(err).
			WithHint("The provider rejected a freshly issued token, check the integration credentials").
			WithReportableDetails(map[string]any{
				"operation": op,
			}).
			Mark(ierr.ErrProviderAuth)
	}
	return resp, err
}

func (c *client) bearerRequest(method, baseURL, path string, query url.Values, token string, body []byte) *httpclient.Request {
	u := baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return &httpclient.Request{
		Method: method,
		URL:    u,
		Headers: map[string]string{
			types.HeaderAuthorization: "Bearer " + token,
			"Accept":                  "application/json",
		},
		Body: body,
	}
}

// do sends one request with its own timeout and normalizes failures. status is
// zero when no response arrived.
func (c *client) do(ctx context.Context, op string, req *httpclient.Request) (resp *httpclient.Response, status int, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	span, ctx := c.sentry.StartProviderSpan(ctx, op, map[string]interface{}{
		"method": req.Method,
		"store":  c.store.key(),
	})
	started := time.Now()
	defer func() {
		sentry.FinishSpan(span, err)
		outcome := metrics.OutcomeSuccess
		if status == http.StatusUnauthorized {
			outcome = metrics.OutcomeAuth
		} else if err != nil {
			outcome = metrics.OutcomeFailure
		}
		c.metrics.ObserveProvider(op, outcome, started)
	}()

	resp, err = c.httpClient.Send(ctx, req)
	if err != nil {
		if httpErr, ok := httpclient.IsHTTPError(err); ok {
			return nil, httpErr.StatusCode, c.providerError(op, req, httpErr)
		}
		c.logger.Errorw("e-billing provider request failed",
			"operation", op,
			"method", req.Method,
			"store", c.store.key(),
			"error", err)
		return nil, 0, ierr.WithError(err).
			WithHint("Unable to reach the e-billing provider").
			WithReportableDetails(map[string]any{
				"operation": op,
				"method":    req.Method,
			}).
			Mark(ierr.ErrHTTPClient)
	}

	if isHTML(resp.Headers, resp.Body) {
		return nil, resp.StatusCode, htmlError(op, resp.StatusCode)
	}
	return resp, resp.StatusCode, nil
}

// providerError keeps the provider payload for diagnostics and surfaces its message as the hint
func (c *client) providerError(op string, req *httpclient.Request, httpErr *httpclient.Error) error {
	if isHTML(httpErr.Headers, httpErr.Response) {
		return htmlError(op, httpErr.StatusCode)
	}

	c.logger.Errorw("e-billing provider returned error",
		"operation", op,
		"method", req.Method,
		"status_code", httpErr.StatusCode,
		"store", c.store.key(),
		"response_body", truncate(string(httpErr.Response), 1024))

	hint := fmt.Sprintf("The e-billing provider returned status %d", httpErr.StatusCode)
	var body map[string]any
	if json.Unmarshal(httpErr.Response, &body) == nil {
		if msg := pickString(envelope(body), "message", "error", "detail"); msg != "" {
			hint = msg
		}
	}

	return ierr.WithError(httpErr).
		WithHint(hint).
		WithReportableDetails(map[string]any{
			"operation":     op,
			"status_code":   httpErr.StatusCode,
			"response_body": truncate(string(httpErr.Response), 4096),
		}).
		Mark(ierr.ErrHTTPClient)
}

func htmlError(op string, status int) error {
	return ierr.NewError("provider answered with an HTML page").
		WithHint("The e-billing provider URL looks misconfigured, an HTML page was returned instead of JSON").
		WithReportableDetails(map[string]any{
			"operation":   op,
			"status_code": status,
		}).
		Mark(ierr.ErrUnexpectedResponse)
}

const htmlSniffLen = 64

// isHTML detects load balancer and proxy error pages before any JSON parse
func isHTML(headers map[string]string, body []byte) bool {
	for k, v := range headers {
		if strings.EqualFold(k, "Content-Type") && strings.Contains(strings.ToLower(v), "text/html") {
			return true
		}
	}
	head := bytes.TrimLeft(body, " \t\r\n")
	if len(head) > htmlSniffLen {
		head = head[:htmlSniffLen]
	}
	head = bytes.ToLower(head)
	return bytes.HasPrefix(head, []byte("<!doctype")) || bytes.HasPrefix(head, []byte("<html"))
}

func decodeJSON(resp *httpclient.Response, out any) error {
	if isHTML(resp.Headers, resp.Body) {
		return htmlError("decode", resp.StatusCode)
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return ierr.WithError(err).
			WithHint("The e-billing provider returned a malformed response").
			WithReportableDetails(map[string]any{
				"response_body": truncate(string(resp.Body), 1024),
			}).
			Mark(ierr.ErrUnexpectedResponse)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
