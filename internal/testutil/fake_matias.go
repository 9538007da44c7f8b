package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// FakeMatias is an httptest double of the MATIAS e-billing API. Handlers can
// be overridden per path; every call is counted.
type FakeMatias struct {
	Server *httptest.Server

	Email    string
	Password string

	mu        sync.Mutex
	tokens    []string
	overrides map[string]http.HandlerFunc
	calls     map[string]int
	logins    atomic.Int32
	// LoginResponse replaces the default expiry fields of the login body when set
	LoginResponse map[string]any
	// Statuses maps track id to the status body returned by /status/document/:id
	Statuses map[string]map[string]any
	// PDF is served by /documents/pdf/:trackId
	PDF []byte
	// Attached is served by /documents/attached/:trackId
	Attached []byte
	// LoginDelay slows down every login, to overlap concurrent callers
	LoginDelay time.Duration
	nextTrack  atomic.Int32
}

// NewFakeMatias starts a fake provider accepting the given credentials
func NewFakeMatias(email, password string) *FakeMatias {
	f := &FakeMatias{
		Email:     email,
		Password:  password,
		overrides: make(map[string]http.HandlerFunc),
		calls:     make(map[string]int),
		Statuses:  make(map[string]map[string]any),
		PDF:       []byte("%PDF-1.4\n%fake\n"),
		Attached:  []byte{0x50, 0x4B, 0x03, 0x04, 0x14, 0x00, 0x00, 0x00},
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	return f
}

// URL is the base URL of the fake
func (f *FakeMatias) URL() string {
	return f.Server.URL
}

func (f *FakeMatias) Close() {
	f.Server.Close()
}

// Handle overrides the handler of an exact path
func (f *FakeMatias) Handle(path string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[path] = h
}

// Calls returns how many times a path was hit
func (f *FakeMatias) Calls(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

// TotalCalls returns the number of requests served
func (f *FakeMatias) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// Logins returns the number of successful logins
func (f *FakeMatias) Logins() int {
	return int(f.logins.Load())
}

// RevokeTokens makes every issued token answer 401
func (f *FakeMatias) RevokeTokens() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = nil
}

func (f *FakeMatias) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls[r.URL.Path]++
	h, overridden := f.overrides[r.URL.Path]
	f.mu.Unlock()

	if overridden {
		h(w, r)
		return
	}

	if r.URL.Path == "/auth/login" {
		f.login(w, r)
		return
	}
	if !f.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthenticated."})
		return
	}

	switch {
	case r.Method == http.MethodPost && (r.URL.Path == "/invoice" || strings.HasPrefix(r.URL.Path, "/notes/") || strings.HasPrefix(r.URL.Path, "/ds/")):
		n := f.nextTrack.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{
			"success":        true,
			"message":        "Documento recibido",
			"trackId":        "track-" + strconv.Itoa(int(n)),
			"documentNumber": "SETP" + strconv.Itoa(990000000+int(n)),
		})
	case strings.HasPrefix(r.URL.Path, "/status/document/"):
		trackID := strings.TrimPrefix(r.URL.Path, "/status/document/")
		f.mu.Lock()
		body, ok := f.Statuses[trackID]
		f.mu.Unlock()
		if !ok {
			body = map[string]any{"success": true, "status": "PROCESSING"}
		}
		writeJSON(w, http.StatusOK, body)
	case r.URL.Path == "/status":
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": "PROCESSING"})
	case strings.HasPrefix(r.URL.Path, "/documents/pdf/"):
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(f.PDF)
	case strings.HasPrefix(r.URL.Path, "/documents/attached/"):
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(f.Attached)
	case r.URL.Path == "/documents/last":
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"number":     "990000123",
				"prefix":     r.URL.Query().Get("prefix"),
				"resolution": r.URL.Query().Get("resolution"),
			},
		})
	case r.URL.Path == "/documents":
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": []any{}})
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "not found"})
	}
}

func (f *FakeMatias) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		RememberMe bool   `json:"remember_me"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "bad request"})
		return
	}
	if req.Email != f.Email || req.Password != f.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Invalid credentials"})
		return
	}

	if f.LoginDelay > 0 {
		time.Sleep(f.LoginDelay)
	}
	n := f.logins.Add(1)
	token := "token-" + strconv.Itoa(int(n))
	f.mu.Lock()
	f.tokens = append(f.tokens, token)
	body := f.LoginResponse
	f.mu.Unlock()

	resp := map[string]any{"access_token": token, "expires_in": 3600}
	if body != nil {
		resp = map[string]any{"access_token": token}
		for k, v := range body {
			resp[k] = v
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (f *FakeMatias) authorized(r *http.Request) bool {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tokens {
		if t == token {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
