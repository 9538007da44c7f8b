package matias

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/flexprice/ebilling/internal/types"
	"github.com/samber/lo"
)

// Provider endpoints
const (
	pathLogin             = "/auth/login"
	pathInvoice           = "/invoice"
	pathCreditNote        = "/notes/credit"
	pathDebitNote         = "/notes/debit"
	pathSupportDocument   = "/ds/document"
	pathSupportAdjustment = "/ds/adjustment-note"
	pathStatus            = "/status"
	pathStatusByTrackID   = "/status/document/"
	pathDocuments         = "/documents"
	pathLastDocument      = "/documents/last"
	pathPDF               = "/documents/pdf/"
	pathAttached          = "/documents/attached/"
)

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

// loginResponse accepts both the flat and the {data:{...}} envelope
type loginResponse struct {
	AccessToken string         `json:"access_token"`
	Token       string         `json:"token"`
	ExpiresAt   flexString     `json:"expires_at"`
	ExpiresIn   flexString     `json:"expires_in"`
	Data        *loginResponse `json:"data"`
}

func (r *loginResponse) token() string {
	if r.AccessToken != "" {
		return r.AccessToken
	}
	if r.Token != "" {
		return r.Token
	}
	if r.Data != nil {
		return r.Data.token()
	}
	return ""
}

func (r *loginResponse) expiry() (expiresAt, expiresIn string) {
	expiresAt, expiresIn = strings.TrimSpace(string(r.ExpiresAt)), strings.TrimSpace(string(r.ExpiresIn))
	if expiresAt == "" && expiresIn == "" && r.Data != nil {
		return r.Data.expiry()
	}
	return expiresAt, expiresIn
}

// DocumentResult is the normalized outcome of any document submission
type DocumentResult struct {
	Success        bool   `json:"success"`
	Message        string `json:"message,omitempty"`
	TrackID        string `json:"track_id,omitempty"`
	DocumentNumber string `json:"document_number,omitempty"`
	Prefix         string `json:"prefix,omitempty"`
	// Err is set whenever Success is false
	Err error `json:"-"`
}

// StatusResult is the provider's view of a submitted document
type StatusResult struct {
	Success bool           `json:"success"`
	Status  string         `json:"status,omitempty"`
	IsValid *bool          `json:"is_valid,omitempty"`
	Message string         `json:"message,omitempty"`
	Raw     map[string]any `json:"raw,omitempty"`
	Err     error          `json:"-"`
}

var (
	acceptedStatuses = []string{"ACCEPTED", "APPROVED", "VALID", "ACEPTADO", "ACEPTADA", "EXITOSO"}
	rejectedStatuses = []string{"REJECTED", "INVALID", "RECHAZADO", "RECHAZADA", "ERROR"}
)

// DocumentStatus maps the provider answer onto the queue status machine.
// ok is false while the tax authority has not decided yet.
func (r *StatusResult) DocumentStatus() (status types.DocumentStatus, ok bool) {
	if r == nil || !r.Success {
		return "", false
	}
	if r.IsValid != nil {
		if *r.IsValid {
			return types.DocumentStatusAccepted, true
		}
		if r.Status == "" {
			return types.DocumentStatusRejected, true
		}
	}
	s := strings.ToUpper(strings.TrimSpace(r.Status))
	switch {
	case lo.Contains(acceptedStatuses, s):
		return types.DocumentStatusAccepted, true
	case lo.Contains(rejectedStatuses, s):
		return types.DocumentStatusRejected, true
	}
	return "", false
}

// Download is a binary artifact fetched from the provider
type Download struct {
	Data        []byte
	ContentType string
}

// LastDocument is the last number issued under a series
type LastDocument struct {
	Number     string         `json:"number"`
	Prefix     string         `json:"prefix"`
	Resolution string         `json:"resolution"`
	Raw        map[string]any `json:"raw,omitempty"`
}

// flexString accepts a JSON string or number
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// envelope returns the object holding the result fields, unwrapping {data:{...}}
func envelope(m map[string]any) map[string]any {
	if data, ok := m["data"].(map[string]any); ok {
		merged := make(map[string]any, len(m)+len(data))
		for k, v := range m {
			merged[k] = v
		}
		for k, v := range data {
			if _, exists := merged[k]; !exists {
				merged[k] = v
			}
		}
		return merged
	}
	return m
}

func pickString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			return v.String()
		}
	}
	return ""
}

func pickBool(m map[string]any, keys ...string) *bool {
	for _, k := range keys {
		switch v := m[k].(type) {
		case bool:
			return lo.ToPtr(v)
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				return lo.ToPtr(b)
			}
		}
	}
	return nil
}

// decodeBase64 accepts standard and URL-safe encodings, with or without padding
func decodeBase64(s string) ([]byte, bool) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ";base64,"); i >= 0 {
		s = s[i+len(";base64,"):]
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, true
		}
	}
	return nil, false
}
