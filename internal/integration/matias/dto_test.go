package matias

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/flexprice/ebilling/internal/types"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fallback := 365 * 24 * time.Hour

	tests := []struct {
		name string
		body string
		want time.Time
	}{
		{name: "rfc3339", body: `{"expires_at":"2026-03-02T12:00:00Z"}`, want: now.Add(24 * time.Hour)},
		{name: "sql datetime", body: `{"expires_at":"2026-03-01 18:30:00"}`, want: time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC)},
		{name: "unix seconds", body: `{"expires_at":1772452800}`, want: time.Unix(1772452800, 0).UTC()},
		{name: "unix millis", body: `{"expires_at":"1772452800000"}`, want: time.Unix(1772452800, 0).UTC()},
		{name: "expires in number", body: `{"expires_in":3600}`, want: now.Add(time.Hour)},
		{name: "expires in string", body: `{"expires_in":"7200"}`, want: now.Add(2 * time.Hour)},
		{name: "nested envelope", body: `{"data":{"expires_in":60}}`, want: now.Add(time.Minute)},
		{name: "garbage falls back", body: `{"expires_at":"soon"}`, want: now.Add(fallback)},
		{name: "missing falls back", body: `{}`, want: now.Add(fallback)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r loginResponse
			require.NoError(t, json.Unmarshal([]byte(tt.body), &r))
			assert.True(t, tt.want.Equal(tokenExpiry(&r, now, fallback)), "got %s", tokenExpiry(&r, now, fallback))
		})
	}
}

func TestLoginResponseToken(t *testing.T) {
	var flat, nested loginResponse
	require.NoError(t, json.Unmarshal([]byte(`{"token":"abc"}`), &flat))
	require.NoError(t, json.Unmarshal([]byte(`{"data":{"access_token":"xyz"}}`), &nested))
	assert.Equal(t, "abc", flat.token())
	assert.Equal(t, "xyz", nested.token())
}

func TestIsHTML(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		body    string
		want    bool
	}{
		{name: "content type", headers: map[string]string{"content-type": "text/html; charset=UTF-8"}, body: "Bad gateway", want: true},
		{name: "doctype body", body: "  <!DOCTYPE html><html><body>502</body></html>", want: true},
		{name: "html body", body: "<html>", want: true},
		{name: "json", headers: map[string]string{"Content-Type": "application/json"}, body: `{"success":true}`},
		{name: "empty", body: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isHTML(tt.headers, []byte(tt.body)))
		})
	}
}

func TestStatusResultDocumentStatus(t *testing.T) {
	tests := []struct {
		name   string
		result *StatusResult
		want   types.DocumentStatus
		ok     bool
	}{
		{name: "nil", result: nil},
		{name: "failed call", result: &StatusResult{Success: false, Status: "ACCEPTED"}},
		{name: "is valid", result: &StatusResult{Success: true, IsValid: lo.ToPtr(true)}, want: types.DocumentStatusAccepted, ok: true},
		{name: "not valid without status", result: &StatusResult{Success: true, IsValid: lo.ToPtr(false)}, want: types.DocumentStatusRejected, ok: true},
		{name: "not valid but processing", result: &StatusResult{Success: true, IsValid: lo.ToPtr(false), Status: "PROCESSING"}},
		{name: "spanish accepted", result: &StatusResult{Success: true, Status: " aceptado "}, want: types.DocumentStatusAccepted, ok: true},
		{name: "spanish rejected", result: &StatusResult{Success: true, Status: "RECHAZADA"}, want: types.DocumentStatusRejected, ok: true},
		{name: "pending", result: &StatusResult{Success: true, Status: "EN_PROCESO"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.result.DocumentStatus()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFlexString(t *testing.T) {
	var v struct {
		A flexString `json:"a"`
		B flexString `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"x","b":12.5}`), &v))
	assert.Equal(t, flexString("x"), v.A)
	assert.Equal(t, flexString("12.5"), v.B)
}
