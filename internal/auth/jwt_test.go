package auth

import (
	"context"
	"testing"
	"time"

	"github.com/flexprice/ebilling/internal/config"
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/types"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Configuration {
	return &config.Configuration{
		Auth: config.AuthConfig{Secret: "test-secret", Issuer: "ebilling"},
		Cron: config.CronConfig{APIKey: "cron-key"},
	}
}

func TestTokenRoundTrip(t *testing.T) {
	provider := NewProvider(testConfig())

	token, err := provider.GenerateToken("operator_1", types.RoleSupportAgent, time.Hour)
	require.NoError(t, err)

	claims, err := provider.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "operator_1", claims.UserID)
	assert.Equal(t, types.RoleSupportAgent, claims.Role)
}

func TestValidateTokenRejects(t *testing.T) {
	cfg := testConfig()
	sign := func(claims jwt.MapClaims, secret string) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return s
	}
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name       string
		token      string
		permission bool
	}{
		{name: "garbage", token: "not-a-token"},
		{name: "wrong secret", token: sign(jwt.MapClaims{"user_id": "u", "role": "superadmin", "iss": "ebilling", "exp": exp}, "other")},
		{name: "expired", token: sign(jwt.MapClaims{"user_id": "u", "role": "superadmin", "iss": "ebilling", "exp": time.Now().Add(-time.Minute).Unix()}, "test-secret")},
		{name: "wrong issuer", token: sign(jwt.MapClaims{"user_id": "u", "role": "superadmin", "iss": "someone", "exp": exp}, "test-secret")},
		{name: "missing user", token: sign(jwt.MapClaims{"role": "superadmin", "iss": "ebilling", "exp": exp}, "test-secret")},
		{name: "missing role", token: sign(jwt.MapClaims{"user_id": "u", "iss": "ebilling", "exp": exp}, "test-secret"), permission: true},
		{name: "tenant role", token: sign(jwt.MapClaims{"user_id": "u", "role": "owner", "iss": "ebilling", "exp": exp}, "test-secret"), permission: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewJWTAuth(cfg).ValidateToken(context.Background(), tt.token)
			require.Error(t, err)
			if tt.permission {
				assert.True(t, ierr.IsPermissionDenied(err))
			} else {
				assert.True(t, ierr.Is(err, ierr.ErrUnauthenticated))
			}
		})
	}
}

func TestValidateCronKey(t *testing.T) {
	cfg := testConfig()
	assert.True(t, ValidateCronKey(cfg, "cron-key"))
	assert.False(t, ValidateCronKey(cfg, "cron-key "))
	assert.False(t, ValidateCronKey(cfg, ""))

	cfg.Cron.APIKey = ""
	assert.False(t, ValidateCronKey(cfg, ""))
}
