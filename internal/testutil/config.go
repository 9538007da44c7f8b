package testutil

import (
	"time"

	"github.com/flexprice/ebilling/internal/config"
	"github.com/flexprice/ebilling/internal/types"
)

const (
	TestEncryptionKey = "test-encryption-key-for-unit-tests-only"
	TestJWTSecret     = "test-jwt-secret"
	TestCronKey       = "test-cron-key"
)

// NewTestConfig returns the default configuration with secrets filled in and
// short provider timeouts
func NewTestConfig() *config.Configuration {
	cfg := config.GetDefaultConfig()
	cfg.Logging.Level = types.LogLevelInfo
	cfg.Secrets.EncryptionKey = TestEncryptionKey
	cfg.Auth.Secret = TestJWTSecret
	cfg.Cron.APIKey = TestCronKey
	cfg.Matias.RequestTimeout = 5 * time.Second
	cfg.Matias.TestTimeout = 5 * time.Second
	cfg.Matias.RetryMax = 0
	cfg.Matias.BreakerFailures = 0
	cfg.Reconcile.RequestsPerSecond = 0
	cfg.RBAC.RolesConfigPath = ""
	return cfg
}
