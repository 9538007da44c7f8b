package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/flexprice/ebilling/internal/config"
)

// HashAPIKey creates a SHA-256 hash of the API key
func HashAPIKey(key string) string {
	hasher := sha256.New()
	hasher.Write([]byte(key))
	return hex.EncodeToString(hasher.Sum(nil))
}

// ValidateCronKey checks the scheduler key. An unset key rejects every call.
func ValidateCronKey(cfg *config.Configuration, key string) bool {
	if cfg.Cron.APIKey == "" || key == "" {
		return false
	}
	expected := HashAPIKey(cfg.Cron.APIKey)
	return subtle.ConstantTimeCompare([]byte(HashAPIKey(key)), []byte(expected)) == 1
}
