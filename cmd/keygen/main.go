package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/flexprice/ebilling/internal/auth"
	"github.com/flexprice/ebilling/internal/config"
	"github.com/flexprice/ebilling/internal/logger"
	"github.com/flexprice/ebilling/internal/security"
	"github.com/flexprice/ebilling/internal/types"
)

// keygen prints a random secret for secrets.encryption_key or cron.api_key.
// With -user it instead signs an operator token with the configured auth
// secret, and with -encrypt it seals a value with the configured vault key.
func main() {
	userID := flag.String("user", "", "Operator user ID to issue a token for")
	role := flag.String("role", string(types.RoleSupportAgent), "Operator role: superadmin, supportagent or billingops")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	encrypt := flag.String("encrypt", "", "Plaintext to encrypt with the configured vault key, e.g. matias.platform_password")
	flag.Parse()

	switch {
	case *userID != "":
		if !types.IsValidRole(*role) {
			log.Fatalf("Unknown role %q", *role)
		}
		cfg, err := config.NewConfig()
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		token, err := auth.NewProvider(cfg).GenerateToken(*userID, types.Role(*role), *ttl)
		if err != nil {
			log.Fatalf("Failed to sign token: %v", err)
		}
		fmt.Println(token)
	case *encrypt != "":
		cfg, err := config.NewConfig()
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		vault, err := security.NewEncryptionService(cfg, logger.L)
		if err != nil {
			log.Fatalf("Failed to create vault: %v", err)
		}
		sealed, err := vault.Encrypt(*encrypt)
		if err != nil {
			log.Fatalf("Failed to encrypt: %v", err)
		}
		fmt.Println(sealed)
	default:
		fmt.Println(generateKey())
	}
}

// generateKey creates a random 256-bit secret, hex encoded
func generateKey() string {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		log.Fatalf("Unable to generate key: %v", err)
	}
	return hex.EncodeToString(key)
}
