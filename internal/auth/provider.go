package auth

import (
	"context"
	"time"

	"github.com/flexprice/ebilling/internal/config"
	"github.com/flexprice/ebilling/internal/types"
)

// Claims identifies the operator behind a request
type Claims struct {
	UserID string
	Role   types.Role
}

type Provider interface {
	ValidateToken(ctx context.Context, token string) (*Claims, error)
	// GenerateToken issues an operator token, used by tooling and tests
	GenerateToken(userID string, role types.Role, ttl time.Duration) (string, error)
}

func NewProvider(cfg *config.Configuration) Provider {
	return NewJWTAuth(cfg)
}
