package auth

import (
	"context"
	"time"

	"github.com/flexprice/ebilling/internal/config"
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/types"
	"github.com/golang-jwt/jwt/v4"
)

type jwtAuth struct {
	AuthConfig config.AuthConfig
}

func NewJWTAuth(cfg *config.Configuration) *jwtAuth {
	return &jwtAuth{
		AuthConfig: cfg.Auth,
	}
}

func (a *jwtAuth) ValidateToken(ctx context.Context, token string) (*Claims, error) {
	parsedToken, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ierr.NewErrorf("unexpected signing method: %v", token.Header["alg"]).
				WithHint("Unsupported token signing method").
				Mark(ierr.ErrUnauthenticated)
		}
		return []byte(a.AuthConfig.Secret), nil
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Invalid or expired token").
			Mark(ierr.ErrUnauthenticated)
	}

	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok || !parsedToken.Valid {
		return nil, ierr.NewError("invalid token claims").
			WithHint("Invalid token claims").
			Mark(ierr.ErrUnauthenticated)
	}

	if a.AuthConfig.Issuer != "" && !claims.VerifyIssuer(a.AuthConfig.Issuer, true) {
		return nil, ierr.NewError("token issuer mismatch").
			WithHint("Token was not issued for this service").
			Mark(ierr.ErrUnauthenticated)
	}

	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return nil, ierr.NewError("token missing user ID").
			WithHint("Token missing user ID").
			Mark(ierr.ErrUnauthenticated)
	}

	// the role is taken as issued, there is no mapping from tenant roles
	role, _ := claims["role"].(string)
	if !types.IsValidRole(role) {
		return nil, ierr.NewErrorf("token carries unknown role %q", role).
			WithHint("Token does not carry an operator role").
			Mark(ierr.ErrPermissionDenied)
	}

	return &Claims{UserID: userID, Role: types.Role(role)}, nil
}

func (a *jwtAuth) GenerateToken(userID string, role types.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    string(role),
		"exp":     now.Add(ttl).Unix(),
		"iat":     now.Unix(),
	}
	if a.AuthConfig.Issuer != "" {
		claims["iss"] = a.AuthConfig.Issuer
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(a.AuthConfig.Secret))
	if err != nil {
		return "", ierr.WithError(err).
			WithHint("Failed to sign token").
			Mark(ierr.ErrSystem)
	}
	return signed, nil
}
