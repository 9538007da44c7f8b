package middleware

import (
	"strings"

	"github.com/flexprice/ebilling/internal/auth"
	"github.com/flexprice/ebilling/internal/config"
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/logger"
	"github.com/flexprice/ebilling/internal/types"
	"github.com/gin-gonic/gin"
)

// AuthenticateMiddleware validates the operator JWT in the Authorization
// header and sets the user ID and role in the request context
func AuthenticateMiddleware(cfg *config.Configuration, logger *logger.Logger) gin.HandlerFunc {
	authProvider := auth.NewProvider(cfg)

	return func(c *gin.Context) {
		authHeader := c.GetHeader(types.HeaderAuthorization)
		if authHeader == "" {
			abortWithError(c, ierr.NewError("missing authorization header").
				WithHint("Unauthorized").
				Mark(ierr.ErrUnauthenticated))
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			abortWithError(c, ierr.NewError("invalid authorization header format").
				WithHint("Invalid authorization header format").
				Mark(ierr.ErrUnauthenticated))
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := authProvider.ValidateToken(c.Request.Context(), tokenString)
		if err != nil {
			logger.Debugw("rejected operator token", "error", err, "path", c.Request.URL.Path)
			abortWithError(c, err)
			return
		}

		ctx := c.Request.Context()
		ctx = types.SetUserID(ctx, claims.UserID)
		ctx = types.SetRoles(ctx, []string{string(claims.Role)})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CronAuthMiddleware guards the endpoints hit by the external scheduler.
// Work done behind it is attributed to the system actor.
func CronAuthMiddleware(cfg *config.Configuration, logger *logger.Logger) gin.HandlerFunc {
	header := cfg.Cron.Header
	if header == "" {
		header = "x-cron-key"
	}

	return func(c *gin.Context) {
		if !auth.ValidateCronKey(cfg, c.GetHeader(header)) {
			logger.Warnw("rejected cron call", "path", c.Request.URL.Path, "client_ip", c.ClientIP())
			abortWithError(c, ierr.NewError("invalid cron key").
				WithHint("Invalid API key").
				Mark(ierr.ErrUnauthenticated))
			return
		}
		c.Next()
	}
}

func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
