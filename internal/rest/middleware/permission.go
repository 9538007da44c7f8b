package middleware

import (
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/logger"
	"github.com/flexprice/ebilling/internal/rbac"
	"github.com/flexprice/ebilling/internal/types"
	"github.com/gin-gonic/gin"
)

// PermissionMiddleware handles RBAC permission checks
type PermissionMiddleware struct {
	rbacService *rbac.RBACService
	logger      *logger.Logger
}

func NewPermissionMiddleware(rbacService *rbac.RBACService, logger *logger.Logger) *PermissionMiddleware {
	return &PermissionMiddleware{
		rbacService: rbacService,
		logger:      logger,
	}
}

// RequirePermission returns a middleware that checks for entity.action on
// the roles set by AuthenticateMiddleware
func (pm *PermissionMiddleware) RequirePermission(entity string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		roles := types.GetRoles(ctx)
		if len(roles) == 0 {
			abortWithError(c, ierr.NewError("no operator role in context").
				WithHint("Unauthorized").
				Mark(ierr.ErrUnauthenticated))
			return
		}

		if !pm.rbacService.HasPermission(roles, entity, action) {
			pm.logger.Infow("permission denied",
				"user_id", types.GetUserID(ctx),
				"roles", roles,
				"entity", entity,
				"action", action,
				"path", c.Request.URL.Path,
			)
			abortWithError(c, ierr.NewErrorf("missing permission %s.%s", entity, action).
				WithHintf("Insufficient permissions to %s %s", action, entity).
				Mark(ierr.ErrPermissionDenied))
			return
		}

		c.Next()
	}
}
