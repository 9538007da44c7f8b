package middleware

import (
	"time"

	"github.com/flexprice/ebilling/internal/config"
	"github.com/flexprice/ebilling/internal/types"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

// CORSMiddleware allows the admin console origins. No configured origin
// means any origin, without credentials.
func CORSMiddleware(cfg *config.Configuration) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", types.HeaderAuthorization, types.HeaderRequestID},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition", types.HeaderRequestID},
		MaxAge:        24 * time.Hour,
	}

	origins := lo.Compact(cfg.Server.AllowedOrigins)
	if len(origins) == 0 || lo.Contains(origins, "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
		corsConfig.AllowCredentials = true
	}

	return cors.New(corsConfig)
}
