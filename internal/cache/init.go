package cache

import (
	"github.com/flexprice/ebilling/internal/config"
	"github.com/flexprice/ebilling/internal/logger"
)

// Initialize builds the process cache used by the server
func Initialize(cfg *config.Configuration, log *logger.Logger) Cache {
	log.Infow("initializing cache system", "enabled", cfg.Cache.Enabled)
	return NewInMemoryCache(cfg)
}
