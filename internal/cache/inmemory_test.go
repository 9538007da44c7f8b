package cache

import (
	"context"
	"testing"
	"time"

	"github.com/flexprice/ebilling/internal/config"
	"github.com/stretchr/testify/assert"
)

func newTestCache(enabled bool) *InMemoryCache {
	cfg := config.GetDefaultConfig()
	cfg.Cache.Enabled = enabled
	return NewInMemoryCache(cfg)
}

func TestInMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(true)

	c.Set(ctx, GenerateKey(PrefixMatiasClient, "t1"), "client-1", time.Minute)
	c.Set(ctx, GenerateKey(PrefixMatiasClient, "t2"), "client-2", 0)
	c.Set(ctx, GenerateKey(PrefixPackage, "p1"), "pkg", time.Minute)

	v, ok := c.Get(ctx, "matias_client:v1::t1")
	assert.True(t, ok)
	assert.Equal(t, "client-1", v)

	c.Delete(ctx, GenerateKey(PrefixMatiasClient, "t1"))
	_, ok = c.Get(ctx, GenerateKey(PrefixMatiasClient, "t1"))
	assert.False(t, ok)

	c.DeleteByPrefix(ctx, PrefixMatiasClient)
	_, ok = c.Get(ctx, GenerateKey(PrefixMatiasClient, "t2"))
	assert.False(t, ok)

	_, ok = c.Get(ctx, GenerateKey(PrefixPackage, "p1"))
	assert.True(t, ok)

	c.Flush(ctx)
	_, ok = c.Get(ctx, GenerateKey(PrefixPackage, "p1"))
	assert.False(t, ok)
}

func TestDisabledCacheAlwaysMisses(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(false)

	c.Set(ctx, "k", "v", time.Minute)
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}
