package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRedisCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis integration tests")
	}

	ctx := context.Background()
	cache, err := NewRedisCache(ctx, RedisOptions{Addr: addr})
	if err != nil {
		t.Fatalf("NewRedisCache() error = %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })

	key := "patchtriage-test:" + uuid.NewString()
	if err := cache.Set(ctx, key, "v1", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	value, found, err := cache.Get(ctx, key)
	if err != nil || !found || value != "v1" {
		t.Fatalf("Get() = %q, %v, %v", value, found, err)
	}

	if err := cache.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, found, err := cache.Get(ctx, key); err != nil || found {
		t.Fatalf("Get() after delete = %v, %v", found, err)
	}
}
