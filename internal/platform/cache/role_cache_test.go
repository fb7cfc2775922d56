package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/campusnest/api/internal/domain"
	"github.com/campusnest/api/internal/platform/config"
)

func newTestCache(t *testing.T) (*RoleCache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRoleCache(client, time.Minute), srv
}

func TestRoleCacheRoundTripsVariants(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	principals := []domain.Principal{
		domain.AdminPrincipal{ID: "a1", Name: "Ops", Email: "ops@campus.lk"},
		domain.ShopOwnerPrincipal{ID: "s1", ShopName: "Campus Bites", Phone: "0771234567", Address: "Gate 2"},
		domain.StudentPrincipal{ID: "u1", Name: "Kasun", Email: "kasun@campus.lk"},
	}
	for _, p := range principals {
		if err := cache.Set(ctx, p); err != nil {
			t.Fatalf("set %s: %v", p.UID(), err)
		}
		got, ok, err := cache.Get(ctx, p.UID())
		if err != nil || !ok {
			t.Fatalf("get %s: ok=%v err=%v", p.UID(), ok, err)
		}
		if got != p {
			t.Fatalf("expected %#v, got %#v", p, got)
		}
	}
}

func TestRoleCacheMissAndExpiry(t *testing.T) {
	cache, srv := newTestCache(t)
	ctx := context.Background()

	if _, ok, err := cache.Get(ctx, "nobody"); ok || err != nil {
		t.Fatalf("expected clean miss, ok=%v err=%v", ok, err)
	}

	if err := cache.Set(ctx, domain.StudentPrincipal{ID: "u1"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	srv.FastForward(2 * time.Minute)
	if _, ok, _ := cache.Get(ctx, "u1"); ok {
		t.Fatal("expected entry to expire")
	}
}

func TestRoleCacheIgnoresNilAndInvalidates(t *testing.T) {
	cache, srv := newTestCache(t)
	ctx := context.Background()

	if err := cache.Set(ctx, nil); err != nil {
		t.Fatalf("set nil: %v", err)
	}
	if len(srv.Keys()) != 0 {
		t.Fatalf("expected nothing stored for nil principal, got %v", srv.Keys())
	}

	_ = cache.Set(ctx, domain.AdminPrincipal{ID: "a1"})
	if err := cache.Invalidate(ctx, "a1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok, _ := cache.Get(ctx, "a1"); ok {
		t.Fatal("expected invalidated entry to be gone")
	}
}

func TestDial(t *testing.T) {
	ctx := context.Background()
	if c, err := Dial(ctx, config.CacheConfig{}); c != nil || err != nil {
		t.Fatalf("expected disabled cache, got %v %v", c, err)
	}

	srv := miniredis.RunT(t)
	c, err := Dial(ctx, config.CacheConfig{RedisAddr: srv.Addr(), RoleTTL: time.Minute})
	if err != nil || c == nil {
		t.Fatalf("dial: %v", err)
	}
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	srv.Close()
	if err := c.Ping(ctx); err == nil {
		t.Fatalf("expected ping to fail after the server stopped")
	}
	_ = c.Close()
}
