// Package cache keeps resolved principals in Redis so route guards avoid a Firestore
// round trip on every request.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/campusnest/api/internal/domain"
	"github.com/campusnest/api/internal/platform/config"
)

const (
	keyPrefix      = "campusnest:role:"
	defaultRoleTTL = 5 * time.Minute
)

// RoleCache stores principals keyed by uid. Only resolved principals are stored.
type RoleCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRoleCache wraps an existing client.
func NewRoleCache(client redis.UniversalClient, ttl time.Duration) *RoleCache {
	if ttl <= 0 {
		ttl = defaultRoleTTL
	}
	return &RoleCache{client: client, ttl: ttl}
}

// Dial connects to the configured Redis. It returns nil, nil when no address is set.
func Dial(ctx context.Context, cfg config.CacheConfig) (*RoleCache, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.RedisPassword})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: ping redis: %w", err)
	}
	return NewRoleCache(client, cfg.RoleTTL), nil
}

type cachedPrincipal struct {
	Role     domain.Role `json:"role"`
	ID       string      `json:"id"`
	Name     string      `json:"name,omitempty"`
	Email    string      `json:"email,omitempty"`
	Phone    string      `json:"phone,omitempty"`
	ShopName string      `json:"shopName,omitempty"`
	Address  string      `json:"address,omitempty"`
}

func toCached(p domain.Principal) (cachedPrincipal, bool) {
	switch v := p.(type) {
	case domain.AdminPrincipal:
		return cachedPrincipal{Role: domain.RoleAdmin, ID: v.ID, Name: v.Name, Email: v.Email}, true
	case domain.ShopOwnerPrincipal:
		return cachedPrincipal{Role: domain.RoleShopOwner, ID: v.ID, ShopName: v.ShopName, Email: v.Email, Phone: v.Phone, Address: v.Address}, true
	case domain.StudentPrincipal:
		return cachedPrincipal{Role: domain.RoleStudent, ID: v.ID, Name: v.Name, Email: v.Email, Phone: v.Phone}, true
	}
	return cachedPrincipal{}, false
}

func (c cachedPrincipal) principal() domain.Principal {
	switch c.Role {
	case domain.RoleAdmin:
		return domain.AdminPrincipal{ID: c.ID, Name: c.Name, Email: c.Email}
	case domain.RoleShopOwner:
		return domain.ShopOwnerPrincipal{ID: c.ID, ShopName: c.ShopName, Email: c.Email, Phone: c.Phone, Address: c.Address}
	case domain.RoleStudent:
		return domain.StudentPrincipal{ID: c.ID, Name: c.Name, Email: c.Email, Phone: c.Phone}
	}
	return nil
}

// Get returns the cached principal. A miss yields (nil, false, nil).
func (c *RoleCache) Get(ctx context.Context, uid string) (domain.Principal, bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+uid).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get role: %w", err)
	}
	var entry cachedPrincipal
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, fmt.Errorf("cache: decode role: %w", err)
	}
	principal := entry.principal()
	if principal == nil {
		return nil, false, nil
	}
	return principal, true, nil
}

// Set stores the principal with the configured TTL. Nil principals are ignored.
func (c *RoleCache) Set(ctx context.Context, principal domain.Principal) error {
	entry, ok := toCached(principal)
	if !ok {
		return nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache: encode role: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+entry.ID, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set role: %w", err)
	}
	return nil
}

// Invalidate drops the cached principal, used after role records change.
func (c *RoleCache) Invalidate(ctx context.Context, uid string) error {
	if err := c.client.Del(ctx, keyPrefix+uid).Err(); err != nil {
		return fmt.Errorf("cache: invalidate role: %w", err)
	}
	return nil
}

// Ping checks the Redis connection for readiness probes.
func (c *RoleCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (c *RoleCache) Close() error {
	return c.client.Close()
}
