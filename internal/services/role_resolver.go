package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/campusnest/api/internal/domain"
	"github.com/campusnest/api/internal/repositories"
)

var errRoleDirectoryRequired = errors.New("role resolver: identity directory is required")

// RoleResolverDeps wires the identity directory and the optional principal cache.
type RoleResolverDeps struct {
	Directory repositories.IdentityDirectory
	Cache     PrincipalCache
	Logger    func(context.Context, string, map[string]any)
}

type roleResolver struct {
	directory repositories.IdentityDirectory
	cache     PrincipalCache
	logger    func(context.Context, string, map[string]any)
}

// NewRoleResolver constructs a RoleResolver. Cache failures fall through to the directory.
func NewRoleResolver(deps RoleResolverDeps) (RoleResolver, error) {
	if deps.Directory == nil {
		return nil, errRoleDirectoryRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &roleResolver{directory: deps.Directory, cache: deps.Cache, logger: logger}, nil
}

// Resolve returns the highest priority principal recorded for uid. Only resolved
// principals are cached, so a role granted later is picked up on the next request.
func (r *roleResolver) Resolve(ctx context.Context, uid string) (Principal, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, nil
	}

	if r.cache != nil {
		cached, ok, err := r.cache.Get(ctx, uid)
		switch {
		case err != nil:
			r.logger(ctx, "role.cache_get_failed", map[string]any{"uid": uid, "error": err.Error()})
		case ok && cached != nil:
			return cached, nil
		}
	}

	matches, err := r.directory.Lookup(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRoleLookupFailed, err)
	}
	principal := domain.ResolvePrincipal(matches)
	if principal == nil {
		return nil, nil
	}
	if len(matches) > 1 {
		r.logger(ctx, "role.multiple_records", map[string]any{
			"uid":      uid,
			"resolved": string(principal.Role()),
			"matches":  len(matches),
		})
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, principal); err != nil {
			r.logger(ctx, "role.cache_set_failed", map[string]any{"uid": uid, "error": err.Error()})
		}
	}
	return principal, nil
}

// Invalidate drops the cached principal of uid.
func (r *roleResolver) Invalidate(ctx context.Context, uid string) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Invalidate(ctx, strings.TrimSpace(uid))
}
