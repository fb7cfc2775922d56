package auth

import (
	"context"
	"net/http"
	"slices"

	"go.uber.org/zap"

	"github.com/campusnest/api/internal/domain"
	"github.com/campusnest/api/internal/platform/httpx"
	"github.com/campusnest/api/internal/platform/requestctx"
)

// RoleResolver maps an identity to its principal. A nil principal with a nil error means
// the identity has no role record; an error means the lookup itself failed.
type RoleResolver interface {
	Resolve(ctx context.Context, uid string) (domain.Principal, error)
}

// RoleGuard gates routes on the resolved role. It must run after RequireFirebaseAuth.
type RoleGuard struct {
	resolver RoleResolver
	sessions *AdminSessions
}

// NewRoleGuard constructs a guard. sessions may be nil, in which case admin routes
// reject every request.
func NewRoleGuard(resolver RoleResolver, sessions *AdminSessions) *RoleGuard {
	return &RoleGuard{resolver: resolver, sessions: sessions}
}

// RequireAnyRole admits any identity that resolves to one of the three roles.
func (g *RoleGuard) RequireAnyRole() func(http.Handler) http.Handler {
	return g.RequireRole()
}

// RequireRole admits principals whose role is listed. An admin admitted through the admin
// role must also present a valid admin session token.
func (g *RoleGuard) RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	allowed := slices.Clone(roles)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			identity, ok := IdentityFromContext(ctx)
			if !ok {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
				return
			}
			if g == nil || g.resolver == nil {
				httpx.WriteError(ctx, w, httpx.NewError("role_lookup_failed", "role lookup unavailable", http.StatusServiceUnavailable).
					WithDetails(map[string]any{"retryable": true}))
				return
			}

			principal, err := g.resolver.Resolve(ctx, identity.UID)
			if err != nil {
				requestctx.Logger(ctx).Warn("role lookup failed", zap.Error(err))
				httpx.WriteError(ctx, w, httpx.NewError("role_lookup_failed", "unable to resolve role, retry later", http.StatusServiceUnavailable).
					WithDetails(map[string]any{"retryable": true}))
				return
			}
			if principal == nil {
				httpx.WriteError(ctx, w, httpx.NewError("role_unresolved", "no role assigned to this account", http.StatusForbidden).
					WithDetails(map[string]any{"redirect": domain.HomePath(domain.RoleUnresolved)}))
				return
			}

			role := principal.Role()
			if len(allowed) > 0 && !slices.Contains(allowed, role) {
				httpx.WriteError(ctx, w, httpx.NewError("insufficient_role", "role not permitted for this resource", http.StatusForbidden).
					WithDetails(map[string]any{"role": string(role), "redirect": domain.HomePath(role)}))
				return
			}
			if role == domain.RoleAdmin && slices.Contains(allowed, domain.RoleAdmin) {
				if err := g.sessions.Validate(r.Header.Get(AdminSessionHeader), identity.UID); err != nil {
					httpx.WriteError(ctx, w, httpx.NewError("admin_verification_required", "admin verification required", http.StatusForbidden).
						WithDetails(map[string]any{"redirect": "/admin/verify"}))
					return
				}
			}

			ctx = WithPrincipal(ctx, principal)
			ctx = requestctx.WithLoggerFields(ctx, zap.String("role", string(role)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
