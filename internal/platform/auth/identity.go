package auth

import (
	"context"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/campusnest/api/internal/domain"
)

// Identity is the authenticated caller extracted from a Firebase ID token. Roles are not
// carried in token claims; they are resolved from the role collections by RoleGuard.
type Identity struct {
	UID   string
	Email string
	Name  string

	token *firebaseauth.Token
}

// Token exposes the decoded Firebase ID token associated with this identity.
func (i *Identity) Token() *firebaseauth.Token {
	if i == nil {
		return nil
	}
	return i.token
}

type identityKey struct{}

type principalKey struct{}

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// WithPrincipal stores the resolved role variant.
func WithPrincipal(ctx context.Context, principal domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// PrincipalFromContext returns the principal resolved by a role guard.
func PrincipalFromContext(ctx context.Context) (domain.Principal, bool) {
	principal, ok := ctx.Value(principalKey{}).(domain.Principal)
	if !ok || principal == nil {
		return nil, false
	}
	return principal, true
}
