package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/campusnest/api/internal/domain"
)

// AdminSessionIssuer signs admin step-up tokens.
type AdminSessionIssuer interface {
	Issue(uid string) (string, time.Time, error)
}

// AdminVerifierDeps wires the admin step-up check.
type AdminVerifierDeps struct {
	Roles    RoleResolver
	Sessions AdminSessionIssuer
	Code     string
	Logger   func(context.Context, string, map[string]any)
}

type adminVerifier struct {
	roles    RoleResolver
	sessions AdminSessionIssuer
	code     []byte
	logger   func(context.Context, string, map[string]any)
}

// NewAdminVerifier constructs an AdminVerifier. An empty code disables verification.
func NewAdminVerifier(deps AdminVerifierDeps) (AdminVerifier, error) {
	if deps.Roles == nil {
		return nil, errors.New("admin verifier: role resolver is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &adminVerifier{
		roles:    deps.Roles,
		sessions: deps.Sessions,
		code:     []byte(strings.TrimSpace(deps.Code)),
		logger:   logger,
	}, nil
}

// Verify checks the step-up code of an admin and issues a session token.
func (v *adminVerifier) Verify(ctx context.Context, cmd AdminVerificationCommand) (AdminSession, error) {
	if len(v.code) == 0 || v.sessions == nil {
		return AdminSession{}, ErrAdminVerificationUnavailable
	}
	principal, err := v.roles.Resolve(ctx, cmd.UID)
	if err != nil {
		return AdminSession{}, err
	}
	if principal == nil || principal.Role() != domain.RoleAdmin {
		return AdminSession{}, ErrAdminVerificationNotAdmin
	}

	code := []byte(strings.TrimSpace(cmd.Code))
	if subtle.ConstantTimeCompare(code, v.code) != 1 {
		v.logger(ctx, "admin.verification_rejected", map[string]any{"uid": cmd.UID})
		return AdminSession{}, ErrAdminVerificationFailed
	}

	token, expires, err := v.sessions.Issue(principal.UID())
	if err != nil {
		return AdminSession{}, fmt.Errorf("%w: %v", ErrAdminVerificationUnavailable, err)
	}
	v.logger(ctx, "admin.verified", map[string]any{"uid": principal.UID(), "expiresAt": expires})
	return AdminSession{Token: token, ExpiresAt: expires}, nil
}
