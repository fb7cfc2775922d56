package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/campusnest/api/internal/domain"
)

type stubSessionIssuer struct {
	issueFunc func(uid string) (string, time.Time, error)
}

func (s stubSessionIssuer) Issue(uid string) (string, time.Time, error) {
	return s.issueFunc(uid)
}

type stubRoleResolver struct {
	principal domain.Principal
	err       error
}

func (s stubRoleResolver) Resolve(context.Context, string) (Principal, error) {
	return s.principal, s.err
}

func (s stubRoleResolver) Invalidate(context.Context, string) error { return nil }

func TestAdminVerifierIssuesSession(t *testing.T) {
	expires := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	verifier, err := NewAdminVerifier(AdminVerifierDeps{
		Roles: stubRoleResolver{principal: domain.AdminPrincipal{ID: "admin-1"}},
		Sessions: stubSessionIssuer{issueFunc: func(uid string) (string, time.Time, error) {
			if uid != "admin-1" {
				t.Fatalf("unexpected uid %q", uid)
			}
			return "signed-token", expires, nil
		}},
		Code: "246810",
	})
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}

	session, err := verifier.Verify(context.Background(), AdminVerificationCommand{UID: "admin-1", Code: " 246810 "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.Token != "signed-token" || !session.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected session %#v", session)
	}
}

func TestAdminVerifierRejections(t *testing.T) {
	issuer := stubSessionIssuer{issueFunc: func(string) (string, time.Time, error) { return "t", time.Time{}, nil }}
	tests := []struct {
		name string
		deps AdminVerifierDeps
		code string
		want error
	}{
		{
			name: "wrong code",
			deps: AdminVerifierDeps{Roles: stubRoleResolver{principal: domain.AdminPrincipal{ID: "a"}}, Sessions: issuer, Code: "1234"},
			code: "4321",
			want: ErrAdminVerificationFailed,
		},
		{
			name: "not an admin",
			deps: AdminVerifierDeps{Roles: stubRoleResolver{principal: domain.StudentPrincipal{ID: "a"}}, Sessions: issuer, Code: "1234"},
			code: "1234",
			want: ErrAdminVerificationNotAdmin,
		},
		{
			name: "unresolved",
			deps: AdminVerifierDeps{Roles: stubRoleResolver{}, Sessions: issuer, Code: "1234"},
			code: "1234",
			want: ErrAdminVerificationNotAdmin,
		},
		{
			name: "disabled",
			deps: AdminVerifierDeps{Roles: stubRoleResolver{principal: domain.AdminPrincipal{ID: "a"}}, Sessions: issuer},
			code: "1234",
			want: ErrAdminVerificationUnavailable,
		},
		{
			name: "lookup failure",
			deps: AdminVerifierDeps{Roles: stubRoleResolver{err: ErrRoleLookupFailed}, Sessions: issuer, Code: "1234"},
			code: "1234",
			want: ErrRoleLookupFailed,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			verifier, err := NewAdminVerifier(tc.deps)
			if err != nil {
				t.Fatalf("verifier: %v", err)
			}
			if _, err := verifier.Verify(context.Background(), AdminVerificationCommand{UID: "a", Code: tc.code}); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
