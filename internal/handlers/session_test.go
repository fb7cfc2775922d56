package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/campusnest/api/internal/domain"
	"github.com/campusnest/api/internal/services"
)

func sessionRouter(h *SessionHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/session", h.Routes)
	return router
}

func TestSessionHandlers_Role(t *testing.T) {
	tests := []struct {
		name         string
		resolver     *stubRoleResolver
		wantStatus   int
		wantRole     any
		wantRedirect string
	}{
		{name: "admin", resolver: &stubRoleResolver{principal: domain.AdminPrincipal{ID: "u1", Name: "Ama"}}, wantStatus: http.StatusOK, wantRole: "admin", wantRedirect: "/admin"},
		{name: "shop owner", resolver: &stubRoleResolver{principal: domain.ShopOwnerPrincipal{ID: "u1", ShopName: "Canteen One"}}, wantStatus: http.StatusOK, wantRole: "shop_owner", wantRedirect: "/shop"},
		{name: "student", resolver: &stubRoleResolver{principal: domain.StudentPrincipal{ID: "u1"}}, wantStatus: http.StatusOK, wantRole: "student", wantRedirect: "/"},
		{name: "unresolved", resolver: &stubRoleResolver{}, wantStatus: http.StatusOK, wantRole: nil, wantRedirect: "/login"},
		{name: "lookup failure", resolver: &stubRoleResolver{err: fmt.Errorf("%w: unavailable", services.ErrRoleLookupFailed)}, wantStatus: http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			sessionRouter(NewSessionHandlers(nil, tc.resolver, nil)).ServeHTTP(rr, newAuthedRequest(http.MethodGet, "/session/role", "", "u1", nil))
			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rr.Code)
			}
			body := decodeBody(t, rr)
			if tc.wantStatus != http.StatusOK {
				if body["error"] != "role_lookup_failed" || body["retryable"] != true {
					t.Fatalf("unexpected error body %v", body)
				}
				return
			}
			role, present := body["role"]
			if !present || role != tc.wantRole || body["redirect"] != tc.wantRedirect {
				t.Fatalf("unexpected body %v", body)
			}
			if body["resolved"] != (tc.wantRole != nil) {
				t.Fatalf("unexpected resolved flag %v", body["resolved"])
			}
		})
	}
}

func TestSessionHandlers_RoleRefreshInvalidatesCache(t *testing.T) {
	resolver := &stubRoleResolver{principal: domain.StudentPrincipal{ID: "u1"}}
	rr := httptest.NewRecorder()
	sessionRouter(NewSessionHandlers(nil, resolver, nil)).ServeHTTP(rr, newAuthedRequest(http.MethodGet, "/session/role?refresh=true", "", "u1", nil))
	if rr.Code != http.StatusOK || len(resolver.invalidated) != 1 {
		t.Fatalf("expected invalidation, got %d %v", rr.Code, resolver.invalidated)
	}
}

func TestSessionHandlers_AdminVerification(t *testing.T) {
	expires := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	verifier := &stubAdminVerifier{verifyFunc: func(_ context.Context, cmd services.AdminVerificationCommand) (services.AdminSession, error) {
		if cmd.Code != "246810" {
			return services.AdminSession{}, services.ErrAdminVerificationFailed
		}
		return services.AdminSession{Token: "signed", ExpiresAt: expires}, nil
	}}
	router := sessionRouter(NewSessionHandlers(nil, &stubRoleResolver{}, verifier))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newAuthedRequest(http.MethodPost, "/session/admin-verification", `{"code":"246810"}`, "admin-1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["token"] != "signed" || body["header"] != "X-Admin-Session" || body["expiresAt"] != "2025-03-14T10:00:00Z" {
		t.Fatalf("unexpected body %v", body)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, newAuthedRequest(http.MethodPost, "/session/admin-verification", `{"code":"000000"}`, "admin-1", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestSessionHandlers_AdminVerificationLimitsAttempts(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	verifier := &stubAdminVerifier{verifyFunc: func(context.Context, services.AdminVerificationCommand) (services.AdminSession, error) {
		return services.AdminSession{}, services.ErrAdminVerificationFailed
	}}
	router := sessionRouter(NewSessionHandlers(nil, &stubRoleResolver{}, verifier,
		WithVerificationAttempts(2, time.Minute, func() time.Time { return now })))

	codes := []int{}
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, newAuthedRequest(http.MethodPost, "/session/admin-verification", `{"code":"1"}`, "admin-1", nil))
		codes = append(codes, rr.Code)
	}
	if codes[0] != http.StatusUnauthorized || codes[1] != http.StatusUnauthorized || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}

	now = now.Add(time.Minute)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newAuthedRequest(http.MethodPost, "/session/admin-verification", `{"code":"1"}`, "admin-1", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected window reset, got %d", rr.Code)
	}
}

func TestSessionHandlers_AdminVerificationDisabled(t *testing.T) {
	rr := httptest.NewRecorder()
	sessionRouter(NewSessionHandlers(nil, &stubRoleResolver{}, nil)).ServeHTTP(rr, newAuthedRequest(http.MethodPost, "/session/admin-verification", `{"code":"1"}`, "admin-1", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
