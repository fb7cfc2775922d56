package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	domain "github.com/campusnest/api/internal/domain"
	"github.com/campusnest/api/internal/platform/auth"
	"github.com/campusnest/api/internal/platform/httpx"
	"github.com/campusnest/api/internal/platform/requestctx"
	"github.com/campusnest/api/internal/services"
)

const maxSessionRequestBody = 1024

// SessionHandlers tells the client which area to open after sign in and performs the admin
// step-up verification.
type SessionHandlers struct {
	authn    *auth.Authenticator
	roles    services.RoleResolver
	verifier services.AdminVerifier
	attempts attemptLimiter
}

// SessionOption customises SessionHandlers.
type SessionOption func(*SessionHandlers)

// WithVerificationAttempts limits admin verification attempts per uid. A zero limit disables it.
func WithVerificationAttempts(limit int, window time.Duration, clock func() time.Time) SessionOption {
	return func(h *SessionHandlers) {
		h.attempts = newWindowLimiter(limit, window, clock)
	}
}

// NewSessionHandlers constructs session handlers. verifier may be nil when admin step-up is
// disabled.
func NewSessionHandlers(authn *auth.Authenticator, roles services.RoleResolver, verifier services.AdminVerifier, opts ...SessionOption) *SessionHandlers {
	h := &SessionHandlers{authn: authn, roles: roles, verifier: verifier}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /session endpoints. Only authentication is required; unresolved
// identities must still be told where to go.
func (h *SessionHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(r chi.Router) {
		r.Use(guardChain(h.authn)...)
		r.Get("/role", h.getRole)
		r.Post("/admin-verification", h.verifyAdmin)
	})
}

// roleResponse carries a null role until the identity holds a role record.
type roleResponse struct {
	UID         string  `json:"uid"`
	Role        *string `json:"role"`
	Resolved    bool    `json:"resolved"`
	DisplayName string  `json:"displayName,omitempty"`
	Redirect    string  `json:"redirect"`
	// StepUpRequired is set for admins, who must complete admin verification first.
	StepUpRequired bool `json:"stepUpRequired,omitempty"`
}

type adminVerificationRequest struct {
	Code string `json:"code"`
}

type adminVerificationResponse struct {
	Token     string `json:"token"`
	Header    string `json:"header"`
	ExpiresAt string `json:"expiresAt"`
}

func (h *SessionHandlers) getRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.roles == nil {
		serviceUnavailable(ctx, w, "role")
		return
	}
	uid, ok := requireUID(w, r)
	if !ok {
		return
	}
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		if err := h.roles.Invalidate(ctx, uid); err != nil {
			requestctx.Logger(ctx).Warn("role cache invalidate failed", zap.Error(err))
		}
	}

	principal, err := h.roles.Resolve(ctx, uid)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := roleResponse{UID: uid, Redirect: domain.HomePath(domain.RoleUnresolved)}
	if principal != nil {
		role := string(principal.Role())
		resp.Role = &role
		resp.Resolved = true
		resp.DisplayName = principal.DisplayName()
		resp.Redirect = domain.HomePath(principal.Role())
		resp.StepUpRequired = principal.Role() == domain.RoleAdmin
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *SessionHandlers) verifyAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := requireUID(w, r)
	if !ok {
		return
	}
	if h.verifier == nil {
		writeServiceError(ctx, w, services.ErrAdminVerificationUnavailable)
		return
	}
	var req adminVerificationRequest
	if !decodeJSONBody(w, r, maxSessionRequestBody, &req) {
		return
	}
	if h.attempts != nil && !h.attempts.Allow(uid) {
		httpx.WriteError(ctx, w, httpx.NewError("too_many_attempts", "too many verification attempts, try again later", http.StatusTooManyRequests))
		return
	}
	session, err := h.verifier.Verify(ctx, services.AdminVerificationCommand{UID: uid, Code: req.Code})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if h.attempts != nil {
		h.attempts.Reset(uid)
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSONResponse(w, http.StatusOK, adminVerificationResponse{
		Token:     session.Token,
		Header:    auth.AdminSessionHeader,
		ExpiresAt: formatTime(session.ExpiresAt),
	})
}
