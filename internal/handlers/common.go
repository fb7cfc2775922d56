package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/campusnest/api/internal/domain"
	"github.com/campusnest/api/internal/platform/auth"
	"github.com/campusnest/api/internal/platform/httpx"
	"github.com/campusnest/api/internal/platform/pagination"
	"github.com/campusnest/api/internal/receipt"
	"github.com/campusnest/api/internal/services"
)

const defaultBodyLimit = 16 * 1024

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

// Middleware is the chi/net/http middleware shape accepted by every handler group.
type Middleware = func(http.Handler) http.Handler

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeJSONBody reads and unmarshals the request body, writing the error response itself
// when it fails.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, limit)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid JSON payload: %v", err), http.StatusBadRequest))
		return false
	}
	return true
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.DateOnly)
}

// requireUID returns the authenticated uid or writes 401.
func requireUID(w http.ResponseWriter, r *http.Request) (string, bool) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return strings.TrimSpace(identity.UID), true
}

// requireActor pairs the identity with the role resolved by the role guard.
func requireActor(w http.ResponseWriter, r *http.Request) (services.Actor, bool) {
	uid, ok := requireUID(w, r)
	if !ok {
		return services.Actor{}, false
	}
	actor := services.Actor{UID: uid, Role: domain.RoleUnresolved}
	if principal, ok := auth.PrincipalFromContext(r.Context()); ok && principal != nil {
		actor.Role = principal.Role()
	}
	return actor, true
}

func identityEmail(ctx context.Context) string {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil {
		return ""
	}
	return strings.TrimSpace(identity.Email)
}

func pathParam(r *http.Request, name string) string {
	return strings.TrimSpace(chi.URLParam(r, name))
}

func parsePager(w http.ResponseWriter, r *http.Request) (services.Pagination, bool) {
	params, err := pagination.Parse(r.URL.Query())
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_pagination", err.Error(), http.StatusBadRequest))
		return services.Pagination{}, false
	}
	return services.Pagination{PageSize: params.PageSize, PageToken: params.PageToken}, true
}

func writeReceiptDocument(w http.ResponseWriter, doc receipt.Document) {
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Body)
}

func parseReceiptFormat(w http.ResponseWriter, r *http.Request) (receipt.Format, bool) {
	format, err := receipt.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_format", err.Error(), http.StatusBadRequest))
		return "", false
	}
	return format, true
}

func serviceUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError(name+"_service_unavailable", name+" service is unavailable", http.StatusServiceUnavailable))
}

func guardChain(authn *auth.Authenticator, extra ...Middleware) []Middleware {
	chain := make([]Middleware, 0, len(extra)+1)
	if authn != nil {
		chain = append(chain, authn.RequireFirebaseAuth())
	}
	for _, mw := range extra {
		if mw != nil {
			chain = append(chain, mw)
		}
	}
	return chain
}

// requireRoles returns the role guard middleware, or nil when no guard is configured.
func requireRoles(guard *auth.RoleGuard, roles ...domain.Role) Middleware {
	if guard == nil {
		return nil
	}
	if len(roles) == 0 {
		return guard.RequireAnyRole()
	}
	return guard.RequireRole(roles...)
}
