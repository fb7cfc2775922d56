package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/campusnest/api/internal/platform/auth"
	"github.com/campusnest/api/internal/platform/httpx"
	"github.com/campusnest/api/internal/platform/requestctx"
	"github.com/campusnest/api/internal/services"
)

const (
	maxInternalRequestBody = 2 * 1024
	defaultCleanupLimit    = 500
)

// IdempotencyCleaner removes expired idempotency records.
type IdempotencyCleaner interface {
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// InternalHandlers serves maintenance endpoints called by the scheduler. Authentication is
// applied by the router through the internal middlewares.
type InternalHandlers struct {
	reconciler services.Reconciler
	defaults   services.ReconcileOptions
	cleaner    IdempotencyCleaner
	clock      func() time.Time
}

// InternalOption customises InternalHandlers.
type InternalOption func(*InternalHandlers)

// WithReconcileDefaults sets the options used when the request omits them.
func WithReconcileDefaults(opts services.ReconcileOptions) InternalOption {
	return func(h *InternalHandlers) {
		h.defaults = opts
	}
}

// WithIdempotencyCleaner enables the idempotency cleanup endpoint.
func WithIdempotencyCleaner(cleaner IdempotencyCleaner) InternalOption {
	return func(h *InternalHandlers) {
		h.cleaner = cleaner
	}
}

// WithInternalClock overrides the clock used for cleanup cut-offs.
func WithInternalClock(clock func() time.Time) InternalOption {
	return func(h *InternalHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewInternalHandlers constructs the maintenance handlers.
func NewInternalHandlers(reconciler services.Reconciler, opts ...InternalOption) *InternalHandlers {
	h := &InternalHandlers{reconciler: reconciler, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/checkout-runs/reconcile", h.reconcile)
	r.Post("/idempotency/cleanup", h.cleanupIdempotency)
}

type reconcileRequest struct {
	StaleAfter string `json:"staleAfter"`
	Limit      *int   `json:"limit"`
	Compensate *bool  `json:"compensate"`
}

type reconcileOutcomePayload struct {
	RunID  string `json:"runId"`
	Kind   string `json:"kind"`
	Action string `json:"action"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type reconcileResponse struct {
	Scanned     int                       `json:"scanned"`
	Resumed     int                       `json:"resumed"`
	Compensated int                       `json:"compensated"`
	Failed      int                       `json:"failed"`
	Outcomes    []reconcileOutcomePayload `json:"outcomes"`
}

type cleanupRequest struct {
	Limit int `json:"limit"`
}

func (h *InternalHandlers) reconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reconciler == nil {
		serviceUnavailable(ctx, w, "reconcile")
		return
	}
	var req reconcileRequest
	if !decodeOptionalJSONBody(w, r, maxInternalRequestBody, &req) {
		return
	}

	opts := h.defaults
	if s := strings.TrimSpace(req.StaleAfter); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "staleAfter must be a positive duration", http.StatusBadRequest))
			return
		}
		opts.StaleAfter = d
	}
	if req.Limit != nil {
		opts.Limit = *req.Limit
	}
	if req.Compensate != nil {
		opts.Compensate = *req.Compensate
	}

	report, err := h.reconciler.Reconcile(ctx, opts)
	if err != nil {
		requestctx.Logger(ctx).Error("reconcile failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("reconcile_failed", "reconciliation failed", http.StatusInternalServerError))
		return
	}
	if sid, ok := auth.ServiceIdentityFromContext(ctx); ok {
		requestctx.Logger(ctx).Info("reconcile completed",
			zap.String("caller", sid.Email),
			zap.Int("scanned", report.Scanned),
			zap.Int("failed", report.Failed))
	}

	resp := reconcileResponse{
		Scanned:     report.Scanned,
		Resumed:     report.Resumed,
		Compensated: report.Compensated,
		Failed:      report.Failed,
		Outcomes:    make([]reconcileOutcomePayload, 0, len(report.Outcomes)),
	}
	for _, o := range report.Outcomes {
		resp.Outcomes = append(resp.Outcomes, reconcileOutcomePayload{
			RunID:  o.RunID,
			Kind:   string(o.Kind),
			Action: o.Action,
			Status: string(o.Status),
			Error:  o.Error,
		})
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *InternalHandlers) cleanupIdempotency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.cleaner == nil {
		serviceUnavailable(ctx, w, "idempotency")
		return
	}
	var req cleanupRequest
	if !decodeOptionalJSONBody(w, r, maxInternalRequestBody, &req) {
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultCleanupLimit
	}
	removed, err := h.cleaner.CleanupExpired(ctx, h.clock().UTC(), limit)
	if err != nil {
		requestctx.Logger(ctx).Error("idempotency cleanup failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("cleanup_failed", "idempotency cleanup failed", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]int{"removed": removed})
}

// decodeOptionalJSONBody behaves like decodeJSONBody but treats an empty body as defaults.
func decodeOptionalJSONBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, limit)
	switch {
	case errors.Is(err, errEmptyBody):
		return true
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		return false
	case err != nil:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}
