package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/campusnest/api/internal/platform/httpx"
	"github.com/campusnest/api/internal/platform/requestctx"
	"github.com/campusnest/api/internal/services"
)

// writeServiceError maps service sentinels onto the shared error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var stageErr *services.StageError
	if errors.As(err, &stageErr) {
		details := map[string]any{"stage": stageErr.Stage, "retryable": true}
		for k, v := range stageErr.Details {
			details[k] = v
		}
		requestctx.Logger(ctx).Error("checkout stage failed", zap.String("stage", stageErr.Stage), zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("checkout_stage_failed", stageErr.Message(), http.StatusServiceUnavailable).WithDetails(details))
		return
	}

	switch {
	case errors.Is(err, services.ErrCheckoutValidation):
		writeValidationError(ctx, w, err, services.ErrCheckoutValidation)
	case errors.Is(err, services.ErrCartInvalidInput):
		writeValidationError(ctx, w, err, services.ErrCartInvalidInput)
	case errors.Is(err, services.ErrOrderInvalidInput):
		writeValidationError(ctx, w, err, services.ErrOrderInvalidInput)
	case errors.Is(err, services.ErrBookingInvalidInput):
		writeValidationError(ctx, w, err, services.ErrBookingInvalidInput)

	case errors.Is(err, services.ErrCheckoutInProgress):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_in_progress", "a checkout with this request id is still running", http.StatusConflict).
			WithDetails(map[string]any{"retryable": true}))
	case errors.Is(err, services.ErrCheckoutRolledBack):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_rolled_back", "this checkout was rolled back; start a new one", http.StatusConflict))
	case errors.Is(err, services.ErrPlaceUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("place_unavailable", "boarding place is no longer available", http.StatusConflict))
	case errors.Is(err, services.ErrCartEntryExists):
		httpx.WriteError(ctx, w, httpx.NewError("cart_entry_exists", "item is already in the cart", http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidTransition), errors.Is(err, services.ErrBookingInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order was modified; refresh and retry", http.StatusConflict))

	case errors.Is(err, services.ErrCartEntryNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_entry_not_found", "cart entry not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("item_not_found", "item not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrBookingNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("booking_not_found", "booking not found", http.StatusNotFound))

	case errors.Is(err, services.ErrOrderForbidden), errors.Is(err, services.ErrBookingForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "operation not permitted for this role", http.StatusForbidden))

	case errors.Is(err, services.ErrRoleLookupFailed):
		httpx.WriteError(ctx, w, httpx.NewError("role_lookup_failed", "unable to resolve role, retry later", http.StatusServiceUnavailable).
			WithDetails(map[string]any{"retryable": true}))
	case errors.Is(err, services.ErrAdminVerificationFailed):
		httpx.WriteError(ctx, w, httpx.NewError("admin_verification_failed", "verification code rejected", http.StatusUnauthorized))
	case errors.Is(err, services.ErrAdminVerificationNotAdmin):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "admin role required", http.StatusForbidden))
	case errors.Is(err, services.ErrAdminVerificationUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("admin_verification_unavailable", "admin verification is not configured", http.StatusServiceUnavailable))

	case errors.Is(err, services.ErrCheckoutUnavailable), errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "service temporarily unavailable", http.StatusServiceUnavailable).
			WithDetails(map[string]any{"retryable": true}))
	default:
		requestctx.Logger(ctx).Error("unhandled service error", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

func writeValidationError(ctx context.Context, w http.ResponseWriter, err error, sentinel error) {
	message := strings.TrimPrefix(err.Error(), sentinel.Error())
	message = strings.TrimSpace(strings.TrimPrefix(message, ":"))
	if message == "" {
		message = "invalid request"
	}
	problems := strings.Split(message, "; ")
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", message, http.StatusBadRequest).
		WithDetails(map[string]any{"problems": problems}))
}
