package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCheckoutValidation marks input rejected before any write.
	ErrCheckoutValidation = errors.New("checkout: validation failed")
	// ErrCheckoutStageFailed marks a write stage failure. The pipeline halts at that stage.
	ErrCheckoutStageFailed = errors.New("checkout: stage failed")
	// ErrCheckoutInProgress indicates another attempt for the same request id is running.
	ErrCheckoutInProgress = errors.New("checkout: request already in progress")
	// ErrCheckoutUnavailable indicates checkout dependencies are not configured.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrCheckoutRolledBack indicates the run for the request id was compensated by reconciliation.
	ErrCheckoutRolledBack = errors.New("checkout: request was rolled back")
	// ErrPlaceUnavailable indicates the boarding place was already taken when read.
	ErrPlaceUnavailable = errors.New("checkout: boarding place unavailable")

	ErrCartInvalidInput  = errors.New("cart: invalid input")
	ErrCartEntryExists   = errors.New("cart: item already in cart")
	ErrCartEntryNotFound = errors.New("cart: entry not found")
	ErrCartItemNotFound  = errors.New("cart: item not found")
	ErrCartUnavailable   = errors.New("cart: unavailable")

	ErrOrderInvalidInput      = errors.New("order: invalid input")
	ErrOrderNotFound          = errors.New("order: not found")
	ErrOrderForbidden         = errors.New("order: not permitted")
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	ErrOrderConflict          = errors.New("order: conflict")

	ErrBookingInvalidInput      = errors.New("booking: invalid input")
	ErrBookingNotFound          = errors.New("booking: not found")
	ErrBookingForbidden         = errors.New("booking: not permitted")
	ErrBookingInvalidTransition = errors.New("booking: invalid status transition")

	// ErrRoleLookupFailed is retryable; it is distinct from an unresolved role.
	ErrRoleLookupFailed = errors.New("role: lookup failed")

	ErrAdminVerificationFailed      = errors.New("admin verification: code rejected")
	ErrAdminVerificationUnavailable = errors.New("admin verification: not configured")
	ErrAdminVerificationNotAdmin    = errors.New("admin verification: caller is not an admin")
)

// Stage names reported by StageError.
const (
	StageReserveRun      = "reserve_run"
	StageCreateOrder     = "create_order"
	StageAdjustInventory = "adjust_inventory"
	StageCreateBooking   = "create_booking"
	StageMarkUnavailable = "mark_unavailable"
	StageCapturePayment  = "capture_payment"
	StageCancelBooking   = "cancel_booking"
)

var stageMessages = map[string]string{
	StageReserveRun:      "checkout could not be recorded",
	StageCreateOrder:     "order creation failed",
	StageAdjustInventory: "inventory update failed",
	StageCreateBooking:   "booking creation failed",
	StageMarkUnavailable: "availability update failed",
	StageCapturePayment:  "payment update failed",
	StageCancelBooking:   "booking update failed",
}

// StageError reports which write stage failed. It matches ErrCheckoutStageFailed and the
// underlying cause with errors.Is.
type StageError struct {
	Stage   string
	Err     error
	Details map[string]any
}

func newStageError(stage string, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

// Message is the user facing text for the stage.
func (e *StageError) Message() string {
	if msg, ok := stageMessages[e.Stage]; ok {
		return msg
	}
	return strings.ReplaceAll(e.Stage, "_", " ") + " failed"
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return e.Message()
	}
	return fmt.Sprintf("%s: %v", e.Message(), e.Err)
}

func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCheckoutStageFailed}
	}
	return []error{ErrCheckoutStageFailed, e.Err}
}

// validationErrors collects field problems so callers see all of them at once.
type validationErrors []string

func (v *validationErrors) add(format string, args ...any) {
	*v = append(*v, fmt.Sprintf(format, args...))
}

func (v validationErrors) err(sentinel error) error {
	if len(v) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", sentinel, strings.Join(v, "; "))
}
