package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/campusnest/api/internal/domain"
	"github.com/campusnest/api/internal/platform/auth"
	"github.com/campusnest/api/internal/services"
)

const (
	maxCheckoutRequestBody = 8 * 1024
	// requestIDHeader carries the client generated UUID that makes checkout retries resume
	// the same run instead of starting a new one.
	requestIDHeader = "Idempotency-Key"
	replayHeader    = "X-Idempotent-Replay"
)

// CheckoutHandlers exposes the order and booking checkout endpoints.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
	guards   []Middleware
}

// NewCheckoutHandlers constructs checkout handlers guarded by Firebase authentication and
// the supplied guards.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService, guards ...Middleware) *CheckoutHandlers {
	return &CheckoutHandlers{authn: authn, checkout: checkout, guards: guards}
}

// Routes registers the /checkout endpoints.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(r chi.Router) {
		r.Use(guardChain(h.authn, h.guards...)...)
		r.Post("/orders", h.placeOrder)
		r.Post("/bookings", h.reserveBoarding)
	})
}

type customerRequest struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	Address     string `json:"address"`
	TableNumber string `json:"tableNumber"`
	Notes       string `json:"notes"`
}

type cardRequest struct {
	Holder string `json:"holder"`
	Number string `json:"number"`
}

type placeOrderRequest struct {
	RequestID     string          `json:"requestId"`
	OrderType     string          `json:"orderType"`
	PaymentMethod string          `json:"paymentMethod"`
	Customer      customerRequest `json:"customer"`
	Card          *cardRequest    `json:"card"`
}

type reserveBoardingRequest struct {
	RequestID       string `json:"requestId"`
	BoardingPlaceID string `json:"boardingPlaceId"`
	CustomerName    string `json:"customerName"`
	Phone           string `json:"phone"`
	CheckInDate     string `json:"checkInDate"`
	PaymentType     string `json:"paymentType"`
}

type inventoryPayload struct {
	Succeeded []string `json:"succeeded"`
	Failed    []string `json:"failed"`
}

type orderCheckoutResponse struct {
	Order     orderPayload     `json:"order"`
	Receipt   receiptPayload   `json:"receipt"`
	Inventory inventoryPayload `json:"inventory"`
	RunID     string           `json:"runId,omitempty"`
	Replayed  bool             `json:"replayed"`
}

type bookingCheckoutResponse struct {
	Booking  bookingPayload `json:"booking"`
	Receipt  receiptPayload `json:"receipt"`
	RunID    string         `json:"runId,omitempty"`
	Replayed bool           `json:"replayed"`
}

func (h *CheckoutHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		serviceUnavailable(ctx, w, "checkout")
		return
	}
	uid, ok := requireUID(w, r)
	if !ok {
		return
	}
	var req placeOrderRequest
	if !decodeJSONBody(w, r, maxCheckoutRequestBody, &req) {
		return
	}

	cmd := services.PlaceOrderCommand{
		UserID:        uid,
		Email:         identityEmail(ctx),
		RequestID:     checkoutRequestID(r, req.RequestID),
		OrderType:     domain.OrderType(strings.TrimSpace(req.OrderType)),
		PaymentMethod: domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		Customer: domain.CustomerDetails{
			Name:        req.Customer.Name,
			Phone:       req.Customer.Phone,
			Email:       req.Customer.Email,
			Address:     req.Customer.Address,
			TableNumber: req.Customer.TableNumber,
			Notes:       req.Customer.Notes,
		},
	}
	if req.Card != nil {
		cmd.Card = &services.CardInput{Holder: req.Card.Holder, Number: req.Card.Number}
	}

	result, err := h.checkout.PlaceOrder(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	resp := orderCheckoutResponse{
		Order:   buildOrderPayload(result.Order),
		Receipt: buildReceiptPayload(result.Receipt),
		Inventory: inventoryPayload{
			Succeeded: nonNilStrings(result.Inventory.Succeeded),
			Failed:    nonNilStrings(result.Inventory.Failed),
		},
		RunID:    result.RunID,
		Replayed: result.Replayed,
	}
	writeJSONResponse(w, checkoutStatus(w, result.Replayed), resp)
}

func (h *CheckoutHandlers) reserveBoarding(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		serviceUnavailable(ctx, w, "checkout")
		return
	}
	uid, ok := requireUID(w, r)
	if !ok {
		return
	}
	var req reserveBoardingRequest
	if !decodeJSONBody(w, r, maxCheckoutRequestBody, &req) {
		return
	}

	checkIn, err := parseCheckInDate(req.CheckInDate)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	result, err := h.checkout.ReserveBoarding(ctx, services.ReserveBoardingCommand{
		UserID:          uid,
		Email:           identityEmail(ctx),
		RequestID:       checkoutRequestID(r, req.RequestID),
		BoardingPlaceID: strings.TrimSpace(req.BoardingPlaceID),
		CustomerName:    req.CustomerName,
		Phone:           req.Phone,
		CheckInDate:     checkIn,
		PaymentType:     domain.PaymentType(strings.ToLower(strings.TrimSpace(req.PaymentType))),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, checkoutStatus(w, result.Replayed), buildBookingCheckoutResponse(result))
}

func buildBookingCheckoutResponse(result services.BookingCheckoutResult) bookingCheckoutResponse {
	return bookingCheckoutResponse{
		Booking:  buildBookingPayload(result.Booking),
		Receipt:  buildReceiptPayload(result.Receipt),
		RunID:    result.RunID,
		Replayed: result.Replayed,
	}
}

// checkoutRequestID prefers the header over the body field.
func checkoutRequestID(r *http.Request, bodyValue string) string {
	if header := strings.TrimSpace(r.Header.Get(requestIDHeader)); header != "" {
		return header
	}
	return strings.TrimSpace(bodyValue)
}

func checkoutStatus(w http.ResponseWriter, replayed bool) int {
	if replayed {
		w.Header().Set(replayHeader, "true")
		return http.StatusOK
	}
	return http.StatusCreated
}

// parseCheckInDate accepts a calendar date or an RFC 3339 timestamp.
func parseCheckInDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: check-in date is required", services.ErrCheckoutValidation)
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: check-in date must be YYYY-MM-DD", services.ErrCheckoutValidation)
	}
	return t, nil
}

// rawAmount keeps numeric literals as strings so decimal parsing sees the exact text.
func rawAmount(raw json.RawMessage) (any, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: amount must be a number", services.ErrCheckoutValidation)
		}
		return s, nil
	}
	return trimmed, nil
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
