package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/campusnest/api/internal/domain"
	"github.com/campusnest/api/internal/platform/auth"
	"github.com/campusnest/api/internal/services"
)

const maxBookingRequestBody = 4 * 1024

// BookingHandlers serves boarding bookings for students, boarding owners and admins.
type BookingHandlers struct {
	authn    *auth.Authenticator
	guard    *auth.RoleGuard
	bookings services.BookingService
	checkout services.CheckoutService
}

// NewBookingHandlers constructs booking handlers. Payment and cancellation go through the
// checkout service so they share its stage reporting.
func NewBookingHandlers(authn *auth.Authenticator, guard *auth.RoleGuard, bookings services.BookingService, checkout services.CheckoutService) *BookingHandlers {
	return &BookingHandlers{authn: authn, guard: guard, bookings: bookings, checkout: checkout}
}

// MeRoutes registers the caller's own bookings.
func (h *BookingHandlers) MeRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(r chi.Router) {
		r.Use(guardChain(h.authn, requireRoles(h.guard))...)
		r.Get("/bookings", h.listMyBookings)
		r.Get("/bookings/{bookingId}", h.getMyBooking)
		r.Get("/bookings/{bookingId}/receipt", h.getMyBookingReceipt)
		r.Post("/bookings/{bookingId}/pay", h.payBooking)
		r.Post("/bookings/{bookingId}/cancel", h.cancelAsStudent)
	})
}

// OwnerRoutes registers the boarding owner's bookings.
func (h *BookingHandlers) OwnerRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(r chi.Router) {
		r.Use(guardChain(h.authn, requireRoles(h.guard, domain.RoleShopOwner))...)
		r.Get("/bookings", h.listOwnerBookings)
		r.Post("/bookings/{bookingId}/cancel", h.cancelBooking)
	})
}

// AdminRoutes registers the administrator's view of every booking.
func (h *BookingHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(r chi.Router) {
		r.Use(guardChain(h.authn, requireRoles(h.guard, domain.RoleAdmin))...)
		r.Get("/bookings", h.listAllBookings)
		r.Post("/bookings/{bookingId}/cancel", h.cancelBooking)
	})
}

type bookingListResponse struct {
	Bookings      []bookingPayload `json:"bookings"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
}

type payBookingRequest struct {
	Method     string          `json:"method"`
	Amount     json.RawMessage `json:"amount"`
	CardHolder string          `json:"cardHolder"`
	CardNumber string          `json:"cardNumber"`
}

func (h *BookingHandlers) listMyBookings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.bookings == nil {
		serviceUnavailable(ctx, w, "booking")
		return
	}
	uid, ok := requireUID(w, r)
	if !ok {
		return
	}
	pager, ok := parsePager(w, r)
	if !ok {
		return
	}
	page, err := h.bookings.ListForUser(ctx, uid, pager)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, bookingListResponse{Bookings: buildBookingPayloads(page.Items), NextPageToken: page.NextPageToken})
}

func (h *BookingHandlers) getMyBooking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.bookings == nil {
		serviceUnavailable(ctx, w, "booking")
		return
	}
	uid, ok := requireUID(w, r)
	if !ok {
		return
	}
	booking, err := h.bookings.GetForUser(ctx, uid, pathParam(r, "bookingId"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildBookingPayload(booking))
}

func (h *BookingHandlers) getMyBookingReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.bookings == nil {
		serviceUnavailable(ctx, w, "booking")
		return
	}
	uid, ok := requireUID(w, r)
	if !ok {
		return
	}
	format, ok := parseReceiptFormat(w, r)
	if !ok {
		return
	}
	doc, err := h.bookings.Receipt(ctx, uid, pathParam(r, "bookingId"), format)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeReceiptDocument(w, doc)
}

func (h *BookingHandlers) payBooking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		serviceUnavailable(ctx, w, "checkout")
		return
	}
	uid, ok := requireUID(w, r)
	if !ok {
		return
	}
	var req payBookingRequest
	if !decodeJSONBody(w, r, maxBookingRequestBody, &req) {
		return
	}
	amount, err := rawAmount(req.Amount)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	result, err := h.checkout.PayBooking(ctx, services.PayBookingCommand{
		UserID:    uid,
		BookingID: pathParam(r, "bookingId"),
		Payment: services.PaymentInput{
			Method:     domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.Method))),
			Amount:     amount,
			CardHolder: req.CardHolder,
			CardNumber: req.CardNumber,
		},
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildBookingCheckoutResponse(result))
}

func (h *BookingHandlers) cancelAsStudent(w http.ResponseWriter, r *http.Request) {
	h.cancel(w, r, domain.RoleStudent)
}

func (h *BookingHandlers) cancelBooking(w http.ResponseWriter, r *http.Request) {
	h.cancel(w, r, domain.RoleUnresolved)
}

// cancel cancels a pending booking. A non-empty role overrides the resolved one.
func (h *BookingHandlers) cancel(w http.ResponseWriter, r *http.Request, role domain.Role) {
	ctx := r.Context()
	if h.checkout == nil {
		serviceUnavailable(ctx, w, "checkout")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if role != domain.RoleUnresolved {
		actor.Role = role
	}
	booking, err := h.checkout.CancelBooking(ctx, services.CancelBookingCommand{
		Actor:     actor,
		BookingID: pathParam(r, "bookingId"),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildBookingPayload(booking))
}

func (h *BookingHandlers) listOwnerBookings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.bookings == nil {
		serviceUnavailable(ctx, w, "booking")
		return
	}
	uid, ok := requireUID(w, r)
	if !ok {
		return
	}
	pager, ok := parsePager(w, r)
	if !ok {
		return
	}
	page, err := h.bookings.ListForOwner(ctx, uid, pager)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, bookingListResponse{Bookings: buildBookingPayloads(page.Items), NextPageToken: page.NextPageToken})
}

func (h *BookingHandlers) listAllBookings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.bookings == nil {
		serviceUnavailable(ctx, w, "booking")
		return
	}
	if _, ok := requireUID(w, r); !ok {
		return
	}
	pager, ok := parsePager(w, r)
	if !ok {
		return
	}
	page, err := h.bookings.ListAll(ctx, pager)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, bookingListResponse{Bookings: buildBookingPayloads(page.Items), NextPageToken: page.NextPageToken})
}
