package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	domain "github.com/campusnest/api/internal/domain"
	"github.com/campusnest/api/internal/platform/auth"
	"github.com/campusnest/api/internal/receipt"
	"github.com/campusnest/api/internal/services"
)

type stubCartService struct {
	addFunc    func(context.Context, services.AddCartItemCommand) (services.CartEntry, error)
	updateFunc func(context.Context, services.UpdateCartItemCommand) (services.CartEntry, error)
	removeFunc func(context.Context, string, string) error
	listFunc   func(context.Context, string) (services.CartView, error)
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.AddCartItemCommand) (services.CartEntry, error) {
	return s.addFunc(ctx, cmd)
}

func (s *stubCartService) UpdateQuantity(ctx context.Context, cmd services.UpdateCartItemCommand) (services.CartEntry, error) {
	return s.updateFunc(ctx, cmd)
}

func (s *stubCartService) RemoveItem(ctx context.Context, userID, entryID string) error {
	return s.removeFunc(ctx, userID, entryID)
}

func (s *stubCartService) List(ctx context.Context, userID string) (services.CartView, error) {
	return s.listFunc(ctx, userID)
}

type stubCheckoutService struct {
	placeFunc   func(context.Context, services.PlaceOrderCommand) (services.OrderCheckoutResult, error)
	reserveFunc func(context.Context, services.ReserveBoardingCommand) (services.BookingCheckoutResult, error)
	payFunc     func(context.Context, services.PayBookingCommand) (services.BookingCheckoutResult, error)
	cancelFunc  func(context.Context, services.CancelBookingCommand) (services.Booking, error)
}

func (s *stubCheckoutService) PlaceOrder(ctx context.Context, cmd services.PlaceOrderCommand) (services.OrderCheckoutResult, error) {
	return s.placeFunc(ctx, cmd)
}

func (s *stubCheckoutService) ReserveBoarding(ctx context.Context, cmd services.ReserveBoardingCommand) (services.BookingCheckoutResult, error) {
	return s.reserveFunc(ctx, cmd)
}

func (s *stubCheckoutService) PayBooking(ctx context.Context, cmd services.PayBookingCommand) (services.BookingCheckoutResult, error) {
	return s.payFunc(ctx, cmd)
}

func (s *stubCheckoutService) CancelBooking(ctx context.Context, cmd services.CancelBookingCommand) (services.Booking, error) {
	return s.cancelFunc(ctx, cmd)
}

type stubOrderService struct {
	lookupFunc   func(context.Context, string) (services.OrderStatusView, error)
	listUserFunc func(context.Context, string, services.Pagination) (domain.CursorPage[services.Order], error)
	listShopFunc func(context.Context, string, services.Pagination) (domain.CursorPage[services.Order], error)
	listAllFunc  func(context.Context, services.Pagination) (domain.CursorPage[services.Order], error)
	getFunc      func(context.Context, string, string) (services.Order, error)
	updateFunc   func(context.Context, services.UpdateOrderStatusCommand) (services.Order, error)
	receiptFunc  func(context.Context, string, string, services.ReceiptFormat) (receipt.Document, error)
}

func (s *stubOrderService) LookupByNumber(ctx context.Context, number string) (services.OrderStatusView, error) {
	return s.lookupFunc(ctx, number)
}

func (s *stubOrderService) ListForUser(ctx context.Context, userID string, pager services.Pagination) (domain.CursorPage[services.Order], error) {
	return s.listUserFunc(ctx, userID, pager)
}

func (s *stubOrderService) ListForShop(ctx context.Context, ownerID string, pager services.Pagination) (domain.CursorPage[services.Order], error) {
	return s.listShopFunc(ctx, ownerID, pager)
}

func (s *stubOrderService) ListAll(ctx context.Context, pager services.Pagination) (domain.CursorPage[services.Order], error) {
	return s.listAllFunc(ctx, pager)
}

func (s *stubOrderService) GetForUser(ctx context.Context, userID, orderID string) (services.Order, error) {
	return s.getFunc(ctx, userID, orderID)
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
	return s.updateFunc(ctx, cmd)
}

func (s *stubOrderService) Receipt(ctx context.Context, userID, orderID string, format services.ReceiptFormat) (receipt.Document, error) {
	return s.receiptFunc(ctx, userID, orderID, format)
}

type stubBookingService struct {
	listUserFunc  func(context.Context, string, services.Pagination) (domain.CursorPage[services.Booking], error)
	listOwnerFunc func(context.Context, string, services.Pagination) (domain.CursorPage[services.Booking], error)
	listAllFunc   func(context.Context, services.Pagination) (domain.CursorPage[services.Booking], error)
	getFunc       func(context.Context, string, string) (services.Booking, error)
	receiptFunc   func(context.Context, string, string, services.ReceiptFormat) (receipt.Document, error)
}

func (s *stubBookingService) ListForUser(ctx context.Context, userID string, pager services.Pagination) (domain.CursorPage[services.Booking], error) {
	return s.listUserFunc(ctx, userID, pager)
}

func (s *stubBookingService) ListForOwner(ctx context.Context, ownerID string, pager services.Pagination) (domain.CursorPage[services.Booking], error) {
	return s.listOwnerFunc(ctx, ownerID, pager)
}

func (s *stubBookingService) ListAll(ctx context.Context, pager services.Pagination) (domain.CursorPage[services.Booking], error) {
	return s.listAllFunc(ctx, pager)
}

func (s *stubBookingService) GetForUser(ctx context.Context, userID, bookingID string) (services.Booking, error) {
	return s.getFunc(ctx, userID, bookingID)
}

func (s *stubBookingService) Receipt(ctx context.Context, userID, bookingID string, format services.ReceiptFormat) (receipt.Document, error) {
	return s.receiptFunc(ctx, userID, bookingID, format)
}

type stubRoleResolver struct {
	principal   domain.Principal
	err         error
	invalidated []string
}

func (s *stubRoleResolver) Resolve(context.Context, string) (services.Principal, error) {
	return s.principal, s.err
}

func (s *stubRoleResolver) Invalidate(_ context.Context, uid string) error {
	s.invalidated = append(s.invalidated, uid)
	return nil
}

type stubAdminVerifier struct {
	verifyFunc func(context.Context, services.AdminVerificationCommand) (services.AdminSession, error)
}

func (s *stubAdminVerifier) Verify(ctx context.Context, cmd services.AdminVerificationCommand) (services.AdminSession, error) {
	return s.verifyFunc(ctx, cmd)
}

type stubReconciler struct {
	got    services.ReconcileOptions
	report services.ReconcileReport
	err    error
}

func (s *stubReconciler) Reconcile(_ context.Context, opts services.ReconcileOptions) (services.ReconcileReport, error) {
	s.got = opts
	return s.report, s.err
}

type stubHealthRepository struct {
	report domain.SystemHealthReport
	err    error
}

func (s *stubHealthRepository) Collect(context.Context) (domain.SystemHealthReport, error) {
	return s.report, s.err
}

var (
	_ services.CartService     = (*stubCartService)(nil)
	_ services.CheckoutService = (*stubCheckoutService)(nil)
	_ services.OrderService    = (*stubOrderService)(nil)
	_ services.BookingService  = (*stubBookingService)(nil)
	_ services.RoleResolver    = (*stubRoleResolver)(nil)
	_ services.AdminVerifier   = (*stubAdminVerifier)(nil)
	_ services.Reconciler      = (*stubReconciler)(nil)
)

// newAuthedRequest builds a request carrying the identity and, when set, the principal the
// role guard would have resolved.
func newAuthedRequest(method, target, body, uid string, principal domain.Principal) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	ctx := req.Context()
	if uid != "" {
		ctx = auth.WithIdentity(ctx, &auth.Identity{UID: uid, Email: uid + "@example.com"})
	}
	if principal != nil {
		ctx = auth.WithPrincipal(ctx, principal)
	}
	return req.WithContext(ctx)
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
	return body
}

var testPlacedAt = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
