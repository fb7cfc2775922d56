package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/campusnest/api/internal/domain"
	"github.com/campusnest/api/internal/platform/auth"
	"github.com/campusnest/api/internal/services"
)

const maxOrderRequestBody = 2 * 1024

// OrderHandlers serves the public order lookup and the student, shop owner and admin order
// views.
type OrderHandlers struct {
	authn  *auth.Authenticator
	guard  *auth.RoleGuard
	orders services.OrderService
}

// NewOrderHandlers constructs order handlers. guard may be nil in tests, in which case the
// role is read from the request context as-is.
func NewOrderHandlers(authn *auth.Authenticator, guard *auth.RoleGuard, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{authn: authn, guard: guard, orders: orders}
}

// PublicRoutes registers the unauthenticated order number lookup.
func (h *OrderHandlers) PublicRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/lookup/{orderNumber}", h.lookupOrder)
}

// MeRoutes registers the caller's own orders.
func (h *OrderHandlers) MeRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(r chi.Router) {
		r.Use(guardChain(h.authn, requireRoles(h.guard))...)
		r.Get("/orders", h.listMyOrders)
		r.Get("/orders/{orderId}", h.getMyOrder)
		r.Get("/orders/{orderId}/receipt", h.getMyOrderReceipt)
		r.Post("/orders/{orderId}/cancel", h.cancelMyOrder)
	})
}

// ShopRoutes registers the shop owner's incoming orders.
func (h *OrderHandlers) ShopRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(r chi.Router) {
		r.Use(guardChain(h.authn, requireRoles(h.guard, domain.RoleShopOwner))...)
		r.Get("/orders", h.listShopOrders)
		r.Patch("/orders/{orderId}/status", h.updateStatus)
	})
}

// AdminRoutes registers the administrator's view of every order.
func (h *OrderHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(r chi.Router) {
		r.Use(guardChain(h.authn, requireRoles(h.guard, domain.RoleAdmin))...)
		r.Get("/orders", h.listAllOrders)
		r.Patch("/orders/{orderId}/status", h.updateStatus)
	})
}

type orderLookupResponse struct {
	OrderNumber string `json:"orderNumber"`
	Status      string `json:"status"`
	OrderType   string `json:"orderType"`
	OrderDate   string `json:"orderDate"`
	TotalAmount string `json:"totalAmount"`
	ShopName    string `json:"shopName,omitempty"`
}

type orderListResponse struct {
	Orders        []orderPayload `json:"orders"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

func (h *OrderHandlers) lookupOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	view, err := h.orders.LookupByNumber(ctx, pathParam(r, "orderNumber"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderLookupResponse{
		OrderNumber: view.OrderNumber,
		Status:      string(view.Status),
		OrderType:   string(view.OrderType),
		OrderDate:   formatTime(view.OrderDate),
		TotalAmount: view.TotalAmount,
		ShopName:    view.ShopName,
	})
}

func (h *OrderHandlers) listMyOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
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
	page, err := h.orders.ListForUser(ctx, uid, pager)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{Orders: buildOrderPayloads(page.Items), NextPageToken: page.NextPageToken})
}

func (h *OrderHandlers) getMyOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	uid, ok := requireUID(w, r)
	if !ok {
		return
	}
	order, err := h.orders.GetForUser(ctx, uid, pathParam(r, "orderId"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) getMyOrderReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
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
	doc, err := h.orders.Receipt(ctx, uid, pathParam(r, "orderId"), format)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeReceiptDocument(w, doc)
}

func (h *OrderHandlers) cancelMyOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	// Cancelling from the student area acts as the student even when the caller also owns a shop.
	actor.Role = domain.RoleStudent
	order, err := h.orders.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		Actor:   actor,
		OrderID: pathParam(r, "orderId"),
		Status:  domain.OrderStatusCancelled,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) listShopOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
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
	page, err := h.orders.ListForShop(ctx, uid, pager)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{Orders: buildOrderPayloads(page.Items), NextPageToken: page.NextPageToken})
}

func (h *OrderHandlers) listAllOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	if _, ok := requireUID(w, r); !ok {
		return
	}
	pager, ok := parsePager(w, r)
	if !ok {
		return
	}
	page, err := h.orders.ListAll(ctx, pager)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{Orders: buildOrderPayloads(page.Items), NextPageToken: page.NextPageToken})
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req updateOrderStatusRequest
	if !decodeJSONBody(w, r, maxOrderRequestBody, &req) {
		return
	}
	status := strings.TrimSpace(req.Status)
	if status == "" {
		writeServiceError(ctx, w, fmt.Errorf("%w: status is required", services.ErrOrderInvalidInput))
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		Actor:   actor,
		OrderID: pathParam(r, "orderId"),
		Status:  domain.OrderStatus(status),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}
