package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/campusnest/api/internal/platform/auth"
	"github.com/campusnest/api/internal/services"
)

// CartHandlers exposes the authenticated caller's cart.
type CartHandlers struct {
	authn  *auth.Authenticator
	carts  services.CartService
	guards []Middleware
}

const maxCartBodySize = 4 * 1024

// NewCartHandlers constructs cart handlers. guards run after Firebase authentication, in
// order; the role guard and the idempotency middleware are passed here.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService, guards ...Middleware) *CartHandlers {
	return &CartHandlers{authn: authn, carts: carts, guards: guards}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(r chi.Router) {
		r.Use(guardChain(h.authn, h.guards...)...)
		r.Get("/", h.listCart)
		r.Post("/items", h.addItem)
		r.Patch("/items/{entryId}", h.updateItem)
		r.Delete("/items/{entryId}", h.removeItem)
	})
}

type cartResponse struct {
	Items    []cartEntryPayload `json:"items"`
	Count    int                `json:"count"`
	Subtotal string             `json:"subtotal"`
}

type addCartItemRequest struct {
	ItemID   string `json:"itemId"`
	Quantity *int   `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity *int `json:"quantity"`
}

func (h *CartHandlers) listCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		serviceUnavailable(ctx, w, "cart")
		return
	}
	uid, ok := requireUID(w, r)
	if !ok {
		return
	}

	view, err := h.carts.List(ctx, uid)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	resp := cartResponse{Items: make([]cartEntryPayload, 0, len(view.Entries)), Subtotal: view.Subtotal}
	for _, entry := range view.Entries {
		resp.Items = append(resp.Items, buildCartEntryPayload(entry))
		resp.Count += entry.Quantity
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		serviceUnavailable(ctx, w, "cart")
		return
	}
	uid, ok := requireUID(w, r)
	if !ok {
		return
	}
	var req addCartItemRequest
	if !decodeJSONBody(w, r, maxCartBodySize, &req) {
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	entry, err := h.carts.AddItem(ctx, services.AddCartItemCommand{
		UserID:   uid,
		ItemID:   strings.TrimSpace(req.ItemID),
		Quantity: quantity,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildCartEntryPayload(entry))
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		serviceUnavailable(ctx, w, "cart")
		return
	}
	uid, ok := requireUID(w, r)
	if !ok {
		return
	}
	var req updateCartItemRequest
	if !decodeJSONBody(w, r, maxCartBodySize, &req) {
		return
	}
	if req.Quantity == nil {
		writeServiceError(ctx, w, fmt.Errorf("%w: quantity is required", services.ErrCartInvalidInput))
		return
	}

	entry, err := h.carts.UpdateQuantity(ctx, services.UpdateCartItemCommand{
		UserID:   uid,
		EntryID:  pathParam(r, "entryId"),
		Quantity: *req.Quantity,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartEntryPayload(entry))
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		serviceUnavailable(ctx, w, "cart")
		return
	}
	uid, ok := requireUID(w, r)
	if !ok {
		return
	}
	if err := h.carts.RemoveItem(ctx, uid, pathParam(r, "entryId")); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
