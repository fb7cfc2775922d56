package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/campusnest/api/internal/domain"
	"github.com/campusnest/api/internal/receipt"
	"github.com/campusnest/api/internal/repositories"
)

var (
	errOrderRepositoryRequired = errors.New("order service: order repository is required")
	errOrderReceiptsRequired   = errors.New("order service: receipt generator is required")
	errOrderClockRequired      = errors.New("order service: clock is required")
)

// OrderServiceDeps wires order reads and status changes.
type OrderServiceDeps struct {
	Orders     repositories.OrderRepository
	Receipts   *ReceiptGenerator
	Dispatcher *NotificationDispatcher
	Clock      func() time.Time
	Logger     func(context.Context, string, map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	receipts   *ReceiptGenerator
	dispatcher *NotificationDispatcher
	now        func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService constructs an OrderService enforcing dependency validation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errOrderRepositoryRequired
	}
	if deps.Receipts == nil {
		return nil, errOrderReceiptsRequired
	}
	if deps.Clock == nil {
		return nil, errOrderClockRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &orderService{
		orders:     deps.Orders,
		receipts:   deps.Receipts,
		dispatcher: deps.Dispatcher,
		now:        func() time.Time { return deps.Clock().UTC() },
		logger:     logger,
	}, nil
}

// LookupByNumber returns the public status view of an order. It exposes no customer data.
func (s *orderService) LookupByNumber(ctx context.Context, orderNumber string) (OrderStatusView, error) {
	orderNumber = strings.ToUpper(strings.TrimSpace(orderNumber))
	if orderNumber == "" {
		return OrderStatusView{}, fmt.Errorf("%w: order number is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByNumber(ctx, orderNumber)
	if err != nil {
		return OrderStatusView{}, s.translateRepoError(err)
	}
	view := OrderStatusView{
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		OrderType:   order.OrderType,
		OrderDate:   order.OrderDate,
		TotalAmount: domain.FormatAmount(order.TotalAmount),
	}
	if order.Shop != nil {
		view.ShopName = order.Shop.ShopName
	}
	return view, nil
}

func (s *orderService) ListForUser(ctx context.Context, userID string, pager Pagination) (domain.CursorPage[Order], error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	page, err := s.orders.ListByUser(ctx, userID, pager)
	if err != nil {
		return domain.CursorPage[Order]{}, s.translateRepoError(err)
	}
	return page, nil
}

func (s *orderService) ListForShop(ctx context.Context, ownerID string, pager Pagination) (domain.CursorPage[Order], error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: owner id is required", ErrOrderInvalidInput)
	}
	page, err := s.orders.ListByShopOwner(ctx, ownerID, pager)
	if err != nil {
		return domain.CursorPage[Order]{}, s.translateRepoError(err)
	}
	return page, nil
}

func (s *orderService) ListAll(ctx context.Context, pager Pagination) (domain.CursorPage[Order], error) {
	page, err := s.orders.ListAll(ctx, pager)
	if err != nil {
		return domain.CursorPage[Order]{}, s.translateRepoError(err)
	}
	return page, nil
}

// GetForUser returns an order placed by userID. Orders of other users read as not found.
func (s *orderService) GetForUser(ctx context.Context, userID, orderID string) (Order, error) {
	order, err := s.find(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if order.UserID != strings.TrimSpace(userID) {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

// UpdateStatus applies a state machine transition. Shop owners may move orders containing
// their items, students may cancel their own pending orders, admins may do either.
func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	if !cmd.Status.Valid() {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}
	order, err := s.find(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	if err := authorizeOrderChange(cmd.Actor, order, cmd.Status); err != nil {
		return Order{}, err
	}
	if order.Status == cmd.Status {
		return order, nil
	}
	if !order.Status.CanTransitionTo(cmd.Status) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrOrderInvalidTransition, order.Status, cmd.Status)
	}

	updated, err := s.orders.UpdateStatus(ctx, order.ID, order.Status, cmd.Status, s.now())
	if err != nil {
		if repositories.IsConflict(err) {
			return Order{}, fmt.Errorf("%w: order changed concurrently", ErrOrderConflict)
		}
		return Order{}, s.translateRepoError(err)
	}

	s.logger(ctx, "order.status_changed", map[string]any{
		"orderId": updated.ID,
		"from":    string(order.Status),
		"to":      string(updated.Status),
		"actor":   cmd.Actor.UID,
	})
	if cmd.Actor.UID != updated.UserID {
		s.dispatcher.Notify(ctx, Notice{
			RecipientID: updated.UserID,
			Kind:        domain.NotificationOrderStatusChanged,
			RefType:     string(domain.CheckoutKindOrder),
			RefID:       updated.ID,
			RefNumber:   updated.OrderNumber,
			Message:     fmt.Sprintf("Order %s is now %s", updated.OrderNumber, updated.Status),
		})
	}
	s.dispatcher.Publish(ctx, domain.Event{
		Type:      string(domain.NotificationOrderStatusChanged),
		RefType:   string(domain.CheckoutKindOrder),
		RefID:     updated.ID,
		RefNumber: updated.OrderNumber,
		ActorID:   cmd.Actor.UID,
		OwnerIDs:  updated.ShopOwnerIDs,
		Status:    string(updated.Status),
		Metadata:  map[string]any{"previousStatus": string(order.Status)},
	})
	return updated, nil
}

// Receipt renders the receipt of the caller's order.
func (s *orderService) Receipt(ctx context.Context, userID, orderID string, format ReceiptFormat) (receipt.Document, error) {
	order, err := s.GetForUser(ctx, userID, orderID)
	if err != nil {
		return receipt.Document{}, err
	}
	rc, err := s.receipts.ForOrder(order)
	if err != nil {
		return receipt.Document{}, fmt.Errorf("order service: build receipt: %w", err)
	}
	return s.receipts.Render(rc, format)
}

func (s *orderService) find(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	return order, nil
}

func (s *orderService) translateRepoError(err error) error {
	switch {
	case repositories.IsNotFound(err):
		return ErrOrderNotFound
	case repositories.IsConflict(err):
		return fmt.Errorf("%w: %v", ErrOrderConflict, err)
	}
	return fmt.Errorf("order service: %w", err)
}

func authorizeOrderChange(actor Actor, order domain.Order, next domain.OrderStatus) error {
	switch actor.Role {
	case domain.RoleAdmin:
		return nil
	case domain.RoleShopOwner:
		if order.OwnedBy(actor.UID) {
			return nil
		}
		return ErrOrderNotFound
	case domain.RoleStudent:
		if order.UserID != actor.UID {
			return ErrOrderNotFound
		}
		if next == domain.OrderStatusCancelled && order.Status == domain.OrderStatusPending {
			return nil
		}
		return fmt.Errorf("%w: students may only cancel pending orders", ErrOrderForbidden)
	}
	return ErrOrderForbidden
}
