package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/campusnest/api/internal/domain"
	"github.com/campusnest/api/internal/receipt"
)

type orderFixture struct {
	orders        *memOrders
	notifications *memNotifications
	publisher     *recordingPublisher
	svc           OrderService
}

func newOrderFixture(t *testing.T, orders ...domain.Order) *orderFixture {
	t.Helper()
	clock := func() time.Time { return time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC) }
	receipts, err := NewReceiptGenerator("LKR", nil, nil)
	if err != nil {
		t.Fatalf("receipts: %v", err)
	}
	f := &orderFixture{
		orders:        newMemOrders(orders...),
		notifications: &memNotifications{},
		publisher:     &recordingPublisher{},
	}
	f.svc, err = NewOrderService(OrderServiceDeps{
		Orders:   f.orders,
		Receipts: receipts,
		Dispatcher: NewNotificationDispatcher(NotificationDispatcherDeps{
			Notifications: f.notifications,
			Publisher:     f.publisher,
			Clock:         clock,
			IDGenerator:   (&sequenceIDs{}).id,
		}),
		Clock: clock,
	})
	if err != nil {
		t.Fatalf("order service: %v", err)
	}
	return f
}

func sampleOrder(status domain.OrderStatus) domain.Order {
	placed := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	return domain.Order{
		ID:           "order-1",
		OrderNumber:  "ORD-20250314093000-7QK2ZD",
		UserID:       testStudent,
		ShopOwnerIDs: []string{testShopOwner},
		Items: []domain.OrderLine{
			{ItemID: "item-a", ShopOwnerID: testShopOwner, Name: "Rice & curry", UnitPrice: decimal.NewFromInt(500), Quantity: 2},
		},
		DeliveryFee:   decimal.Zero,
		TotalAmount:   decimal.NewFromInt(1000),
		OrderType:     domain.OrderTypeTakeaway,
		PaymentMethod: domain.PaymentMethodCash,
		Status:        status,
		OrderDate:     placed,
		Customer:      domain.CustomerDetails{Name: "Nimal", Phone: "0711111111"},
		Shop:          &domain.ShopDetails{OwnerID: testShopOwner, ShopName: "Canteen One"},
		Payment:       domain.PaymentDetails{Method: domain.PaymentMethodCash, Status: domain.PaymentStatusPending, Amount: decimal.NewFromInt(1000)},
	}
}

func TestOrderLookupByNumberExposesStatusOnly(t *testing.T) {
	f := newOrderFixture(t, sampleOrder(domain.OrderStatusPreparing))

	view, err := f.svc.LookupByNumber(context.Background(), " ord-20250314093000-7qk2zd ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.Status != domain.OrderStatusPreparing || view.TotalAmount != "1000.00" || view.ShopName != "Canteen One" {
		t.Fatalf("unexpected view %#v", view)
	}
	if _, err := f.svc.LookupByNumber(context.Background(), "ORD-NOPE"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrderUpdateStatusPermissions(t *testing.T) {
	tests := []struct {
		name  string
		from  domain.OrderStatus
		actor Actor
		to    domain.OrderStatus
		want  error
	}{
		{name: "owner advances", from: domain.OrderStatusPending, actor: Actor{UID: testShopOwner, Role: domain.RoleShopOwner}, to: domain.OrderStatusPreparing},
		{name: "other owner", from: domain.OrderStatusPending, actor: Actor{UID: "shop-2", Role: domain.RoleShopOwner}, to: domain.OrderStatusPreparing, want: ErrOrderNotFound},
		{name: "student cancels pending", from: domain.OrderStatusPending, actor: Actor{UID: testStudent, Role: domain.RoleStudent}, to: domain.OrderStatusCancelled},
		{name: "student cannot advance", from: domain.OrderStatusPending, actor: Actor{UID: testStudent, Role: domain.RoleStudent}, to: domain.OrderStatusPreparing, want: ErrOrderForbidden},
		{name: "student cannot cancel preparing", from: domain.OrderStatusPreparing, actor: Actor{UID: testStudent, Role: domain.RoleStudent}, to: domain.OrderStatusCancelled, want: ErrOrderForbidden},
		{name: "admin skips ahead is rejected", from: domain.OrderStatusPending, actor: Actor{UID: "admin", Role: domain.RoleAdmin}, to: domain.OrderStatusCompleted, want: ErrOrderInvalidTransition},
		{name: "terminal", from: domain.OrderStatusCompleted, actor: Actor{UID: "admin", Role: domain.RoleAdmin}, to: domain.OrderStatusCancelled, want: ErrOrderInvalidTransition},
		{name: "unknown status", from: domain.OrderStatusPending, actor: Actor{UID: "admin", Role: domain.RoleAdmin}, to: "shipped", want: ErrOrderInvalidInput},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newOrderFixture(t, sampleOrder(tc.from))
			updated, err := f.svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{Actor: tc.actor, OrderID: "order-1", Status: tc.to})
			if tc.want != nil {
				if !errors.Is(err, tc.want) {
					t.Fatalf("expected %v, got %v", tc.want, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if updated.Status != tc.to {
				t.Fatalf("expected %s, got %s", tc.to, updated.Status)
			}
		})
	}
}

func TestOrderUpdateStatusNotifiesStudent(t *testing.T) {
	f := newOrderFixture(t, sampleOrder(domain.OrderStatusPending))

	if _, err := f.svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
		Actor:   Actor{UID: testShopOwner, Role: domain.RoleShopOwner},
		OrderID: "order-1",
		Status:  domain.OrderStatusPreparing,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.notifications.records) != 1 || f.notifications.records[0].RecipientID != testStudent {
		t.Fatalf("expected student notification, got %#v", f.notifications.records)
	}
	if types := f.publisher.types(); len(types) != 1 || types[0] != "order.status_changed" {
		t.Fatalf("expected status event, got %v", types)
	}
}

func TestOrderUpdateStatusSameStatusIsNoop(t *testing.T) {
	f := newOrderFixture(t, sampleOrder(domain.OrderStatusReady))
	if _, err := f.svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
		Actor:   Actor{UID: testShopOwner, Role: domain.RoleShopOwner},
		OrderID: "order-1",
		Status:  domain.OrderStatusReady,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.publisher.types()) != 0 {
		t.Fatalf("no event expected for a no-op")
	}
}

func TestOrderGetForUserHidesOtherUsers(t *testing.T) {
	f := newOrderFixture(t, sampleOrder(domain.OrderStatusPending))
	if _, err := f.svc.GetForUser(context.Background(), "someone", "order-1"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	page, err := f.svc.ListForShop(context.Background(), testShopOwner, Pagination{})
	if err != nil || len(page.Items) != 1 {
		t.Fatalf("expected one shop order, got %#v err=%v", page, err)
	}
}

func TestOrderReceiptFormats(t *testing.T) {
	f := newOrderFixture(t, sampleOrder(domain.OrderStatusCompleted))

	doc, err := f.svc.Receipt(context.Background(), testStudent, "order-1", receipt.FormatText)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(doc.Body), "ORD-20250314093000-7QK2ZD") {
		t.Fatalf("expected order number in receipt, got %s", doc.Body)
	}
	if !strings.HasPrefix(doc.ContentType, "text/plain") {
		t.Fatalf("unexpected content type %q", doc.ContentType)
	}
}
