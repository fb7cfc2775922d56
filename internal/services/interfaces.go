package services

import (
	"context"
	"time"

	domain "github.com/campusnest/api/internal/domain"
	"github.com/campusnest/api/internal/receipt"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination    = domain.Pagination
	CartEntry     = domain.CartEntry
	Order         = domain.Order
	Booking       = domain.Booking
	Principal     = domain.Principal
	ReceiptFormat = receipt.Format
)

// EventPublisher publishes domain events after the originating write has committed.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// ReceiptArchiver stores rendered receipts and returns their location.
type ReceiptArchiver interface {
	ArchiveReceipt(ctx context.Context, number string, issuedAt time.Time, contentType string, body []byte) (string, error)
}

// PrincipalCache caches resolved principals by uid.
type PrincipalCache interface {
	Get(ctx context.Context, uid string) (domain.Principal, bool, error)
	Set(ctx context.Context, principal domain.Principal) error
	Invalidate(ctx context.Context, uid string) error
}

// Actor is the authenticated caller of a mutating operation.
type Actor struct {
	UID  string
	Role domain.Role
}

// CartService manages per-user cart entries.
type CartService interface {
	AddItem(ctx context.Context, cmd AddCartItemCommand) (CartEntry, error)
	UpdateQuantity(ctx context.Context, cmd UpdateCartItemCommand) (CartEntry, error)
	RemoveItem(ctx context.Context, userID, entryID string) error
	List(ctx context.Context, userID string) (CartView, error)
}

// AddCartItemCommand adds an item to the caller's cart.
type AddCartItemCommand struct {
	UserID   string
	ItemID   string
	Quantity int
}

// UpdateCartItemCommand replaces the quantity of an entry.
type UpdateCartItemCommand struct {
	UserID   string
	EntryID  string
	Quantity int
}

// CartView is the cart with its running subtotal.
type CartView struct {
	Entries  []CartEntry
	Subtotal string
}

// CheckoutService runs the checkout and fulfillment pipeline.
type CheckoutService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (OrderCheckoutResult, error)
	ReserveBoarding(ctx context.Context, cmd ReserveBoardingCommand) (BookingCheckoutResult, error)
	PayBooking(ctx context.Context, cmd PayBookingCommand) (BookingCheckoutResult, error)
	CancelBooking(ctx context.Context, cmd CancelBookingCommand) (Booking, error)
}

// CardInput is the captured card. Only the last four digits are persisted.
type CardInput struct {
	Holder string
	Number string
}

// PlaceOrderCommand checks out the caller's cart.
type PlaceOrderCommand struct {
	UserID        string
	Email         string
	RequestID     string
	OrderType     domain.OrderType
	PaymentMethod domain.PaymentMethod
	Customer      domain.CustomerDetails
	Card          *CardInput
}

// InventoryReport lists which stock adjustments succeeded.
type InventoryReport struct {
	Succeeded []string
	Failed    []string
}

// OrderCheckoutResult is returned by PlaceOrder.
type OrderCheckoutResult struct {
	Order     Order
	Receipt   receipt.Receipt
	Inventory InventoryReport
	// Replayed is set when the result was served from a completed run for the same request id.
	Replayed bool
	RunID    string
}

// ReserveBoardingCommand reserves a boarding place.
type ReserveBoardingCommand struct {
	UserID          string
	Email           string
	RequestID       string
	BoardingPlaceID string
	CustomerName    string
	Phone           string
	CheckInDate     time.Time
	PaymentType     domain.PaymentType
}

// PaymentInput is the simulated payment submitted for a booking. Amount may be a number or
// a numeric string; when set it must match the booking total.
type PaymentInput struct {
	Method     domain.PaymentMethod
	Amount     any
	CardHolder string
	CardNumber string
}

// PayBookingCommand captures the simulated payment of a pending booking.
type PayBookingCommand struct {
	UserID    string
	BookingID string
	Payment   PaymentInput
}

// CancelBookingCommand cancels a pending booking.
type CancelBookingCommand struct {
	Actor     Actor
	BookingID string
}

// BookingCheckoutResult is returned by ReserveBoarding and PayBooking.
type BookingCheckoutResult struct {
	Booking  Booking
	Receipt  receipt.Receipt
	Replayed bool
	RunID    string
}

// OrderService exposes order reads and status changes.
type OrderService interface {
	LookupByNumber(ctx context.Context, orderNumber string) (OrderStatusView, error)
	ListForUser(ctx context.Context, userID string, pager Pagination) (domain.CursorPage[Order], error)
	ListForShop(ctx context.Context, ownerID string, pager Pagination) (domain.CursorPage[Order], error)
	ListAll(ctx context.Context, pager Pagination) (domain.CursorPage[Order], error)
	GetForUser(ctx context.Context, userID, orderID string) (Order, error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	Receipt(ctx context.Context, userID, orderID string, format ReceiptFormat) (receipt.Document, error)
}

// OrderStatusView is the public projection returned by order number lookups.
type OrderStatusView struct {
	OrderNumber string
	Status      domain.OrderStatus
	OrderType   domain.OrderType
	OrderDate   time.Time
	TotalAmount string
	ShopName    string
}

// UpdateOrderStatusCommand moves an order along its state machine.
type UpdateOrderStatusCommand struct {
	Actor   Actor
	OrderID string
	Status  domain.OrderStatus
}

// BookingService exposes booking reads.
type BookingService interface {
	ListForUser(ctx context.Context, userID string, pager Pagination) (domain.CursorPage[Booking], error)
	ListForOwner(ctx context.Context, ownerID string, pager Pagination) (domain.CursorPage[Booking], error)
	ListAll(ctx context.Context, pager Pagination) (domain.CursorPage[Booking], error)
	GetForUser(ctx context.Context, userID, bookingID string) (Booking, error)
	Receipt(ctx context.Context, userID, bookingID string, format ReceiptFormat) (receipt.Document, error)
}

// RoleResolver maps an identity to its principal. A nil principal with a nil error means the
// identity is unresolved; an error wrapping ErrRoleLookupFailed means the lookup failed and
// may be retried.
type RoleResolver interface {
	Resolve(ctx context.Context, uid string) (Principal, error)
	Invalidate(ctx context.Context, uid string) error
}

// AdminVerifier performs the admin step-up check.
type AdminVerifier interface {
	Verify(ctx context.Context, cmd AdminVerificationCommand) (AdminSession, error)
}

// AdminVerificationCommand carries the code entered by an admin after sign in.
type AdminVerificationCommand struct {
	UID  string
	Code string
}

// AdminSession is the issued step-up token.
type AdminSession struct {
	Token     string
	ExpiresAt time.Time
}

// Reconciler resumes or compensates checkout runs left incomplete.
type Reconciler interface {
	Reconcile(ctx context.Context, opts ReconcileOptions) (ReconcileReport, error)
}

// ReconcileOptions bounds one reconciliation pass.
type ReconcileOptions struct {
	StaleAfter time.Duration
	Limit      int
	Compensate bool
}

// ReconcileOutcome is the result for one run.
type ReconcileOutcome struct {
	RunID  string
	Kind   domain.CheckoutKind
	Action string
	Status domain.RunStatus
	Error  string
}

// ReconcileReport summarises a reconciliation pass.
type ReconcileReport struct {
	Scanned     int
	Resumed     int
	Compensated int
	Failed      int
	Outcomes    []ReconcileOutcome
}
