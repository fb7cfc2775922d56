package repositories

import (
	"context"
	"time"

	domain "github.com/campusnest/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Carts() CartRepository
	ShopItems() ShopItemRepository
	BoardingPlaces() BoardingPlaceRepository
	Orders() OrderRepository
	Bookings() BookingRepository
	Identities() IdentityDirectory
	Notifications() NotificationRepository
	CheckoutRuns() CheckoutRunRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CartRepository stores one document per (user, item) pair.
type CartRepository interface {
	// Create persists a new entry. An existing entry for the same pair yields a RepositoryError with IsConflict.
	Create(ctx context.Context, entry domain.CartEntry) (domain.CartEntry, error)
	Get(ctx context.Context, entryID string) (domain.CartEntry, error)
	UpdateQuantity(ctx context.Context, entryID string, quantity int, now time.Time) (domain.CartEntry, error)
	Delete(ctx context.Context, entryID string) error
	// ListByUser returns the user's entries ordered by creation time.
	ListByUser(ctx context.Context, userID string) ([]domain.CartEntry, error)
}

// StockChange reports the stock level before and after an adjustment.
type StockChange struct {
	ItemID string
	Before int
	After  int
}

// ShopItemRepository reads food items and mutates their stock.
type ShopItemRepository interface {
	Get(ctx context.Context, itemID string) (domain.ShopItem, error)
	// AdjustStock adds delta (negative to decrement) to the stored stock. When guard is set a
	// result below zero is refused with an InventoryError of code InventoryErrorInsufficientStock.
	AdjustStock(ctx context.Context, itemID string, delta int, guard bool, now time.Time) (StockChange, error)
	Upsert(ctx context.Context, item domain.ShopItem) error
}

// BoardingPlaceRepository reads boarding places and flips their availability flag.
type BoardingPlaceRepository interface {
	Get(ctx context.Context, placeID string) (domain.BoardingPlace, error)
	SetAvailability(ctx context.Context, placeID string, available bool, now time.Time) error
	Upsert(ctx context.Context, place domain.BoardingPlace) error
}

// OrderRepository persists orders. Only the status changes after Insert.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Order], error)
	// ListByShopOwner lists orders containing at least one line sold by ownerID.
	ListByShopOwner(ctx context.Context, ownerID string, pager domain.Pagination) (domain.CursorPage[domain.Order], error)
	ListAll(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Order], error)
	// UpdateStatus moves the order from one status to another. A concurrent change that left
	// the order in a status other than from yields a RepositoryError with IsConflict.
	UpdateStatus(ctx context.Context, orderID string, from, to domain.OrderStatus, now time.Time) (domain.Order, error)
}

// BookingRepository persists boarding bookings.
type BookingRepository interface {
	Insert(ctx context.Context, booking domain.Booking) (domain.Booking, error)
	FindByID(ctx context.Context, bookingID string) (domain.Booking, error)
	ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Booking], error)
	ListByOwner(ctx context.Context, ownerID string, pager domain.Pagination) (domain.CursorPage[domain.Booking], error)
	ListAll(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Booking], error)
	UpdateStatus(ctx context.Context, bookingID string, from, to domain.BookingStatus, now time.Time) (domain.Booking, error)
	// MarkPaid moves a pending booking to paid and records the payment details.
	MarkPaid(ctx context.Context, bookingID string, payment domain.PaymentDetails, now time.Time) (domain.Booking, error)
}

// IdentityDirectory resolves role records across the admins, shopOwners and users collections.
type IdentityDirectory interface {
	// Lookup returns every principal variant recorded for uid in a single round trip. An
	// identity present in no collection yields an empty slice and no error.
	Lookup(ctx context.Context, uid string) ([]domain.Principal, error)
	Save(ctx context.Context, principal domain.Principal) error
}

// NotificationRepository stores best-effort notification records.
type NotificationRepository interface {
	Insert(ctx context.Context, notification domain.Notification) (domain.Notification, error)
	ListByRecipient(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error)
}

// CheckoutRunRepository persists saga state for checkout runs.
type CheckoutRunRepository interface {
	// Reserve creates the run unless one with the same id exists, in which case the stored run
	// is returned with created=false.
	Reserve(ctx context.Context, run domain.CheckoutRun) (stored domain.CheckoutRun, created bool, err error)
	Get(ctx context.Context, runID string) (domain.CheckoutRun, error)
	Save(ctx context.Context, run domain.CheckoutRun) error
	// ListStale returns runs in one of statuses last updated before the cutoff, oldest first.
	ListStale(ctx context.Context, statuses []domain.RunStatus, before time.Time, limit int) ([]domain.CheckoutRun, error)
}

// HealthRepository exposes dependency probes for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
