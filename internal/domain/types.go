package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pagination defines cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage wraps a page of results with the token for the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// CartEntry is a single (user, item) pending-purchase record.
type CartEntry struct {
	ID          string
	UserID      string
	ItemID      string
	ShopOwnerID string
	Name        string
	UnitPrice   decimal.Decimal
	Quantity    int
	ImageRef    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CartEntryID is the document id of the entry for (userID, itemID). Keying by the pair keeps
// one entry per item.
func CartEntryID(userID, itemID string) string {
	return userID + "_" + itemID
}

// LineTotal returns unit price multiplied by quantity.
func (e CartEntry) LineTotal() decimal.Decimal {
	return LineTotal(e.UnitPrice, e.Quantity)
}

// ShopItem is a sellable food item owned by a shop owner.
type ShopItem struct {
	ID          string
	ShopOwnerID string
	Name        string
	Price       decimal.Decimal
	Stock       int
	ImageRef    string
	UpdatedAt   time.Time
}

// BoardingPlace is a rentable room listed by a boarding owner.
type BoardingPlace struct {
	ID            string
	OwnerID       string
	Name          string
	Address       string
	MonthlyRent   decimal.Decimal
	AdvanceAmount decimal.Decimal
	IsAvailable   bool
	UpdatedAt     time.Time
}

// OrderType selects how a food order is handed over.
type OrderType string

const (
	OrderTypeDelivery OrderType = "delivery"
	OrderTypeTakeaway OrderType = "takeaway"
	OrderTypeDineIn   OrderType = "dineIn"
)

// Valid reports whether the order type is one of the supported values.
func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeDelivery, OrderTypeTakeaway, OrderTypeDineIn:
		return true
	}
	return false
}

// PaymentMethod selects how an order is paid.
type PaymentMethod string

const (
	PaymentMethodCard PaymentMethod = "card"
	PaymentMethodCash PaymentMethod = "cash"
)

// Valid reports whether the payment method is supported.
func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCard || m == PaymentMethodCash
}

// PaymentStatus records whether the simulated payment step was captured.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
)

// OrderLine mirrors a cart entry at the time of checkout.
type OrderLine struct {
	ItemID      string
	ShopOwnerID string
	Name        string
	UnitPrice   decimal.Decimal
	Quantity    int
}

// LineTotal returns unit price multiplied by quantity.
func (l OrderLine) LineTotal() decimal.Decimal {
	return LineTotal(l.UnitPrice, l.Quantity)
}

// CustomerDetails is the contact information supplied at checkout.
type CustomerDetails struct {
	Name        string
	Phone       string
	Email       string
	Address     string
	TableNumber string
	Notes       string
}

// UserDetails is the denormalised student profile attached to orders.
type UserDetails struct {
	UID   string
	Name  string
	Email string
	Phone string
}

// ShopDetails is the denormalised shop profile attached to orders.
type ShopDetails struct {
	OwnerID  string
	ShopName string
	Phone    string
	Email    string
	Address  string
}

// PlaceDetails is the denormalised boarding place snapshot attached to bookings.
type PlaceDetails struct {
	Name    string
	Address string
	OwnerID string
}

// PaymentDetails captures the simulated payment step. Card numbers are never stored, only the last four digits.
type PaymentDetails struct {
	Method        PaymentMethod
	Status        PaymentStatus
	Amount        decimal.Decimal
	CardHolder    string
	CardLast4     string
	TransactionID string
	PaidAt        *time.Time
}

// Order is the immutable snapshot of a food order. Only Status changes after creation.
type Order struct {
	ID            string
	OrderNumber   string
	UserID        string
	ShopOwnerIDs  []string
	Items         []OrderLine
	DeliveryFee   decimal.Decimal
	TotalAmount   decimal.Decimal
	OrderType     OrderType
	PaymentMethod PaymentMethod
	Status        OrderStatus
	OrderDate     time.Time
	Customer      CustomerDetails
	User          *UserDetails
	Shop          *ShopDetails
	Payment       PaymentDetails
	RequestID     string
	UpdatedAt     time.Time
}

// Subtotal sums the line totals of the order.
func (o Order) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range o.Items {
		total = total.Add(line.LineTotal())
	}
	return total
}

// OwnedBy reports whether the shop owner sells at least one line of the order.
func (o Order) OwnedBy(ownerID string) bool {
	for _, id := range o.ShopOwnerIDs {
		if id == ownerID {
			return true
		}
	}
	return false
}

// PaymentType selects how much of a booking is paid up front.
type PaymentType string

const (
	PaymentTypeAdvance PaymentType = "advance"
	PaymentTypeFull    PaymentType = "full"
)

// Valid reports whether the payment type is supported.
func (t PaymentType) Valid() bool {
	return t == PaymentTypeAdvance || t == PaymentTypeFull
}

// Booking is a reservation of a boarding place.
type Booking struct {
	ID              string
	BookingNumber   string
	BoardingPlaceID string
	OwnerID         string
	UserID          string
	CustomerName    string
	CustomerPhone   string
	CheckInDate     time.Time
	Status          BookingStatus
	TotalAmount     decimal.Decimal
	PaymentType     PaymentType
	Place           *PlaceDetails
	User            *UserDetails
	Payment         *PaymentDetails
	RequestID       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NotificationKind classifies notification records.
type NotificationKind string

const (
	NotificationOrderCreated       NotificationKind = "order.created"
	NotificationOrderStatusChanged NotificationKind = "order.status_changed"
	NotificationBookingCreated     NotificationKind = "booking.created"
	NotificationBookingPaid        NotificationKind = "booking.paid"
	NotificationBookingCancelled   NotificationKind = "booking.cancelled"
)

// Notification is a best-effort record surfaced on owner and student dashboards.
type Notification struct {
	ID          string
	RecipientID string
	Kind        NotificationKind
	RefType     string
	RefID       string
	RefNumber   string
	Message     string
	Read        bool
	CreatedAt   time.Time
}

// Event is published after a write commits so subscribers can react independently.
type Event struct {
	ID         string
	Type       string
	RefType    string
	RefID      string
	RefNumber  string
	ActorID    string
	OwnerIDs   []string
	Status     string
	OccurredAt time.Time
	Metadata   map[string]any
}
