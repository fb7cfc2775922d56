// Package receipt builds printable receipts from order and booking snapshots and renders
// them as HTML, plain text, Markdown or JSON.
package receipt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/campusnest/api/internal/domain"
)

// Kind distinguishes order receipts from booking receipts.
type Kind string

const (
	KindOrder   Kind = "order"
	KindBooking Kind = "booking"
)

// ErrInvalidPayment is returned when the payment metadata cannot be normalised.
var ErrInvalidPayment = errors.New("receipt: invalid payment metadata")

// PaymentMetadata is the payment side of a receipt. Amount may be a number, a numeric string
// or a decimal; a nil Amount falls back to the snapshot total. Paid is false while cash is
// still to be collected.
type PaymentMetadata struct {
	Method        string
	Amount        any
	TransactionID string
	Timestamp     time.Time
	Paid          bool
}

// Line is one priced row of the receipt.
type Line struct {
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
	Total     decimal.Decimal
}

// Payment is the normalised payment block.
type Payment struct {
	Method        string
	Amount        decimal.Decimal
	TransactionID string
	PaidAt        time.Time
	Paid          bool
}

// Receipt is the structured payload consumed by the renderers.
type Receipt struct {
	Kind          Kind
	Number        string
	Status        string
	IssuedAt      time.Time
	Merchant      string
	CustomerName  string
	CustomerPhone string
	CustomerEmail string
	Address       string
	TableNumber   string
	Notes         string
	OrderType     string
	PaymentType   string
	CheckInDate   time.Time
	Lines         []Line
	Subtotal      decimal.Decimal
	DeliveryFee   decimal.Decimal
	Total         decimal.Decimal
	Payment       Payment
}

// ForOrder builds a receipt from an order snapshot. It depends only on its inputs.
func ForOrder(order domain.Order, meta PaymentMetadata) (Receipt, error) {
	payment, err := normalisePayment(meta, string(order.PaymentMethod), order.TotalAmount, order.OrderDate)
	if err != nil {
		return Receipt{}, err
	}
	lines := make([]Line, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, Line{
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.Round(2),
			Total:     item.LineTotal().Round(2),
		})
	}
	r := Receipt{
		Kind:          KindOrder,
		Number:        order.OrderNumber,
		Status:        string(order.Status),
		IssuedAt:      order.OrderDate.UTC(),
		CustomerName:  order.Customer.Name,
		CustomerPhone: order.Customer.Phone,
		CustomerEmail: order.Customer.Email,
		Address:       order.Customer.Address,
		TableNumber:   order.Customer.TableNumber,
		Notes:         order.Customer.Notes,
		OrderType:     string(order.OrderType),
		Lines:         lines,
		Subtotal:      order.Subtotal().Round(2),
		DeliveryFee:   order.DeliveryFee.Round(2),
		Total:         order.TotalAmount.Round(2),
		Payment:       payment,
	}
	if order.Shop != nil {
		r.Merchant = order.Shop.ShopName
	}
	return r, nil
}

// ForBooking builds a receipt from a booking snapshot.
func ForBooking(booking domain.Booking, meta PaymentMetadata) (Receipt, error) {
	method := ""
	if booking.Payment != nil {
		method = string(booking.Payment.Method)
	}
	payment, err := normalisePayment(meta, method, booking.TotalAmount, booking.CreatedAt)
	if err != nil {
		return Receipt{}, err
	}
	name := "Boarding reservation"
	r := Receipt{
		Kind:          KindBooking,
		Number:        booking.BookingNumber,
		Status:        string(booking.Status),
		IssuedAt:      booking.CreatedAt.UTC(),
		CustomerName:  booking.CustomerName,
		CustomerPhone: booking.CustomerPhone,
		PaymentType:   string(booking.PaymentType),
		CheckInDate:   booking.CheckInDate.UTC(),
		Subtotal:      booking.TotalAmount.Round(2),
		Total:         booking.TotalAmount.Round(2),
		Payment:       payment,
	}
	if booking.Place != nil {
		r.Merchant = booking.Place.Name
		r.Address = booking.Place.Address
		name = booking.Place.Name
	}
	if booking.User != nil {
		r.CustomerEmail = booking.User.Email
	}
	r.Lines = []Line{{Name: fmt.Sprintf("%s (%s payment)", name, booking.PaymentType), Quantity: 1, UnitPrice: r.Total, Total: r.Total}}
	return r, nil
}

func normalisePayment(meta PaymentMetadata, fallbackMethod string, fallbackAmount decimal.Decimal, fallbackTime time.Time) (Payment, error) {
	amount := fallbackAmount
	if meta.Amount != nil {
		parsed, err := domain.ParseAmount(meta.Amount)
		if err != nil {
			return Payment{}, fmt.Errorf("%w: %v", ErrInvalidPayment, err)
		}
		amount = parsed
	}
	if amount.IsNegative() {
		return Payment{}, fmt.Errorf("%w: negative amount %s", ErrInvalidPayment, amount)
	}
	method := strings.TrimSpace(meta.Method)
	if method == "" {
		method = fallbackMethod
	}
	paidAt := meta.Timestamp
	if paidAt.IsZero() {
		paidAt = fallbackTime
	}
	return Payment{
		Method:        method,
		Amount:        amount.Round(2),
		TransactionID: strings.TrimSpace(meta.TransactionID),
		PaidAt:        paidAt.UTC(),
		Paid:          meta.Paid,
	}, nil
}
