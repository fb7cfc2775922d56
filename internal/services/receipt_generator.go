package services

import (
	"context"
	"time"

	domain "github.com/campusnest/api/internal/domain"
	"github.com/campusnest/api/internal/receipt"
)

// ReceiptGenerator builds receipts from snapshots and optionally archives the rendered HTML.
type ReceiptGenerator struct {
	renderer *receipt.Renderer
	archiver ReceiptArchiver
	logger   func(context.Context, string, map[string]any)
}

// NewReceiptGenerator builds a generator for currencyCode. archiver may be nil.
func NewReceiptGenerator(currencyCode string, archiver ReceiptArchiver, logger func(context.Context, string, map[string]any)) (*ReceiptGenerator, error) {
	renderer, err := receipt.NewRenderer(currencyCode)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &ReceiptGenerator{renderer: renderer, archiver: archiver, logger: logger}, nil
}

// ForOrder builds the receipt of an order from its stored payment details.
func (g *ReceiptGenerator) ForOrder(order domain.Order) (receipt.Receipt, error) {
	return receipt.ForOrder(order, paymentMetadata(&order.Payment, order.OrderDate))
}

// ForBooking builds the receipt of a booking. Unpaid bookings fall back to the booking total.
func (g *ReceiptGenerator) ForBooking(booking domain.Booking) (receipt.Receipt, error) {
	return receipt.ForBooking(booking, paymentMetadata(booking.Payment, booking.CreatedAt))
}

// Render formats a receipt.
func (g *ReceiptGenerator) Render(rc receipt.Receipt, format receipt.Format) (receipt.Document, error) {
	return g.renderer.Render(rc, format)
}

// Archive stores the HTML rendition. It is best-effort and returns the object location, or
// an empty string when archiving is disabled or failed.
func (g *ReceiptGenerator) Archive(ctx context.Context, rc receipt.Receipt) string {
	if g == nil || g.archiver == nil {
		return ""
	}
	doc, err := g.renderer.Render(rc, receipt.FormatHTML)
	if err != nil {
		g.logger(ctx, "receipt.render_failed", map[string]any{"number": rc.Number, "error": err.Error()})
		return ""
	}
	location, err := g.archiver.ArchiveReceipt(ctx, rc.Number, rc.IssuedAt, doc.ContentType, doc.Body)
	if err != nil {
		g.logger(ctx, "receipt.archive_failed", map[string]any{"number": rc.Number, "error": err.Error()})
		return ""
	}
	g.logger(ctx, "receipt.archived", map[string]any{"number": rc.Number, "location": location})
	return location
}

func paymentMetadata(payment *domain.PaymentDetails, fallback time.Time) receipt.PaymentMetadata {
	meta := receipt.PaymentMetadata{Timestamp: fallback}
	if payment == nil {
		return meta
	}
	meta.Method = string(payment.Method)
	meta.Paid = payment.Status == domain.PaymentStatusPaid
	meta.TransactionID = payment.TransactionID
	if !payment.Amount.IsZero() {
		meta.Amount = payment.Amount
	}
	if payment.PaidAt != nil {
		meta.Timestamp = *payment.PaidAt
	}
	return meta
}
