package receipt

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/campusnest/api/internal/domain"
)

func sampleOrder() domain.Order {
	return domain.Order{
		ID:           "o1",
		OrderNumber:  "ORD-20250401090000-ABC123",
		UserID:       "u1",
		ShopOwnerIDs: []string{"shop-1"},
		Items: []domain.OrderLine{
			{ItemID: "rice", Name: "Rice & curry", UnitPrice: decimal.NewFromInt(500), Quantity: 2},
			{ItemID: "tea", Name: "Plain tea", UnitPrice: decimal.NewFromInt(300), Quantity: 1},
		},
		DeliveryFee:   decimal.NewFromInt(50),
		TotalAmount:   decimal.NewFromInt(1350),
		OrderType:     domain.OrderTypeDelivery,
		PaymentMethod: domain.PaymentMethodCash,
		Status:        domain.OrderStatusPending,
		OrderDate:     time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC),
		Customer:      domain.CustomerDetails{Name: "Nimal", Phone: "0771234567", Address: "Hall 3", Notes: "<b>no chilli</b>"},
		Shop:          &domain.ShopDetails{OwnerID: "shop-1", ShopName: "Main Canteen"},
	}
}

func TestForOrderNormalisesAmount(t *testing.T) {
	cases := map[string]any{
		"string":        "1350",
		"float":         1350.0,
		"int":           1350,
		"prefixed":      "LKR 1,350",
		"fallback(nil)": nil,
	}
	for name, amount := range cases {
		t.Run(name, func(t *testing.T) {
			rc, err := ForOrder(sampleOrder(), PaymentMetadata{Method: "cash", Amount: amount})
			require.NoError(t, err)
			assert.Equal(t, "1350.00", domain.FormatAmount(rc.Payment.Amount))
		})
	}
}

func TestForOrderRejectsBadAmount(t *testing.T) {
	_, err := ForOrder(sampleOrder(), PaymentMetadata{Amount: "twelve"})
	require.ErrorIs(t, err, ErrInvalidPayment)

	_, err = ForOrder(sampleOrder(), PaymentMetadata{Amount: -1})
	require.ErrorIs(t, err, ErrInvalidPayment)
}

func TestForOrderIsDeterministic(t *testing.T) {
	meta := PaymentMetadata{Method: "card", Amount: "1350.00", TransactionID: "txn_1", Timestamp: time.Date(2025, 4, 1, 9, 5, 0, 0, time.UTC)}
	first, err := ForOrder(sampleOrder(), meta)
	require.NoError(t, err)
	second, err := ForOrder(sampleOrder(), meta)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, "1000.00", domain.FormatAmount(first.Lines[0].Total))
	assert.Equal(t, "1300.00", domain.FormatAmount(first.Subtotal))
	assert.Equal(t, "Main Canteen", first.Merchant)
}

func TestForBookingUsesPlaceDetails(t *testing.T) {
	booking := domain.Booking{
		BookingNumber: "BKG-1",
		CustomerName:  "Kamala",
		CheckInDate:   time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		Status:        domain.BookingStatusPaid,
		TotalAmount:   decimal.NewFromInt(5000),
		PaymentType:   domain.PaymentTypeAdvance,
		Place:         &domain.PlaceDetails{Name: "Lake View Annex", Address: "Peradeniya", OwnerID: "owner-1"},
		CreatedAt:     time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC),
	}
	rc, err := ForBooking(booking, PaymentMetadata{Method: "card", Amount: 5000})
	require.NoError(t, err)
	assert.Equal(t, KindBooking, rc.Kind)
	assert.Equal(t, "Lake View Annex", rc.Merchant)
	require.Len(t, rc.Lines, 1)
	assert.Equal(t, "5000.00", domain.FormatAmount(rc.Lines[0].Total))
}

func TestRendererFormats(t *testing.T) {
	renderer, err := NewRenderer("LKR")
	require.NoError(t, err)
	rc, err := ForOrder(sampleOrder(), PaymentMetadata{Method: "cash"})
	require.NoError(t, err)

	doc, err := renderer.Render(rc, FormatHTML)
	require.NoError(t, err)
	assert.Equal(t, "text/html; charset=utf-8", doc.ContentType)
	htmlBody := string(doc.Body)
	assert.Contains(t, htmlBody, "<table>")
	assert.Contains(t, htmlBody, "1,350.00")
	assert.Contains(t, htmlBody, "no chilli")
	assert.NotContains(t, htmlBody, "<b>no chilli</b>")

	doc, err = renderer.Render(rc, FormatText)
	require.NoError(t, err)
	assert.Contains(t, string(doc.Body), "TOTAL")

	doc, err = renderer.Render(rc, FormatJSON)
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(doc.Body, &payload))
	assert.Equal(t, "1350.00", payload["total"])
	assert.Equal(t, "50.00", payload["deliveryFee"])
	assert.Equal(t, "LKR", payload["currency"])
}

func TestParseFormat(t *testing.T) {
	for input, want := range map[string]Format{"": FormatHTML, "HTML": FormatHTML, "txt": FormatText, "json": FormatJSON, "md": FormatMarkdown} {
		got, err := ParseFormat(input)
		require.NoError(t, err)
		assert.Equal(t, want, got, input)
	}
	_, err := ParseFormat("pdf")
	assert.Error(t, err)
}

func TestNewRendererRejectsUnknownCurrency(t *testing.T) {
	_, err := NewRenderer("ZZZ1")
	assert.Error(t, err)
}

func TestRendererShowsPendingPaymentAsDue(t *testing.T) {
	renderer, err := NewRenderer("LKR")
	require.NoError(t, err)

	pending, err := ForOrder(sampleOrder(), PaymentMetadata{Method: "cash"})
	require.NoError(t, err)
	md := renderer.Markdown(pending)
	assert.Contains(t, md, "Payment pending")
	assert.NotContains(t, md, "Paid ")

	doc, err := renderer.Render(pending, FormatText)
	require.NoError(t, err)
	assert.Contains(t, string(doc.Body), "Payment due: cash")

	doc, err = renderer.Render(pending, FormatJSON)
	require.NoError(t, err)
	var payload struct {
		Payment map[string]any `json:"payment"`
	}
	require.NoError(t, json.Unmarshal(doc.Body, &payload))
	assert.Equal(t, false, payload.Payment["paid"])
	assert.NotContains(t, payload.Payment, "paidAt")

	paid, err := ForOrder(sampleOrder(), PaymentMetadata{Method: "card", TransactionID: "txn_1", Paid: true, Timestamp: time.Date(2025, 4, 1, 9, 5, 0, 0, time.UTC)})
	require.NoError(t, err)
	md = renderer.Markdown(paid)
	assert.Contains(t, md, "Paid ")
	assert.Contains(t, md, "txn_1")
	assert.NotContains(t, md, "Payment pending")
}
