package handlers

import (
	domain "github.com/campusnest/api/internal/domain"
	"github.com/campusnest/api/internal/receipt"
	"github.com/campusnest/api/internal/services"
)

type orderLinePayload struct {
	ItemID      string `json:"itemId"`
	ShopOwnerID string `json:"shopOwnerId"`
	Name        string `json:"name"`
	UnitPrice   string `json:"unitPrice"`
	Quantity    int    `json:"quantity"`
	LineTotal   string `json:"lineTotal"`
}

type customerPayload struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Email       string `json:"email,omitempty"`
	Address     string `json:"address,omitempty"`
	TableNumber string `json:"tableNumber,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

type userPayload struct {
	UID   string `json:"uid"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type shopPayload struct {
	OwnerID  string `json:"ownerId"`
	ShopName string `json:"shopName,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	Address  string `json:"address,omitempty"`
}

type paymentPayload struct {
	Method        string `json:"method,omitempty"`
	Status        string `json:"status"`
	Amount        string `json:"amount"`
	CardHolder    string `json:"cardHolder,omitempty"`
	CardLast4     string `json:"cardLast4,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
	PaidAt        string `json:"paidAt,omitempty"`
}

type orderPayload struct {
	ID            string             `json:"id"`
	OrderNumber   string             `json:"orderNumber"`
	UserID        string             `json:"userId"`
	ShopOwnerIDs  []string           `json:"shopOwnerIds"`
	Items         []orderLinePayload `json:"items"`
	Subtotal      string             `json:"subtotal"`
	DeliveryFee   string             `json:"deliveryFee"`
	TotalAmount   string             `json:"totalAmount"`
	OrderType     string             `json:"orderType"`
	PaymentMethod string             `json:"paymentMethod"`
	Status        string             `json:"status"`
	OrderDate     string             `json:"orderDate"`
	Customer      customerPayload    `json:"customer"`
	User          *userPayload       `json:"user,omitempty"`
	Shop          *shopPayload       `json:"shop,omitempty"`
	Payment       paymentPayload     `json:"payment"`
	UpdatedAt     string             `json:"updatedAt,omitempty"`
}

type placePayload struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
	OwnerID string `json:"ownerId,omitempty"`
}

type bookingPayload struct {
	ID              string          `json:"id"`
	BookingNumber   string          `json:"bookingNumber"`
	BoardingPlaceID string          `json:"boardingPlaceId"`
	OwnerID         string          `json:"ownerId"`
	UserID          string          `json:"userId"`
	CustomerName    string          `json:"customerName"`
	CustomerPhone   string          `json:"customerPhone,omitempty"`
	CheckInDate     string          `json:"checkInDate"`
	Status          string          `json:"status"`
	TotalAmount     string          `json:"totalAmount"`
	PaymentType     string          `json:"paymentType"`
	Place           *placePayload   `json:"place,omitempty"`
	User            *userPayload    `json:"user,omitempty"`
	Payment         *paymentPayload `json:"payment,omitempty"`
	CreatedAt       string          `json:"createdAt"`
	UpdatedAt       string          `json:"updatedAt,omitempty"`
}

type receiptLinePayload struct {
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
	Total     string `json:"total"`
}

type receiptPayload struct {
	Kind        string               `json:"kind"`
	Number      string               `json:"number"`
	IssuedAt    string               `json:"issuedAt"`
	Lines       []receiptLinePayload `json:"lines"`
	Subtotal    string               `json:"subtotal"`
	DeliveryFee string               `json:"deliveryFee"`
	Total       string               `json:"total"`
	Payment     paymentPayload       `json:"payment"`
}

type cartEntryPayload struct {
	ID          string `json:"id"`
	ItemID      string `json:"itemId"`
	ShopOwnerID string `json:"shopOwnerId"`
	Name        string `json:"name"`
	UnitPrice   string `json:"unitPrice"`
	Quantity    int    `json:"quantity"`
	LineTotal   string `json:"lineTotal"`
	ImageRef    string `json:"imageRef,omitempty"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

func buildOrderPayload(order services.Order) orderPayload {
	out := orderPayload{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		ShopOwnerIDs:  append([]string(nil), order.ShopOwnerIDs...),
		Items:         make([]orderLinePayload, 0, len(order.Items)),
		Subtotal:      domain.FormatAmount(order.Subtotal()),
		DeliveryFee:   domain.FormatAmount(order.DeliveryFee),
		TotalAmount:   domain.FormatAmount(order.TotalAmount),
		OrderType:     string(order.OrderType),
		PaymentMethod: string(order.PaymentMethod),
		Status:        string(order.Status),
		OrderDate:     formatTime(order.OrderDate),
		Customer: customerPayload{
			Name:        order.Customer.Name,
			Phone:       order.Customer.Phone,
			Email:       order.Customer.Email,
			Address:     order.Customer.Address,
			TableNumber: order.Customer.TableNumber,
			Notes:       order.Customer.Notes,
		},
		User:      buildUserPayload(order.User),
		Payment:   buildPaymentPayload(order.Payment),
		UpdatedAt: formatTime(order.UpdatedAt),
	}
	if out.ShopOwnerIDs == nil {
		out.ShopOwnerIDs = []string{}
	}
	for _, line := range order.Items {
		out.Items = append(out.Items, orderLinePayload{
			ItemID:      line.ItemID,
			ShopOwnerID: line.ShopOwnerID,
			Name:        line.Name,
			UnitPrice:   domain.FormatAmount(line.UnitPrice),
			Quantity:    line.Quantity,
			LineTotal:   domain.FormatAmount(line.LineTotal()),
		})
	}
	if order.Shop != nil {
		out.Shop = &shopPayload{
			OwnerID:  order.Shop.OwnerID,
			ShopName: order.Shop.ShopName,
			Phone:    order.Shop.Phone,
			Email:    order.Shop.Email,
			Address:  order.Shop.Address,
		}
	}
	return out
}

func buildOrderPayloads(orders []services.Order) []orderPayload {
	out := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		out = append(out, buildOrderPayload(order))
	}
	return out
}

func buildBookingPayload(booking services.Booking) bookingPayload {
	out := bookingPayload{
		ID:              booking.ID,
		BookingNumber:   booking.BookingNumber,
		BoardingPlaceID: booking.BoardingPlaceID,
		OwnerID:         booking.OwnerID,
		UserID:          booking.UserID,
		CustomerName:    booking.CustomerName,
		CustomerPhone:   booking.CustomerPhone,
		CheckInDate:     formatDate(booking.CheckInDate),
		Status:          string(booking.Status),
		TotalAmount:     domain.FormatAmount(booking.TotalAmount),
		PaymentType:     string(booking.PaymentType),
		User:            buildUserPayload(booking.User),
		CreatedAt:       formatTime(booking.CreatedAt),
		UpdatedAt:       formatTime(booking.UpdatedAt),
	}
	if booking.Place != nil {
		out.Place = &placePayload{Name: booking.Place.Name, Address: booking.Place.Address, OwnerID: booking.Place.OwnerID}
	}
	if booking.Payment != nil {
		payment := buildPaymentPayload(*booking.Payment)
		out.Payment = &payment
	}
	return out
}

func buildBookingPayloads(bookings []services.Booking) []bookingPayload {
	out := make([]bookingPayload, 0, len(bookings))
	for _, booking := range bookings {
		out = append(out, buildBookingPayload(booking))
	}
	return out
}

func buildUserPayload(user *domain.UserDetails) *userPayload {
	if user == nil {
		return nil
	}
	return &userPayload{UID: user.UID, Name: user.Name, Email: user.Email, Phone: user.Phone}
}

func buildPaymentPayload(payment domain.PaymentDetails) paymentPayload {
	out := paymentPayload{
		Method:        string(payment.Method),
		Status:        string(payment.Status),
		Amount:        domain.FormatAmount(payment.Amount),
		CardHolder:    payment.CardHolder,
		CardLast4:     payment.CardLast4,
		TransactionID: payment.TransactionID,
	}
	if payment.PaidAt != nil {
		out.PaidAt = formatTime(*payment.PaidAt)
	}
	return out
}

func buildReceiptPayload(rc receipt.Receipt) receiptPayload {
	out := receiptPayload{
		Kind:        string(rc.Kind),
		Number:      rc.Number,
		IssuedAt:    formatTime(rc.IssuedAt),
		Lines:       make([]receiptLinePayload, 0, len(rc.Lines)),
		Subtotal:    domain.FormatAmount(rc.Subtotal),
		DeliveryFee: domain.FormatAmount(rc.DeliveryFee),
		Total:       domain.FormatAmount(rc.Total),
		Payment: paymentPayload{
			Method:        rc.Payment.Method,
			Amount:        domain.FormatAmount(rc.Payment.Amount),
			Status:        string(domain.PaymentStatusPending),
			TransactionID: rc.Payment.TransactionID,
		},
	}
	if rc.Payment.Paid {
		out.Payment.Status = string(domain.PaymentStatusPaid)
		out.Payment.PaidAt = formatTime(rc.Payment.PaidAt)
	}
	for _, line := range rc.Lines {
		out.Lines = append(out.Lines, receiptLinePayload{
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: domain.FormatAmount(line.UnitPrice),
			Total:     domain.FormatAmount(line.Total),
		})
	}
	return out
}

func buildCartEntryPayload(entry services.CartEntry) cartEntryPayload {
	return cartEntryPayload{
		ID:          entry.ID,
		ItemID:      entry.ItemID,
		ShopOwnerID: entry.ShopOwnerID,
		Name:        entry.Name,
		UnitPrice:   domain.FormatAmount(entry.UnitPrice),
		Quantity:    entry.Quantity,
		LineTotal:   domain.FormatAmount(entry.LineTotal()),
		ImageRef:    entry.ImageRef,
		CreatedAt:   formatTime(entry.CreatedAt),
		UpdatedAt:   formatTime(entry.UpdatedAt),
	}
}
