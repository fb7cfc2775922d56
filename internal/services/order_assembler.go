package services

import (
	"errors"
	"fmt"
	"html"
	"io"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/campusnest/api/internal/domain"
)

const maxCustomerFieldLength = 500

// AssemblerConfig carries the pricing and numbering settings of the assembler.
type AssemblerConfig struct {
	DeliveryFee   decimal.Decimal
	OrderPrefix   string
	BookingPrefix string
	// Entropy feeds reference number suffixes. Defaults to ulid.DefaultEntropy.
	Entropy io.Reader
}

// Assembler validates checkout input and builds the immutable order and booking snapshots.
// It performs no I/O.
type Assembler struct {
	fee           decimal.Decimal
	orderPrefix   string
	bookingPrefix string
	entropy       io.Reader
	sanitizer     *bluemonday.Policy
}

// NewAssembler applies defaults to cfg.
func NewAssembler(cfg AssemblerConfig) *Assembler {
	fee := cfg.DeliveryFee
	if fee.IsNegative() {
		fee = decimal.Zero
	}
	entropy := cfg.Entropy
	if entropy == nil {
		entropy = ulid.DefaultEntropy()
	}
	orderPrefix := strings.TrimSpace(cfg.OrderPrefix)
	if orderPrefix == "" {
		orderPrefix = domain.OrderNumberPrefix
	}
	bookingPrefix := strings.TrimSpace(cfg.BookingPrefix)
	if bookingPrefix == "" {
		bookingPrefix = domain.BookingNumberPrefix
	}
	return &Assembler{
		fee:           fee,
		orderPrefix:   orderPrefix,
		bookingPrefix: bookingPrefix,
		entropy:       entropy,
		sanitizer:     bluemonday.StrictPolicy(),
	}
}

// ValidateRequestID accepts an empty id or a UUID.
func ValidateRequestID(requestID string) (string, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return "", nil
	}
	parsed, err := uuid.Parse(requestID)
	if err != nil {
		return "", fmt.Errorf("%w: request id must be a UUID", ErrCheckoutValidation)
	}
	return parsed.String(), nil
}

// ValidateOrder checks the command fields. It reports every problem at once.
func (a *Assembler) ValidateOrder(cmd PlaceOrderCommand) error {
	var problems validationErrors
	if strings.TrimSpace(cmd.UserID) == "" {
		problems.add("user id is required")
	}
	switch {
	case cmd.PaymentMethod == "":
		problems.add("payment method is required")
	case !cmd.PaymentMethod.Valid():
		problems.add("payment method %q is not supported", cmd.PaymentMethod)
	}
	switch {
	case cmd.OrderType == "":
		problems.add("order type is required")
	case !cmd.OrderType.Valid():
		problems.add("order type %q is not supported", cmd.OrderType)
	}
	if strings.TrimSpace(cmd.Customer.Name) == "" {
		problems.add("customer name is required")
	}
	if strings.TrimSpace(cmd.Customer.Phone) == "" {
		problems.add("customer phone is required")
	}
	if cmd.OrderType == domain.OrderTypeDelivery && strings.TrimSpace(cmd.Customer.Address) == "" {
		problems.add("delivery address is required")
	}
	if cmd.PaymentMethod == domain.PaymentMethodCard {
		if cmd.Card == nil || strings.TrimSpace(cmd.Card.Holder) == "" {
			problems.add("card holder is required")
		}
		if cmd.Card == nil || strings.TrimSpace(cmd.Card.Number) == "" {
			problems.add("card number is required")
		} else if _, err := cardLast4(cmd.Card.Number); err != nil {
			problems.add("%s", err.Error())
		}
	}
	return problems.err(ErrCheckoutValidation)
}

// ValidateCart rejects empty carts and duplicate item entries. Duplicates are never merged.
func (a *Assembler) ValidateCart(entries []domain.CartEntry) error {
	var problems validationErrors
	if len(entries) == 0 {
		problems.add("cart is empty")
	}
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if _, dup := seen[entry.ItemID]; dup {
			problems.add("item %s appears more than once", entry.ItemID)
			continue
		}
		seen[entry.ItemID] = struct{}{}
		if entry.Quantity < 1 {
			problems.add("item %s has quantity %d", entry.ItemID, entry.Quantity)
		}
		if entry.UnitPrice.IsNegative() {
			problems.add("item %s has a negative price", entry.ItemID)
		}
	}
	return problems.err(ErrCheckoutValidation)
}

// OrderDraft is the input of AssembleOrder.
type OrderDraft struct {
	OrderID     string
	OrderNumber string
	Command     PlaceOrderCommand
	Entries     []domain.CartEntry
	User        *domain.UserDetails
	Shop        *domain.ShopDetails
	Now         time.Time
}

// AssembleOrder builds the order snapshot. An empty OrderNumber is generated.
func (a *Assembler) AssembleOrder(draft OrderDraft) (domain.Order, error) {
	if strings.TrimSpace(draft.OrderID) == "" {
		return domain.Order{}, errors.New("assembler: order id is required")
	}
	cmd := draft.Command
	number := draft.OrderNumber
	if number == "" {
		var err error
		if number, err = domain.NewReferenceNumber(a.orderPrefix, draft.Now, a.entropy); err != nil {
			return domain.Order{}, err
		}
	}

	lines := make([]domain.OrderLine, 0, len(draft.Entries))
	owners := make([]string, 0, 1)
	ownerSeen := map[string]struct{}{}
	subtotal := decimal.Zero
	for _, entry := range draft.Entries {
		line := domain.OrderLine{
			ItemID:      entry.ItemID,
			ShopOwnerID: entry.ShopOwnerID,
			Name:        entry.Name,
			UnitPrice:   entry.UnitPrice.Round(2),
			Quantity:    entry.Quantity,
		}
		lines = append(lines, line)
		subtotal = subtotal.Add(line.LineTotal())
		if _, ok := ownerSeen[entry.ShopOwnerID]; !ok && entry.ShopOwnerID != "" {
			ownerSeen[entry.ShopOwnerID] = struct{}{}
			owners = append(owners, entry.ShopOwnerID)
		}
	}
	fee := domain.DeliveryFeeFor(cmd.OrderType, a.fee)
	total := subtotal.Add(fee).Round(2)

	customer := domain.CustomerDetails{
		Name:        a.clean(cmd.Customer.Name),
		Phone:       a.clean(cmd.Customer.Phone),
		Email:       a.clean(cmd.Customer.Email),
		Address:     a.clean(cmd.Customer.Address),
		TableNumber: a.clean(cmd.Customer.TableNumber),
		Notes:       a.clean(cmd.Customer.Notes),
	}
	if customer.Email == "" {
		customer.Email = strings.TrimSpace(cmd.Email)
	}
	if cmd.OrderType != domain.OrderTypeDelivery {
		customer.Address = ""
	}
	if cmd.OrderType != domain.OrderTypeDineIn {
		customer.TableNumber = ""
	}

	payment := domain.PaymentDetails{
		Method: cmd.PaymentMethod,
		Status: domain.PaymentStatusPending,
		Amount: total,
	}
	if cmd.PaymentMethod == domain.PaymentMethodCard && cmd.Card != nil {
		last4, err := cardLast4(cmd.Card.Number)
		if err != nil {
			return domain.Order{}, fmt.Errorf("%w: %v", ErrCheckoutValidation, err)
		}
		payment.CardHolder = a.clean(cmd.Card.Holder)
		payment.CardLast4 = last4
	}

	now := draft.Now.UTC()
	return domain.Order{
		ID:            draft.OrderID,
		OrderNumber:   number,
		UserID:        strings.TrimSpace(cmd.UserID),
		ShopOwnerIDs:  owners,
		Items:         lines,
		DeliveryFee:   fee,
		TotalAmount:   total,
		OrderType:     cmd.OrderType,
		PaymentMethod: cmd.PaymentMethod,
		Status:        domain.OrderStatusPending,
		OrderDate:     now,
		Customer:      customer,
		User:          draft.User,
		Shop:          draft.Shop,
		Payment:       payment,
		RequestID:     strings.TrimSpace(cmd.RequestID),
		UpdatedAt:     now,
	}, nil
}

// ValidateBooking checks the reservation command against the current date.
func (a *Assembler) ValidateBooking(cmd ReserveBoardingCommand, now time.Time) error {
	var problems validationErrors
	if strings.TrimSpace(cmd.UserID) == "" {
		problems.add("user id is required")
	}
	if strings.TrimSpace(cmd.BoardingPlaceID) == "" {
		problems.add("boarding place id is required")
	}
	if strings.TrimSpace(cmd.CustomerName) == "" {
		problems.add("customer name is required")
	}
	switch {
	case cmd.CheckInDate.IsZero():
		problems.add("check-in date is required")
	case startOfDay(cmd.CheckInDate).Before(startOfDay(now)):
		problems.add("check-in date must not be in the past")
	}
	switch {
	case cmd.PaymentType == "":
		problems.add("payment type is required")
	case !cmd.PaymentType.Valid():
		problems.add("payment type %q is not supported", cmd.PaymentType)
	}
	return problems.err(ErrCheckoutValidation)
}

// BookingDraft is the input of AssembleBooking.
type BookingDraft struct {
	BookingID     string
	BookingNumber string
	Command       ReserveBoardingCommand
	Place         domain.BoardingPlace
	User          *domain.UserDetails
	Now           time.Time
}

// AssembleBooking builds a pending booking. Full payment charges the monthly rent; advance
// charges the advance amount, or the rent when the place sets none.
func (a *Assembler) AssembleBooking(draft BookingDraft) (domain.Booking, error) {
	if strings.TrimSpace(draft.BookingID) == "" {
		return domain.Booking{}, errors.New("assembler: booking id is required")
	}
	cmd := draft.Command
	number := draft.BookingNumber
	if number == "" {
		var err error
		if number, err = domain.NewReferenceNumber(a.bookingPrefix, draft.Now, a.entropy); err != nil {
			return domain.Booking{}, err
		}
	}
	now := draft.Now.UTC()
	return domain.Booking{
		ID:              draft.BookingID,
		BookingNumber:   number,
		BoardingPlaceID: draft.Place.ID,
		OwnerID:         draft.Place.OwnerID,
		UserID:          strings.TrimSpace(cmd.UserID),
		CustomerName:    a.clean(cmd.CustomerName),
		CustomerPhone:   a.clean(cmd.Phone),
		CheckInDate:     startOfDay(cmd.CheckInDate),
		Status:          domain.BookingStatusPending,
		TotalAmount:     BookingTotal(draft.Place, cmd.PaymentType),
		PaymentType:     cmd.PaymentType,
		Place: &domain.PlaceDetails{
			Name:    draft.Place.Name,
			Address: draft.Place.Address,
			OwnerID: draft.Place.OwnerID,
		},
		User:      draft.User,
		RequestID: strings.TrimSpace(cmd.RequestID),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// BookingTotal prices a booking of place for the payment type.
func BookingTotal(place domain.BoardingPlace, paymentType domain.PaymentType) decimal.Decimal {
	if paymentType == domain.PaymentTypeAdvance && place.AdvanceAmount.IsPositive() {
		return place.AdvanceAmount.Round(2)
	}
	return place.MonthlyRent.Round(2)
}

// clean strips markup from customer text and caps it at maxCustomerFieldLength runes. The
// result is stored as plain text, so entities produced by the sanitizer are decoded again.
func (a *Assembler) clean(value string) string {
	value = strings.TrimSpace(html.UnescapeString(a.sanitizer.Sanitize(value)))
	if utf8.RuneCountInString(value) > maxCustomerFieldLength {
		value = strings.TrimSpace(string([]rune(value)[:maxCustomerFieldLength]))
	}
	return value
}

// cardLast4 keeps the last four digits of a card number. Spaces and dashes are ignored.
func cardLast4(number string) (string, error) {
	digits := make([]rune, 0, len(number))
	for _, r := range number {
		switch {
		case unicode.IsDigit(r):
			digits = append(digits, r)
		case r == ' ' || r == '-':
		default:
			return "", errors.New("card number must contain digits only")
		}
	}
	if len(digits) < 12 || len(digits) > 19 {
		return "", errors.New("card number must have 12 to 19 digits")
	}
	return string(digits[len(digits)-4:]), nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
