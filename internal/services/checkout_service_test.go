package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/campusnest/api/internal/domain"
)

const (
	testStudent   = "student-1"
	testShopOwner = "shop-1"
	testRequestID = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
)

type checkoutFixture struct {
	now           time.Time
	carts         *memCarts
	items         *memItems
	places        *memPlaces
	orders        *memOrders
	bookings      *memBookings
	runs          *memRuns
	directory     *stubDirectory
	notifications *memNotifications
	publisher     *recordingPublisher
	logs          *recordingLogger
	ids           *sequenceIDs
	guard         bool
	release       bool
}

func newCheckoutFixture() *checkoutFixture {
	now := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	return &checkoutFixture{
		now: now,
		carts: newMemCarts(
			cartEntry("item-a", 500, 2, now),
			cartEntry("item-b", 300, 1, now.Add(time.Second)),
		),
		items: newMemItems(
			domain.ShopItem{ID: "item-a", ShopOwnerID: testShopOwner, Name: "Rice & curry", Price: decimal.NewFromInt(500), Stock: 5},
			domain.ShopItem{ID: "item-b", ShopOwnerID: testShopOwner, Name: "Kottu", Price: decimal.NewFromInt(300), Stock: 10},
		),
		places: newMemPlaces(domain.BoardingPlace{
			ID:            "place-1",
			OwnerID:       "owner-1",
			Name:          "Lake View Annex",
			Address:       "12 Temple Rd",
			MonthlyRent:   decimal.NewFromInt(25000),
			AdvanceAmount: decimal.NewFromInt(5000),
			IsAvailable:   true,
		}),
		orders:   newMemOrders(),
		bookings: newMemBookings(),
		runs:     newMemRuns(),
		directory: &stubDirectory{lookupFunc: func(_ context.Context, uid string) ([]domain.Principal, error) {
			switch uid {
			case testShopOwner:
				return []domain.Principal{domain.ShopOwnerPrincipal{ID: testShopOwner, ShopName: "Canteen One", Phone: "0771234567"}}, nil
			case testStudent:
				return []domain.Principal{domain.StudentPrincipal{ID: testStudent, Name: "Nimal", Email: "nimal@example.com"}}, nil
			}
			return nil, nil
		}},
		notifications: &memNotifications{},
		publisher:     &recordingPublisher{},
		logs:          &recordingLogger{},
		ids:           &sequenceIDs{},
	}
}

func cartEntry(itemID string, price int64, qty int, created time.Time) domain.CartEntry {
	return domain.CartEntry{
		ID:          domain.CartEntryID(testStudent, itemID),
		UserID:      testStudent,
		ItemID:      itemID,
		ShopOwnerID: testShopOwner,
		Name:        itemID,
		UnitPrice:   decimal.NewFromInt(price),
		Quantity:    qty,
		CreatedAt:   created,
	}
}

func (f *checkoutFixture) service(t *testing.T) *checkoutService {
	t.Helper()
	clock := func() time.Time { return f.now }
	adjuster, err := NewInventoryAdjuster(InventoryAdjusterDeps{
		Items:              f.items,
		Places:             f.places,
		EnforceNonNegative: f.guard,
		Clock:              clock,
		Logger:             f.logs.log,
	})
	if err != nil {
		t.Fatalf("inventory adjuster: %v", err)
	}
	receipts, err := NewReceiptGenerator("LKR", nil, f.logs.log)
	if err != nil {
		t.Fatalf("receipt generator: %v", err)
	}
	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Carts:     f.carts,
		Places:    f.places,
		Orders:    f.orders,
		Bookings:  f.bookings,
		Runs:      f.runs,
		Enricher:  NewDetailEnricher(f.directory, f.logs.log),
		Assembler: NewAssembler(AssemblerConfig{DeliveryFee: domain.DefaultDeliveryFee}),
		Inventory: adjuster,
		Receipts:  receipts,
		Dispatcher: NewNotificationDispatcher(NotificationDispatcherDeps{
			Notifications: f.notifications,
			Publisher:     f.publisher,
			Clock:         clock,
			IDGenerator:   f.ids.id,
			Logger:        f.logs.log,
		}),
		ReleaseAvailabilityOnCancel: f.release,
		AfterCommit:                 syncAfterCommit,
		Clock:                       clock,
		IDGenerator:                 f.ids.id,
		Logger:                      f.logs.log,
	})
	if err != nil {
		t.Fatalf("checkout service: %v", err)
	}
	return svc.(*checkoutService)
}

func deliveryCommand() PlaceOrderCommand {
	return PlaceOrderCommand{
		UserID:        testStudent,
		Email:         "nimal@example.com",
		OrderType:     domain.OrderTypeDelivery,
		PaymentMethod: domain.PaymentMethodCash,
		Customer: domain.CustomerDetails{
			Name:    "Nimal",
			Phone:   "0711111111",
			Address: "Hostel B, Room 12",
		},
	}
}

func TestPlaceOrderDeliveryTotalsAndSideEffects(t *testing.T) {
	f := newCheckoutFixture()
	svc := f.service(t)

	res, err := svc.PlaceOrder(context.Background(), deliveryCommand())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	order := res.Order
	if got := order.TotalAmount.StringFixed(2); got != "1350.00" {
		t.Fatalf("expected total 1350.00, got %s", got)
	}
	if got := order.DeliveryFee.StringFixed(2); got != "50.00" {
		t.Fatalf("expected delivery fee 50.00, got %s", got)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("expected pending status, got %s", order.Status)
	}
	if !strings.HasPrefix(order.OrderNumber, "ORD-20250314093000-") {
		t.Fatalf("unexpected order number %q", order.OrderNumber)
	}
	if order.Shop == nil || order.Shop.ShopName != "Canteen One" {
		t.Fatalf("expected shop details, got %#v", order.Shop)
	}
	if order.User == nil || order.User.Name != "Nimal" {
		t.Fatalf("expected user details, got %#v", order.User)
	}
	if got := f.items.stock("item-a"); got != 3 {
		t.Fatalf("expected item-a stock 3, got %d", got)
	}
	if got := f.items.stock("item-b"); got != 9 {
		t.Fatalf("expected item-b stock 9, got %d", got)
	}
	if entries, _ := f.carts.ListByUser(context.Background(), testStudent); len(entries) != 0 {
		t.Fatalf("expected cart reclaimed, got %d entries", len(entries))
	}
	if len(res.Inventory.Succeeded) != 2 || len(res.Inventory.Failed) != 0 {
		t.Fatalf("unexpected inventory report %#v", res.Inventory)
	}
	if len(f.notifications.records) != 1 || f.notifications.records[0].RecipientID != testShopOwner {
		t.Fatalf("expected one owner notification, got %#v", f.notifications.records)
	}
	if types := f.publisher.types(); len(types) != 1 || types[0] != "order.created" {
		t.Fatalf("expected order.created event, got %v", types)
	}
	if res.Receipt.Total.StringFixed(2) != "1350.00" || res.Receipt.Number != order.OrderNumber {
		t.Fatalf("unexpected receipt %#v", res.Receipt)
	}
	if res.RunID != "" || len(f.runs.runs) != 0 {
		t.Fatalf("expected no persisted run without request id")
	}
}

func TestPlaceOrderTakeawayHasNoDeliveryFee(t *testing.T) {
	f := newCheckoutFixture()
	svc := f.service(t)

	cmd := deliveryCommand()
	cmd.OrderType = domain.OrderTypeTakeaway
	cmd.Customer.Address = ""
	res, err := svc.PlaceOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := res.Order.TotalAmount.StringFixed(2); got != "1300.00" {
		t.Fatalf("expected total 1300.00, got %s", got)
	}
	if !res.Order.DeliveryFee.IsZero() {
		t.Fatalf("expected zero fee, got %s", res.Order.DeliveryFee)
	}
}

func TestPlaceOrderValidationHappensBeforeWrites(t *testing.T) {
	f := newCheckoutFixture()
	svc := f.service(t)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderCommand{UserID: testStudent, OrderType: domain.OrderTypeDelivery})
	if !errors.Is(err, ErrCheckoutValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, want := range []string{"payment method is required", "customer name is required", "delivery address is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
	if f.orders.inserts != 0 || f.items.stock("item-a") != 5 {
		t.Fatalf("expected no writes after validation failure")
	}
}

func TestPlaceOrderRejectsInvalidRequestID(t *testing.T) {
	f := newCheckoutFixture()
	cmd := deliveryCommand()
	cmd.RequestID = "retry-1"
	if _, err := f.service(t).PlaceOrder(context.Background(), cmd); !errors.Is(err, ErrCheckoutValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPlaceOrderRejectsDuplicateCartEntries(t *testing.T) {
	f := newCheckoutFixture()
	dup := cartEntry("item-a", 500, 1, f.now.Add(time.Minute))
	dup.ID = "legacy-entry"
	f.carts.entries[dup.ID] = dup
	svc := f.service(t)

	_, err := svc.PlaceOrder(context.Background(), deliveryCommand())
	if !errors.Is(err, ErrCheckoutValidation) || !strings.Contains(err.Error(), "more than once") {
		t.Fatalf("expected duplicate entry validation error, got %v", err)
	}
	if f.orders.inserts != 0 {
		t.Fatalf("expected no order insert")
	}
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	f := newCheckoutFixture()
	f.carts = newMemCarts()
	if _, err := f.service(t).PlaceOrder(context.Background(), deliveryCommand()); !errors.Is(err, ErrCheckoutValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPlaceOrderCardKeepsOnlyLastFour(t *testing.T) {
	f := newCheckoutFixture()
	cmd := deliveryCommand()
	cmd.PaymentMethod = domain.PaymentMethodCard
	cmd.Card = &CardInput{Holder: "N Perera", Number: "4242 4242 4242 4242"}

	res, err := f.service(t).PlaceOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Order.Payment.CardLast4 != "4242" || res.Order.Payment.CardHolder != "N Perera" {
		t.Fatalf("unexpected payment details %#v", res.Order.Payment)
	}
}

func TestPlaceOrderCreateFailureIsStageError(t *testing.T) {
	f := newCheckoutFixture()
	f.orders.insertErr = errUnavailable
	svc := f.service(t)

	cmd := deliveryCommand()
	cmd.RequestID = testRequestID
	_, err := svc.PlaceOrder(context.Background(), cmd)
	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("expected stage error, got %v", err)
	}
	if stageErr.Stage != StageCreateOrder || stageErr.Message() != "order creation failed" {
		t.Fatalf("unexpected stage error %#v", stageErr)
	}
	if !errors.Is(err, ErrCheckoutStageFailed) {
		t.Fatalf("expected ErrCheckoutStageFailed")
	}
	if f.items.stock("item-a") != 5 {
		t.Fatalf("inventory must not change when the order write fails")
	}
	run := f.runs.runs[RunID(testStudent, testRequestID)]
	if run.Status != domain.RunStatusFailed {
		t.Fatalf("expected failed run, got %s", run.Status)
	}
}

// Without a request id every submission is a new checkout, so a retry after a partial
// failure writes a second order.
func TestPlaceOrderRetryWithoutRequestIDDuplicatesOrder(t *testing.T) {
	f := newCheckoutFixture()
	f.items.failFor["item-b"] = errUnavailable
	svc := f.service(t)

	if _, err := svc.PlaceOrder(context.Background(), deliveryCommand()); err == nil {
		t.Fatalf("expected inventory stage failure")
	}
	delete(f.items.failFor, "item-b")
	if _, err := svc.PlaceOrder(context.Background(), deliveryCommand()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if got := f.orders.count(); got != 2 {
		t.Fatalf("expected duplicate orders without request id, got %d", got)
	}
	if got := f.items.stock("item-a"); got != 1 {
		t.Fatalf("expected item-a decremented twice to 1, got %d", got)
	}
}

// With a request id the retry resumes the stored run: one order, each line decremented once.
func TestPlaceOrderRetryWithRequestIDResumesRun(t *testing.T) {
	f := newCheckoutFixture()
	f.items.failFor["item-b"] = errUnavailable
	svc := f.service(t)

	cmd := deliveryCommand()
	cmd.RequestID = testRequestID
	first, err := svc.PlaceOrder(context.Background(), cmd)
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Message() != "inventory update failed" {
		t.Fatalf("expected inventory stage error, got %v", err)
	}
	if len(first.Inventory.Succeeded) != 1 || first.Inventory.Failed[0] != "item-b" {
		t.Fatalf("unexpected report %#v", first.Inventory)
	}
	if stageErr.Details["orderNumber"] != first.Order.OrderNumber {
		t.Fatalf("expected order number in details, got %#v", stageErr.Details)
	}

	delete(f.items.failFor, "item-b")
	second, err := svc.PlaceOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if f.orders.count() != 1 || second.Order.ID != first.Order.ID {
		t.Fatalf("expected the same single order, got %d orders", f.orders.count())
	}
	if f.items.stock("item-a") != 3 || f.items.stock("item-b") != 9 {
		t.Fatalf("unexpected stock a=%d b=%d", f.items.stock("item-a"), f.items.stock("item-b"))
	}
	run := f.runs.runs[RunID(testStudent, testRequestID)]
	if run.Status != domain.RunStatusCompleted {
		t.Fatalf("expected completed run, got %s", run.Status)
	}
}

// A process that dies inside the inventory stage leaves the applied lines on the stored run,
// so the resumed run does not decrement them again.
func TestPlaceOrderResumeAfterInterruptedInventoryStage(t *testing.T) {
	f := newCheckoutFixture()
	svc := f.service(t)
	cmd := deliveryCommand()
	cmd.RequestID = testRequestID

	f.items.beforeAdjust = func(id string) {
		if id == "item-b" {
			panic("process killed")
		}
	}
	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected the interrupted stage to stop the call")
			}
		}()
		_, _ = svc.PlaceOrder(context.Background(), cmd)
	}()

	runID := RunID(testStudent, testRequestID)
	stored := f.runs.runs[runID]
	if stored.Status != domain.RunStatusRunning {
		t.Fatalf("expected running run after interruption, got %s", stored.Status)
	}
	if len(stored.AdjustedItems) != 1 || stored.AdjustedItems[0] != "item-a" {
		t.Fatalf("expected item-a recorded as adjusted, got %v", stored.AdjustedItems)
	}
	if got := f.items.stock("item-a"); got != 3 {
		t.Fatalf("expected item-a stock 3 after interruption, got %d", got)
	}

	f.items.beforeAdjust = nil
	f.now = f.now.Add(10 * time.Minute)
	res, err := svc.PlaceOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if f.items.stock("item-a") != 3 || f.items.stock("item-b") != 9 {
		t.Fatalf("expected each line decremented once, got a=%d b=%d", f.items.stock("item-a"), f.items.stock("item-b"))
	}
	if f.orders.count() != 1 || len(res.Inventory.Succeeded) != 2 {
		t.Fatalf("unexpected result orders=%d inventory=%#v", f.orders.count(), res.Inventory)
	}
	if f.runs.runs[runID].Status != domain.RunStatusCompleted {
		t.Fatalf("expected completed run, got %s", f.runs.runs[runID].Status)
	}
}

func TestPlaceOrderReplaysCompletedRun(t *testing.T) {
	f := newCheckoutFixture()
	svc := f.service(t)
	cmd := deliveryCommand()
	cmd.RequestID = testRequestID

	first, err := svc.PlaceOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.PlaceOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if !second.Replayed || second.Order.ID != first.Order.ID {
		t.Fatalf("expected replay of %s, got %#v", first.Order.ID, second)
	}
	if f.orders.inserts != 1 || len(f.publisher.types()) != 1 {
		t.Fatalf("replay must not write or publish again")
	}
}

func TestPlaceOrderRunInProgress(t *testing.T) {
	f := newCheckoutFixture()
	f.runs = newMemRuns(domain.CheckoutRun{
		ID:        RunID(testStudent, testRequestID),
		Kind:      domain.CheckoutKindOrder,
		Status:    domain.RunStatusRunning,
		UpdatedAt: f.now.Add(-10 * time.Second),
	})
	cmd := deliveryCommand()
	cmd.RequestID = testRequestID
	if _, err := f.service(t).PlaceOrder(context.Background(), cmd); !errors.Is(err, ErrCheckoutInProgress) {
		t.Fatalf("expected in progress, got %v", err)
	}
}

func TestPlaceOrderNegativeStockCurrentBehaviour(t *testing.T) {
	f := newCheckoutFixture()
	f.items.items["item-a"] = domain.ShopItem{ID: "item-a", ShopOwnerID: testShopOwner, Price: decimal.NewFromInt(500), Stock: 1}
	svc := f.service(t)

	if _, err := svc.PlaceOrder(context.Background(), deliveryCommand()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.items.stock("item-a"); got != -1 {
		t.Fatalf("expected stock -1 without the guard, got %d", got)
	}
	if !f.logs.has("inventory.negative_stock") {
		t.Fatalf("expected negative stock to be flagged")
	}
}

func TestPlaceOrderNegativeStockGuarded(t *testing.T) {
	f := newCheckoutFixture()
	f.guard = true
	f.items.items["item-a"] = domain.ShopItem{ID: "item-a", ShopOwnerID: testShopOwner, Price: decimal.NewFromInt(500), Stock: 1}
	svc := f.service(t)

	res, err := svc.PlaceOrder(context.Background(), deliveryCommand())
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageAdjustInventory {
		t.Fatalf("expected inventory stage error, got %v", err)
	}
	if got := f.items.stock("item-a"); got != 1 {
		t.Fatalf("expected stock untouched at 1, got %d", got)
	}
	if len(res.Inventory.Failed) != 1 || res.Inventory.Failed[0] != "item-a" {
		t.Fatalf("unexpected report %#v", res.Inventory)
	}
	if f.orders.count() != 1 {
		t.Fatalf("order write is not rolled back")
	}
	if entries, _ := f.carts.ListByUser(context.Background(), testStudent); len(entries) != 2 {
		t.Fatalf("cart must be kept when inventory fails")
	}
}

func TestPlaceOrderBestEffortSideEffects(t *testing.T) {
	f := newCheckoutFixture()
	f.directory.lookupFunc = func(context.Context, string) ([]domain.Principal, error) { return nil, errUnavailable }
	f.notifications.err = errBoom
	f.publisher.err = errBoom
	f.carts.deleteErr[domain.CartEntryID(testStudent, "item-b")] = errUnavailable
	svc := f.service(t)

	res, err := svc.PlaceOrder(context.Background(), deliveryCommand())
	if err != nil {
		t.Fatalf("side effect failures must not fail checkout: %v", err)
	}
	if res.Order.Shop != nil || res.Order.User != nil {
		t.Fatalf("expected omitted details")
	}
	for _, event := range []string{"checkout.enrich_failed", "notification.write_failed", "event.publish_failed", "checkout.cart_reclaim_failed"} {
		if !f.logs.has(event) {
			t.Fatalf("expected %s to be logged", event)
		}
	}
}

func reserveCommand(f *checkoutFixture) ReserveBoardingCommand {
	return ReserveBoardingCommand{
		UserID:          testStudent,
		BoardingPlaceID: "place-1",
		CustomerName:    "Nimal",
		Phone:           "0711111111",
		CheckInDate:     f.now.AddDate(0, 0, 7),
		PaymentType:     domain.PaymentTypeAdvance,
	}
}

func TestReserveBoardingMarksPlaceUnavailable(t *testing.T) {
	f := newCheckoutFixture()
	svc := f.service(t)

	res, err := svc.ReserveBoarding(context.Background(), reserveCommand(f))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.places.available("place-1") {
		t.Fatalf("expected isAvailable=false after booking")
	}
	b := res.Booking
	if b.Status != domain.BookingStatusPending || b.TotalAmount.StringFixed(2) != "5000.00" {
		t.Fatalf("unexpected booking %#v", b)
	}
	if b.OwnerID != "owner-1" || b.Place == nil || b.Place.Name != "Lake View Annex" {
		t.Fatalf("expected place snapshot, got %#v", b.Place)
	}
	if !strings.HasPrefix(b.BookingNumber, "BKG-") {
		t.Fatalf("unexpected booking number %q", b.BookingNumber)
	}
	if types := f.publisher.types(); len(types) != 1 || types[0] != "booking.created" {
		t.Fatalf("expected booking.created, got %v", types)
	}
	if len(f.notifications.records) != 1 || f.notifications.records[0].RecipientID != "owner-1" {
		t.Fatalf("expected owner notification")
	}
}

func TestReserveBoardingFullPaymentChargesRent(t *testing.T) {
	f := newCheckoutFixture()
	cmd := reserveCommand(f)
	cmd.PaymentType = domain.PaymentTypeFull
	res, err := f.service(t).ReserveBoarding(context.Background(), cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Booking.TotalAmount.StringFixed(2) != "25000.00" {
		t.Fatalf("expected monthly rent, got %s", res.Booking.TotalAmount)
	}
}

func TestReserveBoardingRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *checkoutFixture, cmd *ReserveBoardingCommand)
		want   error
	}{
		{
			name: "unavailable place",
			mutate: func(f *checkoutFixture, _ *ReserveBoardingCommand) {
				p := f.places.places["place-1"]
				p.IsAvailable = false
				f.places.places["place-1"] = p
			},
			want: ErrPlaceUnavailable,
		},
		{
			name:   "missing place",
			mutate: func(_ *checkoutFixture, cmd *ReserveBoardingCommand) { cmd.BoardingPlaceID = "nope" },
			want:   ErrCheckoutValidation,
		},
		{
			name:   "past check-in",
			mutate: func(f *checkoutFixture, cmd *ReserveBoardingCommand) { cmd.CheckInDate = f.now.AddDate(0, 0, -1) },
			want:   ErrCheckoutValidation,
		},
		{
			name:   "bad payment type",
			mutate: func(_ *checkoutFixture, cmd *ReserveBoardingCommand) { cmd.PaymentType = "monthly" },
			want:   ErrCheckoutValidation,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newCheckoutFixture()
			cmd := reserveCommand(f)
			tc.mutate(f, &cmd)
			_, err := f.service(t).ReserveBoarding(context.Background(), cmd)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if len(f.bookings.bookings) != 0 {
				t.Fatalf("expected no booking written")
			}
		})
	}
}

func TestReserveBoardingAvailabilityFailure(t *testing.T) {
	f := newCheckoutFixture()
	f.places.setErr = errUnavailable
	res, err := f.service(t).ReserveBoarding(context.Background(), reserveCommand(f))
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Message() != "availability update failed" {
		t.Fatalf("expected availability stage error, got %v", err)
	}
	if _, ok := f.bookings.bookings[res.Booking.ID]; !ok {
		t.Fatalf("booking write stays durable")
	}
}

func pendingBooking(f *checkoutFixture) domain.Booking {
	return domain.Booking{
		ID:              "booking-1",
		BookingNumber:   "BKG-20250314093000-ABCDEF",
		BoardingPlaceID: "place-1",
		OwnerID:         "owner-1",
		UserID:          testStudent,
		CustomerName:    "Nimal",
		Status:          domain.BookingStatusPending,
		TotalAmount:     decimal.NewFromInt(25000),
		PaymentType:     domain.PaymentTypeFull,
		CreatedAt:       f.now.Add(-time.Hour),
	}
}

func TestPayBookingCapturesSimulatedPayment(t *testing.T) {
	f := newCheckoutFixture()
	f.bookings = newMemBookings(pendingBooking(f))
	svc := f.service(t)

	res, err := svc.PayBooking(context.Background(), PayBookingCommand{
		UserID:    testStudent,
		BookingID: "booking-1",
		Payment: PaymentInput{
			Method:     domain.PaymentMethodCard,
			Amount:     "25,000.00",
			CardHolder: "N Perera",
			CardNumber: "4111-1111-1111-1111",
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := res.Booking.Payment
	if res.Booking.Status != domain.BookingStatusPaid || p == nil {
		t.Fatalf("expected paid booking, got %#v", res.Booking)
	}
	if !strings.HasPrefix(p.TransactionID, "txn_") || p.CardLast4 != "1111" {
		t.Fatalf("unexpected payment %#v", p)
	}
	if res.Receipt.Payment.Amount.StringFixed(2) != "25000.00" || res.Receipt.Payment.TransactionID != p.TransactionID {
		t.Fatalf("unexpected receipt payment %#v", res.Receipt.Payment)
	}
	if types := f.publisher.types(); len(types) != 1 || types[0] != "booking.paid" {
		t.Fatalf("expected booking.paid, got %v", types)
	}
}

func TestPayBookingRejections(t *testing.T) {
	f := newCheckoutFixture()
	f.bookings = newMemBookings(pendingBooking(f))
	svc := f.service(t)
	ctx := context.Background()

	_, err := svc.PayBooking(ctx, PayBookingCommand{UserID: testStudent, BookingID: "booking-1", Payment: PaymentInput{Method: domain.PaymentMethodCash, Amount: 100}})
	if !errors.Is(err, ErrBookingInvalidInput) {
		t.Fatalf("expected amount mismatch, got %v", err)
	}
	_, err = svc.PayBooking(ctx, PayBookingCommand{UserID: "someone-else", BookingID: "booking-1", Payment: PaymentInput{Method: domain.PaymentMethodCash}})
	if !errors.Is(err, ErrBookingNotFound) {
		t.Fatalf("expected not found for other user, got %v", err)
	}

	f.bookings.paidErr = errUnavailable
	_, err = svc.PayBooking(ctx, PayBookingCommand{UserID: testStudent, BookingID: "booking-1", Payment: PaymentInput{Method: domain.PaymentMethodCash}})
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Message() != "payment update failed" {
		t.Fatalf("expected payment stage error, got %v", err)
	}
}

func TestCancelBookingKeepsPlaceUnavailableByDefault(t *testing.T) {
	f := newCheckoutFixture()
	f.bookings = newMemBookings(pendingBooking(f))
	p := f.places.places["place-1"]
	p.IsAvailable = false
	f.places.places["place-1"] = p

	cancelled, err := f.service(t).CancelBooking(context.Background(), CancelBookingCommand{
		Actor:     Actor{UID: testStudent, Role: domain.RoleStudent},
		BookingID: "booking-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled.Status != domain.BookingStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	if f.places.available("place-1") {
		t.Fatalf("availability is not restored unless configured")
	}
}

func TestCancelBookingReleasesPlaceWhenConfigured(t *testing.T) {
	f := newCheckoutFixture()
	f.release = true
	f.bookings = newMemBookings(pendingBooking(f))
	p := f.places.places["place-1"]
	p.IsAvailable = false
	f.places.places["place-1"] = p

	if _, err := f.service(t).CancelBooking(context.Background(), CancelBookingCommand{
		Actor:     Actor{UID: "owner-1", Role: domain.RoleShopOwner},
		BookingID: "booking-1",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.places.available("place-1") {
		t.Fatalf("expected place released")
	}
}

func TestCancelBookingRejectsStrangersAndTerminalStates(t *testing.T) {
	f := newCheckoutFixture()
	paid := pendingBooking(f)
	paid.Status = domain.BookingStatusPaid
	f.bookings = newMemBookings(paid)
	svc := f.service(t)

	_, err := svc.CancelBooking(context.Background(), CancelBookingCommand{Actor: Actor{UID: "other", Role: domain.RoleStudent}, BookingID: "booking-1"})
	if !errors.Is(err, ErrBookingNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	_, err = svc.CancelBooking(context.Background(), CancelBookingCommand{Actor: Actor{UID: "admin", Role: domain.RoleAdmin}, BookingID: "booking-1"})
	if !errors.Is(err, ErrBookingInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestRunIDIsStablePerUserAndRequest(t *testing.T) {
	a := RunID("u1", testRequestID)
	if a != RunID("u1", testRequestID) {
		t.Fatalf("expected stable run id")
	}
	if a == RunID("u2", testRequestID) {
		t.Fatalf("expected run id scoped to user")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256, got %q", a)
	}
}
