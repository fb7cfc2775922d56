package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"

	domain "github.com/campusnest/api/internal/domain"
	"github.com/campusnest/api/internal/repositories"
)

var (
	errCheckoutCartsRequired     = errors.New("checkout service: cart repository is required")
	errCheckoutPlacesRequired    = errors.New("checkout service: boarding place repository is required")
	errCheckoutOrdersRequired    = errors.New("checkout service: order repository is required")
	errCheckoutBookingsRequired  = errors.New("checkout service: booking repository is required")
	errCheckoutRunsRequired      = errors.New("checkout service: checkout run repository is required")
	errCheckoutAssemblerRequired = errors.New("checkout service: assembler is required")
	errCheckoutInventoryRequired = errors.New("checkout service: inventory adjuster is required")
	errCheckoutReceiptsRequired  = errors.New("checkout service: receipt generator is required")
	errCheckoutClockRequired     = errors.New("checkout service: clock is required")
)

const (
	defaultRunStaleAfter      = 2 * time.Minute
	defaultAfterCommitTimeout = 10 * time.Second
)

// StageRecorder instruments pipeline stages and run outcomes.
type StageRecorder interface {
	StartStage(ctx context.Context, stage string, attrs ...attribute.KeyValue) (context.Context, func(error))
	RecordRun(ctx context.Context, kind, outcome string)
}

type noopStageRecorder struct{}

func (noopStageRecorder) StartStage(ctx context.Context, _ string, _ ...attribute.KeyValue) (context.Context, func(error)) {
	return ctx, func(error) {}
}

func (noopStageRecorder) RecordRun(context.Context, string, string) {}

// CheckoutServiceDeps wires the checkout pipeline.
type CheckoutServiceDeps struct {
	Carts      repositories.CartRepository
	Places     repositories.BoardingPlaceRepository
	Orders     repositories.OrderRepository
	Bookings   repositories.BookingRepository
	Runs       repositories.CheckoutRunRepository
	Enricher   *DetailEnricher
	Assembler  *Assembler
	Inventory  *InventoryAdjuster
	Reclaimer  *CartReclaimer
	Receipts   *ReceiptGenerator
	Dispatcher *NotificationDispatcher
	Pipeline   StageRecorder
	// ReleaseAvailabilityOnCancel sets the place available again when a booking is cancelled.
	ReleaseAvailabilityOnCancel bool
	// RunStaleAfter is how long a running run blocks retries of the same request id.
	RunStaleAfter      time.Duration
	AfterCommitTimeout time.Duration
	// AfterCommit schedules post-commit side effects. The default runs them on a detached
	// goroutine bounded by AfterCommitTimeout.
	AfterCommit func(ctx context.Context, fn func(context.Context))
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type checkoutService struct {
	carts           repositories.CartRepository
	places          repositories.BoardingPlaceRepository
	orders          repositories.OrderRepository
	bookings        repositories.BookingRepository
	runs            repositories.CheckoutRunRepository
	enricher        *DetailEnricher
	assembler       *Assembler
	inventory       *InventoryAdjuster
	reclaimer       *CartReclaimer
	receipts        *ReceiptGenerator
	dispatcher      *NotificationDispatcher
	pipeline        StageRecorder
	releaseOnCancel bool
	staleAfter      time.Duration
	afterCommit     func(context.Context, func(context.Context))
	now             func() time.Time
	newID           func() string
	logger          func(context.Context, string, map[string]any)
}

// NewCheckoutService constructs a CheckoutService enforcing dependency validation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	switch {
	case deps.Carts == nil:
		return nil, errCheckoutCartsRequired
	case deps.Places == nil:
		return nil, errCheckoutPlacesRequired
	case deps.Orders == nil:
		return nil, errCheckoutOrdersRequired
	case deps.Bookings == nil:
		return nil, errCheckoutBookingsRequired
	case deps.Runs == nil:
		return nil, errCheckoutRunsRequired
	case deps.Assembler == nil:
		return nil, errCheckoutAssemblerRequired
	case deps.Inventory == nil:
		return nil, errCheckoutInventoryRequired
	case deps.Receipts == nil:
		return nil, errCheckoutReceiptsRequired
	case deps.Clock == nil:
		return nil, errCheckoutClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	pipeline := deps.Pipeline
	if pipeline == nil {
		pipeline = noopStageRecorder{}
	}
	reclaimer := deps.Reclaimer
	if reclaimer == nil {
		reclaimer = NewCartReclaimer(deps.Carts, logger)
	}
	staleAfter := deps.RunStaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultRunStaleAfter
	}
	afterCommit := deps.AfterCommit
	if afterCommit == nil {
		timeout := deps.AfterCommitTimeout
		if timeout <= 0 {
			timeout = defaultAfterCommitTimeout
		}
		afterCommit = DetachedAfterCommit(timeout)
	}

	return &checkoutService{
		carts:           deps.Carts,
		places:          deps.Places,
		orders:          deps.Orders,
		bookings:        deps.Bookings,
		runs:            deps.Runs,
		enricher:        deps.Enricher,
		assembler:       deps.Assembler,
		inventory:       deps.Inventory,
		reclaimer:       reclaimer,
		receipts:        deps.Receipts,
		dispatcher:      deps.Dispatcher,
		pipeline:        pipeline,
		releaseOnCancel: deps.ReleaseAvailabilityOnCancel,
		staleAfter:      staleAfter,
		afterCommit:     afterCommit,
		now:             func() time.Time { return deps.Clock().UTC() },
		newID:           idGen,
		logger:          logger,
	}, nil
}

// DetachedAfterCommit runs fn on its own goroutine with a context that outlives the request
// but is bounded by timeout.
func DetachedAfterCommit(timeout time.Duration) func(context.Context, func(context.Context)) {
	return func(ctx context.Context, fn func(context.Context)) {
		detached := context.WithoutCancel(ctx)
		go func() {
			runCtx, cancel := context.WithTimeout(detached, timeout)
			defer cancel()
			fn(runCtx)
		}()
	}
}

// RunID derives the checkout run key from the caller and the client request id.
func RunID(userID, requestID string) string {
	sum := sha256.Sum256([]byte(userID + ":" + requestID))
	return hex.EncodeToString(sum[:])
}

// saga is the in-memory handle of a run. Runs without a request id are never persisted.
type saga struct {
	run       domain.CheckoutRun
	persisted bool
	existing  bool
}

func (sg *saga) runID() string {
	if sg.persisted {
		return sg.run.ID
	}
	return ""
}

// PlaceOrder checks out the caller's cart.
func (s *checkoutService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (OrderCheckoutResult, error) {
	cmd.UserID = strings.TrimSpace(cmd.UserID)
	requestID, err := ValidateRequestID(cmd.RequestID)
	if err != nil {
		return OrderCheckoutResult{}, err
	}
	cmd.RequestID = requestID
	if err := s.assembler.ValidateOrder(cmd); err != nil {
		s.pipeline.RecordRun(ctx, string(domain.CheckoutKindOrder), "validation")
		return OrderCheckoutResult{}, err
	}

	sg, err := s.openRun(ctx, domain.CheckoutKindOrder, cmd.UserID, requestID)
	if err != nil {
		return OrderCheckoutResult{}, err
	}
	if sg.existing {
		replay, err := s.admit(ctx, sg.run, domain.CheckoutKindOrder)
		if err != nil {
			return OrderCheckoutResult{}, err
		}
		if replay {
			return s.replayOrder(ctx, sg.run)
		}
		s.recoverOrder(ctx, sg)
	}

	var draft *domain.Order
	if !sg.run.StepDone(domain.StepCreateOrder) {
		entries, err := s.carts.ListByUser(ctx, cmd.UserID)
		if err != nil {
			return OrderCheckoutResult{}, fmt.Errorf("%w: load cart: %v", ErrCheckoutUnavailable, err)
		}
		if err := s.assembler.ValidateCart(entries); err != nil {
			s.pipeline.RecordRun(ctx, string(domain.CheckoutKindOrder), "validation")
			return OrderCheckoutResult{}, err
		}

		orderID := sg.run.OrderID
		if orderID == "" {
			orderID = s.newID()
		}
		assembled, err := s.assembler.AssembleOrder(OrderDraft{
			OrderID:     orderID,
			OrderNumber: sg.run.OrderNumber,
			Command:     cmd,
			Entries:     entries,
			User:        s.enricher.Student(ctx, cmd.UserID),
			Shop:        s.enricher.Shop(ctx, entries[0].ShopOwnerID),
			Now:         s.now(),
		})
		if err != nil {
			return OrderCheckoutResult{}, err
		}
		draft = &assembled

		sg.run.OrderID = assembled.ID
		sg.run.OrderNumber = assembled.OrderNumber
		sg.run.Lines = make([]domain.InventoryLine, 0, len(entries))
		sg.run.CartEntryIDs = make([]string, 0, len(entries))
		for _, entry := range entries {
			sg.run.Lines = append(sg.run.Lines, domain.InventoryLine{ItemID: entry.ItemID, Quantity: entry.Quantity})
			sg.run.CartEntryIDs = append(sg.run.CartEntryIDs, entry.ID)
		}

		if !sg.existing && sg.persisted {
			stored, created, err := s.reserve(ctx, sg)
			if err != nil {
				return OrderCheckoutResult{}, err
			}
			if !created {
				return lostReservation(s, ctx, stored, domain.CheckoutKindOrder, func() (OrderCheckoutResult, error) {
					return s.replayOrder(ctx, stored)
				})
			}
		}
	}

	return s.executeOrder(ctx, sg, draft)
}

// executeOrder runs the remaining order steps. draft is nil when the order already exists.
func (s *checkoutService) executeOrder(ctx context.Context, sg *saga, draft *domain.Order) (OrderCheckoutResult, error) {
	result := OrderCheckoutResult{RunID: sg.runID()}
	runAttr := attribute.String("run_id", sg.run.ID)

	var order domain.Order
	if !sg.run.StepDone(domain.StepCreateOrder) {
		if draft == nil {
			return result, s.failStage(ctx, sg, domain.StepCreateOrder, StageCreateOrder, errors.New("order draft missing"), nil)
		}
		stageCtx, end := s.pipeline.StartStage(ctx, StageCreateOrder, runAttr)
		created, err := s.orders.Insert(stageCtx, *draft)
		if err != nil && sg.persisted && repositories.IsConflict(err) {
			created, err = s.orders.FindByID(stageCtx, draft.ID)
		}
		end(err)
		if err != nil {
			return result, s.failStage(ctx, sg, domain.StepCreateOrder, StageCreateOrder, err, nil)
		}
		order = created
		s.markDone(ctx, sg, domain.StepCreateOrder)
	} else {
		existing, err := s.orders.FindByID(ctx, sg.run.OrderID)
		if err != nil {
			return result, s.failStage(ctx, sg, domain.StepCreateOrder, StageCreateOrder, err, nil)
		}
		order = existing
	}
	result.Order = order

	if !sg.run.StepDone(domain.StepAdjustInventory) {
		stageCtx, end := s.pipeline.StartStage(ctx, StageAdjustInventory, runAttr, attribute.Int("lines", len(sg.run.Lines)))
		report, err := s.inventory.Decrement(stageCtx, sg.run.Lines, sg.run.ItemAdjusted, func(itemID string) {
			sg.run.AdjustedItems = append(sg.run.AdjustedItems, itemID)
			s.saveRun(ctx, sg)
		})
		end(err)
		result.Inventory = report
		if err != nil {
			return result, s.failStage(ctx, sg, domain.StepAdjustInventory, StageAdjustInventory, err, map[string]any{
				"orderId":     order.ID,
				"orderNumber": order.OrderNumber,
				"succeeded":   report.Succeeded,
				"failed":      report.Failed,
			})
		}
		s.markDone(ctx, sg, domain.StepAdjustInventory)
	} else {
		result.Inventory = InventoryReport{Succeeded: append([]string(nil), sg.run.AdjustedItems...)}
	}

	if !sg.run.StepDone(domain.StepReclaimCart) {
		failed := s.reclaimer.Reclaim(ctx, sg.run.CartEntryIDs)
		sg.run.MarkStep(domain.StepReclaimCart, nil, s.now())
		if len(failed) > 0 {
			sg.run.Step(domain.StepReclaimCart).Error = fmt.Sprintf("%d cart entries not deleted", len(failed))
		}
	}

	rc, err := s.receipts.ForOrder(order)
	if err != nil {
		s.logger(ctx, "checkout.receipt_failed", map[string]any{"orderId": order.ID, "error": err.Error()})
	}
	result.Receipt = rc

	notify := !sg.run.StepDone(domain.StepNotify)
	if notify {
		sg.run.MarkStep(domain.StepNotify, nil, s.now())
	}
	s.complete(ctx, sg)
	if notify {
		s.afterCommit(ctx, func(ctx context.Context) {
			s.announceOrderCreated(ctx, order)
			if err == nil {
				s.receipts.Archive(ctx, rc)
			}
		})
	}
	s.logger(ctx, "checkout.order_placed", map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"runId":       sg.runID(),
		"total":       domain.FormatAmount(order.TotalAmount),
	})
	return result, nil
}

func (s *checkoutService) replayOrder(ctx context.Context, run domain.CheckoutRun) (OrderCheckoutResult, error) {
	order, err := s.orders.FindByID(ctx, run.OrderID)
	if err != nil {
		return OrderCheckoutResult{}, fmt.Errorf("%w: load order %s: %v", ErrCheckoutUnavailable, run.OrderID, err)
	}
	rc, err := s.receipts.ForOrder(order)
	if err != nil {
		s.logger(ctx, "checkout.receipt_failed", map[string]any{"orderId": order.ID, "error": err.Error()})
	}
	s.pipeline.RecordRun(ctx, string(domain.CheckoutKindOrder), "replayed")
	return OrderCheckoutResult{
		Order:     order,
		Receipt:   rc,
		Inventory: InventoryReport{Succeeded: append([]string(nil), run.AdjustedItems...)},
		Replayed:  true,
		RunID:     run.ID,
	}, nil
}

// recoverOrder marks the create step done when an earlier attempt inserted the order but
// could not record it.
func (s *checkoutService) recoverOrder(ctx context.Context, sg *saga) {
	if sg.run.StepDone(domain.StepCreateOrder) || sg.run.OrderID == "" {
		return
	}
	if _, err := s.orders.FindByID(ctx, sg.run.OrderID); err == nil {
		sg.run.MarkStep(domain.StepCreateOrder, nil, s.now())
	}
}

func (s *checkoutService) announceOrderCreated(ctx context.Context, order domain.Order) {
	notices := make([]Notice, 0, len(order.ShopOwnerIDs))
	for _, owner := range order.ShopOwnerIDs {
		notices = append(notices, Notice{
			RecipientID: owner,
			Kind:        domain.NotificationOrderCreated,
			RefType:     string(domain.CheckoutKindOrder),
			RefID:       order.ID,
			RefNumber:   order.OrderNumber,
			Message:     fmt.Sprintf("New %s order %s", order.OrderType, order.OrderNumber),
		})
	}
	s.dispatcher.Notify(ctx, notices...)
	s.dispatcher.Publish(ctx, domain.Event{
		Type:      string(domain.NotificationOrderCreated),
		RefType:   string(domain.CheckoutKindOrder),
		RefID:     order.ID,
		RefNumber: order.OrderNumber,
		ActorID:   order.UserID,
		OwnerIDs:  order.ShopOwnerIDs,
		Status:    string(order.Status),
		Metadata: map[string]any{
			"orderType":   string(order.OrderType),
			"totalAmount": domain.FormatAmount(order.TotalAmount),
		},
	})
}

// ReserveBoarding reserves a boarding place and marks it unavailable.
func (s *checkoutService) ReserveBoarding(ctx context.Context, cmd ReserveBoardingCommand) (BookingCheckoutResult, error) {
	cmd.UserID = strings.TrimSpace(cmd.UserID)
	cmd.BoardingPlaceID = strings.TrimSpace(cmd.BoardingPlaceID)
	requestID, err := ValidateRequestID(cmd.RequestID)
	if err != nil {
		return BookingCheckoutResult{}, err
	}
	cmd.RequestID = requestID
	if err := s.assembler.ValidateBooking(cmd, s.now()); err != nil {
		s.pipeline.RecordRun(ctx, string(domain.CheckoutKindBooking), "validation")
		return BookingCheckoutResult{}, err
	}

	sg, err := s.openRun(ctx, domain.CheckoutKindBooking, cmd.UserID, requestID)
	if err != nil {
		return BookingCheckoutResult{}, err
	}
	if sg.existing {
		replay, err := s.admit(ctx, sg.run, domain.CheckoutKindBooking)
		if err != nil {
			return BookingCheckoutResult{}, err
		}
		if replay {
			return s.replayBooking(ctx, sg.run)
		}
		s.recoverBooking(ctx, sg)
	}

	var draft *domain.Booking
	if !sg.run.StepDone(domain.StepCreateBooking) {
		place, err := s.places.Get(ctx, cmd.BoardingPlaceID)
		if err != nil {
			if repositories.IsNotFound(err) {
				return BookingCheckoutResult{}, fmt.Errorf("%w: place not found", ErrCheckoutValidation)
			}
			return BookingCheckoutResult{}, fmt.Errorf("%w: load place: %v", ErrCheckoutUnavailable, err)
		}
		if !place.IsAvailable {
			s.pipeline.RecordRun(ctx, string(domain.CheckoutKindBooking), "unavailable")
			return BookingCheckoutResult{}, fmt.Errorf("%w: %s", ErrPlaceUnavailable, place.ID)
		}

		bookingID := sg.run.BookingID
		if bookingID == "" {
			bookingID = s.newID()
		}
		assembled, err := s.assembler.AssembleBooking(BookingDraft{
			BookingID:     bookingID,
			BookingNumber: sg.run.BookingNumber,
			Command:       cmd,
			Place:         place,
			User:          s.enricher.Student(ctx, cmd.UserID),
			Now:           s.now(),
		})
		if err != nil {
			return BookingCheckoutResult{}, err
		}
		draft = &assembled
		sg.run.BookingID = assembled.ID
		sg.run.BookingNumber = assembled.BookingNumber
		sg.run.PlaceID = place.ID

		if !sg.existing && sg.persisted {
			stored, created, err := s.reserve(ctx, sg)
			if err != nil {
				return BookingCheckoutResult{}, err
			}
			if !created {
				return lostReservation(s, ctx, stored, domain.CheckoutKindBooking, func() (BookingCheckoutResult, error) {
					return s.replayBooking(ctx, stored)
				})
			}
		}
	}

	return s.executeBooking(ctx, sg, draft)
}

func (s *checkoutService) executeBooking(ctx context.Context, sg *saga, draft *domain.Booking) (BookingCheckoutResult, error) {
	result := BookingCheckoutResult{RunID: sg.runID()}
	runAttr := attribute.String("run_id", sg.run.ID)

	var booking domain.Booking
	if !sg.run.StepDone(domain.StepCreateBooking) {
		if draft == nil {
			return result, s.failStage(ctx, sg, domain.StepCreateBooking, StageCreateBooking, errors.New("booking draft missing"), nil)
		}
		stageCtx, end := s.pipeline.StartStage(ctx, StageCreateBooking, runAttr)
		created, err := s.bookings.Insert(stageCtx, *draft)
		if err != nil && sg.persisted && repositories.IsConflict(err) {
			created, err = s.bookings.FindByID(stageCtx, draft.ID)
		}
		end(err)
		if err != nil {
			return result, s.failStage(ctx, sg, domain.StepCreateBooking, StageCreateBooking, err, nil)
		}
		booking = created
		s.markDone(ctx, sg, domain.StepCreateBooking)
	} else {
		existing, err := s.bookings.FindByID(ctx, sg.run.BookingID)
		if err != nil {
			return result, s.failStage(ctx, sg, domain.StepCreateBooking, StageCreateBooking, err, nil)
		}
		booking = existing
	}
	result.Booking = booking

	if !sg.run.StepDone(domain.StepMarkUnavailable) {
		stageCtx, end := s.pipeline.StartStage(ctx, StageMarkUnavailable, runAttr)
		err := s.inventory.MarkUnavailable(stageCtx, booking.BoardingPlaceID)
		end(err)
		if err != nil {
			return result, s.failStage(ctx, sg, domain.StepMarkUnavailable, StageMarkUnavailable, err, map[string]any{
				"bookingId":       booking.ID,
				"boardingPlaceId": booking.BoardingPlaceID,
			})
		}
		s.markDone(ctx, sg, domain.StepMarkUnavailable)
	}

	rc, err := s.receipts.ForBooking(booking)
	if err != nil {
		s.logger(ctx, "checkout.receipt_failed", map[string]any{"bookingId": booking.ID, "error": err.Error()})
	}
	result.Receipt = rc

	notify := !sg.run.StepDone(domain.StepNotify)
	if notify {
		sg.run.MarkStep(domain.StepNotify, nil, s.now())
	}
	s.complete(ctx, sg)
	if notify {
		s.afterCommit(ctx, func(ctx context.Context) {
			s.announceBooking(ctx, booking, domain.NotificationBookingCreated,
				fmt.Sprintf("New booking %s for %s", booking.BookingNumber, placeName(booking)))
		})
	}
	s.logger(ctx, "checkout.booking_reserved", map[string]any{
		"bookingId":     booking.ID,
		"bookingNumber": booking.BookingNumber,
		"runId":         sg.runID(),
	})
	return result, nil
}

func (s *checkoutService) replayBooking(ctx context.Context, run domain.CheckoutRun) (BookingCheckoutResult, error) {
	booking, err := s.bookings.FindByID(ctx, run.BookingID)
	if err != nil {
		return BookingCheckoutResult{}, fmt.Errorf("%w: load booking %s: %v", ErrCheckoutUnavailable, run.BookingID, err)
	}
	rc, err := s.receipts.ForBooking(booking)
	if err != nil {
		s.logger(ctx, "checkout.receipt_failed", map[string]any{"bookingId": booking.ID, "error": err.Error()})
	}
	s.pipeline.RecordRun(ctx, string(domain.CheckoutKindBooking), "replayed")
	return BookingCheckoutResult{Booking: booking, Receipt: rc, Replayed: true, RunID: run.ID}, nil
}

func (s *checkoutService) recoverBooking(ctx context.Context, sg *saga) {
	if sg.run.StepDone(domain.StepCreateBooking) || sg.run.BookingID == "" {
		return
	}
	if _, err := s.bookings.FindByID(ctx, sg.run.BookingID); err == nil {
		sg.run.MarkStep(domain.StepCreateBooking, nil, s.now())
	}
}

// PayBooking records the simulated payment of a pending booking.
func (s *checkoutService) PayBooking(ctx context.Context, cmd PayBookingCommand) (BookingCheckoutResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	bookingID := strings.TrimSpace(cmd.BookingID)
	if userID == "" || bookingID == "" {
		return BookingCheckoutResult{}, fmt.Errorf("%w: user id and booking id are required", ErrBookingInvalidInput)
	}

	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return BookingCheckoutResult{}, ErrBookingNotFound
		}
		return BookingCheckoutResult{}, fmt.Errorf("%w: load booking: %v", ErrCheckoutUnavailable, err)
	}
	if booking.UserID != userID {
		return BookingCheckoutResult{}, ErrBookingNotFound
	}
	if !booking.Status.CanTransitionTo(domain.BookingStatusPaid) {
		return BookingCheckoutResult{}, fmt.Errorf("%w: %s -> %s", ErrBookingInvalidTransition, booking.Status, domain.BookingStatusPaid)
	}

	payment, err := s.capturePayment(booking, cmd.Payment)
	if err != nil {
		return BookingCheckoutResult{}, err
	}

	stageCtx, end := s.pipeline.StartStage(ctx, StageCapturePayment, attribute.String("booking_id", booking.ID))
	paid, err := s.bookings.MarkPaid(stageCtx, booking.ID, payment, s.now())
	end(err)
	if err != nil {
		if repositories.IsConflict(err) {
			return BookingCheckoutResult{}, fmt.Errorf("%w: booking is no longer pending", ErrBookingInvalidTransition)
		}
		s.pipeline.RecordRun(ctx, "payment", "failed")
		return BookingCheckoutResult{}, &StageError{Stage: StageCapturePayment, Err: err, Details: map[string]any{"bookingId": booking.ID}}
	}
	s.pipeline.RecordRun(ctx, "payment", "completed")

	rc, err := s.receipts.ForBooking(paid)
	if err != nil {
		s.logger(ctx, "checkout.receipt_failed", map[string]any{"bookingId": paid.ID, "error": err.Error()})
	}
	s.afterCommit(ctx, func(ctx context.Context) {
		s.announceBooking(ctx, paid, domain.NotificationBookingPaid,
			fmt.Sprintf("Booking %s was paid", paid.BookingNumber))
		if err == nil {
			s.receipts.Archive(ctx, rc)
		}
	})
	return BookingCheckoutResult{Booking: paid, Receipt: rc}, nil
}

// capturePayment validates the submitted payment. Nothing is sent to a processor.
func (s *checkoutService) capturePayment(booking domain.Booking, input PaymentInput) (domain.PaymentDetails, error) {
	var problems validationErrors
	method := input.Method
	if method == "" {
		method = domain.PaymentMethodCard
	}
	if !method.Valid() {
		problems.add("payment method %q is not supported", input.Method)
	}
	var last4 string
	if method == domain.PaymentMethodCard {
		if strings.TrimSpace(input.CardHolder) == "" {
			problems.add("card holder is required")
		}
		digits, err := cardLast4(input.CardNumber)
		if err != nil {
			problems.add("%s", err.Error())
		}
		last4 = digits
	}
	if input.Amount != nil {
		amount, err := domain.ParseAmount(input.Amount)
		switch {
		case err != nil:
			problems.add("amount is not a number")
		case !amount.Round(2).Equal(booking.TotalAmount.Round(2)):
			problems.add("amount %s does not match booking total %s", domain.FormatAmount(amount), domain.FormatAmount(booking.TotalAmount))
		}
	}
	if err := problems.err(ErrBookingInvalidInput); err != nil {
		return domain.PaymentDetails{}, err
	}
	paidAt := s.now()
	return domain.PaymentDetails{
		Method:        method,
		Status:        domain.PaymentStatusPaid,
		Amount:        booking.TotalAmount.Round(2),
		CardHolder:    strings.TrimSpace(input.CardHolder),
		CardLast4:     last4,
		TransactionID: "txn_" + s.newID(),
		PaidAt:        &paidAt,
	}, nil
}

// CancelBooking cancels a pending booking. The place stays unavailable unless release on
// cancel is enabled.
func (s *checkoutService) CancelBooking(ctx context.Context, cmd CancelBookingCommand) (Booking, error) {
	bookingID := strings.TrimSpace(cmd.BookingID)
	if bookingID == "" || strings.TrimSpace(cmd.Actor.UID) == "" {
		return Booking{}, fmt.Errorf("%w: booking id and actor are required", ErrBookingInvalidInput)
	}
	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return Booking{}, ErrBookingNotFound
		}
		return Booking{}, fmt.Errorf("%w: load booking: %v", ErrCheckoutUnavailable, err)
	}
	if !canManageBooking(cmd.Actor, booking) {
		return Booking{}, ErrBookingNotFound
	}
	if !booking.Status.CanTransitionTo(domain.BookingStatusCancelled) {
		return Booking{}, fmt.Errorf("%w: %s -> %s", ErrBookingInvalidTransition, booking.Status, domain.BookingStatusCancelled)
	}

	cancelled, err := s.bookings.UpdateStatus(ctx, booking.ID, booking.Status, domain.BookingStatusCancelled, s.now())
	if err != nil {
		if repositories.IsConflict(err) {
			return Booking{}, fmt.Errorf("%w: booking changed concurrently", ErrBookingInvalidTransition)
		}
		return Booking{}, &StageError{Stage: StageCancelBooking, Err: err, Details: map[string]any{"bookingId": booking.ID}}
	}

	if s.releaseOnCancel {
		if err := s.inventory.Release(ctx, cancelled.BoardingPlaceID); err != nil {
			s.logger(ctx, "checkout.release_failed", map[string]any{
				"bookingId":       cancelled.ID,
				"boardingPlaceId": cancelled.BoardingPlaceID,
				"error":           err.Error(),
			})
		}
	}

	s.afterCommit(ctx, func(ctx context.Context) {
		s.announceBooking(ctx, cancelled, domain.NotificationBookingCancelled,
			fmt.Sprintf("Booking %s was cancelled", cancelled.BookingNumber))
	})
	return cancelled, nil
}

func (s *checkoutService) announceBooking(ctx context.Context, booking domain.Booking, kind domain.NotificationKind, message string) {
	s.dispatcher.Notify(ctx, Notice{
		RecipientID: booking.OwnerID,
		Kind:        kind,
		RefType:     string(domain.CheckoutKindBooking),
		RefID:       booking.ID,
		RefNumber:   booking.BookingNumber,
		Message:     message,
	})
	s.dispatcher.Publish(ctx, domain.Event{
		Type:      string(kind),
		RefType:   string(domain.CheckoutKindBooking),
		RefID:     booking.ID,
		RefNumber: booking.BookingNumber,
		ActorID:   booking.UserID,
		OwnerIDs:  []string{booking.OwnerID},
		Status:    string(booking.Status),
		Metadata: map[string]any{
			"boardingPlaceId": booking.BoardingPlaceID,
			"totalAmount":     domain.FormatAmount(booking.TotalAmount),
			"paymentType":     string(booking.PaymentType),
		},
	})
}

// openRun loads the run for requestID or prepares a new one. Without a request id the run
// only lives in memory.
func (s *checkoutService) openRun(ctx context.Context, kind domain.CheckoutKind, userID, requestID string) (*saga, error) {
	now := s.now()
	if requestID == "" {
		return &saga{run: domain.CheckoutRun{
			ID:        s.newID(),
			UserID:    userID,
			Kind:      kind,
			Status:    domain.RunStatusRunning,
			CreatedAt: now,
			UpdatedAt: now,
		}}, nil
	}

	runID := RunID(userID, requestID)
	stored, err := s.runs.Get(ctx, runID)
	switch {
	case err == nil:
		return &saga{run: stored, persisted: true, existing: true}, nil
	case !repositories.IsNotFound(err):
		return nil, fmt.Errorf("%w: load run: %v", ErrCheckoutUnavailable, err)
	}
	return &saga{
		run: domain.CheckoutRun{
			ID:        runID,
			RequestID: requestID,
			UserID:    userID,
			Kind:      kind,
			Status:    domain.RunStatusRunning,
			CreatedAt: now,
			UpdatedAt: now,
		},
		persisted: true,
	}, nil
}

// admit decides what a retry of an existing run does: replay a completed run, refuse a
// run that is still in flight, or resume a failed or stale one.
func (s *checkoutService) admit(ctx context.Context, run domain.CheckoutRun, kind domain.CheckoutKind) (bool, error) {
	if run.Kind != kind {
		return false, fmt.Errorf("%w: request id already used for a %s checkout", ErrCheckoutValidation, run.Kind)
	}
	switch run.Status {
	case domain.RunStatusCompleted:
		return true, nil
	case domain.RunStatusCompensated:
		return false, ErrCheckoutRolledBack
	case domain.RunStatusRunning:
		if run.UpdatedAt.After(s.now().Add(-s.staleAfter)) {
			s.pipeline.RecordRun(ctx, string(kind), "in_progress")
			return false, ErrCheckoutInProgress
		}
	}
	s.logger(ctx, "checkout.run_resumed", map[string]any{"runId": run.ID, "status": string(run.Status)})
	return false, nil
}

func (s *checkoutService) reserve(ctx context.Context, sg *saga) (domain.CheckoutRun, bool, error) {
	sg.run.UpdatedAt = s.now()
	stored, created, err := s.runs.Reserve(ctx, sg.run)
	if err != nil {
		return domain.CheckoutRun{}, false, newStageError(StageReserveRun, err)
	}
	if created {
		sg.run = stored
	}
	return stored, created, nil
}

// lostReservation handles a concurrent attempt that reserved the same run first.
func lostReservation[R any](s *checkoutService, ctx context.Context, stored domain.CheckoutRun, kind domain.CheckoutKind, replay func() (R, error)) (R, error) {
	var zero R
	if stored.Status == domain.RunStatusCompleted && stored.Kind == kind {
		return replay()
	}
	s.pipeline.RecordRun(ctx, string(kind), "in_progress")
	return zero, ErrCheckoutInProgress
}

func (s *checkoutService) markDone(ctx context.Context, sg *saga, step domain.StepName) {
	sg.run.MarkStep(step, nil, s.now())
	s.saveRun(ctx, sg)
}

func (s *checkoutService) failStage(ctx context.Context, sg *saga, step domain.StepName, stage string, cause error, details map[string]any) error {
	sg.run.MarkStep(step, cause, s.now())
	sg.run.Status = domain.RunStatusFailed
	s.saveRun(ctx, sg)
	s.pipeline.RecordRun(ctx, string(sg.run.Kind), "failed")
	s.logger(ctx, "checkout.stage_failed", map[string]any{
		"runId": sg.runID(),
		"stage": stage,
		"error": cause.Error(),
	})
	return &StageError{Stage: stage, Err: cause, Details: details}
}

func (s *checkoutService) complete(ctx context.Context, sg *saga) {
	sg.run.Status = domain.RunStatusCompleted
	sg.run.LastError = ""
	s.saveRun(ctx, sg)
	s.pipeline.RecordRun(ctx, string(sg.run.Kind), "completed")
}

// saveRun persists progress. A failed save is logged; the step itself already committed and
// the reconciler picks the run up from its last recorded state.
func (s *checkoutService) saveRun(ctx context.Context, sg *saga) {
	if !sg.persisted {
		return
	}
	sg.run.UpdatedAt = s.now()
	if err := s.runs.Save(ctx, sg.run); err != nil {
		s.logger(ctx, "checkout.run_save_failed", map[string]any{"runId": sg.run.ID, "error": err.Error()})
	}
}

func canManageBooking(actor Actor, booking domain.Booking) bool {
	switch actor.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleShopOwner:
		return booking.OwnerID == actor.UID
	case domain.RoleStudent:
		return booking.UserID == actor.UID
	}
	return false
}

func placeName(booking domain.Booking) string {
	if booking.Place != nil && booking.Place.Name != "" {
		return booking.Place.Name
	}
	return booking.BoardingPlaceID
}
