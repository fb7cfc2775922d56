package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/campusnest/api/internal/domain"
	"github.com/campusnest/api/internal/repositories"
)

const (
	defaultReconcileLimit = 50
	maxReconcileLimit     = 500

	ReconcileActionResumed     = "resumed"
	ReconcileActionCompensated = "compensated"
	ReconcileActionAbandoned   = "abandoned"
)

// runExecutor is implemented by the checkout service.
type runExecutor interface {
	resumeRun(ctx context.Context, run domain.CheckoutRun) (string, domain.CheckoutRun, error)
	compensateRun(ctx context.Context, run domain.CheckoutRun) (string, domain.CheckoutRun, error)
}

// ReconcilerDeps wires the reconciliation pass.
type ReconcilerDeps struct {
	Runs     repositories.CheckoutRunRepository
	Checkout CheckoutService
	// StaleAfter applies when a pass does not set its own threshold.
	StaleAfter time.Duration
	// Compensate selects roll back instead of resume when a pass does not say.
	Compensate bool
	Clock      func() time.Time
	Logger     func(context.Context, string, map[string]any)
}

type reconciler struct {
	runs       repositories.CheckoutRunRepository
	executor   runExecutor
	staleAfter time.Duration
	compensate bool
	now        func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// NewReconciler constructs a Reconciler over the checkout service built by NewCheckoutService.
func NewReconciler(deps ReconcilerDeps) (Reconciler, error) {
	if deps.Runs == nil {
		return nil, errors.New("reconciler: checkout run repository is required")
	}
	executor, ok := deps.Checkout.(runExecutor)
	if !ok || executor == nil {
		return nil, errors.New("reconciler: checkout service cannot resume runs")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	staleAfter := deps.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultRunStaleAfter
	}
	return &reconciler{
		runs:       deps.Runs,
		executor:   executor,
		staleAfter: staleAfter,
		compensate: deps.Compensate,
		now:        func() time.Time { return clock().UTC() },
		logger:     logger,
	}, nil
}

// Reconcile scans running and failed runs older than the stale threshold and resumes or
// compensates each one. A failure on one run does not stop the pass.
func (r *reconciler) Reconcile(ctx context.Context, opts ReconcileOptions) (ReconcileReport, error) {
	staleAfter := opts.StaleAfter
	if staleAfter <= 0 {
		staleAfter = r.staleAfter
	}
	limit := opts.Limit
	switch {
	case limit <= 0:
		limit = defaultReconcileLimit
	case limit > maxReconcileLimit:
		limit = maxReconcileLimit
	}
	compensate := opts.Compensate || r.compensate

	runs, err := r.runs.ListStale(ctx, []domain.RunStatus{domain.RunStatusRunning, domain.RunStatusFailed}, r.now().Add(-staleAfter), limit)
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("reconciler: list stale runs: %w", err)
	}

	report := ReconcileReport{Scanned: len(runs), Outcomes: make([]ReconcileOutcome, 0, len(runs))}
	for _, run := range runs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		var (
			action string
			after  domain.CheckoutRun
		)
		if compensate {
			action, after, err = r.executor.compensateRun(ctx, run)
		} else {
			action, after, err = r.executor.resumeRun(ctx, run)
		}
		outcome := ReconcileOutcome{RunID: run.ID, Kind: run.Kind, Action: action, Status: after.Status}
		if err != nil {
			report.Failed++
			outcome.Error = err.Error()
			r.logger(ctx, "reconcile.run_failed", map[string]any{"runId": run.ID, "action": action, "error": err.Error()})
		} else if action == ReconcileActionResumed {
			report.Resumed++
		} else {
			report.Compensated++
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}
	r.logger(ctx, "reconcile.completed", map[string]any{
		"scanned":     report.Scanned,
		"resumed":     report.Resumed,
		"compensated": report.Compensated,
		"failed":      report.Failed,
	})
	return report, nil
}

// resumeRun re-executes the remaining steps. A run whose document was never written has
// nothing to resume and is closed as abandoned.
func (s *checkoutService) resumeRun(ctx context.Context, run domain.CheckoutRun) (string, domain.CheckoutRun, error) {
	sg := &saga{run: run, persisted: true, existing: true}
	switch run.Kind {
	case domain.CheckoutKindOrder:
		s.recoverOrder(ctx, sg)
		if !sg.run.StepDone(domain.StepCreateOrder) {
			return s.abandon(ctx, sg)
		}
		_, err := s.executeOrder(ctx, sg, nil)
		return ReconcileActionResumed, sg.run, err
	case domain.CheckoutKindBooking:
		s.recoverBooking(ctx, sg)
		if !sg.run.StepDone(domain.StepCreateBooking) {
			return s.abandon(ctx, sg)
		}
		_, err := s.executeBooking(ctx, sg, nil)
		return ReconcileActionResumed, sg.run, err
	}
	return "", run, fmt.Errorf("reconciler: unknown run kind %q", run.Kind)
}

// compensateRun undoes the durable steps of a run: the order or booking is cancelled and
// stock or availability is restored.
func (s *checkoutService) compensateRun(ctx context.Context, run domain.CheckoutRun) (string, domain.CheckoutRun, error) {
	sg := &saga{run: run, persisted: true, existing: true}
	switch run.Kind {
	case domain.CheckoutKindOrder:
		s.recoverOrder(ctx, sg)
		if !sg.run.StepDone(domain.StepCreateOrder) {
			return s.abandon(ctx, sg)
		}
		err := s.compensateOrder(ctx, sg)
		return ReconcileActionCompensated, sg.run, err
	case domain.CheckoutKindBooking:
		s.recoverBooking(ctx, sg)
		if !sg.run.StepDone(domain.StepCreateBooking) {
			return s.abandon(ctx, sg)
		}
		err := s.compensateBooking(ctx, sg)
		return ReconcileActionCompensated, sg.run, err
	}
	return "", run, fmt.Errorf("reconciler: unknown run kind %q", run.Kind)
}

func (s *checkoutService) compensateOrder(ctx context.Context, sg *saga) error {
	if !sg.run.StepDone(domain.StepCompensateOrder) {
		order, err := s.orders.FindByID(ctx, sg.run.OrderID)
		if err == nil && order.Status != domain.OrderStatusCancelled {
			if !order.Status.CanTransitionTo(domain.OrderStatusCancelled) {
				err = fmt.Errorf("%w: order %s is %s", ErrOrderInvalidTransition, order.ID, order.Status)
			} else {
				_, err = s.orders.UpdateStatus(ctx, order.ID, order.Status, domain.OrderStatusCancelled, s.now())
			}
		}
		sg.run.MarkStep(domain.StepCompensateOrder, err, s.now())
		if err != nil {
			s.saveRun(ctx, sg)
			return err
		}
		s.saveRun(ctx, sg)
		s.afterCommit(ctx, func(ctx context.Context) {
			s.dispatcher.Notify(ctx, Notice{
				RecipientID: order.UserID,
				Kind:        domain.NotificationOrderStatusChanged,
				RefType:     string(domain.CheckoutKindOrder),
				RefID:       order.ID,
				RefNumber:   order.OrderNumber,
				Message:     fmt.Sprintf("Order %s was cancelled", order.OrderNumber),
			})
			s.dispatcher.Publish(ctx, domain.Event{
				Type:      string(domain.NotificationOrderStatusChanged),
				RefType:   string(domain.CheckoutKindOrder),
				RefID:     order.ID,
				RefNumber: order.OrderNumber,
				OwnerIDs:  order.ShopOwnerIDs,
				Status:    string(domain.OrderStatusCancelled),
				Metadata:  map[string]any{"reason": "reconciliation", "runId": sg.run.ID},
			})
		})
	}

	if len(sg.run.AdjustedItems) > 0 && !sg.run.StepDone(domain.StepRestoreInventory) {
		err := s.inventory.Restock(ctx, sg.run.Lines, sg.run.AdjustedItems)
		sg.run.MarkStep(domain.StepRestoreInventory, err, s.now())
		if err != nil {
			s.saveRun(ctx, sg)
			return err
		}
	}
	return s.markCompensated(ctx, sg)
}

func (s *checkoutService) compensateBooking(ctx context.Context, sg *saga) error {
	if !sg.run.StepDone(domain.StepCompensateBooking) {
		booking, err := s.bookings.FindByID(ctx, sg.run.BookingID)
		if err == nil && booking.Status != domain.BookingStatusCancelled {
			if !booking.Status.CanTransitionTo(domain.BookingStatusCancelled) {
				err = fmt.Errorf("%w: booking %s is %s", ErrBookingInvalidTransition, booking.ID, booking.Status)
			} else {
				_, err = s.bookings.UpdateStatus(ctx, booking.ID, booking.Status, domain.BookingStatusCancelled, s.now())
			}
		}
		sg.run.MarkStep(domain.StepCompensateBooking, err, s.now())
		s.saveRun(ctx, sg)
		if err != nil {
			return err
		}
	}

	if sg.run.StepDone(domain.StepMarkUnavailable) && !sg.run.StepDone(domain.StepRestoreAvailability) {
		err := s.inventory.Release(ctx, sg.run.PlaceID)
		sg.run.MarkStep(domain.StepRestoreAvailability, err, s.now())
		if err != nil {
			s.saveRun(ctx, sg)
			return err
		}
	}
	return s.markCompensated(ctx, sg)
}

func (s *checkoutService) abandon(ctx context.Context, sg *saga) (string, domain.CheckoutRun, error) {
	sg.run.Status = domain.RunStatusCompensated
	if sg.run.LastError == "" {
		sg.run.LastError = "no document was written"
	}
	s.saveRun(ctx, sg)
	s.pipeline.RecordRun(ctx, string(sg.run.Kind), "abandoned")
	return ReconcileActionAbandoned, sg.run, nil
}

func (s *checkoutService) markCompensated(ctx context.Context, sg *saga) error {
	sg.run.Status = domain.RunStatusCompensated
	s.saveRun(ctx, sg)
	s.pipeline.RecordRun(ctx, string(sg.run.Kind), "compensated")
	return nil
}
