package domain

import (
	"time"
)

// CheckoutKind distinguishes food orders from boarding bookings in the saga log.
type CheckoutKind string

const (
	CheckoutKindOrder   CheckoutKind = "order"
	CheckoutKindBooking CheckoutKind = "booking"
)

// RunStatus is the lifecycle state of a persisted checkout run.
type RunStatus string

const (
	RunStatusRunning     RunStatus = "running"
	RunStatusCompleted   RunStatus = "completed"
	RunStatusFailed      RunStatus = "failed"
	RunStatusCompensated RunStatus = "compensated"
)

// StepName identifies a pipeline stage.
type StepName string

const (
	StepCreateOrder         StepName = "create_order"
	StepAdjustInventory     StepName = "adjust_inventory"
	StepReclaimCart         StepName = "reclaim_cart"
	StepCreateBooking       StepName = "create_booking"
	StepMarkUnavailable     StepName = "mark_unavailable"
	StepCapturePayment      StepName = "capture_payment"
	StepNotify              StepName = "notify"
	StepCompensateOrder     StepName = "compensate_order"
	StepCompensateBooking   StepName = "compensate_booking"
	StepRestoreInventory    StepName = "restore_inventory"
	StepRestoreAvailability StepName = "restore_availability"
)

// StepStatus is the state of one stage inside a run.
type StepStatus string

const (
	StepStatusPending StepStatus = "pending"
	StepStatusDone    StepStatus = "done"
	StepStatusFailed  StepStatus = "failed"
)

// RunStep is the persisted state of one stage.
type RunStep struct {
	Name      StepName
	Status    StepStatus
	Error     string
	Attempts  int
	UpdatedAt time.Time
}

// InventoryLine is one (inventory id, quantity) pair to decrement.
type InventoryLine struct {
	ItemID   string
	Quantity int
}

// CheckoutRun is the durable intent record of one checkout attempt keyed by the client
// request id. It lets a retry resume instead of duplicating writes.
type CheckoutRun struct {
	ID            string
	RequestID     string
	UserID        string
	Kind          CheckoutKind
	Status        RunStatus
	Steps         []RunStep
	OrderID       string
	OrderNumber   string
	BookingID     string
	BookingNumber string
	PlaceID       string
	Lines         []InventoryLine
	AdjustedItems []string
	CartEntryIDs  []string
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Step returns the named step, creating a pending one when absent.
func (r *CheckoutRun) Step(name StepName) *RunStep {
	for i := range r.Steps {
		if r.Steps[i].Name == name {
			return &r.Steps[i]
		}
	}
	r.Steps = append(r.Steps, RunStep{Name: name, Status: StepStatusPending})
	return &r.Steps[len(r.Steps)-1]
}

// StepDone reports whether the named step already completed.
func (r *CheckoutRun) StepDone(name StepName) bool {
	for _, step := range r.Steps {
		if step.Name == name {
			return step.Status == StepStatusDone
		}
	}
	return false
}

// MarkStep records the outcome of a stage.
func (r *CheckoutRun) MarkStep(name StepName, err error, now time.Time) {
	step := r.Step(name)
	step.Attempts++
	step.UpdatedAt = now
	if err != nil {
		step.Status = StepStatusFailed
		step.Error = err.Error()
		r.LastError = err.Error()
		return
	}
	step.Status = StepStatusDone
	step.Error = ""
}

// ItemAdjusted reports whether the inventory line for itemID was already decremented.
func (r *CheckoutRun) ItemAdjusted(itemID string) bool {
	for _, id := range r.AdjustedItems {
		if id == itemID {
			return true
		}
	}
	return false
}
