package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/campusnest/api/internal/domain"
	pfirestore "github.com/campusnest/api/internal/platform/firestore"
	"github.com/campusnest/api/internal/repositories"
)

const checkoutRunCollection = "checkoutRuns"

// CheckoutRunRepository persists saga state for checkout runs.
type CheckoutRunRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[checkoutRunDocument]
}

var _ repositories.CheckoutRunRepository = (*CheckoutRunRepository)(nil)

func NewCheckoutRunRepository(provider *pfirestore.Provider) (*CheckoutRunRepository, error) {
	if provider == nil {
		return nil, errors.New("checkout run repository requires firestore provider")
	}
	return &CheckoutRunRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[checkoutRunDocument](provider, checkoutRunCollection, nil),
	}, nil
}

// Reserve creates the run inside a transaction so concurrent retries of the same request
// agree on a single stored run.
func (r *CheckoutRunRepository) Reserve(ctx context.Context, run domain.CheckoutRun) (domain.CheckoutRun, bool, error) {
	run.ID = strings.TrimSpace(run.ID)
	if run.ID == "" {
		return domain.CheckoutRun{}, false, errors.New("checkout run repository: run id is required")
	}
	var (
		stored  domain.CheckoutRun
		created bool
	)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, run.ID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			doc, err := r.base.Decode(snap)
			if err != nil {
				return err
			}
			stored, created = doc.Data.toDomain(doc.ID), false
			return nil
		case !pfirestore.IsNotFoundStatus(err):
			return err
		}
		stored, created = run, true
		return tx.Create(ref, newCheckoutRunDocument(run))
	})
	if err != nil {
		return domain.CheckoutRun{}, false, pfirestore.WrapError("checkoutRuns.reserve", err)
	}
	return stored, created, nil
}

func (r *CheckoutRunRepository) Get(ctx context.Context, runID string) (domain.CheckoutRun, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(runID))
	if err != nil {
		return domain.CheckoutRun{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// Save overwrites the run with its current in-memory state.
func (r *CheckoutRunRepository) Save(ctx context.Context, run domain.CheckoutRun) error {
	_, err := r.base.Set(ctx, strings.TrimSpace(run.ID), newCheckoutRunDocument(run))
	return err
}

func (r *CheckoutRunRepository) ListStale(ctx context.Context, statuses []domain.RunStatus, before time.Time, limit int) ([]domain.CheckoutRun, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	values := make([]string, 0, len(statuses))
	for _, s := range statuses {
		values = append(values, string(s))
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("status", "in", values).
			Where("updatedAt", "<", before.UTC()).
			OrderBy("updatedAt", firestore.Asc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	runs := make([]domain.CheckoutRun, 0, len(docs))
	for _, doc := range docs {
		runs = append(runs, doc.Data.toDomain(doc.ID))
	}
	return runs, nil
}

type runStepDocument struct {
	Name      string    `firestore:"name"`
	Status    string    `firestore:"status"`
	Error     string    `firestore:"error,omitempty"`
	Attempts  int       `firestore:"attempts"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

type inventoryLineDocument struct {
	ItemID   string `firestore:"itemId"`
	Quantity int    `firestore:"quantity"`
}

type checkoutRunDocument struct {
	RequestID     string                  `firestore:"requestId"`
	UserID        string                  `firestore:"userId"`
	Kind          string                  `firestore:"kind"`
	Status        string                  `firestore:"status"`
	Steps         []runStepDocument       `firestore:"steps"`
	OrderID       string                  `firestore:"orderId,omitempty"`
	OrderNumber   string                  `firestore:"orderNumber,omitempty"`
	BookingID     string                  `firestore:"bookingId,omitempty"`
	BookingNumber string                  `firestore:"bookingNumber,omitempty"`
	PlaceID       string                  `firestore:"placeId,omitempty"`
	Lines         []inventoryLineDocument `firestore:"lines,omitempty"`
	AdjustedItems []string                `firestore:"adjustedItems,omitempty"`
	CartEntryIDs  []string                `firestore:"cartEntryIds,omitempty"`
	LastError     string                  `firestore:"lastError,omitempty"`
	CreatedAt     time.Time               `firestore:"createdAt"`
	UpdatedAt     time.Time               `firestore:"updatedAt"`
}

func newCheckoutRunDocument(run domain.CheckoutRun) checkoutRunDocument {
	doc := checkoutRunDocument{
		RequestID:     run.RequestID,
		UserID:        run.UserID,
		Kind:          string(run.Kind),
		Status:        string(run.Status),
		Steps:         make([]runStepDocument, 0, len(run.Steps)),
		OrderID:       run.OrderID,
		OrderNumber:   run.OrderNumber,
		BookingID:     run.BookingID,
		BookingNumber: run.BookingNumber,
		PlaceID:       run.PlaceID,
		AdjustedItems: append([]string(nil), run.AdjustedItems...),
		CartEntryIDs:  append([]string(nil), run.CartEntryIDs...),
		LastError:     run.LastError,
		CreatedAt:     run.CreatedAt.UTC(),
		UpdatedAt:     run.UpdatedAt.UTC(),
	}
	for _, step := range run.Steps {
		doc.Steps = append(doc.Steps, runStepDocument{
			Name:      string(step.Name),
			Status:    string(step.Status),
			Error:     step.Error,
			Attempts:  step.Attempts,
			UpdatedAt: step.UpdatedAt.UTC(),
		})
	}
	for _, line := range run.Lines {
		doc.Lines = append(doc.Lines, inventoryLineDocument(line))
	}
	return doc
}

func (d checkoutRunDocument) toDomain(id string) domain.CheckoutRun {
	run := domain.CheckoutRun{
		ID:            id,
		RequestID:     d.RequestID,
		UserID:        d.UserID,
		Kind:          domain.CheckoutKind(d.Kind),
		Status:        domain.RunStatus(d.Status),
		OrderID:       d.OrderID,
		OrderNumber:   d.OrderNumber,
		BookingID:     d.BookingID,
		BookingNumber: d.BookingNumber,
		PlaceID:       d.PlaceID,
		AdjustedItems: append([]string(nil), d.AdjustedItems...),
		CartEntryIDs:  append([]string(nil), d.CartEntryIDs...),
		LastError:     d.LastError,
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
	}
	for _, step := range d.Steps {
		run.Steps = append(run.Steps, domain.RunStep{
			Name:      domain.StepName(step.Name),
			Status:    domain.StepStatus(step.Status),
			Error:     step.Error,
			Attempts:  step.Attempts,
			UpdatedAt: step.UpdatedAt.UTC(),
		})
	}
	for _, line := range d.Lines {
		run.Lines = append(run.Lines, domain.InventoryLine(line))
	}
	return run
}
