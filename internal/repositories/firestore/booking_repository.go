package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/campusnest/api/internal/domain"
	pfirestore "github.com/campusnest/api/internal/platform/firestore"
	"github.com/campusnest/api/internal/repositories"
)

const bookingCollection = "bookings"

// BookingRepository persists boarding bookings.
type BookingRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[bookingDocument]
}

var _ repositories.BookingRepository = (*BookingRepository)(nil)

// NewBookingRepository constructs a Firestore-backed booking repository.
func NewBookingRepository(provider *pfirestore.Provider) (*BookingRepository, error) {
	if provider == nil {
		return nil, errors.New("booking repository requires firestore provider")
	}
	return &BookingRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[bookingDocument](provider, bookingCollection, nil),
	}, nil
}

func (r *BookingRepository) Insert(ctx context.Context, booking domain.Booking) (domain.Booking, error) {
	if r == nil || r.base == nil {
		return domain.Booking{}, errors.New("booking repository not initialised")
	}
	booking.ID = strings.TrimSpace(booking.ID)
	if booking.ID == "" {
		return domain.Booking{}, errors.New("booking repository: booking id is required")
	}
	booking.CreatedAt = booking.CreatedAt.UTC()
	if booking.UpdatedAt.IsZero() {
		booking.UpdatedAt = booking.CreatedAt
	}
	if _, err := r.base.Create(ctx, booking.ID, newBookingDocument(booking)); err != nil {
		return domain.Booking{}, err
	}
	return booking, nil
}

func (r *BookingRepository) FindByID(ctx context.Context, bookingID string) (domain.Booking, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(bookingID))
	if err != nil {
		return domain.Booking{}, err
	}
	return doc.Data.toDomain(doc.ID)
}

func (r *BookingRepository) ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Booking], error) {
	return r.list(ctx, pager, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", strings.TrimSpace(userID))
	})
}

func (r *BookingRepository) ListByOwner(ctx context.Context, ownerID string, pager domain.Pagination) (domain.CursorPage[domain.Booking], error) {
	return r.list(ctx, pager, func(q firestore.Query) firestore.Query {
		return q.Where("ownerId", "==", strings.TrimSpace(ownerID))
	})
}

func (r *BookingRepository) ListAll(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Booking], error) {
	return r.list(ctx, pager, nil)
}

func (r *BookingRepository) list(ctx context.Context, pager domain.Pagination, filter pfirestore.QueryBuilder) (domain.CursorPage[domain.Booking], error) {
	return listPage(ctx, r.base, pager, "createdAt", filter,
		func(d bookingDocument) time.Time { return d.CreatedAt },
		func(doc pfirestore.Document[bookingDocument]) (domain.Booking, error) { return doc.Data.toDomain(doc.ID) },
	)
}

func (r *BookingRepository) UpdateStatus(ctx context.Context, bookingID string, from, to domain.BookingStatus, now time.Time) (domain.Booking, error) {
	return r.transition(ctx, "bookings.update_status", bookingID, from, to, nil, now)
}

func (r *BookingRepository) MarkPaid(ctx context.Context, bookingID string, payment domain.PaymentDetails, now time.Time) (domain.Booking, error) {
	return r.transition(ctx, "bookings.mark_paid", bookingID, domain.BookingStatusPending, domain.BookingStatusPaid, &payment, now)
}

func (r *BookingRepository) transition(ctx context.Context, op, bookingID string, from, to domain.BookingStatus, payment *domain.PaymentDetails, now time.Time) (domain.Booking, error) {
	bookingID = strings.TrimSpace(bookingID)
	var updated domain.Booking
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, bookingID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		doc, err := r.base.Decode(snap)
		if err != nil {
			return err
		}
		if current := domain.BookingStatus(doc.Data.Status); current != from {
			return status.Errorf(codes.FailedPrecondition, "booking %s is %s, expected %s", bookingID, current, from)
		}
		booking, err := doc.Data.toDomain(doc.ID)
		if err != nil {
			return err
		}
		booking.Status = to
		booking.UpdatedAt = now.UTC()
		updates := []firestore.Update{
			{Path: "status", Value: string(to)},
			{Path: "updatedAt", Value: now.UTC()},
		}
		if payment != nil {
			recorded := *payment
			booking.Payment = &recorded
			updates = append(updates, firestore.Update{Path: "paymentDetails", Value: newPaymentDocument(recorded)})
		}
		updated = booking
		return tx.Update(ref, updates)
	})
	if err != nil {
		return domain.Booking{}, pfirestore.WrapError(op, err)
	}
	return updated, nil
}

type placeDetailsDocument struct {
	Name    string `firestore:"name"`
	Address string `firestore:"address,omitempty"`
	OwnerID string `firestore:"ownerId"`
}

type bookingDocument struct {
	BookingNumber   string                `firestore:"bookingNumber"`
	BoardingPlaceID string                `firestore:"boardingPlaceId"`
	OwnerID         string                `firestore:"ownerId"`
	UserID          string                `firestore:"userId"`
	CustomerName    string                `firestore:"customerName"`
	CustomerPhone   string                `firestore:"customerPhone,omitempty"`
	CheckInDate     time.Time             `firestore:"checkInDate"`
	Status          string                `firestore:"status"`
	TotalAmount     any                   `firestore:"totalAmount"`
	PaymentType     string                `firestore:"paymentType"`
	PlaceDetails    *placeDetailsDocument `firestore:"placeDetails,omitempty"`
	UserDetails     *userDetailsDocument  `firestore:"userDetails,omitempty"`
	PaymentDetails  *paymentDocument      `firestore:"paymentDetails,omitempty"`
	RequestID       string                `firestore:"requestId,omitempty"`
	CreatedAt       time.Time             `firestore:"createdAt"`
	UpdatedAt       time.Time             `firestore:"updatedAt"`
}

func newBookingDocument(booking domain.Booking) bookingDocument {
	doc := bookingDocument{
		BookingNumber:   booking.BookingNumber,
		BoardingPlaceID: booking.BoardingPlaceID,
		OwnerID:         booking.OwnerID,
		UserID:          booking.UserID,
		CustomerName:    booking.CustomerName,
		CustomerPhone:   booking.CustomerPhone,
		CheckInDate:     booking.CheckInDate.UTC(),
		Status:          string(booking.Status),
		TotalAmount:     encodeAmount(booking.TotalAmount),
		PaymentType:     string(booking.PaymentType),
		RequestID:       booking.RequestID,
		CreatedAt:       booking.CreatedAt,
		UpdatedAt:       booking.UpdatedAt.UTC(),
	}
	if booking.Place != nil {
		place := placeDetailsDocument(*booking.Place)
		doc.PlaceDetails = &place
	}
	if booking.User != nil {
		user := userDetailsDocument(*booking.User)
		doc.UserDetails = &user
	}
	if booking.Payment != nil {
		payment := newPaymentDocument(*booking.Payment)
		doc.PaymentDetails = &payment
	}
	return doc
}

func (d bookingDocument) toDomain(id string) (domain.Booking, error) {
	total, err := decodeAmount("bookings/"+id+".totalAmount", d.TotalAmount)
	if err != nil {
		return domain.Booking{}, err
	}
	booking := domain.Booking{
		ID:              id,
		BookingNumber:   d.BookingNumber,
		BoardingPlaceID: d.BoardingPlaceID,
		OwnerID:         d.OwnerID,
		UserID:          d.UserID,
		CustomerName:    d.CustomerName,
		CustomerPhone:   d.CustomerPhone,
		CheckInDate:     d.CheckInDate.UTC(),
		Status:          domain.BookingStatus(d.Status),
		TotalAmount:     total,
		PaymentType:     domain.PaymentType(d.PaymentType),
		RequestID:       d.RequestID,
		CreatedAt:       d.CreatedAt.UTC(),
		UpdatedAt:       d.UpdatedAt.UTC(),
	}
	if d.PlaceDetails != nil {
		place := domain.PlaceDetails(*d.PlaceDetails)
		booking.Place = &place
	}
	if d.UserDetails != nil {
		user := domain.UserDetails(*d.UserDetails)
		booking.User = &user
	}
	if d.PaymentDetails != nil {
		payment, err := d.PaymentDetails.toDomain("bookings/" + id + ".paymentDetails.amount")
		if err != nil {
			return domain.Booking{}, err
		}
		booking.Payment = &payment
	}
	return booking, nil
}
