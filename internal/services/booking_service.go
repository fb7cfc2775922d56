package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/campusnest/api/internal/domain"
	"github.com/campusnest/api/internal/receipt"
	"github.com/campusnest/api/internal/repositories"
)

// BookingServiceDeps wires booking reads.
type BookingServiceDeps struct {
	Bookings repositories.BookingRepository
	Receipts *ReceiptGenerator
}

type bookingService struct {
	bookings repositories.BookingRepository
	receipts *ReceiptGenerator
}

// NewBookingService constructs a BookingService.
func NewBookingService(deps BookingServiceDeps) (BookingService, error) {
	if deps.Bookings == nil {
		return nil, errors.New("booking service: booking repository is required")
	}
	if deps.Receipts == nil {
		return nil, errors.New("booking service: receipt generator is required")
	}
	return &bookingService{bookings: deps.Bookings, receipts: deps.Receipts}, nil
}

func (s *bookingService) ListForUser(ctx context.Context, userID string, pager Pagination) (domain.CursorPage[Booking], error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.CursorPage[Booking]{}, fmt.Errorf("%w: user id is required", ErrBookingInvalidInput)
	}
	page, err := s.bookings.ListByUser(ctx, userID, pager)
	if err != nil {
		return domain.CursorPage[Booking]{}, translateBookingError(err)
	}
	return page, nil
}

func (s *bookingService) ListForOwner(ctx context.Context, ownerID string, pager Pagination) (domain.CursorPage[Booking], error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return domain.CursorPage[Booking]{}, fmt.Errorf("%w: owner id is required", ErrBookingInvalidInput)
	}
	page, err := s.bookings.ListByOwner(ctx, ownerID, pager)
	if err != nil {
		return domain.CursorPage[Booking]{}, translateBookingError(err)
	}
	return page, nil
}

func (s *bookingService) ListAll(ctx context.Context, pager Pagination) (domain.CursorPage[Booking], error) {
	page, err := s.bookings.ListAll(ctx, pager)
	if err != nil {
		return domain.CursorPage[Booking]{}, translateBookingError(err)
	}
	return page, nil
}

// GetForUser returns a booking made by userID. Bookings of other users read as not found.
func (s *bookingService) GetForUser(ctx context.Context, userID, bookingID string) (Booking, error) {
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return Booking{}, fmt.Errorf("%w: booking id is required", ErrBookingInvalidInput)
	}
	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return Booking{}, translateBookingError(err)
	}
	if booking.UserID != strings.TrimSpace(userID) {
		return Booking{}, ErrBookingNotFound
	}
	return booking, nil
}

func (s *bookingService) Receipt(ctx context.Context, userID, bookingID string, format ReceiptFormat) (receipt.Document, error) {
	booking, err := s.GetForUser(ctx, userID, bookingID)
	if err != nil {
		return receipt.Document{}, err
	}
	rc, err := s.receipts.ForBooking(booking)
	if err != nil {
		return receipt.Document{}, fmt.Errorf("booking service: build receipt: %w", err)
	}
	return s.receipts.Render(rc, format)
}

func translateBookingError(err error) error {
	if repositories.IsNotFound(err) {
		return ErrBookingNotFound
	}
	return fmt.Errorf("booking service: %w", err)
}
