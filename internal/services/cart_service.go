package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/campusnest/api/internal/domain"
	"github.com/campusnest/api/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: cart repository is required")
	errCartItemsRequired      = errors.New("cart service: shop item repository is required")
	errCartClockRequired      = errors.New("cart service: clock is required")
)

const maxCartQuantity = 99

// CartServiceDeps wires the repositories used by cart operations.
type CartServiceDeps struct {
	Carts  repositories.CartRepository
	Items  repositories.ShopItemRepository
	Clock  func() time.Time
	Logger func(context.Context, string, map[string]any)
}

type cartService struct {
	carts  repositories.CartRepository
	items  repositories.ShopItemRepository
	now    func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Items == nil {
		return nil, errCartItemsRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cartService{
		carts:  deps.Carts,
		items:  deps.Items,
		now:    func() time.Time { return deps.Clock().UTC() },
		logger: logger,
	}, nil
}

// AddItem denormalises the shop item into a new cart entry. Adding an item twice is
// rejected; callers change the quantity instead.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (CartEntry, error) {
	userID := strings.TrimSpace(cmd.UserID)
	itemID := strings.TrimSpace(cmd.ItemID)
	var problems validationErrors
	if userID == "" {
		problems.add("user id is required")
	}
	if itemID == "" {
		problems.add("item id is required")
	}
	if cmd.Quantity < 1 || cmd.Quantity > maxCartQuantity {
		problems.add("quantity must be between 1 and %d", maxCartQuantity)
	}
	if err := problems.err(ErrCartInvalidInput); err != nil {
		return CartEntry{}, err
	}

	item, err := s.items.Get(ctx, itemID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return CartEntry{}, fmt.Errorf("%w: %s", ErrCartItemNotFound, itemID)
		}
		return CartEntry{}, s.translateRepoError(err)
	}

	now := s.now()
	entry := domain.CartEntry{
		ID:          domain.CartEntryID(userID, item.ID),
		UserID:      userID,
		ItemID:      item.ID,
		ShopOwnerID: item.ShopOwnerID,
		Name:        item.Name,
		UnitPrice:   item.Price,
		Quantity:    cmd.Quantity,
		ImageRef:    item.ImageRef,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	saved, err := s.carts.Create(ctx, entry)
	if err != nil {
		if repositories.IsConflict(err) {
			return CartEntry{}, fmt.Errorf("%w: %s", ErrCartEntryExists, item.ID)
		}
		return CartEntry{}, s.translateRepoError(err)
	}
	return saved, nil
}

// UpdateQuantity replaces the quantity of an entry owned by the caller.
func (s *cartService) UpdateQuantity(ctx context.Context, cmd UpdateCartItemCommand) (CartEntry, error) {
	if cmd.Quantity < 1 || cmd.Quantity > maxCartQuantity {
		return CartEntry{}, fmt.Errorf("%w: quantity must be between 1 and %d", ErrCartInvalidInput, maxCartQuantity)
	}
	if _, err := s.owned(ctx, cmd.UserID, cmd.EntryID); err != nil {
		return CartEntry{}, err
	}
	updated, err := s.carts.UpdateQuantity(ctx, strings.TrimSpace(cmd.EntryID), cmd.Quantity, s.now())
	if err != nil {
		return CartEntry{}, s.translateRepoError(err)
	}
	return updated, nil
}

// RemoveItem deletes an entry owned by the caller.
func (s *cartService) RemoveItem(ctx context.Context, userID, entryID string) error {
	if _, err := s.owned(ctx, userID, entryID); err != nil {
		return err
	}
	if err := s.carts.Delete(ctx, strings.TrimSpace(entryID)); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

// List returns the caller's entries, oldest first, with the running subtotal.
func (s *cartService) List(ctx context.Context, userID string) (CartView, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return CartView{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	entries, err := s.carts.ListByUser(ctx, userID)
	if err != nil {
		return CartView{}, s.translateRepoError(err)
	}
	subtotal := decimal.Zero
	for _, entry := range entries {
		subtotal = subtotal.Add(entry.LineTotal())
	}
	return CartView{Entries: entries, Subtotal: domain.FormatAmount(subtotal)}, nil
}

// owned loads the entry and hides entries of other users behind not found.
func (s *cartService) owned(ctx context.Context, userID, entryID string) (CartEntry, error) {
	userID = strings.TrimSpace(userID)
	entryID = strings.TrimSpace(entryID)
	if userID == "" || entryID == "" {
		return CartEntry{}, fmt.Errorf("%w: user id and entry id are required", ErrCartInvalidInput)
	}
	entry, err := s.carts.Get(ctx, entryID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return CartEntry{}, ErrCartEntryNotFound
		}
		return CartEntry{}, s.translateRepoError(err)
	}
	if entry.UserID != userID {
		return CartEntry{}, ErrCartEntryNotFound
	}
	return entry, nil
}

func (s *cartService) translateRepoError(err error) error {
	switch {
	case repositories.IsNotFound(err):
		return fmt.Errorf("%w: %v", ErrCartEntryNotFound, err)
	case repositories.IsUnavailable(err):
		return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
	}
	return fmt.Errorf("cart service: %w", err)
}
