package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/campusnest/api/internal/domain"
	pfirestore "github.com/campusnest/api/internal/platform/firestore"
	"github.com/campusnest/api/internal/repositories"
)

const (
	shopItemCollection      = "shopItems"
	boardingPlaceCollection = "boardingPlaces"
)

// ShopItemRepository reads food items and applies stock adjustments.
type ShopItemRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[shopItemDocument]
}

var _ repositories.ShopItemRepository = (*ShopItemRepository)(nil)

// NewShopItemRepository constructs a Firestore-backed shop item repository.
func NewShopItemRepository(provider *pfirestore.Provider) (*ShopItemRepository, error) {
	if provider == nil {
		return nil, errors.New("shop item repository requires firestore provider")
	}
	return &ShopItemRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[shopItemDocument](provider, shopItemCollection, nil),
	}, nil
}

func (r *ShopItemRepository) Get(ctx context.Context, itemID string) (domain.ShopItem, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(itemID))
	if err != nil {
		return domain.ShopItem{}, err
	}
	return doc.Data.toDomain(doc.ID)
}

// AdjustStock applies delta in a read-modify-write transaction and reports the stock before
// and after. The transaction serialises concurrent writers on the same document only; it is
// not a reservation and no guard runs unless requested.
func (r *ShopItemRepository) AdjustStock(ctx context.Context, itemID string, delta int, guard bool, now time.Time) (repositories.StockChange, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return repositories.StockChange{}, errors.New("shop item repository: item id is required")
	}
	if delta == 0 {
		return repositories.StockChange{}, inventoryError("shopItems.adjust_stock", repositories.InventoryErrorInvalidQuantity, "stock delta must be non-zero", nil)
	}

	var change repositories.StockChange
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, itemID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if pfirestore.IsNotFoundStatus(err) {
				return inventoryError("shopItems.adjust_stock", repositories.InventoryErrorItemNotFound, fmt.Sprintf("item %s not found", itemID), err)
			}
			return err
		}
		doc, err := r.base.Decode(snap)
		if err != nil {
			return err
		}
		before := doc.Data.Stock
		after := before + delta
		if guard && after < 0 {
			return inventoryError("shopItems.adjust_stock", repositories.InventoryErrorInsufficientStock,
				fmt.Sprintf("insufficient stock for %s: have %d, want %d", itemID, before, -delta), nil)
		}
		change = repositories.StockChange{ItemID: itemID, Before: before, After: after}
		return tx.Update(ref, []firestore.Update{
			{Path: "stock", Value: after},
			{Path: "updatedAt", Value: now.UTC()},
		})
	})
	if err != nil {
		return repositories.StockChange{}, unwrapInventoryError(err)
	}
	return change, nil
}

// Upsert writes the full item document.
func (r *ShopItemRepository) Upsert(ctx context.Context, item domain.ShopItem) error {
	_, err := r.base.Set(ctx, strings.TrimSpace(item.ID), shopItemDocument{
		ShopOwnerID: item.ShopOwnerID,
		Name:        item.Name,
		Price:       encodeAmount(item.Price),
		Stock:       item.Stock,
		ImageRef:    item.ImageRef,
		UpdatedAt:   item.UpdatedAt.UTC(),
	})
	return err
}

// BoardingPlaceRepository reads boarding places and toggles availability.
type BoardingPlaceRepository struct {
	base *pfirestore.BaseRepository[boardingPlaceDocument]
}

var _ repositories.BoardingPlaceRepository = (*BoardingPlaceRepository)(nil)

// NewBoardingPlaceRepository constructs a Firestore-backed boarding place repository.
func NewBoardingPlaceRepository(provider *pfirestore.Provider) (*BoardingPlaceRepository, error) {
	if provider == nil {
		return nil, errors.New("boarding place repository requires firestore provider")
	}
	return &BoardingPlaceRepository{
		base: pfirestore.NewBaseRepository[boardingPlaceDocument](provider, boardingPlaceCollection, nil),
	}, nil
}

func (r *BoardingPlaceRepository) Get(ctx context.Context, placeID string) (domain.BoardingPlace, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(placeID))
	if err != nil {
		return domain.BoardingPlace{}, err
	}
	return doc.Data.toDomain(doc.ID)
}

// SetAvailability writes isAvailable unconditionally.
func (r *BoardingPlaceRepository) SetAvailability(ctx context.Context, placeID string, available bool, now time.Time) error {
	_, err := r.base.Update(ctx, strings.TrimSpace(placeID), []firestore.Update{
		{Path: "isAvailable", Value: available},
		{Path: "updatedAt", Value: now.UTC()},
	})
	if pfirestore.IsNotFoundStatus(err) {
		return inventoryError("boardingPlaces.set_availability", repositories.InventoryErrorItemNotFound, fmt.Sprintf("place %s not found", placeID), err)
	}
	return err
}

func (r *BoardingPlaceRepository) Upsert(ctx context.Context, place domain.BoardingPlace) error {
	_, err := r.base.Set(ctx, strings.TrimSpace(place.ID), boardingPlaceDocument{
		OwnerID:       place.OwnerID,
		Name:          place.Name,
		Address:       place.Address,
		MonthlyRent:   encodeAmount(place.MonthlyRent),
		AdvanceAmount: encodeAmount(place.AdvanceAmount),
		IsAvailable:   place.IsAvailable,
		UpdatedAt:     place.UpdatedAt.UTC(),
	})
	return err
}

type shopItemDocument struct {
	ShopOwnerID string    `firestore:"shopOwnerId"`
	Name        string    `firestore:"name"`
	Price       any       `firestore:"price"`
	Stock       int       `firestore:"stock"`
	ImageRef    string    `firestore:"imageRef,omitempty"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func (d shopItemDocument) toDomain(id string) (domain.ShopItem, error) {
	price, err := decodeAmount("shopItems/"+id+".price", d.Price)
	if err != nil {
		return domain.ShopItem{}, err
	}
	return domain.ShopItem{
		ID:          id,
		ShopOwnerID: d.ShopOwnerID,
		Name:        d.Name,
		Price:       price,
		Stock:       d.Stock,
		ImageRef:    d.ImageRef,
		UpdatedAt:   d.UpdatedAt.UTC(),
	}, nil
}

type boardingPlaceDocument struct {
	OwnerID       string    `firestore:"ownerId"`
	Name          string    `firestore:"name"`
	Address       string    `firestore:"address"`
	MonthlyRent   any       `firestore:"monthlyRent"`
	AdvanceAmount any       `firestore:"advanceAmount,omitempty"`
	IsAvailable   bool      `firestore:"isAvailable"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

func (d boardingPlaceDocument) toDomain(id string) (domain.BoardingPlace, error) {
	rent, err := decodeAmount("boardingPlaces/"+id+".monthlyRent", d.MonthlyRent)
	if err != nil {
		return domain.BoardingPlace{}, err
	}
	advance, err := decodeOptionalAmount("boardingPlaces/"+id+".advanceAmount", d.AdvanceAmount)
	if err != nil {
		return domain.BoardingPlace{}, err
	}
	return domain.BoardingPlace{
		ID:            id,
		OwnerID:       d.OwnerID,
		Name:          d.Name,
		Address:       d.Address,
		MonthlyRent:   rent,
		AdvanceAmount: advance,
		IsAvailable:   d.IsAvailable,
		UpdatedAt:     d.UpdatedAt.UTC(),
	}, nil
}

func inventoryError(op string, code repositories.InventoryErrorCode, message string, err error) *repositories.InventoryError {
	invErr := repositories.NewInventoryError(code, message, err)
	invErr.Op = op
	return invErr
}

// unwrapInventoryError surfaces typed inventory errors raised inside a transaction, which the
// transaction runner would otherwise classify by gRPC code alone.
func unwrapInventoryError(err error) error {
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		return invErr
	}
	return err
}
