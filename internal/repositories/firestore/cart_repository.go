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

const cartCollection = "cartItems"

// CartRepository persists one document per (user, item) cart entry.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartEntryDocument]
}

var _ repositories.CartRepository = (*CartRepository)(nil)

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{
		base: pfirestore.NewBaseRepository[cartEntryDocument](provider, cartCollection, nil),
	}, nil
}

// Create stores the entry under {userID}_{itemID}. A second add for the same pair fails with a conflict.
func (r *CartRepository) Create(ctx context.Context, entry domain.CartEntry) (domain.CartEntry, error) {
	if r == nil || r.base == nil {
		return domain.CartEntry{}, errors.New("cart repository not initialised")
	}
	entry.UserID = strings.TrimSpace(entry.UserID)
	entry.ItemID = strings.TrimSpace(entry.ItemID)
	if entry.UserID == "" || entry.ItemID == "" {
		return domain.CartEntry{}, errors.New("cart repository: user id and item id are required")
	}
	if entry.Quantity < 1 {
		return domain.CartEntry{}, fmt.Errorf("cart repository: quantity must be >= 1, got %d", entry.Quantity)
	}
	entry.ID = domain.CartEntryID(entry.UserID, entry.ItemID)
	entry.CreatedAt = entry.CreatedAt.UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.UpdatedAt = entry.CreatedAt

	if _, err := r.base.Create(ctx, entry.ID, newCartEntryDocument(entry)); err != nil {
		return domain.CartEntry{}, err
	}
	return entry, nil
}

// Get loads a single entry.
func (r *CartRepository) Get(ctx context.Context, entryID string) (domain.CartEntry, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(entryID))
	if err != nil {
		return domain.CartEntry{}, err
	}
	return doc.Data.toDomain(doc.ID)
}

// UpdateQuantity replaces the quantity of an existing entry.
func (r *CartRepository) UpdateQuantity(ctx context.Context, entryID string, quantity int, now time.Time) (domain.CartEntry, error) {
	if quantity < 1 {
		return domain.CartEntry{}, fmt.Errorf("cart repository: quantity must be >= 1, got %d", quantity)
	}
	entryID = strings.TrimSpace(entryID)
	if _, err := r.base.Update(ctx, entryID, []firestore.Update{
		{Path: "quantity", Value: quantity},
		{Path: "updatedAt", Value: now.UTC()},
	}); err != nil {
		return domain.CartEntry{}, err
	}
	return r.Get(ctx, entryID)
}

// Delete removes the entry. Deleting a missing entry succeeds.
func (r *CartRepository) Delete(ctx context.Context, entryID string) error {
	return r.base.Delete(ctx, strings.TrimSpace(entryID))
}

// ListByUser returns the user's entries oldest first.
func (r *CartRepository) ListByUser(ctx context.Context, userID string) ([]domain.CartEntry, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("cart repository: user id is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", userID).OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	entries := make([]domain.CartEntry, 0, len(docs))
	for _, doc := range docs {
		entry, err := doc.Data.toDomain(doc.ID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

type cartEntryDocument struct {
	UserID      string    `firestore:"userId"`
	ItemID      string    `firestore:"itemId"`
	ShopOwnerID string    `firestore:"shopOwnerId"`
	Name        string    `firestore:"name"`
	UnitPrice   any       `firestore:"unitPrice"`
	Quantity    int       `firestore:"quantity"`
	ImageRef    string    `firestore:"imageRef,omitempty"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func newCartEntryDocument(entry domain.CartEntry) cartEntryDocument {
	return cartEntryDocument{
		UserID:      entry.UserID,
		ItemID:      entry.ItemID,
		ShopOwnerID: strings.TrimSpace(entry.ShopOwnerID),
		Name:        strings.TrimSpace(entry.Name),
		UnitPrice:   encodeAmount(entry.UnitPrice),
		Quantity:    entry.Quantity,
		ImageRef:    strings.TrimSpace(entry.ImageRef),
		CreatedAt:   entry.CreatedAt,
		UpdatedAt:   entry.UpdatedAt,
	}
}

func (d cartEntryDocument) toDomain(id string) (domain.CartEntry, error) {
	price, err := decodeAmount("cartItems/"+id+".unitPrice", d.UnitPrice)
	if err != nil {
		return domain.CartEntry{}, err
	}
	updated := d.UpdatedAt
	if updated.IsZero() {
		updated = d.CreatedAt
	}
	return domain.CartEntry{
		ID:          id,
		UserID:      d.UserID,
		ItemID:      d.ItemID,
		ShopOwnerID: d.ShopOwnerID,
		Name:        d.Name,
		UnitPrice:   price,
		Quantity:    d.Quantity,
		ImageRef:    d.ImageRef,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   updated.UTC(),
	}, nil
}
