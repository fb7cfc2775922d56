package fixtures

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusnest/api/internal/domain"
	"github.com/campusnest/api/internal/repositories"
)

const sample = `
admins:
  - uid: admin-1
    name: Registrar
shop_owners:
  - uid: shop-1
    shop_name: Canteen One
    phone: "0771234567"
students:
  - uid: student-1
    name: Nimal
items:
  - id: item-rice
    shop_owner_id: shop-1
    name: Rice and curry
    price: "LKR 350"
    stock: 40
  - id: item-tea
    shop_owner_id: shop-1
    name: Plain tea
    price: 60.5
    stock: 100
places:
  - id: place-1
    owner_id: owner-1
    name: Lake View Annex
    monthly_rent: 15000
    advance_amount: "5000"
  - id: place-2
    owner_id: owner-1
    name: Hill Side
    monthly_rent: 12000
    available: false
`

type memoryRegistry struct {
	identities *memoryDirectory
	items      *memoryItems
	places     *memoryPlaces
}

func newMemoryRegistry() *memoryRegistry {
	return &memoryRegistry{
		identities: &memoryDirectory{saved: map[string][]domain.Principal{}},
		items:      &memoryItems{saved: map[string]domain.ShopItem{}},
		places:     &memoryPlaces{saved: map[string]domain.BoardingPlace{}},
	}
}

func (r *memoryRegistry) Close(context.Context) error                           { return nil }
func (r *memoryRegistry) Carts() repositories.CartRepository                   { return nil }
func (r *memoryRegistry) ShopItems() repositories.ShopItemRepository           { return r.items }
func (r *memoryRegistry) BoardingPlaces() repositories.BoardingPlaceRepository { return r.places }
func (r *memoryRegistry) Orders() repositories.OrderRepository                 { return nil }
func (r *memoryRegistry) Bookings() repositories.BookingRepository             { return nil }
func (r *memoryRegistry) Identities() repositories.IdentityDirectory           { return r.identities }
func (r *memoryRegistry) Notifications() repositories.NotificationRepository   { return nil }
func (r *memoryRegistry) CheckoutRuns() repositories.CheckoutRunRepository     { return nil }
func (r *memoryRegistry) Health() repositories.HealthRepository                { return nil }

type memoryDirectory struct {
	saved map[string][]domain.Principal
}

func (d *memoryDirectory) Lookup(_ context.Context, uid string) ([]domain.Principal, error) {
	return d.saved[uid], nil
}

func (d *memoryDirectory) Save(_ context.Context, p domain.Principal) error {
	d.saved[p.UID()] = append(d.saved[p.UID()], p)
	return nil
}

type memoryItems struct {
	saved map[string]domain.ShopItem
	err   error
}

func (m *memoryItems) Get(_ context.Context, id string) (domain.ShopItem, error) {
	return m.saved[id], nil
}

func (m *memoryItems) AdjustStock(context.Context, string, int, bool, time.Time) (repositories.StockChange, error) {
	return repositories.StockChange{}, errors.New("not supported")
}

func (m *memoryItems) Upsert(_ context.Context, item domain.ShopItem) error {
	if m.err != nil {
		return m.err
	}
	m.saved[item.ID] = item
	return nil
}

type memoryPlaces struct {
	saved map[string]domain.BoardingPlace
}

func (m *memoryPlaces) Get(_ context.Context, id string) (domain.BoardingPlace, error) {
	return m.saved[id], nil
}

func (m *memoryPlaces) SetAvailability(context.Context, string, bool, time.Time) error {
	return errors.New("not supported")
}

func (m *memoryPlaces) Upsert(_ context.Context, place domain.BoardingPlace) error {
	m.saved[place.ID] = place
	return nil
}

var seededAt = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func TestApplySeedsEveryCollection(t *testing.T) {
	file, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)

	reg := newMemoryRegistry()
	summary, err := Apply(context.Background(), reg, file, seededAt)
	require.NoError(t, err)
	assert.Equal(t, Summary{Principals: 3, Items: 2, Places: 2}, summary)

	rice := reg.items.saved["item-rice"]
	assert.Equal(t, "350.00", domain.FormatAmount(rice.Price))
	assert.Equal(t, 40, rice.Stock)
	assert.Equal(t, "60.50", domain.FormatAmount(reg.items.saved["item-tea"].Price))

	annex := reg.places.saved["place-1"]
	assert.True(t, annex.IsAvailable)
	assert.Equal(t, "5000.00", domain.FormatAmount(annex.AdvanceAmount))
	assert.False(t, reg.places.saved["place-2"].IsAvailable)
	assert.True(t, reg.places.saved["place-2"].AdvanceAmount.IsZero())

	owner := reg.identities.saved["shop-1"]
	require.Len(t, owner, 1)
	assert.Equal(t, domain.RoleShopOwner, owner[0].Role())
	assert.Equal(t, "Canteen One", owner[0].DisplayName())
}

func TestApplyRejectsInvalidFileBeforeWriting(t *testing.T) {
	file, err := Decode(strings.NewReader(`
students:
  - uid: student-1
items:
  - id: item-1
    shop_owner_id: shop-1
    price: free
`))
	require.NoError(t, err)

	reg := newMemoryRegistry()
	_, err = Apply(context.Background(), reg, file, seededAt)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	assert.Empty(t, reg.identities.saved)
}

func TestApplyStopsOnWriteFailure(t *testing.T) {
	file, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)

	reg := newMemoryRegistry()
	reg.items.err = errors.New("unavailable")
	summary, err := Apply(context.Background(), reg, file, seededAt)
	require.Error(t, err)
	assert.Equal(t, 3, summary.Principals)
	assert.Zero(t, summary.Items)
	assert.Empty(t, reg.places.saved)
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := Decode(strings.NewReader("shops:\n  - id: x\n"))
	require.Error(t, err)

	file, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, file.Items)
}
