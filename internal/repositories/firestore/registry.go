package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/campusnest/api/internal/platform/firestore"
	"github.com/campusnest/api/internal/repositories"
)

// Registry bundles the Firestore repositories sharing one provider.
type Registry struct {
	provider      *pfirestore.Provider
	carts         *CartRepository
	shopItems     *ShopItemRepository
	places        *BoardingPlaceRepository
	orders        *OrderRepository
	bookings      *BookingRepository
	identities    *IdentityDirectory
	notifications *NotificationRepository
	runs          *CheckoutRunRepository
	health        repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs every repository on provider. health may be nil when readiness
// probes are not needed (CLI tools).
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}
	reg := &Registry{provider: provider, health: health}

	var err error
	if reg.carts, err = NewCartRepository(provider); err != nil {
		return nil, fmt.Errorf("build cart repository: %w", err)
	}
	if reg.shopItems, err = NewShopItemRepository(provider); err != nil {
		return nil, fmt.Errorf("build shop item repository: %w", err)
	}
	if reg.places, err = NewBoardingPlaceRepository(provider); err != nil {
		return nil, fmt.Errorf("build boarding place repository: %w", err)
	}
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, fmt.Errorf("build order repository: %w", err)
	}
	if reg.bookings, err = NewBookingRepository(provider); err != nil {
		return nil, fmt.Errorf("build booking repository: %w", err)
	}
	if reg.identities, err = NewIdentityDirectory(provider); err != nil {
		return nil, fmt.Errorf("build identity directory: %w", err)
	}
	if reg.notifications, err = NewNotificationRepository(provider); err != nil {
		return nil, fmt.Errorf("build notification repository: %w", err)
	}
	if reg.runs, err = NewCheckoutRunRepository(provider); err != nil {
		return nil, fmt.Errorf("build checkout run repository: %w", err)
	}
	return reg, nil
}

func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }

func (r *Registry) Carts() repositories.CartRepository                   { return r.carts }
func (r *Registry) ShopItems() repositories.ShopItemRepository           { return r.shopItems }
func (r *Registry) BoardingPlaces() repositories.BoardingPlaceRepository { return r.places }
func (r *Registry) Orders() repositories.OrderRepository                 { return r.orders }
func (r *Registry) Bookings() repositories.BookingRepository             { return r.bookings }
func (r *Registry) Identities() repositories.IdentityDirectory           { return r.identities }
func (r *Registry) Notifications() repositories.NotificationRepository   { return r.notifications }
func (r *Registry) CheckoutRuns() repositories.CheckoutRunRepository     { return r.runs }
func (r *Registry) Health() repositories.HealthRepository                { return r.health }
