package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/campusnest/api/internal/platform/config"
	"github.com/campusnest/api/internal/platform/observability"
	"github.com/campusnest/api/internal/repositories"
	"github.com/campusnest/api/internal/services"
)

// Infrastructure carries the optional collaborators of the service layer. Leave a field nil
// to disable it; never assign a typed nil pointer.
type Infrastructure struct {
	Publisher services.EventPublisher
	Cache     services.PrincipalCache
	Archiver  services.ReceiptArchiver
	Sessions  services.AdminSessionIssuer
	Pipeline  services.StageRecorder
	Logger    *zap.Logger
	Clock     func() time.Time
}

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Roles      services.RoleResolver
	Admin      services.AdminVerifier
	Cart       services.CartService
	Checkout   services.CheckoutService
	Orders     services.OrderService
	Bookings   services.BookingService
	Reconciler services.Reconciler
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, reg, cfg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases the repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, infra Infrastructure) (Services, error) {
	var svc Services

	logger := infra.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := infra.Clock
	if clock == nil {
		clock = time.Now
	}
	events := func(name string) func(context.Context, string, map[string]any) {
		return observability.EventLogger(logger, name)
	}

	roles, err := services.NewRoleResolver(services.RoleResolverDeps{
		Directory: reg.Identities(),
		Cache:     infra.Cache,
		Logger:    events("roles"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build role resolver: %w", err)
	}
	svc.Roles = roles

	admin, err := services.NewAdminVerifier(services.AdminVerifierDeps{
		Roles:    roles,
		Sessions: infra.Sessions,
		Code:     cfg.Security.AdminVerificationCode,
		Logger:   events("admin"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build admin verifier: %w", err)
	}
	svc.Admin = admin

	cart, err := services.NewCartService(services.CartServiceDeps{
		Carts:  reg.Carts(),
		Items:  reg.ShopItems(),
		Clock:  clock,
		Logger: events("cart"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cart

	receipts, err := services.NewReceiptGenerator(cfg.Checkout.Currency, infra.Archiver, events("receipts"))
	if err != nil {
		return Services{}, fmt.Errorf("build receipt generator: %w", err)
	}

	fee, err := decimal.NewFromString(strings.TrimSpace(cfg.Checkout.DeliveryFee))
	if err != nil {
		return Services{}, fmt.Errorf("parse delivery fee: %w", err)
	}
	assembler := services.NewAssembler(services.AssemblerConfig{
		DeliveryFee:   fee,
		OrderPrefix:   cfg.Checkout.OrderNumberPrefix,
		BookingPrefix: cfg.Checkout.BookingNumberPrefix,
	})

	inventory, err := services.NewInventoryAdjuster(services.InventoryAdjusterDeps{
		Items:              reg.ShopItems(),
		Places:             reg.BoardingPlaces(),
		EnforceNonNegative: cfg.Checkout.EnforceNonNegativeStock,
		Clock:              clock,
		Logger:             events("inventory"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory adjuster: %w", err)
	}

	dispatcher := services.NewNotificationDispatcher(services.NotificationDispatcherDeps{
		Notifications: reg.Notifications(),
		Publisher:     infra.Publisher,
		Clock:         clock,
		Logger:        events("notifications"),
	})

	checkoutLogger := events("checkout")
	checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:                       reg.Carts(),
		Places:                      reg.BoardingPlaces(),
		Orders:                      reg.Orders(),
		Bookings:                    reg.Bookings(),
		Runs:                        reg.CheckoutRuns(),
		Enricher:                    services.NewDetailEnricher(reg.Identities(), checkoutLogger),
		Assembler:                   assembler,
		Inventory:                   inventory,
		Reclaimer:                   services.NewCartReclaimer(reg.Carts(), checkoutLogger),
		Receipts:                    receipts,
		Dispatcher:                  dispatcher,
		Pipeline:                    infra.Pipeline,
		ReleaseAvailabilityOnCancel: cfg.Checkout.ReleaseAvailabilityOnCancel,
		RunStaleAfter:               cfg.Checkout.RunStaleAfter,
		AfterCommitTimeout:          cfg.Checkout.AfterCommitTimeout,
		Clock:                       clock,
		Logger:                      checkoutLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkout

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Receipts:   receipts,
		Dispatcher: dispatcher,
		Clock:      clock,
		Logger:     events("orders"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orders

	bookings, err := services.NewBookingService(services.BookingServiceDeps{
		Bookings: reg.Bookings(),
		Receipts: receipts,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build booking service: %w", err)
	}
	svc.Bookings = bookings

	reconciler, err := services.NewReconciler(services.ReconcilerDeps{
		Runs:       reg.CheckoutRuns(),
		Checkout:   checkout,
		StaleAfter: cfg.Checkout.RunStaleAfter,
		Compensate: cfg.Checkout.ReconcileCompensateByDefault,
		Clock:      clock,
		Logger:     events("reconcile"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build reconciler: %w", err)
	}
	svc.Reconciler = reconciler

	return svc, nil
}
