package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/campusnest/api/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	basePath    string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	orders   []RouteRegistrar
	cart     []RouteRegistrar
	checkout []RouteRegistrar
	me       []RouteRegistrar
	shop     []RouteRegistrar
	owner    []RouteRegistrar
	admin    []RouteRegistrar
	session  []RouteRegistrar
	internal []RouteRegistrar

	internalMiddlewares []func(http.Handler) http.Handler
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix  = "/api/v1"
	defaultTimeout    = 60 * time.Second
	errorNotFoundCode = "route_not_found"
)

// NewRouter constructs the chi router with shared middleware and the expected route groups.
// Groups without a registrar answer 501.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()

	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(cfg.basePath, func(api chi.Router) {
		mount := func(path string, registrars []RouteRegistrar, name string, groupMW []func(http.Handler) http.Handler) {
			api.Route(path, func(group chi.Router) {
				for _, mw := range groupMW {
					if mw != nil {
						group.Use(mw)
					}
				}
				if len(registrars) == 0 {
					registerNotImplemented(group, name)
					return
				}
				for _, registrar := range registrars {
					if registrar != nil {
						registrar(group)
					}
				}
			})
		}

		mount("/orders", cfg.orders, "orders", nil)
		mount("/cart", cfg.cart, "cart", nil)
		mount("/checkout", cfg.checkout, "checkout", nil)
		mount("/me", cfg.me, "me", nil)
		mount("/shop", cfg.shop, "shop", nil)
		mount("/owner", cfg.owner, "owner", nil)
		mount("/admin", cfg.admin, "admin", nil)
		mount("/session", cfg.session, "session", nil)
		mount("/internal", cfg.internal, "internal", cfg.internalMiddlewares)
	})

	return r
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz endpoints.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithOrderRoutes adds registrars for the public /orders endpoints.
func WithOrderRoutes(reg ...RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.orders = append(cfg.orders, reg...)
	}
}

// WithCartRoutes adds registrars for the /cart endpoints.
func WithCartRoutes(reg ...RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.cart = append(cfg.cart, reg...)
	}
}

// WithCheckoutRoutes adds registrars for the /checkout endpoints.
func WithCheckoutRoutes(reg ...RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.checkout = append(cfg.checkout, reg...)
	}
}

// WithMeRoutes adds registrars for user scoped endpoints.
func WithMeRoutes(reg ...RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.me = append(cfg.me, reg...)
	}
}

// WithShopRoutes adds registrars for shop owner endpoints.
func WithShopRoutes(reg ...RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.shop = append(cfg.shop, reg...)
	}
}

// WithOwnerRoutes adds registrars for boarding owner endpoints.
func WithOwnerRoutes(reg ...RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.owner = append(cfg.owner, reg...)
	}
}

// WithAdminRoutes adds registrars for admin endpoints.
func WithAdminRoutes(reg ...RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.admin = append(cfg.admin, reg...)
	}
}

// WithSessionRoutes adds registrars for the /session endpoints.
func WithSessionRoutes(reg ...RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.session = append(cfg.session, reg...)
	}
}

// WithInternalRoutes adds registrars for internal endpoints.
func WithInternalRoutes(reg ...RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.internal = append(cfg.internal, reg...)
	}
}

// WithInternalMiddlewares configures middlewares applied to the /internal group.
func WithInternalMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.internalMiddlewares = append(cfg.internalMiddlewares, mw...)
	}
}

func registerNotImplemented(r chi.Router, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
	}
	r.HandleFunc("/*", handler)
	r.HandleFunc("/", handler)
	r.NotFound(handler)
	r.MethodNotAllowed(handler)
}
