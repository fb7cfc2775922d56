package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/campusnest/api/internal/di"
	"github.com/campusnest/api/internal/domain"
	"github.com/campusnest/api/internal/handlers"
	"github.com/campusnest/api/internal/platform/auth"
	"github.com/campusnest/api/internal/platform/cache"
	"github.com/campusnest/api/internal/platform/config"
	"github.com/campusnest/api/internal/platform/events"
	pfirestore "github.com/campusnest/api/internal/platform/firestore"
	"github.com/campusnest/api/internal/platform/idempotency"
	"github.com/campusnest/api/internal/platform/observability"
	"github.com/campusnest/api/internal/platform/secrets"
	platformstorage "github.com/campusnest/api/internal/platform/storage"
	"github.com/campusnest/api/internal/repositories"
	firestoreRepo "github.com/campusnest/api/internal/repositories/firestore"
	"github.com/campusnest/api/internal/services"
)

const (
	adminVerificationAttempts = 5
	adminVerificationWindow   = 15 * time.Minute
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.Names()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)
	projectID := traceProjectID(cfg)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)

	roleCache, err := cache.Dial(ctx, cfg.Cache)
	if err != nil {
		// The resolver falls through to Firestore, so a missing cache only costs latency.
		logger.Warn("role cache disabled", zap.Error(err))
	}
	if roleCache != nil {
		defer func() {
			if err := roleCache.Close(); err != nil {
				logger.Warn("role cache close error", zap.Error(err))
			}
		}()
	}

	publisher, err := events.New(ctx, cfg.Events, projectID)
	if err != nil {
		logger.Fatal("failed to initialise event publisher", zap.Error(err))
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("event publisher close error", zap.Error(err))
		}
	}()

	archiver, err := platformstorage.DialReceiptArchiver(ctx, cfg.Storage.ReceiptsBucket)
	if err != nil {
		logger.Fatal("failed to initialise receipt archiver", zap.Error(err))
	}
	if archiver != nil {
		defer func() {
			if err := archiver.Close(); err != nil {
				logger.Warn("receipt archiver close error", zap.Error(err))
			}
		}()
	}

	healthRepo, err := newHealthRepository(firestoreProvider, fetcher, roleCache)
	if err != nil {
		logger.Warn("health: dependency checks disabled", zap.Error(err))
	}

	registry, err := firestoreRepo.NewRegistry(firestoreProvider, healthRepo)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	var adminSessions *auth.AdminSessions
	if secret := strings.TrimSpace(cfg.Security.AdminSessionSecret); secret != "" {
		adminSessions = auth.NewAdminSessions(secret, cfg.Security.AdminSessionTTL, time.Now)
	} else {
		logger.Warn("admin session secret not configured; admin routes will reject requests")
	}

	infra := di.Infrastructure{
		Publisher: publisher,
		Pipeline:  observability.NewPipeline(),
		Logger:    logger,
		Clock:     time.Now,
	}
	if roleCache != nil {
		infra.Cache = roleCache
	}
	if archiver != nil {
		infra.Archiver = archiver
	}
	if adminSessions != nil {
		infra.Sessions = adminSessions
	}

	container, err := di.NewContainer(ctx, cfg, registry, infra)
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()
	svc := container.Services

	idempotencyStore := idempotency.NewFirestoreStore(firestoreProvider)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	var cleanupTicker *time.Ticker
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupTicker = time.NewTicker(cfg.Idempotency.CleanupInterval)
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			cleanupLogger := logger.Named("idempotency")
			for {
				select {
				case <-cleanupTicker.C:
					runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
					removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
					cancel()
					if err != nil {
						cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
						continue
					}
					if removed > 0 {
						cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
					}
				case <-cleanupCtx.Done():
					return
				}
			}
		}()
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier)
	roleGuard := auth.NewRoleGuard(svc.Roles, adminSessions)
	oidcMiddleware := buildOIDCMiddleware(logger.Named("auth"), cfg)

	cartHandlers := handlers.NewCartHandlers(authenticator, svc.Cart,
		roleGuard.RequireRole(domain.RoleStudent),
		idempotencyMiddleware,
	)
	checkoutHandlers := handlers.NewCheckoutHandlers(authenticator, svc.Checkout,
		roleGuard.RequireRole(domain.RoleStudent),
	)
	orderHandlers := handlers.NewOrderHandlers(authenticator, roleGuard, svc.Orders)
	bookingHandlers := handlers.NewBookingHandlers(authenticator, roleGuard, svc.Bookings, svc.Checkout)
	sessionHandlers := handlers.NewSessionHandlers(authenticator, svc.Roles, svc.Admin,
		handlers.WithVerificationAttempts(adminVerificationAttempts, adminVerificationWindow, time.Now),
	)
	internalHandlers := handlers.NewInternalHandlers(svc.Reconciler,
		handlers.WithReconcileDefaults(defaultReconcileOptions(cfg)),
		handlers.WithIdempotencyCleaner(idempotencyStore),
	)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthRepository(healthRepo),
	)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(orderHandlers.PublicRoutes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithMeRoutes(orderHandlers.MeRoutes, bookingHandlers.MeRoutes),
		handlers.WithShopRoutes(orderHandlers.ShopRoutes),
		handlers.WithOwnerRoutes(bookingHandlers.OwnerRoutes),
		handlers.WithAdminRoutes(orderHandlers.AdminRoutes, bookingHandlers.AdminRoutes),
		handlers.WithSessionRoutes(sessionHandlers.Routes),
		handlers.WithInternalRoutes(internalHandlers.Routes),
	}
	if oidcMiddleware != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidcMiddleware))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("campusnest api listening", zap.String("version", buildInfo.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func defaultReconcileOptions(cfg config.Config) services.ReconcileOptions {
	return services.ReconcileOptions{
		StaleAfter: cfg.Checkout.RunStaleAfter,
		Compensate: cfg.Checkout.ReconcileCompensateByDefault,
	}
}

func newHealthRepository(provider *pfirestore.Provider, fetcher *secrets.Fetcher, roleCache *cache.RoleCache) (repositories.HealthRepository, error) {
	checks := make([]repositories.DependencyCheck, 0, 3)
	if provider != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				client, err := provider.Client(ctx)
				if err != nil {
					return err
				}
				_, err = client.Collections(ctx).Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		})
	}
	if fetcher != nil {
		const secretHealthReference = "secret://system/healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:     "secretManager",
			Timeout:  time.Second,
			Optional: true,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	if roleCache != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:     "redis",
			Timeout:  500 * time.Millisecond,
			Optional: true,
			Check:    roleCache.Ping,
		})
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	return repositories.NewDependencyHealthRepository(checks)
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	adapter := observability.NewPrintfAdapter(logger)
	jwks := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, auth.WithJWKSLogger(adapter))
	validator := auth.NewOIDCValidator(jwks, adapter)

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	return validator.RequireOIDC(audience, cfg.Security.OIDC.Issuers)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the secrets that must resolve outside local environments.
func requiredSecretNames(env map[string]string) []string {
	switch strings.ToLower(strings.TrimSpace(env["API_SECURITY_ENVIRONMENT"])) {
	case "", "local", "test":
		return nil
	}
	return []string{"Security.AdminSessionSecret", "Security.AdminVerificationCode"}
}
