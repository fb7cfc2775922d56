// Command opsctl runs maintenance tasks against the campusnest data store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/campusnest/api/internal/di"
	"github.com/campusnest/api/internal/fixtures"
	"github.com/campusnest/api/internal/platform/config"
	pfirestore "github.com/campusnest/api/internal/platform/firestore"
	"github.com/campusnest/api/internal/platform/idempotency"
	"github.com/campusnest/api/internal/platform/observability"
	"github.com/campusnest/api/internal/platform/secrets"
	firestoreRepo "github.com/campusnest/api/internal/repositories/firestore"
	"github.com/campusnest/api/internal/services"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "opsctl: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "opsctl",
		Usage: "campusnest maintenance commands",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "dotenv file with API_* settings"},
		},
		Commands: []*cli.Command{
			{
				Name:  "reconcile",
				Usage: "resume or compensate stale checkout runs",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "stale-after", Value: 10 * time.Minute, Usage: "only runs idle for at least this long"},
					&cli.IntFlag{Name: "limit", Value: 100, Usage: "maximum runs per pass"},
					&cli.BoolFlag{Name: "compensate", Usage: "roll runs back instead of resuming them"},
				},
				Action: runReconcile,
			},
			{
				Name:  "cleanup-idempotency",
				Usage: "delete expired idempotency keys",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 500, Usage: "maximum keys to delete"},
				},
				Action: runCleanup,
			},
			{
				Name:  "seed",
				Usage: "load shops, items, places and role records from a YAML file",
				Flags: []cli.Flag{
					&cli.PathFlag{Name: "file", Required: true, Usage: "fixtures YAML file"},
				},
				Action: runSeed,
			},
		},
	}
}

// env bundles what every command needs.
type env struct {
	cfg      config.Config
	logger   *zap.Logger
	provider *pfirestore.Provider
	close    func()
}

func bootstrap(c *cli.Context) (*env, error) {
	ctx := c.Context
	logger, err := observability.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	logger = logger.Named("opsctl")

	fetcher, err := secrets.NewFetcher(ctx, secrets.WithLogger(logger.Named("secrets")))
	if err != nil {
		return nil, fmt.Errorf("secret fetcher: %w", err)
	}
	cfg, err := config.Load(ctx,
		config.WithEnvFile(c.String("env-file")),
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
	)
	if err != nil {
		_ = fetcher.Close()
		return nil, fmt.Errorf("config: %w", err)
	}

	provider := pfirestore.NewProvider(cfg.Firestore)
	return &env{
		cfg:      cfg,
		logger:   logger,
		provider: provider,
		close: func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = provider.Close(closeCtx)
			_ = fetcher.Close()
			_ = logger.Sync()
		},
	}, nil
}

func runReconcile(c *cli.Context) error {
	e, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer e.close()

	registry, err := firestoreRepo.NewRegistry(e.provider, nil)
	if err != nil {
		return err
	}
	// Post-commit side effects are not replayed from the CLI, so no publisher is wired.
	container, err := di.NewContainer(c.Context, e.cfg, registry, di.Infrastructure{Logger: e.logger})
	if err != nil {
		return err
	}

	report, err := container.Services.Reconciler.Reconcile(c.Context, services.ReconcileOptions{
		StaleAfter: c.Duration("stale-after"),
		Limit:      c.Int("limit"),
		Compensate: c.Bool("compensate"),
	})
	if err != nil {
		return err
	}
	for _, o := range report.Outcomes {
		line := fmt.Sprintf("%s\t%s\t%s\t%s", o.RunID, o.Kind, o.Action, o.Status)
		if o.Error != "" {
			line += "\t" + o.Error
		}
		fmt.Fprintln(c.App.Writer, line)
	}
	fmt.Fprintf(c.App.Writer, "scanned=%d resumed=%d compensated=%d failed=%d\n",
		report.Scanned, report.Resumed, report.Compensated, report.Failed)
	if report.Failed > 0 {
		return cli.Exit("some runs could not be reconciled", 2)
	}
	return nil
}

func runCleanup(c *cli.Context) error {
	e, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer e.close()

	removed, err := idempotency.NewFirestoreStore(e.provider).CleanupExpired(c.Context, time.Now().UTC(), c.Int("limit"))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "removed=%d\n", removed)
	return nil
}

func runSeed(c *cli.Context) error {
	f, err := os.Open(c.Path("file"))
	if err != nil {
		return err
	}
	defer f.Close()
	file, err := fixtures.Decode(f)
	if err != nil {
		return err
	}

	e, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer e.close()
	if e.cfg.Firestore.EmulatorHost == "" && e.cfg.Security.Environment != "local" {
		return cli.Exit("seed only runs against the emulator or a local environment", 1)
	}

	registry, err := firestoreRepo.NewRegistry(e.provider, nil)
	if err != nil {
		return err
	}
	summary, err := fixtures.Apply(c.Context, registry, file, time.Now().UTC())
	if err != nil {
		return err
	}
	e.logger.Info("seed applied",
		zap.Int("principals", summary.Principals),
		zap.Int("items", summary.Items),
		zap.Int("places", summary.Places))
	fmt.Fprintf(c.App.Writer, "principals=%d items=%d places=%d\n", summary.Principals, summary.Items, summary.Places)
	return nil
}
