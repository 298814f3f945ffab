package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	billingmod "github.com/dmitrymomot/essayauditor/modules/billing"
	"github.com/dmitrymomot/essayauditor/pkg/billing"
	"github.com/dmitrymomot/essayauditor/pkg/config"
	"github.com/dmitrymomot/essayauditor/pkg/httpserver"
	"github.com/dmitrymomot/essayauditor/pkg/logger"
	"github.com/dmitrymomot/essayauditor/pkg/pg"
	"github.com/dmitrymomot/essayauditor/pkg/quota"
	"github.com/dmitrymomot/essayauditor/pkg/redis"
)

type appConfig struct {
	// BillingMode selects the provider implementation explicitly: "paddle"
	// delegates to the hosted provider, "offline" applies transitions
	// directly for environments without one.
	BillingMode string `env:"BILLING_MODE" envDefault:"paddle"`

	PriceCatalogPath   string `env:"PRICE_CATALOG_PATH"`
	CustomerHookSecret string `env:"CUSTOMER_WEBHOOK_SECRET"`
	ReplayLedger       bool   `env:"WEBHOOK_REPLAY_LEDGER" envDefault:"false"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

func main() {
	ctx := context.Background()

	var appCfg appConfig
	config.MustLoad(&appCfg)

	log := logger.New(
		logger.WithLevel(parseLevel(appCfg.LogLevel)),
		logger.WithFormat(logger.Format(appCfg.LogFormat)),
		logger.WithService("essayauditor"),
	)
	logger.SetAsDefault(log)

	if err := run(ctx, appCfg, log); err != nil {
		log.ErrorContext(ctx, "server exited with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, appCfg appConfig, log *slog.Logger) error {
	var pgCfg pg.Config
	config.MustLoad(&pgCfg)

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, pgCfg); err != nil {
		return err
	}

	store := quota.NewPostgresStore(pool)

	catalog := quota.DefaultCatalog()
	if appCfg.PriceCatalogPath != "" {
		catalog, err = quota.LoadCatalog(appCfg.PriceCatalogPath)
		if err != nil {
			return err
		}
	}

	healthchecks := map[string]httpserver.HealthCheckFunc{
		"postgres": pg.Healthcheck(pool),
	}

	var (
		provider   billing.Provider
		reconciler *billing.Reconciler
	)
	switch appCfg.BillingMode {
	case "offline":
		// No webhook will ever arrive in offline mode; the provider applies
		// the transition itself and the webhook endpoint stays unconfigured.
		provider = billing.NewOfflineProvider(store, catalog, billing.WithOfflineLogger(log))
		log.InfoContext(ctx, "billing provider: offline")
	default:
		var paddleCfg billing.PaddleConfig
		config.MustLoad(&paddleCfg)

		paddleProvider, err := billing.NewPaddleProvider(paddleCfg)
		if err != nil {
			return err
		}
		provider = paddleProvider

		opts := []billing.ReconcilerOption{billing.WithLogger(log)}
		if appCfg.ReplayLedger {
			var redisCfg redis.Config
			config.MustLoad(&redisCfg)

			redisClient, err := redis.Connect(ctx, redisCfg)
			if err != nil {
				return err
			}
			defer func() { _ = redisClient.Close() }()

			opts = append(opts, billing.WithReplayLedger(billing.NewReplayLedger(redisClient)))
			healthchecks["redis"] = redis.Healthcheck(redisClient)
		}
		reconciler = billing.NewReconciler(store, catalog, paddleProvider.Verifier(), opts...)
		log.InfoContext(ctx, "billing provider: paddle")
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Get("/health", httpserver.Healthcheck(healthchecks))
	router.Mount("/billing", billingmod.Router(billingmod.RouterOptions{
		Subscription: billingmod.NewSubscriptionService(provider, log),
		Quota:        billingmod.NewQuotaService(store, log),
		Webhook:      billingmod.NewWebhookService(reconciler, store, appCfg.CustomerHookSecret, log),
	}))

	var httpCfg httpserver.Config
	config.MustLoad(&httpCfg)

	srv := httpserver.New(httpCfg, log)
	return srv.Run(ctx, router)
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
