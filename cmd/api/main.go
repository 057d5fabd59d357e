package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tunetide/tunetide-backend/api/routes"
	"github.com/tunetide/tunetide-backend/internal/bids"
	"github.com/tunetide/tunetide-backend/internal/escrow"
	"github.com/tunetide/tunetide-backend/internal/ledger"
	"github.com/tunetide/tunetide-backend/internal/media"
	"github.com/tunetide/tunetide-backend/internal/metrics"
	"github.com/tunetide/tunetide-backend/internal/parties"
	"github.com/tunetide/tunetide-backend/internal/rewards"
	"github.com/tunetide/tunetide-backend/internal/users"
	"github.com/tunetide/tunetide-backend/internal/wallet"
	stripewebhook "github.com/tunetide/tunetide-backend/internal/webhooks/stripe"
	"github.com/tunetide/tunetide-backend/pkg/config"
	"github.com/tunetide/tunetide-backend/pkg/db"
	"github.com/tunetide/tunetide-backend/pkg/logger"
	platformmetrics "github.com/tunetide/tunetide-backend/pkg/metrics"
	"github.com/tunetide/tunetide-backend/pkg/migrate"
	"github.com/tunetide/tunetide-backend/pkg/outbox"
	"github.com/tunetide/tunetide-backend/pkg/redis"
	"github.com/tunetide/tunetide-backend/pkg/stripe"
)

const webhookGuardTTL = 24 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	platform := platformmetrics.NewPlatformMetrics(registry)

	gormDB := dbClient.DB()
	usersRepo := users.NewRepository(gormDB)
	mediaRepo := media.NewRepository(gormDB)
	partiesRepo := parties.NewRepository(gormDB)
	bidsRepo := bids.NewRepository(gormDB)
	walletRepo := wallet.NewRepository(gormDB)
	ledgerRepo := ledger.NewRepository(gormDB)
	escrowRepo := escrow.NewRepository(gormDB)
	outboxSvc := outbox.NewService(outbox.NewRepository(gormDB), logg)

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{Repo: ledgerRepo, Logger: logg})
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	metricsEngine, err := metrics.NewEngine(metrics.EngineParams{
		Bids:     bidsRepo,
		Media:    mediaRepo,
		Parties:  partiesRepo,
		Cache:    metrics.NewCache(cfg.Metrics.CacheTTL),
		Logger:   logg,
		Platform: platform,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create metrics engine", err)
		os.Exit(1)
	}

	rewardEngine, err := rewards.NewEngine(rewards.EngineParams{
		Bids:   bidsRepo,
		Users:  usersRepo,
		Outbox: outboxSvc,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reward engine", err)
		os.Exit(1)
	}

	allocator, err := escrow.NewAllocator(escrow.AllocatorParams{
		Repo:                 escrowRepo,
		Users:                usersRepo,
		Ledger:               ledgerSvc,
		TxRunner:             dbClient,
		Outbox:               outboxSvc,
		Logger:               logg,
		PlatformSharePercent: cfg.Escrow.PlatformSharePercent,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create escrow allocator", err)
		os.Exit(1)
	}

	bidService, err := bids.NewService(bids.ServiceParams{
		Repo:     bidsRepo,
		Users:    usersRepo,
		Media:    mediaRepo,
		Metrics:  metricsEngine,
		Rewards:  rewardEngine,
		Escrow:   allocator,
		Ledger:   ledgerSvc,
		TxRunner: dbClient,
		Logger:   logg,
		Platform: platform,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create bid service", err)
		os.Exit(1)
	}

	settlement, err := wallet.NewStripeSettlementResolver(stripeClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement resolver", err)
		os.Exit(1)
	}

	processor, err := wallet.NewProcessor(wallet.ProcessorParams{
		Repo:       walletRepo,
		Users:      usersRepo,
		Media:      mediaRepo,
		Ledger:     ledgerSvc,
		Settlement: settlement,
		TxRunner:   dbClient,
		Outbox:     outboxSvc,
		Logger:     logg,
		Platform:   platform,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create top-up processor", err)
		os.Exit(1)
	}

	webhookSvc, err := stripewebhook.NewService(processor)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}
	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, webhookGuardTTL, "stripe-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:             cfg,
			Logger:             logg,
			Pingers:            []db.Pinger{dbClient, redisClient},
			BidService:         bidService,
			MetricsEngine:      metricsEngine,
			Allocator:          allocator,
			Users:              usersRepo,
			Wallet:             walletRepo,
			Ledger:             ledgerSvc,
			StripeClient:       stripeClient,
			StripeWebhookSvc:   webhookSvc,
			StripeWebhookGuard: webhookGuard,
			PrometheusGatherer: registry,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
