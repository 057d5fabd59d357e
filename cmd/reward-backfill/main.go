package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/tunetide/tunetide-backend/internal/bids"
	"github.com/tunetide/tunetide-backend/internal/media"
	"github.com/tunetide/tunetide-backend/internal/metrics"
	"github.com/tunetide/tunetide-backend/internal/parties"
	"github.com/tunetide/tunetide-backend/internal/rewards"
	"github.com/tunetide/tunetide-backend/internal/users"
	"github.com/tunetide/tunetide-backend/pkg/config"
	"github.com/tunetide/tunetide-backend/pkg/db"
	"github.com/tunetide/tunetide-backend/pkg/logger"
	"github.com/tunetide/tunetide-backend/pkg/outbox"
)

// reward-backfill deterministically replays every media's counted bid
// history, rewriting tune-byte rewards and the stored metric columns. Run it
// after a reward formula change or to repair drift.
func main() {
	logg := logger.New(logger.Options{ServiceName: "reward-backfill"})

	_ = godotenv.Load()

	mediaFlag := flag.String("media", "", "restrict the backfill to one media id")
	dryRun := flag.Bool("dry-run", false, "compute and report without persisting")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "reward-backfill",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	gormDB := dbClient.DB()
	bidsRepo := bids.NewRepository(gormDB)
	usersRepo := users.NewRepository(gormDB)
	mediaRepo := media.NewRepository(gormDB)
	partiesRepo := parties.NewRepository(gormDB)

	rewardEngine, err := rewards.NewEngine(rewards.EngineParams{
		Bids:   bidsRepo,
		Users:  usersRepo,
		Outbox: outbox.NewService(outbox.NewRepository(gormDB), logg),
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reward engine", err)
		os.Exit(1)
	}

	metricsEngine, err := metrics.NewEngine(metrics.EngineParams{
		Bids:    bidsRepo,
		Media:   mediaRepo,
		Parties: partiesRepo,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create metrics engine", err)
		os.Exit(1)
	}

	ctx := logg.WithField(context.Background(), "env", cfg.App.Env)

	mediaIDs, err := targetMedia(ctx, mediaRepo, *mediaFlag)
	if err != nil {
		logg.Error(ctx, "failed to resolve media set", err)
		os.Exit(1)
	}
	logg.Info(logg.WithField(ctx, "media_count", len(mediaIDs)), "reward backfill starting")

	for _, mediaID := range mediaIDs {
		mediaCtx := logg.WithMediaID(ctx, mediaID.String())

		if *dryRun {
			target := mediaID
			history, err := bidsRepo.ListCountedChronological(ctx, bids.Scope{MediaID: &target})
			if err != nil {
				logg.Error(mediaCtx, "failed to load bid history", err)
				os.Exit(1)
			}
			for _, reward := range rewards.ComputeRewards(history) {
				fmt.Printf("%s\t%s\t%.6f\n", mediaID, reward.BidID, reward.TuneBytes)
			}
			continue
		}

		err := dbClient.WithTx(ctx, func(tx *gorm.DB) error {
			_, err := rewardEngine.RecomputeForMedia(ctx, tx, mediaID)
			return err
		})
		if err != nil {
			logg.Error(mediaCtx, "reward recompute failed", err)
			os.Exit(1)
		}
		if err := metricsEngine.RecomputeMediaMetrics(ctx, mediaID); err != nil {
			logg.Error(mediaCtx, "metric recompute failed", err)
			os.Exit(1)
		}
		logg.Info(mediaCtx, "media backfilled")
	}

	logg.Info(ctx, "reward backfill complete")
}

func targetMedia(ctx context.Context, repo media.Repository, raw string) ([]uuid.UUID, error) {
	if raw == "" {
		return repo.ListIDs(ctx)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing -media: %w", err)
	}
	return []uuid.UUID{id}, nil
}
