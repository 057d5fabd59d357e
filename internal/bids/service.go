package bids

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tunetide/tunetide-backend/internal/escrow"
	"github.com/tunetide/tunetide-backend/internal/ledger"
	"github.com/tunetide/tunetide-backend/internal/media"
	"github.com/tunetide/tunetide-backend/internal/users"
	"github.com/tunetide/tunetide-backend/pkg/db"
	"github.com/tunetide/tunetide-backend/pkg/db/models"
	"github.com/tunetide/tunetide-backend/pkg/enums"
	pkgerrors "github.com/tunetide/tunetide-backend/pkg/errors"
	"github.com/tunetide/tunetide-backend/pkg/logger"
	platform "github.com/tunetide/tunetide-backend/pkg/metrics"
)

// PlaceBidInput carries a new tip.
type PlaceBidInput struct {
	ActorID     uuid.UUID
	MediaID     uuid.UUID
	PartyID     uuid.UUID
	AmountPence int64
}

// PlaceBidResult reports the created bid plus the reward and escrow split it
// produced.
type PlaceBidResult struct {
	Bid       *models.Bid
	TuneBytes float64
	Breakdown escrow.Breakdown
}

// MetricsEngine is the slice of internal/metrics.Engine the bid write path
// calls; declared here because importing that package back would form an
// import cycle (internal/metrics already depends on this package).
type MetricsEngine interface {
	UpdateForBidChange(ctx context.Context, tx *gorm.DB, bid *models.Bid, deltaPence int64) error
}

// BidReward is one bid's recomputed discovery reward. It is declared here,
// below internal/rewards in the import graph, so RewardsEngine can name it
// without importing that package back; internal/rewards aliases it as
// rewards.BidReward.
type BidReward struct {
	BidID     uuid.UUID
	ActorID   uuid.UUID
	Rank      int64
	TuneBytes float64
}

// RewardsEngine is the slice of internal/rewards.Engine the bid write path
// calls; declared here because importing that package back would form an
// import cycle (internal/rewards already depends on this package).
type RewardsEngine interface {
	AwardForBid(ctx context.Context, tx *gorm.DB, bid *models.Bid) (float64, error)
	RecomputeForMedia(ctx context.Context, tx *gorm.DB, mediaID uuid.UUID) ([]BidReward, error)
}

// Service runs the bid write path: debit, bid row, stat propagation, escrow
// split, and discovery reward all commit or roll back as one unit.
type Service struct {
	repo     Repository
	users    users.Repository
	media    media.Repository
	metrics  MetricsEngine
	rewards  RewardsEngine
	escrow   *escrow.Allocator
	ledger   *ledger.Service
	tx       db.TxRunner
	logg     *logger.Logger
	platform *platform.PlatformMetrics
}

// ServiceParams collects the service's dependencies.
type ServiceParams struct {
	Repo     Repository
	Users    users.Repository
	Media    media.Repository
	Metrics  MetricsEngine
	Rewards  RewardsEngine
	Escrow   *escrow.Allocator
	Ledger   *ledger.Service
	TxRunner db.TxRunner
	Logger   *logger.Logger
	Platform *platform.PlatformMetrics
}

// NewService validates params and builds the service.
func NewService(p ServiceParams) (*Service, error) {
	if p.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "bid service requires a repository")
	}
	if p.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "bid service requires a user repository")
	}
	if p.Media == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "bid service requires a media repository")
	}
	if p.Metrics == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "bid service requires the metrics engine")
	}
	if p.Rewards == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "bid service requires the reward engine")
	}
	if p.Escrow == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "bid service requires the escrow allocator")
	}
	if p.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "bid service requires the ledger service")
	}
	if p.TxRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "bid service requires a transaction runner")
	}
	return &Service{
		repo:     p.Repo,
		users:    p.Users,
		media:    p.Media,
		metrics:  p.Metrics,
		rewards:  p.Rewards,
		escrow:   p.Escrow,
		ledger:   p.Ledger,
		tx:       p.TxRunner,
		logg:     p.Logger,
		platform: p.Platform,
	}, nil
}

// PlaceBid debits the actor and creates an active bid, then propagates the
// write through stored metrics, the escrow split, the discovery rewards, and
// a TIP ledger entry, all inside one transaction.
func (s *Service) PlaceBid(ctx context.Context, input PlaceBidInput) (*PlaceBidResult, error) {
	if err := validatePlaceBid(input); err != nil {
		s.platform.IncBidWrite("place", "invalid")
		return nil, err
	}

	var result PlaceBidResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		usersRepo := s.users.WithTx(tx)
		mediaRepo := s.media.WithTx(tx)

		actor, err := usersRepo.FindByIDForUpdate(ctx, input.ActorID)
		if err != nil {
			return notFoundOr(err, "actor not found")
		}
		targetMedia, err := mediaRepo.FindByIDWithOwners(ctx, input.MediaID)
		if err != nil {
			return notFoundOr(err, "media not found")
		}

		// Pre-write snapshots for the ledger entry.
		actorID := input.ActorID
		mediaID := input.MediaID
		userAggPre, err := repo.SumCounted(ctx, Scope{ActorID: &actorID, MediaID: &mediaID})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "snapshotting user aggregate")
		}
		globalAggPre, err := mediaRepo.GlobalAggregate(ctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "snapshotting global aggregate")
		}

		debited, err := usersRepo.DebitBalance(ctx, input.ActorID, input.AmountPence)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeAtomicity, err, "debiting balance")
		}
		if !debited {
			return pkgerrors.New(pkgerrors.CodeConflict, "insufficient balance")
		}

		bid := &models.Bid{
			ActorID:     input.ActorID,
			MediaID:     input.MediaID,
			PartyID:     input.PartyID,
			AmountPence: input.AmountPence,
			Status:      enums.BidStatusActive,
		}
		if err := repo.Create(ctx, bid); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeAtomicity, err, "creating bid")
		}

		if err := s.metrics.UpdateForBidChange(ctx, tx, bid, input.AmountPence); err != nil {
			return err
		}
		breakdown, err := s.escrow.AllocateForBid(ctx, tx, bid, targetMedia)
		if err != nil {
			return err
		}
		tuneBytes, err := s.rewards.AwardForBid(ctx, tx, bid)
		if err != nil {
			return err
		}

		metadata, _ := json.Marshal(map[string]any{
			"party_id":       input.PartyID.String(),
			"platform_pence": breakdown.PlatformPence,
		})
		bidID := bid.ID
		entry := models.LedgerEntry{
			UserID:                   input.ActorID,
			Type:                     enums.TransactionTypeTip,
			AmountPence:              input.AmountPence,
			UserBalancePrePence:      actor.BalancePence,
			UserBalancePostPence:     actor.BalancePence - input.AmountPence,
			UserAggregatePrePence:    userAggPre,
			UserAggregatePostPence:   userAggPre + input.AmountPence,
			MediaAggregatePrePence:   targetMedia.GlobalAggregatePence,
			MediaAggregatePostPence:  targetMedia.GlobalAggregatePence + input.AmountPence,
			GlobalAggregatePrePence:  globalAggPre,
			GlobalAggregatePostPence: globalAggPre + input.AmountPence,
			BidID:                    &bidID,
			MediaID:                  &mediaID,
			Metadata:                 metadata,
		}
		if err := s.ledger.RecordEntry(ctx, tx, &entry); err != nil {
			return err
		}

		result = PlaceBidResult{Bid: bid, TuneBytes: tuneBytes, Breakdown: breakdown}
		return nil
	})
	if err != nil {
		s.platform.IncBidWrite("place", "error")
		return nil, err
	}
	s.platform.IncBidWrite("place", "ok")

	if s.logg != nil {
		logCtx := s.logg.WithBidID(ctx, result.Bid.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"amount_pence": input.AmountPence,
			"tune_bytes":   result.TuneBytes,
		})
		s.logg.Info(logCtx, "bid placed")
	}
	return &result, nil
}

// TransitionStatus moves a bid forward through its lifecycle. Leaving the
// counted set pulls the amount back out of every stored stat; entering
// refunded additionally re-credits the actor and records the reversal.
func (s *Service) TransitionStatus(ctx context.Context, bidID uuid.UUID, next enums.BidStatus) (*models.Bid, error) {
	if !next.IsValid() {
		s.platform.IncBidWrite("transition", "invalid")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown bid status")
	}

	var updated *models.Bid
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		usersRepo := s.users.WithTx(tx)

		bid, err := repo.FindByID(ctx, bidID)
		if err != nil {
			return notFoundOr(err, "bid not found")
		}
		if !bid.Status.CanTransitionTo(next) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "bid status may only move forward").
				WithDetails(map[string]string{"from": bid.Status.String(), "to": next.String()})
		}

		var delta int64
		switch {
		case bid.Status.IsCounted() && !next.IsCounted():
			delta = -bid.AmountPence
		case !bid.Status.IsCounted() && next.IsCounted():
			delta = bid.AmountPence
		}

		if err := repo.UpdateStatus(ctx, bidID, next); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeAtomicity, err, "updating bid status")
		}
		bid.Status = next

		if err := s.metrics.UpdateForBidChange(ctx, tx, bid, delta); err != nil {
			return err
		}
		// The counted history changed shape, so every reward on the media is
		// replayed.
		if delta != 0 {
			if _, err := s.rewards.RecomputeForMedia(ctx, tx, bid.MediaID); err != nil {
				return err
			}
		}

		if next == enums.BidStatusRefunded {
			if err := s.refund(ctx, tx, usersRepo, bid); err != nil {
				return err
			}
		}

		updated = bid
		return nil
	})
	if err != nil {
		s.platform.IncBidWrite("transition", "error")
		return nil, err
	}
	s.platform.IncBidWrite("transition", "ok")

	if s.logg != nil {
		logCtx := s.logg.WithBidID(ctx, bidID.String())
		logCtx = s.logg.WithField(logCtx, "status", next.String())
		s.logg.Info(logCtx, "bid status updated")
	}
	return updated, nil
}

// GetBid returns one bid row.
func (s *Service) GetBid(ctx context.Context, bidID uuid.UUID) (*models.Bid, error) {
	bid, err := s.repo.FindByID(ctx, bidID)
	if err != nil {
		return nil, notFoundOr(err, "bid not found")
	}
	return bid, nil
}

// refund returns the full bid amount to the actor with an audit entry. The
// escrow shares already distributed are not clawed back.
func (s *Service) refund(ctx context.Context, tx *gorm.DB, usersRepo users.Repository, bid *models.Bid) error {
	actor, err := usersRepo.FindByIDForUpdate(ctx, bid.ActorID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeAtomicity, err, "loading actor for refund")
	}
	if err := usersRepo.CreditBalance(ctx, bid.ActorID, bid.AmountPence); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeAtomicity, err, "re-crediting refund")
	}

	metadata, _ := json.Marshal(map[string]any{"source": "bid_refund"})
	bidID := bid.ID
	mediaID := bid.MediaID
	entry := models.LedgerEntry{
		UserID:               bid.ActorID,
		Type:                 enums.TransactionTypeTopUp,
		AmountPence:          bid.AmountPence,
		UserBalancePrePence:  actor.BalancePence,
		UserBalancePostPence: actor.BalancePence + bid.AmountPence,
		BidID:                &bidID,
		MediaID:              &mediaID,
		Metadata:             metadata,
	}
	return s.ledger.RecordEntry(ctx, tx, &entry)
}

func validatePlaceBid(input PlaceBidInput) error {
	if input.ActorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "actor id is required")
	}
	if input.MediaID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "media id is required")
	}
	if input.PartyID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "party id is required")
	}
	if input.AmountPence <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be a positive integer in pence")
	}
	return nil
}

func notFoundOr(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, message)
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, message)
}
