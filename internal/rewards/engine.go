package rewards

import (
	"context"
	"math"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tunetide/tunetide-backend/internal/bids"
	"github.com/tunetide/tunetide-backend/internal/users"
	"github.com/tunetide/tunetide-backend/pkg/db/models"
	"github.com/tunetide/tunetide-backend/pkg/enums"
	pkgerrors "github.com/tunetide/tunetide-backend/pkg/errors"
	"github.com/tunetide/tunetide-backend/pkg/logger"
	"github.com/tunetide/tunetide-backend/pkg/outbox"
	"github.com/tunetide/tunetide-backend/pkg/outbox/payloads"
)

// BidReward is one bid's recomputed discovery reward. Aliased from
// internal/bids so the bid service can name this engine's method signatures
// without importing this package back (which would form an import cycle).
type BidReward = bids.BidReward

// Engine computes discovery rewards. A bid's reward grows with the money
// that arrives on the media after it, weighted by the cube root of the bid's
// own amount and an early-discovery bonus that decays with rank. Computation
// is a pure function of the ordered counted bid history, so replaying the
// same history always yields the same rewards.
type Engine struct {
	bids  bids.Repository
	users users.Repository
	box   *outbox.Service
	logg  *logger.Logger
}

// EngineParams collects the engine's dependencies.
type EngineParams struct {
	Bids   bids.Repository
	Users  users.Repository
	Outbox *outbox.Service
	Logger *logger.Logger
}

// NewEngine validates params and builds the engine.
func NewEngine(p EngineParams) (*Engine, error) {
	if p.Bids == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reward engine requires a bid repository")
	}
	if p.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reward engine requires a user repository")
	}
	return &Engine{
		bids:  p.Bids,
		users: p.Users,
		box:   p.Outbox,
		logg:  p.Logger,
	}, nil
}

// DiscoveryBonus is the early-discovery multiplier for a 1-based rank. Rank
// one earns roughly 1.905 and the bonus decays smoothly toward 1.0.
func DiscoveryBonus(rank int64) float64 {
	return 1 + math.Exp(-float64(rank)/10)
}

// RewardFor computes one bid's reward given the total counted on the media
// now and the total counted strictly before the bid was placed.
func RewardFor(amountPence, currentTotalPence, bidTimeTotalPence int64, rank int64) float64 {
	growth := float64(currentTotalPence - bidTimeTotalPence)
	reward := growth * math.Cbrt(float64(amountPence)) * DiscoveryBonus(rank)
	return math.Max(0, reward)
}

// ComputeRewards derives the reward for every bid in a chronologically
// ordered counted history. Pure: no I/O, no clock, no randomness.
func ComputeRewards(history []models.Bid) []BidReward {
	var currentTotal int64
	for i := range history {
		currentTotal += history[i].AmountPence
	}

	rewards := make([]BidReward, len(history))
	var before int64
	for i := range history {
		rank := int64(i + 1)
		rewards[i] = BidReward{
			BidID:     history[i].ID,
			ActorID:   history[i].ActorID,
			Rank:      rank,
			TuneBytes: RewardFor(history[i].AmountPence, currentTotal, before, rank),
		}
		before += history[i].AmountPence
	}
	return rewards
}

// AwardForBid recomputes rewards across the bid's media and returns the
// named bid's share. Used on the bid write path, inside the caller's
// transaction, after the metrics update has landed.
func (e *Engine) AwardForBid(ctx context.Context, tx *gorm.DB, bid *models.Bid) (float64, error) {
	rewards, err := e.recompute(ctx, tx, bid.MediaID)
	if err != nil {
		return 0, err
	}
	for _, reward := range rewards {
		if reward.BidID == bid.ID {
			return reward.TuneBytes, nil
		}
	}
	// The bid left the counted set in the same transaction; it earns nothing.
	return 0, nil
}

// RecomputeForMedia replays the media's counted history and rewrites every
// reward. Used by backfills and data corrections; the replay is byte-for-byte
// deterministic for a given history.
func (e *Engine) RecomputeForMedia(ctx context.Context, tx *gorm.DB, mediaID uuid.UUID) ([]BidReward, error) {
	return e.recompute(ctx, tx, mediaID)
}

// recompute replays the history, persists changed rewards, and credits each
// actor's tuneBytes by the difference between the new and previously stored
// value so balances track the replay instead of double counting.
func (e *Engine) recompute(ctx context.Context, tx *gorm.DB, mediaID uuid.UUID) ([]BidReward, error) {
	bidsRepo := e.bids.WithTx(tx)
	usersRepo := e.users.WithTx(tx)

	scope := bids.Scope{MediaID: &mediaID}
	history, err := bidsRepo.ListCountedChronological(ctx, scope)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading bid history")
	}
	rewards := ComputeRewards(history)

	for i := range rewards {
		previous := history[i].TuneBytesReward
		next := rewards[i].TuneBytes
		if next == previous {
			continue
		}
		if err := bidsRepo.SetReward(ctx, rewards[i].BidID, next); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "storing reward")
		}
		if err := usersRepo.CreditTuneBytes(ctx, rewards[i].ActorID, next-previous); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "crediting tune bytes")
		}
		if err := e.emitGranted(ctx, tx, mediaID, rewards[i]); err != nil {
			return nil, err
		}
	}
	return rewards, nil
}

func (e *Engine) emitGranted(ctx context.Context, tx *gorm.DB, mediaID uuid.UUID, reward BidReward) error {
	if e.box == nil {
		return nil
	}
	event := outbox.DomainEvent{
		EventType:     enums.OutboxEventTypeRewardGranted,
		AggregateType: enums.OutboxAggregateTypeBid,
		AggregateID:   reward.BidID,
		Actor:         &outbox.ActorRef{UserID: reward.ActorID},
		Data: payloads.RewardGrantedEvent{
			BidID:     reward.BidID,
			ActorID:   reward.ActorID,
			MediaID:   mediaID,
			TuneBytes: reward.TuneBytes,
			Rank:      int(reward.Rank),
		},
	}
	if err := e.box.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emitting reward event")
	}
	return nil
}
