package parties

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tunetide/tunetide-backend/pkg/db/models"
)

// Repository manages parties and the composite-key (party_id, media_id)
// rows carrying per-party-media denormalized stats.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Party, error)
	LockForUpdate(ctx context.Context, id uuid.UUID) error
	EnsurePartyMedia(ctx context.Context, partyID, mediaID uuid.UUID) (*models.PartyMedia, error)
	IncrementPartyMediaAggregate(ctx context.Context, partyID, mediaID uuid.UUID, deltaPence int64) error
	UpdatePartyMediaStats(ctx context.Context, partyID, mediaID uuid.UUID, stats MediaStats) error
	ListPartyMedia(ctx context.Context, partyID uuid.UUID) ([]models.PartyMedia, error)
	UpdatePartyTops(ctx context.Context, partyID uuid.UUID, tops PartyTops) error
}

// MediaStats carries recomputed stored metrics for one (party, media) pair.
type MediaStats struct {
	AggregatePence      int64
	AveragePence        int64
	TopBidPence         int64
	TopBidActorID       *uuid.UUID
	TopAggregatePence   int64
	TopAggregateActorID *uuid.UUID
}

// PartyTops carries the party-root stats recomputed after every
// party-media write.
type PartyTops struct {
	TopBidPence         int64
	TopBidActorID       *uuid.UUID
	TopBidMediaID       *uuid.UUID
	TopAggregatePence   int64
	TopAggregateActorID *uuid.UUID
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a parties repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Party, error) {
	var party models.Party
	if err := r.db.WithContext(ctx).First(&party, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &party, nil
}

// LockForUpdate takes the party row lock for the remainder of the enclosing
// transaction, serializing party-wide recomputes across concurrent bids on
// different media in the same party. A missing party is not an error; the
// subsequent stats write updates zero rows.
func (r *repository) LockForUpdate(ctx context.Context, id uuid.UUID) error {
	var rows []models.Party
	return r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Find(&rows).Error
}

// EnsurePartyMedia returns the (party, media) row, creating it on first
// contact. The upsert is conflict-safe for concurrent first bids.
func (r *repository) EnsurePartyMedia(ctx context.Context, partyID, mediaID uuid.UUID) (*models.PartyMedia, error) {
	row := models.PartyMedia{PartyID: partyID, MediaID: mediaID}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "party_id"}, {Name: "media_id"}},
			DoNothing: true,
		}).
		Create(&row).Error
	if err != nil {
		return nil, err
	}
	var stored models.PartyMedia
	if err := r.db.WithContext(ctx).
		First(&stored, "party_id = ? AND media_id = ?", partyID, mediaID).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *repository) IncrementPartyMediaAggregate(ctx context.Context, partyID, mediaID uuid.UUID, deltaPence int64) error {
	return r.db.WithContext(ctx).Model(&models.PartyMedia{}).
		Where("party_id = ? AND media_id = ?", partyID, mediaID).
		Update("aggregate_pence", gorm.Expr("aggregate_pence + ?", deltaPence)).Error
}

func (r *repository) UpdatePartyMediaStats(ctx context.Context, partyID, mediaID uuid.UUID, stats MediaStats) error {
	return r.db.WithContext(ctx).Model(&models.PartyMedia{}).
		Where("party_id = ? AND media_id = ?", partyID, mediaID).
		Updates(map[string]any{
			"aggregate_pence":        stats.AggregatePence,
			"average_pence":          stats.AveragePence,
			"top_bid_pence":          stats.TopBidPence,
			"top_bid_actor_id":       stats.TopBidActorID,
			"top_aggregate_pence":    stats.TopAggregatePence,
			"top_aggregate_actor_id": stats.TopAggregateActorID,
		}).Error
}

func (r *repository) ListPartyMedia(ctx context.Context, partyID uuid.UUID) ([]models.PartyMedia, error) {
	var rows []models.PartyMedia
	if err := r.db.WithContext(ctx).
		Where("party_id = ?", partyID).
		Order("media_id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) UpdatePartyTops(ctx context.Context, partyID uuid.UUID, tops PartyTops) error {
	return r.db.WithContext(ctx).Model(&models.Party{}).
		Where("id = ?", partyID).
		Updates(map[string]any{
			"top_bid_pence":          tops.TopBidPence,
			"top_bid_actor_id":       tops.TopBidActorID,
			"top_bid_media_id":       tops.TopBidMediaID,
			"top_aggregate_pence":    tops.TopAggregatePence,
			"top_aggregate_actor_id": tops.TopAggregateActorID,
		}).Error
}
