package media

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tunetide/tunetide-backend/pkg/db/models"
)

// Repository reads media documents and writes their denormalized global
// stats. The aggregate column moves only through atomic increments; the
// top/average columns are overwritten by full recomputations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Media, error)
	FindByIDWithOwners(ctx context.Context, id uuid.UUID) (*models.Media, error)
	IncrementAggregate(ctx context.Context, id uuid.UUID, deltaPence int64) error
	UpdateStats(ctx context.Context, id uuid.UUID, stats GlobalStats) error
	GlobalAggregate(ctx context.Context) (int64, error)
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}

// GlobalStats carries the recomputed global-scope stored metrics for one media.
type GlobalStats struct {
	AggregatePence      int64
	AveragePence        int64
	TopBidPence         int64
	TopBidActorID       *uuid.UUID
	TopAggregatePence   int64
	TopAggregateActorID *uuid.UUID
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a media repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Media, error) {
	var media models.Media
	if err := r.db.WithContext(ctx).First(&media, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &media, nil
}

func (r *repository) FindByIDWithOwners(ctx context.Context, id uuid.UUID) (*models.Media, error) {
	var media models.Media
	if err := r.db.WithContext(ctx).Preload("Owners").First(&media, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &media, nil
}

func (r *repository) IncrementAggregate(ctx context.Context, id uuid.UUID, deltaPence int64) error {
	return r.db.WithContext(ctx).Model(&models.Media{}).
		Where("id = ?", id).
		Update("global_aggregate_pence", gorm.Expr("global_aggregate_pence + ?", deltaPence)).Error
}

func (r *repository) UpdateStats(ctx context.Context, id uuid.UUID, stats GlobalStats) error {
	return r.db.WithContext(ctx).Model(&models.Media{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"global_aggregate_pence":        stats.AggregatePence,
			"global_average_pence":          stats.AveragePence,
			"global_top_bid_pence":          stats.TopBidPence,
			"global_top_bid_actor_id":       stats.TopBidActorID,
			"global_top_aggregate_pence":    stats.TopAggregatePence,
			"global_top_aggregate_actor_id": stats.TopAggregateActorID,
		}).Error
}

// GlobalAggregate sums the stored aggregate across all media, the platform
// wide figure ledger entries snapshot.
func (r *repository) GlobalAggregate(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.Media{}).
		Select("COALESCE(SUM(global_aggregate_pence), 0)").
		Scan(&total).Error
	return total, err
}

func (r *repository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.Media{}).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	return ids, err
}
