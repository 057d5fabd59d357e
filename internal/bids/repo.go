package bids

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tunetide/tunetide-backend/pkg/db/models"
	"github.com/tunetide/tunetide-backend/pkg/enums"
)

// Scope narrows bid queries to one of the supported metric scopes. Nil
// fields are unconstrained; every query additionally filters by the counted
// status set.
type Scope struct {
	MediaID *uuid.UUID
	PartyID *uuid.UUID
	ActorID *uuid.UUID
}

// ActorTotal is one actor's counted running total within a scope.
type ActorTotal struct {
	ActorID    uuid.UUID `gorm:"column:actor_id"`
	TotalPence int64     `gorm:"column:total_pence"`
}

// Repository persists bids and answers the scoped aggregation queries that
// back every metric. Aggregations always scan the bid store directly so they
// can serve as the convergence oracle for the denormalized columns.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, bid *models.Bid) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Bid, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.BidStatus) error
	UpdateActorMediaStats(ctx context.Context, id uuid.UUID, aggregatePence, averagePence int64) error
	SetReward(ctx context.Context, id uuid.UUID, tuneBytes float64) error

	SumCounted(ctx context.Context, scope Scope) (int64, error)
	CountCounted(ctx context.Context, scope Scope) (int64, error)
	TopCounted(ctx context.Context, scope Scope) (*models.Bid, error)
	ActorTotals(ctx context.Context, scope Scope) ([]ActorTotal, error)
	ListCountedChronological(ctx context.Context, scope Scope) ([]models.Bid, error)
	CountCountedBefore(ctx context.Context, mediaID uuid.UUID, bid *models.Bid) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a bid repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, bid *models.Bid) error {
	return r.db.WithContext(ctx).Create(bid).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	var bid models.Bid
	if err := r.db.WithContext(ctx).First(&bid, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &bid, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.BidStatus) error {
	return r.db.WithContext(ctx).Model(&models.Bid{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *repository) UpdateActorMediaStats(ctx context.Context, id uuid.UUID, aggregatePence, averagePence int64) error {
	return r.db.WithContext(ctx).Model(&models.Bid{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"actor_media_aggregate_pence": aggregatePence,
			"actor_media_average_pence":   averagePence,
		}).Error
}

func (r *repository) SetReward(ctx context.Context, id uuid.UUID, tuneBytes float64) error {
	return r.db.WithContext(ctx).Model(&models.Bid{}).
		Where("id = ?", id).
		Update("tune_bytes_reward", tuneBytes).Error
}

func (r *repository) scoped(ctx context.Context, scope Scope) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.Bid{}).
		Where("status IN ?", enums.CountedBidStatuses)
	if scope.MediaID != nil {
		q = q.Where("media_id = ?", *scope.MediaID)
	}
	if scope.PartyID != nil {
		q = q.Where("party_id = ?", *scope.PartyID)
	}
	if scope.ActorID != nil {
		q = q.Where("actor_id = ?", *scope.ActorID)
	}
	return q
}

func (r *repository) SumCounted(ctx context.Context, scope Scope) (int64, error) {
	var total int64
	err := r.scoped(ctx, scope).
		Select("COALESCE(SUM(amount_pence), 0)").
		Scan(&total).Error
	return total, err
}

func (r *repository) CountCounted(ctx context.Context, scope Scope) (int64, error) {
	var count int64
	err := r.scoped(ctx, scope).Count(&count).Error
	return count, err
}

// TopCounted returns the single largest counted bid in the scope, breaking
// ties by earliest creation then lowest id. Returns nil when the scope holds
// no counted bids.
func (r *repository) TopCounted(ctx context.Context, scope Scope) (*models.Bid, error) {
	var rows []models.Bid
	err := r.scoped(ctx, scope).
		Order("amount_pence DESC, created_at ASC, id ASC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// ActorTotals groups counted amounts by actor, largest total first with the
// same deterministic tie-break used everywhere else.
func (r *repository) ActorTotals(ctx context.Context, scope Scope) ([]ActorTotal, error) {
	var totals []ActorTotal
	err := r.scoped(ctx, scope).
		Select("actor_id, SUM(amount_pence) AS total_pence").
		Group("actor_id").
		Order("total_pence DESC, MIN(created_at) ASC, MIN(id::text) ASC").
		Scan(&totals).Error
	return totals, err
}

func (r *repository) ListCountedChronological(ctx context.Context, scope Scope) ([]models.Bid, error) {
	var rows []models.Bid
	err := r.scoped(ctx, scope).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

// CountCountedBefore counts the counted bids on the media that precede the
// given bid in chronological order. The bid's rank is this count plus one.
func (r *repository) CountCountedBefore(ctx context.Context, mediaID uuid.UUID, bid *models.Bid) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Bid{}).
		Where("media_id = ?", mediaID).
		Where("status IN ?", enums.CountedBidStatuses).
		Where("created_at < ? OR (created_at = ? AND id < ?)", bid.CreatedAt, bid.CreatedAt, bid.ID).
		Count(&count).Error
	return count, err
}
