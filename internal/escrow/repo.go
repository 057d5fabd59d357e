package escrow

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tunetide/tunetide-backend/pkg/db/models"
)

// Repository persists artist escrow allocations. Unclaimed rows are the
// parked shares awaiting registration; claimed rows stay behind as the audit
// trail of each transfer.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, allocation *models.ArtistEscrowAllocation) error
	FindUnclaimedByIdentity(ctx context.Context, artistName string, externalArtistID *string) ([]models.ArtistEscrowAllocation, error)
	MarkClaimed(ctx context.Context, ids []uuid.UUID, userID uuid.UUID, claimedAt time.Time) error
	SumUnclaimed(ctx context.Context) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an escrow repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, allocation *models.ArtistEscrowAllocation) error {
	return r.db.WithContext(ctx).Create(allocation).Error
}

// FindUnclaimedByIdentity matches parked allocations against a registering
// artist. The stored artist_name is already normalized; the external id
// match takes whatever the provider issued verbatim.
func (r *repository) FindUnclaimedByIdentity(ctx context.Context, artistName string, externalArtistID *string) ([]models.ArtistEscrowAllocation, error) {
	q := r.db.WithContext(ctx).Where("claimed = false")
	name := NormalizeArtistName(artistName)
	if externalArtistID != nil && *externalArtistID != "" {
		q = q.Where("artist_name = ? OR external_artist_id = ?", name, *externalArtistID)
	} else {
		q = q.Where("artist_name = ?", name)
	}
	var allocations []models.ArtistEscrowAllocation
	err := q.Order("created_at ASC, id ASC").Find(&allocations).Error
	return allocations, err
}

func (r *repository) MarkClaimed(ctx context.Context, ids []uuid.UUID, userID uuid.UUID, claimedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.ArtistEscrowAllocation{}).
		Where("id IN ? AND claimed = false", ids).
		Updates(map[string]any{
			"claimed":            true,
			"claimed_by_user_id": userID,
			"claimed_at":         claimedAt,
		}).Error
}

func (r *repository) SumUnclaimed(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.ArtistEscrowAllocation{}).
		Where("claimed = false").
		Select("COALESCE(SUM(amount_pence), 0)").
		Scan(&total).Error
	return total, err
}

// NormalizeArtistName lowercases and trims a name so matching at claim time
// is deterministic regardless of how the media metadata spelled it.
func NormalizeArtistName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
