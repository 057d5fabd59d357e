package users

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tunetide/tunetide-backend/pkg/db/models"
)

// Repository exposes the narrow balance surface the financial paths need.
// Every mutation is a guarded database-level increment, never a
// read-modify-write from application memory. Paths that snapshot a balance
// for an audit record must read through FindByIDForUpdate so the snapshot
// and the increment serialize against concurrent writers of the same row.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByArtistIdentity(ctx context.Context, artistName string, externalArtistID *string) (*models.User, error)
	SetArtistIdentity(ctx context.Context, id uuid.UUID, artistName string, externalArtistID *string) error
	CreditBalance(ctx context.Context, id uuid.UUID, amountPence int64) error
	DebitBalance(ctx context.Context, id uuid.UUID, amountPence int64) (bool, error)
	CreditEscrow(ctx context.Context, id uuid.UUID, amountPence int64) error
	CreditTuneBytes(ctx context.Context, id uuid.UUID, tuneBytes float64) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a user repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByIDForUpdate takes the user row lock for the remainder of the
// enclosing transaction, so the returned balances stay true until commit.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) FindByArtistIdentity(ctx context.Context, artistName string, externalArtistID *string) (*models.User, error) {
	q := r.db.WithContext(ctx).Model(&models.User{})
	name := strings.ToLower(strings.TrimSpace(artistName))
	if externalArtistID != nil && *externalArtistID != "" {
		q = q.Where("external_artist_id = ? OR LOWER(artist_name) = ?", *externalArtistID, name)
	} else {
		q = q.Where("LOWER(artist_name) = ?", name)
	}
	var user models.User
	if err := q.First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) SetArtistIdentity(ctx context.Context, id uuid.UUID, artistName string, externalArtistID *string) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"artist_name":        artistName,
			"external_artist_id": externalArtistID,
		}).Error
}

func (r *repository) CreditBalance(ctx context.Context, id uuid.UUID, amountPence int64) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("balance_pence", gorm.Expr("balance_pence + ?", amountPence)).Error
}

// DebitBalance subtracts amountPence only when the balance covers it,
// reporting whether a row was updated.
func (r *repository) DebitBalance(ctx context.Context, id uuid.UUID, amountPence int64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND balance_pence >= ?", id, amountPence).
		Update("balance_pence", gorm.Expr("balance_pence - ?", amountPence))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CreditEscrow(ctx context.Context, id uuid.UUID, amountPence int64) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("escrow_balance_pence", gorm.Expr("escrow_balance_pence + ?", amountPence)).Error
}

func (r *repository) CreditTuneBytes(ctx context.Context, id uuid.UUID, tuneBytes float64) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("tune_bytes", gorm.Expr("tune_bytes + ?", tuneBytes)).Error
}
