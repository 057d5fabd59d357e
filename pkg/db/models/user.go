package models

import (
	"time"

	"github.com/google/uuid"
)

// User holds the balance resources every money-moving path touches. Balance
// and escrow are integer pence and only ever move through guarded atomic
// increments; TuneBytes is the fractional discovery-reward currency.
type User struct {
	ID                 uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email              string     `gorm:"type:text;not null;uniqueIndex"`
	DisplayName        string     `gorm:"column:display_name;not null"`
	BalancePence       int64      `gorm:"column:balance_pence;not null;default:0"`
	TuneBytes          float64    `gorm:"column:tune_bytes;not null;default:0"`
	EscrowBalancePence int64      `gorm:"column:escrow_balance_pence;not null;default:0"`
	ArtistName         *string    `gorm:"column:artist_name"`
	ExternalArtistID   *string    `gorm:"column:external_artist_id"`
	IsActive           bool       `gorm:"column:is_active;not null;default:true"`
	LastSeenAt         *time.Time `gorm:"column:last_seen_at"`
	CreatedAt          time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
