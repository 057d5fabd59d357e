package models

import (
	"time"

	"github.com/google/uuid"
)

// ArtistEscrowAllocation parks an owner share for a content owner who is not
// yet a registered user. ArtistName is stored normalized (lowercased,
// trimmed) so registration-time matching is deterministic. Claimed rows stay
// behind as the audit trail of the transfer.
type ArtistEscrowAllocation struct {
	ID               uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	MediaID          uuid.UUID  `gorm:"column:media_id;type:uuid;not null;index"`
	BidID            uuid.UUID  `gorm:"column:bid_id;type:uuid;not null"`
	ArtistName       string     `gorm:"column:artist_name;not null;index"`
	ExternalArtistID *string    `gorm:"column:external_artist_id;index"`
	Percentage       int        `gorm:"column:percentage;not null"`
	AmountPence      int64      `gorm:"column:amount_pence;not null"`
	Claimed          bool       `gorm:"column:claimed;not null;default:false"`
	ClaimedByUserID  *uuid.UUID `gorm:"column:claimed_by_user_id;type:uuid"`
	ClaimedAt        *time.Time `gorm:"column:claimed_at"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
}
