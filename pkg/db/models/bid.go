package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tunetide/tunetide-backend/pkg/enums"
)

// Bid is the append-mostly record of a single pledge on a media item inside
// a party. Amount is integer pence and never negative. Status only moves
// forward through the lifecycle. The actor_media_* columns are the bid-level
// denormalized stats the metrics engine maintains for this actor on this
// media; tune_bytes_reward is written by the reward engine and rewritten on
// deterministic backfills.
type Bid struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ActorID     uuid.UUID       `gorm:"column:actor_id;type:uuid;not null;index"`
	MediaID     uuid.UUID       `gorm:"column:media_id;type:uuid;not null;index"`
	PartyID     uuid.UUID       `gorm:"column:party_id;type:uuid;not null;index"`
	AmountPence int64           `gorm:"column:amount_pence;not null"`
	Status      enums.BidStatus `gorm:"column:status;type:bid_status_enum;not null;default:'active'"`

	ActorMediaAggregatePence int64   `gorm:"column:actor_media_aggregate_pence;not null;default:0"`
	ActorMediaAveragePence   int64   `gorm:"column:actor_media_average_pence;not null;default:0"`
	TuneBytesReward          float64 `gorm:"column:tune_bytes_reward;not null;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
