package models

import (
	"time"

	"github.com/google/uuid"
)

// Media carries the global-scope denormalized bidding stats. After
// convergence every global_* column must equal a full aggregation over the
// bid store filtered by the canonical counted-status set.
type Media struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Title      string    `gorm:"column:title;not null"`
	ArtistName string    `gorm:"column:artist_name;not null"`

	GlobalAggregatePence      int64      `gorm:"column:global_aggregate_pence;not null;default:0"`
	GlobalAveragePence        int64      `gorm:"column:global_average_pence;not null;default:0"`
	GlobalTopBidPence         int64      `gorm:"column:global_top_bid_pence;not null;default:0"`
	GlobalTopBidActorID       *uuid.UUID `gorm:"column:global_top_bid_actor_id;type:uuid"`
	GlobalTopAggregatePence   int64      `gorm:"column:global_top_aggregate_pence;not null;default:0"`
	GlobalTopAggregateActorID *uuid.UUID `gorm:"column:global_top_aggregate_actor_id;type:uuid"`

	Owners []MediaOwner `gorm:"foreignKey:MediaID"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// MediaOwner lists a content owner's share of a media item's tip revenue.
// OwnerUserID is set once the owner is a registered user; until then the
// name/external-id pair is the matching criteria escrow allocations key on.
type MediaOwner struct {
	ID               uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	MediaID          uuid.UUID  `gorm:"column:media_id;type:uuid;not null;index"`
	OwnerUserID      *uuid.UUID `gorm:"column:owner_user_id;type:uuid"`
	Name             string     `gorm:"column:name;not null"`
	ExternalArtistID *string    `gorm:"column:external_artist_id"`
	Percentage       int        `gorm:"column:percentage;not null"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
}
