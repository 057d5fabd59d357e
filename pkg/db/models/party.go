package models

import (
	"time"

	"github.com/google/uuid"
)

// Party carries the party-root denormalized stats: the single largest bid and
// the largest per-actor running total across the whole party. Both are
// recomputed after every party-media write.
type Party struct {
	ID     uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name   string    `gorm:"column:name;not null"`
	HostID uuid.UUID `gorm:"column:host_id;type:uuid;not null"`

	TopBidPence         int64      `gorm:"column:top_bid_pence;not null;default:0"`
	TopBidActorID       *uuid.UUID `gorm:"column:top_bid_actor_id;type:uuid"`
	TopBidMediaID       *uuid.UUID `gorm:"column:top_bid_media_id;type:uuid"`
	TopAggregatePence   int64      `gorm:"column:top_aggregate_pence;not null;default:0"`
	TopAggregateActorID *uuid.UUID `gorm:"column:top_aggregate_actor_id;type:uuid"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// PartyMedia is the composite-key (party_id, media_id) addressable row that
// replaces array-element-by-match updates: per-party-media aggregates live
// here and are maintained with database-level atomic increments.
type PartyMedia struct {
	ID      uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PartyID uuid.UUID `gorm:"column:party_id;type:uuid;not null;uniqueIndex:idx_party_media"`
	MediaID uuid.UUID `gorm:"column:media_id;type:uuid;not null;uniqueIndex:idx_party_media"`

	AggregatePence      int64      `gorm:"column:aggregate_pence;not null;default:0"`
	AveragePence        int64      `gorm:"column:average_pence;not null;default:0"`
	TopBidPence         int64      `gorm:"column:top_bid_pence;not null;default:0"`
	TopBidActorID       *uuid.UUID `gorm:"column:top_bid_actor_id;type:uuid"`
	TopAggregatePence   int64      `gorm:"column:top_aggregate_pence;not null;default:0"`
	TopAggregateActorID *uuid.UUID `gorm:"column:top_aggregate_actor_id;type:uuid"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
