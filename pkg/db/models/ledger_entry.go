package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/tunetide/tunetide-backend/pkg/enums"
)

// LedgerEntry is the immutable audit record of a balance-affecting event,
// snapshotting the user balance and the user/media/global aggregates on both
// sides of the movement. Rows are never updated or deleted after creation;
// the repository exposes no mutation surface.
type LedgerEntry struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID      uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	Type        enums.TransactionType `gorm:"column:type;type:transaction_type_enum;not null"`
	AmountPence int64                 `gorm:"column:amount_pence;not null"`

	UserBalancePrePence      int64 `gorm:"column:user_balance_pre_pence;not null"`
	UserBalancePostPence     int64 `gorm:"column:user_balance_post_pence;not null"`
	UserAggregatePrePence    int64 `gorm:"column:user_aggregate_pre_pence;not null"`
	UserAggregatePostPence   int64 `gorm:"column:user_aggregate_post_pence;not null"`
	MediaAggregatePrePence   int64 `gorm:"column:media_aggregate_pre_pence;not null"`
	MediaAggregatePostPence  int64 `gorm:"column:media_aggregate_post_pence;not null"`
	GlobalAggregatePrePence  int64 `gorm:"column:global_aggregate_pre_pence;not null"`
	GlobalAggregatePostPence int64 `gorm:"column:global_aggregate_post_pence;not null"`

	WalletTransactionID *uuid.UUID      `gorm:"column:wallet_transaction_id;type:uuid"`
	BidID               *uuid.UUID      `gorm:"column:bid_id;type:uuid"`
	MediaID             *uuid.UUID      `gorm:"column:media_id;type:uuid"`
	Metadata            json.RawMessage `gorm:"column:metadata;type:jsonb"`
	CreatedAt           time.Time       `gorm:"column:created_at;autoCreateTime"`
}
