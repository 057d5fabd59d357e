package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tunetide/tunetide-backend/pkg/enums"
)

// WalletTransaction records a single balance movement. ProviderSessionID is
// the payment provider's session identifier and doubles as the idempotency
// key: a partial unique index guarantees at most one completed transaction
// per session even under concurrent webhook redelivery.
type WalletTransaction struct {
	ID                uuid.UUID                     `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID            uuid.UUID                     `gorm:"column:user_id;type:uuid;not null;index"`
	AmountPence       int64                         `gorm:"column:amount_pence;not null"`
	Type              enums.TransactionType         `gorm:"column:type;type:transaction_type_enum;not null"`
	Status            enums.WalletTransactionStatus `gorm:"column:status;type:wallet_transaction_status_enum;not null;default:'pending'"`
	ProviderSessionID string                        `gorm:"column:provider_session_id;not null;index"`
	BalanceBefore     int64                         `gorm:"column:balance_before_pence;not null"`
	BalanceAfter      int64                         `gorm:"column:balance_after_pence;not null"`
	CreatedAt         time.Time                     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                     `gorm:"column:updated_at;autoUpdateTime"`
}
