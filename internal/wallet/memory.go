package wallet

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tunetide/tunetide-backend/pkg/db/models"
	"github.com/tunetide/tunetide-backend/pkg/enums"
)

// MemoryRepository is an in-memory Repository enforcing the same
// one-completed-row-per-session rule as the partial unique index. Test
// support.
type MemoryRepository struct {
	mu   sync.Mutex
	rows []models.WalletTransaction
}

// NewMemoryRepository builds an empty in-memory wallet store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (m *MemoryRepository) WithTx(tx *gorm.DB) Repository { return m }

func (m *MemoryRepository) Create(ctx context.Context, transaction *models.WalletTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if transaction.Status == enums.WalletTransactionStatusCompleted {
		for i := range m.rows {
			if m.rows[i].Status == enums.WalletTransactionStatusCompleted &&
				m.rows[i].ProviderSessionID == transaction.ProviderSessionID {
				return fmt.Errorf("duplicate key value violates unique constraint %q", completedSessionConstraint)
			}
		}
	}
	if transaction.ID == uuid.Nil {
		transaction.ID = uuid.New()
	}
	m.rows = append(m.rows, *transaction)
	return nil
}

func (m *MemoryRepository) FindCompletedBySessionID(ctx context.Context, sessionID string) (*models.WalletTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].Status == enums.WalletTransactionStatusCompleted &&
			m.rows[i].ProviderSessionID == sessionID {
			copied := m.rows[i]
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *MemoryRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.WalletTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []models.WalletTransaction
	for i := len(m.rows) - 1; i >= 0; i-- {
		if m.rows[i].UserID == userID {
			rows = append(rows, m.rows[i])
		}
	}
	return rows, nil
}
