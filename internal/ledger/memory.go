package ledger

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tunetide/tunetide-backend/pkg/db/models"
)

// MemoryRepository is an in-memory Repository. Test support.
type MemoryRepository struct {
	mu      sync.Mutex
	entries []models.LedgerEntry

	// FailCreate, when set, makes the next Create return this error.
	FailCreate error
}

// NewMemoryRepository builds an empty in-memory ledger.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (m *MemoryRepository) WithTx(tx *gorm.DB) Repository { return m }

func (m *MemoryRepository) Create(ctx context.Context, entry *models.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreate != nil {
		err := m.FailCreate
		m.FailCreate = nil
		return err
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *MemoryRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []models.LedgerEntry
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].UserID == userID {
			rows = append(rows, m.entries[i])
		}
	}
	return rows, nil
}

func (m *MemoryRepository) CountByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for i := range m.entries {
		if m.entries[i].UserID == userID {
			count++
		}
	}
	return count, nil
}

// Entries returns a copy of everything recorded so far.
func (m *MemoryRepository) Entries() []models.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.LedgerEntry, len(m.entries))
	copy(out, m.entries)
	return out
}
