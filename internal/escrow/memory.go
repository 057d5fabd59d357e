package escrow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tunetide/tunetide-backend/pkg/db/models"
)

// MemoryRepository is an in-memory Repository. Test support.
type MemoryRepository struct {
	mu   sync.Mutex
	rows []models.ArtistEscrowAllocation
}

// NewMemoryRepository builds an empty in-memory allocation store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (m *MemoryRepository) WithTx(tx *gorm.DB) Repository { return m }

func (m *MemoryRepository) Create(ctx context.Context, allocation *models.ArtistEscrowAllocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if allocation.ID == uuid.Nil {
		allocation.ID = uuid.New()
	}
	m.rows = append(m.rows, *allocation)
	return nil
}

func (m *MemoryRepository) FindUnclaimedByIdentity(ctx context.Context, artistName string, externalArtistID *string) ([]models.ArtistEscrowAllocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := NormalizeArtistName(artistName)
	var matches []models.ArtistEscrowAllocation
	for i := range m.rows {
		if m.rows[i].Claimed {
			continue
		}
		if m.rows[i].ArtistName == name {
			matches = append(matches, m.rows[i])
			continue
		}
		if externalArtistID != nil && *externalArtistID != "" &&
			m.rows[i].ExternalArtistID != nil && *m.rows[i].ExternalArtistID == *externalArtistID {
			matches = append(matches, m.rows[i])
		}
	}
	return matches, nil
}

func (m *MemoryRepository) MarkClaimed(ctx context.Context, ids []uuid.UUID, userID uuid.UUID, claimedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	for i := range m.rows {
		if wanted[m.rows[i].ID] && !m.rows[i].Claimed {
			m.rows[i].Claimed = true
			m.rows[i].ClaimedByUserID = &userID
			at := claimedAt
			m.rows[i].ClaimedAt = &at
		}
	}
	return nil
}

func (m *MemoryRepository) SumUnclaimed(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for i := range m.rows {
		if !m.rows[i].Claimed {
			total += m.rows[i].AmountPence
		}
	}
	return total, nil
}

// Allocations returns a copy of every stored allocation.
func (m *MemoryRepository) Allocations() []models.ArtistEscrowAllocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ArtistEscrowAllocation, len(m.rows))
	copy(out, m.rows)
	return out
}
