package users

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tunetide/tunetide-backend/pkg/db/models"
)

// MemoryRepository is an in-memory Repository mirroring the guarded
// increment semantics of the Postgres implementation. Test support.
type MemoryRepository struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.User

	// FailCredit, when set, makes the next CreditBalance return this error.
	FailCredit error

	// LockedFinds counts FindByIDForUpdate calls so tests can assert that
	// financial paths take the row lock before snapshotting balances.
	LockedFinds int
}

// NewMemoryRepository builds an empty in-memory user store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[uuid.UUID]*models.User)}
}

// Put seeds or replaces a user row.
func (m *MemoryRepository) Put(user models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	stored := user
	m.rows[user.ID] = &stored
}

func (m *MemoryRepository) WithTx(tx *gorm.DB) Repository { return m }

func (m *MemoryRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *row
	return &copied, nil
}

func (m *MemoryRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	m.LockedFinds++
	m.mu.Unlock()
	return m.FindByID(ctx, id)
}

func (m *MemoryRepository) FindByArtistIdentity(ctx context.Context, artistName string, externalArtistID *string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := strings.ToLower(strings.TrimSpace(artistName))
	for _, row := range m.rows {
		if externalArtistID != nil && *externalArtistID != "" &&
			row.ExternalArtistID != nil && *row.ExternalArtistID == *externalArtistID {
			copied := *row
			return &copied, nil
		}
		if row.ArtistName != nil && strings.ToLower(*row.ArtistName) == name {
			copied := *row
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MemoryRepository) SetArtistIdentity(ctx context.Context, id uuid.UUID, artistName string, externalArtistID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		row.ArtistName = &artistName
		row.ExternalArtistID = externalArtistID
	}
	return nil
}

func (m *MemoryRepository) CreditBalance(ctx context.Context, id uuid.UUID, amountPence int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCredit != nil {
		err := m.FailCredit
		m.FailCredit = nil
		return err
	}
	if row, ok := m.rows[id]; ok {
		row.BalancePence += amountPence
	}
	return nil
}

func (m *MemoryRepository) DebitBalance(ctx context.Context, id uuid.UUID, amountPence int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.BalancePence < amountPence {
		return false, nil
	}
	row.BalancePence -= amountPence
	return true, nil
}

func (m *MemoryRepository) CreditEscrow(ctx context.Context, id uuid.UUID, amountPence int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		row.EscrowBalancePence += amountPence
	}
	return nil
}

func (m *MemoryRepository) CreditTuneBytes(ctx context.Context, id uuid.UUID, tuneBytes float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		row.TuneBytes += tuneBytes
	}
	return nil
}
