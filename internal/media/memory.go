package media

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tunetide/tunetide-backend/pkg/db/models"
)

// MemoryRepository is an in-memory Repository. Test support.
type MemoryRepository struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.Media
}

// NewMemoryRepository builds an empty in-memory media store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[uuid.UUID]*models.Media)}
}

// Put seeds or replaces a media row.
func (m *MemoryRepository) Put(media models.Media) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if media.ID == uuid.Nil {
		media.ID = uuid.New()
	}
	stored := media
	m.rows[media.ID] = &stored
}

func (m *MemoryRepository) WithTx(tx *gorm.DB) Repository { return m }

func (m *MemoryRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Media, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *row
	return &copied, nil
}

func (m *MemoryRepository) FindByIDWithOwners(ctx context.Context, id uuid.UUID) (*models.Media, error) {
	return m.FindByID(ctx, id)
}

func (m *MemoryRepository) IncrementAggregate(ctx context.Context, id uuid.UUID, deltaPence int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		row.GlobalAggregatePence += deltaPence
	}
	return nil
}

func (m *MemoryRepository) UpdateStats(ctx context.Context, id uuid.UUID, stats GlobalStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		row.GlobalAggregatePence = stats.AggregatePence
		row.GlobalAveragePence = stats.AveragePence
		row.GlobalTopBidPence = stats.TopBidPence
		row.GlobalTopBidActorID = stats.TopBidActorID
		row.GlobalTopAggregatePence = stats.TopAggregatePence
		row.GlobalTopAggregateActorID = stats.TopAggregateActorID
	}
	return nil
}

func (m *MemoryRepository) GlobalAggregate(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, row := range m.rows {
		total += row.GlobalAggregatePence
	}
	return total, nil
}

func (m *MemoryRepository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(m.rows))
	for id := range m.rows {
		ids = append(ids, id)
	}
	return ids, nil
}
