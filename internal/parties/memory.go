package parties

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
	parties map[uuid.UUID]*models.Party
	media   map[[2]uuid.UUID]*models.PartyMedia

	// LockedParties counts LockForUpdate calls so tests can assert that
	// party-wide recomputes take the party row lock before scanning.
	LockedParties int
}

// NewMemoryRepository builds an empty in-memory party store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		parties: make(map[uuid.UUID]*models.Party),
		media:   make(map[[2]uuid.UUID]*models.PartyMedia),
	}
}

// Put seeds or replaces a party row.
func (m *MemoryRepository) Put(party models.Party) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if party.ID == uuid.Nil {
		party.ID = uuid.New()
	}
	stored := party
	m.parties[party.ID] = &stored
}

func (m *MemoryRepository) WithTx(tx *gorm.DB) Repository { return m }

func (m *MemoryRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Party, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.parties[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *row
	return &copied, nil
}

func (m *MemoryRepository) LockForUpdate(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LockedParties++
	return nil
}

func (m *MemoryRepository) EnsurePartyMedia(ctx context.Context, partyID, mediaID uuid.UUID) (*models.PartyMedia, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]uuid.UUID{partyID, mediaID}
	row, ok := m.media[key]
	if !ok {
		row = &models.PartyMedia{ID: uuid.New(), PartyID: partyID, MediaID: mediaID}
		m.media[key] = row
	}
	copied := *row
	return &copied, nil
}

func (m *MemoryRepository) IncrementPartyMediaAggregate(ctx context.Context, partyID, mediaID uuid.UUID, deltaPence int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.media[[2]uuid.UUID{partyID, mediaID}]; ok {
		row.AggregatePence += deltaPence
	}
	return nil
}

func (m *MemoryRepository) UpdatePartyMediaStats(ctx context.Context, partyID, mediaID uuid.UUID, stats MediaStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.media[[2]uuid.UUID{partyID, mediaID}]; ok {
		row.AggregatePence = stats.AggregatePence
		row.AveragePence = stats.AveragePence
		row.TopBidPence = stats.TopBidPence
		row.TopBidActorID = stats.TopBidActorID
		row.TopAggregatePence = stats.TopAggregatePence
		row.TopAggregateActorID = stats.TopAggregateActorID
	}
	return nil
}

func (m *MemoryRepository) ListPartyMedia(ctx context.Context, partyID uuid.UUID) ([]models.PartyMedia, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []models.PartyMedia
	for _, row := range m.media {
		if row.PartyID == partyID {
			rows = append(rows, *row)
		}
	}
	return rows, nil
}

func (m *MemoryRepository) UpdatePartyTops(ctx context.Context, partyID uuid.UUID, tops PartyTops) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.parties[partyID]
	if !ok {
		row = &models.Party{ID: partyID}
		m.parties[partyID] = row
	}
	row.TopBidPence = tops.TopBidPence
	row.TopBidActorID = tops.TopBidActorID
	row.TopBidMediaID = tops.TopBidMediaID
	row.TopAggregatePence = tops.TopAggregatePence
	row.TopAggregateActorID = tops.TopAggregateActorID
	return nil
}
