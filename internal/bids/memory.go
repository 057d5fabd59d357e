package bids

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tunetide/tunetide-backend/pkg/db/models"
	"github.com/tunetide/tunetide-backend/pkg/enums"
)

// MemoryRepository is an in-memory Repository with the same ordering and
// counted-status semantics as the Postgres implementation. It backs the
// engine and service unit tests, where it doubles as the independent
// full-scan oracle the stored metrics are checked against.
type MemoryRepository struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.Bid
	seq  int64
	base time.Time

	// FailCreate, when set, makes the next Create return this error.
	FailCreate error
}

// NewMemoryRepository builds an empty in-memory bid store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		rows: make(map[uuid.UUID]*models.Bid),
		base: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *MemoryRepository) WithTx(tx *gorm.DB) Repository { return m }

func (m *MemoryRepository) Create(ctx context.Context, bid *models.Bid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreate != nil {
		err := m.FailCreate
		m.FailCreate = nil
		return err
	}
	if bid.ID == uuid.Nil {
		bid.ID = uuid.New()
	}
	if bid.CreatedAt.IsZero() {
		m.seq++
		bid.CreatedAt = m.base.Add(time.Duration(m.seq) * time.Millisecond)
	}
	stored := *bid
	m.rows[bid.ID] = &stored
	return nil
}

func (m *MemoryRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *row
	return &copied, nil
}

func (m *MemoryRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.BidStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		row.Status = status
	}
	return nil
}

func (m *MemoryRepository) UpdateActorMediaStats(ctx context.Context, id uuid.UUID, aggregatePence, averagePence int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		row.ActorMediaAggregatePence = aggregatePence
		row.ActorMediaAveragePence = averagePence
	}
	return nil
}

func (m *MemoryRepository) SetReward(ctx context.Context, id uuid.UUID, tuneBytes float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		row.TuneBytesReward = tuneBytes
	}
	return nil
}

func (m *MemoryRepository) SumCounted(ctx context.Context, scope Scope) (int64, error) {
	var total int64
	for _, row := range m.counted(scope) {
		total += row.AmountPence
	}
	return total, nil
}

func (m *MemoryRepository) CountCounted(ctx context.Context, scope Scope) (int64, error) {
	return int64(len(m.counted(scope))), nil
}

func (m *MemoryRepository) TopCounted(ctx context.Context, scope Scope) (*models.Bid, error) {
	rows := m.counted(scope)
	if len(rows) == 0 {
		return nil, nil
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].AmountPence != rows[j].AmountPence {
			return rows[i].AmountPence > rows[j].AmountPence
		}
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.Before(rows[j].CreatedAt)
		}
		return lessUUID(rows[i].ID, rows[j].ID)
	})
	top := rows[0]
	return &top, nil
}

func (m *MemoryRepository) ActorTotals(ctx context.Context, scope Scope) ([]ActorTotal, error) {
	type acc struct {
		total   int64
		created time.Time
		id      uuid.UUID
	}
	byActor := make(map[uuid.UUID]*acc)
	for _, row := range m.counted(scope) {
		entry, ok := byActor[row.ActorID]
		if !ok {
			entry = &acc{created: row.CreatedAt, id: row.ID}
			byActor[row.ActorID] = entry
		}
		entry.total += row.AmountPence
		if row.CreatedAt.Before(entry.created) {
			entry.created = row.CreatedAt
			entry.id = row.ID
		}
	}
	totals := make([]ActorTotal, 0, len(byActor))
	for actorID, entry := range byActor {
		totals = append(totals, ActorTotal{ActorID: actorID, TotalPence: entry.total})
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].TotalPence != totals[j].TotalPence {
			return totals[i].TotalPence > totals[j].TotalPence
		}
		a, b := byActor[totals[i].ActorID], byActor[totals[j].ActorID]
		if !a.created.Equal(b.created) {
			return a.created.Before(b.created)
		}
		return lessUUID(a.id, b.id)
	})
	return totals, nil
}

func (m *MemoryRepository) ListCountedChronological(ctx context.Context, scope Scope) ([]models.Bid, error) {
	rows := m.counted(scope)
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.Before(rows[j].CreatedAt)
		}
		return lessUUID(rows[i].ID, rows[j].ID)
	})
	return rows, nil
}

func (m *MemoryRepository) CountCountedBefore(ctx context.Context, mediaID uuid.UUID, bid *models.Bid) (int64, error) {
	var count int64
	for _, row := range m.counted(Scope{MediaID: &mediaID}) {
		if row.CreatedAt.Before(bid.CreatedAt) ||
			(row.CreatedAt.Equal(bid.CreatedAt) && lessUUID(row.ID, bid.ID)) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryRepository) counted(scope Scope) []models.Bid {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []models.Bid
	for _, row := range m.rows {
		if !row.Status.IsCounted() {
			continue
		}
		if scope.MediaID != nil && row.MediaID != *scope.MediaID {
			continue
		}
		if scope.PartyID != nil && row.PartyID != *scope.PartyID {
			continue
		}
		if scope.ActorID != nil && row.ActorID != *scope.ActorID {
			continue
		}
		rows = append(rows, *row)
	}
	return rows
}

func lessUUID(a, b uuid.UUID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}
