package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tunetide/tunetide-backend/pkg/db/models"
	"github.com/tunetide/tunetide-backend/pkg/enums"
	pkgerrors "github.com/tunetide/tunetide-backend/pkg/errors"
)

func newTestService(t *testing.T) (*Service, *MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	service, err := NewService(ServiceParams{Repo: repo})
	require.NoError(t, err)
	return service, repo
}

func validTopUp(userID uuid.UUID) *models.LedgerEntry {
	return &models.LedgerEntry{
		UserID:               userID,
		Type:                 enums.TransactionTypeTopUp,
		AmountPence:          500,
		UserBalancePrePence:  100,
		UserBalancePostPence: 600,
	}
}

func TestRecordEntry(t *testing.T) {
	service, repo := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, service.RecordEntry(ctx, &gorm.DB{}, validTopUp(userID)))

	entries := repo.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, userID, entries[0].UserID)
}

func TestRecordEntryRequiresTransaction(t *testing.T) {
	service, _ := newTestService(t)
	err := service.RecordEntry(context.Background(), nil, validTopUp(uuid.New()))
	require.Error(t, err)
}

func TestRecordEntrySnapshotInvariants(t *testing.T) {
	service, repo := newTestService(t)
	ctx := context.Background()

	topUp := validTopUp(uuid.New())
	topUp.UserBalancePostPence = 599
	err := service.RecordEntry(ctx, &gorm.DB{}, topUp)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	tip := &models.LedgerEntry{
		UserID:               uuid.New(),
		Type:                 enums.TransactionTypeTip,
		AmountPence:          100,
		UserBalancePrePence:  500,
		UserBalancePostPence: 500,
	}
	err = service.RecordEntry(ctx, &gorm.DB{}, tip)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	assert.Empty(t, repo.Entries())
}

func TestRecordEntryValidation(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	cases := []*models.LedgerEntry{
		nil,
		{Type: enums.TransactionTypeTopUp},
		{UserID: uuid.New(), Type: "WITHDRAWAL"},
		{UserID: uuid.New(), Type: enums.TransactionTypeTip, AmountPence: -5},
	}
	for _, entry := range cases {
		err := service.RecordEntry(ctx, &gorm.DB{}, entry)
		require.Error(t, err)
		assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
	}
}

func TestListByUser(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, service.RecordEntry(ctx, &gorm.DB{}, validTopUp(userID)))
	require.NoError(t, service.RecordEntry(ctx, &gorm.DB{}, validTopUp(uuid.New())))

	entries, total, err := service.ListByUser(ctx, userID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, int64(1), total)
}
