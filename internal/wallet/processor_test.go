package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tunetide/tunetide-backend/internal/ledger"
	"github.com/tunetide/tunetide-backend/internal/media"
	"github.com/tunetide/tunetide-backend/internal/users"
	"github.com/tunetide/tunetide-backend/pkg/db/models"
	"github.com/tunetide/tunetide-backend/pkg/enums"
	pkgerrors "github.com/tunetide/tunetide-backend/pkg/errors"
)

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type fixedSettlement struct {
	net int64
	err error
}

func (f fixedSettlement) NetAmountPence(ctx context.Context, paymentIntentID string) (int64, error) {
	return f.net, f.err
}

type failingNotifier struct {
	calls int
}

func (n *failingNotifier) TopUpCompleted(ctx context.Context, result TopUpResult) error {
	n.calls++
	return errors.New("smtp unavailable")
}

type harness struct {
	processor *Processor
	repo      *MemoryRepository
	users     *users.MemoryRepository
	ledger    *ledger.MemoryRepository
	userID    uuid.UUID
}

func newHarness(t *testing.T, settlement SettlementResolver, notifiers ...Notifier) *harness {
	t.Helper()
	repo := NewMemoryRepository()
	usersRepo := users.NewMemoryRepository()
	mediaRepo := media.NewMemoryRepository()
	ledgerRepo := ledger.NewMemoryRepository()
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{Repo: ledgerRepo})
	require.NoError(t, err)

	userID := uuid.New()
	usersRepo.Put(models.User{ID: userID, BalancePence: 100})

	processor, err := NewProcessor(ProcessorParams{
		Repo:       repo,
		Users:      usersRepo,
		Media:      mediaRepo,
		Ledger:     ledgerSvc,
		Settlement: settlement,
		TxRunner:   passthroughTx{},
		Notifiers:  notifiers,
	})
	require.NoError(t, err)
	return &harness{processor: processor, repo: repo, users: usersRepo, ledger: ledgerRepo, userID: userID}
}

func topUpEvent(userID uuid.UUID) TopUpEvent {
	return TopUpEvent{
		ProviderSessionID: "cs_test_123",
		PaymentIntentID:   "pi_test_123",
		UserID:            userID,
		GrossAmountPence:  500,
	}
}

func TestProcessTopUpCreditsNetAmount(t *testing.T) {
	h := newHarness(t, fixedSettlement{net: 472})
	ctx := context.Background()

	result, err := h.processor.ProcessTopUp(ctx, topUpEvent(h.userID))
	require.NoError(t, err)
	require.False(t, result.Replayed)

	// The verified net figure is credited, never the gross estimate.
	assert.Equal(t, int64(472), result.Transaction.AmountPence)
	assert.Equal(t, int64(100), result.Transaction.BalanceBefore)
	assert.Equal(t, int64(572), result.Transaction.BalanceAfter)

	user, err := h.users.FindByID(ctx, h.userID)
	require.NoError(t, err)
	assert.Equal(t, int64(572), user.BalancePence)

	entries := h.ledger.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, enums.TransactionTypeTopUp, entries[0].Type)
	assert.Equal(t, int64(100), entries[0].UserBalancePrePence)
	assert.Equal(t, int64(572), entries[0].UserBalancePostPence)
}

func TestProcessTopUpIdempotent(t *testing.T) {
	h := newHarness(t, fixedSettlement{net: 472})
	ctx := context.Background()
	event := topUpEvent(h.userID)

	first, err := h.processor.ProcessTopUp(ctx, event)
	require.NoError(t, err)
	require.False(t, first.Replayed)

	second, err := h.processor.ProcessTopUp(ctx, event)
	require.NoError(t, err)
	require.True(t, second.Replayed)
	assert.Equal(t, first.Transaction.ID, second.Transaction.ID)

	// Credited exactly once.
	user, err := h.users.FindByID(ctx, h.userID)
	require.NoError(t, err)
	assert.Equal(t, int64(572), user.BalancePence)
	assert.Len(t, h.ledger.Entries(), 1)
}

// rollbackTx mimics a real transaction against the memory stores: when fn
// fails, the restore callback unwinds every mutation fn made.
type rollbackTx struct {
	restore func()
}

func (r rollbackTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	err := fn(&gorm.DB{})
	if err != nil && r.restore != nil {
		r.restore()
	}
	return err
}

func TestProcessTopUpAtomicity(t *testing.T) {
	repo := NewMemoryRepository()
	usersRepo := users.NewMemoryRepository()
	mediaRepo := media.NewMemoryRepository()
	ledgerRepo := ledger.NewMemoryRepository()
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{Repo: ledgerRepo})
	require.NoError(t, err)

	userID := uuid.New()
	before := models.User{ID: userID, BalancePence: 100}
	usersRepo.Put(before)

	processor, err := NewProcessor(ProcessorParams{
		Repo:       repo,
		Users:      usersRepo,
		Media:      mediaRepo,
		Ledger:     ledgerSvc,
		Settlement: fixedSettlement{net: 472},
		TxRunner:   rollbackTx{restore: func() { usersRepo.Put(before) }},
	})
	require.NoError(t, err)

	ctx := context.Background()
	ledgerRepo.FailCreate = errors.New("disk full")

	_, err = processor.ProcessTopUp(ctx, topUpEvent(userID))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsRetryable(err))

	// The balance is exactly what it was before the failed unit.
	user, findErr := usersRepo.FindByID(ctx, userID)
	require.NoError(t, findErr)
	assert.Equal(t, int64(100), user.BalancePence)
	assert.Empty(t, ledgerRepo.Entries())
}

func TestProcessTopUpFailsWithoutSettlementData(t *testing.T) {
	h := newHarness(t, fixedSettlement{err: pkgerrors.New(pkgerrors.CodeDependency, "settlement data not yet available for payment")})
	ctx := context.Background()

	_, err := h.processor.ProcessTopUp(ctx, topUpEvent(h.userID))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeDependency, typed.Code())

	// Nothing moved.
	user, findErr := h.users.FindByID(ctx, h.userID)
	require.NoError(t, findErr)
	assert.Equal(t, int64(100), user.BalancePence)
	assert.Empty(t, h.ledger.Entries())
}

func TestProcessTopUpValidation(t *testing.T) {
	h := newHarness(t, fixedSettlement{net: 472})
	ctx := context.Background()

	event := topUpEvent(h.userID)
	event.ProviderSessionID = ""
	_, err := h.processor.ProcessTopUp(ctx, event)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestProcessTopUpConcurrentDuplicate(t *testing.T) {
	h := newHarness(t, fixedSettlement{net: 472})
	ctx := context.Background()
	event := topUpEvent(h.userID)

	// Simulate the losing side of a race: a completed row for the session
	// appears between the fast-path check and the insert.
	first, err := h.processor.ProcessTopUp(ctx, event)
	require.NoError(t, err)

	duplicate := models.WalletTransaction{
		UserID:            h.userID,
		AmountPence:       472,
		Type:              enums.TransactionTypeTopUp,
		Status:            enums.WalletTransactionStatusCompleted,
		ProviderSessionID: event.ProviderSessionID,
	}
	createErr := h.repo.Create(ctx, &duplicate)
	require.Error(t, createErr)
	assert.Contains(t, createErr.Error(), completedSessionConstraint)
	_ = first
}

func TestProcessTopUpNotifierFailureIsSwallowed(t *testing.T) {
	notifier := &failingNotifier{}
	h := newHarness(t, fixedSettlement{net: 472}, notifier)
	ctx := context.Background()

	result, err := h.processor.ProcessTopUp(ctx, topUpEvent(h.userID))
	require.NoError(t, err)
	require.False(t, result.Replayed)
	assert.Equal(t, 1, notifier.calls)

	user, err := h.users.FindByID(ctx, h.userID)
	require.NoError(t, err)
	assert.Equal(t, int64(572), user.BalancePence)
}

func TestProcessTopUpLocksUserRow(t *testing.T) {
	h := newHarness(t, fixedSettlement{net: 472})
	ctx := context.Background()

	_, err := h.processor.ProcessTopUp(ctx, topUpEvent(h.userID))
	require.NoError(t, err)

	// The balance snapshot behind BalanceBefore/After must come from a
	// locked read, or a concurrent top-up for the same user can commit a
	// stale pair.
	assert.Equal(t, 1, h.users.LockedFinds)
}
