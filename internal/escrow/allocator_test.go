package escrow

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tunetide/tunetide-backend/internal/ledger"
	"github.com/tunetide/tunetide-backend/internal/users"
	"github.com/tunetide/tunetide-backend/pkg/db/models"
	pkgerrors "github.com/tunetide/tunetide-backend/pkg/errors"
)

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

func newTestAllocator(t *testing.T) (*Allocator, *MemoryRepository, *users.MemoryRepository, *ledger.MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	usersRepo := users.NewMemoryRepository()
	ledgerRepo := ledger.NewMemoryRepository()
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{Repo: ledgerRepo})
	require.NoError(t, err)

	allocator, err := NewAllocator(AllocatorParams{
		Repo:                 repo,
		Users:                usersRepo,
		Ledger:               ledgerSvc,
		TxRunner:             passthroughTx{},
		PlatformSharePercent: 30,
	})
	require.NoError(t, err)
	return allocator, repo, usersRepo, ledgerRepo
}

func TestSplitSeventyThirty(t *testing.T) {
	allocator, _, _, _ := newTestAllocator(t)

	ownerA := uuid.New()
	ownerB := uuid.New()
	owners := []models.MediaOwner{
		{OwnerUserID: &ownerA, Name: "Owner A", Percentage: 60},
		{OwnerUserID: &ownerB, Name: "Owner B", Percentage: 40},
	}

	breakdown, err := allocator.Split(1000, owners)
	require.NoError(t, err)

	assert.Equal(t, int64(1000), breakdown.TipPence)
	assert.Equal(t, int64(300), breakdown.PlatformPence)
	require.Len(t, breakdown.OwnerShares, 2)
	assert.Equal(t, int64(420), breakdown.OwnerShares[0].AmountPence)
	assert.Equal(t, int64(280), breakdown.OwnerShares[1].AmountPence)
}

func TestSplitRemainderGoesToPlatform(t *testing.T) {
	allocator, _, _, _ := newTestAllocator(t)

	ownerA := uuid.New()
	owners := []models.MediaOwner{
		{OwnerUserID: &ownerA, Name: "Owner A", Percentage: 100},
	}

	breakdown, err := allocator.Split(999, owners)
	require.NoError(t, err)

	var allocated int64
	for _, share := range breakdown.OwnerShares {
		allocated += share.AmountPence
	}
	assert.Equal(t, breakdown.TipPence, allocated+breakdown.PlatformPence)
}

func TestSplitRejectsBadPercentageSum(t *testing.T) {
	allocator, _, _, _ := newTestAllocator(t)

	owners := []models.MediaOwner{
		{Name: "Owner A", Percentage: 60},
		{Name: "Owner B", Percentage: 30},
	}

	_, err := allocator.Split(1000, owners)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestSplitNoOwners(t *testing.T) {
	allocator, _, _, _ := newTestAllocator(t)

	breakdown, err := allocator.Split(1000, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), breakdown.PlatformPence)
	assert.Empty(t, breakdown.OwnerShares)
}

func TestAllocateForBidCreditsAndParks(t *testing.T) {
	allocator, repo, usersRepo, _ := newTestAllocator(t)
	ctx := context.Background()

	registered := uuid.New()
	usersRepo.Put(models.User{ID: registered})

	externalID := "spotify:artist:abc"
	mediaRow := &models.Media{
		ID: uuid.New(),
		Owners: []models.MediaOwner{
			{OwnerUserID: &registered, Name: "Signed Artist", Percentage: 60},
			{Name: "  Unsigned Artist ", ExternalArtistID: &externalID, Percentage: 40},
		},
	}
	bid := &models.Bid{ID: uuid.New(), AmountPence: 1000, MediaID: mediaRow.ID}

	breakdown, err := allocator.AllocateForBid(ctx, &gorm.DB{}, bid, mediaRow)
	require.NoError(t, err)
	assert.Equal(t, int64(300), breakdown.PlatformPence)

	owner, err := usersRepo.FindByID(ctx, registered)
	require.NoError(t, err)
	assert.Equal(t, int64(420), owner.EscrowBalancePence)

	allocations := repo.Allocations()
	require.Len(t, allocations, 1)
	assert.Equal(t, "unsigned artist", allocations[0].ArtistName)
	assert.Equal(t, int64(280), allocations[0].AmountPence)
	assert.False(t, allocations[0].Claimed)
}

func TestClaimAllocationsTransfersAndAudits(t *testing.T) {
	allocator, repo, usersRepo, ledgerRepo := newTestAllocator(t)
	ctx := context.Background()

	claimant := uuid.New()
	usersRepo.Put(models.User{ID: claimant, BalancePence: 50})

	mediaID := uuid.New()
	for _, amount := range []int64{280, 120} {
		require.NoError(t, repo.Create(ctx, &models.ArtistEscrowAllocation{
			MediaID:     mediaID,
			BidID:       uuid.New(),
			ArtistName:  "unsigned artist",
			Percentage:  40,
			AmountPence: amount,
		}))
	}

	result, err := allocator.ClaimAllocations(ctx, claimant, "Unsigned Artist", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.AllocationCount)
	assert.Equal(t, int64(400), result.TotalPence)

	user, err := usersRepo.FindByID(ctx, claimant)
	require.NoError(t, err)
	assert.Equal(t, int64(450), user.BalancePence)

	for _, allocation := range repo.Allocations() {
		assert.True(t, allocation.Claimed)
		require.NotNil(t, allocation.ClaimedByUserID)
		assert.Equal(t, claimant, *allocation.ClaimedByUserID)
	}

	entries := ledgerRepo.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(400), entries[0].AmountPence)
	assert.Equal(t, int64(50), entries[0].UserBalancePrePence)
	assert.Equal(t, int64(450), entries[0].UserBalancePostPence)

	// A second claim finds nothing left.
	again, err := allocator.ClaimAllocations(ctx, claimant, "Unsigned Artist", nil)
	require.NoError(t, err)
	assert.Zero(t, again.AllocationCount)
}

func TestAllocateForBidNoOwnersGoesToPlatform(t *testing.T) {
	allocator, repo, _, _ := newTestAllocator(t)
	ctx := context.Background()

	mediaRow := &models.Media{ID: uuid.New()}
	bid := &models.Bid{ID: uuid.New(), AmountPence: 1000, MediaID: mediaRow.ID}

	breakdown, err := allocator.AllocateForBid(ctx, &gorm.DB{}, bid, mediaRow)
	require.NoError(t, err)

	// No identity to attribute a share to, so nothing is parked and the
	// whole tip stays with the platform.
	assert.Equal(t, int64(1000), breakdown.PlatformPence)
	assert.Empty(t, breakdown.OwnerShares)
	assert.Empty(t, repo.Allocations())
}

func TestClaimAllocationsRejectsTakenIdentity(t *testing.T) {
	allocator, repo, usersRepo, _ := newTestAllocator(t)
	ctx := context.Background()

	name := "unsigned artist"
	holder := uuid.New()
	usersRepo.Put(models.User{ID: holder, ArtistName: &name})

	claimant := uuid.New()
	usersRepo.Put(models.User{ID: claimant, BalancePence: 50})

	require.NoError(t, repo.Create(ctx, &models.ArtistEscrowAllocation{
		MediaID:     uuid.New(),
		BidID:       uuid.New(),
		ArtistName:  name,
		Percentage:  40,
		AmountPence: 280,
	}))

	_, err := allocator.ClaimAllocations(ctx, claimant, "Unsigned Artist", nil)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())

	// Nothing moved.
	user, err := usersRepo.FindByID(ctx, claimant)
	require.NoError(t, err)
	assert.Equal(t, int64(50), user.BalancePence)
	for _, allocation := range repo.Allocations() {
		assert.False(t, allocation.Claimed)
	}
}

func TestClaimAllocationsLocksClaimantRow(t *testing.T) {
	allocator, repo, usersRepo, _ := newTestAllocator(t)
	ctx := context.Background()

	claimant := uuid.New()
	usersRepo.Put(models.User{ID: claimant})
	require.NoError(t, repo.Create(ctx, &models.ArtistEscrowAllocation{
		MediaID:     uuid.New(),
		BidID:       uuid.New(),
		ArtistName:  "unsigned artist",
		Percentage:  40,
		AmountPence: 280,
	}))

	_, err := allocator.ClaimAllocations(ctx, claimant, "Unsigned Artist", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, usersRepo.LockedFinds)
}

func TestUnclaimedTotal(t *testing.T) {
	allocator, repo, usersRepo, _ := newTestAllocator(t)
	ctx := context.Background()

	claimant := uuid.New()
	usersRepo.Put(models.User{ID: claimant})

	for _, amount := range []int64{280, 120} {
		require.NoError(t, repo.Create(ctx, &models.ArtistEscrowAllocation{
			MediaID:     uuid.New(),
			BidID:       uuid.New(),
			ArtistName:  "unsigned artist",
			Percentage:  40,
			AmountPence: amount,
		}))
	}
	require.NoError(t, repo.Create(ctx, &models.ArtistEscrowAllocation{
		MediaID:     uuid.New(),
		BidID:       uuid.New(),
		ArtistName:  "other artist",
		Percentage:  100,
		AmountPence: 75,
	}))

	total, err := allocator.UnclaimedTotal(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(475), total)

	_, err = allocator.ClaimAllocations(ctx, claimant, "Unsigned Artist", nil)
	require.NoError(t, err)

	total, err = allocator.UnclaimedTotal(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(75), total)
}
