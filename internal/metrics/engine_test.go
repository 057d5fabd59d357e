package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tunetide/tunetide-backend/internal/bids"
	"github.com/tunetide/tunetide-backend/internal/media"
	"github.com/tunetide/tunetide-backend/internal/parties"
	"github.com/tunetide/tunetide-backend/pkg/db/models"
	"github.com/tunetide/tunetide-backend/pkg/enums"
	pkgerrors "github.com/tunetide/tunetide-backend/pkg/errors"
)

type engineFixture struct {
	engine  *Engine
	bids    *bids.MemoryRepository
	media   *media.MemoryRepository
	parties *parties.MemoryRepository
	mediaID uuid.UUID
	partyID uuid.UUID
}

func newFixture(t *testing.T) *engineFixture {
	t.Helper()
	bidsRepo := bids.NewMemoryRepository()
	mediaRepo := media.NewMemoryRepository()
	partiesRepo := parties.NewMemoryRepository()

	mediaID := uuid.New()
	partyID := uuid.New()
	mediaRepo.Put(models.Media{ID: mediaID})
	partiesRepo.Put(models.Party{ID: partyID})

	engine, err := NewEngine(EngineParams{
		Bids:    bidsRepo,
		Media:   mediaRepo,
		Parties: partiesRepo,
		Cache:   NewCache(5 * time.Minute),
	})
	require.NoError(t, err)
	return &engineFixture{
		engine:  engine,
		bids:    bidsRepo,
		media:   mediaRepo,
		parties: partiesRepo,
		mediaID: mediaID,
		partyID: partyID,
	}
}

func (f *engineFixture) place(t *testing.T, actorID uuid.UUID, amount int64) *models.Bid {
	t.Helper()
	bid := &models.Bid{
		ActorID:     actorID,
		MediaID:     f.mediaID,
		PartyID:     f.partyID,
		AmountPence: amount,
		Status:      enums.BidStatusActive,
	}
	require.NoError(t, f.bids.Create(context.Background(), bid))
	require.NoError(t, f.engine.UpdateForBidChange(context.Background(), &gorm.DB{}, bid, amount))
	return bid
}

func TestComputeAggregate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()
	f.place(t, actor, 100)
	f.place(t, actor, 250)

	result, err := f.engine.ComputeMetric(ctx, Query{
		Kind:    enums.MetricKindAggregate,
		Scope:   enums.MetricScopeGlobalMedia,
		MediaID: &f.mediaID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(350), result.AmountPence)
}

func TestComputeTopBidTieBreak(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.place(t, uuid.New(), 200)
	f.place(t, uuid.New(), 200)

	result, err := f.engine.ComputeMetric(ctx, Query{
		Kind:    enums.MetricKindTopBid,
		Scope:   enums.MetricScopeGlobalMedia,
		MediaID: &f.mediaID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(200), result.AmountPence)
	// Equal amounts break by earliest creation.
	require.NotNil(t, result.BidID)
	assert.Equal(t, first.ID, *result.BidID)
}

func TestComputeTopAggregate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	whale := uuid.New()
	minnow := uuid.New()
	f.place(t, whale, 100)
	f.place(t, whale, 150)
	f.place(t, minnow, 200)

	result, err := f.engine.ComputeMetric(ctx, Query{
		Kind:    enums.MetricKindTopAggregate,
		Scope:   enums.MetricScopeGlobalMedia,
		MediaID: &f.mediaID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(250), result.AmountPence)
	require.NotNil(t, result.ActorID)
	assert.Equal(t, whale, *result.ActorID)
}

func TestComputeAverageFractionalUntilPersist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()
	f.place(t, actor, 100)
	f.place(t, actor, 101)

	result, err := f.engine.ComputeMetric(ctx, Query{
		Kind:    enums.MetricKindAverage,
		Scope:   enums.MetricScopeGlobalMedia,
		MediaID: &f.mediaID,
	})
	require.NoError(t, err)
	assert.Equal(t, "100.5", result.Average.String())
	assert.Equal(t, int64(101), result.AmountPence)
}

func TestComputeRank(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.place(t, uuid.New(), 50)
	second := f.place(t, uuid.New(), 500)

	result, err := f.engine.ComputeMetric(ctx, Query{Kind: enums.MetricKindRank, BidID: &first.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Rank)

	result, err = f.engine.ComputeMetric(ctx, Query{Kind: enums.MetricKindRank, BidID: &second.ID})
	require.NoError(t, err)
	// Rank follows creation order, not amount.
	assert.Equal(t, int64(2), result.Rank)
}

func TestComputeMetricValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.ComputeMetric(ctx, Query{Kind: "bogus", Scope: enums.MetricScopeGlobalMedia})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = f.engine.ComputeMetric(ctx, Query{Kind: enums.MetricKindAggregate, Scope: enums.MetricScopeGlobalMedia})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = f.engine.ComputeMetric(ctx, Query{Kind: enums.MetricKindRank})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestCacheServesRepeatReads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()
	f.place(t, actor, 100)

	query := Query{Kind: enums.MetricKindAggregate, Scope: enums.MetricScopeGlobalMedia, MediaID: &f.mediaID}
	first, err := f.engine.ComputeMetric(ctx, query)
	require.NoError(t, err)

	// A write that bypasses the engine leaves the cached value in place.
	rogue := &models.Bid{ActorID: actor, MediaID: f.mediaID, PartyID: f.partyID, AmountPence: 999, Status: enums.BidStatusActive}
	require.NoError(t, f.bids.Create(ctx, rogue))

	cached, err := f.engine.ComputeMetric(ctx, query)
	require.NoError(t, err)
	assert.Equal(t, first.AmountPence, cached.AmountPence)

	// A write through the engine invalidates proactively.
	require.NoError(t, f.engine.UpdateForBidChange(ctx, &gorm.DB{}, rogue, rogue.AmountPence))
	fresh, err := f.engine.ComputeMetric(ctx, query)
	require.NoError(t, err)
	assert.Equal(t, int64(1099), fresh.AmountPence)
}

func TestStoredStatsConvergeToFullScan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	whale := uuid.New()
	minnow := uuid.New()
	f.place(t, whale, 300)
	f.place(t, minnow, 500)
	whaleSecond := f.place(t, whale, 400)

	// Global media stats match an independent full scan.
	mediaRow, err := f.media.FindByID(ctx, f.mediaID)
	require.NoError(t, err)
	oracle, err := f.bids.SumCounted(ctx, bids.Scope{MediaID: &f.mediaID})
	require.NoError(t, err)
	assert.Equal(t, oracle, mediaRow.GlobalAggregatePence)
	assert.Equal(t, int64(500), mediaRow.GlobalTopBidPence)
	require.NotNil(t, mediaRow.GlobalTopBidActorID)
	assert.Equal(t, minnow, *mediaRow.GlobalTopBidActorID)
	assert.Equal(t, int64(700), mediaRow.GlobalTopAggregatePence)
	require.NotNil(t, mediaRow.GlobalTopAggregateActorID)
	assert.Equal(t, whale, *mediaRow.GlobalTopAggregateActorID)
	assert.Equal(t, int64(400), mediaRow.GlobalAveragePence)

	// Party media mirrors the same figures for a single-party history.
	pm, err := f.parties.EnsurePartyMedia(ctx, f.partyID, f.mediaID)
	require.NoError(t, err)
	assert.Equal(t, oracle, pm.AggregatePence)
	assert.Equal(t, int64(500), pm.TopBidPence)

	// Party root tops.
	party, err := f.parties.FindByID(ctx, f.partyID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), party.TopBidPence)
	assert.Equal(t, int64(700), party.TopAggregatePence)

	// Bid-level actor columns carry the actor's running total and average.
	stored, err := f.bids.FindByID(ctx, whaleSecond.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(700), stored.ActorMediaAggregatePence)
	assert.Equal(t, int64(350), stored.ActorMediaAveragePence)
}

func TestStatusChangeRemovesFromStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()
	kept := f.place(t, actor, 100)
	dropped := f.place(t, uuid.New(), 900)

	require.NoError(t, f.bids.UpdateStatus(ctx, dropped.ID, enums.BidStatusRefunded))
	dropped.Status = enums.BidStatusRefunded
	require.NoError(t, f.engine.UpdateForBidChange(ctx, &gorm.DB{}, dropped, -dropped.AmountPence))

	mediaRow, err := f.media.FindByID(ctx, f.mediaID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), mediaRow.GlobalAggregatePence)
	assert.Equal(t, int64(100), mediaRow.GlobalTopBidPence)
	require.NotNil(t, mediaRow.GlobalTopBidActorID)
	assert.Equal(t, kept.ActorID, *mediaRow.GlobalTopBidActorID)
}

func TestRecomputeMediaMetricsRebuilds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.place(t, uuid.New(), 100)

	// Corrupt the stored stats, then rebuild from the bid store.
	require.NoError(t, f.media.UpdateStats(ctx, f.mediaID, media.GlobalStats{AggregatePence: 9999}))
	require.NoError(t, f.engine.RecomputeMediaMetrics(ctx, f.mediaID))

	mediaRow, err := f.media.FindByID(ctx, f.mediaID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), mediaRow.GlobalAggregatePence)
}

func TestRecomputePartyMetricsRebuilds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.place(t, uuid.New(), 100)
	f.place(t, uuid.New(), 300)

	require.NoError(t, f.parties.UpdatePartyTops(ctx, f.partyID, parties.PartyTops{TopBidPence: 9999}))
	require.NoError(t, f.engine.RecomputePartyMetrics(ctx, f.partyID))

	party, err := f.parties.FindByID(ctx, f.partyID)
	require.NoError(t, err)
	assert.Equal(t, int64(300), party.TopBidPence)
}

func TestUpdateForBidChangeLocksPartyRow(t *testing.T) {
	f := newFixture(t)

	f.place(t, uuid.New(), 100)

	// The party-wide scan behind the party-root tops runs under the party
	// row lock so concurrent bids on different media serialize.
	assert.Equal(t, 1, f.parties.LockedParties)
}
