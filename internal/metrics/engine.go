package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tunetide/tunetide-backend/internal/bids"
	"github.com/tunetide/tunetide-backend/internal/media"
	"github.com/tunetide/tunetide-backend/internal/parties"
	"github.com/tunetide/tunetide-backend/pkg/db/models"
	"github.com/tunetide/tunetide-backend/pkg/enums"
	pkgerrors "github.com/tunetide/tunetide-backend/pkg/errors"
	"github.com/tunetide/tunetide-backend/pkg/logger"
	platform "github.com/tunetide/tunetide-backend/pkg/metrics"
)

// Query addresses one metric: which computation, over which scope, for
// which entities. Rank additionally names the bid being ranked.
type Query struct {
	Kind    enums.MetricKind
	Scope   enums.MetricScope
	MediaID *uuid.UUID
	PartyID *uuid.UUID
	ActorID *uuid.UUID
	BidID   *uuid.UUID
}

// Result is a computed metric. AmountPence is the integer answer for every
// kind except average, which carries its fractional value in Average and the
// rounded pence in AmountPence. Top metrics also reference the winning
// actor and, for top bid, the winning bid.
type Result struct {
	Kind        enums.MetricKind
	Scope       enums.MetricScope
	AmountPence int64
	Average     decimal.Decimal
	Rank        int64
	ActorID     *uuid.UUID
	BidID       *uuid.UUID
}

// Engine computes metrics over the bid store and maintains every
// denormalized stat column. Reads go through the TTL cache; any bid write
// proactively invalidates the touched actor, media, and party before the
// stored columns move.
type Engine struct {
	bids     bids.Repository
	media    media.Repository
	parties  parties.Repository
	cache    *Cache
	logg     *logger.Logger
	platform *platform.PlatformMetrics
}

// EngineParams collects the engine's dependencies.
type EngineParams struct {
	Bids     bids.Repository
	Media    media.Repository
	Parties  parties.Repository
	Cache    *Cache
	Logger   *logger.Logger
	Platform *platform.PlatformMetrics
}

// NewEngine validates params and builds the engine.
func NewEngine(p EngineParams) (*Engine, error) {
	if p.Bids == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "metrics engine requires a bid repository")
	}
	if p.Media == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "metrics engine requires a media repository")
	}
	if p.Parties == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "metrics engine requires a parties repository")
	}
	if p.Cache == nil {
		p.Cache = NewCache(0)
	}
	return &Engine{
		bids:     p.Bids,
		media:    p.Media,
		parties:  p.Parties,
		cache:    p.Cache,
		logg:     p.Logger,
		platform: p.Platform,
	}, nil
}

// ComputeMetric answers a metric query. Every kind except rank is served
// through the cache; rank is always computed fresh because it shifts with
// every new counted bid on the media.
func (e *Engine) ComputeMetric(ctx context.Context, q Query) (Result, error) {
	if !q.Kind.IsValid() {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown metric kind %q", q.Kind))
	}
	if q.Kind == enums.MetricKindRank {
		return e.computeRank(ctx, q)
	}
	scope, tags, err := q.bidScope()
	if err != nil {
		return Result{}, err
	}

	key := q.cacheKey()
	if cached, ok := e.cache.Get(key); ok {
		e.platform.IncCacheLookup("hit")
		return cached, nil
	}
	e.platform.IncCacheLookup("miss")

	result, err := e.compute(ctx, q, scope)
	if err != nil {
		return Result{}, err
	}
	e.cache.Set(key, result, tags)
	return result, nil
}

func (e *Engine) compute(ctx context.Context, q Query, scope bids.Scope) (Result, error) {
	result := Result{Kind: q.Kind, Scope: q.Scope}
	switch q.Kind {
	case enums.MetricKindAggregate:
		total, err := e.bids.SumCounted(ctx, scope)
		if err != nil {
			return Result{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "computing aggregate")
		}
		result.AmountPence = total

	case enums.MetricKindTopBid:
		top, err := e.bids.TopCounted(ctx, scope)
		if err != nil {
			return Result{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "computing top bid")
		}
		if top != nil {
			result.AmountPence = top.AmountPence
			actorID := top.ActorID
			bidID := top.ID
			result.ActorID = &actorID
			result.BidID = &bidID
		}

	case enums.MetricKindTopAggregate:
		totals, err := e.bids.ActorTotals(ctx, scope)
		if err != nil {
			return Result{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "computing top aggregate")
		}
		if len(totals) > 0 {
			result.AmountPence = totals[0].TotalPence
			actorID := totals[0].ActorID
			result.ActorID = &actorID
		}

	case enums.MetricKindAverage:
		avg, err := e.average(ctx, scope)
		if err != nil {
			return Result{}, err
		}
		result.Average = avg
		result.AmountPence = roundPence(avg)

	default:
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported metric kind %q", q.Kind))
	}
	return result, nil
}

// average stays fractional; callers round only when persisting to a pence
// column.
func (e *Engine) average(ctx context.Context, scope bids.Scope) (decimal.Decimal, error) {
	total, err := e.bids.SumCounted(ctx, scope)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "summing for average")
	}
	count, err := e.bids.CountCounted(ctx, scope)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "counting for average")
	}
	if count == 0 {
		return decimal.Zero, nil
	}
	return decimal.NewFromInt(total).Div(decimal.NewFromInt(count)), nil
}

// computeRank returns the 1-based position of the bid among its media's
// counted bids in chronological order. Never cached, never stored.
func (e *Engine) computeRank(ctx context.Context, q Query) (Result, error) {
	if q.BidID == nil {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "rank requires a bid id")
	}
	bid, err := e.bids.FindByID(ctx, *q.BidID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Result{}, pkgerrors.New(pkgerrors.CodeNotFound, "bid not found")
		}
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading bid for rank")
	}
	rank, err := e.RankOf(ctx, bid)
	if err != nil {
		return Result{}, err
	}
	bidID := bid.ID
	return Result{
		Kind:  enums.MetricKindRank,
		Scope: enums.MetricScopeGlobalMedia,
		Rank:  rank,
		BidID: &bidID,
	}, nil
}

// RankOf computes a bid's chronological rank when the caller already holds
// the row. A bid outside the counted set has no rank and reports a state
// conflict.
func (e *Engine) RankOf(ctx context.Context, bid *models.Bid) (int64, error) {
	if !bid.Status.IsCounted() {
		return 0, pkgerrors.New(pkgerrors.CodeStateConflict, "bid status excluded from counted set")
	}
	before, err := e.bids.CountCountedBefore(ctx, bid.MediaID, bid)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "counting preceding bids")
	}
	return before + 1, nil
}

// UpdateForBidChange propagates one bid write through every stored stat, in
// scope order: global media, party media, party root, then the bid's own
// actor-media columns. deltaPence is the signed change to counted money
// (+amount on placement, -amount when a bid leaves the counted set). Runs
// inside the caller's transaction.
func (e *Engine) UpdateForBidChange(ctx context.Context, tx *gorm.DB, bid *models.Bid, deltaPence int64) error {
	e.InvalidateForBid(bid)

	start := time.Now()
	bidsRepo := e.bids.WithTx(tx)
	mediaRepo := e.media.WithTx(tx)
	partiesRepo := e.parties.WithTx(tx)

	if deltaPence != 0 {
		if err := mediaRepo.IncrementAggregate(ctx, bid.MediaID, deltaPence); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "incrementing global aggregate")
		}
	}
	if err := e.recomputeGlobalMedia(ctx, bidsRepo, mediaRepo, bid.MediaID); err != nil {
		return err
	}
	if _, err := partiesRepo.EnsurePartyMedia(ctx, bid.PartyID, bid.MediaID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "ensuring party media row")
	}
	if err := e.recomputePartyMedia(ctx, bidsRepo, partiesRepo, bid.PartyID, bid.MediaID); err != nil {
		return err
	}
	if err := e.recomputePartyTops(ctx, bidsRepo, partiesRepo, bid.PartyID); err != nil {
		return err
	}
	if err := e.recomputeActorMedia(ctx, bidsRepo, bid); err != nil {
		return err
	}

	e.platform.ObserveRecompute("bid_change", time.Since(start))
	return nil
}

// InvalidateForBid purges every cached metric the bid can influence.
func (e *Engine) InvalidateForBid(bid *models.Bid) {
	e.cache.InvalidateTags(
		mediaTag(bid.MediaID.String()),
		partyTag(bid.PartyID.String()),
		actorTag(bid.ActorID.String()),
	)
}

// RecomputeMediaMetrics rebuilds a media's global stats from the bid store.
func (e *Engine) RecomputeMediaMetrics(ctx context.Context, mediaID uuid.UUID) error {
	start := time.Now()
	e.cache.InvalidateTags(mediaTag(mediaID.String()))
	if err := e.recomputeGlobalMedia(ctx, e.bids, e.media, mediaID); err != nil {
		return err
	}
	e.platform.ObserveRecompute("global_media", time.Since(start))
	return nil
}

// RecomputePartyMetrics rebuilds every (party, media) row and the party-root
// tops from the bid store.
func (e *Engine) RecomputePartyMetrics(ctx context.Context, partyID uuid.UUID) error {
	start := time.Now()
	e.cache.InvalidateTags(partyTag(partyID.String()))

	rows, err := e.parties.ListPartyMedia(ctx, partyID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing party media")
	}
	for i := range rows {
		if err := e.recomputePartyMedia(ctx, e.bids, e.parties, partyID, rows[i].MediaID); err != nil {
			return err
		}
	}
	if err := e.recomputePartyTops(ctx, e.bids, e.parties, partyID); err != nil {
		return err
	}
	e.platform.ObserveRecompute("party", time.Since(start))
	return nil
}

func (e *Engine) recomputeGlobalMedia(ctx context.Context, bidsRepo bids.Repository, mediaRepo media.Repository, mediaID uuid.UUID) error {
	scope := bids.Scope{MediaID: &mediaID}
	stats, err := e.scopeStats(ctx, bidsRepo, scope)
	if err != nil {
		return err
	}
	update := media.GlobalStats{
		AggregatePence:      stats.aggregate,
		AveragePence:        stats.average,
		TopBidPence:         stats.topBid,
		TopBidActorID:       stats.topBidActor,
		TopAggregatePence:   stats.topAggregate,
		TopAggregateActorID: stats.topAggregateActor,
	}
	if err := mediaRepo.UpdateStats(ctx, mediaID, update); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "writing global media stats")
	}
	return nil
}

func (e *Engine) recomputePartyMedia(ctx context.Context, bidsRepo bids.Repository, partiesRepo parties.Repository, partyID, mediaID uuid.UUID) error {
	scope := bids.Scope{PartyID: &partyID, MediaID: &mediaID}
	stats, err := e.scopeStats(ctx, bidsRepo, scope)
	if err != nil {
		return err
	}
	update := parties.MediaStats{
		AggregatePence:      stats.aggregate,
		AveragePence:        stats.average,
		TopBidPence:         stats.topBid,
		TopBidActorID:       stats.topBidActor,
		TopAggregatePence:   stats.topAggregate,
		TopAggregateActorID: stats.topAggregateActor,
	}
	if err := partiesRepo.UpdatePartyMediaStats(ctx, partyID, mediaID, update); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "writing party media stats")
	}
	return nil
}

// recomputePartyTops rebuilds the party-root tops from a party-wide scan.
// The party row lock comes first so two bids on different media in the same
// party cannot interleave scan and write and persist tops missing the other.
func (e *Engine) recomputePartyTops(ctx context.Context, bidsRepo bids.Repository, partiesRepo parties.Repository, partyID uuid.UUID) error {
	if err := partiesRepo.LockForUpdate(ctx, partyID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "locking party row")
	}

	scope := bids.Scope{PartyID: &partyID}
	tops := parties.PartyTops{}

	top, err := bidsRepo.TopCounted(ctx, scope)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "finding party top bid")
	}
	if top != nil {
		tops.TopBidPence = top.AmountPence
		actorID := top.ActorID
		mediaID := top.MediaID
		tops.TopBidActorID = &actorID
		tops.TopBidMediaID = &mediaID
	}

	totals, err := bidsRepo.ActorTotals(ctx, scope)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "finding party top aggregate")
	}
	if len(totals) > 0 {
		tops.TopAggregatePence = totals[0].TotalPence
		actorID := totals[0].ActorID
		tops.TopAggregateActorID = &actorID
	}

	if err := partiesRepo.UpdatePartyTops(ctx, partyID, tops); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "writing party tops")
	}
	return nil
}

// recomputeActorMedia refreshes the bid-level denormalized columns for every
// counted bid this actor holds on the media, so all of an actor's bids agree
// on the actor's running total.
func (e *Engine) recomputeActorMedia(ctx context.Context, bidsRepo bids.Repository, bid *models.Bid) error {
	actorID := bid.ActorID
	mediaID := bid.MediaID
	scope := bids.Scope{ActorID: &actorID, MediaID: &mediaID}

	total, err := bidsRepo.SumCounted(ctx, scope)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "summing actor media bids")
	}
	count, err := bidsRepo.CountCounted(ctx, scope)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "counting actor media bids")
	}
	var avg int64
	if count > 0 {
		avg = roundPence(decimal.NewFromInt(total).Div(decimal.NewFromInt(count)))
	}

	rows, err := bidsRepo.ListCountedChronological(ctx, scope)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing actor media bids")
	}
	for i := range rows {
		if err := bidsRepo.UpdateActorMediaStats(ctx, rows[i].ID, total, avg); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "writing actor media stats")
		}
	}
	return nil
}

type scopeStats struct {
	aggregate         int64
	average           int64
	topBid            int64
	topBidActor       *uuid.UUID
	topAggregate      int64
	topAggregateActor *uuid.UUID
}

func (e *Engine) scopeStats(ctx context.Context, bidsRepo bids.Repository, scope bids.Scope) (scopeStats, error) {
	var stats scopeStats

	total, err := bidsRepo.SumCounted(ctx, scope)
	if err != nil {
		return stats, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "summing scope")
	}
	stats.aggregate = total

	count, err := bidsRepo.CountCounted(ctx, scope)
	if err != nil {
		return stats, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "counting scope")
	}
	if count > 0 {
		stats.average = roundPence(decimal.NewFromInt(total).Div(decimal.NewFromInt(count)))
	}

	top, err := bidsRepo.TopCounted(ctx, scope)
	if err != nil {
		return stats, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "finding scope top bid")
	}
	if top != nil {
		stats.topBid = top.AmountPence
		actorID := top.ActorID
		stats.topBidActor = &actorID
	}

	totals, err := bidsRepo.ActorTotals(ctx, scope)
	if err != nil {
		return stats, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "finding scope top aggregate")
	}
	if len(totals) > 0 {
		stats.topAggregate = totals[0].TotalPence
		actorID := totals[0].ActorID
		stats.topAggregateActor = &actorID
	}
	return stats, nil
}

// bidScope maps the query's metric scope to a bid-store filter plus the
// invalidation tags the cached result depends on.
func (q Query) bidScope() (bids.Scope, []string, error) {
	var scope bids.Scope
	var tags []string
	switch q.Scope {
	case enums.MetricScopeGlobalMedia:
		if q.MediaID == nil {
			return scope, nil, pkgerrors.New(pkgerrors.CodeValidation, "global media scope requires a media id")
		}
		scope.MediaID = q.MediaID
		tags = append(tags, mediaTag(q.MediaID.String()))
	case enums.MetricScopePartyMedia:
		if q.MediaID == nil || q.PartyID == nil {
			return scope, nil, pkgerrors.New(pkgerrors.CodeValidation, "party media scope requires media and party ids")
		}
		scope.MediaID = q.MediaID
		scope.PartyID = q.PartyID
		tags = append(tags, mediaTag(q.MediaID.String()), partyTag(q.PartyID.String()))
	case enums.MetricScopeParty:
		if q.PartyID == nil {
			return scope, nil, pkgerrors.New(pkgerrors.CodeValidation, "party scope requires a party id")
		}
		scope.PartyID = q.PartyID
		tags = append(tags, partyTag(q.PartyID.String()))
	case enums.MetricScopeUserMedia:
		if q.MediaID == nil || q.ActorID == nil {
			return scope, nil, pkgerrors.New(pkgerrors.CodeValidation, "user media scope requires media and actor ids")
		}
		scope.MediaID = q.MediaID
		scope.ActorID = q.ActorID
		tags = append(tags, mediaTag(q.MediaID.String()), actorTag(q.ActorID.String()))
	default:
		return scope, nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown metric scope %q", q.Scope))
	}
	return scope, tags, nil
}

func (q Query) cacheKey() string {
	key := string(q.Kind) + "|" + string(q.Scope)
	for _, id := range []*uuid.UUID{q.MediaID, q.PartyID, q.ActorID, q.BidID} {
		key += "|"
		if id != nil {
			key += id.String()
		}
	}
	return key
}

// roundPence rounds a fractional pence value half away from zero, the
// convention every persisted average column uses.
func roundPence(value decimal.Decimal) int64 {
	return value.Round(0).IntPart()
}
