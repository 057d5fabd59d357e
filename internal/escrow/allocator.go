package escrow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tunetide/tunetide-backend/internal/ledger"
	"github.com/tunetide/tunetide-backend/internal/users"
	"github.com/tunetide/tunetide-backend/pkg/db"
	"github.com/tunetide/tunetide-backend/pkg/db/models"
	"github.com/tunetide/tunetide-backend/pkg/enums"
	pkgerrors "github.com/tunetide/tunetide-backend/pkg/errors"
	"github.com/tunetide/tunetide-backend/pkg/logger"
	"github.com/tunetide/tunetide-backend/pkg/outbox"
	"github.com/tunetide/tunetide-backend/pkg/outbox/payloads"
)

// OwnerShare is one content owner's cut of a tip.
type OwnerShare struct {
	OwnerUserID *uuid.UUID
	Name        string
	Percentage  int
	AmountPence int64
	Parked      bool
}

// Breakdown is the full split of a single tip.
type Breakdown struct {
	TipPence      int64
	PlatformPence int64
	OwnerShares   []OwnerShare
}

// ClaimResult summarizes the transfer of parked allocations at registration.
type ClaimResult struct {
	AllocationCount int
	TotalPence      int64
}

// Allocator splits each counted tip between the platform and the media's
// content owners. Registered owners are credited immediately; shares for
// unregistered artists are parked until the artist registers and claims.
type Allocator struct {
	repo                 Repository
	users                users.Repository
	ledger               *ledger.Service
	tx                   db.TxRunner
	box                  *outbox.Service
	logg                 *logger.Logger
	platformSharePercent int
}

// AllocatorParams collects the allocator's dependencies.
type AllocatorParams struct {
	Repo                 Repository
	Users                users.Repository
	Ledger               *ledger.Service
	TxRunner             db.TxRunner
	Outbox               *outbox.Service
	Logger               *logger.Logger
	PlatformSharePercent int
}

// NewAllocator validates params and builds the allocator.
func NewAllocator(p AllocatorParams) (*Allocator, error) {
	if p.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "escrow allocator requires a repository")
	}
	if p.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "escrow allocator requires a user repository")
	}
	if p.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "escrow allocator requires the ledger service")
	}
	if p.TxRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "escrow allocator requires a transaction runner")
	}
	if p.PlatformSharePercent < 0 || p.PlatformSharePercent > 100 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "platform share must be between 0 and 100")
	}
	return &Allocator{
		repo:                 p.Repo,
		users:                p.Users,
		ledger:               p.Ledger,
		tx:                   p.TxRunner,
		box:                  p.Outbox,
		logg:                 p.Logger,
		platformSharePercent: p.PlatformSharePercent,
	}, nil
}

// Split computes the platform/owner division for a tip without touching any
// storage. Owner percentages must sum to exactly 100; a media item with a
// malformed owner list cannot take money. Sub-pence remainders from integer
// division accrue to the platform so the split always sums to the tip.
func (a *Allocator) Split(amountPence int64, owners []models.MediaOwner) (Breakdown, error) {
	if amountPence < 0 {
		return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "tip amount must be non-negative")
	}
	breakdown := Breakdown{TipPence: amountPence}

	if len(owners) == 0 {
		breakdown.PlatformPence = amountPence
		return breakdown, nil
	}

	sum := 0
	for _, owner := range owners {
		if owner.Percentage < 0 {
			return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "owner percentage must be non-negative")
		}
		sum += owner.Percentage
	}
	if sum != 100 {
		return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("owner percentages sum to %d, expected 100", sum))
	}

	ownerPool := amountPence * int64(100-a.platformSharePercent) / 100
	allocated := int64(0)
	for _, owner := range owners {
		share := ownerPool * int64(owner.Percentage) / 100
		allocated += share
		breakdown.OwnerShares = append(breakdown.OwnerShares, OwnerShare{
			OwnerUserID: owner.OwnerUserID,
			Name:        owner.Name,
			Percentage:  owner.Percentage,
			AmountPence: share,
			Parked:      owner.OwnerUserID == nil,
		})
	}
	breakdown.PlatformPence = amountPence - allocated
	return breakdown, nil
}

// AllocateForBid splits the bid's tip and applies each share inside the
// caller's transaction: registered owners get an escrow balance credit,
// unregistered artists get a parked allocation keyed by their normalized
// name and external id.
func (a *Allocator) AllocateForBid(ctx context.Context, tx *gorm.DB, bid *models.Bid, media *models.Media) (Breakdown, error) {
	if media == nil {
		return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "media with owners is required")
	}
	breakdown, err := a.Split(bid.AmountPence, media.Owners)
	if err != nil {
		return Breakdown{}, err
	}

	repo := a.repo.WithTx(tx)
	usersRepo := a.users.WithTx(tx)

	for i, share := range breakdown.OwnerShares {
		if share.AmountPence == 0 {
			continue
		}
		if share.OwnerUserID != nil {
			if err := usersRepo.CreditEscrow(ctx, *share.OwnerUserID, share.AmountPence); err != nil {
				return Breakdown{}, pkgerrors.Wrap(pkgerrors.CodeAtomicity, err, "crediting owner escrow")
			}
			continue
		}
		owner := media.Owners[i]
		allocation := models.ArtistEscrowAllocation{
			MediaID:          media.ID,
			BidID:            bid.ID,
			ArtistName:       NormalizeArtistName(owner.Name),
			ExternalArtistID: owner.ExternalArtistID,
			Percentage:       owner.Percentage,
			AmountPence:      share.AmountPence,
		}
		if err := repo.Create(ctx, &allocation); err != nil {
			return Breakdown{}, pkgerrors.Wrap(pkgerrors.CodeAtomicity, err, "parking owner share")
		}
	}

	if a.logg != nil {
		logCtx := a.logg.WithFields(ctx, map[string]any{
			"bid_id":         bid.ID.String(),
			"tip_pence":      breakdown.TipPence,
			"platform_pence": breakdown.PlatformPence,
			"owner_count":    len(breakdown.OwnerShares),
		})
		a.logg.Info(logCtx, "tip allocated")
	}
	return breakdown, nil
}

// ClaimAllocations finds every parked allocation matching the registering
// artist's identity and transfers the total to their balance in one
// transaction, leaving the claimed rows behind as the audit trail.
func (a *Allocator) ClaimAllocations(ctx context.Context, userID uuid.UUID, artistName string, externalArtistID *string) (ClaimResult, error) {
	if artistName == "" {
		return ClaimResult{}, pkgerrors.New(pkgerrors.CodeValidation, "artist name is required")
	}

	var result ClaimResult
	err := a.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := a.repo.WithTx(tx)
		usersRepo := a.users.WithTx(tx)

		user, err := usersRepo.FindByIDForUpdate(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "loading claiming user")
		}

		holder, err := usersRepo.FindByArtistIdentity(ctx, artistName, externalArtistID)
		switch {
		case err == nil && holder.ID != userID:
			return pkgerrors.New(pkgerrors.CodeConflict, "artist identity is already registered to another user")
		case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking artist identity")
		}

		if err := usersRepo.SetArtistIdentity(ctx, userID, artistName, externalArtistID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeAtomicity, err, "recording artist identity")
		}

		allocations, err := repo.FindUnclaimedByIdentity(ctx, artistName, externalArtistID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "matching allocations")
		}
		if len(allocations) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, 0, len(allocations))
		var total int64
		for _, allocation := range allocations {
			ids = append(ids, allocation.ID)
			total += allocation.AmountPence
		}

		if err := usersRepo.CreditBalance(ctx, userID, total); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeAtomicity, err, "crediting claimed total")
		}
		if err := repo.MarkClaimed(ctx, ids, userID, time.Now().UTC()); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeAtomicity, err, "marking allocations claimed")
		}

		metadata, _ := json.Marshal(map[string]any{
			"source":           "escrow_claim",
			"allocation_count": len(ids),
		})
		entry := models.LedgerEntry{
			UserID:                   userID,
			Type:                     enums.TransactionTypeTopUp,
			AmountPence:              total,
			UserBalancePrePence:      user.BalancePence,
			UserBalancePostPence:     user.BalancePence + total,
			UserAggregatePrePence:    0,
			UserAggregatePostPence:   0,
			MediaAggregatePrePence:   0,
			MediaAggregatePostPence:  0,
			GlobalAggregatePrePence:  0,
			GlobalAggregatePostPence: 0,
			Metadata:                 metadata,
		}
		if err := a.ledger.RecordEntry(ctx, tx, &entry); err != nil {
			return err
		}

		if a.box != nil {
			event := outbox.DomainEvent{
				EventType:     enums.OutboxEventTypeEscrowClaimed,
				AggregateType: enums.OutboxAggregateTypeUser,
				AggregateID:   userID,
				Actor:         &outbox.ActorRef{UserID: userID},
				Data: payloads.EscrowClaimedEvent{
					UserID:          userID,
					ArtistName:      NormalizeArtistName(artistName),
					AllocationCount: len(ids),
					TotalPence:      total,
				},
			}
			if err := a.box.Emit(ctx, tx, event); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeAtomicity, err, "emitting claim event")
			}
		}

		result = ClaimResult{AllocationCount: len(ids), TotalPence: total}
		return nil
	})
	if err != nil {
		return ClaimResult{}, err
	}

	if a.logg != nil && result.AllocationCount > 0 {
		logCtx := a.logg.WithFields(ctx, map[string]any{
			"user_id":          userID.String(),
			"allocation_count": result.AllocationCount,
			"total_pence":      result.TotalPence,
		})
		a.logg.Info(logCtx, "escrow allocations claimed")
	}
	return result, nil
}

// UnclaimedTotal reports the money currently parked across every unclaimed
// allocation, regardless of artist identity. Ops visibility for the float
// the platform is holding on behalf of unregistered artists.
func (a *Allocator) UnclaimedTotal(ctx context.Context) (int64, error) {
	total, err := a.repo.SumUnclaimed(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "summing unclaimed allocations")
	}
	return total, nil
}
