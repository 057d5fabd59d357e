package wallet

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/tunetide/tunetide-backend/internal/ledger"
	"github.com/tunetide/tunetide-backend/internal/media"
	"github.com/tunetide/tunetide-backend/internal/users"
	"github.com/tunetide/tunetide-backend/pkg/db"
	"github.com/tunetide/tunetide-backend/pkg/db/models"
	"github.com/tunetide/tunetide-backend/pkg/enums"
	pkgerrors "github.com/tunetide/tunetide-backend/pkg/errors"
	"github.com/tunetide/tunetide-backend/pkg/logger"
	platform "github.com/tunetide/tunetide-backend/pkg/metrics"
	"github.com/tunetide/tunetide-backend/pkg/outbox"
	"github.com/tunetide/tunetide-backend/pkg/outbox/payloads"
)

// completedSessionConstraint is the partial unique index guarding one
// completed transaction per provider session.
const completedSessionConstraint = "uq_wallet_tx_completed_session"

// TopUpEvent is a parsed, signature-verified top-up notification. The
// provider session id is the idempotency key; the payment intent id is the
// handle for resolving the settled net amount.
type TopUpEvent struct {
	ProviderSessionID string
	PaymentIntentID   string
	UserID            uuid.UUID
	GrossAmountPence  int64
}

// TopUpResult reports the completed transaction. Replayed is true when the
// session had already been processed and nothing moved this time.
type TopUpResult struct {
	Transaction *models.WalletTransaction
	Replayed    bool
}

// Notifier is a non-critical post-commit side effect (receipt email, audit
// hash storage). Failures are logged and swallowed, never unwinding the
// committed financial unit.
type Notifier interface {
	TopUpCompleted(ctx context.Context, result TopUpResult) error
}

// Processor turns at-least-once webhook deliveries into exactly-once balance
// credits. The balance increment, the WalletTransaction, and the LedgerEntry
// commit as one unit; the partial unique index on completed session ids is
// the arbiter when two deliveries race.
type Processor struct {
	repo       Repository
	users      users.Repository
	media      media.Repository
	ledger     *ledger.Service
	settlement SettlementResolver
	tx         db.TxRunner
	box        *outbox.Service
	notifiers  []Notifier
	logg       *logger.Logger
	platform   *platform.PlatformMetrics
}

// ProcessorParams collects the processor's dependencies.
type ProcessorParams struct {
	Repo       Repository
	Users      users.Repository
	Media      media.Repository
	Ledger     *ledger.Service
	Settlement SettlementResolver
	TxRunner   db.TxRunner
	Outbox     *outbox.Service
	Notifiers  []Notifier
	Logger     *logger.Logger
	Platform   *platform.PlatformMetrics
}

// NewProcessor validates params and builds the processor.
func NewProcessor(p ProcessorParams) (*Processor, error) {
	if p.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "top-up processor requires a repository")
	}
	if p.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "top-up processor requires a user repository")
	}
	if p.Media == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "top-up processor requires a media repository")
	}
	if p.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "top-up processor requires the ledger service")
	}
	if p.Settlement == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "top-up processor requires a settlement resolver")
	}
	if p.TxRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "top-up processor requires a transaction runner")
	}
	return &Processor{
		repo:       p.Repo,
		users:      p.Users,
		media:      p.Media,
		ledger:     p.Ledger,
		settlement: p.Settlement,
		tx:         p.TxRunner,
		box:        p.Outbox,
		notifiers:  p.Notifiers,
		logg:       p.Logger,
		platform:   p.Platform,
	}, nil
}

// ProcessTopUp credits the user's balance by the settled net amount exactly
// once per provider session. A session already completed returns the stored
// result unchanged; any failure inside the atomic unit rolls everything back
// and surfaces retryable so the provider redelivers.
func (p *Processor) ProcessTopUp(ctx context.Context, event TopUpEvent) (*TopUpResult, error) {
	if err := validateTopUpEvent(event); err != nil {
		p.platform.IncWebhookEvent("invalid")
		return nil, err
	}

	// Cheap duplicate check before touching the provider API.
	if existing, err := p.repo.FindCompletedBySessionID(ctx, event.ProviderSessionID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking session history")
	} else if existing != nil {
		p.platform.IncWebhookEvent("replay")
		return &TopUpResult{Transaction: existing, Replayed: true}, nil
	}

	// The credit uses the settled net figure, never the gross estimate from
	// the event body. No resolvable net amount means no credit at all.
	netPence, err := p.settlement.NetAmountPence(ctx, event.PaymentIntentID)
	if err != nil {
		p.platform.IncWebhookEvent("settlement_unresolved")
		return nil, err
	}

	result, err := p.processAtomically(ctx, event, netPence)
	if err != nil {
		// A unique violation on commit means a concurrent delivery won the
		// race; its committed row is this delivery's result.
		if db.IsUniqueViolation(err, completedSessionConstraint) {
			existing, lookupErr := p.repo.FindCompletedBySessionID(ctx, event.ProviderSessionID)
			if lookupErr == nil && existing != nil {
				p.platform.IncWebhookEvent("replay")
				return &TopUpResult{Transaction: existing, Replayed: true}, nil
			}
		}
		p.platform.IncWebhookEvent("error")
		return nil, err
	}
	p.platform.IncWebhookEvent("ok")

	p.runNotifiers(ctx, *result)
	return result, nil
}

func (p *Processor) processAtomically(ctx context.Context, event TopUpEvent, netPence int64) (*TopUpResult, error) {
	var result TopUpResult
	err := p.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := p.repo.WithTx(tx)
		usersRepo := p.users.WithTx(tx)
		mediaRepo := p.media.WithTx(tx)

		user, err := usersRepo.FindByIDForUpdate(ctx, event.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeAtomicity, err, "loading user")
		}
		globalAgg, err := mediaRepo.GlobalAggregate(ctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeAtomicity, err, "snapshotting global aggregate")
		}

		if err := usersRepo.CreditBalance(ctx, event.UserID, netPence); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeAtomicity, err, "crediting balance")
		}

		transaction := models.WalletTransaction{
			UserID:            event.UserID,
			AmountPence:       netPence,
			Type:              enums.TransactionTypeTopUp,
			Status:            enums.WalletTransactionStatusCompleted,
			ProviderSessionID: event.ProviderSessionID,
			BalanceBefore:     user.BalancePence,
			BalanceAfter:      user.BalancePence + netPence,
		}
		if err := repo.Create(ctx, &transaction); err != nil {
			if db.IsUniqueViolation(err, completedSessionConstraint) {
				return err
			}
			return pkgerrors.Wrap(pkgerrors.CodeAtomicity, err, "creating wallet transaction")
		}

		metadata, _ := json.Marshal(map[string]any{
			"provider_session_id": event.ProviderSessionID,
			"gross_amount_pence":  event.GrossAmountPence,
		})
		txID := transaction.ID
		entry := models.LedgerEntry{
			UserID:                   event.UserID,
			Type:                     enums.TransactionTypeTopUp,
			AmountPence:              netPence,
			UserBalancePrePence:      user.BalancePence,
			UserBalancePostPence:     user.BalancePence + netPence,
			GlobalAggregatePrePence:  globalAgg,
			GlobalAggregatePostPence: globalAgg,
			WalletTransactionID:      &txID,
			Metadata:                 metadata,
		}
		if err := p.ledger.RecordEntry(ctx, tx, &entry); err != nil {
			return err
		}

		if p.box != nil {
			outboxEvent := outbox.DomainEvent{
				EventType:     enums.OutboxEventTypeTopUpCompleted,
				AggregateType: enums.OutboxAggregateTypeUser,
				AggregateID:   event.UserID,
				Actor:         &outbox.ActorRef{UserID: event.UserID},
				Data: payloads.TopUpCompletedEvent{
					UserID:            event.UserID,
					WalletTxID:        transaction.ID,
					ProviderSessionID: event.ProviderSessionID,
					AmountPence:       netPence,
					BalanceAfterPence: transaction.BalanceAfter,
				},
			}
			if err := p.box.Emit(ctx, tx, outboxEvent); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeAtomicity, err, "emitting top-up event")
			}
		}

		result = TopUpResult{Transaction: &transaction}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if p.logg != nil {
		logCtx := p.logg.WithUserID(ctx, event.UserID.String())
		logCtx = p.logg.WithFields(logCtx, map[string]any{
			"provider_session_id": event.ProviderSessionID,
			"net_pence":           netPence,
		})
		p.logg.Info(logCtx, "top-up completed")
	}
	return &result, nil
}

// runNotifiers fires the non-critical side effects after commit. Their
// failures are aggregated and logged, never returned.
func (p *Processor) runNotifiers(ctx context.Context, result TopUpResult) {
	var combined error
	for _, notifier := range p.notifiers {
		if err := notifier.TopUpCompleted(ctx, result); err != nil {
			combined = multierr.Append(combined, err)
		}
	}
	if combined != nil && p.logg != nil {
		p.logg.Warn(ctx, "top-up side effects failed: "+combined.Error())
	}
}

func validateTopUpEvent(event TopUpEvent) error {
	if event.ProviderSessionID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "provider session id is required")
	}
	if event.PaymentIntentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	if event.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if event.GrossAmountPence < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "gross amount must be non-negative")
	}
	return nil
}
