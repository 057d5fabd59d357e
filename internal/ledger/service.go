package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tunetide/tunetide-backend/pkg/db/models"
	"github.com/tunetide/tunetide-backend/pkg/enums"
	pkgerrors "github.com/tunetide/tunetide-backend/pkg/errors"
	"github.com/tunetide/tunetide-backend/pkg/logger"
)

// Service validates and appends ledger entries. Every balance-affecting
// operation records exactly one entry inside its own transaction; the entry
// is permanent once committed.
type Service struct {
	repo Repository
	logg *logger.Logger
}

// ServiceParams collects the service's dependencies.
type ServiceParams struct {
	Repo   Repository
	Logger *logger.Logger
}

// NewService validates params and builds the service.
func NewService(p ServiceParams) (*Service, error) {
	if p.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger service requires a repository")
	}
	return &Service{repo: p.Repo, logg: p.Logger}, nil
}

// RecordEntry appends one entry inside the caller's transaction. The entry
// must already carry its pre/post snapshots; the service enforces the
// snapshot arithmetic before anything is written.
func (s *Service) RecordEntry(ctx context.Context, tx *gorm.DB, entry *models.LedgerEntry) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "ledger entries require a transaction")
	}
	if err := validateEntry(entry); err != nil {
		return err
	}
	if err := s.repo.WithTx(tx).Create(ctx, entry); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeAtomicity, err, "appending ledger entry")
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"ledger_entry_id": entry.ID.String(),
			"type":            entry.Type,
			"amount_pence":    entry.AmountPence,
		})
		s.logg.Info(logCtx, "ledger entry recorded")
	}
	return nil
}

// ListByUser pages a user's ledger history, newest first.
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.LedgerEntry, int64, error) {
	entries, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing ledger entries")
	}
	total, err := s.repo.CountByUser(ctx, userID)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "counting ledger entries")
	}
	return entries, total, nil
}

func validateEntry(entry *models.LedgerEntry) error {
	if entry == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "ledger entry is required")
	}
	if entry.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "ledger entry requires a user id")
	}
	if !entry.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown transaction type %q", entry.Type))
	}
	if entry.AmountPence < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "ledger amount must be non-negative")
	}
	// A top-up's snapshots must agree with its amount; a mismatch means the
	// caller credited something other than what it is recording.
	if entry.Type == enums.TransactionTypeTopUp {
		if entry.UserBalancePostPence != entry.UserBalancePrePence+entry.AmountPence {
			return pkgerrors.New(pkgerrors.CodeValidation, "top-up snapshots do not balance")
		}
	}
	if entry.Type == enums.TransactionTypeTip {
		if entry.UserBalancePostPence != entry.UserBalancePrePence-entry.AmountPence {
			return pkgerrors.New(pkgerrors.CodeValidation, "tip snapshots do not balance")
		}
	}
	return nil
}
