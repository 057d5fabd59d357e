package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/tunetide/tunetide-backend/api/responses"
	"github.com/tunetide/tunetide-backend/api/validators"
	"github.com/tunetide/tunetide-backend/internal/ledger"
	"github.com/tunetide/tunetide-backend/internal/users"
	"github.com/tunetide/tunetide-backend/internal/wallet"
	pkgerrors "github.com/tunetide/tunetide-backend/pkg/errors"
	"github.com/tunetide/tunetide-backend/pkg/logger"
)

type walletTransactionView struct {
	ID                 string `json:"id"`
	AmountPence        int64  `json:"amount_pence"`
	Type               string `json:"type"`
	Status             string `json:"status"`
	ProviderSessionID  string `json:"provider_session_id"`
	BalanceBeforePence int64  `json:"balance_before_pence"`
	BalanceAfterPence  int64  `json:"balance_after_pence"`
	CreatedAt          string `json:"created_at"`
}

type ledgerEntryView struct {
	ID                   string          `json:"id"`
	Type                 string          `json:"type"`
	AmountPence          int64           `json:"amount_pence"`
	UserBalancePrePence  int64           `json:"user_balance_pre_pence"`
	UserBalancePostPence int64           `json:"user_balance_post_pence"`
	BidID                *string         `json:"bid_id,omitempty"`
	MediaID              *string         `json:"media_id,omitempty"`
	Metadata             json.RawMessage `json:"metadata,omitempty"`
	CreatedAt            string          `json:"created_at"`
}

// GetWallet handles GET /api/v1/wallet/{userID}. It returns the user's
// balances with their most recent wallet transactions and ledger entries.
func GetWallet(usersRepo users.Repository, walletRepo wallet.Repository, ledgerSvc *ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, err := validators.UUIDPath(r, "userID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		limit, err := validators.IntQuery(r, "limit", 50)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		offset, err := validators.IntQuery(r, "offset", 0)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		user, err := usersRepo.FindByID(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "user not found"))
			return
		}
		transactions, err := walletRepo.ListByUser(ctx, userID, limit, offset)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing wallet transactions"))
			return
		}
		entries, total, err := ledgerSvc.ListByUser(ctx, userID, limit, offset)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		txViews := make([]walletTransactionView, 0, len(transactions))
		for _, tx := range transactions {
			txViews = append(txViews, walletTransactionView{
				ID:                 tx.ID.String(),
				AmountPence:        tx.AmountPence,
				Type:               tx.Type.String(),
				Status:             tx.Status.String(),
				ProviderSessionID:  tx.ProviderSessionID,
				BalanceBeforePence: tx.BalanceBefore,
				BalanceAfterPence:  tx.BalanceAfter,
				CreatedAt:          tx.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		entryViews := make([]ledgerEntryView, 0, len(entries))
		for _, entry := range entries {
			view := ledgerEntryView{
				ID:                   entry.ID.String(),
				Type:                 entry.Type.String(),
				AmountPence:          entry.AmountPence,
				UserBalancePrePence:  entry.UserBalancePrePence,
				UserBalancePostPence: entry.UserBalancePostPence,
				Metadata:             entry.Metadata,
				CreatedAt:            entry.CreatedAt.UTC().Format(time.RFC3339),
			}
			if entry.BidID != nil {
				id := entry.BidID.String()
				view.BidID = &id
			}
			if entry.MediaID != nil {
				id := entry.MediaID.String()
				view.MediaID = &id
			}
			entryViews = append(entryViews, view)
		}

		responses.WriteSuccess(w, map[string]any{
			"user_id":              user.ID.String(),
			"balance_pence":        user.BalancePence,
			"escrow_balance_pence": user.EscrowBalancePence,
			"tune_bytes":           user.TuneBytes,
			"transactions":         txViews,
			"ledger_entries":       entryViews,
			"ledger_total":         total,
		})
	}
}
