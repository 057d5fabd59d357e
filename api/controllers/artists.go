package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/tunetide/tunetide-backend/api/responses"
	"github.com/tunetide/tunetide-backend/api/validators"
	"github.com/tunetide/tunetide-backend/internal/escrow"
	pkgerrors "github.com/tunetide/tunetide-backend/pkg/errors"
	"github.com/tunetide/tunetide-backend/pkg/logger"
)

type registerArtistRequest struct {
	UserID           string  `json:"user_id" validate:"required,uuid"`
	ArtistName       string  `json:"artist_name" validate:"required,min=1,max=255"`
	ExternalArtistID *string `json:"external_artist_id" validate:"omitempty,min=1,max=255"`
}

// RegisterArtist handles POST /api/v1/artists/register. Registration and
// the sweep of any parked escrow allocations commit as one unit.
func RegisterArtist(allocator *escrow.Allocator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req registerArtistRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "user_id must be a valid uuid"))
			return
		}

		result, err := allocator.ClaimAllocations(ctx, userID, req.ArtistName, req.ExternalArtistID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithUserID(ctx, req.UserID), "artist registered")
		}
		responses.WriteSuccess(w, map[string]any{
			"allocation_count":    result.AllocationCount,
			"claimed_total_pence": result.TotalPence,
		})
	}
}

// UnclaimedEscrow handles GET /api/v1/escrow/unclaimed. Reports the total
// parked money awaiting artist registration.
func UnclaimedEscrow(allocator *escrow.Allocator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		total, err := allocator.UnclaimedTotal(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"unclaimed_total_pence": total,
		})
	}
}
