package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tunetide/tunetide-backend/api/responses"
	"github.com/tunetide/tunetide-backend/api/validators"
	"github.com/tunetide/tunetide-backend/internal/bids"
	"github.com/tunetide/tunetide-backend/pkg/db/models"
	"github.com/tunetide/tunetide-backend/pkg/enums"
	"github.com/tunetide/tunetide-backend/pkg/logger"
)

type placeBidRequest struct {
	ActorID     string `json:"actor_id" validate:"required,uuid"`
	MediaID     string `json:"media_id" validate:"required,uuid"`
	PartyID     string `json:"party_id" validate:"required,uuid"`
	AmountPence int64  `json:"amount_pence" validate:"required,gt=0"`
}

type transitionBidRequest struct {
	Status string `json:"status" validate:"required,oneof=requested active played vetoed refunded"`
}

type bidResponse struct {
	ID                       string  `json:"id"`
	ActorID                  string  `json:"actor_id"`
	MediaID                  string  `json:"media_id"`
	PartyID                  string  `json:"party_id"`
	AmountPence              int64   `json:"amount_pence"`
	Status                   string  `json:"status"`
	ActorMediaAggregatePence int64   `json:"actor_media_aggregate_pence"`
	ActorMediaAveragePence   int64   `json:"actor_media_average_pence"`
	TuneBytesReward          float64 `json:"tune_bytes_reward"`
	CreatedAt                string  `json:"created_at"`
}

func toBidResponse(bid *models.Bid) bidResponse {
	return bidResponse{
		ID:                       bid.ID.String(),
		ActorID:                  bid.ActorID.String(),
		MediaID:                  bid.MediaID.String(),
		PartyID:                  bid.PartyID.String(),
		AmountPence:              bid.AmountPence,
		Status:                   bid.Status.String(),
		ActorMediaAggregatePence: bid.ActorMediaAggregatePence,
		ActorMediaAveragePence:   bid.ActorMediaAveragePence,
		TuneBytesReward:          bid.TuneBytesReward,
		CreatedAt:                bid.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// PlaceBid handles POST /api/v1/bids.
func PlaceBid(service *bids.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req placeBidRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := service.PlaceBid(ctx, bids.PlaceBidInput{
			ActorID:     uuid.MustParse(req.ActorID),
			MediaID:     uuid.MustParse(req.MediaID),
			PartyID:     uuid.MustParse(req.PartyID),
			AmountPence: req.AmountPence,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"bid":            toBidResponse(result.Bid),
			"tune_bytes":     result.TuneBytes,
			"platform_pence": result.Breakdown.PlatformPence,
		})
	}
}

// TransitionBidStatus handles POST /api/v1/bids/{bidID}/status.
func TransitionBidStatus(service *bids.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		bidID, err := validators.UUIDPath(r, "bidID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var req transitionBidRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		status, err := enums.ParseBidStatus(req.Status)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		bid, err := service.TransitionStatus(ctx, bidID, status)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toBidResponse(bid))
	}
}

// GetBid handles GET /api/v1/bids/{bidID}.
func GetBid(service *bids.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		bidID, err := validators.UUIDPath(r, "bidID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		bid, err := service.GetBid(ctx, bidID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toBidResponse(bid))
	}
}
