package controllers

import (
	"net/http"

	"github.com/tunetide/tunetide-backend/api/responses"
	"github.com/tunetide/tunetide-backend/api/validators"
	"github.com/tunetide/tunetide-backend/internal/metrics"
	"github.com/tunetide/tunetide-backend/pkg/enums"
	"github.com/tunetide/tunetide-backend/pkg/logger"
)

type metricResponse struct {
	Kind        string  `json:"kind"`
	Scope       string  `json:"scope,omitempty"`
	AmountPence int64   `json:"amount_pence"`
	Average     *string `json:"average,omitempty"`
	Rank        int64   `json:"rank,omitempty"`
	ActorID     *string `json:"actor_id,omitempty"`
	BidID       *string `json:"bid_id,omitempty"`
}

// ComputeMetric handles GET /api/v1/metrics. The kind and scope arrive as
// query parameters alongside whichever entity ids the scope needs.
func ComputeMetric(engine *metrics.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		kind, err := enums.ParseMetricKind(r.URL.Query().Get("kind"))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		query := metrics.Query{Kind: kind}
		if raw := r.URL.Query().Get("scope"); raw != "" {
			scope, err := enums.ParseMetricScope(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			query.Scope = scope
		}
		if query.MediaID, err = validators.OptionalUUIDQuery(r, "media_id"); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if query.PartyID, err = validators.OptionalUUIDQuery(r, "party_id"); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if query.ActorID, err = validators.OptionalUUIDQuery(r, "actor_id"); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if query.BidID, err = validators.OptionalUUIDQuery(r, "bid_id"); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := engine.ComputeMetric(ctx, query)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		resp := metricResponse{
			Kind:        result.Kind.String(),
			Scope:       result.Scope.String(),
			AmountPence: result.AmountPence,
			Rank:        result.Rank,
		}
		if result.Kind == enums.MetricKindAverage {
			avg := result.Average.String()
			resp.Average = &avg
		}
		if result.ActorID != nil {
			id := result.ActorID.String()
			resp.ActorID = &id
		}
		if result.BidID != nil {
			id := result.BidID.String()
			resp.BidID = &id
		}
		responses.WriteSuccess(w, resp)
	}
}
