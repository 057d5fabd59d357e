package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tunetide/tunetide-backend/api/controllers"
	webhookcontrollers "github.com/tunetide/tunetide-backend/api/controllers/webhooks"
	"github.com/tunetide/tunetide-backend/api/middleware"
	"github.com/tunetide/tunetide-backend/internal/bids"
	"github.com/tunetide/tunetide-backend/internal/escrow"
	"github.com/tunetide/tunetide-backend/internal/ledger"
	"github.com/tunetide/tunetide-backend/internal/metrics"
	"github.com/tunetide/tunetide-backend/internal/users"
	"github.com/tunetide/tunetide-backend/internal/wallet"
	stripewebhook "github.com/tunetide/tunetide-backend/internal/webhooks/stripe"
	"github.com/tunetide/tunetide-backend/pkg/config"
	"github.com/tunetide/tunetide-backend/pkg/db"
	"github.com/tunetide/tunetide-backend/pkg/logger"
	"github.com/tunetide/tunetide-backend/pkg/stripe"
)

// RouterParams collects everything the HTTP surface depends on.
type RouterParams struct {
	Config  *config.Config
	Logger  *logger.Logger
	Pingers []db.Pinger

	BidService    *bids.Service
	MetricsEngine *metrics.Engine
	Allocator     *escrow.Allocator
	Users         users.Repository
	Wallet        wallet.Repository
	Ledger        *ledger.Service

	StripeClient       *stripe.Client
	StripeWebhookSvc   *stripewebhook.Service
	StripeWebhookGuard *stripewebhook.IdempotencyGuard
	PrometheusGatherer prometheus.Gatherer
}

// NewRouter wires the full route table with the shared middleware stack.
func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(p.Logger),
		middleware.RequestID(p.Logger),
		middleware.Logging(p.Logger),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(p.Config))
		r.Get("/ready", controllers.HealthReady(p.Config, p.Logger, p.Pingers...))
	})

	if p.PrometheusGatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.PrometheusGatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(p.StripeWebhookSvc, p.StripeClient, p.StripeWebhookGuard, p.Logger))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/bids", func(r chi.Router) {
			r.Post("/", controllers.PlaceBid(p.BidService, p.Logger))
			r.Get("/{bidID}", controllers.GetBid(p.BidService, p.Logger))
			r.Post("/{bidID}/status", controllers.TransitionBidStatus(p.BidService, p.Logger))
		})
		r.Get("/metrics", controllers.ComputeMetric(p.MetricsEngine, p.Logger))
		r.Post("/artists/register", controllers.RegisterArtist(p.Allocator, p.Logger))
		r.Get("/escrow/unclaimed", controllers.UnclaimedEscrow(p.Allocator, p.Logger))
		r.Get("/wallet/{userID}", controllers.GetWallet(p.Users, p.Wallet, p.Ledger, p.Logger))
	})

	return r
}
