package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tunetide/tunetide-backend/internal/bids"
	"github.com/tunetide/tunetide-backend/internal/escrow"
	"github.com/tunetide/tunetide-backend/internal/ledger"
	"github.com/tunetide/tunetide-backend/internal/media"
	"github.com/tunetide/tunetide-backend/internal/metrics"
	"github.com/tunetide/tunetide-backend/internal/parties"
	"github.com/tunetide/tunetide-backend/internal/rewards"
	"github.com/tunetide/tunetide-backend/internal/users"
	"github.com/tunetide/tunetide-backend/pkg/db/models"
)

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type bidRouteFixture struct {
	router  http.Handler
	users   *users.MemoryRepository
	actorID uuid.UUID
	mediaID uuid.UUID
	partyID uuid.UUID
}

func newBidRouteFixture(t *testing.T) *bidRouteFixture {
	t.Helper()
	bidsRepo := bids.NewMemoryRepository()
	usersRepo := users.NewMemoryRepository()
	mediaRepo := media.NewMemoryRepository()
	partiesRepo := parties.NewMemoryRepository()
	escrowRepo := escrow.NewMemoryRepository()
	ledgerRepo := ledger.NewMemoryRepository()

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{Repo: ledgerRepo})
	require.NoError(t, err)
	metricsEngine, err := metrics.NewEngine(metrics.EngineParams{
		Bids:    bidsRepo,
		Media:   mediaRepo,
		Parties: partiesRepo,
		Cache:   metrics.NewCache(5 * time.Minute),
	})
	require.NoError(t, err)
	rewardEngine, err := rewards.NewEngine(rewards.EngineParams{Bids: bidsRepo, Users: usersRepo})
	require.NoError(t, err)
	allocator, err := escrow.NewAllocator(escrow.AllocatorParams{
		Repo:                 escrowRepo,
		Users:                usersRepo,
		Ledger:               ledgerSvc,
		TxRunner:             passthroughTx{},
		PlatformSharePercent: 30,
	})
	require.NoError(t, err)

	actorID := uuid.New()
	ownerID := uuid.New()
	mediaID := uuid.New()
	partyID := uuid.New()

	usersRepo.Put(models.User{ID: actorID, BalancePence: 1000})
	usersRepo.Put(models.User{ID: ownerID})
	mediaRepo.Put(models.Media{
		ID: mediaID,
		Owners: []models.MediaOwner{
			{OwnerUserID: &ownerID, Name: "Owner", Percentage: 100},
		},
	})
	partiesRepo.Put(models.Party{ID: partyID})

	service, err := bids.NewService(bids.ServiceParams{
		Repo:     bidsRepo,
		Users:    usersRepo,
		Media:    mediaRepo,
		Metrics:  metricsEngine,
		Rewards:  rewardEngine,
		Escrow:   allocator,
		Ledger:   ledgerSvc,
		TxRunner: passthroughTx{},
	})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Post("/api/v1/bids", PlaceBid(service, nil))
	r.Get("/api/v1/bids/{bidID}", GetBid(service, nil))
	r.Post("/api/v1/bids/{bidID}/status", TransitionBidStatus(service, nil))

	return &bidRouteFixture{
		router:  r,
		users:   usersRepo,
		actorID: actorID,
		mediaID: mediaID,
		partyID: partyID,
	}
}

func (f *bidRouteFixture) placeBid(t *testing.T, amountPence int64) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"actor_id":     f.actorID.String(),
		"media_id":     f.mediaID.String(),
		"party_id":     f.partyID.String(),
		"amount_pence": amountPence,
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bids", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestPlaceBidEndpoint(t *testing.T) {
	f := newBidRouteFixture(t)

	rec := f.placeBid(t, 400)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var envelope struct {
		Data struct {
			Bid struct {
				ID          string `json:"id"`
				AmountPence int64  `json:"amount_pence"`
				Status      string `json:"status"`
			} `json:"bid"`
			TuneBytes     float64 `json:"tune_bytes"`
			PlatformPence int64   `json:"platform_pence"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, int64(400), envelope.Data.Bid.AmountPence)
	assert.Equal(t, "active", envelope.Data.Bid.Status)
	assert.Equal(t, int64(120), envelope.Data.PlatformPence)
	assert.Greater(t, envelope.Data.TuneBytes, 0.0)

	actor, err := f.users.FindByID(context.Background(), f.actorID)
	require.NoError(t, err)
	assert.Equal(t, int64(600), actor.BalancePence)
}

func TestPlaceBidEndpointRejectsBadBody(t *testing.T) {
	f := newBidRouteFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bids", bytes.NewReader([]byte(`{"amount_pence": -5}`)))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestPlaceBidEndpointInsufficientBalance(t *testing.T) {
	f := newBidRouteFixture(t)

	rec := f.placeBid(t, 5000)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestTransitionBidStatusEndpoint(t *testing.T) {
	f := newBidRouteFixture(t)

	rec := f.placeBid(t, 400)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Data struct {
			Bid struct {
				ID string `json:"id"`
			} `json:"bid"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	url := fmt.Sprintf("/api/v1/bids/%s/status", created.Data.Bid.ID)
	req := httptest.NewRequest(http.MethodPost, url, bytes.NewReader([]byte(`{"status":"played"}`)))
	rec2 := httptest.NewRecorder()
	f.router.ServeHTTP(rec2, req)
	require.Equal(t, http.StatusOK, rec2.Code, rec2.Body.String())

	// Backwards transitions are rejected.
	req3 := httptest.NewRequest(http.MethodPost, url, bytes.NewReader([]byte(`{"status":"requested"}`)))
	rec3 := httptest.NewRecorder()
	f.router.ServeHTTP(rec3, req3)
	require.Equal(t, http.StatusUnprocessableEntity, rec3.Code, rec3.Body.String())
}

func TestGetBidEndpointNotFound(t *testing.T) {
	f := newBidRouteFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bids/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
}
