package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunetide/tunetide-backend/internal/escrow"
	"github.com/tunetide/tunetide-backend/internal/ledger"
	"github.com/tunetide/tunetide-backend/internal/users"
	"github.com/tunetide/tunetide-backend/pkg/db/models"
)

type artistRouteFixture struct {
	router http.Handler
	escrow *escrow.MemoryRepository
	users  *users.MemoryRepository
}

func newArtistRouteFixture(t *testing.T) *artistRouteFixture {
	t.Helper()
	escrowRepo := escrow.NewMemoryRepository()
	usersRepo := users.NewMemoryRepository()
	ledgerRepo := ledger.NewMemoryRepository()

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{Repo: ledgerRepo})
	require.NoError(t, err)
	allocator, err := escrow.NewAllocator(escrow.AllocatorParams{
		Repo:                 escrowRepo,
		Users:                usersRepo,
		Ledger:               ledgerSvc,
		TxRunner:             passthroughTx{},
		PlatformSharePercent: 30,
	})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Post("/api/v1/artists/register", RegisterArtist(allocator, nil))
	r.Get("/api/v1/escrow/unclaimed", UnclaimedEscrow(allocator, nil))

	return &artistRouteFixture{router: r, escrow: escrowRepo, users: usersRepo}
}

func (f *artistRouteFixture) register(t *testing.T, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/artists/register", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestRegisterArtistEndpoint(t *testing.T) {
	f := newArtistRouteFixture(t)
	ctx := context.Background()

	userID := uuid.New()
	f.users.Put(models.User{ID: userID})
	require.NoError(t, f.escrow.Create(ctx, &models.ArtistEscrowAllocation{
		MediaID:     uuid.New(),
		BidID:       uuid.New(),
		ArtistName:  "unsigned artist",
		Percentage:  40,
		AmountPence: 280,
	}))

	rec := f.register(t, map[string]any{
		"user_id":     userID.String(),
		"artist_name": "Unsigned Artist",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var envelope struct {
		Data struct {
			AllocationCount   int   `json:"allocation_count"`
			ClaimedTotalPence int64 `json:"claimed_total_pence"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, 1, envelope.Data.AllocationCount)
	assert.Equal(t, int64(280), envelope.Data.ClaimedTotalPence)

	user, err := f.users.FindByID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(280), user.BalancePence)
}

func TestRegisterArtistEndpointRejectsBadUserID(t *testing.T) {
	f := newArtistRouteFixture(t)

	rec := f.register(t, map[string]any{
		"user_id":     "not-a-uuid",
		"artist_name": "Unsigned Artist",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestUnclaimedEscrowEndpoint(t *testing.T) {
	f := newArtistRouteFixture(t)
	ctx := context.Background()

	for _, amount := range []int64{280, 120} {
		require.NoError(t, f.escrow.Create(ctx, &models.ArtistEscrowAllocation{
			MediaID:     uuid.New(),
			BidID:       uuid.New(),
			ArtistName:  "unsigned artist",
			Percentage:  40,
			AmountPence: amount,
		}))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/escrow/unclaimed", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var envelope struct {
		Data struct {
			UnclaimedTotalPence int64 `json:"unclaimed_total_pence"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, int64(400), envelope.Data.UnclaimedTotalPence)
}
