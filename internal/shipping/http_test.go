package shipping

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/sambatan/internal/models"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func newRateServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/quotes/individual", func(w http.ResponseWriter, r *http.Request) {
		var req individualRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Destination.City == "Nowhere" {
			http.Error(w, "no route", http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{
			"rates": []map[string]any{
				{"provider": "jne", "service_tier": "reg", "price": "20.50", "estimated_days": 2},
				{"provider": "pos", "service_tier": "kilat", "price": 31, "estimated_days": 1},
			},
		})
	})
	mux.HandleFunc("POST /v1/quotes/consolidated", func(w http.ResponseWriter, r *http.Request) {
		var req consolidatedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		price := 40 + 5*len(req.Destinations)
		writeJSON(w, map[string]any{
			"rate": map[string]any{"provider": "jne", "service_tier": "cargo", "price": price, "estimated_days": 4},
		})
	})
	mux.HandleFunc("GET /v1/products/{id}/origin", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "batik-01" {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, map[string]any{"city": "Yogyakarta", "province": "DIY", "postal_code": "55281"})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestHTTPCatalog(t *testing.T) {
	server := newRateServer(t)
	catalog := NewHTTPCatalog(server.URL, time.Second)
	t.Cleanup(func() { catalog.Close() })
	ctx := context.Background()

	t.Run("origin", func(t *testing.T) {
		loc, err := catalog.Origin(ctx, "batik-01")
		require.NoError(t, err)
		assert.Equal(t, models.Location{City: "Yogyakarta", Province: "DIY", PostalCode: "55281"}, loc)

		_, err = catalog.Origin(ctx, "unknown")
		assert.ErrorIs(t, err, ErrUnknownOrigin)
		assert.NotErrorIs(t, err, ErrNoRate)
	})

	t.Run("individual", func(t *testing.T) {
		rates, err := catalog.QuoteIndividual(ctx, origin, jakarta)
		require.NoError(t, err)
		require.Len(t, rates, 2)
		assert.Equal(t, "jne:reg", rates[0].ID)
		assert.True(t, rates[0].Price.Equal(decimal.RequireFromString("20.50")))
		assert.True(t, rates[1].Price.Equal(decimal.NewFromInt(31)))

		_, err = catalog.QuoteIndividual(ctx, origin, models.Location{City: "Nowhere"})
		assert.ErrorIs(t, err, ErrNoRate)
	})

	t.Run("consolidated", func(t *testing.T) {
		r, err := catalog.QuoteConsolidated(ctx, origin, []models.Location{jakarta, bandung})
		require.NoError(t, err)
		assert.Equal(t, "jne:cargo", r.ID)
		assert.True(t, r.Price.Equal(decimal.NewFromInt(50)))
	})

	t.Run("drives the optimizer", func(t *testing.T) {
		opt := NewOptimizer(catalog, catalog, OptimizerOptions{})
		recs := opt.Recommend(ctx, "batik-01", []*models.Participant{
			participant("a", jakarta, 1),
			participant("b", bandung, 1),
		})
		require.Len(t, recs, 2)
		for _, rec := range recs {
			assert.False(t, rec.OptimizationUnavailable)
			// individual 20.50 against a 25.00 share
			assert.False(t, rec.UsesGroupRate())
		}
	})
}

func TestHTTPCatalogUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	catalog := NewHTTPCatalog(server.URL, time.Second)
	t.Cleanup(func() { catalog.Close() })

	_, err := catalog.QuoteIndividual(context.Background(), origin, jakarta)
	assert.ErrorIs(t, err, ErrUnavailable)

	opt := NewOptimizer(catalog, fixedOrigins(), OptimizerOptions{})
	recs := opt.Recommend(context.Background(), "batik-01", []*models.Participant{participant("a", jakarta, 1)})
	require.Len(t, recs, 1)
	assert.True(t, recs[0].OptimizationUnavailable)
	assert.Nil(t, recs[0].RecommendedRate)
}

func TestStaticCatalog(t *testing.T) {
	catalog := &StaticCatalog{
		Default: []models.ShippingRate{{Provider: "pos", ServiceTier: "reg", Price: decimal.NewFromInt(30), EstimatedDays: 4}},
		ByDestination: map[string][]models.ShippingRate{
			"bandung": {rate("jne", "reg", "18", 2)},
		},
		Consolidated:      models.ShippingRate{Provider: "jne", ServiceTier: "cargo", Price: decimal.NewFromInt(40), EstimatedDays: 3},
		PerDestinationFee: decimal.NewFromInt(5),
	}
	ctx := context.Background()

	rates, err := catalog.QuoteIndividual(ctx, origin, jakarta)
	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.Equal(t, "pos:reg", rates[0].ID)

	// City-level override matches regardless of case and postal code
	rates, err = catalog.QuoteIndividual(ctx, origin, models.Location{City: " Bandung ", PostalCode: "40999"})
	require.NoError(t, err)
	assert.Equal(t, "jne:reg", rates[0].ID)

	r, err := catalog.QuoteConsolidated(ctx, origin, []models.Location{jakarta, bandung, surabaya})
	require.NoError(t, err)
	assert.True(t, r.Price.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, "jne:cargo", r.ID)

	_, err = catalog.QuoteConsolidated(ctx, origin, nil)
	assert.ErrorIs(t, err, ErrNoRate)

	empty := &StaticCatalog{}
	_, err = empty.QuoteIndividual(ctx, origin, jakarta)
	assert.ErrorIs(t, err, ErrNoRate)
}

func TestStaticOrigins(t *testing.T) {
	origins := &StaticOrigins{
		Default:   origin,
		ByProduct: map[string]models.Location{"tenun-02": {City: "Kupang"}},
	}

	loc, err := origins.Origin(context.Background(), "tenun-02")
	require.NoError(t, err)
	assert.Equal(t, "Kupang", loc.City)

	loc, err = origins.Origin(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, origin, loc)

	_, err = (&StaticOrigins{}).Origin(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrUnknownOrigin)
}
