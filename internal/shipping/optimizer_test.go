package shipping

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/sambatan/internal/metrics"
	"github.com/mmynk/sambatan/internal/models"
)

var (
	jakarta  = models.Location{City: "Jakarta", PostalCode: "10110"}
	bandung  = models.Location{City: "Bandung", PostalCode: "40111"}
	surabaya = models.Location{City: "Surabaya", PostalCode: "60111"}
	origin   = models.Location{City: "Yogyakarta", PostalCode: "55281"}
)

func rate(provider, tier, price string, days int) models.ShippingRate {
	return models.ShippingRate{
		ID:            models.RateID(provider, tier),
		Provider:      provider,
		ServiceTier:   tier,
		Price:         decimal.RequireFromString(price),
		EstimatedDays: days,
	}
}

func participant(id string, dest models.Location, qty int) *models.Participant {
	return &models.Participant{ID: id, UserID: "user-" + id, Destination: dest, Quantity: qty}
}

func threeCityCatalog() *StaticCatalog {
	return &StaticCatalog{
		ByDestination: map[string][]models.ShippingRate{
			jakarta.Key():  {rate("jne", "reg", "20", 2), rate("pos", "kilat", "28", 1)},
			bandung.Key():  {rate("jne", "reg", "25", 3)},
			surabaya.Key(): {rate("sicepat", "best", "22", 2)},
		},
		Consolidated: rate("jne", "cargo", "45", 4),
	}
}

type unavailableCatalog struct{}

func (unavailableCatalog) QuoteIndividual(context.Context, models.Location, models.Location) ([]models.ShippingRate, error) {
	return nil, ErrUnavailable
}

func (unavailableCatalog) QuoteConsolidated(context.Context, models.Location, []models.Location) (models.ShippingRate, error) {
	return models.ShippingRate{}, ErrUnavailable
}

// consolidatedDown quotes individual rates but fails consolidated quotes.
type consolidatedDown struct {
	*StaticCatalog
}

func (consolidatedDown) QuoteConsolidated(context.Context, models.Location, []models.Location) (models.ShippingRate, error) {
	return models.ShippingRate{}, ErrUnavailable
}

type failingOrigins struct{}

func (failingOrigins) Origin(context.Context, string) (models.Location, error) {
	return models.Location{}, errors.New("product service down")
}

func fixedOrigins() *StaticOrigins {
	return &StaticOrigins{Default: origin}
}

func TestRecommendThreeDestinations(t *testing.T) {
	opt := NewOptimizer(threeCityCatalog(), fixedOrigins(), OptimizerOptions{})
	participants := []*models.Participant{
		participant("a", jakarta, 1),
		participant("b", bandung, 1),
		participant("c", surabaya, 1),
	}

	recs := opt.Recommend(context.Background(), "batik-01", participants)
	require.Len(t, recs, 3)

	wantIndividual := []string{"20", "25", "22"}
	wantSavings := []string{"5", "10", "7"}
	for i, rec := range recs {
		assert.Equal(t, participants[i].ID, rec.ParticipantID)
		assert.False(t, rec.OptimizationUnavailable)
		require.NotNil(t, rec.IndividualRate)
		assert.True(t, rec.IndividualRate.Price.Equal(decimal.RequireFromString(wantIndividual[i])), "individual %s", rec.IndividualRate.Price)
		assert.True(t, rec.GroupShare.Equal(decimal.NewFromInt(15)), "share %s", rec.GroupShare)
		assert.True(t, rec.Savings.Equal(decimal.RequireFromString(wantSavings[i])), "savings %s", rec.Savings)
		assert.True(t, rec.UsesGroupRate())
		assert.Equal(t, "jne:cargo", rec.RecommendedRate.ID)
	}
}

func TestRecommendKeepsIndividualWhenCheaper(t *testing.T) {
	catalog := threeCityCatalog()
	catalog.Consolidated = rate("jne", "cargo", "70", 4)
	opt := NewOptimizer(catalog, fixedOrigins(), OptimizerOptions{})

	// Shares by quantity: a=35, b=35 against individual 20 and 25
	recs := opt.Recommend(context.Background(), "batik-01", []*models.Participant{
		participant("a", jakarta, 1),
		participant("b", bandung, 1),
	})
	require.Len(t, recs, 2)
	for _, rec := range recs {
		assert.False(t, rec.UsesGroupRate())
		assert.Same(t, rec.IndividualRate, rec.RecommendedRate)
		assert.True(t, rec.Savings.IsZero())
	}
}

func TestRecommendWeightsByQuantity(t *testing.T) {
	catalog := &StaticCatalog{
		Default:      []models.ShippingRate{rate("jne", "reg", "40", 2)},
		Consolidated: rate("jne", "cargo", "10", 4),
	}
	opt := NewOptimizer(catalog, fixedOrigins(), OptimizerOptions{Places: 2})

	recs := opt.Recommend(context.Background(), "batik-01", []*models.Participant{
		participant("a", jakarta, 1),
		participant("b", jakarta, 1),
		participant("c", bandung, 1),
	})
	require.Len(t, recs, 3)

	// 10 / 3 with leftover cent to the earliest joiner
	assert.Equal(t, "3.34", recs[0].GroupShare.StringFixed(2))
	assert.Equal(t, "3.33", recs[1].GroupShare.StringFixed(2))
	assert.Equal(t, "3.33", recs[2].GroupShare.StringFixed(2))
}

func TestRecommendWholeCurrencyUnits(t *testing.T) {
	catalog := &StaticCatalog{
		Default:      []models.ShippingRate{rate("jne", "reg", "5000", 2)},
		Consolidated: rate("jne", "cargo", "10000", 4),
	}
	opt := NewOptimizer(catalog, fixedOrigins(), OptimizerOptions{Places: 0})

	recs := opt.Recommend(context.Background(), "batik-01", []*models.Participant{
		participant("a", jakarta, 1),
		participant("b", jakarta, 1),
		participant("c", bandung, 1),
	})
	require.Len(t, recs, 3)

	want := []string{"3334", "3333", "3333"}
	for i, rec := range recs {
		assert.Equal(t, want[i], rec.GroupShare.String())
		assert.True(t, rec.GroupShare.Equal(rec.GroupShare.Truncate(0)), "fractional share %s", rec.GroupShare)
	}
	assert.True(t, recs[0].Savings.Equal(decimal.NewFromInt(1666)))
}

func TestRecommendServiceLevel(t *testing.T) {
	catalog := threeCityCatalog()
	opt := NewOptimizer(catalog, fixedOrigins(), OptimizerOptions{MaxEstimatedDays: 1})

	recs := opt.Recommend(context.Background(), "batik-01", []*models.Participant{
		participant("a", jakarta, 1),
		participant("b", bandung, 1),
	})
	require.Len(t, recs, 2)

	// Only the 1-day rate qualifies for Jakarta
	require.NotNil(t, recs[0].IndividualRate)
	assert.Equal(t, "pos:kilat", recs[0].IndividualRate.ID)

	// Nothing qualifies for Bandung
	assert.Nil(t, recs[1].IndividualRate)
	assert.Nil(t, recs[1].RecommendedRate)
	assert.True(t, recs[1].OptimizationUnavailable)
	assert.True(t, recs[1].Savings.IsZero())
}

func TestRecommendDegraded(t *testing.T) {
	participants := []*models.Participant{
		participant("a", jakarta, 1),
		participant("b", bandung, 2),
	}

	tests := []struct {
		name           string
		catalog        RateCatalog
		origins        OriginResolver
		wantIndividual bool
	}{
		{"catalog unavailable", unavailableCatalog{}, fixedOrigins(), false},
		{"consolidated quote fails", consolidatedDown{threeCityCatalog()}, fixedOrigins(), true},
		{"origin unknown", threeCityCatalog(), failingOrigins{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := prometheus.NewRegistry()
			m := metrics.New(reg)
			opt := NewOptimizer(tt.catalog, tt.origins, OptimizerOptions{Metrics: m})

			recs := opt.Recommend(context.Background(), "batik-01", participants)
			require.Len(t, recs, 2)
			for _, rec := range recs {
				assert.True(t, rec.OptimizationUnavailable)
				assert.True(t, rec.Savings.IsZero())
				assert.Nil(t, rec.GroupRate)
				assert.Same(t, rec.IndividualRate, rec.RecommendedRate)
				if tt.wantIndividual {
					assert.NotNil(t, rec.IndividualRate)
				} else {
					assert.Nil(t, rec.IndividualRate)
				}
			}
			expected := `
# HELP sambatan_optimizer_degraded_total Shipping plans computed without a consolidated rate.
# TYPE sambatan_optimizer_degraded_total counter
sambatan_optimizer_degraded_total 1
`
			assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "sambatan_optimizer_degraded_total"))
		})
	}
}

func TestRecommendEmpty(t *testing.T) {
	opt := NewOptimizer(threeCityCatalog(), fixedOrigins(), OptimizerOptions{})
	assert.Empty(t, opt.Recommend(context.Background(), "batik-01", nil))
}

func TestBestRate(t *testing.T) {
	tests := []struct {
		name    string
		rates   []models.ShippingRate
		maxDays int
		want    string
		wantErr bool
	}{
		{
			name:  "lowest price",
			rates: []models.ShippingRate{rate("jne", "reg", "20", 3), rate("pos", "reg", "18", 5)},
			want:  "pos:reg",
		},
		{
			name:  "tie broken by fewer days",
			rates: []models.ShippingRate{rate("jne", "reg", "20", 3), rate("pos", "reg", "20", 2)},
			want:  "pos:reg",
		},
		{
			name:  "tie broken by provider",
			rates: []models.ShippingRate{rate("sicepat", "reg", "20", 2), rate("anteraja", "reg", "20", 2)},
			want:  "anteraja:reg",
		},
		{
			name:  "tie broken by tier",
			rates: []models.ShippingRate{rate("jne", "yes", "20", 2), rate("jne", "oke", "20", 2)},
			want:  "jne:oke",
		},
		{
			name:    "service level filters slow rates",
			rates:   []models.ShippingRate{rate("pos", "reg", "10", 7), rate("jne", "yes", "30", 1)},
			maxDays: 2,
			want:    "jne:yes",
		},
		{
			name:    "nothing qualifies",
			rates:   []models.ShippingRate{rate("pos", "reg", "10", 7)},
			maxDays: 2,
			wantErr: true,
		},
		{
			name:    "empty",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BestRate(tt.rates, tt.maxDays)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoRate)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.ID)
		})
	}
}
