package shipping

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmynk/sambatan/internal/models"
)

// StaticCatalog quotes from a fixed rate table loaded from configuration.
type StaticCatalog struct {
	// Default rates apply to destinations without an entry in ByDestination.
	Default []models.ShippingRate

	// ByDestination overrides Default. Keys are matched against the
	// destination's normalized key first, then its lower-cased city.
	ByDestination map[string][]models.ShippingRate

	// Consolidated is the group rate for a single destination. Each further
	// distinct destination adds PerDestinationFee to its price.
	Consolidated      models.ShippingRate
	PerDestinationFee decimal.Decimal
}

var _ RateCatalog = (*StaticCatalog)(nil)

func (c *StaticCatalog) QuoteIndividual(_ context.Context, _ models.Location, destination models.Location) ([]models.ShippingRate, error) {
	rates := c.lookup(destination)
	if len(rates) == 0 {
		return nil, fmt.Errorf("%w: no rates for %s", ErrNoRate, destination.Key())
	}
	out := make([]models.ShippingRate, len(rates))
	for i, r := range rates {
		if r.ID == "" {
			r.ID = models.RateID(r.Provider, r.ServiceTier)
		}
		out[i] = r
	}
	return out, nil
}

func (c *StaticCatalog) QuoteConsolidated(_ context.Context, _ models.Location, destinations []models.Location) (models.ShippingRate, error) {
	if len(destinations) == 0 {
		return models.ShippingRate{}, fmt.Errorf("%w: no destinations", ErrNoRate)
	}
	if c.Consolidated.Provider == "" {
		return models.ShippingRate{}, fmt.Errorf("%w: no consolidated rate configured", ErrNoRate)
	}
	rate := c.Consolidated
	extra := decimal.NewFromInt(int64(len(destinations) - 1))
	rate.Price = rate.Price.Add(c.PerDestinationFee.Mul(extra))
	if rate.ID == "" {
		rate.ID = models.RateID(rate.Provider, rate.ServiceTier)
	}
	return rate, nil
}

func (c *StaticCatalog) lookup(dest models.Location) []models.ShippingRate {
	if rates, ok := c.ByDestination[dest.Key()]; ok {
		return rates
	}
	if rates, ok := c.ByDestination[strings.ToLower(strings.TrimSpace(dest.City))]; ok {
		return rates
	}
	return c.Default
}

// StaticOrigins resolves product origins from a fixed table.
type StaticOrigins struct {
	Default   models.Location
	ByProduct map[string]models.Location
}

var _ OriginResolver = (*StaticOrigins)(nil)

func (o *StaticOrigins) Origin(_ context.Context, productID string) (models.Location, error) {
	if loc, ok := o.ByProduct[productID]; ok {
		return loc, nil
	}
	if o.Default.IsZero() {
		return models.Location{}, fmt.Errorf("%w: no origin configured for product %s", ErrUnknownOrigin, productID)
	}
	return o.Default, nil
}
