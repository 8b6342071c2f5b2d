package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmynk/sambatan/internal/models"
	"github.com/mmynk/sambatan/internal/shipping"
)

func (l LocationConfig) model() models.Location {
	return models.Location{City: l.City, Province: l.Province, PostalCode: l.PostalCode}
}

func (r RateConfig) model() (models.ShippingRate, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(r.Price))
	if err != nil {
		return models.ShippingRate{}, fmt.Errorf("rate %s:%s has invalid price %q: %w", r.Provider, r.ServiceTier, r.Price, err)
	}
	if price.IsNegative() {
		return models.ShippingRate{}, fmt.Errorf("rate %s:%s has negative price", r.Provider, r.ServiceTier)
	}
	return models.ShippingRate{
		ID:            models.RateID(r.Provider, r.ServiceTier),
		Provider:      r.Provider,
		ServiceTier:   r.ServiceTier,
		Price:         price,
		EstimatedDays: r.EstimatedDays,
	}, nil
}

func ratesModel(in []RateConfig) ([]models.ShippingRate, error) {
	out := make([]models.ShippingRate, 0, len(in))
	for _, r := range in {
		m, err := r.model()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// StaticCatalog builds the rate table and origin table for static mode.
// Destination keys are lower-cased so they match either a normalized
// location key or a city name.
func (c CatalogConfig) StaticCatalog() (*shipping.StaticCatalog, *shipping.StaticOrigins, error) {
	defaults, err := ratesModel(c.Default)
	if err != nil {
		return nil, nil, fmt.Errorf("default_rates: %w", err)
	}

	byDest := make(map[string][]models.ShippingRate, len(c.Destinations))
	for key, rates := range c.Destinations {
		m, err := ratesModel(rates)
		if err != nil {
			return nil, nil, fmt.Errorf("destination_rates[%s]: %w", key, err)
		}
		byDest[strings.ToLower(strings.TrimSpace(key))] = m
	}

	catalog := &shipping.StaticCatalog{Default: defaults, ByDestination: byDest}
	if c.Consolidated.Provider != "" {
		if catalog.Consolidated, err = c.Consolidated.model(); err != nil {
			return nil, nil, fmt.Errorf("consolidated_rate: %w", err)
		}
	}
	if c.PerDestinationFee != "" {
		fee, err := decimal.NewFromString(strings.TrimSpace(c.PerDestinationFee))
		if err != nil {
			return nil, nil, fmt.Errorf("per_destination_fee: %w", err)
		}
		catalog.PerDestinationFee = fee
	}

	origins := &shipping.StaticOrigins{
		Default:   c.Origin.model(),
		ByProduct: make(map[string]models.Location, len(c.Origins)),
	}
	for productID, loc := range c.Origins {
		origins.ByProduct[productID] = loc.model()
	}
	return catalog, origins, nil
}
