// Package shipping quotes shipping rates and computes per-participant
// recommendations between shipping alone and joining the group's
// consolidated shipment.
package shipping

import (
	"context"
	"errors"
	"sort"

	"github.com/mmynk/sambatan/internal/models"
)

var (
	// ErrNoRate is returned when no quoted rate satisfies the service level.
	ErrNoRate = errors.New("no shipping rate available")

	// ErrUnknownOrigin is returned when a product's origin cannot be resolved.
	ErrUnknownOrigin = errors.New("product origin unknown")

	// ErrUnavailable is returned by catalogs that cannot reach their backing service.
	ErrUnavailable = errors.New("rate catalog unavailable")
)

// RateCatalog quotes shipping rates from a product origin.
type RateCatalog interface {
	// QuoteIndividual returns every rate available for one parcel between
	// origin and destination.
	QuoteIndividual(ctx context.Context, origin, destination models.Location) ([]models.ShippingRate, error)

	// QuoteConsolidated returns the rate for one combined shipment from origin
	// to all destinations.
	QuoteConsolidated(ctx context.Context, origin models.Location, destinations []models.Location) (models.ShippingRate, error)
}

// OriginResolver resolves where a product ships from.
type OriginResolver interface {
	Origin(ctx context.Context, productID string) (models.Location, error)
}

// BestRate picks the cheapest rate whose estimated days do not exceed
// maxDays (0 means unlimited). Ties go to fewer estimated days, then
// provider, then service tier, in lexicographic order.
func BestRate(rates []models.ShippingRate, maxDays int) (models.ShippingRate, error) {
	candidates := make([]models.ShippingRate, 0, len(rates))
	for _, r := range rates {
		if maxDays > 0 && r.EstimatedDays > maxDays {
			continue
		}
		if r.Price.IsNegative() {
			continue
		}
		candidates = append(candidates, r)
	}
	if len(candidates) == 0 {
		return models.ShippingRate{}, ErrNoRate
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if c := a.Price.Cmp(b.Price); c != 0 {
			return c < 0
		}
		if a.EstimatedDays != b.EstimatedDays {
			return a.EstimatedDays < b.EstimatedDays
		}
		if a.Provider != b.Provider {
			return a.Provider < b.Provider
		}
		return a.ServiceTier < b.ServiceTier
	})

	best := candidates[0]
	if best.ID == "" {
		best.ID = models.RateID(best.Provider, best.ServiceTier)
	}
	return best, nil
}

// distinctDestinations returns the unique participant destinations in join order.
func distinctDestinations(participants []*models.Participant) []models.Location {
	seen := make(map[string]bool, len(participants))
	out := make([]models.Location, 0, len(participants))
	for _, p := range participants {
		key := p.Destination.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p.Destination)
	}
	return out
}
