package shipping

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/sambatan/internal/calculator"
	"github.com/mmynk/sambatan/internal/metrics"
	"github.com/mmynk/sambatan/internal/models"
)

const (
	defaultPlaces      = 2
	defaultConcurrency = 4
)

// OptimizerOptions configures an Optimizer.
type OptimizerOptions struct {
	// MaxEstimatedDays is the service-level threshold for individual rates.
	// Zero accepts any delivery time.
	MaxEstimatedDays int

	// Places is the currency precision used when splitting the group rate.
	// Zero splits into whole currency units; a negative value uses two places.
	Places int32

	// Concurrency bounds parallel individual quotes per recompute. Zero uses
	// the default.
	Concurrency int

	Metrics *metrics.Metrics
}

// Optimizer computes shipping recommendations for a group's participants.
// It never mutates ledger state and is safe for concurrent use.
type Optimizer struct {
	catalog RateCatalog
	origins OriginResolver
	opts    OptimizerOptions
}

// NewOptimizer creates an Optimizer quoting from catalog with origins resolved by origins.
func NewOptimizer(catalog RateCatalog, origins OriginResolver, opts OptimizerOptions) *Optimizer {
	if opts.Places < 0 {
		opts.Places = defaultPlaces
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	return &Optimizer{catalog: catalog, origins: origins, opts: opts}
}

// Recommend returns one recommendation per participant, in input order.
// Catalog failures never surface as errors: affected recommendations fall
// back to the individual rate with OptimizationUnavailable set.
func (o *Optimizer) Recommend(ctx context.Context, productID string, participants []*models.Participant) []models.ShippingRecommendation {
	if len(participants) == 0 {
		return nil
	}

	origin, err := o.origins.Origin(ctx, productID)
	if err != nil {
		slog.Warn("Failed to resolve product origin", "product_id", productID, "error", err)
		o.opts.Metrics.OptimizerDegraded()
		return degraded(participants, nil)
	}

	destinations := distinctDestinations(participants)
	individual := o.quoteIndividual(ctx, origin, destinations)

	group, err := o.quoteConsolidated(ctx, origin, destinations)
	if err != nil {
		slog.Warn("Consolidated quote failed", "product_id", productID, "destinations", len(destinations), "error", err)
		o.opts.Metrics.OptimizerDegraded()
		return degraded(participants, individual)
	}

	shares, err := o.split(group.Price, participants)
	if err != nil {
		slog.Warn("Failed to split group rate", "product_id", productID, "error", err)
		o.opts.Metrics.OptimizerDegraded()
		return degraded(participants, individual)
	}

	recs := make([]models.ShippingRecommendation, len(participants))
	for i, p := range participants {
		rec := models.ShippingRecommendation{
			ParticipantID: p.ID,
			UserID:        p.UserID,
			GroupRate:     group,
			GroupShare:    shares[p.ID],
			Savings:       decimal.Zero,
		}
		ind, ok := individual[p.Destination.Key()]
		if !ok {
			// Without an individual rate there is nothing to compare against.
			rec.OptimizationUnavailable = true
			recs[i] = rec
			o.opts.Metrics.OptimizerDegraded()
			continue
		}

		rec.IndividualRate = ind
		savings := ind.Price.Sub(rec.GroupShare)
		if savings.IsPositive() {
			rec.RecommendedRate = group
			rec.Savings = savings
		} else {
			rec.RecommendedRate = ind
		}
		recs[i] = rec
	}
	return recs
}

// quoteIndividual returns the best individual rate per destination key.
// Destinations whose quote failed are absent from the result.
func (o *Optimizer) quoteIndividual(ctx context.Context, origin models.Location, destinations []models.Location) map[string]*models.ShippingRate {
	var (
		mu  sync.Mutex
		out = make(map[string]*models.ShippingRate, len(destinations))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Concurrency)
	for _, dest := range destinations {
		g.Go(func() error {
			rates, err := o.catalog.QuoteIndividual(gctx, origin, dest)
			if err == nil {
				var best models.ShippingRate
				best, err = BestRate(rates, o.opts.MaxEstimatedDays)
				if err == nil {
					mu.Lock()
					out[dest.Key()] = &best
					mu.Unlock()
					return nil
				}
			}
			// One destination failing degrades only its participants.
			slog.Warn("Individual quote failed", "destination", dest.Key(), "error", err)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (o *Optimizer) quoteConsolidated(ctx context.Context, origin models.Location, destinations []models.Location) (*models.ShippingRate, error) {
	rate, err := o.catalog.QuoteConsolidated(ctx, origin, destinations)
	if err != nil {
		return nil, err
	}
	if rate.Price.IsNegative() {
		return nil, fmt.Errorf("consolidated price cannot be negative: %s", rate.Price)
	}
	if rate.ID == "" {
		rate.ID = models.RateID(rate.Provider, rate.ServiceTier)
	}
	return &rate, nil
}

// split divides the group price across participants by quantity. Leftover
// currency units go to participants in join order.
func (o *Optimizer) split(total decimal.Decimal, participants []*models.Participant) (map[string]decimal.Decimal, error) {
	shares := make([]calculator.Share, len(participants))
	for i, p := range participants {
		shares[i] = calculator.Share{Key: p.ID, Weight: p.Quantity}
	}
	return calculator.SplitProportional(total, shares, o.opts.Places)
}

func degraded(participants []*models.Participant, individual map[string]*models.ShippingRate) []models.ShippingRecommendation {
	recs := make([]models.ShippingRecommendation, len(participants))
	for i, p := range participants {
		ind := individual[p.Destination.Key()]
		recs[i] = models.ShippingRecommendation{
			ParticipantID:           p.ID,
			UserID:                  p.UserID,
			IndividualRate:          ind,
			RecommendedRate:         ind,
			GroupShare:              decimal.Zero,
			Savings:                 decimal.Zero,
			OptimizationUnavailable: true,
		}
	}
	return recs
}
