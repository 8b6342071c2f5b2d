package models

import "github.com/shopspring/decimal"

// ShippingRate is a quoted price for moving one parcel between two locations
// via one carrier and service tier. Rates are immutable and never persisted.
type ShippingRate struct {
	// ID identifies the rate as "provider:tier".
	ID string

	Provider      string
	ServiceTier   string
	Price         decimal.Decimal
	EstimatedDays int
}

// RateID builds the identifier for a provider and service tier.
func RateID(provider, tier string) string {
	return provider + ":" + tier
}

// ShippingRecommendation is the derived shipping advice for one participant.
// It is computed fresh whenever the participant set changes.
type ShippingRecommendation struct {
	ParticipantID string
	UserID        string

	// IndividualRate is the best rate for shipping this participant alone.
	// Nil when no individual quote could be obtained.
	IndividualRate *ShippingRate

	// GroupRate is the consolidated rate for the whole group, if quoted.
	GroupRate *ShippingRate

	// GroupShare is this participant's quantity-weighted share of GroupRate.
	GroupShare decimal.Decimal

	// RecommendedRate is GroupRate when Savings > 0, otherwise IndividualRate.
	RecommendedRate *ShippingRate

	// Savings is IndividualRate.Price - GroupShare, zero in degraded mode.
	Savings decimal.Decimal

	// OptimizationUnavailable is set when the consolidated rate could not be
	// computed and the recommendation falls back to the individual rate.
	OptimizationUnavailable bool
}

// UsesGroupRate reports whether the consolidated rate is recommended.
func (r *ShippingRecommendation) UsesGroupRate() bool {
	return r.GroupRate != nil && r.RecommendedRate == r.GroupRate
}
