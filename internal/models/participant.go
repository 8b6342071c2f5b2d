package models

import (
	"strings"
	"time"
)

// Location is a shipping origin or destination.
type Location struct {
	City       string
	Province   string
	PostalCode string
}

// Key returns the normalized identity used to group participants that ship
// to the same place.
func (l Location) Key() string {
	return strings.ToLower(strings.TrimSpace(l.City)) + "|" + strings.TrimSpace(l.PostalCode)
}

// IsZero reports whether no part of the location is set.
func (l Location) IsZero() bool {
	return l.City == "" && l.Province == "" && l.PostalCode == ""
}

// Routable reports whether the location carries enough to quote a rate: a
// city or a postal code.
func (l Location) Routable() bool {
	return strings.TrimSpace(l.City) != "" || strings.TrimSpace(l.PostalCode) != ""
}

// Participant represents one buyer's commitment within a group purchase.
// A user holds at most one active (non-withdrawn) participant per group purchase.
type Participant struct {
	// ID is the unique identifier for the participant record (UUID format).
	ID string

	// GroupPurchaseID is the group purchase this commitment belongs to.
	GroupPurchaseID string

	// UserID is the buyer.
	UserID string

	// Destination is where this participant's units ship to.
	Destination Location

	// Quantity is the number of units committed, always >= 1.
	Quantity int

	// JoinedAt is when the participant joined.
	JoinedAt time.Time

	// UsesOptimizedShipping is set by the checkout collaborator once the
	// participant has chosen between the individual and consolidated rate.
	UsesOptimizedShipping bool

	// ChosenRateID is the rate the participant chose, empty until recorded.
	ChosenRateID string

	// ChoiceRecordedAt is when the shipping choice was recorded.
	ChoiceRecordedAt *time.Time

	// WithdrawnAt marks a soft-deleted participant. Withdrawn records are kept.
	WithdrawnAt *time.Time
}

// Active reports whether the participant has not withdrawn.
func (p *Participant) Active() bool {
	return p.WithdrawnAt == nil
}
