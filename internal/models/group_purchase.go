package models

import "time"

// Status is the lifecycle state of a group purchase.
type Status string

const (
	StatusOpen      Status = "open"
	StatusCompleted Status = "completed"
	StatusClosed    Status = "closed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusClosed || s == StatusCancelled
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusCompleted, StatusClosed, StatusCancelled:
		return true
	}
	return false
}

// GroupPurchase represents one Sambatan: a shared purchase of a single product
// that several buyers commit units to until TargetQuantity is reached.
type GroupPurchase struct {
	// ID is the unique identifier for the group purchase (UUID format).
	ID string

	// ProductID is the product being bought together.
	ProductID string

	// InitiatorID is the user who opened the group purchase.
	InitiatorID string

	// TargetQuantity is the number of units the group must commit to.
	// Immutable after creation, always > 0.
	TargetQuantity int

	// CommittedQuantity is the sum of quantities of active participants.
	// Never exceeds TargetQuantity and is frozen once Status leaves open.
	CommittedQuantity int

	// Status is the lifecycle state.
	Status Status

	// ExpiresAt is when the group purchase stops accepting joins.
	// Nil means it never expires.
	ExpiresAt *time.Time

	// CreatedAt is when the group purchase was created.
	CreatedAt time.Time

	// UpdatedAt is when the group purchase was last mutated.
	UpdatedAt time.Time

	// ClosedAt is when the group purchase left the open state, if it has.
	ClosedAt *time.Time

	// Version is bumped on every mutation and used as a compare-and-swap token.
	Version int64
}

// Remaining returns the capacity still available for new joins.
func (g *GroupPurchase) Remaining() int {
	return g.TargetQuantity - g.CommittedQuantity
}

// Expired reports whether the expiration time has passed at now.
func (g *GroupPurchase) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && !now.Before(*g.ExpiresAt)
}

// Clone returns a deep copy so snapshots can be handed out safely.
func (g *GroupPurchase) Clone() *GroupPurchase {
	c := *g
	if g.ExpiresAt != nil {
		t := *g.ExpiresAt
		c.ExpiresAt = &t
	}
	if g.ClosedAt != nil {
		t := *g.ClosedAt
		c.ClosedAt = &t
	}
	return &c
}
