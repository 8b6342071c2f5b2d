// Package events carries domain events from the ledger to subscribers such as
// the notification collaborator. Events are published after the ledger
// transaction commits and are delivered asynchronously.
package events

import (
	"context"
	"time"

	"github.com/mmynk/sambatan/internal/models"
)

// Type names a domain event.
type Type string

const (
	ParticipantJoined      Type = "participant.joined"
	ParticipantWithdrawn   Type = "participant.withdrawn"
	GroupPurchaseCompleted Type = "group_purchase.completed"
	GroupPurchaseClosed    Type = "group_purchase.closed"
	GroupPurchaseCancelled Type = "group_purchase.cancelled"
)

// Event is a domain event emitted by the ledger.
type Event struct {
	// ID is unique per event (UUID format).
	ID   string
	Type Type

	GroupPurchaseID string
	ProductID       string

	// UserID is the participant for participant events and the actor for
	// cancellation. Empty for sweeper transitions.
	UserID        string
	ParticipantID string
	Quantity      int

	// CommittedQuantity, TargetQuantity and Status describe the group purchase
	// right after the change.
	CommittedQuantity int
	TargetQuantity    int
	Status            models.Status

	OccurredAt time.Time
}

// Publisher accepts events for delivery. Publish must not block the caller.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Handler processes one delivered event.
type Handler func(ctx context.Context, e Event)

// Discard is a Publisher that drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, Event) {}

// StatusEvent returns the terminal-transition event type for status, or false
// when status is not terminal.
func StatusEvent(status models.Status) (Type, bool) {
	switch status {
	case models.StatusCompleted:
		return GroupPurchaseCompleted, true
	case models.StatusClosed:
		return GroupPurchaseClosed, true
	case models.StatusCancelled:
		return GroupPurchaseCancelled, true
	}
	return "", false
}
