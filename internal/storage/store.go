// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mmynk/sambatan/internal/models"
)

var (
	// ErrNotFound is returned when a group purchase or participant does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict is returned when a compare-and-swap update finds the
	// record at a different version than expected.
	ErrVersionConflict = errors.New("version conflict")

	// ErrDuplicateParticipant is returned when inserting a second active
	// participant for the same user and group purchase.
	ErrDuplicateParticipant = errors.New("duplicate active participant")
)

// Store defines the interface for group purchase storage operations.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL, etc.)
// without changing the ledger.
//
// Store only exposes reads and creation. Every mutation of committed quantity
// or status goes through WithinTx so the ledger can apply it as one unit.
type Store interface {
	// CreateGroupPurchase persists a new group purchase.
	// The ID and CreatedAt fields are populated by the store when empty.
	CreateGroupPurchase(ctx context.Context, gp *models.GroupPurchase) error

	// GetGroupPurchase retrieves a group purchase by its ID.
	// Returns ErrNotFound if it does not exist.
	GetGroupPurchase(ctx context.Context, id string) (*models.GroupPurchase, error)

	// ListActiveParticipants returns the non-withdrawn participants of a
	// group purchase ordered by join time.
	ListActiveParticipants(ctx context.Context, groupPurchaseID string) ([]*models.Participant, error)

	// GetParticipant retrieves a participant record by its ID.
	GetParticipant(ctx context.Context, id string) (*models.Participant, error)

	// ListExpiredOpen returns IDs of open group purchases whose expiration is
	// at or before now, oldest expiration first.
	ListExpiredOpen(ctx context.Context, now time.Time, limit int) ([]string, error)

	// WithinTx runs fn inside a single transaction. The transaction commits
	// if fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	// WithinReadTx runs fn against one consistent read snapshot without
	// taking the write lock. fn must not write.
	WithinReadTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any resources held by the store.
	Close() error
}

// Tx is the set of operations available inside a transaction.
type Tx interface {
	GetGroupPurchase(ctx context.Context, id string) (*models.GroupPurchase, error)

	// GetActiveParticipant returns the user's non-withdrawn participant record
	// for the group purchase, or ErrNotFound.
	GetActiveParticipant(ctx context.Context, groupPurchaseID, userID string) (*models.Participant, error)

	GetParticipant(ctx context.Context, id string) (*models.Participant, error)

	// ListActiveParticipants returns the non-withdrawn participants ordered by
	// join time, as seen by this transaction.
	ListActiveParticipants(ctx context.Context, groupPurchaseID string) ([]*models.Participant, error)

	// InsertParticipant stores a new participant. Returns
	// ErrDuplicateParticipant if the user already has an active record.
	InsertParticipant(ctx context.Context, p *models.Participant) error

	// MarkWithdrawn soft-deletes a participant.
	MarkWithdrawn(ctx context.Context, participantID string, at time.Time) error

	// UpdateShippingChoice records the participant's final shipping choice.
	UpdateShippingChoice(ctx context.Context, participantID, rateID string, usedOptimized bool, at time.Time) error

	// UpdateGroupPurchaseState writes committed quantity, status, ClosedAt,
	// UpdatedAt and Version, but only if the stored version equals
	// expectedVersion. Returns ErrVersionConflict otherwise, and also when
	// the backend could not obtain its write lock in time.
	UpdateGroupPurchaseState(ctx context.Context, gp *models.GroupPurchase, expectedVersion int64) error
}
