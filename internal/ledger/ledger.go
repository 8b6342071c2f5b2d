// Package ledger owns the authoritative state of Sambatan group purchases.
//
// The ledger is the only component that mutates committed quantity and
// status. Every mutation of one group purchase runs under that record's
// exclusive lock and inside one storage transaction, and the state write is
// guarded by a version compare-and-swap so concurrent processes sharing the
// database cannot oversell either.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/sambatan/internal/events"
	"github.com/mmynk/sambatan/internal/metrics"
	"github.com/mmynk/sambatan/internal/models"
	"github.com/mmynk/sambatan/internal/storage"
)

const (
	defaultLockTimeout = 2 * time.Second
	defaultMaxRetries  = 5
	initialBackoff     = 5 * time.Millisecond
)

// Authorizer answers role questions about an actor.
// Implemented by the authorization collaborator.
type Authorizer interface {
	// IsModerator reports whether actorID may cancel any group purchase.
	IsModerator(ctx context.Context, actorID string) (bool, error)
	// IsCheckout reports whether actorID is the checkout system, which records
	// shipping choices on behalf of buyers.
	IsCheckout(ctx context.Context, actorID string) (bool, error)
}

// Options configures a Ledger. Zero values use defaults.
type Options struct {
	// Now returns the current time. Defaults to time.Now in UTC.
	Now func() time.Time

	// LockTimeout bounds how long an operation waits for exclusivity before
	// failing with ErrContention.
	LockTimeout time.Duration

	// MaxRetries bounds compare-and-swap retries after a version conflict.
	MaxRetries int

	Publisher  events.Publisher
	Authorizer Authorizer
	Metrics    *metrics.Metrics
}

// Ledger coordinates the lifecycle of group purchases.
type Ledger struct {
	store       storage.Store
	locks       *lockTable
	now         func() time.Time
	lockTimeout time.Duration
	maxRetries  int
	publisher   events.Publisher
	authorizer  Authorizer
	metrics     *metrics.Metrics
}

// New creates a Ledger over store.
func New(store storage.Store, opts Options) *Ledger {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = defaultLockTimeout
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Discard
	}
	return &Ledger{
		store:       store,
		locks:       newLockTable(),
		now:         opts.Now,
		lockTimeout: opts.LockTimeout,
		maxRetries:  opts.MaxRetries,
		publisher:   opts.Publisher,
		authorizer:  opts.Authorizer,
		metrics:     opts.Metrics,
	}
}

// CreateParams describes a new group purchase.
type CreateParams struct {
	ProductID      string
	InitiatorID    string
	TargetQuantity int
	ExpiresAt      *time.Time
}

// JoinParams describes a join request.
type JoinParams struct {
	GroupPurchaseID string
	UserID          string
	Quantity        int
	Destination     models.Location
}

// Change is the result of a successful join or withdraw.
type Change struct {
	// Participant is the record that was created or withdrawn.
	Participant *models.Participant
	// Purchase is the state right after the change.
	Purchase *models.GroupPurchase
	// Participants is the active participant set right after the change.
	Participants []*models.Participant
}

// Create validates and persists a new open group purchase.
func (l *Ledger) Create(ctx context.Context, p CreateParams) (*models.GroupPurchase, error) {
	if p.ProductID == "" || p.InitiatorID == "" {
		return nil, fmt.Errorf("%w: product and initiator are required", ErrInvalidArgument)
	}
	if p.TargetQuantity < 1 {
		return nil, fmt.Errorf("%w: target %d", ErrInvalidQuantity, p.TargetQuantity)
	}
	now := l.now()
	if p.ExpiresAt != nil && !p.ExpiresAt.After(now) {
		return nil, fmt.Errorf("%w: expiration must be in the future", ErrInvalidArgument)
	}

	gp := &models.GroupPurchase{
		ID:             uuid.New().String(),
		ProductID:      p.ProductID,
		InitiatorID:    p.InitiatorID,
		TargetQuantity: p.TargetQuantity,
		Status:         models.StatusOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
	}
	if p.ExpiresAt != nil {
		expires := p.ExpiresAt.UTC()
		gp.ExpiresAt = &expires
	}

	if err := l.store.CreateGroupPurchase(ctx, gp); err != nil {
		l.metrics.LedgerOp("create", Name(err))
		return nil, fmt.Errorf("failed to create group purchase: %w", err)
	}

	l.metrics.LedgerOp("create", "ok")
	slog.Info("Group purchase created",
		"group_purchase_id", gp.ID,
		"product_id", gp.ProductID,
		"target_quantity", gp.TargetQuantity,
	)
	return gp, nil
}

// Join commits quantity units for a user. The capacity check, the increment,
// the participant insert and the completion transition apply together or
// not at all.
func (l *Ledger) Join(ctx context.Context, p JoinParams) (*Change, error) {
	if p.GroupPurchaseID == "" || p.UserID == "" {
		return nil, fmt.Errorf("%w: group purchase and user are required", ErrInvalidArgument)
	}
	if p.Quantity < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidQuantity, p.Quantity)
	}
	if !p.Destination.Routable() {
		return nil, fmt.Errorf("%w: destination city or postal code is required", ErrInvalidArgument)
	}

	var change *Change
	err := l.mutate(ctx, p.GroupPurchaseID, func(tx storage.Tx, now time.Time) ([]events.Event, error) {
		gp, err := tx.GetGroupPurchase(ctx, p.GroupPurchaseID)
		if err != nil {
			return nil, err
		}
		// A completed purchase has no remaining capacity; losers of a race
		// for the last units see the same error whichever side of the
		// completion they land on.
		if gp.Status == models.StatusCompleted {
			return nil, fmt.Errorf("%w: %w", ErrCapacityExceeded, ErrNotOpen)
		}
		if evs, err := l.guardOpen(ctx, tx, gp, now); err != nil {
			return evs, err
		}

		if _, err := tx.GetActiveParticipant(ctx, gp.ID, p.UserID); err == nil {
			return nil, ErrAlreadyJoined
		} else if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}

		next, err := admit(gp, p.Quantity, now)
		if err != nil {
			return nil, err
		}

		participant := &models.Participant{
			ID:              uuid.New().String(),
			GroupPurchaseID: gp.ID,
			UserID:          p.UserID,
			Destination:     p.Destination,
			Quantity:        p.Quantity,
			JoinedAt:        now,
		}
		if err := tx.InsertParticipant(ctx, participant); err != nil {
			if errors.Is(err, storage.ErrDuplicateParticipant) {
				return nil, ErrAlreadyJoined
			}
			return nil, err
		}
		if err := tx.UpdateGroupPurchaseState(ctx, next, gp.Version); err != nil {
			return nil, err
		}

		participants, err := tx.ListActiveParticipants(ctx, gp.ID)
		if err != nil {
			return nil, err
		}
		change = &Change{Participant: participant, Purchase: next, Participants: participants}

		evs := []events.Event{participantEvent(events.ParticipantJoined, next, participant, now)}
		if next.Status == models.StatusCompleted {
			evs = append(evs, statusEvent(next, "", now))
		}
		return evs, nil
	})

	l.metrics.LedgerOp("join", Name(err))
	if err != nil {
		slog.Debug("Join rejected",
			"group_purchase_id", p.GroupPurchaseID,
			"user_id", p.UserID,
			"quantity", p.Quantity,
			"error", err,
		)
		return nil, fmt.Errorf("join %s: %w", p.GroupPurchaseID, err)
	}

	slog.Info("Participant joined",
		"group_purchase_id", change.Purchase.ID,
		"user_id", p.UserID,
		"quantity", p.Quantity,
		"committed_quantity", change.Purchase.CommittedQuantity,
		"status", change.Purchase.Status,
	)
	return change, nil
}

// Withdraw releases the user's committed units while the purchase is open.
// The participant record is kept and marked withdrawn.
func (l *Ledger) Withdraw(ctx context.Context, groupPurchaseID, userID string) (*Change, error) {
	if groupPurchaseID == "" || userID == "" {
		return nil, fmt.Errorf("%w: group purchase and user are required", ErrInvalidArgument)
	}

	var change *Change
	err := l.mutate(ctx, groupPurchaseID, func(tx storage.Tx, now time.Time) ([]events.Event, error) {
		gp, err := tx.GetGroupPurchase(ctx, groupPurchaseID)
		if err != nil {
			return nil, err
		}
		if evs, err := l.guardOpen(ctx, tx, gp, now); err != nil {
			return evs, err
		}

		participant, err := tx.GetActiveParticipant(ctx, gp.ID, userID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotParticipant
		}
		if err != nil {
			return nil, err
		}

		next, err := release(gp, participant.Quantity, now)
		if err != nil {
			return nil, err
		}
		if err := tx.MarkWithdrawn(ctx, participant.ID, now); err != nil {
			return nil, err
		}
		if err := tx.UpdateGroupPurchaseState(ctx, next, gp.Version); err != nil {
			return nil, err
		}

		participants, err := tx.ListActiveParticipants(ctx, gp.ID)
		if err != nil {
			return nil, err
		}
		withdrawnAt := now
		participant.WithdrawnAt = &withdrawnAt
		change = &Change{Participant: participant, Purchase: next, Participants: participants}

		return []events.Event{participantEvent(events.ParticipantWithdrawn, next, participant, now)}, nil
	})

	l.metrics.LedgerOp("withdraw", Name(err))
	if err != nil {
		return nil, fmt.Errorf("withdraw %s: %w", groupPurchaseID, err)
	}

	slog.Info("Participant withdrew",
		"group_purchase_id", groupPurchaseID,
		"user_id", userID,
		"committed_quantity", change.Purchase.CommittedQuantity,
	)
	return change, nil
}

// Cancel moves an open purchase to cancelled. The actor must be the initiator
// or a moderator.
func (l *Ledger) Cancel(ctx context.Context, groupPurchaseID, actorID string) (*models.GroupPurchase, error) {
	if groupPurchaseID == "" || actorID == "" {
		return nil, fmt.Errorf("%w: group purchase and actor are required", ErrInvalidArgument)
	}

	// The initiator never changes, so authorization can be decided before
	// taking the record lock.
	current, err := l.store.GetGroupPurchase(ctx, groupPurchaseID)
	if err != nil {
		l.metrics.LedgerOp("cancel", Name(err))
		return nil, fmt.Errorf("cancel %s: %w", groupPurchaseID, err)
	}
	if err := l.authorizeCancel(ctx, current, actorID); err != nil {
		l.metrics.LedgerOp("cancel", Name(err))
		return nil, fmt.Errorf("cancel %s: %w", groupPurchaseID, err)
	}

	var result *models.GroupPurchase
	err = l.mutate(ctx, groupPurchaseID, func(tx storage.Tx, now time.Time) ([]events.Event, error) {
		gp, err := tx.GetGroupPurchase(ctx, groupPurchaseID)
		if err != nil {
			return nil, err
		}
		if evs, err := l.guardOpen(ctx, tx, gp, now); err != nil {
			return evs, err
		}

		next := cancel(gp, now)
		if err := tx.UpdateGroupPurchaseState(ctx, next, gp.Version); err != nil {
			return nil, err
		}
		result = next
		return []events.Event{statusEvent(next, actorID, now)}, nil
	})

	l.metrics.LedgerOp("cancel", Name(err))
	if err != nil {
		return nil, fmt.Errorf("cancel %s: %w", groupPurchaseID, err)
	}

	slog.Info("Group purchase cancelled", "group_purchase_id", groupPurchaseID, "actor_id", actorID)
	return result, nil
}

func (l *Ledger) authorizeCancel(ctx context.Context, gp *models.GroupPurchase, actorID string) error {
	if gp.InitiatorID == actorID {
		return nil
	}
	if l.authorizer == nil {
		return ErrForbidden
	}
	ok, err := l.authorizer.IsModerator(ctx, actorID)
	if err != nil {
		return fmt.Errorf("failed to check moderator role: %w", err)
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

func (l *Ledger) authorizeChoice(ctx context.Context, p *models.Participant, actorID string) error {
	if p.UserID == actorID {
		return nil
	}
	if l.authorizer == nil {
		return ErrForbidden
	}
	for _, check := range []func(context.Context, string) (bool, error){l.authorizer.IsCheckout, l.authorizer.IsModerator} {
		ok, err := check(ctx, actorID)
		if err != nil {
			return fmt.Errorf("failed to check actor role: %w", err)
		}
		if ok {
			return nil
		}
	}
	return ErrForbidden
}

// Expire applies the expiration transition if the purchase is open and past
// its deadline: completed when the target was reached, closed otherwise.
// It reports whether a transition happened.
func (l *Ledger) Expire(ctx context.Context, groupPurchaseID string) (*models.GroupPurchase, bool, error) {
	var (
		result  *models.GroupPurchase
		changed bool
	)
	err := l.mutate(ctx, groupPurchaseID, func(tx storage.Tx, now time.Time) ([]events.Event, error) {
		gp, err := tx.GetGroupPurchase(ctx, groupPurchaseID)
		if err != nil {
			return nil, err
		}
		if gp.Status != models.StatusOpen || !gp.Expired(now) {
			result = gp
			return nil, nil
		}

		next := expire(gp, now)
		if err := tx.UpdateGroupPurchaseState(ctx, next, gp.Version); err != nil {
			return nil, err
		}
		result, changed = next, true
		return []events.Event{statusEvent(next, "", now)}, nil
	})

	l.metrics.LedgerOp("expire", Name(err))
	if err != nil {
		return nil, false, fmt.Errorf("expire %s: %w", groupPurchaseID, err)
	}
	if changed {
		slog.Info("Group purchase expired",
			"group_purchase_id", groupPurchaseID,
			"status", result.Status,
			"committed_quantity", result.CommittedQuantity,
			"target_quantity", result.TargetQuantity,
		)
	}
	return result, changed, nil
}

// RecordShippingChoice persists the participant's final shipping decision.
// The actor must be the participant's user, the checkout system or a
// moderator. The purchase must be open or completed and the participant
// still active.
func (l *Ledger) RecordShippingChoice(ctx context.Context, participantID, actorID, rateID string, usedOptimized bool) (*models.Participant, error) {
	if participantID == "" || actorID == "" || rateID == "" {
		return nil, fmt.Errorf("%w: participant, actor and rate are required", ErrInvalidArgument)
	}

	existing, err := l.store.GetParticipant(ctx, participantID)
	if err != nil {
		l.metrics.LedgerOp("record_shipping_choice", Name(err))
		return nil, fmt.Errorf("record shipping choice %s: %w", participantID, err)
	}
	if err := l.authorizeChoice(ctx, existing, actorID); err != nil {
		l.metrics.LedgerOp("record_shipping_choice", Name(err))
		return nil, fmt.Errorf("record shipping choice %s: %w", participantID, err)
	}

	var result *models.Participant
	err = l.mutate(ctx, existing.GroupPurchaseID, func(tx storage.Tx, now time.Time) ([]events.Event, error) {
		gp, err := tx.GetGroupPurchase(ctx, existing.GroupPurchaseID)
		if err != nil {
			return nil, err
		}
		if gp.Status != models.StatusCompleted {
			if evs, err := l.guardOpen(ctx, tx, gp, now); err != nil {
				return evs, err
			}
		}

		p, err := tx.GetParticipant(ctx, participantID)
		if err != nil {
			return nil, err
		}
		if !p.Active() {
			return nil, ErrNotParticipant
		}
		if err := tx.UpdateShippingChoice(ctx, participantID, rateID, usedOptimized, now); err != nil {
			return nil, err
		}

		recordedAt := now
		p.ChosenRateID = rateID
		p.UsesOptimizedShipping = usedOptimized
		p.ChoiceRecordedAt = &recordedAt
		result = p
		return nil, nil
	})

	l.metrics.LedgerOp("record_shipping_choice", Name(err))
	if err != nil {
		return nil, fmt.Errorf("record shipping choice %s: %w", participantID, err)
	}

	slog.Info("Shipping choice recorded",
		"participant_id", participantID,
		"actor_id", actorID,
		"rate_id", rateID,
		"used_optimized", usedOptimized,
	)
	return result, nil
}

// Snapshot returns the purchase and its active participants as one
// consistent read. It takes no record lock.
func (l *Ledger) Snapshot(ctx context.Context, groupPurchaseID string) (*models.GroupPurchase, []*models.Participant, error) {
	var (
		gp           *models.GroupPurchase
		participants []*models.Participant
	)
	err := l.store.WithinReadTx(ctx, func(tx storage.Tx) error {
		var err error
		gp, err = tx.GetGroupPurchase(ctx, groupPurchaseID)
		if err != nil {
			return err
		}
		participants, err = tx.ListActiveParticipants(ctx, groupPurchaseID)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot %s: %w", groupPurchaseID, err)
	}
	return gp, participants, nil
}

// ListExpired returns up to limit IDs of open purchases past their deadline.
func (l *Ledger) ListExpired(ctx context.Context, limit int) ([]string, error) {
	return l.store.ListExpiredOpen(ctx, l.now(), limit)
}

// guardOpen rejects mutations of a purchase that is not open. An open purchase
// found past its deadline is expired in the current transaction so the
// rejection and the stored state agree.
func (l *Ledger) guardOpen(ctx context.Context, tx storage.Tx, gp *models.GroupPurchase, now time.Time) ([]events.Event, error) {
	expired, err := checkOpen(gp, now)
	if err == nil {
		return nil, nil
	}
	if !expired {
		return nil, err
	}

	next := expire(gp, now)
	if uerr := tx.UpdateGroupPurchaseState(ctx, next, gp.Version); uerr != nil {
		return nil, uerr
	}
	return []events.Event{statusEvent(next, "", now)}, &commitThenFail{err: err}
}

// commitThenFail asks mutate to commit the transaction and then report err.
type commitThenFail struct {
	err error
}

func (e *commitThenFail) Error() string { return e.err.Error() }
func (e *commitThenFail) Unwrap() error { return e.err }

// mutate runs fn under the record lock for id inside one transaction, retries
// version conflicts with backoff within the lock timeout, and publishes the
// returned events only after commit.
func (l *Ledger) mutate(ctx context.Context, id string, fn func(tx storage.Tx, now time.Time) ([]events.Event, error)) error {
	if id == "" {
		return fmt.Errorf("%w: group purchase is required", ErrInvalidArgument)
	}

	lockCtx, cancelLock := context.WithTimeout(ctx, l.lockTimeout)
	defer cancelLock()

	waitStart := time.Now()
	unlock, err := l.locks.acquire(lockCtx, id)
	l.metrics.LockWait(time.Since(waitStart))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrContention, err)
	}
	defer unlock()

	backoff := initialBackoff
	for attempt := 0; ; attempt++ {
		var (
			evs   []events.Event
			after error
		)
		err := l.store.WithinTx(ctx, func(tx storage.Tx) error {
			var ferr error
			evs, ferr = fn(tx, l.now())
			var deferred *commitThenFail
			if errors.As(ferr, &deferred) {
				after = deferred.err
				return nil
			}
			return ferr
		})

		if errors.Is(err, storage.ErrVersionConflict) {
			if attempt >= l.maxRetries {
				return fmt.Errorf("%w: %w", ErrContention, err)
			}
			select {
			case <-lockCtx.Done():
				return fmt.Errorf("%w: %w", ErrContention, lockCtx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}
		if err != nil {
			return err
		}

		for _, e := range evs {
			l.publisher.Publish(ctx, e)
		}
		return after
	}
}

func participantEvent(t events.Type, gp *models.GroupPurchase, p *models.Participant, now time.Time) events.Event {
	return events.Event{
		ID:                uuid.New().String(),
		Type:              t,
		GroupPurchaseID:   gp.ID,
		ProductID:         gp.ProductID,
		UserID:            p.UserID,
		ParticipantID:     p.ID,
		Quantity:          p.Quantity,
		CommittedQuantity: gp.CommittedQuantity,
		TargetQuantity:    gp.TargetQuantity,
		Status:            gp.Status,
		OccurredAt:        now,
	}
}

func statusEvent(gp *models.GroupPurchase, actorID string, now time.Time) events.Event {
	t, _ := events.StatusEvent(gp.Status)
	return events.Event{
		ID:                uuid.New().String(),
		Type:              t,
		GroupPurchaseID:   gp.ID,
		ProductID:         gp.ProductID,
		UserID:            actorID,
		CommittedQuantity: gp.CommittedQuantity,
		TargetQuantity:    gp.TargetQuantity,
		Status:            gp.Status,
		OccurredAt:        now,
	}
}
