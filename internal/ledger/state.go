package ledger

import (
	"fmt"
	"time"

	"github.com/mmynk/sambatan/internal/models"
)

// lifecycleError is the error a mutation reports against a purchase that has
// left the open state. Closed is only reachable through expiration.
func lifecycleError(status models.Status) error {
	switch status {
	case models.StatusClosed:
		return ErrAlreadyExpired
	case models.StatusCancelled:
		return ErrAlreadyCancelled
	default:
		return ErrNotOpen
	}
}

// checkOpen returns nil if gp accepts mutations at now. expired is true when
// gp is still open but past its expiration, meaning the caller should commit
// the expire transition before failing.
func checkOpen(gp *models.GroupPurchase, now time.Time) (expired bool, err error) {
	if gp.Status != models.StatusOpen {
		return false, lifecycleError(gp.Status)
	}
	if gp.Expired(now) {
		return true, ErrAlreadyExpired
	}
	return false, nil
}

// admit returns the state after committing quantity more units. Admission is
// all or nothing: if the units do not fit, gp is unchanged and
// ErrCapacityExceeded is returned. Reaching the target completes the purchase
// in the same step.
func admit(gp *models.GroupPurchase, quantity int, now time.Time) (*models.GroupPurchase, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	if quantity > gp.Remaining() {
		return nil, fmt.Errorf("%w: requested %d, remaining %d", ErrCapacityExceeded, quantity, gp.Remaining())
	}

	next := gp.Clone()
	next.CommittedQuantity += quantity
	if next.CommittedQuantity == next.TargetQuantity {
		finish(next, models.StatusCompleted, now)
	}
	bump(next, now)
	return next, nil
}

// release returns the state after a participant holding quantity units withdraws.
func release(gp *models.GroupPurchase, quantity int, now time.Time) (*models.GroupPurchase, error) {
	if quantity < 1 || quantity > gp.CommittedQuantity {
		return nil, fmt.Errorf("cannot release %d of %d committed units", quantity, gp.CommittedQuantity)
	}
	next := gp.Clone()
	next.CommittedQuantity -= quantity
	bump(next, now)
	return next, nil
}

// expire returns the state after the expiration deadline passes on an open purchase.
func expire(gp *models.GroupPurchase, now time.Time) *models.GroupPurchase {
	next := gp.Clone()
	if next.CommittedQuantity == next.TargetQuantity {
		finish(next, models.StatusCompleted, now)
	} else {
		finish(next, models.StatusClosed, now)
	}
	bump(next, now)
	return next
}

// cancel returns the state after cancelling an open purchase.
func cancel(gp *models.GroupPurchase, now time.Time) *models.GroupPurchase {
	next := gp.Clone()
	finish(next, models.StatusCancelled, now)
	bump(next, now)
	return next
}

func finish(gp *models.GroupPurchase, status models.Status, now time.Time) {
	gp.Status = status
	at := now
	gp.ClosedAt = &at
}

func bump(gp *models.GroupPurchase, now time.Time) {
	gp.Version++
	gp.UpdatedAt = now
}
