// Package coordination is the entry point that combines the ledger with the
// shipping optimizer: it executes joins and answers what each participant
// should pay for shipping.
package coordination

import (
	"context"
	"log/slog"

	"github.com/mmynk/sambatan/internal/ledger"
	"github.com/mmynk/sambatan/internal/models"
)

// Ledger is the subset of the group purchase ledger the facade uses.
type Ledger interface {
	Create(ctx context.Context, p ledger.CreateParams) (*models.GroupPurchase, error)
	Join(ctx context.Context, p ledger.JoinParams) (*ledger.Change, error)
	Withdraw(ctx context.Context, groupPurchaseID, userID string) (*ledger.Change, error)
	Cancel(ctx context.Context, groupPurchaseID, actorID string) (*models.GroupPurchase, error)
	RecordShippingChoice(ctx context.Context, participantID, actorID, rateID string, usedOptimized bool) (*models.Participant, error)
	Snapshot(ctx context.Context, groupPurchaseID string) (*models.GroupPurchase, []*models.Participant, error)
}

// Planner computes shipping recommendations. It must not fail on catalog
// errors; degraded recommendations are returned instead.
type Planner interface {
	Recommend(ctx context.Context, productID string, participants []*models.Participant) []models.ShippingRecommendation
}

// Facade coordinates ledger mutations with shipping recomputation.
type Facade struct {
	ledger  Ledger
	planner Planner
}

// New creates a Facade.
func New(l Ledger, planner Planner) *Facade {
	return &Facade{ledger: l, planner: planner}
}

// JoinResult is returned by RequestJoin.
type JoinResult struct {
	Participant    *models.Participant
	Purchase       *models.GroupPurchase
	Recommendation models.ShippingRecommendation
}

// WithdrawResult is returned by RequestWithdraw.
type WithdrawResult struct {
	Participant *models.Participant
	Purchase    *models.GroupPurchase
	// Recommendations is the recomputed plan for the remaining participants.
	Recommendations []models.ShippingRecommendation
}

// Status is a read-only snapshot of a group purchase.
type Status struct {
	Purchase     *models.GroupPurchase
	Participants []*models.Participant
	Remaining    int
	// Recommendations is set only when shipping was requested.
	Recommendations []models.ShippingRecommendation
}

// CreateGroupPurchase opens a new group purchase.
func (f *Facade) CreateGroupPurchase(ctx context.Context, p ledger.CreateParams) (*models.GroupPurchase, error) {
	return f.ledger.Create(ctx, p)
}

// RequestJoin commits the user's units and returns their shipping options
// computed over the updated participant set. Shipping optimization never
// causes the join to fail.
func (f *Facade) RequestJoin(ctx context.Context, p ledger.JoinParams) (*JoinResult, error) {
	change, err := f.ledger.Join(ctx, p)
	if err != nil {
		return nil, err
	}

	recs := f.planner.Recommend(ctx, change.Purchase.ProductID, change.Participants)
	rec, ok := find(recs, change.Participant.ID)
	if !ok {
		slog.Warn("No shipping recommendation for new participant",
			"group_purchase_id", change.Purchase.ID,
			"participant_id", change.Participant.ID,
		)
		rec = models.ShippingRecommendation{
			ParticipantID:           change.Participant.ID,
			UserID:                  change.Participant.UserID,
			OptimizationUnavailable: true,
		}
	}

	return &JoinResult{
		Participant:    change.Participant,
		Purchase:       change.Purchase,
		Recommendation: rec,
	}, nil
}

// RequestWithdraw releases the user's units and recomputes shipping for the
// participants who remain.
func (f *Facade) RequestWithdraw(ctx context.Context, groupPurchaseID, userID string) (*WithdrawResult, error) {
	change, err := f.ledger.Withdraw(ctx, groupPurchaseID, userID)
	if err != nil {
		return nil, err
	}
	return &WithdrawResult{
		Participant:     change.Participant,
		Purchase:        change.Purchase,
		Recommendations: f.planner.Recommend(ctx, change.Purchase.ProductID, change.Participants),
	}, nil
}

// GetStatus returns the current state without side effects. The shipping
// plan is computed fresh when includeShipping is set.
func (f *Facade) GetStatus(ctx context.Context, groupPurchaseID string, includeShipping bool) (*Status, error) {
	gp, participants, err := f.ledger.Snapshot(ctx, groupPurchaseID)
	if err != nil {
		return nil, err
	}

	status := &Status{
		Purchase:     gp,
		Participants: participants,
		Remaining:    gp.Remaining(),
	}
	if includeShipping && len(participants) > 0 {
		status.Recommendations = f.planner.Recommend(ctx, gp.ProductID, participants)
	}
	return status, nil
}

// Cancel cancels an open group purchase on behalf of actorID.
func (f *Facade) Cancel(ctx context.Context, groupPurchaseID, actorID string) (*models.GroupPurchase, error) {
	return f.ledger.Cancel(ctx, groupPurchaseID, actorID)
}

// RecordShippingChoice persists the participant's final shipping decision.
func (f *Facade) RecordShippingChoice(ctx context.Context, participantID, actorID, rateID string, usedOptimized bool) (*models.Participant, error) {
	return f.ledger.RecordShippingChoice(ctx, participantID, actorID, rateID, usedOptimized)
}

func find(recs []models.ShippingRecommendation, participantID string) (models.ShippingRecommendation, bool) {
	for _, r := range recs {
		if r.ParticipantID == participantID {
			return r, true
		}
	}
	return models.ShippingRecommendation{}, false
}
