package service

import (
	"time"

	"github.com/mmynk/sambatan/internal/models"
	"github.com/mmynk/sambatan/pkg/api"
)

func unix(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.Unix()
}

func groupPurchaseToAPI(gp *models.GroupPurchase) *api.GroupPurchase {
	if gp == nil {
		return nil
	}
	return &api.GroupPurchase{
		Id:                gp.ID,
		ProductId:         gp.ProductID,
		InitiatorId:       gp.InitiatorID,
		TargetQuantity:    int32(gp.TargetQuantity),
		CommittedQuantity: int32(gp.CommittedQuantity),
		Status:            string(gp.Status),
		ExpiresAt:         unix(gp.ExpiresAt),
		CreatedAt:         gp.CreatedAt.Unix(),
		ClosedAt:          unix(gp.ClosedAt),
	}
}

func participantToAPI(p *models.Participant) *api.Participant {
	if p == nil {
		return nil
	}
	out := &api.Participant{
		Id:                    p.ID,
		GroupPurchaseId:       p.GroupPurchaseID,
		UserId:                p.UserID,
		Quantity:              int32(p.Quantity),
		JoinedAt:              p.JoinedAt.Unix(),
		UsesOptimizedShipping: p.UsesOptimizedShipping,
		ChosenRateId:          p.ChosenRateID,
		WithdrawnAt:           unix(p.WithdrawnAt),
	}
	if !p.Destination.IsZero() {
		out.Destination = &api.Location{
			City:       p.Destination.City,
			Province:   p.Destination.Province,
			PostalCode: p.Destination.PostalCode,
		}
	}
	return out
}

func locationFromAPI(l *api.Location) models.Location {
	if l == nil {
		return models.Location{}
	}
	return models.Location{City: l.City, Province: l.Province, PostalCode: l.PostalCode}
}

func rateToAPI(r *models.ShippingRate) *api.ShippingRate {
	if r == nil {
		return nil
	}
	return &api.ShippingRate{
		Id:            r.ID,
		Provider:      r.Provider,
		ServiceTier:   r.ServiceTier,
		Price:         r.Price.String(),
		EstimatedDays: int32(r.EstimatedDays),
	}
}

func recommendationToAPI(r models.ShippingRecommendation) *api.ShippingRecommendation {
	return &api.ShippingRecommendation{
		ParticipantId:           r.ParticipantID,
		UserId:                  r.UserID,
		IndividualRate:          rateToAPI(r.IndividualRate),
		GroupRate:               rateToAPI(r.GroupRate),
		GroupShare:              r.GroupShare.String(),
		RecommendedRate:         rateToAPI(r.RecommendedRate),
		Savings:                 r.Savings.String(),
		UsesGroupRate:           r.UsesGroupRate(),
		OptimizationUnavailable: r.OptimizationUnavailable,
	}
}

func recommendationsToAPI(recs []models.ShippingRecommendation) []*api.ShippingRecommendation {
	if recs == nil {
		return nil
	}
	out := make([]*api.ShippingRecommendation, len(recs))
	for i, r := range recs {
		out[i] = recommendationToAPI(r)
	}
	return out
}
