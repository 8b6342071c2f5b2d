package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/sambatan/internal/coordination"
	"github.com/mmynk/sambatan/internal/ledger"
	"github.com/mmynk/sambatan/internal/middleware"
	"github.com/mmynk/sambatan/internal/models"
	"github.com/mmynk/sambatan/pkg/api"
	"github.com/mmynk/sambatan/pkg/api/apiconnect"
)

// Coordinator is the facade the RPC layer drives.
type Coordinator interface {
	CreateGroupPurchase(ctx context.Context, p ledger.CreateParams) (*models.GroupPurchase, error)
	RequestJoin(ctx context.Context, p ledger.JoinParams) (*coordination.JoinResult, error)
	RequestWithdraw(ctx context.Context, groupPurchaseID, userID string) (*coordination.WithdrawResult, error)
	GetStatus(ctx context.Context, groupPurchaseID string, includeShipping bool) (*coordination.Status, error)
	Cancel(ctx context.Context, groupPurchaseID, actorID string) (*models.GroupPurchase, error)
	RecordShippingChoice(ctx context.Context, participantID, actorID, rateID string, usedOptimized bool) (*models.Participant, error)
}

// SambatanService implements the Connect SambatanService.
type SambatanService struct {
	coordinator Coordinator
}

var _ apiconnect.SambatanServiceHandler = (*SambatanService)(nil)

// NewSambatanService creates a new SambatanService backed by coordinator.
func NewSambatanService(coordinator Coordinator) *SambatanService {
	return &SambatanService{coordinator: coordinator}
}

// CreateGroupPurchase opens a group purchase initiated by the caller.
func (s *SambatanService) CreateGroupPurchase(ctx context.Context, req *connect.Request[api.CreateGroupPurchaseRequest]) (*connect.Response[api.CreateGroupPurchaseResponse], error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("CreateGroupPurchase request received",
		"product_id", req.Msg.ProductId,
		"target_quantity", req.Msg.TargetQuantity,
		"user_id", userID,
	)

	params := ledger.CreateParams{
		ProductID:      req.Msg.ProductId,
		InitiatorID:    userID,
		TargetQuantity: int(req.Msg.TargetQuantity),
	}
	if req.Msg.ExpiresAt > 0 {
		at := time.Unix(req.Msg.ExpiresAt, 0).UTC()
		params.ExpiresAt = &at
	}

	gp, err := s.coordinator.CreateGroupPurchase(ctx, params)
	if err != nil {
		slog.Error("CreateGroupPurchase failed", "error", err)
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.CreateGroupPurchaseResponse{GroupPurchase: groupPurchaseToAPI(gp)}), nil
}

// RequestJoin commits units for the caller and returns their shipping options.
func (s *SambatanService) RequestJoin(ctx context.Context, req *connect.Request[api.RequestJoinRequest]) (*connect.Response[api.RequestJoinResponse], error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("RequestJoin request received",
		"group_purchase_id", req.Msg.GroupPurchaseId,
		"quantity", req.Msg.Quantity,
		"user_id", userID,
	)

	res, err := s.coordinator.RequestJoin(ctx, ledger.JoinParams{
		GroupPurchaseID: req.Msg.GroupPurchaseId,
		UserID:          userID,
		Quantity:        int(req.Msg.Quantity),
		Destination:     locationFromAPI(req.Msg.Destination),
	})
	if err != nil {
		slog.Warn("RequestJoin failed", "group_purchase_id", req.Msg.GroupPurchaseId, "error", err)
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.RequestJoinResponse{
		Participant:    participantToAPI(res.Participant),
		GroupPurchase:  groupPurchaseToAPI(res.Purchase),
		Recommendation: recommendationToAPI(res.Recommendation),
	}), nil
}

// RequestWithdraw releases the caller's units.
func (s *SambatanService) RequestWithdraw(ctx context.Context, req *connect.Request[api.RequestWithdrawRequest]) (*connect.Response[api.RequestWithdrawResponse], error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("RequestWithdraw request received", "group_purchase_id", req.Msg.GroupPurchaseId, "user_id", userID)

	res, err := s.coordinator.RequestWithdraw(ctx, req.Msg.GroupPurchaseId, userID)
	if err != nil {
		slog.Warn("RequestWithdraw failed", "group_purchase_id", req.Msg.GroupPurchaseId, "error", err)
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.RequestWithdrawResponse{
		Participant:     participantToAPI(res.Participant),
		GroupPurchase:   groupPurchaseToAPI(res.Purchase),
		Recommendations: recommendationsToAPI(res.Recommendations),
	}), nil
}

// GetStatus returns a read-only snapshot. It does not require authentication.
func (s *SambatanService) GetStatus(ctx context.Context, req *connect.Request[api.GetStatusRequest]) (*connect.Response[api.GetStatusResponse], error) {
	slog.Debug("GetStatus request received", "group_purchase_id", req.Msg.GroupPurchaseId, "include_shipping", req.Msg.IncludeShipping)

	status, err := s.coordinator.GetStatus(ctx, req.Msg.GroupPurchaseId, req.Msg.IncludeShipping)
	if err != nil {
		return nil, toConnectError(err)
	}

	participants := make([]*api.Participant, len(status.Participants))
	for i, p := range status.Participants {
		participants[i] = participantToAPI(p)
	}

	return connect.NewResponse(&api.GetStatusResponse{
		GroupPurchase:     groupPurchaseToAPI(status.Purchase),
		Participants:      participants,
		RemainingQuantity: int32(status.Remaining),
		Recommendations:   recommendationsToAPI(status.Recommendations),
	}), nil
}

// CancelGroupPurchase cancels an open group purchase. Only the initiator or a
// moderator may cancel.
func (s *SambatanService) CancelGroupPurchase(ctx context.Context, req *connect.Request[api.CancelGroupPurchaseRequest]) (*connect.Response[api.CancelGroupPurchaseResponse], error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("CancelGroupPurchase request received", "group_purchase_id", req.Msg.GroupPurchaseId, "user_id", userID)

	gp, err := s.coordinator.Cancel(ctx, req.Msg.GroupPurchaseId, userID)
	if err != nil {
		slog.Warn("CancelGroupPurchase failed", "group_purchase_id", req.Msg.GroupPurchaseId, "error", err)
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.CancelGroupPurchaseResponse{GroupPurchase: groupPurchaseToAPI(gp)}), nil
}

// RecordShippingChoice persists the participant's checkout decision. Only the
// participant, the checkout system or a moderator may record it.
func (s *SambatanService) RecordShippingChoice(ctx context.Context, req *connect.Request[api.RecordShippingChoiceRequest]) (*connect.Response[api.RecordShippingChoiceResponse], error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("RecordShippingChoice request received",
		"participant_id", req.Msg.ParticipantId,
		"user_id", userID,
		"rate_id", req.Msg.RateId,
		"used_optimized", req.Msg.UsedOptimized,
	)

	p, err := s.coordinator.RecordShippingChoice(ctx, req.Msg.ParticipantId, userID, req.Msg.RateId, req.Msg.UsedOptimized)
	if err != nil {
		slog.Warn("RecordShippingChoice failed", "participant_id", req.Msg.ParticipantId, "error", err)
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.RecordShippingChoiceResponse{Participant: participantToAPI(p)}), nil
}

func requireUser(ctx context.Context) (string, error) {
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		return "", connect.NewError(connect.CodeUnauthenticated, errors.New("authentication required"))
	}
	return userID, nil
}

// toConnectError maps ledger errors to Connect codes and attaches the stable
// error name as response metadata.
func toConnectError(err error) error {
	code := connect.CodeInternal
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, ledger.ErrInvalidArgument), errors.Is(err, ledger.ErrInvalidQuantity):
		code = connect.CodeInvalidArgument
	case errors.Is(err, ledger.ErrAlreadyJoined):
		code = connect.CodeAlreadyExists
	case errors.Is(err, ledger.ErrCapacityExceeded):
		code = connect.CodeResourceExhausted
	case errors.Is(err, ledger.ErrAlreadyExpired),
		errors.Is(err, ledger.ErrAlreadyCancelled),
		errors.Is(err, ledger.ErrNotOpen),
		errors.Is(err, ledger.ErrNotParticipant):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, ledger.ErrForbidden):
		code = connect.CodePermissionDenied
	case errors.Is(err, ledger.ErrContention):
		code = connect.CodeUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	}

	cerr := connect.NewError(code, err)
	if code == connect.CodeInternal {
		// Storage details stay in the logs.
		cerr = connect.NewError(code, errors.New("internal error"))
	}
	cerr.Meta().Set(middleware.ErrorHeader, ledger.Name(err))
	return cerr
}
