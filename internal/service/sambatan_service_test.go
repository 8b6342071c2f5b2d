package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"

	"github.com/mmynk/sambatan/internal/auth"
	"github.com/mmynk/sambatan/internal/coordination"
	"github.com/mmynk/sambatan/internal/ledger"
	"github.com/mmynk/sambatan/internal/middleware"
	"github.com/mmynk/sambatan/internal/models"
	"github.com/mmynk/sambatan/internal/shipping"
	"github.com/mmynk/sambatan/internal/storage/sqlite"
	"github.com/mmynk/sambatan/pkg/api"
	"github.com/mmynk/sambatan/pkg/api/apiconnect"
)

type testEnv struct {
	client apiconnect.SambatanServiceClient
	jwt    *auth.JWTManager
}

// setupTestServer wires the full stack behind a Connect handler.
func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	catalog := &shipping.StaticCatalog{
		ByDestination: map[string][]models.ShippingRate{
			"jakarta":  {{Provider: "jne", ServiceTier: "reg", Price: decimal.NewFromInt(20), EstimatedDays: 2}},
			"bandung":  {{Provider: "jne", ServiceTier: "reg", Price: decimal.NewFromInt(25), EstimatedDays: 3}},
			"surabaya": {{Provider: "sicepat", ServiceTier: "best", Price: decimal.NewFromInt(22), EstimatedDays: 2}},
		},
		Consolidated: models.ShippingRate{Provider: "jne", ServiceTier: "cargo", Price: decimal.NewFromInt(45), EstimatedDays: 4},
	}
	origins := &shipping.StaticOrigins{Default: models.Location{City: "Yogyakarta"}}

	l := ledger.New(store, ledger.Options{Authorizer: middleware.RoleAuthorizer{}})
	facade := coordination.New(l, shipping.NewOptimizer(catalog, origins, shipping.OptimizerOptions{}))

	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	path, handler := apiconnect.NewSambatanServiceHandler(
		NewSambatanService(facade),
		connect.WithInterceptors(
			middleware.RequireAuth(jwtManager, apiconnect.SambatanServiceGetStatusProcedure),
			middleware.LoggingInterceptor(),
		),
	)

	mux := http.NewServeMux()
	mux.Handle(path, handler)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &testEnv{
		client: apiconnect.NewSambatanServiceClient(http.DefaultClient, server.URL),
		jwt:    jwtManager,
	}
}

func authed[T any](t *testing.T, env *testEnv, userID, role string, msg *T) *connect.Request[T] {
	t.Helper()
	token, err := env.jwt.Generate(userID, role)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	req := connect.NewRequest(msg)
	req.Header().Set("Authorization", "Bearer "+token)
	return req
}

func createPurchase(t *testing.T, env *testEnv, target int32) *api.GroupPurchase {
	t.Helper()
	resp, err := env.client.CreateGroupPurchase(context.Background(), authed(t, env, "initiator", "", &api.CreateGroupPurchaseRequest{
		ProductId:      "batik-01",
		TargetQuantity: target,
	}))
	if err != nil {
		t.Fatalf("CreateGroupPurchase failed: %v", err)
	}
	return resp.Msg.GroupPurchase
}

func assertCode(t *testing.T, err error, code connect.Code, name string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", code)
	}
	if got := connect.CodeOf(err); got != code {
		t.Fatalf("expected code %v, got %v (%v)", code, got, err)
	}
	if name == "" {
		return
	}
	var connectErr *connect.Error
	if !errors.As(err, &connectErr) {
		t.Fatalf("expected *connect.Error, got %T", err)
	}
	if got := connectErr.Meta().Get(middleware.ErrorHeader); got != name {
		t.Errorf("expected %s header %q, got %q", middleware.ErrorHeader, name, got)
	}
}

func TestCreateGroupPurchase(t *testing.T) {
	env := setupTestServer(t)

	gp := createPurchase(t, env, 5)
	if gp.Id == "" {
		t.Error("expected group purchase ID to be set")
	}
	if gp.Status != "open" {
		t.Errorf("expected status open, got %s", gp.Status)
	}
	if gp.InitiatorId != "initiator" {
		t.Errorf("expected initiator from token, got %s", gp.InitiatorId)
	}

	_, err := env.client.CreateGroupPurchase(context.Background(), authed(t, env, "initiator", "", &api.CreateGroupPurchaseRequest{
		ProductId:      "batik-01",
		TargetQuantity: 0,
	}))
	assertCode(t, err, connect.CodeInvalidArgument, "invalid_quantity")
}

func TestRequiresAuthentication(t *testing.T) {
	env := setupTestServer(t)

	_, err := env.client.CreateGroupPurchase(context.Background(), connect.NewRequest(&api.CreateGroupPurchaseRequest{
		ProductId:      "batik-01",
		TargetQuantity: 5,
	}))
	assertCode(t, err, connect.CodeUnauthenticated, "")

	req := connect.NewRequest(&api.RequestJoinRequest{GroupPurchaseId: "x", Quantity: 1})
	req.Header().Set("Authorization", "Bearer not-a-token")
	_, err = env.client.RequestJoin(context.Background(), req)
	assertCode(t, err, connect.CodeUnauthenticated, "")
}

func TestJoinFlowWithShipping(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()
	gp := createPurchase(t, env, 3)

	joins := []struct {
		user string
		city string
	}{{"alice", "Jakarta"}, {"bob", "Bandung"}, {"carol", "Surabaya"}}

	var last *api.RequestJoinResponse
	for _, j := range joins {
		resp, err := env.client.RequestJoin(ctx, authed(t, env, j.user, "", &api.RequestJoinRequest{
			GroupPurchaseId: gp.Id,
			Quantity:        1,
			Destination:     &api.Location{City: j.city},
		}))
		if err != nil {
			t.Fatalf("RequestJoin for %s failed: %v", j.user, err)
		}
		if resp.Msg.Participant.UserId != j.user {
			t.Errorf("expected participant %s, got %s", j.user, resp.Msg.Participant.UserId)
		}
		last = resp.Msg
	}

	if last.GroupPurchase.Status != "completed" {
		t.Errorf("expected completed after filling target, got %s", last.GroupPurchase.Status)
	}
	rec := last.Recommendation
	if !rec.UsesGroupRate || rec.Savings != "7" {
		t.Errorf("expected group rate with savings 7, got usesGroupRate=%v savings=%s", rec.UsesGroupRate, rec.Savings)
	}

	// GetStatus is public
	status, err := env.client.GetStatus(ctx, connect.NewRequest(&api.GetStatusRequest{GroupPurchaseId: gp.Id, IncludeShipping: true}))
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if status.Msg.RemainingQuantity != 0 {
		t.Errorf("expected no remaining quantity, got %d", status.Msg.RemainingQuantity)
	}
	if len(status.Msg.Participants) != 3 || len(status.Msg.Recommendations) != 3 {
		t.Fatalf("expected 3 participants and recommendations, got %d and %d",
			len(status.Msg.Participants), len(status.Msg.Recommendations))
	}
	wantSavings := []string{"5", "10", "7"}
	for i, r := range status.Msg.Recommendations {
		if r.Savings != wantSavings[i] {
			t.Errorf("participant %d: expected savings %s, got %s", i, wantSavings[i], r.Savings)
		}
		if r.GroupShare != "15" {
			t.Errorf("participant %d: expected share 15, got %s", i, r.GroupShare)
		}
	}

	first := status.Msg.Participants[0]
	if first.UserId != "alice" {
		t.Fatalf("expected alice first in join order, got %s", first.UserId)
	}
	record := func(userID, role, rateID string) (*connect.Response[api.RecordShippingChoiceResponse], error) {
		return env.client.RecordShippingChoice(ctx, authed(t, env, userID, role, &api.RecordShippingChoiceRequest{
			ParticipantId: first.Id,
			RateId:        rateID,
			UsedOptimized: rateID == "jne:cargo",
		}))
	}

	// Another buyer cannot overwrite alice's choice
	_, err = record("bob", "", "pos:reg")
	assertCode(t, err, connect.CodePermissionDenied, "forbidden")

	for _, actor := range []struct{ user, role string }{{"alice", ""}, {"checkout-svc", auth.RoleCheckout}} {
		choice, err := record(actor.user, actor.role, status.Msg.Recommendations[0].RecommendedRate.Id)
		if err != nil {
			t.Fatalf("RecordShippingChoice as %s failed: %v", actor.user, err)
		}
		if !choice.Msg.Participant.UsesOptimizedShipping || choice.Msg.Participant.ChosenRateId != "jne:cargo" {
			t.Errorf("unexpected recorded choice: %+v", choice.Msg.Participant)
		}
	}
}

func TestErrorMapping(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()
	gp := createPurchase(t, env, 2)

	join := func(user string, qty int32) error {
		_, err := env.client.RequestJoin(ctx, authed(t, env, user, "", &api.RequestJoinRequest{
			GroupPurchaseId: gp.Id,
			Quantity:        qty,
			Destination:     &api.Location{City: "Jakarta"},
		}))
		return err
	}

	if err := join("alice", 1); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	_, err := env.client.RequestJoin(ctx, authed(t, env, "dave", "", &api.RequestJoinRequest{
		GroupPurchaseId: gp.Id,
		Quantity:        1,
	}))
	assertCode(t, err, connect.CodeInvalidArgument, "invalid_argument")

	assertCode(t, join("alice", 1), connect.CodeAlreadyExists, "already_joined")
	assertCode(t, join("bob", 2), connect.CodeResourceExhausted, "capacity_exceeded")

	_, err = env.client.GetStatus(ctx, connect.NewRequest(&api.GetStatusRequest{GroupPurchaseId: "missing"}))
	assertCode(t, err, connect.CodeNotFound, "not_found")

	_, err = env.client.RequestWithdraw(ctx, authed(t, env, "bob", "", &api.RequestWithdrawRequest{GroupPurchaseId: gp.Id}))
	assertCode(t, err, connect.CodeFailedPrecondition, "not_participant")

	_, err = env.client.CancelGroupPurchase(ctx, authed(t, env, "mallory", "", &api.CancelGroupPurchaseRequest{GroupPurchaseId: gp.Id}))
	assertCode(t, err, connect.CodePermissionDenied, "forbidden")

	// Moderators may cancel any purchase
	resp, err := env.client.CancelGroupPurchase(ctx, authed(t, env, "mod", auth.RoleModerator, &api.CancelGroupPurchaseRequest{GroupPurchaseId: gp.Id}))
	if err != nil {
		t.Fatalf("moderator cancel failed: %v", err)
	}
	if resp.Msg.GroupPurchase.Status != "cancelled" {
		t.Errorf("expected cancelled, got %s", resp.Msg.GroupPurchase.Status)
	}

	assertCode(t, join("carol", 1), connect.CodeFailedPrecondition, "already_cancelled")
}

func TestToConnectError(t *testing.T) {
	tests := []struct {
		err  error
		code connect.Code
		name string
	}{
		{fmt.Errorf("join x: %w", ledger.ErrNotFound), connect.CodeNotFound, "not_found"},
		{ledger.ErrInvalidQuantity, connect.CodeInvalidArgument, "invalid_quantity"},
		{ledger.ErrAlreadyJoined, connect.CodeAlreadyExists, "already_joined"},
		{ledger.ErrCapacityExceeded, connect.CodeResourceExhausted, "capacity_exceeded"},
		{fmt.Errorf("%w: %w", ledger.ErrCapacityExceeded, ledger.ErrNotOpen), connect.CodeResourceExhausted, "capacity_exceeded"},
		{ledger.ErrAlreadyExpired, connect.CodeFailedPrecondition, "already_expired"},
		{ledger.ErrNotOpen, connect.CodeFailedPrecondition, "not_open"},
		{ledger.ErrForbidden, connect.CodePermissionDenied, "forbidden"},
		{fmt.Errorf("%w: %w", ledger.ErrContention, context.DeadlineExceeded), connect.CodeUnavailable, "contention"},
		{errors.New("disk full"), connect.CodeInternal, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := toConnectError(tt.err)
			var connectErr *connect.Error
			if !errors.As(err, &connectErr) {
				t.Fatalf("expected *connect.Error, got %T", err)
			}
			if connectErr.Code() != tt.code {
				t.Errorf("expected code %v, got %v", tt.code, connectErr.Code())
			}
			if got := connectErr.Meta().Get(middleware.ErrorHeader); got != tt.name {
				t.Errorf("expected name %q, got %q", tt.name, got)
			}
		})
	}
}
