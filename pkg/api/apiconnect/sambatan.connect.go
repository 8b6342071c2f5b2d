// Package apiconnect wires the sambatan.v1.SambatanService messages to
// Connect handlers and clients using a JSON codec.
package apiconnect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/sambatan/pkg/api"
)

// SambatanServiceName is the fully-qualified name of the SambatanService service.
const SambatanServiceName = "sambatan.v1.SambatanService"

// Procedure paths, suitable for use in http.ServeMux patterns.
const (
	SambatanServiceCreateGroupPurchaseProcedure  = "/sambatan.v1.SambatanService/CreateGroupPurchase"
	SambatanServiceRequestJoinProcedure          = "/sambatan.v1.SambatanService/RequestJoin"
	SambatanServiceRequestWithdrawProcedure      = "/sambatan.v1.SambatanService/RequestWithdraw"
	SambatanServiceGetStatusProcedure            = "/sambatan.v1.SambatanService/GetStatus"
	SambatanServiceCancelGroupPurchaseProcedure  = "/sambatan.v1.SambatanService/CancelGroupPurchase"
	SambatanServiceRecordShippingChoiceProcedure = "/sambatan.v1.SambatanService/RecordShippingChoice"
)

// SambatanServiceClient is a client for the sambatan.v1.SambatanService service.
type SambatanServiceClient interface {
	CreateGroupPurchase(context.Context, *connect.Request[api.CreateGroupPurchaseRequest]) (*connect.Response[api.CreateGroupPurchaseResponse], error)
	RequestJoin(context.Context, *connect.Request[api.RequestJoinRequest]) (*connect.Response[api.RequestJoinResponse], error)
	RequestWithdraw(context.Context, *connect.Request[api.RequestWithdrawRequest]) (*connect.Response[api.RequestWithdrawResponse], error)
	GetStatus(context.Context, *connect.Request[api.GetStatusRequest]) (*connect.Response[api.GetStatusResponse], error)
	CancelGroupPurchase(context.Context, *connect.Request[api.CancelGroupPurchaseRequest]) (*connect.Response[api.CancelGroupPurchaseResponse], error)
	RecordShippingChoice(context.Context, *connect.Request[api.RecordShippingChoiceRequest]) (*connect.Response[api.RecordShippingChoiceResponse], error)
}

// NewSambatanServiceClient constructs a client for the sambatan.v1.SambatanService
// service. The JSON codec is always used.
func NewSambatanServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) SambatanServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &sambatanServiceClient{
		createGroupPurchase: connect.NewClient[api.CreateGroupPurchaseRequest, api.CreateGroupPurchaseResponse](
			httpClient, baseURL+SambatanServiceCreateGroupPurchaseProcedure, opts...,
		),
		requestJoin: connect.NewClient[api.RequestJoinRequest, api.RequestJoinResponse](
			httpClient, baseURL+SambatanServiceRequestJoinProcedure, opts...,
		),
		requestWithdraw: connect.NewClient[api.RequestWithdrawRequest, api.RequestWithdrawResponse](
			httpClient, baseURL+SambatanServiceRequestWithdrawProcedure, opts...,
		),
		getStatus: connect.NewClient[api.GetStatusRequest, api.GetStatusResponse](
			httpClient, baseURL+SambatanServiceGetStatusProcedure, opts...,
		),
		cancelGroupPurchase: connect.NewClient[api.CancelGroupPurchaseRequest, api.CancelGroupPurchaseResponse](
			httpClient, baseURL+SambatanServiceCancelGroupPurchaseProcedure, opts...,
		),
		recordShippingChoice: connect.NewClient[api.RecordShippingChoiceRequest, api.RecordShippingChoiceResponse](
			httpClient, baseURL+SambatanServiceRecordShippingChoiceProcedure, opts...,
		),
	}
}

type sambatanServiceClient struct {
	createGroupPurchase  *connect.Client[api.CreateGroupPurchaseRequest, api.CreateGroupPurchaseResponse]
	requestJoin          *connect.Client[api.RequestJoinRequest, api.RequestJoinResponse]
	requestWithdraw      *connect.Client[api.RequestWithdrawRequest, api.RequestWithdrawResponse]
	getStatus            *connect.Client[api.GetStatusRequest, api.GetStatusResponse]
	cancelGroupPurchase  *connect.Client[api.CancelGroupPurchaseRequest, api.CancelGroupPurchaseResponse]
	recordShippingChoice *connect.Client[api.RecordShippingChoiceRequest, api.RecordShippingChoiceResponse]
}

func (c *sambatanServiceClient) CreateGroupPurchase(ctx context.Context, req *connect.Request[api.CreateGroupPurchaseRequest]) (*connect.Response[api.CreateGroupPurchaseResponse], error) {
	return c.createGroupPurchase.CallUnary(ctx, req)
}

func (c *sambatanServiceClient) RequestJoin(ctx context.Context, req *connect.Request[api.RequestJoinRequest]) (*connect.Response[api.RequestJoinResponse], error) {
	return c.requestJoin.CallUnary(ctx, req)
}

func (c *sambatanServiceClient) RequestWithdraw(ctx context.Context, req *connect.Request[api.RequestWithdrawRequest]) (*connect.Response[api.RequestWithdrawResponse], error) {
	return c.requestWithdraw.CallUnary(ctx, req)
}

func (c *sambatanServiceClient) GetStatus(ctx context.Context, req *connect.Request[api.GetStatusRequest]) (*connect.Response[api.GetStatusResponse], error) {
	return c.getStatus.CallUnary(ctx, req)
}

func (c *sambatanServiceClient) CancelGroupPurchase(ctx context.Context, req *connect.Request[api.CancelGroupPurchaseRequest]) (*connect.Response[api.CancelGroupPurchaseResponse], error) {
	return c.cancelGroupPurchase.CallUnary(ctx, req)
}

func (c *sambatanServiceClient) RecordShippingChoice(ctx context.Context, req *connect.Request[api.RecordShippingChoiceRequest]) (*connect.Response[api.RecordShippingChoiceResponse], error) {
	return c.recordShippingChoice.CallUnary(ctx, req)
}

// SambatanServiceHandler is an implementation of the sambatan.v1.SambatanService service.
type SambatanServiceHandler interface {
	CreateGroupPurchase(context.Context, *connect.Request[api.CreateGroupPurchaseRequest]) (*connect.Response[api.CreateGroupPurchaseResponse], error)
	RequestJoin(context.Context, *connect.Request[api.RequestJoinRequest]) (*connect.Response[api.RequestJoinResponse], error)
	RequestWithdraw(context.Context, *connect.Request[api.RequestWithdrawRequest]) (*connect.Response[api.RequestWithdrawResponse], error)
	GetStatus(context.Context, *connect.Request[api.GetStatusRequest]) (*connect.Response[api.GetStatusResponse], error)
	CancelGroupPurchase(context.Context, *connect.Request[api.CancelGroupPurchaseRequest]) (*connect.Response[api.CancelGroupPurchaseResponse], error)
	RecordShippingChoice(context.Context, *connect.Request[api.RecordShippingChoiceRequest]) (*connect.Response[api.RecordShippingChoiceResponse], error)
}

// NewSambatanServiceHandler builds an HTTP handler from the service
// implementation. It returns the path on which to mount the handler and the
// handler itself.
func NewSambatanServiceHandler(svc SambatanServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)

	createGroupPurchase := connect.NewUnaryHandler(SambatanServiceCreateGroupPurchaseProcedure, svc.CreateGroupPurchase, opts...)
	requestJoin := connect.NewUnaryHandler(SambatanServiceRequestJoinProcedure, svc.RequestJoin, opts...)
	requestWithdraw := connect.NewUnaryHandler(SambatanServiceRequestWithdrawProcedure, svc.RequestWithdraw, opts...)
	getStatus := connect.NewUnaryHandler(SambatanServiceGetStatusProcedure, svc.GetStatus, opts...)
	cancelGroupPurchase := connect.NewUnaryHandler(SambatanServiceCancelGroupPurchaseProcedure, svc.CancelGroupPurchase, opts...)
	recordShippingChoice := connect.NewUnaryHandler(SambatanServiceRecordShippingChoiceProcedure, svc.RecordShippingChoice, opts...)

	return "/" + SambatanServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case SambatanServiceCreateGroupPurchaseProcedure:
			createGroupPurchase.ServeHTTP(w, r)
		case SambatanServiceRequestJoinProcedure:
			requestJoin.ServeHTTP(w, r)
		case SambatanServiceRequestWithdrawProcedure:
			requestWithdraw.ServeHTTP(w, r)
		case SambatanServiceGetStatusProcedure:
			getStatus.ServeHTTP(w, r)
		case SambatanServiceCancelGroupPurchaseProcedure:
			cancelGroupPurchase.ServeHTTP(w, r)
		case SambatanServiceRecordShippingChoiceProcedure:
			recordShippingChoice.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}
