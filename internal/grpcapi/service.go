package grpcapi

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified compliance service name.
const ServiceName = "grpc.RpcService"

// Full method names.
const (
	IsReadyMethod              = "/" + ServiceName + "/isReady"
	SubmitFlightPlanMethod     = "/" + ServiceName + "/submitFlightPlan"
	RequestFlightReleaseMethod = "/" + ServiceName + "/requestFlightRelease"
	RequestWaypointsMethod     = "/" + ServiceName + "/requestWaypoints"
	RequestRestrictionsMethod  = "/" + ServiceName + "/requestRestrictions"
)

// ComplianceServer is implemented by the compliance RPC service.
type ComplianceServer interface {
	IsReady(context.Context, *ReadyRequest) (*ReadyResponse, error)
	SubmitFlightPlan(context.Context, *FlightPlanRequest) (*FlightPlanResponse, error)
	RequestFlightRelease(context.Context, *FlightReleaseRequest) (*FlightReleaseResponse, error)
	RequestWaypoints(context.Context, *WaypointsRequest) (*WaypointsResponse, error)
	RequestRestrictions(context.Context, *RestrictionsRequest) (*RestrictionsResponse, error)
}

// RegisterComplianceServer attaches srv to s.
func RegisterComplianceServer(s grpc.ServiceRegistrar, srv ComplianceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes the compliance service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ComplianceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "isReady", Handler: isReadyHandler},
		{MethodName: "submitFlightPlan", Handler: submitFlightPlanHandler},
		{MethodName: "requestFlightRelease", Handler: requestFlightReleaseHandler},
		{MethodName: "requestWaypoints", Handler: requestWaypointsHandler},
		{MethodName: "requestRestrictions", Handler: requestRestrictionsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "svc-compliance-grpc.json",
}

// unary decodes the request into a fresh In and runs call, routing through
// the server's interceptor chain when one is installed.
func unary[In any, Out any](
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
	fullMethod string,
	call func(ComplianceServer, context.Context, *In) (*Out, error),
) (any, error) {
	in := new(In)
	if err := dec(in); err != nil {
		return nil, err
	}
	s := srv.(ComplianceServer)
	if interceptor == nil {
		return call(s, ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return call(s, ctx, req.(*In))
	}
	return interceptor(ctx, in, info, handler)
}

func isReadyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return unary(srv, ctx, dec, interceptor, IsReadyMethod, ComplianceServer.IsReady)
}

func submitFlightPlanHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return unary(srv, ctx, dec, interceptor, SubmitFlightPlanMethod, ComplianceServer.SubmitFlightPlan)
}

func requestFlightReleaseHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return unary(srv, ctx, dec, interceptor, RequestFlightReleaseMethod, ComplianceServer.RequestFlightRelease)
}

func requestWaypointsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return unary(srv, ctx, dec, interceptor, RequestWaypointsMethod, ComplianceServer.RequestWaypoints)
}

func requestRestrictionsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return unary(srv, ctx, dec, interceptor, RequestRestrictionsMethod, ComplianceServer.RequestRestrictions)
}
