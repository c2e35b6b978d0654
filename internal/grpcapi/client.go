package grpcapi

import (
	"context"

	"google.golang.org/grpc"
)

// Client is a typed client for the compliance service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Out any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Out, error) {
	out := new(Out)
	opts = append([]grpc.CallOption{CallOption()}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) IsReady(ctx context.Context, in *ReadyRequest, opts ...grpc.CallOption) (*ReadyResponse, error) {
	return invoke[ReadyResponse](ctx, c.cc, IsReadyMethod, in, opts)
}

func (c *Client) SubmitFlightPlan(ctx context.Context, in *FlightPlanRequest, opts ...grpc.CallOption) (*FlightPlanResponse, error) {
	return invoke[FlightPlanResponse](ctx, c.cc, SubmitFlightPlanMethod, in, opts)
}

func (c *Client) RequestFlightRelease(ctx context.Context, in *FlightReleaseRequest, opts ...grpc.CallOption) (*FlightReleaseResponse, error) {
	return invoke[FlightReleaseResponse](ctx, c.cc, RequestFlightReleaseMethod, in, opts)
}

func (c *Client) RequestWaypoints(ctx context.Context, in *WaypointsRequest, opts ...grpc.CallOption) (*WaypointsResponse, error) {
	return invoke[WaypointsResponse](ctx, c.cc, RequestWaypointsMethod, in, opts)
}

func (c *Client) RequestRestrictions(ctx context.Context, in *RestrictionsRequest, opts ...grpc.CallOption) (*RestrictionsResponse, error) {
	return invoke[RestrictionsResponse](ctx, c.cc, RequestRestrictionsMethod, in, opts)
}

// Invoke calls an arbitrary unary method with the JSON codec. It is used by
// the record-store and geospatial-service clients.
func Invoke[Out any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts ...grpc.CallOption) (*Out, error) {
	return invoke[Out](ctx, cc, method, in, opts)
}
