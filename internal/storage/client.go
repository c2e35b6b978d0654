package storage

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/svc-compliance/internal/grpcapi"
	"google.golang.org/grpc"
)

// Remote flight-plan service methods.
const (
	FlightPlanServiceName = "grpc.storage.RpcFlightPlanService"
	SearchMethod          = "/" + FlightPlanServiceName + "/search"
	UpdateMethod          = "/" + FlightPlanServiceName + "/update"
)

// SearchResponse is the remote search reply.
type SearchResponse struct {
	List []FlightPlanObject `json:"list"`
}

// Client is the gRPC record-store client.
type Client struct {
	cc    grpc.ClientConnInterface
	close func() error
}

// Dial connects to the storage service at addr.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	conn, err := grpcapi.Dial(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	return &Client{cc: conn, close: conn.Close}, nil
}

// NewClient wraps an existing connection. Close is a no-op.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Search(ctx context.Context, filter *AdvancedSearchFilter) ([]FlightPlanObject, error) {
	if filter == nil {
		filter = &AdvancedSearchFilter{}
	}
	resp, err := grpcapi.Invoke[SearchResponse](ctx, c.cc, SearchMethod, filter)
	if err != nil {
		return nil, fmt.Errorf("storage search: %w", err)
	}
	return resp.List, nil
}

func (c *Client) Update(ctx context.Context, obj UpdateObject) (*UpdateResponse, error) {
	resp, err := grpcapi.Invoke[UpdateResponse](ctx, c.cc, UpdateMethod, &obj)
	if err != nil {
		return nil, fmt.Errorf("storage update %s: %w", obj.ID, err)
	}
	return resp, nil
}

func (c *Client) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}
