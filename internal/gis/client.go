// Package gis pushes waypoints and restriction zones to the geospatial service.
package gis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/signalsfoundry/svc-compliance/internal/grpcapi"
	"github.com/signalsfoundry/svc-compliance/model"
	"google.golang.org/grpc"
)

// Remote geospatial service methods.
const (
	ServiceName           = "grpc.gis.RpcService"
	UpdateWaypointsMethod = "/" + ServiceName + "/updateWaypoints"
	UpdateZonesMethod     = "/" + ServiceName + "/updateZones"
)

// ErrNotUpdated is returned when the service answers but reports that
// nothing was stored.
var ErrNotUpdated = errors.New("geospatial service did not apply update")

// Coordinates is a vertex or waypoint location on the wire.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Waypoint is one named waypoint on the wire.
type Waypoint struct {
	Identifier string      `json:"identifier"`
	Location   Coordinates `json:"location"`
}

// Zone is one restriction zone on the wire.
type Zone struct {
	Identifier        string        `json:"identifier"`
	ZoneType          string        `json:"zone_type"`
	Vertices          []Coordinates `json:"vertices"`
	AltitudeMetersMin float32       `json:"altitude_meters_min"`
	AltitudeMetersMax float32       `json:"altitude_meters_max"`
	TimeStart         *time.Time    `json:"time_start,omitempty"`
	TimeEnd           *time.Time    `json:"time_end,omitempty"`
}

// UpdateWaypointsRequest replaces the service's waypoints.
type UpdateWaypointsRequest struct {
	Waypoints []Waypoint `json:"waypoints"`
}

// UpdateZonesRequest replaces the service's zones.
type UpdateZonesRequest struct {
	Zones []Zone `json:"zones"`
}

// UpdateResponse is the service's acknowledgement.
type UpdateResponse struct {
	Updated bool `json:"updated"`
}

// Client is the gRPC geospatial-service client.
type Client struct {
	cc    grpc.ClientConnInterface
	close func() error
}

// Dial connects to the geospatial service at addr.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	conn, err := grpcapi.Dial(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("gis: %w", err)
	}
	return &Client{cc: conn, close: conn.Close}, nil
}

// NewClient wraps an existing connection. Close is a no-op.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// UpdateWaypoints pushes the full waypoint set.
func (c *Client) UpdateWaypoints(ctx context.Context, waypoints []model.Waypoint) error {
	req := &UpdateWaypointsRequest{Waypoints: make([]Waypoint, 0, len(waypoints))}
	for _, w := range waypoints {
		req.Waypoints = append(req.Waypoints, Waypoint{
			Identifier: w.Identifier,
			Location:   Coordinates(w.Location),
		})
	}

	resp, err := grpcapi.Invoke[UpdateResponse](ctx, c.cc, UpdateWaypointsMethod, req)
	if err != nil {
		return fmt.Errorf("update waypoints: %w", err)
	}
	if !resp.Updated {
		return fmt.Errorf("update waypoints: %w", ErrNotUpdated)
	}
	return nil
}

// UpdateZones pushes the full restriction zone set.
func (c *Client) UpdateZones(ctx context.Context, zones []model.RestrictionZone) error {
	req := &UpdateZonesRequest{Zones: make([]Zone, 0, len(zones))}
	for _, z := range zones {
		req.Zones = append(req.Zones, toZone(z))
	}

	resp, err := grpcapi.Invoke[UpdateResponse](ctx, c.cc, UpdateZonesMethod, req)
	if err != nil {
		return fmt.Errorf("update zones: %w", err)
	}
	if !resp.Updated {
		return fmt.Errorf("update zones: %w", ErrNotUpdated)
	}
	return nil
}

func (c *Client) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}

func toZone(z model.RestrictionZone) Zone {
	out := Zone{
		Identifier:        z.Identifier,
		ZoneType:          z.ZoneType.String(),
		Vertices:          make([]Coordinates, 0, len(z.Vertices)),
		AltitudeMetersMin: z.AltitudeMin,
		AltitudeMetersMax: z.AltitudeMax,
		TimeStart:         z.TimeStart,
		TimeEnd:           z.TimeEnd,
	}
	for _, v := range z.Vertices {
		out.Vertices = append(out.Vertices, Coordinates(v))
	}
	return out
}
