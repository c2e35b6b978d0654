package grpcapi

import "github.com/signalsfoundry/svc-compliance/model"

// ReadyRequest asks whether the service is ready.
type ReadyRequest struct{}

// ReadyResponse answers IsReady.
type ReadyResponse struct {
	Ready bool `json:"ready"`
}

// FlightPlanRequest submits a flight plan to the regional authority.
type FlightPlanRequest struct {
	FlightPlanID string `json:"flight_plan_id"`
	Data         string `json:"data"`
}

// FlightPlanResponse reports whether the authority accepted the plan. Result
// carries the reason when it did not.
type FlightPlanResponse struct {
	FlightPlanID string  `json:"flight_plan_id"`
	Submitted    bool    `json:"submitted"`
	Result       *string `json:"result,omitempty"`
}

// FlightReleaseRequest asks the authority to release a flight.
type FlightReleaseRequest struct {
	FlightPlanID string `json:"flight_plan_id"`
	Data         string `json:"data"`
}

// FlightReleaseResponse reports whether the release was granted.
type FlightReleaseResponse struct {
	FlightPlanID string  `json:"flight_plan_id"`
	Released     bool    `json:"released"`
	Result       *string `json:"result,omitempty"`
}

// WaypointsRequest queries cached waypoints, optionally within a window.
type WaypointsRequest struct {
	Filter *model.BoundingBoxFilter `json:"filter,omitempty"`
}

// WaypointsResponse lists the waypoints that matched.
type WaypointsResponse struct {
	Waypoints []model.Waypoint `json:"waypoints"`
}

// RestrictionsRequest queries cached restriction zones, optionally within a window.
type RestrictionsRequest struct {
	Filter *model.BoundingBoxFilter `json:"filter,omitempty"`
}

// RestrictionsResponse lists the zones with at least one vertex in the window.
type RestrictionsResponse struct {
	Restrictions []model.RestrictionZone `json:"restrictions"`
}
