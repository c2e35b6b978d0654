// Package compliance implements the compliance RPC service on top of a
// regional authority and the geo cache.
package compliance

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/signalsfoundry/svc-compliance/internal/geo"
	"github.com/signalsfoundry/svc-compliance/internal/grpcapi"
	"github.com/signalsfoundry/svc-compliance/internal/logging"
	"github.com/signalsfoundry/svc-compliance/internal/region"
	"github.com/signalsfoundry/svc-compliance/internal/telemetry"
	"github.com/signalsfoundry/svc-compliance/model"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Notifier receives accepted flight plans. *telemetry.Notifier implements it.
type Notifier interface {
	FlightPlanAccepted(ctx context.Context, fp telemetry.FlightPlan)
}

// Server implements grpcapi.ComplianceServer.
type Server struct {
	backend  region.Backend
	cache    *geo.Cache
	notifier Notifier
	log      logging.Logger
}

var _ grpcapi.ComplianceServer = (*Server)(nil)

// NewServer constructs a Server. notifier may be nil.
func NewServer(backend region.Backend, cache *geo.Cache, notifier Notifier, log logging.Logger) *Server {
	if log == nil {
		log = logging.Noop()
	}
	if cache == nil {
		cache = geo.NewCache(nil)
	}
	return &Server{
		backend:  backend,
		cache:    cache,
		notifier: notifier,
		log:      log.With(logging.Component("compliance"), logging.String("region", backend.Code())),
	}
}

// IsReady always reports ready once the server is serving.
func (s *Server) IsReady(ctx context.Context, _ *grpcapi.ReadyRequest) (*grpcapi.ReadyResponse, error) {
	s.requestLogger(ctx).Debug(ctx, "readiness probe")
	return &grpcapi.ReadyResponse{Ready: true}, nil
}

// SubmitFlightPlan forwards the plan to the regional authority. An accepted
// plan is copied to the message queue; a failed copy does not change the
// response.
func (s *Server) SubmitFlightPlan(ctx context.Context, req *grpcapi.FlightPlanRequest) (*grpcapi.FlightPlanResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	log := s.requestLogger(ctx).With(logging.String("flight_plan_id", req.FlightPlanID))

	ctx, span := startAuthoritySpan(ctx, workflowPlan, s.backend.Code(), req.FlightPlanID)
	defer span.End()

	resp := &grpcapi.FlightPlanResponse{FlightPlanID: req.FlightPlanID}
	err := s.backend.SubmitFlightPlan(ctx, submission(req.FlightPlanID, req.Data))
	switch {
	case errors.Is(err, region.ErrRejected):
		log.Warn(ctx, "authority rejected flight plan", logging.Err(err))
		resp.Result = rejection(err)
		return resp, nil
	case err != nil:
		log.Error(ctx, "submit flight plan failed", logging.Err(err))
		span.RecordError(err)
		return nil, ToStatusError(err)
	}

	resp.Submitted = true
	log.Info(ctx, "flight plan submitted")
	if s.notifier != nil {
		s.notifier.FlightPlanAccepted(ctx, telemetry.FlightPlan{FlightPlanID: req.FlightPlanID, Data: req.Data})
	}
	return resp, nil
}

// RequestFlightRelease asks the regional authority to release the flight.
func (s *Server) RequestFlightRelease(ctx context.Context, req *grpcapi.FlightReleaseRequest) (*grpcapi.FlightReleaseResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	log := s.requestLogger(ctx).With(logging.String("flight_plan_id", req.FlightPlanID))

	ctx, span := startAuthoritySpan(ctx, workflowRelease, s.backend.Code(), req.FlightPlanID)
	defer span.End()

	resp := &grpcapi.FlightReleaseResponse{FlightPlanID: req.FlightPlanID}
	err := s.backend.SubmitFlightRelease(ctx, submission(req.FlightPlanID, req.Data))
	switch {
	case errors.Is(err, region.ErrRejected):
		log.Warn(ctx, "authority rejected flight release", logging.Err(err))
		resp.Result = rejection(err)
		return resp, nil
	case err != nil:
		log.Error(ctx, "request flight release failed", logging.Err(err))
		span.RecordError(err)
		return nil, ToStatusError(err)
	}

	resp.Released = true
	log.Info(ctx, "flight release requested")
	return resp, nil
}

// RequestWaypoints returns cached waypoints inside the optional filter.
func (s *Server) RequestWaypoints(ctx context.Context, req *grpcapi.WaypointsRequest) (*grpcapi.WaypointsResponse, error) {
	var filter *model.BoundingBoxFilter
	if req != nil {
		filter = req.Filter
	}
	out := geo.FilterWaypoints(s.cache.Waypoints(), filter)
	s.requestLogger(ctx).Debug(ctx, "waypoints served", logging.Int("count", len(out)))
	return &grpcapi.WaypointsResponse{Waypoints: out}, nil
}

// RequestRestrictions returns cached zones with a vertex inside the optional
// filter.
func (s *Server) RequestRestrictions(ctx context.Context, req *grpcapi.RestrictionsRequest) (*grpcapi.RestrictionsResponse, error) {
	var filter *model.BoundingBoxFilter
	if req != nil {
		filter = req.Filter
	}
	out := geo.FilterRestrictions(s.cache.Restrictions(), filter)
	s.requestLogger(ctx).Debug(ctx, "restrictions served", logging.Int("count", len(out)))
	return &grpcapi.RestrictionsResponse{Restrictions: out}, nil
}

// requestLogger annotates the server logger with the request id set by
// RequestIDUnaryServerInterceptor, generating one for direct calls.
func (s *Server) requestLogger(ctx context.Context) logging.Logger {
	_, reqLog := logging.WithRequestLogger(ctx, s.log)
	return reqLog
}

func submission(id, data string) model.Submission {
	sub := model.Submission{FlightPlanID: id}
	if raw := strings.TrimSpace(data); raw != "" && json.Valid([]byte(raw)) {
		sub.Data = json.RawMessage(raw)
	}
	return sub
}

func rejection(err error) *string {
	msg := err.Error()
	return &msg
}
