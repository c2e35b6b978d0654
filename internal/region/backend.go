// Package region implements the jurisdiction-specific authority backends
// that decide on flight plans and releases and publish geospatial reference
// data.
package region

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/signalsfoundry/svc-compliance/internal/logging"
	"github.com/signalsfoundry/svc-compliance/model"
	"github.com/signalsfoundry/svc-compliance/timectrl"
)

var (
	// ErrUnknownRegion is returned by New for a region code with no backend.
	ErrUnknownRegion = errors.New("unknown region")
	// ErrRejected is returned when the authority declines a submission.
	ErrRejected = errors.New("rejected by regional authority")
	// ErrUnknownRequest is returned when a status is queried for an id the
	// authority never received.
	ErrUnknownRequest = errors.New("unknown request")
)

// Backend is the capability every regional authority provides. Every
// method may fail transiently; callers retry on their next cycle.
type Backend interface {
	// Code is the short region code, e.g. "us".
	Code() string

	SubmitFlightPlan(ctx context.Context, sub model.Submission) error
	FlightPlanStatus(ctx context.Context, flightPlanID string) (model.StatusResponse, error)

	SubmitFlightRelease(ctx context.Context, sub model.Submission) error
	FlightReleaseStatus(ctx context.Context, flightPlanID string) (model.StatusResponse, error)

	// FetchRestrictions returns the authority's full current set of zones.
	FetchRestrictions(ctx context.Context) (map[string]model.RestrictionZone, error)
	// FetchWaypoints returns the authority's full current set of waypoints.
	FetchWaypoints(ctx context.Context) (map[string]model.Coordinate, error)
}

// Options configures a backend built by New.
type Options struct {
	Clock timectrl.Clock
	// ReviewPeriod is how long a submission stays pending before the
	// authority approves it.
	ReviewPeriod time.Duration
	// Retention is how long a decided request can still be queried.
	// Zero selects DefaultRetention.
	Retention time.Duration
	Logger    logging.Logger
}

type constructor func(Options) (Backend, error)

var registry = map[string]constructor{
	"us": newUS,
	"nl": newNL,
}

// New builds the backend for code. Codes are case-insensitive.
func New(code string, opts Options) (Backend, error) {
	if opts.Clock == nil {
		opts.Clock = timectrl.Real()
	}
	opts.Logger = logging.OrNoop(opts.Logger)

	ctor, ok := registry[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnknownRegion, code, strings.Join(Codes(), ", "))
	}
	return ctor(opts)
}

// Codes lists the supported region codes in sorted order.
func Codes() []string {
	out := make([]string, 0, len(registry))
	for code := range registry {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// authority holds the decision ledgers shared by every region variant.
type authority struct {
	code     string
	clock    timectrl.Clock
	log      logging.Logger
	plans    *ledger
	releases *ledger
}

func newAuthority(code string, opts Options) authority {
	log := opts.Logger.With(logging.Component("region"), logging.String("region", code))
	return authority{
		code:     code,
		clock:    opts.Clock,
		log:      log,
		plans:    newLedger(opts.Clock, opts.ReviewPeriod, opts.Retention),
		releases: newLedger(opts.Clock, opts.ReviewPeriod, opts.Retention),
	}
}

func (a *authority) Code() string { return a.code }

func (a *authority) SubmitFlightPlan(ctx context.Context, sub model.Submission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.plans.submit(sub.FlightPlanID); err != nil {
		return fmt.Errorf("submit flight plan: %w", err)
	}
	a.log.Info(ctx, "flight plan submitted", logging.String("flight_plan_id", sub.FlightPlanID))
	return nil
}

func (a *authority) FlightPlanStatus(ctx context.Context, flightPlanID string) (model.StatusResponse, error) {
	if err := ctx.Err(); err != nil {
		return model.StatusResponse{}, err
	}
	resp, err := a.plans.status(flightPlanID)
	if err != nil {
		return model.StatusResponse{}, fmt.Errorf("flight plan status: %w", err)
	}
	return resp, nil
}

func (a *authority) SubmitFlightRelease(ctx context.Context, sub model.Submission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.releases.submit(sub.FlightPlanID); err != nil {
		return fmt.Errorf("submit flight release: %w", err)
	}
	a.log.Info(ctx, "flight release requested", logging.String("flight_plan_id", sub.FlightPlanID))
	return nil
}

func (a *authority) FlightReleaseStatus(ctx context.Context, flightPlanID string) (model.StatusResponse, error) {
	if err := ctx.Err(); err != nil {
		return model.StatusResponse{}, err
	}
	resp, err := a.releases.status(flightPlanID)
	if err != nil {
		return model.StatusResponse{}, fmt.Errorf("flight release status: %w", err)
	}
	return resp, nil
}
