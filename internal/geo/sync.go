package geo

import (
	"context"
	"errors"
	"time"

	"github.com/signalsfoundry/svc-compliance/internal/logging"
	"github.com/signalsfoundry/svc-compliance/internal/observability"
	"github.com/signalsfoundry/svc-compliance/model"
	"github.com/signalsfoundry/svc-compliance/timectrl"
	"go.opentelemetry.io/otel/attribute"
)

// Dataset names used in logs and metrics.
const (
	DatasetRestrictions = "restrictions"
	DatasetWaypoints    = "waypoints"
)

// maxFetchFailures is how many consecutive failed fetches a mapping
// survives before it is evicted.
const maxFetchFailures = 2

// Source is the authority side of a sync.
type Source interface {
	FetchRestrictions(ctx context.Context) (map[string]model.RestrictionZone, error)
	FetchWaypoints(ctx context.Context) (map[string]model.Coordinate, error)
}

// Pusher is the geospatial service side of a sync.
type Pusher interface {
	UpdateWaypoints(ctx context.Context, waypoints []model.Waypoint) error
	UpdateZones(ctx context.Context, zones []model.RestrictionZone) error
}

// SyncMetrics records push outcomes and iteration durations.
type SyncMetrics interface {
	IncGeoPush(dataset, status string)
	ObserveIteration(loop string, d time.Duration)
}

// SyncStatus is the outcome of one sync.
type SyncStatus int

const (
	// SyncSuccess means the snapshot was pushed.
	SyncSuccess SyncStatus = iota
	// SyncNoData means the snapshot was empty and the push was skipped.
	SyncNoData
	// SyncRequestFailure means the fetch or the push failed.
	SyncRequestFailure
)

func (s SyncStatus) String() string {
	switch s {
	case SyncSuccess:
		return "Success"
	case SyncNoData:
		return "NoData"
	case SyncRequestFailure:
		return "RequestFailure"
	default:
		return "Unknown"
	}
}

// Syncer pulls snapshots from a Source into a Cache and pushes them on to
// the geospatial service. Restrictions and waypoints are independent; each
// Sync* method must only be called from a single goroutine.
type Syncer struct {
	source  Source
	pusher  Pusher
	cache   *Cache
	clock   timectrl.Clock
	log     logging.Logger
	metrics SyncMetrics

	restrictionFailures int
	waypointFailures    int
}

// SyncerOption customises a Syncer.
type SyncerOption func(*Syncer)

// WithClock overrides the wall clock.
func WithClock(c timectrl.Clock) SyncerOption {
	return func(s *Syncer) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) SyncerOption {
	return func(s *Syncer) { s.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m SyncMetrics) SyncerOption {
	return func(s *Syncer) { s.metrics = m }
}

// NewSyncer wires a Syncer.
func NewSyncer(source Source, pusher Pusher, cache *Cache, opts ...SyncerOption) *Syncer {
	s := &Syncer{
		source: source,
		pusher: pusher,
		cache:  cache,
		clock:  timectrl.Real(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logging.OrNoop(s.log).With(logging.Component("geo-sync"))
	return s
}

// SyncRestrictions refreshes the cached zones and pushes them.
func (s *Syncer) SyncRestrictions(ctx context.Context) SyncStatus {
	ctx, span := observability.StartSpan(ctx, "geo.sync", attribute.String("dataset", DatasetRestrictions))
	status, err := s.syncRestrictions(ctx)
	span.SetAttributes(attribute.String("status", status.String()))
	observability.EndSpan(span, err)
	s.record(DatasetRestrictions, status)
	return status
}

func (s *Syncer) syncRestrictions(ctx context.Context) (SyncStatus, error) {
	zones, err := s.source.FetchRestrictions(ctx)
	if err != nil {
		s.restrictionFailures++
		s.log.Error(ctx, "fetch restrictions failed", logging.Err(err), logging.Int("consecutive_failures", s.restrictionFailures))
		if s.restrictionFailures >= maxFetchFailures {
			s.log.Warn(ctx, "evicting stale restrictions")
			s.cache.ReplaceRestrictions(nil)
		}
		return SyncRequestFailure, err
	}
	s.restrictionFailures = 0
	s.cache.ReplaceRestrictions(zones)

	if len(zones) == 0 {
		s.log.Warn(ctx, "no restrictions to push; downstream left unchanged")
		return SyncNoData, nil
	}

	if err := s.pusher.UpdateZones(ctx, s.cache.Restrictions()); err != nil {
		s.log.Error(ctx, "push restrictions failed", logging.Err(err))
		return SyncRequestFailure, err
	}
	s.log.Debug(ctx, "restrictions pushed", logging.Int("count", len(zones)))
	return SyncSuccess, nil
}

// SyncWaypoints refreshes the cached waypoints and pushes them.
func (s *Syncer) SyncWaypoints(ctx context.Context) SyncStatus {
	ctx, span := observability.StartSpan(ctx, "geo.sync", attribute.String("dataset", DatasetWaypoints))
	status, err := s.syncWaypoints(ctx)
	span.SetAttributes(attribute.String("status", status.String()))
	observability.EndSpan(span, err)
	s.record(DatasetWaypoints, status)
	return status
}

func (s *Syncer) syncWaypoints(ctx context.Context) (SyncStatus, error) {
	waypoints, err := s.source.FetchWaypoints(ctx)
	if err != nil {
		s.waypointFailures++
		s.log.Error(ctx, "fetch waypoints failed", logging.Err(err), logging.Int("consecutive_failures", s.waypointFailures))
		if s.waypointFailures >= maxFetchFailures {
			s.log.Warn(ctx, "evicting stale waypoints")
			s.cache.ReplaceWaypoints(nil)
		}
		return SyncRequestFailure, err
	}
	s.waypointFailures = 0
	s.cache.ReplaceWaypoints(waypoints)

	if len(waypoints) == 0 {
		s.log.Warn(ctx, "no waypoints to push; downstream left unchanged")
		return SyncNoData, nil
	}

	if err := s.pusher.UpdateWaypoints(ctx, s.cache.Waypoints()); err != nil {
		s.log.Error(ctx, "push waypoints failed", logging.Err(err))
		return SyncRequestFailure, err
	}
	s.log.Debug(ctx, "waypoints pushed", logging.Int("count", len(waypoints)))
	return SyncSuccess, nil
}

func (s *Syncer) record(dataset string, status SyncStatus) {
	if s.metrics != nil {
		s.metrics.IncGeoPush(dataset, status.String())
	}
}

// RunRestrictions syncs restrictions every interval until ctx is done.
func (s *Syncer) RunRestrictions(ctx context.Context, interval time.Duration) error {
	return s.run(ctx, DatasetRestrictions, interval, s.SyncRestrictions)
}

// RunWaypoints syncs waypoints every interval until ctx is done.
func (s *Syncer) RunWaypoints(ctx context.Context, interval time.Duration) error {
	return s.run(ctx, DatasetWaypoints, interval, s.SyncWaypoints)
}

func (s *Syncer) run(ctx context.Context, dataset string, interval time.Duration, sync func(context.Context) SyncStatus) error {
	loop := "geo-" + dataset
	s.log.Info(ctx, "starting geo sync loop", logging.String("dataset", dataset), logging.Duration("interval", interval))
	for {
		start := s.clock.Now()
		sync(ctx)
		if s.metrics != nil {
			s.metrics.ObserveIteration(loop, s.clock.Now().Sub(start))
		}

		overran, err := timectrl.SleepUntil(ctx, s.clock, start.Add(interval))
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				s.log.Info(ctx, "geo sync loop stopped", logging.String("dataset", dataset))
				return nil
			}
			return err
		}
		if overran {
			s.log.Warn(ctx, "geo sync iteration took longer than interval", logging.String("dataset", dataset))
		}
	}
}
