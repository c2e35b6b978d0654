// Package reconciler tracks flight-plan and flight-release requests from
// submission to the regional authority until a decision is written back to
// the record store.
package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/signalsfoundry/svc-compliance/internal/logging"
	"github.com/signalsfoundry/svc-compliance/internal/observability"
	"github.com/signalsfoundry/svc-compliance/internal/region"
	"github.com/signalsfoundry/svc-compliance/internal/storage"
	"github.com/signalsfoundry/svc-compliance/model"
	"github.com/signalsfoundry/svc-compliance/timectrl"
	"go.opentelemetry.io/otel/attribute"
)

// Metrics receives reconciler counters. *observability.LoopCollector
// implements it.
type Metrics interface {
	SetPending(workflow string, count int)
	IncSubmission(workflow, result string)
	IncDecision(workflow, decision string)
	IncExpiration(workflow string)
	IncWriteFailure(workflow string)
	ObserveIteration(loop string, d time.Duration)
}

// Config parameterises one reconciler.
type Config struct {
	// Workflow names the loop in logs and metrics.
	Workflow string
	// DecisionField is the record-store field that stays null until a
	// decision has been written.
	DecisionField string
	Interval      time.Duration
	Lookahead     time.Duration
	// MemorySize bounds how many decided or malformed flight plans are
	// remembered. Values below one select DefaultMemorySize.
	MemorySize int
}

// DefaultMemorySize is used when Config.MemorySize is not positive. The
// decision memory is always on.
const DefaultMemorySize = 1024

type memoryKind int

const (
	// memoryDecided: decision handled; never resubmit.
	memoryDecided memoryKind = iota
	// memoryMalformed: record cannot be tracked; never retry.
	memoryMalformed
	// memoryUnwritten: decision known but the write-back failed.
	memoryUnwritten
)

type memoryEntry struct {
	kind   memoryKind
	status model.RequestStatus
	at     time.Time
}

// Loop is a single reconciler. Its pending set is owned by the goroutine
// running it and needs no locking.
type Loop struct {
	cfg       Config
	store     Store
	authority Authority
	handler   DecisionHandler
	clock     timectrl.Clock
	log       logging.Logger
	metrics   Metrics

	pending map[string]model.FlightPlanRecord
	memory  *lru.Cache[string, memoryEntry]
}

// Option customises a Loop.
type Option func(*Loop)

// WithClock overrides the wall clock.
func WithClock(c timectrl.Clock) Option { return func(l *Loop) { l.clock = c } }

// WithLogger sets the logger.
func WithLogger(log logging.Logger) Option { return func(l *Loop) { l.log = log } }

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option { return func(l *Loop) { l.metrics = m } }

// New builds a reconciler from its parts.
func New(cfg Config, store Store, authority Authority, handler DecisionHandler, opts ...Option) (*Loop, error) {
	if store == nil || authority == nil || handler == nil {
		return nil, errors.New("reconciler: store, authority and handler are required")
	}
	if cfg.Interval <= 0 || cfg.Lookahead <= 0 {
		return nil, fmt.Errorf("reconciler %s: interval and lookahead must be positive", cfg.Workflow)
	}
	if cfg.DecisionField == "" {
		return nil, fmt.Errorf("reconciler %s: decision field is required", cfg.Workflow)
	}

	l := &Loop{
		cfg:       cfg,
		store:     store,
		authority: authority,
		handler:   handler,
		clock:     timectrl.Real(),
		pending:   make(map[string]model.FlightPlanRecord),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = logging.OrNoop(l.log).With(logging.Component("reconciler"), logging.String("workflow", cfg.Workflow))

	if cfg.MemorySize <= 0 {
		cfg.MemorySize = DefaultMemorySize
		l.cfg.MemorySize = DefaultMemorySize
	}
	mem, err := lru.New[string, memoryEntry](cfg.MemorySize)
	if err != nil {
		return nil, fmt.Errorf("reconciler %s: decision memory: %w", cfg.Workflow, err)
	}
	l.memory = mem
	return l, nil
}

// NewPlanLoop builds the flight-plan approval reconciler.
func NewPlanLoop(store Store, backend region.Backend, interval, lookahead time.Duration, memorySize int, opts ...Option) (*Loop, error) {
	return New(Config{
		Workflow:      WorkflowPlan,
		DecisionField: storage.FieldFlightPlanApproval,
		Interval:      interval,
		Lookahead:     lookahead,
		MemorySize:    memorySize,
	}, store, PlanAuthority(backend), PlanHandler{Store: store}, opts...)
}

// NewReleaseLoop builds the flight-release reconciler.
func NewReleaseLoop(store Store, backend region.Backend, interval, lookahead time.Duration, memorySize int, opts ...Option) (*Loop, error) {
	return New(Config{
		Workflow:      WorkflowRelease,
		DecisionField: storage.FieldFlightReleaseApproval,
		Interval:      interval,
		Lookahead:     lookahead,
		MemorySize:    memorySize,
	}, store, ReleaseAuthority(backend), ReleaseHandler{Store: store}, opts...)
}

// Run executes iterations every Interval until ctx is cancelled. An
// iteration that overruns the interval is followed immediately by the next.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info(ctx, "starting reconciler",
		logging.Duration("interval", l.cfg.Interval),
		logging.Duration("lookahead", l.cfg.Lookahead),
	)
	for {
		start := l.clock.Now()
		l.RunOnce(ctx)

		overran, err := timectrl.SleepUntil(ctx, l.clock, start.Add(l.cfg.Interval))
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				l.log.Info(ctx, "reconciler stopped")
				return nil
			}
			return err
		}
		if overran {
			l.log.Warn(ctx, "reconciler iteration took longer than interval")
		}
	}
}

// RunOnce runs Expire, Admit and Poll in that order.
func (l *Loop) RunOnce(ctx context.Context) {
	start := l.clock.Now()
	ctx, span := observability.StartSpan(ctx, "reconciler.iteration", attribute.String("workflow", l.cfg.Workflow))
	defer span.End()
	ctx = logging.ContextWithLogger(ctx, l.log)

	l.Expire(ctx)
	l.Admit(ctx)
	l.Poll(ctx)

	span.SetAttributes(attribute.Int("pending", len(l.pending)))
	if l.metrics != nil {
		l.metrics.SetPending(l.cfg.Workflow, len(l.pending))
		l.metrics.ObserveIteration(l.cfg.Workflow, l.clock.Now().Sub(start))
	}
}

// Expire drops pending requests whose departure passed without a decision.
// The flight itself is left alone.
func (l *Loop) Expire(ctx context.Context) {
	now := l.clock.Now()
	for id, rec := range l.pending {
		if !rec.Expired(now) {
			continue
		}
		l.log.Warn(ctx, "flight plan departed before a decision was made",
			logging.String("flight_plan_id", id),
			logging.Time("scheduled_departure", rec.ScheduledDeparture),
		)
		delete(l.pending, id)
		if l.metrics != nil {
			l.metrics.IncExpiration(l.cfg.Workflow)
		}
	}
}

// Admit submits every newly discovered eligible flight plan to the
// authority and tracks the ones it accepted.
func (l *Loop) Admit(ctx context.Context) {
	now := l.clock.Now()
	filter := storage.PendingDecisionFilter(l.cfg.DecisionField, now, l.cfg.Lookahead)

	objects, err := l.store.Search(ctx, filter)
	if err != nil {
		l.log.Error(ctx, "search record store failed", logging.Err(err))
		return
	}

	for _, obj := range objects {
		if _, ok := l.pending[obj.ID]; ok {
			continue
		}
		if entry, ok := l.remembered(obj.ID); ok {
			if entry.kind == memoryUnwritten {
				l.log.Info(ctx, "retrying decision write", logging.String("flight_plan_id", obj.ID))
				l.applyDecision(ctx, obj.ID, entry.status, entry.at)
			}
			continue
		}

		rec, err := obj.Record()
		if err != nil {
			l.log.Error(ctx, "dropping malformed flight plan", logging.String("flight_plan_id", obj.ID), logging.Err(err))
			l.remember(obj.ID, memoryEntry{kind: memoryMalformed})
			continue
		}

		sub := model.Submission{FlightPlanID: rec.FlightPlanID, ScheduledDeparture: &rec.ScheduledDeparture}
		if obj.Data != nil {
			if raw, err := json.Marshal(obj.Data); err == nil {
				sub.Data = raw
			}
		}
		if err := l.authority.Submit(ctx, sub); err != nil {
			l.log.Error(ctx, "submit to authority failed", logging.String("flight_plan_id", obj.ID), logging.Err(err))
			l.countSubmission("error")
			continue
		}
		l.log.Info(ctx, "flight plan submitted to authority", logging.String("flight_plan_id", obj.ID))
		l.countSubmission("ok")
		l.pending[rec.FlightPlanID] = rec
	}
}

// Poll queries the authority for every pending request and hands terminal
// decisions to the DecisionHandler.
func (l *Loop) Poll(ctx context.Context) {
	for id := range l.pending {
		resp, err := l.authority.Status(ctx, id)
		if err != nil {
			l.log.Error(ctx, "status query failed", logging.String("flight_plan_id", id), logging.Err(err))
			continue
		}
		if !resp.Status.Terminal() {
			l.log.Debug(ctx, "decision pending", logging.String("flight_plan_id", id))
			continue
		}

		if l.metrics != nil {
			l.metrics.IncDecision(l.cfg.Workflow, resp.Status.String())
		}
		l.applyDecision(ctx, id, resp.Status, resp.Timestamp)
		delete(l.pending, id)
	}
}

func (l *Loop) applyDecision(ctx context.Context, id string, status model.RequestStatus, at time.Time) {
	var err error
	if status == model.RequestStatusApproved {
		err = l.handler.OnApproved(ctx, id, at)
	} else {
		err = l.handler.OnDenied(ctx, id, at)
	}

	switch {
	case err == nil:
		l.remember(id, memoryEntry{kind: memoryDecided, status: status, at: at})
	case errors.Is(err, ErrValidationFailed):
		l.log.Warn(ctx, "decision write rejected by record store", logging.String("flight_plan_id", id), logging.Err(err))
		l.countWriteFailure()
		l.remember(id, memoryEntry{kind: memoryDecided, status: status, at: at})
	default:
		l.log.Error(ctx, "decision write failed", logging.String("flight_plan_id", id), logging.Err(err))
		l.countWriteFailure()
		l.remember(id, memoryEntry{kind: memoryUnwritten, status: status, at: at})
	}
}

func (l *Loop) remember(id string, e memoryEntry) {
	l.memory.Add(id, e)
}

func (l *Loop) remembered(id string) (memoryEntry, bool) {
	return l.memory.Get(id)
}

func (l *Loop) countSubmission(result string) {
	if l.metrics != nil {
		l.metrics.IncSubmission(l.cfg.Workflow, result)
	}
}

func (l *Loop) countWriteFailure() {
	if l.metrics != nil {
		l.metrics.IncWriteFailure(l.cfg.Workflow)
	}
}

// Pending returns the tracked requests ordered by id. It must not be called
// while Run is active.
func (l *Loop) Pending() []model.FlightPlanRecord {
	out := make([]model.FlightPlanRecord, 0, len(l.pending))
	for _, rec := range l.pending {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FlightPlanID < out[j].FlightPlanID })
	return out
}
