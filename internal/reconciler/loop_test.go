package reconciler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/signalsfoundry/svc-compliance/internal/region"
	"github.com/signalsfoundry/svc-compliance/internal/storage"
	"github.com/signalsfoundry/svc-compliance/model"
	"github.com/signalsfoundry/svc-compliance/timectrl"
)

var t0 = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func flightPlan(id string, departure time.Time) storage.FlightPlanObject {
	return storage.FlightPlanObject{ID: id, Data: &storage.FlightPlanData{ScheduledDeparture: &departure}}
}

type harness struct {
	clock     *timectrl.ManualClock
	store     *fakeStore
	authority *fakeAuthority
	metrics   *fakeMetrics
	loop      *Loop
}

func newPlanHarness(t *testing.T, objects ...storage.FlightPlanObject) *harness {
	t.Helper()
	h := &harness{
		clock:     timectrl.NewManualClock(t0),
		store:     newFakeStore(objects...),
		authority: newFakeAuthority(),
		metrics:   newFakeMetrics(),
	}
	loop, err := New(Config{
		Workflow:      WorkflowPlan,
		DecisionField: storage.FieldFlightPlanApproval,
		Interval:      30 * time.Second,
		Lookahead:     3600 * time.Second,
		MemorySize:    16,
	}, h.store, h.authority, PlanHandler{Store: h.store}, WithClock(h.clock), WithMetrics(h.metrics))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.loop = loop
	return h
}

func newReleaseHarness(t *testing.T, objects ...storage.FlightPlanObject) *harness {
	t.Helper()
	h := &harness{
		clock:     timectrl.NewManualClock(t0),
		store:     newFakeStore(objects...),
		authority: newFakeAuthority(),
		metrics:   newFakeMetrics(),
	}
	loop, err := New(Config{
		Workflow:      WorkflowRelease,
		DecisionField: storage.FieldFlightReleaseApproval,
		Interval:      10 * time.Second,
		Lookahead:     3600 * time.Second,
		MemorySize:    16,
	}, h.store, h.authority, ReleaseHandler{Store: h.store}, WithClock(h.clock), WithMetrics(h.metrics))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.loop = loop
	return h
}

func TestAdmitThenPollApproved(t *testing.T) {
	t.Parallel()

	h := newPlanHarness(t, flightPlan("fp-1", t0.Add(10*time.Second)))
	ctx := context.Background()

	h.loop.Admit(ctx)
	pending := h.loop.Pending()
	if len(pending) != 1 || pending[0].FlightPlanID != "fp-1" {
		t.Fatalf("pending after admit = %+v", pending)
	}

	approvedAt := t0.Add(2 * time.Second)
	h.authority.decide("fp-1", model.RequestStatusApproved, approvedAt)
	h.loop.Poll(ctx)

	if got := len(h.loop.Pending()); got != 0 {
		t.Fatalf("pending after approval = %d, want 0", got)
	}
	if len(h.store.updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(h.store.updates))
	}
	upd := h.store.updates[0]
	if upd.ID != "fp-1" || upd.Data.FlightPlanApproval == nil || !upd.Data.FlightPlanApproval.Equal(approvedAt) {
		t.Fatalf("update = %+v", upd)
	}
	if len(upd.Mask.Paths) != 1 || upd.Mask.Paths[0] != storage.FieldFlightPlanApproval {
		t.Fatalf("mask = %v", upd.Mask.Paths)
	}
	if h.metrics.decisions["approved"] != 1 {
		t.Fatalf("decision metrics = %v", h.metrics.decisions)
	}
}

func TestAdmitUsesPendingDecisionFilter(t *testing.T) {
	t.Parallel()

	h := newReleaseHarness(t)
	h.loop.Admit(context.Background())

	if len(h.store.filters) != 1 {
		t.Fatalf("searches = %d", len(h.store.filters))
	}
	f := h.store.filters[0].Filters
	if f[0].SearchField != storage.FieldFlightReleaseApproval || f[0].PredicateOperator != storage.PredicateIsNull {
		t.Fatalf("first predicate = %+v", f[0])
	}
	if f[1].SearchValue[0] != storage.FormatTime(t0.Add(time.Hour)) || f[2].SearchValue[0] != storage.FormatTime(t0) {
		t.Fatalf("departure window = %v..%v", f[2].SearchValue, f[1].SearchValue)
	}
}

func TestPendingDecisionLeavesEntry(t *testing.T) {
	t.Parallel()

	h := newPlanHarness(t, flightPlan("fp-1", t0.Add(time.Minute)))
	ctx := context.Background()
	h.loop.Admit(ctx)
	h.authority.decide("fp-1", model.RequestStatusPending, t0)

	h.loop.Poll(ctx)
	if len(h.loop.Pending()) != 1 || len(h.store.updates) != 0 {
		t.Fatalf("pending decision changed state: pending=%d updates=%d", len(h.loop.Pending()), len(h.store.updates))
	}
}

func TestExpireWithoutBackendCall(t *testing.T) {
	t.Parallel()

	h := newPlanHarness(t, flightPlan("fp-1", t0.Add(10*time.Second)))
	ctx := context.Background()
	h.loop.Admit(ctx)

	h.clock.Advance(11 * time.Second)
	h.loop.Expire(ctx)

	if len(h.loop.Pending()) != 0 {
		t.Fatalf("expired entry still pending")
	}
	if h.authority.statusCalls != 0 {
		t.Fatalf("status calls = %d, want 0", h.authority.statusCalls)
	}
	if len(h.store.updates) != 0 {
		t.Fatalf("expiry wrote to store: %+v", h.store.updates)
	}
	if h.metrics.expirations != 1 {
		t.Fatalf("expirations = %d", h.metrics.expirations)
	}
}

func TestAdmitIsIdempotent(t *testing.T) {
	t.Parallel()

	h := newPlanHarness(t, flightPlan("fp-1", t0.Add(time.Minute)), flightPlan("fp-2", t0.Add(2*time.Minute)))
	ctx := context.Background()

	h.loop.Admit(ctx)
	h.loop.Admit(ctx)

	if got := h.authority.submissionCount(); got != 2 {
		t.Fatalf("submissions = %d, want 2", got)
	}
	if got := len(h.loop.Pending()); got != 2 {
		t.Fatalf("pending = %d, want 2", got)
	}
	sub := h.authority.submissions[0]
	if sub.ScheduledDeparture == nil || len(sub.Data) == 0 {
		t.Fatalf("submission missing details: %+v", sub)
	}
}

func TestSubmitFailureIsRetriedNextCycle(t *testing.T) {
	t.Parallel()

	h := newPlanHarness(t, flightPlan("fp-1", t0.Add(time.Minute)))
	ctx := context.Background()

	h.authority.submitErr = errors.New("authority unavailable")
	h.loop.Admit(ctx)
	if len(h.loop.Pending()) != 0 {
		t.Fatalf("failed submission was cached")
	}

	h.authority.submitErr = nil
	h.loop.Admit(ctx)
	if len(h.loop.Pending()) != 1 {
		t.Fatalf("submission not retried")
	}
	if h.metrics.submissions["error"] != 1 || h.metrics.submissions["ok"] != 1 {
		t.Fatalf("submission metrics = %v", h.metrics.submissions)
	}
}

func TestSearchFailureLeavesCacheAlone(t *testing.T) {
	t.Parallel()

	h := newPlanHarness(t, flightPlan("fp-1", t0.Add(time.Minute)))
	ctx := context.Background()
	h.loop.Admit(ctx)

	h.store.searchErr = errors.New("storage down")
	h.loop.Admit(ctx)
	if len(h.loop.Pending()) != 1 {
		t.Fatalf("pending = %d, want 1", len(h.loop.Pending()))
	}
}

func TestPlanDenialCancelsFlight(t *testing.T) {
	t.Parallel()

	h := newPlanHarness(t, flightPlan("fp-1", t0.Add(time.Minute)))
	ctx := context.Background()
	h.loop.Admit(ctx)
	h.authority.decide("fp-1", model.RequestStatusDenied, t0)
	h.loop.Poll(ctx)

	if len(h.store.updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(h.store.updates))
	}
	upd := h.store.updates[0]
	if upd.Data.FlightStatus != storage.FlightStatusCancelled || upd.Mask.Paths[0] != storage.FieldFlightStatus {
		t.Fatalf("update = %+v", upd)
	}
	if len(h.loop.Pending()) != 0 {
		t.Fatalf("denied entry still pending")
	}
}

func TestReleaseDenialIsRememberedNotWritten(t *testing.T) {
	t.Parallel()

	h := newReleaseHarness(t, flightPlan("fp-1", t0.Add(time.Minute)))
	ctx := context.Background()
	h.loop.Admit(ctx)
	h.authority.decide("fp-1", model.RequestStatusDenied, t0)
	h.loop.Poll(ctx)

	if len(h.store.updates) != 0 {
		t.Fatalf("release denial wrote to store: %+v", h.store.updates)
	}
	// The store still matches the flight plan; it must not be resubmitted.
	h.loop.Admit(ctx)
	if got := h.authority.submissionCount(); got != 1 {
		t.Fatalf("submissions = %d, want 1", got)
	}
	if len(h.loop.Pending()) != 0 {
		t.Fatalf("denied release re-admitted")
	}
	if h.metrics.decisions["denied"] != 1 {
		t.Fatalf("decision metrics = %v", h.metrics.decisions)
	}
}

func TestValidationFailureRemovesEntryWithoutRetry(t *testing.T) {
	t.Parallel()

	h := newPlanHarness(t, flightPlan("fp-1", t0.Add(time.Minute)))
	h.store.response = &storage.UpdateResponse{ValidationResult: &storage.ValidationResult{
		Success: false,
		Errors:  []storage.ValidationError{{Field: "flight_plan_approval", Message: "bad"}},
	}}
	ctx := context.Background()

	h.loop.Admit(ctx)
	h.authority.decide("fp-1", model.RequestStatusApproved, t0)
	h.loop.Poll(ctx)

	if len(h.loop.Pending()) != 0 {
		t.Fatalf("entry kept after validation failure")
	}
	h.loop.Admit(ctx)
	if h.store.updateCount() != 1 || h.authority.submissionCount() != 1 {
		t.Fatalf("validation failure retried: updates=%d submissions=%d", h.store.updateCount(), h.authority.submissionCount())
	}
	if h.metrics.writeFailures != 1 {
		t.Fatalf("write failures = %d", h.metrics.writeFailures)
	}
}

func TestMissingValidationResultIsTreatedAsRejected(t *testing.T) {
	t.Parallel()

	h := newPlanHarness(t, flightPlan("fp-1", t0.Add(time.Minute)))
	h.store.response = &storage.UpdateResponse{}
	ctx := context.Background()

	h.loop.Admit(ctx)
	h.authority.decide("fp-1", model.RequestStatusApproved, t0)
	h.loop.Poll(ctx)
	h.loop.Admit(ctx)

	if h.store.updateCount() != 1 || h.metrics.writeFailures != 1 {
		t.Fatalf("updates=%d write failures=%d", h.store.updateCount(), h.metrics.writeFailures)
	}
}

func TestFailedWriteIsRetriedOnReadmit(t *testing.T) {
	t.Parallel()

	h := newPlanHarness(t, flightPlan("fp-1", t0.Add(time.Minute)))
	h.store.updateErr = errors.New("connection reset")
	ctx := context.Background()

	h.loop.Admit(ctx)
	approvedAt := t0.Add(time.Second)
	h.authority.decide("fp-1", model.RequestStatusApproved, approvedAt)
	h.loop.Poll(ctx)
	if len(h.loop.Pending()) != 0 {
		t.Fatalf("entry kept after write failure")
	}

	h.store.updateErr = nil
	h.loop.Admit(ctx)

	if got := h.authority.submissionCount(); got != 1 {
		t.Fatalf("resubmitted after write failure: submissions = %d", got)
	}
	if h.store.updateCount() != 2 {
		t.Fatalf("updates = %d, want 2", h.store.updateCount())
	}
	if !h.store.updates[1].Data.FlightPlanApproval.Equal(approvedAt) {
		t.Fatalf("retried write carries %v, want %v", h.store.updates[1].Data.FlightPlanApproval, approvedAt)
	}

	// Once written, the decision is not written again.
	h.loop.Admit(ctx)
	if h.store.updateCount() != 2 {
		t.Fatalf("updates after successful retry = %d, want 2", h.store.updateCount())
	}
}

func TestMalformedRecordDroppedForever(t *testing.T) {
	t.Parallel()

	h := newPlanHarness(t, storage.FlightPlanObject{ID: "broken"}, flightPlan("fp-1", t0.Add(time.Minute)))
	ctx := context.Background()

	h.loop.Admit(ctx)
	h.loop.Admit(ctx)

	if got := h.authority.submissionCount(); got != 1 {
		t.Fatalf("submissions = %d, want 1", got)
	}
	if p := h.loop.Pending(); len(p) != 1 || p[0].FlightPlanID != "fp-1" {
		t.Fatalf("pending = %+v", p)
	}
}

func TestStatusErrorKeepsEntry(t *testing.T) {
	t.Parallel()

	h := newPlanHarness(t, flightPlan("fp-1", t0.Add(time.Minute)))
	ctx := context.Background()
	h.loop.Admit(ctx)
	h.loop.Poll(ctx) // fake authority has no status for fp-1

	if len(h.loop.Pending()) != 1 {
		t.Fatalf("entry dropped on status error")
	}
}

func TestRunOnceOrderAndMetrics(t *testing.T) {
	t.Parallel()

	h := newPlanHarness(t, flightPlan("fp-1", t0.Add(time.Minute)))
	h.authority.decide("fp-1", model.RequestStatusApproved, t0)

	h.loop.RunOnce(context.Background())

	// Admit and Poll in the same iteration: submitted, then decided.
	if h.authority.submissionCount() != 1 || h.store.updateCount() != 1 {
		t.Fatalf("submissions=%d updates=%d", h.authority.submissionCount(), h.store.updateCount())
	}
	if h.metrics.pending[WorkflowPlan] != 0 || h.metrics.iterations != 1 {
		t.Fatalf("metrics = %+v", h.metrics)
	}
}

func TestRunPacesIterationsAndStops(t *testing.T) {
	t.Parallel()

	h := newPlanHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.loop.Run(ctx) }()

	waitFor(t, func() bool { return h.clock.Waiters() == 1 })
	if n := searchCount(h.store); n != 1 {
		t.Fatalf("searches before interval = %d, want 1", n)
	}
	h.clock.Advance(30 * time.Second)
	waitFor(t, func() bool { return searchCount(h.store) == 2 && h.clock.Waiters() == 1 })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop")
	}
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	store, auth := newFakeStore(), newFakeAuthority()
	cases := map[string]Config{
		"no interval":  {DecisionField: "x", Lookahead: time.Second},
		"no lookahead": {DecisionField: "x", Interval: time.Second},
		"no field":     {Interval: time.Second, Lookahead: time.Second},
	}
	for name, cfg := range cases {
		if _, err := New(cfg, store, auth, PlanHandler{Store: store}); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := New(Config{DecisionField: "x", Interval: 1, Lookahead: 1}, nil, auth, PlanHandler{}); err == nil {
		t.Fatalf("nil store accepted")
	}
}

func TestWorkflowConstructorsWithRegionBackend(t *testing.T) {
	t.Parallel()

	clock := timectrl.NewManualClock(t0)
	backend, err := region.New("us", region.Options{Clock: clock})
	if err != nil {
		t.Fatalf("region.New: %v", err)
	}
	store := newFakeStore(flightPlan("fp-1", t0.Add(time.Minute)))

	plans, err := NewPlanLoop(store, backend, time.Second, time.Hour, 8, WithClock(clock))
	if err != nil {
		t.Fatalf("NewPlanLoop: %v", err)
	}
	releases, err := NewReleaseLoop(store, backend, time.Second, time.Hour, 8, WithClock(clock))
	if err != nil {
		t.Fatalf("NewReleaseLoop: %v", err)
	}

	ctx := context.Background()
	plans.RunOnce(ctx)
	releases.RunOnce(ctx)

	// Zero review period: both workflows are approved in their first iteration.
	if store.updateCount() != 2 {
		t.Fatalf("updates = %d, want 2", store.updateCount())
	}
	fields := map[string]bool{}
	for _, u := range store.updates {
		fields[u.Mask.Paths[0]] = true
	}
	if !fields[storage.FieldFlightPlanApproval] || !fields[storage.FieldFlightReleaseApproval] {
		t.Fatalf("written fields = %v", fields)
	}
}

func searchCount(s *fakeStore) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.filters)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestDecisionsStickWithSmallestMemory(t *testing.T) {
	t.Parallel()

	for _, size := range []int{0, 1} {
		t.Run(fmt.Sprintf("memory=%d", size), func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()

			relStore := newFakeStore(flightPlan("fp-1", t0.Add(time.Minute)))
			relAuth := newFakeAuthority()
			relAuth.decide("fp-1", model.RequestStatusDenied, t0)
			releases, err := New(Config{
				Workflow:      WorkflowRelease,
				DecisionField: storage.FieldFlightReleaseApproval,
				Interval:      time.Second,
				Lookahead:     time.Hour,
				MemorySize:    size,
			}, relStore, relAuth, ReleaseHandler{Store: relStore}, WithClock(timectrl.NewManualClock(t0)))
			if err != nil {
				t.Fatalf("New release loop: %v", err)
			}

			planStore := newFakeStore(flightPlan("fp-2", t0.Add(time.Minute)))
			planStore.response = &storage.UpdateResponse{ValidationResult: &storage.ValidationResult{Success: false}}
			planAuth := newFakeAuthority()
			planAuth.decide("fp-2", model.RequestStatusApproved, t0)
			plans, err := New(Config{
				Workflow:      WorkflowPlan,
				DecisionField: storage.FieldFlightPlanApproval,
				Interval:      time.Second,
				Lookahead:     time.Hour,
				MemorySize:    size,
			}, planStore, planAuth, PlanHandler{Store: planStore}, WithClock(timectrl.NewManualClock(t0)))
			if err != nil {
				t.Fatalf("New plan loop: %v", err)
			}

			for i := 0; i < 3; i++ {
				releases.RunOnce(ctx)
				plans.RunOnce(ctx)
			}

			if got := relAuth.submissionCount(); got != 1 {
				t.Fatalf("denied release submissions = %d, want 1", got)
			}
			if got := planAuth.submissionCount(); got != 1 {
				t.Fatalf("rejected plan submissions = %d, want 1", got)
			}
			if got := planStore.updateCount(); got != 1 {
				t.Fatalf("rejected plan updates = %d, want 1", got)
			}
		})
	}
}
