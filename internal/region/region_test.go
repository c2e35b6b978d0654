package region

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/signalsfoundry/svc-compliance/model"
	"github.com/signalsfoundry/svc-compliance/timectrl"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNewSelectsBackendByCode(t *testing.T) {
	t.Parallel()

	for _, code := range []string{"us", "NL", " us "} {
		b, err := New(code, Options{})
		if err != nil {
			t.Fatalf("New(%q): %v", code, err)
		}
		if b.Code() == "" {
			t.Fatalf("New(%q) returned backend without code", code)
		}
	}

	if _, err := New("fr", Options{}); !errors.Is(err, ErrUnknownRegion) {
		t.Fatalf("New(fr) error = %v, want ErrUnknownRegion", err)
	}
	if got := Codes(); len(got) != 2 || got[0] != "nl" || got[1] != "us" {
		t.Fatalf("Codes() = %v", got)
	}
}

func TestFlightPlanReviewPeriod(t *testing.T) {
	t.Parallel()

	clock := timectrl.NewManualClock(testStart)
	b, err := New("us", Options{Clock: clock, ReviewPeriod: time.Minute})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if err := b.SubmitFlightPlan(ctx, model.Submission{FlightPlanID: "fp-1"}); err != nil {
		t.Fatalf("SubmitFlightPlan: %v", err)
	}

	resp, err := b.FlightPlanStatus(ctx, "fp-1")
	if err != nil {
		t.Fatalf("FlightPlanStatus: %v", err)
	}
	if resp.Status != model.RequestStatusPending {
		t.Fatalf("status before review = %v, want pending", resp.Status)
	}

	clock.Advance(2 * time.Minute)
	resp, err = b.FlightPlanStatus(ctx, "fp-1")
	if err != nil {
		t.Fatalf("FlightPlanStatus: %v", err)
	}
	if resp.Status != model.RequestStatusApproved {
		t.Fatalf("status after review = %v, want approved", resp.Status)
	}
	if want := testStart.Add(time.Minute); !resp.Timestamp.Equal(want) {
		t.Fatalf("decision timestamp = %v, want %v", resp.Timestamp, want)
	}
}

func TestResubmissionKeepsOriginalTime(t *testing.T) {
	t.Parallel()

	clock := timectrl.NewManualClock(testStart)
	b, _ := New("nl", Options{Clock: clock, ReviewPeriod: time.Minute})
	ctx := context.Background()

	_ = b.SubmitFlightRelease(ctx, model.Submission{FlightPlanID: "fp-2"})
	clock.Advance(45 * time.Second)
	_ = b.SubmitFlightRelease(ctx, model.Submission{FlightPlanID: "fp-2"})
	clock.Advance(15 * time.Second)

	resp, err := b.FlightReleaseStatus(ctx, "fp-2")
	if err != nil {
		t.Fatalf("FlightReleaseStatus: %v", err)
	}
	if resp.Status != model.RequestStatusApproved {
		t.Fatalf("status = %v, want approved", resp.Status)
	}
}

func TestPlanAndReleaseLedgersAreIndependent(t *testing.T) {
	t.Parallel()

	b, _ := New("us", Options{Clock: timectrl.NewManualClock(testStart)})
	ctx := context.Background()

	if err := b.SubmitFlightPlan(ctx, model.Submission{FlightPlanID: "fp-3"}); err != nil {
		t.Fatalf("SubmitFlightPlan: %v", err)
	}
	if _, err := b.FlightReleaseStatus(ctx, "fp-3"); !errors.Is(err, ErrUnknownRequest) {
		t.Fatalf("FlightReleaseStatus error = %v, want ErrUnknownRequest", err)
	}
}

func TestLedgerForgetsDecidedRequests(t *testing.T) {
	t.Parallel()

	clock := timectrl.NewManualClock(testStart)
	l := newLedger(clock, time.Minute, time.Hour)

	for _, id := range []string{"fp-a", "fp-b", "fp-c"} {
		if err := l.submit(id); err != nil {
			t.Fatalf("submit(%s): %v", id, err)
		}
	}

	clock.Advance(time.Minute)
	resp, err := l.status("fp-a")
	if err != nil || resp.Status != model.RequestStatusApproved {
		t.Fatalf("status right after review = %+v, %v", resp, err)
	}

	clock.Advance(time.Hour - time.Second)
	if _, err := l.status("fp-a"); err != nil {
		t.Fatalf("status inside retention: %v", err)
	}

	clock.Advance(time.Second)
	if _, err := l.status("fp-a"); !errors.Is(err, ErrUnknownRequest) {
		t.Fatalf("status after retention error = %v, want ErrUnknownRequest", err)
	}

	// fp-b and fp-c were never queried again; the next submission sweeps them.
	if err := l.submit("fp-d"); err != nil {
		t.Fatalf("submit(fp-d): %v", err)
	}
	if got := l.size(); got != 1 {
		t.Fatalf("ledger size = %d, want 1", got)
	}
}

func TestLedgerRetentionDefaults(t *testing.T) {
	t.Parallel()

	l := newLedger(timectrl.NewManualClock(testStart), -time.Second, 0)
	if l.review != 0 || l.retention != DefaultRetention {
		t.Fatalf("review=%v retention=%v", l.review, l.retention)
	}
}

func TestSubmissionErrors(t *testing.T) {
	t.Parallel()

	b, _ := New("us", Options{})
	if err := b.SubmitFlightPlan(context.Background(), model.Submission{}); !errors.Is(err, ErrRejected) {
		t.Fatalf("empty id error = %v, want ErrRejected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.SubmitFlightPlan(ctx, model.Submission{FlightPlanID: "x"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled submit error = %v", err)
	}
	if _, err := b.FetchWaypoints(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled fetch error = %v", err)
	}
}

func TestUSFixtures(t *testing.T) {
	t.Parallel()

	clock := timectrl.NewManualClock(testStart)
	b, _ := New("us", Options{Clock: clock})
	ctx := context.Background()

	zones, err := b.FetchRestrictions(ctx)
	if err != nil {
		t.Fatalf("FetchRestrictions: %v", err)
	}
	if len(zones) != 2 {
		t.Fatalf("zones = %d, want 2", len(zones))
	}
	nofly := zones["ARROW-US-NOFLY-ZONE"]
	if nofly.ZoneType != model.ZoneTypeNoFly || len(nofly.Vertices) != 8 || nofly.TimeStart != nil {
		t.Fatalf("unexpected no-fly zone: %+v", nofly)
	}
	tfr := zones["ARROW-US-TFR-ZONE"]
	if tfr.ZoneType != model.ZoneTypeTemporary || tfr.TimeStart == nil || tfr.TimeEnd == nil {
		t.Fatalf("unexpected tfr zone: %+v", tfr)
	}
	if !tfr.TimeStart.Equal(testStart) || tfr.TimeEnd.Sub(*tfr.TimeStart) != 24*time.Hour {
		t.Fatalf("tfr window = %v..%v", tfr.TimeStart, tfr.TimeEnd)
	}
	if tfr.AltitudeMin > tfr.AltitudeMax {
		t.Fatalf("tfr altitude range inverted")
	}

	// Mutating a fetched zone must not leak into the next fetch.
	nofly.Vertices[0].Latitude = 0
	again, _ := b.FetchRestrictions(ctx)
	if again["ARROW-US-NOFLY-ZONE"].Vertices[0].Latitude == 0 {
		t.Fatalf("fixture vertices were shared between fetches")
	}

	waypoints, err := b.FetchWaypoints(ctx)
	if err != nil {
		t.Fatalf("FetchWaypoints: %v", err)
	}
	if len(waypoints) != 2 {
		t.Fatalf("waypoints = %d, want 2", len(waypoints))
	}
	if _, ok := waypoints["ARROW-WAY-1"]; !ok {
		t.Fatalf("missing ARROW-WAY-1: %v", waypoints)
	}
}

func TestNLFixtures(t *testing.T) {
	t.Parallel()

	b, err := New("nl", Options{Clock: timectrl.NewManualClock(testStart)})
	if err != nil {
		t.Fatalf("New(nl): %v", err)
	}
	ctx := context.Background()

	zones, err := b.FetchRestrictions(ctx)
	if err != nil {
		t.Fatalf("FetchRestrictions: %v", err)
	}
	if got := len(zones["ARROW-NL-NOFLY-ZONE"].Vertices); got != 12 {
		t.Fatalf("nl no-fly vertices = %d, want 12", got)
	}
	if tfr := zones["ARROW-NL-TFR-ZONE"]; tfr.TimeEnd == nil || tfr.TimeEnd.Sub(*tfr.TimeStart) != time.Hour {
		t.Fatalf("unexpected nl tfr: %+v", tfr)
	}

	waypoints, err := b.FetchWaypoints(ctx)
	if err != nil {
		t.Fatalf("FetchWaypoints: %v", err)
	}
	want := map[string]model.Coordinate{
		"ARROW-WEG-0": {Latitude: 52.3745, Longitude: 4.9160},
		"ARROW-WEG-1": {Latitude: 52.3749, Longitude: 4.9156},
		"ARROW-WEG-2": {Latitude: 52.3752, Longitude: 4.9153},
		"ARROW-WEG-3": {Latitude: 52.3753, Longitude: 4.9156},
		"ARROW-WEG-4": {Latitude: 52.3750, Longitude: 4.9161},
	}
	if len(waypoints) != len(want) {
		t.Fatalf("waypoints = %d, want %d", len(waypoints), len(want))
	}
	for id, w := range want {
		got, ok := waypoints[id]
		if !ok {
			t.Fatalf("missing waypoint %s", id)
		}
		if math.Abs(got.Latitude-w.Latitude) > 1e-6 || math.Abs(got.Longitude-w.Longitude) > 1e-6 {
			t.Fatalf("waypoint %s = %+v, want %+v", id, got, w)
		}
	}
}

func TestParseWaypointsCSVErrors(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"missing id":  "identifier,latitude,longitude\n,\"1°0'0.0\"\"N\",\"1°0'0.0\"\"E\"\n",
		"bad lat":     "identifier,latitude,longitude\nA,north,\"1°0'0.0\"\"E\"\n",
		"bad bearing": "identifier,latitude,longitude\nA,\"1°0'0.0\"\"N\",\"1°0'0.0\"\"X\"\n",
	}
	for name, raw := range cases {
		if _, err := parseWaypointsCSV([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
