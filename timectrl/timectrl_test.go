package timectrl

import (
	"context"
	"testing"
	"time"
)

func TestManualClockSetAndAdvance(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)

	c.Advance(42 * time.Second)
	if got, want := c.Now(), start.Add(42*time.Second); !got.Equal(want) {
		t.Fatalf("Now() = %v, want %v", got, want)
	}

	newNow := start.Add(time.Hour)
	c.Set(newNow)
	if got := c.Now(); !got.Equal(newNow) {
		t.Fatalf("Now() = %v, want %v", got, newNow)
	}
}

func TestManualClockAfterFiresOnDeadline(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)

	ch := c.After(10 * time.Second)
	c.Advance(9 * time.Second)
	select {
	case <-ch:
		t.Fatalf("After fired before deadline")
	default:
	}

	c.Advance(time.Second)
	select {
	case got := <-ch:
		if want := start.Add(10 * time.Second); !got.Equal(want) {
			t.Fatalf("After delivered %v, want %v", got, want)
		}
	default:
		t.Fatalf("After did not fire at deadline")
	}
	if n := c.Waiters(); n != 0 {
		t.Fatalf("Waiters() = %d, want 0", n)
	}
}

func TestSleepUntilOverrunReturnsImmediately(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)

	overran, err := SleepUntil(context.Background(), c, start.Add(-time.Second))
	if err != nil {
		t.Fatalf("SleepUntil error: %v", err)
	}
	if !overran {
		t.Fatalf("expected overran=true for a past deadline")
	}
	if n := c.Waiters(); n != 0 {
		t.Fatalf("SleepUntil registered %d waiters for a past deadline", n)
	}
}

func TestSleepUntilWaitsForDeadline(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)

	done := make(chan bool, 1)
	go func() {
		overran, _ := SleepUntil(context.Background(), c, start.Add(5*time.Second))
		done <- overran
	}()

	deadline := time.Now().Add(time.Second)
	for c.Waiters() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("SleepUntil never registered a waiter")
		}
		time.Sleep(time.Millisecond)
	}
	c.Advance(5 * time.Second)

	select {
	case overran := <-done:
		if overran {
			t.Fatalf("expected overran=false")
		}
	case <-time.After(time.Second):
		t.Fatalf("SleepUntil did not return after the deadline")
	}
}

func TestSleepUntilHonoursCancellation(t *testing.T) {
	c := NewManualClock(time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := SleepUntil(ctx, c, c.Now().Add(time.Minute)); err == nil {
		t.Fatalf("expected context error from cancelled SleepUntil")
	}
}

func TestRealClockIsUTC(t *testing.T) {
	if loc := Real().Now().Location(); loc != time.UTC {
		t.Fatalf("Real().Now() location = %v, want UTC", loc)
	}
}
