package region

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/signalsfoundry/svc-compliance/model"
	"github.com/signalsfoundry/svc-compliance/timectrl"
)

// DefaultRetention is how long a decided request stays queryable when
// Options.Retention is not set.
const DefaultRetention = 24 * time.Hour

// ledger records submissions and answers status queries. A request stays
// pending for the review period and is approved afterwards. Decided requests
// are forgotten once they are older than the retention window.
type ledger struct {
	mu        sync.Mutex
	clock     timectrl.Clock
	review    time.Duration
	retention time.Duration
	submitted map[string]time.Time
	swept     time.Time
}

func newLedger(clock timectrl.Clock, review, retention time.Duration) *ledger {
	if review < 0 {
		review = 0
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &ledger{
		clock:     clock,
		review:    review,
		retention: retention,
		submitted: make(map[string]time.Time),
		swept:     clock.Now(),
	}
}

// submit records id. Resubmitting an id keeps the original submission time.
func (l *ledger) submit(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty flight plan id", ErrRejected)
	}
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.swept) >= l.retention {
		l.prune(now)
	}
	if _, ok := l.submitted[id]; !ok {
		l.submitted[id] = now
	}
	return nil
}

func (l *ledger) status(id string) (model.StatusResponse, error) {
	now := l.clock.Now()
	l.mu.Lock()
	at, ok := l.submitted[id]
	if ok && l.stale(at, now) {
		delete(l.submitted, id)
		ok = false
	}
	l.mu.Unlock()
	if !ok {
		return model.StatusResponse{}, fmt.Errorf("%w: %q", ErrUnknownRequest, id)
	}

	decided := at.Add(l.review)
	if now.Before(decided) {
		return model.StatusResponse{Status: model.RequestStatusPending, Timestamp: now}, nil
	}
	return model.StatusResponse{Status: model.RequestStatusApproved, Timestamp: decided}, nil
}

// size reports how many requests the ledger still holds.
func (l *ledger) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.submitted)
}

func (l *ledger) stale(at, now time.Time) bool {
	return !now.Before(at.Add(l.review + l.retention))
}

// prune drops every stale request. Callers hold mu.
func (l *ledger) prune(now time.Time) {
	for id, at := range l.submitted {
		if l.stale(at, now) {
			delete(l.submitted, id)
		}
	}
	l.swept = now
}
