package reconciler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/signalsfoundry/svc-compliance/internal/storage"
	"github.com/signalsfoundry/svc-compliance/model"
)

type fakeStore struct {
	mu        sync.Mutex
	objects   []storage.FlightPlanObject
	searchErr error
	updateErr error
	response  *storage.UpdateResponse
	filters   []*storage.AdvancedSearchFilter
	updates   []storage.UpdateObject
}

func newFakeStore(objects ...storage.FlightPlanObject) *fakeStore {
	return &fakeStore{
		objects:  objects,
		response: &storage.UpdateResponse{ValidationResult: &storage.ValidationResult{Success: true}},
	}
}

func (s *fakeStore) Search(_ context.Context, f *storage.AdvancedSearchFilter) ([]storage.FlightPlanObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = append(s.filters, f)
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return append([]storage.FlightPlanObject(nil), s.objects...), nil
}

func (s *fakeStore) Update(_ context.Context, obj storage.UpdateObject) (*storage.UpdateResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, obj)
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	return s.response, nil
}

func (s *fakeStore) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.updates)
}

type fakeAuthority struct {
	mu          sync.Mutex
	submitErr   error
	statuses    map[string]model.StatusResponse
	submissions []model.Submission
	statusCalls int
}

func newFakeAuthority() *fakeAuthority {
	return &fakeAuthority{statuses: map[string]model.StatusResponse{}}
}

func (a *fakeAuthority) Submit(_ context.Context, sub model.Submission) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.submitErr != nil {
		return a.submitErr
	}
	a.submissions = append(a.submissions, sub)
	return nil
}

func (a *fakeAuthority) Status(_ context.Context, id string) (model.StatusResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.statusCalls++
	resp, ok := a.statuses[id]
	if !ok {
		return model.StatusResponse{}, errors.New("unknown request")
	}
	return resp, nil
}

func (a *fakeAuthority) decide(id string, status model.RequestStatus, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.statuses[id] = model.StatusResponse{Status: status, Timestamp: at}
}

func (a *fakeAuthority) submissionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.submissions)
}

type fakeMetrics struct {
	mu            sync.Mutex
	pending       map[string]int
	submissions   map[string]int
	decisions     map[string]int
	expirations   int
	writeFailures int
	iterations    int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		pending:     map[string]int{},
		submissions: map[string]int{},
		decisions:   map[string]int{},
	}
}

func (m *fakeMetrics) SetPending(w string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[w] = n
}

func (m *fakeMetrics) IncSubmission(w, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions[result]++
}

func (m *fakeMetrics) IncDecision(w, decision string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions[decision]++
}

func (m *fakeMetrics) IncExpiration(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expirations++
}

func (m *fakeMetrics) IncWriteFailure(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeFailures++
}

func (m *fakeMetrics) ObserveIteration(string, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.iterations++
}
