package weather

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeScheduler struct {
	mu      sync.Mutex
	pending func()
	delays  []time.Duration
}

func (f *fakeScheduler) Schedule(delay time.Duration, fn func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = fn
	f.delays = append(f.delays, delay)
	return nil
}

func (f *fakeScheduler) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = nil
}

func (f *fakeScheduler) hasPending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending != nil
}

func (f *fakeScheduler) lastDelay() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delays[len(f.delays)-1]
}

// fire runs the pending function as the timer would.
func (f *fakeScheduler) fire(t *testing.T) {
	t.Helper()
	f.mu.Lock()
	fn := f.pending
	f.pending = nil
	f.mu.Unlock()
	if fn == nil {
		t.Fatal("no pending fetch to fire")
	}
	fn()
}

type fetchResult struct {
	series *TimeSeries
	err    error
}

type fakeProvider struct {
	results     []fetchResult
	calls       int
	locations   []Location
	credentials []string
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Fetch(_ context.Context, loc Location, credential string) (*TimeSeries, error) {
	p.locations = append(p.locations, loc)
	p.credentials = append(p.credentials, credential)
	r := p.results[p.calls%len(p.results)]
	p.calls++
	return r.series, r.err
}

type fakeStore struct {
	saved []Forecast
}

func (s *fakeStore) SaveSnapshot(_ Location, f Forecast) { s.saved = append(s.saved, f) }

func (s *fakeStore) GetLatest(Location) (Forecast, error) {
	if len(s.saved) == 0 {
		return Forecast{}, errors.New("none")
	}
	return s.saved[len(s.saved)-1], nil
}

func (s *fakeStore) GetRange(Location, time.Time, time.Time) ([]Forecast, error) {
	return s.saved, nil
}

var (
	testNow  = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	testLoc  = Location{Lon: 18.0686, Lat: 59.3293}
	goodData = hourlySeries(testNow.Truncate(time.Hour), 72, map[string]float64{"t": 11, "Wsymb2": 2, "pmean": 0.1})
)

func testOptions(loc Location) Options {
	return Options{
		Location:         loc,
		Credential:       "token",
		UpdateInterval:   10 * time.Minute,
		InitialLoadDelay: 2500 * time.Millisecond,
		RetryDelay:       5 * time.Second,
		Aggregate:        utcOpts(5),
		Now:              func() time.Time { return testNow },
	}
}

func newTestService(loc Location, results ...fetchResult) (*Service, *fakeScheduler, *fakeProvider, *fakeStore, *[]State) {
	sched := &fakeScheduler{}
	prov := &fakeProvider{results: results}
	st := &fakeStore{}
	svc := NewService(st, prov, sched, testOptions(loc))

	var states []State
	svc.OnUpdate(func(s State) { states = append(states, s) })
	return svc, sched, prov, st, &states
}

func TestServiceUnconfiguredNeverFetches(t *testing.T) {
	tests := []struct {
		name  string
		loc   Location
		field string
	}{
		{"missing lon", Location{Lon: 0, Lat: 59.3}, "lon"},
		{"missing lat", Location{Lon: 18.1, Lat: 0}, "lat"},
		{"missing both", Location{}, "lon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, sched, prov, _, states := newTestService(tt.loc, fetchResult{series: goodData})

			if err := svc.Start(); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			st := svc.State()
			if st.Status != StatusUnconfigured || st.MissingField != tt.field {
				t.Fatalf("expected unconfigured %s, got %+v", tt.field, st)
			}
			if sched.hasPending() {
				t.Fatal("expected no fetch to be scheduled")
			}
			if prov.calls != 0 {
				t.Fatalf("expected no provider calls, got %d", prov.calls)
			}
			if len(*states) != 1 || (*states)[0].Status != StatusUnconfigured {
				t.Fatalf("expected a single unconfigured notification, got %+v", *states)
			}
			if err := svc.Refresh(); !errors.Is(err, ErrUnconfigured) {
				t.Fatalf("expected ErrUnconfigured from Refresh, got %v", err)
			}
		})
	}
}

func TestServiceSuccessfulCycle(t *testing.T) {
	svc, sched, prov, st, states := newTestService(testLoc, fetchResult{series: goodData})

	if err := svc.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := sched.lastDelay(); got != 2500*time.Millisecond {
		t.Fatalf("expected initial load delay, got %s", got)
	}
	if svc.State().Status != StatusLoading {
		t.Fatalf("expected loading before first fetch, got %s", svc.State().Status)
	}

	sched.fire(t)

	state := svc.State()
	if state.Status != StatusReady || state.Forecast == nil {
		t.Fatalf("expected ready state with forecast, got %+v", state)
	}
	if state.Forecast.ID == uuid.Nil {
		t.Fatal("expected forecast to carry an ID")
	}
	if state.Forecast.Location != testLoc {
		t.Fatalf("expected forecast location %v, got %v", testLoc, state.Forecast.Location)
	}
	if got := sched.lastDelay(); got != 10*time.Minute {
		t.Fatalf("expected update interval, got %s", got)
	}
	if prov.credentials[0] != "token" {
		t.Fatalf("expected credential to be sent, got %q", prov.credentials[0])
	}
	if len(st.saved) != 1 {
		t.Fatalf("expected 1 stored snapshot, got %d", len(st.saved))
	}
	last := (*states)[len(*states)-1]
	if last.Status != StatusReady {
		t.Fatalf("expected listener to see ready state, got %s", last.Status)
	}
}

func TestServiceRecoverableFailureRetries(t *testing.T) {
	svc, sched, _, _, states := newTestService(testLoc,
		fetchResult{err: errors.New("connection refused")},
		fetchResult{series: goodData},
		fetchResult{err: ErrMissingTimeSeries},
	)

	if err := svc.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	notified := len(*states)

	// Transport failure: retry after the retry delay.
	sched.fire(t)
	if got := sched.lastDelay(); got != 5*time.Second {
		t.Fatalf("expected retry delay, got %s", got)
	}
	if st := svc.State(); st.Status != StatusLoading || st.LastError == "" {
		t.Fatalf("expected loading state with error, got %+v", st)
	}
	if len(*states) != notified+1 {
		t.Fatal("expected a notification after a failed attempt")
	}

	sched.fire(t)
	first := svc.State().Forecast

	// Unusable payload keeps the last forecast and uses the normal schedule.
	sched.fire(t)
	if got := sched.lastDelay(); got != 10*time.Minute {
		t.Fatalf("expected update interval after unusable payload, got %s", got)
	}
	st := svc.State()
	if st.Forecast != first {
		t.Fatal("expected previous forecast to be kept after a failed cycle")
	}
	if st.Status != StatusReady || st.LastError == "" {
		t.Fatalf("expected ready state with error, got %+v", st)
	}

	// Transport failures after a successful load still use the retry delay.
	sched.fire(t)
	if got := sched.lastDelay(); got != 5*time.Second {
		t.Fatalf("expected retry delay after loaded transport failure, got %s", got)
	}
}

func TestServiceUnauthorizedHalts(t *testing.T) {
	svc, sched, prov, _, states := newTestService(testLoc,
		fetchResult{err: ErrUnauthorized},
		fetchResult{series: goodData},
	)

	if err := svc.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sched.fire(t)

	st := svc.State()
	if st.Status != StatusHalted || !st.Loaded() {
		t.Fatalf("expected halted and loaded, got %+v", st)
	}
	if sched.hasPending() {
		t.Fatal("expected no further fetch after 401")
	}
	if last := (*states)[len(*states)-1]; last.Status != StatusHalted {
		t.Fatalf("expected listener to see halted state, got %s", last.Status)
	}

	if err := svc.Refresh(); !errors.Is(err, ErrHalted) {
		t.Fatalf("expected ErrHalted, got %v", err)
	}
	if sched.hasPending() || prov.calls != 1 {
		t.Fatal("expected Refresh to be a no-op while halted")
	}

	// Reconfiguration resumes with a fresh credential.
	moved := Location{Lon: 11.9746, Lat: 57.7089}
	if err := svc.Reconfigure(moved, "fresh"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := sched.lastDelay(); got != 2500*time.Millisecond {
		t.Fatalf("expected initial load delay after reconfigure, got %s", got)
	}
	sched.fire(t)

	if svc.State().Status != StatusReady {
		t.Fatalf("expected ready after reconfigure, got %s", svc.State().Status)
	}
	if prov.locations[1] != moved || prov.credentials[1] != "fresh" {
		t.Fatalf("expected fetch for new location and credential, got %v %q", prov.locations[1], prov.credentials[1])
	}
}

func TestServiceUnauthorizedClearsCredential(t *testing.T) {
	svc, sched, _, _, _ := newTestService(testLoc, fetchResult{err: ErrUnauthorized})

	if err := svc.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sched.fire(t)

	svc.mu.RLock()
	cred := svc.credential
	svc.mu.RUnlock()
	if cred != "" {
		t.Fatalf("expected credential to be cleared, got %q", cred)
	}
}

func TestServiceRefreshSchedulesImmediately(t *testing.T) {
	svc, sched, _, _, _ := newTestService(testLoc, fetchResult{series: goodData})

	if err := svc.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.Refresh(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := sched.lastDelay(); got != 0 {
		t.Fatalf("expected immediate fetch, got %s", got)
	}
}

func TestServiceReconfigureRejectsOutOfRange(t *testing.T) {
	svc, _, _, _, _ := newTestService(testLoc, fetchResult{series: goodData})

	if err := svc.Reconfigure(Location{Lon: 200, Lat: 59}, ""); err == nil {
		t.Fatal("expected error for out-of-range longitude")
	}
	if svc.Location() != testLoc {
		t.Fatal("expected location to be unchanged")
	}
}

func TestServiceUpdateReplacesStateWholesale(t *testing.T) {
	svc, _, _, _, _ := newTestService(testLoc, fetchResult{series: goodData})

	a, err := svc.Update(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := svc.Update(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if a.ID == b.ID {
		t.Fatal("expected a new snapshot per cycle")
	}
	if len(a.Days) != len(b.Days) || *a.Current.Temperature != *b.Current.Temperature {
		t.Fatal("expected identical aggregation for identical input")
	}
	if svc.State().Forecast.ID != b.ID {
		t.Fatal("expected state to hold the latest snapshot")
	}
}
