package weather

import (
	"context"
	"errors"
	"fmt"
	"log"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/atomic"
)

var (
	// ErrHalted is returned by Refresh after the upstream rejected our credentials.
	ErrHalted = errors.New("forecast updates halted until reconfigured")
	// ErrUnconfigured is returned when lon or lat is not set.
	ErrUnconfigured = errors.New("forecast location not configured")
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Options configures a Service.
type Options struct {
	Location   Location
	Credential string

	UpdateInterval   time.Duration
	InitialLoadDelay time.Duration
	RetryDelay       time.Duration

	Aggregate AggregateOptions

	// Now returns the wall clock. Defaults to time.Now.
	Now func() time.Time
}

// Service owns the forecast state and drives the fetch cycle: fetch,
// aggregate, replace state, notify, reschedule.
type Service struct {
	store     Store
	provider  Provider
	scheduler Scheduler
	opts      Options
	now       func() time.Time

	// cycleMu keeps at most one fetch in flight.
	cycleMu sync.Mutex

	mu         sync.RWMutex
	loc        Location
	credential string
	state      State
	listeners  []func(State)

	halted     *atomic.Bool
	generation *atomic.Uint64
}

// NewService creates a new Service.
func NewService(store Store, provider Provider, scheduler Scheduler, opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:      store,
		provider:   provider,
		scheduler:  scheduler,
		opts:       opts,
		now:        now,
		loc:        opts.Location,
		credential: opts.Credential,
		state:      State{Status: StatusLoading},
		halted:     atomic.NewBool(false),
		generation: atomic.NewUint64(0),
	}
}

// OnUpdate registers fn to be called with the new state after every fetch
// attempt and every lifecycle change.
func (s *Service) OnUpdate(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Start schedules the first fetch after the initial load delay. An
// unconfigured location is surfaced in the state and nothing is scheduled.
func (s *Service) Start() error {
	s.mu.RLock()
	loc := s.loc
	s.mu.RUnlock()

	if err := s.applyLocationState(loc); err != nil {
		return err
	}
	if s.State().Status == StatusUnconfigured {
		return nil
	}

	log.Printf("INFO: starting forecast updates for %s via %s", loc.Key(), s.provider.Name())
	if err := s.schedule(s.opts.InitialLoadDelay); err != nil {
		return err
	}
	s.notify()
	return nil
}

// Refresh schedules an immediate fetch, replacing any pending one.
func (s *Service) Refresh() error {
	if s.halted.Load() {
		return ErrHalted
	}
	if s.State().Status == StatusUnconfigured {
		return ErrUnconfigured
	}
	return s.schedule(0)
}

// Reconfigure switches to a new location and credential. It clears a halted
// state, drops the current forecast and schedules a fresh initial load.
func (s *Service) Reconfigure(loc Location, credential string) error {
	if _, err := missingField(loc); err != nil {
		return err
	}

	s.scheduler.Cancel()
	s.generation.Inc()
	s.halted.Store(false)

	s.mu.Lock()
	s.loc = loc
	s.credential = credential
	s.state = State{Status: StatusLoading, UpdatedAt: s.now()}
	s.mu.Unlock()

	log.Printf("INFO: forecast location changed to %s", loc.Key())
	return s.Start()
}

// Stop cancels the pending fetch.
func (s *Service) Stop() {
	s.scheduler.Cancel()
}

// State returns a copy of the current state.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Location returns the configured location.
func (s *Service) Location() Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loc
}

// Update runs one fetch and aggregation and replaces the state on success.
// It does not schedule anything.
func (s *Service) Update(ctx context.Context) (Forecast, error) {
	return s.update(ctx, s.generation.Load())
}

// GetRange returns stored snapshots for the configured location.
func (s *Service) GetRange(from, to time.Time) ([]Forecast, error) {
	return s.store.GetRange(s.Location(), from, to)
}

func (s *Service) update(ctx context.Context, gen uint64) (Forecast, error) {
	s.mu.RLock()
	loc := s.loc
	credential := s.credential
	s.mu.RUnlock()

	field, err := missingField(loc)
	if err != nil {
		return Forecast{}, err
	}
	if field != "" {
		return Forecast{}, ErrUnconfigured
	}

	series, err := s.provider.Fetch(ctx, loc, credential)
	if err != nil {
		return Forecast{}, fmt.Errorf("%s fetch: %w", s.provider.Name(), err)
	}

	now := s.now()
	forecast, err := Aggregate(series, now, s.opts.Aggregate)
	if err != nil {
		return Forecast{}, err
	}
	forecast.ID = uuid.New()
	forecast.Location = loc

	s.mu.Lock()
	if gen != s.generation.Load() {
		s.mu.Unlock()
		return Forecast{}, fmt.Errorf("location changed during fetch")
	}
	s.state = State{
		Status:    StatusReady,
		Forecast:  &forecast,
		UpdatedAt: now,
	}
	s.mu.Unlock()

	s.store.SaveSnapshot(loc, forecast)
	log.Printf("INFO: forecast for %s updated: %d days", loc.Key(), len(forecast.Days))
	return forecast, nil
}

func (s *Service) runCycle() {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	if s.halted.Load() {
		return
	}
	gen := s.generation.Load()

	_, err := s.update(context.Background(), gen)
	if gen != s.generation.Load() {
		// Reconfigure has taken over scheduling.
		return
	}

	switch {
	case err == nil:
		s.reschedule(s.opts.UpdateInterval)
	case errors.Is(err, ErrUnauthorized):
		s.halt(err)
	default:
		log.Printf("ERROR: could not load weather: %v", err)
		s.mu.Lock()
		s.state.LastError = err.Error()
		s.state.UpdatedAt = s.now()
		s.mu.Unlock()
		s.reschedule(s.retryDelay(err))
	}

	s.notify()
}

// retryDelay picks the delay after a failed cycle. A payload we could not
// use is retried on the normal schedule, anything else after RetryDelay.
func (s *Service) retryDelay(err error) time.Duration {
	if errors.Is(err, ErrMalformedPayload) || errors.Is(err, ErrMissingTimeSeries) {
		return s.opts.UpdateInterval
	}
	return s.opts.RetryDelay
}

func (s *Service) halt(err error) {
	s.halted.Store(true)
	s.scheduler.Cancel()

	s.mu.Lock()
	s.credential = ""
	s.state.Status = StatusHalted
	s.state.LastError = err.Error()
	s.state.UpdatedAt = s.now()
	s.mu.Unlock()

	log.Printf("ERROR: load issue, forecast updates stopped: %v", err)
}

func (s *Service) reschedule(delay time.Duration) {
	if err := s.schedule(delay); err != nil {
		log.Printf("ERROR: could not schedule next forecast fetch: %v", err)
	}
}

func (s *Service) schedule(delay time.Duration) error {
	return s.scheduler.Schedule(delay, s.runCycle)
}

func (s *Service) applyLocationState(loc Location) error {
	field, err := missingField(loc)
	if err != nil {
		return err
	}
	if field == "" {
		return nil
	}

	s.mu.Lock()
	s.state = State{
		Status:       StatusUnconfigured,
		MissingField: field,
		UpdatedAt:    s.now(),
	}
	s.mu.Unlock()

	log.Printf("INFO: forecast %s is not configured; waiting for configuration", field)
	s.notify()
	return nil
}

func (s *Service) notify() {
	s.mu.RLock()
	st := s.state
	listeners := make([]func(State), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(st)
	}
}

// missingField returns the json name of the first unset coordinate. Values
// out of range are reported as an error.
func missingField(loc Location) (string, error) {
	err := validate.Struct(loc)
	if err == nil {
		return "", nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "", err
	}
	for _, fe := range verrs {
		if fe.Tag() != "required" {
			return "", fmt.Errorf("invalid %s: %v", fe.Field(), fe.Value())
		}
	}
	return verrs[0].Field(), nil
}
