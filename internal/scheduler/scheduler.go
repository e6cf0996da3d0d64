package scheduler

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

const fetchTag = "forecast-fetch"

// minDelay is the shortest delay handed to gocron, which rejects zero intervals.
const minDelay = time.Millisecond

// Scheduler keeps at most one pending delayed run. Scheduling a new run
// replaces the pending one.
type Scheduler struct {
	mu        sync.Mutex
	scheduler *gocron.Scheduler
}

// New creates a new Scheduler and starts the underlying gocron scheduler.
func New() *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	s.StartAsync()
	return &Scheduler{scheduler: s}
}

// Schedule runs fn once after delay, replacing any pending run.
func (s *Scheduler) Schedule(delay time.Duration, fn func()) error {
	if delay < minDelay {
		delay = minDelay
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removePending()

	_, err := s.scheduler.Every(delay).
		WaitForSchedule().
		LimitRunsTo(1).
		Tag(fetchTag).
		Do(fn)
	if err != nil {
		return err
	}

	log.Printf("DEBUG: scheduler: next fetch in %s", delay)
	return nil
}

// Cancel drops the pending run, if any.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removePending()
}

// Stop stops the scheduler and cancels any future runs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Scheduler) removePending() {
	err := s.scheduler.RemoveByTag(fetchTag)
	if err != nil && !errors.Is(err, gocron.ErrJobNotFoundWithTag) {
		log.Printf("scheduler: removing pending fetch: %v", err)
	}
}
