package weather

import (
	"context"
	"errors"
	"time"
)

// ErrUnauthorized is returned by a Provider when the upstream rejects the
// request with HTTP 401. It ends the fetch loop.
var ErrUnauthorized = errors.New("upstream rejected credentials")

// Provider abstracts the forecast source (e.g. SMHI point forecast).
type Provider interface {
	Name() string
	Fetch(ctx context.Context, loc Location, credential string) (*TimeSeries, error)
}

// Store is the contract the in-memory snapshot history must satisfy.
type Store interface {
	SaveSnapshot(loc Location, snapshot Forecast)
	GetLatest(loc Location) (Forecast, error)
	GetRange(loc Location, from, to time.Time) ([]Forecast, error)
}

// Scheduler runs fn once after delay. Scheduling replaces any pending run.
type Scheduler interface {
	Schedule(delay time.Duration, fn func()) error
	Cancel()
}
