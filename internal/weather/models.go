package weather

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// HoursAhead is the size of the hourly window starting at now.
const HoursAhead = 24

// Location is the forecast point. A zero Lon or Lat means "not configured".
type Location struct {
	Lon float64 `json:"lon" validate:"required,gte=-180,lte=180"`
	Lat float64 `json:"lat" validate:"required,gte=-90,lte=90"`
}

// Key returns a canonical string key for indexing this location in stores.
func (l Location) Key() string {
	return fmt.Sprintf("%.4f,%.4f", l.Lon, l.Lat)
}

// Value is a single parameter value from the feed. It is either a number,
// a non-numeric text, or null.
type Value struct {
	Number *float64
	Text   string
}

// Num returns a numeric Value.
func Num(f float64) Value {
	return Value{Number: &f}
}

// IsNull reports whether the value carries neither a number nor text.
func (v Value) IsNull() bool {
	return v.Number == nil && v.Text == ""
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = Value{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			*v = Num(f)
			return nil
		}
		*v = Value{Text: s}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = Num(f)
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch {
	case v.Number != nil:
		return json.Marshal(*v.Number)
	case v.Text != "":
		return json.Marshal(v.Text)
	default:
		return []byte("null"), nil
	}
}

// TimeSeries is the subset of the point-forecast payload we rely on.
type TimeSeries struct {
	ApprovedTime  time.Time   `json:"approvedTime"`
	ReferenceTime time.Time   `json:"referenceTime"`
	Entries       []TimeEntry `json:"timeSeries"`
}

// TimeEntry is one forecast step.
type TimeEntry struct {
	ValidTime  time.Time   `json:"validTime"`
	Parameters []Parameter `json:"parameters"`
}

// Parameter is a named forecast parameter.
type Parameter struct {
	Name      string  `json:"name"`
	LevelType string  `json:"levelType,omitempty"`
	Level     int     `json:"level,omitempty"`
	Unit      string  `json:"unit,omitempty"`
	Values    []Value `json:"values"`
}

// Param returns the first value of the named parameter, or a null Value.
func (e TimeEntry) Param(name string) Value {
	for _, p := range e.Parameters {
		if p.Name == name && len(p.Values) > 0 {
			return p.Values[0]
		}
	}
	return Value{}
}

// Observation is a single timestamped reading extracted from a TimeEntry.
type Observation struct {
	Time          time.Time `json:"time"`
	Day           string    `json:"day"`
	Symbol        Value     `json:"symbol"`
	Temperature   *int      `json:"temperature,omitempty"`
	WindSpeed     *float64  `json:"windSpeed,omitempty"`
	WindDirection *float64  `json:"windDirection,omitempty"`
	Precipitation *float64  `json:"precipitation,omitempty"`
}

// DaySlot is an observation chosen to represent the day or the night of a date.
type DaySlot struct {
	Observation
	Icon     string        `json:"icon"`
	RainAcc  float64       `json:"rainAcc"`
	Distance time.Duration `json:"distance"`
}

// DaySummary pairs the day and night slots for one calendar date.
type DaySummary struct {
	Date      time.Time `json:"date"`
	Label     string    `json:"label"`
	Day       DaySlot   `json:"day"`
	Night     DaySlot   `json:"night"`
	RainTotal float64   `json:"rainTotal"`
}

// Forecast is the aggregated view produced from one fetched time series.
type Forecast struct {
	ID          uuid.UUID                `json:"id"`
	GeneratedAt time.Time                `json:"generatedAt"`
	Location    Location                 `json:"location"`
	Current     *Observation             `json:"current,omitempty"`
	CurrentIcon string                   `json:"currentIcon,omitempty"`
	Hourly      [HoursAhead]*Observation `json:"hourly"`
	Days        []DaySummary             `json:"days"`
}

// Status describes where the controller is in its lifecycle.
type Status string

const (
	StatusUnconfigured Status = "unconfigured"
	StatusLoading      Status = "loading"
	StatusReady        Status = "ready"
	StatusHalted       Status = "halted"
)

// State is the snapshot handed to the rendering side.
type State struct {
	Status       Status    `json:"status"`
	MissingField string    `json:"missingField,omitempty"`
	Forecast     *Forecast `json:"forecast,omitempty"`
	LastError    string    `json:"lastError,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Loaded reports whether a fetch cycle has completed in a way that should
// stop the "loading" display.
func (s State) Loaded() bool {
	return s.Status == StatusReady || s.Status == StatusHalted
}
