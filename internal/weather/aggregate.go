package weather

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrMissingTimeSeries is returned when the payload has no timeSeries field.
	ErrMissingTimeSeries = errors.New("payload has no timeSeries")
	// ErrMalformedPayload is returned when the payload is not valid JSON of the expected shape.
	ErrMalformedPayload = errors.New("malformed forecast payload")
)

// Parameter names in the point-forecast feed.
const (
	paramSymbol        = "Wsymb2"
	paramTemperature   = "t"
	paramWindSpeed     = "ws"
	paramWindDirection = "wd"
	paramPrecipitation = "pmean"
)

// AggregateOptions controls the aggregation window and icon selection.
type AggregateOptions struct {
	// MaxDays is the number of whole days after today to include.
	MaxDays int
	Icons   IconTable
	// TZ is the zone used for calendar days, noon and 23:59. Defaults to time.Local.
	TZ *time.Location
}

// ParseTimeSeries decodes a point-forecast payload.
func ParseTimeSeries(data []byte) (*TimeSeries, error) {
	var ts TimeSeries
	if err := json.Unmarshal(data, &ts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if ts.Entries == nil {
		return nil, ErrMissingTimeSeries
	}
	return &ts, nil
}

// Aggregate turns a time-ordered series into current, hourly and day/night
// summaries relative to now. It does not depend on any state outside its
// arguments, so the same input always yields the same Forecast.
func Aggregate(ts *TimeSeries, now time.Time, opts AggregateOptions) (Forecast, error) {
	if ts == nil || ts.Entries == nil {
		return Forecast{}, ErrMissingTimeSeries
	}

	tz := opts.TZ
	if tz == nil {
		tz = time.Local
	}
	icons := opts.Icons
	if icons == nil {
		icons = DefaultIcons()
	}
	maxDays := opts.MaxDays
	if maxDays < 0 {
		maxDays = 0
	}

	now = now.In(tz)
	today := startOfDay(now)
	cutoff := today.AddDate(0, 0, maxDays+1)

	f := Forecast{
		GeneratedAt: now,
		Days:        make([]DaySummary, 0, maxDays+1),
	}

	var (
		current  Observation
		closest  time.Duration
		seen     bool
		dayKey   string
		rainAcc  float64
		dayIndex = -1
	)

	for _, entry := range ts.Entries {
		obs := newObservation(entry, tz)

		if !obs.Time.Before(cutoff) {
			break
		}

		if d := absDuration(obs.Time.Sub(now)); !seen || d < closest {
			seen = true
			closest = d
			current = obs
		}

		offset := obs.Time.Sub(now)
		if h := int(offset / time.Hour); offset > -time.Hour && h < HoursAhead {
			o := obs
			f.Hourly[h] = &o
		}

		// Days before today only feed current and hourly.
		if obs.Time.Before(today) {
			continue
		}

		if key := obs.Time.Format("2006-01-02"); key != dayKey {
			dayKey = key
			dayIndex++
			rainAcc = 0
			f.Days = append(f.Days, DaySummary{
				Date:  startOfDay(obs.Time),
				Label: obs.Day,
			})
		}

		if obs.Precipitation != nil {
			rainAcc += *obs.Precipitation
		}

		day := &f.Days[dayIndex]
		day.RainTotal = rainAcc

		noon := atClock(obs.Time, 12, 0)
		night := atClock(obs.Time, 23, 59)
		toNoon := absDuration(obs.Time.Sub(noon))
		toNight := absDuration(obs.Time.Sub(night))

		if day.Day.Time.IsZero() {
			day.Day = newSlot(obs, icons, SlotDay, rainAcc, toNoon)
			day.Night = newSlot(obs, icons, SlotNight, rainAcc, toNight)
			continue
		}
		if toNoon < day.Day.Distance {
			day.Day = newSlot(obs, icons, SlotDay, rainAcc, toNoon)
		}
		if toNight < day.Night.Distance {
			day.Night = newSlot(obs, icons, SlotNight, rainAcc, toNight)
		}
	}

	if seen {
		f.Current = &current
		slot := SlotDay
		if isNight(current.Time) {
			slot = SlotNight
		}
		f.CurrentIcon = icons.Icon(current.Symbol, slot)
	}

	return f, nil
}

func newObservation(entry TimeEntry, tz *time.Location) Observation {
	t := entry.ValidTime.In(tz)
	obs := Observation{
		Time:   t,
		Day:    t.Format("Mon"),
		Symbol: entry.Param(paramSymbol),
	}
	if v := entry.Param(paramTemperature).Number; v != nil {
		temp := int(math.Round(*v))
		obs.Temperature = &temp
	}
	obs.WindSpeed = entry.Param(paramWindSpeed).Number
	obs.WindDirection = entry.Param(paramWindDirection).Number
	obs.Precipitation = entry.Param(paramPrecipitation).Number
	return obs
}

func newSlot(obs Observation, icons IconTable, slot int, rainAcc float64, distance time.Duration) DaySlot {
	return DaySlot{
		Observation: obs,
		Icon:        icons.Icon(obs.Symbol, slot),
		RainAcc:     rainAcc,
		Distance:    distance,
	}
}

// isNight reports whether t is closer to 23:59 (of its own or the previous
// date) than to noon.
func isNight(t time.Time) bool {
	toNoon := absDuration(t.Sub(atClock(t, 12, 0)))
	night := atClock(t, 23, 59)
	toNight := absDuration(t.Sub(night))
	if prev := absDuration(t.Sub(night.AddDate(0, 0, -1))); prev < toNight {
		toNight = prev
	}
	return toNight < toNoon
}

func startOfDay(t time.Time) time.Time {
	return atClock(t, 0, 0)
}

func atClock(t time.Time, hour, minute int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, t.Location())
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
