package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/i474232898/smhi-forecast/internal/weather"
	"github.com/i474232898/smhi-forecast/internal/weather/providers"
)

// AppConfig holds everything read from the environment.
type AppConfig struct {
	// URLTemplate carries two "%s" slots for longitude and latitude.
	URLTemplate string           `validate:"required"`
	Location    weather.Location `validate:"-"`
	APIKey      string

	UpdateInterval   time.Duration `validate:"gt=0"`
	InitialLoadDelay time.Duration `validate:"gte=0"`
	RetryDelay       time.Duration `validate:"gt=0"`
	MaxNumberOfDays  int           `validate:"gte=0,lte=10"`

	Icons    weather.IconTable
	Timezone *time.Location `validate:"-"`

	// Rendering.
	Title             string
	ShowWindDirection bool
	Fade              bool
	FadePoint         float64 `validate:"lte=1"`
	AnimationSpeed    time.Duration

	HTTPTimeout     time.Duration `validate:"gte=0"`
	FetchMaxRetries int           `validate:"gte=0"`

	// In-memory store retention.
	StoreMaxHistory int           // max number of snapshots (0 = unlimited)
	StoreMaxAge     time.Duration // max age of snapshots (0 = unlimited)

	Port string
}

const defaultURL = providers.DefaultSMHIURL

var validate = validator.New()

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{}

	cfg.URLTemplate = getenvDefault("FORECAST_URL", defaultURL)
	cfg.APIKey = os.Getenv("FORECAST_API_KEY")

	var err error
	if cfg.Location.Lon, err = getenvCoord("FORECAST_LON"); err != nil {
		return nil, err
	}
	if cfg.Location.Lat, err = getenvCoord("FORECAST_LAT"); err != nil {
		return nil, err
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"UPDATE_INTERVAL", "10m", &cfg.UpdateInterval},
		{"INITIAL_LOAD_DELAY", "2500ms", &cfg.InitialLoadDelay},
		{"RETRY_DELAY", "2500ms", &cfg.RetryDelay},
		{"ANIMATION_SPEED", "1s", &cfg.AnimationSpeed},
		{"HTTP_TIMEOUT", "0s", &cfg.HTTPTimeout},
		{"STORE_MAX_AGE", "24h", &cfg.StoreMaxAge},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getenvDefault(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = v
	}

	cfg.MaxNumberOfDays = getenvInt("MAX_NUMBER_OF_DAYS", 5)
	cfg.FetchMaxRetries = getenvInt("FETCH_MAX_RETRIES", 0)
	cfg.StoreMaxHistory = getenvInt("STORE_MAX_HISTORY", 144) // 24h at 10-minute intervals

	cfg.Title = getenvDefault("TITLE", "Weather Forecast")
	cfg.ShowWindDirection = getenvBool("SHOW_WIND_DIRECTION", false)
	cfg.Fade = getenvBool("FADE", true)
	cfg.FadePoint, err = strconv.ParseFloat(getenvDefault("FADE_POINT", "0.25"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid FADE_POINT: %w", err)
	}

	tz, err := time.LoadLocation(getenvDefault("TIMEZONE", "Local"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	cfg.Timezone = tz

	icons, err := loadIcons(os.Getenv("ICON_TABLE_FILE"))
	if err != nil {
		return nil, err
	}
	cfg.Icons = icons

	cfg.Port = getenvDefault("PORT", "8080")

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if strings.Count(cfg.URLTemplate, "%s") != 2 {
		return nil, fmt.Errorf("FORECAST_URL must contain two %%s placeholders")
	}

	return cfg, nil
}

// loadIcons merges a JSON icon table ({"1": ["day", "night"], ...}) from path
// over the defaults.
func loadIcons(path string) (weather.IconTable, error) {
	icons := weather.DefaultIcons()
	if path == "" {
		return icons, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading ICON_TABLE_FILE: %w", err)
	}
	var override weather.IconTable
	if err := json.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parsing ICON_TABLE_FILE: %w", err)
	}
	return icons.Merge(override), nil
}

// getenvCoord parses a coordinate. Unset or empty means 0, which the
// service treats as "not configured".
func getenvCoord(key string) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}
