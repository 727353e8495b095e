package config

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/i474232898/hightemps/internal/weather"
)

type AppConfig struct {
	// Location the temperatures are fetched for. Coordinates default to
	// Portland, OR (97212) and are replaced by geocoding when a key is set.
	ZipCode   string  `envconfig:"ZIP_CODE" default:"97212" validate:"required,numeric,len=5"`
	Latitude  float64 `envconfig:"LATITUDE" default:"45.5372" validate:"gte=-90,lte=90"`
	Longitude float64 `envconfig:"LONGITUDE" default:"-122.6508" validate:"gte=-180,lte=180"`
	Timezone  string  `envconfig:"TIMEZONE" default:"America/Los_Angeles" validate:"required"`

	// Source selects the provider used by the CLI when none is given.
	Source string `envconfig:"SOURCE" default:"archive" validate:"oneof=archive forecast history"`

	OpenWeatherAPIKey string `envconfig:"OPENWEATHER_API_KEY"`
	WeatherAPIKey     string `envconfig:"WEATHERAPI_API_KEY"`
	GeocoderAPIKey    string `envconfig:"GEOCODER_API_KEY"`

	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"15s" validate:"gt=0"`

	// Pacing of multi-day fetches.
	RequestDelay         time.Duration `envconfig:"REQUEST_DELAY" default:"1s" validate:"gte=0"`
	RateLimitDefaultWait time.Duration `envconfig:"RATE_LIMIT_DEFAULT_WAIT" default:"60s" validate:"gt=0"`
	RateLimitMaxRetries  int           `envconfig:"RATE_LIMIT_MAX_RETRIES" default:"5" validate:"min=1"`

	ForecastDays int `envconfig:"FORECAST_DAYS" default:"5" validate:"min=1,max=5"`
	HistoryDays  int `envconfig:"HISTORY_DAYS" default:"7" validate:"min=1,max=366"`

	// In-memory run retention.
	StoreMaxRuns int           `envconfig:"STORE_MAX_RUNS" default:"20" validate:"gte=0"` // 0 = unlimited
	StoreMaxAge  time.Duration `envconfig:"STORE_MAX_AGE" default:"24h" validate:"gte=0"` // 0 = unlimited

	Port     string `envconfig:"PORT" default:"8080" validate:"required,numeric"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
}

var validate = validator.New()

// Load reads configuration from a .env file (if any) and the environment,
// applying defaults and validating the result.
func Load() (*AppConfig, error) {
	// A missing .env file is fine; real environment variables win.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	return cfg, nil
}

// Location builds the weather location from the config.
func (c *AppConfig) Location() (weather.Location, error) {
	tz, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return weather.Location{}, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	return weather.Location{
		ZipCode:  c.ZipCode,
		Lat:      c.Latitude,
		Lon:      c.Longitude,
		Timezone: tz,
	}, nil
}

// LoopConfig returns the fetch pacing settings.
func (c *AppConfig) LoopConfig() weather.LoopConfig {
	return weather.LoopConfig{
		RequestDelay:        c.RequestDelay,
		DefaultRetryAfter:   c.RateLimitDefaultWait,
		MaxRateLimitRetries: c.RateLimitMaxRetries,
	}
}
