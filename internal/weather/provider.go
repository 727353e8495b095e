package weather

import (
	"context"
	"time"
)

// Provider abstracts a weather data source (e.g. Open-Meteo, OpenWeatherMap, WeatherAPI).
type Provider interface {
	Name() string
	// Window returns the days this provider covers for a fetch started at now.
	Window(now time.Time, loc Location) DateRange
}

// RangeProvider fetches a whole date range in a single request.
type RangeProvider interface {
	Provider
	FetchRange(ctx context.Context, loc Location, r DateRange) ([]TemperatureRecord, error)
}

// DayProvider fetches one day per request.
type DayProvider interface {
	Provider
	FetchDay(ctx context.Context, loc Location, day time.Time) (TemperatureRecord, error)
}

// CredentialChecker is implemented by providers that need an API key.
type CredentialChecker interface {
	CheckCredentials() error
}

// Store is the contract the in-memory run store must satisfy.
type Store interface {
	SaveRun(run Run)
	GetRun(id string) (Run, error)
	Latest() (Run, error)
}
