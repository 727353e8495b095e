package providers

import (
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	"github.com/i474232898/hightemps/internal/weather"
)

// Settings carries the per-provider configuration.
type Settings struct {
	OpenWeatherAPIKey string
	WeatherAPIKey     string
	ForecastDays      int
	HistoryDays       int
}

// NewHTTPClient returns the shared client for outbound provider calls. It
// negotiates gzip transparently.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: gzhttp.Transport(http.DefaultTransport),
	}
}

// Registry maps every source to its provider adapter.
func Registry(client *http.Client, s Settings, logger *zap.Logger) map[weather.Source]weather.Provider {
	return map[weather.Source]weather.Provider{
		weather.SourceArchive:  NewOpenMeteoProvider(client, logger),
		weather.SourceForecast: NewOpenWeatherProvider(client, s.OpenWeatherAPIKey, s.ForecastDays),
		weather.SourceHistory:  NewWeatherAPIProvider(client, s.WeatherAPIKey, s.HistoryDays),
	}
}
