package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/hightemps/internal/weather"
)

// WeatherAPIHistoryURL is the per-day observation history endpoint.
const WeatherAPIHistoryURL = "https://api.weatherapi.com/v1/history.json"

// WeatherAPIProvider fetches one day of observed history per request from WeatherAPI.com.
type WeatherAPIProvider struct {
	name    string
	apiKey  string
	baseURL string
	days    int
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewWeatherAPIProvider(client *http.Client, apiKey string, days int) *WeatherAPIProvider {
	if days <= 0 {
		days = 7
	}
	return &WeatherAPIProvider{
		name:    "weatherapi",
		apiKey:  apiKey,
		baseURL: WeatherAPIHistoryURL,
		days:    days,
		httpCfg: defaultHTTPConfig(client),
		circuit: newCircuitBreaker("weatherapi"),
	}
}

// WithBaseURL points the provider at a different endpoint.
func (p *WeatherAPIProvider) WithBaseURL(u string) *WeatherAPIProvider {
	p.baseURL = u
	return p
}

func (p *WeatherAPIProvider) Name() string {
	return p.name
}

func (p *WeatherAPIProvider) CheckCredentials() error {
	if p.apiKey == "" {
		return weather.ErrMissingCredential
	}
	return nil
}

// Window is the trailing history window ending yesterday.
func (p *WeatherAPIProvider) Window(now time.Time, loc weather.Location) weather.DateRange {
	return weather.TrailingWindow(now, loc.TZ(), p.days)
}

type weatherAPIHistoryResponse struct {
	Forecast struct {
		ForecastDay []struct {
			Date string `json:"date"`
			Day  *struct {
				MaxTempF *float64 `json:"maxtemp_f"`
			} `json:"day"`
		} `json:"forecastday"`
	} `json:"forecast"`
}

// FetchDay returns the observed high for day, or an unavailable sentinel when
// the payload has no maximum for it.
func (p *WeatherAPIProvider) FetchDay(ctx context.Context, loc weather.Location, day time.Time) (weather.TemperatureRecord, error) {
	if err := p.CheckCredentials(); err != nil {
		return weather.TemperatureRecord{}, err
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("key", p.apiKey)
		// WeatherAPI uses "q" for location; it accepts a ZIP code or "lat,lon".
		if loc.ZipCode != "" {
			values.Set("q", loc.ZipCode)
		} else {
			values.Set("q", fmt.Sprintf("%f,%f", loc.Lat, loc.Lon))
		}
		values.Set("dt", day.Format("2006-01-02"))

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.TemperatureRecord{}, err
	}

	var payload weatherAPIHistoryResponse
	if err := decodeJSON(resp, &payload); err != nil {
		return weather.TemperatureRecord{}, err
	}

	days := payload.Forecast.ForecastDay
	if len(days) == 0 || days[0].Day == nil || days[0].Day.MaxTempF == nil {
		return weather.UnavailableRecord(day), nil
	}
	return weather.NewRecord(day, *days[0].Day.MaxTempF), nil
}
