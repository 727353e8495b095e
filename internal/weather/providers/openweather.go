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

// OpenWeatherForecastURL is the 5 day / 3 hour forecast endpoint.
const OpenWeatherForecastURL = "https://api.openweathermap.org/data/2.5/forecast"

// openWeatherHorizon is the number of days the free forecast tier covers.
const openWeatherHorizon = 5

// OpenWeatherProvider fetches the 3-hour forecast from OpenWeatherMap and
// reduces it to one high per local calendar day.
type OpenWeatherProvider struct {
	name    string
	apiKey  string
	baseURL string
	days    int
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenWeatherProvider(client *http.Client, apiKey string, days int) *OpenWeatherProvider {
	if days <= 0 || days > openWeatherHorizon {
		days = openWeatherHorizon
	}
	return &OpenWeatherProvider{
		name:    "openweathermap",
		apiKey:  apiKey,
		baseURL: OpenWeatherForecastURL,
		days:    days,
		httpCfg: defaultHTTPConfig(client),
		circuit: newCircuitBreaker("openweather"),
	}
}

// WithBaseURL points the provider at a different endpoint.
func (p *OpenWeatherProvider) WithBaseURL(u string) *OpenWeatherProvider {
	p.baseURL = u
	return p
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

func (p *OpenWeatherProvider) CheckCredentials() error {
	if p.apiKey == "" {
		return weather.ErrMissingCredential
	}
	return nil
}

// Window is the forecast horizon starting today.
func (p *OpenWeatherProvider) Window(now time.Time, loc weather.Location) weather.DateRange {
	return weather.ForecastWindow(now, loc.TZ(), p.days)
}

type openWeatherForecastResponse struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			TempMax *float64 `json:"temp_max"`
		} `json:"main"`
	} `json:"list"`
	City struct {
		Timezone *int `json:"timezone"`
	} `json:"city"`
}

func (p *OpenWeatherProvider) FetchRange(ctx context.Context, loc weather.Location, r weather.DateRange) ([]weather.TemperatureRecord, error) {
	if err := p.CheckCredentials(); err != nil {
		return nil, err
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("appid", p.apiKey)
		values.Set("units", "imperial")
		if loc.ZipCode != "" {
			values.Set("zip", loc.ZipCode+",us")
		} else {
			values.Set("lat", fmt.Sprintf("%f", loc.Lat))
			values.Set("lon", fmt.Sprintf("%f", loc.Lon))
		}

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, err
	}

	var payload openWeatherForecastResponse
	if err := decodeJSON(resp, &payload); err != nil {
		return nil, err
	}

	// Group in the city's own offset when the payload carries one.
	tz := loc.TZ()
	if payload.City.Timezone != nil {
		tz = time.FixedZone("city", *payload.City.Timezone)
	}

	buckets := make([]weather.Bucket, 0, len(payload.List))
	for _, item := range payload.List {
		if item.Main.TempMax == nil {
			continue
		}
		buckets = append(buckets, weather.Bucket{
			Time:    time.Unix(item.Dt, 0).UTC(),
			TempMax: *item.Main.TempMax,
		})
	}

	// The payload runs past the requested window and usually starts mid-today.
	return r.Filter(weather.NormalizeBuckets(buckets, tz)), nil
}
