package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/i474232898/hightemps/internal/weather"
)

// OpenMeteoArchiveURL is the historical daily archive endpoint.
const OpenMeteoArchiveURL = "https://archive-api.open-meteo.com/v1/archive"

// OpenMeteoProvider fetches last year's daily maxima from the Open-Meteo
// archive in a single request. No API key is needed.
type OpenMeteoProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewOpenMeteoProvider(client *http.Client, logger *zap.Logger) *OpenMeteoProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenMeteoProvider{
		name:    "openmeteo",
		baseURL: OpenMeteoArchiveURL,
		httpCfg: defaultHTTPConfig(client),
		circuit: newCircuitBreaker("openmeteo"),
		logger:  logger,
	}
}

// WithBaseURL points the provider at a different endpoint.
func (p *OpenMeteoProvider) WithBaseURL(u string) *OpenMeteoProvider {
	p.baseURL = u
	return p
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

// Window is the previous calendar year.
func (p *OpenMeteoProvider) Window(now time.Time, loc weather.Location) weather.DateRange {
	return weather.LastCalendarYear(now, loc.TZ())
}

type openMeteoArchiveResponse struct {
	Daily struct {
		Time    []string   `json:"time"`
		TempMax []*float64 `json:"temperature_2m_max"`
	} `json:"daily"`
}

func (p *OpenMeteoProvider) FetchRange(ctx context.Context, loc weather.Location, r weather.DateRange) ([]weather.TemperatureRecord, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", loc.Lat))
		values.Set("longitude", fmt.Sprintf("%f", loc.Lon))
		values.Set("start_date", r.Start.Format("2006-01-02"))
		values.Set("end_date", r.End.Format("2006-01-02"))
		values.Set("daily", "temperature_2m_max")
		values.Set("temperature_unit", "fahrenheit")
		values.Set("timezone", loc.TZ().String())

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, err
	}

	var payload openMeteoArchiveResponse
	if err := decodeJSON(resp, &payload); err != nil {
		return nil, err
	}

	records, err := weather.NormalizeDaily(payload.Daily.Time, payload.Daily.TempMax)
	if err != nil {
		// Mismatched series yield no data rather than failing the fetch.
		p.logger.Warn("discarding archive payload",
			zap.Int("times", len(payload.Daily.Time)),
			zap.Int("temperatures", len(payload.Daily.TempMax)),
			zap.Error(err))
		return []weather.TemperatureRecord{}, nil
	}

	return weather.CompleteYear(records), nil
}
