package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/hightemps/internal/store"
	"github.com/i474232898/hightemps/internal/weather"
)

var portland = weather.Location{ZipCode: "97212", Lat: 45.5372, Lon: -122.6508, Timezone: time.UTC}

func jsonServer(t *testing.T, status int, body string, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenMeteo_FetchRange(t *testing.T) {
	body := `{"daily":{"time":["2022-12-31","2023-01-01","2023-01-02","2023-01-03"],"temperature_2m_max":[39.9,45.2,null,47.5]}}`
	srv := jsonServer(t, http.StatusOK, body, func(r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "2023-01-01", q.Get("start_date"))
		assert.Equal(t, "2023-12-31", q.Get("end_date"))
		assert.Equal(t, "temperature_2m_max", q.Get("daily"))
		assert.Equal(t, "fahrenheit", q.Get("temperature_unit"))
		assert.Equal(t, "45.537200", q.Get("latitude"))
	})

	p := NewOpenMeteoProvider(srv.Client(), nil).WithBaseURL(srv.URL)
	rng := p.Window(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), portland)

	records, err := p.FetchRange(context.Background(), portland, rng)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "1/1/2023", records[0].Date)
	assert.Equal(t, 45, *records[0].HighTemp)
	assert.Equal(t, "2023-01-03", records[1].SortDate)
	assert.Equal(t, 48, *records[1].HighTemp)
}

func TestOpenMeteo_MismatchedArraysYieldNothing(t *testing.T) {
	body := `{"daily":{"time":["2023-01-01","2023-01-02"],"temperature_2m_max":[45.2]}}`
	srv := jsonServer(t, http.StatusOK, body, nil)

	p := NewOpenMeteoProvider(srv.Client(), nil).WithBaseURL(srv.URL)
	records, err := p.FetchRange(context.Background(), portland, weather.DateRange{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestOpenMeteo_MalformedPayload(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, `{"daily":`, nil)

	p := NewOpenMeteoProvider(srv.Client(), nil).WithBaseURL(srv.URL)
	_, err := p.FetchRange(context.Background(), portland, weather.DateRange{})
	assert.ErrorIs(t, err, weather.ErrMalformedPayload)
}

func TestOpenWeather_FetchRange(t *testing.T) {
	// Two local days at UTC-7: buckets at 15:00Z and 03:00Z next day both fall on June 1.
	body := `{
		"city": {"timezone": -25200},
		"list": [
			{"dt": 1717254000, "main": {"temp_max": 61.3}},
			{"dt": 1717297200, "main": {"temp_max": 66.8}},
			{"dt": 1717340400, "main": {"temp_max": 58.1}},
			{"dt": 1717351200, "main": {}},
			{"dt": 1717362000, "main": {"temp_max": 72.4}}
		]
	}`
	srv := jsonServer(t, http.StatusOK, body, func(r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "imperial", q.Get("units"))
		assert.Equal(t, "97212,us", q.Get("zip"))
		assert.Equal(t, "secret", q.Get("appid"))
	})

	p := NewOpenWeatherProvider(srv.Client(), "secret", 5).WithBaseURL(srv.URL)
	records, err := p.FetchRange(context.Background(), portland, weather.DateRange{})
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "2024-06-01", records[0].SortDate)
	assert.Equal(t, 67, *records[0].HighTemp)
	assert.Equal(t, "2024-06-02", records[1].SortDate)
	assert.Equal(t, 72, *records[1].HighTemp)
}

func TestOpenWeather_FetchRangeKeepsRequestedDays(t *testing.T) {
	// Noon UTC on June 1 through June 4.
	body := `{
		"city": {"timezone": 0},
		"list": [
			{"dt": 1717243200, "main": {"temp_max": 60}},
			{"dt": 1717329600, "main": {"temp_max": 61}},
			{"dt": 1717416000, "main": {"temp_max": 62}},
			{"dt": 1717502400, "main": {"temp_max": 63}}
		]
	}`
	srv := jsonServer(t, http.StatusOK, body, nil)

	p := NewOpenWeatherProvider(srv.Client(), "secret", 2).WithBaseURL(srv.URL)
	rng := p.Window(time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC), portland)

	records, err := p.FetchRange(context.Background(), portland, rng)
	require.NoError(t, err)
	require.Len(t, records, len(rng.Days()))
	assert.Equal(t, "2024-06-01", records[0].SortDate)
	assert.Equal(t, "2024-06-02", records[1].SortDate)
	assert.Equal(t, 61, *records[1].HighTemp)
}

func TestOpenWeather_MissingKey(t *testing.T) {
	var hits atomic.Int32
	srv := jsonServer(t, http.StatusOK, `{}`, func(*http.Request) { hits.Add(1) })

	p := NewOpenWeatherProvider(srv.Client(), "", 5).WithBaseURL(srv.URL)
	assert.ErrorIs(t, p.CheckCredentials(), weather.ErrMissingCredential)

	_, err := p.FetchRange(context.Background(), portland, weather.DateRange{})
	assert.ErrorIs(t, err, weather.ErrMissingCredential)
	assert.Zero(t, hits.Load())
}

func TestOpenWeather_WindowClampedToHorizon(t *testing.T) {
	p := NewOpenWeatherProvider(http.DefaultClient, "k", 10)
	rng := p.Window(time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC), portland)
	assert.Len(t, rng.Days(), openWeatherHorizon)
}

func TestWeatherAPI_FetchDay(t *testing.T) {
	body := `{"forecast":{"forecastday":[{"date":"2024-03-01","day":{"maxtemp_f":52.5}}]}}`
	srv := jsonServer(t, http.StatusOK, body, func(r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "97212", q.Get("q"))
		assert.Equal(t, "2024-03-01", q.Get("dt"))
		assert.Equal(t, "secret", q.Get("key"))
	})

	p := NewWeatherAPIProvider(srv.Client(), "secret", 7).WithBaseURL(srv.URL)
	rec, err := p.FetchDay(context.Background(), portland, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, weather.StatusOK, rec.Status)
	assert.Equal(t, 53, *rec.HighTemp)
	assert.Equal(t, "3/1/2024", rec.Date)
}

func TestWeatherAPI_MissingFieldIsUnavailable(t *testing.T) {
	for _, body := range []string{
		`{"forecast":{"forecastday":[{"date":"2024-03-01","day":{}}]}}`,
		`{"forecast":{"forecastday":[{"date":"2024-03-01"}]}}`,
		`{"forecast":{"forecastday":[]}}`,
		`{}`,
	} {
		srv := jsonServer(t, http.StatusOK, body, nil)
		p := NewWeatherAPIProvider(srv.Client(), "secret", 7).WithBaseURL(srv.URL)

		rec, err := p.FetchDay(context.Background(), portland, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err, body)
		assert.Equal(t, weather.StatusUnavailable, rec.Status, body)
		assert.Equal(t, weather.SentinelUnavailable, rec.Display(), body)
	}
}

func TestWeatherAPI_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	p := NewWeatherAPIProvider(srv.Client(), "secret", 7).WithBaseURL(srv.URL)
	_, err := p.FetchDay(context.Background(), portland, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	var rl *weather.RateLimitedError
	require.True(t, errors.As(err, &rl), "got %v", err)
	assert.Equal(t, 7*time.Second, rl.RetryAfter)
}

func TestWeatherAPI_ClientError(t *testing.T) {
	srv := jsonServer(t, http.StatusBadRequest, `{"error":{"message":"bad"}}`, nil)

	p := NewWeatherAPIProvider(srv.Client(), "secret", 7).WithBaseURL(srv.URL)
	_, err := p.FetchDay(context.Background(), portland, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	var se *weather.HTTPStatusError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, http.StatusBadRequest, se.Code)
}

func TestWeatherAPI_WindowEndsYesterday(t *testing.T) {
	p := NewWeatherAPIProvider(http.DefaultClient, "k", 3)
	rng := p.Window(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), portland)
	assert.Equal(t, time.Date(2024, 2, 27, 0, 0, 0, 0, time.UTC), rng.Start)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), rng.End)
}

func TestDoRequest_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"forecast":{"forecastday":[{"day":{"maxtemp_f":40}}]}}`))
	}))
	t.Cleanup(srv.Close)

	p := NewWeatherAPIProvider(srv.Client(), "secret", 7).WithBaseURL(srv.URL)
	p.httpCfg.Backoff.InitialInterval = time.Millisecond
	p.httpCfg.Backoff.MaxInterval = 5 * time.Millisecond

	rec, err := p.FetchDay(context.Background(), portland, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 40, *rec.HighTemp)
	assert.Equal(t, int32(3), hits.Load())
}

func TestDoRequest_ServerErrorsExhausted(t *testing.T) {
	srv := jsonServer(t, http.StatusInternalServerError, ``, nil)

	p := NewOpenMeteoProvider(srv.Client(), nil).WithBaseURL(srv.URL)
	p.httpCfg.Backoff.InitialInterval = time.Millisecond
	p.httpCfg.Backoff.MaxRetries = 1

	_, err := p.FetchRange(context.Background(), portland, weather.DateRange{})
	var se *weather.HTTPStatusError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, http.StatusInternalServerError, se.Code)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"30", 30 * time.Second, true},
		{"0", 0, true},
		{"", 0, false},
		{"-5", 0, false},
		{"soon", 0, false},
		{now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second, true},
		{now.Add(-time.Minute).Format(http.TimeFormat), 0, true},
	}
	for _, tt := range tests {
		got, ok := parseRetryAfter(tt.in, now)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}

func TestWeatherAPI_RetryAfterZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	p := NewWeatherAPIProvider(srv.Client(), "secret", 7).WithBaseURL(srv.URL)
	_, err := p.FetchDay(context.Background(), portland, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	var rl *weather.RateLimitedError
	require.True(t, errors.As(err, &rl), "got %v", err)
	assert.True(t, rl.Explicit)
	assert.Zero(t, rl.Wait(time.Minute))
}

func TestCircuitBreaker_CountsOnlyUpstreamFailures(t *testing.T) {
	cb := newCircuitBreaker("test")

	for i := 0; i < 2*breakerTripFailures; i++ {
		_, _ = cb.Execute(func() (interface{}, error) {
			return nil, &weather.HTTPStatusError{Code: http.StatusBadRequest}
		})
		_, _ = cb.Execute(func() (interface{}, error) {
			return nil, &weather.RateLimitedError{}
		})
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())

	for i := 0; i < breakerTripFailures; i++ {
		_, _ = cb.Execute(func() (interface{}, error) {
			return nil, fmt.Errorf("%w: %w", errServerError, &weather.HTTPStatusError{Code: http.StatusBadGateway})
		})
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())
}

func TestHistoryRun_FailedDaysDoNotHaltLaterDays(t *testing.T) {
	tests := []struct {
		status int
		hits   int32
	}{
		{http.StatusBadRequest, 10},
		// Each failing day is one attempt plus three backoff retries.
		{http.StatusServiceUnavailable, 6*4 + 4},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				dt := r.URL.Query().Get("dt")
				if dt <= "2024-03-06" {
					w.WriteHeader(tt.status)
					return
				}
				_, _ = fmt.Fprintf(w, `{"forecast":{"forecastday":[{"date":%q,"day":{"maxtemp_f":50}}]}}`, dt)
			}))
			t.Cleanup(srv.Close)

			p := NewWeatherAPIProvider(srv.Client(), "secret", 10).WithBaseURL(srv.URL)
			p.httpCfg.Backoff.InitialInterval = time.Millisecond
			p.httpCfg.Backoff.MaxInterval = time.Millisecond

			svc := weather.NewService(store.NewMemoryStore(0, 0), portland,
				map[weather.Source]weather.Provider{weather.SourceHistory: p},
				weather.LoopConfig{},
				weather.WithClock(func() time.Time { return time.Date(2024, 3, 11, 8, 0, 0, 0, time.UTC) }))

			run, err := svc.Fetch(context.Background(), weather.SourceHistory)
			require.NoError(t, err)
			require.Len(t, run.Records, 10)

			for _, rec := range run.Records[:6] {
				assert.Equal(t, weather.StatusError, rec.Status, rec.SortDate)
				assert.Contains(t, rec.Reason, fmt.Sprintf("HTTP %d", tt.status), rec.SortDate)
			}
			for _, rec := range run.Records[6:] {
				assert.Equal(t, weather.StatusOK, rec.Status, rec.SortDate)
				assert.Equal(t, 50, *rec.HighTemp, rec.SortDate)
			}
			assert.Equal(t, tt.hits, hits.Load())
		})
	}
}

func TestRegistry(t *testing.T) {
	reg := Registry(NewHTTPClient(time.Second), Settings{OpenWeatherAPIKey: "a", WeatherAPIKey: "b"}, nil)

	require.Len(t, reg, 3)
	assert.IsType(t, &OpenMeteoProvider{}, reg[weather.SourceArchive])
	assert.Implements(t, (*weather.RangeProvider)(nil), reg[weather.SourceForecast])
	assert.Implements(t, (*weather.DayProvider)(nil), reg[weather.SourceHistory])
}
