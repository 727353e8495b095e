package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sony/gobreaker"

	"github.com/i474232898/hightemps/internal/weather"
)

// BackoffConfig controls exponential backoff behaviour for 5xx responses.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client  *http.Client
	Backoff BackoffConfig
}

func defaultHTTPConfig(client *http.Client) HTTPClientConfig {
	return HTTPClientConfig{
		Client: client,
		Backoff: BackoffConfig{
			MaxRetries:      3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
	}
}

var (
	errServerError   = errors.New("server error")
	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
)

// breakerTripFailures is the number of consecutive failed requests that opens
// a breaker. A request counts once however many 5xx retries it took.
const breakerTripFailures = 10

func newCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTripFailures
		},
		IsSuccessful: upstreamHealthy,
	})
}

// upstreamHealthy reports whether err leaves the breaker closed. Only transport
// failures and 5xx responses count against it.
func upstreamHealthy(err error) bool {
	var (
		rl *weather.RateLimitedError
		se *weather.HTTPStatusError
	)
	switch {
	case err == nil:
		return true
	case errors.As(err, &rl), errors.Is(err, context.Canceled):
		return true
	case errors.As(err, &se):
		return se.Code < 500
	}
	return false
}

// doRequestWithResilience executes the HTTP request behind a circuit breaker,
// retrying 5xx responses with exponential backoff inside a single breaker
// call. A 429 is returned at once as a *weather.RateLimitedError so the caller
// can honour Retry-After; other non-2xx statuses become *weather.HTTPStatusError.
func doRequestWithResilience(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func() (*http.Request, error),
) (*http.Response, error) {
	if cfg.Client == nil {
		return nil, errNoHTTPClient
	}
	if cfg.Backoff.MaxRetries < 0 || cfg.Backoff.InitialInterval <= 0 {
		return nil, errInvalidConfig
	}

	result, err := cb.Execute(func() (interface{}, error) {
		return doWithBackoff(ctx, cfg, buildRequest)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}
		return nil, err
	}

	resp, ok := result.(*http.Response)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return resp, nil
}

func doWithBackoff(ctx context.Context, cfg HTTPClientConfig, buildRequest func() (*http.Request, error)) (*http.Response, error) {
	var attempt int

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		resp, err := doOnce(ctx, cfg.Client, buildRequest)
		if err == nil {
			return resp, nil
		}

		// Only server errors are retried here.
		if !errors.Is(err, errServerError) || attempt >= cfg.Backoff.MaxRetries {
			return nil, err
		}

		delay := cfg.Backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > cfg.Backoff.MaxInterval && cfg.Backoff.MaxInterval > 0 {
			delay = cfg.Backoff.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		attempt++
	}
}

func doOnce(ctx context.Context, client *http.Client, buildRequest func() (*http.Request, error)) (*http.Response, error) {
	req, err := buildRequest()
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		wait, ok := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		drain(resp)
		return nil, &weather.RateLimitedError{RetryAfter: wait, Explicit: ok}
	case resp.StatusCode >= 500:
		drain(resp)
		return nil, fmt.Errorf("%w: %w", errServerError, &weather.HTTPStatusError{Code: resp.StatusCode})
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		drain(resp)
		return nil, &weather.HTTPStatusError{Code: resp.StatusCode}
	}
	return resp, nil
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP
// date. ok is false when the header is absent or unusable; a date already in
// the past means retry now.
func parseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

// decodeJSON decodes the response body into v and closes it.
func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", weather.ErrMalformedPayload, err)
	}
	return nil
}
