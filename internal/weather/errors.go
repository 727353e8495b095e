package weather

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrMissingCredential is returned before any request when a provider needs an API key it does not have.
	ErrMissingCredential = errors.New("api key is not configured")

	// ErrUnknownSource is returned when no provider is registered for a source.
	ErrUnknownSource = errors.New("unknown data source")

	// ErrRunInProgress is returned when a fetch is requested while another is still running.
	ErrRunInProgress = errors.New("a fetch is already in progress")

	// ErrRunNotFound is returned by stores for unknown run IDs.
	ErrRunNotFound = errors.New("run not found")

	// ErrMalformedPayload marks a provider response that could not be decoded.
	ErrMalformedPayload = errors.New("malformed response")
)

// DefaultRetryAfter is used when a 429 response carries no usable Retry-After header.
const DefaultRetryAfter = 60 * time.Second

// HTTPStatusError is a non-success, non-429 response from a provider.
type HTTPStatusError struct {
	Code int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.Code)
}

// RateLimitedError is a 429 response. Explicit is set when the provider sent a
// usable Retry-After, which may be zero.
type RateLimitedError struct {
	RetryAfter time.Duration
	Explicit   bool
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s)", e.RetryAfter)
	}
	return "rate limited"
}

// Wait returns how long to suspend before retrying.
func (e *RateLimitedError) Wait(def time.Duration) time.Duration {
	if e.RetryAfter > 0 || e.Explicit {
		return e.RetryAfter
	}
	return def
}

// FetchError attaches a user-facing failure category to an error. Detail,
// when set, replaces the wrapped error's text in the message.
type FetchError struct {
	Category string
	Detail   string
	Err      error
}

func (e *FetchError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Category, e.Detail)
	}
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Categorize wraps err in a FetchError whose category names the kind of failure.
func Categorize(err error) error {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}

	var (
		statusErr *HTTPStatusError
		rateErr   *RateLimitedError
	)
	switch {
	case errors.Is(err, ErrMissingCredential):
		return &FetchError{Category: "missing credential", Err: err}
	case errors.As(err, &rateErr):
		return &FetchError{Category: "rate limited", Err: err}
	case errors.As(err, &statusErr):
		detail := http.StatusText(statusErr.Code)
		if detail == "" {
			detail = "Failed to fetch data"
		}
		return &FetchError{Category: statusErr.Error(), Detail: detail, Err: err}
	case errors.Is(err, ErrMalformedPayload):
		return &FetchError{Category: "malformed response", Err: err}
	default:
		return &FetchError{Category: "network error", Err: err}
	}
}

// UserMessage renders a fatal fetch error the way it is shown to users.
func UserMessage(err error) string {
	return "Failed to fetch temperature data: " + Categorize(err).Error()
}
