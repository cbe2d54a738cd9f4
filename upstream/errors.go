package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinel errors for feed fetches.
var (
	// ErrChannelNotFound indicates YouTube has no feed for the channel.
	ErrChannelNotFound = errors.New("upstream: channel not found")
	// ErrInvalidChannelID indicates the channel id cannot name a YouTube channel.
	ErrInvalidChannelID = errors.New("upstream: invalid channel id")
	// ErrCircuitOpen is returned while the feed host is failing fast.
	ErrCircuitOpen = errors.New("upstream: circuit breaker is open")
)

// RateLimitError indicates YouTube rate limited the request.
type RateLimitError struct {
	// StatusCode is 429 or 503.
	StatusCode int
	// Delay is how long to wait before the next attempt. It is the larger of
	// the Retry-After header and the host's current backoff.
	Delay time.Duration
}

func (e *RateLimitError) Error() string {
	if e.Delay > 0 {
		return fmt.Sprintf("rate limited (status %d): retry after %v", e.StatusCode, e.Delay)
	}
	return fmt.Sprintf("rate limited (status %d)", e.StatusCode)
}

// RetryAfter lets retry.Do wait out the delay before the next attempt.
func (e *RateLimitError) RetryAfter() time.Duration {
	return e.Delay
}

// HTTPError indicates an unexpected status code.
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error: status %d", e.StatusCode)
}

// FetchError wraps a failure to fetch a channel's feed.
type FetchError struct {
	Channel string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch feed for channel %q: %v", e.Channel, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// isTransient reports whether err says something about the health of the
// feed host. Only transient errors count towards opening the circuit.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrChannelNotFound) || errors.Is(err, ErrInvalidChannelID) {
		return false
	}

	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return true
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= http.StatusInternalServerError
	}

	// Network errors, timeouts, etc.
	return true
}
