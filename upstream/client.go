// Package upstream fetches YouTube channel Atom feeds with retry, per-host
// rate limiting and a circuit breaker.
package upstream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"ytrss/internal/retry"
)

// FeedEndpoint is YouTube's per-channel Atom feed.
const FeedEndpoint = "https://www.youtube.com/feeds/videos.xml"

// maxFeedSize bounds the body read from YouTube. Channel feeds carry the 15
// most recent videos and stay well under this.
const maxFeedSize = 8 << 20

var channelIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateChannelID reports whether id can name a YouTube channel.
func ValidateChannelID(id string) error {
	if !channelIDRegex.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidChannelID, id)
	}
	return nil
}

// FeedURL returns the Atom feed URL of a channel on the public endpoint.
func FeedURL(channelID string) string {
	return feedURL(FeedEndpoint, channelID)
}

func feedURL(endpoint, channelID string) string {
	return endpoint + "?channel_id=" + url.QueryEscape(channelID)
}

// Config holds fetcher configuration.
type Config struct {
	// Endpoint is the feed endpoint. Default: FeedEndpoint
	Endpoint string
	// Timeout for individual HTTP requests.
	Timeout time.Duration
	// UserAgent sent with every request.
	UserAgent string
	// Retry configuration.
	Retry retry.Config
	// RateLimit configures per-host pacing.
	RateLimit RateLimitConfig
	// Breaker configures the per-host circuit breaker.
	Breaker BreakerConfig
}

// DefaultConfig returns sensible defaults for fetching feeds.
func DefaultConfig() Config {
	return Config{
		Endpoint:  FeedEndpoint,
		Timeout:   10 * time.Second,
		UserAgent: "ytrss/1.0",
		Retry:     retry.DefaultConfig(),
		RateLimit: DefaultRateLimitConfig(),
		Breaker:   DefaultBreakerConfig(),
	}
}

// Client fetches channel feeds.
type Client struct {
	base    *http.Client
	cfg     Config
	limiter *RateLimiter
	breaker *Breaker
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its timeout is kept.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.base = hc
		}
	}
}

// WithLogger sets the logger for retries and circuit transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Client.
func New(cfg Config, opts ...Option) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = FeedEndpoint
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultConfig().UserAgent
	}

	c := &Client{
		base: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.RateLimit),
		breaker: NewBreaker(cfg.Breaker),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker.onChange = func(host string, from, to CircuitState) {
		c.logger.Warn("upstream circuit changed", "host", host, "from", from, "to", to)
	}
	return c
}

// FetchChannel returns the raw Atom feed of a channel.
//
// Failures are *FetchError values wrapping ErrInvalidChannelID,
// ErrChannelNotFound, ErrCircuitOpen, *RateLimitError, *HTTPError or the
// transport error.
func (c *Client) FetchChannel(ctx context.Context, channelID string) ([]byte, error) {
	if err := ValidateChannelID(channelID); err != nil {
		return nil, &FetchError{Channel: channelID, Err: err}
	}

	target := feedURL(c.cfg.Endpoint, channelID)
	u, err := url.Parse(target)
	if err != nil {
		return nil, &FetchError{Channel: channelID, Err: err}
	}
	host := u.Hostname()

	if err := c.breaker.Allow(host); err != nil {
		return nil, &FetchError{Channel: channelID, Err: err}
	}

	var body []byte
	attempt := 0
	err = retry.Do(ctx, c.cfg.Retry, nil, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			c.logger.Debug("retrying feed fetch", "channel", channelID, "attempt", attempt)
		}
		if err := c.limiter.Wait(ctx, host); err != nil {
			return err
		}
		b, err := c.get(ctx, host, target)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		c.breaker.RecordFailure(host, err)
		return nil, &FetchError{Channel: channelID, Err: err}
	}

	c.limiter.RecordSuccess(host)
	c.breaker.RecordSuccess(host)
	return body, nil
}

// get performs one request. Errors that retrying cannot fix are marked
// permanent.
func (c *Client) get(ctx context.Context, host, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/atom+xml, application/xml;q=0.9, */*;q=0.1")

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	switch code := resp.StatusCode; {
	case code == http.StatusNotFound:
		return nil, retry.Permanent(ErrChannelNotFound)
	case code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable:
		delay := c.limiter.RecordRateLimit(host, parseRetryAfter(resp.Header, time.Now()))
		return nil, &RateLimitError{StatusCode: code, Delay: delay}
	case code < 200 || code >= 300:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		httpErr := &HTTPError{StatusCode: code, Body: snippet}
		if code >= http.StatusInternalServerError {
			return nil, httpErr
		}
		return nil, retry.Permanent(httpErr)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

// parseRetryAfter reads a Retry-After header given either in seconds or as
// an HTTP date. It returns 0 when the header is absent or unusable.
func parseRetryAfter(header http.Header, now time.Time) time.Duration {
	v := header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.base.CloseIdleConnections()
	return nil
}
