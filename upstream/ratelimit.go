package upstream

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MinRPSMultiplier is the floor of the rate reduction after repeated rate
// limit responses (0.25 = 25% of the configured rate).
const MinRPSMultiplier = 0.25

// RateLimitConfig defines per-host request pacing.
type RateLimitConfig struct {
	// RPS is requests per second per host. 0 disables pacing.
	RPS float64
	// InitialBackoff is the pause imposed after the first rate limit response.
	InitialBackoff time.Duration
	// MaxBackoff caps the pause after consecutive rate limit responses.
	MaxBackoff time.Duration
	// Cooldown is how long after the last rate limit response the original
	// rate is restored.
	Cooldown time.Duration
}

// DefaultRateLimitConfig returns defaults suited to the public feed endpoint.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RPS:            5,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     60 * time.Second,
		Cooldown:       5 * time.Minute,
	}
}

// backoffState tracks rate limit backoff for a host.
type backoffState struct {
	current           time.Duration
	lastError         time.Time
	consecutiveErrors int
	reducedRPS        float64
}

// RateLimiter paces requests per host with a token bucket and slows down
// after the host answers with a rate limit response.
type RateLimiter struct {
	mu       sync.Mutex
	cfg      RateLimitConfig
	limiters map[string]*rate.Limiter
	backoff  map[string]*backoffState
	now      func() time.Time
}

// NewRateLimiter creates a rate limiter, filling zero durations with defaults.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	def := DefaultRateLimitConfig()
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	return &RateLimiter{
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
		backoff:  make(map[string]*backoffState),
		now:      time.Now,
	}
}

// Wait blocks until both the host's backoff pause and its token bucket allow
// a request, or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, host string) error {
	if rl == nil {
		return nil
	}
	if remaining := rl.remainingBackoff(host); remaining > 0 {
		timer := time.NewTimer(remaining)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	if limiter := rl.limiter(host); limiter != nil {
		return limiter.Wait(ctx)
	}
	return nil
}

func (rl *RateLimiter) limiter(host string) *rate.Limiter {
	if rl.cfg.RPS <= 0 {
		return nil
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if l, ok := rl.limiters[host]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(rl.cfg.RPS), 1)
	rl.limiters[host] = l
	return l
}

func (rl *RateLimiter) remainingBackoff(host string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	st, ok := rl.backoff[host]
	if !ok {
		return 0
	}
	return st.current - rl.now().Sub(st.lastError)
}

// RecordRateLimit notes a rate limit response from host and returns how long
// to pause before the next request: 1x, 2x, 4x... the initial backoff, or the
// server's Retry-After when that is longer.
func (rl *RateLimiter) RecordRateLimit(host string, retryAfter time.Duration) time.Duration {
	if rl == nil {
		return retryAfter
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	st, ok := rl.backoff[host]
	if !ok {
		st = &backoffState{current: rl.cfg.InitialBackoff}
		rl.backoff[host] = st
	} else {
		st.current *= 2
		if st.current > rl.cfg.MaxBackoff {
			st.current = rl.cfg.MaxBackoff
		}
	}
	st.lastError = rl.now()
	st.consecutiveErrors++
	if retryAfter > st.current {
		st.current = retryAfter
	}

	rl.reduceRate(host, st)
	return st.current
}

// reduceRate slows the host's bucket to 75%, 50% and then 25% of the
// configured rate. Must be called with mu held.
func (rl *RateLimiter) reduceRate(host string, st *backoffState) {
	if rl.cfg.RPS <= 0 {
		return
	}
	factor := MinRPSMultiplier
	switch st.consecutiveErrors {
	case 1:
		factor = 0.75
	case 2:
		factor = 0.5
	}
	st.reducedRPS = rl.cfg.RPS * factor
	if l, ok := rl.limiters[host]; ok {
		l.SetLimit(rate.Limit(st.reducedRPS))
	}
}

// RecordSuccess clears the host's backoff once the cooldown has passed since
// the last rate limit response.
func (rl *RateLimiter) RecordSuccess(host string) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	st, ok := rl.backoff[host]
	if !ok {
		return
	}
	if rl.now().Sub(st.lastError) < rl.cfg.Cooldown {
		if st.consecutiveErrors > 0 {
			st.consecutiveErrors--
		}
		return
	}
	if l, ok := rl.limiters[host]; ok && rl.cfg.RPS > 0 {
		l.SetLimit(rate.Limit(rl.cfg.RPS))
	}
	delete(rl.backoff, host)
}

// Limit returns the current rate for host, or 0 when pacing is disabled.
func (rl *RateLimiter) Limit(host string) float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if st, ok := rl.backoff[host]; ok && st.reducedRPS > 0 {
		return st.reducedRPS
	}
	return rl.cfg.RPS
}
