// Package ratelimit retries HTTP 429 responses with exponential backoff.
//
// It is an http.RoundTripper so the REST client keeps using a plain
// *http.Client. Only 429 is retried; every other status and every transport
// error goes straight back to the caller.
package ratelimit

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Config holds configuration for the rate-limiting transport.
type Config struct {
	// MaxRetries is the maximum number of retry attempts after receiving 429.
	// Zero disables retrying.
	MaxRetries int

	// BaseDelay is the initial delay before the first retry.
	// Default: 1 second
	BaseDelay time.Duration

	// MaxDelay is the maximum delay between retries.
	// Default: 32 seconds
	MaxDelay time.Duration

	// EnableJitter adds random jitter (±20%) to prevent thundering herd.
	EnableJitter bool

	// Stats is an optional stats tracker for recording rate limit events.
	Stats *Stats

	// Server name for error messages.
	Server string

	// Base is the wrapped transport. Default: http.DefaultTransport
	Base http.RoundTripper
}

// Transport is an http.RoundTripper that retries rate-limited requests.
type Transport struct {
	base         http.RoundTripper
	maxRetries   int
	baseDelay    time.Duration
	maxDelay     time.Duration
	enableJitter bool
	stats        *Stats
	server       string
}

// NewTransport creates a rate-limiting transport with the given configuration.
func NewTransport(cfg Config) *Transport {
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 1 * time.Second
	}

	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 32 * time.Second
	}

	base := cfg.Base
	if base == nil {
		base = http.DefaultTransport
	}

	return &Transport{
		base:         base,
		maxRetries:   maxRetries,
		baseDelay:    baseDelay,
		maxDelay:     maxDelay,
		enableJitter: cfg.EnableJitter,
		stats:        cfg.Stats,
		server:       cfg.Server,
	}
}

// RoundTrip performs the request, retrying 429 responses. It honours the
// Retry-After header and the request context.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Buffer the body so it can be re-sent on retry
	var bodyBytes []byte
	if req.Body != nil && req.Body != http.NoBody {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
	}

	ctx := req.Context()
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		r := req.Clone(ctx)
		if bodyBytes != nil {
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			r.ContentLength = int64(len(bodyBytes))
		}

		resp, err := t.base.RoundTrip(r)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		if t.stats != nil {
			t.stats.RecordRateLimit()
		}
		if attempt >= t.maxRetries {
			// Out of retries: let the caller see the 429 itself
			return resp, nil
		}

		retryAfter := ParseRetryAfter(resp.Header.Get("Retry-After"))
		_ = resp.Body.Close()
		delay := t.calculateBackoff(attempt, retryAfter)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, &RateLimitError{Server: t.server, Attempt: t.maxRetries, MaxAttempts: t.maxRetries}
}

// calculateBackoff computes the backoff duration for a given attempt.
func (t *Transport) calculateBackoff(attempt int, retryAfter *time.Duration) time.Duration {
	if retryAfter != nil {
		return *retryAfter
	}

	// Exponential backoff: base * 2^attempt
	delay := t.baseDelay * time.Duration(math.Pow(2, float64(attempt)))
	if delay > t.maxDelay {
		delay = t.maxDelay
	}

	if t.enableJitter {
		jitterFactor := 0.8 + rand.Float64()*0.4 // 0.8 to 1.2
		delay = time.Duration(float64(delay) * jitterFactor)
	}

	return delay
}

// RateLimitError represents an error when rate limit retries are exhausted.
type RateLimitError struct {
	Server      string
	Attempt     int
	MaxAttempts int
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	server := e.Server
	if server == "" {
		server = "API"
	}
	return fmt.Sprintf("%s rate limit exceeded after %d retries (max %d)", server, e.Attempt, e.MaxAttempts)
}

// ParseRetryAfter parses the Retry-After header value.
// It supports both seconds format (integer) and HTTP-date format.
// Returns nil if the value is invalid or empty.
func ParseRetryAfter(value string) *time.Duration {
	if value == "" {
		return nil
	}

	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		if seconds < 0 {
			return nil
		}
		d := time.Duration(seconds) * time.Second
		return &d
	}

	if t, err := http.ParseTime(value); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return &d
	}

	return nil
}

// Stats tracks rate limit statistics for the server.
type Stats struct {
	mu              sync.RWMutex
	rateLimitCount  int64
	lastRateLimitAt time.Time
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{}
}

// RecordRateLimit records a rate limit event.
func (s *Stats) RecordRateLimit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateLimitCount++
	s.lastRateLimitAt = time.Now()
}

// RateLimitCount returns the total number of rate limit events.
func (s *Stats) RateLimitCount() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rateLimitCount
}

// LastRateLimitTime returns the time of the last rate limit event.
func (s *Stats) LastRateLimitTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRateLimitAt
}
