package worker

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter enforces a minimum spacing between requests to the same host
type Limiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	spacing  time.Duration
}

// NewLimiter creates a limiter that lets one request per spacing through
// for every host. A non-positive spacing disables limiting.
func NewLimiter(spacing time.Duration) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		spacing:  spacing,
	}
}

// Wait blocks until a request to rawURL's host may be sent
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host, err := extractHost(rawURL)
	if err != nil {
		return err
	}
	return l.getLimiter(host).Wait(ctx)
}

// SetHostSpacing overrides the spacing for one host
func (l *Limiter) SetHostSpacing(host string, spacing time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiters[host] = newSpacingLimiter(spacing)
}

// RaiseHostSpacing widens the spacing for one host to at least spacing.
// Narrower requests leave the current limiter untouched.
func (l *Limiter) RaiseHostSpacing(host string, spacing time.Duration) {
	if spacing <= 0 {
		return
	}
	current := l.getLimiter(host)
	if current.Limit() <= rate.Every(spacing) {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.limiters[host] == current {
		l.limiters[host] = newSpacingLimiter(spacing)
	}
}

func (l *Limiter) getLimiter(host string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[host]
	l.mu.RUnlock()

	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := l.limiters[host]; exists {
		return limiter
	}

	limiter = newSpacingLimiter(l.spacing)
	l.limiters[host] = limiter
	return limiter
}

func newSpacingLimiter(spacing time.Duration) *rate.Limiter {
	if spacing <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(spacing), 1)
}

func extractHost(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return parsed.Host, nil
}
