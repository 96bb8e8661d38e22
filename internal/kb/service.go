// Package kb queries the knowledge-base, geocoding and entity recognition
// services used to enrich resolved articles.
package kb

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ppiankov/currentevents/internal/analytics"
	"github.com/ppiankov/currentevents/internal/cache"
	"github.com/ppiankov/currentevents/internal/worker"
)

// kbSleepFunc is swapped out by tests.
var kbSleepFunc = time.Sleep

const (
	defaultRetries    = 3
	defaultRetryAfter = 5 * time.Second
	maxResponseBytes  = 50 << 20
)

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	Service string
	Code    int
	Status  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status: %s", e.Service, e.Status)
}

// ServiceOptions holds what every service client needs. Nil Cache, Limiter
// and Recorder are skipped.
type ServiceOptions struct {
	Endpoint   string
	HTTPClient *http.Client
	UserAgent  string
	Limiter    *worker.Limiter
	Cache      cache.Cache
	Retries    int
	Recorder   analytics.Recorder
	Logger     *log.Logger
}

// service sends rate-limited, cached and retried requests to one endpoint.
type service struct {
	name      string
	counter   string
	endpoint  string
	client    *http.Client
	userAgent string
	limiter   *worker.Limiter
	cache     cache.Cache
	retries   int
	recorder  analytics.Recorder
	logger    *log.Logger
}

func newService(name, counter string, opts ServiceOptions) service {
	s := service{
		name:      name,
		counter:   counter,
		endpoint:  opts.Endpoint,
		client:    opts.HTTPClient,
		userAgent: opts.UserAgent,
		limiter:   opts.Limiter,
		cache:     opts.Cache,
		retries:   opts.Retries,
		recorder:  opts.Recorder,
		logger:    opts.Logger,
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: 60 * time.Second}
	}
	if s.retries <= 0 {
		s.retries = defaultRetries
	}
	if s.recorder == nil {
		s.recorder = analytics.Nop{}
	}
	if s.logger == nil {
		s.logger = log.New(io.Discard)
	}
	return s
}

// do returns the body for cacheKey, sending the request built by newReq on
// a cache miss. 429 responses wait for Retry-After; server errors and
// network failures back off linearly.
func (s *service) do(ctx context.Context, cacheKey string, newReq func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	if s.cache != nil {
		if body, ok := s.cache.Get(ctx, cacheKey); ok {
			return body, nil
		}
	}

	var lastErr error
	for attempt := 1; attempt <= s.retries; attempt++ {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx, s.endpoint); err != nil {
				return nil, err
			}
		}

		req, err := newReq(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: create request: %w", s.name, err)
		}
		if s.userAgent != "" {
			req.Header.Set("User-Agent", s.userAgent)
		}

		s.recorder.RecordAnalytic(s.counter, 1)
		body, wait, err := s.send(req, attempt)
		if err == nil {
			if s.cache != nil {
				if err := s.cache.Set(ctx, cacheKey, body, 0); err != nil {
					s.logger.Warn("cache response", "service", s.name, "err", err)
				}
			}
			return body, nil
		}
		lastErr = err
		if wait == 0 || attempt == s.retries {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("retrying request", "service", s.name, "attempt", attempt, "wait", wait, "err", err)
		kbSleepFunc(wait)
	}
	return nil, lastErr
}

// send performs one attempt. A non-zero wait marks the error as retryable.
func (s *service) send(req *http.Request, attempt int) ([]byte, time.Duration, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, time.Duration(attempt) * time.Second, fmt.Errorf("%s: request: %w", s.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, retryAfter(resp.Header.Get("Retry-After")), &StatusError{Service: s.name, Code: resp.StatusCode, Status: resp.Status}
	case resp.StatusCode >= 500:
		return nil, time.Duration(attempt) * time.Second, &StatusError{Service: s.name, Code: resp.StatusCode, Status: resp.Status}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, 0, &StatusError{Service: s.name, Code: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, 0, fmt.Errorf("%s: read body: %w", s.name, err)
	}
	return body, 0, nil
}

// retryAfter reads a Retry-After header given in seconds.
func retryAfter(header string) time.Duration {
	secs, err := strconv.Atoi(header)
	if err != nil || secs <= 0 {
		return defaultRetryAfter
	}
	return time.Duration(secs) * time.Second
}
