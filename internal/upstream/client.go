package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"wsd/internal/structures"
)

// maxBodySize caps how much of a provider response is buffered.
const maxBodySize = 1 << 20

var (
	ErrRateLimited  = errors.New("rate limited by provider")
	ErrServerError  = errors.New("provider server error")
	ErrUnexpected   = errors.New("unexpected status code")
	ErrCircuitOpen  = errors.New("circuit breaker open")
	ErrBodyTooLarge = errors.New("response body too large")
	errNoHTTPClient = errors.New("http client not configured")
)

// BackoffConfig controls exponential backoff between attempts.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Observer receives the outcome of every upstream call.
type Observer interface {
	ObserveUpstream(provider string, duration time.Duration, err error)
}

// Fetcher performs one logical GET against a provider and returns the body.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) ([]byte, error)
}

// Client is a resilient GET client for one provider. Every attempt waits on
// the shared budget, goes through the provider's circuit breaker and is
// bounded by the http.Client timeout.
type Client struct {
	name     string
	client   *http.Client
	backoff  BackoffConfig
	circuit  *gobreaker.CircuitBreaker
	budget   *rate.Limiter
	observer Observer
	secret   string
}

// NewBudget builds the limiter shared by all providers. A non-positive rate
// disables the budget.
func NewBudget(conf *structures.Config) *rate.Limiter {
	rps := conf.Upstream.RequestsPerSecond
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := conf.Upstream.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func NewClient(name string, conf structures.ProviderConfig, budget *rate.Limiter, observer Observer) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	retries := conf.MaxRetries
	if retries < 0 {
		retries = 0
	}

	return &Client{
		name:   name,
		client: &http.Client{Timeout: conf.Timeout},
		backoff: BackoffConfig{
			MaxRetries:      retries,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     2 * time.Second,
		},
		circuit:  cb,
		budget:   budget,
		observer: observer,
		secret:   conf.Key,
	}
}

func (c *Client) Name() string {
	return c.name
}

// Get fetches rawURL with retries and exponential backoff. Only network
// failures, 429 and 5xx responses are retried.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	start := time.Now()
	body, err := c.get(ctx, rawURL)
	if c.observer != nil {
		c.observer.ObserveUpstream(c.name, time.Since(start), err)
	}
	return body, err
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	if c.client == nil {
		return nil, errNoHTTPClient
	}

	var attempt int
	for {
		if c.budget != nil {
			if err := c.budget.Wait(ctx); err != nil {
				return nil, err
			}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		result, err := c.circuit.Execute(func() (interface{}, error) {
			body, err := c.do(ctx, rawURL)
			if err != nil && !tripsBreaker(err) {
				return outcome{err: err}, nil
			}
			return outcome{body: body}, err
		})
		if err == nil {
			out, ok := result.(outcome)
			if !ok {
				return nil, fmt.Errorf("unexpected result type from circuit breaker")
			}
			if out.err != nil {
				return nil, out.err
			}
			return out.body, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		if !retryable(err) || attempt >= c.backoff.MaxRetries {
			return nil, err
		}

		delay := c.backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > c.backoff.MaxInterval && c.backoff.MaxInterval > 0 {
			delay = c.backoff.MaxInterval
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

func (c *Client) do(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, c.redact(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, c.redact(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %d", ErrServerError, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: %d", ErrUnexpected, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, c.redact(err)
	}
	if len(body) > maxBodySize {
		return nil, ErrBodyTooLarge
	}
	return body, nil
}

// outcome carries a failed attempt through the breaker without counting it
// against the provider.
type outcome struct {
	body []byte
	err  error
}

// tripsBreaker reports whether err says the provider is unhealthy. Client
// errors and caller cancellation do not.
func tripsBreaker(err error) bool {
	return !errors.Is(err, ErrUnexpected) && !errors.Is(err, context.Canceled)
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrUnexpected) || errors.Is(err, ErrBodyTooLarge) {
		return false
	}
	return true
}

// redact strips the query string and the API key from url errors so
// credentials never reach logs or callers.
func (c *Client) redact(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	if u, perr := url.Parse(ue.URL); perr == nil {
		u.RawQuery = ""
		ue.URL = u.Redacted()
	}
	if c.secret != "" {
		ue.URL = strings.ReplaceAll(ue.URL, c.secret, "REDACTED")
	}
	return err
}
