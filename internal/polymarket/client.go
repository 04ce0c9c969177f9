// Package polymarket provides Polymarket API integration
//
// client.go - REST access to the gamma (discovery) and CLOB (quotes,
// metadata, orders) APIs. Every call is rate limited, bounded by a
// timeout and runs through a circuit breaker.
package polymarket

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/web3guy0/hedgebot/internal/metrics"
)

const (
	DefaultGammaURL = "https://gamma-api.polymarket.com"
	DefaultClobURL  = "https://clob.polymarket.com"

	defaultTimeout = 10 * time.Second
	defaultRPS     = 20
)

// Config holds client endpoints and limits
type Config struct {
	GammaURL          string
	ClobURL           string
	Credentials       Credentials
	RequestsPerSecond float64
	Timeout           time.Duration
}

// Client talks to Polymarket over HTTP
type Client struct {
	gammaURL   string
	clobURL    string
	creds      Credentials
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]
	now        func() time.Time
}

// NewClient creates a client, filling unset fields with defaults
func NewClient(cfg Config) *Client {
	if cfg.GammaURL == "" {
		cfg.GammaURL = DefaultGammaURL
	}
	if cfg.ClobURL == "" {
		cfg.ClobURL = DefaultClobURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaultRPS
	}

	burst := int(cfg.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		gammaURL:   strings.TrimRight(cfg.GammaURL, "/"),
		clobURL:    strings.TrimRight(cfg.ClobURL, "/"),
		creds:      cfg.Credentials,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		breaker:    newBreaker("polymarket-http"),
		now:        time.Now,
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker[[]byte] {
	metrics.BreakerState.WithLabelValues(name).Set(0)
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("⚡ Circuit breaker state change")
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !tripsBreaker(err)
		},
	})
}

// do sends one request and returns the body of a 2xx answer.
// path is the request path without host, used for signing.
func (c *Client) do(ctx context.Context, method, baseURL, path string, body []byte, sign bool) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", ErrNetwork, err)
	}

	out, err := c.breaker.Execute(func() ([]byte, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, baseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("%w: build request: %v", ErrParse, err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if sign {
			signPath := path
			if i := strings.IndexByte(signPath, '?'); i >= 0 {
				signPath = signPath[:i]
			}
			if err := c.creds.apply(req, c.now().Unix(), method, signPath, body); err != nil {
				return nil, err
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, path, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrNetwork, path, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return data, fmt.Errorf("%w: %s %s: status %d", classifyStatus(resp.StatusCode), method, path, resp.StatusCode)
		}
		return data, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return out, err
}

func (c *Client) get(ctx context.Context, baseURL, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, baseURL, path, nil, false)
}
