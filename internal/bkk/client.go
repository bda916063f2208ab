// Package bkk is a client for the BKK FUTÁR stops-for-location endpoint.
package bkk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"rentmap.hu/internal/logging"
	"rentmap.hu/internal/metrics"
)

const breakerName = "bkk-stops"

var ErrMissingAPIKey = errors.New("bkk: API key is not configured")

type Config struct {
	BaseURL  string
	APIKey   string
	Radius   float64
	MaxCount int
	Timeout  time.Duration

	// HTTPClient replaces the instrumented default client when set.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	radius     float64
	maxCount   int
	tracer     trace.Tracer
	cb         *gobreaker.CircuitBreaker[*Response]
	logger     *slog.Logger
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("bkk: base URL is not configured")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		radius:     cfg.Radius,
		maxCount:   cfg.MaxCount,
		tracer:     otel.Tracer("bkk-client"),
		logger:     logger.With(slog.String("component", "bkk_client")),
	}
	c.cb = newBreaker(c.logger)

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	return c, nil
}

// newBreaker opens after at least 5 calls in a minute with a 60% failure rate and
// probes again after 30 seconds.
func newBreaker(logger *slog.Logger) *gobreaker.CircuitBreaker[*Response] {
	return gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			metrics.RecordCircuitBreakerTransition(name, from.String(), to.String())
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up says nothing about upstream health.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

// StopsForLocation fetches stops within the configured radius of lat/lon.
// Transport failures, non-2xx answers, undecodable bodies, a non-OK envelope status,
// and an open circuit all come back as errors.
func (c *Client) StopsForLocation(ctx context.Context, lat, lon float64) (*Response, error) {
	ctx, span := c.tracer.Start(ctx, "bkk.stops_for_location",
		trace.WithAttributes(
			attribute.Float64("lat", lat),
			attribute.Float64("lon", lon),
			attribute.Float64("radius", c.radius),
		),
	)
	defer span.End()

	resp, err := c.cb.Execute(func() (*Response, error) {
		return c.fetch(ctx, lat, lon)
	})
	if err != nil {
		result := "failure"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			result = "rejected"
		}
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, result).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "success").Inc()
	span.SetAttributes(attribute.Int("stops.count", len(resp.Data.List)))
	return resp, nil
}

func (c *Client) fetch(ctx context.Context, lat, lon float64) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(lat, lon), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stop API request failed: %w", err)
	}
	defer logging.SafeCloseWithLogging(httpResp.Body, c.logger, "bkk_response_body")

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return nil, fmt.Errorf("stop API returned status %d: %s", httpResp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out Response
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode stop API response: %w", err)
	}
	if out.Status != StatusOK {
		return nil, fmt.Errorf("stop API answered status %q: %s", out.Status, out.Text)
	}

	return &out, nil
}

func (c *Client) requestURL(lat, lon float64) string {
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("radius", strconv.FormatFloat(c.radius, 'f', -1, 64))
	q.Set("maxCount", strconv.Itoa(c.maxCount))
	return c.baseURL + "/stops-for-location.json?" + q.Encode()
}
