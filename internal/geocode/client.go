// Package geocode resolves addresses through a Nominatim-compatible search API.
// Failures never surface as errors: callers get an empty result and the cause is logged.
package geocode

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"rentmap.hu/internal/geo"
	"rentmap.hu/internal/logging"
	"rentmap.hu/internal/metrics"
)

// MinQueryLength is the shortest query Suggest sends upstream.
const MinQueryLength = 2

type Config struct {
	BaseURL           string
	UserAgent         string
	CountryCodes      string
	Limit             int
	RequestsPerSecond float64

	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Suggestion struct {
	DisplayName string  `json:"displayName"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	PlaceID     string  `json:"placeId"`
}

type Client struct {
	httpClient   *http.Client
	baseURL      string
	userAgent    string
	countryCodes string
	limit        int
	limiter      *rate.Limiter
	logger       *slog.Logger
}

func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   10 * time.Second,
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = 8
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		httpClient:   httpClient,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:    cfg.UserAgent,
		countryCodes: cfg.CountryCodes,
		limit:        limit,
		limiter:      limiter,
		logger:       logger.With(slog.String("component", "geocoder")),
	}
}

// Geocode returns the coordinate of the best match for address.
func (c *Client) Geocode(ctx context.Context, address string) (geo.Point, bool) {
	address = strings.TrimSpace(address)
	if address == "" {
		return geo.Point{}, false
	}

	q := url.Values{}
	q.Set("format", "json")
	q.Set("q", address)
	q.Set("limit", "1")

	results, err := c.search(ctx, q)
	if err != nil {
		metrics.GeocodeRequests.WithLabelValues("search", "error").Inc()
		logging.LogError(c.logger, "geocoding failed", err, slog.String("address", address))
		return geo.Point{}, false
	}
	if len(results) == 0 {
		metrics.GeocodeRequests.WithLabelValues("search", "empty").Inc()
		return geo.Point{}, false
	}

	metrics.GeocodeRequests.WithLabelValues("search", "ok").Inc()
	return geo.Point{Lat: results[0].Lat, Lon: results[0].Lon}, true
}

// Suggest returns up to the configured number of address suggestions for a partial
// query. Queries shorter than MinQueryLength return nothing.
func (c *Client) Suggest(ctx context.Context, query string) []Suggestion {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < MinQueryLength {
		return []Suggestion{}
	}

	q := url.Values{}
	q.Set("format", "json")
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(c.limit))
	if c.countryCodes != "" {
		q.Set("countrycodes", c.countryCodes)
	}
	q.Set("addressdetails", "1")
	q.Set("dedupe", "1")

	results, err := c.search(ctx, q)
	if err != nil {
		metrics.GeocodeRequests.WithLabelValues("suggest", "error").Inc()
		logging.LogError(c.logger, "address suggestion failed", err, slog.String("query", query))
		return []Suggestion{}
	}

	result := "ok"
	if len(results) == 0 {
		result = "empty"
	}
	metrics.GeocodeRequests.WithLabelValues("suggest", result).Inc()

	if len(results) > c.limit {
		results = results[:c.limit]
	}
	return results
}

// nominatimResult is the subset of a search hit we read. Nominatim sends lat/lon as
// strings and place_id as a number.
type nominatimResult struct {
	DisplayName string          `json:"display_name"`
	Lat         string          `json:"lat"`
	Lon         string          `json:"lon"`
	PlaceID     json.RawMessage `json:"place_id"`
}

func (c *Client) search(ctx context.Context, q url.Values) ([]Suggestion, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("geocoder rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocoder request failed: %w", err)
	}
	defer logging.SafeCloseWithLogging(resp.Body, c.logger, "geocoder_response_body")

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocoder returned status %d", resp.StatusCode)
	}

	var raw []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode geocoder response: %w", err)
	}

	out := make([]Suggestion, 0, len(raw))
	for _, r := range raw {
		lat, errLat := strconv.ParseFloat(r.Lat, 64)
		lon, errLon := strconv.ParseFloat(r.Lon, 64)
		if errLat != nil || errLon != nil {
			continue
		}
		out = append(out, Suggestion{
			DisplayName: r.DisplayName,
			Lat:         lat,
			Lon:         lon,
			PlaceID:     strings.Trim(string(r.PlaceID), `"`),
		})
	}
	return out, nil
}
