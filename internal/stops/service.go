// Package stops serves transit stops around a coordinate from a cache in front of
// the upstream stop API. Lookups are answered, in order, from an exact cache cell,
// from a nearby fresh entry, from a fetch already in flight for the same cell, or by
// a new paced upstream call. A failed call falls back to whatever cached data is
// closest.
package stops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"rentmap.hu/internal/bkk"
	"rentmap.hu/internal/geo"
	"rentmap.hu/internal/logging"
	"rentmap.hu/internal/metrics"
)

// ErrUpstreamUnavailable is returned when the upstream call failed and no cached
// data could stand in for it.
var ErrUpstreamUnavailable = errors.New("stop data unavailable")

// Upstream is the stop source, satisfied by *bkk.Client.
type Upstream interface {
	StopsForLocation(ctx context.Context, lat, lon float64) (*bkk.Response, error)
}

type Options struct {
	TTL           time.Duration // freshness window, 20m by default
	ReuseDistance float64       // meters; a fresh entry closer than this is reused
	Radius        float64       // meters; stops farther than this from the query are dropped
	MinInterval   time.Duration // minimum spacing between upstream call launches
	Clock         Clock
	Logger        *slog.Logger
}

func (o *Options) setDefaults() {
	if o.TTL <= 0 {
		o.TTL = 20 * time.Minute
	}
	if o.ReuseDistance <= 0 {
		o.ReuseDistance = 300
	}
	if o.Radius <= 0 {
		o.Radius = 1000
	}
	if o.MinInterval < 0 {
		o.MinInterval = 0
	}
	if o.Clock == nil {
		o.Clock = SystemClock()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

type entry struct {
	stops    []Stop
	center   geo.Point
	captured time.Time
}

// call is one in-flight upstream fetch; done is closed once stops/err are final.
type call struct {
	done  chan struct{}
	stops []Stop
	err   error
}

type Service struct {
	upstream Upstream
	opts     Options
	logger   *slog.Logger

	// mu guards cache, pending and stats. It is never held across a network call or sleep.
	mu      sync.Mutex
	cache   map[string]*entry
	pending map[string]*call
	stats   Stats

	// launchMu serializes pacing so launches are spaced by MinInterval.
	launchMu   sync.Mutex
	lastLaunch time.Time
}

func NewService(upstream Upstream, opts Options) *Service {
	opts.setDefaults()
	return &Service{
		upstream: upstream,
		opts:     opts,
		logger:   opts.Logger.With(slog.String("component", "stop_cache")),
		cache:    make(map[string]*entry),
		pending:  make(map[string]*call),
	}
}

// Lookup returns the stops within the configured radius of lat/lon.
//
// A caller whose ctx ends while waiting for a fetch gets ctx.Err(); the fetch itself
// is never cancelled and its result is still cached.
func (s *Service) Lookup(ctx context.Context, lat, lon float64) ([]Stop, error) {
	key := geo.CacheKey(lat, lon)
	query := geo.Point{Lat: lat, Lon: lon}

	s.mu.Lock()
	s.stats.Lookups++
	now := s.opts.Clock.Now()

	if e, ok := s.cache[key]; ok && s.fresh(e, now) {
		s.stats.ExactHits++
		out := slices.Clone(e.stops)
		s.mu.Unlock()

		metrics.StopLookups.WithLabelValues("exact_hit").Inc()
		s.logger.Debug("stop cache exact hit", slog.String("key", key), slog.Int("stops", len(out)))
		return out, nil
	}

	if near, dist := s.nearest(query, now, true); near != nil && dist < s.opts.ReuseDistance {
		filtered := withinRadius(near.stops, query, s.opts.Radius)
		s.cache[key] = &entry{stops: filtered, center: query, captured: near.captured}
		s.stats.NearHits++
		entries := len(s.cache)
		s.mu.Unlock()

		metrics.StopLookups.WithLabelValues("near_hit").Inc()
		metrics.StopCacheEntries.Set(float64(entries))
		s.logger.Debug("stop cache near hit",
			slog.String("key", key),
			slog.Float64("distance_m", dist),
			slog.Int("stops", len(filtered)))
		return slices.Clone(filtered), nil
	}

	if c, ok := s.pending[key]; ok {
		s.stats.SharedFetches++
		s.mu.Unlock()

		metrics.StopLookups.WithLabelValues("shared").Inc()
		return wait(ctx, c)
	}

	c := &call{done: make(chan struct{})}
	s.pending[key] = c
	pending := len(s.pending)
	s.mu.Unlock()

	metrics.StopPendingRequests.Set(float64(pending))

	go s.run(context.WithoutCancel(ctx), key, query, c)

	return wait(ctx, c)
}

// LookupInBounds looks up around the center of b and keeps the stops inside b.
func (s *Service) LookupInBounds(ctx context.Context, b geo.Bounds) ([]Stop, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	center := b.Center()
	list, err := s.Lookup(ctx, center.Lat, center.Lon)
	if err != nil {
		return nil, err
	}
	return withinBounds(list, b), nil
}

// ClearCache drops every cache entry. Counters and in-flight fetches are kept.
func (s *Service) ClearCache() {
	s.mu.Lock()
	dropped := len(s.cache)
	clear(s.cache)
	s.mu.Unlock()

	metrics.StopCacheEntries.Set(0)
	logging.LogOperation(s.logger, "stop_cache_cleared", slog.Int("entries", dropped))
}

func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stats
	st.CacheEntries = len(s.cache)
	st.PendingFetches = len(s.pending)
	return st
}

func wait(ctx context.Context, c *call) ([]Stop, error) {
	select {
	case <-c.done:
		if c.err != nil {
			return nil, c.err
		}
		return slices.Clone(c.stops), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// run performs the fetch for key and settles c. It owns the pending slot for key.
func (s *Service) run(ctx context.Context, key string, query geo.Point, c *call) {
	list, fetchErr := s.fetch(ctx, query)

	s.mu.Lock()
	delete(s.pending, key)

	result := "fetched"
	if fetchErr == nil {
		s.cache[key] = &entry{stops: list, center: query, captured: s.opts.Clock.Now()}
		c.stops = list
	} else if fallback, from, ok := s.fallback(key, query); ok {
		s.stats.Fallbacks++
		c.stops = fallback
		result = "fallback"
		s.logger.Warn("stop API call failed, serving cached stops",
			slog.String("key", key),
			slog.String("source", from),
			slog.String("error", fetchErr.Error()))
	} else {
		s.stats.Failures++
		c.err = fmt.Errorf("%w: %w", ErrUpstreamUnavailable, fetchErr)
		result = "failed"
		logging.LogError(s.logger, "stop API call failed with nothing cached", fetchErr, slog.String("key", key))
	}

	entries, pending := len(s.cache), len(s.pending)
	s.mu.Unlock()

	close(c.done)

	metrics.StopLookups.WithLabelValues(result).Inc()
	metrics.StopCacheEntries.Set(float64(entries))
	metrics.StopPendingRequests.Set(float64(pending))
}

func (s *Service) fetch(ctx context.Context, query geo.Point) ([]Stop, error) {
	waited := s.pace()
	metrics.StopPacingDelay.Observe(waited.Seconds())

	s.mu.Lock()
	s.stats.UpstreamCalls++
	s.mu.Unlock()
	metrics.StopUpstreamCalls.Inc()

	start := time.Now()
	resp, err := s.upstream.StopsForLocation(ctx, query.Lat, query.Lon)
	metrics.StopUpstreamDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	list := make([]Stop, 0, len(resp.Data.List))
	for _, raw := range resp.Data.List {
		list = append(list, toStop(raw, resp.Data.References.RoutesFor(raw)))
	}
	return list, nil
}

// pace blocks until MinInterval has passed since the previous launch and records
// this launch. It returns how long it slept.
func (s *Service) pace() time.Duration {
	s.launchMu.Lock()
	defer s.launchMu.Unlock()

	var waited time.Duration
	if !s.lastLaunch.IsZero() {
		if d := s.lastLaunch.Add(s.opts.MinInterval).Sub(s.opts.Clock.Now()); d > 0 {
			s.opts.Clock.Sleep(d)
			waited = d
		}
	}
	s.lastLaunch = s.opts.Clock.Now()
	return waited
}

// fallback must be called with mu held. The exact cell wins regardless of age,
// otherwise the nearest entry of any age and distance, trimmed to the query radius.
func (s *Service) fallback(key string, query geo.Point) ([]Stop, string, bool) {
	if e, ok := s.cache[key]; ok {
		return e.stops, "exact", true
	}
	if near, _ := s.nearest(query, time.Time{}, false); near != nil {
		return withinRadius(near.stops, query, s.opts.Radius), "nearest", true
	}
	return nil, "", false
}

// nearest must be called with mu held. Ties go to the lexically smallest key so the
// choice does not depend on map order.
func (s *Service) nearest(query geo.Point, now time.Time, freshOnly bool) (*entry, float64) {
	var (
		best     *entry
		bestDist float64
	)
	for _, key := range slices.Sorted(maps.Keys(s.cache)) {
		e := s.cache[key]
		if freshOnly && !s.fresh(e, now) {
			continue
		}
		if d := geo.Distance(query, e.center); best == nil || d < bestDist {
			best, bestDist = e, d
		}
	}
	return best, bestDist
}

func (s *Service) fresh(e *entry, now time.Time) bool {
	return now.Sub(e.captured) < s.opts.TTL
}

func toStop(raw bkk.StopEntry, routes []bkk.Route) Stop {
	refs := make([]RouteRef, 0, len(routes))
	for _, r := range routes {
		refs = append(refs, RouteRef{
			ID:          r.ID,
			ShortName:   r.ShortName,
			Description: r.Description,
			Type:        r.Type,
			Color:       r.Color,
			TextColor:   r.TextColor,
		})
	}
	return Stop{
		ID:        raw.ID,
		Name:      raw.Name,
		Lat:       raw.Lat,
		Lon:       raw.Lon,
		Code:      raw.Code,
		Direction: raw.Direction,
		Mode:      raw.Type,
		StopType:  Classify(raw, routes),
		Routes:    refs,
	}
}
