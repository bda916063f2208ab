package stops

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentmap.hu/internal/bkk"
	"rentmap.hu/internal/geo"
)

// Around (47.5000, 19.0400): stopA sits on the point, stopSouth is 945 m south of it.
var (
	stopA     = stopEntry("BKK_F00001", "Kálvin tér", "BUS", 47.5000, 19.0400, "BKK_15")
	stopSouth = stopEntry("BKK_F00002", "Corvin-negyed", "BUS", 47.4915, 19.0400)
	busRoutes = map[string]bkk.Route{"BKK_15": {ID: "BKK_15", ShortName: "15", Type: "BUS"}}
)

func newTestService(t *testing.T) (*Service, *fakeUpstream, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	up := &fakeUpstream{clock: clock, resp: okResponse(busRoutes, stopA, stopSouth)}
	svc := NewService(up, Options{
		TTL:           20 * time.Minute,
		ReuseDistance: 300,
		Radius:        1000,
		MinInterval:   800 * time.Millisecond,
		Clock:         clock,
	})
	return svc, up, clock
}

func ids(list []Stop) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		out = append(out, s.ID)
	}
	return out
}

func TestLookupExactHit(t *testing.T) {
	svc, up, clock := newTestService(t)
	ctx := context.Background()

	first, err := svc.Lookup(ctx, 47.5000, 19.0400)
	require.NoError(t, err)

	clock.Advance(19 * time.Minute)
	second, err := svc.Lookup(ctx, 47.50001, 19.04002) // same 4-digit cell
	require.NoError(t, err)

	assert.Equal(t, 1, up.callCount())
	assert.Equal(t, ids(first), ids(second))

	st := svc.Stats()
	assert.Equal(t, uint64(2), st.Lookups)
	assert.Equal(t, uint64(1), st.ExactHits)
	assert.Equal(t, uint64(1), st.UpstreamCalls)
	assert.Equal(t, 1, st.CacheEntries)
}

func TestLookupRefetchesAfterTTL(t *testing.T) {
	svc, up, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.Lookup(ctx, 47.5000, 19.0400)
	require.NoError(t, err)

	clock.Advance(20 * time.Minute)
	_, err = svc.Lookup(ctx, 47.5000, 19.0400)
	require.NoError(t, err)

	assert.Equal(t, 2, up.callCount())
}

func TestLookupNearHitFiltersToNewCenter(t *testing.T) {
	svc, up, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Lookup(ctx, 47.5000, 19.0400)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"BKK_F00001", "BKK_F00002"}, ids(first))

	// 222 m north: stopSouth is now 1167 m away.
	second, err := svc.Lookup(ctx, 47.5020, 19.0400)
	require.NoError(t, err)

	assert.Equal(t, 1, up.callCount())
	assert.Equal(t, []string{"BKK_F00001"}, ids(second))
	for _, s := range second {
		assert.LessOrEqual(t, geo.Haversine(47.5020, 19.0400, s.Lat, s.Lon), 1000.0)
	}

	st := svc.Stats()
	assert.Equal(t, uint64(1), st.NearHits)
	assert.Equal(t, 2, st.CacheEntries, "near hit is stored under the new key")
}

func TestNearHitEntryKeepsSourceTimestamp(t *testing.T) {
	svc, up, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.Lookup(ctx, 47.5000, 19.0400)
	require.NoError(t, err)

	clock.Advance(15 * time.Minute)
	_, err = svc.Lookup(ctx, 47.5020, 19.0400)
	require.NoError(t, err)

	// Both entries expire 20 minutes after the original fetch.
	clock.Advance(6 * time.Minute)
	_, err = svc.Lookup(ctx, 47.5020, 19.0400)
	require.NoError(t, err)

	assert.Equal(t, 2, up.callCount())
}

func TestLookupBeyondReuseDistanceFetches(t *testing.T) {
	svc, up, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Lookup(ctx, 47.5000, 19.0400)
	require.NoError(t, err)

	// 400 m north, past the 300 m reuse threshold.
	_, err = svc.Lookup(ctx, 47.5036, 19.0400)
	require.NoError(t, err)

	assert.Equal(t, 2, up.callCount())
}

func TestConcurrentLookupsShareOneFetch(t *testing.T) {
	svc, up, _ := newTestService(t)
	up.gate = make(chan struct{})

	const n = 10
	var wg sync.WaitGroup
	results := make([][]Stop, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Lookup(context.Background(), 47.5000, 19.0400)
		}(i)
	}

	require.Eventually(t, func() bool {
		st := svc.Stats()
		return st.Lookups == n && st.PendingFetches == 1 && st.SharedFetches == n-1
	}, 2*time.Second, 5*time.Millisecond)

	close(up.gate)
	wg.Wait()

	assert.Equal(t, 1, up.callCount())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Len(t, results[i], 2)
	}
	assert.Equal(t, 0, svc.Stats().PendingFetches)
}

func TestFetchLaunchesArePaced(t *testing.T) {
	t.Run("sequential", func(t *testing.T) {
		svc, up, _ := newTestService(t)
		ctx := context.Background()

		_, err := svc.Lookup(ctx, 47.5000, 19.0400)
		require.NoError(t, err)
		_, err = svc.Lookup(ctx, 47.4500, 19.1000)
		require.NoError(t, err)

		calls := up.callTimes()
		require.Len(t, calls, 2)
		assert.GreaterOrEqual(t, calls[1].Sub(calls[0]), 800*time.Millisecond)
	})

	t.Run("concurrent", func(t *testing.T) {
		svc, up, _ := newTestService(t)
		points := []geo.Point{{Lat: 47.40, Lon: 19.00}, {Lat: 47.45, Lon: 19.05}, {Lat: 47.50, Lon: 19.10}, {Lat: 47.55, Lon: 19.15}}

		var wg sync.WaitGroup
		for _, p := range points {
			wg.Add(1)
			go func(p geo.Point) {
				defer wg.Done()
				_, err := svc.Lookup(context.Background(), p.Lat, p.Lon)
				assert.NoError(t, err)
			}(p)
		}
		wg.Wait()

		calls := up.callTimes()
		require.Len(t, calls, len(points))
		slices.SortFunc(calls, func(a, b time.Time) int { return a.Compare(b) })
		for i := 1; i < len(calls); i++ {
			assert.GreaterOrEqual(t, calls[i].Sub(calls[i-1]), 800*time.Millisecond)
		}
	})

	t.Run("no wait once the interval has passed", func(t *testing.T) {
		svc, up, clock := newTestService(t)
		ctx := context.Background()

		_, err := svc.Lookup(ctx, 47.5000, 19.0400)
		require.NoError(t, err)
		clock.Advance(5 * time.Second)
		_, err = svc.Lookup(ctx, 47.4500, 19.1000)
		require.NoError(t, err)

		calls := up.callTimes()
		require.Len(t, calls, 2)
		assert.Equal(t, 5*time.Second, calls[1].Sub(calls[0]))
	})
}

func TestClearCacheForcesOneRefetch(t *testing.T) {
	svc, up, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.Lookup(ctx, 47.5000, 19.0400)
	require.NoError(t, err)

	svc.ClearCache()
	assert.Equal(t, 0, svc.Stats().CacheEntries)

	clock.Advance(time.Second)
	_, err = svc.Lookup(ctx, 47.5000, 19.0400)
	require.NoError(t, err)
	_, err = svc.Lookup(ctx, 47.5000, 19.0400)
	require.NoError(t, err)

	assert.Equal(t, 2, up.callCount())
	assert.Equal(t, uint64(3), svc.Stats().Lookups, "counters survive a clear")
}

func TestLookupClassifiesMetroLineOne(t *testing.T) {
	svc, up, _ := newTestService(t)
	up.resp = okResponse(
		map[string]bkk.Route{"BKK_5100": {ID: "BKK_5100", ShortName: "M1", Type: "SUBWAY", Color: "FFD800", TextColor: "000000"}},
		stopEntry("BKK_F00940", "Deák Ferenc tér", "SUBWAY", 47.4974, 19.0410, "BKK_5100"),
	)

	list, err := svc.Lookup(context.Background(), 47.4979, 19.0402)
	require.NoError(t, err)
	require.Len(t, list, 1)

	assert.Equal(t, TypeMetro1, list[0].StopType)
	assert.Equal(t, "SUBWAY", list[0].Mode)
	require.Len(t, list[0].Routes, 1)
	assert.Equal(t, "M1", list[0].Routes[0].ShortName)
	assert.Equal(t, "FFD800", list[0].Routes[0].Color)
}

func TestLookupsThirteenMetersApartShareOneCall(t *testing.T) {
	svc, up, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Lookup(ctx, 47.5000, 19.0400)
	require.NoError(t, err)
	_, err = svc.Lookup(ctx, 47.5001, 19.0401)
	require.NoError(t, err)

	assert.Equal(t, 1, up.callCount())
	assert.Equal(t, uint64(1), svc.Stats().NearHits)
}

func TestLookupFallbacks(t *testing.T) {
	t.Run("stale exact entry", func(t *testing.T) {
		svc, up, clock := newTestService(t)
		ctx := context.Background()

		first, err := svc.Lookup(ctx, 47.5000, 19.0400)
		require.NoError(t, err)

		clock.Advance(time.Hour)
		up.setErr(errors.New("connection refused"))

		stale, err := svc.Lookup(ctx, 47.5000, 19.0400)
		require.NoError(t, err)
		assert.Equal(t, ids(first), ids(stale))
		assert.Equal(t, 2, up.callCount())
		assert.Equal(t, uint64(1), svc.Stats().Fallbacks)
	})

	t.Run("nearest entry beyond reuse distance", func(t *testing.T) {
		svc, up, _ := newTestService(t)
		ctx := context.Background()

		_, err := svc.Lookup(ctx, 47.5000, 19.0400)
		require.NoError(t, err)

		up.setErr(errors.New("503 Service Unavailable"))
		list, err := svc.Lookup(ctx, 47.5036, 19.0400)
		require.NoError(t, err)

		assert.Equal(t, []string{"BKK_F00001"}, ids(list), "trimmed to the query radius")
	})

	t.Run("nothing cached", func(t *testing.T) {
		svc, up, _ := newTestService(t)
		cause := errors.New("dial tcp: no such host")
		up.setErr(cause)

		list, err := svc.Lookup(context.Background(), 47.5000, 19.0400)
		assert.Nil(t, list)
		assert.ErrorIs(t, err, ErrUpstreamUnavailable)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, uint64(1), svc.Stats().Failures)
		assert.Equal(t, 0, svc.Stats().CacheEntries)
	})
}

func TestCancelledCallerDoesNotAbortFetch(t *testing.T) {
	svc, up, _ := newTestService(t)
	up.gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := svc.Lookup(ctx, 47.5000, 19.0400)
		done <- err
	}()

	require.Eventually(t, func() bool { return up.callCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(up.gate)
	require.Eventually(t, func() bool { return svc.Stats().CacheEntries == 1 }, 2*time.Second, 5*time.Millisecond)

	_, err := svc.Lookup(context.Background(), 47.5000, 19.0400)
	require.NoError(t, err)
	assert.Equal(t, 1, up.callCount())
}

func TestLookupInBounds(t *testing.T) {
	svc, up, _ := newTestService(t)

	b := geo.Bounds{North: 47.5050, South: 47.4950, East: 19.0450, West: 19.0350}
	list, err := svc.LookupInBounds(context.Background(), b)
	require.NoError(t, err)

	assert.Equal(t, []string{"BKK_F00001"}, ids(list))
	require.Len(t, up.points, 1)
	assert.InDelta(t, 47.5000, up.points[0].Lat, 1e-9)
	assert.InDelta(t, 19.0400, up.points[0].Lon, 1e-9)

	_, err = svc.LookupInBounds(context.Background(), geo.Bounds{North: 1, South: 2, East: 3, West: 4})
	assert.ErrorIs(t, err, geo.ErrInvalidBounds)
}
