package stops

import (
	"context"
	"sync"
	"time"

	"rentmap.hu/internal/bkk"
	"rentmap.hu/internal/geo"
)

// fakeClock only moves when Sleep or Advance is called.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) { c.Advance(d) }

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeUpstream struct {
	clock *fakeClock

	mu     sync.Mutex
	calls  []time.Time
	points []geo.Point
	resp   *bkk.Response
	err    error
	gate   chan struct{}
}

func (u *fakeUpstream) StopsForLocation(_ context.Context, lat, lon float64) (*bkk.Response, error) {
	u.mu.Lock()
	u.calls = append(u.calls, u.clock.Now())
	u.points = append(u.points, geo.Point{Lat: lat, Lon: lon})
	gate := u.gate
	u.mu.Unlock()

	if gate != nil {
		<-gate
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	return u.resp, u.err
}

func (u *fakeUpstream) callCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.calls)
}

func (u *fakeUpstream) callTimes() []time.Time {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]time.Time, len(u.calls))
	copy(out, u.calls)
	return out
}

func (u *fakeUpstream) setErr(err error) {
	u.mu.Lock()
	u.err = err
	u.mu.Unlock()
}

func stopEntry(id, name, mode string, lat, lon float64, routeIDs ...string) bkk.StopEntry {
	return bkk.StopEntry{ID: id, Name: name, Type: mode, Lat: lat, Lon: lon, RouteIDs: routeIDs}
}

func okResponse(routes map[string]bkk.Route, list ...bkk.StopEntry) *bkk.Response {
	return &bkk.Response{
		Status: bkk.StatusOK,
		Code:   200,
		Data: bkk.StopsData{
			List:       list,
			References: bkk.References{Routes: routes},
		},
	}
}
