package restapi

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"rentmap.hu/internal/app"
	"rentmap.hu/internal/appconf"
	"rentmap.hu/internal/auth"
	"rentmap.hu/internal/bkk"
	"rentmap.hu/internal/geocode"
	"rentmap.hu/internal/logging"
	"rentmap.hu/internal/models"
	"rentmap.hu/internal/notify"
	"rentmap.hu/internal/places"
	"rentmap.hu/internal/stops"
)

const (
	testAPIKey    = "TEST"
	testJWTSecret = "test-secret-with-enough-length-for-hs256"
)

// fakeUpstream serves two stops near the default map center, or err when set.
type fakeUpstream struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeUpstream) StopsForLocation(ctx context.Context, lat, lon float64) (*bkk.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &bkk.Response{
		Status: bkk.StatusOK,
		Code:   200,
		Data: bkk.StopsData{
			List: []bkk.StopEntry{
				{ID: "BKK_F00940", Name: "Batthyány tér M", Lat: 47.4985, Lon: 19.0405, Type: "SUBWAY", RouteIDs: []string{"BKK_5200"}},
				{ID: "BKK_F00941", Name: "Clark Ádám tér", Lat: 47.4975, Lon: 19.0410, Type: "BUS", RouteIDs: []string{"BKK_0090"}},
			},
			References: bkk.References{Routes: map[string]bkk.Route{
				"BKK_5200": {ID: "BKK_5200", ShortName: "M2", Type: "SUBWAY", Color: "E41F18"},
				"BKK_0090": {ID: "BKK_0090", ShortName: "9", Type: "BUS", Color: "009FE3"},
			}},
		},
	}, nil
}

func (f *fakeUpstream) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeUpstream) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// newFakeNominatim resolves any query mentioning "Andrássy" and nothing else.
func newFakeNominatim(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(r.URL.Query().Get("q"), "Andrássy") {
			_, _ = io.WriteString(w, `[{"display_name":"Andrássy út 12, Budapest","lat":"47.5030","lon":"19.0620","place_id":123}]`)
			return
		}
		_, _ = io.WriteString(w, `[]`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	api      *RestAPI
	upstream *fakeUpstream
	server   *httptest.Server
}

func createTestApi(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := *appconf.Defaults()
	cfg.Server.ApiKeys = []string{testAPIKey}
	cfg.Server.RateLimit = 1000
	cfg.Auth.JWTSecret = testJWTSecret

	upstream := &fakeUpstream{}
	store, err := places.OpenStore(context.Background(), ":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	geocoder := geocode.NewClient(geocode.Config{
		BaseURL:           newFakeNominatim(t).URL,
		UserAgent:         "test",
		CountryCodes:      "hu",
		Limit:             8,
		RequestsPerSecond: 1000,
		Logger:            logger,
	})
	hub := notify.NewHub(logger, []string{"*"})
	verifier, err := auth.NewVerifier(testJWTSecret, "")
	require.NoError(t, err)

	application := &app.Application{
		Config:   cfg,
		Logger:   logger,
		Stops:    stops.NewService(upstream, stops.Options{Logger: logger}),
		Store:    store,
		Places:   places.NewService(store, geocoder, hub, logger),
		Geocoder: geocoder,
		Hub:      hub,
		Auth:     verifier,
	}

	api := NewRestAPI(application)
	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)

	return &testEnv{api: api, upstream: upstream, server: server}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := e.api.Auth.Sign(userID, userID+"@example.com", time.Hour)
	require.NoError(t, err)
	return token
}

// do sends a request with an optional bearer token and JSON body.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() {
		logging.SafeCloseWithLogging(resp.Body, slog.Default().With(slog.String("component", "test")), "http_response_body")
	})
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// serveAndRetrieveEndpoint GETs an API-key endpoint and decodes the envelope.
func (e *testEnv) serveAndRetrieveEndpoint(t *testing.T, endpoint string) (*http.Response, models.ResponseModel) {
	t.Helper()
	resp := e.do(t, http.MethodGet, endpoint, "", nil)
	return resp, decode[models.ResponseModel](t, resp)
}
