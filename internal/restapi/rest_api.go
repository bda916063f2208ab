// Package restapi serves the JSON HTTP API: OneBusAway-style stop endpoints keyed by
// API key, and the bearer-authenticated places, geocoding and change-channel endpoints.
package restapi

import (
	"net/http"
	"time"

	"rentmap.hu/internal/app"
)

type RestAPI struct {
	*app.Application
	rateLimiter *RateLimiter
}

func NewRestAPI(app *app.Application) *RestAPI {
	return &RestAPI{
		Application: app,
		rateLimiter: NewRateLimiter(app.Config.Server.RateLimit, time.Second),
	}
}

// RateLimiter exposes the limiter so its cleanup loop can be supervised.
func (api *RestAPI) RateLimiter() *RateLimiter {
	return api.rateLimiter
}

// Handler is the router wrapped in the full middleware chain.
func (api *RestAPI) Handler() http.Handler {
	var h http.Handler = api.routes()
	h = CompressionMiddleware(h)
	h = api.rateLimiter.Middleware(h)
	h = NewRequestLoggingMiddleware(api.Logger)(h)
	h = securityHeaders(api.Config.Server.CORSOrigins)(h)
	return h
}
