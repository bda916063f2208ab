package restapi

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (api *RestAPI) withAPIKey(finalHandler http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if api.RequestHasInvalidAPIKey(r) {
			api.invalidAPIKeyResponse(w, r)
			return
		}
		finalHandler(w, r)
	})
}

func (api *RestAPI) routes() *httprouter.Router {
	router := httprouter.New()
	router.NotFound = http.HandlerFunc(api.sendNotFound)
	router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.errorResponse(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	router.Handler(http.MethodGet, "/api/where/current-time.json", api.withAPIKey(api.currentTimeHandler))
	router.Handler(http.MethodGet, "/api/where/stops-for-location.json", api.withAPIKey(api.stopsForLocationHandler))
	router.Handler(http.MethodGet, "/api/where/stops-in-bounds.json", api.withAPIKey(api.stopsInBoundsHandler))
	router.Handler(http.MethodGet, "/api/stops/stats", api.withAPIKey(api.stopStatsHandler))
	router.Handler(http.MethodDelete, "/api/stops/cache", api.withAPIKey(api.clearStopCacheHandler))

	bearer := api.Auth.Middleware(api.unauthorizedResponse)
	router.Handler(http.MethodGet, "/api/places", bearer(http.HandlerFunc(api.listPlacesHandler)))
	router.Handler(http.MethodPost, "/api/places", bearer(http.HandlerFunc(api.createPlaceHandler)))
	router.Handler(http.MethodGet, "/api/places/:id", bearer(http.HandlerFunc(api.getPlaceHandler)))
	router.Handler(http.MethodPut, "/api/places/:id", bearer(http.HandlerFunc(api.updatePlaceHandler)))
	router.Handler(http.MethodDelete, "/api/places/:id", bearer(http.HandlerFunc(api.deletePlaceHandler)))
	router.Handler(http.MethodGet, "/api/places-subscribe", bearer(http.HandlerFunc(api.subscribeHandler)))
	router.Handler(http.MethodGet, "/api/geocode/search", bearer(http.HandlerFunc(api.geocodeSearchHandler)))
	router.Handler(http.MethodGet, "/api/geocode/suggest", bearer(http.HandlerFunc(api.geocodeSuggestHandler)))

	router.HandlerFunc(http.MethodGet, "/healthz", api.healthHandler)
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())

	return router
}
