package restapi

import (
	"errors"
	"log/slog"
	"net/http"

	"rentmap.hu/internal/logging"
	"rentmap.hu/internal/models"
	"rentmap.hu/internal/places"
	"rentmap.hu/internal/stops"
)

func (api *RestAPI) errorResponse(w http.ResponseWriter, r *http.Request, code int, text string) {
	api.sendJSON(w, r, code, models.NewErrorResponse(code, text))
}

func (api *RestAPI) invalidAPIKeyResponse(w http.ResponseWriter, r *http.Request) {
	api.errorResponse(w, r, http.StatusUnauthorized, "permission denied")
}

// unauthorizedResponse matches auth.Verifier.Middleware's failure callback.
func (api *RestAPI) unauthorizedResponse(w http.ResponseWriter, r *http.Request, err error) {
	api.Logger.Debug("rejected bearer token", "error", err, "path", r.URL.Path)
	w.Header().Set("WWW-Authenticate", `Bearer realm="rentmap"`)
	api.errorResponse(w, r, http.StatusUnauthorized, "permission denied")
}

func (api *RestAPI) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	logging.LogError(api.Logger, "request failed", err,
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path))
	api.errorResponse(w, r, http.StatusInternalServerError, "internal server error")
}

func (api *RestAPI) sendNotFound(w http.ResponseWriter, r *http.Request) {
	api.errorResponse(w, r, http.StatusNotFound, "resource not found")
}

// validationErrorResponse sends 400 with per-field messages.
func (api *RestAPI) validationErrorResponse(w http.ResponseWriter, r *http.Request, fieldErrors map[string][]string) {
	api.sendJSON(w, r, http.StatusBadRequest, struct {
		FieldErrors map[string][]string `json:"fieldErrors"`
	}{FieldErrors: fieldErrors})
}

// placesErrorResponse maps the places service's sentinel errors to status codes.
func (api *RestAPI) placesErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	var verr *places.ValidationError
	switch {
	case errors.As(err, &verr):
		api.validationErrorResponse(w, r, verr.Fields)
	case errors.Is(err, places.ErrNotFound):
		api.sendNotFound(w, r)
	case errors.Is(err, places.ErrForbidden):
		api.errorResponse(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, places.ErrAddressNotFound):
		api.errorResponse(w, r, http.StatusUnprocessableEntity, "address not found")
	default:
		api.serverErrorResponse(w, r, err)
	}
}

// stopsErrorResponse answers 503 when neither upstream nor the cache had data.
func (api *RestAPI) stopsErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, stops.ErrUpstreamUnavailable):
		logging.LogError(api.Logger, "stop lookup unavailable", err, slog.String("path", r.URL.Path))
		api.errorResponse(w, r, http.StatusServiceUnavailable, "stop data unavailable")
	case r.Context().Err() != nil:
		// Client went away; nobody reads the body.
		w.WriteHeader(499)
	default:
		api.serverErrorResponse(w, r, err)
	}
}
