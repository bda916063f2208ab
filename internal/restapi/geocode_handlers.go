package restapi

import (
	"errors"
	"net/http"

	"rentmap.hu/internal/geocode"
	"rentmap.hu/internal/utils"
)

var errMissingQuery = errors.New("query cannot be empty")

type suggestionsResponse struct {
	Suggestions []geocode.Suggestion `json:"suggestions"`
}

func (api *RestAPI) geocodeQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	q, err := utils.ValidateAndSanitizeQuery(r.URL.Query().Get("q"))
	if err == nil && q == "" {
		err = errMissingQuery
	}
	if err != nil {
		api.validationErrorResponse(w, r, map[string][]string{"q": {err.Error()}})
		return "", false
	}
	return q, true
}

// geocodeSearchHandler answers 404 when the address cannot be resolved; upstream
// failures look the same to the caller.
func (api *RestAPI) geocodeSearchHandler(w http.ResponseWriter, r *http.Request) {
	q, ok := api.geocodeQuery(w, r)
	if !ok {
		return
	}
	point, found := api.Geocoder.Geocode(r.Context(), q)
	if !found {
		api.errorResponse(w, r, http.StatusNotFound, "address not found")
		return
	}
	api.sendJSON(w, r, http.StatusOK, point)
}

func (api *RestAPI) geocodeSuggestHandler(w http.ResponseWriter, r *http.Request) {
	q, ok := api.geocodeQuery(w, r)
	if !ok {
		return
	}
	api.sendJSON(w, r, http.StatusOK, suggestionsResponse{Suggestions: api.Geocoder.Suggest(r.Context(), q)})
}
