package restapi

import (
	"net/http"

	"rentmap.hu/internal/geo"
	"rentmap.hu/internal/models"
	"rentmap.hu/internal/utils"
)

// stopsForLocationHandler falls back to the configured map center when both lat
// and lon are absent. Supplying only one of them is an error.
func (api *RestAPI) stopsForLocationHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	lat, lon := api.Config.Stops.DefaultLat, api.Config.Stops.DefaultLon
	hasLat, hasLon := query.Get("lat") != "", query.Get("lon") != ""
	if hasLat || hasLon {
		fieldErrors := make(map[string][]string)
		lat, fieldErrors = utils.ParseFloatParam(query, "lat", fieldErrors)
		lon, fieldErrors = utils.ParseFloatParam(query, "lon", fieldErrors)
		if !hasLat {
			fieldErrors["lat"] = append(fieldErrors["lat"], `Missing field "lat".`)
		}
		if !hasLon {
			fieldErrors["lon"] = append(fieldErrors["lon"], `Missing field "lon".`)
		}
		if len(fieldErrors) == 0 {
			fieldErrors = utils.ValidateLocationParams(lat, lon)
		}
		if len(fieldErrors) > 0 {
			api.validationErrorResponse(w, r, fieldErrors)
			return
		}
	}

	list, err := api.Stops.Lookup(r.Context(), lat, lon)
	if err != nil {
		api.stopsErrorResponse(w, r, err)
		return
	}
	api.sendResponse(w, r, models.NewListResponse(list, models.NewStopReferences(list), false))
}

func (api *RestAPI) stopsInBoundsHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	fieldErrors := make(map[string][]string)

	var b geo.Bounds
	for _, p := range []struct {
		key string
		dst *float64
	}{
		{"north", &b.North},
		{"south", &b.South},
		{"east", &b.East},
		{"west", &b.West},
	} {
		if query.Get(p.key) == "" {
			fieldErrors[p.key] = append(fieldErrors[p.key], `Missing field "`+p.key+`".`)
			continue
		}
		*p.dst, fieldErrors = utils.ParseFloatParam(query, p.key, fieldErrors)
	}
	if len(fieldErrors) == 0 {
		if err := b.Validate(); err != nil {
			fieldErrors["bounds"] = []string{err.Error()}
		}
	}
	if len(fieldErrors) > 0 {
		api.validationErrorResponse(w, r, fieldErrors)
		return
	}

	list, err := api.Stops.LookupInBounds(r.Context(), b)
	if err != nil {
		api.stopsErrorResponse(w, r, err)
		return
	}
	api.sendResponse(w, r, models.NewListResponse(list, models.NewStopReferences(list), false))
}

func (api *RestAPI) stopStatsHandler(w http.ResponseWriter, r *http.Request) {
	api.sendResponse(w, r, models.NewEntryResponse(api.Stops.Stats(), models.NewEmptyReferences()))
}

func (api *RestAPI) clearStopCacheHandler(w http.ResponseWriter, r *http.Request) {
	api.Stops.ClearCache()
	api.sendResponse(w, r, models.NewEntryResponse(api.Stops.Stats(), models.NewEmptyReferences()))
}
