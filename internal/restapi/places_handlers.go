package restapi

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"rentmap.hu/internal/auth"
	"rentmap.hu/internal/places"
	"rentmap.hu/internal/utils"
)

const maxPlaceBodyBytes = 1 << 20

type placesListResponse struct {
	Places []places.Place `json:"places"`
}

func (api *RestAPI) listPlacesHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	query := r.URL.Query()

	fieldErrors := make(map[string][]string)
	term, err := utils.ValidateAndSanitizeQuery(query.Get("q"))
	if err != nil {
		fieldErrors["q"] = []string{err.Error()}
	}

	var criteria places.FilterCriteria
	criteria.MinPrice, fieldErrors = utils.ParseOptionalFloat(query, "minPrice", fieldErrors)
	criteria.MaxPrice, fieldErrors = utils.ParseOptionalFloat(query, "maxPrice", fieldErrors)
	criteria.MinFloor, fieldErrors = utils.ParseOptionalInt(query, "minFloor", fieldErrors)
	criteria.MaxFloor, fieldErrors = utils.ParseOptionalInt(query, "maxFloor", fieldErrors)
	criteria.HasElevator, fieldErrors = utils.ParseOptionalBool(query, "hasElevator", fieldErrors)
	if len(fieldErrors) > 0 {
		api.validationErrorResponse(w, r, fieldErrors)
		return
	}

	list, err := api.Places.List(r.Context(), userID, term, criteria)
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	api.sendJSON(w, r, http.StatusOK, placesListResponse{Places: list})
}

func (api *RestAPI) getPlaceHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := api.placeID(w, r)
	if !ok {
		return
	}
	userID, _ := auth.UserIDFromContext(r.Context())

	place, err := api.Places.Get(r.Context(), userID, id)
	if err != nil {
		api.placesErrorResponse(w, r, err)
		return
	}
	api.sendJSON(w, r, http.StatusOK, place)
}

func (api *RestAPI) createPlaceHandler(w http.ResponseWriter, r *http.Request) {
	in, ok := api.decodePlaceInput(w, r)
	if !ok {
		return
	}
	userID, _ := auth.UserIDFromContext(r.Context())

	place, err := api.Places.Create(r.Context(), userID, in)
	if err != nil {
		api.placesErrorResponse(w, r, err)
		return
	}
	api.sendJSON(w, r, http.StatusCreated, place)
}

func (api *RestAPI) updatePlaceHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := api.placeID(w, r)
	if !ok {
		return
	}
	in, ok := api.decodePlaceInput(w, r)
	if !ok {
		return
	}
	userID, _ := auth.UserIDFromContext(r.Context())

	place, err := api.Places.Update(r.Context(), userID, id, in)
	if err != nil {
		api.placesErrorResponse(w, r, err)
		return
	}
	api.sendJSON(w, r, http.StatusOK, place)
}

func (api *RestAPI) deletePlaceHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := api.placeID(w, r)
	if !ok {
		return
	}
	userID, _ := auth.UserIDFromContext(r.Context())

	if err := api.Places.Delete(r.Context(), userID, id); err != nil {
		api.placesErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *RestAPI) placeID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := utils.ExtractIDFromParams(r, "id")
	if err := utils.ValidateID(id); err != nil {
		api.validationErrorResponse(w, r, map[string][]string{"id": {err.Error()}})
		return "", false
	}
	return id, true
}

func (api *RestAPI) decodePlaceInput(w http.ResponseWriter, r *http.Request) (places.Input, bool) {
	var in places.Input
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPlaceBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		msg := "Invalid JSON body."
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = "Request body too large."
		}
		api.validationErrorResponse(w, r, map[string][]string{"body": {msg}})
		return in, false
	}
	return in, true
}
