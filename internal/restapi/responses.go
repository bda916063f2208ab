package restapi

import (
	"net/http"

	"github.com/goccy/go-json"

	"rentmap.hu/internal/models"
)

func (api *RestAPI) sendResponse(w http.ResponseWriter, r *http.Request, response models.ResponseModel) {
	api.sendJSON(w, r, http.StatusOK, response)
}

func (api *RestAPI) sendJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	setJSONResponseType(w)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.Logger.Error("failed to encode response", "error", err, "path", r.URL.Path)
	}
}

func setJSONResponseType(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
}
