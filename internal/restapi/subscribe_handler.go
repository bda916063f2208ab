package restapi

import (
	"log/slog"
	"net/http"

	"rentmap.hu/internal/auth"
	"rentmap.hu/internal/logging"
)

// subscribeHandler upgrades to the per-user change channel. The upgrader writes its
// own error response when the handshake fails.
func (api *RestAPI) subscribeHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	if err := api.Hub.ServeWS(w, r, userID); err != nil {
		logging.LogError(api.Logger, "websocket upgrade failed", err, slog.String("user_id", userID))
	}
}
