package console

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/vr-console-go/internal/api"
)

// RegisterRoutes wires the console socket and its status endpoint.
func RegisterRoutes(router chi.Router, hub *Hub) {
	router.Handle("/ws/console", hub)
	router.Method(http.MethodGet, "/v1/console/status", api.Handler(statusHandler(hub)))
}

func statusHandler(hub *Hub) api.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":  "console_status",
			"clients": hub.ClientCount(),
		})
	}
}
