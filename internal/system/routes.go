package system

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/vr-console-go/internal/api"
)

// RegisterRoutes wires system routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/system/info", api.Handler(getSystemInfo(service)))
	router.Method(http.MethodGet, "/v1/system/attention", api.Handler(getAttention(service)))
}

// getSystemInfo handles GET /v1/system/info
func getSystemInfo(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		info := service.GetSystemInfo()
		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":              "system_info",
			"version":             info.Version,
			"uptime_seconds":      info.Uptime,
			"memory_mb":           info.MemoryUsageMB,
			"goroutines":          info.Goroutines,
			"sqlite_connected":    info.SQLiteConnected,
			"devices_online":      info.DevicesOnline,
			"devices_total":       info.DevicesTotal,
			"sessions_running":    info.SessionsRunning,
			"realtime_enabled":    info.RealtimeEnabled,
			"realtime_connected":  info.RealtimeConnected,
			"console_clients":     info.ConsoleClients,
			"audit_prune_running": info.AuditPruneRunning,
		})
	}
}

// getAttention handles GET /v1/system/attention
func getAttention(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteList(w, "/v1/system/attention", service.Attention(), false)
	}
}
