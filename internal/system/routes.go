package system

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/dunehd-hub-go/internal/api"
)

// RegisterRoutes wires system and health routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/system/info", api.Handler(getSystemInfo(service)))

	router.Method(http.MethodGet, "/v1/health", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{
			"status":    "healthy",
			"service":   "dunehd-hub",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}))
	router.Method(http.MethodGet, "/v1/health/live", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}))
	router.Method(http.MethodGet, "/v1/health/ready", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		if !service.Ready(r.Context()) {
			return api.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready"})
		}
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	}))
}

// GET /v1/system/info
func getSystemInfo(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		info := service.GetSystemInfo(r.Context())
		return api.WriteResource(w, http.StatusOK, formatSystemInfo(info))
	}
}

func formatSystemInfo(info SystemInfo) map[string]any {
	return map[string]any{
		"object":            "system_info",
		"hub_version":       info.HubVersion,
		"uptime_seconds":    info.Uptime,
		"memory_mb":         info.MemoryUsageMB,
		"goroutines":        info.Goroutines,
		"sqlite_connected":  info.SQLiteConnected,
		"audit_healthy":     info.AuditHealthy,
		"mqtt_enabled":      info.MQTTEnabled,
		"devices_connected": info.DevicesConnected,
		"devices_total":     info.DevicesTotal,
		"hub_state":         string(info.HubState),
	}
}
