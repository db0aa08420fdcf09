package stream

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/strefethen/dunehd-hub-go/internal/api"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Remote UIs are served from other origins
	},
}

// RegisterRoutes wires the event stream routes to the router.
func RegisterRoutes(router chi.Router, hub *Hub) {
	router.Get("/ws/events", websocketHandler(hub))

	router.Method(http.MethodGet, "/v1/stream/status", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		status := hub.GetStatus()
		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":  "stream_status",
			"clients": status.Clients,
		})
	}))
}

func websocketHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade failed - error already written to response
			return
		}

		hub.AddConnection(conn)
	}
}
