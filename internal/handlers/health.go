// internal/handlers/health.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/closemaster/closemaster/internal/game"
)

// PingHandler reports liveness plus a couple of gauges.
func PingHandler(reg *game.Registry, hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":      "ok",
			"rooms":       reg.Count(),
			"connections": hub.Len(),
		})
	}
}
