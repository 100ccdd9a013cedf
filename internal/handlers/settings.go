package handlers

import (
	"net/http"

	"github.com/nvoloshin/callmeter/internal/handlers/render"
	"github.com/nvoloshin/callmeter/internal/logger"
)

// The settings collaborator pushes rate changes by flushing the cache; the
// next settlement pass picks the new values up from the database.
func handleInvalidateSettings(cache settingsCache, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := cache.Invalidate(r.Context()); err != nil {
			l.Error("Failed to invalidate settings cache", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, map[string]bool{"invalidated": true})
	})
}
