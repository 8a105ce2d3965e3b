package usagestats

import (
	"net/http"

	"github.com/vesseldata/vesseldata/internal/backend/usage"
	"github.com/vesseldata/vesseldata/internal/proxy/controllers"
)

// Handler serves the cached warehouse usage measurements.
func Handler(cache *usage.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Invalid HTTP method", http.StatusBadRequest)
			return
		}

		all, err := cache.All()
		if err != nil {
			controllers.WriteErrorResponse(w, err)
			return
		}
		controllers.WriteJSON(w, map[string]any{"data": all})
	}
}
