package voyage

import (
	"encoding/json"
	"net/http"

	"github.com/vesseldata/vesseldata/internal/backend/queue"
	"github.com/vesseldata/vesseldata/internal/proxy/controllers"
	"github.com/vesseldata/vesseldata/internal/store"
	"github.com/vesseldata/vesseldata/internal/store/types"
	"github.com/vesseldata/vesseldata/internal/syslog"
)

// ContextHandler serves the voyage context: GET reads it, PUT replaces
// it.
func ContextHandler(storeInstance *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			vctx, err := storeInstance.Database.GetVoyageContext()
			if err != nil {
				controllers.WriteErrorResponse(w, err)
				return
			}
			controllers.WriteJSON(w, vctx)

		case http.MethodPut:
			var vctx types.VoyageContext
			if err := json.NewDecoder(r.Body).Decode(&vctx); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if err := storeInstance.Database.SetVoyageContext(vctx); err != nil {
				controllers.WriteErrorResponse(w, err)
				return
			}
			syslog.L.Info().
				WithField("cruiseID", vctx.CruiseID).
				WithField("loweringID", vctx.LoweringID).
				WithMessage("voyage context updated").Write()
			controllers.WriteJSON(w, map[string]bool{"success": true})

		default:
			http.Error(w, "Invalid HTTP method", http.StatusBadRequest)
		}
	}
}

type systemRequest struct {
	SystemOn bool `json:"systemOn"`
}

// SystemHandler flips the master scheduling switch without touching the
// rest of the voyage context.
func SystemHandler(storeInstance *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Invalid HTTP method", http.StatusBadRequest)
			return
		}

		var req systemRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		vctx, err := storeInstance.Database.GetVoyageContext()
		if err != nil {
			controllers.WriteErrorResponse(w, err)
			return
		}
		vctx.SystemOn = req.SystemOn
		if err := storeInstance.Database.SetVoyageContext(vctx); err != nil {
			controllers.WriteErrorResponse(w, err)
			return
		}

		syslog.L.Info().WithField("systemOn", req.SystemOn).WithMessage("system switch changed").Write()
		controllers.WriteJSON(w, map[string]bool{"success": true})
	}
}

// RebuildHandler enqueues a cruise directory rebuild.
func RebuildHandler(q *queue.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Invalid HTTP method", http.StatusBadRequest)
			return
		}

		handle, err := q.Submit(types.TaskRebuildCruiseDirectory, "")
		if err != nil {
			controllers.WriteErrorResponse(w, err)
			return
		}
		controllers.WriteJSON(w, map[string]any{"handle": handle, "success": true})
	}
}
