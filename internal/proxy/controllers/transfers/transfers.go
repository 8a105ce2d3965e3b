package transfers

import (
	"encoding/json"
	"net/http"

	"github.com/vesseldata/vesseldata/internal/backend/queue"
	"github.com/vesseldata/vesseldata/internal/backend/state"
	"github.com/vesseldata/vesseldata/internal/proxy/controllers"
	"github.com/vesseldata/vesseldata/internal/store"
	"github.com/vesseldata/vesseldata/internal/store/types"
	"github.com/vesseldata/vesseldata/internal/syslog"
)

type listResponse struct {
	Data []types.TransferDefinition `json:"data"`
}

type createResponse struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
}

type runResponse struct {
	Handle  string `json:"handle,omitempty"`
	Success bool   `json:"success"`
}

// ListHandler serves the definition collection: GET lists (optionally
// one category), POST creates.
func ListHandler(storeInstance *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			var (
				data []types.TransferDefinition
				err  error
			)
			if category := r.URL.Query().Get("category"); category != "" {
				data, err = storeInstance.Database.GetTransfersByCategory(types.TransferCategory(category))
			} else {
				data, err = storeInstance.Database.GetAllTransfers()
			}
			if err != nil {
				controllers.WriteErrorResponse(w, err)
				return
			}
			controllers.WriteJSON(w, listResponse{Data: data})

		case http.MethodPost:
			var def types.TransferDefinition
			if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			id, err := storeInstance.Database.CreateTransfer(nil, def)
			if err != nil {
				controllers.WriteErrorResponse(w, err)
				return
			}
			controllers.WriteJSON(w, createResponse{ID: id, Success: true})

		default:
			http.Error(w, "Invalid HTTP method", http.StatusBadRequest)
		}
	}
}

// SingleHandler serves one definition: GET, PUT, DELETE. An edit that
// moves the destination enqueues a directory rebuild so the warehouse
// skeleton follows the configuration.
func SingleHandler(storeInstance *store.Store, tracker *state.Tracker, q *queue.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("transfer")

		switch r.Method {
		case http.MethodGet:
			def, err := storeInstance.Database.GetTransfer(id)
			if err != nil {
				controllers.WriteErrorResponse(w, err)
				return
			}
			controllers.WriteJSON(w, def)

		case http.MethodPut:
			var def types.TransferDefinition
			if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			def.ID = id

			prev, err := storeInstance.Database.GetTransfer(id)
			if err != nil {
				controllers.WriteErrorResponse(w, err)
				return
			}
			if err := storeInstance.Database.UpdateTransfer(nil, def); err != nil {
				controllers.WriteErrorResponse(w, err)
				return
			}
			if def.DestDir != prev.DestDir {
				if _, err := q.Submit(types.TaskRebuildCruiseDirectory, ""); err != nil {
					syslog.L.Error(err).WithTransfer(id).
						WithMessage("failed to enqueue directory rebuild after destination change").Write()
				}
			}
			controllers.WriteJSON(w, map[string]bool{"success": true})

		case http.MethodDelete:
			// A live run keeps its claim; deleting under it would orphan
			// the worker's record.
			snap, err := tracker.Snapshot(id)
			if err != nil {
				controllers.WriteErrorResponse(w, err)
				return
			}
			if !snap.Status.Startable() {
				controllers.WriteErrorResponse(w, state.ErrAlreadyRunning)
				return
			}
			if err := storeInstance.Database.DeleteTransfer(id); err != nil {
				controllers.WriteErrorResponse(w, err)
				return
			}
			controllers.WriteJSON(w, map[string]bool{"success": true})

		default:
			http.Error(w, "Invalid HTTP method", http.StatusBadRequest)
		}
	}
}

// RunHandler claims the definition and enqueues its run task, exactly
// like a scheduler cycle would.
func RunHandler(storeInstance *store.Store, tracker *state.Tracker, q *queue.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Invalid HTTP method", http.StatusBadRequest)
			return
		}

		def, err := storeInstance.Database.GetTransfer(r.PathValue("transfer"))
		if err != nil {
			controllers.WriteErrorResponse(w, err)
			return
		}

		task, ok := types.RunTaskFor(def.Category)
		if !ok {
			http.Error(w, "transfer category is not runnable", http.StatusBadRequest)
			return
		}

		if err := tracker.TryStart(def.ID); err != nil {
			controllers.WriteErrorResponse(w, err)
			return
		}

		handle, err := q.Submit(task, def.ID)
		if err != nil {
			tracker.Finish(def.ID, state.Outcome{Err: err})
			controllers.WriteErrorResponse(w, err)
			return
		}

		controllers.WriteJSON(w, runResponse{Handle: handle, Success: true})
	}
}

// StopHandler requests termination of the definition's current run.
// Stopping an idle definition succeeds as a no-op.
func StopHandler(tracker *state.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Invalid HTTP method", http.StatusBadRequest)
			return
		}

		if err := tracker.RequestStop(r.PathValue("transfer")); err != nil {
			controllers.WriteErrorResponse(w, err)
			return
		}
		controllers.WriteJSON(w, map[string]bool{"success": true})
	}
}

// TestHandler runs the connectivity test synchronously and returns its
// report.
func TestHandler(q *queue.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Invalid HTTP method", http.StatusBadRequest)
			return
		}

		report, err := q.SubmitWait(r.Context(), types.TaskTestTransfer, r.PathValue("transfer"))
		if err != nil {
			controllers.WriteErrorResponse(w, err)
			return
		}
		controllers.WriteJSON(w, report)
	}
}

// StatusHandler returns the live snapshot of one definition.
func StatusHandler(tracker *state.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Invalid HTTP method", http.StatusBadRequest)
			return
		}

		snap, err := tracker.Snapshot(r.PathValue("transfer"))
		if err != nil {
			controllers.WriteErrorResponse(w, err)
			return
		}
		controllers.WriteJSON(w, snap)
	}
}

// StatusesHandler returns the snapshots of a whole category for the
// list views.
func StatusesHandler(tracker *state.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Invalid HTTP method", http.StatusBadRequest)
			return
		}

		category := types.TransferCategory(r.URL.Query().Get("category"))
		if !category.Valid() {
			http.Error(w, "unknown category", http.StatusBadRequest)
			return
		}

		snaps, err := tracker.StatusesOf(category)
		if err != nil {
			controllers.WriteErrorResponse(w, err)
			return
		}
		controllers.WriteJSON(w, map[string]any{"data": snaps})
	}
}
