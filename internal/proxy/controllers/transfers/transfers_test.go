package transfers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vesseldata/vesseldata/internal/backend/queue"
	"github.com/vesseldata/vesseldata/internal/backend/state"
	"github.com/vesseldata/vesseldata/internal/store"
	"github.com/vesseldata/vesseldata/internal/store/types"
)

func newTestMux(t *testing.T) (*http.ServeMux, *store.Store, *state.Tracker, chan string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	storeInstance, err := store.Initialize(context.Background(), map[string]string{"sqlite": dbPath})
	require.NoError(t, err)
	t.Cleanup(func() { _ = storeInstance.Close() })

	tracker := state.NewTracker(storeInstance)
	ran := make(chan string, 8)

	q := queue.NewManager(context.Background())
	q.Register(types.TaskRunCollectionSystemTransfer, 1, func(ctx context.Context, job types.Job) (any, error) {
		ran <- job.TransferID
		tracker.Finish(job.TransferID, state.Outcome{})
		return nil, nil
	})
	q.Register(types.TaskRebuildCruiseDirectory, 1, func(ctx context.Context, job types.Job) (any, error) {
		ran <- "rebuild"
		return nil, nil
	})
	q.Start()
	t.Cleanup(q.Close)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/transfers", ListHandler(storeInstance))
	mux.HandleFunc("/api/v1/transfers/{transfer}", SingleHandler(storeInstance, tracker, q))
	mux.HandleFunc("/api/v1/transfers/{transfer}/run", RunHandler(storeInstance, tracker, q))
	mux.HandleFunc("/api/v1/transfers/{transfer}/stop", StopHandler(tracker))
	mux.HandleFunc("/api/v1/transfers/{transfer}/status", StatusHandler(tracker))
	mux.HandleFunc("/api/v1/statuses", StatusesHandler(tracker))

	return mux, storeInstance, tracker, ran
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func testDefinition() types.TransferDefinition {
	return types.TransferDefinition{
		Name:         "Gravimeter",
		Category:     types.CategoryCollectionSystem,
		Scope:        types.ScopeCruise,
		TransferType: types.TransferLocalDir,
		SourceDir:    "/mnt/gravimeter",
		DestDir:      "/data/warehouse/{cruiseID}/gravimeter",
		Enable:       true,
	}
}

func TestCreateListGetDelete(t *testing.T) {
	mux, _, _, _ := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/transfers", testDefinition())
	require.Equal(t, http.StatusOK, rec.Code)

	var created createResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, "gravimeter", created.ID)

	rec = doJSON(t, mux, http.MethodGet, "/api/v1/transfers?category=collection_system", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list listResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, "Gravimeter", list.Data[0].Name)

	rec = doJSON(t, mux, http.MethodGet, "/api/v1/transfers/gravimeter", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodDelete, "/api/v1/transfers/gravimeter", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/api/v1/transfers/gravimeter", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetMissingTransfer(t *testing.T) {
	mux, _, _, _ := newTestMux(t)
	rec := doJSON(t, mux, http.MethodGet, "/api/v1/transfers/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunEnqueuesTransfer(t *testing.T) {
	mux, _, _, ran := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/transfers", testDefinition())
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/v1/transfers/gravimeter/run", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp runResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.Handle)

	select {
	case id := <-ran:
		assert.Equal(t, "gravimeter", id)
	case <-time.After(2 * time.Second):
		t.Fatal("run task never reached a worker")
	}
}

func TestRunConflictsWhileClaimed(t *testing.T) {
	mux, _, tracker, _ := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/transfers", testDefinition())
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, tracker.TryStart("gravimeter"))

	rec = doJSON(t, mux, http.MethodPost, "/api/v1/transfers/gravimeter/run", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeleteConflictsWhileClaimed(t *testing.T) {
	mux, _, tracker, _ := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/transfers", testDefinition())
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, tracker.TryStart("gravimeter"))

	rec = doJSON(t, mux, http.MethodDelete, "/api/v1/transfers/gravimeter", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStatusAndStatuses(t *testing.T) {
	mux, _, tracker, _ := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/transfers", testDefinition())
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, tracker.TryStart("gravimeter"))

	rec = doJSON(t, mux, http.MethodGet, "/api/v1/transfers/gravimeter/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snap state.Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	assert.Equal(t, types.StatusQueued, snap.Status)

	rec = doJSON(t, mux, http.MethodGet, "/api/v1/statuses?category=collection_system", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/api/v1/statuses?category=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStopIdleTransferSucceeds(t *testing.T) {
	mux, _, _, _ := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/transfers", testDefinition())
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/v1/transfers/gravimeter/stop", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateTransfer(t *testing.T) {
	mux, storeInstance, _, _ := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/transfers", testDefinition())
	require.Equal(t, http.StatusOK, rec.Code)

	def := testDefinition()
	def.LongName = "Marine Gravimeter"
	rec = doJSON(t, mux, http.MethodPut, "/api/v1/transfers/gravimeter", def)
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := storeInstance.Database.GetTransfer("gravimeter")
	require.NoError(t, err)
	assert.Equal(t, "Marine Gravimeter", got.LongName)
}

func TestUpdateDestDirEnqueuesRebuild(t *testing.T) {
	mux, _, _, ran := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/transfers", testDefinition())
	require.Equal(t, http.StatusOK, rec.Code)

	def := testDefinition()
	def.DestDir = "/data/warehouse/{cruiseID}/instruments/gravimeter"
	rec = doJSON(t, mux, http.MethodPut, "/api/v1/transfers/gravimeter", def)
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case got := <-ran:
		assert.Equal(t, "rebuild", got)
	case <-time.After(2 * time.Second):
		t.Fatal("directory rebuild was never enqueued")
	}
}
