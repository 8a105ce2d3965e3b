package scheduler

import (
	"context"
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

func newTestScheduler(t *testing.T, opts Options) (*Scheduler, *store.Store, *state.Tracker, *queue.Manager, chan string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	storeInstance, err := store.Initialize(context.Background(), map[string]string{"sqlite": dbPath})
	require.NoError(t, err)
	t.Cleanup(func() { _ = storeInstance.Close() })

	ran := make(chan string, 32)
	tracker := state.NewTracker(storeInstance)

	q := queue.NewManager(context.Background())
	handler := func(ctx context.Context, job types.Job) (any, error) {
		ran <- job.TransferID
		tracker.Finish(job.TransferID, state.Outcome{})
		return nil, nil
	}
	// Single workers keep execution order deterministic for assertions.
	q.Register(types.TaskRunCollectionSystemTransfer, 1, handler)
	q.Register(types.TaskRunShipToShoreTransfer, 1, handler)
	q.Register(types.TaskRefreshUsageStats, 1, func(ctx context.Context, job types.Job) (any, error) {
		return nil, nil
	})
	q.Start()
	t.Cleanup(q.Close)

	return New(storeInstance, tracker, q, opts), storeInstance, tracker, q, ran
}

func createDef(t *testing.T, s *store.Store, def types.TransferDefinition) string {
	t.Helper()
	id, err := s.Database.CreateTransfer(nil, def)
	require.NoError(t, err)
	return id
}

func collectionDef(name string) types.TransferDefinition {
	return types.TransferDefinition{
		Name:         name,
		Category:     types.CategoryCollectionSystem,
		Scope:        types.ScopeCruise,
		TransferType: types.TransferLocalDir,
		SourceDir:    "/mnt/" + name,
		DestDir:      "/data/warehouse/{cruiseID}/" + name,
		Enable:       true,
	}
}

func TestEligible(t *testing.T) {
	sched, storeInstance, tracker, _, _ := newTestScheduler(t, Options{RetryErrored: true})

	id := createDef(t, storeInstance, collectionDef("gravimeter"))
	def, err := storeInstance.Database.GetTransfer(id)
	require.NoError(t, err)

	vctx := types.VoyageContext{CruiseID: "FK240101", SystemOn: true}
	assert.True(t, sched.Eligible(def, vctx))

	disabled := def
	disabled.Enable = false
	assert.False(t, sched.Eligible(disabled, vctx))

	lowering := def
	lowering.Scope = types.ScopeLowering
	assert.False(t, sched.Eligible(lowering, vctx))
	vctx.LoweringID = "FK240101_L01"
	assert.True(t, sched.Eligible(lowering, vctx))

	_ = tracker
}

func TestEligibleErrorPolicy(t *testing.T) {
	sched, storeInstance, tracker, _, _ := newTestScheduler(t, Options{RetryErrored: false})

	id := createDef(t, storeInstance, collectionDef("gravimeter"))
	require.NoError(t, tracker.TryStart(id))
	tracker.Finish(id, state.Outcome{Err: assert.AnError})

	def, err := storeInstance.Database.GetTransfer(id)
	require.NoError(t, err)

	vctx := types.VoyageContext{CruiseID: "FK240101", SystemOn: true}
	assert.False(t, sched.Eligible(def, vctx))

	sched.SetRetryErrored(true)
	assert.True(t, sched.Eligible(def, vctx))
}

func TestCycleEnqueuesEligibleTransfers(t *testing.T) {
	sched, storeInstance, _, _, ran := newTestScheduler(t, Options{RetryErrored: true})

	createDef(t, storeInstance, collectionDef("gravimeter"))
	disabled := collectionDef("adcp")
	disabled.Enable = false
	createDef(t, storeInstance, disabled)

	vctx := types.VoyageContext{CruiseID: "FK240101", SystemOn: true}
	require.NoError(t, storeInstance.Database.SetVoyageContext(vctx))

	sched.cycleCollectionSystems(vctx)

	select {
	case id := <-ran:
		assert.Equal(t, "gravimeter", id)
	case <-time.After(2 * time.Second):
		t.Fatal("eligible transfer was not enqueued")
	}

	select {
	case id := <-ran:
		t.Fatalf("unexpected run for %s", id)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCycleSkipsRunningTransfer(t *testing.T) {
	sched, storeInstance, tracker, _, ran := newTestScheduler(t, Options{RetryErrored: true})

	id := createDef(t, storeInstance, collectionDef("gravimeter"))
	require.NoError(t, tracker.TryStart(id))

	vctx := types.VoyageContext{CruiseID: "FK240101", SystemOn: true}
	sched.cycleCollectionSystems(vctx)

	select {
	case got := <-ran:
		t.Fatalf("claimed transfer %s was enqueued again", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestShipToShoreCycleHonorsPriority(t *testing.T) {
	sched, storeInstance, _, _, ran := newTestScheduler(t, Options{RetryErrored: true})

	mk := func(name string, priority int) {
		def := types.TransferDefinition{
			Name:         name,
			Category:     types.CategoryShipToShore,
			TransferType: types.TransferRsyncServer,
			Server:       "shore.example.org",
			SourceDir:    "/data/warehouse/{cruiseID}",
			DestDir:      "/shoreside/" + name,
			Priority:     priority,
			Enable:       true,
		}
		createDef(t, storeInstance, def)
	}
	mk("Backup", 5)
	mk("Critical", 1)

	sched.cycleShipToShore()

	first := <-ran
	second := <-ran
	assert.Equal(t, "critical", first)
	assert.Equal(t, "backup", second)
}
