package hooks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vesseldata/vesseldata/internal/backend/queue"
	"github.com/vesseldata/vesseldata/internal/store/types"
)

type recorder struct {
	mu   sync.Mutex
	seen []types.TaskKind
	done chan struct{}
	want int
}

func (r *recorder) record(kind types.TaskKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, kind)
	if len(r.seen) == r.want {
		close(r.done)
	}
}

func (r *recorder) wait(t *testing.T) []types.TaskKind {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for follow-on tasks")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.TaskKind(nil), r.seen...)
}

func TestDispatcherValidatesTable(t *testing.T) {
	q := queue.NewManager(context.Background())
	q.Register(types.TaskRunCollectionSystemTransfer, 1,
		func(ctx context.Context, job types.Job) (any, error) { return nil, nil })

	_, err := NewDispatcher(Table{
		types.TaskRunCollectionSystemTransfer: {types.TaskUpdateDataDashboard},
	}, nil, q, nil)
	assert.Error(t, err)
}

func TestCompletionChain(t *testing.T) {
	rec := &recorder{done: make(chan struct{}), want: 2}

	q := queue.NewManager(context.Background())
	defer q.Close()

	var d *Dispatcher

	q.Register(types.TaskUpdateDataDashboard, 1, func(ctx context.Context, job types.Job) (any, error) {
		rec.record(job.Task)
		// A finished dashboard rebuild triggers its own followers.
		d.OnComplete(job.Task, types.TransferDefinition{ID: job.TransferID}, nil)
		return nil, nil
	})
	q.Register(types.TaskUpdateMD5Summary, 1, func(ctx context.Context, job types.Job) (any, error) {
		rec.record(job.Task)
		return nil, nil
	})
	q.Register(types.TaskRunCollectionSystemTransfer, 1,
		func(ctx context.Context, job types.Job) (any, error) { return nil, nil })
	q.Register(types.TaskRunCruiseDataTransfer, 1,
		func(ctx context.Context, job types.Job) (any, error) { return nil, nil })

	var err error
	d, err = NewDispatcher(DefaultTable(), nil, q, nil)
	require.NoError(t, err)

	q.Start()

	def := types.TransferDefinition{ID: "gravimeter", Name: "Gravimeter"}
	d.OnComplete(types.TaskRunCollectionSystemTransfer, def, nil)

	seen := rec.wait(t)
	assert.Equal(t, []types.TaskKind{types.TaskUpdateDataDashboard, types.TaskUpdateMD5Summary}, seen)
}

func TestNoFollowersForUnlistedKind(t *testing.T) {
	q := queue.NewManager(context.Background())
	defer q.Close()

	submitted := make(chan types.TaskKind, 8)
	q.Register(types.TaskUpdateMD5Summary, 1, func(ctx context.Context, job types.Job) (any, error) {
		submitted <- job.Task
		return nil, nil
	})

	d, err := NewDispatcher(Table{}, nil, q, nil)
	require.NoError(t, err)
	q.Start()

	d.OnComplete(types.TaskRefreshUsageStats, types.TransferDefinition{ID: "x"}, nil)

	select {
	case kind := <-submitted:
		t.Fatalf("unexpected follow-on task %s", kind)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCruiseDataTriggersChecksumOnly(t *testing.T) {
	rec := &recorder{done: make(chan struct{}), want: 1}

	q := queue.NewManager(context.Background())
	defer q.Close()

	q.Register(types.TaskUpdateDataDashboard, 1, func(ctx context.Context, job types.Job) (any, error) {
		rec.record(job.Task)
		return nil, nil
	})
	q.Register(types.TaskUpdateMD5Summary, 1, func(ctx context.Context, job types.Job) (any, error) {
		rec.record(job.Task)
		return nil, nil
	})
	q.Register(types.TaskRunCollectionSystemTransfer, 1,
		func(ctx context.Context, job types.Job) (any, error) { return nil, nil })
	q.Register(types.TaskRunCruiseDataTransfer, 1,
		func(ctx context.Context, job types.Job) (any, error) { return nil, nil })

	d, err := NewDispatcher(DefaultTable(), nil, q, nil)
	require.NoError(t, err)
	q.Start()

	d.OnComplete(types.TaskRunCruiseDataTransfer, types.TransferDefinition{ID: "warehouse"}, nil)

	seen := rec.wait(t)
	assert.Equal(t, []types.TaskKind{types.TaskUpdateMD5Summary}, seen)
}
