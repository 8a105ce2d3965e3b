// Package tasks binds the dispatch fabric's task kinds to their
// handlers: transfer execution, connectivity tests, and the
// post-transfer maintenance pipeline.
package tasks

import (
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/vesseldata/vesseldata/internal/backend/hooks"
	"github.com/vesseldata/vesseldata/internal/backend/queue"
	"github.com/vesseldata/vesseldata/internal/backend/state"
	"github.com/vesseldata/vesseldata/internal/backend/usage"
	"github.com/vesseldata/vesseldata/internal/store"
	"github.com/vesseldata/vesseldata/internal/store/constants"
	"github.com/vesseldata/vesseldata/internal/store/types"
)

// Options are the runner's boot-time settings.
type Options struct {
	// RunLogDir holds the per-transfer run log files.
	RunLogDir string
	// CruiseDataDir is the root of the local data warehouse; the
	// active cruise's directory lives directly under it.
	CruiseDataDir string
	// DashboardCommand and DashboardArgs name the external dashboard
	// rebuild tool. An empty command makes the dashboard task a no-op.
	DashboardCommand string
	DashboardArgs    []string
}

// Runner owns the task handlers. It is registered into the queue at
// boot; the hook dispatcher is attached afterwards since it needs the
// queue's registrations to validate its table.
type Runner struct {
	store   *store.Store
	tracker *state.Tracker
	usage   *usage.Cache
	opts    Options

	dispatcher *hooks.Dispatcher

	// md5Cache remembers per-file checksums between summary rebuilds so
	// unchanged files are never re-read.
	md5Cache *xsync.MapOf[string, md5Entry]
}

func NewRunner(s *store.Store, tracker *state.Tracker, usageCache *usage.Cache, opts Options) *Runner {
	if opts.RunLogDir == "" {
		opts.RunLogDir = constants.RunLogsBasePath
	}
	return &Runner{
		store:    s,
		tracker:  tracker,
		usage:    usageCache,
		opts:     opts,
		md5Cache: xsync.NewMapOf[string, md5Entry](),
	}
}

// SetDispatcher attaches the hook dispatcher once it exists. Must be
// called before queue workers start.
func (r *Runner) SetDispatcher(d *hooks.Dispatcher) {
	r.dispatcher = d
}

// Register binds every task kind to its handler. Transfer-executing
// kinds share the transfer pool size; maintenance kinds are serialized
// on a single worker each.
func (r *Runner) Register(q *queue.Manager) {
	q.Register(types.TaskRunCollectionSystemTransfer, constants.TransferWorkers, r.runTransfer)
	q.Register(types.TaskRunCruiseDataTransfer, constants.TransferWorkers, r.runTransfer)
	q.Register(types.TaskRunShipToShoreTransfer, constants.TransferWorkers, r.runTransfer)
	q.Register(types.TaskTestTransfer, constants.TransferWorkers, r.testTransfer)
	q.Register(types.TaskUpdateDataDashboard, 1, r.updateDataDashboard)
	q.Register(types.TaskUpdateMD5Summary, 1, r.updateMD5Summary)
	q.Register(types.TaskRebuildCruiseDirectory, 1, r.rebuildCruiseDirectory)
	q.Register(types.TaskRefreshUsageStats, 1, r.refreshUsageStats)
}
