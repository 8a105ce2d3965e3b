package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/vesseldata/vesseldata/internal/backend/queue"
	"github.com/vesseldata/vesseldata/internal/backend/state"
	"github.com/vesseldata/vesseldata/internal/store"
	"github.com/vesseldata/vesseldata/internal/store/types"
	"github.com/vesseldata/vesseldata/internal/syslog"
)

// Options are the boot-time scheduling knobs.
type Options struct {
	// TransferInterval is the collection system evaluation cycle.
	TransferInterval time.Duration
	// ShipToShoreInterval paces the outbound pushes; zero disables
	// automatic ship-to-shore scheduling.
	ShipToShoreInterval time.Duration
	// UsageInterval paces the directory size refresh task.
	UsageInterval time.Duration
	// RetryErrored re-attempts definitions left in Error state every
	// cycle. When false they wait for operator intervention.
	RetryErrored bool
}

// Scheduler is the timer-driven producer of transfer work. It only
// enqueues; it never blocks on a transfer.
type Scheduler struct {
	store   *store.Store
	tracker *state.Tracker
	queue   *queue.Manager
	opts    Options

	retryErrored atomic.Bool
}

func New(s *store.Store, tracker *state.Tracker, q *queue.Manager, opts Options) *Scheduler {
	if opts.TransferInterval <= 0 {
		opts.TransferInterval = 5 * time.Minute
	}
	sched := &Scheduler{store: s, tracker: tracker, queue: q, opts: opts}
	sched.retryErrored.Store(opts.RetryErrored)
	return sched
}

// SetRetryErrored applies a config reload without restarting the loop.
func (s *Scheduler) SetRetryErrored(v bool) {
	s.retryErrored.Store(v)
}

// Run loops until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.TransferInterval)
	defer ticker.Stop()

	var lastShipToShore, lastUsage time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			vctx, err := s.store.Database.GetVoyageContext()
			if err != nil {
				syslog.L.Error(err).WithMessage("scheduler: failed to read voyage context").Write()
				continue
			}
			if !vctx.SystemOn {
				continue
			}

			s.cycleCollectionSystems(vctx)

			if s.opts.ShipToShoreInterval > 0 && now.Sub(lastShipToShore) >= s.opts.ShipToShoreInterval {
				lastShipToShore = now
				s.cycleShipToShore()
			}
			if s.opts.UsageInterval > 0 && now.Sub(lastUsage) >= s.opts.UsageInterval {
				lastUsage = now
				if _, err := s.queue.Submit(types.TaskRefreshUsageStats, ""); err != nil {
					syslog.L.Error(err).WithMessage("scheduler: failed to enqueue usage refresh").Write()
				}
			}
		}
	}
}

// cycleCollectionSystems evaluates every enabled collection system
// definition independently: one definition already running never
// blocks evaluation of the others.
func (s *Scheduler) cycleCollectionSystems(vctx types.VoyageContext) {
	transfers, err := s.store.Database.GetTransfersByCategory(types.CategoryCollectionSystem)
	if err != nil {
		syslog.L.Error(err).WithMessage("scheduler: failed to list collection system transfers").Write()
		return
	}

	for _, def := range transfers {
		if !s.Eligible(def, vctx) {
			continue
		}
		s.enqueueRun(def)
	}
}

func (s *Scheduler) cycleShipToShore() {
	// GetTransfersByCategory orders by priority, so higher-priority
	// pushes claim queue slots first.
	transfers, err := s.store.Database.GetTransfersByCategory(types.CategoryShipToShore)
	if err != nil {
		syslog.L.Error(err).WithMessage("scheduler: failed to list ship-to-shore transfers").Write()
		return
	}

	for _, def := range transfers {
		if !def.Enable {
			continue
		}
		if !s.errorPolicyAllows(def.ID) {
			continue
		}
		s.enqueueRun(def)
	}
}

// Eligible applies the scheduling rules for one collection system
// definition against the current voyage context.
func (s *Scheduler) Eligible(def types.TransferDefinition, vctx types.VoyageContext) bool {
	if !def.Enable {
		return false
	}
	if def.Scope == types.ScopeLowering && !vctx.LoweringActive() {
		return false
	}
	return s.errorPolicyAllows(def.ID)
}

func (s *Scheduler) errorPolicyAllows(id string) bool {
	if s.retryErrored.Load() {
		return true
	}
	snap, err := s.tracker.Snapshot(id)
	if err != nil {
		return false
	}
	return snap.Status != types.StatusError
}

// enqueueRun claims the definition and submits its run task. The same
// path serves operator-triggered manual runs through the admin
// boundary.
func (s *Scheduler) enqueueRun(def types.TransferDefinition) {
	task, ok := types.RunTaskFor(def.Category)
	if !ok {
		return
	}

	if err := s.tracker.TryStart(def.ID); err != nil {
		if !errors.Is(err, state.ErrAlreadyRunning) {
			syslog.L.Error(err).WithTransfer(def.ID).WithMessage("scheduler: claim failed").Write()
		}
		return
	}

	if _, err := s.queue.Submit(task, def.ID); err != nil {
		// Release the claim so the next cycle can retry.
		s.tracker.Finish(def.ID, state.Outcome{Err: err})
		syslog.L.Error(err).WithTransfer(def.ID).WithMessage("scheduler: failed to enqueue run").Write()
	}
}
