package state

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/vesseldata/vesseldata/internal/backend/proc"
	"github.com/vesseldata/vesseldata/internal/store"
	"github.com/vesseldata/vesseldata/internal/store/types"
	"github.com/vesseldata/vesseldata/internal/syslog"
)

// Sentinel error values.
var (
	ErrAlreadyRunning  = errors.New("a run is still in flight; only one instance allowed")
	ErrUnknownTransfer = errors.New("unknown transfer definition")
	ErrNotClaimed      = errors.New("transfer is not claimed for a run")
)

// Outcome is what a worker reports back through Finish.
type Outcome struct {
	// Err is the fatal error that aborted the run, if any. Per-file
	// failures are not fatal and arrive as Err == nil.
	Err error
	// Stopped marks an operator-cancelled run. A stopped run resolves
	// Idle, not Error, unless Err is also set.
	Stopped bool
}

// Snapshot is the externally visible live state of one definition.
type Snapshot struct {
	ID     string               `json:"id"`
	Status types.TransferStatus `json:"status"`
	PID    int                  `json:"pid,omitempty"`
}

type record struct {
	status types.TransferStatus
	handle proc.Handle
}

// Tracker is the single source of truth for each definition's live
// status and owning process. All mutations for a given id serialize
// through its record; every transition is mirrored into the store so
// status survives inspection across restarts.
type Tracker struct {
	store   *store.Store
	records *xsync.MapOf[string, *record]
}

func NewTracker(s *store.Store) *Tracker {
	return &Tracker{
		store:   s,
		records: xsync.NewMapOf[string, *record](),
	}
}

// ResetStale returns every definition left in a non-terminal status by
// a previous daemon instance to Idle. Called once at boot, before any
// scheduling starts.
func (t *Tracker) ResetStale() error {
	transfers, err := t.store.Database.GetAllTransfers()
	if err != nil {
		return fmt.Errorf("ResetStale: %w", err)
	}
	for _, tr := range transfers {
		if tr.Status == types.StatusIdle || tr.Status == types.StatusError {
			continue
		}
		if err := t.store.Database.UpdateTransferStatus(tr.ID, types.StatusIdle, 0); err != nil {
			syslog.L.Error(err).WithTransfer(tr.ID).WithMessage("failed to reset stale status").Write()
		}
	}
	return nil
}

func (t *Tracker) pid(r *record) int {
	if r.handle == nil {
		return 0
	}
	return r.handle.PID()
}

// persist mirrors the in-memory transition into the record store.
// Called with the record's compute lock held.
func (t *Tracker) persist(id string, r *record) {
	if err := t.store.Database.UpdateTransferStatus(id, r.status, t.pid(r)); err != nil {
		syslog.L.Error(err).WithTransfer(id).WithMessage("failed to persist status").Write()
	}
}

// TryStart claims a definition for a new run. It succeeds exactly once
// until Finish releases the claim: a second caller gets
// ErrAlreadyRunning.
func (t *Tracker) TryStart(id string) error {
	var startErr error
	t.records.Compute(id, func(r *record, loaded bool) (*record, bool) {
		if !loaded {
			r = t.loadRecord(id)
			if r == nil {
				startErr = ErrUnknownTransfer
				return nil, true
			}
		}
		if !r.status.Startable() {
			startErr = ErrAlreadyRunning
			return r, false
		}
		r.status = types.StatusQueued
		r.handle = nil
		t.persist(id, r)
		return r, false
	})
	return startErr
}

// loadRecord seeds the in-memory record from the persisted definition.
// A record persisted as active belongs to a dead daemon, so it is
// treated as startable.
func (t *Tracker) loadRecord(id string) *record {
	tr, err := t.store.Database.GetTransfer(id)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			syslog.L.Error(err).WithTransfer(id).WithMessage("failed to load transfer record").Write()
		}
		return nil
	}
	status := tr.Status
	if status.Active() || status == types.StatusQueued {
		status = types.StatusIdle
	}
	return &record{status: status}
}

// Starting moves a claimed definition into Starting and records the
// worker's own handle so a stop request can reach the pre-copy phase.
func (t *Tracker) Starting(id string, handle proc.Handle) error {
	return t.transition(id, types.StatusQueued, types.StatusStarting, handle)
}

// MarkRunning records the live copy process once the adapter started it.
func (t *Tracker) MarkRunning(id string, handle proc.Handle) error {
	return t.transition(id, types.StatusStarting, types.StatusRunning, handle)
}

func (t *Tracker) transition(id string, from, to types.TransferStatus, handle proc.Handle) error {
	var terr error
	var stopPending bool
	t.records.Compute(id, func(r *record, loaded bool) (*record, bool) {
		if !loaded || r.status != from {
			// A stop may have raced in; Stopping still owns a handle
			// swap, and the new handle must be signalled so the stop
			// reaches the real process instead of evaporating.
			if loaded && r.status == types.StatusStopping {
				r.handle = handle
				stopPending = true
				t.persist(id, r)
				return r, false
			}
			terr = ErrNotClaimed
			return r, !loaded
		}
		r.status = to
		r.handle = handle
		t.persist(id, r)
		return r, false
	})

	if stopPending && handle != nil {
		if err := t.RequestTermination(handle); err != nil {
			syslog.L.Error(err).WithTransfer(id).WithMessage("termination signal failed").Write()
		}
	}
	return terr
}

// Finish resolves a run: Idle on success or cancellation, Error on
// failure. The owning pid is always cleared.
func (t *Tracker) Finish(id string, outcome Outcome) {
	t.records.Compute(id, func(r *record, loaded bool) (*record, bool) {
		if !loaded {
			r = &record{}
		}
		if outcome.Err != nil && !outcome.Stopped {
			r.status = types.StatusError
		} else {
			r.status = types.StatusIdle
		}
		r.handle = nil
		t.persist(id, r)
		return r, false
	})
}

// ClearError returns an errored definition to Idle after a successful
// standalone Test.
func (t *Tracker) ClearError(id string) {
	t.records.Compute(id, func(r *record, loaded bool) (*record, bool) {
		if !loaded {
			r = t.loadRecord(id)
			if r == nil {
				return nil, true
			}
		}
		if r.status == types.StatusError {
			r.status = types.StatusIdle
			r.handle = nil
			t.persist(id, r)
		}
		return r, false
	})
}

// RequestStop asks the owning process of a running job to terminate
// and returns without waiting: the owning worker observes termination
// and calls Finish. Stopping an idle definition is a no-op.
func (t *Tracker) RequestStop(id string) error {
	var handle proc.Handle
	t.records.Compute(id, func(r *record, loaded bool) (*record, bool) {
		if !loaded || !(r.status.Active() || r.status == types.StatusQueued) {
			return r, !loaded
		}
		r.status = types.StatusStopping
		handle = r.handle
		t.persist(id, r)
		return r, false
	})

	if handle == nil {
		return nil
	}
	if err := t.RequestTermination(handle); err != nil {
		syslog.L.Error(err).WithTransfer(id).WithMessage("termination signal failed").Write()
		return err
	}
	return nil
}

// RequestTermination delivers the stop signal outside the record lock;
// signal delivery to an already-exited process is a tolerated no-op.
func (t *Tracker) RequestTermination(handle proc.Handle) error {
	return handle.Terminate()
}

// Stopped reports whether a stop was requested for the definition.
func (t *Tracker) Stopped(id string) bool {
	r, ok := t.records.Load(id)
	return ok && r.status == types.StatusStopping
}

// Snapshot returns the live status and owning pid of one definition.
func (t *Tracker) Snapshot(id string) (Snapshot, error) {
	if r, ok := t.records.Load(id); ok {
		return Snapshot{ID: id, Status: r.status, PID: t.pid(r)}, nil
	}

	tr, err := t.store.Database.GetTransfer(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, ErrUnknownTransfer
		}
		return Snapshot{}, fmt.Errorf("Snapshot: %w", err)
	}
	return Snapshot{ID: id, Status: tr.Status, PID: tr.PID}, nil
}

// StatusesOf returns the snapshot of every definition in a category,
// for list-view polling.
func (t *Tracker) StatusesOf(category types.TransferCategory) ([]Snapshot, error) {
	transfers, err := t.store.Database.GetTransfersByCategory(category)
	if err != nil {
		return nil, fmt.Errorf("StatusesOf: %w", err)
	}

	snapshots := make([]Snapshot, 0, len(transfers))
	for _, tr := range transfers {
		snap := Snapshot{ID: tr.ID, Status: tr.Status, PID: tr.PID}
		if r, ok := t.records.Load(tr.ID); ok {
			snap.Status = r.status
			snap.PID = t.pid(r)
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}
