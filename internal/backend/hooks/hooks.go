package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/vesseldata/vesseldata/internal/backend/queue"
	"github.com/vesseldata/vesseldata/internal/store"
	"github.com/vesseldata/vesseldata/internal/store/types"
	"github.com/vesseldata/vesseldata/internal/syslog"
)

// Table maps a completed task kind to its ordered follow-on kinds. A
// follow-on's own completion may trigger further entries; the table is
// fixed, trusted configuration and must not contain a cycle.
type Table map[types.TaskKind][]types.TaskKind

// DefaultTable chains the post-transfer pipeline: a collection system
// run rebuilds the dashboard, and the dashboard rebuild refreshes the
// checksum manifest.
func DefaultTable() Table {
	return Table{
		types.TaskRunCollectionSystemTransfer: {types.TaskUpdateDataDashboard},
		types.TaskRunCruiseDataTransfer:       {types.TaskUpdateMD5Summary},
		types.TaskUpdateDataDashboard:         {types.TaskUpdateMD5Summary},
	}
}

// PostHook is one definition-scoped external command, looked up by
// (task kind, transfer name).
type PostHook struct {
	Task     types.TaskKind
	Transfer string
	Command  string
	Args     []string
}

// Dispatcher fans completed tasks out into follow-on work. Everything
// it submits is Background: a broken downstream step can never wedge
// the primary transfer pipeline.
type Dispatcher struct {
	table     Table
	postHooks []PostHook
	queue     *queue.Manager
	store     *store.Store

	// hookTimeout bounds each external post-hook command.
	hookTimeout time.Duration
}

func NewDispatcher(table Table, postHooks []PostHook, q *queue.Manager, s *store.Store) (*Dispatcher, error) {
	for kind, followers := range table {
		for _, follower := range followers {
			if !q.Registered(follower) {
				return nil, fmt.Errorf("hook table: %s references unregistered task %s", kind, follower)
			}
		}
	}

	return &Dispatcher{
		table:       table,
		postHooks:   postHooks,
		queue:       q,
		store:       s,
		hookTimeout: 10 * time.Minute,
	}, nil
}

// OnComplete is called by a worker after its primary task finished
// successfully. Follow-on submission failures are logged, never
// propagated: the primary task's own status is already resolved.
func (d *Dispatcher) OnComplete(kind types.TaskKind, def types.TransferDefinition, result any) {
	for _, follower := range d.table[kind] {
		if _, err := d.queue.Submit(follower, def.ID); err != nil {
			syslog.L.Error(err).
				WithField("task", string(follower)).
				WithTransfer(def.ID).
				WithMessage("failed to enqueue follow-on task").Write()
		}
	}

	for _, hook := range d.postHooks {
		if hook.Task != kind || hook.Transfer != def.Name {
			continue
		}
		go d.runPostHook(hook, def, result)
	}
}

// hookPayload is the single JSON argument handed to an external
// post-hook command.
type hookPayload struct {
	Definition types.TransferDefinition `json:"definition"`
	Voyage     types.VoyageContext      `json:"voyage"`
	Result     any                      `json:"result,omitempty"`
}

func (d *Dispatcher) runPostHook(hook PostHook, def types.TransferDefinition, result any) {
	vctx, err := d.store.Database.GetVoyageContext()
	if err != nil {
		syslog.L.Error(err).WithTransfer(def.ID).WithMessage("post-hook: failed to read voyage context").Write()
		return
	}

	blob, err := json.Marshal(hookPayload{Definition: def, Voyage: vctx, Result: result})
	if err != nil {
		syslog.L.Error(err).WithTransfer(def.ID).WithMessage("post-hook: failed to encode payload").Write()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.hookTimeout)
	defer cancel()

	args := append(append([]string{}, hook.Args...), string(blob))
	cmd := exec.CommandContext(ctx, hook.Command, args...)
	err = cmd.Run()

	exitCode := 0
	if err != nil {
		exitCode = -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
	}

	// The exit code is logged and goes nowhere else; hook outcomes
	// never feed back into the definition's status.
	entry := syslog.L.Info()
	if exitCode != 0 {
		entry = syslog.L.Warn()
	}
	entry.WithTransfer(def.ID).
		WithField("command", hook.Command).
		WithField("exitCode", exitCode).
		WithMessage("post-hook finished").Write()
}
