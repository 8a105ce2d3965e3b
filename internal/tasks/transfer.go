package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/vesseldata/vesseldata/internal/backend/plan"
	"github.com/vesseldata/vesseldata/internal/backend/proc"
	"github.com/vesseldata/vesseldata/internal/backend/state"
	"github.com/vesseldata/vesseldata/internal/backend/transfer"
	"github.com/vesseldata/vesseldata/internal/store/types"
	"github.com/vesseldata/vesseldata/internal/syslog"
)

// ErrTestFailed aborts a run whose pre-copy connectivity test did not
// pass every check.
var ErrTestFailed = errors.New("connectivity test failed")

// runTransfer executes one claimed transfer end to end: resolve, test,
// enumerate, plan, copy, resolve status, fan out hooks. The claim is
// always released through the tracker, whatever happens.
func (r *Runner) runTransfer(ctx context.Context, job types.Job) (any, error) {
	id := job.TransferID

	def, err := r.store.Database.GetTransfer(id)
	if err != nil {
		r.tracker.Finish(id, state.Outcome{Err: err})
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Register our own cancel handle first, so a stop request arriving
	// before the copy process exists still lands.
	if err := r.tracker.Starting(id, proc.NewCancelHandle(os.Getpid(), cancel)); err != nil {
		return nil, err
	}

	started := time.Now().UTC()
	runLog := syslog.OpenRunLogger(r.opts.RunLogDir, id)

	result, runErr := r.executeRun(runCtx, def, runLog)

	stopped := r.tracker.Stopped(id) || errors.Is(runErr, context.Canceled)
	r.tracker.Finish(id, state.Outcome{Err: runErr, Stopped: stopped})

	if runLog != nil {
		if stopped {
			runLog.Write("run stopped by operator")
		} else if runErr != nil {
			runLog.Write("run failed: " + runErr.Error())
		} else {
			runLog.Write(fmt.Sprintf("run finished: %d files, %d bytes, %d failures",
				result.FilesMoved, result.BytesMoved, len(result.Failures)))
		}
		_ = runLog.Close()
	}

	if runErr != nil {
		if !stopped {
			syslog.L.Error(runErr).WithTransfer(id).WithMessage("transfer run failed").Write()
		}
		return nil, runErr
	}

	if err := r.store.Database.UpdateTransferRunStats(id, started.Unix(), time.Now().UTC().Unix(),
		result.BytesMoved, result.FilesMoved); err != nil {
		syslog.L.Error(err).WithTransfer(id).WithMessage("failed to record run stats").Write()
	}

	if !stopped && r.dispatcher != nil {
		r.dispatcher.OnComplete(job.Task, def, result)
	}
	return result, nil
}

func (r *Runner) executeRun(ctx context.Context, def types.TransferDefinition, runLog *syslog.RunLogger) (transfer.Result, error) {
	vctx, err := r.store.Database.GetVoyageContext()
	if err != nil {
		return transfer.Result{}, err
	}

	adapter, err := transfer.ForDefinition(def)
	if err != nil {
		return transfer.Result{}, err
	}

	now := time.Now().UTC()
	paths, err := resolvePaths(def, vctx, now)
	if err != nil {
		return transfer.Result{}, err
	}

	report := adapter.Test(ctx, paths)
	if !report.OK {
		return transfer.Result{}, fmt.Errorf("%w: %s", ErrTestFailed, firstFailure(report))
	}

	candidates, err := adapter.Enumerate(ctx, paths)
	if err != nil {
		return transfer.Result{}, err
	}

	p, err := plan.Build(def, vctx, candidates, now)
	if err != nil {
		return transfer.Result{}, err
	}

	if runLog != nil {
		runLog.Write(fmt.Sprintf("planned %d files (%d bytes), %d deferred",
			len(p.Files), p.TotalBytes, len(p.Deferred)))
		for _, f := range p.Files {
			runLog.Write("queued " + f.Path)
		}
	}

	result, err := adapter.Copy(ctx, p, func(h proc.Handle) {
		if terr := r.tracker.MarkRunning(def.ID, h); terr != nil {
			syslog.L.Error(terr).WithTransfer(def.ID).WithMessage("failed to record running process").Write()
		}
	})

	if runLog != nil {
		for _, f := range result.Failures {
			runLog.Write("failed " + f.Path + ": " + f.Err)
		}
	}
	return result, err
}

// testTransfer runs the standalone connectivity test. It never touches
// the run claim; a passing test clears a lingering Error status.
func (r *Runner) testTransfer(ctx context.Context, job types.Job) (any, error) {
	def, err := r.store.Database.GetTransfer(job.TransferID)
	if err != nil {
		return nil, err
	}

	vctx, err := r.store.Database.GetVoyageContext()
	if err != nil {
		return nil, err
	}

	adapter, err := transfer.ForDefinition(def)
	if err != nil {
		return nil, err
	}

	paths, err := resolvePaths(def, vctx, time.Now().UTC())
	if err != nil {
		// Template resolution is itself a testable precondition.
		return transfer.Report{
			Checks: []transfer.Check{{Name: "Path Templates Resolve", OK: false, Info: err.Error()}},
		}, nil
	}

	report := adapter.Test(ctx, paths)
	if report.OK {
		r.tracker.ClearError(def.ID)
	}
	return report, nil
}

func resolvePaths(def types.TransferDefinition, vctx types.VoyageContext, now time.Time) (transfer.Paths, error) {
	src, err := plan.ResolveTokens(def.SourceDir, vctx, now)
	if err != nil {
		return transfer.Paths{}, err
	}
	dst, err := plan.ResolveTokens(def.DestDir, vctx, now)
	if err != nil {
		return transfer.Paths{}, err
	}
	return transfer.Paths{SourceDir: src, DestDir: dst}, nil
}

func firstFailure(report transfer.Report) string {
	for _, c := range report.Checks {
		if !c.OK {
			return c.Name + ": " + c.Info
		}
	}
	return "unknown check failure"
}
