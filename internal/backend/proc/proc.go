// Package proc abstracts ownership of a running job's underlying
// process so the tracker can request termination without knowing
// whether the work is an external command or an in-process copy loop.
package proc

import "context"

// Handle identifies the process (or goroutine) executing a job and can
// request its termination. Termination is best effort: delivering a
// signal to an already-exited process is a harmless no-op.
type Handle interface {
	PID() int
	Terminate() error
}

// CancelHandle wraps in-process work driven by a context. The reported
// pid is the daemon's own, since no child process exists.
type CancelHandle struct {
	pid    int
	cancel context.CancelFunc
}

func NewCancelHandle(pid int, cancel context.CancelFunc) *CancelHandle {
	return &CancelHandle{pid: pid, cancel: cancel}
}

func (h *CancelHandle) PID() int { return h.pid }

func (h *CancelHandle) Terminate() error {
	h.cancel()
	return nil
}
