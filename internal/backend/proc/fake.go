package proc

import "sync/atomic"

// FakeHandle is a test double recording termination requests.
type FakeHandle struct {
	Pid        int
	terminated atomic.Bool
}

func (h *FakeHandle) PID() int { return h.Pid }

func (h *FakeHandle) Terminate() error {
	h.terminated.Store(true)
	return nil
}

func (h *FakeHandle) Terminated() bool {
	return h.terminated.Load()
}
