//go:build !linux

package proc

import "os"

// GroupHandle signals an external command's process. Without process
// groups only the direct child is reached.
type GroupHandle struct {
	pid int
}

func NewGroupHandle(pid int) *GroupHandle {
	return &GroupHandle{pid: pid}
}

func (h *GroupHandle) PID() int { return h.pid }

func (h *GroupHandle) Terminate() error {
	p, err := os.FindProcess(h.pid)
	if err != nil {
		return nil
	}
	return p.Kill()
}
