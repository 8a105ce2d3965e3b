//go:build linux

package proc

import (
	"errors"

	"golang.org/x/sys/unix"
)

// GroupHandle signals an external command's whole process group, so an
// in-flight copy tool and any children it spawned go down together.
// The command must have been started with Setpgid.
type GroupHandle struct {
	pid int
}

func NewGroupHandle(pid int) *GroupHandle {
	return &GroupHandle{pid: pid}
}

func (h *GroupHandle) PID() int { return h.pid }

func (h *GroupHandle) Terminate() error {
	err := unix.Kill(-h.pid, unix.SIGTERM)
	if errors.Is(err, unix.ESRCH) {
		// Already gone; the race is expected and tolerated.
		return nil
	}
	return err
}
