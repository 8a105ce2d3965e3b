//go:build linux

package transfer

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts the command in its own process group so a stop
// request can signal the tool and any children it spawned together.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
