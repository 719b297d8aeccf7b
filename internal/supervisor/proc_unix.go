//go:build unix

package supervisor

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setSysProcAttr puts the worker in its own process group so signals reach
// anything it spawns and terminal job control does not.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

func sendTermSignal(p *os.Process) error {
	return unix.Kill(-p.Pid, unix.SIGTERM)
}

func sendKillSignal(p *os.Process) error {
	return unix.Kill(-p.Pid, unix.SIGKILL)
}
