//go:build windows

package supervisor

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP,
	}
}

// Windows has no SIGTERM for console-less children; terminate directly.
func sendTermSignal(p *os.Process) error {
	return p.Kill()
}

func sendKillSignal(p *os.Process) error {
	return p.Kill()
}
