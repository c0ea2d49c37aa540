//go:build !windows

package launch

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcAttr starts the child in its own process group so signals reach
// everything it spawns (npm starts node as a grandchild).
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

type processGroup struct {
	pgid int
}

func attachProcessGroup(cmd *exec.Cmd) (*processGroup, error) {
	pid := cmd.Process.Pid
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		pgid = pid
	}
	return &processGroup{pgid: pgid}, nil
}

func (g *processGroup) terminate(p *os.Process) error {
	return signalGroup(g.pgid, unix.SIGTERM)
}

func (g *processGroup) kill(p *os.Process) error {
	return signalGroup(g.pgid, unix.SIGKILL)
}

// reap runs after the leader is gone; the group lives on while any member does.
func (g *processGroup) reap() error {
	return signalGroup(g.pgid, unix.SIGKILL)
}

func signalGroup(pgid int, sig unix.Signal) error {
	if pgid <= 0 {
		return nil
	}
	err := unix.Kill(-pgid, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}
