//go:build windows

package launch

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// processGroup is a job object holding the child and everything it starts,
// so npm.cmd, cmd.exe and node go down together.
type processGroup struct {
	pid int

	mu sync.Mutex
	// job is 0 if the child could not be assigned, or once released.
	job windows.Handle
}

func attachProcessGroup(cmd *exec.Cmd) (*processGroup, error) {
	g := &processGroup{pid: cmd.Process.Pid}

	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return g, fmt.Errorf("failed to create job object: %w", err)
	}

	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE,
		},
	}
	if _, err := windows.SetInformationJobObject(
		job,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		uint32(unsafe.Sizeof(info)),
	); err != nil {
		windows.CloseHandle(job)
		return g, fmt.Errorf("failed to configure job object: %w", err)
	}

	proc, err := windows.OpenProcess(windows.PROCESS_SET_QUOTA|windows.PROCESS_TERMINATE, false, uint32(g.pid))
	if err != nil {
		windows.CloseHandle(job)
		return g, fmt.Errorf("failed to open process %d: %w", g.pid, err)
	}
	defer windows.CloseHandle(proc)

	// anything the child started before this call stays outside the job
	if err := windows.AssignProcessToJobObject(job, proc); err != nil {
		windows.CloseHandle(job)
		return g, fmt.Errorf("failed to assign process %d to job: %w", g.pid, err)
	}

	g.job = job
	return g, nil
}

// terminate sends Ctrl+Break to the child's process group. That only works
// when deckhost shares a console with it (the CLI host); the desktop host has
// no console, so the job is terminated right away.
func (g *processGroup) terminate(p *os.Process) error {
	if err := windows.GenerateConsoleCtrlEvent(windows.CTRL_BREAK_EVENT, uint32(g.pid)); err != nil {
		return g.kill(p)
	}
	return nil
}

func (g *processGroup) kill(p *os.Process) error {
	g.mu.Lock()
	job := g.job
	g.mu.Unlock()

	if job != 0 {
		if err := windows.TerminateJobObject(job, 1); err != nil {
			return fmt.Errorf("failed to terminate job: %w", err)
		}
		return nil
	}

	err := p.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// reap closes the job handle, which kills any process still in the job.
func (g *processGroup) reap() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.job == 0 {
		return nil
	}
	err := windows.CloseHandle(g.job)
	g.job = 0
	return err
}
