package launch

import (
	"fmt"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"
)

// killWait bounds how long Terminate waits after a forced kill.
const killWait = 2 * time.Second

// ServerHandle owns one spawned backend process. It is created by Launcher
// and only the supervisor holding it may signal or reap it.
type ServerHandle struct {
	// Port is the port the server was asked to bind. In development mode
	// it is only a hint passed via PORT.
	Port       int
	RunId      string
	Mode       Mode
	Target     Target
	StartedAt  time.Time
	OutputPath string

	cmd    *exec.Cmd
	group  *processGroup
	doneCh chan struct{}

	exitCode atomic.Pointer[int]
	signal   atomic.Value // string
}

func newServerHandle(cmd *exec.Cmd, group *processGroup, target Target, port int, runId string) *ServerHandle {
	return &ServerHandle{
		Port:      port,
		RunId:     runId,
		Mode:      target.Mode,
		Target:    target,
		StartedAt: time.Now(),
		cmd:       cmd,
		group:     group,
		doneCh:    make(chan struct{}),
	}
}

// wait reaps the process and records how it ended, then closes Done.
func (h *ServerHandle) wait(onExit func()) {
	defer close(h.doneCh)
	if onExit != nil {
		defer onExit()
	}

	// Wait may also report ErrWaitDelay or a copy error, ProcessState is
	// what tells how the process ended.
	_ = h.cmd.Wait()
	state := h.cmd.ProcessState
	if state == nil {
		return
	}

	if status, ok := state.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		h.signal.Store(status.Signal().String())
		return
	}
	exitCode := state.ExitCode()
	h.exitCode.Store(&exitCode)
}

func (h *ServerHandle) Pid() int {
	return h.cmd.Process.Pid
}

// Done is closed once the process has exited and been reaped.
func (h *ServerHandle) Done() <-chan struct{} {
	return h.doneCh
}

func (h *ServerHandle) Exited() bool {
	select {
	case <-h.doneCh:
		return true
	default:
		return false
	}
}

// ExitCode is nil while running or when the process died from a signal.
func (h *ServerHandle) ExitCode() *int {
	return h.exitCode.Load()
}

// Signal names the signal that killed the process, or "".
func (h *ServerHandle) Signal() string {
	s, _ := h.signal.Load().(string)
	return s
}

// ExitDescription summarizes how the process ended, e.g. "exit status 1" or
// "signal: killed". Empty while running.
func (h *ServerHandle) ExitDescription() string {
	if !h.Exited() {
		return ""
	}
	if sig := h.Signal(); sig != "" {
		return "signal: " + sig
	}
	if code := h.ExitCode(); code != nil {
		return fmt.Sprintf("exit status %d", *code)
	}
	return "exited"
}

// Terminate asks the process group to exit, waits up to timeout, then kills
// it. Anything left in the group once the process has exited is killed too.
// Returns nil if the process is gone when Terminate returns.
func (h *ServerHandle) Terminate(timeout time.Duration) error {
	if h.Exited() {
		return h.ReapGroup()
	}

	if err := h.group.terminate(h.cmd.Process); err != nil {
		return fmt.Errorf("failed to signal process %d: %w", h.Pid(), err)
	}

	select {
	case <-h.doneCh:
		return h.ReapGroup()
	case <-time.After(timeout):
	}

	if err := h.group.kill(h.cmd.Process); err != nil {
		return fmt.Errorf("failed to kill process %d: %w", h.Pid(), err)
	}

	select {
	case <-h.doneCh:
		return h.ReapGroup()
	case <-time.After(killWait):
		return fmt.Errorf("process %d still running after kill", h.Pid())
	}
}

// ReapGroup kills whatever the process spawned that is still alive, such as
// node left behind by an npm that exited. Only valid once Done is closed.
func (h *ServerHandle) ReapGroup() error {
	if !h.Exited() {
		return fmt.Errorf("process %d is still running", h.Pid())
	}
	if err := h.group.reap(); err != nil {
		return fmt.Errorf("failed to reap process group of %d: %w", h.Pid(), err)
	}
	return nil
}
