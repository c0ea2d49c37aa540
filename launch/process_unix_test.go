//go:build !windows

package launch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// processAlive treats zombies as dead: an orphan reparented to a pid 1 that
// never reaps stays a zombie.
func processAlive(pid int) bool {
	if err := unix.Kill(pid, 0); err != nil {
		return false
	}
	stat, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return true
	}
	// the state follows the parenthesized command name
	i := bytes.LastIndexByte(stat, ')')
	return i < 0 || i+2 >= len(stat) || stat[i+2] != 'Z'
}

func readPid(t *testing.T, path string) int {
	t.Helper()
	var pid int
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		if err != nil {
			return false
		}
		pid, err = strconv.Atoi(strings.TrimSpace(string(data)))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	return pid
}

func TestReapGroup_KillsOrphanedChild(t *testing.T) {
	t.Parallel()
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	exe := installCompanion(t, fmt.Sprintf("sleep 300 >/dev/null 2>&1 &\necho $! > %s\nexit 3\n", pidFile))

	h, err := NewLauncher(testConfig(), WithExecutable(exe)).Launch(context.Background(), ModeProduction, 8787, nil)
	require.NoError(t, err)
	waitDone(t, h)

	child := readPid(t, pidFile)
	t.Cleanup(func() { unix.Kill(child, unix.SIGKILL) })
	require.True(t, processAlive(child), "child should outlive the server")

	require.NoError(t, h.ReapGroup())
	assert.Eventually(t, func() bool { return !processAlive(child) }, 5*time.Second, 20*time.Millisecond)

	// a second reap finds nothing left and still succeeds
	assert.NoError(t, h.ReapGroup())
}

func TestReapGroup_RunningProcess(t *testing.T) {
	t.Parallel()
	exe := installCompanion(t, "exec sleep 30\n")

	h, err := NewLauncher(testConfig(), WithExecutable(exe)).Launch(context.Background(), ModeProduction, 8787, nil)
	require.NoError(t, err)
	defer h.Terminate(time.Second)

	assert.ErrorContains(t, h.ReapGroup(), "still running")
}

func TestTerminate_KillsChildIgnoringTerm(t *testing.T) {
	t.Parallel()
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	exe := installCompanion(t, fmt.Sprintf("sh -c \"trap '' TERM; exec sleep 300\" >/dev/null 2>&1 &\necho $! > %s\nexec sleep 30\n", pidFile))

	h, err := NewLauncher(testConfig(), WithExecutable(exe)).Launch(context.Background(), ModeProduction, 8787, nil)
	require.NoError(t, err)

	child := readPid(t, pidFile)
	t.Cleanup(func() { unix.Kill(child, unix.SIGKILL) })

	require.NoError(t, h.Terminate(5*time.Second))
	assert.Equal(t, "terminated", h.Signal())
	assert.Eventually(t, func() bool { return !processAlive(child) }, 5*time.Second, 20*time.Millisecond)
}
