//go:build windows

package launch

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

func listenerPids(ctx context.Context, port int) ([]int, error) {
	out, err := exec.CommandContext(ctx, "netstat", "-ano", "-p", "tcp").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list listeners on port %d: %w", port, err)
	}

	var pids []int
	for _, pid := range parseNetstatListeners(string(out), port) {
		if pid != os.Getpid() {
			pids = append(pids, pid)
		}
	}
	return pids, nil
}

func killPid(ctx context.Context, pid int) error {
	out, err := exec.CommandContext(ctx, "taskkill", "/F", "/T", "/PID", strconv.Itoa(pid)).CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to kill process %d: %w: %s", pid, err, out)
	}
	return nil
}
