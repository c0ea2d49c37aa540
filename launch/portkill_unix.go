//go:build !windows

package launch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"golang.org/x/sys/unix"
)

func listenerPids(ctx context.Context, port int) ([]int, error) {
	out, err := exec.CommandContext(ctx, "lsof", "-t", "-nP", "-iTCP:"+strconv.Itoa(port), "-sTCP:LISTEN").Output()
	if err != nil {
		// lsof exits 1 when nothing matches
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 && len(out) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list listeners on port %d: %w", port, err)
	}

	var pids []int
	for _, pid := range parsePidList(string(out)) {
		if pid != os.Getpid() {
			pids = append(pids, pid)
		}
	}
	return pids, nil
}

func killPid(ctx context.Context, pid int) error {
	err := unix.Kill(pid, unix.SIGKILL)
	if err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("failed to kill process %d: %w", pid, err)
	}
	return nil
}
