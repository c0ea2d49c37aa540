package launch

import (
	"bufio"
	"context"
	"strconv"
	"strings"
)

// KillPortOwner kills the processes listening on TCP port and returns their
// pids. Finding no listener is not an error. deckhost never kills itself.
func KillPortOwner(ctx context.Context, port int) ([]int, error) {
	pids, err := listenerPids(ctx, port)
	if err != nil {
		return nil, err
	}

	killed := make([]int, 0, len(pids))
	for _, pid := range pids {
		if err := killPid(ctx, pid); err != nil {
			return killed, err
		}
		killed = append(killed, pid)
	}
	return killed, nil
}

// parsePidList reads one pid per line, as printed by lsof -t.
func parsePidList(output string) []int {
	var pids []int
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		pid, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
		if err == nil && pid > 0 {
			pids = appendUnique(pids, pid)
		}
	}
	return pids
}

// parseNetstatListeners picks the pids of LISTENING rows bound to port from
// `netstat -ano -p tcp` output.
func parseNetstatListeners(output string, port int) []int {
	suffix := ":" + strconv.Itoa(port)
	var pids []int
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		// Proto  Local Address  Foreign Address  State  PID
		if len(fields) != 5 || !strings.EqualFold(fields[3], "LISTENING") {
			continue
		}
		if !strings.HasSuffix(fields[1], suffix) {
			continue
		}
		pid, err := strconv.Atoi(fields[4])
		if err == nil && pid > 0 {
			pids = appendUnique(pids, pid)
		}
	}
	return pids
}

func appendUnique(pids []int, pid int) []int {
	for _, p := range pids {
		if p == pid {
			return pids
		}
	}
	return append(pids, pid)
}
