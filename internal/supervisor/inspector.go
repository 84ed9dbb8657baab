package supervisor

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

// Inspector is the platform capability the teardown and port logic run
// against. The real implementation shells out to pgrep and lsof; tests
// inject a fake.
type Inspector interface {
	// Children returns the direct child PIDs of a process. A process with
	// no children yields an empty slice, not an error.
	Children(pid int) ([]int, error)
	// ListeningPorts returns the TCP ports on which any of the given PIDs
	// is listening.
	ListeningPorts(pids []int) ([]int, error)
	// Signal delivers a signal to a single process.
	Signal(pid int, sig syscall.Signal) error
	// Alive reports whether the process still answers a signal probe.
	Alive(pid int) bool
}

// OSInspector implements Inspector against the local machine.
type OSInspector struct{}

// Children looks up direct children via pgrep. pgrep exits 1 when nothing
// matches, which is not an error here.
func (OSInspector) Children(pid int) ([]int, error) {
	out, err := exec.Command("pgrep", "-P", strconv.Itoa(pid)).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, fmt.Errorf("pgrep -P %d: %w", pid, err)
	}

	var pids []int
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		child, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil {
			continue
		}
		pids = append(pids, child)
	}
	return pids, nil
}

// ListeningPorts asks lsof for TCP listen sockets held by the given PIDs.
// lsof exits nonzero when none of the PIDs hold matching sockets; that
// yields an empty result.
func (OSInspector) ListeningPorts(pids []int) ([]int, error) {
	if len(pids) == 0 {
		return nil, nil
	}

	strs := make([]string, len(pids))
	for i, p := range pids {
		strs[i] = strconv.Itoa(p)
	}

	out, err := exec.Command("lsof",
		"-nP", "-iTCP", "-sTCP:LISTEN", "-a",
		"-p", strings.Join(strs, ","),
		"-Fn").Output()
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return nil, nil
		}
		return nil, fmt.Errorf("lsof: %w", err)
	}

	seen := make(map[int]bool)
	var ports []int
	for _, line := range strings.Split(string(out), "\n") {
		// -Fn emits name fields like "n*:3000" or "n127.0.0.1:5173"
		if !strings.HasPrefix(line, "n") {
			continue
		}
		idx := strings.LastIndex(line, ":")
		if idx == -1 {
			continue
		}
		port, err := strconv.Atoi(line[idx+1:])
		if err != nil || port <= 0 || port > 65535 {
			continue
		}
		if !seen[port] {
			seen[port] = true
			ports = append(ports, port)
		}
	}
	return ports, nil
}

// Signal delivers a signal to one process.
func (OSInspector) Signal(pid int, sig syscall.Signal) error {
	return syscall.Kill(pid, sig)
}

// Alive probes the process with signal 0.
func (OSInspector) Alive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
