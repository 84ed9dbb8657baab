package supervisor

import (
	"sort"
	"syscall"
	"time"
)

// treeNode pairs a PID with its distance from the tree root.
type treeNode struct {
	pid   int
	depth int
}

// collectTree walks the process tree under root and returns every node it
// can reach. Enumeration races against the processes themselves, so lookup
// errors on individual nodes are ignored; whatever was visible is returned.
func collectTree(insp Inspector, root int) []treeNode {
	nodes := []treeNode{{pid: root, depth: 0}}
	visited := map[int]bool{root: true}

	for i := 0; i < len(nodes); i++ {
		children, err := insp.Children(nodes[i].pid)
		if err != nil {
			continue
		}
		for _, child := range children {
			if visited[child] {
				continue
			}
			visited[child] = true
			nodes = append(nodes, treeNode{pid: child, depth: nodes[i].depth + 1})
		}
	}
	return nodes
}

// killOrder returns the tree under root ordered deepest-first, so leaves
// are signalled before their parents and root comes last.
func killOrder(insp Inspector, root int) []int {
	nodes := collectTree(insp, root)
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].depth > nodes[j].depth
	})

	pids := make([]int, len(nodes))
	for i, n := range nodes {
		pids[i] = n.pid
	}
	return pids
}

// treeGone reports whether every PID in the set is dead and no process
// still names root as its parent. Children spawned after enumeration are
// caught by the second check.
func treeGone(insp Inspector, root int, pids []int) bool {
	for _, pid := range pids {
		if insp.Alive(pid) {
			return false
		}
	}
	children, err := insp.Children(root)
	if err != nil {
		return true
	}
	return len(children) == 0
}

// Teardown terminates the whole process tree under root. Every member is
// sent SIGTERM leaf-first, then liveness is polled pollAttempts times with
// pollDelay between probes. Survivors past the deadline get SIGKILL, again
// leaf-first over a freshly enumerated tree. The returned slice lists PIDs
// that outlived even SIGKILL; it is empty on a clean teardown.
//
// Teardown only returns once no PID in the set answers a probe or the
// escalation has run, so a caller that sees an empty result knows the
// root did not terminate ahead of its descendants.
func Teardown(insp Inspector, root int, pollAttempts int, pollDelay time.Duration) []int {
	pids := killOrder(insp, root)
	for _, pid := range pids {
		insp.Signal(pid, syscall.SIGTERM) // Ignore error, process may be gone already
	}

	for i := 0; i < pollAttempts; i++ {
		if treeGone(insp, root, pids) {
			return nil
		}
		time.Sleep(pollDelay)
	}

	// Re-enumerate so children forked during the grace window are included.
	pids = killOrder(insp, root)
	for _, pid := range pids {
		if !insp.Alive(pid) {
			continue
		}
		insp.Signal(pid, syscall.SIGKILL) // Ignore error
	}

	var survivors []int
	for _, pid := range pids {
		if insp.Alive(pid) {
			survivors = append(survivors, pid)
		}
	}
	return survivors
}
