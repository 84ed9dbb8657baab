package supervisor

import (
	"fmt"
	"net"
	"regexp"
	"sort"
	"strconv"
	"time"
)

var (
	// logPortPatterns match the ways dev servers announce their listen
	// address in log output.
	logPortPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:localhost|127\.0\.0\.1|0\.0\.0\.0|\[::1?\]):(\d{2,5})`),
		regexp.MustCompile(`(?i)\bport[ =:]+(\d{2,5})\b`),
	}

	// cmdPortPatterns pull an explicit port out of the launch command
	// itself, e.g. "--port 4200", "-p=8080" or "PORT=3000 npm start".
	cmdPortPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:--port|-p)[= ](\d{2,5})\b`),
		regexp.MustCompile(`\bPORT=(\d{2,5})\b`),
	}
)

const dialProbeTimeout = 250 * time.Millisecond

// PortBound reports whether something accepts TCP connections on the port.
func PortBound(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), dialProbeTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

func matchPorts(patterns []*regexp.Regexp, text string) []int {
	seen := make(map[int]bool)
	var ports []int
	for _, pat := range patterns {
		for _, m := range pat.FindAllStringSubmatch(text, -1) {
			port, err := strconv.Atoi(m[1])
			if err != nil || !validPort(port) || seen[port] {
				continue
			}
			seen[port] = true
			ports = append(ports, port)
		}
	}
	sort.Ints(ports)
	return ports
}

// PortsFromLog scans recent log lines for announced listen addresses.
func PortsFromLog(lines []string) []int {
	seen := make(map[int]bool)
	var ports []int
	for _, line := range lines {
		for _, port := range matchPorts(logPortPatterns, line) {
			if !seen[port] {
				seen[port] = true
				ports = append(ports, port)
			}
		}
	}
	sort.Ints(ports)
	return ports
}

// PortsFromCommand extracts ports named directly in the launch command.
func PortsFromCommand(command string) []int {
	return matchPorts(cmdPortPatterns, command)
}

// BoundPorts filters candidates down to the ones currently accepting
// connections.
func BoundPorts(candidates []int) []int {
	var bound []int
	for _, port := range candidates {
		if PortBound(port) {
			bound = append(bound, port)
		}
	}
	return bound
}

// DiscoverPorts finds the ports the supervised tree is serving on. Four
// sources are consulted in order of reliability and the first one that
// yields anything wins: the socket table for the live tree, listen
// announcements in recent log output, ports named in the launch command,
// and finally a probe of well-known dev ports.
func DiscoverPorts(insp Inspector, root int, recentLog []string, command string, commonPorts []int) []int {
	tree := collectTree(insp, root)
	pids := make([]int, len(tree))
	for i, n := range tree {
		pids[i] = n.pid
	}
	if ports, err := insp.ListeningPorts(pids); err == nil && len(ports) > 0 {
		sort.Ints(ports)
		return ports
	}

	if ports := PortsFromLog(recentLog); len(ports) > 0 {
		return ports
	}

	if ports := PortsFromCommand(command); len(ports) > 0 {
		return ports
	}

	return BoundPorts(commonPorts)
}

// WaitForRelease blocks until none of the ports accept connections, probing
// up to attempts times with delay between rounds. It reports whether all
// ports came free within the window; on false the caller proceeds anyway,
// a stale socket holder is not allowed to wedge a restart forever.
func WaitForRelease(ports []int, attempts int, delay time.Duration) bool {
	if len(ports) == 0 {
		return true
	}
	for i := 0; i < attempts; i++ {
		if len(BoundPorts(ports)) == 0 {
			return true
		}
		time.Sleep(delay)
	}
	return len(BoundPorts(ports)) == 0
}
