// Package supervisor wraps a single long-running dev process: it tees the
// child's combined output to the operator terminal and the project log,
// restarts the child in place when the operator types the restart sentinel,
// and tears the whole process tree down leaf-first on stop.
package supervisor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/config"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/domain"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/logstore"
)

// recentLogLines bounds the in-memory tail kept for port discovery.
const recentLogLines = 200

// SessionRecorder persists finished supervise sessions for the history
// command.
type SessionRecorder interface {
	RecordSession(sess domain.SessionRecord) error
}

// Options configures a Supervisor. Terminal, Output and Signals exist so
// tests can drive the loop without a real TTY; zero values fall back to
// stdin, stdout and a real signal subscription.
type Options struct {
	Store     *logstore.Store
	Config    config.SupervisorConfig
	Inspector Inspector
	Recorder  SessionRecorder

	Project string
	Name    string
	Command string
	Cwd     string

	Terminal io.Reader
	Output   io.Writer
	Signals  <-chan os.Signal
}

// Supervisor runs one command under supervision. One instance per process,
// one process per terminal pane; instances share nothing but the log store
// namespace, which is partitioned by (project, name).
type Supervisor struct {
	store    *logstore.Store
	cfg      config.SupervisorConfig
	insp     Inspector
	recorder SessionRecorder

	project string
	name    string
	command string
	cwd     string

	terminal io.Reader
	output   io.Writer
	signals  <-chan os.Signal

	mu     sync.Mutex
	recent []string
}

// New assembles a Supervisor from options.
func New(opts Options) *Supervisor {
	s := &Supervisor{
		store:    opts.Store,
		cfg:      opts.Config,
		insp:     opts.Inspector,
		recorder: opts.Recorder,
		project:  opts.Project,
		name:     opts.Name,
		command:  opts.Command,
		cwd:      opts.Cwd,
		terminal: opts.Terminal,
		output:   opts.Output,
		signals:  opts.Signals,
	}
	if s.insp == nil {
		s.insp = OSInspector{}
	}
	if s.terminal == nil {
		s.terminal = os.Stdin
	}
	if s.output == nil {
		s.output = os.Stdout
	}
	return s
}

type watchAction int

const (
	childExited watchAction = iota
	restartRequested
	interrupted
	terminated
)

// Run supervises the command until the child exits on its own or a signal
// stops the session. The returned exit code is the child's own code on a
// natural exit and the conventional 128+signal on a signalled stop.
//
// The PID marker is written before the first spawn and removed on every
// return path.
func (s *Supervisor) Run() (code int, err error) {
	logFile, err := s.store.OpenLogFresh(s.project, s.name)
	if err != nil {
		return 1, fmt.Errorf("opening log: %w", err)
	}
	defer logFile.Close()

	if err := s.store.WritePID(s.project, s.name, os.Getpid()); err != nil {
		return 1, fmt.Errorf("writing pid marker: %w", err)
	}
	defer s.store.RemovePID(s.project, s.name) // Ignore error, best effort on the way out

	sigCh := s.signals
	if sigCh == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(ch)
		sigCh = ch
	}

	lines := make(chan string)
	go readTerminal(s.terminal, lines)

	// One run ID per invocation: restarts cycle the child, not the session.
	runID := uuid.New().String()
	sessionStart := time.Now()
	restarts := 0
	defer func() { s.recordSession(runID, sessionStart, code, restarts) }()

	for ; ; restarts++ {
		info := domain.ProcessInfo{
			Name:      s.name,
			Project:   s.project,
			Command:   s.command,
			StartedAt: time.Now(),
			Cwd:       s.cwd,
			LogPath:   s.store.LogPath(s.project, s.name),
			RunID:     runID,
		}
		if restarts > 0 {
			if err := s.store.WriteRestartSeparator(logFile, info.StartedAt); err != nil {
				return 1, fmt.Errorf("writing restart separator: %w", err)
			}
		}
		if err := s.store.WriteHeader(logFile, info); err != nil {
			return 1, fmt.Errorf("writing log header: %w", err)
		}
		if err := s.store.WriteInfo(info); err != nil {
			return 1, fmt.Errorf("writing info record: %w", err)
		}

		child, done, err := s.spawn(logFile)
		if err != nil {
			return 1, err
		}

		action, code := s.watch(child, done, lines, sigCh)
		switch action {
		case childExited:
			fmt.Fprintf(s.output, "\n[%s] exited with code %d\n", s.name, code)
			return code, nil
		case restartRequested:
			fmt.Fprintf(s.output, "\n[%s] restarting\n", s.name)
		case interrupted:
			return code, nil
		case terminated:
			fmt.Fprintf(s.output, "\n[%s] stopped, press enter to close\n", s.name)
			s.waitKeypress(lines)
			return code, nil
		}
	}
}

// watch waits for whichever comes first: the child exiting, a sentinel line
// on the terminal, or a stop signal. Non-sentinel terminal lines are
// swallowed; the supervisor is not a multiplexer for the child.
func (s *Supervisor) watch(child *exec.Cmd, done <-chan int, lines <-chan string, sigCh <-chan os.Signal) (watchAction, int) {
	for {
		select {
		case code := <-done:
			return childExited, code
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if strings.TrimSpace(line) != s.cfg.RestartSentinel {
				continue
			}
			s.restartTeardown(child, done)
			return restartRequested, 0
		case sig := <-sigCh:
			s.stopTeardown(child, done)
			if sig == syscall.SIGTERM {
				return terminated, 143
			}
			return interrupted, 130
		}
	}
}

// spawn starts the command through the shell in its own process group, with
// stdin detached so the supervisor keeps the controlling terminal to itself.
// The returned channel delivers the child's exit code exactly once, after
// both output pumps have drained.
func (s *Supervisor) spawn(logFile *os.File) (*exec.Cmd, <-chan int, error) {
	cmd := exec.Command("/bin/sh", "-c", s.command)
	cmd.Dir = s.cwd
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("starting %s: %w", s.name, err)
	}

	var pumps errgroup.Group
	pumps.Go(func() error {
		s.pump(stdout, logFile)
		return nil
	})
	pumps.Go(func() error {
		s.pump(stderr, logFile)
		return nil
	})

	done := make(chan int, 1)
	go func() {
		pumps.Wait() // Pipes must be drained before Wait closes them
		done <- exitCode(cmd.Wait())
	}()
	return cmd, done, nil
}

// pump copies child output line by line to the operator terminal and the
// log file, and feeds the in-memory tail used for port discovery.
func (s *Supervisor) pump(r io.Reader, logFile *os.File) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		fmt.Fprintln(s.output, line)
		fmt.Fprintln(logFile, line)
		logFile.Sync() // Ignore error, keep the tail fresh for concurrent readers
		s.remember(line)
	}
}

func (s *Supervisor) remember(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append(s.recent, line)
	if len(s.recent) > recentLogLines {
		s.recent = s.recent[len(s.recent)-recentLogLines:]
	}
}

func (s *Supervisor) recentLines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.recent))
	copy(out, s.recent)
	return out
}

// restartTeardown captures the tree's ports while it is still alive, kills
// the tree, reaps the child, then waits for the ports to come free so the
// respawned command can rebind. A restart is never blocked forever: if no
// port is discoverable or the wait window elapses, it proceeds with a
// warning.
func (s *Supervisor) restartTeardown(child *exec.Cmd, done <-chan int) {
	pid := child.Process.Pid
	ports := DiscoverPorts(s.insp, pid, s.recentLines(), s.command, s.cfg.CommonPorts)

	s.stopTeardown(child, done)

	if len(ports) == 0 {
		fmt.Fprintf(s.output, "[%s] no listening ports found, restarting after process teardown only\n", s.name)
		return
	}
	if !WaitForRelease(ports, s.cfg.PortWaitAttempts, s.cfg.PortWaitDelay) {
		fmt.Fprintf(s.output, "[%s] warning: ports still bound after wait: %v\n", s.name, ports)
	}
}

// stopTeardown kills the child's tree and reaps the child.
func (s *Supervisor) stopTeardown(child *exec.Cmd, done <-chan int) {
	if survivors := Teardown(s.insp, child.Process.Pid, s.cfg.TeardownPollAttempts, s.cfg.TeardownPollDelay); len(survivors) > 0 {
		fmt.Fprintf(s.output, "[%s] warning: processes survived teardown: %v\n", s.name, survivors)
	}
	<-done
}

// waitKeypress blocks until the operator sends a line, so the pane does not
// vanish before the stop notice is read. A closed terminal does not block.
func (s *Supervisor) waitKeypress(lines <-chan string) {
	<-lines
}

func (s *Supervisor) recordSession(runID string, startedAt time.Time, code, restarts int) {
	if s.recorder == nil {
		return
	}
	err := s.recorder.RecordSession(domain.SessionRecord{
		RunID:     runID,
		Project:   s.project,
		Name:      s.name,
		Command:   s.command,
		StartedAt: startedAt,
		EndedAt:   time.Now(),
		ExitCode:  code,
		Restarts:  restarts,
	})
	if err != nil {
		fmt.Fprintf(s.output, "[%s] warning: recording session history: %v\n", s.name, err)
	}
}

func readTerminal(r io.Reader, lines chan<- string) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
	close(lines)
}

// exitCode maps a Wait result to the code the supervisor propagates. A
// signalled child reports the conventional 128+signal.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		return exitErr.ExitCode()
	}
	return 1
}
