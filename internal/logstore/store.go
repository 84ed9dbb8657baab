// Package logstore maps (project, process name) pairs onto the on-disk
// layout shared by the supervisor and the log query commands:
//
//	<root>/dev-logs/<project>/<name>.log    append-only combined output
//	<root>/dev-logs/<project>/<name>.pid    supervisor liveness marker
//	<root>/dev-logs/<project>/<name>.info   JSON process info record
//	<root>/dev-markers/<project>_<name>.marker   watch cursor
//	<root>/logs/<project>/<task_id>.log     delegation transcripts
//	<root>/status/<task_id>.status          delegation status records
package logstore

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/domain"
)

// TimeFormat is the human-readable timestamp used in log headers and
// restart separators.
const TimeFormat = "2006-01-02 15:04:05"

// Store resolves paths under a single state root.
type Store struct {
	root string
}

// New creates a Store rooted at the given directory.
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the state root directory.
func (s *Store) Root() string { return s.root }

// ProjectDir returns the dev-logs directory for a project.
func (s *Store) ProjectDir(project string) string {
	return filepath.Join(s.root, "dev-logs", project)
}

// LogPath returns the log file path for a process.
func (s *Store) LogPath(project, name string) string {
	return filepath.Join(s.ProjectDir(project), name+".log")
}

// PIDPath returns the liveness marker path for a process.
func (s *Store) PIDPath(project, name string) string {
	return filepath.Join(s.ProjectDir(project), name+".pid")
}

// InfoPath returns the info record path for a process.
func (s *Store) InfoPath(project, name string) string {
	return filepath.Join(s.ProjectDir(project), name+".info")
}

// MarkerPath returns the watch cursor path for a process.
func (s *Store) MarkerPath(project, name string) string {
	return filepath.Join(s.root, "dev-markers", fmt.Sprintf("%s_%s.marker", project, name))
}

// TaskLogDir returns the delegation transcript directory for a project.
func (s *Store) TaskLogDir(project string) string {
	return filepath.Join(s.root, "logs", project)
}

// StatusDir returns the delegation status record directory.
func (s *Store) StatusDir() string {
	return filepath.Join(s.root, "status")
}

// EnsureProject creates the per-project directories.
func (s *Store) EnsureProject(project string) error {
	for _, dir := range []string{s.ProjectDir(project), filepath.Join(s.root, "dev-markers")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// OpenLog opens a process log for appending, creating it if needed.
func (s *Store) OpenLog(project, name string) (*os.File, error) {
	if err := s.EnsureProject(project); err != nil {
		return nil, err
	}
	return os.OpenFile(s.LogPath(project, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

// OpenLogFresh discards any previous session's content and opens the log
// for appending. Only a new supervise session truncates; in-place restarts
// keep appending to the handle they already hold.
func (s *Store) OpenLogFresh(project, name string) (*os.File, error) {
	if err := s.EnsureProject(project); err != nil {
		return nil, err
	}
	return os.OpenFile(s.LogPath(project, name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC|os.O_APPEND, 0644)
}

// WriteHeader writes the start-of-run header block for a process.
func (s *Store) WriteHeader(w io.Writer, info domain.ProcessInfo) error {
	_, err := fmt.Fprintf(w, "=== PROCESS: %s/%s ===\n=== COMMAND: %s ===\n=== STARTED: %s ===\n=== CWD: %s ===\n",
		info.Project, info.Name, info.Command, info.StartedAt.Format(TimeFormat), info.Cwd)
	return err
}

// WriteRestartSeparator appends the restart marker line. Content already in
// the log stays untouched; the separator is the only thing a restart adds.
func (s *Store) WriteRestartSeparator(w io.Writer, t time.Time) error {
	_, err := fmt.Fprintf(w, "=== RESTARTED: %s ===\n", t.Format(TimeFormat))
	return err
}

// IsSeparatorLine reports whether a log line is part of a header or restart
// separator block.
func IsSeparatorLine(line string) bool {
	return strings.HasPrefix(line, "=== ")
}

// WriteInfo overwrites the info record for a process.
func (s *Store) WriteInfo(info domain.ProcessInfo) error {
	if err := s.EnsureProject(info.Project); err != nil {
		return err
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.InfoPath(info.Project, info.Name), data, 0644)
}

// ReadInfo loads the info record for a process.
func (s *Store) ReadInfo(project, name string) (domain.ProcessInfo, error) {
	var info domain.ProcessInfo
	data, err := os.ReadFile(s.InfoPath(project, name))
	if err != nil {
		return info, err
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return info, fmt.Errorf("parsing %s: %w", s.InfoPath(project, name), err)
	}
	return info, nil
}

// WritePID writes the supervisor's liveness marker.
func (s *Store) WritePID(project, name string, pid int) error {
	if err := s.EnsureProject(project); err != nil {
		return err
	}
	return os.WriteFile(s.PIDPath(project, name), []byte(strconv.Itoa(pid)+"\n"), 0644)
}

// ReadPID returns the recorded supervisor PID, or an error if no marker
// exists.
func (s *Store) ReadPID(project, name string) (int, error) {
	data, err := os.ReadFile(s.PIDPath(project, name))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", s.PIDPath(project, name), err)
	}
	return pid, nil
}

// RemovePID removes the liveness marker. Missing markers are not an error.
func (s *Store) RemovePID(project, name string) error {
	err := os.Remove(s.PIDPath(project, name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ProcessRunning reports whether the marker exists and the recorded PID
// still answers a signal probe. The marker alone is only a hint; it can be
// stale after an unclean supervisor death.
func (s *Store) ProcessRunning(project, name string) bool {
	pid, err := s.ReadPID(project, name)
	if err != nil {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// ListProcesses returns the names of all processes with a log file in the
// project, sorted.
func (s *Store) ListProcesses(project string) ([]string, error) {
	entries, err := os.ReadDir(s.ProjectDir(project))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".log"))
	}
	sort.Strings(names)
	return names, nil
}

// Truncate empties a process log and drops its watch cursor.
func (s *Store) Truncate(project, name string) error {
	if err := os.Truncate(s.LogPath(project, name), 0); err != nil {
		return err
	}
	return s.RemoveMarker(project, name)
}

// ReadMarker returns the watch cursor line count, or 0 when no cursor has
// been written yet.
func (s *Store) ReadMarker(project, name string) (int, error) {
	data, err := os.ReadFile(s.MarkerPath(project, name))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", s.MarkerPath(project, name), err)
	}
	return n, nil
}

// WriteMarker persists the watch cursor line count.
func (s *Store) WriteMarker(project, name string, lines int) error {
	if err := s.EnsureProject(project); err != nil {
		return err
	}
	return os.WriteFile(s.MarkerPath(project, name), []byte(strconv.Itoa(lines)+"\n"), 0644)
}

// RemoveMarker drops the watch cursor. Missing cursors are not an error.
func (s *Store) RemoveMarker(project, name string) error {
	err := os.Remove(s.MarkerPath(project, name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
