// Package logquery provides the read side over captured dev-process logs:
// per-process health summaries, tails, error extraction and incremental
// watch cursors.
package logquery

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/domain"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/logstore"
)

// errorPattern is the fixed disjunction used to classify log lines. It is
// deliberately broad: it covers compiler, linter and runtime vocabularies
// across ecosystems, and the bare word "warning" counts as a signal. The
// TypeScript (TS1234:) and Rust (error[E0001]) forms are matched
// case-sensitively.
var errorPattern = regexp.MustCompile(
	`(?i:\b(?:error|errors|failed|failure|fatal|panic|exception|warning|unhandled|traceback|cannot find|unable to)\b)` +
		`|TS[0-9]+:` +
		`|error\[E[0-9]+\]` +
		`|\bERR!` +
		`|SyntaxError|TypeError|ReferenceError`)

// maxErrorMatches bounds how many matches Errors reports per log; only the
// most recent ones are kept.
const maxErrorMatches = 100

// DefaultTailLines is the tail line count when the caller gives none.
const DefaultTailLines = 50

// DefaultRecentLines is the raw-line window for Recent when the caller
// gives none.
const DefaultRecentLines = 100

// Query answers read-only questions about a project's logs.
type Query struct {
	store *logstore.Store
}

// New creates a Query over the given store.
func New(store *logstore.Store) *Query {
	return &Query{store: store}
}

// Match is one error-matching log line with its 1-based line number.
type Match struct {
	Line int    `json:"line"`
	Text string `json:"text"`
}

// LogErrors holds the error matches for one process log.
type LogErrors struct {
	Name    string  `json:"name"`
	Matches []Match `json:"matches"`
}

// IsErrorLine reports whether a single line matches the error pattern.
func IsErrorLine(line string) bool {
	return errorPattern.MatchString(line)
}

// Summary produces the per-process health digest for every log in the
// project. Calling it twice without intervening writes yields identical
// results.
func (q *Query) Summary(project string) ([]domain.ProcessSummary, error) {
	names, err := q.store.ListProcesses(project)
	if err != nil {
		return nil, err
	}

	var summaries []domain.ProcessSummary
	for _, name := range names {
		lines, err := q.readLines(project, name)
		if err != nil {
			return nil, err
		}

		count := 0
		lastLine := ""
		for _, line := range lines {
			if errorPattern.MatchString(line) {
				count++
			}
			if strings.TrimSpace(line) != "" && !logstore.IsSeparatorLine(line) {
				lastLine = line
			}
		}

		var size int64
		if fi, err := os.Stat(q.store.LogPath(project, name)); err == nil {
			size = fi.Size()
		}

		summaries = append(summaries, domain.ProcessSummary{
			Name:       name,
			ErrorCount: count,
			LastLine:   lastLine,
			LogPath:    q.store.LogPath(project, name),
			SizeBytes:  size,
			Running:    q.store.ProcessRunning(project, name),
		})
	}
	return summaries, nil
}

// Tail returns the last n lines of a process log verbatim.
func (q *Query) Tail(project, name string, n int) ([]string, error) {
	if n <= 0 {
		n = DefaultTailLines
	}
	lines, err := q.readLines(project, name)
	if err != nil {
		return nil, err
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// Errors filters one log (or all logs when name is empty) down to
// error-matching lines, keeping at most the last maxErrorMatches per log.
func (q *Query) Errors(project, name string) ([]LogErrors, error) {
	names := []string{name}
	if name == "" {
		var err error
		names, err = q.store.ListProcesses(project)
		if err != nil {
			return nil, err
		}
	}

	var results []LogErrors
	for _, n := range names {
		lines, err := q.readLines(project, n)
		if err != nil {
			return nil, err
		}
		results = append(results, LogErrors{Name: n, Matches: matchLines(lines, 0)})
	}
	return results, nil
}

// Recent runs the error filter over only the last n raw lines of each log,
// so the cost stays bounded for arbitrarily large logs. Reported line
// numbers are positions in the full file.
func (q *Query) Recent(project string, n int) ([]LogErrors, error) {
	if n <= 0 {
		n = DefaultRecentLines
	}
	names, err := q.store.ListProcesses(project)
	if err != nil {
		return nil, err
	}

	var results []LogErrors
	for _, name := range names {
		lines, err := q.readLines(project, name)
		if err != nil {
			return nil, err
		}
		offset := 0
		if len(lines) > n {
			offset = len(lines) - n
			lines = lines[offset:]
		}
		results = append(results, LogErrors{Name: name, Matches: matchLines(lines, offset)})
	}
	return results, nil
}

// Watch returns the lines appended since the last Watch call and advances
// the persisted cursor. The cursor survives across invocations; nothing but
// another Watch or a Clear moves it.
func (q *Query) Watch(project, name string) ([]string, error) {
	lines, err := q.readLines(project, name)
	if err != nil {
		return nil, err
	}

	cursor, err := q.store.ReadMarker(project, name)
	if err != nil {
		return nil, err
	}

	// A cursor past the end means the log was truncated out of band;
	// resync without replaying old content.
	if cursor > len(lines) {
		cursor = len(lines)
	}

	fresh := lines[cursor:]
	if err := q.store.WriteMarker(project, name, len(lines)); err != nil {
		return nil, err
	}
	return fresh, nil
}

// Clear truncates a process log and drops its watch cursor.
func (q *Query) Clear(project, name string) error {
	if _, err := os.Stat(q.store.LogPath(project, name)); err != nil {
		return fmt.Errorf("unknown process %q in project %q", name, project)
	}
	return q.store.Truncate(project, name)
}

// List returns the process names with logs in the project.
func (q *Query) List(project string) ([]string, error) {
	return q.store.ListProcesses(project)
}

func matchLines(lines []string, offset int) []Match {
	var matches []Match
	for i, line := range lines {
		if errorPattern.MatchString(line) {
			matches = append(matches, Match{Line: offset + i + 1, Text: line})
		}
	}
	if len(matches) > maxErrorMatches {
		matches = matches[len(matches)-maxErrorMatches:]
	}
	return matches
}

func (q *Query) readLines(project, name string) ([]string, error) {
	path := q.store.LogPath(project, name)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("unknown process %q in project %q", name, project)
		}
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}
