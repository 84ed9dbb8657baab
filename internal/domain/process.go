package domain

import "time"

// ProcessInfo describes one supervised dev process. It is written as JSON to
// the process's .info file on every (re)start, overwriting the previous
// record.
type ProcessInfo struct {
	Name      string    `json:"name"`
	Project   string    `json:"project"`
	Command   string    `json:"command"`
	StartedAt time.Time `json:"started_at"`
	Cwd       string    `json:"cwd"`
	LogPath   string    `json:"log_path"`
	RunID     string    `json:"run_id"`
}

// ProcessDefinition is one named process entry from a project's process
// definition file.
type ProcessDefinition struct {
	Name    string `yaml:"name"`
	Command string `yaml:"command"`
	Cwd     string `yaml:"cwd,omitempty"`
}

// ProcessSummary is the per-process health digest produced by the log query
// layer.
type ProcessSummary struct {
	Name       string `json:"name"`
	ErrorCount int    `json:"error_count"`
	LastLine   string `json:"last_line"`
	LogPath    string `json:"log_path"`
	SizeBytes  int64  `json:"size_bytes"`
	Running    bool   `json:"running"`
}

// SessionRecord summarizes one finished supervise session for the history
// database. One row per supervisor invocation, however many restarts it
// cycled through.
type SessionRecord struct {
	RunID     string    `json:"run_id"`
	Project   string    `json:"project"`
	Name      string    `json:"name"`
	Command   string    `json:"command"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	ExitCode  int       `json:"exit_code"`
	Restarts  int       `json:"restarts"`
}
