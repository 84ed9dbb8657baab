package domain

import (
	"fmt"
	"regexp"
	"time"
)

var taskIDRegex = regexp.MustCompile(`^([a-z][a-z0-9-]*)_(\d{8}_\d{6})_(\d+)$`)

// TaskIDTimeFormat is the timestamp layout embedded in task IDs.
const TaskIDTimeFormat = "20060102_150405"

// NewTaskID builds a task identifier of the form {ai_name}_{timestamp}_{pid}.
// IDs are unique per invocation and sort chronologically per tool.
func NewTaskID(aiName string, t time.Time, pid int) string {
	return fmt.Sprintf("%s_%s_%d", aiName, t.Format(TaskIDTimeFormat), pid)
}

// ParseTaskID extracts the tool name and dispatch time from a task ID.
func ParseTaskID(id string) (aiName string, started time.Time, err error) {
	matches := taskIDRegex.FindStringSubmatch(id)
	if matches == nil {
		return "", time.Time{}, fmt.Errorf("invalid task ID format: %q (expected ai_YYYYMMDD_HHMMSS_pid)", id)
	}
	started, err = time.ParseInLocation(TaskIDTimeFormat, matches[2], time.Local)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("invalid task ID timestamp: %q", matches[2])
	}
	return matches[1], started, nil
}

// DelegationTask is the durable status record for one delegated task.
// It is the single source of truth for the task's lifecycle; writers must
// replace the file atomically so concurrent pollers never see a torn record.
type DelegationTask struct {
	TaskID          string     `json:"task_id"`
	AIName          string     `json:"ai_name"`
	Status          TaskStatus `json:"status"`
	TaskDescription string     `json:"task_description"`
	ProjectPath     string     `json:"project_path"`
	BranchName      string     `json:"branch_name,omitempty"`
	OriginalBranch  string     `json:"original_branch,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ExitCode        *int       `json:"exit_code,omitempty"`
	LogPath         string     `json:"log_path"`
	Error           string     `json:"error,omitempty"`
	CommitsMade     int        `json:"commits_made,omitempty"`
	FilesChanged    int        `json:"files_changed,omitempty"`
}

// Duration returns how long the task has run, or its total runtime once
// completed.
func (t *DelegationTask) Duration() time.Duration {
	if t.CompletedAt != nil {
		return t.CompletedAt.Sub(t.StartedAt)
	}
	return time.Since(t.StartedAt)
}
