package domain

// TaskStatus represents the lifecycle state of a delegated task
type TaskStatus string

const (
	StatusRunning              TaskStatus = "running"
	StatusCompleted            TaskStatus = "completed"
	StatusFailed               TaskStatus = "failed"
	StatusAuthRequired         TaskStatus = "auth_required"
	StatusBranchCreationFailed TaskStatus = "branch_creation_failed"
)

// IsTerminal reports whether the status is a final state.
// Every status except running is terminal; there is no automatic retry.
func (s TaskStatus) IsTerminal() bool {
	return s != StatusRunning && s != ""
}

// Error codes stored in the DelegationTask Error field. They record how a
// terminal state was reached so pollers can tell "never ran" from "ran and
// failed".
const (
	ErrCLINotFound         = "cli_not_found"
	ErrAuthPreflight       = "auth_required"
	ErrAuthDuringExecution = "auth_expired_during_execution"
	ErrBranchCreation      = "branch_creation_failed"
)
