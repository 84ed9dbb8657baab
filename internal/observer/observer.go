// Package observer aggregates delegation state and watches process logs for
// the dashboard and the status server.
package observer

import (
	"time"

	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/domain"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/statusstore"
)

// Observer summarizes the status records of delegated tasks. The status
// files stay the source of truth; the observer only reads them.
type Observer struct {
	status         *statusstore.Store
	stuckThreshold time.Duration
}

// Metrics holds aggregated delegation counts
type Metrics struct {
	Running      int           `json:"running"`
	Completed    int           `json:"completed"`
	Failed       int           `json:"failed"`
	AuthRequired int           `json:"auth_required"`
	BranchFailed int           `json:"branch_failed"`
	Stuck        []string      `json:"stuck,omitempty"`
	AvgDuration  time.Duration `json:"avg_duration"`
}

// New creates an Observer over a status store
func New(status *statusstore.Store, stuckThreshold time.Duration) *Observer {
	return &Observer{
		status:         status,
		stuckThreshold: stuckThreshold,
	}
}

// IsStuck returns true if a running task has been going longer than the
// stuck threshold
func (o *Observer) IsStuck(task *domain.DelegationTask) bool {
	if task.Status != domain.StatusRunning {
		return false
	}
	if task.StartedAt.IsZero() {
		return false
	}
	return time.Since(task.StartedAt) > o.stuckThreshold
}

// Snapshot reads all status records and returns aggregated metrics
func (o *Observer) Snapshot() (Metrics, error) {
	tasks, err := o.status.List()
	if err != nil {
		return Metrics{}, err
	}

	var metrics Metrics
	var totalDuration time.Duration

	for _, t := range tasks {
		switch t.Status {
		case domain.StatusRunning:
			metrics.Running++
			if o.IsStuck(t) {
				metrics.Stuck = append(metrics.Stuck, t.TaskID)
			}
		case domain.StatusCompleted:
			metrics.Completed++
			totalDuration += t.Duration()
		case domain.StatusFailed:
			metrics.Failed++
		case domain.StatusAuthRequired:
			metrics.AuthRequired++
		case domain.StatusBranchCreationFailed:
			metrics.BranchFailed++
		}
	}

	if metrics.Completed > 0 {
		metrics.AvgDuration = totalDuration / time.Duration(metrics.Completed)
	}

	return metrics, nil
}

// StuckTasks returns the running tasks past the stuck threshold, newest
// first
func (o *Observer) StuckTasks() ([]*domain.DelegationTask, error) {
	running, err := o.status.Running()
	if err != nil {
		return nil, err
	}
	var stuck []*domain.DelegationTask
	for _, t := range running {
		if o.IsStuck(t) {
			stuck = append(stuck, t)
		}
	}
	return stuck, nil
}
