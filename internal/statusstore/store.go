// Package statusstore persists delegation task status records as JSON
// files, one per task. Records are replaced atomically so concurrent
// pollers never observe a partially written file.
package statusstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/domain"
)

// Store reads and writes <dir>/<task_id>.status files.
type Store struct {
	dir string
}

// New creates a Store over the given status directory.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the status directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the status file path for a task.
func (s *Store) Path(taskID string) string {
	return filepath.Join(s.dir, taskID+".status")
}

// Write replaces the status record for a task. The record is written to a
// temp file in the same directory and renamed into place, so a reader sees
// either the old record or the new one, never a torn write.
func (s *Store) Write(task *domain.DelegationTask) error {
	if task.TaskID == "" {
		return fmt.Errorf("task has no ID")
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("creating status dir: %w", err)
	}

	data, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-"+task.TaskID+"-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, s.Path(task.TaskID)); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Read loads the status record for a task.
func (s *Store) Read(taskID string) (*domain.DelegationTask, error) {
	data, err := os.ReadFile(s.Path(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no status record for task %q", taskID)
		}
		return nil, err
	}
	var task domain.DelegationTask
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", s.Path(taskID), err)
	}
	return &task, nil
}

// List returns all status records, newest dispatch first.
func (s *Store) List() ([]*domain.DelegationTask, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var tasks []*domain.DelegationTask
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".status") || strings.HasPrefix(name, ".") {
			continue
		}
		task, err := s.Read(strings.TrimSuffix(name, ".status"))
		if err != nil {
			// Skip unreadable records rather than failing the whole listing
			continue
		}
		tasks = append(tasks, task)
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].StartedAt.After(tasks[j].StartedAt)
	})
	return tasks, nil
}

// Running returns the records still in the running state.
func (s *Store) Running() ([]*domain.DelegationTask, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	var running []*domain.DelegationTask
	for _, t := range all {
		if t.Status == domain.StatusRunning {
			running = append(running, t)
		}
	}
	return running, nil
}

// Recent returns the n most recently dispatched records.
func (s *Store) Recent(n int) ([]*domain.DelegationTask, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(all) > n {
		all = all[:n]
	}
	return all, nil
}

// Clean removes every record in a terminal state and returns how many were
// removed. Running records are kept.
func (s *Store) Clean() (int, error) {
	all, err := s.List()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, t := range all {
		if t.Status == domain.StatusRunning {
			continue
		}
		if err := os.Remove(s.Path(t.TaskID)); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
