// Package batch schedules recurring delegations from a TOML file, so
// routine work (nightly lint fixes, dependency bumps) runs without anyone
// typing `dev-orch delegate`.
package batch

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/config"
)

// Entry is one recurring delegation.
type Entry struct {
	Name    string `toml:"name"`
	AI      string `toml:"ai"`
	Task    string `toml:"task"`
	Project string `toml:"project"`
	Cron    string `toml:"cron"`
	Branch  bool   `toml:"branch"`
}

// Schedule holds all recurring delegations.
type Schedule struct {
	Entries []Entry `toml:"delegation"`
}

// Validate checks if the entry is complete and its cron expression parses
func (e *Entry) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("entry name is required")
	}
	if e.AI == "" {
		return fmt.Errorf("ai is required")
	}
	if e.Task == "" {
		return fmt.Errorf("task is required")
	}
	if e.Project == "" {
		return fmt.Errorf("project is required")
	}
	if e.Cron == "" {
		return fmt.Errorf("cron expression is required")
	}
	if _, err := ParseCron(e.Cron); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// LoadSchedule loads recurring delegations from a TOML file. A missing file
// yields an empty schedule.
func LoadSchedule(path string) (*Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Schedule{}, nil
		}
		return nil, err
	}

	var sched Schedule
	if err := toml.Unmarshal(data, &sched); err != nil {
		return nil, err
	}

	for i := range sched.Entries {
		if err := sched.Entries[i].Validate(); err != nil {
			return nil, fmt.Errorf("delegation %d: %w", i, err)
		}
		sched.Entries[i].Project = config.ExpandPath(sched.Entries[i].Project)
	}

	return &sched, nil
}
