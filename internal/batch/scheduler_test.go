package batch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseCron(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"0 22 * * *", false},   // 10 PM daily
		{"0 12 * * 1-5", false}, // noon weekdays
		{"*/5 * * * *", false},  // every 5 minutes
		{"invalid", true},
	}

	for _, tt := range tests {
		_, err := ParseCron(tt.expr)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCron(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
		}
	}
}

func TestEntry_Validate(t *testing.T) {
	valid := Entry{
		Name:    "nightly-lint",
		AI:      "claude",
		Task:    "Run the linter and fix everything it reports",
		Project: "/home/dev/shop",
		Cron:    "0 22 * * *",
	}

	if err := valid.Validate(); err != nil {
		t.Errorf("Valid entry should not error: %v", err)
	}

	tests := []struct {
		field  string
		mutate func(*Entry)
	}{
		{"name", func(e *Entry) { e.Name = "" }},
		{"ai", func(e *Entry) { e.AI = "" }},
		{"task", func(e *Entry) { e.Task = "" }},
		{"project", func(e *Entry) { e.Project = "" }},
		{"cron", func(e *Entry) { e.Cron = "" }},
		{"bad cron", func(e *Entry) { e.Cron = "every tuesday" }},
	}

	for _, tt := range tests {
		e := valid
		tt.mutate(&e)
		if err := e.Validate(); err == nil {
			t.Errorf("missing %s should error", tt.field)
		}
	}
}

func TestLoadSchedule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.toml")
	content := `[[delegation]]
name = "nightly-lint"
ai = "claude"
task = "Run the linter and fix everything it reports"
project = "/home/dev/shop"
cron = "0 22 * * *"
branch = true

[[delegation]]
name = "weekly-deps"
ai = "codex"
task = "Bump dependencies and fix the fallout"
project = "/home/dev/api"
cron = "0 9 * * 1"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	sched, err := LoadSchedule(path)
	if err != nil {
		t.Fatalf("LoadSchedule: %v", err)
	}
	if len(sched.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(sched.Entries))
	}

	first := sched.Entries[0]
	if first.Name != "nightly-lint" || first.AI != "claude" || !first.Branch {
		t.Errorf("first entry = %+v", first)
	}
	if sched.Entries[1].Branch {
		t.Error("second entry branch should default to false")
	}
}

func TestLoadSchedule_MissingFile(t *testing.T) {
	sched, err := LoadSchedule(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadSchedule: %v", err)
	}
	if len(sched.Entries) != 0 {
		t.Errorf("got %d entries, want empty schedule", len(sched.Entries))
	}
}

func TestLoadSchedule_InvalidEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.toml")
	content := `[[delegation]]
name = "broken"
ai = "claude"
task = "do things"
project = "/home/dev/shop"
cron = "not a cron"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadSchedule(path); err == nil {
		t.Error("expected error for invalid cron expression")
	}
}

func TestScheduler_NextRun(t *testing.T) {
	e := Entry{
		Name:    "test",
		AI:      "claude",
		Task:    "tidy up",
		Project: "/tmp/proj",
		Cron:    "0 22 * * *", // 10 PM daily
	}

	sched, err := NewScheduler([]Entry{e})
	if err != nil {
		t.Fatal(err)
	}

	next := sched.NextRun("test")
	if next.IsZero() {
		t.Error("NextRun should return a time")
	}

	// Should be in the future
	if !next.After(time.Now()) {
		t.Error("NextRun should be in the future")
	}

	if !sched.NextRun("unknown").IsZero() {
		t.Error("NextRun for unknown entry should be zero")
	}
}

func TestScheduler_ShouldRun(t *testing.T) {
	e := Entry{
		Name:    "test",
		AI:      "claude",
		Task:    "tidy up",
		Project: "/tmp/proj",
		Cron:    "* * * * *", // Every minute
	}

	sched, err := NewScheduler([]Entry{e})
	if err != nil {
		t.Fatal(err)
	}

	// Freshly created schedulers have nothing due
	if sched.ShouldRun("test") {
		t.Error("ShouldRun should be false right after creation")
	}

	// Mark as last run two minutes ago
	sched.lastRun["test"] = time.Now().Add(-2 * time.Minute)

	if !sched.ShouldRun("test") {
		t.Error("Should run after cron interval passed")
	}

	sched.MarkRunning("test")
	if sched.ShouldRun("test") {
		t.Error("ShouldRun should be false while running")
	}

	sched.MarkComplete("test")
	if sched.ShouldRun("test") {
		t.Error("ShouldRun should be false right after completion")
	}
}

func TestScheduler_Names(t *testing.T) {
	entries := []Entry{
		{Name: "zeta", AI: "claude", Task: "t", Project: "/p", Cron: "* * * * *"},
		{Name: "alpha", AI: "claude", Task: "t", Project: "/p", Cron: "* * * * *"},
	}

	sched, err := NewScheduler(entries)
	if err != nil {
		t.Fatal(err)
	}

	names := sched.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Errorf("Names() = %v, want sorted [alpha zeta]", names)
	}
}
