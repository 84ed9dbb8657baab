//go:build integration

package integration

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TempConfigPath returns a config file path inside a fresh temp dir.
func TempConfigPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "config.toml")
}

// WriteConfig writes a config pointing the state root and history database
// at temp directories and returns (configPath, rootDir).
func WriteConfig(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	configPath := TempConfigPath(t)

	config := `[general]
root_dir = "` + root + `"
default_ai = "claude"

[history]
database_path = "` + filepath.Join(root, "history.db") + `"

[notifications]
desktop = false
`
	if err := os.WriteFile(configPath, []byte(config), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return configPath, root
}

// SeedLog writes a process log directly into the state root layout, as a
// finished supervise session would have left it.
func SeedLog(t *testing.T, root, project, name, content string) {
	t.Helper()
	dir := filepath.Join(root, "dev-logs", project)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create log dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+".log"), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write log: %v", err)
	}
}

// SeedStatus writes a delegation status record into the state root.
func SeedStatus(t *testing.T, root, taskID, status string) {
	t.Helper()
	dir := filepath.Join(root, "status")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create status dir: %v", err)
	}

	record := map[string]interface{}{
		"task_id":          taskID,
		"ai_name":          "claude",
		"status":           status,
		"task_description": "seeded record",
		"project_path":     "/tmp/proj",
		"started_at":       time.Now().Format(time.RFC3339),
		"log_path":         filepath.Join(root, "logs", "proj", taskID+".log"),
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		t.Fatalf("Failed to marshal status record: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, taskID+".status"), data, 0644); err != nil {
		t.Fatalf("Failed to write status record: %v", err)
	}
}
