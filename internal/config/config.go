package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Supervisor    SupervisorConfig    `toml:"supervisor"`
	Delegate      DelegateConfig      `toml:"delegate"`
	Notifications NotificationsConfig `toml:"notifications"`
	History       HistoryConfig       `toml:"history"`
	Schedule      ScheduleConfig      `toml:"schedule"`
	Web           WebConfig           `toml:"web"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	// RootDir is the base directory for dev-logs, dev-markers, logs and
	// status subdirectories.
	RootDir   string `toml:"root_dir"`
	DefaultAI string `toml:"default_ai"`
}

// SupervisorConfig holds dev-process supervisor settings
type SupervisorConfig struct {
	RestartSentinel      string        `toml:"restart_sentinel"`
	PortWaitAttempts     int           `toml:"port_wait_attempts"`
	PortWaitDelay        time.Duration `toml:"port_wait_delay"`
	TeardownPollAttempts int           `toml:"teardown_poll_attempts"`
	TeardownPollDelay    time.Duration `toml:"teardown_poll_delay"`
	CommonPorts          []int         `toml:"common_ports"`
}

// DelegateConfig holds task delegation settings
type DelegateConfig struct {
	VisibleDefault   bool          `toml:"visible_default"`
	PreflightTimeout time.Duration `toml:"preflight_timeout"`
	// PaneCommand launches a visible terminal pane; {cmd} is replaced with
	// the delegation command line. Empty means visible mode degrades to
	// background with a warning.
	PaneCommand string `toml:"pane_command"`
	// ContextCommand produces an optional code-context snippet for the
	// enhanced prompt; {task} is replaced with the task description.
	ContextCommand string `toml:"context_command"`

	Tools map[string]ToolConfig `toml:"tools"`
}

// ToolConfig overrides how a specific AI CLI is invoked
type ToolConfig struct {
	Bin        string   `toml:"bin"`
	Args       []string `toml:"args"`
	PromptMode string   `toml:"prompt_mode"` // "stdin" (default) or "arg"
}

// Tool resolves the invocation for an AI tool name. Unconfigured names get
// a bare invocation of the name itself with the prompt on stdin.
func (d DelegateConfig) Tool(name string) ToolConfig {
	if t, ok := d.Tools[name]; ok {
		if t.Bin == "" {
			t.Bin = name
		}
		if t.PromptMode == "" {
			t.PromptMode = "stdin"
		}
		return t
	}
	return ToolConfig{Bin: name, PromptMode: "stdin"}
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// HistoryConfig holds history database settings
type HistoryConfig struct {
	DatabasePath string `toml:"database_path"`
}

// ScheduleConfig holds recurring delegation settings
type ScheduleConfig struct {
	// File is the TOML schedule listing recurring delegations.
	File string `toml:"file"`
}

// WebConfig holds status server settings
type WebConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			RootDir:   filepath.Join(home, ".dev-orch"),
			DefaultAI: "claude",
		},
		Supervisor: SupervisorConfig{
			RestartSentinel:      "rs",
			PortWaitAttempts:     20,
			PortWaitDelay:        300 * time.Millisecond,
			TeardownPollAttempts: 5,
			TeardownPollDelay:    200 * time.Millisecond,
			CommonPorts:          []int{3000, 3001, 4200, 5173, 5432, 8000, 8080, 9000},
		},
		Delegate: DelegateConfig{
			VisibleDefault:   false,
			PreflightTimeout: 10 * time.Second,
			Tools: map[string]ToolConfig{
				"claude": {
					Bin:        "claude",
					Args:       []string{"--print", "--dangerously-skip-permissions"},
					PromptMode: "stdin",
				},
				"gemini": {
					Bin:        "gemini",
					Args:       []string{"--yolo"},
					PromptMode: "stdin",
				},
				"codex": {
					Bin:        "codex",
					Args:       []string{"exec"},
					PromptMode: "arg",
				},
			},
		},
		Notifications: NotificationsConfig{
			Desktop: true,
		},
		History: HistoryConfig{
			DatabasePath: filepath.Join(home, ".dev-orch", "history.db"),
		},
		Schedule: ScheduleConfig{
			File: filepath.Join(home, ".dev-orch", "schedule.toml"),
		},
		Web: WebConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Expand paths
	cfg.General.RootDir = ExpandPath(cfg.General.RootDir)
	cfg.History.DatabasePath = ExpandPath(cfg.History.DatabasePath)
	cfg.Schedule.File = ExpandPath(cfg.Schedule.File)

	// The state root can be forced from the environment, which takes
	// precedence over the config file.
	if root := os.Getenv("DEV_ORCH_ROOT"); root != "" {
		cfg.General.RootDir = ExpandPath(root)
	}

	return cfg, nil
}

// Save writes the configuration to a TOML file
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "dev-orch", "config.toml")
}
