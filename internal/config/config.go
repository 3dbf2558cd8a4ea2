package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ErrInvalid is wrapped by every validation error
var ErrInvalid = errors.New("invalid config")

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Worker        CommandConfig       `toml:"worker"`
	Review        ReviewConfig        `toml:"review"`
	Integration   IntegrationConfig   `toml:"integration"`
	Dependencies  DependenciesConfig  `toml:"dependencies"`
	History       HistoryConfig       `toml:"history"`
	Notifications NotificationsConfig `toml:"notifications"`
	Metrics       MetricsConfig       `toml:"metrics"`
	Schedules     []ScheduleConfig    `toml:"schedule"`
}

// GeneralConfig holds run settings
type GeneralConfig struct {
	RepoDir      string `toml:"repo_dir"`
	Repo         string `toml:"repo"`
	WorktreeDir  string `toml:"worktree_dir"`
	LogDir       string `toml:"log_dir"`
	MaxRetries   int    `toml:"max_retries"`
	MaxWorkers   int    `toml:"max_workers"`
	ForceCleanup bool   `toml:"force_cleanup"`
	// PollInterval bounds the scheduling loop's wait between passes
	PollInterval Duration `toml:"poll_interval"`
	// GracePeriod is how long running jobs get after an interrupt, and
	// how long a child process gets between signals
	GracePeriod Duration `toml:"grace_period"`
}

// CommandConfig is an external command given as argv
type CommandConfig struct {
	Command []string `toml:"command"`
}

// ReviewConfig configures the pull request review step
type ReviewConfig struct {
	Command []string `toml:"command"`
	Skip    bool     `toml:"skip"`
}

// IntegrationConfig configures how pull requests are merged
type IntegrationConfig struct {
	MergeMethod string `toml:"merge_method"`
}

// DependenciesConfig configures free-text dependency extraction. Empty
// markers select the built-in set.
type DependenciesConfig struct {
	Markers  []string `toml:"markers"`
	Disabled bool     `toml:"disabled"`
}

// HistoryConfig holds run history settings
type HistoryConfig struct {
	Enabled      bool   `toml:"enabled"`
	DatabasePath string `toml:"database_path"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// MetricsConfig holds metrics export settings
type MetricsConfig struct {
	Textfile string `toml:"textfile"`
}

// ScheduleConfig is a cron-triggered run of an input document
type ScheduleConfig struct {
	Name        string   `toml:"name"`
	Cron        string   `toml:"cron"`
	Input       string   `toml:"input"`
	MaxDuration Duration `toml:"max_duration"`
}

// Duration is a time.Duration written as "30s" or "1h30m" in TOML
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			MaxRetries:   3,
			PollInterval: Duration{500 * time.Millisecond},
			GracePeriod:  Duration{10 * time.Second},
		},
		Worker: CommandConfig{
			Command: []string{"codeagent-wrapper", "--backend", "codex", "-"},
		},
		Review: ReviewConfig{
			Command: []string{"codeagent-wrapper", "--backend", "codex", "-"},
		},
		Integration: IntegrationConfig{
			MergeMethod: "squash",
		},
		History: HistoryConfig{
			Enabled:      true,
			DatabasePath: filepath.Join(home, ".local", "share", "gh-implement", "history.db"),
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
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	// Expand paths
	cfg.General.RepoDir = ExpandPath(cfg.General.RepoDir)
	cfg.General.WorktreeDir = ExpandPath(cfg.General.WorktreeDir)
	cfg.General.LogDir = ExpandPath(cfg.General.LogDir)
	cfg.History.DatabasePath = ExpandPath(cfg.History.DatabasePath)
	cfg.Metrics.Textfile = ExpandPath(cfg.Metrics.Textfile)
	for i := range cfg.Schedules {
		cfg.Schedules[i].Input = ExpandPath(cfg.Schedules[i].Input)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late in a run
func (c *Config) Validate() error {
	if c.General.MaxRetries < 0 {
		return fmt.Errorf("%w: general.max_retries must be >= 0, got %d", ErrInvalid, c.General.MaxRetries)
	}
	if c.General.MaxWorkers < 0 {
		return fmt.Errorf("%w: general.max_workers must be >= 0, got %d", ErrInvalid, c.General.MaxWorkers)
	}
	if c.General.PollInterval.Duration < 0 || c.General.GracePeriod.Duration < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalid)
	}

	seen := make(map[string]bool)
	for i, s := range c.Schedules {
		if s.Name == "" {
			return fmt.Errorf("%w: schedule %d: name is required", ErrInvalid, i)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: schedule %q defined twice", ErrInvalid, s.Name)
		}
		seen[s.Name] = true
		if s.Cron == "" || s.Input == "" {
			return fmt.Errorf("%w: schedule %q needs cron and input", ErrInvalid, s.Name)
		}
	}
	return nil
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
	return filepath.Join(home, ".config", "gh-implement", "config.toml")
}
