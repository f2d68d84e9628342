// Package config parses and validates tidewatch.toml: storage accounts,
// blob triggers, queue triggers, and the watch schedule.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/nholden/tidewatch/internal/match"
)

// Defaults for queue trigger intervals.
const (
	DefaultPollInterval    = 10 * time.Second
	DefaultMinPollInterval = 2 * time.Second
)

// DefaultWatchSchedule drives blob polls when [watch] sets no schedule.
const DefaultWatchSchedule = "@every 1m"

// Duration wraps time.Duration for TOML unmarshalling.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	return nil
}

// Config is the top-level structure parsed from a tidewatch.toml file.
type Config struct {
	Accounts      map[string]string `toml:"accounts"` // name → connection string or "secret:<key>"
	Watch         WatchConfig       `toml:"watch"`
	BlobTriggers  []BlobTrigger     `toml:"blob_triggers"`
	QueueTriggers []QueueTrigger    `toml:"queue_triggers"`

	path string // unexported: filesystem path of the tidewatch.toml
}

// Path returns the filesystem path this config was loaded from.
func (c *Config) Path() string {
	return c.path
}

// Dir returns the directory containing this config file.
func (c *Config) Dir() string {
	return filepath.Dir(c.path)
}

// WatchConfig holds host-level settings for the watch command.
type WatchConfig struct {
	// Schedule is a cron expression (robfig syntax, @every supported)
	// pacing blob polls.
	Schedule string `toml:"schedule"`

	// MetricsAddr serves Prometheus metrics when set, e.g. ":9090".
	MetricsAddr string `toml:"metrics_addr"`
}

// BlobTrigger declares a job gated on blob changes.
type BlobTrigger struct {
	Name      string   `toml:"name"`
	Account   string   `toml:"account"`
	Container string   `toml:"container"`
	Input     string   `toml:"input"`   // input pattern with {placeholder} captures
	Outputs   []string `toml:"outputs"` // optional output patterns, in order
	Command   string   `toml:"command"`
}

// QueueTrigger declares a job fed from a message queue.
type QueueTrigger struct {
	Name            string   `toml:"name"`
	Account         string   `toml:"account"`
	Queue           string   `toml:"queue"`
	Command         string   `toml:"command"`
	PollInterval    Duration `toml:"poll_interval"`
	MinPollInterval Duration `toml:"min_poll_interval"`
}

// Load parses a tidewatch.toml file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path %q: %w", path, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", absPath, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %q: %w", absPath, err)
	}
	cfg.path = absPath

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Watch.Schedule == "" {
		c.Watch.Schedule = DefaultWatchSchedule
	}
	for i := range c.QueueTriggers {
		qt := &c.QueueTriggers[i]
		if qt.PollInterval.Duration == 0 {
			qt.PollInterval.Duration = DefaultPollInterval
		}
		if qt.MinPollInterval.Duration == 0 {
			qt.MinPollInterval.Duration = DefaultMinPollInterval
		}
	}
}

// Validate checks structural correctness: every trigger names a known
// account, patterns parse, intervals are ordered. It does not touch the
// network.
func (c *Config) Validate() error {
	if len(c.BlobTriggers) == 0 && len(c.QueueTriggers) == 0 {
		return fmt.Errorf("no triggers defined")
	}

	seen := make(map[string]bool)
	checkName := func(name string) error {
		if name == "" {
			return fmt.Errorf("trigger with empty name")
		}
		if seen[name] {
			return fmt.Errorf("duplicate trigger name %q", name)
		}
		seen[name] = true
		return nil
	}

	for _, t := range c.BlobTriggers {
		if err := checkName(t.Name); err != nil {
			return err
		}
		if _, ok := c.Accounts[t.Account]; !ok {
			return fmt.Errorf("trigger %q: unknown account %q", t.Name, t.Account)
		}
		if t.Container == "" {
			return fmt.Errorf("trigger %q: container required", t.Name)
		}
		if t.Input == "" {
			return fmt.Errorf("trigger %q: input pattern required", t.Name)
		}
		if err := match.Validate(t.Input); err != nil {
			return fmt.Errorf("trigger %q: input: %w", t.Name, err)
		}
		for _, out := range t.Outputs {
			if err := match.Validate(out); err != nil {
				return fmt.Errorf("trigger %q: output: %w", t.Name, err)
			}
		}
		if t.Command == "" {
			return fmt.Errorf("trigger %q: command required", t.Name)
		}
	}

	for _, t := range c.QueueTriggers {
		if err := checkName(t.Name); err != nil {
			return err
		}
		if _, ok := c.Accounts[t.Account]; !ok {
			return fmt.Errorf("trigger %q: unknown account %q", t.Name, t.Account)
		}
		if t.Queue == "" {
			return fmt.Errorf("trigger %q: queue required", t.Name)
		}
		if t.Command == "" {
			return fmt.Errorf("trigger %q: command required", t.Name)
		}
		if t.MinPollInterval.Duration <= 0 || t.PollInterval.Duration <= 0 {
			return fmt.Errorf("trigger %q: intervals must be positive", t.Name)
		}
		if t.MinPollInterval.Duration > t.PollInterval.Duration {
			return fmt.Errorf("trigger %q: min_poll_interval exceeds poll_interval", t.Name)
		}
	}

	return nil
}
