package session

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/tabkeeper/converge"
)

// Config is the top-level tabkeeper configuration.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Retention RetentionConfig `yaml:"retention"`
	AutoSave  AutoSaveConfig  `yaml:"auto_save"`
	Restore   RestoreConfig   `yaml:"restore"`
	// RulesFile points to the classification rule table used by organize.
	RulesFile string `yaml:"rules_file"`
}

// StorageConfig controls the durable store.
type StorageConfig struct {
	Path       string `yaml:"path"`
	QuotaBytes int64  `yaml:"quota_bytes"`
}

// RetentionConfig controls pruning of system-generated snapshots.
type RetentionConfig struct {
	AutoSaveKeep int `yaml:"auto_save_keep"`
	RecoveryKeep int `yaml:"recovery_keep"`
}

// AutoSaveConfig controls the background snapshot timer.
type AutoSaveConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// RestoreConfig controls restore behaviour and its convergence wait.
type RestoreConfig struct {
	PollInterval        time.Duration `yaml:"poll_interval"`
	Timeout             time.Duration `yaml:"timeout"`
	Stability           int           `yaml:"stability"`
	SkipSingleTabGroups bool          `yaml:"skip_single_tab_groups"`
	AutoCollapseGroups  bool          `yaml:"auto_collapse_groups"`
}

// LoadConfigFile reads a YAML configuration file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("session: read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("session: parse config: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// DefaultConfig returns a Config with all defaults applied.
func DefaultConfig() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// ApplyDefaults fills zero fields with production defaults.
func (c *Config) ApplyDefaults() {
	if c.Storage.Path == "" {
		c.Storage.Path = "tabkeeper.db"
	}
	if c.Storage.QuotaBytes <= 0 {
		c.Storage.QuotaBytes = DefaultQuota
	}
	if c.Retention.AutoSaveKeep <= 0 {
		c.Retention.AutoSaveKeep = 5
	}
	if c.Retention.RecoveryKeep <= 0 {
		c.Retention.RecoveryKeep = 3
	}
	if c.AutoSave.Interval <= 0 {
		c.AutoSave.Interval = 10 * time.Minute
	}
	if c.Restore.PollInterval <= 0 {
		c.Restore.PollInterval = 200 * time.Millisecond
	}
	if c.Restore.Timeout <= 0 {
		c.Restore.Timeout = 10 * time.Second
	}
	if c.Restore.Stability <= 0 {
		c.Restore.Stability = 3
	}
}

// restoreOptions translates config into engine options.
func (c *Config) restoreOptions() RestoreOptions {
	return RestoreOptions{
		SkipSingleTabGroups: c.Restore.SkipSingleTabGroups,
		AutoCollapseGroups:  c.Restore.AutoCollapseGroups,
		Poll: converge.Options{
			Interval:  c.Restore.PollInterval,
			Timeout:   c.Restore.Timeout,
			Stability: c.Restore.Stability,
		},
	}
}
