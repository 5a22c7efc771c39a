package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/molt/pkg/errdefs"
	"github.com/cuemby/molt/pkg/types"
)

// Defaults for options left unset in the config file
const (
	DefaultBranch        = "main"
	DefaultChunk         = 1024
	DefaultHTTPRetries   = 5
	DefaultBackoffSec    = 3
	DefaultMaxBackoffSec = 60
	DefaultHTTPTimeout   = 10
	DefaultUserAgent     = "molt-ota"
	DefaultStageDir      = ".ota_stage"
	DefaultBackupDir     = ".ota_backup"
	DefaultMaxTreeFiles  = 2000
)

// Config holds all recognized options for one update run. It is immutable
// once loaded; the engine never writes it back.
type Config struct {
	// Repository identity
	Owner string `json:"owner" yaml:"owner"`
	Repo  string `json:"repo" yaml:"repo"`

	// Channel selection
	Channel types.Channel `json:"channel" yaml:"channel"`
	Branch  string        `json:"branch" yaml:"branch"`

	// Authentication
	Token     string `json:"token,omitempty" yaml:"token,omitempty"`
	UserAgent string `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`

	// Path filters
	Allow  []string `json:"allow,omitempty" yaml:"allow,omitempty"`
	Ignore []string `json:"ignore,omitempty" yaml:"ignore,omitempty"`

	// I/O and retry policy
	Chunk             int `json:"chunk" yaml:"chunk"`
	HTTPRetries       int `json:"http_retries" yaml:"http_retries"`
	BackoffSec        int `json:"backoff_sec" yaml:"backoff_sec"`
	MaxBackoffSec     int `json:"max_backoff_sec" yaml:"max_backoff_sec"`
	ConnectTimeoutSec int `json:"connect_timeout_sec" yaml:"connect_timeout_sec"`
	HTTPTimeoutSec    int `json:"http_timeout_sec" yaml:"http_timeout_sec"`

	// Manifest trust
	ManifestKey     string `json:"manifest_key,omitempty" yaml:"manifest_key,omitempty"`
	AllowUnverified bool   `json:"allow_unverified" yaml:"allow_unverified"`

	// Tree listing guards
	MaxTreeFiles  int `json:"max_tree_files" yaml:"max_tree_files"`
	MaxTreeSizeKB int `json:"max_tree_size_kb" yaml:"max_tree_size_kb"`

	// Resource thresholds
	MinFreeMem     int64 `json:"min_free_mem" yaml:"min_free_mem"`
	MinFreeStorage int64 `json:"min_free_storage" yaml:"min_free_storage"`
	MinBatteryPct  int   `json:"min_battery_pct" yaml:"min_battery_pct"`
	MinCPUMHz      int   `json:"min_cpu_mhz" yaml:"min_cpu_mhz"`

	// Behavior switches
	Force              bool     `json:"force" yaml:"force"`
	DeletePatterns     []string `json:"delete_patterns,omitempty" yaml:"delete_patterns,omitempty"`
	EnableDeltaUpdates bool     `json:"enable_delta_updates" yaml:"enable_delta_updates"`

	// Layout
	StageDir  string `json:"stage_dir" yaml:"stage_dir"`
	BackupDir string `json:"backup_dir" yaml:"backup_dir"`

	// Reset behavior after a finalized swap
	ResetMode types.ResetMode `json:"reset_mode" yaml:"reset_mode"`
}

// Default returns a Config with all defaults applied and no repository set
func Default() Config {
	return Config{
		Channel:        types.ChannelStable,
		Branch:         DefaultBranch,
		UserAgent:      DefaultUserAgent,
		Chunk:          DefaultChunk,
		HTTPRetries:    DefaultHTTPRetries,
		BackoffSec:     DefaultBackoffSec,
		MaxBackoffSec:  DefaultMaxBackoffSec,
		HTTPTimeoutSec: DefaultHTTPTimeout,
		MaxTreeFiles:   DefaultMaxTreeFiles,
		StageDir:       DefaultStageDir,
		BackupDir:      DefaultBackupDir,
		ResetMode:      types.ResetNone,
	}
}

// Load reads a config file and applies defaults. The format is selected by
// extension: .yaml/.yml via yaml.v3, anything else as JSON with comments
// and trailing commas permitted (hujson).
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errdefs.Wrap(errdefs.ErrConfig, err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errdefs.Wrapf(errdefs.ErrConfig, "parse %s: %v", path, err)
		}
	default:
		std, err := hujson.Standardize(data)
		if err != nil {
			return Config{}, errdefs.Wrapf(errdefs.ErrConfig, "parse %s: %v", path, err)
		}
		if err := json.Unmarshal(std, &cfg); err != nil {
			return Config{}, errdefs.Wrapf(errdefs.ErrConfig, "parse %s: %v", path, err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Branch == "" {
		c.Branch = DefaultBranch
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Chunk <= 0 {
		c.Chunk = DefaultChunk
	}
	if c.HTTPRetries <= 0 {
		c.HTTPRetries = DefaultHTTPRetries
	}
	if c.BackoffSec <= 0 {
		c.BackoffSec = DefaultBackoffSec
	}
	if c.MaxBackoffSec <= 0 {
		c.MaxBackoffSec = DefaultMaxBackoffSec
	}
	if c.HTTPTimeoutSec <= 0 {
		c.HTTPTimeoutSec = DefaultHTTPTimeout
	}
	if c.MaxTreeFiles <= 0 {
		c.MaxTreeFiles = DefaultMaxTreeFiles
	}
	if c.StageDir == "" {
		c.StageDir = DefaultStageDir
	}
	if c.BackupDir == "" {
		c.BackupDir = DefaultBackupDir
	}
	if c.Channel == "" {
		c.Channel = types.ChannelStable
	}
	if c.ResetMode == "" {
		c.ResetMode = types.ResetNone
	}
}

// placeholders that ship in example configs and must never reach production
var placeholderValues = []string{
	"YOUR_OWNER", "YOUR_REPO", "YOUR_TOKEN", "CHANGEME", "changeme",
}

// Validate checks required fields and rejects placeholder values
func (c *Config) Validate() error {
	if c.Owner == "" {
		return errdefs.Wrapf(errdefs.ErrConfig, "owner is required")
	}
	if c.Repo == "" {
		return errdefs.Wrapf(errdefs.ErrConfig, "repo is required")
	}
	for _, v := range []string{c.Owner, c.Repo, c.Token} {
		for _, p := range placeholderValues {
			if v == p {
				return errdefs.Wrapf(errdefs.ErrConfig, "placeholder value %q in config", v)
			}
		}
	}
	switch c.Channel {
	case types.ChannelStable, types.ChannelDeveloper:
	default:
		return errdefs.Wrapf(errdefs.ErrConfig, "unknown channel %q", c.Channel)
	}
	switch c.ResetMode {
	case types.ResetHard, types.ResetSoft, types.ResetNone:
	default:
		return errdefs.Wrapf(errdefs.ErrConfig, "unknown reset_mode %q", c.ResetMode)
	}
	if c.Channel == types.ChannelDeveloper && c.Branch == "" {
		return errdefs.Wrapf(errdefs.ErrConfig, "branch is required for developer channel")
	}
	if c.StageDir == c.BackupDir {
		return errdefs.Wrapf(errdefs.ErrConfig, "stage_dir and backup_dir must differ")
	}
	return nil
}

// String returns a redacted summary safe for logging
func (c *Config) String() string {
	token := ""
	if c.Token != "" {
		token = "[redacted]"
	}
	return fmt.Sprintf("repo=%s/%s channel=%s branch=%s token=%s delta=%v",
		c.Owner, c.Repo, c.Channel, c.Branch, token, c.EnableDeltaUpdates)
}
