// Package config handles application configuration
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

//go:embed config.sample.yaml
var sampleConfig string

// GetSampleConfig returns the embedded sample configuration content
func GetSampleConfig() string {
	return sampleConfig
}

// Start screens accepted by ui.start_screen.
const (
	ScreenBoard    = "board"
	ScreenCalendar = "calendar"
	ScreenList     = "list"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Cache   CacheConfig   `yaml:"cache"`
	UI      UIConfig      `yaml:"ui"`
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
	Watcher WatcherConfig `yaml:"watcher"`
}

// ServerConfig holds API connection settings
type ServerConfig struct {
	BaseURL          string  `yaml:"base_url"`
	Timeout          string  `yaml:"timeout"`
	AuthScheme       *string `yaml:"auth_scheme"` // nil means "Bearer", "" sends the raw token
	Account          string  `yaml:"account"`
	MaxRetries       *int    `yaml:"max_retries"`
	RetryBaseDelay   string  `yaml:"retry_base_delay"`
	BreakerThreshold int     `yaml:"breaker_threshold"`
	BreakerCooldown  string  `yaml:"breaker_cooldown"`
}

// CacheConfig holds fetch cache settings
type CacheConfig struct {
	TTL              string `yaml:"ttl"`
	PersistSnapshots *bool  `yaml:"persist_snapshots"`
}

// UIConfig holds user interface settings
type UIConfig struct {
	StartScreen      string `yaml:"start_screen"`
	FinishedStatusID int64  `yaml:"finished_status_id"`
	WeekStart        string `yaml:"week_start"`
}

// StoreConfig holds local database settings
type StoreConfig struct {
	Path                 string `yaml:"path"`
	JournalRetentionDays int    `yaml:"journal_retention_days"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Verbose           bool  `yaml:"verbose"`
	BackgroundEnabled *bool `yaml:"background_enabled"` // default: true
}

// WatcherConfig holds refresh watcher settings
type WatcherConfig struct {
	Enabled    *bool `yaml:"enabled"`
	DebounceMs int   `yaml:"debounce_ms"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL: "http://localhost:8080/api/v1",
			Account: "default",
		},
		UI: UIConfig{
			StartScreen:      ScreenBoard,
			FinishedStatusID: 1,
			WeekStart:        "monday",
		},
		Store: StoreConfig{
			Path: filepath.Join(GetDataDir(), "taskdeck.db"),
		},
	}
}

// Load loads configuration from the specified path, or the default XDG path if empty.
// If the config file doesn't exist, it creates one from the sample.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = filepath.Join(GetConfigDir(), "config.yaml")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML and fills unset fields with defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in config file: %w", err)
	}

	def := DefaultConfig()
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = def.Server.BaseURL
	}
	if cfg.Server.Account == "" {
		cfg.Server.Account = def.Server.Account
	}
	if cfg.UI.StartScreen == "" {
		cfg.UI.StartScreen = def.UI.StartScreen
	}
	if cfg.UI.FinishedStatusID == 0 {
		cfg.UI.FinishedStatusID = def.UI.FinishedStatusID
	}
	if cfg.UI.WeekStart == "" {
		cfg.UI.WeekStart = def.UI.WeekStart
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = def.Store.Path
	}
	cfg.Store.Path = ExpandPath(cfg.Store.Path)

	return cfg, nil
}

// save writes the embedded sample configuration to path
func save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid server.base_url: %q (must be an http(s) URL)", c.Server.BaseURL)
	}

	durations := map[string]string{
		"server.timeout":          c.Server.Timeout,
		"server.retry_base_delay": c.Server.RetryBaseDelay,
		"server.breaker_cooldown": c.Server.BreakerCooldown,
		"cache.ttl":               c.Cache.TTL,
	}
	for name, v := range durations {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err != nil || d < 0 {
			return fmt.Errorf("invalid duration for %s: %q", name, v)
		}
	}

	if c.Server.MaxRetries != nil && *c.Server.MaxRetries < 0 {
		return errors.New("server.max_retries cannot be negative")
	}

	switch c.UI.StartScreen {
	case ScreenBoard, ScreenCalendar, ScreenList:
	default:
		return fmt.Errorf("invalid ui.start_screen: %q (must be board, calendar or list)", c.UI.StartScreen)
	}

	if !strings.EqualFold(c.UI.WeekStart, "monday") {
		return fmt.Errorf("unsupported ui.week_start: %q (only monday is supported)", c.UI.WeekStart)
	}

	return nil
}

// GetTimeout returns the request timeout. Returns 30s if not configured.
func (c *Config) GetTimeout() time.Duration {
	return parseDurationOr(c.Server.Timeout, 30*time.Second)
}

// GetAuthScheme returns the Authorization scheme.
// Returns "Bearer" if not configured; an explicit "" means raw token.
func (c *Config) GetAuthScheme() string {
	if c.Server.AuthScheme == nil {
		return "Bearer"
	}
	return *c.Server.AuthScheme
}

// GetMaxRetries returns the 429 retry count. Returns 3 if not configured.
func (c *Config) GetMaxRetries() int {
	if c.Server.MaxRetries == nil {
		return 3
	}
	return *c.Server.MaxRetries
}

// GetRetryBaseDelay returns the first retry backoff. Returns 1s if not configured.
func (c *Config) GetRetryBaseDelay() time.Duration {
	return parseDurationOr(c.Server.RetryBaseDelay, time.Second)
}

// GetBreakerThreshold returns the failure count that opens the breaker.
func (c *Config) GetBreakerThreshold() int {
	if c.Server.BreakerThreshold <= 0 {
		return 3
	}
	return c.Server.BreakerThreshold
}

// GetBreakerCooldown returns how long the breaker stays open.
func (c *Config) GetBreakerCooldown() time.Duration {
	return parseDurationOr(c.Server.BreakerCooldown, 30*time.Second)
}

// GetCacheTTL returns the cache TTL. Returns 5 minutes if not configured
// or if parsing fails.
func (c *Config) GetCacheTTL() time.Duration {
	return parseDurationOr(c.Cache.TTL, 5*time.Minute)
}

// IsSnapshotPersistenceEnabled returns true (default) unless disabled.
func (c *Config) IsSnapshotPersistenceEnabled() bool {
	if c.Cache.PersistSnapshots == nil {
		return true
	}
	return *c.Cache.PersistSnapshots
}

// GetJournalRetentionDays returns the journal retention. Returns 30 if not configured.
func (c *Config) GetJournalRetentionDays() int {
	if c.Store.JournalRetentionDays <= 0 {
		return 30
	}
	return c.Store.JournalRetentionDays
}

// IsBackgroundLoggingEnabled returns true (default) if not configured.
func (c *Config) IsBackgroundLoggingEnabled() bool {
	if c.Logging.BackgroundEnabled == nil {
		return true
	}
	return *c.Logging.BackgroundEnabled
}

// IsWatcherEnabled returns true (default) if not configured.
func (c *Config) IsWatcherEnabled() bool {
	if c.Watcher.Enabled == nil {
		return true
	}
	return *c.Watcher.Enabled
}

// GetWatcherDebounce returns the watcher debounce. Returns 500ms if not configured.
func (c *Config) GetWatcherDebounce() time.Duration {
	if c.Watcher.DebounceMs <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.Watcher.DebounceMs) * time.Millisecond
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}

// getXDGDir returns a directory path following XDG spec.
// envVar is the XDG environment variable (e.g., "XDG_CONFIG_HOME").
// fallbackPath is the relative path from home (e.g., ".config").
func getXDGDir(envVar, fallbackPath string) string {
	if xdgDir := os.Getenv(envVar); xdgDir != "" {
		return filepath.Join(xdgDir, "taskdeck")
	}
	home, err := homedir.Dir()
	if err != nil {
		return filepath.Join(".", fallbackPath, "taskdeck")
	}
	return filepath.Join(home, fallbackPath, "taskdeck")
}

// GetConfigDir returns the configuration directory following XDG spec
func GetConfigDir() string {
	return getXDGDir("XDG_CONFIG_HOME", ".config")
}

// GetDataDir returns the data directory following XDG spec
func GetDataDir() string {
	return getXDGDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// GetCacheDir returns the cache directory following XDG spec
func GetCacheDir() string {
	return getXDGDir("XDG_CACHE_HOME", ".cache")
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if expanded, err := homedir.Expand(path); err == nil {
		path = expanded
	}
	return os.ExpandEnv(path)
}
