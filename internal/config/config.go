package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	// Timezone validation must work on hosts without a zoneinfo database.
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"snap2sched/internal/extract"
	"snap2sched/internal/model"
	"snap2sched/internal/source"
)

// ErrEmptyPath is returned by Load and Save when no path is given.
var ErrEmptyPath = errors.New("config path is empty")

// Environment variables read by ApplyEnv.
const (
	EnvListen      = "SNAP2SCHED_LISTEN"
	EnvTimezone    = "SNAP2SCHED_TIMEZONE"
	EnvDefaultYear = "SNAP2SCHED_DEFAULT_YEAR"
	EnvLogLevel    = "SNAP2SCHED_LOG_LEVEL"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// RateLimitConfig bounds parse requests per client address.
type RateLimitConfig struct {
	// RPS is the sustained request rate. Zero disables limiting.
	RPS   float64 `yaml:"rps" json:"rps"`
	Burst int     `yaml:"burst" json:"burst"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// Timezone is the IANA name attached to parsed events (e.g. "America/New_York").
	Timezone string `yaml:"timezone" json:"timezone"`

	// DefaultYear is the year given to dates that name none. Zero means the
	// current year at load time.
	DefaultYear int `yaml:"default_year" json:"default_year"`

	SemesterWindow *model.SemesterWindow `yaml:"semester_window,omitempty" json:"semester_window,omitempty"`

	// WeekdayOrder is "calendar" (Monday first) or "alphabetic".
	WeekdayOrder string `yaml:"weekday_order" json:"weekday_order"`

	// DefaultDuration is the length of events that only name a start time,
	// as a Go duration string.
	DefaultDuration string `yaml:"default_duration" json:"default_duration"`

	// Labels replaces the built-in label table when non-empty.
	Labels []extract.LabelPattern `yaml:"labels,omitempty" json:"labels,omitempty"`

	// FuzzyMarkers are phrases that turn a dateless line into a warning.
	FuzzyMarkers []string `yaml:"fuzzy_markers" json:"fuzzy_markers"`

	// RefreshCron is a cron-style schedule string (e.g. "0 */6 * * *")
	// used for periodic feed refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// CalendarName is written as X-WR-CALNAME on the published feed.
	CalendarName string `yaml:"calendar_name" json:"calendar_name"`

	// CacheDir holds cached URL bodies.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// Sources feed the published calendar.
	Sources []source.Source `yaml:"sources" json:"sources"`

	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:          "127.0.0.1:8080",
		LogLevel:        "info",
		Timezone:        "America/Detroit",
		DefaultYear:     time.Now().Year(),
		WeekdayOrder:    "calendar",
		DefaultDuration: extract.DefaultDuration.String(),
		FuzzyMarkers:    append([]string(nil), extract.DefaultFuzzyMarkers...),
		RefreshCron:     "0 */6 * * *",
		CalendarName:    "School schedule",
		CacheDir:        "./var/source-cache",
		Sources:         []source.Source{},
		RateLimit:       RateLimitConfig{RPS: 5, Burst: 10},
		BasicAuth:       nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.DefaultYear <= 0 {
		c.DefaultYear = def.DefaultYear
	}
	switch c.WeekdayOrder {
	case "calendar", "alphabetic":
	default:
		c.WeekdayOrder = def.WeekdayOrder
	}
	if d, err := time.ParseDuration(c.DefaultDuration); err != nil || d <= 0 {
		c.DefaultDuration = def.DefaultDuration
	}
	// An explicit empty list disables fuzzy warnings; only a missing key
	// gets the defaults.
	if c.FuzzyMarkers == nil {
		c.FuzzyMarkers = def.FuzzyMarkers
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.CalendarName == "" {
		c.CalendarName = def.CalendarName
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.Sources == nil {
		c.Sources = []source.Source{}
	}
	if c.RateLimit.RPS < 0 {
		c.RateLimit.RPS = 0
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = int(c.RateLimit.RPS) + 1
	}
}

// Validate reports settings Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate source id %q", s.ID)
		}
		seen[s.ID] = true
	}
	if _, err := c.EngineOptions(); err != nil {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from SNAP2SCHED_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvListen); v != "" {
		c.Listen = v
	}
	if v := os.Getenv(EnvTimezone); v != "" {
		c.Timezone = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvDefaultYear); v != "" {
		y, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDefaultYear, err)
		}
		c.DefaultYear = y
	}
	return nil
}

// ParseConfig returns the per-call parse configuration.
func (c *Config) ParseConfig() model.ParseConfig {
	return model.ParseConfig{
		DefaultYear:    c.DefaultYear,
		Timezone:       c.Timezone,
		SemesterWindow: c.SemesterWindow,
	}
}

// Duration returns DefaultDuration parsed, falling back to the engine default.
func (c *Config) Duration() time.Duration {
	d, err := time.ParseDuration(c.DefaultDuration)
	if err != nil || d <= 0 {
		return extract.DefaultDuration
	}
	return d
}

// EngineOptions translates the extraction settings into engine options.
func (c *Config) EngineOptions() ([]extract.Option, error) {
	opts := []extract.Option{
		extract.WithWeekdayTable(extract.DefaultWeekdayTable(extract.ParseWeekdayOrder(c.WeekdayOrder))),
		extract.WithDefaultDuration(c.Duration()),
	}
	if c.FuzzyMarkers != nil {
		opts = append(opts, extract.WithFuzzyMarkers(c.FuzzyMarkers...))
	}
	if len(c.Labels) > 0 {
		table, err := extract.CompileLabelTable(c.Labels)
		if err != nil {
			return nil, fmt.Errorf("labels: %w", err)
		}
		opts = append(opts, extract.WithLabelTable(table))
	}
	return opts, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the configuration atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return ErrEmptyPath
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".snap2sched-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
