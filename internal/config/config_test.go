package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snap2sched/internal/extract"
	"snap2sched/internal/model"
	"snap2sched/internal/source"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, time.Now().Year(), cfg.DefaultYear)
	assert.Equal(t, "45m0s", cfg.DefaultDuration)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadEmptyPath(t *testing.T) {
	_, err := Load("")
	assert.ErrorIs(t, err, ErrEmptyPath)
	assert.ErrorIs(t, Save("", DefaultConfig()), ErrEmptyPath)
}

func TestLoadPartialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
timezone: America/Chicago
default_year: 2025
weekday_order: alphabetic
default_duration: 1h
semester_window:
  start: "2025-08-20"
  end: "2025-12-19"
labels:
  - pattern: "field trip"
    label: "Trip"
sources:
  - id: fall
    kind: file
    location: ./fall.txt
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "America/Chicago", cfg.Timezone)
	assert.Equal(t, 2025, cfg.DefaultYear)
	assert.Equal(t, "alphabetic", cfg.WeekdayOrder)
	assert.Equal(t, time.Hour, cfg.Duration())
	assert.Equal(t, "0 */6 * * *", cfg.RefreshCron)
	assert.Equal(t, extract.DefaultFuzzyMarkers, cfg.FuzzyMarkers)
	require.Len(t, cfg.Sources, 1)
	assert.Equal(t, source.KindFile, cfg.Sources[0].Kind)
	require.NoError(t, cfg.Validate())

	pc := cfg.ParseConfig()
	assert.Equal(t, 2025, pc.DefaultYear)
	assert.Equal(t, "America/Chicago", pc.Timezone)
	assert.Equal(t, &model.SemesterWindow{Start: "2025-08-20", End: "2025-12-19"}, pc.SemesterWindow)
}

func TestExplicitEmptyFuzzyMarkersDisableWarnings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fuzzy_markers: []\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.FuzzyMarkers)

	opts, err := cfg.EngineOptions()
	require.NoError(t, err)
	res := extract.NewEngine(opts...).Parse(t.Context(), "Finals week TBA", cfg.ParseConfig())
	assert.Empty(t, res.Warnings)
}

func TestEngineOptionsApplyLabelsAndDuration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultYear = 2025
	cfg.DefaultDuration = "30m"
	cfg.Labels = []extract.LabelPattern{{Pattern: "field trip", Label: "Trip"}}

	opts, err := cfg.EngineOptions()
	require.NoError(t, err)
	res := extract.NewEngine(opts...).Parse(t.Context(), "Field trip 10/3 9am", cfg.ParseConfig())
	require.Len(t, res.Events, 1)
	ev := res.Events[0]
	assert.Equal(t, []model.Label{"Trip"}, ev.Labels)
	assert.Equal(t, "2025-10-03T09:30:00", model.FormatNaive(*ev.End))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "bad timezone", mutate: func(c *Config) { c.Timezone = "Mars/Olympus" }},
		{name: "bad source", mutate: func(c *Config) { c.Sources = []source.Source{{ID: "x", Kind: "ftp", Location: "y"}} }},
		{name: "duplicate source", mutate: func(c *Config) {
			s := source.Source{ID: "x", Kind: source.KindFile, Location: "y"}
			c.Sources = []source.Source{s, s}
		}},
		{name: "bad label pattern", mutate: func(c *Config) { c.Labels = []extract.LabelPattern{{Pattern: "(", Label: "X"}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, DefaultConfig().Validate())
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvListen, ":9090")
	t.Setenv(EnvTimezone, "Europe/Berlin")
	t.Setenv(EnvDefaultYear, "2026")
	t.Setenv(EnvLogLevel, "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "Europe/Berlin", cfg.Timezone)
	assert.Equal(t, 2026, cfg.DefaultYear)
	assert.Equal(t, "debug", cfg.LogLevel)

	t.Setenv(EnvDefaultYear, "next")
	assert.Error(t, cfg.ApplyEnv())
}

func TestNormalize(t *testing.T) {
	cfg := &Config{
		WeekdayOrder:    "random",
		DefaultDuration: "soon",
		RateLimit:       RateLimitConfig{RPS: 2},
	}
	cfg.Normalize()
	assert.Equal(t, "calendar", cfg.WeekdayOrder)
	assert.Equal(t, "45m0s", cfg.DefaultDuration)
	assert.Equal(t, 3, cfg.RateLimit.Burst)
	assert.NotNil(t, cfg.Sources)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.BasicAuth = &BasicAuthConfig{Username: "admin", Password: "pw"}
	cfg.Sources = []source.Source{{ID: "web", Kind: source.KindURL, Location: "https://school.example/cal.txt"}}
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}
