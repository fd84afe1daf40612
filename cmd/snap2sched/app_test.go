package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snap2sched/internal/web"
)

func runApp(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard
	app.Reader = strings.NewReader(stdin)
	err := app.RunContext(context.Background(), append([]string{"snap2sched"}, args...))
	return out.String(), err
}

func configPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "snap2sched.yaml")
}

func TestParseCommandJSONFromStdin(t *testing.T) {
	out, err := runApp(t, "Labor Day 9/1\r\nFinals week TBA\n",
		"--config", configPath(t), "parse", "--year", "2025", "-")
	require.NoError(t, err)

	var res web.ParseResponse
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Events, 1)
	assert.Equal(t, "Labor Day 9/1", res.Events[0].Title)
	assert.Equal(t, "2025-09-01T00:00:00", res.Events[0].StartISO)
	assert.Equal(t, []string{"Ambiguous timeframe: Finals week TBA"}, res.Warnings)
}

func TestParseCommandICSFromFile(t *testing.T) {
	input := filepath.Join(t.TempDir(), "fall.txt")
	require.NoError(t, os.WriteFile(input, []byte("Band 1-2pm on 4/10"), 0o600))

	out, err := runApp(t, "", "--config", configPath(t),
		"parse", "--year", "2026", "--timezone", "UTC", "--format", "ics", input)
	require.NoError(t, err)
	assert.Contains(t, out, "BEGIN:VCALENDAR")
	assert.Contains(t, out, "DTSTART;TZID=UTC:20260410T130000")
}

func TestParseCommandErrors(t *testing.T) {
	_, err := runApp(t, "Labor Day 9/1", "--config", configPath(t), "parse", "--format", "xml")
	assert.Error(t, err)

	_, err = runApp(t, "", "--config", configPath(t), "parse", filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestFeedCommand(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "fall.txt")
	require.NoError(t, os.WriteFile(input, []byte("Labor Day 9/1\nRetake 13/4"), 0o600))

	cfgPath := filepath.Join(dir, "snap2sched.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
default_year: 2025
timezone: UTC
cache_dir: `+filepath.Join(dir, "cache")+`
sources:
  - id: fall
    kind: file
    location: `+input+`
`), 0o600))

	outPath := filepath.Join(dir, "feed.ics")
	_, err := runApp(t, "", "--config", cfgPath, "feed", "--out", outPath)
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "SUMMARY:Labor Day")
}

func TestFeedCommandWithoutSources(t *testing.T) {
	_, err := runApp(t, "", "--config", configPath(t), "feed")
	assert.Error(t, err)
}
