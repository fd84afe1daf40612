package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snap2sched/internal/extract"
	"snap2sched/internal/model"
)

func TestObserveLine(t *testing.T) {
	m := New(nil)
	m.ObserveLine(extract.OutcomeDate)
	m.ObserveLine(extract.OutcomeDate)
	m.ObserveLine(extract.OutcomeDropped)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.lines.WithLabelValues("date")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lines.WithLabelValues("dropped")))
}

func TestObserveRefresh(t *testing.T) {
	m := New(nil)
	m.ObserveRefresh(true, 5, 2)
	m.ObserveRefresh(false, 0, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshes.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshes.WithLabelValues("error")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.feedEvents))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.feedWarnings))
}

func TestEngineFeedsObserver(t *testing.T) {
	m := New(nil)
	e := extract.NewEngine(extract.WithObserver(m))
	e.Parse(t.Context(), "Labor Day 9/1\nBring lunch", model.ParseConfig{DefaultYear: 2025})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.lines.WithLabelValues("date")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lines.WithLabelValues("dropped")))
}

func TestHandler(t *testing.T) {
	m := New(nil)
	m.ObserveParse(3 * time.Millisecond)
	m.ObserveRateLimited()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "snap2sched_parse_duration_seconds_count 1")
	assert.Contains(t, body, "snap2sched_parses_total 1")
	assert.Contains(t, body, "snap2sched_http_rate_limited_total 1")
	assert.Contains(t, body, "go_goroutines")
}

func TestNewOnSharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveLine(extract.OutcomeAmbiguousDate)

	n, err := testutil.GatherAndCount(reg, "snap2sched_lines_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
