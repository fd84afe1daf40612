package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snap2sched/internal/config"
	"snap2sched/internal/extract"
	"snap2sched/internal/feed"
	"snap2sched/internal/metrics"
	"snap2sched/internal/model"
)

type fakeFeed struct {
	snap feed.Snapshot
	err  error
}

func (f fakeFeed) Snapshot() (feed.Snapshot, error) { return f.snap, f.err }

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.DefaultYear = 2025
	cfg.RateLimit = config.RateLimitConfig{}
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, fs FeedSource) *httptest.Server {
	t.Helper()
	s := NewServer(cfg, extract.NewEngine(), fs, metrics.New(nil))
	s.now = func() time.Time { return time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC) }
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)
	resp := get(t, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestParse(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)

	resp := post(t, srv.URL+"/api/parse", `{"text":"Labor Day: 9/1\nQuiz every Tue and Thu, 10-11am starting 9/2\nFinals week TBA","default_year":2025}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))

	out := decode[ParseResponse](t, resp)
	require.Len(t, out.Events, 2)

	labor := out.Events[0]
	assert.Equal(t, "Labor Day", labor.Title)
	assert.Equal(t, "2025-09-01T00:00:00", labor.StartISO)
	require.NotNil(t, labor.EndISO)
	assert.Equal(t, "2025-09-02T00:00:00", *labor.EndISO)
	assert.True(t, labor.AllDay)
	assert.Nil(t, labor.RecurrenceRule)
	assert.Equal(t, []string{"Other"}, labor.Labels)
	assert.InDelta(t, 0.86, labor.Confidence, 1e-9)

	quiz := out.Events[1]
	assert.Equal(t, "2025-09-02T10:00:00", quiz.StartISO)
	require.NotNil(t, quiz.RecurrenceRule)
	assert.Equal(t, "RRULE:FREQ=WEEKLY;BYDAY=TU,TH", *quiz.RecurrenceRule)
	assert.Equal(t, []string{"Quiz"}, quiz.Labels)

	assert.Equal(t, []string{"Ambiguous timeframe: Finals week TBA"}, out.Warnings)
}

func TestParseUsesConfiguredYear(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultYear = 2031
	srv := newTestServer(t, cfg, nil)

	out := decode[ParseResponse](t, post(t, srv.URL+"/api/parse", `{"text":"Labor Day 9/1"}`))
	require.Len(t, out.Events, 1)
	assert.Equal(t, "2031-09-01T00:00:00", out.Events[0].StartISO)
}

func TestParseNormalizesText(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)

	out := decode[ParseResponse](t, post(t, srv.URL+"/api/parse", `{"text":"Labor Day ９／１\rQuiz 9/2"}`))
	require.Len(t, out.Events, 2)
	assert.Equal(t, "Labor Day 9/1", out.Events[0].Title)
	assert.Equal(t, "2025-09-01T00:00:00", out.Events[0].StartISO)
	assert.Equal(t, "2025-09-02T00:00:00", out.Events[1].StartISO)
}

func TestParseEmptyResultHasArrays(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)
	resp := post(t, srv.URL+"/api/parse", `{"text":"Bring your own lunch"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var raw map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.JSONEq(t, `[]`, string(raw["events"]))
	assert.JSONEq(t, `[]`, string(raw["warnings"]))
}

func TestParseRejectsBadRequests(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "empty text", body: `{"text":"   "}`, want: http.StatusBadRequest},
		{name: "invalid json", body: `{"text":`, want: http.StatusBadRequest},
		{name: "too large", body: `{"text":"` + strings.Repeat("a", maxBodyBytes+16) + `"}`, want: http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, srv.URL+"/api/parse", tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}

	resp := get(t, srv.URL+"/api/parse")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestParseICS(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)
	resp := post(t, srv.URL+"/api/parse.ics", `{"text":"Concert 12/5 7pm","timezone":"America/Chicago"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/calendar; charset=utf-8", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "BEGIN:VCALENDAR")
	assert.Contains(t, string(body), "DTSTART;TZID=America/Chicago:20251205T190000")
	assert.Contains(t, string(body), "DTEND;TZID=America/Chicago:20251205T194500")
}

func TestOccurrences(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)
	body := `{"text":"Labor Day 9/1\nQuiz every Tue and Thu, 10-11am starting 9/2"}`

	out := decode[occurrencesResponse](t, post(t, srv.URL+"/api/occurrences?from=2025-09-01&to=2025-09-07", body))
	assert.Equal(t, "2025-09-01T00:00:00", out.RangeStart)
	assert.Equal(t, "2025-09-07T23:59:59", out.RangeEnd)

	var starts []string
	for _, o := range out.Occurrences {
		starts = append(starts, o.StartISO)
	}
	assert.Equal(t, []string{"2025-09-01T00:00:00", "2025-09-02T10:00:00", "2025-09-04T10:00:00"}, starts)
	assert.Equal(t, "2025-09-04T11:00:00", out.Occurrences[2].EndISO)
	assert.Equal(t, 1, out.Occurrences[2].EventIndex)
}

func TestOccurrencesUsesSemesterWindow(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)
	body := `{"text":"Labor Day 9/1\nQuiz every Tue and Thu, 10-11am starting 9/2","semester_window":{"start":"2025-09-01","end":"2025-09-03"}}`

	out := decode[occurrencesResponse](t, post(t, srv.URL+"/api/occurrences", body))
	assert.Len(t, out.Occurrences, 2)
	assert.Equal(t, "2025-09-03T23:59:59", out.RangeEnd)
}

func TestOccurrencesDefaultsToWholeYear(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)
	out := decode[occurrencesResponse](t, post(t, srv.URL+"/api/occurrences", `{"text":"Labor Day 9/1"}`))
	assert.Equal(t, "2025-01-01T00:00:00", out.RangeStart)
	assert.Equal(t, "2025-12-31T23:59:59", out.RangeEnd)
	assert.Len(t, out.Occurrences, 1)
}

func TestOccurrencesBadWindow(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)
	for _, q := range []string{"?from=09/01/2025", "?from=2025-09-10&to=2025-09-01"} {
		resp := post(t, srv.URL+"/api/occurrences"+q, `{"text":"Labor Day 9/1"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestFeedNotReady(t *testing.T) {
	srv := newTestServer(t, testConfig(), fakeFeed{err: feed.ErrNoSnapshot})
	assert.Equal(t, http.StatusServiceUnavailable, get(t, srv.URL+"/api/feed").StatusCode)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, srv.URL+"/calendar.ics").StatusCode)

	unconfigured := newTestServer(t, testConfig(), nil)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, unconfigured.URL+"/api/feed").StatusCode)
}

func TestFeed(t *testing.T) {
	end := model.Date(2025, time.September, 2)
	snap := feed.Snapshot{
		Events: []model.Event{{
			Title:      "Labor Day",
			Start:      model.Date(2025, time.September, 1),
			End:        &end,
			AllDay:     true,
			Labels:     []model.Label{model.LabelOther},
			Confidence: 0.86,
		}},
		Warnings:  []string{"[fall] Ambiguous date: Retake 13/4"},
		ICS:       []byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"),
		UpdatedAt: time.Date(2025, 8, 1, 6, 0, 0, 0, time.UTC),
	}
	srv := newTestServer(t, testConfig(), fakeFeed{snap: snap})

	resp := get(t, srv.URL+"/api/feed")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[feedResponse](t, resp)
	require.Len(t, out.Events, 1)
	assert.Equal(t, "Labor Day", out.Events[0].Title)
	assert.Equal(t, snap.Warnings, out.Warnings)
	assert.True(t, snap.UpdatedAt.Equal(out.UpdatedAt))

	ics := get(t, srv.URL+"/calendar.ics")
	require.Equal(t, http.StatusOK, ics.StatusCode)
	assert.Equal(t, "text/calendar; charset=utf-8", ics.Header.Get("Content-Type"))
}

func TestBasicAuth(t *testing.T) {
	cfg := testConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	srv := newTestServer(t, cfg, nil)

	assert.Equal(t, http.StatusOK, get(t, srv.URL+"/health").StatusCode)

	resp := post(t, srv.URL+"/api/parse", `{"text":"Labor Day 9/1"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/parse", strings.NewReader(`{"text":"Labor Day 9/1"}`))
	require.NoError(t, err)
	req.SetBasicAuth("admin", "secret")
	authed, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer authed.Body.Close()
	assert.Equal(t, http.StatusOK, authed.StatusCode)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{RPS: 0.001, Burst: 1}
	srv := newTestServer(t, cfg, nil)

	first := post(t, srv.URL+"/api/parse", `{"text":"Labor Day 9/1"}`)
	assert.Equal(t, http.StatusOK, first.StatusCode)

	second := post(t, srv.URL+"/api/parse", `{"text":"Labor Day 9/1"}`)
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
	assert.Equal(t, "1", second.Header.Get("Retry-After"))

	assert.Equal(t, http.StatusOK, get(t, srv.URL+"/health").StatusCode)

	metricsResp := get(t, srv.URL+"/metrics")
	require.Equal(t, http.StatusOK, metricsResp.StatusCode)
	body, err := io.ReadAll(metricsResp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "snap2sched_http_rate_limited_total 1")
}

func TestNewRateLimiterDisabled(t *testing.T) {
	assert.Nil(t, NewRateLimiter(0, 10))
	rl := NewRateLimiter(1, 0)
	require.NotNil(t, rl)
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	now := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 2)
	require.NotNil(t, rl)
	rl.now = func() time.Time { return now }
	rl.lastSweep = now

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
	assert.True(t, rl.Allow("b"))
	assert.False(t, rl.Allow("b"))
	assert.Equal(t, 2, rl.size())

	// Not yet due for a sweep: nothing is dropped.
	now = now.Add(30 * time.Second)
	assert.True(t, rl.Allow("c"))
	assert.Equal(t, 3, rl.size())

	// Everyone has refilled by now; only the caller remains afterwards.
	now = now.Add(time.Hour)
	assert.True(t, rl.Allow("d"))
	assert.Equal(t, 1, rl.size())
}
