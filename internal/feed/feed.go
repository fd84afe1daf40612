package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"snap2sched/internal/extract"
	"snap2sched/internal/ics"
	appLog "snap2sched/internal/log"
	"snap2sched/internal/model"
	"snap2sched/internal/source"
)

// ErrNoSnapshot is returned before the first successful refresh.
var ErrNoSnapshot = errors.New("feed has not been built yet")

// Fetcher reads the configured sources.
type Fetcher interface {
	FetchAll(ctx context.Context, sources []source.Source) ([]source.Document, []error)
}

// Recorder receives refresh and parse measurements.
type Recorder interface {
	ObserveParse(d time.Duration)
	ObserveRefresh(ok bool, events, warnings int)
}

// Snapshot is one published state of the feed. It is never mutated after
// it is stored.
type Snapshot struct {
	Events    []model.Event
	Warnings  []string
	ICS       []byte
	UpdatedAt time.Time
	// Errors lists sources that failed during the refresh.
	Errors []string
}

// Builder turns the configured sources into a calendar feed.
type Builder struct {
	engine   *extract.Engine
	fetcher  Fetcher
	sources  []source.Source
	parseCfg model.ParseConfig
	encode   ics.EncodeOptions
	recorder Recorder
	now      func() time.Time

	refreshMu sync.Mutex

	mu   sync.RWMutex
	snap *Snapshot
}

type Option func(*Builder)

func WithRecorder(r Recorder) Option {
	return func(b *Builder) { b.recorder = r }
}

// WithClock replaces time.Now for snapshot stamps.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// NewBuilder creates a Builder. encode.Stamp is ignored; each refresh stamps
// its own time.
func NewBuilder(engine *extract.Engine, fetcher Fetcher, sources []source.Source, parseCfg model.ParseConfig, encode ics.EncodeOptions, opts ...Option) *Builder {
	b := &Builder{
		engine:   engine,
		fetcher:  fetcher,
		sources:  sources,
		parseCfg: parseCfg,
		encode:   encode,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Refresh fetches and parses every source and publishes a new snapshot.
// Sources that fail are reported in Snapshot.Errors; the refresh only fails
// when no source could be read at all, in which case the previous snapshot
// stays in place.
func (b *Builder) Refresh(ctx context.Context) (Snapshot, error) {
	b.refreshMu.Lock()
	defer b.refreshMu.Unlock()

	docs, fetchErrs := b.fetcher.FetchAll(ctx, b.sources)
	if len(docs) == 0 && len(fetchErrs) > 0 {
		err := fmt.Errorf("feed refresh: %w", errors.Join(fetchErrs...))
		b.observeRefresh(false, 0, 0)
		return Snapshot{}, err
	}

	results := make([]model.Result, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	for i, doc := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			results[i] = b.engine.Parse(gctx, doc.Text, b.parseCfg)
			if b.recorder != nil {
				b.recorder.ObserveParse(time.Since(start))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		b.observeRefresh(false, 0, 0)
		return Snapshot{}, err
	}

	snap := Snapshot{
		Events:    []model.Event{},
		Warnings:  []string{},
		UpdatedAt: b.now(),
	}
	for i, res := range results {
		snap.Events = append(snap.Events, res.Events...)
		for _, w := range res.Warnings {
			snap.Warnings = append(snap.Warnings, "["+docs[i].Source.ID+"] "+w)
		}
	}
	for _, err := range fetchErrs {
		snap.Errors = append(snap.Errors, err.Error())
	}

	opts := b.encode
	opts.Stamp = snap.UpdatedAt
	body, err := ics.Encode(snap.Events, opts)
	if err != nil {
		b.observeRefresh(false, 0, 0)
		return Snapshot{}, fmt.Errorf("feed refresh: %w", err)
	}
	snap.ICS = body

	b.mu.Lock()
	b.snap = &snap
	b.mu.Unlock()

	b.observeRefresh(true, len(snap.Events), len(snap.Warnings))
	appLog.Info("feed refreshed",
		"sources", len(b.sources),
		"documents", len(docs),
		"events", len(snap.Events),
		"warnings", len(snap.Warnings),
		"errors", len(snap.Errors),
	)
	return snap, nil
}

func (b *Builder) observeRefresh(ok bool, events, warnings int) {
	if b.recorder != nil {
		b.recorder.ObserveRefresh(ok, events, warnings)
	}
}

// Snapshot returns the latest published state.
func (b *Builder) Snapshot() (Snapshot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.snap == nil {
		return Snapshot{}, ErrNoSnapshot
	}
	return *b.snap, nil
}

// Schedule runs Refresh on a standard five field cron spec. The returned
// cron is already started; the caller stops it.
func (b *Builder) Schedule(ctx context.Context, spec string) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(spec, func() {
		if _, err := b.Refresh(ctx); err != nil {
			appLog.Error("scheduled feed refresh failed", err, "spec", spec)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("feed schedule %q: %w", spec, err)
	}
	c.Start()
	appLog.Info("feed refresh scheduled", "spec", spec)
	return c, nil
}
