package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	appLog "snap2sched/internal/log"
)

// Kind selects how a source's Location is read.
type Kind string

const (
	KindFile Kind = "file"
	KindURL  Kind = "url"
	KindPage Kind = "page"
)

// ErrNotModifiedNoCache is returned when a server answers 304 but no body
// was cached for the URL.
var ErrNotModifiedNoCache = errors.New("received 304 Not Modified but no cached body available")

// Source is one place schedule text is read from.
type Source struct {
	// ID is a short identifier used in logs and warning prefixes.
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	Kind Kind   `yaml:"kind" json:"kind"`
	// Location is a file path for KindFile and a URL otherwise.
	Location string `yaml:"location" json:"location"`
}

// Validate checks the fields FetchOne depends on.
func (s Source) Validate() error {
	if s.ID == "" {
		return errors.New("source id is empty")
	}
	if s.Location == "" {
		return fmt.Errorf("source %q: location is empty", s.ID)
	}
	switch s.Kind {
	case KindFile, KindURL, KindPage:
		return nil
	default:
		return fmt.Errorf("source %q: unknown kind %q", s.ID, s.Kind)
	}
}

// Document is the normalized text of one source.
type Document struct {
	Source    Source
	Text      string
	FromCache bool // true if the body came from the disk cache
}

// PageReader returns the visible text of a rendered web page.
type PageReader interface {
	PageText(ctx context.Context, url string) (string, error)
}

// Fetcher reads sources of every kind. URL bodies are cached on disk and
// revalidated with ETag / Last-Modified.
type Fetcher struct {
	client   *http.Client
	cacheDir string
	pages    PageReader
}

type Option func(*Fetcher)

func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

func WithPageReader(p PageReader) Option {
	return func(f *Fetcher) { f.pages = p }
}

// NewFetcher creates a Fetcher caching URL bodies under cacheDir.
func NewFetcher(cacheDir string, opts ...Option) *Fetcher {
	if cacheDir == "" {
		// Relative default so development runs without root permissions.
		cacheDir = "./var/source-cache"
	}
	f := &Fetcher{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		cacheDir: cacheDir,
		pages:    ChromiumReader{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchAll fetches all given sources. Failures are logged and returned in
// the error slice; the document slice only holds sources that produced text.
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source) ([]Document, []error) {
	docs := make([]Document, 0, len(sources))
	errs := make([]error, 0)

	for _, src := range sources {
		doc, err := f.FetchOne(ctx, src)
		if err != nil {
			err = fmt.Errorf("source %s: %w", src.ID, err)
			errs = append(errs, err)
			appLog.Error("source fetch failed", err, "id", src.ID, "kind", src.Kind)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, errs
}

// FetchOne reads a single source and normalizes its text.
func (f *Fetcher) FetchOne(ctx context.Context, src Source) (Document, error) {
	if err := src.Validate(); err != nil {
		return Document{}, err
	}

	doc := Document{Source: src}
	switch src.Kind {
	case KindFile:
		data, err := os.ReadFile(src.Location)
		if err != nil {
			return Document{}, err
		}
		doc.Text = string(data)
	case KindURL:
		body, fromCache, err := f.fetchURL(ctx, src)
		if err != nil {
			return Document{}, err
		}
		doc.Text, doc.FromCache = string(body), fromCache
	case KindPage:
		text, err := f.pages.PageText(ctx, src.Location)
		if err != nil {
			return Document{}, err
		}
		doc.Text = text
	}

	doc.Text = NormalizeText(doc.Text)
	appLog.Debug("source fetched", "id", src.ID, "kind", src.Kind, "bytes", len(doc.Text), "from_cache", doc.FromCache)
	return doc, nil
}

var newlineReplacer = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// NormalizeText applies NFKC, folding ligatures and full-width digits that
// OCR output tends to carry, and unifies line endings.
func NormalizeText(s string) string {
	return newlineReplacer.Replace(norm.NFKC.String(s))
}
