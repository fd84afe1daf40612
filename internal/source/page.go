package source

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// DefaultPageTimeout bounds a whole page read.
const DefaultPageTimeout = 30 * time.Second

// ChromiumReader renders pages in headless Chromium via chromedp, for
// schedules that are only published as script-built HTML.
type ChromiumReader struct {
	// Timeout bounds the navigation and extraction. If zero,
	// DefaultPageTimeout is used.
	Timeout time.Duration
	// Selector is the element whose text is returned. Defaults to "body".
	Selector string
}

// PageText navigates to url, waits for the selector to be ready and returns
// its rendered text.
func (r ChromiumReader) PageText(parentCtx context.Context, url string) (string, error) {
	if url == "" {
		return "", fmt.Errorf("page: URL is required")
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultPageTimeout
	}
	sel := r.Selector
	if sel == "" {
		sel = "body"
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, timeout)
	defer timeoutCancel()

	var text string
	tasks := chromedp.Tasks{
		chromedp.Navigate(url),
		chromedp.WaitReady(sel, chromedp.ByQuery),
		chromedp.Text(sel, &text, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, tasks); err != nil {
		return "", fmt.Errorf("page: chromedp run failed: %w", err)
	}
	return text, nil
}
