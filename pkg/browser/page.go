// pkg/browser/page.go
package browser

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// CourtPage is one long-lived browser tab pinned to a court's scheduling
// calendar. All methods run against the tab's own chromedp context so a
// caller timeout cancels the CDP call, not the tab.
type CourtPage struct {
	court     int
	url       string
	ctx       context.Context
	cancel    context.CancelFunc
	createdAt time.Time
}

func (p *CourtPage) Court() int  { return p.court }
func (p *CourtPage) URL() string { return p.url }

// Alive probes the tab with a trivial evaluation. Any failure, including a
// caller timeout, counts as dead.
func (p *CourtPage) Alive(ctx context.Context) bool {
	var href string
	probeError := p.run(ctx, chromedp.Location(&href))
	return probeError == nil && href != ""
}

// Reload re-navigates to the court URL rather than issuing a browser reload:
// the scheduling site rebuilds its calendar state only on a full navigation.
func (p *CourtPage) Reload(ctx context.Context) error {
	return p.run(ctx, chromedp.Navigate(p.url), chromedp.WaitReady("body", chromedp.ByQuery))
}

func (p *CourtPage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery))
}

// BodyText returns the rendered text content of the page body.
func (p *CourtPage) BodyText(ctx context.Context) (string, error) {
	var textContent string
	extractError := p.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &textContent))
	return textContent, extractError
}

// BodyHTML returns the serialized body markup for offline parsing.
func (p *CourtPage) BodyHTML(ctx context.Context) (string, error) {
	var bodyHTML string
	extractError := p.run(ctx, chromedp.OuterHTML("body", &bodyHTML, chromedp.ByQuery))
	return bodyHTML, extractError
}

// Screenshot captures the viewport into path, creating parent directories.
func (p *CourtPage) Screenshot(ctx context.Context, path string) error {
	var imageBytes []byte
	if captureError := p.run(ctx, chromedp.CaptureScreenshot(&imageBytes)); captureError != nil {
		return captureError
	}
	if mkdirError := os.MkdirAll(filepath.Dir(path), 0o755); mkdirError != nil {
		return mkdirError
	}
	return os.WriteFile(path, imageBytes, 0o644)
}

// Run executes arbitrary chromedp actions on the tab. Booking flows use this
// to click and fill without the pool exposing the raw context.
func (p *CourtPage) Run(ctx context.Context, actions ...chromedp.Action) error {
	return p.run(ctx, actions...)
}

// Close tears the tab down, swallowing the shutdown noise chromedp emits for
// already-dead targets.
func (p *CourtPage) Close(logger *zap.Logger) {
	if closeError := chromedp.Cancel(p.ctx); closeError != nil && !isIgnorableCloseError(closeError) {
		logger.Warn("court_page_close_failed", zap.Int("court", p.court), zap.Error(closeError))
	}
	p.cancel()
}

// run ties the caller's deadline to the tab context for one batch of actions.
func (p *CourtPage) run(ctx context.Context, actions ...chromedp.Action) error {
	var runCtx context.Context
	var cancel context.CancelFunc
	if deadline, hasDeadline := ctx.Deadline(); hasDeadline {
		runCtx, cancel = context.WithDeadline(p.ctx, deadline)
	} else {
		runCtx, cancel = context.WithCancel(p.ctx)
	}
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(runCtx, actions...) }()
	select {
	case runError := <-done:
		return runError
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}
