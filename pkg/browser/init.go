// pkg/browser/init.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// stealthScript runs before any page script and hides the obvious automation
// fingerprints the scheduling site is known to probe.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
window.chrome = window.chrome || { runtime: {} };
const originalQuery = window.navigator.permissions.query;
window.navigator.permissions.query = (parameters) => (
  parameters.name === 'notifications'
    ? Promise.resolve({ state: Notification.permission })
    : originalQuery(parameters)
);
Object.defineProperty(navigator, 'languages', { get: () => ['es-GT', 'es', 'en'] });
`

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

const (
	navigationTimeout   = 60 * time.Second
	calendarWaitTimeout = 10 * time.Second
	calendarSelector    = "button.time-selection"
)

// Start launches Chrome and opens one tab per requested court. Court startups
// are staggered and retried independently; the pool comes up partially ready
// when some courts fail. Start errors only when no court at all initializes.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return errors.New("pool already started")
	}
	if p.stopped {
		p.mu.Unlock()
		return errors.New("pool already stopped")
	}
	p.mu.Unlock()

	allocatorOptions := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.WindowSize(1366, 900),
		chromedp.UserAgent(defaultUserAgent),
	)
	p.allocatorCtx, p.allocatorCancel = chromedp.NewExecAllocator(ctx, allocatorOptions...)
	p.browserCtx, p.browserCancel = chromedp.NewContext(p.allocatorCtx)

	// A first Run starts the browser process before tabs are opened.
	if startError := chromedp.Run(p.browserCtx); startError != nil {
		p.allocatorCancel()
		return fmt.Errorf("launch browser: %w", startError)
	}
	p.logger.Info("browser_started", zap.Bool("headless", p.cfg.Headless), zap.Ints("courts", p.courts))

	var wg sync.WaitGroup
	var failedMu sync.Mutex
	var failed []int

	for index, court := range p.courts {
		wg.Add(1)
		go func(index, court int) {
			defer wg.Done()
			// Staggered starts keep the launch traffic looking human.
			time.Sleep(time.Duration(index) * p.cfg.StaggerDelay)
			if _, createError := p.createCourtPageWithRetry(ctx, court); createError != nil {
				p.logger.Error("court_page_init_failed", zap.Int("court", court), zap.Error(createError))
				failedMu.Lock()
				failed = append(failed, court)
				failedMu.Unlock()
			}
		}(index, court)
	}
	wg.Wait()

	p.mu.Lock()
	p.started = true
	p.failedCourts = failed
	p.partiallyReady = len(failed) > 0 && len(p.pages) > 0
	ready := len(p.pages)
	p.mu.Unlock()

	if ready == 0 {
		p.logger.Error("pool_start_failed", zap.Ints("failed_courts", failed))
		return fmt.Errorf("no court pages initialized (failed courts %v)", failed)
	}
	p.logger.Info("pool_started",
		zap.Int("pages_ready", ready),
		zap.Int("requested", len(p.courts)),
		zap.Ints("failed_courts", failed))
	return nil
}

// createCourtPageWithRetry retries page creation with exponential backoff
// (4s, 8s, 16s for the default three attempts).
func (p *Pool) createCourtPageWithRetry(ctx context.Context, court int) (*CourtPage, error) {
	attempts := p.cfg.MaxRetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastError error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := retryBackoff(attempt)
			p.logger.Warn("court_page_retry",
				zap.Int("court", court),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		courtPage, createError := p.createCourtPage(ctx, court)
		if createError == nil {
			return courtPage, nil
		}
		lastError = createError
	}
	return nil, lastError
}

// retryBackoff returns the delay before retry attempt n (n >= 1).
func retryBackoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt+1)) * time.Second
}

// createCourtPage opens a tab, arms the stealth script, restores any saved
// cookies, navigates to the court calendar and lets the page warm up. The
// page is installed in the pool only after every step succeeds.
func (p *Pool) createCourtPage(ctx context.Context, court int) (*CourtPage, error) {
	courtConfig, known := p.cfg.Court(court)
	if !known {
		return nil, fmt.Errorf("court %d not configured", court)
	}

	tabCtx, tabCancel := chromedp.NewContext(p.browserCtx)
	courtPage := &CourtPage{
		court:     court,
		url:       courtConfig.DirectURL,
		ctx:       tabCtx,
		cancel:    tabCancel,
		createdAt: time.Now(),
	}

	armStealth := chromedp.ActionFunc(func(actionCtx context.Context) error {
		_, scriptError := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(actionCtx)
		return scriptError
	})
	if setupError := chromedp.Run(tabCtx, armStealth); setupError != nil {
		tabCancel()
		return nil, fmt.Errorf("court %d stealth setup: %w", court, setupError)
	}

	p.restoreCookies(tabCtx, court)

	navCtx, navCancel := context.WithTimeout(ctx, navigationTimeout)
	defer navCancel()
	if p.cfg.NaturalNavigation {
		if navError := p.navigateNaturally(navCtx, courtPage); navError != nil {
			tabCancel()
			return nil, fmt.Errorf("court %d natural navigation: %w", court, navError)
		}
	} else if navError := courtPage.Navigate(navCtx, courtConfig.DirectURL); navError != nil {
		tabCancel()
		return nil, fmt.Errorf("court %d navigation: %w", court, navError)
	}

	// Best effort: the calendar widget may render late or not at all when
	// nothing is bookable, so a miss here is not fatal.
	waitCtx, waitCancel := context.WithTimeout(tabCtx, calendarWaitTimeout)
	if waitError := chromedp.Run(waitCtx, chromedp.WaitVisible(calendarSelector, chromedp.ByQuery)); waitError != nil {
		p.logger.Debug("calendar_widget_not_visible", zap.Int("court", court), zap.Error(waitError))
	}
	waitCancel()

	// Let the calendar scripts finish before the page is handed out.
	select {
	case <-time.After(p.cfg.BrowserWarmupDelay):
	case <-ctx.Done():
		tabCancel()
		return nil, ctx.Err()
	}

	p.saveCookies(tabCtx, court)
	if !p.installPage(court, courtPage) {
		tabCancel()
		return nil, fmt.Errorf("court %d: pool stopped during page creation", court)
	}
	p.logger.Info("court_page_ready", zap.Int("court", court), zap.String("url", courtConfig.DirectURL))
	return courtPage, nil
}

// navigateNaturally lands on the public booking page first, behaves like a
// person for a moment, then moves on to the court calendar.
func (p *Pool) navigateNaturally(ctx context.Context, courtPage *CourtPage) error {
	if landError := courtPage.Navigate(ctx, p.cfg.BookingURL); landError != nil {
		return landError
	}
	p.humanizer.Pause(ctx, 800*time.Millisecond, 2*time.Second)
	p.humanizer.ScrollNaturally(ctx, courtPage)
	p.humanizer.MoveMouseRandomly(ctx, courtPage)
	p.humanizer.Pause(ctx, 500*time.Millisecond, 1500*time.Millisecond)
	return courtPage.Navigate(ctx, courtPage.url)
}
