// pkg/browser/pool.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"lvbot/pkg/config"
	"lvbot/pkg/metrics"
)

// ErrCourtUnavailable is returned by Page when a court has no live page and
// one could not be recreated.
var ErrCourtUnavailable = errors.New("court page unavailable")

const livenessCheckTimeout = 5 * time.Second

// Pool owns one Chrome process and, per configured court, one long-lived tab
// positioned on that court's calendar. Pages are exclusively owned by the
// pool; callers borrow them for the duration of one operation.
type Pool struct {
	cfg    *config.Config
	courts []int
	logger *zap.Logger

	mu              sync.Mutex
	recreateMu      sync.Mutex
	pages           map[int]*CourtPage
	failedCourts    []int
	partiallyReady  bool
	criticalOp      bool
	started         bool
	stopped         bool
	humanizer       *Humanizer
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
}

// Stats is a point-in-time snapshot of pool health.
type Stats struct {
	PagesReady        int             `json:"pages_ready"`
	RequestedCourts   []int           `json:"requested_courts"`
	AvailableCourts   []int           `json:"available_courts"`
	FailedCourts      []int           `json:"failed_courts"`
	PartiallyReady    bool            `json:"partially_ready"`
	CriticalOperation bool            `json:"critical_operation"`
	PerCourt          map[int]float64 `json:"page_age_minutes"`
}

func NewPool(cfg *config.Config, courts []int, logger *zap.Logger) *Pool {
	if len(courts) == 0 {
		courts = cfg.CourtNumbers()
	}
	return &Pool{
		cfg:       cfg,
		courts:    courts,
		logger:    logger,
		pages:     map[int]*CourtPage{},
		humanizer: NewHumanizer(),
	}
}

// Page returns the live page for a court, transparently recreating it when
// the underlying connection is dead. Returns ErrCourtUnavailable when no
// page exists and recreation fails.
func (p *Pool) Page(court int) (*CourtPage, error) {
	p.mu.Lock()
	page, present := p.pages[court]
	started := p.started
	p.mu.Unlock()

	if !started {
		return nil, fmt.Errorf("%w: pool not started", ErrCourtUnavailable)
	}
	if !present {
		if !p.isRequestedCourt(court) {
			p.logger.Warn("court_not_requested", zap.Int("court", court))
		} else {
			p.logger.Warn("court_page_missing", zap.Int("court", court))
		}
		return nil, fmt.Errorf("%w: court %d", ErrCourtUnavailable, court)
	}

	aliveCtx, cancel := context.WithTimeout(context.Background(), livenessCheckTimeout)
	alive := page.Alive(aliveCtx)
	cancel()
	if alive {
		return page, nil
	}

	// Recreation is serialized: concurrent callers hitting the same dead
	// page must not each spawn a replacement tab, and a recreation must not
	// race a shutdown.
	p.recreateMu.Lock()
	defer p.recreateMu.Unlock()

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: pool stopped", ErrCourtUnavailable)
	}
	current, stillPresent := p.pages[court]
	p.mu.Unlock()
	if stillPresent && current != page {
		// Another caller already replaced the dead page.
		return current, nil
	}

	p.logger.Warn("court_page_dead", zap.Int("court", court))
	p.removePage(court, page)
	page.Close(p.logger)

	fresh, recreateError := p.createCourtPage(context.Background(), court)
	if recreateError != nil {
		p.logger.Error("court_page_recreate_failed", zap.Int("court", court), zap.Error(recreateError))
		return nil, fmt.Errorf("%w: court %d", ErrCourtUnavailable, court)
	}
	metrics.PoolPageRecreations.Inc()
	p.logger.Info("court_page_recreated", zap.Int("court", court))
	return fresh, nil
}

// SetCriticalOperation marks a booking submission in flight so Stop and
// refresh cycles keep their hands off the browser.
func (p *Pool) SetCriticalOperation(active bool) {
	p.mu.Lock()
	p.criticalOp = active
	p.mu.Unlock()
	p.logger.Info("critical_operation_flag", zap.Bool("active", active))
}

func (p *Pool) CriticalOperationInProgress() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.criticalOp
}

// IsReady reports whether at least one court page is live.
func (p *Pool) IsReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started && len(p.pages) > 0
}

// IsFullyReady reports whether every requested court initialized.
func (p *Pool) IsFullyReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started && len(p.pages) > 0 && !p.partiallyReady
}

func (p *Pool) IsPartiallyReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.partiallyReady
}

// AvailableCourts lists courts with a live page, in requested order.
func (p *Pool) AvailableCourts() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var available []int
	for _, court := range p.courts {
		if _, present := p.pages[court]; present {
			available = append(available, court)
		}
	}
	return available
}

// WaitUntilReady blocks until at least one page is live or the timeout
// elapses.
func (p *Pool) WaitUntilReady(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if p.IsReady() {
			return true
		}
		time.Sleep(500 * time.Millisecond)
	}
	return p.IsReady()
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	perCourt := make(map[int]float64, len(p.pages))
	var available []int
	for _, court := range p.courts {
		page, present := p.pages[court]
		if !present {
			continue
		}
		available = append(available, court)
		perCourt[court] = time.Since(page.createdAt).Minutes()
	}
	return Stats{
		PagesReady:        len(p.pages),
		RequestedCourts:   append([]int(nil), p.courts...),
		AvailableCourts:   available,
		FailedCourts:      append([]int(nil), p.failedCourts...),
		PartiallyReady:    p.partiallyReady,
		CriticalOperation: p.criticalOp,
		PerCourt:          perCourt,
	}
}

func (p *Pool) isRequestedCourt(court int) bool {
	for _, requested := range p.courts {
		if requested == court {
			return true
		}
	}
	return false
}

// installPage registers a page, refusing when the pool has been stopped so a
// recreation racing Stop cannot leak a tab into a dead pool.
func (p *Pool) installPage(court int, page *CourtPage) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false
	}
	p.pages[court] = page
	metrics.PoolPagesReady.Set(float64(len(p.pages)))
	return true
}

func (p *Pool) removePage(court int, expected *CourtPage) {
	p.mu.Lock()
	if current, present := p.pages[court]; present && (expected == nil || current == expected) {
		delete(p.pages, court)
	}
	metrics.PoolPagesReady.Set(float64(len(p.pages)))
	p.mu.Unlock()
}
