// pkg/availability/checker.go
package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"lvbot/pkg/browser"
	"lvbot/pkg/config"
	"lvbot/pkg/metrics"
)

var (
	// ErrInvalidCourt marks a caller mistake: the court number is not in the
	// static configuration.
	ErrInvalidCourt = errors.New("invalid court number")
	// ErrNoPage marks an operational gap: the pool has no live page for a
	// configured court.
	ErrNoPage = errors.New("no page available for court")
)

const pageSettleDelay = time.Second

// CourtResult is either a date→times map or a single error message, matching
// the aggregate result shape handlers consume.
type CourtResult struct {
	Days map[string][]string
	Err  string
}

func (r CourtResult) MarshalJSON() ([]byte, error) {
	if r.Err != "" {
		return json.Marshal(map[string]string{"error": r.Err})
	}
	return json.Marshal(r.Days)
}

// Matrix maps court number to that court's check outcome.
type Matrix map[int]CourtResult

// Slot is one bookable (court, date, time) triple.
type Slot struct {
	Court int
	Date  string
	Time  string
}

// CheckOptions tunes one CheckAvailability call. Zero values take the
// configured defaults; zero ReferenceDate/CurrentTime mean "now".
type CheckOptions struct {
	Courts          []int
	MaxConcurrency  int
	TimeoutPerCourt time.Duration
	ReferenceDate   time.Time
	CurrentTime     time.Time
}

// SlotFilter restricts NextAvailableSlot to a time-of-day window.
type SlotFilter struct {
	Courts  []int
	MinTime string
	MaxTime string
}

// Checker runs the extraction pipeline across courts with bounded
// concurrency and per-court timeouts. Failures never cross court boundaries.
type Checker struct {
	pool   *browser.Pool
	cfg    *config.Config
	logger *zap.Logger

	// checkCourt is swapped in tests to isolate the orchestration layer.
	checkCourt func(ctx context.Context, court int, reference, now time.Time) (map[string][]string, error)
}

func NewChecker(pool *browser.Pool, cfg *config.Config, logger *zap.Logger) *Checker {
	checker := &Checker{pool: pool, cfg: cfg, logger: logger}
	checker.checkCourt = checker.checkSingleCourt
	return checker
}

// CheckAvailability fans out over the requested courts and aggregates the
// per-court outcomes. A timeout or failure on one court surfaces as an error
// entry for that court only.
func (c *Checker) CheckAvailability(ctx context.Context, opts CheckOptions) Matrix {
	requested := opts.Courts
	if len(requested) == 0 {
		requested = c.cfg.CourtNumbers()
	}
	var valid []int
	var invalid []int
	for _, court := range requested {
		if _, known := c.cfg.Court(court); known {
			valid = append(valid, court)
		} else {
			invalid = append(invalid, court)
		}
	}
	if len(invalid) > 0 {
		c.logger.Warn("invalid_courts_requested", zap.Ints("courts", invalid))
	}

	maxConcurrency := opts.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = c.cfg.MaxConcurrentChecks
	}
	timeout := opts.TimeoutPerCourt
	if timeout <= 0 {
		timeout = c.cfg.PerCourtCheckTimeout
	}
	reference := opts.ReferenceDate
	if reference.IsZero() {
		reference = time.Now().In(c.cfg.Timezone)
	}
	now := opts.CurrentTime
	if now.IsZero() {
		now = time.Now().In(c.cfg.Timezone)
	}

	sem := semaphore.NewWeighted(int64(maxConcurrency))
	type courtOutcome struct {
		court  int
		result CourtResult
	}
	outcomes := make(chan courtOutcome, len(valid))

	for _, court := range valid {
		go func(court int) {
			outcomes <- courtOutcome{court: court, result: c.checkWithLimit(ctx, sem, court, timeout, reference, now)}
		}(court)
	}

	matrix := make(Matrix, len(valid))
	for range valid {
		outcome := <-outcomes
		matrix[outcome.court] = outcome.result
	}
	return matrix
}

func (c *Checker) checkWithLimit(ctx context.Context, sem *semaphore.Weighted, court int, timeout time.Duration, reference, now time.Time) CourtResult {
	if acquireError := sem.Acquire(ctx, 1); acquireError != nil {
		return CourtResult{Err: acquireError.Error()}
	}
	defer sem.Release(1)

	courtCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	days, checkError := c.checkCourt(courtCtx, court, reference, now)
	metrics.AvailabilityCheckDuration.Observe(time.Since(started).Seconds())

	if checkError != nil {
		if errors.Is(courtCtx.Err(), context.DeadlineExceeded) {
			c.logger.Error("court_check_timeout", zap.Int("court", court), zap.Duration("timeout", timeout))
		} else {
			c.logger.Error("court_check_failed", zap.Int("court", court), zap.Error(checkError))
		}
		metrics.AvailabilityChecks.WithLabelValues("error").Inc()
		return CourtResult{Err: checkError.Error()}
	}
	metrics.AvailabilityChecks.WithLabelValues("ok").Inc()
	return CourtResult{Days: days}
}

// CheckSingleCourt runs the extraction pipeline for one court. Invalid court
// numbers and missing pages are caller-visible errors; everything below that
// is logged and degrades to an empty result.
func (c *Checker) CheckSingleCourt(ctx context.Context, court int) (map[string][]string, error) {
	now := time.Now().In(c.cfg.Timezone)
	return c.checkSingleCourt(ctx, court, now, now)
}

func (c *Checker) checkSingleCourt(ctx context.Context, court int, reference, now time.Time) (map[string][]string, error) {
	if _, known := c.cfg.Court(court); !known {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCourt, court)
	}
	page, pageError := c.pool.Page(court)
	if pageError != nil {
		return nil, fmt.Errorf("%w %d: %v", ErrNoPage, court, pageError)
	}

	c.logger.Info("checking_court_availability", zap.Int("court", court))

	// Reload forces fresh server-rendered state; the settle sleep lets the
	// calendar scripts populate the buttons.
	if reloadError := page.Reload(ctx); reloadError != nil {
		return nil, fmt.Errorf("court %d reload: %w", court, reloadError)
	}
	select {
	case <-time.After(pageSettleDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if c.cfg.SaveScreenshots {
		c.captureScreenshot(ctx, page, court)
	}

	textContent, textError := page.BodyText(ctx)
	if textError != nil {
		return nil, fmt.Errorf("court %d text extraction: %w", court, textError)
	}
	if HasNoAvailabilityMessage(textContent) {
		c.logger.Debug("no_availability_message", zap.Int("court", court))
		return map[string][]string{}, nil
	}

	dayLabels := DetectDayLabels(textContent)
	if len(dayLabels) == 0 {
		c.logger.Debug("no_day_labels_detected", zap.Int("court", court))
		return map[string][]string{}, nil
	}

	bodyHTML, htmlError := page.BodyHTML(ctx)
	if htmlError != nil {
		return nil, fmt.Errorf("court %d html extraction: %w", court, htmlError)
	}
	buttons := ExtractTimeButtons(bodyHTML)
	if len(buttons) == 0 {
		c.logger.Warn("no_time_buttons_found", zap.Int("court", court))
		return map[string][]string{}, nil
	}

	grouped := GroupTimesByOrder(buttons, dayLabels)
	dated := DayLabelDates(grouped, reference)

	todayKey := reference.Format(isoDateLayout)
	if todayTimes, present := dated[todayKey]; present {
		c.warnUnparsableTimes(court, todayTimes)
		dated[todayKey] = FilterFutureTimes(todayTimes, now)
	}

	dated = Normalize(dated)
	for date, times := range dated {
		if len(times) == 0 {
			delete(dated, date)
		}
	}

	total := 0
	for date, times := range dated {
		total += len(times)
		c.logger.Debug("court_day_times", zap.Int("court", court), zap.String("date", date), zap.Strings("times", times))
	}
	c.logger.Info("court_availability_found",
		zap.Int("court", court),
		zap.Int("slots", total),
		zap.Int("days", len(dated)))
	return dated, nil
}

// warnUnparsableTimes flags today's entries that FilterFutureTimes will keep
// without comparing against the clock.
func (c *Checker) warnUnparsableTimes(court int, times []string) {
	for _, value := range times {
		if _, _, ok := parseClock(value); !ok {
			c.logger.Warn("unparsable_time_kept", zap.Int("court", court), zap.String("time", value))
		}
	}
}

func (c *Checker) captureScreenshot(ctx context.Context, page *browser.CourtPage, court int) {
	stamp := time.Now().Format("20060102-150405")
	path := filepath.Join(c.cfg.DataDirectory, "screenshots",
		fmt.Sprintf("court-%d-%s.png", court, stamp))
	if screenshotError := page.Screenshot(ctx, path); screenshotError != nil {
		c.logger.Debug("screenshot_failed", zap.Int("court", court), zap.Error(screenshotError))
	}
}

// NextAvailableSlot scans a fresh availability check for the earliest
// (date, time) pair, optionally bounded to a time-of-day window.
func (c *Checker) NextAvailableSlot(ctx context.Context, filter SlotFilter) (Slot, bool) {
	matrix := c.CheckAvailability(ctx, CheckOptions{Courts: filter.Courts})
	return earliestSlot(matrix, filter)
}

func earliestSlot(matrix Matrix, filter SlotFilter) (Slot, bool) {
	var best Slot
	found := false
	for court, result := range matrix {
		if result.Err != "" {
			continue
		}
		for date, times := range result.Days {
			if _, parseError := time.Parse(isoDateLayout, date); parseError != nil {
				continue
			}
			for _, value := range times {
				if filter.MinTime != "" && value < filter.MinTime {
					continue
				}
				if filter.MaxTime != "" && value > filter.MaxTime {
					continue
				}
				candidate := Slot{Court: court, Date: date, Time: value}
				if !found || candidate.Date < best.Date ||
					(candidate.Date == best.Date && candidate.Time < best.Time) {
					best = candidate
					found = true
				}
			}
		}
	}
	return best, found
}
