// pkg/browser/maintenance.go
package browser

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"lvbot/pkg/metrics"
)

const (
	criticalPollInterval     = time.Second
	criticalProgressInterval = 30 * time.Second
)

// ignorableCloseFragments are error substrings that only mean the target was
// already gone when we tore it down.
var ignorableCloseFragments = []string{
	"context canceled",
	"connection closed",
	"target closed",
	"websocket: close",
	"browser has been closed",
	"process already finished",
}

func isIgnorableCloseError(closeError error) bool {
	if closeError == nil {
		return true
	}
	message := strings.ToLower(closeError.Error())
	for _, fragment := range ignorableCloseFragments {
		if strings.Contains(message, fragment) {
			return true
		}
	}
	return false
}

// Stop shuts the pool down. When a critical operation is in flight it waits
// for it to finish, polling every second and logging progress, but never
// longer than the configured ceiling.
func (p *Pool) Stop() {
	p.waitForCriticalOperation()

	p.mu.Lock()
	pages := make([]*CourtPage, 0, len(p.pages))
	for _, courtPage := range p.pages {
		pages = append(pages, courtPage)
	}
	p.pages = map[int]*CourtPage{}
	p.started = false
	p.stopped = true
	p.mu.Unlock()
	metrics.PoolPagesReady.Set(0)

	for _, courtPage := range pages {
		courtPage.Close(p.logger)
	}
	if p.browserCancel != nil {
		p.browserCancel()
	}
	if p.allocatorCancel != nil {
		p.allocatorCancel()
	}
	p.logger.Info("pool_stopped", zap.Int("pages_closed", len(pages)))
}

func (p *Pool) waitForCriticalOperation() {
	if !p.CriticalOperationInProgress() {
		return
	}
	ceiling := p.cfg.CriticalWaitCeiling
	p.logger.Warn("shutdown_waiting_for_critical_operation", zap.Duration("ceiling", ceiling))

	deadline := time.Now().Add(ceiling)
	lastProgress := time.Now()
	for time.Now().Before(deadline) {
		if !p.CriticalOperationInProgress() {
			p.logger.Info("critical_operation_finished")
			return
		}
		if time.Since(lastProgress) >= criticalProgressInterval {
			p.logger.Info("still_waiting_for_critical_operation",
				zap.Duration("remaining", time.Until(deadline).Round(time.Second)))
			lastProgress = time.Now()
		}
		time.Sleep(criticalPollInterval)
	}
	p.logger.Error("critical_operation_wait_ceiling_reached", zap.Duration("ceiling", ceiling))
}

// RefreshPages re-navigates every live page to keep sessions warm. Courts
// refresh independently; the returned map reports per-court success. The
// whole cycle is skipped while a critical operation runs.
func (p *Pool) RefreshPages(ctx context.Context) map[int]bool {
	if p.CriticalOperationInProgress() {
		p.logger.Info("refresh_skipped_critical_operation")
		return map[int]bool{}
	}

	p.mu.Lock()
	snapshot := make(map[int]*CourtPage, len(p.pages))
	for court, courtPage := range p.pages {
		snapshot[court] = courtPage
	}
	p.mu.Unlock()

	results := make(map[int]bool, len(snapshot))
	for court, courtPage := range snapshot {
		refreshCtx, cancel := context.WithTimeout(ctx, navigationTimeout)
		refreshError := courtPage.Reload(refreshCtx)
		cancel()
		if refreshError != nil {
			p.logger.Warn("page_refresh_failed", zap.Int("court", court), zap.Error(refreshError))
			metrics.PoolRefreshes.WithLabelValues("error").Inc()
			results[court] = false
			continue
		}
		metrics.PoolRefreshes.WithLabelValues("ok").Inc()
		results[court] = true
	}
	p.logger.Info("pages_refreshed", zap.Int("total", len(results)))
	return results
}

// RunMaintenance refreshes pages on the configured interval until ctx ends.
func (p *Pool) RunMaintenance(ctx context.Context) {
	if p.cfg.BrowserRefreshEvery <= 0 {
		return
	}
	ticker := time.NewTicker(p.cfg.BrowserRefreshEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RefreshPages(ctx)
		}
	}
}
