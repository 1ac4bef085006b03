// pkg/browser/pool_test.go
package browser

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"lvbot/pkg/config"
)

func newTestPool() *Pool {
	cfg := &config.Config{
		Timezone:            time.UTC,
		CriticalWaitCeiling: 2 * time.Second,
		Courts: []config.Court{
			{Number: 1, DirectURL: "https://example.test/?appointmentType=1"},
			{Number: 2, DirectURL: "https://example.test/?appointmentType=2"},
		},
	}
	return NewPool(cfg, nil, zap.NewNop())
}

func TestIgnorableCloseErrors(t *testing.T) {
	ignorable := []error{
		nil,
		errors.New("context canceled"),
		errors.New("rpc error: connection closed"),
		errors.New("Target closed"),
		errors.New("websocket: close 1006 (abnormal closure)"),
	}
	for _, closeError := range ignorable {
		if !isIgnorableCloseError(closeError) {
			t.Errorf("expected %v to be ignorable", closeError)
		}
	}

	real := []error{
		errors.New("net::ERR_CONNECTION_REFUSED"),
		errors.New("timeout waiting for target"),
	}
	for _, closeError := range real {
		if isIgnorableCloseError(closeError) {
			t.Errorf("expected %v to be reported", closeError)
		}
	}
}

func TestRetryBackoffSchedule(t *testing.T) {
	expected := []time.Duration{4 * time.Second, 8 * time.Second, 16 * time.Second}
	for attempt, want := range expected {
		if got := retryBackoff(attempt + 1); got != want {
			t.Errorf("attempt %d: backoff = %v, want %v", attempt+1, got, want)
		}
	}
}

func TestPageBeforeStart(t *testing.T) {
	pool := newTestPool()
	if _, pageError := pool.Page(1); !errors.Is(pageError, ErrCourtUnavailable) {
		t.Fatalf("expected ErrCourtUnavailable before start, got %v", pageError)
	}
}

func TestPageForMissingCourt(t *testing.T) {
	pool := newTestPool()
	pool.started = true
	if _, pageError := pool.Page(2); !errors.Is(pageError, ErrCourtUnavailable) {
		t.Fatalf("expected ErrCourtUnavailable for missing page, got %v", pageError)
	}
	if _, pageError := pool.Page(9); !errors.Is(pageError, ErrCourtUnavailable) {
		t.Fatalf("expected ErrCourtUnavailable for unknown court, got %v", pageError)
	}
}

func TestPoolBookkeeping(t *testing.T) {
	pool := newTestPool()
	pool.started = true

	first := &CourtPage{court: 1, createdAt: time.Now()}
	second := &CourtPage{court: 2, createdAt: time.Now()}
	pool.installPage(1, first)
	pool.installPage(2, second)

	if !pool.IsReady() || !pool.IsFullyReady() {
		t.Fatal("pool with both pages should be fully ready")
	}
	if courts := pool.AvailableCourts(); len(courts) != 2 || courts[0] != 1 || courts[1] != 2 {
		t.Fatalf("available courts = %v, want [1 2]", courts)
	}

	// Removal with a stale expected pointer must not evict the current page.
	pool.removePage(1, &CourtPage{court: 1})
	if _, present := pool.pages[1]; !present {
		t.Fatal("stale-pointer removal evicted the live page")
	}

	pool.removePage(1, first)
	stats := pool.Stats()
	if stats.PagesReady != 1 {
		t.Fatalf("pages ready = %d, want 1", stats.PagesReady)
	}
	if len(stats.AvailableCourts) != 1 || stats.AvailableCourts[0] != 2 {
		t.Fatalf("available courts after removal = %v, want [2]", stats.AvailableCourts)
	}
}

func TestInstallAfterStopRefused(t *testing.T) {
	pool := newTestPool()
	pool.started = true
	pool.Stop()

	if pool.installPage(1, &CourtPage{court: 1, createdAt: time.Now()}) {
		t.Fatal("installPage accepted a page into a stopped pool")
	}
	if len(pool.pages) != 0 {
		t.Fatalf("stopped pool holds %d pages, want 0", len(pool.pages))
	}
	if _, pageError := pool.Page(1); !errors.Is(pageError, ErrCourtUnavailable) {
		t.Fatalf("expected ErrCourtUnavailable after stop, got %v", pageError)
	}
	if startError := pool.Start(context.Background()); startError == nil {
		t.Fatal("Start succeeded on a stopped pool")
	}
}

func TestHumanizerConcurrentPause(t *testing.T) {
	humanizer := NewHumanizer()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				humanizer.Pause(ctx, time.Millisecond, 5*time.Millisecond)
				humanizer.intn(10)
				humanizer.int63n(10)
			}
		}()
	}
	wg.Wait()
}

func TestCriticalOperationFlag(t *testing.T) {
	pool := newTestPool()
	pool.SetCriticalOperation(true)
	if !pool.CriticalOperationInProgress() {
		t.Fatal("critical flag not set")
	}

	// Stop must respect the ceiling instead of waiting forever.
	started := time.Now()
	go func() {
		time.Sleep(500 * time.Millisecond)
		pool.SetCriticalOperation(false)
	}()
	pool.Stop()
	if elapsed := time.Since(started); elapsed < 500*time.Millisecond || elapsed > pool.cfg.CriticalWaitCeiling+time.Second {
		t.Fatalf("stop waited %v, want between flag clear and ceiling", elapsed)
	}
	if pool.CriticalOperationInProgress() {
		t.Fatal("critical flag should be clear after stop")
	}
}
