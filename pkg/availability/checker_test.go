// pkg/availability/checker_test.go
package availability

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"lvbot/pkg/config"
)

func newTestChecker() *Checker {
	cfg := &config.Config{
		Timezone:             time.UTC,
		MaxConcurrentChecks:  3,
		PerCourtCheckTimeout: time.Second,
		Courts: []config.Court{
			{Number: 1}, {Number: 2}, {Number: 3},
		},
	}
	return NewChecker(nil, cfg, zap.NewNop())
}

func TestCheckAvailabilityIsolatesFailures(t *testing.T) {
	checker := newTestChecker()
	checker.checkCourt = func(ctx context.Context, court int, reference, now time.Time) (map[string][]string, error) {
		if court == 2 {
			return nil, errors.New("page crashed")
		}
		return map[string][]string{"2026-03-10": {"06:00"}}, nil
	}

	matrix := checker.CheckAvailability(context.Background(), CheckOptions{Courts: []int{1, 2, 3}})
	if len(matrix) != 3 {
		t.Fatalf("matrix has %d entries, want 3", len(matrix))
	}
	if matrix[2].Err == "" || !strings.Contains(matrix[2].Err, "page crashed") {
		t.Fatalf("court 2 should carry its error, got %+v", matrix[2])
	}
	for _, court := range []int{1, 3} {
		if matrix[court].Err != "" {
			t.Fatalf("court %d polluted by court 2 failure: %+v", court, matrix[court])
		}
		if len(matrix[court].Days["2026-03-10"]) != 1 {
			t.Fatalf("court %d lost its result: %+v", court, matrix[court])
		}
	}
}

func TestCheckAvailabilitySkipsInvalidCourts(t *testing.T) {
	checker := newTestChecker()
	checker.checkCourt = func(ctx context.Context, court int, reference, now time.Time) (map[string][]string, error) {
		return map[string][]string{}, nil
	}

	matrix := checker.CheckAvailability(context.Background(), CheckOptions{Courts: []int{1, 7}})
	if len(matrix) != 1 {
		t.Fatalf("matrix = %v, want court 1 only", matrix)
	}
	if _, present := matrix[7]; present {
		t.Fatal("invalid court must not appear in the matrix")
	}
}

func TestCheckAvailabilityBoundsConcurrency(t *testing.T) {
	checker := newTestChecker()
	checker.cfg.MaxConcurrentChecks = 1

	var mu sync.Mutex
	active, peak := 0, 0
	checker.checkCourt = func(ctx context.Context, court int, reference, now time.Time) (map[string][]string, error) {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return map[string][]string{}, nil
	}

	checker.CheckAvailability(context.Background(), CheckOptions{Courts: []int{1, 2, 3}})
	if peak != 1 {
		t.Fatalf("peak concurrency = %d, want 1", peak)
	}
}

func TestCheckAvailabilityPerCourtTimeout(t *testing.T) {
	checker := newTestChecker()
	checker.checkCourt = func(ctx context.Context, court int, reference, now time.Time) (map[string][]string, error) {
		if court == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return map[string][]string{"2026-03-10": {"06:00"}}, nil
	}

	matrix := checker.CheckAvailability(context.Background(), CheckOptions{
		Courts:          []int{1, 2},
		TimeoutPerCourt: 50 * time.Millisecond,
	})
	if matrix[1].Err == "" {
		t.Fatalf("slow court should time out, got %+v", matrix[1])
	}
	if matrix[2].Err != "" {
		t.Fatalf("fast court affected by slow court: %+v", matrix[2])
	}
}

func TestUnparsableTimesAreLogged(t *testing.T) {
	core, recorded := observer.New(zap.WarnLevel)
	checker := newTestChecker()
	checker.logger = zap.New(core)

	checker.warnUnparsableTimes(2, []string{"06:00", "mediodía", "19:15", "noon-ish"})

	entries := recorded.FilterMessage("unparsable_time_kept").All()
	if len(entries) != 2 {
		t.Fatalf("logged %d warnings, want 2: %v", len(entries), entries)
	}
	kept := map[string]bool{}
	for _, entry := range entries {
		kept[entry.ContextMap()["time"].(string)] = true
	}
	if !kept["mediodía"] || !kept["noon-ish"] {
		t.Fatalf("wrong values flagged: %v", kept)
	}
}

func TestEarliestSlot(t *testing.T) {
	matrix := Matrix{
		1: {Days: map[string][]string{"2026-03-11": {"06:00"}}},
		2: {Days: map[string][]string{"2026-03-10": {"19:15", "07:00"}}},
		3: {Err: "dead"},
	}

	slot, found := earliestSlot(matrix, SlotFilter{})
	if !found {
		t.Fatal("expected a slot")
	}
	if slot.Court != 2 || slot.Date != "2026-03-10" || slot.Time != "07:00" {
		t.Fatalf("earliest slot = %+v", slot)
	}

	slot, found = earliestSlot(matrix, SlotFilter{MinTime: "18:00"})
	if !found || slot.Time != "19:15" {
		t.Fatalf("filtered slot = %+v found=%v", slot, found)
	}

	if _, found := earliestSlot(Matrix{3: {Err: "dead"}}, SlotFilter{}); found {
		t.Fatal("error-only matrix must yield no slot")
	}
}

func TestCourtResultJSONShape(t *testing.T) {
	okResult := CourtResult{Days: map[string][]string{"2026-03-10": {"06:00"}}}
	okJSON, _ := okResult.MarshalJSON()
	if !strings.Contains(string(okJSON), "2026-03-10") {
		t.Fatalf("ok result json = %s", okJSON)
	}

	errResult := CourtResult{Err: "boom"}
	errJSON, _ := errResult.MarshalJSON()
	if string(errJSON) != `{"error":"boom"}` {
		t.Fatalf("error result json = %s", errJSON)
	}
}
