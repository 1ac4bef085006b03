// pkg/monitor/poller.go
package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"lvbot/pkg/availability"
	"lvbot/pkg/metrics"
)

// recoveredMessage is the error text reported when a court comes back
// healthy after failed polls.
const recoveredMessage = "Recovered from error"

// CourtChange is the per-court outcome of comparing two polls.
type CourtChange struct {
	Added     map[string][]string `json:"added,omitempty"`
	Removed   map[string][]string `json:"removed,omitempty"`
	Err       string              `json:"error,omitempty"`
	Recovered bool                `json:"recovered,omitempty"`
}

func (c CourtChange) HasChanges() bool {
	return len(c.Added) > 0 || len(c.Removed) > 0 || c.Err != "" || c.Recovered
}

// Snapshot bundles one poll cycle: the fresh results, the previous baseline
// and the per-court differences.
type Snapshot struct {
	Timestamp time.Time           `json:"timestamp"`
	Results   availability.Matrix `json:"results"`
	Previous  availability.Matrix `json:"previous,omitempty"`
	Changes   map[int]CourtChange `json:"changes,omitempty"`
	FirstPoll bool                `json:"first_poll,omitempty"`
}

func (s Snapshot) HasChanges() bool {
	for _, change := range s.Changes {
		if change.HasChanges() {
			return true
		}
	}
	return false
}

// CheckFunc produces a fresh availability matrix.
type CheckFunc func(ctx context.Context) availability.Matrix

// NotifyFunc receives snapshots that carry changes.
type NotifyFunc func(Snapshot)

// Poller runs availability checks on an interval and notifies when the
// result set moves. The first poll establishes the baseline; only errors are
// surfaced from it, never the full slot dump.
type Poller struct {
	check    CheckFunc
	notify   NotifyFunc
	interval time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	previous availability.Matrix
	polled   bool
}

func NewPoller(check CheckFunc, notify NotifyFunc, interval time.Duration, logger *zap.Logger) *Poller {
	return &Poller{check: check, notify: notify, interval: interval, logger: logger}
}

// Run polls until ctx ends. One cycle executes immediately.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.PollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller_stopped")
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce runs a single check-and-diff cycle and dispatches a notification
// when something changed.
func (p *Poller) PollOnce(ctx context.Context) Snapshot {
	results := p.check(ctx)

	p.mu.Lock()
	firstPoll := !p.polled
	previous := p.previous
	p.previous = results
	p.polled = true
	p.mu.Unlock()

	snapshot := Snapshot{
		Timestamp: time.Now(),
		Results:   results,
		Previous:  previous,
		FirstPoll: firstPoll,
	}
	if firstPoll {
		snapshot.Changes = firstPollErrors(results)
	} else {
		snapshot.Changes = Diff(previous, results)
	}
	p.recordChangeMetrics(snapshot)

	if snapshot.HasChanges() {
		p.logger.Info("availability_changed", zap.Int("courts_changed", len(snapshot.Changes)))
		if p.notify != nil {
			p.notify(snapshot)
		}
	}
	return snapshot
}

// firstPollErrors surfaces check failures from the baseline poll without
// reporting every existing slot as new.
func firstPollErrors(results availability.Matrix) map[int]CourtChange {
	changes := map[int]CourtChange{}
	for court, result := range results {
		if result.Err != "" {
			changes[court] = CourtChange{Err: result.Err}
		}
	}
	return changes
}

// Diff compares two polls court by court. An error on either side overrides
// slot arithmetic for that court: a failing court reports its error on every
// poll until it recovers, and error→healthy reports a recovery with the full
// current slot set as added.
func Diff(previous, current availability.Matrix) map[int]CourtChange {
	changes := map[int]CourtChange{}

	for court, currentResult := range current {
		previousResult, existed := previous[court]

		switch {
		case currentResult.Err != "":
			changes[court] = CourtChange{Err: currentResult.Err}
		case existed && previousResult.Err != "":
			changes[court] = CourtChange{Err: recoveredMessage, Recovered: true, Added: copyDays(currentResult.Days)}
		case !existed:
			if len(currentResult.Days) > 0 {
				changes[court] = CourtChange{Added: copyDays(currentResult.Days)}
			}
		default:
			added, removed := diffDays(previousResult.Days, currentResult.Days)
			if len(added) > 0 || len(removed) > 0 {
				changes[court] = CourtChange{Added: added, Removed: removed}
			}
		}
	}

	// Courts that vanished from the results entirely lose all their slots.
	for court, previousResult := range previous {
		if _, stillPresent := current[court]; stillPresent {
			continue
		}
		if previousResult.Err == "" && len(previousResult.Days) > 0 {
			changes[court] = CourtChange{Removed: copyDays(previousResult.Days)}
		}
	}
	return changes
}

func diffDays(previous, current map[string][]string) (added, removed map[string][]string) {
	added = map[string][]string{}
	removed = map[string][]string{}

	for date, currentTimes := range current {
		previousSet := toSet(previous[date])
		for _, value := range currentTimes {
			if _, present := previousSet[value]; !present {
				added[date] = append(added[date], value)
			}
		}
	}
	for date, previousTimes := range previous {
		currentSet := toSet(current[date])
		for _, value := range previousTimes {
			if _, present := currentSet[value]; !present {
				removed[date] = append(removed[date], value)
			}
		}
	}

	if len(added) == 0 {
		added = nil
	}
	if len(removed) == 0 {
		removed = nil
	}
	return added, removed
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		set[value] = struct{}{}
	}
	return set
}

func copyDays(days map[string][]string) map[string][]string {
	if len(days) == 0 {
		return nil
	}
	copied := make(map[string][]string, len(days))
	for date, times := range days {
		copied[date] = append([]string(nil), times...)
	}
	return copied
}

func (p *Poller) recordChangeMetrics(snapshot Snapshot) {
	for _, change := range snapshot.Changes {
		for _, times := range change.Added {
			metrics.AvailabilityChangesDetected.WithLabelValues("added").Add(float64(len(times)))
		}
		for _, times := range change.Removed {
			metrics.AvailabilityChangesDetected.WithLabelValues("removed").Add(float64(len(times)))
		}
		switch {
		case change.Recovered:
			metrics.AvailabilityChangesDetected.WithLabelValues("recovered").Inc()
		case change.Err != "":
			metrics.AvailabilityChangesDetected.WithLabelValues("error").Inc()
		}
	}
}
