// pkg/queue/queue.go
package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lvbot/pkg/config"
)

// ErrDuplicateSlot is returned when a user already holds a live reservation
// for the same date and time. Callers present it as a specific message.
type ErrDuplicateSlot struct {
	TargetDate string
	TargetTime string
	ExistingID string
}

func (e *ErrDuplicateSlot) Error() string {
	return fmt.Sprintf("you already have a reservation for %s at %s", e.TargetDate, e.TargetTime)
}

const scheduledExecutionLead = 30 * time.Second

// Queue is the single writer to the reservation backing file. All operations
// hold the queue mutex; mutations persist before returning.
type Queue struct {
	mu         sync.Mutex
	repository *Repository
	entries    []Request
	testMode   *config.TestModeStore
	location   *time.Location
	window     time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

func New(repository *Repository, testMode *config.TestModeStore, cfg *config.Config, logger *zap.Logger) *Queue {
	q := &Queue{
		repository: repository,
		testMode:   testMode,
		location:   cfg.Timezone,
		window:     time.Duration(cfg.BookingWindowHours) * time.Hour,
		logger:     logger,
		now:        func() time.Time { return time.Now().In(cfg.Timezone) },
	}
	q.entries = repository.Load()
	if repaired := q.normalizeLoadedEntries(); repaired > 0 {
		logger.Warn("queue_entries_repaired", zap.Int("repaired", repaired))
		q.persist()
	}
	logger.Info("queue_initialized",
		zap.Int("reservations", len(q.entries)),
		zap.Any("status_counts", q.statusCounts()))
	return q
}

// Add validates, schedules and persists a new reservation request, returning
// the assigned id. A live entry for the same (user, date, time) is rejected
// with *ErrDuplicateSlot.
func (q *Queue) Add(request Request) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, existing := range q.entries {
		if existing.UserID != request.UserID || !existing.Status.blocksDuplicate() {
			continue
		}
		if existing.TargetDate == request.TargetDate && existing.TargetTime == request.TargetTime {
			q.logger.Warn("duplicate_reservation_rejected",
				zap.Int64("user_id", request.UserID),
				zap.String("target_date", request.TargetDate),
				zap.String("target_time", request.TargetTime),
				zap.String("existing_id", existing.ID))
			return "", &ErrDuplicateSlot{
				TargetDate: request.TargetDate,
				TargetTime: request.TargetTime,
				ExistingID: existing.ID,
			}
		}
	}

	now := q.now()
	request.ID = uuid.New().String()
	request.CreatedAt = now.Format(time.RFC3339)

	scheduledAt, scheduleError := q.computeScheduledExecution(request, now)
	if scheduleError != nil {
		return "", scheduleError
	}
	request.Status = StatusScheduled
	request.ScheduledExecution = scheduledAt.Format(time.RFC3339)

	q.entries = append(q.entries, request)
	q.persist()

	q.logger.Info("reservation_added",
		zap.String("id", request.ID),
		zap.Int64("user_id", request.UserID),
		zap.String("target_date", request.TargetDate),
		zap.String("target_time", request.TargetTime),
		zap.Ints("court_preferences", request.CourtPreferences),
		zap.Time("scheduled_execution", scheduledAt),
		zap.Int("queue_size", len(q.entries)))
	return request.ID, nil
}

func (q *Queue) Get(id string) (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, entry := range q.entries {
		if entry.ID == id {
			return entry, true
		}
	}
	return Request{}, false
}

// Update replaces an entry wholesale, preserving its id.
func (q *Queue) Update(id string, updated Request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for index, entry := range q.entries {
		if entry.ID == id {
			updated.ID = id
			q.entries[index] = updated
			q.persist()
			q.logger.Info("reservation_updated", zap.String("id", id))
			return true
		}
	}
	q.logger.Warn("reservation_update_missing", zap.String("id", id))
	return false
}

// UpdateStatus transitions an entry and applies the optional mutation for
// outcome fields.
func (q *Queue) UpdateStatus(id string, newStatus Status, mutate func(*Request)) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for index := range q.entries {
		if q.entries[index].ID != id {
			continue
		}
		oldStatus := q.entries[index].Status
		q.entries[index].Status = newStatus
		if mutate != nil {
			mutate(&q.entries[index])
		}
		q.persist()
		q.logger.Info("reservation_status_updated",
			zap.String("id", id),
			zap.String("from", string(oldStatus)),
			zap.String("to", string(newStatus)))
		return true
	}
	q.logger.Warn("reservation_status_missing", zap.String("id", id))
	return false
}

// UpdateStatusIf transitions an entry only when its current status still
// matches expected. A concurrent cancellation between a Pending snapshot and
// the dispatch loses the race here instead of being overwritten.
func (q *Queue) UpdateStatusIf(id string, expected, next Status, mutate func(*Request)) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for index := range q.entries {
		if q.entries[index].ID != id {
			continue
		}
		if q.entries[index].Status != expected {
			q.logger.Info("reservation_status_conflict",
				zap.String("id", id),
				zap.String("expected", string(expected)),
				zap.String("actual", string(q.entries[index].Status)))
			return false
		}
		q.entries[index].Status = next
		if mutate != nil {
			mutate(&q.entries[index])
		}
		q.persist()
		q.logger.Info("reservation_status_updated",
			zap.String("id", id),
			zap.String("from", string(expected)),
			zap.String("to", string(next)))
		return true
	}
	q.logger.Warn("reservation_status_missing", zap.String("id", id))
	return false
}

func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for index, entry := range q.entries {
		if entry.ID == id {
			q.entries = append(q.entries[:index], q.entries[index+1:]...)
			q.persist()
			q.logger.Info("reservation_removed", zap.String("id", id), zap.Int64("user_id", entry.UserID))
			return true
		}
	}
	q.logger.Warn("reservation_remove_missing", zap.String("id", id))
	return false
}

func (q *Queue) UserReservations(userID int64) []Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	var matched []Request
	for _, entry := range q.entries {
		if entry.UserID == userID {
			matched = append(matched, entry)
		}
	}
	return matched
}

// Pending returns the entries still waiting to execute.
func (q *Queue) Pending() []Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	var pending []Request
	for _, entry := range q.entries {
		switch entry.Status {
		case StatusPending, StatusScheduled, StatusConfirmed:
			pending = append(pending, entry)
		}
	}
	return pending
}

func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// computeScheduledExecution picks the instant the booking should fire: the
// moment the site's advance-booking window opens for the target slot, less a
// small lead so the submission lands right as the gate lifts. Test mode
// replaces the gate with a short fixed delay.
func (q *Queue) computeScheduledExecution(request Request, now time.Time) (time.Time, error) {
	if q.testMode != nil {
		mode := q.testMode.Get()
		if mode.Enabled {
			delay := time.Duration(mode.TriggerDelayMinutes * float64(time.Minute))
			if delay < 0 {
				delay = 0
			}
			return now.Add(delay), nil
		}
	}

	target, ok := request.TargetDateTime(q.location)
	if !ok {
		return time.Time{}, fmt.Errorf("reservation missing valid target date/time: %q %q",
			request.TargetDate, request.TargetTime)
	}

	scheduledAt := target.Add(-q.window).Add(-scheduledExecutionLead)
	if !scheduledAt.After(now) {
		scheduledAt = now.Add(time.Minute)
	}
	return scheduledAt, nil
}

// normalizeLoadedEntries repairs entries loaded from disk: regenerates
// missing ids, resets unknown statuses, expires past targets, and recomputes
// broken execution schedules. Returns the number of repaired entries.
func (q *Queue) normalizeLoadedEntries() int {
	repaired := 0
	now := q.now()

	for index := range q.entries {
		entry := &q.entries[index]
		modified := false

		if entry.ID == "" {
			entry.ID = uuid.New().String()
			modified = true
		}

		if _, known := validStatuses[entry.Status]; !known {
			entry.Status = StatusPending
			modified = true
		}

		if target, ok := entry.TargetDateTime(q.location); ok && target.Before(now) && !entry.Status.IsTerminal() {
			entry.Status = StatusExpired
			entry.ExpiredAt = now.Format(time.RFC3339)
			modified = true
		}

		if !entry.Status.IsTerminal() && !validRFC3339(entry.ScheduledExecution) {
			scheduledAt, scheduleError := q.computeScheduledExecution(*entry, now)
			if scheduleError == nil {
				entry.ScheduledExecution = scheduledAt.Format(time.RFC3339)
				entry.Status = StatusScheduled
				modified = true
			} else {
				q.logger.Error("reservation_reschedule_failed",
					zap.String("id", entry.ID), zap.Error(scheduleError))
			}
		}

		if modified {
			repaired++
		}
	}
	return repaired
}

func (q *Queue) persist() {
	_ = q.repository.Save(q.entries)
}

func (q *Queue) statusCounts() map[string]int {
	counts := map[string]int{}
	for _, entry := range q.entries {
		counts[string(entry.Status)]++
	}
	return counts
}

func validRFC3339(value string) bool {
	if value == "" {
		return false
	}
	_, parseError := time.Parse(time.RFC3339, value)
	return parseError == nil
}
