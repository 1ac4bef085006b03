// pkg/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"lvbot/pkg/booking"
	"lvbot/pkg/browser"
	"lvbot/pkg/config"
	"lvbot/pkg/metrics"
	"lvbot/pkg/queue"
)

// NotifyFunc delivers an outcome message to a user.
type NotifyFunc func(userID int64, message string)

// Scheduler scans the queue on an interval and executes reservations whose
// scheduled time has arrived. Each execution is wrapped in the pool's
// critical-operation flag so shutdown and refreshes wait for it.
type Scheduler struct {
	queue    *queue.Queue
	pool     *browser.Pool
	executor *booking.FlowExecutor
	testMode *config.TestModeStore
	cfg      *config.Config
	logger   *zap.Logger
	notify   NotifyFunc
	now      func() time.Time

	// execute is swapped in tests to isolate the dispatch logic.
	execute func(ctx context.Context, request queue.Request) booking.Result
}

func New(reservationQueue *queue.Queue, pool *browser.Pool, executor *booking.FlowExecutor,
	testMode *config.TestModeStore, cfg *config.Config, notify NotifyFunc, logger *zap.Logger) *Scheduler {
	s := &Scheduler{
		queue:    reservationQueue,
		pool:     pool,
		executor: executor,
		testMode: testMode,
		cfg:      cfg,
		logger:   logger,
		notify:   notify,
		now:      func() time.Time { return time.Now().In(cfg.Timezone) },
	}
	s.execute = s.executeBooking
	return s
}

// Run ticks until ctx ends. One scan executes immediately.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler_stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scan-and-dispatch cycle and returns how many reservations
// were executed.
func (s *Scheduler) Tick(ctx context.Context) int {
	now := s.now()
	pending := s.queue.Pending()
	metrics.QueueSize.Set(float64(s.queue.Size()))

	executed := 0
	for _, request := range pending {
		if !isDue(request, now) {
			continue
		}
		if s.heldBackByTestMode(request) {
			s.logger.Debug("reservation_held_back_test_mode", zap.String("id", request.ID))
			continue
		}
		if s.dispatch(ctx, request) {
			executed++
		}
	}
	return executed
}

// isDue reports whether a request's scheduled execution time has passed.
// Entries without a parsable schedule never fire; the queue repairs those on
// load.
func isDue(request queue.Request, now time.Time) bool {
	if request.ScheduledExecution == "" {
		return false
	}
	scheduledAt, parseError := time.Parse(time.RFC3339, request.ScheduledExecution)
	if parseError != nil {
		return false
	}
	return !scheduledAt.After(now)
}

// heldBackByTestMode reports whether test mode forbids touching this
// request: with AllowWithin48h off, targets already inside the booking
// window stay untouched so test runs never place real reservations.
func (s *Scheduler) heldBackByTestMode(request queue.Request) bool {
	if s.testMode == nil {
		return false
	}
	mode := s.testMode.Get()
	if !mode.Enabled || mode.AllowWithin48h {
		return false
	}
	target, ok := request.TargetDateTime(s.cfg.Timezone)
	if !ok {
		return false
	}
	window := time.Duration(s.cfg.BookingWindowHours) * time.Hour
	return target.Sub(s.now()) <= window
}

// dispatch runs one booking under the critical-operation flag and records
// the outcome. The pending→booking transition is a compare-and-set on the
// snapshot status; an entry cancelled since the scan is left untouched.
func (s *Scheduler) dispatch(ctx context.Context, request queue.Request) bool {
	if !s.queue.UpdateStatusIf(request.ID, request.Status, queue.StatusBooking, nil) {
		s.logger.Info("reservation_dispatch_skipped", zap.String("id", request.ID))
		return false
	}

	s.logger.Info("reservation_due",
		zap.String("id", request.ID),
		zap.Int64("user_id", request.UserID),
		zap.String("target_date", request.TargetDate),
		zap.String("target_time", request.TargetTime))

	s.pool.SetCriticalOperation(true)
	result := s.execute(ctx, request)
	s.pool.SetCriticalOperation(false)

	s.recordOutcome(request, result)
	return true
}

// executeBooking walks the request's court preference order until one court
// accepts the reservation.
func (s *Scheduler) executeBooking(ctx context.Context, request queue.Request) booking.Result {
	courts := request.CourtPreferences
	if len(courts) == 0 {
		courts = s.cfg.CourtNumbers()
	}

	var lastResult booking.Result
	for _, court := range courts {
		page, pageError := s.pool.Page(court)
		if pageError != nil {
			s.logger.Warn("booking_court_skipped", zap.Int("court", court), zap.Error(pageError))
			lastResult = booking.Result{Message: fmt.Sprintf("Cancha %d no disponible", court)}
			continue
		}

		open, probeError := s.executor.ProbeSlot(ctx, page, request.TargetDate, request.TargetTime)
		if probeError != nil {
			s.logger.Warn("booking_probe_failed", zap.Int("court", court), zap.Error(probeError))
			lastResult = booking.Result{Message: fmt.Sprintf("Error verificando cancha %d", court)}
			continue
		}
		if !open {
			s.logger.Info("booking_slot_taken", zap.Int("court", court),
				zap.String("time", request.TargetTime))
			lastResult = booking.Result{Message: fmt.Sprintf("Horario %s ocupado en cancha %d", request.TargetTime, court)}
			continue
		}

		result := s.executor.Execute(ctx, page, booking.BookingDetails{
			Court:     court,
			Date:      request.TargetDate,
			Time:      request.TargetTime,
			FirstName: request.FirstName,
			LastName:  request.LastName,
			Email:     request.Email,
			Phone:     request.Phone,
		})
		if result.Success {
			return result
		}
		lastResult = result
	}

	if lastResult.Message == "" {
		lastResult.Message = "No se pudo reservar en ninguna cancha"
	}
	return lastResult
}

func (s *Scheduler) recordOutcome(request queue.Request, result booking.Result) {
	if result.Success {
		s.queue.UpdateStatus(request.ID, queue.StatusSuccess, func(entry *queue.Request) {
			entry.CourtReserved = result.CourtReserved
			entry.TimeReserved = result.TimeReserved
			entry.ConfirmationID = result.ConfirmationID
			entry.ResultMessage = result.Message
		})
		s.sendNotification(request.UserID, result.Message)
		return
	}

	if s.discardFailure() {
		s.queue.Remove(request.ID)
		s.logger.Info("failed_reservation_discarded", zap.String("id", request.ID))
	} else {
		s.queue.UpdateStatus(request.ID, queue.StatusFailed, func(entry *queue.Request) {
			entry.ResultMessage = result.Message
		})
	}
	s.sendNotification(request.UserID,
		fmt.Sprintf("❌ No se pudo completar tu reserva del %s a las %s: %s",
			request.TargetDate, request.TargetTime, result.Message))
}

// discardFailure reports whether failed entries should be dropped instead of
// kept, which test mode uses to keep repeated runs clean.
func (s *Scheduler) discardFailure() bool {
	if s.testMode == nil {
		return false
	}
	mode := s.testMode.Get()
	return mode.Enabled && !mode.RetainFailedReservations
}

func (s *Scheduler) sendNotification(userID int64, message string) {
	if s.notify == nil {
		return
	}
	s.notify(userID, message)
}
