// pkg/queue/model.go
package queue

import "time"

// Status is the lifecycle state of a queued reservation request.
type Status string

const (
	StatusPending   Status = "pending"   // waiting for the booking window
	StatusScheduled Status = "scheduled" // execution time computed, waiting to fire
	StatusConfirmed Status = "confirmed" // selected for execution
	StatusBooking   Status = "booking"   // submission in flight
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

var validStatuses = map[Status]struct{}{
	StatusPending: {}, StatusScheduled: {}, StatusConfirmed: {}, StatusBooking: {},
	StatusSuccess: {}, StatusFailed: {}, StatusCancelled: {}, StatusExpired: {},
}

// blocksDuplicate reports whether an existing entry with this status still
// claims its slot. Cancelled, expired and failed entries release the slot.
func (s Status) blocksDuplicate() bool {
	switch s {
	case StatusCancelled, StatusExpired, StatusFailed:
		return false
	default:
		return true
	}
}

// IsTerminal reports whether no further transitions are expected.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCancelled, StatusExpired:
		return true
	default:
		return false
	}
}

// Request is one durable reservation intent: book TargetDate/TargetTime on
// the first available court from CourtPreferences once the 48-hour window
// opens.
type Request struct {
	ID                 string `json:"id"`
	UserID             int64  `json:"user_id"`
	FirstName          string `json:"first_name"`
	LastName           string `json:"last_name"`
	Email              string `json:"email"`
	Phone              string `json:"phone"`
	Tier               string `json:"tier,omitempty"`
	TargetDate         string `json:"target_date"` // YYYY-MM-DD
	TargetTime         string `json:"target_time"` // HH:MM
	CourtPreferences   []int  `json:"court_preferences"`
	Status             Status `json:"status"`
	CreatedAt          string `json:"created_at"`
	ScheduledExecution string `json:"scheduled_execution,omitempty"`
	ConfirmationID     string `json:"confirmation_id,omitempty"`
	ResultMessage      string `json:"result_message,omitempty"`
	CourtReserved      int    `json:"court_reserved,omitempty"`
	TimeReserved       string `json:"time_reserved,omitempty"`
	ExpiredAt          string `json:"expired_at,omitempty"`
}

// TargetDateTime combines the target date and time in the given location.
func (r Request) TargetDateTime(loc *time.Location) (time.Time, bool) {
	parsedDate, dateError := time.ParseInLocation("2006-01-02", r.TargetDate, loc)
	if dateError != nil {
		return time.Time{}, false
	}
	parsedClock, clockError := time.Parse("15:04", r.TargetTime)
	if clockError != nil {
		return time.Time{}, false
	}
	combined := time.Date(parsedDate.Year(), parsedDate.Month(), parsedDate.Day(),
		parsedClock.Hour(), parsedClock.Minute(), 0, 0, loc)
	return combined, true
}
