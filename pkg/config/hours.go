// pkg/config/hours.go
package config

import "time"

// Court operating hours differ between weekdays and weekends. Evening slots
// only exist on weekdays; weekends run a continuous morning-to-afternoon grid.
var (
	WeekdayCourtHours = []string{
		"06:00", "07:00", "08:00", "09:00", "10:00", "11:00", "12:00", "13:00",
		"18:15", "19:15", "20:15",
	}
	WeekendCourtHours = []string{
		"06:00", "07:00", "08:00", "09:00", "10:00", "11:00", "12:00", "13:00",
		"14:00", "15:00", "16:00",
	}
)

// CourtHoursFor returns the operating-hour list for the given date.
func CourtHoursFor(date time.Time) []string {
	switch date.Weekday() {
	case time.Saturday, time.Sunday:
		return WeekendCourtHours
	default:
		return WeekdayCourtHours
	}
}
