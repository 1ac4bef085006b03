// pkg/availability/format.go
package availability

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// FormatMessage renders a check result as the Spanish availability summary
// shown to users: courts ascending, dates ascending per court, times
// ascending per date.
func FormatMessage(matrix Matrix, reference time.Time) string {
	if len(matrix) == 0 {
		return "No hay disponibilidad en ninguna cancha"
	}

	courts := make([]int, 0, len(matrix))
	for court := range matrix {
		courts = append(courts, court)
	}
	sort.Ints(courts)

	var lines []string
	lines = append(lines, "🎾 *Disponibilidad de Canchas*", "")

	for _, court := range courts {
		result := matrix[court]
		if result.Err != "" {
			lines = append(lines, fmt.Sprintf("*Cancha %d:* ❌ Error al verificar", court))
			continue
		}
		if len(result.Days) == 0 {
			lines = append(lines, fmt.Sprintf("*Cancha %d:* Sin disponibilidad", court))
			continue
		}

		lines = append(lines, fmt.Sprintf("*Cancha %d:*", court))
		dates := make([]string, 0, len(result.Days))
		for date := range result.Days {
			dates = append(dates, date)
		}
		sort.Strings(dates)

		for _, date := range dates {
			times := append([]string(nil), result.Days[date]...)
			sort.Strings(times)
			lines = append(lines, fmt.Sprintf("  • %s: %s", dayLabelFor(date, reference), strings.Join(times, ", ")))
		}
	}
	return strings.Join(lines, "\n")
}

func dayLabelFor(date string, reference time.Time) string {
	parsed, parseError := time.Parse(isoDateLayout, date)
	if parseError != nil {
		return date
	}
	refDay := time.Date(reference.Year(), reference.Month(), reference.Day(), 0, 0, 0, 0, time.UTC)
	switch parsed.Sub(refDay) / (24 * time.Hour) {
	case 0:
		return "Hoy"
	case 1:
		return "Mañana"
	default:
		return parsed.Format("02/01")
	}
}
