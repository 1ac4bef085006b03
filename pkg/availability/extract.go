// pkg/availability/extract.go
package availability

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	timeButtonSelector         = "button.time-selection"
	timeButtonFallbackSelector = "button[data-time]"
	isoDateLayout              = "2006-01-02"
	clockLayout                = "15:04"
)

var timeTextPattern = regexp.MustCompile(`^\d{1,2}:\d{2}$`)

// dayLabelVocabulary maps each canonical day label to the lowercase phrases
// that signal it. Declaration order matters: the scheduling page renders its
// day sections in exactly this sequence, and the order-based grouping below
// depends on it.
var dayLabelVocabulary = []struct {
	label    string
	patterns []string
}{
	{"hoy", []string{"hoy"}},
	{"mañana", []string{"mañana", "manana"}},
	{"esta semana", []string{"esta semana", "estasemana"}},
	{"la próxima semana", []string{"la próxima semana", "próxima semana"}},
}

// noAvailabilityPhrases are the localized "nothing bookable" messages the
// site shows instead of a calendar.
var noAvailabilityPhrases = []string{
	"no hay citas disponibles",
	"no hay horarios disponibles",
	"sin disponibilidad",
	"no hay disponibilidad",
	"no availability",
	"no available times",
	"no times available",
	"no appointments available",
}

// TimeButton is one time-selection button in DOM order.
type TimeButton struct {
	Time  string
	Order int
}

// HasNoAvailabilityMessage reports whether the page text contains any of the
// localized no-availability phrases.
func HasNoAvailabilityMessage(textContent string) bool {
	lowered := strings.ToLower(textContent)
	for _, phrase := range noAvailabilityPhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}

// DetectDayLabels returns the canonical day labels present in the page text,
// in the fixed rendering order of the site. Several labels may be present at
// once since the site shows a rolling window.
func DetectDayLabels(textContent string) []string {
	if textContent == "" {
		return nil
	}
	lowered := strings.ToLower(textContent)

	var detected []string
	for _, entry := range dayLabelVocabulary {
		for _, pattern := range entry.patterns {
			if strings.Contains(lowered, pattern) {
				detected = append(detected, entry.label)
				break
			}
		}
	}
	return detected
}

// ExtractTimeButtons pulls every time-selection button out of the body HTML,
// preserving DOM order. Buttons whose text does not look like HH:MM are
// skipped.
func ExtractTimeButtons(bodyHTML string) []TimeButton {
	document, parseError := goquery.NewDocumentFromReader(strings.NewReader(bodyHTML))
	if parseError != nil {
		return nil
	}

	selection := document.Find(timeButtonSelector)
	if selection.Length() == 0 {
		selection = document.Find(timeButtonFallbackSelector)
	}

	var buttons []TimeButton
	selection.Each(func(index int, button *goquery.Selection) {
		text := strings.TrimSpace(button.Text())
		if timeTextPattern.MatchString(text) {
			buttons = append(buttons, TimeButton{Time: text, Order: index})
		}
	})
	return buttons
}

// GroupTimesByOrder assigns time buttons to day buckets using DOM order
// alone: each day's times render in ascending-hour order consecutively, so a
// button whose hour is less than or equal to the previous one marks a day
// boundary. This is a heuristic: it breaks if the site ever interleaves
// days. Kept as a standalone function so it can be swapped for an
// attribute-based grouping if the markup changes.
func GroupTimesByOrder(buttons []TimeButton, dayLabels []string) map[string][]string {
	if len(buttons) == 0 || len(dayLabels) == 0 {
		return map[string][]string{}
	}

	grouped := make(map[string][]string, len(dayLabels))
	currentDayIndex := 0
	previousHour := -1

	for _, button := range buttons {
		if button.Time == "" {
			continue
		}
		currentHour := hourOf(button.Time)
		if currentHour <= previousHour && currentDayIndex < len(dayLabels)-1 {
			currentDayIndex++
		}
		label := dayLabels[currentDayIndex]
		grouped[label] = append(grouped[label], button.Time)
		previousHour = currentHour
	}
	return grouped
}

// DayLabelDates maps relative day labels onto concrete ISO dates against the
// reference date. "esta semana" and "la próxima semana" both resolve to
// reference+2: the page exposes no concrete date for those buckets, and +2
// days is the earliest date either can denote once today and tomorrow are
// split out. Unknown labels pass through unchanged.
func DayLabelDates(grouped map[string][]string, reference time.Time) map[string][]string {
	mapped := make(map[string][]string, len(grouped))
	for label, times := range grouped {
		var target time.Time
		switch strings.ToLower(label) {
		case "hoy":
			target = reference
		case "mañana":
			target = reference.AddDate(0, 0, 1)
		case "esta semana", "la próxima semana":
			target = reference.AddDate(0, 0, 2)
		default:
			mapped[label] = append(mapped[label], times...)
			continue
		}
		key := target.Format(isoDateLayout)
		mapped[key] = append(mapped[key], times...)
	}
	return mapped
}

// FilterFutureTimes keeps only times strictly later than now, comparing hour
// and minute. Unparsable entries are kept (fail open) so a markup quirk never
// hides real slots.
func FilterFutureTimes(times []string, now time.Time) []string {
	nowHour, nowMinute := now.Hour(), now.Minute()
	var future []string
	for _, value := range times {
		hour, minute, ok := parseClock(value)
		if !ok {
			future = append(future, value)
			continue
		}
		if hour > nowHour || (hour == nowHour && minute > nowMinute) {
			future = append(future, value)
		}
	}
	return future
}

// Normalize deduplicates and sorts every date's time list. Applying it twice
// yields the same value.
func Normalize(dayTimes map[string][]string) map[string][]string {
	normalized := make(map[string][]string, len(dayTimes))
	for date, times := range dayTimes {
		unique := make(map[string]struct{}, len(times))
		for _, value := range times {
			unique[value] = struct{}{}
		}
		sortedTimes := make([]string, 0, len(unique))
		for value := range unique {
			sortedTimes = append(sortedTimes, value)
		}
		sort.Strings(sortedTimes)
		normalized[date] = sortedTimes
	}
	return normalized
}

func hourOf(clock string) int {
	head, _, found := strings.Cut(clock, ":")
	if !found {
		return 0
	}
	hour, parseError := strconv.Atoi(head)
	if parseError != nil {
		return 0
	}
	return hour
}

func parseClock(clock string) (hour, minute int, ok bool) {
	head, tail, found := strings.Cut(strings.TrimSpace(clock), ":")
	if !found {
		return 0, 0, false
	}
	hour, hourError := strconv.Atoi(head)
	minute, minuteError := strconv.Atoi(tail)
	if hourError != nil || minuteError != nil {
		return 0, 0, false
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}
