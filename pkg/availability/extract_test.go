// pkg/availability/extract_test.go
package availability

import (
	"reflect"
	"testing"
	"time"
)

func buttonsFrom(times ...string) []TimeButton {
	buttons := make([]TimeButton, 0, len(times))
	for index, value := range times {
		buttons = append(buttons, TimeButton{Time: value, Order: index})
	}
	return buttons
}

func TestDetectDayLabelsOrderAndAccents(t *testing.T) {
	text := "Reserva para La Próxima Semana o para Hoy, también mañana"
	labels := DetectDayLabels(text)
	expected := []string{"hoy", "mañana", "la próxima semana"}
	if !reflect.DeepEqual(labels, expected) {
		t.Fatalf("labels = %v, want %v", labels, expected)
	}

	if labels := DetectDayLabels("manana sin acento"); !reflect.DeepEqual(labels, []string{"mañana"}) {
		t.Fatalf("ascii fallback labels = %v", labels)
	}
	if labels := DetectDayLabels(""); labels != nil {
		t.Fatalf("empty text should yield no labels, got %v", labels)
	}
}

func TestHasNoAvailabilityMessage(t *testing.T) {
	if !HasNoAvailabilityMessage("Lo sentimos: NO HAY CITAS DISPONIBLES por ahora") {
		t.Fatal("spanish phrase not detected")
	}
	if !HasNoAvailabilityMessage("Sorry, no appointments available this week") {
		t.Fatal("english phrase not detected")
	}
	if HasNoAvailabilityMessage("Horarios: 06:00, 07:00") {
		t.Fatal("false positive on a normal calendar page")
	}
}

func TestExtractTimeButtons(t *testing.T) {
	bodyHTML := `<body>
		<button class="time-selection">06:00</button>
		<button class="time-selection"> 07:00 </button>
		<button class="time-selection">Reservar</button>
		<button class="time-selection">18:15</button>
	</body>`
	buttons := ExtractTimeButtons(bodyHTML)
	if len(buttons) != 3 {
		t.Fatalf("extracted %d buttons, want 3", len(buttons))
	}
	if buttons[0].Time != "06:00" || buttons[1].Time != "07:00" || buttons[2].Time != "18:15" {
		t.Fatalf("unexpected button times: %+v", buttons)
	}
	if buttons[0].Order >= buttons[2].Order {
		t.Fatal("document order not preserved")
	}
}

func TestExtractTimeButtonsFallbackSelector(t *testing.T) {
	bodyHTML := `<body>
		<button data-time="1">09:00</button>
		<button data-time="2">10:00</button>
	</body>`
	buttons := ExtractTimeButtons(bodyHTML)
	if len(buttons) != 2 {
		t.Fatalf("fallback selector extracted %d buttons, want 2", len(buttons))
	}
}

func TestGroupTimesByOrderWraparound(t *testing.T) {
	buttons := buttonsFrom("18:15", "19:15", "20:15", "06:00", "07:00")
	grouped := GroupTimesByOrder(buttons, []string{"hoy", "mañana"})

	if !reflect.DeepEqual(grouped["hoy"], []string{"18:15", "19:15", "20:15"}) {
		t.Fatalf("today group = %v", grouped["hoy"])
	}
	if !reflect.DeepEqual(grouped["mañana"], []string{"06:00", "07:00"}) {
		t.Fatalf("tomorrow group = %v", grouped["mañana"])
	}
}

func TestGroupTimesByOrderSingleDayAbsorbsEverything(t *testing.T) {
	buttons := buttonsFrom("18:15", "06:00", "07:00")
	grouped := GroupTimesByOrder(buttons, []string{"hoy"})
	if !reflect.DeepEqual(grouped["hoy"], []string{"18:15", "06:00", "07:00"}) {
		t.Fatalf("single-label group = %v", grouped["hoy"])
	}
}

func TestGroupTimesByOrderEqualHourStartsNewDay(t *testing.T) {
	buttons := buttonsFrom("06:00", "06:00")
	grouped := GroupTimesByOrder(buttons, []string{"hoy", "mañana"})
	if len(grouped["hoy"]) != 1 || len(grouped["mañana"]) != 1 {
		t.Fatalf("equal-hour boundary not honoured: %v", grouped)
	}
}

func TestDayLabelDates(t *testing.T) {
	reference := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	grouped := map[string][]string{
		"hoy":               {"18:15"},
		"mañana":            {"06:00"},
		"esta semana":       {"07:00"},
		"la próxima semana": {"08:00"},
	}
	mapped := DayLabelDates(grouped, reference)

	if !reflect.DeepEqual(mapped["2026-03-10"], []string{"18:15"}) {
		t.Fatalf("today mapping = %v", mapped["2026-03-10"])
	}
	if !reflect.DeepEqual(mapped["2026-03-11"], []string{"06:00"}) {
		t.Fatalf("tomorrow mapping = %v", mapped["2026-03-11"])
	}
	merged := mapped["2026-03-12"]
	if len(merged) != 2 {
		t.Fatalf("both week labels should merge onto reference+2, got %v", merged)
	}
}

func TestDayLabelDatesUnknownLabelPassesThrough(t *testing.T) {
	mapped := DayLabelDates(map[string][]string{"2026-04-01": {"09:00"}}, time.Now())
	if !reflect.DeepEqual(mapped["2026-04-01"], []string{"09:00"}) {
		t.Fatalf("unknown label mangled: %v", mapped)
	}
}

func TestFilterFutureTimes(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 5, 0, 0, time.UTC)
	future := FilterFutureTimes([]string{"13:00", "14:05", "14:10", "15:00"}, now)
	if !reflect.DeepEqual(future, []string{"14:10", "15:00"}) {
		t.Fatalf("future times = %v, want [14:10 15:00]", future)
	}
}

func TestFilterFutureTimesFailsOpen(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	future := FilterFutureTimes([]string{"not-a-time", "13:00"}, now)
	if !reflect.DeepEqual(future, []string{"not-a-time"}) {
		t.Fatalf("unparsable entries must be kept, got %v", future)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	input := map[string][]string{
		"2026-03-10": {"07:00", "06:00", "07:00"},
	}
	once := Normalize(input)
	if !reflect.DeepEqual(once["2026-03-10"], []string{"06:00", "07:00"}) {
		t.Fatalf("normalized = %v", once["2026-03-10"])
	}
	twice := Normalize(once)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("normalize not idempotent: %v vs %v", once, twice)
	}
}
