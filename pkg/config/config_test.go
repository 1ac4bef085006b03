// pkg/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestCourtHoursFor(t *testing.T) {
	monday := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	saturday := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	sunday := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	if !reflect.DeepEqual(CourtHoursFor(monday), WeekdayCourtHours) {
		t.Fatal("monday should use weekday hours")
	}
	if !reflect.DeepEqual(CourtHoursFor(saturday), WeekendCourtHours) {
		t.Fatal("saturday should use weekend hours")
	}
	if !reflect.DeepEqual(CourtHoursFor(sunday), WeekendCourtHours) {
		t.Fatal("sunday should use weekend hours")
	}

	for _, hour := range []string{"18:15", "19:15", "20:15"} {
		if contains(WeekendCourtHours, hour) {
			t.Fatalf("evening slot %s must not exist on weekends", hour)
		}
		if !contains(WeekdayCourtHours, hour) {
			t.Fatalf("evening slot %s missing from weekdays", hour)
		}
	}
}

func contains(values []string, wanted string) bool {
	for _, value := range values {
		if value == wanted {
			return true
		}
	}
	return false
}

func TestTestModeRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test_mode.json")
	store := NewTestModeStore(path, zap.NewNop())

	if store.Get().Enabled {
		t.Fatal("fresh store should start disabled")
	}

	wanted := TestMode{
		Enabled:                  true,
		AllowWithin48h:           true,
		TriggerDelayMinutes:      2.5,
		RetainFailedReservations: true,
	}
	store.Set(wanted)

	reloaded := NewTestModeStore(path, zap.NewNop())
	if got := reloaded.Get(); got != wanted {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, wanted)
	}
}

func TestTestModeCorruptFileResets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test_mode.json")
	if writeError := os.WriteFile(path, []byte("][!"), 0o644); writeError != nil {
		t.Fatalf("setup: %v", writeError)
	}
	store := NewTestModeStore(path, zap.NewNop())
	if store.Get() != (TestMode{}) {
		t.Fatalf("corrupt file should load as zero mode, got %+v", store.Get())
	}
}

func TestLoadCourtsDefaults(t *testing.T) {
	courts, loadError := LoadCourts(filepath.Join(t.TempDir(), "missing.yml"))
	if loadError != nil {
		t.Fatalf("missing file must fall back to defaults, got %v", loadError)
	}
	if len(courts) != 3 {
		t.Fatalf("default courts = %d, want 3", len(courts))
	}
	for _, court := range courts {
		if court.DirectURL == "" || court.AppointmentID == "" {
			t.Fatalf("default court incomplete: %+v", court)
		}
	}
}

func TestLoadCourtsRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "courts.yml")
	if writeError := os.WriteFile(path, []byte("courts:\n  - number: 0\n"), 0o644); writeError != nil {
		t.Fatalf("setup: %v", writeError)
	}
	if _, loadError := LoadCourts(path); loadError == nil {
		t.Fatal("court without ids should fail validation")
	}
}
