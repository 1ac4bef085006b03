package queue

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"

	"lvbot/pkg/config"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	cfg := &config.Config{
		Timezone:           time.UTC,
		BookingWindowHours: 48,
	}
	repository := NewRepository(filepath.Join(t.TempDir(), "queue.json"), zap.NewNop())
	return New(repository, nil, cfg, zap.NewNop())
}

func futureRequest(userID int64) Request {
	target := time.Now().UTC().Add(96 * time.Hour)
	return Request{
		UserID:           userID,
		FirstName:        "Ana",
		LastName:         "Lopez",
		Email:            "ana@example.com",
		Phone:            "55512345",
		TargetDate:       target.Format("2006-01-02"),
		TargetTime:       "18:15",
		CourtPreferences: []int{1, 3, 2},
	}
}

func TestAddAssignsIDAndSchedule(t *testing.T) {
	q := newTestQueue(t)

	id, err := q.Add(futureRequest(7))
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if id == "" {
		t.Fatal("Add returned empty id")
	}

	stored, found := q.Get(id)
	if !found {
		t.Fatalf("reservation %s not found after Add", id)
	}
	if stored.Status != StatusScheduled {
		t.Errorf("status = %s, want %s", stored.Status, StatusScheduled)
	}
	if stored.ScheduledExecution == "" {
		t.Error("scheduled execution not set")
	}
	scheduledAt, parseError := time.Parse(time.RFC3339, stored.ScheduledExecution)
	if parseError != nil {
		t.Fatalf("scheduled execution not RFC3339: %v", parseError)
	}
	target, _ := stored.TargetDateTime(time.UTC)
	if !scheduledAt.Before(target.Add(-47 * time.Hour)) {
		t.Errorf("scheduled execution %v not ahead of the 48h gate for target %v", scheduledAt, target)
	}
}

func TestDuplicateSlotRejected(t *testing.T) {
	q := newTestQueue(t)
	request := futureRequest(7)

	firstID, err := q.Add(request)
	if err != nil {
		t.Fatalf("first Add failed: %v", err)
	}

	if _, err := q.Add(request); err == nil {
		t.Fatal("second Add for the same slot succeeded, want duplicate rejection")
	} else if _, isDuplicate := err.(*ErrDuplicateSlot); !isDuplicate {
		t.Fatalf("second Add error = %T (%v), want *ErrDuplicateSlot", err, err)
	}

	// A different user may queue the same slot.
	other := futureRequest(8)
	if _, err := q.Add(other); err != nil {
		t.Fatalf("Add for different user failed: %v", err)
	}

	// After cancelling the original, the slot opens up again.
	if !q.UpdateStatus(firstID, StatusCancelled, nil) {
		t.Fatal("UpdateStatus to cancelled failed")
	}
	if _, err := q.Add(request); err != nil {
		t.Fatalf("Add after cancellation failed: %v", err)
	}
}

func TestUserReservationsAndPending(t *testing.T) {
	q := newTestQueue(t)

	first := futureRequest(7)
	second := futureRequest(7)
	second.TargetTime = "19:15"
	id1, _ := q.Add(first)
	id2, _ := q.Add(second)
	q.Add(futureRequest(9))

	mine := q.UserReservations(7)
	if len(mine) != 2 {
		t.Fatalf("UserReservations(7) = %d entries, want 2", len(mine))
	}

	q.UpdateStatus(id1, StatusSuccess, func(r *Request) {
		r.ConfirmationID = "ABC123"
		r.CourtReserved = 1
	})
	pending := q.Pending()
	for _, entry := range pending {
		if entry.ID == id1 {
			t.Error("successful reservation still reported as pending")
		}
	}
	foundSecond := false
	for _, entry := range pending {
		if entry.ID == id2 {
			foundSecond = true
		}
	}
	if !foundSecond {
		t.Error("scheduled reservation missing from Pending")
	}
}

func TestUpdateStatusIf(t *testing.T) {
	q := newTestQueue(t)
	id, _ := q.Add(futureRequest(7))

	if !q.UpdateStatusIf(id, StatusScheduled, StatusBooking, nil) {
		t.Fatal("transition with matching status failed")
	}
	if q.UpdateStatusIf(id, StatusScheduled, StatusBooking, nil) {
		t.Fatal("transition with stale expected status succeeded")
	}
	stored, _ := q.Get(id)
	if stored.Status != StatusBooking {
		t.Errorf("status = %s, want %s", stored.Status, StatusBooking)
	}
	if q.UpdateStatusIf("missing", StatusScheduled, StatusBooking, nil) {
		t.Error("transition on missing id succeeded")
	}
}

func TestRemoveReservation(t *testing.T) {
	q := newTestQueue(t)
	id, _ := q.Add(futureRequest(7))

	if !q.Remove(id) {
		t.Fatal("Remove returned false for existing reservation")
	}
	if _, found := q.Get(id); found {
		t.Error("reservation still present after Remove")
	}
	if q.Remove(id) {
		t.Error("Remove returned true for missing reservation")
	}
}

func TestLoadedEntriesAreRepaired(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queue.json")
	payload := `[
	  {"user_id": 7, "target_date": "2020-01-02", "target_time": "10:00", "status": "scheduled"},
	  {"id": "keep-me", "user_id": 8, "target_date": "` +
		time.Now().UTC().Add(96*time.Hour).Format("2006-01-02") +
		`", "target_time": "09:00", "status": "bogus"}
	]`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{Timezone: time.UTC, BookingWindowHours: 48}
	q := New(NewRepository(path, zap.NewNop()), nil, cfg, zap.NewNop())

	var expiredSeen, rescheduledSeen bool
	for _, entry := range q.UserReservations(7) {
		if entry.ID == "" {
			t.Error("missing id was not regenerated")
		}
		if entry.Status == StatusExpired {
			expiredSeen = true
		}
	}
	for _, entry := range q.UserReservations(8) {
		if entry.Status == StatusScheduled && entry.ScheduledExecution != "" {
			rescheduledSeen = true
		}
	}
	if !expiredSeen {
		t.Error("past-dated entry was not expired")
	}
	if !rescheduledSeen {
		t.Error("entry with unknown status was not rescheduled")
	}
}

func TestRepositoryResilience(t *testing.T) {
	dir := t.TempDir()
	logger := zap.NewNop()

	missing := NewRepository(filepath.Join(dir, "nope.json"), logger)
	if got := missing.Load(); len(got) != 0 {
		t.Errorf("Load on missing file = %v, want empty", got)
	}

	garbagePath := filepath.Join(dir, "garbage.json")
	os.WriteFile(garbagePath, []byte(`"not a list"`), 0o644)
	garbage := NewRepository(garbagePath, logger)
	if got := garbage.Load(); len(got) != 0 {
		t.Errorf("Load on non-list payload = %v, want empty", got)
	}

	roundTripPath := filepath.Join(dir, "rt.json")
	repo := NewRepository(roundTripPath, logger)
	want := []Request{
		{ID: "a", UserID: 1, TargetDate: "2026-09-10", TargetTime: "18:15", Status: StatusScheduled, CourtPreferences: []int{2, 1}},
		{ID: "b", UserID: 2, TargetDate: "2026-09-11", TargetTime: "06:00", Status: StatusPending},
	}
	if err := repo.Save(want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got := repo.Load()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestNormalizeCourtSequence(t *testing.T) {
	got := NormalizeCourtSequence([]any{2, 1, 2, "3", nil, "x", 1}, nil)
	if !reflect.DeepEqual(got, []int{2, 1, 3}) {
		t.Errorf("NormalizeCourtSequence = %v, want [2 1 3]", got)
	}

	got = NormalizeCourtSequence([]any{4, 1, 3}, []int{1, 2, 3})
	if !reflect.DeepEqual(got, []int{1, 3}) {
		t.Errorf("NormalizeCourtSequence with allowed = %v, want [1 3]", got)
	}

	if got := NormalizeCourtSequence(nil, nil); got != nil {
		t.Errorf("NormalizeCourtSequence(nil) = %v, want nil", got)
	}
}
