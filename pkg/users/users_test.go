// pkg/users/users_test.go
package users

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func validProfile() Profile {
	return Profile{
		UserID:    42,
		FirstName: "Ana",
		LastName:  "García",
		Email:     "ana@example.com",
		Phone:     "50212345678",
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	store := NewStore(path, zap.NewNop())

	if saveError := store.Save(validProfile()); saveError != nil {
		t.Fatalf("save: %v", saveError)
	}

	reloaded := NewStore(path, zap.NewNop())
	profile, present := reloaded.Get(42)
	if !present {
		t.Fatal("profile lost on reload")
	}
	if profile.Email != "ana@example.com" || profile.FirstName != "Ana" {
		t.Fatalf("reloaded profile = %+v", profile)
	}
	if profile.UpdatedAt.IsZero() {
		t.Fatal("updated_at not stamped")
	}
}

func TestSaveRejectsInvalidProfiles(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "users.json"), zap.NewNop())

	broken := validProfile()
	broken.Email = "not-an-email"
	if saveError := store.Save(broken); saveError == nil {
		t.Fatal("invalid email accepted")
	}

	broken = validProfile()
	broken.FirstName = "A"
	if saveError := store.Save(broken); saveError == nil {
		t.Fatal("one-letter name accepted")
	}

	if store.Count() != 0 {
		t.Fatalf("invalid profiles were stored, count = %d", store.Count())
	}
}

func TestDelete(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "users.json"), zap.NewNop())
	if saveError := store.Save(validProfile()); saveError != nil {
		t.Fatalf("save: %v", saveError)
	}

	if deleteError := store.Delete(42); deleteError != nil {
		t.Fatalf("delete: %v", deleteError)
	}
	if _, present := store.Get(42); present {
		t.Fatal("profile survived deletion")
	}
	if deleteError := store.Delete(42); deleteError != nil {
		t.Fatalf("double delete should be a no-op, got %v", deleteError)
	}
}

func TestCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	if writeError := os.WriteFile(path, []byte("{not json"), 0o644); writeError != nil {
		t.Fatalf("setup: %v", writeError)
	}

	store := NewStore(path, zap.NewNop())
	if store.Count() != 0 {
		t.Fatalf("corrupt file should load empty, count = %d", store.Count())
	}
}
