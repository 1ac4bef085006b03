// pkg/users/users.go
package users

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Profile is the booking identity stored per Telegram user. The form fields
// mirror what the scheduling site asks for.
type Profile struct {
	UserID    int64     `json:"user_id" validate:"required"`
	FirstName string    `json:"first_name" validate:"required,min=2"`
	LastName  string    `json:"last_name" validate:"required,min=2"`
	Email     string    `json:"email" validate:"required,email"`
	Phone     string    `json:"phone" validate:"required,min=8"`
	Tier      string    `json:"tier,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store keeps profiles in a JSON file keyed by user ID. A single process
// owns the file; the mutex only guards in-process concurrency.
type Store struct {
	mu       sync.RWMutex
	path     string
	profiles map[int64]Profile
	validate *validator.Validate
	logger   *zap.Logger
}

func NewStore(path string, logger *zap.Logger) *Store {
	store := &Store{
		path:     path,
		profiles: map[int64]Profile{},
		validate: validator.New(),
		logger:   logger,
	}
	store.loadFromDisk()
	return store
}

func (s *Store) loadFromDisk() {
	payload, readError := os.ReadFile(s.path)
	if readError != nil {
		if !os.IsNotExist(readError) {
			s.logger.Warn("users_file_unreadable", zap.String("path", s.path), zap.Error(readError))
		}
		return
	}

	raw := map[string]Profile{}
	if unmarshalError := json.Unmarshal(payload, &raw); unmarshalError != nil {
		s.logger.Warn("users_file_corrupt", zap.String("path", s.path), zap.Error(unmarshalError))
		return
	}
	for key, profile := range raw {
		userID, parseError := strconv.ParseInt(key, 10, 64)
		if parseError != nil {
			continue
		}
		if profile.UserID == 0 {
			profile.UserID = userID
		}
		s.profiles[userID] = profile
	}
	s.logger.Info("users_loaded", zap.Int("count", len(s.profiles)))
}

func (s *Store) persist() error {
	raw := make(map[string]Profile, len(s.profiles))
	for userID, profile := range s.profiles {
		raw[strconv.FormatInt(userID, 10)] = profile
	}
	payload, marshalError := json.MarshalIndent(raw, "", "  ")
	if marshalError != nil {
		return marshalError
	}
	if mkdirError := os.MkdirAll(filepath.Dir(s.path), 0o755); mkdirError != nil {
		return mkdirError
	}
	return os.WriteFile(s.path, payload, 0o644)
}

// Get returns the stored profile for a user.
func (s *Store) Get(userID int64) (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, present := s.profiles[userID]
	return profile, present
}

// Save validates and stores a profile, then persists the whole map.
func (s *Store) Save(profile Profile) error {
	if validationError := s.validate.Struct(profile); validationError != nil {
		return fmt.Errorf("invalid profile: %w", validationError)
	}
	profile.UpdatedAt = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.UserID] = profile
	if persistError := s.persist(); persistError != nil {
		s.logger.Error("users_persist_failed", zap.Error(persistError))
		return persistError
	}
	s.logger.Info("user_profile_saved", zap.Int64("user_id", profile.UserID))
	return nil
}

// Delete removes a profile. Deleting an absent profile is a no-op.
func (s *Store) Delete(userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, present := s.profiles[userID]; !present {
		return nil
	}
	delete(s.profiles, userID)
	return s.persist()
}

// Count returns the number of stored profiles.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}
