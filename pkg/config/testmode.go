// pkg/config/testmode.go
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// TestMode holds the admin-controlled toggles that let queued bookings fire
// shortly after creation instead of waiting for the 48-hour gate.
type TestMode struct {
	Enabled                  bool    `json:"enabled"`
	AllowWithin48h           bool    `json:"allow_within_48h"`
	TriggerDelayMinutes      float64 `json:"trigger_delay_minutes"`
	RetainFailedReservations bool    `json:"retain_failed_reservations"`
}

// TestModeStore serializes test-mode reads and updates. State survives a
// restart via a small JSON file but carries no stronger guarantee.
type TestModeStore struct {
	mu      sync.RWMutex
	path    string
	current TestMode
	logger  *zap.Logger
}

func NewTestModeStore(path string, logger *zap.Logger) *TestModeStore {
	store := &TestModeStore{path: path, logger: logger}
	store.current = store.loadFromDisk()
	return store
}

func (s *TestModeStore) Get() TestMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *TestModeStore) Set(mode TestMode) {
	s.mu.Lock()
	s.current = mode
	s.mu.Unlock()
	s.persist(mode)
	s.logger.Info("test_mode_updated",
		zap.Bool("enabled", mode.Enabled),
		zap.Bool("allow_within_48h", mode.AllowWithin48h),
		zap.Float64("trigger_delay_minutes", mode.TriggerDelayMinutes))
}

func (s *TestModeStore) loadFromDisk() TestMode {
	raw, readError := os.ReadFile(s.path)
	if readError != nil {
		return TestMode{}
	}
	var mode TestMode
	if unmarshalError := json.Unmarshal(raw, &mode); unmarshalError != nil {
		s.logger.Warn("test_mode_file_invalid", zap.String("path", s.path), zap.Error(unmarshalError))
		return TestMode{}
	}
	return mode
}

func (s *TestModeStore) persist(mode TestMode) {
	encoded, marshalError := json.MarshalIndent(mode, "", "  ")
	if marshalError != nil {
		s.logger.Error("test_mode_marshal_failed", zap.Error(marshalError))
		return
	}
	if mkdirError := os.MkdirAll(filepath.Dir(s.path), 0o755); mkdirError != nil {
		s.logger.Error("test_mode_dir_failed", zap.Error(mkdirError))
		return
	}
	if writeError := os.WriteFile(s.path, encoded, 0o644); writeError != nil {
		s.logger.Error("test_mode_write_failed", zap.String("path", s.path), zap.Error(writeError))
	}
}
