// pkg/queue/repository.go
package queue

import (
	"encoding/json"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Repository reads and writes the reservation list as a JSON array file.
// Callers must never crash on a corrupted store: load failures of any kind
// degrade to an empty list.
type Repository struct {
	path   string
	logger *zap.Logger
}

func NewRepository(path string, logger *zap.Logger) *Repository {
	return &Repository{path: path, logger: logger}
}

func (r *Repository) Load() []Request {
	raw, readError := os.ReadFile(r.path)
	if readError != nil {
		if os.IsNotExist(readError) {
			r.logger.Debug("queue_file_missing", zap.String("path", r.path))
		} else {
			r.logger.Error("queue_load_failed", zap.String("path", r.path), zap.Error(readError))
		}
		return []Request{}
	}

	var reservations []Request
	if unmarshalError := json.Unmarshal(raw, &reservations); unmarshalError != nil {
		r.logger.Warn("queue_format_invalid",
			zap.String("path", r.path),
			zap.Error(unmarshalError))
		return []Request{}
	}
	r.logger.Debug("queue_loaded", zap.Int("reservations", len(reservations)), zap.String("path", r.path))
	return reservations
}

// Save writes the full list. Write errors are logged and returned; in-memory
// state is not rolled back (at-least-once durability is out of scope).
func (r *Repository) Save(reservations []Request) error {
	if reservations == nil {
		reservations = []Request{}
	}
	encoded, marshalError := json.MarshalIndent(reservations, "", "  ")
	if marshalError != nil {
		r.logger.Error("queue_marshal_failed", zap.Error(marshalError))
		return marshalError
	}
	if mkdirError := os.MkdirAll(filepath.Dir(r.path), 0o755); mkdirError != nil {
		r.logger.Error("queue_dir_failed", zap.String("path", r.path), zap.Error(mkdirError))
		return mkdirError
	}
	if writeError := os.WriteFile(r.path, encoded, 0o644); writeError != nil {
		r.logger.Error("queue_save_failed", zap.String("path", r.path), zap.Error(writeError))
		return writeError
	}
	r.logger.Debug("queue_saved", zap.String("path", r.path), zap.Int("reservations", len(reservations)))
	return nil
}
