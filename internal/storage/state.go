// Package storage holds the theater's durable files: the narrative state,
// the calibration and script documents, and the session transcript.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/jwebster45206/quantum-theater/pkg/narrative"
)

// ErrCorruptState is returned when the state file exists but cannot be used.
var ErrCorruptState = errors.New("corrupt narrative state")

// FileStore keeps the NarrativeState in a single JSON file. Writes go to a
// temp file in the same directory which is synced and renamed over the old
// one, so a reader sees either the previous state or the new state.
type FileStore struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

var _ narrative.Store = (*FileStore)(nil)

// NewFileStore creates a store for the file at path.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{path: path, logger: logger}
}

// Path returns the state file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the persisted state. A missing file yields the default state.
func (s *FileStore) Load(ctx context.Context) (narrative.NarrativeState, error) {
	if err := ctx.Err(); err != nil {
		return narrative.NarrativeState{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Info("No narrative state file, starting fresh", "path", s.path)
			return narrative.DefaultState(), nil
		}
		return narrative.NarrativeState{}, fmt.Errorf("failed to read narrative state: %w", err)
	}

	var st narrative.NarrativeState
	if err := json.Unmarshal(data, &st); err != nil {
		return narrative.NarrativeState{}, fmt.Errorf("%w: %s: %v", ErrCorruptState, s.path, err)
	}
	st = st.Normalize()
	if err := st.Validate(); err != nil {
		return narrative.NarrativeState{}, fmt.Errorf("%w: %s: %v", ErrCorruptState, s.path, err)
	}
	s.logger.Info("Narrative state loaded", "path", s.path, "act", st.Act, "last_seq", st.LastSeq)
	return st, nil
}

// Save replaces the state file atomically.
func (s *FileStore) Save(ctx context.Context, st narrative.NarrativeState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := st.Validate(); err != nil {
		return fmt.Errorf("refusing to save narrative state: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal narrative state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return writeAtomic(s.path, data)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace file: %w", err)
	}

	// Best effort: persist the rename itself.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
