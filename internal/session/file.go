package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/reviewloop/pkg/models"
)

const stateFileName = "session.json"

// FileStore persists the session record as a single JSON file under a data
// directory, created lazily on first write. One record exists at a time;
// opening a different target resets it.
type FileStore struct {
	dir string
	log zerolog.Logger
}

// NewFileStore creates a file-backed store rooted at dir.
func NewFileStore(dir string, log zerolog.Logger) *FileStore {
	return &FileStore{dir: dir, log: log}
}

func (f *FileStore) path() string {
	return filepath.Join(f.dir, stateFileName)
}

// Open returns the stored state for the target. A missing or unparseable
// file is treated as absent, not fatal.
func (f *FileStore) Open(targetID string) (*State, error) {
	data, err := os.ReadFile(f.path())
	if err != nil {
		if !os.IsNotExist(err) {
			f.log.Warn().Err(err).Str("path", f.path()).Msg("session file unreadable, starting fresh")
		}
		return reconcile(nil, targetID), nil
	}

	var stored State
	if err := json.Unmarshal(data, &stored); err != nil {
		f.log.Warn().Err(err).Str("path", f.path()).Msg("session file corrupt, starting fresh")
		return reconcile(nil, targetID), nil
	}

	state := reconcile(&stored, targetID)
	if state.TargetID != stored.TargetID {
		f.log.Info().
			Str("stored_target", stored.TargetID).
			Str("target", targetID).
			Msg("target changed, session reset")
	}
	return state, nil
}

// Persist writes the full record atomically via a temp file and rename.
func (f *FileStore) Persist(state *State) error {
	if err := validateState(state); err != nil {
		return err
	}

	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session state: %w", err)
	}

	tmp, err := os.CreateTemp(f.dir, stateFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write session state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp session file: %w", err)
	}
	if err := os.Rename(tmpName, f.path()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// MarkHandled inserts idempotency keys for the tasks and persists.
func (f *FileStore) MarkHandled(state *State, tasks []models.FixTask, revisionID string) error {
	state.markHandled(tasks, revisionID)
	return f.Persist(state)
}

// IncrementCycle bumps the cycle counter and persists.
func (f *FileStore) IncrementCycle(state *State) (int, error) {
	state.Cycle++
	if err := f.Persist(state); err != nil {
		return 0, err
	}
	return state.Cycle, nil
}

// Clear removes the stored record.
func (f *FileStore) Clear(targetID string) error {
	if err := os.Remove(f.path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
